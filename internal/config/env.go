package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnv overrides cfg with any recognised environment variables that are set.
func ApplyEnv(cfg *Config) {
	if v, ok := lookup("DEFAULT_OPENAI_MODEL"); ok {
		cfg.Upstream.DefaultModel = v
	}
	if v, ok := lookup("OPENAI_API_KEY"); ok {
		cfg.Upstream.APIKey = v
	}
	if v, ok := lookup("OPENAI_BASE_URL"); ok {
		cfg.Upstream.BaseURL = v
	}
	if v, ok := lookup("REQUEST_TIMEOUT"); ok {
		cfg.Upstream.Timeout = ParseTimeout(v)
	}
	if v, ok := os.LookupEnv("BACKEND_CORS_ORIGINS"); ok {
		cfg.CORS.AllowedOrigins = ParseOrigins(v)
	}

	if v, ok := lookup("HOST"); ok {
		cfg.Server.Host = v
	}
	if v, ok := lookup("PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}
	if v, ok := lookup("TLS_CERT_FILE"); ok {
		cfg.Server.TLSCertFile = v
	}
	if v, ok := lookup("TLS_KEY_FILE"); ok {
		cfg.Server.TLSKeyFile = v
	}

	if v, ok := lookup("LOG_LEVEL"); ok {
		cfg.Telemetry.LogLevel = v
	}
	if v, ok := lookup("LOG_FORMAT"); ok {
		cfg.Telemetry.LogFormat = v
	}

	if v, ok := lookup("REDIS_ADDR"); ok {
		cfg.Redis.Addresses = []string{v}
	}
	if v, ok := lookup("REDIS_PASSWORD"); ok {
		cfg.Redis.Password = v
	}
	if v, ok := lookup("RATE_LIMIT_RPM"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimit.RequestsPerMinute = n
		}
	}

	if v, ok := lookup("STORE_DRIVER"); ok {
		cfg.Store.Driver = strings.ToLower(v)
	}
	if v, ok := lookup("DATABASE_URL"); ok {
		cfg.Store.DatabaseURL = v
	}

	if v, ok := lookup("SECRET_SCAN_ENABLED"); ok {
		cfg.Filter.Secrets.Enabled = parseBool(v, cfg.Filter.Secrets.Enabled)
	}
	if v, ok := lookup("POLICY_ENABLED"); ok {
		cfg.Filter.Policy.Enabled = parseBool(v, cfg.Filter.Policy.Enabled)
	}
	if v, ok := lookup("POLICY_DIR"); ok {
		cfg.Filter.Policy.BundlePath = v
	}
}

// ParseOrigins accepts either a JSON array string or a comma-separated list.
// Blank entries are dropped; an empty input yields DefaultOrigins.
func ParseOrigins(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return append([]string(nil), DefaultOrigins...)
	}

	if strings.HasPrefix(raw, "[") {
		var list []string
		if err := json.Unmarshal([]byte(raw), &list); err == nil {
			return compact(list)
		}
		slog.Warn("BACKEND_CORS_ORIGINS looks like JSON but does not parse, treating as CSV")
	}

	return compact(strings.Split(raw, ","))
}

// ParseTimeout reads a number of seconds (fractions allowed). Anything that is
// not a positive number yields DefaultTimeout.
func ParseTimeout(raw string) time.Duration {
	secs, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || secs <= 0 {
		slog.Warn("invalid REQUEST_TIMEOUT, using default", "value", raw, "default", DefaultTimeout)
		return DefaultTimeout
	}
	return time.Duration(secs * float64(time.Second))
}

func compact(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func parseBool(v string, fallback bool) bool {
	switch strings.ToLower(v) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	}
	return fallback
}
