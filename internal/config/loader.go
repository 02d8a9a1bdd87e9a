package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:default} patterns in a string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envVarPattern.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}
		varName := submatch[1]
		defaultVal := ""
		if len(submatch) >= 3 {
			defaultVal = submatch[2]
		}
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return defaultVal
	})
}

// LoadFile reads a YAML file, expands env vars, and unmarshals into dest.
func LoadFile(path string, dest interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), dest); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

// Loader builds the relay configuration from defaults, an optional YAML file
// and the environment, and reloads it when the file changes.
type Loader struct {
	path     string
	envFiles []string
	mu       sync.RWMutex
	cfg      *Config
	watchers []func()
	logger   *slog.Logger
}

// NewLoader returns a loader for the given YAML file. An empty path means the
// configuration comes from defaults and the environment only.
func NewLoader(path string, logger *slog.Logger, envFiles ...string) *Loader {
	if path != "" {
		path = filepath.Clean(path)
	}
	return &Loader{
		path:     path,
		envFiles: envFiles,
		logger:   logger,
	}
}

func (l *Loader) Load() error {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load(l.envFiles...)

	cfg := DefaultConfig()
	if l.path != "" {
		if err := LoadFile(l.path, cfg); err != nil {
			return fmt.Errorf("load relay config: %w", err)
		}
	}
	ApplyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return err
	}

	l.mu.Lock()
	l.cfg = cfg
	l.mu.Unlock()

	l.logger.Info("configuration loaded",
		"file", l.path,
		"base_url", cfg.Upstream.BaseURL,
		"default_model", cfg.Upstream.DefaultModel,
		"timeout", cfg.Upstream.Timeout,
		"api_key_set", cfg.Upstream.APIKey != "",
		"store", cfg.Store.Driver,
	)
	return nil
}

func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

// OnReload registers a callback that fires after config is reloaded.
func (l *Loader) OnReload(fn func()) {
	l.watchers = append(l.watchers, fn)
}

// Watch starts watching the config file for changes and reloads on modification.
// The parent directory is watched so that editors which replace the file are seen.
func (l *Loader) Watch() error {
	if l.path == "" {
		return fmt.Errorf("no config file to watch")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	dir := filepath.Dir(l.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch config dir %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != l.path {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					l.logger.Info("config file changed, reloading", "file", event.Name)
					if err := l.Load(); err != nil {
						l.logger.Error("failed to reload config", "error", err)
						continue
					}
					for _, fn := range l.watchers {
						fn()
					}
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Error("fsnotify error", "error", err)
			}
		}
	}()

	return nil
}

// Validate rejects configurations the relay cannot run with. A missing API key
// is allowed: it is reported per call as missing_api_key.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "", "none", "memory":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("store driver postgres requires DATABASE_URL")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Upstream.Timeout <= 0 {
		c.Upstream.Timeout = DefaultTimeout
	}
	if c.Upstream.DefaultModel == "" {
		c.Upstream.DefaultModel = DefaultModel
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = append([]string(nil), DefaultOrigins...)
	}
	return nil
}
