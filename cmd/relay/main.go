package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/af-corp/copilot-relay/internal/config"
	"github.com/af-corp/copilot-relay/internal/conversation"
	"github.com/af-corp/copilot-relay/internal/filter"
	"github.com/af-corp/copilot-relay/internal/filter/policy"
	"github.com/af-corp/copilot-relay/internal/filter/secrets"
	"github.com/af-corp/copilot-relay/internal/gateway"
	"github.com/af-corp/copilot-relay/internal/ratelimit"
	"github.com/af-corp/copilot-relay/internal/relay"
	"github.com/af-corp/copilot-relay/internal/telemetry"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

var version = "dev"

func main() {
	configFile := flag.String("config", os.Getenv("CONFIG_FILE"), "optional YAML configuration file")
	flag.Parse()

	bootLogger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	// Load configuration
	loader := config.NewLoader(*configFile, bootLogger)
	if err := loader.Load(); err != nil {
		bootLogger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := loader.Config()

	logger := newLogger(cfg.Telemetry)
	slog.SetDefault(logger)

	if *configFile != "" {
		if err := loader.Watch(); err != nil {
			logger.Warn("failed to start config watcher", "error", err)
		}
	}

	if cfg.Upstream.APIKey == "" {
		logger.Warn("OPENAI_API_KEY is not set; relay calls will fail with missing_api_key")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := telemetry.NewMetrics(reg)

	// Connect to Redis
	var rdb *redis.Client
	if len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (rate limiting fails open)", "error", err)
		} else {
			logger.Info("redis connected")
		}
		defer rdb.Close()
	}

	// Conversation store
	store, closeStore, err := openStore(cfg.Store, logger)
	if err != nil {
		logger.Error("failed to open conversation store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// Filters
	scanner := secrets.NewScanner(func() config.SecretsFilterConfig { return loader.Config().Filter.Secrets })
	evaluator := policy.NewEvaluator(func() config.PolicyFilterConfig { return loader.Config().Filter.Policy })
	if cfg.Filter.Policy.Enabled {
		if err := evaluator.Load(); err != nil {
			logger.Warn("failed to load policies (requests will be denied)", "error", err)
		}
	}
	loader.OnReload(func() {
		if !loader.Config().Filter.Policy.Enabled {
			return
		}
		if err := evaluator.Load(); err != nil {
			logger.Warn("failed to reload policies", "error", err)
			return
		}
		logger.Info("policies reloaded")
	})

	// Build handler
	svc := relay.NewService(loader.Config, relay.NewClient())
	opts := []gateway.Option{
		gateway.WithFilterChain(filter.NewChain(scanner, evaluator)),
		gateway.WithMetrics(metrics),
		gateway.WithLogger(logger),
	}
	if store != nil {
		opts = append(opts, gateway.WithStore(store))
	}
	handler := gateway.NewHandler(svc, loader.Config, opts...)

	routerOpts := gateway.RouterOptions{Gatherer: reg, Logger: logger}
	if rdb != nil {
		routerOpts.Limiter = ratelimit.NewLimiter(rdb, logger)
	}
	router := gateway.NewRouter(handler, loader.Config, routerOpts)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		tls := cfg.Server.TLSCertFile != "" && cfg.Server.TLSKeyFile != ""
		logger.Info("relay starting",
			"addr", addr,
			"version", version,
			"tls", tls,
			"upstream", cfg.Upstream.ChatCompletionsURL(),
			"default_model", cfg.Upstream.DefaultModel,
		)
		if tls {
			errCh <- srv.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("relay stopped")
}

func newLogger(cfg config.TelemetryConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

// openStore returns nil when transcripts are disabled.
func openStore(cfg config.StoreConfig, logger *slog.Logger) (conversation.Store, func(), error) {
	switch cfg.Driver {
	case "", "none":
		return nil, func() {}, nil
	case "memory":
		logger.Info("conversation store: memory")
		return conversation.NewMemoryStore(), func() {}, nil
	case "postgres":
		poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse DATABASE_URL: %w", err)
		}
		if cfg.MaxConns > 0 {
			poolCfg.MaxConns = cfg.MaxConns
		}
		pool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := pool.Ping(context.Background()); err != nil {
			logger.Warn("database not reachable (transcripts will fail)", "error", err)
		} else {
			logger.Info("conversation store: postgres connected")
		}
		return conversation.NewPostgresStore(pool), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
