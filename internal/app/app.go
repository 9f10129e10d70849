package app

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/sundayezeilo/linkhub/internal/config"
	"github.com/sundayezeilo/linkhub/internal/kv"
	"github.com/sundayezeilo/linkhub/internal/linkcache"
	"github.com/sundayezeilo/linkhub/internal/links"
	"github.com/sundayezeilo/linkhub/internal/ratelimit"
	"github.com/sundayezeilo/linkhub/internal/server"
	"github.com/sundayezeilo/linkhub/sluggen"
)

// App holds the application dependencies and configuration.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	DBPool  *pgxpool.Pool
	Redis   *kv.RedisStore
	Server  *server.Server
	Handler *links.Handler
}

// New initializes and returns a new App instance with all dependencies wired up.
func New(ctx context.Context) (*App, error) {
	if err := loadEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := setupLogger(cfg.App.LogLevel)

	logger.Info("starting application", "env", cfg.App.Environment)

	dbPool, err := connectDatabase(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	redis, err := kv.NewRedisFromURL(ctx, cfg.Redis.URL)
	if err != nil {
		dbPool.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("redis connection established")

	// Wire the link domain
	repo := links.NewRepository(dbPool, nil)
	domains := links.NewDomainResolver(repo, cfg.Links.DefaultDomain)
	cache := linkcache.New(redis)
	clicks := links.NewClickRecorder(redis, logger)
	limiter := ratelimit.New(redis, cfg.RateLimit.Limit, cfg.RateLimit.Window, logger)

	resolver := links.NewResolver(domains, cache, repo, clicks, logger)
	admission := links.NewAdmission(limiter, domains, repo, cache, logger, &links.AdmissionConfig{
		SlugGenerator:   sluggen.NewBase58(),
		SlugLength:      cfg.Links.SlugLength,
		SlugMaxAttempts: cfg.Links.SlugMaxAttempts,
	})

	handler := links.NewHandler(links.HandlerConfig{
		Resolver:  resolver,
		Admission: admission,
		Logger:    logger,
		BaseURL:   cfg.Server.BaseURL,
	})

	srv := server.New(cfg, logger, handler)

	logger.Info("application initialized",
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
		"default_domain", cfg.Links.DefaultDomain,
	)

	return &App{
		Config:  cfg,
		Logger:  logger,
		DBPool:  dbPool,
		Redis:   redis,
		Server:  srv,
		Handler: handler,
	}, nil
}

// Start starts the application server.
func (a *App) Start(ctx context.Context) error {
	a.Logger.Info("server starting",
		"port", a.Config.Server.Port,
		"base_url", a.Config.Server.BaseURL,
	)

	if err := a.Server.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown() error {
	a.Logger.Info("shutting down application")

	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			a.Logger.Warn("failed to close redis client", "error", err)
		} else {
			a.Logger.Info("redis connection closed")
		}
	}

	if a.DBPool != nil {
		a.DBPool.Close()
		a.Logger.Info("database connection closed")
	}

	return nil
}

// loadEnv loads .env file only in non-production environments.
func loadEnv() error {
	env := os.Getenv("APP_ENV")
	if env == "development" || env == "test" {
		if err := godotenv.Load("../.env"); err != nil {
			log.Println("no .env file found.")
		}
	}
	return nil
}

// setupLogger creates a structured logger based on the log level.
func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: logLevel,
	}

	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}

// connectDatabase establishes a connection to the PostgreSQL database.
func connectDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = cfg.Database.MaxConns
	poolConfig.MinConns = cfg.Database.MinConns

	logger.Info("connecting to database",
		"host", cfg.Database.Host,
		"port", cfg.Database.Port,
		"database", cfg.Database.Name,
	)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established")

	return pool, nil
}
