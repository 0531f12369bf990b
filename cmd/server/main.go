package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryfiber "github.com/getsentry/sentry-go/fiber"
	redisstorage "github.com/gofiber/storage/redis/v3"
	"github.com/redis/go-redis/v9"

	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/config"
	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/database"
	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/handlers"
	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/logging"
	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/mailer"
	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/middleware"
	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/routes"
	"github.com/ahmetcoskunkizilkaya/subtrack-backend/internal/services"
	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
)

func main() {
	// Structured logging (JSON to stdout) until config is known
	logging.Setup("info")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	stdout := logging.Setup(cfg.LogLevel)

	// Database
	if err := database.Connect(cfg); err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	if err := database.Migrate(database.DB); err != nil {
		slog.Error("migration failed", "error", err)
		os.Exit(1)
	}

	// PostgreSQL log handler (ERROR+ async batch)
	pgLogHandler := logging.NewPGHandler(database.DB, 5*time.Second)
	slog.SetDefault(slog.New(logging.NewMultiHandler(stdout, pgLogHandler)))

	cleanupDone := make(chan struct{})
	logging.StartCleanup(database.DB, cfg.LogRetention, cleanupDone)

	// Mail
	var dispatcher mailer.Dispatcher
	if cfg.PostmarkServerToken != "" {
		pm, err := mailer.NewPostmarkDispatcher(cfg.PostmarkServerToken, cfg.PostmarkAccountToken, cfg.MailFrom, cfg.MailReplyTo)
		if err != nil {
			slog.Error("mailer init failed", "error", err)
			os.Exit(1)
		}
		dispatcher = pm
	} else {
		slog.Warn("POSTMARK_SERVER_TOKEN not set, emails are logged only")
		dispatcher = mailer.NewLogDispatcher(slog.Default())
	}

	// Services
	authService := services.NewAuthService(database.DB, cfg, dispatcher,
		services.NewGoogleIdentity(cfg.GoogleClientID),
		services.NewGitHubIdentity(cfg.GitHubClientID, cfg.GitHubClientSecret, cfg.GitHubRedirectURI),
	)

	// Shared limiter storage
	var (
		limiterStorage fiber.Storage
		redisStore     *redisstorage.Storage
		redisClient    redis.UniversalClient
	)
	if cfg.RedisURL != "" {
		redisStore = redisstorage.New(redisstorage.Config{URL: cfg.RedisURL})
		redisClient = redisStore.Conn()
		limiterStorage = redisStore
		slog.Info("rate limiter using redis")
	}

	// Handlers
	h := routes.Handlers{
		Auth:   handlers.NewAuthHandler(authService, cfg),
		User:   handlers.NewUserHandler(authService),
		Health: handlers.NewHealthHandler(database.DB, redisClient),
	}

	// Sentry error tracking
	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			EnableTracing:    true,
			TracesSampleRate: 0.2,
			Environment:      cfg.AppEnv,
		}); err != nil {
			slog.Error("sentry init failed", "error", err)
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Fiber app
	app := fiber.New(fiber.Config{
		BodyLimit:    1 * 1024 * 1024,
		ErrorHandler: handlers.ErrorHandler,
	})

	app.Use(sentryfiber.New(sentryfiber.Options{
		Repanic:         true,
		WaitForDelivery: false,
	}))

	// Global middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} | ${status} | ${latency} | ${ip} | ${method} | ${path} | ${locals:requestid}\n",
	}))
	app.Use(middleware.CORS(cfg))
	app.Use(middleware.SecurityHeaders())

	routes.Setup(app, cfg, limiterStorage, h, authService)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	<-quit
	slog.Info("shutting down server...")

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	close(cleanupDone)
	pgLogHandler.Stop()
	sentry.Flush(2 * time.Second)

	if redisStore != nil {
		if err := redisStore.Close(); err != nil {
			slog.Error("redis close error", "error", err)
		}
	}
	if err := database.Close(database.DB); err != nil {
		slog.Error("database close error", "error", err)
	}

	slog.Info("server stopped")
}
