package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fairyhunter13/rcn-reward-engine/internal/config"
	"github.com/fairyhunter13/rcn-reward-engine/internal/events"
	"github.com/fairyhunter13/rcn-reward-engine/internal/handler"
	"github.com/fairyhunter13/rcn-reward-engine/internal/metrics"
	"github.com/fairyhunter13/rcn-reward-engine/internal/repository"
	"github.com/fairyhunter13/rcn-reward-engine/internal/reward"
	"github.com/fairyhunter13/rcn-reward-engine/internal/service"
	"github.com/fairyhunter13/rcn-reward-engine/internal/signature"
	"github.com/fairyhunter13/rcn-reward-engine/internal/validator"
	"github.com/fairyhunter13/rcn-reward-engine/pkg/database"
	"github.com/fairyhunter13/rcn-reward-engine/pkg/rabbitmq"
)

func main() {
	// Load configuration first
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	// Initialize zerolog based on configuration
	logFile := initLogger(cfg)
	if logFile != nil {
		defer logFile.Close()
	}

	// Create context for startup
	ctx := context.Background()

	// Initialize database pool with retry
	pool, err := database.NewPool(ctx, database.PoolOptions{
		DSN:        cfg.DB.DSN(),
		MaxRetries: 5,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	if cfg.DB.AutoMigrate {
		if err := database.Migrate(ctx, pool); err != nil {
			log.Fatal().Err(err).Msg("failed to apply schema")
		}
	}

	// Metrics registry
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	engineMetrics := metrics.New(reg)

	// Event stream: RabbitMQ when configured, log-only otherwise
	var broker *rabbitmq.Connection
	var publisher events.Publisher = events.LogPublisher{}
	if cfg.Events.AMQPURL != "" {
		broker, err = rabbitmq.Connect(ctx, rabbitmq.DialOptions{URL: cfg.Events.AMQPURL, MaxRetries: 5})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to event broker")
		}
		amqpPublisher, err := rabbitmq.NewPublisher(broker, cfg.Events.Exchange)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to declare event exchange")
		}
		publisher = amqpPublisher
	} else {
		log.Warn().Msg("EVENTS_AMQP_URL not set, domain events are only logged")
	}
	emitter := events.NewEmitter(publisher, cfg.Events.BufferSize, cfg.Events.Source).WithMetrics(engineMetrics)
	emitter.Start()

	// Initialize Fiber with production-ready configuration
	app := fiber.New(fiber.Config{
		AppName:      "RCN Reward Engine",
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		BodyLimit:    1 * 1024 * 1024,
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New()) // Adds X-Request-ID header to all requests
	app.Use(logger.New())

	// Initialize validator
	validate := validator.New()

	// Repositories
	customerRepo := repository.NewCustomerRepository(pool)
	shopRepo := repository.NewShopRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	ledgerRepo := repository.NewLedgerRepository(pool)

	// Services
	rewardService := service.NewRewardService(pool, customerRepo, shopRepo, ledgerRepo, reward.Limits{
		DailyCap:   cfg.Rewards.DailyCap,
		MonthlyCap: cfg.Rewards.MonthlyCap,
	}).WithEmitter(emitter).WithMetrics(engineMetrics)

	redemptionService := service.NewRedemptionService(pool, customerRepo, shopRepo, sessionRepo, ledgerRepo,
		signature.NewVerifier(),
		service.RedemptionConfig{
			SessionTTL:          cfg.Redemption.SessionTTL,
			CrossShopPercent:    cfg.Redemption.CrossShopPercent,
			RequireSignedReject: cfg.Redemption.RequireSignedReject,
		}).WithEmitter(emitter).WithMetrics(engineMetrics)

	// Handlers
	rewardHandler := handler.NewRewardHandler(rewardService, validate)
	redemptionHandler := handler.NewRedemptionHandler(redemptionService, validate)
	customerHandler := handler.NewCustomerHandler(rewardService, redemptionService)

	// A nil *Connection must not reach the Pinger interface
	healthHandler := handler.NewHealthHandler(pool, nil)
	if broker != nil {
		healthHandler = handler.NewHealthHandler(pool, broker)
	}
	app.Get("/health", healthHandler.Check)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// Reward routes
	app.Post("/api/rewards", rewardHandler.IssueReward)

	// Redemption routes
	app.Post("/api/redemptions", redemptionHandler.CreateSession)
	app.Get("/api/redemptions/:id", redemptionHandler.GetSession)
	app.Post("/api/redemptions/:id/approve", redemptionHandler.Approve)
	app.Post("/api/redemptions/:id/reject", redemptionHandler.Reject)

	// Customer routes
	app.Get("/api/customers/:address", customerHandler.GetCustomer)
	app.Get("/api/customers/:address/redeemable", customerHandler.GetRedeemable)
	app.Get("/api/customers/:address/redemptions/pending", customerHandler.ListPendingSessions)

	// Background expiry of abandoned sessions
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	sweeperDone := make(chan struct{})
	go func() {
		defer close(sweeperDone)
		service.RunSessionSweeper(sweepCtx, redemptionService, cfg.Redemption.SweepInterval)
	}()

	// Start server with graceful shutdown
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("starting server")
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
	log.Info().Int("timeout_seconds", cfg.Server.ShutdownTimeout).Msg("shutting down server...")

	// Create shutdown context with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.Server.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	// Shutdown server (waits for in-flight requests)
	log.Info().Msg("waiting for in-flight requests to complete...")
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error during server shutdown")
	}

	stopSweeper()
	<-sweeperDone

	// Flush committed events before the broker goes away
	log.Info().Msg("draining event queue...")
	if err := emitter.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("event queue not fully drained")
	}
	if broker != nil {
		if err := broker.Close(); err != nil {
			log.Error().Err(err).Msg("error closing event broker connection")
		}
	}

	// Close database pool AFTER server shutdown (even if shutdown timed out)
	log.Info().Msg("closing database connections...")
	pool.Close()
	log.Info().Msg("database connections closed")
	log.Info().Msg("server stopped")
}

// initLogger configures zerolog based on the application configuration.
// It returns the rotated log file, if one was configured, so main can close it.
func initLogger(cfg *config.Config) io.Closer {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Configure output format
	var out io.Writer
	if cfg.Log.Pretty {
		// Human-readable output for development
		out = zerolog.ConsoleWriter{Out: os.Stdout}
	} else {
		// JSON output for production
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		out = os.Stdout
	}

	var file *lumberjack.Logger
	if cfg.Log.File != "" {
		file = &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.FileMaxSizeMB,
			MaxBackups: cfg.Log.FileMaxBackups,
			MaxAge:     cfg.Log.FileMaxAgeDays,
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, file)
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()

	if file == nil {
		return nil
	}
	return file
}
