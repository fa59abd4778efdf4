package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/splvrdge/savr/internal/amqp"
	"github.com/splvrdge/savr/internal/cli"
	apphttp "github.com/splvrdge/savr/internal/http"
	"github.com/splvrdge/savr/internal/log"
	"github.com/splvrdge/savr/internal/middleware/auth"
	"github.com/splvrdge/savr/internal/middleware/ratelimit"
	"github.com/splvrdge/savr/internal/middleware/security"
	"github.com/splvrdge/savr/internal/services"
)

func main() {
	cli.LoadEnvFile()

	cfg, err := cli.LoadAndValidateConfig()
	if err != nil {
		log.New(log.DefaultConfig()).Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}

	logger, err := cli.SetupLogger(cfg)
	if err != nil {
		log.New(log.DefaultConfig()).Error("Invalid log configuration", log.FieldError, err.Error())
		os.Exit(1)
	}

	repo, err := cli.OpenRepository(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to open database", log.FieldError, err.Error(), "driver", cfg.DBDriver)
		os.Exit(1)
	}
	defer repo.Close()

	// Ledger events are optional. A nil interface keeps the ledger from
	// publishing at all.
	var publisher services.EventPublisher
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
			os.Exit(1)
		}
		publisher = amqpClient
		logger.Info("Ledger events enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
	} else {
		logger.Info("Ledger events disabled - no AMQP_URL provided")
	}

	detector := security.NewDetector()
	for _, cidr := range cfg.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Error("Invalid trusted proxy", "cidr", cidr, log.FieldError, err.Error())
			os.Exit(1)
		}
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:          ":" + cfg.Port,
		Ledger:        services.NewLedgerService(repo, publisher),
		Reporting:     services.NewReportingService(repo, cfg.HistoryMaxLimit),
		Pinger:        repo,
		Authenticator: auth.NewAuthenticator(cfg.JWTSecret, cfg.JWTIssuer),
		Limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.RateLimitPerMinute,
			CleanupInterval:   5 * time.Minute,
		}),
		Detector:   detector,
		Logger:     logger,
		Production: cfg.IsProduction(),
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.ErrorContext(ctx, "Server shutdown error", log.FieldError, err.Error())
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.ErrorContext(ctx, "AMQP close error", log.FieldError, err.Error())
			}
		}
	})

	logger.Info("Starting savr server",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"driver", cfg.DBDriver)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
