package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"finsync/internal/amqp"
	"finsync/internal/backend"
	"finsync/internal/cli"
	"finsync/internal/config"
	apphttp "finsync/internal/http"
	"finsync/internal/log"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)

	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateServer)
	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	backendConfig, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err)
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendConfig)
	if err != nil {
		logger.Error("Failed to create backend", log.FieldError, err, "mode", backendConfig.Mode.String())
		os.Exit(1)
	}
	defer result.Cleanup()

	svc := backend.NewServices(repo, result, cfg, logger)
	svc.Janitor.Start(backend.CacheSweepInterval)

	deps := apphttp.Deps{
		Sync:         svc.Sync,
		Categories:   svc.Categorize,
		Transactions: svc.Transactions,
		Accounts:     repo,
		Ready:        repo,
		Auth:         apphttp.NewAuthenticator(cfg.JWTSecret),
		Logger:       logger.WithComponent(log.ComponentHTTP),
	}

	// The broker is optional for the API: without it, enqueueing is
	// unavailable and completion events are not published.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(amqp.Config{
			URL:              cfg.AMQPURL,
			Exchange:         cfg.AMQPExchange,
			Queue:            cfg.AMQPQueue,
			EventsRoutingKey: cfg.AMQPEventsRoutingKey,
		}, logger.WithComponent(log.ComponentAMQP))
		if err != nil {
			logger.Warn("AMQP unavailable, background sync disabled", log.FieldError, err)
		} else {
			svc.Sync.WithNotifier(amqpClient)
			deps.Queue = amqpClient
		}
	}

	srv := apphttp.NewServer(":"+cfg.Port, deps)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		svc.Janitor.Stop()
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", log.FieldError, err)
			}
		}
	})

	logger.Info("Starting finsync server",
		"port", cfg.Port,
		"provider_mode", cfg.ProviderMode,
		"export_enabled", cfg.ExportEnabled(),
		"queue_enabled", deps.Queue != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
