package main

import (
	"context"
	"errors"
	"os"
	"time"

	"finsync/internal/amqp"
	"finsync/internal/backend"
	"finsync/internal/cli"
	"finsync/internal/log"
	"finsync/internal/services"
	"finsync/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting sync-worker")

	cfg := cli.LoadAndValidateConfig(logger, nil)
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required for the sync worker")
		os.Exit(1)
	}

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

	amqpClient, err := amqp.NewClient(amqp.Config{
		URL:              cfg.AMQPURL,
		Exchange:         cfg.AMQPExchange,
		Queue:            cfg.AMQPQueue,
		EventsRoutingKey: cfg.AMQPEventsRoutingKey,
	}, logger.WithComponent(log.ComponentAMQP))
	if err != nil {
		logger.Error("Failed to initialize AMQP client", log.FieldError, err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	svc := backend.NewServices(repo, result, cfg, logger)
	svc.Janitor.Start(backend.CacheSweepInterval)
	svc.Sync.WithNotifier(amqpClient)

	syncWorker := worker.NewSyncWorker(svc.Sync, logger)
	scheduler := services.NewSyncScheduler(repo, svc.Sync, services.SchedulerConfig{
		Interval:    cfg.SchedulerInterval,
		Parallelism: cfg.SchedulerParallelism,
	}, logger.WithComponent(log.ComponentScheduler))

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := scheduler.Stop(shutdownCtx); err != nil {
			logger.Warn("Scheduler stop error", log.FieldError, err)
		}
		svc.Janitor.Stop()
	})

	if err := scheduler.Start(ctx); err != nil {
		logger.Error("Failed to start scheduler", log.FieldError, err)
		os.Exit(1)
	}

	go func() {
		err := amqpClient.ConsumeSyncRequests(ctx, syncWorker.HandleSyncRequest)
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Message consumption failed", log.FieldError, err)
			os.Exit(1)
		}
	}()

	logger.Info("Sync worker running",
		"queue", cfg.AMQPQueue,
		"scheduler_interval", cfg.SchedulerInterval.String(),
		"parallelism", cfg.SchedulerParallelism,
		"provider_mode", cfg.ProviderMode)

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped")
}
