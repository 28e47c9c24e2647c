package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"facturas/internal/amqp"
	"facturas/internal/cli"
	"facturas/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	logger.Info("Starting facturas-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if cfg.AMQPURL == "" {
		logger.Error("Worker requires AMQP_URL to consume the change feed")
		os.Exit(1)
	}

	store := cli.InitStore(logger, cfg.DBPath)
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The worker often starts before the broker; keep dialing until one of
	// them gives up.
	amqpClient, err := amqp.DialWithRetry(ctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	exportWorker := worker.NewExportWorker(store, amqpClient, cfg.ExportPath, cfg.SnapshotInterval)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return exportWorker.Run(ctx)
	})

	logger.Info("Worker running",
		"export_path", cfg.ExportPath,
		"snapshot_interval", cfg.SnapshotInterval,
		"queue", cfg.AMQPQueue)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
