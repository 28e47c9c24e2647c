package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"facturas/internal/amqp"
	"facturas/internal/cli"
	apphttp "facturas/internal/http"
	"facturas/internal/importer"
	"facturas/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	cfg := cli.LoadAndValidateConfig(logger)
	store := cli.InitStore(logger, cfg.DBPath)

	// One-time migration from the legacy JSON file. A populated store or a
	// missing file makes this a no-op.
	imported, err := importer.RunStartupImport(context.Background(), store, cfg.LegacyImportPath)
	if err != nil {
		logger.Error("Legacy import failed", "error", err, "path", cfg.LegacyImportPath)
		store.Close()
		os.Exit(1)
	}
	if imported > 0 {
		logger.Info("Legacy records imported", "count", imported, "path", cfg.LegacyImportPath)
	}

	// AMQP is optional: without a broker, writes still land and the export
	// worker catches up on its periodic snapshot.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, change feed disabled", "error", err)
			amqpClient = nil
		}
	}

	svc := services.NewRecordService(store, amqpClient)
	srv := apphttp.NewServer(":"+cfg.Port, store, svc)

	// Configure server timeouts and limits
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	// Graceful shutdown handling
	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := svc.Close(); err != nil {
			logger.Error("Service close error", "error", err)
		}
	})

	logger.Info("Starting facturas server", "port", cfg.Port, "db", cfg.DBPath)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
