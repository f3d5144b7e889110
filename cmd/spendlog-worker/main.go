package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"spendlog/internal/amqp"
	"spendlog/internal/backend"
	"spendlog/internal/cli"
	"spendlog/internal/log"
	"spendlog/internal/worker"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentWorker)
	logger.Info("Starting spendlog-worker", log.FieldOperation, log.OpStartup)

	be := cli.OpenStore(context.Background(), cfg, logger)
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Failed to close store", log.FieldError, err.Error())
		}
	}()

	ledger, err := backend.NewLedger(context.Background(), cfg, be.Store, logger)
	if err != nil {
		logger.Error("Ledger export not available", log.FieldError, err.Error())
		os.Exit(1)
	}
	exporter := worker.NewExportWorker(be.Store, ledger, cfg.ExportBatchSize, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, nil)
	g, gctx := errgroup.WithContext(ctx)

	// The sweep catches anything the event stream missed, including rows
	// written while the worker was down.
	g.Go(func() error {
		return exporter.Run(gctx, cfg.ExportInterval)
	})

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
			os.Exit(1)
		}
		defer client.Close()

		g.Go(func() error {
			err := client.Consume(gctx, exporter.HandleRecorded)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	} else {
		logger.Info("AMQP disabled, relying on the periodic sweep",
			"interval", cfg.ExportInterval.String())
	}

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err.Error())
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
