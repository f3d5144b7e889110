package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"spendlog/internal/amqp"
	"spendlog/internal/cache"
	"spendlog/internal/cli"
	apphttp "spendlog/internal/http"
	"spendlog/internal/log"
	"spendlog/internal/services"
)

func main() {
	cfg, logger := cli.Bootstrap(log.ComponentApp)
	logger.Info("Starting spendlog server", log.FieldOperation, log.OpStartup)

	be := cli.OpenStore(context.Background(), cfg, logger)
	defer func() {
		if err := be.Cleanup(); err != nil {
			logger.Error("Failed to close store", log.FieldError, err.Error())
		}
	}()

	// Expense events are optional; without AMQP the worker's sweep still
	// exports everything.
	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.Warn("AMQP unavailable, expense events disabled", log.FieldError, err.Error())
		} else {
			defer client.Close()
			publisher = client
		}
	}

	cacheManager := cache.NewManager(logger)
	cacheManager.StartCleanup(5 * time.Minute)
	defer cacheManager.Stop()

	opts := []services.AnalyticsOption{
		services.WithResultCache(services.CacheConfig{
			Size: cfg.AnalyticsCacheSize,
			TTL:  cfg.AnalyticsCacheTTL,
		}, cacheManager),
	}
	if narrator := cli.NewNarrator(cfg, logger); narrator != nil {
		opts = append(opts, services.WithNarrator(narrator))
	}
	analytics := services.NewAnalyticsService(be.Store, logger, opts...)

	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Users:     services.NewUserService(be.Store, analytics, logger),
		Expenses:  services.NewExpenseService(be.Store, publisher, analytics, logger),
		Analytics: analytics,
		Store:     be.Store,
		Logger:    logger,
	}, apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
	})
	if err != nil {
		logger.Error("Failed to configure HTTP server", log.FieldError, err.Error())
		os.Exit(1)
	}
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
	})

	logger.Info("Listening",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"amqp", publisher != nil,
		"insight", analytics.NarrationEnabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
