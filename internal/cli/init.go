// Package cli provides common CLI initialization utilities.
// This package consolidates repeated initialization patterns across
// cmd/spendlog, cmd/spendlog-worker and cmd/spendlog-admin.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"spendlog/internal/backend"
	"spendlog/internal/config"
	"spendlog/internal/insight"
	"spendlog/internal/log"
)

// SetupLogger builds the process logger from cfg's LOG_LEVEL and LOG_FORMAT
// and installs it as the slog default.
func SetupLogger(cfg *config.Config, component string) *log.Logger {
	lc := log.DefaultConfig()
	lc.Level = log.ParseLevel(cfg.LogLevel)
	if cfg.LogFormat != "" {
		lc.Format = cfg.LogFormat
	}
	if component != "" {
		lc.Component = component
	}
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// Bootstrap loads .env and the environment, sets up logging and validates
// the configuration. Invalid configuration exits the process.
func Bootstrap(component string) (*config.Config, *log.Logger) {
	LoadEnvFile()
	cfg := config.Load()
	logger := SetupLogger(cfg, component)
	LoadAndValidateConfig(logger, cfg)
	return cfg, logger
}

// LoadAndValidateConfig validates cfg or exits the process.
func LoadAndValidateConfig(logger *log.Logger, cfg *config.Config) {
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed",
			log.FieldError, err.Error(),
			log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}
}

// OpenStore initializes the configured data backend, exiting on failure.
func OpenStore(ctx context.Context, cfg *config.Config, logger *log.Logger) *backend.BackendResult {
	bc, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bc)
	if err != nil {
		logger.Error("Failed to initialize data backend",
			log.FieldError, err.Error(),
			"backend", bc.Type.String(),
			"path", bc.SQLiteDBPath)
		os.Exit(1)
	}
	return res
}

// NewNarrator returns nil when INSIGHT_ENABLED is off. With narration on
// but no usable generator every insight is the local fallback text.
func NewNarrator(cfg *config.Config, logger *log.Logger) *insight.Narrator {
	if !cfg.InsightEnabled {
		return nil
	}

	var gen insight.Generator
	client, err := insight.NewOpenAIClient(insight.OpenAIConfig{
		APIKey:  cfg.OpenAIAPIKey,
		Model:   cfg.InsightModel,
		BaseURL: cfg.InsightBaseURL,
	})
	if err != nil {
		logger.Warn("Insight generator unavailable, narration will use fallback text",
			log.FieldError, err.Error(),
			log.FieldComponent, log.ComponentInsight)
	} else {
		gen = client
	}
	return insight.NewNarrator(gen, cfg.InsightTimeout, logger)
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// The returned context is cancelled on SIGINT or SIGTERM; cleanup then runs
// with a context bounded by timeout, and done closes when it returns.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String(), log.FieldOperation, log.OpShutdown)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()
		if cleanup != nil {
			cleanup(shutdownCtx)
		}
		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
			return
		}
		logger.Info("Shutdown complete")
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled and cleanup has run.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
