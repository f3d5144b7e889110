package backend

import (
	"context"
	"errors"
	"fmt"

	"spendlog/internal/config"
	"spendlog/internal/log"
	"spendlog/internal/ports"
	gsheet "spendlog/internal/sheets/google"
	"spendlog/internal/storage"
	"spendlog/internal/storage/memory"
)

// ErrExportNotConfigured is returned when no ledger sink can be built.
var ErrExportNotConfigured = errors.New("ledger export not configured: set GOOGLE_SPREADSHEET_ID or use the memory backend")

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *log.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *log.Logger) Factory {
	if logger == nil {
		logger = log.Discard()
	}
	return &DefaultFactory{
		logger: logger.WithComponent(log.ComponentBackend),
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Store:   repo,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	var (
		store *memory.Store
		err   error
	)
	if config.MemorySeedFile != "" {
		store, err = memory.NewFromFile(config.MemorySeedFile)
		if err != nil {
			return nil, fmt.Errorf("failed to seed memory backend: %w", err)
		}
	} else {
		store = memory.New()
	}

	f.logger.Info("Initialized memory backend", "seed_file", config.MemorySeedFile)

	return &BackendResult{
		Store:   store,
		Cleanup: store.Close,
	}, nil
}

// NewLedger picks the export sink: the configured Google Sheet, or the
// memory store itself when running the memory backend without a sheet.
func NewLedger(ctx context.Context, appConfig *config.Config, store ports.Store, logger *log.Logger) (ports.LedgerAppender, error) {
	if appConfig.ExportEnabled() {
		cli, err := gsheet.New(ctx, gsheet.Options{
			SpreadsheetID:      appConfig.GoogleSpreadsheetID,
			SheetName:          appConfig.GoogleSheetName,
			ServiceAccountJSON: appConfig.GoogleServiceAccountJSON,
			ServiceAccountFile: appConfig.GoogleServiceAccountFile,
			OAuthClientJSON:    appConfig.GoogleOAuthClientJSON,
			OAuthClientFile:    appConfig.GoogleOAuthClientFile,
			OAuthTokenJSON:     appConfig.GoogleOAuthTokenJSON,
			OAuthTokenFile:     appConfig.GoogleOAuthTokenFile,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
		}
		return cli, nil
	}
	if ledger, ok := store.(ports.LedgerAppender); ok {
		return ledger, nil
	}
	return nil, ErrExportNotConfigured
}
