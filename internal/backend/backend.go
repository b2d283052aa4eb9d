package backend

import (
	"context"
	"fmt"
	"log/slog"

	"expense-tracker/internal/config"
	"expense-tracker/internal/storage"
	"expense-tracker/internal/storage/jsonfile"
	"expense-tracker/internal/storage/mongodb"
	"expense-tracker/internal/storage/postgres"
	"expense-tracker/internal/storage/sqlite"
)

// BackendType names a persistence backend.
type BackendType string

const (
	JSONBackend     BackendType = config.BackendJSON
	MongoBackend    BackendType = config.BackendMongo
	PostgresBackend BackendType = config.BackendPostgres
	SQLiteBackend   BackendType = config.BackendSQLite
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case JSONBackend, MongoBackend, PostgresBackend, SQLiteBackend:
		return true
	default:
		return false
	}
}

// Config holds what backend creation needs.
type Config struct {
	Type BackendType

	// json
	DataDirectory string
	// sqlite
	SQLiteDBPath string
	// postgres
	PostgresDSN string
	// mongodb
	MongoURI      string
	MongoDatabase string
}

func ConfigFromAppConfig(cfg config.Config) Config {
	return Config{
		Type:          BackendType(cfg.DataBackend),
		DataDirectory: cfg.DataDir,
		SQLiteDBPath:  cfg.SQLiteDBPath,
		PostgresDSN:   cfg.DBConn,
		MongoURI:      cfg.MongoURI,
		MongoDatabase: cfg.MongoDatabase,
	}
}

// CleanupFunc releases backend resources.
type CleanupFunc func() error

type BackendResult struct {
	Store   storage.Store
	Cleanup CleanupFunc
}

type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

func (f *DefaultFactory) CreateBackend(ctx context.Context, cfg Config) (*BackendResult, error) {
	if !cfg.Type.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", cfg.Type)
	}

	var (
		store storage.Store
		err   error
	)
	switch cfg.Type {
	case JSONBackend:
		dir := cfg.DataDirectory
		if dir == "" {
			dir = "data"
		}
		store, err = jsonfile.New(dir)
		if err == nil {
			f.logger.Info("Initialized JSON backend", "data_directory", dir)
		}
	case SQLiteBackend:
		store, err = sqlite.Open(ctx, cfg.SQLiteDBPath)
		if err == nil {
			f.logger.Info("Initialized SQLite backend", "db_path", cfg.SQLiteDBPath)
		}
	case PostgresBackend:
		store, err = postgres.Open(ctx, cfg.PostgresDSN)
		if err == nil {
			f.logger.Info("Initialized PostgreSQL backend")
		}
	case MongoBackend:
		store, err = mongodb.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err == nil {
			f.logger.Info("Initialized MongoDB backend", "database", cfg.MongoDatabase)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s backend: %w", cfg.Type, err)
	}

	return &BackendResult{Store: store, Cleanup: store.Close}, nil
}
