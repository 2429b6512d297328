package main

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/bimakw/equity-ledger/internal/config"
	"github.com/bimakw/equity-ledger/internal/infrastructure/database"
	"github.com/bimakw/equity-ledger/internal/infrastructure/logging"
)

// env is the configuration and store shared by every subcommand
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *database.DB
}

func openEnv() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.Log.Level = logLevel
	cfg.Log.Format = "console"

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	var db *database.DB
	if useMirror {
		db, err = database.NewSQLiteDB(cfg.Mirror, logger)
	} else {
		db, err = database.NewPostgresDB(cfg.Database, logger)
	}
	if err != nil {
		return nil, err
	}

	return &env{cfg: cfg, logger: logger, db: db}, nil
}

func (e *env) Close() {
	_ = e.db.Close()
	_ = e.logger.Sync()
}
