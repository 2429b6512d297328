package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/bimakw/equity-ledger/internal/config"
)

// Dialect names the SQL backend. The values double as sqlx driver names and
// sql-migrate dialect names.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

// forUpdate returns the row-lock suffix for SELECTs inside a transaction.
// SQLite has no row locks; its immediate transactions hold the write lock.
func (d Dialect) forUpdate() string {
	if d == DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// greatest returns the scalar max function name
func (d Dialect) greatest() string {
	if d == DialectPostgres {
		return "GREATEST"
	}
	return "MAX"
}

// DB wraps the sqlx database connection for one store
type DB struct {
	db      *sqlx.DB
	dialect Dialect
	logger  *zap.Logger
}

// NewPostgresDB creates a new PostgreSQL connection for the primary ledger store
func NewPostgresDB(cfg config.DatabaseConfig, logger *zap.Logger) (*DB, error) {
	db, err := sqlx.Connect(string(DialectPostgres), cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := ping(db); err != nil {
		return nil, err
	}

	logger.Info("Connected to PostgreSQL",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Name),
	)

	return &DB{db: db, dialect: DialectPostgres, logger: logger}, nil
}

// NewSQLiteDB opens the SQLite database used as the mirror store
func NewSQLiteDB(cfg config.MirrorConfig, logger *zap.Logger) (*DB, error) {
	db, err := sqlx.Connect(string(DialectSQLite), cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// A single writer connection avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)

	if err := ping(db); err != nil {
		return nil, err
	}

	logger.Info("Opened SQLite mirror store", zap.String("path", cfg.Path))

	return &DB{db: db, dialect: DialectSQLite, logger: logger}, nil
}

func ping(db *sqlx.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}

// Close closes the database connection
func (p *DB) Close() error {
	return p.db.Close()
}

// DB returns the underlying sqlx.DB
func (p *DB) DB() *sqlx.DB {
	return p.db
}

// Dialect returns the SQL dialect of this store
func (p *DB) Dialect() Dialect {
	return p.dialect
}

// HealthCheck performs a health check on the database
func (p *DB) HealthCheck(ctx context.Context) error {
	return p.db.PingContext(ctx)
}
