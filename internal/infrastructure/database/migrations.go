package database

import (
	"embed"
	"fmt"

	migrate "github.com/rubenv/sql-migrate"
	"go.uber.org/zap"
)

//go:embed migrations
var migrationFiles embed.FS

// migrationSource returns the embedded migrations for a dialect. Both dialects
// carry the same tables; only column types differ.
func migrationSource(dialect Dialect) migrate.MigrationSource {
	root := "migrations/postgres"
	if dialect == DialectSQLite {
		root = "migrations/sqlite"
	}
	return &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationFiles,
		Root:       root,
	}
}

// Migrate applies all pending migrations and returns how many ran
func (p *DB) Migrate() (int, error) {
	n, err := migrate.Exec(p.db.DB, string(p.dialect), migrationSource(p.dialect), migrate.Up)
	if err != nil {
		return 0, fmt.Errorf("failed to run %s migrations: %w", p.dialect, err)
	}

	p.logger.Info("Applied migrations",
		zap.String("dialect", string(p.dialect)),
		zap.Int("count", n),
	)
	return n, nil
}

// Rollback reverts at most max migrations; zero reverts all of them
func (p *DB) Rollback(max int) (int, error) {
	n, err := migrate.ExecMax(p.db.DB, string(p.dialect), migrationSource(p.dialect), migrate.Down, max)
	if err != nil {
		return 0, fmt.Errorf("failed to roll back %s migrations: %w", p.dialect, err)
	}

	p.logger.Info("Rolled back migrations",
		zap.String("dialect", string(p.dialect)),
		zap.Int("count", n),
	)
	return n, nil
}
