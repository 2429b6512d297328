package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bimakw/equity-ledger/internal/domain/entities"
	"github.com/bimakw/equity-ledger/internal/domain/repositories"
)

// Ensure CursorRepo implements CursorRepository
var _ repositories.CursorRepository = (*CursorRepo)(nil)

// CursorRepo implements CursorRepository on either store
type CursorRepo struct {
	db *DB
}

// NewCursorRepo creates a new cursor repository
func NewCursorRepo(db *DB) *CursorRepo {
	return &CursorRepo{db: db}
}

// Get retrieves the cursor for a contract
func (r *CursorRepo) Get(ctx context.Context, contractID int64) (*entities.IndexerCursor, error) {
	var cursor entities.IndexerCursor
	query := r.db.db.Rebind(`SELECT * FROM indexer_cursors WHERE contract_id = ?`)

	if err := r.db.db.GetContext(ctx, &cursor, query, contractID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}

	return &cursor, nil
}

// Ensure creates the cursor at lastProcessedBlock unless one already exists
func (r *CursorRepo) Ensure(ctx context.Context, contractID int64, lastProcessedBlock int64) error {
	query := r.db.db.Rebind(`
		INSERT INTO indexer_cursors (contract_id, last_processed_block, is_syncing, last_updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (contract_id) DO NOTHING
	`)

	if _, err := r.db.db.ExecContext(ctx, query, contractID, lastProcessedBlock, false, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to ensure cursor: %w", err)
	}

	return nil
}

// SetSyncing sets or clears the backfill flag
func (r *CursorRepo) SetSyncing(ctx context.Context, contractID int64, syncing bool) error {
	query := r.db.db.Rebind(`
		UPDATE indexer_cursors SET is_syncing = ?, last_updated_at = ? WHERE contract_id = ?
	`)

	if _, err := r.db.db.ExecContext(ctx, query, syncing, time.Now().UTC(), contractID); err != nil {
		return fmt.Errorf("failed to set cursor syncing flag: %w", err)
	}

	return nil
}

// Begin flags a backfill pass over [from, to]
func (r *CursorRepo) Begin(ctx context.Context, contractID int64, from, to int64) error {
	query := r.db.db.Rebind(`
		UPDATE indexer_cursors SET
			is_syncing = ?,
			backfill_from_block = COALESCE(backfill_from_block, ?),
			backfill_to_block = ?,
			last_updated_at = ?
		WHERE contract_id = ?
	`)

	if _, err := r.db.db.ExecContext(ctx, query, true, from, to, time.Now().UTC(), contractID); err != nil {
		return fmt.Errorf("failed to begin backfill: %w", err)
	}

	return nil
}

// Complete moves the cursor forward to block and clears the pending pass.
// The cursor never moves backwards.
func (r *CursorRepo) Complete(ctx context.Context, contractID int64, block int64) error {
	query := r.db.db.Rebind(fmt.Sprintf(`
		UPDATE indexer_cursors SET
			last_processed_block = %s(last_processed_block, ?),
			backfill_from_block = NULL,
			backfill_to_block = NULL,
			last_updated_at = ?
		WHERE contract_id = ?
	`, r.db.dialect.greatest()))

	if _, err := r.db.db.ExecContext(ctx, query, block, time.Now().UTC(), contractID); err != nil {
		return fmt.Errorf("failed to complete backfill: %w", err)
	}

	return nil
}

// ResetSyncing clears is_syncing on every cursor left set by a previous process
func (r *CursorRepo) ResetSyncing(ctx context.Context) (int64, error) {
	query := r.db.db.Rebind(`
		UPDATE indexer_cursors SET is_syncing = ?, last_updated_at = ? WHERE is_syncing = ?
	`)

	res, err := r.db.db.ExecContext(ctx, query, false, time.Now().UTC(), true)
	if err != nil {
		return 0, fmt.Errorf("failed to reset syncing flags: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to reset syncing flags: %w", err)
	}
	return n, nil
}
