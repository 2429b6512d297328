package database

import (
	"context"
	"fmt"

	"github.com/bimakw/equity-ledger/internal/domain/entities"
	"github.com/bimakw/equity-ledger/internal/domain/repositories"
)

// Ensure AllowlistRepo implements AllowlistRepository
var _ repositories.AllowlistRepository = (*AllowlistRepo)(nil)

// AllowlistRepo reads allowlist rows
type AllowlistRepo struct {
	db *DB
}

// NewAllowlistRepo creates a new allowlist repository
func NewAllowlistRepo(db *DB) *AllowlistRepo {
	return &AllowlistRepo{db: db}
}

// List returns every allowlist row of a contract
func (r *AllowlistRepo) List(ctx context.Context, contractID int64) ([]entities.AllowlistEntry, error) {
	var entries []entities.AllowlistEntry
	query := r.db.db.Rebind(`SELECT * FROM allowlist_entries WHERE contract_id = ? ORDER BY address`)

	if err := r.db.db.SelectContext(ctx, &entries, query, contractID); err != nil {
		return nil, fmt.Errorf("failed to list allowlist entries: %w", err)
	}
	return entries, nil
}

// ListRecentAdds returns rows by most recent add. Rows created by a bare
// removal are excluded since their address was never added.
func (r *AllowlistRepo) ListRecentAdds(ctx context.Context, contractID int64, limit int) ([]entities.AllowlistEntry, error) {
	var entries []entities.AllowlistEntry
	query := r.db.db.Rebind(`
		SELECT * FROM allowlist_entries
		WHERE contract_id = ? AND (removed_at_block IS NULL OR added_at_block < removed_at_block)
		ORDER BY added_at DESC, added_at_block DESC
		LIMIT ?
	`)

	if err := r.db.db.SelectContext(ctx, &entries, query, contractID, limit); err != nil {
		return nil, fmt.Errorf("failed to list recent allowlist adds: %w", err)
	}
	return entries, nil
}

// ListRecentRemovals returns removed rows by most recent removal
func (r *AllowlistRepo) ListRecentRemovals(ctx context.Context, contractID int64, limit int) ([]entities.AllowlistEntry, error) {
	var entries []entities.AllowlistEntry
	query := r.db.db.Rebind(`
		SELECT * FROM allowlist_entries
		WHERE contract_id = ? AND removed_at IS NOT NULL
		ORDER BY removed_at DESC, removed_at_block DESC
		LIMIT ?
	`)

	if err := r.db.db.SelectContext(ctx, &entries, query, contractID, limit); err != nil {
		return nil, fmt.Errorf("failed to list recent allowlist removals: %w", err)
	}
	return entries, nil
}
