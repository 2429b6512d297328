package repositories

import (
	"context"

	"github.com/bimakw/equity-ledger/internal/domain/entities"
)

// CursorRepository defines the interface for per-contract indexer cursors
type CursorRepository interface {
	// Get retrieves the cursor for a contract, nil when it does not exist
	Get(ctx context.Context, contractID int64) (*entities.IndexerCursor, error)

	// Ensure creates the cursor if missing, positioned at lastProcessedBlock
	Ensure(ctx context.Context, contractID int64, lastProcessedBlock int64) error

	// Begin marks a backfill pass over [from, to] as in progress. An earlier
	// unfinished pass keeps its from block.
	Begin(ctx context.Context, contractID int64, from, to int64) error

	// SetSyncing sets the backfill bracket flag
	SetSyncing(ctx context.Context, contractID int64, syncing bool) error

	// Complete moves the cursor to max(cursor, block) and clears the pending pass
	Complete(ctx context.Context, contractID int64, block int64) error

	// ResetSyncing clears every leftover is_syncing flag and returns how many were set
	ResetSyncing(ctx context.Context) (int64, error)
}
