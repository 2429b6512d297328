package database

import (
	"context"
	"fmt"

	"github.com/bimakw/equity-ledger/internal/domain/entities"
	"github.com/bimakw/equity-ledger/internal/domain/repositories"
)

// Ensure TransferRepo implements TransferRepository
var _ repositories.TransferRepository = (*TransferRepo)(nil)

// TransferRepo reads the immutable transfer log
type TransferRepo struct {
	db *DB
}

// NewTransferRepo creates a new transfer repository
func NewTransferRepo(db *DB) *TransferRepo {
	return &TransferRepo{db: db}
}

type transferRow struct {
	entities.TransferEvent
	RawAmount string `db:"amount"`
}

const transferColumns = `contract_id, from_address, to_address, amount, block_number, block_timestamp, tx_hash, log_index`

// ListUpToBlock returns every transfer at or below block in chain order
func (r *TransferRepo) ListUpToBlock(ctx context.Context, contractID int64, block int64) ([]entities.TransferEvent, error) {
	query := r.db.db.Rebind(`
		SELECT ` + transferColumns + `
		FROM transfer_events
		WHERE contract_id = ? AND block_number <= ?
		ORDER BY block_number, log_index
	`)

	var rows []transferRow
	if err := r.db.db.SelectContext(ctx, &rows, query, contractID, block); err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}
	return toTransfers(rows)
}

// ListRecent returns the newest transfers of a contract
func (r *TransferRepo) ListRecent(ctx context.Context, contractID int64, limit int) ([]entities.TransferEvent, error) {
	query := r.db.db.Rebind(`
		SELECT ` + transferColumns + `
		FROM transfer_events
		WHERE contract_id = ?
		ORDER BY block_timestamp DESC, block_number DESC, log_index DESC
		LIMIT ?
	`)

	var rows []transferRow
	if err := r.db.db.SelectContext(ctx, &rows, query, contractID, limit); err != nil {
		return nil, fmt.Errorf("failed to list recent transfers: %w", err)
	}
	return toTransfers(rows)
}

func toTransfers(rows []transferRow) ([]entities.TransferEvent, error) {
	transfers := make([]entities.TransferEvent, len(rows))
	for i, row := range rows {
		amount, err := parseAmount(row.RawAmount)
		if err != nil {
			return nil, err
		}
		transfers[i] = row.TransferEvent
		transfers[i].Amount = amount
	}
	return transfers, nil
}
