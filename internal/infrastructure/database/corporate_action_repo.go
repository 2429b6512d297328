package database

import (
	"context"
	"fmt"

	"github.com/bimakw/equity-ledger/internal/domain/entities"
	"github.com/bimakw/equity-ledger/internal/domain/repositories"
)

// Ensure CorporateActionRepo implements CorporateActionRepository
var _ repositories.CorporateActionRepository = (*CorporateActionRepo)(nil)

// CorporateActionRepo reads stock splits, metadata changes and buybacks
type CorporateActionRepo struct {
	db *DB
}

// NewCorporateActionRepo creates a new corporate action repository
func NewCorporateActionRepo(db *DB) *CorporateActionRepo {
	return &CorporateActionRepo{db: db}
}

const recentOrder = `ORDER BY block_timestamp DESC, block_number DESC, log_index DESC LIMIT ?`

type stockSplitRow struct {
	entities.StockSplitEvent
	RawMultiplier     string `db:"multiplier"`
	RawNewTotalSupply string `db:"new_total_supply"`
}

// ListRecentStockSplits returns the newest splits of a contract
func (r *CorporateActionRepo) ListRecentStockSplits(ctx context.Context, contractID int64, limit int) ([]entities.StockSplitEvent, error) {
	query := r.db.db.Rebind(`
		SELECT contract_id, multiplier, new_total_supply, block_number, block_timestamp, tx_hash, log_index
		FROM stock_split_events
		WHERE contract_id = ?
		` + recentOrder)

	var rows []stockSplitRow
	if err := r.db.db.SelectContext(ctx, &rows, query, contractID, limit); err != nil {
		return nil, fmt.Errorf("failed to list stock splits: %w", err)
	}

	splits := make([]entities.StockSplitEvent, len(rows))
	for i, row := range rows {
		multiplier, err := parseAmount(row.RawMultiplier)
		if err != nil {
			return nil, err
		}
		supply, err := parseAmount(row.RawNewTotalSupply)
		if err != nil {
			return nil, err
		}
		splits[i] = row.StockSplitEvent
		splits[i].Multiplier = multiplier
		splits[i].NewTotalSupply = supply
	}
	return splits, nil
}

// ListRecentMetadataChanges returns the newest name/symbol changes of a contract
func (r *CorporateActionRepo) ListRecentMetadataChanges(ctx context.Context, contractID int64, limit int) ([]entities.MetadataChangeEvent, error) {
	query := r.db.db.Rebind(`
		SELECT contract_id, old_name, new_name, old_symbol, new_symbol,
			block_number, block_timestamp, tx_hash, log_index
		FROM metadata_change_events
		WHERE contract_id = ?
		` + recentOrder)

	var changes []entities.MetadataChangeEvent
	if err := r.db.db.SelectContext(ctx, &changes, query, contractID, limit); err != nil {
		return nil, fmt.Errorf("failed to list metadata changes: %w", err)
	}
	return changes, nil
}

type buybackRow struct {
	entities.BuybackEvent
	RawAmount string `db:"amount"`
}

// ListRecentBuybacks returns the newest buybacks of a contract
func (r *CorporateActionRepo) ListRecentBuybacks(ctx context.Context, contractID int64, limit int) ([]entities.BuybackEvent, error) {
	query := r.db.db.Rebind(`
		SELECT contract_id, holder, amount, block_number, block_timestamp, tx_hash, log_index
		FROM buyback_events
		WHERE contract_id = ?
		` + recentOrder)

	var rows []buybackRow
	if err := r.db.db.SelectContext(ctx, &rows, query, contractID, limit); err != nil {
		return nil, fmt.Errorf("failed to list buybacks: %w", err)
	}

	buybacks := make([]entities.BuybackEvent, len(rows))
	for i, row := range rows {
		amount, err := parseAmount(row.RawAmount)
		if err != nil {
			return nil, err
		}
		buybacks[i] = row.BuybackEvent
		buybacks[i].Amount = amount
	}
	return buybacks, nil
}
