package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/bimakw/equity-ledger/internal/domain/entities"
	"github.com/bimakw/equity-ledger/internal/domain/repositories"
)

// Ensure LedgerStore implements the ledger write interfaces
var (
	_ repositories.LedgerStore = (*LedgerStore)(nil)
	_ repositories.LedgerTx    = (*ledgerTx)(nil)
)

// LedgerStore runs ledger mutations in a single database transaction
type LedgerStore struct {
	db *DB
}

// NewLedgerStore creates a new ledger store
func NewLedgerStore(db *DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// WithTx runs fn inside a transaction, committing when fn returns nil.
// On SQLite the DSN opens transactions with BEGIN IMMEDIATE so the write
// lock is held from the first statement.
func (s *LedgerStore) WithTx(ctx context.Context, fn func(tx repositories.LedgerTx) error) error {
	tx, err := s.db.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(&ledgerTx{tx: tx, dialect: s.db.dialect}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type ledgerTx struct {
	tx      *sqlx.Tx
	dialect Dialect
}

func (t *ledgerTx) GetContract(ctx context.Context, id int64) (*entities.Contract, error) {
	var contract entities.Contract
	query := t.tx.Rebind(`SELECT * FROM contracts WHERE id = ?`)

	if err := t.tx.GetContext(ctx, &contract, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	return &contract, nil
}

func (t *ledgerTx) UpdateContractMetadata(ctx context.Context, id int64, name, symbol string) error {
	query := t.tx.Rebind(`UPDATE contracts SET name = ?, symbol = ?, updated_at = ? WHERE id = ?`)

	if _, err := t.tx.ExecContext(ctx, query, name, symbol, time.Now().UTC(), id); err != nil {
		return fmt.Errorf("failed to update contract metadata: %w", err)
	}
	return nil
}

func (t *ledgerTx) InsertTransfer(ctx context.Context, e *entities.TransferEvent) (bool, error) {
	query := t.tx.Rebind(`
		INSERT INTO transfer_events (contract_id, from_address, to_address, amount,
			block_number, block_timestamp, tx_hash, log_index)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (contract_id, tx_hash, log_index) DO NOTHING
	`)

	res, err := t.tx.ExecContext(ctx, query,
		e.ContractID,
		entities.NormalizeAddress(e.From),
		entities.NormalizeAddress(e.To),
		e.Amount.String(),
		e.BlockNumber,
		e.BlockTimestamp.UTC(),
		e.TxHash,
		e.LogIndex,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert transfer: %w", err)
	}
	return inserted(res)
}

func (t *ledgerTx) LockBalance(ctx context.Context, contractID int64, address string) (*big.Int, error) {
	// Materialize the row first so there is something to lock
	ensure := t.tx.Rebind(`
		INSERT INTO balances (contract_id, address, balance, last_updated_block, last_updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (contract_id, address) DO NOTHING
	`)
	if _, err := t.tx.ExecContext(ctx, ensure, contractID, address, "0", 0, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to ensure balance row: %w", err)
	}

	var raw string
	query := t.tx.Rebind(`SELECT balance FROM balances WHERE contract_id = ? AND address = ?` + t.dialect.forUpdate())
	if err := t.tx.GetContext(ctx, &raw, query, contractID, address); err != nil {
		return nil, fmt.Errorf("failed to lock balance: %w", err)
	}

	return parseAmount(raw)
}

func (t *ledgerTx) SetBalance(ctx context.Context, contractID int64, address string, balance *big.Int, block int64, at time.Time) error {
	query := t.tx.Rebind(`
		INSERT INTO balances (contract_id, address, balance, last_updated_block, last_updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (contract_id, address) DO UPDATE SET
			balance = excluded.balance,
			last_updated_block = excluded.last_updated_block,
			last_updated_at = excluded.last_updated_at
	`)

	if _, err := t.tx.ExecContext(ctx, query, contractID, address, balance.String(), block, at.UTC()); err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}
	return nil
}

func (t *ledgerTx) GetAllowlistEntry(ctx context.Context, contractID int64, address string) (*entities.AllowlistEntry, error) {
	var entry entities.AllowlistEntry
	query := t.tx.Rebind(`SELECT * FROM allowlist_entries WHERE contract_id = ? AND address = ?` + t.dialect.forUpdate())

	if err := t.tx.GetContext(ctx, &entry, query, contractID, address); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get allowlist entry: %w", err)
	}
	return &entry, nil
}

func (t *ledgerTx) UpsertAllowlistEntry(ctx context.Context, e *entities.AllowlistEntry) error {
	query := t.tx.Rebind(`
		INSERT INTO allowlist_entries (contract_id, address, is_allowlisted, added_at_block, added_at,
			removed_at_block, removed_at, tx_hash, removed_tx_hash, last_event_block, last_event_log_index)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (contract_id, address) DO UPDATE SET
			is_allowlisted = excluded.is_allowlisted,
			added_at_block = excluded.added_at_block,
			added_at = excluded.added_at,
			removed_at_block = excluded.removed_at_block,
			removed_at = excluded.removed_at,
			tx_hash = excluded.tx_hash,
			removed_tx_hash = excluded.removed_tx_hash,
			last_event_block = excluded.last_event_block,
			last_event_log_index = excluded.last_event_log_index
	`)

	var removedAt *time.Time
	if e.RemovedAt != nil {
		utc := e.RemovedAt.UTC()
		removedAt = &utc
	}

	_, err := t.tx.ExecContext(ctx, query,
		e.ContractID,
		e.Address,
		e.IsAllowlisted,
		e.AddedAtBlock,
		e.AddedAt.UTC(),
		e.RemovedAtBlock,
		removedAt,
		e.TxHash,
		e.RemovedTxHash,
		e.LastEventBlock,
		e.LastEventLogIndex,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert allowlist entry: %w", err)
	}
	return nil
}

func (t *ledgerTx) InsertStockSplit(ctx context.Context, e *entities.StockSplitEvent) (bool, error) {
	query := t.tx.Rebind(`
		INSERT INTO stock_split_events (contract_id, multiplier, new_total_supply,
			block_number, block_timestamp, tx_hash, log_index)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (contract_id, tx_hash, log_index) DO NOTHING
	`)

	res, err := t.tx.ExecContext(ctx, query,
		e.ContractID,
		e.Multiplier.String(),
		e.NewTotalSupply.String(),
		e.BlockNumber,
		e.BlockTimestamp.UTC(),
		e.TxHash,
		e.LogIndex,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert stock split: %w", err)
	}
	return inserted(res)
}

func (t *ledgerTx) InsertMetadataChange(ctx context.Context, e *entities.MetadataChangeEvent) (bool, error) {
	query := t.tx.Rebind(`
		INSERT INTO metadata_change_events (contract_id, old_name, new_name, old_symbol, new_symbol,
			block_number, block_timestamp, tx_hash, log_index)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (contract_id, tx_hash, log_index) DO NOTHING
	`)

	res, err := t.tx.ExecContext(ctx, query,
		e.ContractID,
		e.OldName,
		e.NewName,
		e.OldSymbol,
		e.NewSymbol,
		e.BlockNumber,
		e.BlockTimestamp.UTC(),
		e.TxHash,
		e.LogIndex,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert metadata change: %w", err)
	}
	return inserted(res)
}

func (t *ledgerTx) InsertBuyback(ctx context.Context, e *entities.BuybackEvent) (bool, error) {
	query := t.tx.Rebind(`
		INSERT INTO buyback_events (contract_id, holder, amount,
			block_number, block_timestamp, tx_hash, log_index)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (contract_id, tx_hash, log_index) DO NOTHING
	`)

	res, err := t.tx.ExecContext(ctx, query,
		e.ContractID,
		entities.NormalizeAddress(e.Holder),
		e.Amount.String(),
		e.BlockNumber,
		e.BlockTimestamp.UTC(),
		e.TxHash,
		e.LogIndex,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert buyback: %w", err)
	}
	return inserted(res)
}

func (t *ledgerTx) AdvanceCursor(ctx context.Context, contractID int64, block int64) error {
	return advanceCursor(ctx, t.tx, t.dialect, contractID, block)
}

// advanceCursor moves the cursor to max(cursor, block), creating it if needed
func advanceCursor(ctx context.Context, ext sqlx.ExtContext, dialect Dialect, contractID, block int64) error {
	query := ext.Rebind(fmt.Sprintf(`
		INSERT INTO indexer_cursors (contract_id, last_processed_block, is_syncing, last_updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (contract_id) DO UPDATE SET
			last_processed_block = %s(indexer_cursors.last_processed_block, excluded.last_processed_block),
			last_updated_at = excluded.last_updated_at
	`, dialect.greatest()))

	if _, err := ext.ExecContext(ctx, query, contractID, block, false, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to advance cursor: %w", err)
	}
	return nil
}

func inserted(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}

// parseAmount reads a NUMERIC or decimal TEXT column into a big.Int
func parseAmount(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("invalid stored amount %q", raw)
	}
	return v, nil
}
