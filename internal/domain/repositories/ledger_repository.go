package repositories

import (
	"context"
	"math/big"
	"time"

	"github.com/bimakw/equity-ledger/internal/domain/entities"
)

// LedgerStore runs ledger mutations atomically. Everything done through the
// LedgerTx passed to fn commits together or not at all.
type LedgerStore interface {
	WithTx(ctx context.Context, fn func(tx LedgerTx) error) error
}

// LedgerTx is the set of writes available inside a ledger transaction
type LedgerTx interface {
	// GetContract retrieves a contract by id, nil when it does not exist
	GetContract(ctx context.Context, id int64) (*entities.Contract, error)

	// UpdateContractMetadata sets the contract's name and symbol
	UpdateContractMetadata(ctx context.Context, id int64, name, symbol string) error

	// InsertTransfer inserts a raw transfer, returning false when its
	// (contract, tx, logIndex) key already exists
	InsertTransfer(ctx context.Context, t *entities.TransferEvent) (bool, error)

	// LockBalance returns the current balance of address and holds it until
	// the transaction ends. A missing row reads as zero.
	LockBalance(ctx context.Context, contractID int64, address string) (*big.Int, error)

	// SetBalance writes the balance of address
	SetBalance(ctx context.Context, contractID int64, address string, balance *big.Int, block int64, at time.Time) error

	// GetAllowlistEntry retrieves the allowlist row for address, nil when absent
	GetAllowlistEntry(ctx context.Context, contractID int64, address string) (*entities.AllowlistEntry, error)

	// UpsertAllowlistEntry writes the allowlist row for (contract, address)
	UpsertAllowlistEntry(ctx context.Context, entry *entities.AllowlistEntry) error

	// InsertStockSplit inserts a split, returning false on a duplicate key
	InsertStockSplit(ctx context.Context, s *entities.StockSplitEvent) (bool, error)

	// InsertMetadataChange inserts a metadata change, returning false on a duplicate key
	InsertMetadataChange(ctx context.Context, m *entities.MetadataChangeEvent) (bool, error)

	// InsertBuyback inserts a buyback, returning false on a duplicate key
	InsertBuyback(ctx context.Context, b *entities.BuybackEvent) (bool, error)

	// AdvanceCursor moves the cursor to max(cursor, block)
	AdvanceCursor(ctx context.Context, contractID int64, block int64) error
}

// BalanceRepository reads the derived balance table
type BalanceRepository interface {
	// ListNonZero returns all holders with a positive balance
	ListNonZero(ctx context.Context, contractID int64) ([]entities.Balance, error)

	// ListByHolder returns the positive positions of address across all contracts
	ListByHolder(ctx context.Context, address string) ([]entities.HolderPosition, error)
}

// TransferRepository reads the immutable transfer log
type TransferRepository interface {
	// ListUpToBlock returns every transfer with block_number <= block in
	// (block_number, log_index) order
	ListUpToBlock(ctx context.Context, contractID int64, block int64) ([]entities.TransferEvent, error)

	// ListRecent returns the newest transfers by block timestamp
	ListRecent(ctx context.Context, contractID int64, limit int) ([]entities.TransferEvent, error)
}

// AllowlistRepository reads allowlist rows
type AllowlistRepository interface {
	// List returns every allowlist row of a contract
	List(ctx context.Context, contractID int64) ([]entities.AllowlistEntry, error)

	// ListRecentAdds returns rows ordered by added_at descending
	ListRecentAdds(ctx context.Context, contractID int64, limit int) ([]entities.AllowlistEntry, error)

	// ListRecentRemovals returns removed rows ordered by removed_at descending
	ListRecentRemovals(ctx context.Context, contractID int64, limit int) ([]entities.AllowlistEntry, error)
}

// CorporateActionRepository reads splits, metadata changes and buybacks
type CorporateActionRepository interface {
	ListRecentStockSplits(ctx context.Context, contractID int64, limit int) ([]entities.StockSplitEvent, error)
	ListRecentMetadataChanges(ctx context.Context, contractID int64, limit int) ([]entities.MetadataChangeEvent, error)
	ListRecentBuybacks(ctx context.Context, contractID int64, limit int) ([]entities.BuybackEvent, error)
}
