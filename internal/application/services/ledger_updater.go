package services

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"go.uber.org/zap"

	"github.com/bimakw/equity-ledger/internal/domain/entities"
	"github.com/bimakw/equity-ledger/internal/domain/repositories"
)

// ApplyResult reports whether applying an event changed ledger state
type ApplyResult struct {
	Applied bool
}

// LedgerWriter is the single write path into a ledger store. Live and
// historical events both go through it.
type LedgerWriter interface {
	// Apply applies one event in its own transaction
	Apply(ctx context.Context, event entities.LedgerEvent) (ApplyResult, error)

	// Track makes sure a contract has a cursor
	Track(ctx context.Context, contract *entities.Contract) error

	// BeginBackfill marks a backfill pass over [from, to] as in progress
	BeginBackfill(ctx context.Context, contractID, from, to int64) error

	// CompleteBackfill moves the cursor to at least head and clears the pending pass
	CompleteBackfill(ctx context.Context, contractID, head int64) error

	// EndBackfill clears the syncing flag
	EndBackfill(ctx context.Context, contractID int64) error
}

var _ LedgerWriter = (*LedgerUpdater)(nil)

// LedgerUpdater applies decoded events to one ledger store
type LedgerUpdater struct {
	store     repositories.LedgerStore
	cursors   repositories.CursorRepository
	contracts repositories.ContractRepository
	logger    *zap.Logger
}

// NewLedgerUpdater creates an updater for the primary store
func NewLedgerUpdater(
	store repositories.LedgerStore,
	cursors repositories.CursorRepository,
	logger *zap.Logger,
) *LedgerUpdater {
	return &LedgerUpdater{
		store:   store,
		cursors: cursors,
		logger:  logger,
	}
}

// NewMirrorUpdater creates an updater for a store that does not own the
// registry. Track copies the contract row into it first.
func NewMirrorUpdater(
	store repositories.LedgerStore,
	cursors repositories.CursorRepository,
	contracts repositories.ContractRepository,
	logger *zap.Logger,
) *LedgerUpdater {
	u := NewLedgerUpdater(store, cursors, logger)
	u.contracts = contracts
	return u
}

// Apply dispatches an event to the handler for its kind
func (u *LedgerUpdater) Apply(ctx context.Context, event entities.LedgerEvent) (ApplyResult, error) {
	if err := event.Validate(); err != nil {
		return ApplyResult{}, err
	}

	switch event.Kind {
	case entities.EventKindTransfer:
		return u.ApplyTransfer(ctx, event.Transfer)
	case entities.EventKindAllowlistAdd:
		return u.ApplyAllowlistAdd(ctx, event.Allowlist)
	case entities.EventKindAllowlistRemove:
		return u.ApplyAllowlistRemove(ctx, event.Allowlist)
	case entities.EventKindStockSplit:
		return u.ApplyStockSplit(ctx, event.StockSplit)
	case entities.EventKindMetadataChange:
		return u.ApplyMetadataChange(ctx, event.MetadataChange)
	case entities.EventKindBuyback:
		return u.ApplyBuyback(ctx, event.Buyback)
	default:
		return ApplyResult{}, fmt.Errorf("%w: unknown kind %q", entities.ErrInvalidEvent, event.Kind)
	}
}

// ApplyTransfer records the transfer and moves the amount between holders.
// A transfer already recorded changes nothing.
func (u *LedgerUpdater) ApplyTransfer(ctx context.Context, t *entities.TransferEvent) (ApplyResult, error) {
	var result ApplyResult

	err := u.store.WithTx(ctx, func(tx repositories.LedgerTx) error {
		if err := requireContract(ctx, tx, t.ContractID); err != nil {
			return err
		}

		ok, err := tx.InsertTransfer(ctx, t)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		// Lock in address order so opposite transfers cannot deadlock
		var holders []string
		if !t.IsMint() {
			holders = append(holders, t.From)
		}
		if !t.IsBurn() && t.To != t.From {
			holders = append(holders, t.To)
		}
		sort.Strings(holders)

		balances := make(map[string]*big.Int, len(holders))
		for _, addr := range holders {
			bal, err := tx.LockBalance(ctx, t.ContractID, addr)
			if err != nil {
				return err
			}
			balances[addr] = bal
		}

		if !t.IsMint() {
			from := balances[t.From]
			if from.Cmp(t.Amount) < 0 {
				return fmt.Errorf("%w: %s holds %s, transfer of %s in tx %s",
					entities.ErrInsufficientBalance, t.From, from, t.Amount, t.TxHash)
			}
			from.Sub(from, t.Amount)
		}
		if !t.IsBurn() {
			to := balances[t.To]
			to.Add(to, t.Amount)
		}

		for _, addr := range holders {
			if err := tx.SetBalance(ctx, t.ContractID, addr, balances[addr], t.BlockNumber, t.BlockTimestamp); err != nil {
				return err
			}
		}

		if err := tx.AdvanceCursor(ctx, t.ContractID, t.BlockNumber); err != nil {
			return err
		}
		result.Applied = true
		return nil
	})

	return result, err
}

// ApplyAllowlistAdd marks the address allowlisted. Re-adding after a removal
// reuses the row and clears the removal stamp.
func (u *LedgerUpdater) ApplyAllowlistAdd(ctx context.Context, a *entities.AllowlistChange) (ApplyResult, error) {
	return u.applyAllowlist(ctx, a, func(entry *entities.AllowlistEntry, fresh bool) bool {
		if !fresh && entry.IsStale(a.EventMeta) {
			// An older add only extends the start of the recorded interval
			if a.BlockNumber < entry.AddedAtBlock &&
				(entry.RemovedAtBlock == nil || a.BlockNumber < *entry.RemovedAtBlock) {
				entry.AddedAtBlock = a.BlockNumber
				entry.AddedAt = a.BlockTimestamp
				entry.TxHash = a.TxHash
				return true
			}
			return false
		}

		entry.IsAllowlisted = true
		entry.AddedAtBlock = a.BlockNumber
		entry.AddedAt = a.BlockTimestamp
		entry.TxHash = a.TxHash
		entry.RemovedAtBlock = nil
		entry.RemovedAt = nil
		entry.RemovedTxHash = nil
		entry.LastEventBlock = a.BlockNumber
		entry.LastEventLogIndex = a.LogIndex
		return true
	})
}

// ApplyAllowlistRemove marks the address removed
func (u *LedgerUpdater) ApplyAllowlistRemove(ctx context.Context, a *entities.AllowlistChange) (ApplyResult, error) {
	return u.applyAllowlist(ctx, a, func(entry *entities.AllowlistEntry, fresh bool) bool {
		if !fresh && entry.IsStale(a.EventMeta) {
			return false
		}

		if fresh {
			// Removal seen before any add
			entry.AddedAtBlock = a.BlockNumber
			entry.AddedAt = a.BlockTimestamp
			entry.TxHash = a.TxHash
		}

		block := a.BlockNumber
		at := a.BlockTimestamp
		txHash := a.TxHash

		entry.IsAllowlisted = false
		entry.RemovedAtBlock = &block
		entry.RemovedAt = &at
		entry.RemovedTxHash = &txHash
		entry.LastEventBlock = a.BlockNumber
		entry.LastEventLogIndex = a.LogIndex
		return true
	})
}

func (u *LedgerUpdater) applyAllowlist(
	ctx context.Context,
	a *entities.AllowlistChange,
	transition func(entry *entities.AllowlistEntry, fresh bool) bool,
) (ApplyResult, error) {
	var result ApplyResult

	err := u.store.WithTx(ctx, func(tx repositories.LedgerTx) error {
		if err := requireContract(ctx, tx, a.ContractID); err != nil {
			return err
		}

		address := entities.NormalizeAddress(a.Address)
		entry, err := tx.GetAllowlistEntry(ctx, a.ContractID, address)
		if err != nil {
			return err
		}
		fresh := entry == nil
		if fresh {
			entry = &entities.AllowlistEntry{ContractID: a.ContractID, Address: address}
		}

		if !transition(entry, fresh) {
			return nil
		}

		if err := tx.UpsertAllowlistEntry(ctx, entry); err != nil {
			return err
		}
		if err := tx.AdvanceCursor(ctx, a.ContractID, a.BlockNumber); err != nil {
			return err
		}
		result.Applied = true
		return nil
	})

	return result, err
}

// ApplyStockSplit records the split. Balances are not touched; the contract
// emits Transfers for any share movement.
func (u *LedgerUpdater) ApplyStockSplit(ctx context.Context, s *entities.StockSplitEvent) (ApplyResult, error) {
	return u.insertOnce(ctx, s.ContractID, s.BlockNumber, func(tx repositories.LedgerTx) (bool, error) {
		return tx.InsertStockSplit(ctx, s)
	})
}

// ApplyBuyback records the buyback. The paired burn Transfer moves the balance.
func (u *LedgerUpdater) ApplyBuyback(ctx context.Context, b *entities.BuybackEvent) (ApplyResult, error) {
	return u.insertOnce(ctx, b.ContractID, b.BlockNumber, func(tx repositories.LedgerTx) (bool, error) {
		return tx.InsertBuyback(ctx, b)
	})
}

// ApplyMetadataChange records the change and renames the contract
func (u *LedgerUpdater) ApplyMetadataChange(ctx context.Context, m *entities.MetadataChangeEvent) (ApplyResult, error) {
	return u.insertOnce(ctx, m.ContractID, m.BlockNumber, func(tx repositories.LedgerTx) (bool, error) {
		ok, err := tx.InsertMetadataChange(ctx, m)
		if err != nil || !ok {
			return ok, err
		}
		return true, tx.UpdateContractMetadata(ctx, m.ContractID, m.NewName, m.NewSymbol)
	})
}

func (u *LedgerUpdater) insertOnce(
	ctx context.Context,
	contractID, block int64,
	insert func(tx repositories.LedgerTx) (bool, error),
) (ApplyResult, error) {
	var result ApplyResult

	err := u.store.WithTx(ctx, func(tx repositories.LedgerTx) error {
		if err := requireContract(ctx, tx, contractID); err != nil {
			return err
		}

		ok, err := insert(tx)
		if err != nil || !ok {
			return err
		}

		if err := tx.AdvanceCursor(ctx, contractID, block); err != nil {
			return err
		}
		result.Applied = true
		return nil
	})

	return result, err
}

func requireContract(ctx context.Context, tx repositories.LedgerTx, contractID int64) error {
	contract, err := tx.GetContract(ctx, contractID)
	if err != nil {
		return err
	}
	if contract == nil {
		return fmt.Errorf("contract %d: %w", contractID, entities.ErrContractNotFound)
	}
	return nil
}

// Track creates the cursor of a newly watched contract one block before its
// deployment
func (u *LedgerUpdater) Track(ctx context.Context, contract *entities.Contract) error {
	if u.contracts != nil {
		if err := u.contracts.Upsert(ctx, contract); err != nil {
			return err
		}
	}
	return u.cursors.Ensure(ctx, contract.ID, entities.InitialCursorBlock(contract))
}

// BeginBackfill marks a backfill pass as in progress
func (u *LedgerUpdater) BeginBackfill(ctx context.Context, contractID, from, to int64) error {
	return u.cursors.Begin(ctx, contractID, from, to)
}

// CompleteBackfill moves the cursor to at least head
func (u *LedgerUpdater) CompleteBackfill(ctx context.Context, contractID, head int64) error {
	return u.cursors.Complete(ctx, contractID, head)
}

// EndBackfill clears the syncing flag
func (u *LedgerUpdater) EndBackfill(ctx context.Context, contractID int64) error {
	return u.cursors.SetSyncing(ctx, contractID, false)
}
