package entities

import (
	"time"
)

// IndexerCursor tracks the indexing progress for a contract.
// BackfillFromBlock stays set from the start of a backfill pass until the
// pass completes, so an interrupted pass is resumed from where it began.
type IndexerCursor struct {
	ContractID         int64     `db:"contract_id"`
	LastProcessedBlock int64     `db:"last_processed_block"`
	IsSyncing          bool      `db:"is_syncing"`
	BackfillFromBlock  *int64    `db:"backfill_from_block"`
	BackfillToBlock    *int64    `db:"backfill_to_block"`
	LastUpdatedAt      time.Time `db:"last_updated_at"`
}

// InitialCursorBlock is the cursor position of a newly tracked contract
func InitialCursorBlock(c *Contract) int64 {
	if c.DeployedAtBlock > 0 {
		return c.DeployedAtBlock - 1
	}
	return 0
}

// NextBlock returns the first block the next backfill pass must scan.
// overlap re-scans that many already processed blocks; replay is idempotent
// and live pollers of different kinds can be a few blocks apart.
func (c *IndexerCursor) NextBlock(startBlock, overlap int64) int64 {
	next := c.LastProcessedBlock + 1 - overlap
	if c.BackfillFromBlock != nil && *c.BackfillFromBlock < next {
		next = *c.BackfillFromBlock
	}
	if next < startBlock {
		next = startBlock
	}
	return next
}

// IndexerState is the externally visible indexing state of a contract
type IndexerState string

const (
	// IndexerStateUntracked means the contract is unknown or has no cursor yet
	IndexerStateUntracked IndexerState = "untracked"
	// IndexerStatePending means the contract is tracked but no backfill has completed
	IndexerStatePending IndexerState = "pending"
	// IndexerStateBackfilling means a backfill pass is in progress
	IndexerStateBackfilling IndexerState = "backfilling"
	// IndexerStateLive means the historical gap is drained and live watching applies
	IndexerStateLive IndexerState = "live"
)

// IndexerStatus is returned to callers so they can tell an empty cap table
// apart from one that has not been indexed yet
type IndexerStatus struct {
	ContractAddress    string       `json:"contract_address"`
	State              IndexerState `json:"state"`
	Ready              bool         `json:"ready"`
	LastProcessedBlock int64        `json:"last_processed_block"`
	IsSyncing          bool         `json:"is_syncing"`
}

// StatusFromCursor derives the indexer status for a tracked contract.
// A nil cursor means the contract has not been picked up by the indexer.
func StatusFromCursor(contract *Contract, cursor *IndexerCursor) IndexerStatus {
	status := IndexerStatus{State: IndexerStateUntracked}
	if contract == nil {
		return status
	}
	status.ContractAddress = contract.Address
	if cursor == nil {
		return status
	}

	status.LastProcessedBlock = cursor.LastProcessedBlock
	status.IsSyncing = cursor.IsSyncing

	switch {
	case cursor.IsSyncing:
		status.State = IndexerStateBackfilling
	case cursor.LastProcessedBlock < contract.StartBlock():
		status.State = IndexerStatePending
	default:
		status.State = IndexerStateLive
		status.Ready = true
	}
	return status
}
