package entities

import (
	"math/big"
	"time"
)

// Balance is the derived, mutable holding of one address
type Balance struct {
	ContractID       int64     `db:"contract_id"`
	Address          string    `db:"address"`
	Balance          *big.Int  `db:"-"`
	LastUpdatedBlock int64     `db:"last_updated_block"`
	LastUpdatedAt    time.Time `db:"last_updated_at"`
}

// AllowlistEntry is the single row per (contract, address). Re-adding after a
// removal updates this row rather than inserting a new one.
type AllowlistEntry struct {
	ContractID        int64      `db:"contract_id"`
	Address           string     `db:"address"`
	IsAllowlisted     bool       `db:"is_allowlisted"`
	AddedAtBlock      int64      `db:"added_at_block"`
	AddedAt           time.Time  `db:"added_at"`
	RemovedAtBlock    *int64     `db:"removed_at_block"`
	RemovedAt         *time.Time `db:"removed_at"`
	TxHash            string     `db:"tx_hash"`
	RemovedTxHash     *string    `db:"removed_tx_hash"`
	LastEventBlock    int64      `db:"last_event_block"`
	LastEventLogIndex int        `db:"last_event_log_index"`
}

// AllowlistedAt reports whether the address was allowlisted at the given block
func (a *AllowlistEntry) AllowlistedAt(block int64) bool {
	if a.AddedAtBlock > block {
		return false
	}
	return a.RemovedAtBlock == nil || block < *a.RemovedAtBlock
}

// IsStale reports whether a transition at meta is not newer than the last one applied
func (a *AllowlistEntry) IsStale(meta EventMeta) bool {
	if meta.BlockNumber != a.LastEventBlock {
		return meta.BlockNumber < a.LastEventBlock
	}
	return meta.LogIndex <= a.LastEventLogIndex
}

// HolderPosition is one contract holding of an address, used for the
// cross-contract positions view
type HolderPosition struct {
	ContractAddress  string    `db:"contract_address" json:"contract_address"`
	Name             string    `db:"name" json:"name"`
	Symbol           string    `db:"symbol" json:"symbol"`
	Decimals         int       `db:"decimals" json:"decimals"`
	Balance          string    `db:"balance" json:"balance"`
	BalanceFormatted string    `db:"-" json:"balance_formatted"`
	LastUpdatedBlock int64     `db:"last_updated_block" json:"last_updated_block"`
	LastUpdatedAt    time.Time `db:"last_updated_at" json:"last_updated_at"`
}
