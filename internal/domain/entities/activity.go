package entities

import (
	"time"
)

// ActivityEvent is one entry in a contract's recent activity feed, merged
// across all event tables
type ActivityEvent struct {
	Kind           EventKind         `json:"kind"`
	BlockNumber    int64             `json:"block_number"`
	BlockTimestamp time.Time         `json:"block_timestamp"`
	TxHash         string            `json:"tx_hash"`
	LogIndex       int               `json:"log_index"`
	From           string            `json:"from,omitempty"`
	To             string            `json:"to,omitempty"`
	Address        string            `json:"address,omitempty"`
	Amount         string            `json:"amount,omitempty"`
	Details        map[string]string `json:"details,omitempty"`
}

// ActivityFilter contains filters for querying recent activity
type ActivityFilter struct {
	ContractID int64
	Kind       *EventKind
	Limit      int
}

// DefaultActivityFilter returns a filter with sensible defaults
func DefaultActivityFilter(contractID int64) ActivityFilter {
	return ActivityFilter{
		ContractID: contractID,
		Limit:      50,
	}
}

// Includes reports whether events of kind k pass the filter
func (f ActivityFilter) Includes(k EventKind) bool {
	return f.Kind == nil || *f.Kind == k
}

// NewerThan orders activity newest first, breaking ties by chain position
func (a ActivityEvent) NewerThan(b ActivityEvent) bool {
	if !a.BlockTimestamp.Equal(b.BlockTimestamp) {
		return a.BlockTimestamp.After(b.BlockTimestamp)
	}
	if a.BlockNumber != b.BlockNumber {
		return a.BlockNumber > b.BlockNumber
	}
	return a.LogIndex > b.LogIndex
}
