package entities

import (
	"errors"
	"fmt"
)

// ErrLedgerInvariant marks an event whose application would corrupt the ledger.
// Such events are logged and skipped; they never halt indexing of other contracts.
var ErrLedgerInvariant = errors.New("ledger invariant violation")

var (
	// ErrInsufficientBalance is returned when a debit would make a balance negative
	ErrInsufficientBalance = fmt.Errorf("%w: insufficient balance", ErrLedgerInvariant)

	// ErrContractNotFound is returned when an event references an unregistered contract
	ErrContractNotFound = fmt.Errorf("%w: contract not found", ErrLedgerInvariant)
)

// ErrInvalidEvent is returned for events that cannot be decoded or are incomplete
var ErrInvalidEvent = errors.New("invalid ledger event")
