package entities

import (
	"fmt"
	"math/big"
	"time"
)

// EventKind identifies one of the equity token events the ledger consumes
type EventKind string

const (
	EventKindTransfer        EventKind = "transfer"
	EventKindAllowlistAdd    EventKind = "allowlist_add"
	EventKindAllowlistRemove EventKind = "allowlist_remove"
	EventKindStockSplit      EventKind = "stock_split"
	EventKindMetadataChange  EventKind = "metadata_change"
	EventKindBuyback         EventKind = "buyback"
)

// BackfillOrder is the fixed order in which event kinds are replayed
var BackfillOrder = []EventKind{
	EventKindTransfer,
	EventKindAllowlistAdd,
	EventKindAllowlistRemove,
	EventKindStockSplit,
	EventKindMetadataChange,
	EventKindBuyback,
}

// ParseEventKind validates a kind received from an external caller
func ParseEventKind(s string) (EventKind, error) {
	for _, k := range BackfillOrder {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown event kind %q", s)
}

// EventMeta holds the on-chain position shared by every ledger event.
// (ContractID, TxHash, LogIndex) is the deduplication key.
type EventMeta struct {
	ContractID      int64     `db:"contract_id" json:"-"`
	ContractAddress string    `db:"-" json:"-"`
	BlockNumber     int64     `db:"block_number" json:"block_number"`
	BlockTimestamp  time.Time `db:"block_timestamp" json:"block_timestamp"`
	TxHash          string    `db:"tx_hash" json:"tx_hash"`
	LogIndex        int       `db:"log_index" json:"log_index"`
}

// Before reports whether m sorts strictly before other in (block, logIndex) order
func (m EventMeta) Before(other EventMeta) bool {
	if m.BlockNumber != other.BlockNumber {
		return m.BlockNumber < other.BlockNumber
	}
	return m.LogIndex < other.LogIndex
}

// TransferEvent is an append-only ERC-20 style Transfer
type TransferEvent struct {
	EventMeta
	From   string   `db:"from_address"`
	To     string   `db:"to_address"`
	Amount *big.Int `db:"-"`
}

// IsMint reports whether the transfer creates new shares
func (t *TransferEvent) IsMint() bool { return IsZeroAddress(t.From) }

// IsBurn reports whether the transfer destroys shares
func (t *TransferEvent) IsBurn() bool { return IsZeroAddress(t.To) }

// AllowlistChange is an allowlist add or remove for a single address
type AllowlistChange struct {
	EventMeta
	Address string
}

// StockSplitEvent records a split. It carries no balance side effects; the
// contract emits Transfers for any share movement.
type StockSplitEvent struct {
	EventMeta
	Multiplier     *big.Int `db:"-"`
	NewTotalSupply *big.Int `db:"-"`
}

// MetadataChangeEvent records a name/symbol change
type MetadataChangeEvent struct {
	EventMeta
	OldName   string `db:"old_name"`
	NewName   string `db:"new_name"`
	OldSymbol string `db:"old_symbol"`
	NewSymbol string `db:"new_symbol"`
}

// BuybackEvent records shares repurchased from a holder. The paired burn
// Transfer is ingested separately and may be applied before or after it.
type BuybackEvent struct {
	EventMeta
	Holder string   `db:"holder"`
	Amount *big.Int `db:"-"`
}

// LedgerEvent is one decoded log. Exactly one payload matching Kind is set.
type LedgerEvent struct {
	Kind           EventKind
	Transfer       *TransferEvent
	Allowlist      *AllowlistChange
	StockSplit     *StockSplitEvent
	MetadataChange *MetadataChangeEvent
	Buyback        *BuybackEvent
}

// Meta returns the position of the event's payload
func (e *LedgerEvent) Meta() *EventMeta {
	switch e.Kind {
	case EventKindTransfer:
		if e.Transfer != nil {
			return &e.Transfer.EventMeta
		}
	case EventKindAllowlistAdd, EventKindAllowlistRemove:
		if e.Allowlist != nil {
			return &e.Allowlist.EventMeta
		}
	case EventKindStockSplit:
		if e.StockSplit != nil {
			return &e.StockSplit.EventMeta
		}
	case EventKindMetadataChange:
		if e.MetadataChange != nil {
			return &e.MetadataChange.EventMeta
		}
	case EventKindBuyback:
		if e.Buyback != nil {
			return &e.Buyback.EventMeta
		}
	}
	return nil
}

// Validate checks that the payload matches the kind and carries a position
func (e *LedgerEvent) Validate() error {
	meta := e.Meta()
	if meta == nil {
		return fmt.Errorf("%w: missing %s payload", ErrInvalidEvent, e.Kind)
	}
	if meta.TxHash == "" {
		return fmt.Errorf("%w: missing tx hash", ErrInvalidEvent)
	}
	switch e.Kind {
	case EventKindTransfer:
		if e.Transfer.Amount == nil || e.Transfer.Amount.Sign() < 0 {
			return fmt.Errorf("%w: invalid transfer amount", ErrInvalidEvent)
		}
	case EventKindBuyback:
		if e.Buyback.Amount == nil || e.Buyback.Amount.Sign() < 0 {
			return fmt.Errorf("%w: invalid buyback amount", ErrInvalidEvent)
		}
	case EventKindStockSplit:
		if e.StockSplit.Multiplier == nil || e.StockSplit.NewTotalSupply == nil {
			return fmt.Errorf("%w: incomplete stock split", ErrInvalidEvent)
		}
	}
	return nil
}

// WithContract returns a copy of the event stamped with the registry id
func (e LedgerEvent) WithContract(contractID int64) LedgerEvent {
	if e.Transfer != nil {
		t := *e.Transfer
		t.ContractID = contractID
		e.Transfer = &t
	}
	if e.Allowlist != nil {
		a := *e.Allowlist
		a.ContractID = contractID
		e.Allowlist = &a
	}
	if e.StockSplit != nil {
		s := *e.StockSplit
		s.ContractID = contractID
		e.StockSplit = &s
	}
	if e.MetadataChange != nil {
		m := *e.MetadataChange
		m.ContractID = contractID
		e.MetadataChange = &m
	}
	if e.Buyback != nil {
		b := *e.Buyback
		b.ContractID = contractID
		e.Buyback = &b
	}
	return e
}

// SortKey returns the (block, logIndex) position, or zeros for an empty event
func (e *LedgerEvent) SortKey() (int64, int) {
	if meta := e.Meta(); meta != nil {
		return meta.BlockNumber, meta.LogIndex
	}
	return 0, 0
}
