package ethereum

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/bimakw/equity-ledger/internal/domain/entities"
)

// Decoder turns raw equity token logs into ledger events
type Decoder struct {
	abi abi.ABI
}

// NewDecoder creates a decoder for the equity token events
func NewDecoder() (*Decoder, error) {
	parsed, err := parseEquityTokenABI()
	if err != nil {
		return nil, err
	}
	return &Decoder{abi: parsed}, nil
}

// Decode parses a log of the given kind. The returned event has no contract
// id yet; the caller stamps it from the registry.
func (d *Decoder) Decode(kind entities.EventKind, log types.Log, blockTimestamp time.Time) (entities.LedgerEvent, error) {
	name, ok := eventNames[kind]
	if !ok {
		return entities.LedgerEvent{}, fmt.Errorf("%w: unknown kind %q", entities.ErrInvalidEvent, kind)
	}
	event := d.abi.Events[name]

	if len(log.Topics) == 0 || log.Topics[0] != event.ID {
		return entities.LedgerEvent{}, fmt.Errorf("%w: log is not a %s event", entities.ErrInvalidEvent, name)
	}

	values := make(map[string]interface{})
	if err := d.abi.UnpackIntoMap(values, name, log.Data); err != nil {
		return entities.LedgerEvent{}, fmt.Errorf("%w: failed to unpack %s data: %v", entities.ErrInvalidEvent, name, err)
	}

	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	if err := abi.ParseTopicsIntoMap(values, indexed, log.Topics[1:]); err != nil {
		return entities.LedgerEvent{}, fmt.Errorf("%w: failed to parse %s topics: %v", entities.ErrInvalidEvent, name, err)
	}

	meta := entities.EventMeta{
		ContractAddress: strings.ToLower(log.Address.Hex()),
		BlockNumber:     int64(log.BlockNumber),
		BlockTimestamp:  blockTimestamp.UTC(),
		TxHash:          log.TxHash.Hex(),
		LogIndex:        int(log.Index),
	}

	ev := entities.LedgerEvent{Kind: kind}
	var err error

	switch kind {
	case entities.EventKindTransfer:
		t := &entities.TransferEvent{EventMeta: meta}
		if t.From, err = addressValue(values, "from"); err != nil {
			break
		}
		if t.To, err = addressValue(values, "to"); err != nil {
			break
		}
		t.Amount, err = uintValue(values, "value")
		ev.Transfer = t

	case entities.EventKindAllowlistAdd, entities.EventKindAllowlistRemove:
		a := &entities.AllowlistChange{EventMeta: meta}
		a.Address, err = addressValue(values, "account")
		ev.Allowlist = a

	case entities.EventKindStockSplit:
		s := &entities.StockSplitEvent{EventMeta: meta}
		if s.Multiplier, err = uintValue(values, "multiplier"); err != nil {
			break
		}
		s.NewTotalSupply, err = uintValue(values, "newTotalSupply")
		ev.StockSplit = s

	case entities.EventKindMetadataChange:
		m := &entities.MetadataChangeEvent{EventMeta: meta}
		fields := []struct {
			key string
			dst *string
		}{
			{"oldName", &m.OldName},
			{"newName", &m.NewName},
			{"oldSymbol", &m.OldSymbol},
			{"newSymbol", &m.NewSymbol},
		}
		for _, f := range fields {
			if *f.dst, err = stringValue(values, f.key); err != nil {
				break
			}
		}
		ev.MetadataChange = m

	case entities.EventKindBuyback:
		b := &entities.BuybackEvent{EventMeta: meta}
		if b.Holder, err = addressValue(values, "holder"); err != nil {
			break
		}
		b.Amount, err = uintValue(values, "amount")
		ev.Buyback = b
	}

	if err != nil {
		return entities.LedgerEvent{}, fmt.Errorf("%w: %s: %v", entities.ErrInvalidEvent, name, err)
	}
	return ev, nil
}

func addressValue(values map[string]interface{}, key string) (string, error) {
	v, ok := values[key].(common.Address)
	if !ok {
		return "", fmt.Errorf("field %s is not an address", key)
	}
	return strings.ToLower(v.Hex()), nil
}

func uintValue(values map[string]interface{}, key string) (*big.Int, error) {
	v, ok := values[key].(*big.Int)
	if !ok || v == nil {
		return nil, fmt.Errorf("field %s is not a uint256", key)
	}
	return new(big.Int).Set(v), nil
}

func stringValue(values map[string]interface{}, key string) (string, error) {
	v, ok := values[key].(string)
	if !ok {
		return "", fmt.Errorf("field %s is not a string", key)
	}
	return v, nil
}
