package testutil

import (
	"fmt"
	"math/big"
	"time"

	"github.com/bimakw/equity-ledger/internal/domain/entities"
)

// Common test addresses
const (
	TokenAddress  = "0x1000000000000000000000000000000000000001"
	OtherToken    = "0x2000000000000000000000000000000000000002"
	AliceAddress  = "0x1111111111111111111111111111111111111111"
	BobAddress    = "0x2222222222222222222222222222222222222222"
	CharlieAddr   = "0x3333333333333333333333333333333333333333"
	DeployerAddr  = "0x00000000000000000000000000000000000000dd"
	GenesisUnix   = 1700000000
	BlockInterval = 12
)

// BlockTime returns the deterministic timestamp used for block in tests
func BlockTime(block int64) time.Time {
	return time.Unix(GenesisUnix+block*BlockInterval, 0).UTC()
}

// TxHash returns a unique, deterministic transaction hash for a position
func TxHash(block int64, logIndex int) string {
	return fmt.Sprintf("0x%032x%032x", block, logIndex)
}

// CreateTestContract creates a contract with default values
func CreateTestContract(opts ...ContractOption) *entities.Contract {
	c := &entities.Contract{
		Address:         TokenAddress,
		ChainID:         1,
		Name:            "Acme Common",
		Symbol:          "ACME",
		Decimals:        0,
		DeployedAtBlock: 1,
		DeployedAt:      BlockTime(1),
		DeployedBy:      DeployerAddr,
		IsActive:        true,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

type ContractOption func(*entities.Contract)

func ContractWithAddress(address string) ContractOption {
	return func(c *entities.Contract) {
		c.Address = address
	}
}

func ContractWithSymbol(symbol string) ContractOption {
	return func(c *entities.Contract) {
		c.Symbol = symbol
	}
}

func ContractDeployedAt(block int64) ContractOption {
	return func(c *entities.Contract) {
		c.DeployedAtBlock = block
		c.DeployedAt = BlockTime(block)
	}
}

func ContractInactive() ContractOption {
	return func(c *entities.Contract) {
		c.IsActive = false
	}
}

func meta(contractID, block int64, logIndex int) entities.EventMeta {
	return entities.EventMeta{
		ContractID:     contractID,
		BlockNumber:    block,
		BlockTimestamp: BlockTime(block),
		TxHash:         TxHash(block, logIndex),
		LogIndex:       logIndex,
	}
}

// Transfer builds a transfer event
func Transfer(contractID, block int64, logIndex int, from, to string, amount int64) entities.LedgerEvent {
	return entities.LedgerEvent{
		Kind: entities.EventKindTransfer,
		Transfer: &entities.TransferEvent{
			EventMeta: meta(contractID, block, logIndex),
			From:      from,
			To:        to,
			Amount:    big.NewInt(amount),
		},
	}
}

// Mint builds a transfer from the zero address
func Mint(contractID, block int64, logIndex int, to string, amount int64) entities.LedgerEvent {
	return Transfer(contractID, block, logIndex, entities.ZeroAddress, to, amount)
}

// AllowlistAdd builds an allowlist add event
func AllowlistAdd(contractID, block int64, logIndex int, address string) entities.LedgerEvent {
	return entities.LedgerEvent{
		Kind:      entities.EventKindAllowlistAdd,
		Allowlist: &entities.AllowlistChange{EventMeta: meta(contractID, block, logIndex), Address: address},
	}
}

// AllowlistRemove builds an allowlist remove event
func AllowlistRemove(contractID, block int64, logIndex int, address string) entities.LedgerEvent {
	return entities.LedgerEvent{
		Kind:      entities.EventKindAllowlistRemove,
		Allowlist: &entities.AllowlistChange{EventMeta: meta(contractID, block, logIndex), Address: address},
	}
}

// StockSplit builds a stock split event
func StockSplit(contractID, block int64, logIndex int, multiplier, newTotalSupply int64) entities.LedgerEvent {
	return entities.LedgerEvent{
		Kind: entities.EventKindStockSplit,
		StockSplit: &entities.StockSplitEvent{
			EventMeta:      meta(contractID, block, logIndex),
			Multiplier:     big.NewInt(multiplier),
			NewTotalSupply: big.NewInt(newTotalSupply),
		},
	}
}

// MetadataChange builds a metadata change event
func MetadataChange(contractID, block int64, logIndex int, oldName, newName, oldSymbol, newSymbol string) entities.LedgerEvent {
	return entities.LedgerEvent{
		Kind: entities.EventKindMetadataChange,
		MetadataChange: &entities.MetadataChangeEvent{
			EventMeta: meta(contractID, block, logIndex),
			OldName:   oldName,
			NewName:   newName,
			OldSymbol: oldSymbol,
			NewSymbol: newSymbol,
		},
	}
}

// Buyback builds a buyback event
func Buyback(contractID, block int64, logIndex int, holder string, amount int64) entities.LedgerEvent {
	return entities.LedgerEvent{
		Kind: entities.EventKindBuyback,
		Buyback: &entities.BuybackEvent{
			EventMeta: meta(contractID, block, logIndex),
			Holder:    holder,
			Amount:    big.NewInt(amount),
		},
	}
}
