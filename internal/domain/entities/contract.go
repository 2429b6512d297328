package entities

import (
	"strings"
	"time"
)

// ZeroAddress is the mint source and burn sink. It never holds a balance.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// Contract represents a deployed equity token contract being indexed
type Contract struct {
	ID              int64     `db:"id" json:"id"`
	Address         string    `db:"address" json:"address"`
	ChainID         int64     `db:"chain_id" json:"chain_id"`
	Name            string    `db:"name" json:"name"`
	Symbol          string    `db:"symbol" json:"symbol"`
	Decimals        int       `db:"decimals" json:"decimals"`
	DeployedAtBlock int64     `db:"deployed_at_block" json:"deployed_at_block"`
	DeployedAt      time.Time `db:"deployed_at" json:"deployed_at"`
	DeployedBy      string    `db:"deployed_by" json:"deployed_by"`
	IsActive        bool      `db:"is_active" json:"is_active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// StartBlock returns the first block a backfill must scan for this contract
func (c *Contract) StartBlock() int64 {
	if c.DeployedAtBlock > 0 {
		return c.DeployedAtBlock
	}
	return 0
}

// NormalizeAddress lower-cases a hex address so lookups are case-insensitive
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// IsZeroAddress reports whether address is the mint/burn sentinel
func IsZeroAddress(address string) bool {
	return NormalizeAddress(address) == ZeroAddress
}
