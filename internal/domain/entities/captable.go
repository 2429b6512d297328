package entities

import (
	"fmt"
	"math/big"
)

// CapTableRow represents a single holder in a cap table. It is derived on read
// and never persisted.
type CapTableRow struct {
	Address              string   `json:"address"`
	Balance              *big.Int `json:"-"`
	BalanceStr           string   `json:"balance"`
	OwnershipBasisPoints int64    `json:"ownership_bps"`
	OwnershipPercentage  string   `json:"ownership_percentage"`
	IsAllowlisted        bool     `json:"is_allowlisted"`
}

// CapTable is a full ownership snapshot for a contract
type CapTable struct {
	ContractAddress string        `json:"contract_address"`
	AtBlock         *int64        `json:"at_block,omitempty"`
	TotalSupply     string        `json:"total_supply"`
	HolderCount     int           `json:"holder_count"`
	Rows            []CapTableRow `json:"rows"`
}

var basisPointsScale = big.NewInt(10000)

// OwnershipBasisPoints returns round(balance * 10000 / total), rounding half up,
// using integer arithmetic only. A zero total yields zero.
func OwnershipBasisPoints(balance, total *big.Int) int64 {
	if total == nil || total.Sign() <= 0 || balance == nil || balance.Sign() <= 0 {
		return 0
	}
	// (2 * balance * 10000 + total) / (2 * total)
	num := new(big.Int).Mul(balance, basisPointsScale)
	num.Lsh(num, 1)
	num.Add(num, total)
	den := new(big.Int).Lsh(total, 1)
	return num.Quo(num, den).Int64()
}

// FormatBasisPoints renders basis points as a percentage with two decimals
func FormatBasisPoints(bps int64) string {
	return fmt.Sprintf("%d.%02d", bps/100, bps%100)
}
