package database

import (
	"context"
	"fmt"

	"github.com/bimakw/equity-ledger/internal/domain/entities"
	"github.com/bimakw/equity-ledger/internal/domain/repositories"
)

// Ensure BalanceRepo implements BalanceRepository
var _ repositories.BalanceRepository = (*BalanceRepo)(nil)

// BalanceRepo reads the derived balances table
type BalanceRepo struct {
	db *DB
}

// NewBalanceRepo creates a new balance repository
func NewBalanceRepo(db *DB) *BalanceRepo {
	return &BalanceRepo{db: db}
}

// balanceRow holds a balance with its amount still in column form
type balanceRow struct {
	entities.Balance
	Amount string `db:"balance"`
}

// ListNonZero returns every holder of a contract with a positive balance
func (r *BalanceRepo) ListNonZero(ctx context.Context, contractID int64) ([]entities.Balance, error) {
	query := r.db.db.Rebind(`
		SELECT contract_id, address, balance, last_updated_block, last_updated_at
		FROM balances
		WHERE contract_id = ? AND balance <> '0'
	`)

	var rows []balanceRow
	if err := r.db.db.SelectContext(ctx, &rows, query, contractID); err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}

	balances := make([]entities.Balance, 0, len(rows))
	for _, row := range rows {
		amount, err := parseAmount(row.Amount)
		if err != nil {
			return nil, err
		}
		if amount.Sign() == 0 {
			continue
		}
		b := row.Balance
		b.Balance = amount
		balances = append(balances, b)
	}

	return balances, nil
}

// ListByHolder returns the positions of an address across every contract
func (r *BalanceRepo) ListByHolder(ctx context.Context, address string) ([]entities.HolderPosition, error) {
	query := r.db.db.Rebind(`
		SELECT
			c.address AS contract_address,
			c.name,
			c.symbol,
			c.decimals,
			b.balance,
			b.last_updated_block,
			b.last_updated_at
		FROM balances b
		JOIN contracts c ON c.id = b.contract_id
		WHERE b.address = ? AND b.balance <> '0'
		ORDER BY c.id
	`)

	var positions []entities.HolderPosition
	if err := r.db.db.SelectContext(ctx, &positions, query, entities.NormalizeAddress(address)); err != nil {
		return nil, fmt.Errorf("failed to list holder positions: %w", err)
	}

	for i := range positions {
		positions[i].BalanceFormatted = formatBalance(positions[i].Balance, positions[i].Decimals)
	}

	return positions, nil
}

// formatBalance converts a raw integer balance to a decimal string
func formatBalance(balance string, decimals int) string {
	if balance == "" || balance == "0" {
		return "0"
	}

	for len(balance) <= decimals {
		balance = "0" + balance
	}

	if decimals > 0 {
		insertPos := len(balance) - decimals
		intPart := balance[:insertPos]
		decPart := trimTrailingZeros(balance[insertPos:])

		if decPart == "" {
			return intPart
		}
		return intPart + "." + decPart
	}

	return balance
}

// trimTrailingZeros removes trailing zeros from a string
func trimTrailingZeros(s string) string {
	i := len(s) - 1
	for i >= 0 && s[i] == '0' {
		i--
	}
	return s[:i+1]
}
