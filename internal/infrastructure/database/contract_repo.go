package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bimakw/equity-ledger/internal/domain/entities"
	"github.com/bimakw/equity-ledger/internal/domain/repositories"
)

// Ensure ContractRepo implements ContractRepository
var _ repositories.ContractRepository = (*ContractRepo)(nil)

// ContractRepo implements ContractRepository on either store
type ContractRepo struct {
	db *DB
}

// NewContractRepo creates a new contract repository
func NewContractRepo(db *DB) *ContractRepo {
	return &ContractRepo{db: db}
}

// GetByAddress retrieves a contract by its address
func (r *ContractRepo) GetByAddress(ctx context.Context, address string) (*entities.Contract, error) {
	var contract entities.Contract
	query := r.db.db.Rebind(`SELECT * FROM contracts WHERE address = ?`)

	if err := r.db.db.GetContext(ctx, &contract, query, entities.NormalizeAddress(address)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}

	return &contract, nil
}

// GetByID retrieves a contract by its registry id
func (r *ContractRepo) GetByID(ctx context.Context, id int64) (*entities.Contract, error) {
	var contract entities.Contract
	query := r.db.db.Rebind(`SELECT * FROM contracts WHERE id = ?`)

	if err := r.db.db.GetContext(ctx, &contract, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}

	return &contract, nil
}

// ListActive retrieves all contracts that should be watched
func (r *ContractRepo) ListActive(ctx context.Context) ([]entities.Contract, error) {
	var contracts []entities.Contract
	query := r.db.db.Rebind(`SELECT * FROM contracts WHERE is_active = ? ORDER BY id`)

	if err := r.db.db.SelectContext(ctx, &contracts, query, true); err != nil {
		return nil, fmt.Errorf("failed to list active contracts: %w", err)
	}

	return contracts, nil
}

// ListAll retrieves every registered contract
func (r *ContractRepo) ListAll(ctx context.Context) ([]entities.Contract, error) {
	var contracts []entities.Contract
	query := `SELECT * FROM contracts ORDER BY id`

	if err := r.db.db.SelectContext(ctx, &contracts, query); err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}

	return contracts, nil
}

// Create registers a new contract and sets its ID
func (r *ContractRepo) Create(ctx context.Context, contract *entities.Contract) error {
	now := time.Now().UTC()
	contract.Address = entities.NormalizeAddress(contract.Address)
	contract.DeployedBy = entities.NormalizeAddress(contract.DeployedBy)
	if contract.DeployedAt.IsZero() {
		contract.DeployedAt = now
	}

	query := r.db.db.Rebind(`
		INSERT INTO contracts (address, chain_id, name, symbol, decimals, deployed_at_block,
			deployed_at, deployed_by, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`)

	err := r.db.db.QueryRowxContext(ctx, query,
		contract.Address,
		contract.ChainID,
		contract.Name,
		contract.Symbol,
		contract.Decimals,
		contract.DeployedAtBlock,
		contract.DeployedAt,
		contract.DeployedBy,
		contract.IsActive,
		now,
		now,
	).Scan(&contract.ID)
	if err != nil {
		return fmt.Errorf("failed to create contract: %w", err)
	}

	contract.CreatedAt = now
	contract.UpdatedAt = now
	return nil
}

// Upsert writes a contract under its existing ID. The mirror store uses this
// so both stores agree on contract ids.
func (r *ContractRepo) Upsert(ctx context.Context, contract *entities.Contract) error {
	query := r.db.db.Rebind(`
		INSERT INTO contracts (id, address, chain_id, name, symbol, decimals, deployed_at_block,
			deployed_at, deployed_by, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			symbol = excluded.symbol,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`)

	createdAt := contract.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := r.db.db.ExecContext(ctx, query,
		contract.ID,
		entities.NormalizeAddress(contract.Address),
		contract.ChainID,
		contract.Name,
		contract.Symbol,
		contract.Decimals,
		contract.DeployedAtBlock,
		contract.DeployedAt,
		entities.NormalizeAddress(contract.DeployedBy),
		contract.IsActive,
		createdAt,
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert contract: %w", err)
	}

	return nil
}

// SetActive toggles whether a contract is watched
func (r *ContractRepo) SetActive(ctx context.Context, id int64, active bool) error {
	query := r.db.db.Rebind(`UPDATE contracts SET is_active = ?, updated_at = ? WHERE id = ?`)

	res, err := r.db.db.ExecContext(ctx, query, active, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update contract: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update contract: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("contract %d: %w", id, entities.ErrContractNotFound)
	}

	return nil
}
