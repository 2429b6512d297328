package repositories

import (
	"context"

	"github.com/bimakw/equity-ledger/internal/domain/entities"
)

// ContractRepository defines the interface for contract registry operations
type ContractRepository interface {
	// GetByAddress retrieves a contract by its (case-insensitive) address
	GetByAddress(ctx context.Context, address string) (*entities.Contract, error)

	// GetByID retrieves a contract by its registry id
	GetByID(ctx context.Context, id int64) (*entities.Contract, error)

	// ListActive retrieves all contracts with is_active = true
	ListActive(ctx context.Context) ([]entities.Contract, error)

	// ListAll retrieves every registered contract
	ListAll(ctx context.Context) ([]entities.Contract, error)

	// Create registers a new contract and sets its ID
	Create(ctx context.Context, contract *entities.Contract) error

	// Upsert writes a contract keeping the caller-supplied ID
	Upsert(ctx context.Context, contract *entities.Contract) error

	// SetActive toggles whether the contract is watched
	SetActive(ctx context.Context, id int64, active bool) error
}
