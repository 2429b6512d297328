package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/bimakw/equity-ledger/internal/domain/entities"
	"github.com/bimakw/equity-ledger/internal/domain/repositories"
)

// StatusService reports how far the indexer has progressed for a contract
type StatusService struct {
	contracts repositories.ContractRepository
	cursors   repositories.CursorRepository
	logger    *zap.Logger
}

// NewStatusService creates a new status service
func NewStatusService(
	contracts repositories.ContractRepository,
	cursors repositories.CursorRepository,
	logger *zap.Logger,
) *StatusService {
	return &StatusService{
		contracts: contracts,
		cursors:   cursors,
		logger:    logger,
	}
}

// StatusResponse is the API response for indexer status queries
type StatusResponse struct {
	Data entities.IndexerStatus `json:"data"`
}

// GetIndexerStatus returns the indexing state of a contract. Unknown
// contracts report the untracked state rather than an error.
func (s *StatusService) GetIndexerStatus(ctx context.Context, contractAddress string) (*StatusResponse, error) {
	contractAddress = entities.NormalizeAddress(contractAddress)

	contract, err := s.contracts.GetByAddress(ctx, contractAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to check contract: %w", err)
	}
	if contract == nil {
		status := entities.StatusFromCursor(nil, nil)
		status.ContractAddress = contractAddress
		return &StatusResponse{Data: status}, nil
	}

	cursor, err := s.cursors.Get(ctx, contract.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cursor: %w", err)
	}

	return &StatusResponse{Data: entities.StatusFromCursor(contract, cursor)}, nil
}
