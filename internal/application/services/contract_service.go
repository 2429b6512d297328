package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/bimakw/equity-ledger/internal/domain/entities"
	"github.com/bimakw/equity-ledger/internal/domain/repositories"
	"github.com/bimakw/equity-ledger/internal/infrastructure/cache"
	"github.com/bimakw/equity-ledger/internal/infrastructure/ethereum"
)

// ErrContractExists is returned when registering an address twice
var ErrContractExists = errors.New("contract already registered")

// MetadataSource reads token metadata from chain. *ethereum.MetadataFetcher implements it.
type MetadataSource interface {
	FetchMetadata(ctx context.Context, contractAddress string) *ethereum.ContractMetadata
}

// ContractService manages the contract registry
type ContractService struct {
	contracts repositories.ContractRepository
	metadata  MetadataSource
	cache     *cache.RedisCache
	logger    *zap.Logger
}

// NewContractService creates a new contract service. metadata and cache may be nil.
func NewContractService(
	contracts repositories.ContractRepository,
	metadata MetadataSource,
	cache *cache.RedisCache,
	logger *zap.Logger,
) *ContractService {
	return &ContractService{
		contracts: contracts,
		metadata:  metadata,
		cache:     cache,
		logger:    logger,
	}
}

// ContractListResponse is the API response for listing contracts
type ContractListResponse struct {
	Data []entities.Contract `json:"data"`
}

// ContractResponse is the API response for a single contract
type ContractResponse struct {
	Data entities.Contract `json:"data"`
}

// RegisterContractInput describes a newly deployed equity token
type RegisterContractInput struct {
	Address         string
	ChainID         int64
	Name            string
	Symbol          string
	Decimals        *int
	DeployedAtBlock int64
	DeployedAt      time.Time
	DeployedBy      string
}

// ListContracts returns every registered contract
func (s *ContractService) ListContracts(ctx context.Context) (*ContractListResponse, error) {
	contracts, err := s.contracts.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	if contracts == nil {
		contracts = []entities.Contract{}
	}
	return &ContractListResponse{Data: contracts}, nil
}

// GetContract returns a contract by address, nil when unknown
func (s *ContractService) GetContract(ctx context.Context, address string) (*ContractResponse, error) {
	contract, err := s.contracts.GetByAddress(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	if contract == nil {
		return nil, nil
	}
	return &ContractResponse{Data: *contract}, nil
}

// Register adds a contract to the registry. Missing name, symbol or
// decimals are read from chain. The running indexer picks it up on its
// next discovery tick.
func (s *ContractService) Register(ctx context.Context, in RegisterContractInput) (*entities.Contract, error) {
	if !common.IsHexAddress(in.Address) {
		return nil, fmt.Errorf("invalid contract address %q", in.Address)
	}
	if in.DeployedAtBlock < 0 {
		return nil, fmt.Errorf("deployed block must not be negative: %d", in.DeployedAtBlock)
	}

	existing, err := s.contracts.GetByAddress(ctx, in.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to check contract: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%s: %w", existing.Address, ErrContractExists)
	}

	contract := &entities.Contract{
		Address:         in.Address,
		ChainID:         in.ChainID,
		Name:            in.Name,
		Symbol:          in.Symbol,
		DeployedAtBlock: in.DeployedAtBlock,
		DeployedAt:      in.DeployedAt,
		DeployedBy:      in.DeployedBy,
		IsActive:        true,
	}
	if in.Decimals != nil {
		contract.Decimals = *in.Decimals
	}

	if (in.Name == "" || in.Symbol == "" || in.Decimals == nil) && s.metadata != nil {
		meta := s.metadata.FetchMetadata(ctx, in.Address)
		if contract.Name == "" {
			contract.Name = meta.Name
		}
		if contract.Symbol == "" {
			contract.Symbol = meta.Symbol
		}
		if in.Decimals == nil {
			contract.Decimals = int(meta.Decimals)
		}
	}

	if err := s.contracts.Create(ctx, contract); err != nil {
		return nil, fmt.Errorf("failed to register contract: %w", err)
	}

	s.logger.Info("Registered contract",
		zap.String("address", contract.Address),
		zap.String("symbol", contract.Symbol),
		zap.Int64("deployed_at_block", contract.DeployedAtBlock),
	)

	return contract, nil
}

// SetActive starts or stops watching a contract
func (s *ContractService) SetActive(ctx context.Context, address string, active bool) (*entities.Contract, error) {
	contract, err := s.contracts.GetByAddress(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	if contract == nil {
		return nil, fmt.Errorf("%s: %w", entities.NormalizeAddress(address), entities.ErrContractNotFound)
	}

	if err := s.contracts.SetActive(ctx, contract.ID, active); err != nil {
		return nil, err
	}
	contract.IsActive = active

	if s.cache != nil {
		if err := s.cache.InvalidateContract(ctx, contract.Address); err != nil {
			s.logger.Warn("Failed to invalidate cache", zap.Error(err))
		}
	}

	s.logger.Info("Updated contract",
		zap.String("address", contract.Address),
		zap.Bool("is_active", active),
	)

	return contract, nil
}

// PurgeCache drops every cached cap table of a contract, historical ones
// included. Needed after the ledger of a contract has been rebuilt.
func (s *ContractService) PurgeCache(ctx context.Context, address string) error {
	if s.cache == nil {
		return nil
	}
	if err := s.cache.DeletePattern(ctx, cache.CapTablePattern(address)); err != nil {
		return fmt.Errorf("failed to purge cache: %w", err)
	}
	s.logger.Info("Purged cached cap tables", zap.String("address", entities.NormalizeAddress(address)))
	return nil
}
