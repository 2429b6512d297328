package services

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"go.uber.org/zap"

	"github.com/bimakw/equity-ledger/internal/config"
	"github.com/bimakw/equity-ledger/internal/domain/entities"
	"github.com/bimakw/equity-ledger/internal/domain/repositories"
	"github.com/bimakw/equity-ledger/internal/infrastructure/cache"
)

// CapTableService reconstructs ownership snapshots from the ledger store
type CapTableService struct {
	contracts repositories.ContractRepository
	balances  repositories.BalanceRepository
	transfers repositories.TransferRepository
	allowlist repositories.AllowlistRepository
	cursors   repositories.CursorRepository
	cache     *cache.RedisCache
	config    config.APIConfig
	logger    *zap.Logger
}

// NewCapTableService creates a new cap table service
func NewCapTableService(
	contracts repositories.ContractRepository,
	balances repositories.BalanceRepository,
	transfers repositories.TransferRepository,
	allowlist repositories.AllowlistRepository,
	cursors repositories.CursorRepository,
	cache *cache.RedisCache,
	cfg config.APIConfig,
	logger *zap.Logger,
) *CapTableService {
	return &CapTableService{
		contracts: contracts,
		balances:  balances,
		transfers: transfers,
		allowlist: allowlist,
		cursors:   cursors,
		cache:     cache,
		config:    cfg,
		logger:    logger,
	}
}

// CapTableResponse is the API response for cap table queries
type CapTableResponse struct {
	Data entities.CapTable `json:"data"`
}

// GetCurrentCapTable returns the cap table from current balances. A nil
// response means the contract is not registered.
func (s *CapTableService) GetCurrentCapTable(ctx context.Context, contractAddress string) (*CapTableResponse, error) {
	contractAddress = entities.NormalizeAddress(contractAddress)
	cacheKey := cache.CapTableKey(contractAddress)

	var cached CapTableResponse
	if s.cache != nil {
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			s.logger.Debug("Cache hit", zap.String("key", cacheKey))
			return &cached, nil
		}
	}

	contract, err := s.contracts.GetByAddress(ctx, contractAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to check contract: %w", err)
	}
	if contract == nil {
		return nil, nil
	}

	table, err := s.Current(ctx, contract)
	if err != nil {
		return nil, err
	}
	response := &CapTableResponse{Data: *table}

	if s.cache != nil {
		if err := s.cache.SetWithTTL(ctx, cacheKey, response, s.config.CacheTTL); err != nil {
			s.logger.Warn("Failed to cache response", zap.Error(err))
		}
	}

	return response, nil
}

// GetCapTableAtBlock returns the cap table as of block by replaying the
// transfer log. A nil response means the contract is not registered.
func (s *CapTableService) GetCapTableAtBlock(ctx context.Context, contractAddress string, block int64) (*CapTableResponse, error) {
	if block < 0 {
		return nil, fmt.Errorf("block must not be negative: %d", block)
	}

	contractAddress = entities.NormalizeAddress(contractAddress)
	cacheKey := cache.HistoricalCapTableKey(contractAddress, block)

	var cached CapTableResponse
	if s.cache != nil {
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			s.logger.Debug("Cache hit", zap.String("key", cacheKey))
			return &cached, nil
		}
	}

	contract, err := s.contracts.GetByAddress(ctx, contractAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to check contract: %w", err)
	}
	if contract == nil {
		return nil, nil
	}

	table, err := s.AtBlock(ctx, contract, block)
	if err != nil {
		return nil, err
	}
	response := &CapTableResponse{Data: *table}

	if s.cache != nil {
		cursor, err := s.cursors.Get(ctx, contract.ID)
		if err != nil {
			s.logger.Warn("Failed to read cursor for cache decision", zap.Error(err))
		} else if historicalCacheable(cursor, block, s.config.HistoricalCacheLag) {
			if err := s.cache.SetWithTTL(ctx, cacheKey, response, s.config.HistoricalTTL); err != nil {
				s.logger.Warn("Failed to cache response", zap.Error(err))
			}
		}
	}

	return response, nil
}

// historicalCacheable reports whether a snapshot at block may be cached.
// Every event kind advances the same cursor, so a lagging poller can still
// deliver logs up to lag blocks below it.
func historicalCacheable(cursor *entities.IndexerCursor, block, lag int64) bool {
	if cursor == nil || cursor.IsSyncing {
		return false
	}
	if lag < 0 {
		lag = 0
	}
	return block <= cursor.LastProcessedBlock-lag
}

// Current builds the cap table from the balances table
func (s *CapTableService) Current(ctx context.Context, contract *entities.Contract) (*entities.CapTable, error) {
	rows, err := s.balances.ListNonZero(ctx, contract.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list balances: %w", err)
	}

	holdings := make(map[string]*big.Int, len(rows))
	for _, b := range rows {
		holdings[b.Address] = b.Balance
	}

	entries, err := s.allowlist.List(ctx, contract.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list allowlist: %w", err)
	}
	allowlisted := make(map[string]bool, len(entries))
	for _, e := range entries {
		allowlisted[e.Address] = e.IsAllowlisted
	}

	table := BuildCapTable(holdings, func(addr string) bool { return allowlisted[addr] })
	table.ContractAddress = contract.Address
	return table, nil
}

// AtBlock replays every transfer up to and including block. It never reads
// the balances table.
func (s *CapTableService) AtBlock(ctx context.Context, contract *entities.Contract, block int64) (*entities.CapTable, error) {
	transfers, err := s.transfers.ListUpToBlock(ctx, contract.ID, block)
	if err != nil {
		return nil, fmt.Errorf("failed to list transfers: %w", err)
	}

	entries, err := s.allowlist.List(ctx, contract.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to list allowlist: %w", err)
	}
	byAddress := make(map[string]*entities.AllowlistEntry, len(entries))
	for i := range entries {
		byAddress[entries[i].Address] = &entries[i]
	}

	table := BuildCapTable(ReplayTransfers(transfers), func(addr string) bool {
		e, ok := byAddress[addr]
		return ok && e.AllowlistedAt(block)
	})
	table.ContractAddress = contract.Address
	table.AtBlock = &block
	return table, nil
}

// ReplayTransfers folds transfers, in the order given, into balances per
// address. The zero address is never credited or debited.
func ReplayTransfers(transfers []entities.TransferEvent) map[string]*big.Int {
	balances := make(map[string]*big.Int)
	get := func(addr string) *big.Int {
		b, ok := balances[addr]
		if !ok {
			b = new(big.Int)
			balances[addr] = b
		}
		return b
	}

	for i := range transfers {
		t := &transfers[i]
		if t.Amount == nil {
			continue
		}
		if !t.IsMint() {
			from := get(t.From)
			from.Sub(from, t.Amount)
		}
		if !t.IsBurn() {
			to := get(t.To)
			to.Add(to, t.Amount)
		}
	}
	return balances
}

// BuildCapTable turns positive holdings into sorted cap table rows with
// ownership in basis points of their total
func BuildCapTable(holdings map[string]*big.Int, allowlisted func(addr string) bool) *entities.CapTable {
	total := new(big.Int)
	rows := make([]entities.CapTableRow, 0, len(holdings))

	for addr, bal := range holdings {
		if bal == nil || bal.Sign() <= 0 || entities.IsZeroAddress(addr) {
			continue
		}
		total.Add(total, bal)
		rows = append(rows, entities.CapTableRow{
			Address:       addr,
			Balance:       new(big.Int).Set(bal),
			BalanceStr:    bal.String(),
			IsAllowlisted: allowlisted(addr),
		})
	}

	for i := range rows {
		bps := entities.OwnershipBasisPoints(rows[i].Balance, total)
		rows[i].OwnershipBasisPoints = bps
		rows[i].OwnershipPercentage = entities.FormatBasisPoints(bps)
	}

	sort.Slice(rows, func(i, j int) bool {
		if c := rows[i].Balance.Cmp(rows[j].Balance); c != 0 {
			return c > 0
		}
		return rows[i].Address < rows[j].Address
	})

	return &entities.CapTable{
		TotalSupply: total.String(),
		HolderCount: len(rows),
		Rows:        rows,
	}
}
