package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/equity-ledger/internal/domain/entities"
	"github.com/bimakw/equity-ledger/internal/domain/repositories"
	"github.com/bimakw/equity-ledger/internal/infrastructure/cache"
)

// HoldingsService lists the positions an address holds across every
// registered equity contract
type HoldingsService struct {
	balances repositories.BalanceRepository
	cache    *cache.RedisCache
	ttl      time.Duration
	logger   *zap.Logger
}

// NewHoldingsService creates a new holdings service
func NewHoldingsService(
	balances repositories.BalanceRepository,
	cache *cache.RedisCache,
	ttl time.Duration,
	logger *zap.Logger,
) *HoldingsService {
	return &HoldingsService{
		balances: balances,
		cache:    cache,
		ttl:      ttl,
		logger:   logger,
	}
}

// PositionsDTO is the API representation of a holder's positions
type PositionsDTO struct {
	HolderAddress string                    `json:"holder_address"`
	Positions     []entities.HolderPosition `json:"positions"`
	TotalTokens   int                       `json:"total_tokens"`
	UpdatedAt     string                    `json:"updated_at"`
}

// PositionsResponse wraps positions for API response
type PositionsResponse struct {
	Data PositionsDTO `json:"data"`
}

// GetPositions retrieves every positive balance of holderAddress
func (s *HoldingsService) GetPositions(ctx context.Context, holderAddress string) (*PositionsResponse, error) {
	holderAddress = entities.NormalizeAddress(holderAddress)
	cacheKey := cache.PositionsKey(holderAddress)

	var cached PositionsResponse
	if s.cache != nil {
		if err := s.cache.Get(ctx, cacheKey, &cached); err == nil {
			s.logger.Debug("Cache hit", zap.String("key", cacheKey))
			return &cached, nil
		}
	}

	positions, err := s.balances.ListByHolder(ctx, holderAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to get holder positions: %w", err)
	}
	if positions == nil {
		positions = []entities.HolderPosition{}
	}

	response := &PositionsResponse{
		Data: PositionsDTO{
			HolderAddress: holderAddress,
			Positions:     positions,
			TotalTokens:   len(positions),
			UpdatedAt:     time.Now().UTC().Format(time.RFC3339),
		},
	}

	if s.cache != nil {
		if err := s.cache.SetWithTTL(ctx, cacheKey, response, s.ttl); err != nil {
			s.logger.Warn("Failed to cache response", zap.Error(err))
		}
	}

	return response, nil
}
