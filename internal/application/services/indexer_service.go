package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bimakw/equity-ledger/internal/config"
	"github.com/bimakw/equity-ledger/internal/domain/entities"
	"github.com/bimakw/equity-ledger/internal/domain/repositories"
)

// IndexerService coordinates the registry, backfills and live watchers
type IndexerService struct {
	registry *Registry
	backfill *BackfillService
	watcher  *LiveWatcher
	source   EventSource
	cursors  repositories.CursorRepository
	config   config.IndexerConfig
	logger   *zap.Logger

	metricsMu sync.RWMutex
	metrics   IndexerMetrics

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	syncing map[int64]context.CancelFunc
}

// IndexerMetrics is an in-process summary of coordinator activity
type IndexerMetrics struct {
	BackfillsCompleted int64
	BackfillErrors     int64
	LastDiscoveryAt    time.Time
	LastChainHeight    uint64
}

// NewIndexerService creates a new indexer service
func NewIndexerService(
	registry *Registry,
	backfill *BackfillService,
	watcher *LiveWatcher,
	source EventSource,
	cursors repositories.CursorRepository,
	cfg config.IndexerConfig,
	logger *zap.Logger,
) *IndexerService {
	return &IndexerService{
		registry: registry,
		backfill: backfill,
		watcher:  watcher,
		source:   source,
		cursors:  cursors,
		config:   cfg,
		logger:   logger,
		syncing:  make(map[int64]context.CancelFunc),
	}
}

// Start resets stale backfill flags, loads the active contracts and starts
// a backfill followed by live watching for each of them
func (s *IndexerService) Start(ctx context.Context) error {
	reset, err := s.cursors.ResetSyncing(ctx)
	if err != nil {
		return fmt.Errorf("failed to reset syncing flags: %w", err)
	}
	if reset > 0 {
		s.logger.Warn("Cleared syncing flags left by a previous run", zap.Int64("contracts", reset))
	}

	contracts, err := s.registry.LoadActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to load contracts: %w", err)
	}

	s.logger.Info("Starting indexer service", zap.Int("contracts", len(contracts)))

	ctx, s.cancel = context.WithCancel(ctx)
	s.watcher.Start(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		var g errgroup.Group
		g.SetLimit(max(s.config.WorkerCount, 1))
		for _, c := range contracts {
			c := c
			g.Go(func() error {
				s.syncContract(ctx, c)
				return nil
			})
		}
		_ = g.Wait()
	}()

	s.wg.Add(1)
	go s.runDiscoveryLoop(ctx)

	return nil
}

// Stop cancels every loop, waits for them and stops the watchers
func (s *IndexerService) Stop() {
	s.logger.Info("Stopping indexer service")
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.watcher.Stop()
}

// GetMetrics returns a snapshot of coordinator metrics
func (s *IndexerService) GetMetrics() IndexerMetrics {
	s.metricsMu.RLock()
	defer s.metricsMu.RUnlock()
	return s.metrics
}

// syncContract retries the backfill until it succeeds, then hands the
// contract to the live watcher. Deactivating the contract cancels the backfill.
func (s *IndexerService) syncContract(parent context.Context, contract *entities.Contract) {
	ctx, cancel := context.WithCancel(parent)
	s.mu.Lock()
	if _, ok := s.syncing[contract.ID]; ok {
		s.mu.Unlock()
		cancel()
		return
	}
	s.syncing[contract.ID] = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.syncing, contract.ID)
		s.mu.Unlock()
		cancel()
	}()

	for {
		head, err := s.backfill.Backfill(ctx, contract)
		if err == nil {
			s.recordBackfill(nil)
			s.watchIfRegistered(parent, contract, head+1)
			return
		}
		if ctx.Err() != nil {
			return
		}

		s.recordBackfill(err)
		s.logger.Error("Backfill failed, retrying",
			zap.String("contract", contract.Address),
			zap.Duration("retry_in", s.config.BackfillRetryDelay),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.config.BackfillRetryDelay):
		}
	}
}

// watchIfRegistered hands contract to the live watcher unless it was
// deactivated meanwhile. stopContract unwatches under the same lock, so a
// deactivation either lands before the check or after Watch.
func (s *IndexerService) watchIfRegistered(ctx context.Context, contract *entities.Contract, fromBlock int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.registry.Get(contract.Address) == nil {
		return false
	}
	s.watcher.Watch(ctx, contract, fromBlock)
	return true
}

// runDiscoveryLoop refreshes the registry whenever the chain height advances
func (s *IndexerService) runDiscoveryLoop(ctx context.Context) {
	defer s.wg.Done()

	interval := s.config.DiscoveryInterval
	if interval <= 0 {
		interval = 12 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastHeight uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		height, err := s.source.CurrentBlockHeight(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn("Failed to get block height for discovery", zap.Error(err))
			}
			continue
		}
		if height <= lastHeight {
			continue
		}
		lastHeight = height

		if err := s.discover(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("Contract discovery failed", zap.Error(err))
			continue
		}

		s.metricsMu.Lock()
		s.metrics.LastDiscoveryAt = time.Now()
		s.metrics.LastChainHeight = height
		s.metricsMu.Unlock()
	}
}

// discover starts new contracts and stops deactivated ones
func (s *IndexerService) discover(ctx context.Context) error {
	added, removed, err := s.registry.Refresh(ctx)
	if err != nil {
		return err
	}

	for _, c := range removed {
		s.stopContract(c)
	}

	for _, c := range added {
		s.logger.Info("Discovered contract",
			zap.String("contract", c.Address),
			zap.Int64("deployed_at_block", c.DeployedAtBlock),
		)

		c := c
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.syncContract(ctx, c)
		}()
	}

	return nil
}

func (s *IndexerService) stopContract(c *entities.Contract) {
	s.mu.Lock()
	if cancel, ok := s.syncing[c.ID]; ok {
		cancel()
	}
	s.watcher.Unwatch(c.ID)
	s.mu.Unlock()

	s.logger.Info("Contract deactivated", zap.String("contract", c.Address))
}

func (s *IndexerService) recordBackfill(err error) {
	s.metricsMu.Lock()
	defer s.metricsMu.Unlock()
	if err != nil {
		s.metrics.BackfillErrors++
		return
	}
	s.metrics.BackfillsCompleted++
}
