package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/equity-ledger/internal/config"
	"github.com/bimakw/equity-ledger/internal/domain/entities"
	"github.com/bimakw/equity-ledger/internal/domain/repositories"
	"github.com/bimakw/equity-ledger/internal/infrastructure/alerting"
	"github.com/bimakw/equity-ledger/internal/infrastructure/ethereum"
	"github.com/bimakw/equity-ledger/internal/infrastructure/metrics"
)

const endBackfillTimeout = 10 * time.Second

// BackfillService drains the historical gap of a contract between its
// cursor and the confirmed chain head
type BackfillService struct {
	source  EventSource
	cursors repositories.CursorRepository
	writer  LedgerWriter
	applier *eventApplier
	config  config.IndexerConfig
	logger  *zap.Logger
}

// NewBackfillService creates a new backfill service
func NewBackfillService(
	source EventSource,
	cursors repositories.CursorRepository,
	writer LedgerWriter,
	reporter alerting.Reporter,
	cfg config.IndexerConfig,
	logger *zap.Logger,
) *BackfillService {
	return &BackfillService{
		source:  source,
		cursors: cursors,
		writer:  writer,
		applier: newEventApplier(writer, reporter, logger),
		config:  cfg,
		logger:  logger,
	}
}

// Backfill runs one pass for contract and returns the last block it covered.
// Live watching resumes at the returned block plus one.
func (s *BackfillService) Backfill(ctx context.Context, contract *entities.Contract) (int64, error) {
	height, err := s.source.CurrentBlockHeight(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get block height: %w", err)
	}
	head := ethereum.SafeHead(height, s.config.BlockConfirmations)

	// Track is idempotent and runs on every pass so a store that joined
	// after the primary, such as a newly enabled mirror, gets the contract
	if err := s.writer.Track(ctx, contract); err != nil {
		return 0, fmt.Errorf("failed to track contract: %w", err)
	}

	cursor, err := s.cursors.Get(ctx, contract.ID)
	if err != nil {
		return 0, err
	}
	if cursor == nil {
		return 0, fmt.Errorf("cursor for contract %d missing after tracking", contract.ID)
	}

	from := cursor.NextBlock(contract.StartBlock(), s.config.ResumeOverlap)
	if from > head {
		s.logger.Debug("Contract is up to date",
			zap.String("contract", contract.Address),
			zap.Int64("last_processed_block", cursor.LastProcessedBlock),
			zap.Int64("head", head),
		)
		return head, nil
	}

	if err := s.run(ctx, contract, from, head); err != nil {
		metrics.BackfillFailed()
		return 0, err
	}
	return head, nil
}

func (s *BackfillService) run(ctx context.Context, contract *entities.Contract, from, head int64) (err error) {
	s.logger.Info("Starting backfill",
		zap.String("contract", contract.Address),
		zap.Int64("from_block", from),
		zap.Int64("to_block", head),
	)
	start := time.Now()

	if err := s.writer.BeginBackfill(ctx, contract.ID, from, head); err != nil {
		return fmt.Errorf("failed to begin backfill: %w", err)
	}

	defer func() {
		endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), endBackfillTimeout)
		defer cancel()

		if endErr := s.writer.EndBackfill(endCtx, contract.ID); endErr != nil {
			s.logger.Error("Failed to clear syncing flag",
				zap.String("contract", contract.Address),
				zap.Error(endErr),
			)
			if err == nil {
				err = fmt.Errorf("failed to end backfill: %w", endErr)
			}
		}
	}()

	var events int
	for _, kind := range entities.BackfillOrder {
		for _, r := range ethereum.SplitBlockRange(from, head, s.batchSize()) {
			batch, err := s.source.GetLogs(ctx, contract.Address, kind, r.From, r.To)
			if err != nil {
				return fmt.Errorf("failed to fetch %s logs [%d, %d]: %w", kind, r.From, r.To, err)
			}
			ethereum.SortEvents(batch)

			for _, ev := range batch {
				if err := s.applier.apply(ctx, contract, ev); err != nil {
					return err
				}
			}
			events += len(batch)
		}
	}

	if err := s.writer.CompleteBackfill(ctx, contract.ID, head); err != nil {
		return fmt.Errorf("failed to complete backfill: %w", err)
	}

	elapsed := time.Since(start)
	metrics.BackfillDuration(elapsed)
	metrics.LastProcessedBlock(contract.Address, head)

	s.logger.Info("Backfill completed",
		zap.String("contract", contract.Address),
		zap.Int64("from_block", from),
		zap.Int64("to_block", head),
		zap.Int("events", events),
		zap.Duration("duration", elapsed),
	)
	return nil
}

func (s *BackfillService) batchSize() int {
	if s.config.BackfillBatchSize > 0 {
		return s.config.BackfillBatchSize
	}
	return 2000
}
