package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/equity-ledger/internal/domain/entities"
	"github.com/bimakw/equity-ledger/internal/infrastructure/alerting"
	"github.com/bimakw/equity-ledger/internal/infrastructure/metrics"
)

// EventSource is the chain side the indexer reads from.
// *ethereum.EventSource implements it.
type EventSource interface {
	GetLogs(ctx context.Context, address string, kind entities.EventKind, from, to int64) ([]entities.LedgerEvent, error)
	SubscribeLogs(ctx context.Context, address string, kind entities.EventKind, fromBlock int64,
		onLog func(ctx context.Context, event entities.LedgerEvent) error) func()
	GetBlockTimestamp(ctx context.Context, block int64) (time.Time, error)
	CurrentBlockHeight(ctx context.Context) (uint64, error)
}

// eventApplier applies events for the backfill and live paths. Ledger
// invariant violations are reported and skipped; any other error is returned.
type eventApplier struct {
	writer   LedgerWriter
	reporter alerting.Reporter
	logger   *zap.Logger
}

func newEventApplier(writer LedgerWriter, reporter alerting.Reporter, logger *zap.Logger) *eventApplier {
	if reporter == nil {
		reporter = alerting.NopReporter{}
	}
	return &eventApplier{writer: writer, reporter: reporter, logger: logger}
}

func (a *eventApplier) apply(ctx context.Context, contract *entities.Contract, event entities.LedgerEvent) error {
	event = event.WithContract(contract.ID)
	kind := string(event.Kind)

	result, err := a.writer.Apply(ctx, event)
	if err != nil {
		if errors.Is(err, entities.ErrLedgerInvariant) || errors.Is(err, entities.ErrInvalidEvent) {
			metrics.EventApplied(kind, metrics.ResultSkipped)
			metrics.InvariantViolation(contract.Address, kind)
			a.reporter.ReportInvariantViolation(contract, event, err)

			fields := []zap.Field{
				zap.String("contract", contract.Address),
				zap.String("kind", kind),
				zap.Error(err),
			}
			if meta := event.Meta(); meta != nil {
				fields = append(fields,
					zap.Int64("block", meta.BlockNumber),
					zap.String("tx_hash", meta.TxHash),
					zap.Int("log_index", meta.LogIndex),
				)
			}
			a.logger.Error("Skipping event that violates ledger invariants", fields...)
			return nil
		}

		metrics.EventApplied(kind, metrics.ResultError)
		return fmt.Errorf("failed to apply %s event: %w", kind, err)
	}

	if result.Applied {
		metrics.EventApplied(kind, metrics.ResultApplied)
		if meta := event.Meta(); meta != nil {
			metrics.LastProcessedBlock(contract.Address, meta.BlockNumber)
		}
	} else {
		metrics.EventApplied(kind, metrics.ResultDuplicate)
	}
	return nil
}
