package alerting

import (
	"fmt"
	"time"

	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"

	"github.com/bimakw/equity-ledger/internal/config"
	"github.com/bimakw/equity-ledger/internal/domain/entities"
)

// Reporter receives ledger anomalies that were skipped during indexing
type Reporter interface {
	ReportInvariantViolation(contract *entities.Contract, event entities.LedgerEvent, err error)
	Flush(timeout time.Duration)
}

// NopReporter discards every report
type NopReporter struct{}

func (NopReporter) ReportInvariantViolation(*entities.Contract, entities.LedgerEvent, error) {}
func (NopReporter) Flush(time.Duration)                                                    {}

// SentryReporter sends anomalies to Sentry
type SentryReporter struct {
	hub    *sentry.Hub
	logger *zap.Logger
}

// NewReporter returns a Sentry backed reporter when a DSN is configured and a
// NopReporter otherwise
func NewReporter(cfg config.SentryConfig, logger *zap.Logger) (Reporter, error) {
	if cfg.DSN == "" {
		return NopReporter{}, nil
	}

	client, err := sentry.NewClient(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init sentry: %w", err)
	}

	logger.Info("Sentry reporting enabled", zap.String("environment", cfg.Environment))

	return &SentryReporter{
		hub:    sentry.NewHub(client, sentry.NewScope()),
		logger: logger,
	}, nil
}

// ReportInvariantViolation captures err tagged with the event position
func (r *SentryReporter) ReportInvariantViolation(contract *entities.Contract, event entities.LedgerEvent, err error) {
	r.hub.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("event_kind", string(event.Kind))
		if contract != nil {
			scope.SetTag("contract", contract.Address)
			scope.SetTag("chain_id", fmt.Sprint(contract.ChainID))
		}
		if meta := event.Meta(); meta != nil {
			scope.SetContext("event", map[string]interface{}{
				"block_number": meta.BlockNumber,
				"tx_hash":      meta.TxHash,
				"log_index":    meta.LogIndex,
			})
		}
		r.hub.CaptureException(err)
	})
}

// Flush waits for buffered events to be sent
func (r *SentryReporter) Flush(timeout time.Duration) {
	if !r.hub.Flush(timeout) {
		r.logger.Warn("Sentry flush timed out")
	}
}
