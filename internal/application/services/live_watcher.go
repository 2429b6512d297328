package services

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/bimakw/equity-ledger/internal/config"
	"github.com/bimakw/equity-ledger/internal/domain/entities"
	"github.com/bimakw/equity-ledger/internal/infrastructure/alerting"
	"github.com/bimakw/equity-ledger/internal/infrastructure/metrics"
)

var errWatcherStopped = errors.New("live watcher stopped")

// ledgerUpdate is one delivered event waiting for the applier. The poller
// waits on done so a failed apply is fetched again.
type ledgerUpdate struct {
	contract *entities.Contract
	event    entities.LedgerEvent
	done     chan error
}

// LiveWatcher keeps one subscription per (contract, kind) and feeds every
// delivered event through a single applier goroutine
type LiveWatcher struct {
	source  EventSource
	applier *eventApplier
	config  config.IndexerConfig
	logger  *zap.Logger

	updates chan ledgerUpdate
	stopCh  chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	subs    map[int64][]func()
	stopped bool
}

// NewLiveWatcher creates a new live watcher
func NewLiveWatcher(
	source EventSource,
	writer LedgerWriter,
	reporter alerting.Reporter,
	cfg config.IndexerConfig,
	logger *zap.Logger,
) *LiveWatcher {
	queueSize := cfg.UpdateQueueSize
	if queueSize <= 0 {
		queueSize = 1
	}

	return &LiveWatcher{
		source:  source,
		applier: newEventApplier(writer, reporter, logger),
		config:  cfg,
		logger:  logger,
		updates: make(chan ledgerUpdate, queueSize),
		stopCh:  make(chan struct{}),
		subs:    make(map[int64][]func()),
	}
}

// Start starts the applier goroutine
func (w *LiveWatcher) Start(ctx context.Context) {
	w.wg.Add(1)
	go w.runApplier(ctx)
}

// Stop cancels every subscription, then lets the applier finish what was
// already delivered
func (w *LiveWatcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	subs := w.subs
	w.subs = make(map[int64][]func())
	w.mu.Unlock()

	for _, unsubscribe := range subs {
		for _, fn := range unsubscribe {
			fn()
		}
	}

	close(w.stopCh)
	w.wg.Wait()
	metrics.WatchedContracts(0)
}

// Watch subscribes to every event kind of contract starting at fromBlock.
// Watching a contract twice is a no-op.
func (w *LiveWatcher) Watch(ctx context.Context, contract *entities.Contract, fromBlock int64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped || ctx.Err() != nil {
		return
	}
	if _, ok := w.subs[contract.ID]; ok {
		return
	}

	unsubscribes := make([]func(), 0, len(entities.BackfillOrder))
	for _, kind := range entities.BackfillOrder {
		unsubscribes = append(unsubscribes,
			w.source.SubscribeLogs(ctx, contract.Address, kind, fromBlock, w.deliver(contract)))
	}
	w.subs[contract.ID] = unsubscribes
	metrics.WatchedContracts(len(w.subs))

	w.logger.Info("Watching contract",
		zap.String("contract", contract.Address),
		zap.Int64("from_block", fromBlock),
	)
}

// Unwatch cancels the subscriptions of a contract
func (w *LiveWatcher) Unwatch(contractID int64) {
	w.mu.Lock()
	unsubscribes, ok := w.subs[contractID]
	delete(w.subs, contractID)
	n := len(w.subs)
	w.mu.Unlock()

	if !ok {
		return
	}
	for _, fn := range unsubscribes {
		fn()
	}
	metrics.WatchedContracts(n)

	w.logger.Info("Stopped watching contract", zap.Int64("contract_id", contractID))
}

// IsWatching reports whether the contract has live subscriptions
func (w *LiveWatcher) IsWatching(contractID int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.subs[contractID]
	return ok
}

// deliver returns the subscription callback for contract. It blocks until
// the applier has handled the event.
func (w *LiveWatcher) deliver(contract *entities.Contract) func(ctx context.Context, event entities.LedgerEvent) error {
	return func(ctx context.Context, event entities.LedgerEvent) error {
		u := ledgerUpdate{contract: contract, event: event, done: make(chan error, 1)}

		select {
		case w.updates <- u:
			metrics.UpdateQueueDepth(len(w.updates))
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			return errWatcherStopped
		}

		select {
		case err := <-u.done:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (w *LiveWatcher) runApplier(ctx context.Context) {
	defer w.wg.Done()

	// In-flight applies complete even after shutdown starts
	applyCtx := context.WithoutCancel(ctx)

	for {
		select {
		case u := <-w.updates:
			w.handle(applyCtx, u)
		case <-w.stopCh:
			for {
				select {
				case u := <-w.updates:
					w.handle(applyCtx, u)
				default:
					return
				}
			}
		}
	}
}

func (w *LiveWatcher) handle(ctx context.Context, u ledgerUpdate) {
	metrics.UpdateQueueDepth(len(w.updates))

	err := w.applier.apply(ctx, u.contract, u.event)
	if err != nil {
		w.logger.Warn("Live update failed, will be fetched again",
			zap.String("contract", u.contract.Address),
			zap.String("kind", string(u.event.Kind)),
			zap.Error(err),
		)
	}
	u.done <- err
}
