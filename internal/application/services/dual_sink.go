package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bimakw/equity-ledger/internal/domain/entities"
	"github.com/bimakw/equity-ledger/internal/infrastructure/metrics"
)

const mirrorWriteTimeout = 30 * time.Second

var _ LedgerWriter = (*DualSink)(nil)

type mirrorOp struct {
	name       string
	contractID int64
	apply      func(ctx context.Context, w LedgerWriter) error
}

// DualSink writes to the primary store and, after each primary write that
// changed state, replays the same operation on the mirror from a single
// follower goroutine. The mirror never fails or slows the primary.
type DualSink struct {
	primary LedgerWriter
	mirror  LedgerWriter
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan mirrorOp
	done   chan struct{}

	// track ops not yet queued; a dropped one is resent before the
	// contract's next mirrored write
	pendingMu    sync.Mutex
	pendingTrack map[int64]entities.Contract
}

// NewDualSink starts the mirror follower
func NewDualSink(primary, mirror LedgerWriter, queueSize int, logger *zap.Logger) *DualSink {
	if queueSize <= 0 {
		queueSize = 1
	}

	d := &DualSink{
		primary: primary,
		mirror:  mirror,
		logger:  logger,
		queue:   make(chan mirrorOp, queueSize),
		done:    make(chan struct{}),

		pendingTrack: make(map[int64]entities.Contract),
	}

	go d.follow()

	return d
}

// Apply writes to the primary and mirrors the event when it was applied
func (d *DualSink) Apply(ctx context.Context, event entities.LedgerEvent) (ApplyResult, error) {
	result, err := d.primary.Apply(ctx, event)
	if err != nil || !result.Applied {
		return result, err
	}

	contractID := int64(0)
	if meta := event.Meta(); meta != nil {
		contractID = meta.ContractID
	}

	d.enqueue(mirrorOp{
		name:       "apply_" + string(event.Kind),
		contractID: contractID,
		apply: func(ctx context.Context, w LedgerWriter) error {
			_, err := w.Apply(ctx, event)
			return err
		},
	})
	return result, nil
}

// Track tracks the contract on both stores
func (d *DualSink) Track(ctx context.Context, contract *entities.Contract) error {
	if err := d.primary.Track(ctx, contract); err != nil {
		return err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(trackMirrorOp(*contract), "mirror closed")
		return nil
	}

	d.pendingMu.Lock()
	d.pendingTrack[contract.ID] = *contract
	d.pendingMu.Unlock()

	d.queueTrack(contract.ID)
	return nil
}

func trackMirrorOp(c entities.Contract) mirrorOp {
	return mirrorOp{
		name:       "track",
		contractID: c.ID,
		apply: func(ctx context.Context, w LedgerWriter) error {
			return w.Track(ctx, &c)
		},
	}
}

// queueTrack queues the pending track op of a contract, if any. A dropped
// track op stays pending and reports false.
func (d *DualSink) queueTrack(contractID int64) bool {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	c, ok := d.pendingTrack[contractID]
	if !ok {
		return true
	}

	op := trackMirrorOp(c)
	if !d.push(op) {
		d.drop(op, "mirror queue full")
		return false
	}
	delete(d.pendingTrack, contractID)
	return true
}

// BeginBackfill brackets the pass on both stores
func (d *DualSink) BeginBackfill(ctx context.Context, contractID, from, to int64) error {
	if err := d.primary.BeginBackfill(ctx, contractID, from, to); err != nil {
		return err
	}

	d.enqueue(mirrorOp{
		name:       "begin_backfill",
		contractID: contractID,
		apply: func(ctx context.Context, w LedgerWriter) error {
			return w.BeginBackfill(ctx, contractID, from, to)
		},
	})
	return nil
}

// CompleteBackfill completes the pass on both stores
func (d *DualSink) CompleteBackfill(ctx context.Context, contractID, head int64) error {
	if err := d.primary.CompleteBackfill(ctx, contractID, head); err != nil {
		return err
	}

	d.enqueue(mirrorOp{
		name:       "complete_backfill",
		contractID: contractID,
		apply: func(ctx context.Context, w LedgerWriter) error {
			return w.CompleteBackfill(ctx, contractID, head)
		},
	})
	return nil
}

// EndBackfill clears the syncing flag on both stores
func (d *DualSink) EndBackfill(ctx context.Context, contractID int64) error {
	if err := d.primary.EndBackfill(ctx, contractID); err != nil {
		return err
	}

	d.enqueue(mirrorOp{
		name:       "end_backfill",
		contractID: contractID,
		apply: func(ctx context.Context, w LedgerWriter) error {
			return w.EndBackfill(ctx, contractID)
		},
	})
	return nil
}

// enqueue queues op for the mirror behind any track op still pending for
// the same contract
func (d *DualSink) enqueue(op mirrorOp) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(op, "mirror closed")
		return
	}

	if !d.queueTrack(op.contractID) || !d.push(op) {
		d.drop(op, "mirror queue full")
	}
}

func (d *DualSink) push(op mirrorOp) bool {
	select {
	case d.queue <- op:
		metrics.MirrorQueueDepth(len(d.queue))
		return true
	default:
		return false
	}
}

func (d *DualSink) drop(op mirrorOp, reason string) {
	metrics.MirrorDropped()
	d.logger.Warn("Dropped mirror write",
		zap.String("op", op.name),
		zap.Int64("contract_id", op.contractID),
		zap.String("reason", reason),
	)
}

// follow applies queued operations to the mirror in enqueue order
func (d *DualSink) follow() {
	defer close(d.done)

	for op := range d.queue {
		metrics.MirrorQueueDepth(len(d.queue))

		ctx, cancel := context.WithTimeout(context.Background(), mirrorWriteTimeout)
		err := op.apply(ctx, d.mirror)
		cancel()

		if err != nil {
			metrics.MirrorWrite(metrics.ResultError)
			d.logger.Error("Mirror write failed",
				zap.String("op", op.name),
				zap.Int64("contract_id", op.contractID),
				zap.Error(err),
			)
			continue
		}
		metrics.MirrorWrite(metrics.ResultOK)
	}
}

// Close stops accepting mirror writes and waits for the queue to drain
func (d *DualSink) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.logger.Info("Draining mirror queue", zap.Int("pending", len(d.queue)))
	<-d.done
}
