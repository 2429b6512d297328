package ethereum

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bimakw/equity-ledger/internal/config"
	"github.com/bimakw/equity-ledger/internal/domain/entities"
	"github.com/bimakw/equity-ledger/internal/infrastructure/metrics"
)

// EventSource reads and polls equity token events from the chain
type EventSource struct {
	client  *Client
	decoder *Decoder
	config  config.IndexerConfig
	logger  *zap.Logger
}

// NewEventSource creates a new event source
func NewEventSource(client *Client, decoder *Decoder, cfg config.IndexerConfig, logger *zap.Logger) *EventSource {
	return &EventSource{
		client:  client,
		decoder: decoder,
		config:  cfg,
		logger:  logger,
	}
}

// CurrentBlockHeight returns the latest block number
func (s *EventSource) CurrentBlockHeight(ctx context.Context) (uint64, error) {
	return s.client.GetLatestBlockNumber(ctx)
}

// GetBlockTimestamp returns the timestamp of a block
func (s *EventSource) GetBlockTimestamp(ctx context.Context, block int64) (time.Time, error) {
	return s.client.GetBlockTimestamp(ctx, uint64(block))
}

// GetLogs returns the decoded events of one kind emitted by address in
// [from, to], sorted by (block, logIndex). Logs that fail to decode are
// logged and dropped.
func (s *EventSource) GetLogs(ctx context.Context, address string, kind entities.EventKind, from, to int64) ([]entities.LedgerEvent, error) {
	topic, err := TopicForKind(kind)
	if err != nil {
		return nil, err
	}

	logs, err := s.client.GetLogs(ctx, BuildFilterQuery(from, to, common.HexToAddress(address), topic))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s logs: %w", kind, err)
	}
	if len(logs) == 0 {
		return nil, nil
	}

	blockNumbers := make(map[uint64]struct{})
	for _, log := range logs {
		blockNumbers[log.BlockNumber] = struct{}{}
	}

	timestamps, err := s.fetchBlockTimestamps(ctx, blockNumbers)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch block timestamps: %w", err)
	}

	events := make([]entities.LedgerEvent, 0, len(logs))
	for _, log := range logs {
		if log.Removed {
			continue
		}
		ev, err := s.decoder.Decode(kind, log, timestamps[log.BlockNumber])
		if err != nil {
			s.logger.Warn("Failed to decode log",
				zap.String("contract", address),
				zap.String("kind", string(kind)),
				zap.String("tx_hash", log.TxHash.Hex()),
				zap.Uint("log_index", log.Index),
				zap.Error(err),
			)
			continue
		}
		events = append(events, ev)
	}

	SortEvents(events)

	s.logger.Debug("Fetched logs",
		zap.String("contract", address),
		zap.String("kind", string(kind)),
		zap.Int64("from_block", from),
		zap.Int64("to_block", to),
		zap.Int("count", len(events)),
	)

	return events, nil
}

// SubscribeLogs polls for new events of one kind starting at fromBlock and
// hands each one to onLog in delivery order. A failed poll or a handler
// error leaves the position unchanged so the range is fetched again on the
// next tick. The returned function stops polling and waits for it to exit.
func (s *EventSource) SubscribeLogs(
	ctx context.Context,
	address string,
	kind entities.EventKind,
	fromBlock int64,
	onLog func(ctx context.Context, event entities.LedgerEvent) error,
) func() {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		interval := s.config.PollInterval
		if interval <= 0 {
			interval = 4 * time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		next := fromBlock
		for {
			next = s.poll(ctx, address, kind, next, onLog)

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}

// poll delivers everything in [next, safe head] and returns the new position
func (s *EventSource) poll(
	ctx context.Context,
	address string,
	kind entities.EventKind,
	next int64,
	onLog func(ctx context.Context, event entities.LedgerEvent) error,
) int64 {
	head, err := s.SafeBlockHeight(ctx)
	if err != nil {
		if ctx.Err() == nil {
			metrics.PollError(string(kind))
			s.logger.Warn("Failed to get safe block height", zap.String("kind", string(kind)), zap.Error(err))
		}
		return next
	}

	for _, r := range SplitBlockRange(next, head, s.batchSize()) {
		events, err := s.GetLogs(ctx, address, kind, r.From, r.To)
		if err != nil {
			if ctx.Err() == nil {
				metrics.PollError(string(kind))
				s.logger.Warn("Failed to poll logs",
					zap.String("contract", address),
					zap.String("kind", string(kind)),
					zap.Int64("from_block", r.From),
					zap.Int64("to_block", r.To),
					zap.Error(err),
				)
			}
			return next
		}

		for _, ev := range events {
			if err := onLog(ctx, ev); err != nil {
				return next
			}
		}
		next = r.To + 1
	}

	return next
}

// SafeBlockHeight returns the latest block number minus confirmations
func (s *EventSource) SafeBlockHeight(ctx context.Context) (int64, error) {
	latest, err := s.client.GetLatestBlockNumber(ctx)
	if err != nil {
		return 0, err
	}
	return SafeHead(latest, s.config.BlockConfirmations), nil
}

func (s *EventSource) batchSize() int {
	if s.config.BackfillBatchSize > 0 {
		return s.config.BackfillBatchSize
	}
	return 2000
}

// fetchBlockTimestamps fetches timestamps for multiple blocks concurrently
func (s *EventSource) fetchBlockTimestamps(ctx context.Context, blockNumbers map[uint64]struct{}) (map[uint64]time.Time, error) {
	timestamps := make(map[uint64]time.Time, len(blockNumbers))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.config.WorkerCount, 1))

	for blockNum := range blockNumbers {
		blockNum := blockNum
		g.Go(func() error {
			ts, err := s.client.GetBlockTimestamp(ctx, blockNum)
			if err != nil {
				return err
			}

			mu.Lock()
			timestamps[blockNum] = ts
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return timestamps, nil
}

// SafeHead returns height minus confirmations, floored at zero
func SafeHead(height uint64, confirmations int) int64 {
	safe := int64(height) - int64(confirmations)
	if safe < 0 {
		return 0
	}
	return safe
}

// SortEvents orders events by (block, logIndex)
func SortEvents(events []entities.LedgerEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		bi, li := events[i].SortKey()
		bj, lj := events[j].SortKey()
		if bi != bj {
			return bi < bj
		}
		return li < lj
	})
}

// BlockRange represents a range of blocks to fetch
type BlockRange struct {
	From int64
	To   int64
}

// SplitBlockRange splits [fromBlock, toBlock] into batches of at most batchSize blocks
func SplitBlockRange(fromBlock, toBlock int64, batchSize int) []BlockRange {
	if fromBlock > toBlock || batchSize <= 0 {
		return nil
	}

	var ranges []BlockRange
	for current := fromBlock; current <= toBlock; current += int64(batchSize) {
		end := current + int64(batchSize) - 1
		if end > toBlock {
			end = toBlock
		}
		ranges = append(ranges, BlockRange{From: current, To: end})
	}

	return ranges
}
