package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bimakw/equity-ledger/internal/domain/entities"
	"github.com/bimakw/equity-ledger/internal/testutil"
)

const (
	waitFor = 5 * time.Second
	tick    = 10 * time.Millisecond
)

func TestLiveWatcher_AppliesNewEvents(t *testing.T) {
	store, updater, c := newTrackedStore(t)
	chain := testutil.NewFakeChain(10)
	ctx := context.Background()

	watcher := NewLiveWatcher(chain, updater, nil, testIndexerConfig(), zap.NewNop())
	watcher.Start(ctx)
	defer watcher.Stop()

	watcher.Watch(ctx, c, 11)
	watcher.Watch(ctx, c, 11)
	assert.True(t, watcher.IsWatching(c.ID))

	chain.Emit(c.Address,
		// Already covered by the backfill
		testutil.Mint(c.ID, 9, 0, testutil.CharlieAddr, 1),
		testutil.Mint(c.ID, 12, 0, testutil.AliceAddress, 5),
		testutil.AllowlistAdd(c.ID, 12, 1, testutil.AliceAddress),
	)
	chain.SetHeight(12)

	require.Eventually(t, func() bool {
		return store.BalanceOf(t, c.ID, testutil.AliceAddress) == "5"
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		entries, err := store.Allowlist.List(ctx, c.ID)
		return err == nil && len(entries) == 1
	}, waitFor, tick)

	assert.Equal(t, "0", store.BalanceOf(t, c.ID, testutil.CharlieAddr))
	assert.Equal(t, int64(12), store.Cursor(t, c.ID).LastProcessedBlock)
}

func TestLiveWatcher_RetriesFailedApply(t *testing.T) {
	chain := testutil.NewFakeChain(11)
	ctx := context.Background()

	failed := false
	writer := &mockWriter{}
	writer.ApplyFunc = func(context.Context, entities.LedgerEvent) (ApplyResult, error) {
		if !failed {
			failed = true
			return ApplyResult{}, errors.New("database is locked")
		}
		return ApplyResult{Applied: true}, nil
	}

	c := testutil.CreateTestContract()
	c.ID = 1

	watcher := NewLiveWatcher(chain, writer, nil, testIndexerConfig(), zap.NewNop())
	watcher.Start(ctx)
	defer watcher.Stop()

	chain.Emit(c.Address, testutil.Mint(0, 11, 0, testutil.AliceAddress, 5))
	watcher.Watch(ctx, c, 11)

	require.Eventually(t, func() bool { return len(writer.applied()) >= 2 }, waitFor, tick)

	applied := writer.applied()
	assert.Equal(t, applied[0].Meta().TxHash, applied[1].Meta().TxHash)
	assert.Equal(t, c.ID, applied[1].Meta().ContractID)
}

func TestLiveWatcher_SkipsInvariantViolations(t *testing.T) {
	store, updater, c := newTrackedStore(t)
	chain := testutil.NewFakeChain(11)
	ctx := context.Background()

	watcher := NewLiveWatcher(chain, updater, nil, testIndexerConfig(), zap.NewNop())
	watcher.Start(ctx)
	defer watcher.Stop()

	chain.Emit(c.Address,
		testutil.Transfer(0, 11, 0, testutil.BobAddress, testutil.AliceAddress, 50),
		testutil.Mint(0, 11, 1, testutil.BobAddress, 7),
	)
	watcher.Watch(ctx, c, 11)

	require.Eventually(t, func() bool {
		return store.BalanceOf(t, c.ID, testutil.BobAddress) == "7"
	}, waitFor, tick)
	assert.Equal(t, "0", store.BalanceOf(t, c.ID, testutil.AliceAddress))
}

func TestLiveWatcher_Unwatch(t *testing.T) {
	store, updater, c := newTrackedStore(t)
	chain := testutil.NewFakeChain(10)
	ctx := context.Background()

	watcher := NewLiveWatcher(chain, updater, nil, testIndexerConfig(), zap.NewNop())
	watcher.Start(ctx)

	watcher.Watch(ctx, c, 11)
	watcher.Unwatch(c.ID)
	assert.False(t, watcher.IsWatching(c.ID))

	chain.Emit(c.Address, testutil.Mint(0, 11, 0, testutil.AliceAddress, 5))
	chain.SetHeight(11)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, "0", store.BalanceOf(t, c.ID, testutil.AliceAddress))

	watcher.Stop()
	watcher.Stop()

	// Watching after Stop does nothing
	watcher.Watch(ctx, c, 11)
	assert.False(t, watcher.IsWatching(c.ID))
}
