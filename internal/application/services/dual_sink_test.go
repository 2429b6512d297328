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

func TestDualSink_MirrorsAppliedWrites(t *testing.T) {
	primary := &mockWriter{}
	mirror := &mockWriter{}
	seen := map[string]bool{}
	primary.ApplyFunc = func(_ context.Context, ev entities.LedgerEvent) (ApplyResult, error) {
		key := ev.Meta().TxHash
		if seen[key] {
			return ApplyResult{}, nil
		}
		seen[key] = true
		return ApplyResult{Applied: true}, nil
	}

	sink := NewDualSink(primary, mirror, 16, zap.NewNop())
	ctx := context.Background()
	c := testutil.CreateTestContract()
	c.ID = 1

	require.NoError(t, sink.Track(ctx, c))
	require.NoError(t, sink.BeginBackfill(ctx, 1, 1, 10))
	mustApply(t, sink,
		testutil.Mint(1, 2, 0, testutil.AliceAddress, 1),
		testutil.Mint(1, 2, 0, testutil.AliceAddress, 1),
		testutil.Mint(1, 3, 0, testutil.BobAddress, 1),
	)
	require.NoError(t, sink.CompleteBackfill(ctx, 1, 10))
	require.NoError(t, sink.EndBackfill(ctx, 1))
	sink.Close()

	assert.Equal(t, []string{"Track", "BeginBackfill", "Apply", "Apply", "CompleteBackfill", "EndBackfill"}, mirror.methods())
	assert.Len(t, primary.applied(), 3)
	assert.Len(t, mirror.applied(), 2)
}

func TestDualSink_MirrorFailureDoesNotFailPrimary(t *testing.T) {
	primary := &mockWriter{}
	mirror := &mockWriter{
		ApplyFunc: func(context.Context, entities.LedgerEvent) (ApplyResult, error) {
			return ApplyResult{}, errors.New("mirror down")
		},
		TrackFunc: func(context.Context, *entities.Contract) error {
			return errors.New("mirror down")
		},
	}

	sink := NewDualSink(primary, mirror, 4, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, sink.Track(ctx, testutil.CreateTestContract()))
	result, err := sink.Apply(ctx, testutil.Mint(1, 2, 0, testutil.AliceAddress, 1))
	require.NoError(t, err)
	assert.True(t, result.Applied)

	sink.Close()
	assert.Len(t, mirror.applied(), 1)
}

func TestDualSink_PrimaryErrorIsNotMirrored(t *testing.T) {
	boom := errors.New("primary down")
	primary := &mockWriter{
		ApplyFunc: func(context.Context, entities.LedgerEvent) (ApplyResult, error) {
			return ApplyResult{}, boom
		},
		BeginBackfillFunc: func(context.Context, int64, int64, int64) error { return boom },
	}
	mirror := &mockWriter{}

	sink := NewDualSink(primary, mirror, 4, zap.NewNop())
	ctx := context.Background()

	_, err := sink.Apply(ctx, testutil.Mint(1, 2, 0, testutil.AliceAddress, 1))
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, sink.BeginBackfill(ctx, 1, 1, 2), boom)

	sink.Close()
	assert.Empty(t, mirror.methods())
}

func TestDualSink_DropsWhenQueueIsFull(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})

	mirror := &mockWriter{
		ApplyFunc: func(context.Context, entities.LedgerEvent) (ApplyResult, error) {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-release
			return ApplyResult{Applied: true}, nil
		},
	}

	sink := NewDualSink(&mockWriter{}, mirror, 1, zap.NewNop())

	mustApply(t, sink, testutil.Mint(1, 2, 0, testutil.AliceAddress, 1))
	<-entered

	// One slot is free while the follower is busy
	mustApply(t, sink,
		testutil.Mint(1, 3, 0, testutil.AliceAddress, 1),
		testutil.Mint(1, 4, 0, testutil.AliceAddress, 1),
	)

	close(release)
	sink.Close()

	assert.Len(t, mirror.applied(), 2)
}

func TestDualSink_ResendsDroppedTrack(t *testing.T) {
	entered := make(chan struct{}, 1)
	release := make(chan struct{})

	mirror := &mockWriter{
		ApplyFunc: func(context.Context, entities.LedgerEvent) (ApplyResult, error) {
			select {
			case entered <- struct{}{}:
			default:
			}
			<-release
			return ApplyResult{Applied: true}, nil
		},
	}

	sink := NewDualSink(&mockWriter{}, mirror, 2, zap.NewNop())
	ctx := context.Background()

	mustApply(t, sink, testutil.Mint(1, 2, 0, testutil.AliceAddress, 1))
	<-entered
	mustApply(t, sink,
		testutil.Mint(1, 3, 0, testutil.AliceAddress, 1),
		testutil.Mint(1, 4, 0, testutil.AliceAddress, 1),
	)

	// Queue is full, so the track op of contract 2 is dropped
	require.NoError(t, sink.Track(ctx, &entities.Contract{ID: 2, Address: testutil.OtherToken}))

	close(release)
	require.Eventually(t, func() bool { return len(mirror.applied()) == 3 }, time.Second, 5*time.Millisecond)

	mustApply(t, sink, testutil.Mint(2, 5, 0, testutil.BobAddress, 7))
	sink.Close()

	methods := mirror.methods()
	assert.Equal(t, []string{"Apply", "Apply", "Apply", "Track", "Apply"}, methods)
	assert.Equal(t, int64(2), mirror.Calls[3].Args[0])
}

func TestDualSink_CloseRejectsLateWrites(t *testing.T) {
	mirror := &mockWriter{}
	sink := NewDualSink(&mockWriter{}, mirror, 4, zap.NewNop())
	sink.Close()
	sink.Close()

	result, err := sink.Apply(context.Background(), testutil.Mint(1, 2, 0, testutil.AliceAddress, 1))
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Empty(t, mirror.methods())
}

func TestDualSink_Stores(t *testing.T) {
	primaryStore := testutil.NewTestStore(t, "primary")
	mirrorStore := testutil.NewTestStore(t, "mirror")
	ctx := context.Background()

	c := primaryStore.AddContract(t)
	sink := NewDualSink(
		NewLedgerUpdater(primaryStore.Ledger, primaryStore.Cursors, zap.NewNop()),
		NewMirrorUpdater(mirrorStore.Ledger, mirrorStore.Cursors, mirrorStore.Contracts, zap.NewNop()),
		64,
		zap.NewNop(),
	)

	require.NoError(t, sink.Track(ctx, c))
	require.NoError(t, sink.BeginBackfill(ctx, c.ID, 1, 10))
	mustApply(t, sink,
		testutil.Mint(c.ID, 2, 0, testutil.AliceAddress, 100),
		testutil.Transfer(c.ID, 3, 0, testutil.AliceAddress, testutil.BobAddress, 25),
		testutil.AllowlistAdd(c.ID, 4, 0, testutil.BobAddress),
	)
	require.NoError(t, sink.CompleteBackfill(ctx, c.ID, 10))
	require.NoError(t, sink.EndBackfill(ctx, c.ID))
	sink.Close()

	for _, addr := range []string{testutil.AliceAddress, testutil.BobAddress} {
		assert.Equal(t, primaryStore.BalanceOf(t, c.ID, addr), mirrorStore.BalanceOf(t, c.ID, addr), addr)
	}

	cursor := mirrorStore.Cursor(t, c.ID)
	assert.Equal(t, int64(10), cursor.LastProcessedBlock)
	assert.False(t, cursor.IsSyncing)

	entries, err := mirrorStore.Allowlist.List(ctx, c.ID)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].IsAllowlisted)
}
