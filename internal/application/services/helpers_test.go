package services

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bimakw/equity-ledger/internal/domain/entities"
	"github.com/bimakw/equity-ledger/internal/testutil"
)

// mockWriter records every write and reports events applied unless a hook
// says otherwise
type mockWriter struct {
	mu sync.Mutex

	ApplyFunc            func(ctx context.Context, event entities.LedgerEvent) (ApplyResult, error)
	TrackFunc            func(ctx context.Context, contract *entities.Contract) error
	BeginBackfillFunc    func(ctx context.Context, contractID, from, to int64) error
	CompleteBackfillFunc func(ctx context.Context, contractID, head int64) error
	EndBackfillFunc      func(ctx context.Context, contractID int64) error

	Calls []testutil.MockCall
}

var _ LedgerWriter = (*mockWriter)(nil)

func (m *mockWriter) record(method string, args ...interface{}) {
	m.mu.Lock()
	m.Calls = append(m.Calls, testutil.MockCall{Method: method, Args: args})
	m.mu.Unlock()
}

func (m *mockWriter) methods() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.Calls))
	for i, c := range m.Calls {
		out[i] = c.Method
	}
	return out
}

func (m *mockWriter) applied() []entities.LedgerEvent {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []entities.LedgerEvent
	for _, c := range m.Calls {
		if c.Method == "Apply" {
			out = append(out, c.Args[0].(entities.LedgerEvent))
		}
	}
	return out
}

func (m *mockWriter) Apply(ctx context.Context, event entities.LedgerEvent) (ApplyResult, error) {
	m.record("Apply", event)
	if m.ApplyFunc != nil {
		return m.ApplyFunc(ctx, event)
	}
	return ApplyResult{Applied: true}, nil
}

func (m *mockWriter) Track(ctx context.Context, contract *entities.Contract) error {
	m.record("Track", contract.ID)
	if m.TrackFunc != nil {
		return m.TrackFunc(ctx, contract)
	}
	return nil
}

func (m *mockWriter) BeginBackfill(ctx context.Context, contractID, from, to int64) error {
	m.record("BeginBackfill", contractID, from, to)
	if m.BeginBackfillFunc != nil {
		return m.BeginBackfillFunc(ctx, contractID, from, to)
	}
	return nil
}

func (m *mockWriter) CompleteBackfill(ctx context.Context, contractID, head int64) error {
	m.record("CompleteBackfill", contractID, head)
	if m.CompleteBackfillFunc != nil {
		return m.CompleteBackfillFunc(ctx, contractID, head)
	}
	return nil
}

func (m *mockWriter) EndBackfill(ctx context.Context, contractID int64) error {
	m.record("EndBackfill", contractID)
	if m.EndBackfillFunc != nil {
		return m.EndBackfillFunc(ctx, contractID)
	}
	return nil
}

// newTrackedStore returns a store holding one tracked contract and an
// updater writing to it
func newTrackedStore(t *testing.T, opts ...testutil.ContractOption) (*testutil.TestStore, *LedgerUpdater, *entities.Contract) {
	t.Helper()

	store := testutil.NewTestStore(t, "ledger")
	contract := store.AddContract(t, opts...)
	updater := NewLedgerUpdater(store.Ledger, store.Cursors, zap.NewNop())
	require.NoError(t, updater.Track(context.Background(), contract))
	return store, updater, contract
}

// mustApply applies events in order and fails on any error
func mustApply(t *testing.T, w LedgerWriter, events ...entities.LedgerEvent) {
	t.Helper()
	for _, ev := range events {
		_, err := w.Apply(context.Background(), ev)
		require.NoError(t, err)
	}
}
