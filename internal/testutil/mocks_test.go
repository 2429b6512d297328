package testutil

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bimakw/equity-ledger/internal/domain/entities"
)

func TestFakeChain_GetLogs(t *testing.T) {
	chain := NewFakeChain(100)
	chain.Emit(TokenAddress,
		Mint(0, 20, 1, AliceAddress, 10),
		Mint(0, 10, 0, BobAddress, 5),
		AllowlistAdd(0, 15, 0, AliceAddress),
		Mint(0, 50, 0, BobAddress, 1),
	)
	chain.Emit(OtherToken, Mint(0, 12, 0, AliceAddress, 7))

	ctx := context.Background()

	events, err := chain.GetLogs(ctx, TokenAddress, entities.EventKindTransfer, 0, 30)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 transfers, got %d", len(events))
	}
	if b, _ := events[0].SortKey(); b != 10 {
		t.Errorf("expected events in block order, first at %d", b)
	}
	if events[0].Transfer.ContractAddress != TokenAddress {
		t.Errorf("expected contract address to be stamped, got %q", events[0].Transfer.ContractAddress)
	}

	events, err = chain.GetLogs(ctx, TokenAddress, entities.EventKindAllowlistAdd, 0, 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("expected 1 allowlist add, got %d", len(events))
	}

	if chain.GetLogCalls() != 2 {
		t.Errorf("expected 2 calls, got %d", chain.GetLogCalls())
	}
}

func TestFakeChain_SubscribeLogs(t *testing.T) {
	chain := NewFakeChain(10)
	chain.Emit(TokenAddress, Mint(0, 5, 0, AliceAddress, 1), Mint(0, 12, 0, BobAddress, 2))

	var mu sync.Mutex
	var seen []int64
	failed := false

	unsubscribe := chain.SubscribeLogs(context.Background(), TokenAddress, entities.EventKindTransfer, 6,
		func(_ context.Context, ev entities.LedgerEvent) error {
			mu.Lock()
			defer mu.Unlock()
			if !failed {
				failed = true
				return errors.New("transient")
			}
			b, _ := ev.SortKey()
			seen = append(seen, b)
			return nil
		})
	defer unsubscribe()

	chain.SetHeight(12)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 || seen[0] != 12 {
		t.Errorf("expected the block 12 event once after a retry, got %v", seen)
	}
}

func TestMockContractRepository(t *testing.T) {
	repo := NewMockContractRepository()
	ctx := context.Background()

	repo.AddContracts(
		CreateTestContract(),
		CreateTestContract(ContractWithAddress(OtherToken), ContractInactive()),
	)

	active, err := repo.ListActive(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(active) != 1 || active[0].Address != TokenAddress {
		t.Errorf("expected only the active contract, got %+v", active)
	}

	if err := repo.Create(ctx, CreateTestContract()); err == nil {
		t.Error("expected duplicate address to fail")
	}

	if err := repo.SetActive(ctx, active[0].ID, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	active, _ = repo.ListActive(ctx)
	if len(active) != 0 {
		t.Errorf("expected no active contracts, got %d", len(active))
	}

	if !errors.Is(repo.SetActive(ctx, 99, true), entities.ErrContractNotFound) {
		t.Error("expected ErrContractNotFound for an unknown id")
	}
}
