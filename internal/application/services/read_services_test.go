package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bimakw/equity-ledger/internal/config"
	"github.com/bimakw/equity-ledger/internal/domain/entities"
	"github.com/bimakw/equity-ledger/internal/infrastructure/ethereum"
	"github.com/bimakw/equity-ledger/internal/testutil"
)

func TestActivityService_GetRecentActivity(t *testing.T) {
	store, updater, c := newTrackedStore(t)
	ctx := context.Background()

	mustApply(t, updater,
		testutil.Mint(c.ID, 2, 0, testutil.AliceAddress, 100),
		testutil.AllowlistAdd(c.ID, 3, 0, testutil.AliceAddress),
		testutil.StockSplit(c.ID, 4, 0, 2, 200),
		testutil.Mint(c.ID, 4, 1, testutil.AliceAddress, 100),
		testutil.MetadataChange(c.ID, 5, 0, "Acme Common", "Acme Holdings", "ACME", "ACMH"),
		testutil.Buyback(c.ID, 6, 0, testutil.AliceAddress, 10),
		testutil.Transfer(c.ID, 6, 1, testutil.AliceAddress, entities.ZeroAddress, 10),
		testutil.AllowlistRemove(c.ID, 7, 0, testutil.AliceAddress),
	)

	svc := NewActivityService(store.Contracts, store.Transfers, store.Allowlist, store.Actions,
		config.APIConfig{MaxActivityLimit: 5}, zap.NewNop())

	t.Run("all kinds newest first", func(t *testing.T) {
		resp, err := svc.GetRecentActivity(ctx, testutil.TokenAddress, nil, 0)
		require.NoError(t, err)
		require.NotNil(t, resp)

		// Capped by MaxActivityLimit
		require.Len(t, resp.Data, 5)

		var kinds []entities.EventKind
		for _, ev := range resp.Data {
			kinds = append(kinds, ev.Kind)
		}
		assert.Equal(t, []entities.EventKind{
			entities.EventKindAllowlistRemove,
			entities.EventKindTransfer,
			entities.EventKindBuyback,
			entities.EventKindMetadataChange,
			entities.EventKindTransfer,
		}, kinds)

		assert.Equal(t, int64(7), resp.Data[0].BlockNumber)
		assert.Equal(t, testutil.AliceAddress, resp.Data[0].Address)
		assert.Equal(t, testutil.TxHash(7, 0), resp.Data[0].TxHash)
		assert.Equal(t, "Acme Holdings", resp.Data[3].Details["new_name"])
	})

	t.Run("filtered by kind", func(t *testing.T) {
		kind := entities.EventKindTransfer
		resp, err := svc.GetRecentActivity(ctx, testutil.TokenAddress, &kind, 2)
		require.NoError(t, err)
		require.Len(t, resp.Data, 2)
		for _, ev := range resp.Data {
			assert.Equal(t, entities.EventKindTransfer, ev.Kind)
		}
		assert.Equal(t, "10", resp.Data[0].Amount)
	})

	t.Run("split details", func(t *testing.T) {
		kind := entities.EventKindStockSplit
		resp, err := svc.GetRecentActivity(ctx, testutil.TokenAddress, &kind, 10)
		require.NoError(t, err)
		require.Len(t, resp.Data, 1)
		assert.Equal(t, "2", resp.Data[0].Details["multiplier"])
	})

	t.Run("unknown contract", func(t *testing.T) {
		resp, err := svc.GetRecentActivity(ctx, testutil.OtherToken, nil, 10)
		require.NoError(t, err)
		assert.Nil(t, resp)
	})
}

func TestStatusService_GetIndexerStatus(t *testing.T) {
	store := testutil.NewTestStore(t, "status")
	ctx := context.Background()
	svc := NewStatusService(store.Contracts, store.Cursors, zap.NewNop())

	resp, err := svc.GetIndexerStatus(ctx, testutil.OtherToken)
	require.NoError(t, err)
	assert.Equal(t, entities.IndexerStateUntracked, resp.Data.State)
	assert.Equal(t, testutil.OtherToken, resp.Data.ContractAddress)
	assert.False(t, resp.Data.Ready)

	c := store.AddContract(t, testutil.ContractDeployedAt(10))

	resp, err = svc.GetIndexerStatus(ctx, c.Address)
	require.NoError(t, err)
	assert.Equal(t, entities.IndexerStateUntracked, resp.Data.State)

	updater := NewLedgerUpdater(store.Ledger, store.Cursors, zap.NewNop())
	require.NoError(t, updater.Track(ctx, c))

	resp, err = svc.GetIndexerStatus(ctx, c.Address)
	require.NoError(t, err)
	assert.Equal(t, entities.IndexerStatePending, resp.Data.State)
	assert.Equal(t, int64(9), resp.Data.LastProcessedBlock)

	require.NoError(t, updater.BeginBackfill(ctx, c.ID, 10, 40))
	resp, err = svc.GetIndexerStatus(ctx, c.Address)
	require.NoError(t, err)
	assert.Equal(t, entities.IndexerStateBackfilling, resp.Data.State)
	assert.True(t, resp.Data.IsSyncing)

	require.NoError(t, updater.CompleteBackfill(ctx, c.ID, 40))
	require.NoError(t, updater.EndBackfill(ctx, c.ID))
	resp, err = svc.GetIndexerStatus(ctx, c.Address)
	require.NoError(t, err)
	assert.Equal(t, entities.IndexerStateLive, resp.Data.State)
	assert.True(t, resp.Data.Ready)
	assert.Equal(t, int64(40), resp.Data.LastProcessedBlock)
}

func TestHoldingsService_GetPositions(t *testing.T) {
	store := testutil.NewTestStore(t, "holdings")
	ctx := context.Background()
	updater := NewLedgerUpdater(store.Ledger, store.Cursors, zap.NewNop())

	acme := store.AddContract(t)
	other := store.AddContract(t, testutil.ContractWithAddress(testutil.OtherToken), testutil.ContractWithSymbol("OTHR"))
	for _, c := range []*entities.Contract{acme, other} {
		require.NoError(t, updater.Track(ctx, c))
	}

	mustApply(t, updater,
		testutil.Mint(acme.ID, 2, 0, testutil.AliceAddress, 30),
		testutil.Mint(other.ID, 2, 0, testutil.AliceAddress, 5),
		testutil.Transfer(other.ID, 3, 0, testutil.AliceAddress, testutil.BobAddress, 5),
	)

	svc := NewHoldingsService(store.Balances, nil, 0, zap.NewNop())

	resp, err := svc.GetPositions(ctx, "0x1111111111111111111111111111111111111111")
	require.NoError(t, err)
	assert.Equal(t, testutil.AliceAddress, resp.Data.HolderAddress)
	require.Equal(t, 1, resp.Data.TotalTokens)
	assert.Equal(t, "ACME", resp.Data.Positions[0].Symbol)
	assert.Equal(t, "30", resp.Data.Positions[0].Balance)

	resp, err = svc.GetPositions(ctx, testutil.CharlieAddr)
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Data.TotalTokens)
	assert.NotNil(t, resp.Data.Positions)
}

type stubMetadata struct {
	meta  ethereum.ContractMetadata
	calls int
}

func (s *stubMetadata) FetchMetadata(_ context.Context, _ string) *ethereum.ContractMetadata {
	s.calls++
	m := s.meta
	return &m
}

func TestContractService_Register(t *testing.T) {
	repo := testutil.NewMockContractRepository()
	meta := &stubMetadata{meta: ethereum.ContractMetadata{Name: "Chain Name", Symbol: "CHN", Decimals: 18}}
	svc := NewContractService(repo, meta, nil, zap.NewNop())
	ctx := context.Background()

	t.Run("fills missing metadata from chain", func(t *testing.T) {
		c, err := svc.Register(ctx, RegisterContractInput{
			Address:         "0x1000000000000000000000000000000000000001",
			ChainID:         1,
			Symbol:          "ACME",
			DeployedAtBlock: 100,
		})
		require.NoError(t, err)
		assert.Equal(t, "Chain Name", c.Name)
		assert.Equal(t, "ACME", c.Symbol)
		assert.Equal(t, 18, c.Decimals)
		assert.True(t, c.IsActive)
		assert.Equal(t, 1, meta.calls)
	})

	t.Run("complete input skips the chain", func(t *testing.T) {
		decimals := 0
		_, err := svc.Register(ctx, RegisterContractInput{
			Address:  testutil.OtherToken,
			Name:     "Other",
			Symbol:   "OTHR",
			Decimals: &decimals,
		})
		require.NoError(t, err)
		assert.Equal(t, 1, meta.calls)
	})

	t.Run("duplicate", func(t *testing.T) {
		_, err := svc.Register(ctx, RegisterContractInput{Address: testutil.TokenAddress})
		assert.ErrorIs(t, err, ErrContractExists)
	})

	t.Run("invalid address", func(t *testing.T) {
		_, err := svc.Register(ctx, RegisterContractInput{Address: "not-an-address"})
		assert.Error(t, err)
	})

	list, err := svc.ListContracts(ctx)
	require.NoError(t, err)
	assert.Len(t, list.Data, 2)
}

func TestContractService_SetActive(t *testing.T) {
	repo := testutil.NewMockContractRepository()
	repo.AddContracts(testutil.CreateTestContract())
	svc := NewContractService(repo, nil, nil, zap.NewNop())
	ctx := context.Background()

	c, err := svc.SetActive(ctx, testutil.TokenAddress, false)
	require.NoError(t, err)
	assert.False(t, c.IsActive)

	resp, err := svc.GetContract(ctx, testutil.TokenAddress)
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.False(t, resp.Data.IsActive)

	_, err = svc.SetActive(ctx, testutil.OtherToken, true)
	assert.ErrorIs(t, err, entities.ErrContractNotFound)

	resp, err = svc.GetContract(ctx, testutil.OtherToken)
	require.NoError(t, err)
	assert.Nil(t, resp)

	// without a cache there is nothing to purge
	assert.NoError(t, svc.PurgeCache(ctx, testutil.TokenAddress))
}

func TestContractService_ListError(t *testing.T) {
	repo := testutil.NewMockContractRepository()
	svc := NewContractService(repo, nil, nil, zap.NewNop())

	list, err := svc.ListContracts(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, list.Data)

	repo.ListActiveFunc = func(context.Context) ([]entities.Contract, error) {
		return nil, errors.New("boom")
	}
	registry := NewRegistry(repo, zap.NewNop())
	_, err = registry.LoadActive(context.Background())
	assert.Error(t, err)
}
