package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bimakw/equity-ledger/internal/testutil"
)

func TestRegistry_Refresh(t *testing.T) {
	repo := testutil.NewMockContractRepository()
	registry := NewRegistry(repo, zap.NewNop())
	ctx := context.Background()

	repo.AddContracts(testutil.CreateTestContract())

	loaded, err := registry.LoadActive(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	added, removed, err := registry.Refresh(ctx)
	require.NoError(t, err)
	assert.Empty(t, added)
	assert.Empty(t, removed)

	repo.AddContracts(testutil.CreateTestContract(testutil.ContractWithAddress(testutil.OtherToken)))

	added, removed, err = registry.Refresh(ctx)
	require.NoError(t, err)
	require.Len(t, added, 1)
	assert.Equal(t, testutil.OtherToken, added[0].Address)
	assert.Empty(t, removed)

	// A second refresh without changes reports nothing new
	fresh, err := registry.RefreshNew(ctx)
	require.NoError(t, err)
	assert.Empty(t, fresh)

	require.NoError(t, repo.SetActive(ctx, loaded[0].ID, false))

	added, removed, err = registry.Refresh(ctx)
	require.NoError(t, err)
	assert.Empty(t, added)
	require.Len(t, removed, 1)
	assert.Equal(t, testutil.TokenAddress, removed[0].Address)

	assert.Nil(t, registry.Get(testutil.TokenAddress))
	assert.NotNil(t, registry.Get("0x2000000000000000000000000000000000000002"))

	watched := registry.Watched()
	require.Len(t, watched, 1)
	assert.Equal(t, testutil.OtherToken, watched[0].Address)
}

func TestRegistry_WatchedIsOrderedByID(t *testing.T) {
	repo := testutil.NewMockContractRepository()
	repo.AddContracts(
		testutil.CreateTestContract(testutil.ContractWithAddress(testutil.OtherToken)),
		testutil.CreateTestContract(),
	)

	registry := NewRegistry(repo, zap.NewNop())
	_, err := registry.LoadActive(context.Background())
	require.NoError(t, err)

	watched := registry.Watched()
	require.Len(t, watched, 2)
	assert.Less(t, watched[0].ID, watched[1].ID)
	assert.Equal(t, testutil.OtherToken, watched[0].Address)
}
