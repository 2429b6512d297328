package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bimakw/equity-ledger/internal/application/services"
	"github.com/bimakw/equity-ledger/internal/config"
	"github.com/bimakw/equity-ledger/internal/domain/entities"
	"github.com/bimakw/equity-ledger/internal/testutil"
)

type apiFixture struct {
	router   http.Handler
	store    *testutil.TestStore
	contract *entities.Contract
}

// setupAPI builds the /api/v1 router over a store holding one contract with
// a small history
func setupAPI(t *testing.T) *apiFixture {
	t.Helper()

	store := testutil.NewTestStore(t, "api")
	logger := zap.NewNop()
	ctx := context.Background()

	contract := store.AddContract(t)
	updater := services.NewLedgerUpdater(store.Ledger, store.Cursors, logger)
	require.NoError(t, updater.Track(ctx, contract))

	for _, ev := range []entities.LedgerEvent{
		testutil.Mint(contract.ID, 2, 0, testutil.AliceAddress, 1000),
		testutil.Mint(contract.ID, 3, 0, testutil.BobAddress, 500),
		testutil.AllowlistAdd(contract.ID, 3, 1, testutil.AliceAddress),
		testutil.Transfer(contract.ID, 4, 0, testutil.AliceAddress, testutil.BobAddress, 200),
	} {
		_, err := updater.Apply(ctx, ev)
		require.NoError(t, err)
	}
	require.NoError(t, updater.CompleteBackfill(ctx, contract.ID, 4))

	apiCfg := config.APIConfig{MaxActivityLimit: 100}
	ledger := NewLedgerHandler(
		services.NewCapTableService(store.Contracts, store.Balances, store.Transfers, store.Allowlist, store.Cursors, nil, apiCfg, logger),
		services.NewActivityService(store.Contracts, store.Transfers, store.Allowlist, store.Actions, apiCfg, logger),
		services.NewStatusService(store.Contracts, store.Cursors, logger),
		logger,
	)
	contracts := NewContractHandler(services.NewContractService(store.Contracts, nil, nil, logger), logger)
	holdings := NewHoldingsHandler(services.NewHoldingsService(store.Balances, nil, 0, logger), logger)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		contracts.RegisterRoutes(r)
		ledger.RegisterRoutes(r)
		holdings.RegisterRoutes(r)
	})

	return &apiFixture{router: r, store: store, contract: contract}
}

func (f *apiFixture) get(t *testing.T, path string, dest interface{}) int {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	if dest != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.NewDecoder(rec.Body).Decode(dest))
	}
	return rec.Code
}

func TestLedgerHandler_GetCapTable(t *testing.T) {
	f := setupAPI(t)

	var current services.CapTableResponse
	code := f.get(t, "/api/v1/contracts/"+testutil.TokenAddress+"/captable", &current)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "1500", current.Data.TotalSupply)
	require.Len(t, current.Data.Rows, 2)
	assert.Equal(t, testutil.AliceAddress, current.Data.Rows[0].Address)
	assert.Equal(t, "800", current.Data.Rows[0].BalanceStr)
	assert.Equal(t, "53.33", current.Data.Rows[0].OwnershipPercentage)
	assert.True(t, current.Data.Rows[0].IsAllowlisted)
	assert.Nil(t, current.Data.AtBlock)

	var historical services.CapTableResponse
	upper := "0x" + strings.ToUpper(testutil.TokenAddress[2:])
	code = f.get(t, "/api/v1/contracts/"+upper+"/captable?block=3", &historical)
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, historical.Data.AtBlock)
	assert.Equal(t, int64(3), *historical.Data.AtBlock)
	require.Len(t, historical.Data.Rows, 2)
	assert.Equal(t, "1000", historical.Data.Rows[0].BalanceStr)
	assert.Equal(t, "66.67", historical.Data.Rows[0].OwnershipPercentage)
}

func TestLedgerHandler_GetCapTable_Errors(t *testing.T) {
	f := setupAPI(t)

	tests := []struct {
		name string
		path string
		want int
	}{
		{"invalid address", "/api/v1/contracts/0x123/captable", http.StatusBadRequest},
		{"negative block", "/api/v1/contracts/" + testutil.TokenAddress + "/captable?block=-1", http.StatusBadRequest},
		{"non numeric block", "/api/v1/contracts/" + testutil.TokenAddress + "/captable?block=latest", http.StatusBadRequest},
		{"unknown contract", "/api/v1/contracts/" + testutil.OtherToken + "/captable", http.StatusNotFound},
		{"unknown contract at block", "/api/v1/contracts/" + testutil.OtherToken + "/captable?block=1", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.get(t, tt.path, nil))
		})
	}
}

func TestLedgerHandler_GetActivity(t *testing.T) {
	f := setupAPI(t)
	base := "/api/v1/contracts/" + testutil.TokenAddress + "/activity"

	var all services.ActivityResponse
	require.Equal(t, http.StatusOK, f.get(t, base, &all))
	require.Len(t, all.Data, 4)
	assert.Equal(t, entities.EventKindTransfer, all.Data[0].Kind)
	assert.Equal(t, int64(4), all.Data[0].BlockNumber)

	var limited services.ActivityResponse
	require.Equal(t, http.StatusOK, f.get(t, base+"?limit=2", &limited))
	assert.Len(t, limited.Data, 2)

	var adds services.ActivityResponse
	require.Equal(t, http.StatusOK, f.get(t, base+"?kind=allowlist_add", &adds))
	require.Len(t, adds.Data, 1)
	assert.Equal(t, testutil.AliceAddress, adds.Data[0].Address)

	assert.Equal(t, http.StatusBadRequest, f.get(t, base+"?kind=mint", nil))
	assert.Equal(t, http.StatusBadRequest, f.get(t, base+"?limit=0", nil))
	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/v1/contracts/"+testutil.OtherToken+"/activity", nil))
}

func TestLedgerHandler_GetStatus(t *testing.T) {
	f := setupAPI(t)

	var status services.StatusResponse
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/contracts/"+testutil.TokenAddress+"/status", &status))
	assert.Equal(t, entities.IndexerStateLive, status.Data.State)
	assert.True(t, status.Data.Ready)
	assert.Equal(t, int64(4), status.Data.LastProcessedBlock)

	var unknown services.StatusResponse
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/contracts/"+testutil.OtherToken+"/status", &unknown))
	assert.Equal(t, entities.IndexerStateUntracked, unknown.Data.State)
	assert.False(t, unknown.Data.Ready)
}

func TestContractHandler(t *testing.T) {
	f := setupAPI(t)

	var list services.ContractListResponse
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/contracts", &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, "ACME", list.Data[0].Symbol)

	var one services.ContractResponse
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/contracts/"+testutil.TokenAddress, &one))
	assert.Equal(t, f.contract.ID, one.Data.ID)

	assert.Equal(t, http.StatusNotFound, f.get(t, "/api/v1/contracts/"+testutil.OtherToken, nil))
	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/contracts/not-an-address", nil))
}

func TestHoldingsHandler(t *testing.T) {
	f := setupAPI(t)

	var positions services.PositionsResponse
	require.Equal(t, http.StatusOK, f.get(t, "/api/v1/holders/"+testutil.BobAddress+"/positions", &positions))
	assert.Equal(t, 1, positions.Data.TotalTokens)
	assert.Equal(t, "700", positions.Data.Positions[0].Balance)
	assert.Equal(t, testutil.TokenAddress, positions.Data.Positions[0].ContractAddress)

	assert.Equal(t, http.StatusBadRequest, f.get(t, "/api/v1/holders/0xabc/positions", nil))
}
