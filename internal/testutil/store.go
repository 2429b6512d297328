package testutil

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bimakw/equity-ledger/internal/config"
	"github.com/bimakw/equity-ledger/internal/domain/entities"
	"github.com/bimakw/equity-ledger/internal/infrastructure/database"
)

// TestStore is a migrated SQLite ledger store with every repository wired
type TestStore struct {
	DB        *database.DB
	Ledger    *database.LedgerStore
	Contracts *database.ContractRepo
	Cursors   *database.CursorRepo
	Balances  *database.BalanceRepo
	Transfers *database.TransferRepo
	Allowlist *database.AllowlistRepo
	Actions   *database.CorporateActionRepo
}

// NewTestStore opens a fresh store under t.TempDir
func NewTestStore(t *testing.T, name string) *TestStore {
	t.Helper()

	db, err := database.NewSQLiteDB(config.MirrorConfig{
		Path:        filepath.Join(t.TempDir(), name+".db"),
		BusyTimeout: 5000,
	}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Migrate()
	require.NoError(t, err)

	return &TestStore{
		DB:        db,
		Ledger:    database.NewLedgerStore(db),
		Contracts: database.NewContractRepo(db),
		Cursors:   database.NewCursorRepo(db),
		Balances:  database.NewBalanceRepo(db),
		Transfers: database.NewTransferRepo(db),
		Allowlist: database.NewAllowlistRepo(db),
		Actions:   database.NewCorporateActionRepo(db),
	}
}

// AddContract registers a contract and returns it with its id set
func (s *TestStore) AddContract(t *testing.T, opts ...ContractOption) *entities.Contract {
	t.Helper()

	c := CreateTestContract(opts...)
	require.NoError(t, s.Contracts.Create(context.Background(), c))
	return c
}

// BalanceOf returns the stored balance of address as a decimal string, "0"
// when the address holds nothing
func (s *TestStore) BalanceOf(t *testing.T, contractID int64, address string) string {
	t.Helper()

	rows, err := s.Balances.ListNonZero(context.Background(), contractID)
	require.NoError(t, err)
	for _, b := range rows {
		if b.Address == entities.NormalizeAddress(address) {
			return b.Balance.String()
		}
	}
	return "0"
}

// Cursor returns the cursor of a contract, failing the test when missing
func (s *TestStore) Cursor(t *testing.T, contractID int64) *entities.IndexerCursor {
	t.Helper()

	cursor, err := s.Cursors.Get(context.Background(), contractID)
	require.NoError(t, err)
	require.NotNil(t, cursor)
	return cursor
}
