package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bimakw/equity-ledger/internal/application/services"
	"github.com/bimakw/equity-ledger/internal/domain/entities"
	"github.com/bimakw/equity-ledger/internal/testutil"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append([]string{"--mirror"}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLedgerctl_AgainstMirrorStore(t *testing.T) {
	t.Setenv("MIRROR_SQLITE_PATH", filepath.Join(t.TempDir(), "ctl.db"))
	t.Setenv("MIRROR_BUSY_TIMEOUT_MS", "5000")

	out, err := run(t, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "applied")

	out, err = run(t, "register", testutil.TokenAddress,
		"--deployed-block", "5",
		"--deployed-at", "2024-01-02T03:04:05Z",
		"--name", "Acme Common",
		"--symbol", "ACME",
		"--decimals", "0",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "registered "+testutil.TokenAddress+" (ACME")

	_, err = run(t, "register", testutil.TokenAddress,
		"--deployed-block", "5",
		"--deployed-at", "2024-01-02T03:04:05Z",
		"--name", "Acme Common",
		"--symbol", "ACME",
		"--decimals", "0",
	)
	assert.ErrorIs(t, err, services.ErrContractExists)
	assert.Equal(t, 4, exitCode(err))

	out, err = run(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, testutil.TokenAddress)
	assert.Contains(t, out, string(entities.IndexerStateUntracked))

	out, err = run(t, "captable", testutil.TokenAddress)
	require.NoError(t, err)
	assert.Contains(t, out, "cap table of "+testutil.TokenAddress)
	assert.Contains(t, out, "0 holders")

	out, err = run(t, "captable", testutil.TokenAddress, "--block", "10")
	require.NoError(t, err)
	assert.Contains(t, out, "at block 10")

	_, err = run(t, "captable", testutil.OtherToken)
	assert.ErrorIs(t, err, entities.ErrContractNotFound)
	assert.Equal(t, 3, exitCode(err))

	out, err = run(t, "deactivate", testutil.TokenAddress)
	require.NoError(t, err)
	assert.Contains(t, out, "active=false")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
	assert.Equal(t, 1, exitCode(assert.AnError))
}
