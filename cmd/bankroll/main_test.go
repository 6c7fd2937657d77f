package main

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/laurentRibous/poker-bankroll-tracker/internal/config"
)

func TestOpenStoreSQLite(t *testing.T) {
	cfg := &config.Config{
		Driver: config.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "bankroll.db"),
	}

	ledgerStore, closeStore, err := openStore(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, closeStore)
	defer closeStore()

	accounts, err := ledgerStore.ListAccounts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestOpenStoreFailureReturnsError(t *testing.T) {
	cfg := &config.Config{
		Driver: config.DriverSQLite,
		DSN:    filepath.Join(t.TempDir(), "missing", "nested", "bankroll.db"),
	}

	_, _, err := openStore(context.Background(), cfg)
	assert.Error(t, err)
}
