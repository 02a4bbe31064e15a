package database

import (
	"path/filepath"
	"testing"

	"github.com/Abraxas-365/chatflow/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSQLite(t *testing.T) {
	cfg := config.DatabaseConfig{
		Driver:       "sqlite",
		SQLitePath:   filepath.Join(t.TempDir(), "flows.db"),
		MaxOpenConns: 4,
	}

	db, err := Open(cfg)
	require.NoError(t, err)
	defer CloseDB(db)

	require.NoError(t, db.Ping())
	assert.Equal(t, 4, db.Stats().MaxOpenConnections)
}

func TestOpenInMemorySQLiteUsesOneConnection(t *testing.T) {
	db, err := Open(config.DatabaseConfig{Driver: "sqlite", SQLitePath: ":memory:", MaxOpenConns: 10})
	require.NoError(t, err)
	defer CloseDB(db)

	assert.Equal(t, 1, db.Stats().MaxOpenConnections)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(config.DatabaseConfig{Driver: "mysql"})
	assert.Error(t, err)
}

func TestCloseNil(t *testing.T) {
	assert.NoError(t, CloseDB(nil))
	assert.NoError(t, CloseRedis(nil))
}
