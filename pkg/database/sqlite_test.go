package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestOpen_CreatesSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meta", "lineqa.db")

	db, err := Open(context.Background(), path, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"datasets", "fetch_runs"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
		assert.Equal(t, table, name)
	}
}

func TestOpen_MigrationsAreIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lineqa.db")
	logger := zaptest.NewLogger(t)

	db, err := Open(context.Background(), path, logger)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = Open(context.Background(), path, logger)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, RunMigrations(db.DB, logger))
}

func TestOpen_InMemory(t *testing.T) {
	db, err := Open(context.Background(), ":memory:", zaptest.NewLogger(t))
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`INSERT INTO fetch_runs (dataset_id, source, status) VALUES ('d', 's', 'ok')`)
	assert.NoError(t, err)
}
