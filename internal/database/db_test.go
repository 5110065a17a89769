package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T, name string) *DB {
	t.Helper()
	db, err := New(Config{
		Path: filepath.Join(t.TempDir(), name+".db"),
		Name: name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNew_DefaultsToStandardProfile(t *testing.T) {
	db := openTestDB(t, "history")

	assert.Equal(t, ProfileStandard, db.Profile())
	assert.Equal(t, "history", db.Name())
	assert.True(t, filepath.IsAbs(db.Path()))
}

func TestMigrate_IsIdempotent(t *testing.T) {
	for _, name := range []string{"history", "runs"} {
		t.Run(name, func(t *testing.T) {
			db := openTestDB(t, name)

			require.NoError(t, db.Migrate())
			require.NoError(t, db.Migrate())
		})
	}
}

func TestMigrate_UnknownDatabase(t *testing.T) {
	db := openTestDB(t, "scratch")
	assert.Error(t, db.Migrate())
}

func TestWithTransaction(t *testing.T) {
	db := openTestDB(t, "history")
	require.NoError(t, db.Migrate())

	insert := func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO daily_prices (asset, date, close, updated_at) VALUES ('A', 1, 10.0, 0)`)
		return err
	}

	t.Run("rolls back on error", func(t *testing.T) {
		err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
			if err := insert(tx); err != nil {
				return err
			}
			return errors.New("boom")
		})
		require.Error(t, err)

		var count int
		require.NoError(t, db.Conn().QueryRow(`SELECT COUNT(*) FROM daily_prices`).Scan(&count))
		assert.Equal(t, 0, count)
	})

	t.Run("recovers panics", func(t *testing.T) {
		err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
			panic("kaboom")
		})
		assert.ErrorContains(t, err, "kaboom")
	})

	t.Run("commits on success", func(t *testing.T) {
		require.NoError(t, WithTransaction(db.Conn(), insert))

		var count int
		require.NoError(t, db.Conn().QueryRow(`SELECT COUNT(*) FROM daily_prices`).Scan(&count))
		assert.Equal(t, 1, count)
	})

	t.Run("nil connection", func(t *testing.T) {
		assert.Error(t, WithTransaction(nil, insert))
	})
}

func TestHealthCheckAndStats(t *testing.T) {
	db := openTestDB(t, "runs")
	require.NoError(t, db.Migrate())

	require.NoError(t, db.HealthCheck(context.Background()))
	require.NoError(t, db.WALCheckpoint(""))

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Positive(t, stats.PageSize)
	assert.Positive(t, stats.PageCount)
}

func TestBuildConnectionString(t *testing.T) {
	assert.Contains(t, buildConnectionString("/tmp/a.db", ProfileLedger), "/tmp/a.db?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)")
	assert.Contains(t, buildConnectionString("file:x?mode=memory", ProfileCache), "file:x?mode=memory&_pragma=journal_mode(WAL)")
}
