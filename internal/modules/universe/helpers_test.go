package universe

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/domain"
)

func newTestHistoryDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(database.Config{
		Path: filepath.Join(t.TempDir(), "history.db"),
		Name: "history",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func day(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func mustMatrix(t *testing.T, dates []string, assets []string, prices [][]float64) domain.PriceMatrix {
	t.Helper()
	ds := make([]time.Time, len(dates))
	for i, d := range dates {
		ds[i] = day(d)
	}
	pm, err := domain.NewPriceMatrix(ds, assets, prices)
	require.NoError(t, err)
	return pm
}
