package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/frontier/internal/database"
	"github.com/aristath/frontier/internal/modules/universe"
)

func setupRouter(t *testing.T) chi.Router {
	t.Helper()
	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "history.db"), Name: "history"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })

	log := zerolog.Nop()
	history := universe.NewHistoryDB(db.Conn(), log)
	importer := universe.NewImportService(history, universe.NewPriceValidator(log), log)

	router := chi.NewRouter()
	NewHandler(history, importer, log).RegisterRoutes(router)
	return router
}

func do(router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestImportThenQuery(t *testing.T) {
	router := setupRouter(t)

	rec := do(router, http.MethodPost, "/history/import?source=test", "Date,A,B\n2024-01-01,1,2\n2024-01-02,1.5,2.5\n2024-01-03,2,3\n")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var imported universe.ImportResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &imported))
	assert.Equal(t, 6, imported.Rows)

	rec = do(router, http.MethodGet, "/history/assets", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var listed struct {
		Assets []universe.AssetSummary `json:"assets"`
		Count  int                     `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Equal(t, 2, listed.Count)

	rec = do(router, http.MethodGet, "/history/prices?assets=B,A&lookback_days=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var table universe.PriceTable
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &table))
	assert.Equal(t, []string{"B", "A"}, table.Assets)
	assert.Equal(t, []string{"2024-01-03"}, table.Dates)

	rec = do(router, http.MethodGet, "/history/prices?assets=B,A&lookback_days=1&format=csv", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(rec.Body.String(), "Date,B,A\n2024-01-03,"), rec.Body.String())

	rec = do(router, http.MethodDelete, "/history/assets/A", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = do(router, http.MethodDelete, "/history/assets/A", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImport_BadCSV(t *testing.T) {
	router := setupRouter(t)

	rec := do(router, http.MethodPost, "/history/import", "Date,A\nnot-a-date,1\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "validation", body["kind"])
}

func TestGetPrices_Errors(t *testing.T) {
	router := setupRouter(t)

	rec := do(router, http.MethodGet, "/history/prices?lookback_days=-3", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodGet, "/history/prices?assets=NOPE,ALSO", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(router, http.MethodGet, "/history/prices", "")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}
