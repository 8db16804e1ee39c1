package analytics_api

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"

	"ktu-bizconnect/internal/analytics"
	"ktu-bizconnect/internal/logger"
	"ktu-bizconnect/internal/quicksale/db"
	"ktu-bizconnect/internal/utils"
)

func setupRouter(t *testing.T) http.Handler {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)
	bunDB := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { bunDB.Close() })
	require.NoError(t, db.CreateTables(context.Background(), bunDB))

	h := NewHandler(analytics.NewService(analytics.NewDB(bunDB)), logger.Discard())
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func get(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, utils.APIResponse) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var resp utils.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec, resp
}

func TestAnalyticsRoutes(t *testing.T) {
	r := setupRouter(t)

	tests := []struct {
		name   string
		path   string
		status int
		code   string
	}{
		{"overview", "/analytics/overview", http.StatusOK, ""},
		{"daily default", "/analytics/daily", http.StatusOK, ""},
		{"daily bad days", "/analytics/daily?days=abc", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"daily too many days", "/analytics/daily?days=400", http.StatusBadRequest, "VALIDATION_ERROR"},
		{"sale not a uuid", "/analytics/quick-sales/nope", http.StatusNotFound, "NOT_FOUND"},
		{"sale unknown", "/analytics/quick-sales/" + uuid.New().String(), http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, resp := get(t, r, tt.path)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.status == http.StatusOK, resp.Success)
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}
