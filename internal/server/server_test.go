package server

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradepulse/datahub/internal/access"
	"github.com/tradepulse/datahub/internal/clients/mock"
	"github.com/tradepulse/datahub/internal/config"
	"github.com/tradepulse/datahub/internal/datasets"
	"github.com/tradepulse/datahub/internal/di"
	"github.com/tradepulse/datahub/internal/domain"
	"github.com/tradepulse/datahub/internal/events"
	"github.com/tradepulse/datahub/internal/export"
	"github.com/tradepulse/datahub/internal/fetchcache"
	"github.com/tradepulse/datahub/internal/modules/analytics"
	"github.com/tradepulse/datahub/internal/modules/indicators"
	"github.com/tradepulse/datahub/internal/scheduler"
)

func testServer(t *testing.T) (*Server, *di.Container) {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	log := zerolog.Nop()
	cache, err := fetchcache.New(db, 5*time.Minute, log)
	require.NoError(t, err)

	store := datasets.NewStore(log)
	bus := events.NewBus(log)
	perms := access.DefaultPermissions()
	manager := access.NewManager(store, cache, []domain.SourceFetcher{mock.NewGenerator(0, log)}, 5*time.Second, bus, log)

	modules := make(map[string]*access.ModuleAccess)
	for name := range perms {
		modules[name] = access.NewModuleAccess(name, manager, perms, log)
	}

	dataDir := t.TempDir()
	container := &di.Container{
		Config:     &config.Config{DataDir: dataDir, Port: 0},
		Store:      store,
		Cache:      cache,
		Manager:    manager,
		Modules:    modules,
		Indicators: indicators.NewService(store, log),
		Analytics:  analytics.NewService(store, log),
		Exporter:   export.NewService(store, dataDir, log),
		Bus:        bus,
		Scheduler:  scheduler.New(log),
	}

	return New(Config{Log: log, Port: 0, DevMode: true, Container: container}), container
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/health", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decodeBody(t, rec)["status"])
}

func TestRegisterAndGetDataset(t *testing.T) {
	srv, container := testServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/datasets", map[string]any{
		"name":    "trades",
		"columns": []string{"Symbol", "Qty"},
		"rows":    [][]any{{"AAPL", 10.0}, {"MSFT", 5.0}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	id := decodeBody(t, rec)["id"].(string)
	assert.True(t, strings.HasPrefix(id, "dataset_trades_"))

	rec = doJSON(t, srv, http.MethodGet, "/api/datasets/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	data := body["data"].(map[string]any)
	assert.Len(t, data["rows"], 2)

	meta, err := container.Store.Meta(id)
	require.NoError(t, err)
	assert.Equal(t, domain.KindUploaded, meta.Kind)
}

func TestRegisterDatasetRejectsEmptyColumns(t *testing.T) {
	srv, _ := testServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/datasets", map[string]any{
		"name":    "empty",
		"columns": []string{},
		"rows":    [][]any{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadCSV(t *testing.T) {
	srv, container := testServer(t)

	csvBody := "Date,Close,Symbol\n2024-01-02,100.5,AAPL\n2024-01-03,101.5,AAPL\n"
	req := httptest.NewRequest(http.MethodPost, "/api/datasets/upload/csv?name=prices", strings.NewReader(csvBody))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	id := decodeBody(t, rec)["id"].(string)
	frame, _, err := container.Store.Get(id)
	require.NoError(t, err)
	require.Equal(t, 2, frame.NumRows())

	// Cells come back typed: dates as time.Time, numbers as float64.
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), frame.Rows[0][0])
	assert.Equal(t, 100.5, frame.Rows[0][1])
	assert.Equal(t, "AAPL", frame.Rows[0][2])
}

func TestGetUnknownDataset(t *testing.T) {
	srv, _ := testServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/datasets/dataset_missing_20240101_000000", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRemoveDataset(t *testing.T) {
	srv, container := testServer(t)
	frame := domain.NewFrame("Symbol")
	require.NoError(t, frame.AppendRow("AAPL"))
	id, err := container.Store.Register("one", frame, domain.KindUploaded)
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodDelete, "/api/datasets/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodDelete, "/api/datasets/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestModuleDatasetsFiltered(t *testing.T) {
	srv, container := testServer(t)

	uploaded := domain.NewFrame("Symbol")
	require.NoError(t, uploaded.AppendRow("AAPL"))
	_, err := container.Store.Register("holdings", uploaded, domain.KindUploaded)
	require.NoError(t, err)

	price := domain.NewFrame(domain.ColDate, domain.ColClose)
	require.NoError(t, price.AppendRow(time.Now().UTC(), 100.0))
	_, err = container.Store.Register("aapl", price, domain.KindAPI)
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodGet, "/api/modules/system/datasets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["datasets"], 1)

	rec = doJSON(t, srv, http.MethodGet, "/api/modules/portfolio/datasets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["datasets"], 2)
}

func TestUnknownModule(t *testing.T) {
	srv, _ := testServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/api/modules/intruder/datasets", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestModuleActivateFlow(t *testing.T) {
	srv, container := testServer(t)

	frame := domain.NewFrame("Symbol")
	require.NoError(t, frame.AppendRow("AAPL"))
	id, err := container.Store.Register("holdings", frame, domain.KindUploaded)
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPost, "/api/modules/portfolio/activate", map[string]any{"dataset_id": id})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["activated"])

	rec = doJSON(t, srv, http.MethodGet, "/api/modules/portfolio/data", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Contains(t, data, id)

	rec = doJSON(t, srv, http.MethodGet, "/api/modules/portfolio/summary", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["active_count"])

	rec = doJSON(t, srv, http.MethodPost, "/api/modules/portfolio/deactivate", map[string]any{"dataset_id": id})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decodeBody(t, rec)["deactivated"])

	// Activating a dataset the module may not read fails politely.
	rec = doJSON(t, srv, http.MethodPost, "/api/modules/system/activate", map[string]any{"dataset_id": "nope"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, decodeBody(t, rec)["activated"])
}

func TestFetchAPIData(t *testing.T) {
	srv, _ := testServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/data/fetch", map[string]any{
		"symbols": []string{"AAPL"},
		"source":  "mock",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeBody(t, rec)["data"].(map[string]any)
	require.Contains(t, data, "AAPL")
	payload := data["AAPL"].(map[string]any)
	assert.NotEmpty(t, payload["rows"])
}

func TestFetchStartOnlyWindow(t *testing.T) {
	srv, _ := testServer(t)

	// An omitted end leaves that side of the window open; bars must still
	// come back (and nothing empty must land in the cache).
	rec := doJSON(t, srv, http.MethodPost, "/api/data/fetch", map[string]any{
		"symbols": []string{"AAPL"},
		"source":  "mock",
		"start":   "2024-12-01",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeBody(t, rec)["data"].(map[string]any)
	require.Contains(t, data, "AAPL")
	payload := data["AAPL"].(map[string]any)
	assert.NotEmpty(t, payload["rows"])
}

func TestFetchUnknownTimeframe(t *testing.T) {
	srv, _ := testServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/data/fetch", map[string]any{
		"symbols":   []string{"AAPL"},
		"source":    "mock",
		"timeframe": "42d",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFetchUnknownSource(t *testing.T) {
	srv, _ := testServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/data/fetch", map[string]any{
		"symbols": []string{"AAPL"},
		"source":  "bloomberg",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFetchUnregisteredSource(t *testing.T) {
	srv, _ := testServer(t)

	// yahoo is a valid source name but no fetcher is registered in tests.
	rec := doJSON(t, srv, http.MethodPost, "/api/data/fetch", map[string]any{
		"symbols": []string{"AAPL"},
		"source":  "yahoo",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestModuleFetchCombined(t *testing.T) {
	srv, container := testServer(t)

	frame := domain.NewFrame("Symbol")
	require.NoError(t, frame.AppendRow("AAPL"))
	id, err := container.Store.Register("holdings", frame, domain.KindUploaded)
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPost, "/api/modules/charts/fetch", map[string]any{
		"symbols":     []string{"AAPL"},
		"source":      "mock",
		"dataset_ids": []string{id},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	data := decodeBody(t, rec)["data"].(map[string]any)
	assert.Contains(t, data, "AAPL")
	assert.Contains(t, data, id)
}

func TestCacheEndpoints(t *testing.T) {
	srv, _ := testServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/data/fetch", map[string]any{
		"symbols": []string{"AAPL"},
		"source":  "mock",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/cache/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decodeBody(t, rec)["entry_count"])

	rec = doJSON(t, srv, http.MethodPost, "/api/cache/clear", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/cache/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(0), decodeBody(t, rec)["entry_count"])
}

func TestDeriveIndicatorEndpoint(t *testing.T) {
	srv, container := testServer(t)

	price := domain.NewFrame(domain.ColDate, domain.ColClose)
	day := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 40; i++ {
		require.NoError(t, price.AppendRow(day.AddDate(0, 0, i), float64(100+i)))
	}
	id, err := container.Store.Register("aapl", price, domain.KindAPI)
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/datasets/%s/indicators", id), map[string]any{
		"indicator": "sma",
		"params":    map[string]any{"period": 10},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	derivedID := decodeBody(t, rec)["id"].(string)
	meta, err := container.Store.Meta(derivedID)
	require.NoError(t, err)
	assert.Equal(t, domain.KindDerived, meta.Kind)
}

func TestDescribeEndpoint(t *testing.T) {
	srv, container := testServer(t)

	frame := domain.NewFrame("Value")
	for i := 1; i <= 4; i++ {
		require.NoError(t, frame.AppendRow(float64(i)))
	}
	id, err := container.Store.Register("nums", frame, domain.KindUploaded)
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/datasets/%s/describe", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(4), body["row_count"])
	assert.Len(t, body["numeric_columns"], 1)
}

func TestExportEndpoint(t *testing.T) {
	srv, container := testServer(t)

	frame := domain.NewFrame("Symbol", "Qty")
	require.NoError(t, frame.AppendRow("AAPL", 10.0))
	id, err := container.Store.Register("trades", frame, domain.KindUploaded)
	require.NoError(t, err)

	rec := doJSON(t, srv, http.MethodPost, fmt.Sprintf("/api/datasets/%s/export?format=csv", id), nil)
	require.Equal(t, http.StatusOK, rec.Code)

	path := decodeBody(t, rec)["path"].(string)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestBackupUnconfigured(t *testing.T) {
	srv, _ := testServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/backup", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/api/backups", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListSources(t *testing.T) {
	srv, _ := testServer(t)

	rec := doJSON(t, srv, http.MethodGet, "/api/sources", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"mock"}, decodeBody(t, rec)["sources"].([]any))
}
