package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/kiranshivaraju/insightx/internal/config"
	"github.com/kiranshivaraju/insightx/internal/dataset/datasettest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── helpers ────────────────────────────────────────────────────────────────

func testConfig(dataPath string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, Env: "test", RequestTimeout: 5 * time.Second},
		Data:   config.DataConfig{Source: config.SourceFile, Path: dataPath},
		Redis:  config.RedisConfig{CacheTTL: time.Minute},
		Auth:   config.AuthConfig{RateLimitPerMin: 100},
	}
}

func newTestApp(t *testing.T, cfg *config.Config) *app {
	t.Helper()
	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	return a
}

func serve(t *testing.T, h http.Handler, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return w.Code, out
}

// ─── newApp wiring tests ─────────────────────────────────────────────────────

func TestNewApp_FileDataset(t *testing.T) {
	path := datasettest.WriteCSV(t, "transactions.csv", datasettest.Records())
	a := newTestApp(t, testConfig(path))

	code, body := serve(t, a.handler, "GET", "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, code)
	services := body["data"].(map[string]any)["services"].(map[string]any)
	assert.Equal(t, "ok", services["dataset"])
	assert.Equal(t, "disabled", services["cache"])

	code, body = serve(t, a.handler, "POST", "/api/v1/analyze", `{"operation":"summary"}`)
	require.Equal(t, http.StatusOK, code)
	numbers := body["data"].(map[string]any)["numbers"].([]any)
	assert.Equal(t, "100", numbers[0].(map[string]any)["value"])
}

func TestNewApp_XLSXDataset(t *testing.T) {
	path := datasettest.WriteXLSX(t, "transactions.xlsx", datasettest.Records())
	a := newTestApp(t, testConfig(path))

	code, body := serve(t, a.handler, "POST", "/api/v1/analyze", `{"metric":"count"}`)
	require.Equal(t, http.StatusOK, code)
	numbers := body["data"].(map[string]any)["numbers"].([]any)
	assert.Equal(t, float64(100), numbers[0].(map[string]any)["raw_value"])
}

func TestNewApp_MissingDatasetStillServes(t *testing.T) {
	a := newTestApp(t, testConfig("/nonexistent/transactions.csv"))

	code, body := serve(t, a.handler, "GET", "/api/v1/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "DEGRADED", body["error"].(map[string]any)["code"])

	code, body = serve(t, a.handler, "POST", "/api/v1/analyze", `{"metric":"failure_rate"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, body["error"].(map[string]any)["message"], "dataset unavailable")
}

func TestNewApp_WithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(datasettest.WriteCSV(t, "transactions.csv", datasettest.Records()))
	cfg.Redis.URL = "redis://" + mr.Addr()
	a := newTestApp(t, cfg)

	code, body := serve(t, a.handler, "GET", "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, code)
	services := body["data"].(map[string]any)["services"].(map[string]any)
	assert.Equal(t, "ok", services["cache"])

	code, _ = serve(t, a.handler, "POST", "/api/v1/analyze", `{"metric":"volume"}`)
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, mr.Keys())
}

func TestNewApp_InvalidRedisURL(t *testing.T) {
	cfg := testConfig(datasettest.WriteCSV(t, "transactions.csv", datasettest.Records()))
	cfg.Redis.URL = "redis://localhost:notaport"

	_, err := newApp(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create redis cache")
}

func TestNewApp_AuthEnabled(t *testing.T) {
	cfg := testConfig(datasettest.WriteCSV(t, "transactions.csv", datasettest.Records()))
	cfg.Auth.APIKeyHashes = []string{"$2a$10$abcdefghijklmnopqrstuuJ0pm2fJtG5aXyKc3x1l2S7Q0ZJt0Q6e"}
	a := newTestApp(t, cfg)

	code, _ := serve(t, a.handler, "GET", "/api/v1/vocabulary", "")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = serve(t, a.handler, "GET", "/api/v1/health", "")
	assert.Equal(t, http.StatusOK, code, "health stays public")
}

// ─── run() config validation tests ──────────────────────────────────────────

func TestRun_FailsOnInvalidConfig(t *testing.T) {
	t.Setenv("ENV_FILE", "")
	t.Setenv("DATA_SOURCE", "ftp")

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRun_FailsOnMissingDatabaseURL(t *testing.T) {
	t.Setenv("ENV_FILE", "")
	t.Setenv("DATA_SOURCE", "postgres")
	t.Setenv("DATABASE_URL", "")

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

// ─── shutdown timeout constant test ─────────────────────────────────────────

func TestShutdownTimeout(t *testing.T) {
	assert.Equal(t, 30*time.Second, shutdownTimeout)
}
