package middleware_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/insightx/internal/api/middleware"
	"github.com/kiranshivaraju/insightx/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- Mock Cache ---

type mockCache struct {
	counter int64
	keys    []string
	err     error
}

func (m *mockCache) Set(_ context.Context, _ string, _ []byte, _ time.Duration) error { return nil }
func (m *mockCache) Get(_ context.Context, _ string) ([]byte, bool, error)            { return nil, false, nil }
func (m *mockCache) Delete(_ context.Context, _ string) error                          { return nil }
func (m *mockCache) Ping(_ context.Context) error                                      { return nil }
func (m *mockCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	m.counter++
	m.keys = append(m.keys, key)
	return m.counter, m.err
}

// --- helpers ---

func okHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}
}

func hashKey(t *testing.T, rawKey string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(rawKey), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func errBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"].(map[string]any)
}

func withClient(r *http.Request, id string) *http.Request {
	return r.WithContext(mw.SetClientID(r.Context(), id))
}

// ========================================
// Auth Middleware Tests
// ========================================

func TestAuth_Rejections(t *testing.T) {
	auth := mw.NewAuth([]string{hashKey(t, "ix_test1234567890abcdef")})
	handler := auth.Authenticate(okHandler())

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"basic scheme", "Basic abc123"},
		{"key too short", "Bearer short"},
		{"unknown key", "Bearer ix_other_1234567890"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, "INVALID_TOKEN", errBody(t, w)["code"])
		})
	}
}

func TestAuth_ValidKey(t *testing.T) {
	rawKey := "ix_test1234567890abcdef"
	auth := mw.NewAuth([]string{hashKey(t, "some_other_key_value"), hashKey(t, rawKey)})

	var gotClient string
	var gotOK bool
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotClient, gotOK = mw.GetClientID(r)
		w.WriteHeader(http.StatusOK)
	})
	handler := auth.Authenticate(inner)

	req := httptest.NewRequest("GET", "/test", nil)
	req.Header.Set("Authorization", "Bearer "+rawKey)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, gotOK)
	assert.Equal(t, "ix_test1", gotClient)
}

func TestAuth_DisabledPassesThrough(t *testing.T) {
	auth := mw.NewAuth(nil)
	assert.False(t, auth.Enabled())

	var gotOK bool
	handler := auth.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, gotOK = mw.GetClientID(r)
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.False(t, gotOK)
}

func TestHashKey(t *testing.T) {
	h, err := mw.HashKey("ix_abcdefgh12345")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(h), []byte("ix_abcdefgh12345")))

	_, err = mw.HashKey("short")
	assert.ErrorIs(t, err, mw.ErrKeyTooShort)
}

// ========================================
// Rate Limit Middleware Tests
// ========================================

func TestRateLimit_AllowsUnderLimit(t *testing.T) {
	mc := &mockCache{counter: 0}
	rl := mw.NewRateLimit(mc, 60, nil)
	handler := rl.Limit(okHandler())

	req := withClient(httptest.NewRequest("GET", "/test", nil), "ix_test1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "60", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "59", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	assert.Equal(t, []string{"insightx:ratelimit:ix_test1"}, mc.keys)
}

func TestRateLimit_RejectsOverLimit(t *testing.T) {
	mc := &mockCache{counter: 60} // next IncrWithExpiry will return 61
	m := metrics.New()
	rl := mw.NewRateLimit(mc, 60, m)
	handler := rl.Limit(okHandler())

	req := withClient(httptest.NewRequest("GET", "/test", nil), "ix_over1")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "60", w.Header().Get("Retry-After"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", errBody(t, w)["code"])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RateLimited))
}

func TestRateLimit_FallsBackToRemoteIP(t *testing.T) {
	mc := &mockCache{}
	rl := mw.NewRateLimit(mc, 60, nil)
	handler := rl.Limit(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	req.RemoteAddr = "10.1.2.3:4567"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"insightx:ratelimit:ip:10.1.2.3"}, mc.keys)
}

func TestRateLimit_CacheErrorFailsOpen(t *testing.T) {
	mc := &mockCache{err: errors.New("connection refused")}
	rl := mw.NewRateLimit(mc, 1, nil)
	handler := rl.Limit(okHandler())

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, withClient(httptest.NewRequest("GET", "/test", nil), "ix_test1"))
		assert.Equal(t, http.StatusOK, w.Code)
	}
}

func TestRateLimit_LocalBucketPerClient(t *testing.T) {
	rl := mw.NewRateLimit(nil, 2, nil)
	handler := rl.Limit(okHandler())

	serve := func(client string) int {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, withClient(httptest.NewRequest("GET", "/test", nil), client))
		return w.Code
	}

	assert.Equal(t, http.StatusOK, serve("client_a"))
	assert.Equal(t, http.StatusOK, serve("client_a"))
	assert.Equal(t, http.StatusTooManyRequests, serve("client_a"))
	assert.Equal(t, http.StatusOK, serve("client_b"), "buckets are per client")
}

func TestRateLimit_DefaultLimit(t *testing.T) {
	rl := mw.NewRateLimit(&mockCache{}, 0, nil)
	w := httptest.NewRecorder()
	rl.Limit(okHandler()).ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
	assert.Equal(t, "10", w.Header().Get("X-RateLimit-Limit"))
}

// ========================================
// Recovery Middleware Tests
// ========================================

func TestRecovery_CatchesPanic(t *testing.T) {
	panicking := http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		panic("something went wrong")
	})

	handler := mw.Recovery(panicking)

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", errBody(t, w)["code"])
}

func TestRecovery_NoPanic(t *testing.T) {
	handler := mw.Recovery(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// ========================================
// Logging / Request ID Middleware Tests
// ========================================

func TestLogger_SetsStatus(t *testing.T) {
	handler := mw.Logger(okHandler())

	req := httptest.NewRequest("GET", "/test", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestID(t *testing.T) {
	var seen string
	handler := mw.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = mw.GetRequestID(r)
	}))

	t.Run("generated", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("GET", "/test", nil))
		assert.NotEmpty(t, seen)
		assert.Equal(t, seen, w.Header().Get(mw.RequestIDHeader))
	})

	t.Run("propagated", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/test", nil)
		req.Header.Set(mw.RequestIDHeader, "req-123")
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		assert.Equal(t, "req-123", seen)
		assert.Equal(t, "req-123", w.Header().Get(mw.RequestIDHeader))
	})
}

// ========================================
// Instrument Middleware Tests
// ========================================

func TestInstrument_UsesRoutePattern(t *testing.T) {
	m := metrics.New()
	r := chi.NewRouter()
	r.Use(mw.Instrument(m))
	r.Get("/items/{id}", okHandler())

	for _, path := range []string{"/items/1", "/items/2", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "/items/{id}", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "unmatched", "404")))
}
