package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/pawfinder/apiserver/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMiddlewareRouter(t *testing.T, rateLimit int) *chi.Mux {
	t.Helper()
	cfg := config.Config{
		RateLimit: config.RateLimitConfig{Requests: rateLimit, WindowSeconds: 60},
		CORS:      config.CORSConfig{AllowedOrigins: []string{"*"}},
	}
	router := chi.NewRouter()
	router.Use(baseMiddleware(cfg, zap.NewNop())...)
	router.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return router
}

func TestPreflightSpendsNoRateBudget(t *testing.T) {
	router := newMiddlewareRouter(t, 2)

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodOptions, "/", nil)
		req.Header.Set("Origin", "https://app.example.com")
		req.Header.Set("Access-Control-Request-Method", http.MethodGet)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		require.Less(t, rec.Code, 300, "preflight %d was rejected", i)
	}

	// The full budget is still available for real requests.
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimitedResponseCarriesCORSHeaders(t *testing.T) {
	router := newMiddlewareRouter(t, 1)

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Origin", "https://app.example.com")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	require.Equal(t, http.StatusOK, first.Code)

	second := send()
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Access-Control-Allow-Origin"))
}
