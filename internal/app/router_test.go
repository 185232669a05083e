package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/udaykiran1867/tce-project1/internal/auth"
	"github.com/udaykiran1867/tce-project1/internal/inventory"
	"github.com/udaykiran1867/tce-project1/jobs"
)

func testConfig() *Config {
	return &Config{AppEnv: "test", AppRequestTimeout: time.Second, RateLimitPerMinute: 1000}
}

func serve(h http.Handler, method, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthzReportsDependencies(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	router := NewRouter(RouterParams{Config: testConfig(), HealthChecks: []HealthCheck{
		{Name: "postgres", Ping: ok},
		{Name: "gotenberg", Ping: down, Optional: true},
	}})
	rr := serve(router, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"status":"degraded","checks":{"postgres":"ok","gotenberg":"unavailable"}}`, rr.Body.String())

	router = NewRouter(RouterParams{Config: testConfig(), HealthChecks: []HealthCheck{{Name: "postgres", Ping: down}}})
	rr = serve(router, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.NotContains(t, rr.Body.String(), "connection refused")
}

func TestSecurityHeadersApplied(t *testing.T) {
	rr := serve(NewRouter(RouterParams{Config: testConfig()}), http.MethodGet, "/healthz", "")
	require.Equal(t, "DENY", rr.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	require.NotEmpty(t, rr.Header().Get("Content-Security-Policy"))
}

func TestBearerTokenGuardsAPI(t *testing.T) {
	verifier := auth.NewVerifier("s3cret", "lab", nil)
	svc := inventory.NewService(nil, nil, nil, inventory.ServiceConfig{}, nil)
	router := NewRouter(RouterParams{
		Config:           testConfig(),
		Verifier:         verifier,
		InventoryHandler: inventory.NewHandler(nil, svc, nil),
		JobHandler:       jobs.NewHandler(nil, nil),
	})

	require.Equal(t, http.StatusUnauthorized, serve(router, http.MethodGet, "/products", "").Code)
	require.Equal(t, http.StatusUnauthorized, serve(router, http.MethodGet, "/jobs/health", "not-a-jwt").Code)
	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/healthz", "").Code)

	token, err := verifier.Sign("lab-assistant", time.Minute)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/jobs/health", token).Code)
}

func TestRateLimitReturnsProblem(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitPerMinute = 2
	router := NewRouter(RouterParams{Config: cfg})

	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/healthz", "").Code)
	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/healthz", "").Code)
	rr := serve(router, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusTooManyRequests, rr.Code)
	require.Contains(t, rr.Header().Get("Content-Type"), "application/problem+json")
}

func TestAccessLogGoesThroughSlogOnly(t *testing.T) {
	var std bytes.Buffer
	log.SetOutput(&std)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	router := NewRouter(RouterParams{Logger: logger, Config: testConfig()})

	require.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/healthz", "").Code)
	require.Zero(t, std.Len(), "no unstructured access lines")

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	require.Equal(t, "http request", line["msg"])
	require.Equal(t, "/healthz", line["path"])
	require.EqualValues(t, http.StatusOK, line["status"])
	require.NotEmpty(t, line["request_id"])
}
