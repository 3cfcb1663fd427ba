package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"memberledger/internal/config"
	"memberledger/internal/membership"
	"memberledger/internal/metrics"
	"memberledger/pkg/filestore"
)

func testConfig() *config.Config {
	return &config.Config{
		Server:      config.ServerConfig{Port: 8080},
		Store:       config.StoreConfig{Backend: "memory", Timeout: time.Second},
		Ledger:      config.LedgerConfig{Path: "members.csv"},
		Retry:       config.RetryConfig{MaxAttempts: 1},
		RateLimiter: config.RateLimiterConfig{Enabled: false},
		CORS:        config.CORSConfig{AllowedOrigin: "*"},
		Metrics:     config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

type testEnv struct {
	srv   *httptest.Server
	store *filestore.MemoryStore
}

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()
	store := filestore.NewMemoryStore()
	svc := membership.NewService(store, membership.Options{Path: cfg.Ledger.Path, StoreTimeout: cfg.Store.Timeout}, zap.NewNop())
	svc = membership.NewRetryingService(svc, membership.RetryOptions{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}, zap.NewNop())

	reg := prometheus.NewRegistry()
	s := NewServer(cfg, membership.NewHandler(svc, zap.NewNop()), metrics.NewMetricsWith(reg, reg), zap.NewNop())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, store: store}
}

func (e *testEnv) ledger(t *testing.T) string {
	t.Helper()
	f, err := e.store.Get(context.Background(), "members.csv")
	require.NoError(t, err)
	return string(f.Content)
}

func memberJSON(first, last string) string {
	return fmt.Sprintf(`{"anrede":"Herr","name":%q,"vorname":%q,"adresse":"Str. 1","plz":"1234","ort":"Bern","email":"m@x.com","tel":"","status":"PM","betrag":"50","beitritt":"2024","referenz":""}`, last, first)
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestSubmitFlow(t *testing.T) {
	env := newTestEnv(t, testConfig())

	resp := post(t, env.srv.URL+"/submit", memberJSON("Max", "Muster"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["success"])

	resp = post(t, env.srv.URL+"/api/submit", memberJSON("Eva", "Beispiel"))
	require.Equal(t, http.StatusOK, resp.StatusCode)

	assert.Equal(t, membership.LedgerHeader+
		"Herr,Muster,Max,Str. 1,1234,Bern,m@x.com,,PM,50,2024,\n"+
		"Herr,Beispiel,Eva,Str. 1,1234,Bern,m@x.com,,PM,50,2024,\n",
		env.ledger(t))
}

func TestSubmit_Preflight(t *testing.T) {
	env := newTestEnv(t, testConfig())

	req, err := http.NewRequest(http.MethodOptions, env.srv.URL+"/submit", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "POST, OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "Content-Type", resp.Header.Get("Access-Control-Allow-Headers"))
	b, _ := io.ReadAll(resp.Body)
	assert.Empty(t, b)
}

func TestSubmit_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(t, testConfig())

	resp, err := http.Get(env.srv.URL + "/submit")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestSubmit_ValidationKeepsLedgerUntouched(t *testing.T) {
	env := newTestEnv(t, testConfig())

	resp := post(t, env.srv.URL+"/submit", `{"anrede":"Herr"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	_, err := env.store.Get(context.Background(), "members.csv")
	assert.ErrorIs(t, err, filestore.ErrNotFound)
}

func TestSubmit_Misconfigured(t *testing.T) {
	cfg := testConfig()
	reg := prometheus.NewRegistry()
	h := membership.NewMisconfiguredHandler(&membership.ConfigurationError{Missing: []string{"store.github.token"}}, zap.NewNop())
	srv := httptest.NewServer(NewServer(cfg, h, metrics.NewMetricsWith(reg, reg), zap.NewNop()).Handler())
	defer srv.Close()

	resp := post(t, srv.URL+"/submit", memberJSON("Max", "Muster"))
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Server configuration error", body["error"])
}

func TestConcurrentSubmissionsNeverLoseRows(t *testing.T) {
	env := newTestEnv(t, testConfig())

	const submissions = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)
	for i := 0; i < submissions; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			resp, err := http.Post(env.srv.URL+"/submit", "application/json",
				strings.NewReader(memberJSON(fmt.Sprintf("Member%d", i), "Test")))
			if err != nil {
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	require.GreaterOrEqual(t, successes, 1)
	content := env.ledger(t)
	lines := strings.Split(strings.TrimSuffix(content, "\n"), "\n")
	assert.Equal(t, successes, len(lines)-1, "every acknowledged submission has exactly one row")
	for _, line := range lines[1:] {
		assert.Len(t, strings.Split(line, ","), 12, line)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t, testConfig())
	post(t, env.srv.URL+"/submit", memberJSON("Max", "Muster"))

	resp, err := http.Get(env.srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(env.srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(b), `memberledger_http_requests_total{method="POST",path="/submit",status="200"} 1`)
}

func TestSubmit_RateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimiter = config.RateLimiterConfig{Enabled: true, RequestsPerSecond: 0.001, BurstSize: 1}
	env := newTestEnv(t, cfg)

	assert.Equal(t, http.StatusOK, post(t, env.srv.URL+"/submit", memberJSON("Max", "Muster")).StatusCode)
	assert.Equal(t, http.StatusTooManyRequests, post(t, env.srv.URL+"/submit", memberJSON("Eva", "Beispiel")).StatusCode)
}
