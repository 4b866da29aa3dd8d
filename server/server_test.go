package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/spacefeed/pkg/cache"
	"github.com/umputun/spacefeed/pkg/domain"
	"github.com/umputun/spacefeed/pkg/ratelimit"
	"github.com/umputun/spacefeed/pkg/scheduler"
	"github.com/umputun/spacefeed/pkg/store"
	"github.com/umputun/spacefeed/server/mocks"
)

var testNow = time.Date(2024, 5, 31, 14, 30, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		Listen:       ":8080",
		Timeout:      5 * time.Second,
		ListingTTL:   time.Minute,
		StatsTTL:     time.Minute,
		SyntheticTTL: time.Minute,
		Metrics:      true,
	}
}

// testServer creates a server with memory cache and no rate limiter
func testServer(t *testing.T, st Store, sched Scheduler) *Server {
	t.Helper()
	return testServerWith(t, testConfig(), st, sched, nil)
}

func testServerWith(t *testing.T, cfg Config, st Store, sched Scheduler, limiter *ratelimit.Limiter) *Server {
	t.Helper()
	c := cache.NewMemory(cache.MemoryConfig{CleanupInterval: -1})
	t.Cleanup(func() { _ = c.Close() })
	if sched == nil {
		sched = &mocks.SchedulerMock{TasksFunc: func() []domain.FeedTask { return nil }}
	}
	srv := New(Params{Config: cfg, Store: st, Scheduler: sched, Cache: c, Limiter: limiter, Version: "1.2.3"})
	srv.now = func() time.Time { return testNow }
	return srv
}

func doRequest(t *testing.T, srv *Server, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func TestServer_New(t *testing.T) {
	srv := New(Params{Config: Config{Listen: ":8080"}, Store: &mocks.StoreMock{}, Scheduler: &mocks.SchedulerMock{},
		Cache: cache.NewMemory(cache.MemoryConfig{CleanupInterval: -1}), Version: "1.0.0"})
	require.NotNil(t, srv)
	assert.Equal(t, "1.0.0", srv.version)
	assert.False(t, srv.debug)
	assert.Equal(t, 100, srv.cfg.MaxPage, "default max page size")
	assert.Equal(t, int64(1024*1024), srv.cfg.BodyLimit)
}

func TestServer_Run(t *testing.T) {
	// find free port
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	cfg := testConfig()
	cfg.Listen = fmt.Sprintf("127.0.0.1:%d", port)
	srv := testServerWith(t, cfg, &mocks.StoreMock{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	// wait for server to start
	require.Eventually(t, func() bool {
		resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/ping", port))
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK && string(body) == "pong"
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_rootHandler(t *testing.T) {
	srv := testServer(t, &mocks.StoreMock{}, nil)
	w := doRequest(t, srv, "GET", "/", http.NoBody)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "spacefeed", w.Header().Get("App-Name"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var resp struct {
		Service   string   `json:"service"`
		Version   string   `json:"version"`
		Endpoints []string `json:"endpoints"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "spacefeed", resp.Service)
	assert.Equal(t, "1.2.3", resp.Version)
	assert.Contains(t, resp.Endpoints, "GET /api/v1/space/iss/positions")

	// unknown path is not served by the root handler
	w = doRequest(t, srv, "GET", "/nothing-here", http.NoBody)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_healthHandler(t *testing.T) {
	sched := &mocks.SchedulerMock{TasksFunc: func() []domain.FeedTask {
		return []domain.FeedTask{{Feed: domain.FeedISS, LastStatus: domain.StatusSuccess}, {Feed: domain.FeedAPOD, LastStatus: domain.StatusNever}}
	}}

	t.Run("healthy", func(t *testing.T) {
		st := &mocks.StoreMock{PingFunc: func(context.Context) error { return nil }}
		w := doRequest(t, testServer(t, st, sched), "GET", "/health", http.NoBody)
		assert.Equal(t, http.StatusOK, w.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "healthy", resp["status"])
		assert.Equal(t, "connected", resp["database"])
		assert.Equal(t, map[string]any{"iss": "success", "apod": "never"}, resp["feeds"])
	})

	t.Run("store down", func(t *testing.T) {
		st := &mocks.StoreMock{PingFunc: func(context.Context) error { return fmt.Errorf("%w: ping: refused", store.ErrUnavailable) }}
		w := doRequest(t, testServer(t, st, sched), "GET", "/health", http.NoBody)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "degraded", resp["status"])
		assert.Equal(t, "unavailable", resp["database"])
		assert.Contains(t, resp["error"], "store unavailable")
	})
}

func TestServer_RateLimit(t *testing.T) {
	now := testNow
	clock := func() time.Time { return now }
	limiter := ratelimit.New(ratelimit.NewMemoryCounter(clock), ratelimit.Config{
		Default: ratelimit.Rule{Limit: 100, Window: time.Minute},
		Routes:  map[string]ratelimit.Rule{"/health": {Limit: 2, Window: time.Minute}},
		Clock:   clock,
	})
	st := &mocks.StoreMock{PingFunc: func(context.Context) error { return nil }}
	srv := testServerWith(t, testConfig(), st, nil, limiter)

	for i := range 2 {
		w := doRequest(t, srv, "GET", "/health", http.NoBody)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, fmt.Sprint(1-i), w.Header().Get("X-RateLimit-Remaining"))
	}

	w := doRequest(t, srv, "GET", "/health", http.NoBody)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate limit exceeded")
	assert.Len(t, st.PingCalls(), 2, "denied request never reaches the handler")

	// other routes have their own counters
	w = doRequest(t, srv, "GET", "/", http.NoBody)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "100", w.Header().Get("X-RateLimit-Limit"))

	// metrics and ping are not limited
	w = doRequest(t, srv, "GET", "/metrics", http.NoBody)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	assert.Contains(t, w.Body.String(), "spacefeed_ratelimit_decisions_total")

	// next window admits again
	now = now.Add(time.Minute)
	w = doRequest(t, srv, "GET", "/health", http.NoBody)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	srv := testServer(t, &mocks.StoreMock{}, nil)
	tbl := []struct {
		method, path, allow string
	}{
		{"DELETE", "/api/v1/space/iss/positions", "GET, POST"},
		{"POST", "/api/v1/space/stats", "GET"},
		{"PUT", "/api/v1/pascal", "GET"},
		{"GET", "/api/v1/space/feeds/apod/fetch", "POST"},
		{"POST", "/health", "GET"},
	}
	for _, tt := range tbl {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			w := doRequest(t, srv, tt.method, tt.path, http.NoBody)
			assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
			assert.Equal(t, tt.allow, w.Header().Get("Allow"))
		})
	}

	w := doRequest(t, srv, "GET", "/api/v1/space/unknown", http.NoBody)
	assert.Equal(t, http.StatusNotFound, w.Code, "unknown path is still 404")
}

func TestServer_RunDrainsInFlight(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := listener.Addr().(*net.TCPAddr).Port
	require.NoError(t, listener.Close())

	entered, release := make(chan struct{}), make(chan struct{})
	st := &mocks.StoreMock{PingFunc: func(context.Context) error {
		close(entered)
		<-release
		return nil
	}}
	cfg := testConfig()
	cfg.Listen = fmt.Sprintf("127.0.0.1:%d", port)
	srv := testServerWith(t, cfg, st, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", cfg.Listen)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)

	respCode := make(chan int, 1)
	go func() {
		resp, err := http.Get(fmt.Sprintf("http://%s/health", cfg.Listen))
		if err != nil {
			respCode <- 0
			return
		}
		defer resp.Body.Close()
		respCode <- resp.StatusCode
	}()

	<-entered
	cancel()
	select {
	case <-done:
		t.Fatal("run returned while a request was in flight")
	case <-time.After(200 * time.Millisecond):
	}

	close(release)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.Equal(t, http.StatusOK, <-respCode)
}

func TestServer_MetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Metrics = false
	srv := testServerWith(t, cfg, &mocks.StoreMock{}, nil, nil)
	w := doRequest(t, srv, "GET", "/metrics", http.NoBody)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServer_RequestID(t *testing.T) {
	srv := testServer(t, &mocks.StoreMock{}, nil)

	req := httptest.NewRequest("GET", "/", http.NoBody)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))

	var seen string
	h := requestID(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) { seen = RequestID(r.Context()) }))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/", http.NoBody))
	assert.Len(t, seen, 36, "uuid generated")
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))
	assert.Empty(t, RequestID(context.Background()))
}

func TestErrorStatus(t *testing.T) {
	tbl := []struct {
		err  error
		code int
	}{
		{&ValidationError{Param: "page", Reason: "bad"}, http.StatusBadRequest},
		{fmt.Errorf("wrap: %w", &ValidationError{Param: "limit", Reason: "bad"}), http.StatusBadRequest},
		{fmt.Errorf("%w: latitude", domain.ErrInvalid), http.StatusBadRequest},
		{fmt.Errorf("%w: can't sort", store.ErrInvalidQuery), http.StatusBadRequest},
		{fmt.Errorf("%w: xyz", scheduler.ErrUnknownFeed), http.StatusNotFound},
		{fmt.Errorf("query positions: %w: count: refused", store.ErrUnavailable), http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{errors.New("something else"), http.StatusInternalServerError},
	}
	for i, tt := range tbl {
		t.Run(fmt.Sprintf("case %d", i), func(t *testing.T) {
			assert.Equal(t, tt.code, errorStatus(tt.err))
		})
	}
}

func TestRenderError(t *testing.T) {
	srv := testServer(t, &mocks.StoreMock{}, nil)
	req := httptest.NewRequest("GET", "/test", http.NoBody)
	w := httptest.NewRecorder()

	srv.renderError(w, req, fmt.Errorf("query positions: %w", store.ErrUnavailable))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "query positions: store unavailable", resp["error"])
}
