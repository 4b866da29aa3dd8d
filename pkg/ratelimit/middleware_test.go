package ratelimit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware(t *testing.T) {
	clock := newFakeClock()
	clock.Advance(15 * time.Second)
	l := New(NewMemoryCounter(clock.Now), Config{
		Default: Rule{Limit: 2, Window: time.Minute},
		Routes:  map[string]Rule{"/metrics": {Limit: 0}},
		Clock:   clock.Now,
	})

	var served int
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		served++
		w.WriteHeader(http.StatusOK)
	}))

	call := func(path, remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
		req.RemoteAddr = remote
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	rr := call("/health", "192.0.2.1:1234")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "2", rr.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rr.Header().Get("X-RateLimit-Remaining"))
	reset := clock.Now().Truncate(time.Minute).Add(time.Minute).Unix()
	assert.Equal(t, strconv.FormatInt(reset, 10), rr.Header().Get("X-RateLimit-Reset"))

	rr = call("/health", "192.0.2.1:1235")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))

	rr = call("/health", "192.0.2.1:1236")
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "45", rr.Header().Get("Retry-After"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Contains(t, body["error"], "rate limit exceeded")
	assert.Equal(t, 2, served)

	rr = call("/health", "192.0.2.2:1234")
	assert.Equal(t, http.StatusOK, rr.Code, "other client admitted")

	for i := 0; i < 5; i++ {
		rr = call("/metrics", "192.0.2.1:1234")
		assert.Equal(t, http.StatusOK, rr.Code, "unlimited route")
		assert.Empty(t, rr.Header().Get("X-RateLimit-Limit"))
	}
}

func TestMiddleware_IgnoresForwardedHeaders(t *testing.T) {
	clock := newFakeClock()
	l := New(NewMemoryCounter(clock.Now), Config{Default: Rule{Limit: 1, Window: time.Minute}, Clock: clock.Now})
	h := l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }))

	admitted := 0
	for i := range 20 {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/space/stats", http.NoBody)
		req.RemoteAddr = "192.0.2.1:1234"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		req.Header.Set("X-Real-IP", fmt.Sprintf("198.51.100.%d", i))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code == http.StatusOK {
			admitted++
		}
	}
	assert.Equal(t, 1, admitted, "rotating proxy headers don't make a new client")
}

func TestMiddleware_RouteByPattern(t *testing.T) {
	clock := newFakeClock()
	l := New(NewMemoryCounter(clock.Now), Config{
		Default: Rule{Limit: 100, Window: time.Minute},
		Routes:  map[string]Rule{"/feeds*": {Limit: 3}},
		Clock:   clock.Now,
	})
	mux := http.NewServeMux()
	mux.Handle("POST /feeds/{feed}/fetch", l.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})))

	codes := map[int]int{}
	for i := range 50 {
		req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/feeds/junk%d/fetch", i), http.NoBody)
		req.RemoteAddr = "192.0.2.1:1234"
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		codes[rr.Code]++
	}
	assert.Equal(t, map[int]int{http.StatusOK: 3, http.StatusTooManyRequests: 47}, codes, "one counter for all feeds")

	// decisions are labeled by rule, never by the raw path
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "spacefeed_ratelimit_decisions_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				assert.NotContains(t, lp.GetValue(), "junk")
			}
		}
	}
}

func TestLimiter_route(t *testing.T) {
	l := New(NewMemoryCounter(nil), Config{Routes: map[string]Rule{"/api/v1/*": {Limit: 60}, "/health": {Limit: 30}}})
	tbl := []struct {
		pattern, path, want string
	}{
		{"POST /api/v1/space/feeds/{feed}/fetch", "/api/v1/space/feeds/iss/fetch", "/api/v1/space/feeds/{feed}/fetch"},
		{"/api/v1/space/iss/positions", "/api/v1/space/iss/positions", "/api/v1/space/iss/positions"},
		{"GET /{$}", "/", "/"},
		{"", "/api/v1/anything/123", "/api/v1/*"},
		{"", "/health", "/health"},
		{"", "/random/path", "default"},
	}
	for _, tt := range tbl {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
			req.Pattern = tt.pattern
			assert.Equal(t, tt.want, l.route(req))
		})
	}
}

func TestClientID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	req.RemoteAddr = "192.0.2.10:5555"
	assert.Equal(t, "192.0.2.10", ClientID(req, false))
	assert.Equal(t, "192.0.2.10", ClientID(req, true))

	req.Header.Set("X-Real-IP", "93.184.216.34")
	assert.Equal(t, "192.0.2.10", ClientID(req, false), "proxy header ignored")
	assert.Equal(t, "93.184.216.34", ClientID(req, true))

	req.RemoteAddr = "192.0.2.11"
	assert.Equal(t, "192.0.2.11", ClientID(req, false), "remote addr without port")
}
