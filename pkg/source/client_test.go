package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/spacefeed/pkg/domain"
)

func newTestClient(url string) *Client {
	return NewClient(Config{
		Feeds:         map[domain.FeedID]FeedConfig{domain.FeedISS: {URL: url, Timeout: time.Second}},
		RetryAttempts: 3,
		RetryDelay:    time.Millisecond,
		RetryMaxDelay: 5 * time.Millisecond,
	})
}

func TestClient_FetchFeed(t *testing.T) {
	var ua string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua = r.Header.Get("User-Agent")
		_, _ = w.Write([]byte(`{"message":"success"}`))
	}))
	defer ts.Close()

	body, err := newTestClient(ts.URL).FetchFeed(context.Background(), domain.FeedISS)
	require.NoError(t, err)
	assert.JSONEq(t, `{"message":"success"}`, string(body))
	assert.Equal(t, "spacefeed/1.0", ua)
}

func TestClient_FetchFeedRetriesTransient(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`ok`))
	}))
	defer ts.Close()

	body, err := newTestClient(ts.URL).FetchFeed(context.Background(), domain.FeedISS)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_FetchFeedExhaustsRetries(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).FetchFeed(context.Background(), domain.FeedISS)
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.True(t, IsTransient(err))
	assert.NotErrorIs(t, err, ErrPermanent)

	var srcErr *Error
	require.True(t, errors.As(err, &srcErr))
	assert.Equal(t, http.StatusServiceUnavailable, srcErr.Status)
	assert.Equal(t, domain.FeedISS, srcErr.Feed)
}

func TestClient_FetchFeedPermanentNotRetried(t *testing.T) {
	var calls int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer ts.Close()

	_, err := newTestClient(ts.URL).FetchFeed(context.Background(), domain.FeedISS)
	require.ErrorIs(t, err, ErrPermanent)
	assert.False(t, IsTransient(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_FetchFeedTimeout(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer ts.Close()

	c := NewClient(Config{
		Feeds:         map[domain.FeedID]FeedConfig{domain.FeedISS: {URL: ts.URL, Timeout: 20 * time.Millisecond}},
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
	})
	st := time.Now()
	_, err := c.FetchFeed(context.Background(), domain.FeedISS)
	require.Error(t, err)
	assert.True(t, IsTransient(err), "timeout is transient: %v", err)
	assert.Less(t, time.Since(st), 900*time.Millisecond)
}

func TestClient_FetchFeedNotConfigured(t *testing.T) {
	c := newTestClient("http://localhost")
	_, err := c.FetchFeed(context.Background(), domain.FeedAPOD)
	require.ErrorIs(t, err, ErrPermanent)
	assert.Contains(t, err.Error(), "not configured")

	c = NewClient(Config{Feeds: map[domain.FeedID]FeedConfig{domain.FeedISS: {URL: "ftp://example.com/x"}}})
	_, err = c.FetchFeed(context.Background(), domain.FeedISS)
	require.ErrorIs(t, err, ErrPermanent)
}

func TestClient_FetchFeedBodyLimit(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(make([]byte, 100))
	}))
	defer ts.Close()

	c := NewClient(Config{Feeds: map[domain.FeedID]FeedConfig{domain.FeedISS: {URL: ts.URL}}, MaxBodySize: 50})
	_, err := c.FetchFeed(context.Background(), domain.FeedISS)
	require.ErrorIs(t, err, ErrPermanent)
}

func TestClient_FetchFeedCanceled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestClient(ts.URL).FetchFeed(ctx, domain.FeedISS)
	require.Error(t, err)
	assert.False(t, IsTransient(err))
}

func TestClient_feedURL(t *testing.T) {
	c := NewClient(Config{APIKey: "secret"})

	u, err := c.feedURL("https://api.nasa.gov/planetary/apod?api_key=")
	require.NoError(t, err)
	assert.Equal(t, "https://api.nasa.gov/planetary/apod?api_key=secret", u)

	u, err = c.feedURL("https://api.nasa.gov/planetary/apod?api_key=mine")
	require.NoError(t, err)
	assert.Equal(t, "https://api.nasa.gov/planetary/apod?api_key=mine", u)

	u, err = c.feedURL("http://api.open-notify.org/iss-now.json")
	require.NoError(t, err)
	assert.Equal(t, "http://api.open-notify.org/iss-now.json", u, "key is not sent to other hosts")

	_, err = c.feedURL("://bad")
	require.Error(t, err)
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		kind   Kind
	}{
		{http.StatusInternalServerError, KindTransient},
		{http.StatusBadGateway, KindTransient},
		{http.StatusTooManyRequests, KindTransient},
		{http.StatusRequestTimeout, KindTransient},
		{http.StatusNotFound, KindPermanent},
		{http.StatusUnauthorized, KindPermanent},
		{http.StatusBadRequest, KindPermanent},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := classifyStatus(domain.FeedAPOD, tt.status)
			assert.Equal(t, tt.kind, err.Kind)
			assert.Equal(t, tt.status, err.Status)
		})
	}
}
