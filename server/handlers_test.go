package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/umputun/spacefeed/pkg/dataset"
	"github.com/umputun/spacefeed/pkg/domain"
	"github.com/umputun/spacefeed/pkg/scheduler"
	"github.com/umputun/spacefeed/server/mocks"
)

func TestServer_addPositionHandler(t *testing.T) {
	st := sqliteStore(t)
	seedPositions(t, st, 2)
	srv := testServer(t, st, nil)

	// warm the cache, the new position must show up right after the post
	w := doRequest(t, srv, "GET", "/api/v1/space/iss/positions", http.NoBody)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, srv, "POST", "/api/v1/space/iss/positions",
		strings.NewReader(`{"latitude": 51.5, "longitude": -0.12, "altitude": 420.5, "visibility": "Daylight"}`))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var created struct {
		Status   string             `json:"status"`
		Position domain.ISSPosition `json:"position"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.Equal(t, "created", created.Status)
	assert.Equal(t, testNow.Unix(), created.Position.Timestamp)
	assert.Equal(t, "daylight", created.Position.Visibility)

	w = doRequest(t, srv, "GET", "/api/v1/space/iss/positions", http.NoBody)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	var page positionsPage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, testNow.Unix(), page.Items[0].Timestamp)
	require.NotNil(t, page.Items[0].Altitude)
	assert.InDelta(t, 420.5, *page.Items[0].Altitude, 0.001)

	// posting the same timestamp again keeps a single row
	w = doRequest(t, srv, "POST", "/api/v1/space/iss/positions",
		strings.NewReader(fmt.Sprintf(`{"timestamp": %d, "latitude": 10, "longitude": 20}`, testNow.Unix())))
	require.Equal(t, http.StatusCreated, w.Code)
	count, err := st.Count(context.Background(), domain.EntityPositions)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestServer_addPositionHandler_Invalid(t *testing.T) {
	st := &mocks.StoreMock{}
	srv := testServer(t, st, nil)

	tbl := []struct {
		name string
		body string
		err  string
	}{
		{"not json", `{latitude`, "invalid body"},
		{"missing longitude", `{"latitude": 10}`, "latitude and longitude are required"},
		{"latitude out of range", `{"latitude": 91, "longitude": 0}`, "latitude 91 must be between -90 and 90"},
		{"longitude out of range", `{"latitude": 0, "longitude": -180.5}`, "longitude -180.5 must be between"},
		{"negative altitude", `{"latitude": 0, "longitude": 0, "altitude": -1}`, "altitude"},
		{"bad visibility", `{"latitude": 0, "longitude": 0, "visibility": "dark"}`, "visibility"},
	}
	for _, tt := range tbl {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, srv, "POST", "/api/v1/space/iss/positions", strings.NewReader(tt.body))
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tt.err)
		})
	}
	assert.Empty(t, st.UpsertCalls(), "invalid positions never reach the store")
}

func TestServer_statsHandler(t *testing.T) {
	st := sqliteStore(t)
	srv := testServer(t, st, nil)

	w := doRequest(t, srv, "GET", "/api/v1/space/stats", http.NoBody)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var empty statsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &empty))
	assert.Equal(t, 0, empty.Database["total_records"])
	assert.Nil(t, empty.Latest.ISSPosition)
	assert.Nil(t, empty.Latest.APOD)

	seedPositions(t, st, 4)
	ctx := context.Background()
	require.NoError(t, st.Upsert(ctx, domain.EntityPictures, "2024-05-30", map[string]any{"title": "older"}))
	require.NoError(t, st.Upsert(ctx, domain.EntityPictures, "2024-05-31", map[string]any{"title": "newest"}))

	// cached until invalidated
	w = doRequest(t, srv, "GET", "/api/v1/space/stats", http.NoBody)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))

	srv.invalidate(ctx, domain.EntityPositions)
	w = doRequest(t, srv, "GET", "/api/v1/space/stats", http.NoBody)
	assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	var stats statsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 4, stats.Database["positions"])
	assert.Equal(t, 2, stats.Database["pictures"])
	assert.Equal(t, 0, stats.Database["datasets"])
	assert.Equal(t, 6, stats.Database["total_records"])
	require.NotNil(t, stats.Latest.ISSPosition)
	assert.Equal(t, int64(4), stats.Latest.ISSPosition.Timestamp)
	require.NotNil(t, stats.Latest.APOD)
	assert.Equal(t, "newest", stats.Latest.APOD.Title)
	assert.Nil(t, stats.Latest.Image)
	assert.True(t, testNow.Equal(stats.GeneratedAt))
}

func TestServer_statsHandler_StoreDown(t *testing.T) {
	st := sqliteStore(t)
	srv := testServer(t, st, nil)
	require.NoError(t, st.Close())

	w := doRequest(t, srv, "GET", "/api/v1/space/stats", http.NoBody)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "store unavailable")
}

func TestServer_feedsHandler(t *testing.T) {
	lastRun := testNow.Add(-time.Minute)
	sched := &mocks.SchedulerMock{TasksFunc: func() []domain.FeedTask {
		return []domain.FeedTask{
			{Feed: domain.FeedISS, Interval: 2 * time.Minute, LastRun: lastRun, LastStatus: domain.StatusSuccess,
				LastDuration: 1500 * time.Millisecond, Runs: 3, Records: 1},
			{Feed: domain.FeedAPOD, Interval: 12 * time.Hour, LastStatus: domain.StatusNever},
		}
	}}
	srv := testServer(t, &mocks.StoreMock{}, sched)

	w := doRequest(t, srv, "GET", "/api/v1/space/feeds", http.NoBody)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, fmt.Sprintf(`{"total": 2, "feeds": [
		{"feed": "iss", "entity": "positions", "interval": "2m0s", "last_run": %q, "last_status": "success",
		 "last_duration": "1.5s", "runs": 3, "failures": 0, "records": 1},
		{"feed": "apod", "entity": "pictures", "interval": "12h0m0s", "last_status": "never",
		 "runs": 0, "failures": 0, "records": 0}
	]}`, lastRun.Format(time.RFC3339)), w.Body.String())
}

func TestServer_fetchFeedHandler(t *testing.T) {
	t.Run("success invalidates the feed's pages", func(t *testing.T) {
		st := sqliteStore(t)
		seedPositions(t, st, 1)
		sched := &mocks.SchedulerMock{RunNowFunc: func(_ context.Context, feed domain.FeedID) (domain.FeedTask, error) {
			seedPositions(t, st, 2)
			return domain.FeedTask{Feed: feed, LastStatus: domain.StatusSuccess, Runs: 1, Records: 1, LastRun: testNow}, nil
		}}
		srv := testServer(t, st, sched)

		w := doRequest(t, srv, "GET", "/api/v1/space/iss/positions", http.NoBody)
		require.Equal(t, "MISS", w.Header().Get("X-Cache"))

		w = doRequest(t, srv, "POST", "/api/v1/space/feeds/iss/fetch", http.NoBody)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Contains(t, w.Body.String(), `"last_status":"success"`)
		require.Len(t, sched.RunNowCalls(), 1)
		assert.Equal(t, domain.FeedISS, sched.RunNowCalls()[0].Feed)

		w = doRequest(t, srv, "GET", "/api/v1/space/iss/positions", http.NoBody)
		assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
		var page positionsPage
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &page))
		assert.Equal(t, 2, page.Total)
	})

	t.Run("unknown feed", func(t *testing.T) {
		sched := &mocks.SchedulerMock{RunNowFunc: func(_ context.Context, feed domain.FeedID) (domain.FeedTask, error) {
			return domain.FeedTask{}, fmt.Errorf("%w: %s", scheduler.ErrUnknownFeed, feed)
		}}
		srv := testServer(t, &mocks.StoreMock{}, sched)

		w := doRequest(t, srv, "POST", "/api/v1/space/feeds/mars/fetch", http.NoBody)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.JSONEq(t, `{"error": "unknown feed: mars"}`, w.Body.String())
	})

	t.Run("failed cycle", func(t *testing.T) {
		sched := &mocks.SchedulerMock{RunNowFunc: func(_ context.Context, feed domain.FeedID) (domain.FeedTask, error) {
			return domain.FeedTask{Feed: feed, LastStatus: domain.StatusFailure, LastError: "fetch: timeout", Failures: 1}, nil
		}}
		srv := testServer(t, &mocks.StoreMock{}, sched)

		w := doRequest(t, srv, "POST", "/api/v1/space/feeds/apod/fetch", http.NoBody)
		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Contains(t, w.Body.String(), `"error":"fetch failed: fetch: timeout"`)
	})

	t.Run("get is not allowed", func(t *testing.T) {
		srv := testServer(t, &mocks.StoreMock{}, nil)
		w := doRequest(t, srv, "GET", "/api/v1/space/feeds/iss/fetch", http.NoBody)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
		assert.Equal(t, "POST", w.Header().Get("Allow"))
		assert.Contains(t, w.Body.String(), "method GET is not allowed")
	})
}

func TestServer_pascalHandler(t *testing.T) {
	srv := testServer(t, &mocks.StoreMock{}, nil)

	t.Run("json by default", func(t *testing.T) {
		w := doRequest(t, srv, "GET", "/api/v1/pascal?count=5", http.NoBody)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))

		var doc dataset.Document
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
		assert.Equal(t, 5, doc.Count)
		require.Len(t, doc.Data, 5)
		assert.Equal(t, dataset.True, doc.Data[0].BooleanField)
		assert.Equal(t, dataset.False, doc.Data[1].BooleanField)
		assert.Equal(t, testNow.Format(time.RFC3339), doc.GeneratedAt)
	})

	t.Run("csv", func(t *testing.T) {
		w := doRequest(t, srv, "GET", "/api/v1/pascal?format=csv&count=3", http.NoBody)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "text/csv; charset=utf-8", w.Header().Get("Content-Type"))
		assert.Equal(t, `attachment; filename="pascal_data.csv"`, w.Header().Get("Content-Disposition"))
		lines := strings.Split(strings.TrimSpace(strings.TrimPrefix(w.Body.String(), "\ufeff")), "\n")
		assert.Len(t, lines, 4, "header and 3 rows")
	})

	t.Run("excel", func(t *testing.T) {
		w := doRequest(t, srv, "GET", "/api/v1/pascal?format=excel&count=2", http.NoBody)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, `attachment; filename="pascal_data.xlsx"`, w.Header().Get("Content-Disposition"))
		f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
		require.NoError(t, err)
		defer f.Close()
		rows, err := f.GetRows(dataset.SheetName)
		require.NoError(t, err)
		assert.Len(t, rows, 3)
	})

	t.Run("cached until regenerated", func(t *testing.T) {
		w := doRequest(t, srv, "GET", "/api/v1/pascal?format=html&count=2", http.NoBody)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
		assert.Contains(t, w.Body.String(), "<table")

		w = doRequest(t, srv, "GET", "/api/v1/pascal?format=html&count=2", http.NoBody)
		assert.Equal(t, "HIT", w.Header().Get("X-Cache"))

		w = doRequest(t, srv, "GET", "/api/v1/pascal?format=html&count=2&regenerate=true", http.NoBody)
		assert.Equal(t, "MISS", w.Header().Get("X-Cache"))

		// regeneration drops every format
		w = doRequest(t, srv, "GET", "/api/v1/pascal?format=csv&count=3", http.NoBody)
		assert.Equal(t, "MISS", w.Header().Get("X-Cache"))
	})

	t.Run("invalid params", func(t *testing.T) {
		for _, q := range []string{"format=pdf", "count=0", "count=1001", "count=x", "regenerate=maybe"} {
			w := doRequest(t, srv, "GET", "/api/v1/pascal?"+q, http.NoBody)
			assert.Equal(t, http.StatusBadRequest, w.Code, q)
		}
	})
}
