package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"golang.org/x/sync/errgroup"

	"github.com/umputun/spacefeed/pkg/cache"
	"github.com/umputun/spacefeed/pkg/dataset"
	"github.com/umputun/spacefeed/pkg/domain"
	"github.com/umputun/spacefeed/pkg/store"
)

const (
	statsKeyPrefix  = "stats:"
	pascalKeyPrefix = "pascal:"
	maxPascalCount  = 1000
)

var endpoints = []string{
	"GET /health",
	"GET /api/v1/space/iss/positions",
	"POST /api/v1/space/iss/positions",
	"GET /api/v1/space/nasa/datasets",
	"GET /api/v1/space/apod",
	"GET /api/v1/space/images",
	"GET /api/v1/space/stats",
	"GET /api/v1/space/feeds",
	"POST /api/v1/space/feeds/{feed}/fetch",
	"GET /api/v1/pascal",
}

// rootHandler describes the service
func (s *Server) rootHandler(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, r, http.StatusOK, rest.JSON{
		"service":   "spacefeed",
		"status":    "ok",
		"version":   s.version,
		"time":      s.now().UTC(),
		"endpoints": endpoints,
	})
}

// healthHandler pings the store, responds with 503 and degraded status if it is unreachable
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	feeds := map[string]domain.TaskStatus{}
	for _, t := range s.scheduler.Tasks() {
		feeds[string(t.Feed)] = t.LastStatus
	}

	resp := rest.JSON{"status": "healthy", "database": "connected", "feeds": feeds, "time": s.now().UTC()}
	if err := s.store.Ping(ctx); err != nil {
		lgr.Printf("[WARN] health check, store ping failed: %v", err)
		resp["status"], resp["database"], resp["error"] = "degraded", "unavailable", err.Error()
		renderJSON(w, r, http.StatusServiceUnavailable, resp)
		return
	}
	renderJSON(w, r, http.StatusOK, resp)
}

// positionRequest is a manually reported position, timestamp defaults to now
type positionRequest struct {
	Timestamp  int64    `json:"timestamp"`
	Latitude   *float64 `json:"latitude"`
	Longitude  *float64 `json:"longitude"`
	Altitude   *float64 `json:"altitude"`
	Velocity   *float64 `json:"velocity"`
	Visibility string   `json:"visibility"`
}

// addPositionHandler stores a position posted by a client and drops cached position pages
func (s *Server) addPositionHandler(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.renderError(w, r, &ValidationError{Param: "body", Reason: err.Error()})
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		s.renderError(w, r, &ValidationError{Param: "body", Reason: "latitude and longitude are required"})
		return
	}

	pos := domain.ISSPosition{
		Timestamp:  req.Timestamp,
		Latitude:   *req.Latitude,
		Longitude:  *req.Longitude,
		Altitude:   req.Altitude,
		Velocity:   req.Velocity,
		Visibility: strings.ToLower(strings.TrimSpace(req.Visibility)),
	}
	if pos.Timestamp <= 0 {
		pos.Timestamp = s.now().Unix()
	}
	if err := pos.Validate(); err != nil {
		s.renderError(w, r, err)
		return
	}

	if err := s.store.Upsert(r.Context(), domain.EntityPositions, pos.Timestamp, pos.Fields()); err != nil {
		s.renderError(w, r, fmt.Errorf("store position: %w", err))
		return
	}
	s.invalidate(r.Context(), domain.EntityPositions)

	renderJSON(w, r, http.StatusCreated, rest.JSON{"status": "created", "position": pos})
}

// statsResponse holds record counts and the newest rows
type statsResponse struct {
	Database    map[string]int `json:"database"`
	Latest      latestRows     `json:"latest"`
	GeneratedAt time.Time      `json:"generated_at"`
}

type latestRows struct {
	ISSPosition *domain.ISSPosition `json:"iss_position"`
	APOD        *domain.Picture     `json:"apod"`
	Image       *domain.Image       `json:"image"`
}

// statsHandler returns counts of all entities and the newest rows, cached for the stats TTL
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	data, hit, err := s.cache.Fetch(r.Context(), cache.Key("stats", nil), s.cfg.StatsTTL, func(ctx context.Context) ([]byte, error) {
		st, err := s.collectStats(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(st)
	})
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	writeCached(w, "application/json; charset=utf-8", data, hit)
}

// collectStats runs all counts and latest-row lookups in parallel
func (s *Server) collectStats(ctx context.Context) (statsResponse, error) {
	entities := []domain.Entity{domain.EntityPositions, domain.EntityPictures, domain.EntityDatasets, domain.EntityImages}
	counts := make([]int, len(entities))
	var pos domain.ISSPosition
	var pic domain.Picture
	var img domain.Image
	found := make([]bool, 3)

	g, gctx := errgroup.WithContext(ctx)
	for i, e := range entities {
		g.Go(func() error {
			n, err := s.store.Count(gctx, e)
			if err != nil {
				return fmt.Errorf("count %s: %w", e, err)
			}
			counts[i] = n
			return nil
		})
	}
	latest := []struct {
		entity domain.Entity
		dest   any
	}{{domain.EntityPositions, &pos}, {domain.EntityPictures, &pic}, {domain.EntityImages, &img}}
	for i, l := range latest {
		g.Go(func() error {
			err := s.store.Latest(gctx, l.entity, l.dest)
			if errors.Is(err, store.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("latest %s: %w", l.entity, err)
			}
			found[i] = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return statsResponse{}, err
	}

	res := statsResponse{Database: map[string]int{}, GeneratedAt: s.now().UTC()}
	total := 0
	for i, e := range entities {
		res.Database[string(e)] = counts[i]
		total += counts[i]
	}
	res.Database["total_records"] = total
	if found[0] {
		res.Latest.ISSPosition = &pos
	}
	if found[1] {
		res.Latest.APOD = &pic
	}
	if found[2] {
		res.Latest.Image = &img
	}
	return res, nil
}

// feedView is the json form of a feed task
type feedView struct {
	Feed         domain.FeedID     `json:"feed"`
	Entity       domain.Entity     `json:"entity"`
	Interval     string            `json:"interval"`
	LastRun      *time.Time        `json:"last_run,omitempty"`
	LastStatus   domain.TaskStatus `json:"last_status"`
	LastError    string            `json:"last_error,omitempty"`
	LastDuration string            `json:"last_duration,omitempty"`
	Runs         int               `json:"runs"`
	Failures     int               `json:"failures"`
	Records      int               `json:"records"`
}

func newFeedView(t domain.FeedTask) feedView {
	v := feedView{
		Feed:       t.Feed,
		Entity:     t.Feed.Entity(),
		Interval:   t.Interval.String(),
		LastStatus: t.LastStatus,
		LastError:  t.LastError,
		Runs:       t.Runs,
		Failures:   t.Failures,
		Records:    t.Records,
	}
	if !t.LastRun.IsZero() {
		lastRun := t.LastRun.UTC()
		v.LastRun = &lastRun
		v.LastDuration = t.LastDuration.Round(time.Millisecond).String()
	}
	return v
}

// feedsHandler lists scheduled feeds with results of their last cycles
func (s *Server) feedsHandler(w http.ResponseWriter, r *http.Request) {
	tasks := s.scheduler.Tasks()
	res := make([]feedView, 0, len(tasks))
	for _, t := range tasks {
		res = append(res, newFeedView(t))
	}
	renderJSON(w, r, http.StatusOK, rest.JSON{"feeds": res, "total": len(res)})
}

// fetchFeedHandler runs a cycle of the feed right away. Cached pages of the feed's entity are dropped
// after a successful cycle, a failed cycle is reported with 502.
func (s *Server) fetchFeedHandler(w http.ResponseWriter, r *http.Request) {
	feed := domain.FeedID(r.PathValue("feed"))
	task, err := s.scheduler.RunNow(r.Context(), feed)
	if err != nil {
		s.renderError(w, r, err)
		return
	}
	if task.LastStatus != domain.StatusSuccess {
		renderJSON(w, r, http.StatusBadGateway, rest.JSON{"error": "fetch failed: " + task.LastError, "feed": newFeedView(task)})
		return
	}
	s.invalidate(r.Context(), feed.Entity())
	renderJSON(w, r, http.StatusOK, rest.JSON{"feed": newFeedView(task)})
}

// pascalHandler renders the synthetic dataset in the requested format. regenerate=true drops all cached exports first.
func (s *Server) pascalHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, err := dataset.ParseFormat(strings.TrimSpace(q.Get("format")))
	if err != nil {
		s.renderError(w, r, &ValidationError{Param: "format", Reason: err.Error()})
		return
	}

	count := 50
	if q.Has("count") {
		n, err := strconv.Atoi(strings.TrimSpace(q.Get("count")))
		if err != nil || n < 1 || n > maxPascalCount {
			s.renderError(w, r, &ValidationError{Param: "count",
				Reason: fmt.Sprintf("%q is not an integer between 1 and %d", q.Get("count"), maxPascalCount)})
			return
		}
		count = n
	}

	regenerate := false
	if v := q.Get("regenerate"); v != "" {
		if regenerate, err = strconv.ParseBool(v); err != nil {
			s.renderError(w, r, &ValidationError{Param: "regenerate", Reason: fmt.Sprintf("%q is not a boolean", v)})
			return
		}
	}
	if regenerate {
		n := s.cache.InvalidatePrefix(r.Context(), pascalKeyPrefix)
		lgr.Printf("[INFO] pascal dataset regeneration requested, %d cached exports dropped", n)
	}

	key := cache.Key("pascal", url.Values{"format": {string(format)}, "count": {strconv.Itoa(count)}})
	data, hit, err := s.cache.Fetch(r.Context(), key, s.cfg.SyntheticTTL, func(context.Context) ([]byte, error) {
		now := s.now()
		return dataset.Render(format, dataset.Generate(count, now), now)
	})
	if err != nil {
		s.renderError(w, r, err)
		return
	}

	switch format {
	case dataset.FormatCSV:
		w.Header().Set("Content-Disposition", `attachment; filename="pascal_data.csv"`)
	case dataset.FormatExcel:
		w.Header().Set("Content-Disposition", `attachment; filename="pascal_data.xlsx"`)
	}
	writeCached(w, format.ContentType(), data, hit)
}

// invalidate drops cached pages of the entity and cached stats
func (s *Server) invalidate(ctx context.Context, entity domain.Entity) {
	n := s.cache.InvalidatePrefix(ctx, string(entity)+":")
	n += s.cache.InvalidatePrefix(ctx, statsKeyPrefix)
	lgr.Printf("[DEBUG] dropped %d cached responses of %s", n, entity)
}
