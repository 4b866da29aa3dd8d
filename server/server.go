package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/umputun/spacefeed/pkg/cache"
	"github.com/umputun/spacefeed/pkg/domain"
	"github.com/umputun/spacefeed/pkg/ratelimit"
	"github.com/umputun/spacefeed/pkg/store"
)

//go:generate moq -out mocks/store.go -pkg mocks -skip-ensure -fmt goimports . Store
//go:generate moq -out mocks/scheduler.go -pkg mocks -skip-ensure -fmt goimports . Scheduler

// Server represents HTTP server instance
type Server struct {
	cfg       Config
	store     Store
	scheduler Scheduler
	cache     *cache.ReadThrough
	limiter   *ratelimit.Limiter
	version   string
	debug     bool
	now       func() time.Time

	lock       sync.Mutex
	httpServer *http.Server
	router     *routegroup.Bundle
}

// Store is the persistent store used by read and write handlers
type Store interface {
	Query(ctx context.Context, entity domain.Entity, q store.Query, dest any) (int, error)
	Count(ctx context.Context, entity domain.Entity) (int, error)
	Latest(ctx context.Context, entity domain.Entity, dest any) error
	Upsert(ctx context.Context, entity domain.Entity, key any, fields map[string]any) error
	Ping(ctx context.Context) error
}

// Scheduler exposes feed tasks state and on-demand fetches
type Scheduler interface {
	Tasks() []domain.FeedTask
	RunNow(ctx context.Context, feed domain.FeedID) (domain.FeedTask, error)
}

// Config holds server settings
type Config struct {
	Listen       string
	Timeout      time.Duration
	BodyLimit    int64
	Metrics      bool // expose /metrics
	MaxPage      int  // upper bound of limit parameter for all list routes
	ListingTTL   time.Duration
	StatsTTL     time.Duration
	SyntheticTTL time.Duration
}

// Params defines dependencies of the server, Limiter is optional
type Params struct {
	Config    Config
	Store     Store
	Scheduler Scheduler
	Cache     cache.Cache
	Limiter   *ratelimit.Limiter
	Version   string
	Debug     bool
}

// New initializes a new server instance
func New(params Params) *Server {
	s := &Server{
		cfg:       params.Config,
		store:     params.Store,
		scheduler: params.Scheduler,
		cache:     cache.NewReadThrough(params.Cache, params.Config.Timeout),
		limiter:   params.Limiter,
		version:   params.Version,
		debug:     params.Debug,
		now:       time.Now,
		router:    routegroup.New(http.NewServeMux()),
	}
	if s.cfg.MaxPage <= 0 {
		s.cfg.MaxPage = 100
	}
	if s.cfg.BodyLimit <= 0 {
		s.cfg.BodyLimit = 1024 * 1024
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Run starts the HTTP server and handles graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	lgr.Printf("[INFO] starting server on %s", s.cfg.Listen)

	s.lock.Lock()
	s.httpServer = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       s.cfg.Timeout,
		WriteTimeout:      s.cfg.Timeout,
	}
	s.lock.Unlock()

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		lgr.Printf("[INFO] shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		s.lock.Lock()
		defer s.lock.Unlock()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			lgr.Printf("[WARN] server shutdown error: %v", err)
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	// ListenAndServe returns as soon as Shutdown starts, in-flight requests are drained after that
	<-shutdownDone
	return nil
}

// Handler returns the router with all middlewares applied
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures standard middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(rest.AppInfo("spacefeed", "umputun", s.version))
	s.router.Use(rest.Ping)
	s.router.Use(requestID)

	if s.debug {
		s.router.Use(logger.New(logger.Log(lgr.Default()), logger.Prefix("[DEBUG]")).Handler)
	}

	s.router.Use(rest.Recoverer(lgr.Default()))
	s.router.Use(rest.SizeLimit(s.cfg.BodyLimit))
}

// setupRoutes configures application routes. Everything except /metrics goes through the rate limiter.
func (s *Server) setupRoutes() {
	if s.cfg.Metrics {
		s.router.Handle("GET /metrics", promhttp.Handler())
	}

	api := s.router.Group()
	api.Use(responseMetrics)
	if s.limiter != nil {
		api.Use(s.limiter.Middleware)
	}

	api.HandleFunc("GET /{$}", s.rootHandler)
	api.HandleFunc("GET /health", s.healthHandler)

	api.Mount("/api/v1").Route(func(r *routegroup.Bundle) {
		r.HandleFunc("GET /space/iss/positions", listHandler[domain.ISSPosition](s, positionsListing))
		r.HandleFunc("POST /space/iss/positions", s.addPositionHandler)
		r.HandleFunc("GET /space/nasa/datasets", listHandler[domain.Dataset](s, datasetsListing))
		r.HandleFunc("GET /space/apod", listHandler[domain.Picture](s, picturesListing))
		r.HandleFunc("GET /space/images", listHandler[domain.Image](s, imagesListing))
		r.HandleFunc("GET /space/stats", s.statsHandler)
		r.HandleFunc("GET /space/feeds", s.feedsHandler)
		r.HandleFunc("POST /space/feeds/{feed}/fetch", s.fetchFeedHandler)
		r.HandleFunc("GET /pascal", s.pascalHandler)

		// other methods of known paths get 405 instead of the catch-all 404
		for _, rt := range []struct{ path, allow string }{
			{"/space/iss/positions", "GET, POST"},
			{"/space/nasa/datasets", "GET"},
			{"/space/apod", "GET"},
			{"/space/images", "GET"},
			{"/space/stats", "GET"},
			{"/space/feeds", "GET"},
			{"/space/feeds/{feed}/fetch", "POST"},
			{"/pascal", "GET"},
		} {
			r.HandleFunc(rt.path, methodNotAllowed(rt.allow))
		}
	})
	api.HandleFunc("/health", methodNotAllowed("GET"))
}
