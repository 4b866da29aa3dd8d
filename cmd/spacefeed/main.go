package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"
	"github.com/redis/go-redis/v9"

	"github.com/umputun/spacefeed/pkg/cache"
	"github.com/umputun/spacefeed/pkg/config"
	"github.com/umputun/spacefeed/pkg/domain"
	"github.com/umputun/spacefeed/pkg/ratelimit"
	"github.com/umputun/spacefeed/pkg/scheduler"
	"github.com/umputun/spacefeed/pkg/source"
	"github.com/umputun/spacefeed/pkg/store"
	"github.com/umputun/spacefeed/server"
)

// Opts with all CLI options, non-empty values override the config file
type Opts struct {
	Config  string `short:"c" long:"config" env:"CONFIG" description:"configuration file, defaults are used if empty"`
	Listen  string `short:"l" long:"listen" env:"LISTEN" description:"listen address"`
	DB      string `long:"db" env:"DB_DSN" description:"sqlite file or postgres:// url"`
	Redis   string `long:"redis" env:"REDIS_URL" description:"redis url, switches cache and rate limiter to redis"`
	NASAKey string `long:"nasa-key" env:"NASA_API_KEY" description:"api.nasa.gov key"`

	// Common options
	Debug   bool `long:"dbg" env:"DEBUG" description:"debug mode"`
	Version bool `short:"V" long:"version" description:"show version info"`
	NoColor bool `long:"no-color" env:"NO_COLOR" description:"disable color output"`
}

var revision = "unknown"

func main() {
	var opts Opts
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	if opts.Version {
		fmt.Printf("Version: %s\nGolang: %s\n", revision, runtime.Version())
		os.Exit(0)
	}

	if opts.NoColor {
		color.NoColor = true
	}
	setupLog(opts.Debug, opts.NASAKey)

	lgr.Printf("[INFO] starting spacefeed version %s", revision)

	ctx, cancel := context.WithCancel(context.Background())

	// handle termination signals
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan
		lgr.Print("[INFO] termination signal received")
		cancel()
	}()

	err := run(ctx, opts)
	cancel()

	if err != nil {
		lgr.Printf("[ERROR] %v", err)
		os.Exit(1)
	}

	lgr.Print("[INFO] shutdown complete")
}

// run wires all components and blocks until ctx is canceled or the server fails
func run(ctx context.Context, opts Opts) error {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyOverrides(cfg, opts)
	if cfg.NASA.APIKey != opts.NASAKey {
		setupLog(opts.Debug, cfg.NASA.APIKey) // key from the config file goes into request urls and errors
	}

	st, err := store.New(ctx, store.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			lgr.Printf("[WARN] failed to close store: %v", err)
		}
	}()

	respCache, err := makeCache(ctx, cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to make cache: %w", err)
	}
	defer func() {
		if err := respCache.Close(); err != nil {
			lgr.Printf("[WARN] failed to close cache: %v", err)
		}
	}()

	limiter, closeLimiter, err := makeLimiter(ctx, cfg.RateLimit)
	if err != nil {
		return fmt.Errorf("failed to make rate limiter: %w", err)
	}
	defer closeLimiter()

	client := source.NewClient(source.Config{
		Feeds:             sourceFeeds(cfg.Feeds),
		APIKey:            cfg.NASA.APIKey,
		RequestsPerSecond: cfg.NASA.RequestsPerSecond,
		RetryAttempts:     cfg.Scheduler.RetryAttempts,
		RetryDelay:        cfg.Scheduler.RetryDelay,
	})
	sched := scheduler.NewScheduler(scheduler.Params{
		Tasks:        schedulerTasks(cfg.Feeds),
		Ingestor:     scheduler.NewIngestor(client, source.NewDecoder(cfg.Scheduler.MaxDatasets), st),
		CycleTimeout: cfg.Scheduler.CycleTimeout,
		RunOnStart:   cfg.Scheduler.RunOnStart,
	})

	srv := server.New(server.Params{
		Config: server.Config{
			Listen:       cfg.Server.Listen,
			Timeout:      cfg.Server.Timeout,
			BodyLimit:    cfg.Server.BodyLimit,
			Metrics:      cfg.Server.Metrics,
			MaxPage:      cfg.Server.MaxPage,
			ListingTTL:   cfg.Cache.ListingTTL,
			StatsTTL:     cfg.Cache.StatsTTL,
			SyntheticTTL: cfg.Cache.SyntheticTTL,
		},
		Store:     st,
		Scheduler: sched,
		Cache:     respCache,
		Limiter:   limiter,
		Version:   revision,
		Debug:     opts.Debug,
	})

	sched.Start(ctx)
	defer sched.Stop() // in-flight cycles finish before the store is closed

	if err := srv.Run(ctx); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// applyOverrides puts non-empty cli and env values over the config file
func applyOverrides(cfg *config.Config, opts Opts) {
	if opts.Listen != "" {
		cfg.Server.Listen = opts.Listen
	}
	if opts.DB != "" {
		cfg.Database.DSN = opts.DB
	}
	if opts.Redis != "" {
		cfg.Cache.Backend, cfg.Cache.RedisURL = "redis", opts.Redis
		cfg.RateLimit.Backend, cfg.RateLimit.RedisURL = "redis", opts.Redis
	}
	if opts.NASAKey != "" {
		cfg.NASA.APIKey = opts.NASAKey
	}
}

func makeCache(ctx context.Context, cfg config.CacheConfig) (cache.Cache, error) {
	if cfg.Backend == "redis" {
		rc, err := cache.NewRedis(ctx, cache.RedisConfig{URL: cfg.RedisURL, Prefix: cfg.Prefix, Timeout: cfg.OpTimeout})
		if err != nil {
			return nil, err
		}
		return rc, nil
	}
	lgr.Printf("[INFO] memory cache, max %d entries", cfg.MaxEntries)
	return cache.NewMemory(cache.MemoryConfig{MaxEntries: cfg.MaxEntries}), nil
}

// makeLimiter returns the limiter and a function releasing its backend
func makeLimiter(ctx context.Context, cfg config.RateLimitConfig) (*ratelimit.Limiter, func(), error) {
	rules := make(map[string]ratelimit.Rule, len(cfg.Routes))
	for route, rl := range cfg.Routes {
		rules[route] = ratelimit.Rule{Limit: rl.Limit, Window: rl.Window}
	}
	limiterCfg := ratelimit.Config{Default: ratelimit.Rule{Limit: cfg.Limit, Window: cfg.Window}, Routes: rules,
		TrustForwarded: cfg.TrustForwarded}

	if cfg.Backend != "redis" {
		lgr.Printf("[INFO] memory rate limiter, %d requests per %v by default", cfg.Limit, cfg.Window)
		return ratelimit.New(ratelimit.NewMemoryCounter(nil), limiterCfg), func() {}, nil
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(redisOpts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		lgr.Printf("[WARN] redis rate limiter at %s is not reachable, requests are admitted until it is: %v", redisOpts.Addr, err)
	} else {
		lgr.Printf("[INFO] redis rate limiter connected to %s", redisOpts.Addr)
	}
	closeFn := func() {
		if err := client.Close(); err != nil {
			lgr.Printf("[WARN] failed to close redis client: %v", err)
		}
	}
	return ratelimit.New(ratelimit.NewRedisCounter(client, "", cfg.OpTimeout), limiterCfg), closeFn, nil
}

// feedList maps configured feeds to their ids, disabled and url-less feeds are skipped
func feedList(feeds config.FeedsConfig) map[domain.FeedID]config.FeedConfig {
	res := map[domain.FeedID]config.FeedConfig{}
	for id, fc := range map[domain.FeedID]config.FeedConfig{domain.FeedISS: feeds.ISS, domain.FeedAPOD: feeds.APOD,
		domain.FeedOSDR: feeds.OSDR, domain.FeedImages: feeds.Images} {
		if fc.Disabled || fc.URL == "" {
			lgr.Printf("[INFO] feed %s is disabled", id)
			continue
		}
		res[id] = fc
	}
	return res
}

func sourceFeeds(feeds config.FeedsConfig) map[domain.FeedID]source.FeedConfig {
	res := map[domain.FeedID]source.FeedConfig{}
	for id, fc := range feedList(feeds) {
		res[id] = source.FeedConfig{URL: fc.URL, Timeout: fc.Timeout}
	}
	return res
}

// schedulerTasks returns tasks of enabled feeds in a stable order
func schedulerTasks(feeds config.FeedsConfig) []scheduler.TaskConfig {
	enabled := feedList(feeds)
	res := make([]scheduler.TaskConfig, 0, len(enabled))
	for _, id := range []domain.FeedID{domain.FeedISS, domain.FeedAPOD, domain.FeedOSDR, domain.FeedImages} {
		if fc, ok := enabled[id]; ok {
			res = append(res, scheduler.TaskConfig{Feed: id, Interval: fc.Interval})
		}
	}
	return res
}

func setupLog(dbg bool, secs ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	// empty secrets would mask every gap in the log line
	var nonEmpty []string
	for _, s := range secs {
		if s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	if len(nonEmpty) > 0 {
		logOpts = append(logOpts, lgr.Secret(nonEmpty...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
