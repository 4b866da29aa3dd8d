package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

//go:generate go run ../../cmd/schema/main.go schema.json

// Config holds the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" json:"server" jsonschema:"description=Server configuration"`
	Database  DatabaseConfig  `yaml:"database" json:"database" jsonschema:"description=Database configuration"`
	Cache     CacheConfig     `yaml:"cache" json:"cache" jsonschema:"description=Response cache configuration"`
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit" jsonschema:"description=Rate limiter configuration"`
	Feeds     FeedsConfig     `yaml:"feeds" json:"feeds" jsonschema:"description=External feeds"`
	NASA      NASAConfig      `yaml:"nasa" json:"nasa" jsonschema:"description=NASA API access"`
	Scheduler SchedulerConfig `yaml:"scheduler" json:"scheduler" jsonschema:"description=Fetch scheduler configuration"`
}

// ServerConfig holds http server settings
type ServerConfig struct {
	Listen    string        `yaml:"listen" json:"listen" jsonschema:"default=:8080,description=HTTP server listen address"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout" jsonschema:"default=30s,description=HTTP server timeout"`
	BodyLimit int64         `yaml:"body_limit" json:"body_limit" jsonschema:"default=1048576,description=Maximum request body size in bytes"`
	Metrics   bool          `yaml:"metrics" json:"metrics" jsonschema:"default=false,description=Expose prometheus metrics on /metrics"`
	MaxPage   int           `yaml:"max_page_size" json:"max_page_size" jsonschema:"default=100,minimum=1,description=Maximum page size of list endpoints"`
}

// DatabaseConfig holds persistent store settings
type DatabaseConfig struct {
	DSN             string `yaml:"dsn" json:"dsn" jsonschema:"default=file:spacefeed.db?cache=shared&mode=rwc&_txlock=immediate,description=SQLite file DSN or postgres:// URL"`
	MaxOpenConns    int    `yaml:"max_open_conns" json:"max_open_conns" jsonschema:"default=10,description=Maximum number of open connections"`
	MaxIdleConns    int    `yaml:"max_idle_conns" json:"max_idle_conns" jsonschema:"default=5,description=Maximum number of idle connections"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime" json:"conn_max_lifetime" jsonschema:"default=3600,description=Connection maximum lifetime in seconds"`
}

// CacheConfig holds response cache settings
type CacheConfig struct {
	Backend      string        `yaml:"backend" json:"backend" jsonschema:"default=memory,enum=memory,enum=redis,description=Cache backend"`
	RedisURL     string        `yaml:"redis_url" json:"redis_url" jsonschema:"description=Redis URL for redis backend"`
	Prefix       string        `yaml:"prefix" json:"prefix" jsonschema:"default=spacefeed:cache:,description=Redis key prefix"`
	ListingTTL   time.Duration `yaml:"listing_ttl" json:"listing_ttl" jsonschema:"default=5m,description=TTL of paginated list responses"`
	StatsTTL     time.Duration `yaml:"stats_ttl" json:"stats_ttl" jsonschema:"default=10m,description=TTL of aggregate statistics"`
	SyntheticTTL time.Duration `yaml:"synthetic_ttl" json:"synthetic_ttl" jsonschema:"default=5m,description=TTL of generated dataset exports"`
	MaxEntries   int           `yaml:"max_entries" json:"max_entries" jsonschema:"default=10000,description=Maximum entries of memory backend"`
	OpTimeout    time.Duration `yaml:"op_timeout" json:"op_timeout" jsonschema:"default=250ms,description=Timeout of a single redis operation"`
}

// RouteLimit overrides the default limit for a route
type RouteLimit struct {
	Limit  int           `yaml:"limit" json:"limit" jsonschema:"minimum=1,description=Requests per window"`
	Window time.Duration `yaml:"window" json:"window" jsonschema:"description=Window length, default window if empty"`
}

// RateLimitConfig holds rate limiter settings
type RateLimitConfig struct {
	Backend   string                `yaml:"backend" json:"backend" jsonschema:"default=memory,enum=memory,enum=redis,description=Counter backend"`
	RedisURL  string                `yaml:"redis_url" json:"redis_url" jsonschema:"description=Redis URL for redis backend"`
	Limit     int                   `yaml:"limit" json:"limit" jsonschema:"default=100,minimum=1,description=Default requests per window"`
	Window    time.Duration         `yaml:"window" json:"window" jsonschema:"default=60s,description=Default window length"`
	Routes    map[string]RouteLimit `yaml:"routes" json:"routes" jsonschema:"description=Per-route limits by exact path or prefix ending with *"`
	OpTimeout time.Duration         `yaml:"op_timeout" json:"op_timeout" jsonschema:"default=250ms,description=Timeout of a single redis operation"`

	TrustForwarded bool `yaml:"trust_forwarded" json:"trust_forwarded" jsonschema:"default=false,description=Take client ip from X-Real-IP and X-Forwarded-For, enable only behind a proxy setting them"`
}

// FeedConfig holds settings of one external feed
type FeedConfig struct {
	URL      string        `yaml:"url" json:"url" jsonschema:"description=Feed URL, feed is disabled if empty"`
	Interval time.Duration `yaml:"interval" json:"interval" jsonschema:"description=Fetch interval"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout" jsonschema:"description=Timeout of a single request"`
	Disabled bool          `yaml:"disabled" json:"disabled" jsonschema:"default=false,description=Disable the feed"`
}

// FeedsConfig holds all external feeds
type FeedsConfig struct {
	ISS    FeedConfig `yaml:"iss" json:"iss" jsonschema:"description=ISS position feed"`
	APOD   FeedConfig `yaml:"apod" json:"apod" jsonschema:"description=Astronomy picture of the day feed"`
	OSDR   FeedConfig `yaml:"osdr" json:"osdr" jsonschema:"description=OSDR biological dataset catalog feed"`
	Images FeedConfig `yaml:"images" json:"images" jsonschema:"description=NASA image of the day RSS feed"`
}

// NASAConfig holds NASA API access settings
type NASAConfig struct {
	APIKey            string  `yaml:"api_key" json:"api_key" jsonschema:"default=DEMO_KEY,description=api.nasa.gov key (can use environment variable)"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second" jsonschema:"default=1,description=Outbound request rate shared by all feeds"`
}

// SchedulerConfig holds fetch scheduler settings
type SchedulerConfig struct {
	CycleTimeout  time.Duration `yaml:"cycle_timeout" json:"cycle_timeout" jsonschema:"default=2m,description=Maximum duration of one fetch-and-store cycle"`
	RunOnStart    bool          `yaml:"run_on_start" json:"run_on_start" jsonschema:"default=false,description=Fetch all feeds right after start"`
	RetryAttempts int           `yaml:"retry_attempts" json:"retry_attempts" jsonschema:"default=3,minimum=1,description=Attempts of a failing fetch within one cycle"`
	RetryDelay    time.Duration `yaml:"retry_delay" json:"retry_delay" jsonschema:"default=1s,description=Initial backoff delay between attempts"`
	MaxDatasets   int           `yaml:"max_datasets" json:"max_datasets" jsonschema:"default=10,description=Catalog entries stored per fetch"`
}

// Load reads configuration from a YAML file, empty path gives the default configuration
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // file path comes from CLI flag
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}

		// expand environment variables
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.setDefaults()

	// validate configuration
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	// verify against embedded schema
	if err := VerifyAgainstEmbeddedSchema(&cfg); err != nil {
		// log warning but don't fail - schema validation is supplementary
		fmt.Printf("warning: schema validation failed: %v\n", err)
	}

	return &cfg, nil
}

func (c *Config) setDefaults() {
	// set defaults for server
	if c.Server.Listen == "" {
		c.Server.Listen = ":8080"
	}
	if c.Server.Timeout == 0 {
		c.Server.Timeout = 30 * time.Second
	}
	if c.Server.BodyLimit == 0 {
		c.Server.BodyLimit = 1024 * 1024
	}
	if c.Server.MaxPage == 0 {
		c.Server.MaxPage = 100
	}

	// set defaults for database
	if c.Database.DSN == "" {
		c.Database.DSN = "file:spacefeed.db?cache=shared&mode=rwc&_txlock=immediate"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 3600
	}

	// set defaults for cache
	if c.Cache.Backend == "" {
		c.Cache.Backend = "memory"
	}
	if c.Cache.Prefix == "" {
		c.Cache.Prefix = "spacefeed:cache:"
	}
	if c.Cache.ListingTTL == 0 {
		c.Cache.ListingTTL = 5 * time.Minute
	}
	if c.Cache.StatsTTL == 0 {
		c.Cache.StatsTTL = 10 * time.Minute
	}
	if c.Cache.SyntheticTTL == 0 {
		c.Cache.SyntheticTTL = 5 * time.Minute
	}
	if c.Cache.MaxEntries == 0 {
		c.Cache.MaxEntries = 10000
	}
	if c.Cache.OpTimeout == 0 {
		c.Cache.OpTimeout = 250 * time.Millisecond
	}

	// set defaults for rate limiter, root and health get a smaller limit than data routes
	if c.RateLimit.Backend == "" {
		c.RateLimit.Backend = "memory"
	}
	if c.RateLimit.RedisURL == "" {
		c.RateLimit.RedisURL = c.Cache.RedisURL
	}
	if c.RateLimit.Limit == 0 {
		c.RateLimit.Limit = 100
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = 60 * time.Second
	}
	if c.RateLimit.Routes == nil {
		c.RateLimit.Routes = map[string]RouteLimit{
			"/":                    {Limit: 30},
			"/health":              {Limit: 30},
			"/api/v1/*":            {Limit: 60},
			"/api/v1/space/feeds*": {Limit: 30},
			"/api/v1/space/stats":  {Limit: 30},
		}
	}
	if c.RateLimit.OpTimeout == 0 {
		c.RateLimit.OpTimeout = 250 * time.Millisecond
	}

	// set defaults for feeds
	setFeedDefaults(&c.Feeds.ISS, "http://api.open-notify.org/iss-now.json", 120*time.Second, 30*time.Second)
	setFeedDefaults(&c.Feeds.APOD, "https://api.nasa.gov/planetary/apod", 43200*time.Second, 30*time.Second)
	setFeedDefaults(&c.Feeds.OSDR, "https://visualization.osdr.nasa.gov/biodata/api/v2/datasets/", 300*time.Second,
		45*time.Second)
	setFeedDefaults(&c.Feeds.Images, "", time.Hour, 30*time.Second)

	// set defaults for nasa
	if c.NASA.APIKey == "" {
		c.NASA.APIKey = "DEMO_KEY"
	}
	if c.NASA.RequestsPerSecond == 0 {
		c.NASA.RequestsPerSecond = 1
	}

	// set defaults for scheduler
	if c.Scheduler.CycleTimeout == 0 {
		c.Scheduler.CycleTimeout = 2 * time.Minute
	}
	if c.Scheduler.RetryAttempts == 0 {
		c.Scheduler.RetryAttempts = 3
	}
	if c.Scheduler.RetryDelay == 0 {
		c.Scheduler.RetryDelay = time.Second
	}
	if c.Scheduler.MaxDatasets == 0 {
		c.Scheduler.MaxDatasets = 10
	}
}

// setFeedDefaults fills zero values, url is defaulted only for feeds not disabled explicitly
func setFeedDefaults(f *FeedConfig, url string, interval, timeout time.Duration) {
	if f.URL == "" && !f.Disabled {
		f.URL = url
	}
	if f.Interval == 0 {
		f.Interval = interval
	}
	if f.Timeout == 0 {
		f.Timeout = timeout
	}
}

// validate checks configuration for correctness
func validate(cfg *Config) error {
	// validate server config
	if cfg.Server.Timeout < time.Second {
		return fmt.Errorf("server timeout must be at least 1 second")
	}
	if cfg.Server.MaxPage < 1 {
		return fmt.Errorf("server.max_page_size must be at least 1")
	}

	// validate cache config
	if err := validateBackend("cache", cfg.Cache.Backend, cfg.Cache.RedisURL); err != nil {
		return err
	}
	for name, ttl := range map[string]time.Duration{"listing_ttl": cfg.Cache.ListingTTL,
		"stats_ttl": cfg.Cache.StatsTTL, "synthetic_ttl": cfg.Cache.SyntheticTTL} {
		if ttl < time.Second {
			return fmt.Errorf("cache.%s must be at least 1 second", name)
		}
	}

	// validate rate limiter config
	if err := validateBackend("rate_limit", cfg.RateLimit.Backend, cfg.RateLimit.RedisURL); err != nil {
		return err
	}
	if cfg.RateLimit.Limit < 1 {
		return fmt.Errorf("rate_limit.limit must be at least 1")
	}
	if cfg.RateLimit.Window < time.Second {
		return fmt.Errorf("rate_limit.window must be at least 1 second")
	}
	for route, rl := range cfg.RateLimit.Routes {
		if !strings.HasPrefix(route, "/") {
			return fmt.Errorf("rate_limit route %q must start with /", route)
		}
		if rl.Limit < 1 {
			return fmt.Errorf("rate_limit route %q limit must be at least 1", route)
		}
		if rl.Window != 0 && rl.Window < time.Second {
			return fmt.Errorf("rate_limit route %q window must be at least 1 second", route)
		}
	}

	// validate feeds
	for name, f := range cfg.feedsByName() {
		if f.Interval < time.Second {
			return fmt.Errorf("feeds.%s.interval must be at least 1 second", name)
		}
		if f.Timeout < time.Second {
			return fmt.Errorf("feeds.%s.timeout must be at least 1 second", name)
		}
	}

	// validate scheduler
	if cfg.Scheduler.RetryAttempts < 1 {
		return fmt.Errorf("scheduler.retry_attempts must be at least 1")
	}
	if cfg.Scheduler.CycleTimeout < time.Second {
		return fmt.Errorf("scheduler.cycle_timeout must be at least 1 second")
	}
	return nil
}

func validateBackend(section, backend, redisURL string) error {
	switch backend {
	case "memory":
		return nil
	case "redis":
		if redisURL == "" {
			return fmt.Errorf("%s.redis_url is required for redis backend", section)
		}
		return nil
	}
	return fmt.Errorf("%s.backend must be memory or redis, got %q", section, backend)
}

func (c *Config) feedsByName() map[string]FeedConfig {
	return map[string]FeedConfig{"iss": c.Feeds.ISS, "apod": c.Feeds.APOD, "osdr": c.Feeds.OSDR, "images": c.Feeds.Images}
}
