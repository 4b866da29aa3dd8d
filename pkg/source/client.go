// Package source fetches raw payloads of the external space feeds and decodes them into store records.
// Transient failures are retried with exponential backoff inside a single fetch, the returned *Error
// tells the caller whether the failure was transient or permanent.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/repeater/v2"
	"golang.org/x/time/rate"

	"github.com/umputun/spacefeed/pkg/domain"
)

// FeedConfig defines upstream endpoint of a single feed
type FeedConfig struct {
	URL     string
	Timeout time.Duration // per attempt
}

// Config for Client
type Config struct {
	Feeds             map[domain.FeedID]FeedConfig
	APIKey            string  // added as api_key query parameter to api.nasa.gov requests
	UserAgent         string  // default "spacefeed/1.0"
	RequestsPerSecond float64 // outbound pacing shared by all feeds, unlimited if zero
	RetryAttempts     int     // default 3
	RetryDelay        time.Duration
	RetryMaxDelay     time.Duration
	MaxBodySize       int64        // default 10MB
	HTTPClient        *http.Client // optional, NewHTTPClient is used if nil
}

// Client is the external data source adapter
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient makes a client with defaults for all zero config values
func NewClient(cfg Config) *Client {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "spacefeed/1.0"
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.MaxBodySize <= 0 {
		cfg.MaxBodySize = 10 * 1024 * 1024
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = NewHTTPClient()
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	return &Client{cfg: cfg, http: httpClient, limiter: rate.NewLimiter(limit, 1)}
}

// NewHTTPClient makes http client for upstream calls. It has no overall timeout,
// every attempt is bounded by the feed's own timeout.
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: time.Second,
			ForceAttemptHTTP2:     true,
		},
	}
}

// FetchFeed returns raw payload of the feed. Transient failures are retried up to RetryAttempts times,
// permanent ones are returned immediately. The error is always *Error.
func (c *Client) FetchFeed(ctx context.Context, feed domain.FeedID) ([]byte, error) {
	fc, ok := c.cfg.Feeds[feed]
	if !ok || fc.URL == "" {
		return nil, permanent(feed, errors.New("feed is not configured"))
	}
	if fc.Timeout <= 0 {
		fc.Timeout = 30 * time.Second
	}

	u, err := c.feedURL(fc.URL)
	if err != nil {
		return nil, permanent(feed, fmt.Errorf("bad feed url: %w", err))
	}

	var body []byte
	attempt := 0
	retrier := repeater.NewBackoff(c.cfg.RetryAttempts, c.cfg.RetryDelay, repeater.WithMaxDelay(c.cfg.RetryMaxDelay))
	err = retrier.Do(ctx, func() error {
		attempt++
		b, err := c.fetchOnce(ctx, feed, u, fc.Timeout)
		if err != nil {
			if IsTransient(err) && attempt < c.cfg.RetryAttempts {
				lgr.Printf("[DEBUG] fetch %s, attempt %d failed, retrying: %v", feed, attempt, err)
			}
			return err
		}
		body = b
		return nil
	}, ErrPermanent)

	if err != nil {
		var srcErr *Error
		if errors.As(err, &srcErr) {
			return nil, srcErr
		}
		return nil, classifyTransport(feed, err)
	}
	return body, nil
}

func (c *Client) fetchOnce(ctx context.Context, feed domain.FeedID, u string, timeout time.Duration) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, classifyTransport(feed, fmt.Errorf("wait for rate limiter: %w", err))
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, http.NoBody)
	if err != nil {
		return nil, permanent(feed, fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json, application/rss+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransport(feed, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		return nil, classifyStatus(feed, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.cfg.MaxBodySize+1))
	if err != nil {
		return nil, classifyTransport(feed, fmt.Errorf("read body: %w", err))
	}
	if int64(len(body)) > c.cfg.MaxBodySize {
		return nil, permanent(feed, fmt.Errorf("payload exceeds %d bytes", c.cfg.MaxBodySize))
	}
	return body, nil
}

// feedURL adds the api key to nasa api requests which don't have one
func (c *Client) feedURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if c.cfg.APIKey == "" || u.Host != "api.nasa.gov" {
		return u.String(), nil
	}
	q := u.Query()
	if q.Get("api_key") == "" {
		q.Set("api_key", c.cfg.APIKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
