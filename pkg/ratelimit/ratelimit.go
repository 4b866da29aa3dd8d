// Package ratelimit implements fixed-window admission control per client and route.
//
// Requests of a client to a route falling into the same window bucket, floor(now/window),
// share one counter, and a new bucket starts from zero. A client can therefore get up to
// twice the limit through around a bucket boundary, which is a known property of fixed windows.
// If the counter backend fails, the limiter admits the request.
package ratelimit

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-pkgz/lgr"

	"github.com/umputun/spacefeed/pkg/metrics"
)

// Rule is a limit of requests per window, Limit <= 0 means no limit
type Rule struct {
	Limit  int
	Window time.Duration
}

// Counter increments per-window counters atomically
type Counter interface {
	// Incr adds one to the key and returns the new value. A new key expires after ttl.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Config defines limiter rules. Route keys are exact paths, or path prefixes ending with "*".
// TrustForwarded takes the client ip from proxy headers, otherwise it is the peer address.
type Config struct {
	Default        Rule
	Routes         map[string]Rule
	Clock          func() time.Time
	TrustForwarded bool
}

// Decision is a result of admission check
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time // end of the current window
	Degraded  bool      // counter failed and the request was admitted without counting
}

// Limiter is a fixed-window rate limiter
type Limiter struct {
	counter  Counter
	def      Rule
	exact    map[string]Rule
	prefixes []prefixRule // longest first
	now      func() time.Time

	trustForwarded bool
}

type prefixRule struct {
	prefix string
	rule   Rule
}

// New makes limiter over the counter, zero default rule gets 100 requests per minute
func New(counter Counter, cfg Config) *Limiter {
	if cfg.Default.Window <= 0 {
		cfg.Default.Window = time.Minute
	}
	if cfg.Default.Limit == 0 {
		cfg.Default.Limit = 100
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	l := &Limiter{counter: counter, def: cfg.Default, exact: map[string]Rule{}, now: cfg.Clock,
		trustForwarded: cfg.TrustForwarded}
	for route, rule := range cfg.Routes {
		if rule.Window <= 0 {
			rule.Window = cfg.Default.Window
		}
		if p, ok := strings.CutSuffix(route, "*"); ok {
			l.prefixes = append(l.prefixes, prefixRule{prefix: p, rule: rule})
			continue
		}
		l.exact[route] = rule
	}
	sort.Slice(l.prefixes, func(i, j int) bool { return len(l.prefixes[i].prefix) > len(l.prefixes[j].prefix) })
	return l
}

// Rule returns the rule applied to the route
func (l *Limiter) Rule(route string) Rule {
	_, rule := l.match(route)
	return rule
}

// match returns the configured key of the rule applied to the route and the rule itself.
// The key of the default rule is "default".
func (l *Limiter) match(route string) (string, Rule) {
	if r, ok := l.exact[route]; ok {
		return route, r
	}
	for _, p := range l.prefixes {
		if strings.HasPrefix(route, p.prefix) {
			return p.prefix + "*", p.rule
		}
	}
	return "default", l.def
}

// Admit counts the request of the client to the route and decides if it may proceed.
// Decisions are reported to metrics under the key of the matched rule.
func (l *Limiter) Admit(ctx context.Context, clientID, route string) Decision {
	name, rule := l.match(route)
	if rule.Limit <= 0 {
		return Decision{Allowed: true}
	}

	now := l.now()
	bucket := now.UnixNano() / rule.Window.Nanoseconds()
	reset := time.Unix(0, (bucket+1)*rule.Window.Nanoseconds()).In(now.Location())
	key := fmt.Sprintf("%s|%s|%d", clientID, route, bucket)

	count, err := l.counter.Incr(ctx, key, rule.Window)
	if err != nil {
		lgr.Printf("[WARN] rate limiter counter failed for %s %s, request admitted: %v", clientID, route, err)
		metrics.RateDecision(name, metrics.ResultFailOpen)
		return Decision{Allowed: true, Limit: rule.Limit, Remaining: rule.Limit, Reset: reset, Degraded: true}
	}

	d := Decision{Allowed: count <= int64(rule.Limit), Limit: rule.Limit, Reset: reset}
	d.Remaining = max(rule.Limit-int(count), 0)
	if d.Allowed {
		metrics.RateDecision(name, metrics.ResultAllowed)
	} else {
		metrics.RateDecision(name, metrics.ResultDenied)
	}
	return d
}
