package ratelimit

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/realip"
)

// Middleware checks admission of every request by client ip and route. It sets X-RateLimit-Limit,
// X-RateLimit-Remaining and X-RateLimit-Reset headers, and rejects denied requests with 429 and Retry-After.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := l.route(r)
		rule := l.Rule(route)
		if rule.Limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		d := l.Admit(r.Context(), ClientID(r, l.trustForwarded), route)
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset.Unix(), 10))

		if !d.Allowed {
			retryAfter := int(math.Ceil(d.Reset.Sub(l.now()).Seconds()))
			w.Header().Set("Retry-After", strconv.Itoa(max(retryAfter, 1)))
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(http.StatusTooManyRequests)
			rest.RenderJSON(w, rest.JSON{"error": "rate limit exceeded, max " + strconv.Itoa(d.Limit) +
				" requests per " + rule.Window.Round(time.Second).String()})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// route returns the counted route of the request. It is the path of the matched mux pattern,
// so /feeds/{feed}/fetch is one route for any feed and for any method. Without a pattern
// the key of the matched rule is used, raw paths never become counter keys.
func (l *Limiter) route(r *http.Request) string {
	if r.Pattern == "" {
		name, _ := l.match(r.URL.Path)
		return name
	}
	pattern := r.Pattern
	if _, path, ok := strings.Cut(pattern, " "); ok {
		pattern = path
	}
	if p, ok := strings.CutSuffix(pattern, "{$}"); ok {
		pattern = p
	}
	return pattern
}

// ClientID returns the client ip. X-Real-IP and X-Forwarded-For are used only with trustForwarded.
func ClientID(r *http.Request, trustForwarded bool) string {
	if trustForwarded {
		if ip, err := realip.Get(r); err == nil && ip != "" {
			return ip
		}
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
