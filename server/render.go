package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"

	"github.com/umputun/spacefeed/pkg/domain"
	"github.com/umputun/spacefeed/pkg/scheduler"
	"github.com/umputun/spacefeed/pkg/store"
)

// renderJSON sends JSON response
func renderJSON(w http.ResponseWriter, _ *http.Request, code int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			lgr.Printf("[WARN] can't encode response to JSON: %v", err)
		}
	}
}

// renderError sends error as {"error": "..."} with the status code matching the error
func (s *Server) renderError(w http.ResponseWriter, r *http.Request, err error) {
	code := errorStatus(err)
	switch {
	case code >= http.StatusInternalServerError:
		lgr.Printf("[WARN] %s %s failed, request %s: %v", r.Method, r.URL.Path, RequestID(r.Context()), err)
	case s.debug:
		lgr.Printf("[DEBUG] %s %s rejected with %d: %v", r.Method, r.URL.Path, code, err)
	}
	renderJSON(w, r, code, rest.JSON{"error": err.Error()})
}

// errorStatus maps errors of the store, scheduler and request parsing to http status codes
func errorStatus(err error) int {
	var verr *ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, domain.ErrInvalid), errors.Is(err, store.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, scheduler.ErrUnknownFeed), errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// methodNotAllowed responds with 405 and the allowed methods
func methodNotAllowed(allow string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Allow", allow)
		renderJSON(w, r, http.StatusMethodNotAllowed, rest.JSON{"error": "method " + r.Method + " is not allowed"})
	}
}

// writeCached sends a serialized body, X-Cache tells whether it came from the response cache
func writeCached(w http.ResponseWriter, contentType string, data []byte, hit bool) {
	w.Header().Set("Content-Type", contentType)
	if hit {
		w.Header().Set("X-Cache", "HIT")
	} else {
		w.Header().Set("X-Cache", "MISS")
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		lgr.Printf("[DEBUG] can't write response: %v", err)
	}
}
