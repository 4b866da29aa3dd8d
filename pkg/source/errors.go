package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/umputun/spacefeed/pkg/domain"
)

// ErrPermanent matches every error that repeating the same request can't fix
var ErrPermanent = errors.New("permanent source error")

// Kind tells whether a failed fetch is worth retrying
type Kind int

// error kinds
const (
	KindTransient Kind = iota
	KindPermanent
)

func (k Kind) String() string {
	if k == KindPermanent {
		return "permanent"
	}
	return "transient"
}

// Error is a failed fetch or decode of a feed
type Error struct {
	Feed   domain.FeedID
	Kind   Kind
	Status int // upstream http status, zero if no response
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s feed %s, status %d: %v", e.Kind, e.Feed, e.Status, e.Err)
	}
	return fmt.Sprintf("%s feed %s: %v", e.Kind, e.Feed, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports permanent errors as ErrPermanent
func (e *Error) Is(target error) bool { return target == ErrPermanent && e.Kind == KindPermanent }

// IsTransient checks if err is a fetch error that may succeed on the next attempt
func IsTransient(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindTransient
}

func permanent(feed domain.FeedID, err error) *Error {
	return &Error{Feed: feed, Kind: KindPermanent, Err: err}
}

// classifyTransport decides on errors returned by http.Client.Do. Everything except
// cancellation by the caller is a network problem and may go away.
func classifyTransport(feed domain.FeedID, err error) *Error {
	if errors.Is(err, context.Canceled) {
		return permanent(feed, err)
	}
	return &Error{Feed: feed, Kind: KindTransient, Err: err}
}

// classifyStatus decides on non-200 responses, server side and throttling errors are transient
func classifyStatus(feed domain.FeedID, status int) *Error {
	err := fmt.Errorf("unexpected status %s", http.StatusText(status))
	if status >= 500 || status == http.StatusTooManyRequests || status == http.StatusRequestTimeout {
		return &Error{Feed: feed, Kind: KindTransient, Status: status, Err: err}
	}
	return &Error{Feed: feed, Kind: KindPermanent, Status: status, Err: err}
}
