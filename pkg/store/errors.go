package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	// ErrUnavailable is returned when the database can't be reached or stays locked
	ErrUnavailable = errors.New("store unavailable")
	// ErrUnknownEntity is returned for entities without a table
	ErrUnknownEntity = errors.New("unknown entity")
	// ErrInvalidQuery is returned for fields, filters or sort columns not allowed for an entity
	ErrInvalidQuery = errors.New("invalid query")
	// ErrNotFound is returned when no row matches
	ErrNotFound = errors.New("not found")

	errCritical = errors.New("critical store error")
)

// criticalError wraps an error to signal repeater to stop retrying
type criticalError struct {
	err error
}

func (e *criticalError) Error() string { return e.err.Error() }

func (e *criticalError) Unwrap() error { return e.err }

func (e *criticalError) Is(target error) bool { return target == errCritical }

// isLockError checks if an error is a SQLite lock/busy error
func isLockError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "SQLITE_BUSY") ||
		strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "database table is locked")
}

// isConnError checks if an error means the database itself can't be used
func isConnError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "database is closed") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "unable to open database")
}

// wrapErr converts driver level failures into the store error vocabulary
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUnavailable) || errors.Is(err, ErrInvalidQuery) || errors.Is(err, ErrUnknownEntity) {
		return err
	}
	var ce *criticalError
	if errors.As(err, &ce) {
		err = ce.err
	}
	if isLockError(err) || isConnError(err) {
		return fmt.Errorf("%w: %s: %w", ErrUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
