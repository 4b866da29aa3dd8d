package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/jmoiron/sqlx"

	"github.com/umputun/spacefeed/pkg/domain"
)

// Upsert inserts a record or updates the existing row with the same natural key.
// Repeating the call with the same key and fields leaves exactly one identical row.
func (s *Store) Upsert(ctx context.Context, entity domain.Entity, key any, fields map[string]any) error {
	return s.UpsertBatch(ctx, []domain.Record{{Entity: entity, Key: key, Fields: fields}})
}

// UpsertBatch writes all records in one transaction, either every record is stored or none
func (s *Store) UpsertBatch(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}

	type stmt struct {
		query string
		args  []any
	}
	stmts := make([]stmt, 0, len(records))
	for _, rec := range records {
		q, args, err := s.upsertQuery(rec)
		if err != nil {
			return err
		}
		stmts = append(stmts, stmt{query: q, args: args})
	}

	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))
	err := retrier.Do(ctx, func() error {
		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			if isLockError(err) {
				return err // retry
			}
			return &criticalError{err: fmt.Errorf("begin transaction: %w", err)}
		}
		defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

		for _, st := range stmts {
			if _, err := tx.ExecContext(ctx, st.query, st.args...); err != nil {
				if isLockError(err) {
					return err
				}
				return &criticalError{err: err}
			}
		}
		if err := tx.Commit(); err != nil {
			if isLockError(err) {
				return err
			}
			return &criticalError{err: fmt.Errorf("commit: %w", err)}
		}
		return nil
	}, errCritical)

	return wrapErr(fmt.Sprintf("upsert %d %s records", len(records), records[0].Entity), err)
}

// upsertQuery builds INSERT ... ON CONFLICT for a record, fields are written in sorted column order
func (s *Store) upsertQuery(rec domain.Record) (query string, args []any, err error) {
	t, err := tableFor(rec.Entity)
	if err != nil {
		return "", nil, err
	}
	if rec.Key == nil || rec.Key == "" {
		return "", nil, fmt.Errorf("%w: empty natural key for %s", ErrInvalidQuery, rec.Entity)
	}

	cols := make([]string, 0, len(rec.Fields))
	for col := range rec.Fields {
		if col == t.key {
			continue
		}
		if !t.hasColumn(col) {
			return "", nil, fmt.Errorf("%w: unknown column %q for %s", ErrInvalidQuery, col, rec.Entity)
		}
		cols = append(cols, col)
	}
	sort.Strings(cols)

	args = make([]any, 0, len(cols)+1)
	args = append(args, rec.Key)
	for _, col := range cols {
		args = append(args, rec.Fields[col])
	}

	allCols := append([]string{t.key}, cols...)
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(allCols)), ", ")
	query = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(%s) ", t.name, strings.Join(allCols, ", "),
		placeholders, t.key)

	if len(cols) == 0 {
		query += "DO NOTHING"
	} else {
		sets := make([]string, 0, len(cols))
		for _, col := range cols {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", col, col))
		}
		query += "DO UPDATE SET " + strings.Join(sets, ", ")
	}

	return s.rebind(query), args, nil
}

func (s *Store) rebind(query string) string {
	if s.dialect == dialectPostgres {
		return sqlx.Rebind(sqlx.DOLLAR, query)
	}
	return query
}
