package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/umputun/spacefeed/pkg/domain"
)

// Query selects a page of an entity
type Query struct {
	Filters []Filter
	Sort    string // column, entity default if empty
	Desc    bool
	Limit   int // no limit if zero
	Offset  int
}

// Filter restricts a query to rows matching a column value
type Filter struct {
	Column   string
	Value    any
	Contains bool // case-insensitive substring match instead of equality
}

// Query loads rows matching q into dest, a pointer to a slice of the entity's struct,
// and returns the number of rows matching the filters regardless of limit and offset.
func (s *Store) Query(ctx context.Context, entity domain.Entity, q Query, dest any) (total int, err error) {
	t, err := tableFor(entity)
	if err != nil {
		return 0, err
	}

	where, args, err := buildWhere(t, q.Filters)
	if err != nil {
		return 0, err
	}

	sortCol := q.Sort
	if sortCol == "" {
		sortCol = t.defaultSort
	}
	if !t.canSort(sortCol) {
		return 0, fmt.Errorf("%w: can't sort %s by %q", ErrInvalidQuery, entity, sortCol)
	}
	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}

	countQuery := s.rebind(fmt.Sprintf("SELECT COUNT(*) FROM %s%s", t.name, where))
	if err := s.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return 0, wrapErr("count "+t.name, err)
	}

	// id breaks ties so pages never overlap
	selectQuery := fmt.Sprintf("SELECT * FROM %s%s ORDER BY %s %s, id %s", t.name, where, sortCol, dir, dir)
	selectArgs := append([]any(nil), args...)
	if q.Limit > 0 {
		selectQuery += " LIMIT ? OFFSET ?"
		selectArgs = append(selectArgs, q.Limit, q.Offset)
	}
	if err := s.db.SelectContext(ctx, dest, s.rebind(selectQuery), selectArgs...); err != nil {
		return 0, wrapErr("query "+t.name, err)
	}
	return total, nil
}

// Count returns the number of rows of an entity
func (s *Store) Count(ctx context.Context, entity domain.Entity) (int, error) {
	t, err := tableFor(entity)
	if err != nil {
		return 0, err
	}
	var count int
	if err := s.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM "+t.name); err != nil {
		return 0, wrapErr("count "+t.name, err)
	}
	return count, nil
}

// Latest loads the newest row of an entity by its default sort column into dest, a pointer to the entity's struct
func (s *Store) Latest(ctx context.Context, entity domain.Entity, dest any) error {
	t, err := tableFor(entity)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("SELECT * FROM %s ORDER BY %s DESC, id DESC LIMIT 1", t.name, t.defaultSort)
	if err := s.db.GetContext(ctx, dest, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("latest %s: %w", t.name, ErrNotFound)
		}
		return wrapErr("latest "+t.name, err)
	}
	return nil
}

func buildWhere(t table, filters []Filter) (where string, args []any, err error) {
	if len(filters) == 0 {
		return "", nil, nil
	}
	conds := make([]string, 0, len(filters))
	for _, f := range filters {
		if !t.canFilter(f.Column) {
			return "", nil, fmt.Errorf("%w: can't filter %s by %q", ErrInvalidQuery, t.name, f.Column)
		}
		if f.Contains {
			conds = append(conds, fmt.Sprintf("LOWER(%s) LIKE ?", f.Column))
			args = append(args, "%"+strings.ToLower(fmt.Sprint(f.Value))+"%")
			continue
		}
		conds = append(conds, f.Column+" = ?")
		args = append(args, f.Value)
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}
