package store

import (
	"fmt"
	"slices"

	"github.com/umputun/spacefeed/pkg/domain"
)

// table describes how an entity is stored. Only listed columns can be written, filtered or sorted on,
// so every identifier placed into SQL comes from here and never from the caller.
type table struct {
	name        string
	key         string
	columns     []string
	sortable    []string
	filterable  []string
	defaultSort string
}

var tables = map[domain.Entity]table{
	domain.EntityPositions: {
		name:        "positions",
		key:         "ts",
		columns:     []string{"ts", "latitude", "longitude", "altitude", "velocity", "visibility", "created_at"},
		sortable:    []string{"ts", "latitude", "longitude", "created_at"},
		filterable:  []string{"visibility"},
		defaultSort: "ts",
	},
	domain.EntityPictures: {
		name:        "pictures",
		key:         "date",
		columns:     []string{"date", "title", "explanation", "url", "hd_url", "media_type", "copyright", "fetched_at"},
		sortable:    []string{"date", "fetched_at"},
		filterable:  []string{"media_type"},
		defaultSort: "date",
	},
	domain.EntityDatasets: {
		name: "datasets",
		key:  "dataset_id",
		columns: []string{"dataset_id", "title", "description", "mission", "instrument", "data_type",
			"file_size_mb", "raw_data", "fetched_at", "updated_at"},
		sortable:    []string{"dataset_id", "title", "fetched_at", "updated_at"},
		filterable:  []string{"mission", "data_type", "instrument"},
		defaultSort: "fetched_at",
	},
	domain.EntityImages: {
		name:        "images",
		key:         "guid",
		columns:     []string{"guid", "title", "link", "description", "image_url", "published", "fetched_at"},
		sortable:    []string{"published", "fetched_at", "title"},
		filterable:  []string{},
		defaultSort: "published",
	},
}

func tableFor(entity domain.Entity) (table, error) {
	t, ok := tables[entity]
	if !ok {
		return table{}, fmt.Errorf("%w: %q", ErrUnknownEntity, entity)
	}
	return t, nil
}

func (t table) hasColumn(col string) bool { return slices.Contains(t.columns, col) }

func (t table) canSort(col string) bool { return slices.Contains(t.sortable, col) }

func (t table) canFilter(col string) bool { return slices.Contains(t.filterable, col) }

// SortColumns returns the columns an entity can be sorted by
func SortColumns(entity domain.Entity) []string {
	t, ok := tables[entity]
	if !ok {
		return nil
	}
	return slices.Clone(t.sortable)
}
