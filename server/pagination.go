package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/umputun/spacefeed/pkg/cache"
	"github.com/umputun/spacefeed/pkg/domain"
	"github.com/umputun/spacefeed/pkg/store"
)

// ValidationError reports a request parameter that can't be accepted
type ValidationError struct {
	Param  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Param, e.Reason)
}

// listing describes a paginated collection of one entity
type listing struct {
	entity       domain.Entity
	defaultLimit int
	maxLimit     int
	defaultSort  string
	defaultOrder string
	sortAliases  map[string]string // public name -> column
	filters      func(q url.Values) ([]store.Filter, map[string]string, error)
}

var (
	positionsListing = listing{
		entity:       domain.EntityPositions,
		defaultLimit: 10,
		maxLimit:     100,
		defaultSort:  "ts",
		defaultOrder: "desc",
		sortAliases:  map[string]string{"timestamp": "ts"},
		filters:      positionFilters,
	}
	datasetsListing = listing{
		entity:       domain.EntityDatasets,
		defaultLimit: 10,
		maxLimit:     50,
		defaultSort:  "fetched_at",
		defaultOrder: "desc",
		filters:      datasetFilters,
	}
	picturesListing = listing{
		entity:       domain.EntityPictures,
		defaultLimit: 10,
		maxLimit:     30,
		defaultSort:  "date",
		defaultOrder: "desc",
		filters:      pictureFilters,
	}
	imagesListing = listing{
		entity:       domain.EntityImages,
		defaultLimit: 10,
		maxLimit:     50,
		defaultSort:  "published",
		defaultOrder: "desc",
	}
)

// pageRequest is a validated list request
type pageRequest struct {
	page    int
	limit   int
	sortBy  string
	order   string
	filters []store.Filter
	echo    map[string]string // applied filters as reported back to the client
}

// envelope is the response of every list route
type envelope[T any] struct {
	Items   []T               `json:"items"`
	Total   int               `json:"total"`
	Page    int               `json:"page"`
	Limit   int               `json:"limit"`
	Pages   int               `json:"pages"`
	Filters map[string]string `json:"filters,omitempty"`
	Sort    sortInfo          `json:"sort"`
}

type sortInfo struct {
	By    string `json:"by"`
	Order string `json:"order"`
}

// listHandler serves one page of the listing. Responses are cached per normalized request for the listing TTL.
func listHandler[T any](s *Server, l listing) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := l.parse(r.URL.Query(), s.cfg.MaxPage)
		if err != nil {
			s.renderError(w, r, err)
			return
		}

		data, hit, err := s.cache.Fetch(r.Context(), req.cacheKey(l.entity), s.cfg.ListingTTL,
			func(ctx context.Context) ([]byte, error) {
				env, err := paginate[T](ctx, s.store, l.entity, req)
				if err != nil {
					return nil, err
				}
				return json.Marshal(env)
			})
		if err != nil {
			s.renderError(w, r, err)
			return
		}
		writeCached(w, "application/json; charset=utf-8", data, hit)
	}
}

// paginate loads one page of the entity and wraps it with totals
func paginate[T any](ctx context.Context, st Store, entity domain.Entity, req pageRequest) (envelope[T], error) {
	items := []T{}
	total, err := st.Query(ctx, entity, store.Query{
		Filters: req.filters,
		Sort:    req.sortBy,
		Desc:    req.order == "desc",
		Limit:   req.limit,
		Offset:  (req.page - 1) * req.limit,
	}, &items)
	if err != nil {
		return envelope[T]{}, fmt.Errorf("query %s: %w", entity, err)
	}
	if items == nil {
		items = []T{}
	}
	return envelope[T]{
		Items:   items,
		Total:   total,
		Page:    req.page,
		Limit:   req.limit,
		Pages:   pageCount(total, req.limit),
		Filters: req.echo,
		Sort:    sortInfo{By: req.sortBy, Order: req.order},
	}, nil
}

// pageCount is ceil(total/limit)
func pageCount(total, limit int) int {
	if total <= 0 || limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}

// parse validates pagination, sort and filter parameters. Absent parameters take listing defaults,
// anything present and out of range is rejected.
func (l listing) parse(q url.Values, maxPage int) (pageRequest, error) {
	maxLimit := l.maxLimit
	if maxPage > 0 && maxPage < maxLimit {
		maxLimit = maxPage
	}
	req := pageRequest{page: 1, limit: min(l.defaultLimit, maxLimit), sortBy: l.defaultSort, order: l.defaultOrder}

	if q.Has("page") {
		page, err := strconv.Atoi(strings.TrimSpace(q.Get("page")))
		if err != nil || page < 1 {
			return pageRequest{}, &ValidationError{Param: "page", Reason: fmt.Sprintf("%q is not an integer >= 1", q.Get("page"))}
		}
		req.page = page
	}

	if q.Has("limit") {
		limit, err := strconv.Atoi(strings.TrimSpace(q.Get("limit")))
		if err != nil || limit < 1 || limit > maxLimit {
			return pageRequest{}, &ValidationError{Param: "limit",
				Reason: fmt.Sprintf("%q is not an integer between 1 and %d", q.Get("limit"), maxLimit)}
		}
		req.limit = limit
	}

	if v := strings.TrimSpace(q.Get("sort_by")); v != "" {
		if col, ok := l.sortAliases[v]; ok {
			v = col
		}
		allowed := store.SortColumns(l.entity)
		if !slices.Contains(allowed, v) {
			return pageRequest{}, &ValidationError{Param: "sort_by",
				Reason: fmt.Sprintf("%q is not one of %s", q.Get("sort_by"), strings.Join(allowed, ", "))}
		}
		req.sortBy = v
	}

	if v := strings.TrimSpace(q.Get("sort_order")); v != "" {
		v = strings.ToLower(v)
		if v != "asc" && v != "desc" {
			return pageRequest{}, &ValidationError{Param: "sort_order", Reason: fmt.Sprintf("%q is not asc or desc", q.Get("sort_order"))}
		}
		req.order = v
	}

	if l.filters != nil {
		filters, echo, err := l.filters(q)
		if err != nil {
			return pageRequest{}, err
		}
		req.filters, req.echo = filters, echo
	}
	return req, nil
}

// cacheKey is built from parsed values, so requests differing only in omitted defaults share an entry
func (p pageRequest) cacheKey(entity domain.Entity) string {
	params := url.Values{}
	params.Set("page", strconv.Itoa(p.page))
	params.Set("limit", strconv.Itoa(p.limit))
	params.Set("sort_by", p.sortBy)
	params.Set("sort_order", p.order)
	for k, v := range p.echo {
		params.Set("f_"+k, v)
	}
	return cache.Key(string(entity), params)
}

func positionFilters(q url.Values) ([]store.Filter, map[string]string, error) {
	if !q.Has("visibility") {
		return nil, nil, nil
	}
	v := strings.ToLower(strings.TrimSpace(q.Get("visibility")))
	switch v {
	case "visible", "eclipsed", "daylight":
	default:
		return nil, nil, &ValidationError{Param: "visibility", Reason: fmt.Sprintf("%q is not visible, eclipsed or daylight", q.Get("visibility"))}
	}
	return []store.Filter{{Column: "visibility", Value: v}}, map[string]string{"visibility": v}, nil
}

func datasetFilters(q url.Values) ([]store.Filter, map[string]string, error) {
	if !q.Has("mission") {
		return nil, nil, nil
	}
	mission := strings.TrimSpace(q.Get("mission"))
	if n := len([]rune(mission)); n < 1 || n > 100 {
		return nil, nil, &ValidationError{Param: "mission", Reason: "must be 1 to 100 characters"}
	}
	return []store.Filter{{Column: "mission", Value: mission}}, map[string]string{"mission": mission}, nil
}

func pictureFilters(q url.Values) ([]store.Filter, map[string]string, error) {
	if !q.Has("media_type") {
		return nil, nil, nil
	}
	v := strings.ToLower(strings.TrimSpace(q.Get("media_type")))
	if v != "image" && v != "video" {
		return nil, nil, &ValidationError{Param: "media_type", Reason: fmt.Sprintf("%q is not image or video", q.Get("media_type"))}
	}
	return []store.Filter{{Column: "media_type", Value: v}}, map[string]string{"media_type": v}, nil
}
