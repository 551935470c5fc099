package pagination

import (
	"net/http"
	"strconv"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds page/limit query parameters.
type Params struct {
	Page   int `json:"page"`
	Limit  int `json:"limit"`
	Offset int `json:"-"`
}

// DefaultParams returns page 1 with DefaultLimit items.
func DefaultParams() Params {
	return Params{Page: 1, Limit: DefaultLimit}
}

// New normalises page and limit: page below 1 becomes 1, limit below 1
// becomes DefaultLimit and limit above MaxLimit is capped.
func New(page, limit int) Params {
	if page < 1 {
		page = 1
	}
	switch {
	case limit < 1:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return Params{Page: page, Limit: limit, Offset: (page - 1) * limit}
}

// FromRequest reads ?page= and ?limit=. Non-numeric values fall back to the defaults.
func FromRequest(r *http.Request) Params {
	q := r.URL.Query()
	page, limit := 1, DefaultLimit

	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		page = v
	}
	if v, err := strconv.Atoi(q.Get("limit")); err == nil {
		limit = v
	}
	return New(page, limit)
}

// Result is a page of items plus the totals a client needs to navigate.
type Result[T any] struct {
	Items      []T  `json:"items"`
	Total      int  `json:"total"`
	Page       int  `json:"page"`
	Limit      int  `json:"limit"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// NewResult builds a Result for items out of total matches.
func NewResult[T any](items []T, total int, p Params) Result[T] {
	limit := p.Limit
	if limit < 1 {
		limit = DefaultLimit
	}
	totalPages := total / limit
	if total%limit > 0 {
		totalPages++
	}
	if items == nil {
		items = []T{}
	}

	return Result[T]{
		Items:      items,
		Total:      total,
		Page:       p.Page,
		Limit:      limit,
		TotalPages: totalPages,
		HasNext:    p.Page < totalPages,
		HasPrev:    p.Page > 1,
	}
}

// Map converts the items of r with fn, keeping the paging fields.
func Map[T, U any](r Result[T], fn func(T) U) Result[U] {
	out := make([]U, len(r.Items))
	for i, item := range r.Items {
		out[i] = fn(item)
	}
	return Result[U]{
		Items:      out,
		Total:      r.Total,
		Page:       r.Page,
		Limit:      r.Limit,
		TotalPages: r.TotalPages,
		HasNext:    r.HasNext,
		HasPrev:    r.HasPrev,
	}
}
