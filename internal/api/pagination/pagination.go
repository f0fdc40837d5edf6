// Package pagination implements offset pagination shared by list endpoints.
package pagination

import (
	"fmt"
	"net/url"
	"strconv"
)

const (
	DefaultLimit = 10
	MaxLimit     = 100
	MaxPage      = 1000
)

type Params struct {
	Page  int
	Limit int
}

func Default() Params {
	return Params{Page: 1, Limit: DefaultLimit}
}

func (p Params) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Parse reads page and limit from query parameters, applying defaults and
// caps. Out-of-range or non-numeric values are rejected rather than clamped.
func Parse(q url.Values) (Params, error) {
	p := Default()

	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 || page > MaxPage {
			return p, fmt.Errorf("page must be an integer between 1 and %d", MaxPage)
		}
		p.Page = page
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 || limit > MaxLimit {
			return p, fmt.Errorf("limit must be an integer between 1 and %d", MaxLimit)
		}
		p.Limit = limit
	}
	return p, nil
}

// Meta is the pagination block included in list response envelopes.
type Meta struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

func NewMeta(p Params, total int) Meta {
	pages := 0
	if total > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return Meta{Page: p.Page, Limit: p.Limit, Total: total, Pages: pages}
}
