package shared

import (
	"net/http"
	"strconv"
)

// ListFilters represents standard list filters.
type ListFilters struct {
	Page    int
	Limit   int
	Search  string
	SortBy  string
	SortDir string

	// Entity specific filters
	SupplierID *int64
}

// FiltersFromQuery parses common list filters from request query parameters.
func FiltersFromQuery(r *http.Request) ListFilters {
	q := r.URL.Query()
	filters := ListFilters{
		Page:    DefaultPage,
		Limit:   DefaultLimit,
		Search:  q.Get("search"),
		SortBy:  q.Get("sort"),
		SortDir: q.Get("dir"),
	}
	if page, _ := strconv.Atoi(q.Get("page")); page >= 1 {
		filters.Page = page
	}
	if limit, _ := strconv.Atoi(q.Get("limit")); limit >= 1 {
		filters.Limit = limit
	}
	return filters
}

// Offset converts page and limit into a query offset.
func (f ListFilters) Offset() int {
	offset := (f.Page - 1) * f.Limit
	if offset < 0 {
		return 0
	}
	return offset
}
