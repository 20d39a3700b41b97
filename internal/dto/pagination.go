package dto

import "strconv"

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// Pagination translates page/count query parameters into skip/limit.
type Pagination struct {
	Skip  int
	Limit int
}

// PaginationFromQuery parses page (1-based) and count strings; malformed or
// out-of-range values fall back to page 1 / 20 rows, capped at 100.
func PaginationFromQuery(page, count string) Pagination {
	p, err := strconv.Atoi(page)
	if err != nil || p < 1 {
		p = 1
	}
	c, err := strconv.Atoi(count)
	if err != nil || c < 1 {
		c = defaultPageSize
	}
	if c > maxPageSize {
		c = maxPageSize
	}
	return Pagination{Skip: (p - 1) * c, Limit: c}
}
