package shared

// Pagination holds the page window of a listing.
type Pagination struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// MaxPerPage caps a single page.
const MaxPerPage = 500

// NewPagination normalises page and perPage. Pages start at 1.
func NewPagination(page, perPage int) Pagination {
	if perPage <= 0 {
		perPage = 100
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	if page <= 0 {
		page = 1
	}
	return Pagination{Page: page, PerPage: perPage}
}

// Offset returns the number of rows before the page.
func (p Pagination) Offset() int {
	return (p.Page - 1) * p.PerPage
}
