package dto

// PaginationMeta is the `meta` block of paginated responses.
type PaginationMeta struct {
	Page        int  `json:"page"`
	Limit       int  `json:"limit"`
	Total       int  `json:"total"`
	TotalPages  int  `json:"totalPages"`
	HasNextPage bool `json:"hasNextPage"`
	HasPrevPage bool `json:"hasPrevPage"`
	NextPage    *int `json:"nextPage"`
	PrevPage    *int `json:"prevPage"`
}

// NewPaginationMeta computes page navigation for total items split by limit.
func NewPaginationMeta(page, limit, total int) PaginationMeta {
	meta := PaginationMeta{Page: page, Limit: limit, Total: total}

	if limit > 0 {
		meta.TotalPages = (total + limit - 1) / limit
	}

	if page < meta.TotalPages {
		next := page + 1
		meta.NextPage = &next
		meta.HasNextPage = true
	}

	if page > 1 {
		prev := page - 1
		meta.PrevPage = &prev
		meta.HasPrevPage = true
	}

	return meta
}

// Page is a slice of items together with its pagination meta.
type Page[T any] struct {
	Items []T
	Meta  PaginationMeta
}
