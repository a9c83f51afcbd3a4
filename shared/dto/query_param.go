package dto

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"mlaku/shared/constant"
)

const (
	SortDirAsc  = "ASC"
	SortDirDesc = "DESC"

	MaxLimit = 100
)

type QueryParams struct {
	Page    int    `json:"page"    validate:"omitempty"`
	Limit   int    `json:"limit"   validate:"omitempty"`
	SortBy  string `json:"sortBy"  validate:"omitempty"`
	SortDir string `json:"sortDir" validate:"omitempty,oneof=ASC DESC"`
}

// FromRequest populates QueryParams from the HTTP request.
// With defaultRequest set, missing page and limit fall back to the package defaults.
func (q *QueryParams) FromRequest(r *http.Request, defaultRequest bool) {
	queryParams := r.URL.Query()

	if page := queryParams.Get(constant.RequestParamPage); page != "" {
		if pageInt, err := strconv.Atoi(page); err == nil && pageInt > 0 {
			q.Page = pageInt
		}
	}

	if limit := queryParams.Get(constant.RequestParamLimit); limit != "" {
		if limitInt, err := strconv.Atoi(limit); err == nil && limitInt > 0 {
			q.Limit = limitInt
		}
	}

	if sortBy := queryParams.Get(constant.RequestParamSortBy); sortBy != "" {
		q.SortBy = sortBy
	}

	if sortDir := strings.ToUpper(queryParams.Get(constant.RequestParamSortDir)); sortDir == SortDirAsc || sortDir == SortDirDesc {
		q.SortDir = sortDir
	}

	if defaultRequest {
		if q.Page == 0 {
			q.Page = constant.DefaultValuePage
		}

		if q.Limit == 0 {
			q.Limit = constant.DefaultValueLimit
		}
	}
}

// Normalize clamps paging and restricts the sort column to allowed, since
// SortBy ends up verbatim in the ORDER BY clause.
func (q *QueryParams) Normalize(defaultSortBy, defaultSortDir string, allowed ...string) {
	if q.Page <= 0 {
		q.Page = constant.DefaultValuePage
	}

	if q.Limit <= 0 {
		q.Limit = constant.DefaultValueLimit
	}

	if q.Limit > MaxLimit {
		q.Limit = MaxLimit
	}

	if !slices.Contains(allowed, q.SortBy) {
		q.SortBy = defaultSortBy
		q.SortDir = defaultSortDir
	}

	if q.SortDir == "" {
		q.SortDir = defaultSortDir
	}
}
