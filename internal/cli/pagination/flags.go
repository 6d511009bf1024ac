package pagination

import (
	"errors"
	"fmt"
	"strings"
)

// Sort orders.
const (
	SortOrderAsc     = "asc"
	SortOrderDesc    = "desc"
	DefaultSortOrder = SortOrderAsc
)

// sortPartsMax is the maximum number of parts in a sort string (field:order).
const sortPartsMax = 2

// Validation errors.
var (
	ErrInvalidSortFormat = errors.New("invalid sort format: use 'field' or 'field:order' (e.g., 'latest:desc')")
	ErrEmptySortField    = errors.New("sort field cannot be empty")
	ErrInvalidSortOrder  = errors.New("sort order must be 'asc' or 'desc'")
	ErrInvalidSortField  = errors.New("invalid sort field")
)

// Params holds the paging flags of a listing. Two modes exist and are
// mutually exclusive:
//   - Offset-based: --limit and --offset
//   - Page-based: --page and --page-size
//
// Zero values mean "not set"; a zero Limit returns everything after Offset.
type Params struct {
	Limit    int
	Offset   int
	Page     int
	PageSize int
}

// Validate checks that the parameters are non-negative and consistent.
func (p Params) Validate() error {
	switch {
	case p.Limit < 0:
		return errors.New("limit cannot be negative")
	case p.Offset < 0:
		return errors.New("offset cannot be negative")
	case p.Page < 0:
		return errors.New("page cannot be negative")
	case p.PageSize < 0:
		return errors.New("page-size cannot be negative")
	}

	if p.Page > 0 && (p.Offset > 0 || p.Limit > 0) {
		return errors.New("--page cannot be combined with --offset or --limit")
	}
	if p.Page == 0 && p.PageSize > 0 {
		return errors.New("--page-size requires --page")
	}
	if p.PageSize == 0 && p.Page > 0 {
		return errors.New("--page requires --page-size")
	}
	return nil
}

// IsEnabled reports whether any paging parameter is set.
func (p Params) IsEnabled() bool {
	return p.Limit > 0 || p.Offset > 0 || p.Page > 0 || p.PageSize > 0
}

// IsPageBased reports whether page-based paging is active.
func (p Params) IsPageBased() bool {
	return p.Page > 0
}

// EffectiveLimit is PageSize in page mode and Limit otherwise.
func (p Params) EffectiveLimit() int {
	if p.IsPageBased() {
		return p.PageSize
	}
	return p.Limit
}

// EffectiveOffset is derived from the page number in page mode.
func (p Params) EffectiveOffset() int {
	if p.IsPageBased() {
		return (p.Page - 1) * p.PageSize
	}
	return p.Offset
}

// Window returns the [from, to) slice bounds of total items selected by p.
func (p Params) Window(total int) (int, int) {
	from := min(p.EffectiveOffset(), total)
	to := total
	if limit := p.EffectiveLimit(); limit > 0 {
		to = min(from+limit, total)
	}
	return from, to
}

// Apply returns the items selected by p. The result shares the backing array.
func Apply[T any](p Params, items []T) []T {
	from, to := p.Window(len(items))
	return items[from:to]
}

// ParseSort parses "field" or "field:order". The order defaults to asc.
//
//nolint:nonamedreturns // Named returns improve readability for this multi-value function.
func ParseSort(sortStr string) (field, order string, err error) {
	parts := strings.Split(sortStr, ":")
	switch len(parts) {
	case 1:
		field = strings.TrimSpace(parts[0])
		order = DefaultSortOrder
	case sortPartsMax:
		field = strings.TrimSpace(parts[0])
		order = strings.ToLower(strings.TrimSpace(parts[1]))
	default:
		return "", "", fmt.Errorf("%w: %q", ErrInvalidSortFormat, sortStr)
	}

	if field == "" {
		return "", "", ErrEmptySortField
	}
	if order != SortOrderAsc && order != SortOrderDesc {
		return "", "", fmt.Errorf("%w: got %q", ErrInvalidSortOrder, order)
	}
	return field, order, nil
}
