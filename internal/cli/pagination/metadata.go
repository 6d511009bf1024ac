package pagination

// Meta describes the page of a listing that was returned.
type Meta struct {
	CurrentPage int  `json:"currentPage"`
	PageSize    int  `json:"pageSize"`
	TotalPages  int  `json:"totalPages"`
	TotalItems  int  `json:"totalItems"`
	From        int  `json:"from"`
	To          int  `json:"to"`
	HasPrevious bool `json:"hasPrevious"`
	HasNext     bool `json:"hasNext"`
}

// NewMeta builds the metadata for p applied to totalCount items.
// From is 1-based and To inclusive; both are zero for an empty page.
func NewMeta(p Params, totalCount int) Meta {
	pageSize := p.EffectiveLimit()
	if pageSize == 0 {
		pageSize = totalCount
	}

	from, to := p.Window(totalCount)

	currentPage := 1
	if pageSize > 0 {
		currentPage = p.EffectiveOffset()/pageSize + 1
	}

	totalPages := 0
	if pageSize > 0 {
		totalPages = (totalCount + pageSize - 1) / pageSize
	}

	m := Meta{
		CurrentPage: currentPage,
		PageSize:    pageSize,
		TotalPages:  totalPages,
		TotalItems:  totalCount,
		HasPrevious: from > 0,
		HasNext:     to < totalCount,
	}
	if to > from {
		m.From = from + 1
		m.To = to
	}
	return m
}
