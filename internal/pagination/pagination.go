// Package pagination provides the page-window arithmetic shared by the chat
// front-end and the admin console listings.
package pagination

// Page describes one window over an ordered collection. Requested page
// numbers outside [1, TotalPages] are clamped, never rejected.
type Page struct {
	Number     int
	PerPage    int
	Total      int
	TotalPages int
	Offset     int
	HasPrev    bool
	HasNext    bool
}

// Paginate computes the window for the requested page. TotalPages is at
// least 1 so an empty collection still yields a valid (empty) first page.
func Paginate(total, page, perPage int) Page {
	if perPage <= 0 {
		perPage = 1
	}
	if total < 0 {
		total = 0
	}

	totalPages := (total + perPage - 1) / perPage
	if totalPages < 1 {
		totalPages = 1
	}

	if page < 1 {
		page = 1
	} else if page > totalPages {
		page = totalPages
	}

	return Page{
		Number:     page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
		Offset:     (page - 1) * perPage,
		HasPrev:    page > 1,
		HasNext:    page < totalPages,
	}
}

// Slice bounds the half-open interval [From, To) of the page within a slice
// of the given length.
func (p Page) Slice(length int) (from, to int) {
	from = p.Offset
	if from > length {
		from = length
	}
	to = from + p.PerPage
	if to > length {
		to = length
	}
	return from, to
}
