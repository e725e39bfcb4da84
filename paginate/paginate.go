// Package paginate builds page-sized views over a collection snapshot.
package paginate

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidParams is returned for a page or page size below 1.
var ErrInvalidParams = errors.New("invalid pagination parameters")

// Params selects a 1-based page of PerPage items.
type Params struct {
	Page    int
	PerPage int
}

// Links are relative URLs to neighbouring pages. Prev and Next are nil at the
// edges.
type Links struct {
	First string  `json:"first"`
	Last  string  `json:"last"`
	Prev  *string `json:"prev"`
	Next  *string `json:"next"`
}

// Meta describes where the page sits in the collection. From and To are
// 1-based positions; an empty page has To == From-1.
type Meta struct {
	CurrentPage int `json:"current_page"`
	From        int `json:"from"`
	To          int `json:"to"`
	PerPage     int `json:"per_page"`
	Total       int `json:"total"`
	LastPage    int `json:"last_page"`
}

// View is the paginated envelope returned to clients.
type View[T any] struct {
	Data  []T   `json:"data"`
	Links Links `json:"links"`
	Meta  Meta  `json:"meta"`
}

// Build slices items to the requested page. basePath is used verbatim as the
// link prefix, e.g. "/api/items". An empty collection still has one (empty)
// page, so last_page is never below 1.
func Build[T any](items []T, p Params, basePath string) (View[T], error) {
	if p.Page < 1 || p.PerPage < 1 {
		return View[T]{}, fmt.Errorf("%w: page=%d perPage=%d", ErrInvalidParams, p.Page, p.PerPage)
	}
	if p.Page-1 > (math.MaxInt-1)/p.PerPage {
		return View[T]{}, fmt.Errorf("%w: page %d out of range", ErrInvalidParams, p.Page)
	}

	total := len(items)
	start := (p.Page - 1) * p.PerPage
	data := []T{}
	if start < total {
		end := min(start+p.PerPage, total)
		data = append(data, items[start:end]...)
	}

	lastPage := total / p.PerPage
	if total%p.PerPage != 0 {
		lastPage++
	}
	lastPage = max(1, lastPage)
	link := func(page int) string {
		return fmt.Sprintf("%s?page=%d&perPage=%d", basePath, page, p.PerPage)
	}
	links := Links{
		First: link(1),
		Last:  link(lastPage),
	}
	if p.Page > 1 {
		prev := link(p.Page - 1)
		links.Prev = &prev
	}
	if p.Page < lastPage {
		next := link(p.Page + 1)
		links.Next = &next
	}

	from := start + 1
	return View[T]{
		Data:  data,
		Links: links,
		Meta: Meta{
			CurrentPage: p.Page,
			From:        from,
			To:          from + len(data) - 1,
			PerPage:     p.PerPage,
			Total:       total,
			LastPage:    lastPage,
		},
	}, nil
}
