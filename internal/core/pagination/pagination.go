// Package pagination implements bidirectional keyset pagination over an
// identity-ordered listing. Pages are probed with pageSize+1 rows so that
// hasNext/hasPrevious can be derived without counting, and the boundary
// identities of the served page are the only cursors ever handed out, which keeps
// pages stable under concurrent insertions.
package pagination

import (
	"fmt"

	"github.com/rbroggi/userdir/internal/core/model"
)

// Navigation is the direction of a page request relative to the cursor.
type Navigation string

const (
	// NavigationNext requests the page of identities strictly below the cursor.
	NavigationNext Navigation = "next"

	// NavigationPrevious requests the page of identities strictly above the cursor.
	NavigationPrevious Navigation = "previous"
)

// PageRequest describes one page of an identity-descending listing.
type PageRequest struct {
	// Cursor is the boundary identity. Nil means the start of the listing in the
	// requested direction.
	Cursor *int64

	// PageSize is the number of rows the caller wants.
	PageSize int

	// Navigation is the paging direction.
	Navigation Navigation
}

// Validate rejects non-positive page sizes and unknown navigations. Page sizes above
// max are not an error; Clamp bounds them.
func (r PageRequest) Validate() error {
	if r.PageSize <= 0 {
		return fmt.Errorf("page size must be positive, got %d: %w", r.PageSize, model.ErrInvalidInput)
	}
	if r.Navigation != NavigationNext && r.Navigation != NavigationPrevious {
		return fmt.Errorf("unknown navigation %q: %w", r.Navigation, model.ErrInvalidInput)
	}
	return nil
}

// Clamp returns a copy of the request with the page size bounded to max.
func (r PageRequest) Clamp(max int) PageRequest {
	if r.PageSize > max {
		r.PageSize = max
	}
	return r
}

// Page is one served page of an identity-descending listing.
type Page[T any] struct {
	// Content is the visible rows, newest identity first.
	Content []T

	// PageSize is the requested page size; Content may be shorter.
	PageSize int

	// HasPrevious reports whether a page of newer identities exists.
	HasPrevious bool

	// HasNext reports whether a page of older identities exists.
	HasNext bool

	// HeadCursor is the identity of the first shown row. Usable as the cursor of a
	// Previous request. Nil when the page is empty.
	HeadCursor *int64

	// TailCursor is the identity of the last shown row. Usable as the cursor of a
	// Next request. Nil when the page is empty.
	TailCursor *int64
}

// Resolve turns the rows fetched for a request into a page. rows must hold at most
// pageSize+1 rows in descending identity order: for Next, the rows strictly below
// the cursor; for Previous, the rows strictly above the cursor re-sorted to
// descending order. id extracts the identity of a row.
//
// For Next the probe row is the oldest and is dropped from the tail. For Previous
// the probe row is the newest and is dropped from the head, keeping the pageSize
// rows adjacent to the cursor.
func Resolve[T any](req PageRequest, rows []T, id func(T) int64) Page[T] {
	probed := len(rows) == req.PageSize+1

	page := Page[T]{PageSize: req.PageSize}
	switch req.Navigation {
	case NavigationPrevious:
		page.HasNext = req.Cursor != nil
		page.HasPrevious = probed
		if probed {
			page.Content = rows[1:]
		} else {
			page.Content = rows
		}
	default:
		page.HasPrevious = req.Cursor != nil
		page.HasNext = probed
		if probed {
			page.Content = rows[:req.PageSize]
		} else {
			page.Content = rows
		}
	}

	if len(page.Content) > 0 {
		head := id(page.Content[0])
		tail := id(page.Content[len(page.Content)-1])
		page.HeadCursor = &head
		page.TailCursor = &tail
	}
	return page
}
