// Package pagination implements opaque-cursor paging for list methods.
//
// Servers cut a result set into pages with Slice; clients walk every page
// with All, echoing each next cursor back verbatim until a page carries none.
package pagination

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"strings"
)

var (
	// ErrInvalidCursor is returned for a cursor this package did not issue.
	ErrInvalidCursor = errors.New("invalid cursor")
	// ErrTooManyPages is returned by All when the page limit set with
	// WithMaxPages is exceeded.
	ErrTooManyPages = errors.New("too many pages")
)

const cursorPrefix = "off:"

// Page represents a single page of results with an optional cursor for
// fetching the next page.
//
// Items is never nil; NewPage normalizes nil input to an empty slice.
type Page[T any] struct {
	Items      []T
	NextCursor *string
}

// HasMore reports whether another page follows.
func (p Page[T]) HasMore() bool { return p.NextCursor != nil && *p.NextCursor != "" }

// PageOption configures a Page constructed via NewPage.
type PageOption[T any] func(*Page[T])

// WithNextCursor sets the next cursor on the Page to indicate that more
// results are available.
func WithNextCursor[T any](cursor string) PageOption[T] {
	return func(p *Page[T]) {
		p.NextCursor = &cursor
	}
}

// NewPage constructs a Page with the provided items. A nil items slice is
// replaced with an empty one.
func NewPage[T any](items []T, opts ...PageOption[T]) Page[T] {
	if items == nil {
		items = make([]T, 0)
	}
	p := Page[T]{Items: items}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// EncodeCursor returns the opaque cursor for offset.
func EncodeCursor(offset int) string {
	return base64.RawURLEncoding.EncodeToString([]byte(cursorPrefix + strconv.Itoa(offset)))
}

// DecodeCursor returns the offset a cursor encodes. A nil or empty cursor
// is offset zero.
func DecodeCursor(cursor *string) (int, error) {
	if cursor == nil || *cursor == "" {
		return 0, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(*cursor)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	s, ok := strings.CutPrefix(string(raw), cursorPrefix)
	if !ok {
		return 0, ErrInvalidCursor
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, ErrInvalidCursor
	}
	return n, nil
}

// Slice returns the page of all starting at cursor. A cursor pointing past
// the end is rejected.
func Slice[T any](all []T, pageSize int, cursor *string) (Page[T], error) {
	start, err := DecodeCursor(cursor)
	if err != nil {
		return Page[T]{}, err
	}
	if start > len(all) {
		return Page[T]{}, ErrInvalidCursor
	}
	if pageSize <= 0 {
		pageSize = len(all) - start
	}
	end := min(start+pageSize, len(all))
	items := make([]T, end-start)
	copy(items, all[start:end])
	if end < len(all) {
		return NewPage(items, WithNextCursor[T](EncodeCursor(end))), nil
	}
	return NewPage(items), nil
}

// FetchFunc retrieves the page at cursor. A nil cursor asks for the first
// page.
type FetchFunc[T any] func(ctx context.Context, cursor *string) (Page[T], error)

// WalkOption configures All and Collect.
type WalkOption func(*walkOptions)

type walkOptions struct {
	maxPages int
}

// WithMaxPages stops iteration with ErrTooManyPages once n pages have been
// fetched and the last still points at another. Cursors are opaque and may
// repeat, so a limit is the only guard against a server that never ends.
func WithMaxPages(n int) WalkOption {
	return func(o *walkOptions) { o.maxPages = n }
}

// All walks every page returned by fetch. Iteration stops at the first
// error, which is yielded with the zero T.
func All[T any](ctx context.Context, fetch FetchFunc[T], opts ...WalkOption) iter.Seq2[T, error] {
	var o walkOptions
	for _, opt := range opts {
		opt(&o)
	}
	return func(yield func(T, error) bool) {
		var cursor *string
		for pages := 1; ; pages++ {
			if err := ctx.Err(); err != nil {
				var zero T
				yield(zero, err)
				return
			}
			page, err := fetch(ctx, cursor)
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			for _, item := range page.Items {
				if !yield(item, nil) {
					return
				}
			}
			if !page.HasMore() {
				return
			}
			if o.maxPages > 0 && pages >= o.maxPages {
				var zero T
				yield(zero, fmt.Errorf("%w: stopped after %d", ErrTooManyPages, pages))
				return
			}
			next := *page.NextCursor
			cursor = &next
		}
	}
}

// Collect gathers every item All yields.
func Collect[T any](ctx context.Context, fetch FetchFunc[T], opts ...WalkOption) ([]T, error) {
	var out []T
	for item, err := range All(ctx, fetch, opts...) {
		if err != nil {
			return out, err
		}
		out = append(out, item)
	}
	return out, nil
}
