package pagination

import (
	"context"
	"errors"
	"slices"
	"testing"
)

func TestSliceWalksAllPages(t *testing.T) {
	all := []int{1, 2, 3, 4, 5, 6, 7}
	var got []int
	var cursor *string
	pages := 0
	for {
		p, err := Slice(all, 3, cursor)
		if err != nil {
			t.Fatalf("slice: %v", err)
		}
		pages++
		got = append(got, p.Items...)
		if !p.HasMore() {
			break
		}
		cursor = p.NextCursor
	}
	if pages != 3 || !slices.Equal(got, all) {
		t.Fatalf("pages=%d items=%v", pages, got)
	}
}

func TestSliceEmpty(t *testing.T) {
	p, err := Slice[string](nil, 10, nil)
	if err != nil {
		t.Fatalf("slice: %v", err)
	}
	if p.Items == nil || len(p.Items) != 0 || p.HasMore() {
		t.Fatalf("unexpected page %+v", p)
	}
}

func TestInvalidCursors(t *testing.T) {
	bad := []string{"not base64!", "MTIz", EncodeCursor(99)}
	for _, c := range bad {
		if _, err := Slice([]int{1, 2}, 1, &c); !errors.Is(err, ErrInvalidCursor) {
			t.Fatalf("cursor %q: expected ErrInvalidCursor, got %v", c, err)
		}
	}
}

func TestCursorRoundTrip(t *testing.T) {
	c := EncodeCursor(42)
	n, err := DecodeCursor(&c)
	if err != nil || n != 42 {
		t.Fatalf("decode = %d, %v", n, err)
	}
}

func TestCollectFollowsCursors(t *testing.T) {
	all := []string{"a", "b", "c", "d", "e"}
	calls := 0
	fetch := func(_ context.Context, cursor *string) (Page[string], error) {
		calls++
		return Slice(all, 2, cursor)
	}
	got, err := Collect(t.Context(), fetch)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if !slices.Equal(got, all) || calls != 3 {
		t.Fatalf("got %v in %d calls", got, calls)
	}
}

func TestAllStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	fetch := func(_ context.Context, cursor *string) (Page[int], error) {
		if cursor != nil {
			return Page[int]{}, boom
		}
		return NewPage([]int{1}, WithNextCursor[int]("next")), nil
	}
	got, err := Collect(t.Context(), fetch)
	if !errors.Is(err, boom) || !slices.Equal(got, []int{1}) {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestAllEchoesRepeatedCursors(t *testing.T) {
	pages := []Page[int]{
		NewPage([]int{1}, WithNextCursor[int]("more")),
		NewPage([]int{2}, WithNextCursor[int]("more")),
		NewPage([]int{3}),
	}
	calls := 0
	fetch := func(_ context.Context, cursor *string) (Page[int], error) {
		if calls > 0 && (cursor == nil || *cursor != "more") {
			t.Fatalf("call %d: cursor not echoed: %v", calls, cursor)
		}
		p := pages[calls]
		calls++
		return p, nil
	}
	got, err := Collect(t.Context(), fetch)
	if err != nil || !slices.Equal(got, []int{1, 2, 3}) {
		t.Fatalf("got %v, %v", got, err)
	}
}

func TestAllMaxPages(t *testing.T) {
	fetch := func(context.Context, *string) (Page[int], error) {
		return NewPage([]int{1}, WithNextCursor[int]("same")), nil
	}
	got, err := Collect(t.Context(), fetch, WithMaxPages(3))
	if !errors.Is(err, ErrTooManyPages) {
		t.Fatalf("expected ErrTooManyPages, got %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d items before the limit, want 3", len(got))
	}
}

func TestAllEarlyBreak(t *testing.T) {
	calls := 0
	fetch := func(_ context.Context, cursor *string) (Page[int], error) {
		calls++
		return Slice([]int{1, 2, 3, 4}, 1, cursor)
	}
	for v, err := range All(t.Context(), fetch) {
		if err != nil {
			t.Fatal(err)
		}
		if v == 2 {
			break
		}
	}
	if calls != 2 {
		t.Fatalf("calls = %d", calls)
	}
}
