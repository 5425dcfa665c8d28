package domain

import (
	"fmt"
	"time"
)

// PageBounds limits a listing. Nil fields are unbounded.
type PageBounds struct {
	Count  *int `json:"count,omitempty"`
	Offset *int `json:"offset,omitempty"`
}

// Validate rejects negative values.
func (b PageBounds) Validate() error {
	if b.Count != nil && *b.Count < 0 {
		return fmt.Errorf("%w: negative count", ErrMalformed)
	}
	if b.Offset != nil && *b.Offset < 0 {
		return fmt.Errorf("%w: negative offset", ErrMalformed)
	}
	return nil
}

// TimeBounds is an inclusive time window. Nil ends are open.
type TimeBounds struct {
	From  *time.Time `json:"from,omitempty"`
	Until *time.Time `json:"until,omitempty"`
}

// IsZero reports whether neither end is set.
func (b TimeBounds) IsZero() bool {
	return b.From == nil && b.Until == nil
}

// Validate rejects a window whose end precedes its start.
func (b TimeBounds) Validate() error {
	if b.From != nil && b.Until != nil && b.Until.Before(*b.From) {
		return ErrInvalidTimeRange
	}
	return nil
}

// Contains reports whether t lies in the window. A record without a
// timestamp only matches an unbounded window.
func (b TimeBounds) Contains(t *time.Time) bool {
	if b.IsZero() {
		return true
	}
	if t == nil {
		return false
	}
	if b.From != nil && t.Before(*b.From) {
		return false
	}
	if b.Until != nil && t.After(*b.Until) {
		return false
	}
	return true
}

// Paginate filters items by the time window, then skips offset and takes
// count. The input order is preserved. An inverted window matches nothing.
func Paginate[T any](items []T, stamp func(T) *time.Time, page PageBounds, window TimeBounds) ([]T, error) {
	if err := page.Validate(); err != nil {
		return nil, err
	}
	if err := window.Validate(); err != nil {
		return []T{}, nil
	}

	filtered := make([]T, 0, len(items))
	for _, it := range items {
		if window.Contains(stamp(it)) {
			filtered = append(filtered, it)
		}
	}

	if page.Offset != nil {
		if *page.Offset >= len(filtered) {
			return []T{}, nil
		}
		filtered = filtered[*page.Offset:]
	}
	if page.Count != nil && *page.Count < len(filtered) {
		filtered = filtered[:*page.Count]
	}
	return filtered, nil
}
