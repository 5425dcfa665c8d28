package domain

import (
	"fmt"
	"strconv"
)

// Identifier selects a peer or service by global id or by local index.
// When both are set the id wins; when neither is set resolution fails.
type Identifier struct {
	ID    *ID  `json:"id,omitempty"`
	Index *int `json:"index,omitempty"`
}

// ByID returns an identifier selecting by global id.
func ByID(id ID) Identifier {
	return Identifier{ID: &id}
}

// ByIndex returns an identifier selecting by local index.
func ByIndex(index int) Identifier {
	return Identifier{Index: &index}
}

// IsEmpty reports whether neither selector is set.
func (i Identifier) IsEmpty() bool {
	return i.ID == nil && i.Index == nil
}

// Validate checks that at least one selector is present.
func (i Identifier) Validate() error {
	if i.IsEmpty() {
		return ErrInvalidIdentifier
	}
	if i.ID == nil && *i.Index < 0 {
		return fmt.Errorf("%w: negative index %d", ErrInvalidIdentifier, *i.Index)
	}
	return nil
}

func (i Identifier) String() string {
	switch {
	case i.ID != nil:
		return i.ID.String()
	case i.Index != nil:
		return "#" + strconv.Itoa(*i.Index)
	default:
		return "<none>"
	}
}

// Directory is a lookup source for records of type T.
type Directory[T any] interface {
	ResolveByID(id ID) (T, bool)
	ResolveByIndex(index int) (T, bool)
}

// Resolve looks up exactly one record for the identifier.
func Resolve[T any](dir Directory[T], ident Identifier) (T, error) {
	var zero T

	if err := ident.Validate(); err != nil {
		return zero, err
	}

	if ident.ID != nil {
		rec, ok := dir.ResolveByID(*ident.ID)
		if !ok {
			return zero, fmt.Errorf("%w: id %s", ErrNotFound, ident.ID)
		}
		return rec, nil
	}

	rec, ok := dir.ResolveByIndex(*ident.Index)
	if !ok {
		return zero, fmt.Errorf("%w: index %d", ErrNotFound, *ident.Index)
	}
	return rec, nil
}
