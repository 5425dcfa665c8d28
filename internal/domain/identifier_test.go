package domain

import (
	"errors"
	"testing"
)

type sliceDirectory []*PeerInfo

func (d sliceDirectory) ResolveByID(id ID) (*PeerInfo, bool) {
	for _, p := range d {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

func (d sliceDirectory) ResolveByIndex(index int) (*PeerInfo, bool) {
	if index < 0 || index >= len(d) {
		return nil, false
	}
	return d[index], true
}

func TestResolve(t *testing.T) {
	a, _ := NewRandomID()
	b, _ := NewRandomID()
	missing, _ := NewRandomID()

	dir := sliceDirectory{
		NewPeerInfo(a, 0, Implicit("/ip4/10.0.0.1/tcp/1"), UnknownState()),
		NewPeerInfo(b, 1, Implicit("/ip4/10.0.0.2/tcp/1"), UnknownState()),
	}

	idx := func(i int) *int { return &i }

	tests := []struct {
		name    string
		ident   Identifier
		want    ID
		wantErr error
	}{
		{"by id", ByID(b), b, nil},
		{"by index", ByIndex(0), a, nil},
		{"id wins over index", Identifier{ID: &a, Index: idx(1)}, a, nil},
		{"unknown id", ByID(missing), ID{}, ErrNotFound},
		{"unknown id ignores valid index", Identifier{ID: &missing, Index: idx(0)}, ID{}, ErrNotFound},
		{"index out of range", ByIndex(7), ID{}, ErrNotFound},
		{"negative index", ByIndex(-1), ID{}, ErrInvalidIdentifier},
		{"empty", Identifier{}, ID{}, ErrInvalidIdentifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Resolve[*PeerInfo](dir, tt.ident)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Resolve() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if got.ID != tt.want {
				t.Errorf("Resolve() = %s, want %s", got.ID, tt.want)
			}
		})
	}
}

func TestIdentifier_String(t *testing.T) {
	if got := ByIndex(3).String(); got != "#3" {
		t.Errorf("String() = %q", got)
	}
	if got := (Identifier{}).String(); got != "<none>" {
		t.Errorf("String() = %q", got)
	}
}
