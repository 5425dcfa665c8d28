package domain

import (
	"errors"
	"testing"
	"time"
)

func TestPaginate(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	items := make([]time.Time, 5)
	for i := range items {
		items[i] = base.Add(time.Duration(i) * time.Hour)
	}
	stamp := func(t time.Time) *time.Time { return &t }

	n := func(i int) *int { return &i }
	at := func(h int) *time.Time {
		t := base.Add(time.Duration(h) * time.Hour)
		return &t
	}

	tests := []struct {
		name   string
		page   PageBounds
		window TimeBounds
		want   int
		first  int
	}{
		{"unbounded", PageBounds{}, TimeBounds{}, 5, 0},
		{"count", PageBounds{Count: n(2)}, TimeBounds{}, 2, 0},
		{"offset", PageBounds{Offset: n(3)}, TimeBounds{}, 2, 3},
		{"offset past end", PageBounds{Offset: n(10)}, TimeBounds{}, 0, -1},
		{"count zero", PageBounds{Count: n(0)}, TimeBounds{}, 0, -1},
		{"inclusive window", PageBounds{}, TimeBounds{From: at(1), Until: at(3)}, 3, 1},
		{"window then offset then count", PageBounds{Offset: n(1), Count: n(1)}, TimeBounds{From: at(1)}, 1, 2},
		{"empty window", PageBounds{}, TimeBounds{From: at(9)}, 0, -1},
		{"inverted window", PageBounds{}, TimeBounds{From: at(3), Until: at(1)}, 0, -1},
		{"single instant", PageBounds{}, TimeBounds{From: at(2), Until: at(2)}, 1, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Paginate(items, stamp, tt.page, tt.window)
			if err != nil {
				t.Fatalf("Paginate() error = %v", err)
			}
			if len(got) != tt.want {
				t.Fatalf("Paginate() len = %d, want %d", len(got), tt.want)
			}
			if tt.first >= 0 && !got[0].Equal(items[tt.first]) {
				t.Errorf("first = %v, want %v", got[0], items[tt.first])
			}
		})
	}
}

func TestPaginate_Invalid(t *testing.T) {
	neg := -1

	_, err := Paginate([]int{1}, func(int) *time.Time { return nil }, PageBounds{Count: &neg}, TimeBounds{})
	if !errors.Is(err, ErrMalformed) {
		t.Errorf("error = %v, want ErrMalformed", err)
	}
}

func TestTimeBounds_Validate(t *testing.T) {
	from := time.Now()
	until := from.Add(-time.Second)
	if err := (TimeBounds{From: &from, Until: &until}).Validate(); !errors.Is(err, ErrInvalidTimeRange) {
		t.Errorf("error = %v, want ErrInvalidTimeRange", err)
	}
	if err := (TimeBounds{From: &from, Until: &from}).Validate(); err != nil {
		t.Errorf("single instant: %v", err)
	}
}

func TestTimeBounds_ContainsNil(t *testing.T) {
	now := time.Now()
	if !(TimeBounds{}).Contains(nil) {
		t.Error("unbounded window should contain untimed records")
	}
	if (TimeBounds{From: &now}).Contains(nil) {
		t.Error("bounded window should exclude untimed records")
	}
}
