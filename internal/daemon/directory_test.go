package daemon

import (
	"context"
	"errors"
	"testing"

	"dsf/internal/domain"
)

func testID(b byte) domain.ID {
	var id domain.ID
	id[0] = b
	id[len(id)-1] = b
	return id
}

type memSaves struct {
	saved   map[domain.ID]domain.PeerInfo
	failing bool
}

func newPeerDirectory(m *memSaves) *directory[domain.PeerInfo] {
	return newDirectory(
		func(p *domain.PeerInfo) (domain.ID, int) { return p.ID, p.Index },
		func(_ context.Context, p *domain.PeerInfo) error {
			if m.failing {
				return errors.New("disk full")
			}
			m.saved[p.ID] = *p
			return nil
		},
		func(_ context.Context, id domain.ID) error {
			delete(m.saved, id)
			return nil
		},
	)
}

func upsertPeer(t *testing.T, d *directory[domain.PeerInfo], id domain.ID) domain.PeerInfo {
	t.Helper()
	p, _, err := d.Upsert(context.Background(), id, func(index int) *domain.PeerInfo {
		return domain.NewPeerInfo(id, index, domain.Explicit(testAddr), domain.UnknownState())
	}, nil)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	return p
}

func TestDirectory_IndexesAreNotReused(t *testing.T) {
	m := &memSaves{saved: make(map[domain.ID]domain.PeerInfo)}
	d := newPeerDirectory(m)
	ctx := context.Background()

	first := upsertPeer(t, d, testID(1))
	second := upsertPeer(t, d, testID(2))
	if first.Index != 0 || second.Index != 1 {
		t.Fatalf("indexes = %d, %d, want 0, 1", first.Index, second.Index)
	}

	if _, err := d.Delete(ctx, testID(2)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	third := upsertPeer(t, d, testID(3))
	if third.Index != 2 {
		t.Errorf("index after delete = %d, want 2", third.Index)
	}

	if _, ok := d.ResolveByIndex(1); ok {
		t.Error("deleted index still resolves")
	}
	if p, ok := d.ResolveByIndex(2); !ok || p.ID != testID(3) {
		t.Errorf("index 2 resolves to %v, %v", p.ID, ok)
	}
	if len(m.saved) != 2 || d.Len() != 2 {
		t.Errorf("saved %d, len %d, want 2", len(m.saved), d.Len())
	}
}

func TestDirectory_UpdateKeepsRecordOnFailure(t *testing.T) {
	m := &memSaves{saved: make(map[domain.ID]domain.PeerInfo)}
	d := newPeerDirectory(m)
	ctx := context.Background()
	upsertPeer(t, d, testID(1))

	tests := []struct {
		name    string
		failing bool
		fn      func(*domain.PeerInfo) error
	}{
		{"callback error", false, func(p *domain.PeerInfo) error {
			p.Blocked = true
			return domain.ErrMalformed
		}},
		{"save error", true, func(p *domain.PeerInfo) error {
			p.Blocked = true
			return nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m.failing = tt.failing
			if _, err := d.Update(ctx, testID(1), tt.fn); err == nil {
				t.Fatal("expected an error")
			}
			p, _ := d.ResolveByID(testID(1))
			if p.Blocked {
				t.Error("failed update was applied")
			}
		})
	}

	m.failing = false
	if _, err := d.Update(ctx, testID(9), func(*domain.PeerInfo) error { return nil }); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("update of unknown id: got %v, want not found", err)
	}
}

func TestDirectory_LoadResumesIndexes(t *testing.T) {
	m := &memSaves{saved: make(map[domain.ID]domain.PeerInfo)}
	d := newPeerDirectory(m)

	d.load([]*domain.PeerInfo{
		domain.NewPeerInfo(testID(1), 4, domain.Explicit(testAddr), domain.UnknownState()),
		domain.NewPeerInfo(testID(2), 1, domain.Explicit(testAddr), domain.UnknownState()),
	}, 0)

	list := d.List()
	if len(list) != 2 || list[0].Index != 1 || list[1].Index != 4 {
		t.Fatalf("list order = %+v", list)
	}
	if next := upsertPeer(t, d, testID(3)); next.Index != 5 {
		t.Errorf("next index = %d, want 5", next.Index)
	}
}

func TestDirectory_LoadHonoursWatermark(t *testing.T) {
	tests := []struct {
		name      string
		watermark int
		want      int
	}{
		{"deleted tail", 2, 2},
		{"no watermark", 0, 1},
		{"stale watermark", 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &memSaves{saved: make(map[domain.ID]domain.PeerInfo)}
			d := newPeerDirectory(m)
			d.load([]*domain.PeerInfo{
				domain.NewPeerInfo(testID(1), 0, domain.Explicit(testAddr), domain.UnknownState()),
			}, tt.watermark)

			if next := upsertPeer(t, d, testID(3)); next.Index != tt.want {
				t.Errorf("next index = %d, want %d", next.Index, tt.want)
			}
		})
	}
}
