package domain

import (
	"errors"
	"testing"
	"time"
)

func TestLedger_AcceptRefreshRemove(t *testing.T) {
	svc, _ := NewRandomID()
	peer, _ := NewRandomID()
	sub := PeerSubscriber(peer)
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	l := NewLedger()

	e, err := l.Accept(svc, sub, "", now, time.Minute)
	if err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if e.QoS != QosNone {
		t.Errorf("QoS = %s, want none", e.QoS)
	}
	if !e.Expiry.Equal(now.Add(time.Minute)) {
		t.Errorf("Expiry = %v", e.Expiry)
	}

	// re-accepting refreshes rather than duplicates
	if _, err := l.Accept(svc, sub, QosLatency, now.Add(10*time.Second), time.Minute); err != nil {
		t.Fatalf("Accept() error = %v", err)
	}
	if l.Count(svc) != 1 {
		t.Fatalf("Count() = %d, want 1", l.Count(svc))
	}

	later := now.Add(30 * time.Second)
	e, err = l.Refresh(svc, sub, later, time.Minute)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if !e.Expiry.Equal(later.Add(time.Minute)) {
		t.Errorf("Expiry = %v, want %v", e.Expiry, later.Add(time.Minute))
	}
	if e.QoS != QosLatency {
		t.Errorf("QoS = %s, want latency", e.QoS)
	}

	if !l.Remove(svc, sub) {
		t.Error("Remove() should report an existing entry")
	}
	if l.Remove(svc, sub) {
		t.Error("second Remove() should report nothing removed")
	}
	if _, err := l.Refresh(svc, sub, later, time.Minute); !errors.Is(err, ErrNotFound) {
		t.Errorf("Refresh() after remove error = %v, want ErrNotFound", err)
	}
}

func TestLedger_Expire(t *testing.T) {
	svc, _ := NewRandomID()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	l := NewLedger()
	_, _ = l.Accept(svc, SocketSubscriber(1), QosNone, now, time.Minute)
	_, _ = l.Accept(svc, SocketSubscriber(2), QosNone, now, time.Hour)
	_, _ = l.Accept(svc, SocketSubscriber(3), QosNone, now, 0)

	removed := l.Expire(now.Add(2 * time.Minute))
	if len(removed) != 1 {
		t.Fatalf("Expire() removed %d, want 1", len(removed))
	}
	if *removed[0].Kind.Socket != 1 {
		t.Errorf("removed socket %d, want 1", *removed[0].Kind.Socket)
	}
	if l.Count(svc) != 2 {
		t.Errorf("Count() = %d, want 2", l.Count(svc))
	}
}

func TestLedger_RefreshExpired(t *testing.T) {
	svc, _ := NewRandomID()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	sub := SocketSubscriber(7)

	l := NewLedger()
	_, _ = l.Accept(svc, sub, QosNone, now, time.Second)

	_, err := l.Refresh(svc, sub, now.Add(time.Minute), time.Second)
	if !errors.Is(err, ErrSubscriptionExpired) {
		t.Fatalf("Refresh() error = %v, want ErrSubscriptionExpired", err)
	}
	if l.Total() != 0 {
		t.Errorf("Total() = %d, want 0", l.Total())
	}
}

func TestSubscriber_Validate(t *testing.T) {
	tests := []struct {
		name    string
		sub     Subscriber
		wantErr bool
	}{
		{"peer", PeerSubscriber(ID{1}), false},
		{"socket", SocketSubscriber(4), false},
		{"none", Subscriber{Kind: SubscriberNone}, false},
		{"peer without id", Subscriber{Kind: SubscriberPeer}, true},
		{"socket without socket", Subscriber{Kind: SubscriberSocket}, true},
		{"unknown kind", Subscriber{Kind: "carrier-pigeon"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.sub.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLedger_ListOrdered(t *testing.T) {
	svc, _ := NewRandomID()
	now := time.Now()
	l := NewLedger()
	for _, s := range []uint32{3, 1, 2} {
		_, _ = l.Accept(svc, SocketSubscriber(s), QosNone, now, 0)
	}

	list := l.List(svc)
	if len(list) != 3 {
		t.Fatalf("List() len = %d", len(list))
	}
	for i, want := range []uint32{1, 2, 3} {
		if *list[i].Kind.Socket != want {
			t.Errorf("List()[%d] = %d, want %d", i, *list[i].Kind.Socket, want)
		}
	}
}
