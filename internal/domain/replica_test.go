package domain

import (
	"testing"
	"time"
)

func TestMergeReplica(t *testing.T) {
	peer, _ := NewRandomID()
	other, _ := NewRandomID()
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	var set []ReplicaInfo
	var changed bool

	set, changed = MergeReplica(set, ReplicaInfo{PeerID: peer, Version: 1, Updated: now, Active: true})
	if !changed || len(set) != 1 {
		t.Fatalf("first merge: changed=%v len=%d", changed, len(set))
	}

	set, changed = MergeReplica(set, ReplicaInfo{PeerID: peer, Version: 0, Updated: now.Add(time.Hour), Active: true})
	if changed {
		t.Error("older version should not replace newer")
	}

	set, changed = MergeReplica(set, ReplicaInfo{PeerID: peer, Version: 2, Updated: now, Active: true})
	if !changed || set[0].Version != 2 {
		t.Errorf("newer version should replace: changed=%v version=%d", changed, set[0].Version)
	}

	exp := now.Add(time.Minute)
	set, _ = MergeReplica(set, ReplicaInfo{PeerID: other, Version: 1, Updated: now, Expiry: &exp, Active: true})
	if len(set) != 2 {
		t.Fatalf("len = %d, want 2", len(set))
	}

	if got := ActiveReplicas(set, now); got != 2 {
		t.Errorf("ActiveReplicas(now) = %d, want 2", got)
	}
	if got := ActiveReplicas(set, now.Add(time.Hour)); got != 1 {
		t.Errorf("ActiveReplicas(later) = %d, want 1", got)
	}
}
