package domain

import "time"

// ReplicaInfo is one peer's replica of a service page.
type ReplicaInfo struct {
	PageID  ID         `json:"page_id"`
	PeerID  ID         `json:"peer_id"`
	Version uint16     `json:"version"`
	Issued  time.Time  `json:"issued"`
	Updated time.Time  `json:"updated"`
	Expiry  *time.Time `json:"expiry,omitempty"`
	Active  bool       `json:"active"`
}

// Expired reports whether the replica's expiry has passed at now.
func (r *ReplicaInfo) Expired(now time.Time) bool {
	return r.Expiry != nil && now.After(*r.Expiry)
}

// Supersedes reports whether r is a newer version of the same peer's replica.
func (r *ReplicaInfo) Supersedes(o *ReplicaInfo) bool {
	if r.PeerID != o.PeerID {
		return false
	}
	if r.Version != o.Version {
		return r.Version > o.Version
	}
	return r.Updated.After(o.Updated)
}

// ActiveReplicas counts the replicas that are active and unexpired at now.
func ActiveReplicas(replicas []ReplicaInfo, now time.Time) int {
	n := 0
	for i := range replicas {
		if replicas[i].Active && !replicas[i].Expired(now) {
			n++
		}
	}
	return n
}

// MergeReplica inserts r into the set, replacing an older entry from the same
// peer. It reports whether the set changed.
func MergeReplica(replicas []ReplicaInfo, r ReplicaInfo) ([]ReplicaInfo, bool) {
	for i := range replicas {
		if replicas[i].PeerID != r.PeerID {
			continue
		}
		if !r.Supersedes(&replicas[i]) {
			return replicas, false
		}
		replicas[i] = r
		return replicas, true
	}
	return append(replicas, r), true
}
