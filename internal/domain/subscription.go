package domain

import (
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"
)

// SubscriberKind is what is on the receiving end of a subscription.
type SubscriberKind string

const (
	SubscriberPeer   SubscriberKind = "peer"
	SubscriberSocket SubscriberKind = "socket"
	SubscriberNone   SubscriberKind = "none"
)

// IsValid checks if the subscriber kind is valid.
func (k SubscriberKind) IsValid() bool {
	switch k {
	case SubscriberPeer, SubscriberSocket, SubscriberNone:
		return true
	default:
		return false
	}
}

// Subscriber identifies the receiving party of a subscription.
type Subscriber struct {
	Kind   SubscriberKind `json:"kind"`
	Peer   *ID            `json:"peer,omitempty"`
	Socket *uint32        `json:"socket,omitempty"`
}

// PeerSubscriber returns a subscriber for a remote peer.
func PeerSubscriber(id ID) Subscriber {
	return Subscriber{Kind: SubscriberPeer, Peer: &id}
}

// SocketSubscriber returns a subscriber for a local control-plane stream.
func SocketSubscriber(sock uint32) Subscriber {
	return Subscriber{Kind: SubscriberSocket, Socket: &sock}
}

// Validate checks the subscriber carries the field its kind requires.
func (s Subscriber) Validate() error {
	switch s.Kind {
	case SubscriberPeer:
		if s.Peer == nil {
			return fmt.Errorf("%w: peer subscriber without id", ErrInvalidSubscription)
		}
	case SubscriberSocket:
		if s.Socket == nil {
			return fmt.Errorf("%w: socket subscriber without socket", ErrInvalidSubscription)
		}
	case SubscriberNone:
	default:
		return fmt.Errorf("%w: kind %q", ErrInvalidSubscription, s.Kind)
	}
	return nil
}

// Key returns a stable map key for the subscriber.
func (s Subscriber) Key() string {
	switch s.Kind {
	case SubscriberPeer:
		if s.Peer != nil {
			return "peer:" + s.Peer.String()
		}
	case SubscriberSocket:
		if s.Socket != nil {
			return "socket:" + strconv.FormatUint(uint64(*s.Socket), 10)
		}
	}
	return string(SubscriberNone)
}

func (s Subscriber) String() string { return s.Key() }

// QosPriority is the delivery priority requested by a subscriber.
type QosPriority string

const (
	QosNone    QosPriority = "none"
	QosLatency QosPriority = "latency"
)

// IsValid checks if the priority is valid.
func (q QosPriority) IsValid() bool {
	return q == QosNone || q == QosLatency
}

// SubscriptionEntry is one subscriber of one service.
type SubscriptionEntry struct {
	ServiceID ID          `json:"service_id"`
	Kind      Subscriber  `json:"kind"`
	Updated   *time.Time  `json:"updated,omitempty"`
	Expiry    *time.Time  `json:"expiry,omitempty"`
	QoS       QosPriority `json:"qos"`
}

// Expired reports whether the entry's expiry has passed at now.
func (e *SubscriptionEntry) Expired(now time.Time) bool {
	return e.Expiry != nil && now.After(*e.Expiry)
}

func (e *SubscriptionEntry) refresh(now time.Time, ttl time.Duration) {
	at := now.UTC()
	e.Updated = &at
	if ttl > 0 {
		exp := at.Add(ttl)
		if e.Expiry == nil || exp.After(*e.Expiry) {
			e.Expiry = &exp
		}
	}
}

// Ledger tracks subscribers per service.
type Ledger struct {
	mu      sync.RWMutex
	entries map[ID]map[string]*SubscriptionEntry
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{entries: make(map[ID]map[string]*SubscriptionEntry)}
}

// Accept records a new subscriber, or refreshes an existing one.
// A ttl of zero means the entry does not expire.
func (l *Ledger) Accept(service ID, sub Subscriber, qos QosPriority, now time.Time, ttl time.Duration) (SubscriptionEntry, error) {
	if err := sub.Validate(); err != nil {
		return SubscriptionEntry{}, err
	}
	if qos == "" {
		qos = QosNone
	}
	if !qos.IsValid() {
		return SubscriptionEntry{}, fmt.Errorf("%w: qos %q", ErrInvalidSubscription, qos)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	subs, ok := l.entries[service]
	if !ok {
		subs = make(map[string]*SubscriptionEntry)
		l.entries[service] = subs
	}

	e, ok := subs[sub.Key()]
	if !ok {
		e = &SubscriptionEntry{ServiceID: service, Kind: sub}
		subs[sub.Key()] = e
	}
	e.QoS = qos
	e.refresh(now, ttl)
	return *e, nil
}

// Refresh pushes an existing entry's update and expiry times forward.
func (l *Ledger) Refresh(service ID, sub Subscriber, now time.Time, ttl time.Duration) (SubscriptionEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[service][sub.Key()]
	if !ok {
		return SubscriptionEntry{}, fmt.Errorf("%w: subscription %s to %s", ErrNotFound, sub, service)
	}
	if e.Expired(now) {
		l.removeLocked(service, sub.Key())
		return SubscriptionEntry{}, fmt.Errorf("%w: %s to %s", ErrSubscriptionExpired, sub, service)
	}
	e.refresh(now, ttl)
	return *e, nil
}

// Remove deletes a subscriber. It reports whether an entry existed.
func (l *Ledger) Remove(service ID, sub Subscriber) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[service][sub.Key()]; !ok {
		return false
	}
	l.removeLocked(service, sub.Key())
	return true
}

// Expire removes every entry whose expiry has passed and returns them.
func (l *Ledger) Expire(now time.Time) []SubscriptionEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var removed []SubscriptionEntry
	for svc, subs := range l.entries {
		for key, e := range subs {
			if e.Expired(now) {
				removed = append(removed, *e)
				delete(subs, key)
			}
		}
		if len(subs) == 0 {
			delete(l.entries, svc)
		}
	}
	return removed
}

// List returns the subscribers of a service ordered by key.
func (l *Ledger) List(service ID) []SubscriptionEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	subs := l.entries[service]
	keys := make([]string, 0, len(subs))
	for k := range subs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]SubscriptionEntry, 0, len(keys))
	for _, k := range keys {
		out = append(out, *subs[k])
	}
	return out
}

// Count returns the number of subscribers of a service.
func (l *Ledger) Count(service ID) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries[service])
}

// Total returns the number of entries across all services.
func (l *Ledger) Total() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	n := 0
	for _, subs := range l.entries {
		n += len(subs)
	}
	return n
}

// Restore inserts an entry loaded from storage as is.
func (l *Ledger) Restore(e SubscriptionEntry) error {
	if err := e.Kind.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	subs, ok := l.entries[e.ServiceID]
	if !ok {
		subs = make(map[string]*SubscriptionEntry)
		l.entries[e.ServiceID] = subs
	}
	entry := e
	subs[e.Kind.Key()] = &entry
	return nil
}

func (l *Ledger) removeLocked(service ID, key string) {
	subs := l.entries[service]
	delete(subs, key)
	if len(subs) == 0 {
		delete(l.entries, service)
	}
}
