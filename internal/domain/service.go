package domain

import (
	"fmt"
	"time"
)

// ServiceState is the lifecycle stage of a service as seen by this node.
type ServiceState string

const (
	ServiceStateCreated    ServiceState = "created"
	ServiceStateRegistered ServiceState = "registered"
	ServiceStateLocated    ServiceState = "located"
	ServiceStateSubscribed ServiceState = "subscribed"
)

// IsValid checks if the service state is valid.
func (s ServiceState) IsValid() bool {
	return s.rank() > 0
}

// rank orders states; Subscribed is highest. Zero means invalid.
func (s ServiceState) rank() int {
	switch s {
	case ServiceStateCreated:
		return 1
	case ServiceStateRegistered:
		return 2
	case ServiceStateLocated:
		return 3
	case ServiceStateSubscribed:
		return 4
	default:
		return 0
	}
}

// Outranks reports whether s takes precedence over o.
func (s ServiceState) Outranks(o ServiceState) bool {
	return s.rank() > o.rank()
}

// ParseServiceState parses a state name.
func ParseServiceState(s string) (ServiceState, error) {
	st := ServiceState(s)
	if !st.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidServiceState, s)
	}
	return st, nil
}

// ServiceInfo is the daemon's record of a service it created or learned.
//
// Registered, Located and Subscribed are independent milestones. State is the
// highest milestone reached and never moves backwards.
type ServiceInfo struct {
	ID            ID           `json:"id"`
	Index         int          `json:"index"`
	ApplicationID uint16       `json:"application_id"`
	State         ServiceState `json:"state"`
	PublicKey     PublicKey    `json:"public_key"`
	PrivateKey    *PrivateKey  `json:"-"`
	SecretKey     *SecretKey   `json:"secret_key,omitempty"`
	LastUpdated   *time.Time   `json:"last_updated,omitempty"`
	PrimaryPage   *Signature   `json:"primary_page,omitempty"`
	ReplicaPage   *Signature   `json:"replica_page,omitempty"`
	Subscribers   int          `json:"subscribers"`
	Replicas      int          `json:"replicas"`
	Origin        bool         `json:"origin"`
	Registered    bool         `json:"registered"`
	Located       bool         `json:"located"`
	Subscribed    bool         `json:"subscribed"`
}

// NewOwnedService creates the record for a service this node originates.
func NewOwnedService(id ID, index int, appID uint16, pub PublicKey, priv PrivateKey, secret *SecretKey) *ServiceInfo {
	return &ServiceInfo{
		ID:            id,
		Index:         index,
		ApplicationID: appID,
		State:         ServiceStateCreated,
		PublicKey:     pub,
		PrivateKey:    &priv,
		SecretKey:     secret,
		Origin:        true,
	}
}

// NewRemoteService creates the record for a service learned from the network.
func NewRemoteService(id ID, index int, pub PublicKey) *ServiceInfo {
	return &ServiceInfo{
		ID:        id,
		Index:     index,
		State:     ServiceStateCreated,
		PublicKey: pub,
	}
}

// Validate validates the service record.
func (s *ServiceInfo) Validate() error {
	if s.ID.IsZero() {
		return fmt.Errorf("%w: service id is required", ErrInvalidIdentifier)
	}
	if !s.State.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidServiceState, s.State)
	}
	if s.Origin && s.PrivateKey == nil {
		return fmt.Errorf("%w: origin service without private key", ErrMalformed)
	}
	if s.Subscribers < 0 || s.Replicas < 0 {
		return fmt.Errorf("%w: negative counters", ErrMalformed)
	}
	return nil
}

// MarkRegistered records a successful register with the published page.
func (s *ServiceInfo) MarkRegistered(page Signature) {
	s.Registered = true
	s.PrimaryPage = &page
	s.advance(ServiceStateRegistered)
}

// MarkLocated records a successful locate. The replica page and update time
// are optional; the update time only moves forward.
func (s *ServiceInfo) MarkLocated(replica *Signature, updated *time.Time) {
	s.Located = true
	if replica != nil {
		r := *replica
		s.ReplicaPage = &r
	}
	if updated != nil {
		s.touch(*updated)
	}
	s.advance(ServiceStateLocated)
}

// MarkSubscribed records a successful subscribe.
func (s *ServiceInfo) MarkSubscribed() {
	s.Subscribed = true
	s.advance(ServiceStateSubscribed)
}

// MarkUnsubscribed clears the subscribed milestone. The reported state is
// left as is.
func (s *ServiceInfo) MarkUnsubscribed() {
	s.Subscribed = false
}

// Touch records new data for the service.
func (s *ServiceInfo) Touch(at time.Time) {
	s.touch(at)
}

// SetSecretKey replaces or clears the symmetric data key.
func (s *ServiceInfo) SetSecretKey(key *SecretKey) {
	if key == nil {
		s.SecretKey = nil
		return
	}
	k := *key
	s.SecretKey = &k
}

// Public reports whether the service's data is unencrypted.
func (s *ServiceInfo) Public() bool {
	return s.SecretKey == nil
}

// Milestone returns the highest milestone flag currently set.
func (s *ServiceInfo) Milestone() ServiceState {
	switch {
	case s.Subscribed:
		return ServiceStateSubscribed
	case s.Located:
		return ServiceStateLocated
	case s.Registered:
		return ServiceStateRegistered
	default:
		return ServiceStateCreated
	}
}

func (s *ServiceInfo) advance(to ServiceState) {
	if to.Outranks(s.State) {
		s.State = to
	}
}

func (s *ServiceInfo) touch(at time.Time) {
	if s.LastUpdated != nil && !at.After(*s.LastUpdated) {
		return
	}
	at = at.UTC()
	s.LastUpdated = &at
}
