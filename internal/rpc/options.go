package rpc

import (
	"fmt"

	"dsf/internal/domain"
)

// ConnectOptions configures a peer connect request.
type ConnectOptions struct {
	Address domain.Address `json:"address"`
	ID      *domain.ID     `json:"id,omitempty"`
	Timeout *Duration      `json:"timeout,omitempty"`
}

// ConnectInfo is returned by a successful connect.
type ConnectInfo struct {
	ID    domain.ID `json:"id"`
	Peers int       `json:"peers"`
}

// StatusInfo summarises the daemon.
type StatusInfo struct {
	ID       domain.ID `json:"id"`
	Peers    int       `json:"peers"`
	Services int       `json:"services"`
}

// ListOptions filters a listing.
type ListOptions struct {
	ApplicationID *uint16           `json:"application_id,omitempty"`
	Page          domain.PageBounds `json:"page"`
	Filter        string            `json:"filter,omitempty"`
}

// MetadataEntry is one key:value pair attached to a service.
type MetadataEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// CreateOptions configures a new service.
type CreateOptions struct {
	ApplicationID uint16           `json:"application_id"`
	PageKind      *uint16          `json:"page_kind,omitempty"`
	Body          []byte           `json:"body,omitempty"`
	Addresses     []domain.Address `json:"addresses,omitempty"`
	Metadata      []MetadataEntry  `json:"metadata,omitempty"`
	Public        bool             `json:"public"`
	Register      bool             `json:"register"`
}

// AndRegister returns a copy that also registers the service once created.
func (o CreateOptions) AndRegister() CreateOptions {
	o.Register = true
	return o
}

// CreateInfo is returned by a successful create.
type CreateInfo struct {
	ID        domain.ID         `json:"id"`
	SecretKey *domain.SecretKey `json:"secret_key,omitempty"`
}

// RegisterOptions configures a register request.
type RegisterOptions struct {
	NoReplica bool `json:"no_replica"`
}

// RegisterInfo is returned by a successful register.
type RegisterInfo struct {
	PageVersion    uint16  `json:"page_version"`
	ReplicaVersion *uint16 `json:"replica_version,omitempty"`
	Peers          int     `json:"peers"`
}

// LocateOptions selects the service to search for.
type LocateOptions struct {
	ID domain.ID `json:"id"`
}

// LocateInfo is returned by a successful locate.
type LocateInfo struct {
	ID          domain.ID `json:"id"`
	Origin      bool      `json:"origin"`
	Updated     bool      `json:"updated"`
	PageVersion uint16    `json:"page_version"`
}

// SubscribeOptions configures a subscribe request.
type SubscribeOptions struct {
	QoS domain.QosPriority `json:"qos,omitempty"`
}

// SubscribeInfo is returned by a successful subscribe.
type SubscribeInfo struct {
	// Count is the number of replicas successfully subscribed to.
	Count uint32 `json:"count"`
}

// SetKeyOptions sets or clears a service's secret key.
type SetKeyOptions struct {
	Service   domain.Identifier `json:"service"`
	SecretKey *domain.SecretKey `json:"secret_key,omitempty"`
}

// PublishOptions configures a data publish. Data and DataFile are exclusive.
type PublishOptions struct {
	Service  domain.Identifier `json:"service"`
	DataKind *domain.DataKind  `json:"kind,omitempty"`
	Data     []byte            `json:"data,omitempty"`
	DataFile string            `json:"data_file,omitempty"`
}

// Validate checks the body source.
func (o PublishOptions) Validate() error {
	if len(o.Data) > 0 && o.DataFile != "" {
		return fmt.Errorf("%w: data and data_file are exclusive", domain.ErrMalformed)
	}
	if o.DataKind != nil && !o.DataKind.IsValid() {
		return fmt.Errorf("%w: data kind %q", domain.ErrMalformed, *o.DataKind)
	}
	return nil
}

// PublishInfo is returned by a successful publish.
type PublishInfo struct {
	Index uint16           `json:"index"`
	Sig   domain.Signature `json:"sig"`
}

// NsSearchOptions searches a name service by name or hash.
type NsSearchOptions struct {
	NS   domain.Identifier  `json:"ns"`
	Name *string            `json:"name,omitempty"`
	Hash *domain.CryptoHash `json:"hash,omitempty"`
}

// Validate requires exactly one filter.
func (o NsSearchOptions) Validate() error {
	if (o.Name == nil) == (o.Hash == nil) {
		return fmt.Errorf("%w: exactly one of name or hash is required", domain.ErrMalformed)
	}
	if o.Name != nil {
		return domain.ValidateName(*o.Name)
	}
	return nil
}

// NsRegisterOptions registers a target service with a name service.
type NsRegisterOptions struct {
	NS     domain.Identifier   `json:"ns"`
	Target domain.ID           `json:"target"`
	Name   *string             `json:"name,omitempty"`
	Hashes []domain.CryptoHash `json:"hashes,omitempty"`
}

// Validate requires a name or at least one hash.
func (o NsRegisterOptions) Validate() error {
	if o.Target.IsZero() {
		return fmt.Errorf("%w: target is required", domain.ErrInvalidIdentifier)
	}
	if o.Name == nil && len(o.Hashes) == 0 {
		return fmt.Errorf("%w: name or hash is required", domain.ErrMalformed)
	}
	if o.Name != nil {
		return domain.ValidateName(*o.Name)
	}
	return nil
}

// NsRegisterInfo is returned by a successful name registration.
type NsRegisterInfo struct {
	NS     domain.ID           `json:"ns"`
	Prefix *string             `json:"prefix,omitempty"`
	Name   *string             `json:"name,omitempty"`
	Hashes []domain.CryptoHash `json:"hashes"`
}

// FetchOptions fetches a single page by signature.
type FetchOptions struct {
	Service domain.Identifier `json:"service"`
	PageSig domain.Signature  `json:"page_sig"`
}

// StreamOptions opens a data stream on a service.
type StreamOptions struct {
	Service domain.Identifier `json:"service"`
}

// DatastoreEntry is one key/value pair from a debug datastore dump.
type DatastoreEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
