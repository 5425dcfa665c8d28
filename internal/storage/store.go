// Package storage provides the persistence layer for dsfd.
// It defines repository interfaces over the daemon's directories and the
// sqlite implementation registers itself through OpenSQLite.
package storage

import (
	"context"
	"database/sql"
	"io"
	"time"

	"dsf/internal/domain"
)

// Store is the main storage interface that provides access to all repositories.
type Store interface {
	io.Closer

	// Peers returns the peer repository.
	Peers() PeerRepository

	// Services returns the service repository.
	Services() ServiceRepository

	// Replicas returns the replica repository.
	Replicas() ReplicaRepository

	// Pages returns the service page repository.
	Pages() PageRepository

	// Data returns the data page repository.
	Data() DataRepository

	// Subscriptions returns the subscription ledger repository.
	Subscriptions() SubscriptionRepository

	// Names returns the name-service repository.
	Names() NameRepository

	// Addresses returns the external address repository.
	Addresses() AddressRepository

	// Dump lists every stored record as key/value text.
	Dump(ctx context.Context) ([]Entry, error)

	// Ping checks database connectivity.
	Ping(ctx context.Context) error

	// Vacuum performs database maintenance.
	Vacuum(ctx context.Context) error

	// Stats returns storage statistics.
	Stats(ctx context.Context) (Stats, error)

	// DB returns the underlying connection, used by migrations.
	DB() *sql.DB
}

// Entry is one record of a datastore dump.
type Entry struct {
	Key   string
	Value string
}

// Stats holds storage statistics.
type Stats struct {
	Peers          int64
	Services       int64
	DataPages      int64
	BytesUsed      int64
	BytesAvailable int64
	Healthy        bool
	Message        string
}

// PeerRepository persists peer records.
type PeerRepository interface {
	// Save inserts or replaces the record for p.ID.
	Save(ctx context.Context, p *domain.PeerInfo) error

	// Get returns the record for id or ErrNotFound.
	Get(ctx context.Context, id domain.ID) (*domain.PeerInfo, error)

	// List returns all peers ordered by index.
	List(ctx context.Context) ([]*domain.PeerInfo, error)

	// Delete removes the record for id.
	Delete(ctx context.Context, id domain.ID) error

	// NextIndex returns one past the highest index ever saved, so indexes
	// of deleted peers are not handed out again.
	NextIndex(ctx context.Context) (int, error)
}

// ServiceFilter narrows a service listing.
type ServiceFilter struct {
	ApplicationID *uint16
}

// ServiceRepository persists service records including the private key of
// services this node originates.
type ServiceRepository interface {
	Save(ctx context.Context, s *domain.ServiceInfo) error
	Get(ctx context.Context, id domain.ID) (*domain.ServiceInfo, error)
	List(ctx context.Context, filter ServiceFilter) ([]*domain.ServiceInfo, error)
	Delete(ctx context.Context, id domain.ID) error
	NextIndex(ctx context.Context) (int, error)
}

// ReplicaRepository persists the replicas known for each service.
type ReplicaRepository interface {
	// Save upserts a replica keyed by service and holding peer.
	Save(ctx context.Context, service domain.ID, r domain.ReplicaInfo) error
	List(ctx context.Context, service domain.ID) ([]domain.ReplicaInfo, error)
	// DeleteExpired removes replicas whose expiry is before now.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// PageRepository keeps the newest signed primary page of each service.
type PageRepository interface {
	// Save stores p unless a page with a higher version is already held.
	// It reports whether p was stored.
	Save(ctx context.Context, p *domain.ServicePage) (bool, error)
	Get(ctx context.Context, service domain.ID) (*domain.ServicePage, error)
}

// DataRepository persists data pages. Bodies are compressed at rest.
type DataRepository interface {
	// Put stores a page. A page with a known signature is left untouched
	// and ErrAlreadyExists is returned.
	Put(ctx context.Context, d *domain.DataInfo) error
	Get(ctx context.Context, service domain.ID, sig domain.Signature) (*domain.DataInfo, error)
	// List returns the pages of a service ordered by index.
	List(ctx context.Context, service domain.ID) ([]domain.DataInfo, error)
	// Latest returns the page with the highest index or ErrNotFound.
	Latest(ctx context.Context, service domain.ID) (*domain.DataInfo, error)
}

// SubscriptionRepository persists the subscription ledger across restarts.
type SubscriptionRepository interface {
	Save(ctx context.Context, e domain.SubscriptionEntry) error
	Delete(ctx context.Context, service domain.ID, sub domain.Subscriber) error
	List(ctx context.Context) ([]domain.SubscriptionEntry, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// NameRepository persists name-service registrations.
type NameRepository interface {
	// Save upserts the record keyed by name service and target.
	Save(ctx context.Context, r *domain.NameRecord) error
	// Search returns the records in ns carrying hash.
	Search(ctx context.Context, ns domain.ID, hash domain.CryptoHash) ([]domain.NameRecord, error)
	List(ctx context.Context, ns domain.ID) ([]domain.NameRecord, error)
}

// AddressRepository persists the externally reachable addresses of this node.
type AddressRepository interface {
	Add(ctx context.Context, a domain.Address) error
	// Remove returns ErrNotFound when the address was never added.
	Remove(ctx context.Context, a domain.Address) error
	List(ctx context.Context) ([]domain.Address, error)
}
