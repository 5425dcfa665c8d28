package sqlite

import (
	"context"
	"time"

	"dsf/internal/domain"
)

// AddressRepository implements storage.AddressRepository for SQLite.
type AddressRepository struct {
	store *Store
}

// Add records an external address. Adding a known address is a no-op.
func (r *AddressRepository) Add(ctx context.Context, a domain.Address) error {
	_, err := r.store.exec(ctx, "address.add",
		"INSERT OR IGNORE INTO addresses (address, added_at) VALUES (?, ?)",
		a.String(), formatTime(time.Now()),
	)
	return err
}

// Remove deletes an external address.
func (r *AddressRepository) Remove(ctx context.Context, a domain.Address) error {
	res, err := r.store.exec(ctx, "address.remove", "DELETE FROM addresses WHERE address = ?", a.String())
	if err != nil {
		return err
	}
	return requireAffected(res, "address "+a.String())
}

// List returns external addresses in the order they were added.
func (r *AddressRepository) List(ctx context.Context) ([]domain.Address, error) {
	rows, err := r.store.query(ctx, "SELECT address FROM addresses ORDER BY added_at, address")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addrs []domain.Address
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		addrs = append(addrs, domain.Address(s))
	}
	return addrs, rows.Err()
}
