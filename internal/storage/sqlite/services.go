package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"dsf/internal/domain"
	"dsf/internal/storage"
)

// ServiceRepository implements storage.ServiceRepository for SQLite.
// The private key is not part of the JSON record and lives in its own column.
type ServiceRepository struct {
	store *Store
}

// Save inserts or replaces a service record.
func (r *ServiceRepository) Save(ctx context.Context, s *domain.ServiceInfo) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	record, err := json.Marshal(s)
	if err != nil {
		return err
	}

	var privateKey []byte
	if s.PrivateKey != nil {
		privateKey = s.PrivateKey[:]
	}

	_, err = r.store.exec(ctx, "service.save", `
		INSERT INTO services (id, idx, application_id, origin, private_key, record, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			idx = excluded.idx,
			application_id = excluded.application_id,
			origin = excluded.origin,
			private_key = COALESCE(excluded.private_key, services.private_key),
			record = excluded.record,
			updated_at = excluded.updated_at
	`,
		s.ID.String(),
		s.Index,
		int(s.ApplicationID),
		boolInt(s.Origin),
		privateKey,
		string(record),
		formatTime(time.Now()),
	)
	if err != nil {
		return err
	}
	return r.store.raiseWatermark(ctx, "services", s.Index)
}

// NextIndex returns one past the highest index ever saved.
func (r *ServiceRepository) NextIndex(ctx context.Context) (int, error) {
	return r.store.watermark(ctx, "services")
}

// Get retrieves a service by id.
func (r *ServiceRepository) Get(ctx context.Context, id domain.ID) (*domain.ServiceInfo, error) {
	row := r.store.queryRow(ctx, "SELECT record, private_key FROM services WHERE id = ?", id.String())
	s, err := scanService(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("service %s: %w", id, storage.ErrNotFound)
	}
	return s, err
}

// List lists services ordered by index.
func (r *ServiceRepository) List(ctx context.Context, filter storage.ServiceFilter) ([]*domain.ServiceInfo, error) {
	query := "SELECT record, private_key FROM services WHERE 1=1"
	var args []any
	if filter.ApplicationID != nil {
		query += " AND application_id = ?"
		args = append(args, int(*filter.ApplicationID))
	}
	query += " ORDER BY idx"

	rows, err := r.store.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []*domain.ServiceInfo
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, err
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

// Delete removes a service together with its pages and replicas.
func (r *ServiceRepository) Delete(ctx context.Context, id domain.ID) error {
	res, err := r.store.exec(ctx, "service.delete", "DELETE FROM services WHERE id = ?", id.String())
	if err != nil {
		return err
	}
	if err := requireAffected(res, "service "+id.String()); err != nil {
		return err
	}
	for _, table := range []string{"data_pages", "replicas", "subscriptions", "service_pages"} {
		if _, err := r.store.exec(ctx, "service.delete", "DELETE FROM "+table+" WHERE service_id = ?", id.String()); err != nil {
			return err
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanService(row rowScanner) (*domain.ServiceInfo, error) {
	var record string
	var privateKey []byte
	if err := row.Scan(&record, &privateKey); err != nil {
		return nil, err
	}

	var s domain.ServiceInfo
	if err := json.Unmarshal([]byte(record), &s); err != nil {
		return nil, fmt.Errorf("decode service: %w", err)
	}
	if len(privateKey) > 0 {
		var pk domain.PrivateKey
		if len(privateKey) != len(pk) {
			return nil, fmt.Errorf("decode service %s: private key is %d bytes", s.ID, len(privateKey))
		}
		copy(pk[:], privateKey)
		s.PrivateKey = &pk
	}
	return &s, nil
}
