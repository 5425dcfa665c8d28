package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"dsf/internal/domain"
	"dsf/internal/storage"
)

// PageRepository implements storage.PageRepository for SQLite.
type PageRepository struct {
	store *Store
}

// Save upserts the page unless a newer version is stored.
func (r *PageRepository) Save(ctx context.Context, p *domain.ServicePage) (bool, error) {
	if err := p.Validate(); err != nil {
		return false, fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	record, err := json.Marshal(p)
	if err != nil {
		return false, err
	}
	res, err := r.store.exec(ctx, "page.save", `
		INSERT INTO service_pages (service_id, version, signature, record)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(service_id) DO UPDATE SET
			version = excluded.version,
			signature = excluded.signature,
			record = excluded.record
		WHERE excluded.version >= service_pages.version
	`, p.Service.String(), int(p.Version), p.Signature.String(), string(record))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Get returns the stored page of a service.
func (r *PageRepository) Get(ctx context.Context, service domain.ID) (*domain.ServicePage, error) {
	var record string
	err := r.store.queryRow(ctx, "SELECT record FROM service_pages WHERE service_id = ?", service.String()).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("page for %s: %w", service, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var p domain.ServicePage
	if err := json.Unmarshal([]byte(record), &p); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	return &p, nil
}
