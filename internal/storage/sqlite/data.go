package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dsf/internal/domain"
	"dsf/internal/storage"
)

// DataRepository implements storage.DataRepository for SQLite.
type DataRepository struct {
	store *Store
}

const dataColumns = "service_id, signature, idx, kind, body_kind, body_codec, body, parent, published"

// Put stores a data page. Pages are immutable once stored.
func (r *DataRepository) Put(ctx context.Context, d *domain.DataInfo) error {
	if err := d.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}

	body, codec := compressBody(d.Body.Data)

	var parent *string
	if d.Parent != nil {
		p := d.Parent.String()
		parent = &p
	}
	var published string
	if !d.Published.IsZero() {
		published = formatTime(d.Published)
	}

	res, err := r.store.exec(ctx, "data.put", `
		INSERT INTO data_pages (`+dataColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(service_id, signature) DO NOTHING
	`,
		d.Service.String(),
		d.Signature.String(),
		int(d.Index),
		string(d.Kind),
		string(d.Body.Kind),
		codec,
		body,
		parent,
		published,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("page %s: %w", d.Signature, storage.ErrAlreadyExists)
	}
	return nil
}

// Get retrieves a page by signature.
func (r *DataRepository) Get(ctx context.Context, service domain.ID, sig domain.Signature) (*domain.DataInfo, error) {
	row := r.store.queryRow(ctx,
		"SELECT "+dataColumns+" FROM data_pages WHERE service_id = ? AND signature = ?",
		service.String(), sig.String(),
	)
	d, err := scanData(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("page %s: %w", sig, storage.ErrNotFound)
	}
	return d, err
}

// List returns the pages of a service ordered by index.
func (r *DataRepository) List(ctx context.Context, service domain.ID) ([]domain.DataInfo, error) {
	rows, err := r.store.query(ctx,
		"SELECT "+dataColumns+" FROM data_pages WHERE service_id = ? ORDER BY idx, published",
		service.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []domain.DataInfo
	for rows.Next() {
		d, err := scanData(rows)
		if err != nil {
			return nil, err
		}
		pages = append(pages, *d)
	}
	return pages, rows.Err()
}

// Latest returns the page with the highest index.
func (r *DataRepository) Latest(ctx context.Context, service domain.ID) (*domain.DataInfo, error) {
	row := r.store.queryRow(ctx,
		"SELECT "+dataColumns+" FROM data_pages WHERE service_id = ? ORDER BY idx DESC, published DESC LIMIT 1",
		service.String(),
	)
	d, err := scanData(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("service %s has no pages: %w", service, storage.ErrNotFound)
	}
	return d, err
}

func scanData(row rowScanner) (*domain.DataInfo, error) {
	var (
		service, sig, kind, bodyKind, codec, published string
		idx                                            int
		body                                           []byte
		parent                                         sql.NullString
	)
	if err := row.Scan(&service, &sig, &idx, &kind, &bodyKind, &codec, &body, &parent, &published); err != nil {
		return nil, err
	}

	d := &domain.DataInfo{
		Index: uint16(idx),
		Kind:  domain.DataKind(kind),
	}
	var err error
	if d.Service, err = domain.ParseID(service); err != nil {
		return nil, err
	}
	if d.Signature, err = domain.ParseSignature(sig); err != nil {
		return nil, err
	}
	if parent.Valid {
		p, err := domain.ParseID(parent.String)
		if err != nil {
			return nil, err
		}
		d.Parent = &p
	}
	if published != "" {
		if d.Published, err = time.Parse(timeLayout, published); err != nil {
			return nil, fmt.Errorf("decode page %s: %w", sig, err)
		}
	}

	data, err := decompressBody(body, codec)
	if err != nil {
		return nil, fmt.Errorf("decode page %s: %w", sig, err)
	}
	d.Body = domain.Body{Kind: domain.BodyKind(bodyKind), Data: data}
	if len(data) == 0 {
		d.Body.Data = nil
	}
	return d, nil
}
