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

// PeerRepository implements storage.PeerRepository for SQLite.
type PeerRepository struct {
	store *Store
}

// Save inserts or replaces a peer record.
func (r *PeerRepository) Save(ctx context.Context, p *domain.PeerInfo) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	record, err := json.Marshal(p)
	if err != nil {
		return err
	}

	_, err = r.store.exec(ctx, "peer.save", `
		INSERT INTO peers (id, idx, blocked, record, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			idx = excluded.idx,
			blocked = excluded.blocked,
			record = excluded.record,
			updated_at = excluded.updated_at
	`, p.ID.String(), p.Index, boolInt(p.Blocked), string(record), formatTime(time.Now()))
	if err != nil {
		return err
	}
	return r.store.raiseWatermark(ctx, "peers", p.Index)
}

// NextIndex returns one past the highest index ever saved, deleted peers
// included.
func (r *PeerRepository) NextIndex(ctx context.Context) (int, error) {
	return r.store.watermark(ctx, "peers")
}

// Get retrieves a peer by id.
func (r *PeerRepository) Get(ctx context.Context, id domain.ID) (*domain.PeerInfo, error) {
	var record string
	err := r.store.queryRow(ctx, "SELECT record FROM peers WHERE id = ?", id.String()).Scan(&record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("peer %s: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodePeer(record)
}

// List lists all peers ordered by index.
func (r *PeerRepository) List(ctx context.Context) ([]*domain.PeerInfo, error) {
	rows, err := r.store.query(ctx, "SELECT record FROM peers ORDER BY idx")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var peers []*domain.PeerInfo
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		p, err := decodePeer(record)
		if err != nil {
			return nil, err
		}
		peers = append(peers, p)
	}
	return peers, rows.Err()
}

// Delete removes a peer.
func (r *PeerRepository) Delete(ctx context.Context, id domain.ID) error {
	res, err := r.store.exec(ctx, "peer.delete", "DELETE FROM peers WHERE id = ?", id.String())
	if err != nil {
		return err
	}
	return requireAffected(res, "peer "+id.String())
}

func decodePeer(record string) (*domain.PeerInfo, error) {
	var p domain.PeerInfo
	if err := json.Unmarshal([]byte(record), &p); err != nil {
		return nil, fmt.Errorf("decode peer: %w", err)
	}
	return &p, nil
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, storage.ErrNotFound)
	}
	return nil
}
