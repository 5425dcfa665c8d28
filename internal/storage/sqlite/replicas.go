package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dsf/internal/domain"
)

// ReplicaRepository implements storage.ReplicaRepository for SQLite.
type ReplicaRepository struct {
	store *Store
}

// Save upserts a replica keyed by service and holding peer.
func (r *ReplicaRepository) Save(ctx context.Context, service domain.ID, rep domain.ReplicaInfo) error {
	record, err := json.Marshal(rep)
	if err != nil {
		return err
	}
	_, err = r.store.exec(ctx, "replica.save", `
		INSERT INTO replicas (service_id, peer_id, expiry, record)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(service_id, peer_id) DO UPDATE SET
			expiry = excluded.expiry,
			record = excluded.record
	`, service.String(), rep.PeerID.String(), formatTimePtr(rep.Expiry), string(record))
	return err
}

// List returns the replicas of a service.
func (r *ReplicaRepository) List(ctx context.Context, service domain.ID) ([]domain.ReplicaInfo, error) {
	rows, err := r.store.query(ctx,
		"SELECT record FROM replicas WHERE service_id = ? ORDER BY peer_id",
		service.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var replicas []domain.ReplicaInfo
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		var rep domain.ReplicaInfo
		if err := json.Unmarshal([]byte(record), &rep); err != nil {
			return nil, fmt.Errorf("decode replica: %w", err)
		}
		replicas = append(replicas, rep)
	}
	return replicas, rows.Err()
}

// DeleteExpired removes replicas whose expiry has passed.
func (r *ReplicaRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.store.exec(ctx, "replica.expire",
		"DELETE FROM replicas WHERE expiry IS NOT NULL AND expiry < ?",
		formatTime(now),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
