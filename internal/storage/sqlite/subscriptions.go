package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dsf/internal/domain"
	"dsf/internal/storage"
)

// SubscriptionRepository implements storage.SubscriptionRepository for SQLite.
type SubscriptionRepository struct {
	store *Store
}

// Save upserts a ledger entry.
func (r *SubscriptionRepository) Save(ctx context.Context, e domain.SubscriptionEntry) error {
	if err := e.Kind.Validate(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrInvalidInput, err)
	}
	record, err := json.Marshal(e)
	if err != nil {
		return err
	}
	_, err = r.store.exec(ctx, "subscription.save", `
		INSERT INTO subscriptions (service_id, subscriber, expiry, record)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(service_id, subscriber) DO UPDATE SET
			expiry = excluded.expiry,
			record = excluded.record
	`, e.ServiceID.String(), e.Kind.Key(), formatTimePtr(e.Expiry), string(record))
	return err
}

// Delete removes a ledger entry.
func (r *SubscriptionRepository) Delete(ctx context.Context, service domain.ID, sub domain.Subscriber) error {
	res, err := r.store.exec(ctx, "subscription.delete",
		"DELETE FROM subscriptions WHERE service_id = ? AND subscriber = ?",
		service.String(), sub.Key(),
	)
	if err != nil {
		return err
	}
	return requireAffected(res, "subscription "+sub.Key())
}

// List returns every ledger entry.
func (r *SubscriptionRepository) List(ctx context.Context) ([]domain.SubscriptionEntry, error) {
	rows, err := r.store.query(ctx, "SELECT record FROM subscriptions ORDER BY service_id, subscriber")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.SubscriptionEntry
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		var e domain.SubscriptionEntry
		if err := json.Unmarshal([]byte(record), &e); err != nil {
			return nil, fmt.Errorf("decode subscription: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteExpired removes entries whose expiry has passed.
func (r *SubscriptionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.store.exec(ctx, "subscription.expire",
		"DELETE FROM subscriptions WHERE expiry IS NOT NULL AND expiry < ?",
		formatTime(now),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
