package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"dsf/internal/domain"
	"dsf/internal/storage"
)

// NameRepository implements storage.NameRepository for SQLite.
// Hashes are indexed in name_hashes so a search never decodes every record.
type NameRepository struct {
	store *Store
}

// Save upserts a name record and replaces its hash index.
func (r *NameRepository) Save(ctx context.Context, rec *domain.NameRecord) error {
	if rec.NS.IsZero() || rec.Target.IsZero() {
		return fmt.Errorf("%w: name record needs ns and target", storage.ErrInvalidInput)
	}
	record, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	ns, target := rec.NS.String(), rec.Target.String()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO names (ns, target, record) VALUES (?, ?, ?)
		ON CONFLICT(ns, target) DO UPDATE SET record = excluded.record
	`, ns, target, string(record)); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM name_hashes WHERE ns = ? AND target = ?", ns, target); err != nil {
		return err
	}
	for _, h := range rec.Hashes {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO name_hashes (ns, target, hash) VALUES (?, ?, ?)",
			ns, target, h.String(),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Search returns the records in ns carrying hash.
func (r *NameRepository) Search(ctx context.Context, ns domain.ID, hash domain.CryptoHash) ([]domain.NameRecord, error) {
	return r.list(ctx, `
		SELECT n.record FROM names n
		JOIN name_hashes h ON h.ns = n.ns AND h.target = n.target
		WHERE n.ns = ? AND h.hash = ?
		ORDER BY n.target
	`, ns.String(), hash.String())
}

// List returns every record in ns.
func (r *NameRepository) List(ctx context.Context, ns domain.ID) ([]domain.NameRecord, error) {
	return r.list(ctx, "SELECT record FROM names WHERE ns = ? ORDER BY target", ns.String())
}

func (r *NameRepository) list(ctx context.Context, query string, args ...any) ([]domain.NameRecord, error) {
	rows, err := r.store.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.NameRecord
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, err
		}
		var rec domain.NameRecord
		if err := json.Unmarshal([]byte(record), &rec); err != nil {
			return nil, fmt.Errorf("decode name record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
