package sqlite

import (
	"context"
	"fmt"

	"dsf/internal/storage"
)

// dumpQueries render each table as key/value text. Keys and page bodies
// are never included.
var dumpQueries = []struct {
	prefix string
	query  string
}{
	{"peers", "SELECT id, record FROM peers ORDER BY idx"},
	{"services", "SELECT id, json_remove(record, '$.secret_key') FROM services ORDER BY idx"},
	{"pages", "SELECT service_id, 'v' || version || ' ' || signature FROM service_pages ORDER BY service_id"},
	{"replicas", "SELECT service_id || '/' || peer_id, record FROM replicas ORDER BY service_id, peer_id"},
	{"data", "SELECT service_id || '/' || signature, kind || ' #' || idx || ' ' || body_kind || ' ' || COALESCE(length(body), 0) || 'B ' || body_codec FROM data_pages ORDER BY service_id, idx"},
	{"subscriptions", "SELECT service_id || '/' || subscriber, record FROM subscriptions ORDER BY service_id, subscriber"},
	{"names", "SELECT ns || '/' || target, record FROM names ORDER BY ns, target"},
	{"addresses", "SELECT address, added_at FROM addresses ORDER BY added_at"},
}

// Dump lists every stored record.
func (s *Store) Dump(ctx context.Context) ([]storage.Entry, error) {
	var entries []storage.Entry
	for _, d := range dumpQueries {
		rows, err := s.query(ctx, d.query)
		if err != nil {
			return nil, fmt.Errorf("dump %s: %w", d.prefix, err)
		}
		for rows.Next() {
			var key, value string
			if err := rows.Scan(&key, &value); err != nil {
				rows.Close()
				return nil, fmt.Errorf("dump %s: %w", d.prefix, err)
			}
			entries = append(entries, storage.Entry{Key: d.prefix + "/" + key, Value: value})
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, fmt.Errorf("dump %s: %w", d.prefix, err)
		}
	}
	return entries, nil
}
