package sqlite

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"dsf/internal/config"
	"dsf/internal/domain"
	"dsf/internal/storage"
)

func setupTestStore(t *testing.T) storage.Store {
	t.Helper()

	cfg := config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "test.db")}
	store, err := storage.Open(context.Background(), cfg, "")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testID(b byte) domain.ID {
	var id domain.ID
	id[0] = b
	id[len(id)-1] = b
	return id
}

func testSig(b byte) domain.Signature {
	var s domain.Signature
	s[0] = b
	s[1] = 0xff
	return s
}

func TestStore_OpenAndMigrate(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dsfd.db")
	cfg := config.DatabaseConfig{Path: path}

	store, err := storage.Open(ctx, cfg, "")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := store.Ping(ctx); err != nil {
		t.Errorf("ping failed: %v", err)
	}

	migrations, err := storage.MigrationStatus(ctx, store)
	if err != nil {
		t.Fatalf("migration status: %v", err)
	}
	if len(migrations) != 4 {
		t.Fatalf("expected 4 migrations, got %d", len(migrations))
	}
	for _, m := range migrations {
		if !m.Applied {
			t.Errorf("migration %d (%s) not applied", m.Version, m.Description)
		}
	}
	if migrations[0].Description != "initial schema" {
		t.Errorf("unexpected description %q", migrations[0].Description)
	}
	store.Close()

	// reopening verifies stored checksums and finds nothing to do
	store, err = storage.Open(ctx, cfg, "")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !stats.Healthy || stats.BytesUsed == 0 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestStore_DefaultPath(t *testing.T) {
	dir := t.TempDir()
	s, err := New(config.DatabaseConfig{}, dir)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer s.Close()

	if s.Path() != filepath.Join(dir, "dsfd.db") {
		t.Errorf("unexpected path %s", s.Path())
	}
}

func TestStore_Closed(t *testing.T) {
	s, err := New(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "x.db")}, "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second close: %v", err)
	}
	if err := s.Ping(context.Background()); !errors.Is(err, storage.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

func TestPeerRepository_CRUD(t *testing.T) {
	store := setupTestStore(t)
	ctx := storage.WithOperationContext(context.Background(),
		storage.NewOperationContext("test").WithReqID(0x42),
	)
	repo := store.Peers()

	var pk domain.PublicKey
	pk[0] = 7
	seen := time.Now().UTC().Truncate(time.Second)
	p := domain.NewPeerInfo(testID(1), 0, domain.Explicit(domain.MustParseAddress("/ip4/10.0.0.1/tcp/10100")), domain.KnownState(pk))
	p.Seen = &seen
	p.Sent = 3

	if err := repo.Save(ctx, p); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := repo.Save(ctx, domain.NewPeerInfo(testID(2), 1, domain.Implicit("/ip4/10.0.0.2/tcp/1"), domain.UnknownState())); err != nil {
		t.Fatalf("save second: %v", err)
	}

	got, err := repo.Get(ctx, testID(1))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	key, ok := got.State.Key()
	if !ok || key != pk {
		t.Errorf("key not preserved: %+v", got.State)
	}
	if got.Seen == nil || !got.Seen.Equal(seen) || got.Sent != 3 {
		t.Errorf("unexpected record %+v", got)
	}

	p.Blocked = true
	if err := repo.Save(ctx, p); err != nil {
		t.Fatalf("update: %v", err)
	}

	peers, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(peers) != 2 || peers[0].Index != 0 || peers[1].Index != 1 {
		t.Fatalf("unexpected listing %+v", peers)
	}
	if !peers[0].Blocked {
		t.Error("expected update to persist")
	}

	if err := repo.Delete(ctx, testID(2)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.Get(ctx, testID(2)); !storage.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if err := repo.Delete(ctx, testID(2)); !storage.IsNotFound(err) {
		t.Errorf("expected not found on second delete, got %v", err)
	}

	// the deleted tail index stays reserved
	next, err := repo.NextIndex(ctx)
	if err != nil {
		t.Fatalf("next index: %v", err)
	}
	if next != 2 {
		t.Errorf("expected next index 2, got %d", next)
	}
}

func TestPeerRepository_RejectsInvalid(t *testing.T) {
	store := setupTestStore(t)

	err := store.Peers().Save(context.Background(), &domain.PeerInfo{})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestServiceRepository(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	repo := store.Services()

	var pub domain.PublicKey
	var priv domain.PrivateKey
	var secret domain.SecretKey
	pub[0], priv[0], secret[0] = 1, 2, 3

	owned := domain.NewOwnedService(testID(1), 0, 10, pub, priv, &secret)
	remote := domain.NewRemoteService(testID(2), 1, pub)
	remote.ApplicationID = 20

	for _, s := range []*domain.ServiceInfo{owned, remote} {
		if err := repo.Save(ctx, s); err != nil {
			t.Fatalf("save %s: %v", s.ID, err)
		}
	}

	got, err := repo.Get(ctx, owned.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PrivateKey == nil || *got.PrivateKey != priv {
		t.Error("private key not preserved")
	}
	if got.SecretKey == nil || *got.SecretKey != secret {
		t.Error("secret key not preserved")
	}

	// saving a copy without the private key keeps the stored one
	stripped := *got
	stripped.PrivateKey = nil
	stripped.Origin = false
	if err := repo.Save(ctx, &stripped); err != nil {
		t.Fatalf("save stripped: %v", err)
	}
	got, err = repo.Get(ctx, owned.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.PrivateKey == nil {
		t.Error("private key lost on update")
	}

	tests := []struct {
		name   string
		filter storage.ServiceFilter
		want   int
	}{
		{"all", storage.ServiceFilter{}, 2},
		{"app 20", storage.ServiceFilter{ApplicationID: ptr(uint16(20))}, 1},
		{"app 99", storage.ServiceFilter{ApplicationID: ptr(uint16(99))}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			list, err := repo.List(ctx, tt.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(list) != tt.want {
				t.Errorf("expected %d services, got %d", tt.want, len(list))
			}
		})
	}

	if _, err := repo.Get(ctx, testID(9)); !storage.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}

	if next, err := repo.NextIndex(ctx); err != nil || next != 2 {
		t.Errorf("expected next index 2, got %d (%v)", next, err)
	}
}

func TestServiceRepository_DeleteCascades(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	svc := domain.NewRemoteService(testID(1), 0, domain.PublicKey{1})
	if err := store.Services().Save(ctx, svc); err != nil {
		t.Fatalf("save: %v", err)
	}
	page := &domain.DataInfo{Service: svc.ID, Signature: testSig(1), Body: domain.Cleartext([]byte("x"))}
	if err := store.Data().Put(ctx, page); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := store.Services().Delete(ctx, svc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	pages, err := store.Data().List(ctx, svc.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(pages) != 0 {
		t.Errorf("expected pages removed, got %d", len(pages))
	}
}

func TestDataRepository(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	repo := store.Data()
	svc := testID(5)
	parent := testID(6)
	now := time.Now().UTC()

	large := bytes.Repeat([]byte("dsf page body "), 100)
	pages := []*domain.DataInfo{
		{Service: svc, Index: 0, Kind: domain.DataKindGeneric, Body: domain.Cleartext([]byte("small")), Signature: testSig(1), Published: now},
		{Service: svc, Index: 1, Kind: domain.DataKindMessage, Body: domain.Cleartext(large), Parent: &parent, Signature: testSig(2), Published: now.Add(time.Second)},
		{Service: svc, Index: 2, Kind: domain.DataKindMeta, Body: domain.Cleartext(nil), Signature: testSig(3)},
	}
	for _, p := range pages {
		if err := repo.Put(ctx, p); err != nil {
			t.Fatalf("put %d: %v", p.Index, err)
		}
	}

	if err := repo.Put(ctx, pages[0]); !storage.IsAlreadyExists(err) {
		t.Errorf("expected already exists, got %v", err)
	}

	got, err := repo.Get(ctx, svc, testSig(2))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got.Body.Data, large) {
		t.Error("large body did not survive compression")
	}
	if got.Parent == nil || *got.Parent != parent {
		t.Errorf("parent not preserved: %v", got.Parent)
	}
	if !got.Published.Equal(now.Add(time.Second)) {
		t.Errorf("published %v, want %v", got.Published, now.Add(time.Second))
	}

	list, err := repo.List(ctx, svc)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(list))
	}
	for i, p := range list {
		if int(p.Index) != i {
			t.Errorf("page %d has index %d", i, p.Index)
		}
	}
	if list[2].Timestamp() != nil {
		t.Error("unpublished page should have no timestamp")
	}
	if list[2].Body.Kind != domain.BodyNone || list[2].Body.Data != nil {
		t.Errorf("empty body changed: %+v", list[2].Body)
	}

	latest, err := repo.Latest(ctx, svc)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Index != 2 {
		t.Errorf("expected latest index 2, got %d", latest.Index)
	}

	if _, err := repo.Latest(ctx, testID(99)); !storage.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := repo.Get(ctx, svc, testSig(9)); !storage.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestReplicaRepository(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	repo := store.Replicas()
	svc := testID(1)
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	replicas := []domain.ReplicaInfo{
		{PageID: testID(10), PeerID: testID(2), Version: 1, Issued: now, Updated: now, Expiry: &past, Active: true},
		{PageID: testID(11), PeerID: testID(3), Version: 1, Issued: now, Updated: now, Expiry: &future, Active: true},
		{PageID: testID(12), PeerID: testID(4), Version: 1, Issued: now, Updated: now},
	}
	for _, r := range replicas {
		if err := repo.Save(ctx, svc, r); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	// a newer version replaces the peer's replica
	replicas[1].Version = 2
	if err := repo.Save(ctx, svc, replicas[1]); err != nil {
		t.Fatalf("save newer: %v", err)
	}

	n, err := repo.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 expired replica, got %d", n)
	}

	list, err := repo.List(ctx, svc)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 replicas, got %d", len(list))
	}
	for _, r := range list {
		if r.PeerID == testID(3) && r.Version != 2 {
			t.Errorf("expected version 2, got %d", r.Version)
		}
	}
}

func TestPageRepository(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	repo := store.Pages()
	svc := testID(20)

	if _, err := repo.Get(ctx, svc); !storage.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	now := time.Now().UTC()
	tests := []struct {
		name    string
		version uint16
		sig     byte
		stored  bool
		want    uint16
	}{
		{"first", 1, 1, true, 1},
		{"newer", 3, 2, true, 3},
		{"older ignored", 2, 3, false, 3},
		{"same version replaces", 3, 4, true, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := &domain.ServicePage{
				Service:   svc,
				Version:   tt.version,
				Body:      domain.Cleartext([]byte("page")),
				Addresses: []domain.Address{"/ip4/10.0.0.1/tcp/10100"},
				Metadata:  []domain.Metadata{{Key: "k", Value: "v"}},
				Issued:    now,
				Signature: testSig(tt.sig),
			}
			stored, err := repo.Save(ctx, page)
			if err != nil {
				t.Fatalf("save: %v", err)
			}
			if stored != tt.stored {
				t.Errorf("stored = %v, want %v", stored, tt.stored)
			}
			got, err := repo.Get(ctx, svc)
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Version != tt.want {
				t.Errorf("version = %d, want %d", got.Version, tt.want)
			}
		})
	}

	if _, err := repo.Save(ctx, &domain.ServicePage{Service: svc}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected invalid input for unsigned page, got %v", err)
	}
}

func TestSubscriptionRepository(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	repo := store.Subscriptions()
	now := time.Now().UTC()
	past := now.Add(-time.Second)
	future := now.Add(time.Minute)

	peer := domain.PeerSubscriber(testID(2))
	sock := domain.SocketSubscriber(7)
	entries := []domain.SubscriptionEntry{
		{ServiceID: testID(1), Kind: peer, Updated: &now, Expiry: &future, QoS: domain.QosNone},
		{ServiceID: testID(1), Kind: sock, Updated: &now, Expiry: &past, QoS: domain.QosNone},
	}
	for _, e := range entries {
		if err := repo.Save(ctx, e); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	if err := repo.Save(ctx, domain.SubscriptionEntry{ServiceID: testID(1), Kind: domain.Subscriber{Kind: domain.SubscriberPeer}}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}

	n, err := repo.DeleteExpired(ctx, now)
	if err != nil {
		t.Fatalf("delete expired: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 expired entry, got %d", n)
	}

	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Kind.Key() != peer.Key() {
		t.Fatalf("unexpected entries %+v", list)
	}

	if err := repo.Delete(ctx, testID(1), peer); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := repo.Delete(ctx, testID(1), peer); !storage.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestNameRepository(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	repo := store.Names()

	ns := testID(1)
	name := "printer"
	h1, h2, h3 := domain.CryptoHash{1}, domain.CryptoHash{2}, domain.CryptoHash{3}

	recs := []*domain.NameRecord{
		{NS: ns, Target: testID(2), Name: &name, Hashes: []domain.CryptoHash{h1, h2}},
		{NS: ns, Target: testID(3), Hashes: []domain.CryptoHash{h2}},
		{NS: testID(9), Target: testID(4), Hashes: []domain.CryptoHash{h1}},
	}
	for _, r := range recs {
		if err := repo.Save(ctx, r); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	tests := []struct {
		name string
		hash domain.CryptoHash
		want int
	}{
		{"single target", h1, 1},
		{"shared hash", h2, 2},
		{"unknown", h3, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := repo.Search(ctx, ns, tt.hash)
			if err != nil {
				t.Fatalf("search: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("expected %d records, got %d", tt.want, len(got))
			}
		})
	}

	// re-registering replaces the hash set
	recs[0].Hashes = []domain.CryptoHash{h3}
	if err := repo.Save(ctx, recs[0]); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := repo.Search(ctx, ns, h1)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("stale hash still indexed: %+v", got)
	}

	all, err := repo.List(ctx, ns)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("expected 2 records in ns, got %d", len(all))
	}

	if err := repo.Save(ctx, &domain.NameRecord{NS: ns}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
}

func TestAddressRepository(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	repo := store.Addresses()

	a := domain.MustParseAddress("/ip4/192.168.1.1/tcp/10100")
	b := domain.MustParseAddress("/ip4/192.168.1.2/tcp/10100")

	for _, addr := range []domain.Address{a, b, a} {
		if err := repo.Add(ctx, addr); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	list, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 addresses, got %v", list)
	}

	if err := repo.Remove(ctx, a); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := repo.Remove(ctx, a); !storage.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestStore_Dump(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	var secret domain.SecretKey
	secret[0] = 0xAB
	svc := domain.NewOwnedService(testID(1), 0, 1, domain.PublicKey{1}, domain.PrivateKey{2}, &secret)
	if err := store.Services().Save(ctx, svc); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Data().Put(ctx, &domain.DataInfo{Service: svc.ID, Signature: testSig(1), Body: domain.Cleartext(nil)}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Addresses().Add(ctx, "/ip4/1.2.3.4/tcp/1"); err != nil {
		t.Fatalf("add: %v", err)
	}

	entries, err := store.Dump(ctx)
	if err != nil {
		t.Fatalf("dump: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %+v", entries)
	}
	for _, e := range entries {
		if strings.Contains(e.Value, "secret_key") || strings.Contains(e.Value, secret.String()) {
			t.Errorf("secret key leaked in %s", e.Key)
		}
	}
	if !strings.HasPrefix(entries[0].Key, "services/") {
		t.Errorf("unexpected first key %s", entries[0].Key)
	}
}

func TestCompressBody(t *testing.T) {
	tests := []struct {
		name  string
		body  []byte
		codec string
	}{
		{"empty", nil, codecNone},
		{"small", []byte("hello"), codecNone},
		{"repetitive", bytes.Repeat([]byte{'a'}, 4096), codecZstd},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stored, codec := compressBody(tt.body)
			if codec != tt.codec {
				t.Errorf("expected codec %s, got %s", tt.codec, codec)
			}
			back, err := decompressBody(stored, codec)
			if err != nil {
				t.Fatalf("decompress: %v", err)
			}
			if !bytes.Equal(back, tt.body) {
				t.Error("body changed")
			}
		})
	}

	if _, err := decompressBody([]byte{1}, "lz4"); err == nil {
		t.Error("expected error for unknown codec")
	}
}

func ptr[T any](v T) *T { return &v }

func TestFreeBytes(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name     string
		dir      string
		wantSome bool
	}{
		{"existing directory", dir, true},
		{"missing directory", filepath.Join(dir, "missing"), false},
		{"empty path", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := freeBytes(tt.dir)
			if (got > 0) != tt.wantSome {
				t.Errorf("freeBytes(%q) = %d, want space reported = %v", tt.dir, got, tt.wantSome)
			}
		})
	}
}
