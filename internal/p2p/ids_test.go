package p2p

import (
	"errors"
	"testing"
	"time"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	"dsf/internal/domain"
)

func newTestIdentity(t *testing.T) *Identity {
	t.Helper()
	identity, err := NewIdentity()
	if err != nil {
		t.Fatalf("NewIdentity: %v", err)
	}
	return identity
}

func TestPeerIDRoundTrip(t *testing.T) {
	identity := newTestIdentity(t)
	id := identity.ID()

	pid, err := PeerIDFromID(id)
	if err != nil {
		t.Fatalf("PeerIDFromID: %v", err)
	}

	want, err := identity.PrivKey.GetPublic().Raw()
	if err != nil {
		t.Fatal(err)
	}
	if string(id[:]) != string(want) {
		t.Error("id is not the raw public key")
	}

	back, err := IDFromPeerID(pid)
	if err != nil {
		t.Fatalf("IDFromPeerID: %v", err)
	}
	if back != id {
		t.Errorf("round trip gave %s, want %s", back, id)
	}
}

func TestServiceCID(t *testing.T) {
	id := newTestIdentity(t).ID()

	c1, err := ServiceCID(id)
	if err != nil {
		t.Fatalf("ServiceCID: %v", err)
	}
	c2, _ := ServiceCID(id)
	if !c1.Equals(c2) {
		t.Error("service CID is not deterministic")
	}
	if c1.Prefix().Codec != cid.Raw {
		t.Errorf("expected raw codec, got %d", c1.Prefix().Codec)
	}

	decoded, err := multihash.Decode(c1.Hash())
	if err != nil {
		t.Fatalf("decode multihash: %v", err)
	}
	if decoded.Code != multihash.SHA2_256 {
		t.Errorf("expected sha2-256, got %d", decoded.Code)
	}

	other, _ := ServiceCID(newTestIdentity(t).ID())
	if c1.Equals(other) {
		t.Error("different services share a CID")
	}
}

func TestServiceTopic(t *testing.T) {
	id := newTestIdentity(t).ID()
	if got, want := ServiceTopic(id), "/dsf/service/"+id.String(); got != want {
		t.Errorf("topic %q, want %q", got, want)
	}
}

func TestAddrInfo(t *testing.T) {
	a := newTestIdentity(t).ID()
	b := newTestIdentity(t).ID()
	pa, _ := PeerIDFromID(a)

	withPeer := domain.Address("/ip4/127.0.0.1/tcp/4001/p2p/" + pa.String())
	bare := domain.Address("/ip4/127.0.0.1/tcp/4001")

	tests := []struct {
		name    string
		addr    domain.Address
		id      *domain.ID
		wantErr error
	}{
		{"embedded peer", withPeer, nil, nil},
		{"explicit id", bare, &a, nil},
		{"both agree", withPeer, &a, nil},
		{"both disagree", withPeer, &b, domain.ErrKeyMismatch},
		{"no peer", bare, nil, ErrNoPeerID},
		{"garbage", domain.Address("not an address"), nil, domain.ErrInvalidAddress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := AddrInfo(tt.addr, tt.id)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if info.ID != pa {
				t.Errorf("peer %s, want %s", info.ID, pa)
			}
			if len(info.Addrs) != 1 || info.Addrs[0].String() != string(bare) {
				t.Errorf("unexpected transport addrs %v", info.Addrs)
			}
		})
	}
}

func TestAddressFromMultiaddr(t *testing.T) {
	pid, _ := PeerIDFromID(newTestIdentity(t).ID())
	full, err := AddrInfo(domain.Address("/ip4/10.0.0.1/udp/9000/quic-v1/p2p/"+pid.String()), nil)
	if err != nil {
		t.Fatal(err)
	}
	if got := AddressFromMultiaddr(full.Addrs[0]); got != "/ip4/10.0.0.1/udp/9000/quic-v1" {
		t.Errorf("got %q", got)
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{4, 8 * time.Second},
		{10, time.Minute},
		{200, time.Minute},
	}

	for _, tt := range tests {
		if got := Backoff(time.Second, time.Minute, tt.attempt); got != tt.want {
			t.Errorf("Backoff(attempt=%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestParseDHTMode(t *testing.T) {
	tests := []struct {
		in   string
		want DHTMode
		ok   bool
	}{
		{"", DHTModeAuto, true},
		{"auto", DHTModeAuto, true},
		{"SERVER", DHTModeServer, true},
		{" client ", DHTModeClient, true},
		{"invalid", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDHTMode(tt.in)
			if (err == nil) != tt.ok {
				t.Fatalf("unexpected error state: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
