package domain

import (
	"fmt"
	"net"
	"strings"

	"github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
)

// Address is a network endpoint in canonical multiaddr text form.
type Address string

// ParseAddress accepts either a multiaddr ("/ip4/10.0.0.1/tcp/10100") or a
// host:port socket address and returns the canonical form.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidAddress)
	}

	if strings.HasPrefix(s, "/") {
		ma, err := multiaddr.NewMultiaddr(s)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
		}
		return Address(ma.String()), nil
	}

	tcp, err := net.ResolveTCPAddr("tcp", s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	ma, err := manet.FromNetAddr(tcp)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	return Address(ma.String()), nil
}

// MustParseAddress is ParseAddress for constants and tests.
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// Multiaddr returns the parsed multiaddr.
func (a Address) Multiaddr() (multiaddr.Multiaddr, error) {
	return multiaddr.NewMultiaddr(string(a))
}

// String returns the canonical text form.
func (a Address) String() string {
	return string(a)
}

// SocketAddr renders the address as host:port where possible, falling back
// to the multiaddr text.
func (a Address) SocketAddr() string {
	ma, err := a.Multiaddr()
	if err != nil {
		return string(a)
	}
	na, err := manet.ToNetAddr(ma)
	if err != nil {
		return string(a)
	}
	return na.String()
}
