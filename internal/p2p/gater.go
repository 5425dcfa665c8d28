package p2p

import (
	"sync"

	"github.com/libp2p/go-libp2p/core/control"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// blockList is a connection gater refusing dials to and from blocked peers.
type blockList struct {
	mu      sync.RWMutex
	blocked map[peer.ID]struct{}
}

func newBlockList() *blockList {
	return &blockList{blocked: make(map[peer.ID]struct{})}
}

func (b *blockList) block(p peer.ID) {
	b.mu.Lock()
	b.blocked[p] = struct{}{}
	b.mu.Unlock()
}

func (b *blockList) unblock(p peer.ID) {
	b.mu.Lock()
	delete(b.blocked, p)
	b.mu.Unlock()
}

func (b *blockList) isBlocked(p peer.ID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.blocked[p]
	return ok
}

func (b *blockList) InterceptPeerDial(p peer.ID) bool {
	return !b.isBlocked(p)
}

func (b *blockList) InterceptAddrDial(p peer.ID, _ multiaddr.Multiaddr) bool {
	return !b.isBlocked(p)
}

func (b *blockList) InterceptAccept(network.ConnMultiaddrs) bool {
	return true
}

func (b *blockList) InterceptSecured(_ network.Direction, p peer.ID, _ network.ConnMultiaddrs) bool {
	return !b.isBlocked(p)
}

func (b *blockList) InterceptUpgraded(network.Conn) (bool, control.DisconnectReason) {
	return true, 0
}
