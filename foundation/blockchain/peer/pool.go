package peer

import (
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/tidechain/tide/foundation/blockchain/database"
	"github.com/tidechain/tide/foundation/blockchain/network"
)

// Pool is the bounded set of active peers. Additions are refused when
// the pool is full; the refused peer is told so and handed a sample of
// known peers to try elsewhere.
type Pool struct {
	mu    sync.RWMutex
	peers map[*Peer]struct{}
	max   int
}

// NewPool constructs a pool bounded to max peers.
func NewPool(max int) *Pool {
	return &Pool{
		peers: make(map[*Peer]struct{}),
		max:   max,
	}
}

// TryAddPeer attaches the peer, refusing when the pool is full.
func (pl *Pool) TryAddPeer(p *Peer) bool {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	if len(pl.peers) >= pl.max {
		return false
	}

	pl.peers[p] = struct{}{}
	p.mu.Lock()
	p.attached = true
	p.mu.Unlock()
	return true
}

// RemovePeer detaches the peer.
func (pl *Pool) RemovePeer(p *Peer) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	delete(pl.peers, p)
}

// Size returns the number of attached peers.
func (pl *Pool) Size() int {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	return len(pl.peers)
}

// ForEachPeer invokes the function for every attached peer. The
// function must not mutate pool membership.
func (pl *Pool) ForEachPeer(fn func(p *Peer)) {
	pl.mu.RLock()
	peers := make([]*Peer, 0, len(pl.peers))
	for p := range pl.peers {
		peers = append(peers, p)
	}
	pl.mu.RUnlock()

	for _, p := range peers {
		fn(p)
	}
}

// Broadcast queues the payload for every attached peer.
func (pl *Pool) Broadcast(payload []byte) {
	pl.ForEachPeer(func(p *Peer) {
		p.Send(payload)
	})
}

// AllPeersInfo returns the shareable identities of every attached peer
// that has completed a handshake.
func (pl *Pool) AllPeersInfo() []Info {
	var infos []Info
	pl.ForEachPeer(func(p *Peer) {
		info := p.Info()
		if !info.Endpoint.IsZero() {
			infos = append(infos, info)
		}
	})
	return infos
}

// AllPeersInfoExcept returns every handshaked peer's identity except
// the one with the specified address.
func (pl *Pool) AllPeersInfoExcept(addr database.Address) []Info {
	var infos []Info
	for _, info := range pl.AllPeersInfo() {
		if info.Address == addr {
			continue
		}
		infos = append(infos, info)
	}
	return infos
}

// HasEndpoint reports whether some attached peer advertised the
// specified server endpoint.
func (pl *Pool) HasEndpoint(ep network.Endpoint) bool {
	found := false
	pl.ForEachPeer(func(p *Peer) {
		if p.ServerEndpoint() == ep {
			found = true
		}
	})
	return found
}

// Lookup returns up to k peer identities closest to the target address
// by XOR distance.
func (pl *Pool) Lookup(target database.Address, k int) []Info {
	infos := pl.AllPeersInfo()

	targetInt := new(big.Int).SetBytes(target.Bytes())
	distance := func(info Info) *big.Int {
		addrInt := new(big.Int).SetBytes(info.Address.Bytes())
		return new(big.Int).Xor(addrInt, targetInt)
	}

	sort.Slice(infos, func(i, j int) bool {
		return distance(infos[i]).Cmp(distance(infos[j])) < 0
	})

	if k >= 0 && len(infos) > k {
		infos = infos[:k]
	}
	return infos
}

// Stale returns the peers silent past the liveness window.
func (pl *Pool) Stale(window time.Duration) []*Peer {
	deadline := time.Now().Add(-window)

	var stale []*Peer
	pl.ForEachPeer(func(p *Peer) {
		if p.LastSeen().Before(deadline) {
			stale = append(stale, p)
		}
	})
	return stale
}
