package protocol

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/tidechain/tide/foundation/blockchain/database"
	"github.com/tidechain/tide/foundation/blockchain/network"
	"github.com/tidechain/tide/foundation/blockchain/peer"
	"github.com/tidechain/tide/foundation/blockchain/state"
	"github.com/tidechain/tide/foundation/crypt"
)

// Liveness and dialing tunables.
const (
	livenessWindow = 3 * time.Minute
	reapInterval   = 30 * time.Second
	dialTimeout    = 5 * time.Second
)

// HostConfig represents the configuration required to run the overlay
// host.
type HostConfig struct {
	Core       *state.Core
	Listen     network.Endpoint
	PublicPort uint16
	MaxPeers   int
	KnownPeers []network.Endpoint
	EvHandler  state.EventHandler
}

// Host runs the TCP overlay: it accepts inbound peers, checks out
// candidates learned from gossip, reaps silent peers, and fans the
// core's events out to everyone connected.
type Host struct {
	core       *state.Core
	pool       *peer.Pool
	listen     network.Endpoint
	publicPort uint16
	knownPeers []network.Endpoint
	evHandler  state.EventHandler

	ln   net.Listener
	shut chan struct{}
	wg   sync.WaitGroup

	dialingMu sync.Mutex
	dialing   map[string]struct{}
}

// NewHost constructs the overlay host.
func NewHost(cfg HostConfig) *Host {
	ev := cfg.EvHandler
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	return &Host{
		core:       cfg.Core,
		pool:       peer.NewPool(cfg.MaxPeers),
		listen:     cfg.Listen,
		publicPort: cfg.PublicPort,
		knownPeers: cfg.KnownPeers,
		evHandler:  ev,
		shut:       make(chan struct{}),
		dialing:    make(map[string]struct{}),
	}
}

// Pool exposes the peer pool for queries.
func (h *Host) Pool() *peer.Pool {
	return h.pool
}

// Run starts listening, wires the core's events to the overlay, dials
// the configured peers, and returns.
func (h *Host) Run() error {
	ln, err := net.Listen("tcp", h.listen.String())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", h.listen, err)
	}
	h.ln = ln

	// Fan committed blocks and fresh pending transactions out to every
	// peer. These callbacks run after the mutation commits and must not
	// take the chain lock.
	h.core.SubscribeToBlockAddition(func(hash crypt.Hash, block database.Block) {
		h.pool.Broadcast(prepareBlock(block))
	})
	h.core.SubscribeToNewPendingTransaction(func(tx database.Tx) {
		h.pool.Broadcast(prepareTransaction(tx))
	})

	h.wg.Add(2)
	go h.acceptLoop()
	go h.reapLoop()

	for _, ep := range h.knownPeers {
		h.CheckOutPeer(ep)
	}

	h.evHandler("protocol: Host: listening on %s", h.listen)
	return nil
}

// Shutdown tears the overlay down: a graceful CLOSE to every peer, then
// the sockets.
func (h *Host) Shutdown() {
	close(h.shut)
	if h.ln != nil {
		h.ln.Close()
	}

	h.pool.ForEachPeer(func(p *peer.Peer) {
		p.Send(prepareClose())
		p.Session().CloseWhenDrained()
	})

	h.wg.Wait()
}

// =============================================================================

func (h *Host) acceptLoop() {
	defer h.wg.Done()

	for {
		conn, err := h.ln.Accept()
		if err != nil {
			select {
			case <-h.shut:
				return
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			h.evHandler("protocol: accept: ERROR: %s", err)
			continue
		}

		h.bindPeer(conn, true)
	}
}

func (h *Host) reapLoop() {
	defer h.wg.Done()

	ticker := time.NewTicker(reapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-h.shut:
			return
		case <-ticker.C:
			stale := make(map[*peer.Peer]bool)
			for _, p := range h.pool.Stale(livenessWindow) {
				stale[p] = true
				h.evHandler("protocol: reaping silent peer %s", p.Session().RemoteEndpoint())
				p.Send(prepareClose())
				p.Session().CloseWhenDrained()
				h.pool.RemovePeer(p)
			}

			// Probe peers that are half way to the liveness window; a
			// PONG restarts their clock.
			for _, p := range h.pool.Stale(livenessWindow / 2) {
				if !stale[p] {
					p.Send(preparePing())
				}
			}
		}
	}
}

// bindPeer wires a fresh connection into a session, a peer, and a
// protocol instance, then starts the reactor for it.
func (h *Host) bindPeer(conn net.Conn, accepted bool) {
	session := network.NewSession(conn, network.EventHandler(h.evHandler))
	pr := peer.New(session)

	ctx := Context{
		Core:      h.core,
		Pool:      h.pool,
		Peer:      pr,
		Net:       h,
		EvHandler: h.evHandler,
	}

	var proto *Protocol
	if accepted {
		proto = NewOnAcceptedPeer(ctx)
	} else {
		proto = NewOnConnectedPeer(ctx)
	}

	session.Run(
		func(raw []byte) {
			if err := proto.OnReceive(raw); err != nil {
				h.evHandler("protocol: peer[%s]: dropping message: %s", session.RemoteEndpoint(), err)
			}
		},
		func() {
			h.pool.RemovePeer(pr)
		},
	)
}

// =============================================================================

// CheckOutPeer dials the endpoint unless it is ourselves, already
// connected, or already being dialed.
func (h *Host) CheckOutPeer(ep network.Endpoint) {
	if ep.IsZero() || ep == h.listen.WithPort(h.publicPort) {
		return
	}
	if h.pool.HasEndpoint(ep) {
		return
	}

	key := ep.String()
	h.dialingMu.Lock()
	if _, busy := h.dialing[key]; busy {
		h.dialingMu.Unlock()
		return
	}
	h.dialing[key] = struct{}{}
	h.dialingMu.Unlock()

	go func() {
		defer func() {
			h.dialingMu.Lock()
			delete(h.dialing, key)
			h.dialingMu.Unlock()
		}()

		conn, err := net.DialTimeout("tcp", key, dialTimeout)
		if err != nil {
			h.evHandler("protocol: dial %s: %s", key, err)
			return
		}

		h.bindPeer(conn, false)
	}()
}

// Broadcast implements the Network interface.
func (h *Host) Broadcast(payload []byte) {
	h.pool.Broadcast(payload)
}

// SelfAddress implements the Network interface.
func (h *Host) SelfAddress() database.Address {
	return h.core.NodeAddress()
}

// PublicPort implements the Network interface.
func (h *Host) PublicPort() uint16 {
	return h.publicPort
}
