// Package peer maintains the per-peer state of the gossip overlay: the
// connection state machine, the sync buffer used while chasing a parent
// chain, and the bounded pool of active peers.
package peer

import (
	"sync"
	"time"

	"github.com/tidechain/tide/foundation/blockchain/database"
	"github.com/tidechain/tide/foundation/blockchain/network"
	"github.com/tidechain/tide/foundation/codec"
)

// State tracks where a peer is in the handshake/sync lifecycle.
type State uint8

// The peer states.
const (
	JustEstablished State = iota
	RequestedBlocks
	Synchronised
)

// String implements the fmt.Stringer interface for logging.
func (s State) String() string {
	switch s {
	case JustEstablished:
		return "JUST_ESTABLISHED"
	case RequestedBlocks:
		return "REQUESTED_BLOCKS"
	case Synchronised:
		return "SYNCHRONISED"
	}
	return "UNKNOWN"
}

// =============================================================================

// Info is the shareable identity of a peer: where its server listens
// and which address it mines to.
type Info struct {
	Endpoint network.Endpoint
	Address  database.Address
}

// Encode writes the peer info.
func (i Info) Encode(w *codec.Writer) {
	i.Endpoint.Encode(w)
	i.Address.Encode(w)
}

// DecodeInfo reads a peer info.
func DecodeInfo(r *codec.Reader) (Info, error) {
	ep, err := network.DecodeEndpoint(r)
	if err != nil {
		return Info{}, err
	}
	addr, err := database.DecodeAddress(r)
	if err != nil {
		return Info{}, err
	}
	return Info{Endpoint: ep, Address: addr}, nil
}

// EncodeInfoList writes a counted list of peer infos.
func EncodeInfoList(w *codec.Writer, infos []Info) {
	w.WriteCount(len(infos))
	for _, info := range infos {
		info.Encode(w)
	}
}

// DecodeInfoList reads a counted list of peer infos.
func DecodeInfoList(r *codec.Reader) ([]Info, error) {
	count, err := r.ReadCount()
	if err != nil {
		return nil, err
	}

	infos := make([]Info, 0, count)
	for i := 0; i < count; i++ {
		info, err := DecodeInfo(r)
		if err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// =============================================================================

// Peer is one connected node. The session carries the bytes; everything
// else here is protocol state owned by the peer's handler goroutine and
// the pool.
type Peer struct {
	session *network.Session

	mu             sync.Mutex
	state          State
	lastSeen       time.Time
	serverEndpoint network.Endpoint
	address        database.Address
	syncBlocks     []database.Block
	attached       bool
}

// New wraps a session in protocol state.
func New(session *network.Session) *Peer {
	return &Peer{
		session:  session,
		state:    JustEstablished,
		lastSeen: time.Now(),
	}
}

// Session returns the transport for this peer.
func (p *Peer) Session() *network.Session {
	return p.session
}

// Send queues a payload for ordered delivery to this peer.
func (p *Peer) Send(payload []byte) error {
	return p.session.Send(payload)
}

// Close shuts the peer's session down.
func (p *Peer) Close() {
	p.session.Close()
}

// IsClosed reports whether the underlying session died.
func (p *Peer) IsClosed() bool {
	return p.session.IsClosed()
}

// SetState moves the peer through the lifecycle.
func (p *Peer) SetState(s State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

// State returns the current lifecycle state.
func (p *Peer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// RefreshLastSeen stamps the liveness clock.
func (p *Peer) RefreshLastSeen() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastSeen = time.Now()
}

// LastSeen returns the last time the peer produced a frame.
func (p *Peer) LastSeen() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeen
}

// SetServerEndpoint records where the peer's own listener accepts
// connections, learned from the handshake.
func (p *Peer) SetServerEndpoint(ep network.Endpoint) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.serverEndpoint = ep
}

// ServerEndpoint returns the advertised listener endpoint.
func (p *Peer) ServerEndpoint() network.Endpoint {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.serverEndpoint
}

// SetAddress records the peer's node address from the handshake.
func (p *Peer) SetAddress(addr database.Address) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.address = addr
}

// Address returns the peer's node address.
func (p *Peer) Address() database.Address {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.address
}

// Info returns the shareable identity of this peer.
func (p *Peer) Info() Info {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Info{Endpoint: p.serverEndpoint, Address: p.address}
}

// =============================================================================

// AddSyncBlock buffers a block received while chasing a parent chain.
// Blocks arrive newest first, so prepending keeps the buffer ordered by
// ascending depth with the lowest block at the front.
func (p *Peer) AddSyncBlock(b database.Block) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.syncBlocks = append([]database.Block{b}, p.syncBlocks...)
}

// FrontSyncBlock returns the lowest-depth buffered block.
func (p *Peer) FrontSyncBlock() (database.Block, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.syncBlocks) == 0 {
		return database.Block{}, false
	}
	return p.syncBlocks[0], true
}

// TakeSyncBlocks empties the buffer and returns its contents in
// ascending depth order.
func (p *Peer) TakeSyncBlocks() []database.Block {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := p.syncBlocks
	p.syncBlocks = nil
	return out
}
