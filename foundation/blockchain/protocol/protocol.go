package protocol

import (
	"fmt"

	"github.com/tidechain/tide/foundation/blockchain/database"
	"github.com/tidechain/tide/foundation/blockchain/network"
	"github.com/tidechain/tide/foundation/blockchain/peer"
	"github.com/tidechain/tide/foundation/blockchain/state"
	"github.com/tidechain/tide/foundation/codec"
	"github.com/tidechain/tide/foundation/crypt"
)

// Network is the view of the overlay a protocol instance needs: dialing
// out to candidate peers and fanning messages out to everyone.
type Network interface {
	CheckOutPeer(ep network.Endpoint)
	Broadcast(payload []byte)
	SelfAddress() database.Address
	PublicPort() uint16
}

// Context carries the collaborators for one peer's protocol instance.
type Context struct {
	Core      *state.Core
	Pool      *peer.Pool
	Peer      *peer.Peer
	Net       Network
	EvHandler state.EventHandler
}

// Protocol prepares, sends and handles the messages for one peer. It
// does not manage the session or peer lifecycle; it only speaks.
type Protocol struct {
	ctx           Context
	waitingFor    MessageType
	lastProcessed MessageType
}

// NewOnAcceptedPeer starts the protocol for a peer that dialed us. The
// accepting side greets immediately, or refuses with a peer sample when
// the pool is full.
func NewOnAcceptedPeer(ctx Context) *Protocol {
	p := Protocol{ctx: ctx}

	if ctx.Pool.TryAddPeer(ctx.Peer) {
		p.sendGreeting(Accepted)
		return &p
	}

	ctx.Peer.Send(prepareCannotAccept(RefusalPoolFull, ctx.Pool.AllPeersInfo()))
	ctx.Peer.Session().CloseWhenDrained()
	return &p
}

// NewOnConnectedPeer starts the protocol for a peer we dialed. We wait
// for the accepting side's greeting or refusal.
func NewOnConnectedPeer(ctx Context) *Protocol {
	p := Protocol{ctx: ctx}

	if !ctx.Pool.TryAddPeer(ctx.Peer) {
		ctx.Peer.Close()
	}
	return &p
}

// WaitingFor exposes the per-peer ordering gate, for tests.
func (p *Protocol) WaitingFor() MessageType {
	return p.waitingFor
}

// sendGreeting shares our top, address, listening port and known peers.
func (p *Protocol) sendGreeting(t MessageType) {
	known := p.ctx.Pool.AllPeersInfoExcept(p.ctx.Peer.Address())
	p.ctx.Peer.Send(prepareGreeting(t, p.ctx.Core.GetTopBlock(), p.ctx.Net.SelfAddress(), p.ctx.Net.PublicPort(), known))
}

// SendBlock pushes a block to this peer.
func (p *Protocol) SendBlock(b database.Block) {
	p.ctx.Peer.Send(prepareBlock(b))
}

// SendTransaction pushes a pending transaction to this peer.
func (p *Protocol) SendTransaction(tx database.Tx) {
	p.ctx.Peer.Send(prepareTransaction(tx))
}

// SendSessionEnd starts the graceful teardown.
func (p *Protocol) SendSessionEnd() {
	p.ctx.Peer.Send(prepareClose())
}

// =============================================================================

// OnReceive decodes one payload and acts on it. Messages are processed
// in arrival order per peer; when a response is outstanding, a message
// of a different type is ignored.
func (p *Protocol) OnReceive(raw []byte) error {
	p.ctx.Peer.RefreshLastSeen()

	r := codec.NewReader(raw)
	tag, err := r.ReadUint8()
	if err != nil {
		return err
	}
	mt := MessageType(tag)

	if p.waitingFor != NotAvailable && p.waitingFor != mt {
		p.ctx.EvHandler("protocol: peer[%s]: ignoring %s while waiting for %s", p.ctx.Peer.Session().RemoteEndpoint(), mt, p.waitingFor)
		return nil
	}
	p.waitingFor = NotAvailable

	switch mt {
	case Accepted, AcceptedResponse:
		err = p.handleGreeting(mt, r)
	case CannotAccept:
		err = p.handleCannotAccept(r)
	case Ping:
		p.ctx.Peer.Send(preparePong())
	case Pong:
	case Transaction:
		err = p.handleTransaction(r)
	case GetBlock:
		err = p.handleGetBlock(r)
	case BlockMsg:
		err = p.handleBlock(r)
	case BlockNotFound:
		err = p.handleBlockNotFound(r)
	case GetInfo:
		p.handleGetInfo()
	case Info:
		err = p.handleInfo(r)
	case NewNode:
		err = p.handleNewNode(r)
	case Close:
		p.ctx.Peer.Close()
	case Lookup:
		err = p.handleLookup(r)
	case LookupResponse:
		err = p.handleLookupResponse(r)
	default:
		return fmt.Errorf("message tag %d out of range: %w", tag, codec.ErrBadEncoding)
	}

	if err != nil {
		return err
	}
	p.lastProcessed = mt
	return nil
}

// handleGreeting processes both handshake messages. The connecting side
// additionally replies with its own greeting; then both sides reconcile
// chain tops.
func (p *Protocol) handleGreeting(mt MessageType, r *codec.Reader) error {
	g, err := decodeGreeting(r)
	if err != nil {
		return err
	}

	pr := p.ctx.Peer
	pr.SetAddress(g.address)

	if mt == Accepted {
		p.sendGreeting(AcceptedResponse)
	}

	if g.publicPort != 0 {
		pr.SetServerEndpoint(pr.Session().RemoteEndpoint().WithPort(g.publicPort))
	}

	for _, info := range g.knownPeers {
		p.ctx.Net.CheckOutPeer(info.Endpoint)
	}

	p.reconcileTops(g.topBlock)
	return nil
}

// reconcileTops compares the peer's top with ours and either settles on
// SYNCHRONISED or starts chasing the missing parent chain.
func (p *Protocol) reconcileTops(theirTop database.Block) {
	pr := p.ctx.Peer
	ourTop := p.ctx.Core.GetTopBlock()

	if theirTop.Equal(ourTop) {
		pr.SetState(peer.Synchronised)
		return
	}

	// We are ahead or level: nothing to pull, the other side will sync from us.
	if ourTop.Depth >= theirTop.Depth {
		pr.SetState(peer.Synchronised)
		return
	}

	if ourTop.Depth+1 == theirTop.Depth {
		p.ctx.Core.TryAddBlock(theirTop)
		pr.SetState(peer.Synchronised)
		return
	}

	pr.Send(prepareGetBlock(theirTop.PrevHash))
	pr.SetState(peer.RequestedBlocks)
	pr.AddSyncBlock(theirTop)
	p.waitingFor = BlockMsg
}

func (p *Protocol) handleCannotAccept(r *codec.Reader) error {
	if _, err := r.ReadUint8(); err != nil {
		return err
	}
	infos, err := peer.DecodeInfoList(r)
	if err != nil {
		return err
	}

	p.ctx.Pool.RemovePeer(p.ctx.Peer)
	p.ctx.Peer.Close()

	for _, info := range infos {
		p.ctx.Net.CheckOutPeer(info.Endpoint)
	}
	return nil
}

func (p *Protocol) handleTransaction(r *codec.Reader) error {
	tx, err := database.DecodeTx(r)
	if err != nil {
		return err
	}

	p.ctx.Core.AddPendingTransaction(tx)
	return nil
}

func (p *Protocol) handleGetBlock(r *codec.Reader) error {
	hash, err := crypt.DecodeHash(r)
	if err != nil {
		return err
	}

	p.ctx.EvHandler("protocol: received GET_BLOCK for %s", hash)

	if block, found := p.ctx.Core.FindBlock(hash); found {
		p.ctx.Peer.Send(prepareBlock(block))
		return nil
	}
	p.ctx.Peer.Send(prepareBlockNotFound(hash))
	return nil
}

// handleBlock drives the sync machine. A synchronised peer's block goes
// straight to the core; a block that doesn't extend our chain starts a
// backward walk to the fork point. In REQUESTED_BLOCKS everything lands
// in the sync buffer until the lowest buffered block sits one above our
// top; the buffer is then applied, and the core rejects it (ending the
// sync) if that block's parent is not our top.
func (p *Protocol) handleBlock(r *codec.Reader) error {
	b, err := database.DecodeBlock(r)
	if err != nil {
		return err
	}

	pr := p.ctx.Peer

	if pr.State() == peer.Synchronised {
		if p.ctx.Core.TryAddBlock(b) {
			return nil
		}

		// The block doesn't extend our chain. Walk backwards to find
		// where the peer's chain forks off ours.
		pr.AddSyncBlock(b)
		pr.SetState(peer.RequestedBlocks)
		pr.Send(prepareGetBlock(b.PrevHash))
		p.waitingFor = BlockMsg
		return nil
	}

	pr.AddSyncBlock(b)

	if b.Depth == p.ctx.Core.GetTopBlock().Depth+1 {
		p.applySyncs()
		return nil
	}

	front, _ := pr.FrontSyncBlock()
	pr.Send(prepareGetBlock(front.PrevHash))
	p.waitingFor = BlockMsg
	return nil
}

// applySyncs replays the buffered chain in forward order and settles
// the peer into SYNCHRONISED.
func (p *Protocol) applySyncs() {
	for _, b := range p.ctx.Peer.TakeSyncBlocks() {
		if !p.ctx.Core.TryAddBlock(b) {
			p.ctx.EvHandler("protocol: applySyncs: blk[%d] rejected, abandoning sync", b.Depth)
			break
		}
	}
	p.ctx.Peer.SetState(peer.Synchronised)
}

func (p *Protocol) handleBlockNotFound(r *codec.Reader) error {
	hash, err := crypt.DecodeHash(r)
	if err != nil {
		return err
	}

	p.ctx.EvHandler("protocol: block not found %s", hash)
	return nil
}

func (p *Protocol) handleGetInfo() {
	known := p.ctx.Pool.AllPeersInfoExcept(p.ctx.Peer.Address())
	p.ctx.Peer.Send(prepareInfo(p.ctx.Core.GetTopBlockHash(), known))
}

func (p *Protocol) handleInfo(r *codec.Reader) error {
	if _, err := crypt.DecodeHash(r); err != nil {
		return err
	}
	infos, err := peer.DecodeInfoList(r)
	if err != nil {
		return err
	}

	for _, info := range infos {
		p.ctx.Net.CheckOutPeer(info.Endpoint)
	}
	return nil
}

func (p *Protocol) handleNewNode(r *codec.Reader) error {
	ep, err := network.DecodeEndpoint(r)
	if err != nil {
		return err
	}
	addr, err := database.DecodeAddress(r)
	if err != nil {
		return err
	}

	p.ctx.Net.CheckOutPeer(ep)
	msg := prepareNewNode(ep, addr)
	p.ctx.Pool.ForEachPeer(func(other *peer.Peer) {
		if other != p.ctx.Peer {
			other.Send(msg)
		}
	})
	return nil
}

func (p *Protocol) handleLookup(r *codec.Reader) error {
	target, err := database.DecodeAddress(r)
	if err != nil {
		return err
	}
	k, err := r.ReadUint8()
	if err != nil {
		return err
	}

	p.ctx.Peer.Send(prepareLookupResponse(p.ctx.Pool.Lookup(target, int(k))))
	return nil
}

func (p *Protocol) handleLookupResponse(r *codec.Reader) error {
	infos, err := peer.DecodeInfoList(r)
	if err != nil {
		return err
	}

	// The lookup answer feeds the dialer; a richer peer table can build
	// on this later.
	for _, info := range infos {
		p.ctx.Net.CheckOutPeer(info.Endpoint)
	}
	return nil
}
