package protocol

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidechain/tide/foundation/blockchain/database"
	"github.com/tidechain/tide/foundation/blockchain/network"
	"github.com/tidechain/tide/foundation/blockchain/peer"
	"github.com/tidechain/tide/foundation/blockchain/state"
	"github.com/tidechain/tide/foundation/blockchain/storage"
	"github.com/tidechain/tide/foundation/crypt"
)

const genesisTimestamp uint32 = 1583789617

// fakeNet satisfies the Network interface for a single wired peer.
type fakeNet struct {
	addr       database.Address
	port       uint16
	checkedOut []network.Endpoint
}

func (f *fakeNet) CheckOutPeer(ep network.Endpoint) { f.checkedOut = append(f.checkedOut, ep) }
func (f *fakeNet) Broadcast(payload []byte)         {}
func (f *fakeNet) SelfAddress() database.Address    { return f.addr }
func (f *fakeNet) PublicPort() uint16               { return f.port }

// newCore builds a core whose genesis grants supply to the key's
// address, so tests can build valid blocks.
func newCore(t *testing.T, key crypt.PrivateKey, nodeLabel string) *state.Core {
	t.Helper()

	rich := database.AddressFromPublicKey(key.PublicKey())
	gen := database.Block{
		Depth:     0,
		Timestamp: genesisTimestamp,
		Coinbase:  database.NullAddress(),
		Trans: []database.Tx{{
			From:      database.NullAddress(),
			To:        rich,
			Amount:    database.NewBalance(1_000_000),
			Timestamp: genesisTimestamp,
		}},
	}

	store, err := storage.New(storage.KVConfig{InMemory: true}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	core, err := state.New(state.Config{
		NodeAddress: database.AddressFromPublicKey([]byte(nodeLabel)),
		Store:       store,
		Genesis:     &gen,
	})
	require.NoError(t, err)
	return core
}

// buildChain produces n valid blocks extending the core's current top,
// applying each to the core as it goes.
func buildChain(t *testing.T, core *state.Core, key crypt.PrivateKey, n int) []database.Block {
	t.Helper()

	to := database.AddressFromPublicKey([]byte("chain receiver"))
	blocks := make([]database.Block, 0, n)

	for i := 0; i < n; i++ {
		top := core.GetTopBlock()

		tx := database.Tx{
			From:      database.AddressFromPublicKey(key.PublicKey()),
			To:        to,
			Amount:    database.NewBalance(uint64(i + 1)),
			Fee:       1,
			Timestamp: top.Timestamp + 1,
		}
		require.NoError(t, tx.SignTx(key))

		b := database.Block{
			Depth:     top.Depth + 1,
			PrevHash:  core.GetTopBlockHash(),
			Timestamp: top.Timestamp + 1,
			Coinbase:  core.NodeAddress(),
			Trans:     []database.Tx{tx},
		}
		require.True(t, core.TryAddBlock(b))
		blocks = append(blocks, b)
	}
	return blocks
}

// wire connects two cores over an in-memory pipe: x dials, y accepts.
func wire(t *testing.T, coreX *state.Core, coreY *state.Core) (*peer.Peer, *peer.Peer) {
	t.Helper()

	connX, connY := net.Pipe()
	sessionX := network.NewSession(connX, nil)
	sessionY := network.NewSession(connY, nil)
	t.Cleanup(func() {
		sessionX.Close()
		sessionY.Close()
	})

	peerAtX := peer.New(sessionX) // X's view of Y.
	peerAtY := peer.New(sessionY) // Y's view of X.

	ctxX := Context{
		Core:      coreX,
		Pool:      peer.NewPool(8),
		Peer:      peerAtX,
		Net:       &fakeNet{addr: coreX.NodeAddress(), port: 1001},
		EvHandler: func(v string, args ...any) {},
	}
	ctxY := Context{
		Core:      coreY,
		Pool:      peer.NewPool(8),
		Peer:      peerAtY,
		Net:       &fakeNet{addr: coreY.NodeAddress(), port: 1002},
		EvHandler: func(v string, args ...any) {},
	}

	protoX := NewOnConnectedPeer(ctxX)
	protoY := NewOnAcceptedPeer(ctxY)

	sessionX.Run(func(raw []byte) { protoX.OnReceive(raw) }, nil)
	sessionY.Run(func(raw []byte) { protoY.OnReceive(raw) }, nil)

	return peerAtX, peerAtY
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// =============================================================================

// TestHandshakeEqualTops: two nodes at the same depth settle into
// SYNCHRONISED immediately after the greeting exchange.
func TestHandshakeEqualTops(t *testing.T) {
	key, err := crypt.GeneratePrivateKey()
	require.NoError(t, err)

	coreX := newCore(t, key, "node X")
	coreY := newCore(t, key, "node Y")

	peerAtX, peerAtY := wire(t, coreX, coreY)

	waitFor(t, "both peers synchronised", func() bool {
		return peerAtX.State() == peer.Synchronised && peerAtY.State() == peer.Synchronised
	})

	require.Equal(t, coreX.GetTopBlockHash(), coreY.GetTopBlockHash())
}

// TestHandshakeSync: the node that is behind chases the missing parent
// chain via GET_BLOCK, buffers the answers, applies them in forward
// order, and both tops converge.
func TestHandshakeSync(t *testing.T) {
	key, err := crypt.GeneratePrivateKey()
	require.NoError(t, err)

	coreX := newCore(t, key, "node X")
	coreY := newCore(t, key, "node Y")

	// Both share block 1; Y is two blocks ahead.
	shared := buildChain(t, coreY, key, 3)
	require.True(t, coreX.TryAddBlock(shared[0]))

	require.Equal(t, uint64(1), coreX.GetTopBlock().Depth)
	require.Equal(t, uint64(3), coreY.GetTopBlock().Depth)

	peerAtX, _ := wire(t, coreX, coreY)

	waitFor(t, "X catches up to Y", func() bool {
		return coreX.GetTopBlockHash() == coreY.GetTopBlockHash()
	})

	require.Equal(t, uint64(3), coreX.GetTopBlock().Depth)
	require.Equal(t, peer.Synchronised, peerAtX.State())
}

// TestBehindByOne: a node exactly one block behind applies the top from
// the greeting directly.
func TestBehindByOne(t *testing.T) {
	key, err := crypt.GeneratePrivateKey()
	require.NoError(t, err)

	coreX := newCore(t, key, "node X")
	coreY := newCore(t, key, "node Y")

	buildChain(t, coreY, key, 1)

	peerAtX, _ := wire(t, coreX, coreY)

	waitFor(t, "X applies the greeting top", func() bool {
		return coreX.GetTopBlockHash() == coreY.GetTopBlockHash()
	})
	require.Equal(t, peer.Synchronised, peerAtX.State())
}

// TestTransactionGossip: a TRANSACTION message lands in the receiving
// node's pending pool.
func TestTransactionGossip(t *testing.T) {
	key, err := crypt.GeneratePrivateKey()
	require.NoError(t, err)

	coreX := newCore(t, key, "node X")
	coreY := newCore(t, key, "node Y")

	_, peerAtY := wire(t, coreX, coreY)

	waitFor(t, "handshake settles", func() bool {
		return peerAtY.State() == peer.Synchronised
	})

	tx := database.Tx{
		From:      database.AddressFromPublicKey(key.PublicKey()),
		To:        database.AddressFromPublicKey([]byte("gossip target")),
		Amount:    database.NewBalance(5),
		Timestamp: genesisTimestamp + 10,
	}
	require.NoError(t, tx.SignTx(key))

	// Y pushes the transaction down the wire; X admits it.
	peerAtY.Send(prepareTransaction(tx))

	waitFor(t, "transaction reaches X's pool", func() bool {
		return len(coreX.PendingTransactions()) == 1
	})
}

// TestWaitingForGate: while a response is outstanding, a message of a
// different type is ignored.
func TestWaitingForGate(t *testing.T) {
	key, err := crypt.GeneratePrivateKey()
	require.NoError(t, err)

	core := newCore(t, key, "gated node")

	connA, connB := net.Pipe()
	session := network.NewSession(connA, nil)
	t.Cleanup(func() {
		session.Close()
		connB.Close()
	})
	go func() {
		buf := make([]byte, 1024)
		for {
			if _, err := connB.Read(buf); err != nil {
				return
			}
		}
	}()
	session.Run(func(raw []byte) {}, nil)

	pr := peer.New(session)
	proto := NewOnConnectedPeer(Context{
		Core:      core,
		Pool:      peer.NewPool(8),
		Peer:      pr,
		Net:       &fakeNet{},
		EvHandler: func(v string, args ...any) {},
	})
	proto.waitingFor = BlockMsg

	tx := database.Tx{
		From:      database.AddressFromPublicKey(key.PublicKey()),
		To:        database.AddressFromPublicKey([]byte("anywhere")),
		Amount:    database.NewBalance(1),
		Timestamp: genesisTimestamp + 1,
	}
	require.NoError(t, tx.SignTx(key))

	require.NoError(t, proto.OnReceive(prepareTransaction(tx)))
	require.Empty(t, core.PendingTransactions())
	require.Equal(t, BlockMsg, proto.WaitingFor())
}

// TestPoolFullRefusal: the accepting side refuses with CANNOT_ACCEPT
// when its pool has no room, and hands out a peer sample.
func TestPoolFullRefusal(t *testing.T) {
	key, err := crypt.GeneratePrivateKey()
	require.NoError(t, err)

	core := newCore(t, key, "full node")

	connA, connB := net.Pipe()
	session := network.NewSession(connA, nil)
	t.Cleanup(func() {
		session.Close()
		connB.Close()
	})

	frames := make(chan []byte, 4)
	remote := network.NewSession(connB, nil)
	remote.Run(func(raw []byte) { frames <- raw }, nil)
	session.Run(func(raw []byte) {}, nil)

	pool := peer.NewPool(0)
	NewOnAcceptedPeer(Context{
		Core:      core,
		Pool:      pool,
		Peer:      peer.New(session),
		Net:       &fakeNet{},
		EvHandler: func(v string, args ...any) {},
	})

	select {
	case raw := <-frames:
		require.Equal(t, uint8(CannotAccept), raw[0])
	case <-time.After(2 * time.Second):
		t.Fatal("refusal never arrived")
	}
}

// TestGetInfo: the INFO answer carries our top hash and a peer sample.
func TestGetInfo(t *testing.T) {
	key, err := crypt.GeneratePrivateKey()
	require.NoError(t, err)

	core := newCore(t, key, "info node")

	connA, connB := net.Pipe()
	session := network.NewSession(connA, nil)
	remote := network.NewSession(connB, nil)
	t.Cleanup(func() {
		session.Close()
		remote.Close()
	})

	frames := make(chan []byte, 8)
	remote.Run(func(raw []byte) { frames <- raw }, nil)
	session.Run(func(raw []byte) {}, nil)

	proto := NewOnConnectedPeer(Context{
		Core:      core,
		Pool:      peer.NewPool(8),
		Peer:      peer.New(session),
		Net:       &fakeNet{},
		EvHandler: func(v string, args ...any) {},
	})

	require.NoError(t, proto.OnReceive(prepareGetInfo()))

	select {
	case raw := <-frames:
		require.Equal(t, uint8(Info), raw[0])
		require.Equal(t, core.GetTopBlockHash().Bytes(), raw[1:33])
	case <-time.After(2 * time.Second):
		t.Fatal("INFO never arrived")
	}
}

// TestLookup: the LOOKUP answer lists peers nearest the target.
func TestLookup(t *testing.T) {
	key, err := crypt.GeneratePrivateKey()
	require.NoError(t, err)

	core := newCore(t, key, "lookup node")

	connA, connB := net.Pipe()
	session := network.NewSession(connA, nil)
	remote := network.NewSession(connB, nil)
	t.Cleanup(func() {
		session.Close()
		remote.Close()
	})

	frames := make(chan []byte, 8)
	remote.Run(func(raw []byte) { frames <- raw }, nil)
	session.Run(func(raw []byte) {}, nil)

	pool := peer.NewPool(8)
	pr := peer.New(session)
	proto := NewOnConnectedPeer(Context{
		Core:      core,
		Pool:      pool,
		Peer:      pr,
		Net:       &fakeNet{},
		EvHandler: func(v string, args ...any) {},
	})

	// The only pool entry with an identity is the asking peer itself.
	pr.SetAddress(database.AddressFromPublicKey([]byte("asker")))
	pr.SetServerEndpoint(network.Endpoint{Host: "192.0.2.1", Port: 9080})

	target := database.AddressFromPublicKey([]byte("target"))
	require.NoError(t, proto.OnReceive(prepareLookup(target, 4)))

	select {
	case raw := <-frames:
		require.Equal(t, uint8(LookupResponse), raw[0])
	case <-time.After(2 * time.Second):
		t.Fatal("LOOKUP_RESPONSE never arrived")
	}
}

// TestPingPong: a PING is answered with a PONG.
func TestPingPong(t *testing.T) {
	key, err := crypt.GeneratePrivateKey()
	require.NoError(t, err)

	core := newCore(t, key, "ping node")

	connA, connB := net.Pipe()
	session := network.NewSession(connA, nil)
	remote := network.NewSession(connB, nil)
	t.Cleanup(func() {
		session.Close()
		remote.Close()
	})

	frames := make(chan []byte, 8)
	remote.Run(func(raw []byte) { frames <- raw }, nil)
	session.Run(func(raw []byte) {}, nil)

	proto := NewOnConnectedPeer(Context{
		Core:      core,
		Pool:      peer.NewPool(8),
		Peer:      peer.New(session),
		Net:       &fakeNet{},
		EvHandler: func(v string, args ...any) {},
	})

	require.NoError(t, proto.OnReceive(preparePing()))

	select {
	case raw := <-frames:
		require.Equal(t, uint8(Pong), raw[0])
	case <-time.After(2 * time.Second):
		t.Fatal("PONG never arrived")
	}
}
