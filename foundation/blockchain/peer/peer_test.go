package peer_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/tidechain/tide/foundation/blockchain/database"
	"github.com/tidechain/tide/foundation/blockchain/network"
	"github.com/tidechain/tide/foundation/blockchain/peer"
	"github.com/tidechain/tide/foundation/codec"
)

// newPeer builds a peer over one side of an in-memory connection.
func newPeer(t *testing.T) *peer.Peer {
	t.Helper()

	connA, connB := net.Pipe()
	t.Cleanup(func() {
		connA.Close()
		connB.Close()
	})

	// Drain the other side so queued sends never block the pipe.
	go func() {
		buf := make([]byte, 1024)
		for {
			if _, err := connB.Read(buf); err != nil {
				return
			}
		}
	}()

	return peer.New(network.NewSession(connA, nil))
}

func TestPoolBounds(t *testing.T) {
	pool := peer.NewPool(2)

	p1, p2, p3 := newPeer(t), newPeer(t), newPeer(t)
	require.True(t, pool.TryAddPeer(p1))
	require.True(t, pool.TryAddPeer(p2))

	// The pool is full: the third peer is refused.
	require.False(t, pool.TryAddPeer(p3))
	require.Equal(t, 2, pool.Size())

	pool.RemovePeer(p1)
	require.True(t, pool.TryAddPeer(p3))
}

func TestPoolInfo(t *testing.T) {
	pool := peer.NewPool(8)

	p := newPeer(t)
	require.True(t, pool.TryAddPeer(p))

	// A peer with no handshake yet is invisible to info listings.
	require.Empty(t, pool.AllPeersInfo())

	p.SetServerEndpoint(network.Endpoint{Host: "10.1.1.1", Port: 9080})
	p.SetAddress(database.AddressFromPublicKey([]byte("peer one")))

	infos := pool.AllPeersInfo()
	require.Len(t, infos, 1)
	require.Equal(t, uint16(9080), infos[0].Endpoint.Port)

	require.Empty(t, pool.AllPeersInfoExcept(p.Address()))
}

func TestPoolLookup(t *testing.T) {
	pool := peer.NewPool(8)

	var addrs []database.Address
	for i := 0; i < 4; i++ {
		p := newPeer(t)
		require.True(t, pool.TryAddPeer(p))
		addr := database.AddressFromPublicKey([]byte{byte(i)})
		p.SetAddress(addr)
		p.SetServerEndpoint(network.Endpoint{Host: "10.0.0.1", Port: uint16(9000 + i)})
		addrs = append(addrs, addr)
	}

	// The target itself is the closest possible answer.
	got := pool.Lookup(addrs[2], 1)
	require.Len(t, got, 1)
	require.Equal(t, addrs[2], got[0].Address)

	// k bounds the answer.
	require.Len(t, pool.Lookup(addrs[0], 3), 3)
}

func TestPoolStale(t *testing.T) {
	pool := peer.NewPool(8)

	fresh, silent := newPeer(t), newPeer(t)
	require.True(t, pool.TryAddPeer(fresh))
	require.True(t, pool.TryAddPeer(silent))

	// Nobody has been quiet long enough yet.
	require.Empty(t, pool.Stale(time.Minute))

	// Everyone is stale for a 2ms window except a peer stamped now.
	time.Sleep(5 * time.Millisecond)
	fresh.RefreshLastSeen()
	stale := pool.Stale(2 * time.Millisecond)
	require.Len(t, stale, 1)
	require.Same(t, silent, stale[0])
}

func TestSyncBuffer(t *testing.T) {
	p := newPeer(t)

	// Blocks arrive newest first while chasing parents.
	b3 := database.Block{Depth: 3, Timestamp: 3}
	b2 := database.Block{Depth: 2, Timestamp: 2}
	b1 := database.Block{Depth: 1, Timestamp: 1}
	p.AddSyncBlock(b3)
	p.AddSyncBlock(b2)
	p.AddSyncBlock(b1)

	front, ok := p.FrontSyncBlock()
	require.True(t, ok)
	require.Equal(t, uint64(1), front.Depth)

	// Draining returns ascending depth order.
	blocks := p.TakeSyncBlocks()
	require.Len(t, blocks, 3)
	for i, b := range blocks {
		require.Equal(t, uint64(i+1), b.Depth)
	}

	_, ok = p.FrontSyncBlock()
	require.False(t, ok)
}

func TestInfoCodec(t *testing.T) {
	info := peer.Info{
		Endpoint: network.Endpoint{Host: "203.0.113.9", Port: 9080},
		Address:  database.AddressFromPublicKey([]byte("node")),
	}

	var w codec.Writer
	peer.EncodeInfoList(&w, []peer.Info{info})

	decoded, err := peer.DecodeInfoList(codec.NewReader(w.Bytes()))
	require.NoError(t, err)
	require.Len(t, decoded, 1)
	require.Equal(t, info, decoded[0])
}
