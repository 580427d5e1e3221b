package storage_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidechain/tide/foundation/blockchain/database"
	"github.com/tidechain/tide/foundation/blockchain/genesis"
	"github.com/tidechain/tide/foundation/blockchain/storage"
	"github.com/tidechain/tide/foundation/crypt"
)

func openStore(t *testing.T) *storage.BlockStore {
	t.Helper()

	bs, err := storage.New(storage.KVConfig{InMemory: true}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { bs.Close() })
	return bs
}

// childOf builds the next block over the parent with a single unsigned
// transaction, which is all the store itself cares about.
func childOf(parent database.Block, ts uint32) database.Block {
	return database.Block{
		Depth:     parent.Depth + 1,
		PrevHash:  parent.Hash(),
		Timestamp: ts,
		Coinbase:  database.AddressFromPublicKey([]byte("miner")),
		Trans: []database.Tx{{
			From:      database.AddressFromPublicKey([]byte("from")),
			To:        database.AddressFromPublicKey([]byte("to")),
			Amount:    database.NewBalance(uint64(ts)),
			Timestamp: ts,
		}},
	}
}

func TestAddAndFind(t *testing.T) {
	bs := openStore(t)

	gen := genesis.Block()
	require.NoError(t, bs.AddBlock(gen.Hash(), gen))

	b1 := childOf(gen, gen.Timestamp+1)
	require.NoError(t, bs.AddBlock(b1.Hash(), b1))

	// The body, the depth index and the parent link all agree.
	got, found, err := bs.FindBlock(b1.Hash())
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, b1.Hash(), got.Hash())

	hash, found, err := bs.FindBlockHashByDepth(1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, b1.Hash(), hash)

	require.Equal(t, b1.Hash(), bs.TopHash())
	require.Equal(t, uint64(1), bs.TopBlock().Depth)

	_, found, err = bs.FindBlock(crypt.Sha256([]byte("no such block")))
	require.NoError(t, err)
	require.False(t, found)
}

func TestFindTransaction(t *testing.T) {
	bs := openStore(t)

	gen := genesis.Block()
	require.NoError(t, bs.AddBlock(gen.Hash(), gen))

	b1 := childOf(gen, gen.Timestamp+1)
	require.NoError(t, bs.AddBlock(b1.Hash(), b1))

	txHash := b1.Trans[0].Hash()
	block, index, found, err := bs.FindTransaction(txHash)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, b1.Hash(), block.Hash())
	require.Equal(t, 0, index)

	_, _, found, err = bs.FindTransaction(crypt.Sha256([]byte("missing")))
	require.NoError(t, err)
	require.False(t, found)
}

func TestAddBlockIdempotent(t *testing.T) {
	bs := openStore(t)

	gen := genesis.Block()
	require.NoError(t, bs.AddBlock(gen.Hash(), gen))

	b1 := childOf(gen, gen.Timestamp+1)
	require.NoError(t, bs.AddBlock(b1.Hash(), b1))

	b2 := childOf(b1, b1.Timestamp+1)
	require.NoError(t, bs.AddBlock(b2.Hash(), b2))

	// Re-adding an old block must not move the top or duplicate keys.
	require.NoError(t, bs.AddBlock(b1.Hash(), b1))
	require.Equal(t, b2.Hash(), bs.TopHash())

	hash, found, err := bs.FindBlockHashByDepth(1)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, b1.Hash(), hash)
}

func TestLoadWalksChain(t *testing.T) {
	bs := openStore(t)

	gen := genesis.Block()
	require.NoError(t, bs.AddBlock(gen.Hash(), gen))

	parent := gen
	for i := 0; i < 5; i++ {
		child := childOf(parent, parent.Timestamp+1)
		require.NoError(t, bs.AddBlock(child.Hash(), child))
		parent = child
	}

	require.NoError(t, bs.Load())
	require.Equal(t, uint64(5), bs.TopBlock().Depth)
}

func TestLoadRejectsEmptyStore(t *testing.T) {
	bs := openStore(t)

	err := bs.Load()
	require.ErrorIs(t, err, storage.ErrCorruptStore)
}
