package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v3"
	"github.com/tidechain/tide/foundation/blockchain/database"
	"github.com/tidechain/tide/foundation/codec"
	"github.com/tidechain/tide/foundation/crypt"
)

// ErrCorruptStore reports an inconsistent chain on disk. It is fatal:
// the node refuses to start rather than serve a broken chain.
var ErrCorruptStore = errors.New("corrupt block store")

// EventHandler defines a function that is called when events occur in
// the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// BlockStore is the persistent append-only chain. Every write for one
// block (body, parent link, depth index, per-transaction index, and the
// chain top) lands atomically under a single writer lock.
type BlockStore struct {
	mu        sync.RWMutex
	kv        *kv
	topHash   crypt.Hash
	topBlock  database.Block
	hasTop    bool
	evHandler EventHandler
}

// New opens the store. Pass Clean to wipe the directory first.
func New(cfg KVConfig, ev EventHandler) (*BlockStore, error) {
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	kv, err := openKV(cfg)
	if err != nil {
		return nil, err
	}

	bs := BlockStore{
		kv:        kv,
		evHandler: ev,
	}

	// Pick up the chain top if this database has history.
	hashData, found, err := kv.get(lastBlockHashKey)
	if err != nil {
		return nil, err
	}
	if found {
		hash, err := crypt.ToHash(hashData)
		if err != nil {
			return nil, fmt.Errorf("%w: malformed last block hash", ErrCorruptStore)
		}

		block, found, err := bs.FindBlock(hash)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("%w: top block %s missing", ErrCorruptStore, hash)
		}

		bs.topHash = hash
		bs.topBlock = block
		bs.hasTop = true
	}

	return &bs, nil
}

// Close releases the underlying database.
func (bs *BlockStore) Close() error {
	return bs.kv.close()
}

// AddBlock persists the block under its hash, writing the parent link,
// the depth index, the transaction index, and the new chain top in one
// atomic batch. Adding a hash that is already present returns without
// writing.
func (bs *BlockStore) AddBlock(hash crypt.Hash, block database.Block) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()

	exists, err := bs.kv.has(typedKey(prefixBlock, hash.Bytes()))
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	err = bs.kv.update(func(txn *badger.Txn) error {
		if err := txn.Set(typedKey(prefixBlock, hash.Bytes()), block.Bytes()); err != nil {
			return err
		}
		if err := txn.Set(typedKey(prefixParentLink, hash.Bytes()), block.PrevHash.Bytes()); err != nil {
			return err
		}
		if err := txn.Set(typedKey(prefixHashByDepth, depthKey(block.Depth)), hash.Bytes()); err != nil {
			return err
		}
		for i, tx := range block.Trans {
			if err := txn.Set(typedKey(prefixTxByHash, tx.Hash().Bytes()), txLocation(hash, uint32(i))); err != nil {
				return err
			}
		}
		return txn.Set(lastBlockHashKey, hash.Bytes())
	})
	if err != nil {
		return err
	}

	bs.topHash = hash
	bs.topBlock = block
	bs.hasTop = true

	bs.evHandler("storage: AddBlock: blk[%d] hash[%s] txs[%d]", block.Depth, hash, len(block.Trans))
	return nil
}

// FindBlock returns the block stored under the hash.
func (bs *BlockStore) FindBlock(hash crypt.Hash) (database.Block, bool, error) {
	data, found, err := bs.kv.get(typedKey(prefixBlock, hash.Bytes()))
	if err != nil || !found {
		return database.Block{}, false, err
	}

	block, err := database.DecodeBlock(codec.NewReader(data))
	if err != nil {
		return database.Block{}, false, fmt.Errorf("%w: block %s does not decode: %s", ErrCorruptStore, hash, err)
	}
	return block, true, nil
}

// FindBlockHashByDepth returns the hash of the canonical block at the
// specified depth.
func (bs *BlockStore) FindBlockHashByDepth(depth uint64) (crypt.Hash, bool, error) {
	data, found, err := bs.kv.get(typedKey(prefixHashByDepth, depthKey(depth)))
	if err != nil || !found {
		return crypt.Hash{}, false, err
	}

	hash, err := crypt.ToHash(data)
	if err != nil {
		return crypt.Hash{}, false, fmt.Errorf("%w: malformed depth index at %d", ErrCorruptStore, depth)
	}
	return hash, true, nil
}

// FindTransaction locates the block containing the transaction and the
// transaction's index within it.
func (bs *BlockStore) FindTransaction(hash crypt.Hash) (database.Block, int, bool, error) {
	data, found, err := bs.kv.get(typedKey(prefixTxByHash, hash.Bytes()))
	if err != nil || !found {
		return database.Block{}, 0, false, err
	}

	blockHash, index, err := parseTxLocation(data)
	if err != nil {
		return database.Block{}, 0, false, err
	}

	block, found, err := bs.FindBlock(blockHash)
	if err != nil {
		return database.Block{}, 0, false, err
	}
	if !found || index >= len(block.Trans) {
		return database.Block{}, 0, false, fmt.Errorf("%w: dangling transaction index for %s", ErrCorruptStore, hash)
	}

	return block, index, true, nil
}

// HasBlock reports whether the hash is already in the store.
func (bs *BlockStore) HasBlock(hash crypt.Hash) (bool, error) {
	return bs.kv.has(typedKey(prefixBlock, hash.Bytes()))
}

// TopHash returns the cached hash of the chain top.
func (bs *BlockStore) TopHash() crypt.Hash {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	return bs.topHash
}

// TopBlock returns the cached chain top.
func (bs *BlockStore) TopBlock() database.Block {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	return bs.topBlock
}

// Load walks the parent-link chain from the stored top back to genesis,
// verifying depth continuity and the depth index along the way. Any
// missing link or depth mismatch is ErrCorruptStore.
func (bs *BlockStore) Load() error {
	bs.mu.RLock()
	hasTop := bs.hasTop
	current := bs.topHash
	bs.mu.RUnlock()

	if !hasTop {
		return fmt.Errorf("%w: store has no chain top", ErrCorruptStore)
	}

	var walked uint64
	expectedDepth := bs.TopBlock().Depth

	for {
		block, found, err := bs.FindBlock(current)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: missing block %s while walking parents", ErrCorruptStore, current)
		}

		if block.Depth != expectedDepth {
			return fmt.Errorf("%w: block %s has depth %d, expected %d", ErrCorruptStore, current, block.Depth, expectedDepth)
		}

		indexed, found, err := bs.FindBlockHashByDepth(block.Depth)
		if err != nil {
			return err
		}
		if !found || indexed != current {
			return fmt.Errorf("%w: depth index disagrees at depth %d", ErrCorruptStore, block.Depth)
		}

		linkData, found, err := bs.kv.get(typedKey(prefixParentLink, current.Bytes()))
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: missing parent link for %s", ErrCorruptStore, current)
		}
		parent, err := crypt.ToHash(linkData)
		if err != nil {
			return fmt.Errorf("%w: malformed parent link for %s", ErrCorruptStore, current)
		}
		if parent != block.PrevHash {
			return fmt.Errorf("%w: parent link disagrees with block %s", ErrCorruptStore, current)
		}

		walked++
		if block.Depth == 0 {
			if !parent.IsZero() {
				return fmt.Errorf("%w: genesis has a non-zero parent", ErrCorruptStore)
			}
			break
		}

		current = parent
		expectedDepth--
	}

	bs.evHandler("storage: Load: verified chain of %d blocks, top[%s]", walked, bs.TopHash())
	return nil
}

// =============================================================================

// depthKey renders a depth as a fixed-width big-endian key.
func depthKey(depth uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], depth)
	return b[:]
}

// txLocation encodes "which block, which position" for the transaction
// index.
func txLocation(blockHash crypt.Hash, index uint32) []byte {
	out := make([]byte, 0, crypt.HashSize+4)
	out = append(out, blockHash.Bytes()...)
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], index)
	return append(out, b[:]...)
}

func parseTxLocation(data []byte) (crypt.Hash, int, error) {
	if len(data) != crypt.HashSize+4 {
		return crypt.Hash{}, 0, fmt.Errorf("%w: malformed transaction location", ErrCorruptStore)
	}

	hash, err := crypt.ToHash(data[:crypt.HashSize])
	if err != nil {
		return crypt.Hash{}, 0, err
	}
	return hash, int(binary.BigEndian.Uint32(data[crypt.HashSize:])), nil
}
