// Package storage provides the persistent append-only block store,
// backed by a byte-keyed key/value database on disk.
package storage

import (
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v3"
)

// The key space is partitioned by a one byte type prefix.
const (
	prefixSystem      byte = 0x01
	prefixBlock       byte = 0x02
	prefixParentLink  byte = 0x03
	prefixHashByDepth byte = 0x04
	prefixTxByHash    byte = 0x05
)

// lastBlockHashKey is the system key holding the hash of the chain top.
var lastBlockHashKey = typedKey(prefixSystem, []byte("last_block_hash"))

// typedKey prepends the partition prefix to a key.
func typedKey(prefix byte, key []byte) []byte {
	out := make([]byte, 0, 1+len(key))
	out = append(out, prefix)
	out = append(out, key...)
	return out
}

// =============================================================================

// KVConfig describes how to open the database.
type KVConfig struct {
	Path     string
	Clean    bool // Wipe and reinitialize the directory before opening.
	InMemory bool // Hold everything in memory; used by tests.
}

// kv wraps the badger database with the small byte-keyed persistent map
// surface the block store needs.
type kv struct {
	db *badger.DB
}

// openKV opens (and optionally wipes) the database.
func openKV(cfg KVConfig) (*kv, error) {
	if cfg.Clean && !cfg.InMemory {
		if err := os.RemoveAll(cfg.Path); err != nil {
			return nil, fmt.Errorf("cleaning database path: %w", err)
		}
	}

	opts := badger.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	return &kv{db: db}, nil
}

// close releases the database.
func (k *kv) close() error {
	return k.db.Close()
}

// get returns the value for the key, reporting presence explicitly.
func (k *kv) get(key []byte) ([]byte, bool, error) {
	var value []byte
	err := k.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("database get: %w", err)
	}
	return value, true, nil
}

// has reports whether the key exists.
func (k *kv) has(key []byte) (bool, error) {
	_, found, err := k.get(key)
	return found, err
}

// update runs a read-write transaction. All writes inside commit
// atomically or not at all.
func (k *kv) update(fn func(txn *badger.Txn) error) error {
	if err := k.db.Update(fn); err != nil {
		return fmt.Errorf("database update: %w", err)
	}
	return nil
}
