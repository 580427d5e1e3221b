// Package mempool maintains the ordered set of pending transactions
// waiting to be included in a block.
package mempool

import (
	"bytes"
	"sort"
	"sync"

	"github.com/tidechain/tide/foundation/blockchain/database"
	"github.com/tidechain/tide/foundation/codec"
	"github.com/tidechain/tide/foundation/crypt"
)

// TransactionsSet is a duplicate-free collection of transactions that
// retains insertion order and supports hash lookup. Block candidates are
// carved out of it by fee-ranked selection.
type TransactionsSet struct {
	mu    sync.RWMutex
	txs   []database.Tx
	index map[crypt.Hash]int
}

// NewTransactionsSet constructs an empty set.
func NewTransactionsSet() *TransactionsSet {
	return &TransactionsSet{
		index: make(map[crypt.Hash]int),
	}
}

// Add inserts the transaction. Inserting a transaction whose hash is
// already present is a no-op.
func (ts *TransactionsSet) Add(tx database.Tx) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	hash := tx.Hash()
	if _, exists := ts.index[hash]; exists {
		return
	}

	ts.index[hash] = len(ts.txs)
	ts.txs = append(ts.txs, tx)
}

// Remove drops the transaction if present.
func (ts *TransactionsSet) Remove(tx database.Tx) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.removeLocked(tx.Hash())
}

// RemoveSet drops every transaction contained in the other set. Used
// when a block lands and its transactions leave the pool.
func (ts *TransactionsSet) RemoveSet(other *TransactionsSet) {
	ts.RemoveAll(other.Values())
}

// RemoveAll drops every listed transaction.
func (ts *TransactionsSet) RemoveAll(txs []database.Tx) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	for _, tx := range txs {
		ts.removeLocked(tx.Hash())
	}
}

func (ts *TransactionsSet) removeLocked(hash crypt.Hash) {
	pos, exists := ts.index[hash]
	if !exists {
		return
	}

	ts.txs = append(ts.txs[:pos], ts.txs[pos+1:]...)
	delete(ts.index, hash)
	for i := pos; i < len(ts.txs); i++ {
		ts.index[ts.txs[i].Hash()] = i
	}
}

// Find reports whether the transaction is in the set.
func (ts *TransactionsSet) Find(tx database.Tx) bool {
	_, found := ts.FindByHash(tx.Hash())
	return found
}

// FindByHash returns the transaction with the specified hash.
func (ts *TransactionsSet) FindByHash(hash crypt.Hash) (database.Tx, bool) {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	pos, exists := ts.index[hash]
	if !exists {
		return database.Tx{}, false
	}
	return ts.txs[pos], true
}

// Size returns the number of transactions in the set.
func (ts *TransactionsSet) Size() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	return len(ts.txs)
}

// IsEmpty reports whether the set holds no transactions.
func (ts *TransactionsSet) IsEmpty() bool {
	return ts.Size() == 0
}

// Values returns the transactions in insertion order.
func (ts *TransactionsSet) Values() []database.Tx {
	ts.mu.RLock()
	defer ts.mu.RUnlock()

	out := make([]database.Tx, len(ts.txs))
	copy(out, ts.txs)
	return out
}

// Copy returns an independent set with the same contents.
func (ts *TransactionsSet) Copy() *TransactionsSet {
	cp := NewTransactionsSet()
	for _, tx := range ts.Values() {
		cp.Add(tx)
	}
	return cp
}

// SelectBestByFee retains the howMany highest-fee transactions and drops
// the rest. Ties go to the lower timestamp, then to the lexicographically
// smaller hash, so every node carves the same candidate from the same
// pool. Insertion order of the survivors is preserved.
func (ts *TransactionsSet) SelectBestByFee(howMany int) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if howMany < 0 || len(ts.txs) <= howMany {
		return
	}

	ranked := make([]database.Tx, len(ts.txs))
	copy(ranked, ts.txs)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Fee != ranked[j].Fee {
			return ranked[i].Fee > ranked[j].Fee
		}
		if ranked[i].Timestamp != ranked[j].Timestamp {
			return ranked[i].Timestamp < ranked[j].Timestamp
		}
		hi, hj := ranked[i].Hash(), ranked[j].Hash()
		return bytes.Compare(hi.Bytes(), hj.Bytes()) < 0
	})

	keep := make(map[crypt.Hash]struct{}, howMany)
	for _, tx := range ranked[:howMany] {
		keep[tx.Hash()] = struct{}{}
	}

	kept := ts.txs[:0]
	ts.index = make(map[crypt.Hash]int, howMany)
	for _, tx := range ts.txs {
		hash := tx.Hash()
		if _, ok := keep[hash]; !ok {
			continue
		}
		ts.index[hash] = len(kept)
		kept = append(kept, tx)
	}
	ts.txs = kept
}

// Encode writes the set as a counted list in insertion order.
func (ts *TransactionsSet) Encode(w *codec.Writer) {
	txs := ts.Values()
	w.WriteCount(len(txs))
	for _, tx := range txs {
		tx.Encode(w)
	}
}

// DecodeTransactionsSet reads a counted list of transactions.
func DecodeTransactionsSet(r *codec.Reader) (*TransactionsSet, error) {
	count, err := r.ReadCount()
	if err != nil {
		return nil, err
	}

	ts := NewTransactionsSet()
	for i := 0; i < count; i++ {
		tx, err := database.DecodeTx(r)
		if err != nil {
			return nil, err
		}
		ts.Add(tx)
	}
	return ts, nil
}

// =============================================================================

// CalcCost sums amount + fee per sender over a list of transactions. It
// is used to check that no sender overspends across the pending pool or
// within a candidate block. An overflowing sum reports an error.
func CalcCost(txs []database.Tx) (map[database.Address]database.Balance, error) {
	costs := make(map[database.Address]database.Balance)

	for _, tx := range txs {
		cost, err := tx.Cost()
		if err != nil {
			return nil, err
		}

		total := costs[tx.From]
		var sum database.Balance
		if _, overflow := sum.AddOverflow(&total, &cost); overflow {
			return nil, database.ErrBalanceOverflow
		}
		costs[tx.From] = sum
	}

	return costs, nil
}

// CalcSetCost is CalcCost over a whole set.
func CalcSetCost(ts *TransactionsSet) (map[database.Address]database.Balance, error) {
	return CalcCost(ts.Values())
}
