package mempool_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidechain/tide/foundation/blockchain/database"
	"github.com/tidechain/tide/foundation/blockchain/mempool"
	"github.com/tidechain/tide/foundation/codec"
)

// The five transactions mirror the classic set used to exercise the
// original pool: distinct senders, distinct amounts.
var testAmounts = []uint64{12398, 5825285, 12245398, 168524347, 1434457}

func makeTx(i int, amount uint64, fee uint64, ts uint32) database.Tx {
	return database.Tx{
		From:      database.AddressFromPublicKey([]byte{byte(i), 'f'}),
		To:        database.AddressFromPublicKey([]byte{byte(i), 't'}),
		Amount:    database.NewBalance(amount),
		Fee:       fee,
		Timestamp: ts,
	}
}

func testSet() (*mempool.TransactionsSet, []database.Tx) {
	ts := mempool.NewTransactionsSet()
	txs := make([]database.Tx, 0, len(testAmounts))
	for i, amount := range testAmounts {
		tx := makeTx(i, amount, uint64(i), 1650000000+uint32(i))
		txs = append(txs, tx)
		ts.Add(tx)
	}
	return ts, txs
}

func TestEmpty(t *testing.T) {
	ts := mempool.NewTransactionsSet()
	require.True(t, ts.IsEmpty())

	ts.Add(makeTx(0, 111, 0, 0))
	require.False(t, ts.IsEmpty())
	require.Equal(t, 1, ts.Size())
}

func TestAddIsDuplicateFree(t *testing.T) {
	ts, txs := testSet()
	require.Equal(t, len(txs), ts.Size())

	ts.Add(txs[2])
	require.Equal(t, len(txs), ts.Size())
}

func TestFind(t *testing.T) {
	ts, txs := testSet()

	for _, tx := range txs {
		require.True(t, ts.Find(tx))

		got, found := ts.FindByHash(tx.Hash())
		require.True(t, found)
		require.Equal(t, tx.Hash(), got.Hash())
	}

	// Same sender, different recipient is a different transaction.
	other := txs[0]
	other.To = database.AddressFromPublicKey([]byte("somewhere else"))
	require.False(t, ts.Find(other))

	// Same fields, different timestamp is a different transaction.
	other = txs[2]
	other.Timestamp++
	require.False(t, ts.Find(other))
}

func TestRemove(t *testing.T) {
	ts, txs := testSet()

	ts.Remove(txs[1])
	ts.Remove(txs[4])

	require.True(t, ts.Find(txs[0]))
	require.True(t, ts.Find(txs[2]))
	require.True(t, ts.Find(txs[3]))
	require.False(t, ts.Find(txs[1]))
	require.False(t, ts.Find(txs[4]))
}

func TestRemoveSet(t *testing.T) {
	ts, txs := testSet()

	rem := mempool.NewTransactionsSet()
	rem.Add(txs[1])
	rem.Add(txs[4])
	ts.RemoveSet(rem)

	require.Equal(t, 3, ts.Size())
	require.False(t, ts.Find(txs[1]))
	require.False(t, ts.Find(txs[4]))

	// Removing the full set empties it.
	full, _ := testSet()
	fullCopy, _ := testSet()
	full.RemoveSet(fullCopy)
	require.True(t, full.IsEmpty())
}

func TestInsertionOrderRetained(t *testing.T) {
	ts, txs := testSet()

	values := ts.Values()
	require.Len(t, values, len(txs))
	for i, tx := range txs {
		require.Equal(t, tx.Hash(), values[i].Hash())
	}

	// Removal keeps the order of the survivors.
	ts.Remove(txs[1])
	values = ts.Values()
	require.Equal(t, txs[0].Hash(), values[0].Hash())
	require.Equal(t, txs[2].Hash(), values[1].Hash())
}

func TestCodecRoundTrip(t *testing.T) {
	ts, txs := testSet()

	var w codec.Writer
	ts.Encode(&w)

	decoded, err := mempool.DecodeTransactionsSet(codec.NewReader(w.Bytes()))
	require.NoError(t, err)
	require.Equal(t, len(txs), decoded.Size())

	for _, tx := range txs {
		got, found := decoded.FindByHash(tx.Hash())
		require.True(t, found)
		require.Equal(t, tx.Hash(), got.Hash())
	}
}

func TestSelectBestByFee(t *testing.T) {
	ts := mempool.NewTransactionsSet()

	low := makeTx(0, 100, 1, 1650000000)
	mid := makeTx(1, 100, 5, 1650000000)
	high := makeTx(2, 100, 9, 1650000000)
	ts.Add(low)
	ts.Add(mid)
	ts.Add(high)

	ts.SelectBestByFee(2)
	require.Equal(t, 2, ts.Size())
	require.True(t, ts.Find(high))
	require.True(t, ts.Find(mid))
	require.False(t, ts.Find(low))
}

func TestSelectBestByFeeTieBreaks(t *testing.T) {
	ts := mempool.NewTransactionsSet()

	older := makeTx(0, 100, 7, 1650000000)
	newer := makeTx(1, 100, 7, 1650009999)
	ts.Add(newer)
	ts.Add(older)

	// Equal fees: the lower timestamp survives.
	ts.SelectBestByFee(1)
	require.Equal(t, 1, ts.Size())
	require.True(t, ts.Find(older))
}

func TestCalcCost(t *testing.T) {
	sender := database.AddressFromPublicKey([]byte("single sender"))

	tx1 := database.Tx{From: sender, To: database.AddressFromPublicKey([]byte("r1")), Amount: database.NewBalance(100), Fee: 5}
	tx2 := database.Tx{From: sender, To: database.AddressFromPublicKey([]byte("r2")), Amount: database.NewBalance(40), Fee: 1}

	costs, err := mempool.CalcCost([]database.Tx{tx1, tx2})
	require.NoError(t, err)

	want := database.NewBalance(146)
	got := costs[sender]
	require.Equal(t, 0, got.Cmp(&want))
}
