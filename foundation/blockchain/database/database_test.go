package database_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidechain/tide/foundation/blockchain/database"
	"github.com/tidechain/tide/foundation/codec"
	"github.com/tidechain/tide/foundation/crypt"
)

// testAddress produces a distinct deterministic address for a label.
func testAddress(label string) database.Address {
	return database.AddressFromPublicKey([]byte(label))
}

// genesisFor returns a genesis block granting balance to the address.
func genesisFor(addr database.Address, balance uint64) database.Block {
	return database.Block{
		Depth:     0,
		Timestamp: 1583789617,
		Coinbase:  database.NullAddress(),
		Trans: []database.Tx{{
			From:      database.NullAddress(),
			To:        addr,
			Amount:    database.NewBalance(balance),
			Timestamp: 1583789617,
		}},
	}
}

func TestAddress(t *testing.T) {
	addr := testAddress("some public key material")
	require.Len(t, addr.Bytes(), database.AddressLength)
	require.False(t, addr.IsNull())
	require.True(t, database.NullAddress().IsNull())

	parsed, err := database.ToAddress(addr.String())
	require.NoError(t, err)
	require.Equal(t, addr, parsed)

	_, err = database.ToAddress("tooshort")
	require.Error(t, err)
}

func TestTxSignAndVerify(t *testing.T) {
	key, err := crypt.GeneratePrivateKey()
	require.NoError(t, err)

	from := database.AddressFromPublicKey(key.PublicKey())

	builder := database.TxBuilder{}
	tx, err := builder.
		SetFrom(from).
		SetTo(testAddress("receiver")).
		SetAmount(database.NewBalance(250)).
		SetFee(12).
		SetTimestamp(1650000000).
		Build()
	require.NoError(t, err)

	require.False(t, tx.CheckSign())

	require.NoError(t, tx.SignTx(key))
	require.True(t, tx.CheckSign())

	// The from address must be owned by the signing key.
	other := tx
	other.From = testAddress("imposter")
	require.False(t, other.CheckSign())

	// Any header mutation invalidates the signature.
	tampered := tx
	tampered.Amount = database.NewBalance(9999)
	require.False(t, tampered.CheckSign())

	// Signing for an address the key doesn't own is refused.
	foreign := tx
	foreign.From = testAddress("imposter")
	require.Error(t, foreign.SignTx(key))
}

func TestTxValidate(t *testing.T) {
	tx := database.Tx{
		From: testAddress("a"),
		To:   testAddress("b"),
	}
	require.Error(t, tx.Validate())

	tx.Data = []byte{0x01}
	require.NoError(t, tx.Validate())

	tx.Data = nil
	tx.Amount = database.NewBalance(1)
	require.NoError(t, tx.Validate())
}

func TestBlockRoundTrip(t *testing.T) {
	key, err := crypt.GeneratePrivateKey()
	require.NoError(t, err)
	from := database.AddressFromPublicKey(key.PublicKey())

	tx := database.Tx{
		From:      from,
		To:        testAddress("to"),
		Amount:    database.NewBalance(77),
		Fee:       3,
		Timestamp: 1650000123,
		Data:      []byte{0xde, 0xad},
	}
	require.NoError(t, tx.SignTx(key))

	b := database.Block{
		Depth:     9,
		PrevHash:  crypt.Sha256([]byte("parent")),
		Timestamp: 1650000999,
		Coinbase:  testAddress("miner"),
		Nonce:     42,
		Trans:     []database.Tx{tx},
	}

	var w codec.Writer
	b.Encode(&w)

	decoded, err := database.DecodeBlock(codec.NewReader(w.Bytes()))
	require.NoError(t, err)
	require.Equal(t, b.Hash(), decoded.Hash())
	require.Len(t, decoded.Trans, 1)
	require.Equal(t, tx.Hash(), decoded.Trans[0].Hash())
	require.True(t, decoded.Trans[0].CheckSign())

	// Truncated input fails with the codec sentinel.
	_, err = database.DecodeBlock(codec.NewReader(w.Bytes()[:10]))
	require.ErrorIs(t, err, codec.ErrBadEncoding)
}

// =============================================================================

func TestStateManagerGenesis(t *testing.T) {
	rich := testAddress("qwerty")

	sm := database.NewStateManager()
	require.NoError(t, sm.UpdateFromGenesis(genesisFor(rich, 1000)))

	require.True(t, sm.HasAccount(rich))
	balance := sm.Balance(rich)
	expect := database.NewBalance(1000)
	require.Equal(t, 0, balance.Cmp(&expect))

	// First access to an unknown address reads as an empty client.
	require.False(t, sm.HasAccount(testAddress("Ivan")))
	zero := sm.Balance(testAddress("Ivan"))
	require.True(t, zero.IsZero())
}

func TestStateManagerCheckTransaction(t *testing.T) {
	rich := testAddress("qwerty")
	poor := testAddress("okDe")

	sm := database.NewStateManager()
	require.NoError(t, sm.UpdateFromGenesis(genesisFor(rich, 1000)))

	ok := database.Tx{From: rich, To: poor, Amount: database.NewBalance(13)}
	require.True(t, sm.CheckTransaction(ok))

	// amount + fee just above the balance fails.
	edge := database.Tx{From: rich, To: poor, Amount: database.NewBalance(1000), Fee: 1}
	require.False(t, sm.CheckTransaction(edge))

	broke := database.Tx{From: poor, To: rich, Amount: database.NewBalance(19)}
	require.False(t, sm.CheckTransaction(broke))
}

func TestSnapshotTransfer(t *testing.T) {
	alice := testAddress("alice")
	bob := testAddress("bob")

	sm := database.NewStateManager()
	require.NoError(t, sm.UpdateFromGenesis(genesisFor(alice, 1000)))

	snap := sm.CreateCopy()
	require.True(t, snap.TryTransfer(alice, bob, database.NewBalance(13)))

	// Nothing leaks before ApplyChanges.
	pre := sm.Balance(bob)
	require.True(t, pre.IsZero())

	sm.ApplyChanges(snap)

	a, b := sm.Balance(alice), sm.Balance(bob)
	wantA, wantB := database.NewBalance(987), database.NewBalance(13)
	require.Equal(t, 0, a.Cmp(&wantA))
	require.Equal(t, 0, b.Cmp(&wantB))

	// Short balance refuses and leaves the snapshot untouched.
	snap2 := sm.CreateCopy()
	require.False(t, snap2.TryTransfer(bob, alice, database.NewBalance(100)))
	after := snap2.Balance(bob)
	require.Equal(t, 0, after.Cmp(&wantB))
}

func TestSnapshotIdentity(t *testing.T) {
	alice := testAddress("alice")

	sm := database.NewStateManager()
	require.NoError(t, sm.UpdateFromGenesis(genesisFor(alice, 555)))

	// Applying an unmutated snapshot is the identity.
	before := sm.Balance(alice)
	sm.ApplyChanges(sm.CreateCopy())
	after := sm.Balance(alice)
	require.Equal(t, 0, before.Cmp(&after))
	require.Equal(t, 1, sm.TotalAccounts())
}

func TestContractAccount(t *testing.T) {
	creator := testAddress("creator")

	sm := database.NewStateManager()
	require.NoError(t, sm.UpdateFromGenesis(genesisFor(creator, 10_000)))

	code := []byte{0x60, 0x80, 0x60, 0x40}
	codeHash := crypt.Sha256(code)

	snap := sm.CreateCopy()
	addr, err := snap.CreateContractAccount(creator, codeHash)
	require.NoError(t, err)
	require.Equal(t, database.AccountContract, snap.AccountType(addr))

	// The derivation is deterministic, so a second deploy of the same
	// code by the same creator collides.
	_, err = snap.CreateContractAccount(creator, codeHash)
	require.ErrorIs(t, err, database.ErrAlreadyExists)

	snap.SetRuntimeCode(addr, code)
	require.Equal(t, code, snap.RuntimeCode(addr))
	require.Equal(t, codeHash, snap.CodeHash(addr))

	sm.ApplyChanges(snap)
	require.Equal(t, database.AccountContract, sm.AccountType(addr))
	require.Equal(t, code, sm.RuntimeCode(addr))
}

func TestStorageStatuses(t *testing.T) {
	creator := testAddress("creator")

	sm := database.NewStateManager()
	require.NoError(t, sm.UpdateFromGenesis(genesisFor(creator, 1)))

	snap := sm.CreateCopy()
	addr, err := snap.CreateContractAccount(creator, crypt.Sha256([]byte("code")))
	require.NoError(t, err)

	key := crypt.Sha256([]byte("slot0"))
	var zero, one [32]byte
	one[31] = 1

	// Writing zero into an absent cell changes nothing.
	require.Equal(t, database.StorageUnchanged, snap.SetStorageValue(addr, key, zero))

	require.Equal(t, database.StorageAdded, snap.SetStorageValue(addr, key, one))
	require.Equal(t, database.StorageUnchanged, snap.SetStorageValue(addr, key, one))

	var two [32]byte
	two[31] = 2
	require.Equal(t, database.StorageModified, snap.SetStorageValue(addr, key, two))
	require.Equal(t, database.StorageDeleted, snap.SetStorageValue(addr, key, zero))
}

func TestSnapshotDeleteAccount(t *testing.T) {
	alice := testAddress("alice")
	bob := testAddress("bob")

	sm := database.NewStateManager()
	require.NoError(t, sm.UpdateFromGenesis(genesisFor(alice, 100)))

	snap := sm.CreateCopy()
	require.True(t, snap.TryTransfer(alice, bob, database.NewBalance(100)))
	snap.DeleteAccount(alice)
	require.False(t, snap.HasAccount(alice))

	sm.ApplyChanges(snap)
	require.False(t, sm.HasAccount(alice))
	got := sm.Balance(bob)
	want := database.NewBalance(100)
	require.Equal(t, 0, got.Cmp(&want))
}
