package database

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/tidechain/tide/foundation/codec"
)

// Balance is an unsigned 256 bit amount of currency. All arithmetic on
// balances is checked: an operation that would wrap fails instead.
type Balance = uint256.Int

// NewBalance constructs a balance from a uint64.
func NewBalance(v uint64) Balance {
	return *uint256.NewInt(v)
}

// BalanceFromString parses a decimal or 0x-prefixed hex balance.
func BalanceFromString(s string) (Balance, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		if v2, err2 := uint256.FromHex(s); err2 == nil {
			return *v2, nil
		}
		return Balance{}, fmt.Errorf("parsing balance %q: %w", s, err)
	}
	return *v, nil
}

// EncodeBalance writes the balance as a fixed 32 byte big-endian field.
func EncodeBalance(w *codec.Writer, b Balance) {
	b32 := b.Bytes32()
	w.WriteFixed(b32[:])
}

// DecodeBalance reads a fixed 32 byte big-endian balance.
func DecodeBalance(r *codec.Reader) (Balance, error) {
	raw, err := r.ReadFixed(32)
	if err != nil {
		return Balance{}, err
	}

	var b Balance
	b.SetBytes(raw)
	return b, nil
}

// costOf returns amount + fee, the total a sender must hold to place a
// transaction. The second return reports overflow.
func costOf(amount Balance, fee uint64) (Balance, bool) {
	var cost Balance
	_, overflow := cost.AddOverflow(&amount, uint256.NewInt(fee))
	return cost, overflow
}
