package database

import (
	"bytes"
	"fmt"

	"github.com/tidechain/tide/foundation/codec"
	"github.com/tidechain/tide/foundation/crypt"
)

// AddressLength is the width of an account identifier.
const AddressLength = 20

// Address identifies an account: RIPEMD160(SHA256(public_key_bytes)),
// rendered as base58 for people. The all-zero address is the null address
// used as the recipient of contract-creation transactions and as the
// genesis coinbase.
type Address [AddressLength]byte

// NullAddress returns the all-zero sentinel.
func NullAddress() Address {
	return Address{}
}

// AddressFromPublicKey derives the address owned by a public key.
func AddressFromPublicKey(pub []byte) Address {
	sha := crypt.Sha256(pub)
	return Address(crypt.Ripemd160(sha.Bytes()))
}

// ToAddress parses the base58 rendering of an address and validates
// its width.
func ToAddress(s string) (Address, error) {
	b, err := crypt.Base58Decode(s)
	if err != nil {
		return Address{}, err
	}
	if len(b) != AddressLength {
		return Address{}, fmt.Errorf("address must be %d bytes, got %d", AddressLength, len(b))
	}

	var a Address
	copy(a[:], b)
	return a, nil
}

// IsNull reports whether this is the null address.
func (a Address) IsNull() bool {
	return a == Address{}
}

// Bytes returns the raw 20 bytes.
func (a Address) Bytes() []byte {
	return a[:]
}

// String implements the fmt.Stringer interface, rendering base58.
func (a Address) String() string {
	return crypt.Base58Encode(a[:])
}

// Less provides the canonical ordering used when maps keyed by address
// are serialized as sorted lists.
func (a Address) Less(other Address) bool {
	return bytes.Compare(a[:], other[:]) < 0
}

// Encode writes the address as a fixed 20 byte field.
func (a Address) Encode(w *codec.Writer) {
	w.WriteFixed(a[:])
}

// DecodeAddress reads a fixed 20 byte address.
func DecodeAddress(r *codec.Reader) (Address, error) {
	b, err := r.ReadFixed(AddressLength)
	if err != nil {
		return Address{}, err
	}

	var a Address
	copy(a[:], b)
	return a, nil
}
