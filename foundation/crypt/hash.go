// Package crypt provides the cryptographic support for the node: hashing,
// recoverable secp256k1 signatures, RSA and AES envelopes, the on-disk key
// vault, and the textual encodings used for addresses and payloads.
package crypt

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/tidechain/tide/foundation/codec"
	"golang.org/x/crypto/ripemd160"
)

// HashSize is the width of every digest used by the chain.
const HashSize = 32

// Hash represents a SHA-256 digest.
type Hash [HashSize]byte

// Sha256 computes the SHA-256 digest of the data.
func Sha256(data []byte) Hash {
	return sha256.Sum256(data)
}

// Ripemd160 computes the RIPEMD-160 digest of the data.
func Ripemd160(data []byte) [20]byte {
	h := ripemd160.New()
	h.Write(data)

	var digest [20]byte
	copy(digest[:], h.Sum(nil))
	return digest
}

// ToHash converts a 32 byte slice into a Hash.
func ToHash(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashSize {
		return Hash{}, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// Bytes returns the digest as a byte slice.
func (h Hash) Bytes() []byte {
	return h[:]
}

// IsZero reports whether the digest is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String implements the fmt.Stringer interface for logging.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// HashFromString parses the hex rendering produced by String.
func HashFromString(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("parsing hash: %w", err)
	}
	return ToHash(b)
}

// Encode writes the digest as a fixed 32 byte field.
func (h Hash) Encode(w *codec.Writer) {
	w.WriteFixed(h[:])
}

// DecodeHash reads a fixed 32 byte digest.
func DecodeHash(r *codec.Reader) (Hash, error) {
	b, err := r.ReadFixed(HashSize)
	if err != nil {
		return Hash{}, err
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

// Equal reports whether two digests match without leaking ordering.
func (h Hash) Equal(other Hash) bool {
	return bytes.Equal(h[:], other[:])
}
