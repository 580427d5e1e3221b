package crypt

import (
	"crypto/ecdsa"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// Widths of the secp256k1 artifacts that appear inside transactions.
const (
	SignatureSize        = 65 // [R || S || V] recoverable form.
	PublicKeySize        = 64 // Uncompressed point without the 0x04 prefix.
	CompressedPublicSize = 33
	PrivateKeySize       = 32
)

// PrivateKey wraps a secp256k1 private key used for signing transactions.
type PrivateKey struct {
	key *ecdsa.PrivateKey
}

// GeneratePrivateKey creates a new random private key.
func GeneratePrivateKey() (PrivateKey, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return PrivateKey{}, fmt.Errorf("generating secp256k1 key: %w", err)
	}
	return PrivateKey{key: key}, nil
}

// PrivateKeyFromBytes reconstructs a private key from its 32 byte scalar.
func PrivateKeyFromBytes(b []byte) (PrivateKey, error) {
	key, err := crypto.ToECDSA(b)
	if err != nil {
		return PrivateKey{}, fmt.Errorf("parsing secp256k1 key: %w", err)
	}
	return PrivateKey{key: key}, nil
}

// LoadPrivateKey reads a hex encoded private key from disk.
func LoadPrivateKey(path string) (PrivateKey, error) {
	key, err := crypto.LoadECDSA(path)
	if err != nil {
		return PrivateKey{}, fmt.Errorf("loading secp256k1 key: %w", err)
	}
	return PrivateKey{key: key}, nil
}

// Save writes the private key to disk in hex encoding.
func (pk PrivateKey) Save(path string) error {
	return crypto.SaveECDSA(path, pk.key)
}

// Bytes returns the 32 byte private scalar.
func (pk PrivateKey) Bytes() []byte {
	return crypto.FromECDSA(pk.key)
}

// PublicKey returns the 64 byte uncompressed public key.
func (pk PrivateKey) PublicKey() []byte {
	return crypto.FromECDSAPub(&pk.key.PublicKey)[1:]
}

// CompressedPublicKey returns the 33 byte compressed public key that is
// embedded into a transaction signature.
func (pk PrivateKey) CompressedPublicKey() []byte {
	return crypto.CompressPubkey(&pk.key.PublicKey)
}

// Sign produces a 65 byte recoverable signature over the digest.
func (pk PrivateKey) Sign(digest Hash) ([]byte, error) {
	sig, err := crypto.Sign(digest.Bytes(), pk.key)
	if err != nil {
		return nil, fmt.Errorf("signing: %w", err)
	}
	return sig, nil
}

// =============================================================================

// VerifySignature checks a 65 byte recoverable signature made with the
// private counterpart of the specified compressed public key.
func VerifySignature(compressedPub []byte, digest Hash, sig []byte) bool {
	if len(compressedPub) != CompressedPublicSize || len(sig) != SignatureSize {
		return false
	}
	return crypto.VerifySignature(compressedPub, digest.Bytes(), sig[:SignatureSize-1])
}

// RecoverPublicKey extracts the 64 byte public key that produced the
// specified signature over the digest.
func RecoverPublicKey(digest Hash, sig []byte) ([]byte, error) {
	if len(sig) != SignatureSize {
		return nil, errors.New("signature must be 65 bytes")
	}

	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return nil, fmt.Errorf("recovering public key: %w", err)
	}
	return crypto.FromECDSAPub(pub)[1:], nil
}

// DecompressPublicKey expands a 33 byte compressed public key into its
// 64 byte uncompressed form.
func DecompressPublicKey(compressedPub []byte) ([]byte, error) {
	pub, err := crypto.DecompressPubkey(compressedPub)
	if err != nil {
		return nil, fmt.Errorf("decompressing public key: %w", err)
	}
	return crypto.FromECDSAPub(pub)[1:], nil
}
