package crypt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// oaepOverhead is the number of bytes OAEP-SHA1 padding consumes from
// every RSA block: 2*len(sha1) + 2.
const oaepOverhead = 42

// GenerateRsaKeys creates a fresh RSA keypair of the specified bit length.
func GenerateRsaKeys(bits int) (*rsa.PublicKey, *rsa.PrivateKey, error) {
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, nil, fmt.Errorf("generating rsa keys: %w", err)
	}
	return &priv.PublicKey, priv, nil
}

// RsaMaxEncryptSize returns the largest plaintext the public key can
// encrypt in a single block.
func RsaMaxEncryptSize(pub *rsa.PublicKey) int {
	return pub.Size() - oaepOverhead
}

// RsaEncrypt encrypts the message with OAEP-SHA1 padding. The ciphertext
// is exactly the key size in bytes.
func RsaEncrypt(pub *rsa.PublicKey, message []byte) ([]byte, error) {
	if len(message) > RsaMaxEncryptSize(pub) {
		return nil, fmt.Errorf("message of %d bytes exceeds the %d byte limit", len(message), RsaMaxEncryptSize(pub))
	}

	ct, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, message, nil)
	if err != nil {
		return nil, fmt.Errorf("rsa encrypt: %w", err)
	}
	return ct, nil
}

// RsaDecrypt decrypts a ciphertext produced by RsaEncrypt.
func RsaDecrypt(priv *rsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	pt, err := rsa.DecryptOAEP(sha1.New(), rand.Reader, priv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("rsa decrypt: %w", err)
	}
	return pt, nil
}

// =============================================================================
// Envelope encryption for payloads larger than one RSA block: a fresh AES
// key is wrapped with RSA while the payload travels under AES-CBC.

// SealEnvelope encrypts an arbitrary sized message for the holder of the
// private key.
func SealEnvelope(pub *rsa.PublicKey, message []byte) ([]byte, error) {
	key, err := GenerateAesKey(Aes256)
	if err != nil {
		return nil, err
	}

	wrapped, err := RsaEncrypt(pub, key.Bytes())
	if err != nil {
		return nil, err
	}

	sealed, err := key.Encrypt(message)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(wrapped)+len(sealed))
	out = append(out, wrapped...)
	out = append(out, sealed...)
	return out, nil
}

// OpenEnvelope reverses SealEnvelope.
func OpenEnvelope(priv *rsa.PrivateKey, envelope []byte) ([]byte, error) {
	keySize := priv.Size()
	if len(envelope) < keySize {
		return nil, errors.New("envelope shorter than the wrapped key")
	}

	keyBytes, err := RsaDecrypt(priv, envelope[:keySize])
	if err != nil {
		return nil, err
	}

	key, err := AesKeyFromBytes(keyBytes)
	if err != nil {
		return nil, err
	}

	return key.Decrypt(envelope[keySize:])
}

// =============================================================================

// SaveRsaPublic writes the public key as a PEM file.
func SaveRsaPublic(pub *rsa.PublicKey, path string) error {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return fmt.Errorf("marshaling public key: %w", err)
	}

	block := pem.Block{Type: "PUBLIC KEY", Bytes: der}
	return os.WriteFile(path, pem.EncodeToMemory(&block), 0644)
}

// SaveRsaPrivate writes the private key as a PEM file readable only by
// the owner.
func SaveRsaPrivate(priv *rsa.PrivateKey, path string) error {
	block := pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)}
	return os.WriteFile(path, pem.EncodeToMemory(&block), 0600)
}

// LoadRsaPublic reads a PEM encoded public key from disk.
func LoadRsaPublic(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}

	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%s does not hold an RSA public key", path)
	}
	return pub, nil
}

// LoadRsaPrivate reads a PEM encoded private key from disk.
func LoadRsaPrivate(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}

	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return priv, nil
}

// PublicKeyBytes returns the DER encoding of the public key. Node
// addresses are derived from these bytes.
func PublicKeyBytes(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshaling public key: %w", err)
	}
	return der, nil
}
