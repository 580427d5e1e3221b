package crypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

// AesKeyType selects the AES key width.
type AesKeyType int

// Supported AES key widths in bytes.
const (
	Aes128 AesKeyType = 16
	Aes256 AesKeyType = 32
)

// ivSize is the CBC initialization vector width. A random IV is
// prepended to every ciphertext.
const ivSize = 16

// AesKey is a symmetric key for CBC mode with PKCS7 padding.
type AesKey struct {
	key []byte
}

// GenerateAesKey creates a random key of the specified width.
func GenerateAesKey(kt AesKeyType) (AesKey, error) {
	if kt != Aes128 && kt != Aes256 {
		return AesKey{}, fmt.Errorf("unsupported aes key width %d", kt)
	}

	key := make([]byte, kt)
	if _, err := rand.Read(key); err != nil {
		return AesKey{}, fmt.Errorf("generating aes key: %w", err)
	}
	return AesKey{key: key}, nil
}

// AesKeyFromBytes wraps existing key material.
func AesKeyFromBytes(b []byte) (AesKey, error) {
	switch len(b) {
	case int(Aes128), int(Aes256):
	default:
		return AesKey{}, fmt.Errorf("unsupported aes key width %d", len(b))
	}

	key := make([]byte, len(b))
	copy(key, b)
	return AesKey{key: key}, nil
}

// Bytes returns the raw key material.
func (k AesKey) Bytes() []byte {
	out := make([]byte, len(k.key))
	copy(out, k.key)
	return out
}

// Encrypt returns iv || CBC(pad(data)).
func (k AesKey) Encrypt(data []byte) ([]byte, error) {
	block, err := aes.NewCipher(k.key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}

	padded := pkcs7Pad(data, aes.BlockSize)

	out := make([]byte, ivSize+len(padded))
	iv := out[:ivSize]
	if _, err := rand.Read(iv); err != nil {
		return nil, fmt.Errorf("generating iv: %w", err)
	}

	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[ivSize:], padded)
	return out, nil
}

// Decrypt reverses Encrypt.
func (k AesKey) Decrypt(data []byte) ([]byte, error) {
	if len(data) < ivSize+aes.BlockSize || (len(data)-ivSize)%aes.BlockSize != 0 {
		return nil, errors.New("ciphertext is not a whole number of blocks")
	}

	block, err := aes.NewCipher(k.key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}

	plain := make([]byte, len(data)-ivSize)
	cipher.NewCBCDecrypter(block, data[:ivSize]).CryptBlocks(plain, data[ivSize:])

	return pkcs7Unpad(plain, aes.BlockSize)
}

// =============================================================================

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append([]byte{}, data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errors.New("bad padded length")
	}

	n := int(data[len(data)-1])
	if n == 0 || n > blockSize || n > len(data) {
		return nil, errors.New("bad padding")
	}

	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("bad padding")
		}
	}
	return data[:len(data)-n], nil
}
