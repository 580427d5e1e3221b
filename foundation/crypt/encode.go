package crypt

import (
	"encoding/base64"
	"fmt"

	"github.com/mr-tron/base58"
)

// Base58Encode renders arbitrary bytes in base58.
func Base58Encode(data []byte) string {
	return base58.Encode(data)
}

// Base58Decode reverses Base58Encode.
func Base58Decode(s string) ([]byte, error) {
	b, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decoding base58: %w", err)
	}
	return b, nil
}

// Base64Encode renders arbitrary bytes in standard base64.
func Base64Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Base64Decode reverses Base64Encode.
func Base64Decode(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decoding base64: %w", err)
	}
	return b, nil
}
