package crypt

import (
	"crypto/rsa"
	"fmt"
)

// KeyVault holds the node's RSA keypair, loaded once per process from the
// two PEM files named in the configuration. The public key's DER bytes are
// the input to the node's address derivation.
type KeyVault struct {
	public  *rsa.PublicKey
	private *rsa.PrivateKey
}

// LoadKeyVault reads both keys and verifies they belong together.
func LoadKeyVault(publicPath string, privatePath string) (*KeyVault, error) {
	pub, err := LoadRsaPublic(publicPath)
	if err != nil {
		return nil, err
	}

	priv, err := LoadRsaPrivate(privatePath)
	if err != nil {
		return nil, err
	}

	if pub.N.Cmp(priv.PublicKey.N) != 0 || pub.E != priv.PublicKey.E {
		return nil, fmt.Errorf("key vault mismatch: %s is not the public half of %s", publicPath, privatePath)
	}

	return &KeyVault{public: pub, private: priv}, nil
}

// PublicKey returns the vault's public key.
func (v *KeyVault) PublicKey() *rsa.PublicKey {
	return v.public
}

// PrivateKey returns the vault's private key.
func (v *KeyVault) PrivateKey() *rsa.PrivateKey {
	return v.private
}

// PublicBytes returns the DER encoding of the public key for address
// derivation.
func (v *KeyVault) PublicBytes() ([]byte, error) {
	return PublicKeyBytes(v.public)
}
