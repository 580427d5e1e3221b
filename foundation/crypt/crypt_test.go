package crypt_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tidechain/tide/foundation/crypt"
)

func TestHashes(t *testing.T) {
	data := []byte("the quick brown fox")

	h := crypt.Sha256(data)
	require.Len(t, h.Bytes(), 32)
	require.Equal(t, h, crypt.Sha256(data))
	require.NotEqual(t, h, crypt.Sha256([]byte("something else")))

	rip := crypt.Ripemd160(data)
	require.Len(t, rip[:], 20)

	parsed, err := crypt.HashFromString(h.String())
	require.NoError(t, err)
	require.Equal(t, h, parsed)
}

func TestSecpSignVerifyRecover(t *testing.T) {
	key, err := crypt.GeneratePrivateKey()
	require.NoError(t, err)

	digest := crypt.Sha256([]byte("payload"))

	sig, err := key.Sign(digest)
	require.NoError(t, err)
	require.Len(t, sig, crypt.SignatureSize)

	compressed := key.CompressedPublicKey()
	require.Len(t, compressed, crypt.CompressedPublicSize)
	require.True(t, crypt.VerifySignature(compressed, digest, sig))

	// A different digest must not verify.
	other := crypt.Sha256([]byte("other payload"))
	require.False(t, crypt.VerifySignature(compressed, other, sig))

	// The recovered public key matches the signer.
	recovered, err := crypt.RecoverPublicKey(digest, sig)
	require.NoError(t, err)
	require.Equal(t, key.PublicKey(), recovered)

	// Compressed and uncompressed forms agree.
	expanded, err := crypt.DecompressPublicKey(compressed)
	require.NoError(t, err)
	require.Equal(t, key.PublicKey(), expanded)
}

func TestRsaRoundTrip(t *testing.T) {
	pub, priv, err := crypt.GenerateRsaKeys(1024)
	require.NoError(t, err)

	// Ciphertext is exactly the key size; plaintext is bounded by the
	// OAEP overhead.
	require.Equal(t, 1024/8-42, crypt.RsaMaxEncryptSize(pub))

	message := []byte("vault sealed message")
	ct, err := crypt.RsaEncrypt(pub, message)
	require.NoError(t, err)
	require.Len(t, ct, 1024/8)

	pt, err := crypt.RsaDecrypt(priv, ct)
	require.NoError(t, err)
	require.Equal(t, message, pt)

	// Over-long plaintext is refused up front.
	tooBig := bytes.Repeat([]byte{'x'}, crypt.RsaMaxEncryptSize(pub)+1)
	_, err = crypt.RsaEncrypt(pub, tooBig)
	require.Error(t, err)
}

func TestRsaEnvelope(t *testing.T) {
	pub, priv, err := crypt.GenerateRsaKeys(1024)
	require.NoError(t, err)

	// The envelope carries payloads far beyond one RSA block.
	message := bytes.Repeat([]byte("0123456789"), 1000)

	sealed, err := crypt.SealEnvelope(pub, message)
	require.NoError(t, err)

	opened, err := crypt.OpenEnvelope(priv, sealed)
	require.NoError(t, err)
	require.Equal(t, message, opened)
}

func TestAes(t *testing.T) {
	for _, kt := range []crypt.AesKeyType{crypt.Aes128, crypt.Aes256} {
		key, err := crypt.GenerateAesKey(kt)
		require.NoError(t, err)

		data := []byte("sixteen byte blk + a little more")
		ct, err := key.Encrypt(data)
		require.NoError(t, err)
		require.NotEqual(t, data, ct)

		pt, err := key.Decrypt(ct)
		require.NoError(t, err)
		require.Equal(t, data, pt)

		// A fresh random IV makes repeated encryptions differ.
		ct2, err := key.Encrypt(data)
		require.NoError(t, err)
		require.NotEqual(t, ct, ct2)

		// A truncated ciphertext is rejected.
		_, err = key.Decrypt(ct[:len(ct)-1])
		require.Error(t, err)
	}
}

func TestEncodings(t *testing.T) {
	data := []byte{0, 1, 2, 253, 254, 255}

	b58 := crypt.Base58Encode(data)
	back, err := crypt.Base58Decode(b58)
	require.NoError(t, err)
	require.Equal(t, data, back)

	b64 := crypt.Base64Encode(data)
	back, err = crypt.Base64Decode(b64)
	require.NoError(t, err)
	require.Equal(t, data, back)

	_, err = crypt.Base58Decode("0OIl")
	require.Error(t, err)
}

func TestKeyVault(t *testing.T) {
	pub, priv, err := crypt.GenerateRsaKeys(1024)
	require.NoError(t, err)

	dir := t.TempDir()
	pubPath := dir + "/node.pub.pem"
	privPath := dir + "/node.pem"

	require.NoError(t, crypt.SaveRsaPublic(pub, pubPath))
	require.NoError(t, crypt.SaveRsaPrivate(priv, privPath))

	vault, err := crypt.LoadKeyVault(pubPath, privPath)
	require.NoError(t, err)

	der, err := vault.PublicBytes()
	require.NoError(t, err)
	require.NotEmpty(t, der)

	// Mismatched halves are refused.
	otherPub, _, err := crypt.GenerateRsaKeys(1024)
	require.NoError(t, err)
	otherPath := dir + "/other.pub.pem"
	require.NoError(t, crypt.SaveRsaPublic(otherPub, otherPath))

	_, err = crypt.LoadKeyVault(otherPath, privPath)
	require.Error(t, err)
}
