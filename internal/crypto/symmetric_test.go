package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quantumshield/relay/internal/crypto"
)

func TestAESGCMSealOpenRoundTrip(t *testing.T) {
	key := make([]byte, crypto.SymmetricKeySize)
	for i := range key {
		key[i] = byte(i)
	}
	iv, err := crypto.GenerateNonce(crypto.AESGCMNonceSize)
	require.NoError(t, err)

	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	ciphertext, tag, err := crypto.AESGCMSealDetached(key, iv, plaintext)
	require.NoError(t, err)
	require.Len(t, tag, crypto.AESGCMTagSize)
	require.NotEqual(t, plaintext, ciphertext)

	recovered, err := crypto.AESGCMOpenDetached(key, iv, ciphertext, tag)
	require.NoError(t, err)
	require.Equal(t, plaintext, recovered)
}

func TestAESGCMOpenFailsOnTamperedCiphertext(t *testing.T) {
	key := make([]byte, crypto.SymmetricKeySize)
	iv, err := crypto.GenerateNonce(crypto.AESGCMNonceSize)
	require.NoError(t, err)

	ciphertext, tag, err := crypto.AESGCMSealDetached(key, iv, []byte("payload"))
	require.NoError(t, err)

	tampered := append([]byte(nil), ciphertext...)
	tampered[0] ^= 0x01

	_, err = crypto.AESGCMOpenDetached(key, iv, tampered, tag)
	require.Error(t, err)
}

func TestAESGCMOpenFailsOnTamperedTag(t *testing.T) {
	key := make([]byte, crypto.SymmetricKeySize)
	iv, err := crypto.GenerateNonce(crypto.AESGCMNonceSize)
	require.NoError(t, err)

	ciphertext, tag, err := crypto.AESGCMSealDetached(key, iv, []byte("payload"))
	require.NoError(t, err)

	tampered := append([]byte(nil), tag...)
	tampered[0] ^= 0x01

	_, err = crypto.AESGCMOpenDetached(key, iv, ciphertext, tampered)
	require.Error(t, err)
}

func TestAESGCMOpenFailsOnTamperedIV(t *testing.T) {
	key := make([]byte, crypto.SymmetricKeySize)
	iv, err := crypto.GenerateNonce(crypto.AESGCMNonceSize)
	require.NoError(t, err)

	ciphertext, tag, err := crypto.AESGCMSealDetached(key, iv, []byte("payload"))
	require.NoError(t, err)

	tamperedIV := append([]byte(nil), iv...)
	tamperedIV[0] ^= 0x01

	_, err = crypto.AESGCMOpenDetached(key, tamperedIV, ciphertext, tag)
	require.Error(t, err)
}

func TestAESGCMRejectsWrongKeySize(t *testing.T) {
	iv, err := crypto.GenerateNonce(crypto.AESGCMNonceSize)
	require.NoError(t, err)
	_, _, err = crypto.AESGCMSealDetached([]byte("too short"), iv, []byte("x"))
	require.Error(t, err)
}
