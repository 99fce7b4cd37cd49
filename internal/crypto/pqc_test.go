package crypto_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quantumshield/relay/internal/crypto"
)

func TestKEMRoundTrip(t *testing.T) {
	pair, err := crypto.GenerateKEMKeyPair()
	require.NoError(t, err)
	require.Len(t, pair.PublicKey, crypto.KEMPublicKeySize)
	require.Len(t, pair.PrivateKey, crypto.KEMPrivateKeySize)

	encap, err := crypto.Encapsulate(pair.PublicKey)
	require.NoError(t, err)
	require.Len(t, encap.Ciphertext, crypto.KEMCiphertextSize)
	require.Len(t, encap.SharedKey, crypto.KEMSharedKeySize)

	shared, err := crypto.Decapsulate(pair.PrivateKey, encap.Ciphertext)
	require.NoError(t, err)
	require.Equal(t, encap.SharedKey, shared)
}

func TestEncapsulateRejectsMalformedPublicKey(t *testing.T) {
	_, err := crypto.Encapsulate([]byte("too short"))
	require.Error(t, err)
}

func TestDecapsulateRejectsMalformedInput(t *testing.T) {
	pair, err := crypto.GenerateKEMKeyPair()
	require.NoError(t, err)

	_, err = crypto.Decapsulate(pair.PrivateKey, []byte("not a ciphertext"))
	require.Error(t, err)

	_, err = crypto.Decapsulate([]byte("not a key"), make([]byte, crypto.KEMCiphertextSize))
	require.Error(t, err)
}

func TestSignVerifyRoundTrip(t *testing.T) {
	pair, err := crypto.GenerateSigKeyPair()
	require.NoError(t, err)
	require.Len(t, pair.PublicKey, crypto.SigPublicKeySize)

	msg := []byte(`{"c":"aa","i":"bb","t":"cc"}`)
	sig, err := crypto.Sign(pair.PrivateKey, msg)
	require.NoError(t, err)
	require.LessOrEqual(t, len(sig), crypto.SigSize)

	ok, err := crypto.Verify(pair.PublicKey, msg, sig)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestVerifyFailsOnTamperedSignature(t *testing.T) {
	pair, err := crypto.GenerateSigKeyPair()
	require.NoError(t, err)
	msg := []byte("hello")

	sig, err := crypto.Sign(pair.PrivateKey, msg)
	require.NoError(t, err)

	tampered := append([]byte(nil), sig...)
	tampered[len(tampered)-1] ^= 0xFF

	ok, err := crypto.Verify(pair.PublicKey, msg, tampered)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestVerifyFailsOnWrongKey(t *testing.T) {
	pair1, err := crypto.GenerateSigKeyPair()
	require.NoError(t, err)
	pair2, err := crypto.GenerateSigKeyPair()
	require.NoError(t, err)

	msg := []byte("hello")
	sig, err := crypto.Sign(pair1.PrivateKey, msg)
	require.NoError(t, err)

	ok, err := crypto.Verify(pair2.PublicKey, msg, sig)
	require.NoError(t, err)
	require.False(t, ok)
}

// Re-signing the same payload with the same key must always produce a
// signature that verifies, whether or not the signing is randomized.
func TestReSignSamePayloadAlwaysVerifies(t *testing.T) {
	pair, err := crypto.GenerateSigKeyPair()
	require.NoError(t, err)
	msg := []byte("same payload, signed twice")

	sig1, err := crypto.Sign(pair.PrivateKey, msg)
	require.NoError(t, err)
	sig2, err := crypto.Sign(pair.PrivateKey, msg)
	require.NoError(t, err)

	ok1, err := crypto.Verify(pair.PublicKey, msg, sig1)
	require.NoError(t, err)
	require.True(t, ok1)

	ok2, err := crypto.Verify(pair.PublicKey, msg, sig2)
	require.NoError(t, err)
	require.True(t, ok2)
}

func TestKeyFingerprintIsStableAndDistinct(t *testing.T) {
	pair1, err := crypto.GenerateKEMKeyPair()
	require.NoError(t, err)
	pair2, err := crypto.GenerateKEMKeyPair()
	require.NoError(t, err)

	require.Equal(t, crypto.KeyFingerprint(pair1.PublicKey), crypto.KeyFingerprint(pair1.PublicKey))
	require.NotEqual(t, crypto.KeyFingerprint(pair1.PublicKey), crypto.KeyFingerprint(pair2.PublicKey))
}
