package envelope_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quantumshield/relay/internal/crypto"
	"github.com/quantumshield/relay/internal/envelope"
)

type parties struct {
	recipientKEM *crypto.KEMKeyPair
	senderSig    *crypto.SigKeyPair
}

func newParties(t *testing.T) parties {
	t.Helper()
	kem, err := crypto.GenerateKEMKeyPair()
	require.NoError(t, err)
	sig, err := crypto.GenerateSigKeyPair()
	require.NoError(t, err)
	return parties{recipientKEM: kem, senderSig: sig}
}

func TestSealOpenRoundTrip(t *testing.T) {
	p := newParties(t)
	plaintext := []byte("hello")

	env, err := envelope.Seal(plaintext, p.recipientKEM.PublicKey, p.senderSig.PrivateKey)
	require.NoError(t, err)
	require.Len(t, env.IV, crypto.AESGCMNonceSize)
	require.Len(t, env.Tag, crypto.AESGCMTagSize)
	require.Len(t, env.KEMCiphertext, crypto.KEMCiphertextSize)

	recovered, err := envelope.Open(env, p.senderSig.PublicKey, p.recipientKEM.PrivateKey)
	require.NoError(t, err)
	require.Equal(t, plaintext, recovered)
}

// Flipping a single bit of any wire field causes decrypt to fail.
func TestBitFlipInAnyFieldFailsDecryption(t *testing.T) {
	p := newParties(t)

	cases := map[string]func(*envelope.Envelope){
		"ciphertext": func(e *envelope.Envelope) { e.Ciphertext[0] ^= 0x01 },
		"tag":        func(e *envelope.Envelope) { e.Tag[0] ^= 0x01 },
		"iv":         func(e *envelope.Envelope) { e.IV[0] ^= 0x01 },
		"kem_ct":     func(e *envelope.Envelope) { e.KEMCiphertext[0] ^= 0x01 },
		"sig":        func(e *envelope.Envelope) { e.Signature[len(e.Signature)-1] ^= 0x01 },
	}

	for name, corrupt := range cases {
		t.Run(name, func(t *testing.T) {
			env, err := envelope.Seal([]byte("hello"), p.recipientKEM.PublicKey, p.senderSig.PrivateKey)
			require.NoError(t, err)
			corrupt(env)

			_, err = envelope.Open(env, p.senderSig.PublicKey, p.recipientKEM.PrivateKey)
			require.ErrorIs(t, err, envelope.ErrDecryptionFailed)
		})
	}
}

func TestOpenFailsWithWrongSignerKey(t *testing.T) {
	p := newParties(t)
	otherSig, err := crypto.GenerateSigKeyPair()
	require.NoError(t, err)

	env, err := envelope.Seal([]byte("hello"), p.recipientKEM.PublicKey, p.senderSig.PrivateKey)
	require.NoError(t, err)

	_, err = envelope.Open(env, otherSig.PublicKey, p.recipientKEM.PrivateKey)
	require.ErrorIs(t, err, envelope.ErrDecryptionFailed)
}

func TestOpenFailsWithWrongRecipientKey(t *testing.T) {
	p := newParties(t)
	otherKEM, err := crypto.GenerateKEMKeyPair()
	require.NoError(t, err)

	env, err := envelope.Seal([]byte("hello"), p.recipientKEM.PublicKey, p.senderSig.PrivateKey)
	require.NoError(t, err)

	_, err = envelope.Open(env, p.senderSig.PublicKey, otherKEM.PrivateKey)
	require.ErrorIs(t, err, envelope.ErrDecryptionFailed)
}

func TestSealRejectsOversizePlaintext(t *testing.T) {
	p := newParties(t)
	oversized := make([]byte, envelope.MaxPlaintextSize+1)

	_, err := envelope.Seal(oversized, p.recipientKEM.PublicKey, p.senderSig.PrivateKey)
	require.ErrorIs(t, err, envelope.ErrPayloadTooLarge)
}

func TestSealAcceptsExactlyMaxPlaintext(t *testing.T) {
	p := newParties(t)
	exact := make([]byte, envelope.MaxPlaintextSize)

	_, err := envelope.Seal(exact, p.recipientKEM.PublicKey, p.senderSig.PrivateKey)
	require.NoError(t, err)
}

func TestValidateRejectsIncompleteEnvelope(t *testing.T) {
	err := envelope.Validate(&envelope.Envelope{
		KEMCiphertext: []byte("x"),
		IV:            []byte("y"),
		Ciphertext:    []byte("z"),
		// Tag and Signature are empty.
	})
	require.ErrorIs(t, err, envelope.ErrIncompleteEnvelope)
}

func TestCanonicalPayloadIsByteExact(t *testing.T) {
	payload := envelope.CanonicalPayload([]byte("ct"), []byte("iv"), []byte("tag"))
	require.Equal(t, `{"c":"Y3Q=","i":"aXY=","t":"dGFn"}`, string(payload))
}

// Exactly 10 MiB of file bytes is accepted even though the base64
// framing grows the sealed plaintext past the message-plaintext bound;
// one byte over is payload_too_large.
func TestSealFileBoundary(t *testing.T) {
	p := newParties(t)

	exact := make([]byte, envelope.MaxPlaintextSize)
	_, err := envelope.SealFile(exact, p.recipientKEM.PublicKey, p.senderSig.PrivateKey, "big.bin", "application/octet-stream")
	require.NoError(t, err)

	over := make([]byte, envelope.MaxPlaintextSize+1)
	_, err = envelope.SealFile(over, p.recipientKEM.PublicKey, p.senderSig.PrivateKey, "big.bin", "application/octet-stream")
	require.ErrorIs(t, err, envelope.ErrPayloadTooLarge)
}

func TestFileEnvelopeRoundTrip(t *testing.T) {
	p := newParties(t)
	fileBytes := []byte("file contents go here")

	fenv, err := envelope.SealFile(fileBytes, p.recipientKEM.PublicKey, p.senderSig.PrivateKey, "note.txt", "text/plain")
	require.NoError(t, err)
	require.Equal(t, "note.txt", fenv.FileName)
	require.EqualValues(t, len(fileBytes), fenv.FileSize)

	recovered, err := envelope.OpenFile(fenv, p.senderSig.PublicKey, p.recipientKEM.PrivateKey)
	require.NoError(t, err)
	require.Equal(t, fileBytes, recovered)
}
