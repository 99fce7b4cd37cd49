// Package envelope builds and parses the per-message and per-file
// encryption bundle, and canonicalizes the signing payload so sender
// and receiver compute byte-identical bytes to sign and verify
// regardless of runtime.
package envelope

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/quantumshield/relay/internal/crypto"
)

// MaxPlaintextSize bounds envelope plaintext at 10 MiB. Exactly 10 MiB
// is accepted; one byte over is payload_too_large.
const MaxPlaintextSize = 10 * 1024 * 1024

// ErrDecryptionFailed is the single generic outcome for any
// cryptographic failure on the receive path: a signature failure, a
// decapsulation failure, and an AEAD tag mismatch are all collapsed
// into this one error so callers cannot distinguish which sub-step
// failed.
var ErrDecryptionFailed = errors.New("envelope: decryption failed")

// ErrPayloadTooLarge is returned when plaintext exceeds MaxPlaintextSize.
var ErrPayloadTooLarge = errors.New("envelope: payload too large")

// ErrIncompleteEnvelope is returned when any wire field of a received
// envelope is empty. Encryption is mandatory, and an envelope missing a
// field is rejected before signature verification is even attempted.
var ErrIncompleteEnvelope = errors.New("envelope: incomplete envelope")

// Envelope is the bundle B = (kem_ct, iv, ciphertext, tag, sig) sent
// per message. Construction is explicit and partial forms are rejected;
// there is no loosely-typed bundle anywhere on the path.
type Envelope struct {
	KEMCiphertext []byte
	IV            []byte
	Ciphertext    []byte
	Tag           []byte
	Signature     []byte
}

// FileEnvelope is the file-transfer variant: the same cryptographic
// bundle plus display metadata that travels alongside it but is not
// covered by the signature, so receivers must treat it as untrusted
// display hints.
type FileEnvelope struct {
	Envelope
	FileName string
	FileSize int64
	FileType string
}

// Seal implements the send path for a plaintext message:
//
//	(kem_ct, ss) <- kem_encapsulate(recipientKEMPublicKey)
//	aes_key <- ss
//	iv <-$ 12 bytes
//	(ciphertext, tag) <- AES-256-GCM.encrypt(aes_key, iv, plaintext)
//	P <- canonical({c: ciphertext, i: iv, t: tag})
//	sig <- sign(P, senderSigPrivateKey)
func Seal(plaintext, recipientKEMPublicKey, senderSigPrivateKey []byte) (*Envelope, error) {
	if len(plaintext) > MaxPlaintextSize {
		return nil, ErrPayloadTooLarge
	}
	return seal(plaintext, recipientKEMPublicKey, senderSigPrivateKey)
}

func seal(plaintext, recipientKEMPublicKey, senderSigPrivateKey []byte) (*Envelope, error) {
	encap, err := crypto.Encapsulate(recipientKEMPublicKey)
	if err != nil {
		return nil, fmt.Errorf("envelope: encapsulate: %w", err)
	}

	iv, err := crypto.GenerateNonce(crypto.AESGCMNonceSize)
	if err != nil {
		return nil, fmt.Errorf("envelope: generate iv: %w", err)
	}

	ciphertext, tag, err := crypto.AESGCMSealDetached(encap.SharedKey, iv, plaintext)
	if err != nil {
		return nil, fmt.Errorf("envelope: seal: %w", err)
	}

	payload := CanonicalPayload(ciphertext, iv, tag)
	sig, err := crypto.Sign(senderSigPrivateKey, payload)
	if err != nil {
		return nil, fmt.Errorf("envelope: sign: %w", err)
	}

	return &Envelope{
		KEMCiphertext: encap.Ciphertext,
		IV:            iv,
		Ciphertext:    ciphertext,
		Tag:           tag,
		Signature:     sig,
	}, nil
}

// SealFile builds a FileEnvelope. The plaintext fed to AES-GCM is
// base64(file_bytes), not the raw file bytes - a wire-format choice
// this codec must match bit-exactly with any peer.
// The 10 MiB bound applies to the file bytes themselves; the base64
// framing grows the sealed plaintext past it by 4/3, which is accepted
// so that an exactly-10-MiB file transfers.
func SealFile(fileBytes, recipientKEMPublicKey, senderSigPrivateKey []byte, fileName, fileType string) (*FileEnvelope, error) {
	if len(fileBytes) > MaxPlaintextSize {
		return nil, ErrPayloadTooLarge
	}
	encoded := []byte(base64.StdEncoding.EncodeToString(fileBytes))
	env, err := seal(encoded, recipientKEMPublicKey, senderSigPrivateKey)
	if err != nil {
		return nil, err
	}
	return &FileEnvelope{
		Envelope: *env,
		FileName: fileName,
		FileSize: int64(len(fileBytes)),
		FileType: fileType,
	}, nil
}

// Open implements the receive path. An envelope with any empty field is
// rejected first with ErrIncompleteEnvelope, before any of these steps:
//
//  1. Recompute P from the received fields and verify(P, sig, senderSigPK)
//     - this MUST succeed before any decapsulation attempt (fail-closed,
//     avoids a release oracle on malformed ciphertexts).
//  2. ss <- kem_decapsulate(kem_ct, recipientKEMPrivateKey)
//  3. plaintext <- AES-GCM decrypt with the authentication tag
//
// Any failure at any of these three steps yields ErrDecryptionFailed; the specific cause
// is never surfaced across this function's boundary.
func Open(env *Envelope, senderSigPublicKey, recipientKEMPrivateKey []byte) ([]byte, error) {
	if err := Validate(env); err != nil {
		return nil, err
	}

	payload := CanonicalPayload(env.Ciphertext, env.IV, env.Tag)
	ok, err := crypto.Verify(senderSigPublicKey, payload, env.Signature)
	if err != nil || !ok {
		return nil, ErrDecryptionFailed
	}

	ss, err := crypto.Decapsulate(recipientKEMPrivateKey, env.KEMCiphertext)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	plaintext, err := crypto.AESGCMOpenDetached(ss, env.IV, env.Ciphertext, env.Tag)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

// OpenFile is the FileEnvelope counterpart to Open: it reverses
// SealFile's base64(file_bytes) framing after the AEAD/signature
// verification succeeds.
func OpenFile(fenv *FileEnvelope, senderSigPublicKey, recipientKEMPrivateKey []byte) ([]byte, error) {
	encoded, err := Open(&fenv.Envelope, senderSigPublicKey, recipientKEMPrivateKey)
	if err != nil {
		return nil, err
	}
	fileBytes, err := base64.StdEncoding.DecodeString(string(encoded))
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return fileBytes, nil
}

// CanonicalPayload builds P = {"c":"<base64 ciphertext>","i":"<base64
// iv>","t":"<base64 tag>"} byte-exactly: fixed key order c,i,t, no
// whitespace. This exact byte sequence is load-bearing for cross-runtime
// compatibility - it is built with a strings.Builder and explicit
// literal punctuation rather than encoding/json.Marshal, since Go's
// own json package does not guarantee key order for map input and a
// struct-based Marshal call is one refactor away from an accidental
// field reorder that would silently break the wire format.
func CanonicalPayload(ciphertext, iv, tag []byte) []byte {
	var b strings.Builder
	b.Grow(32 + base64Len(len(ciphertext)) + base64Len(len(iv)) + base64Len(len(tag)))
	b.WriteString(`{"c":"`)
	b.WriteString(base64.StdEncoding.EncodeToString(ciphertext))
	b.WriteString(`","i":"`)
	b.WriteString(base64.StdEncoding.EncodeToString(iv))
	b.WriteString(`","t":"`)
	b.WriteString(base64.StdEncoding.EncodeToString(tag))
	b.WriteString(`"}`)
	return []byte(b.String())
}

func base64Len(n int) int {
	return ((n + 2) / 3) * 4
}

// Validate reports ErrIncompleteEnvelope if any wire field is empty. It
// is exported so internal/relay can run this check before its
// friendship and signature checks, which must not be reordered.
func Validate(env *Envelope) error {
	if len(env.KEMCiphertext) == 0 || len(env.IV) == 0 || len(env.Ciphertext) == 0 ||
		len(env.Tag) == 0 || len(env.Signature) == 0 {
		return ErrIncompleteEnvelope
	}
	return nil
}
