/*
Package crypto provides thin adapters over the post-quantum primitives:
ML-KEM-1024 key encapsulation and a lattice signature scheme, composed
with AES-256-GCM for bulk encryption by the envelope codec in
internal/envelope.

ALGORITHMS:
  - ML-KEM-1024 key encapsulation (CRYSTALS-Kyber-1024, NIST
    standardized), via cloudflare/circl's kyber1024 package. Kyber1024
    and ML-KEM-1024 are the same algorithm under its pre-standardization
    name (public key 1568B, ciphertext 1568B, shared secret 32B).
  - Dilithium3 signatures, via cloudflare/circl's dilithium mode3.
    circl ships no Falcon-1024 binding, so Dilithium3 stands in for it:
    a different NIST PQC signature scheme with the same security goals
    but larger wire sizes (public key 1952B, signature 3293B, vs
    Falcon-1024's 1793B / <=1280B). Callers must size buffers from the
    Sig* constants below, never from Falcon's figures.
*/
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/cloudflare/circl/kem/kyber/kyber1024"
	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

// Key and ciphertext sizes, in bytes.
const (
	KEMPublicKeySize  = kyber1024.PublicKeySize  // 1568
	KEMPrivateKeySize = kyber1024.PrivateKeySize // 3168
	KEMCiphertextSize = kyber1024.CiphertextSize // 1568
	KEMSharedKeySize  = kyber1024.SharedKeySize  // 32

	SigPublicKeySize  = mode3.PublicKeySize  // 1952
	SigPrivateKeySize = mode3.PrivateKeySize // 4016
	SigSize           = mode3.SignatureSize  // 3293
)

// KEMKeyPair is a kem_keygen() result: the ML-KEM-1024 key pair used for
// per-message encapsulation in the envelope codec.
type KEMKeyPair struct {
	PublicKey  []byte
	PrivateKey []byte
}

// SigKeyPair is a sig_keygen() result: the signature key pair used to
// sign and verify the canonical envelope payload.
type SigKeyPair struct {
	PublicKey  []byte
	PrivateKey []byte
}

// EncapsulationResult is a kem_encapsulate() result.
type EncapsulationResult struct {
	Ciphertext []byte
	SharedKey  []byte
}

// GenerateKEMKeyPair implements kem_keygen(): pk, sk <- KEM.KeyGen().
func GenerateKEMKeyPair() (*KEMKeyPair, error) {
	publicKey, privateKey, err := kyber1024.GenerateKeyPair(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: generate KEM key pair: %w", err)
	}

	pubBytes := make([]byte, KEMPublicKeySize)
	privBytes := make([]byte, KEMPrivateKeySize)
	publicKey.Pack(pubBytes)
	privateKey.Pack(privBytes)

	return &KEMKeyPair{PublicKey: pubBytes, PrivateKey: privBytes}, nil
}

// GenerateSigKeyPair implements sig_keygen(): pk, sk <- Sig.KeyGen().
func GenerateSigKeyPair() (*SigKeyPair, error) {
	publicKey, privateKey, err := mode3.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("crypto: generate signature key pair: %w", err)
	}

	return &SigKeyPair{
		PublicKey:  publicKey.Bytes(),
		PrivateKey: privateKey.Bytes(),
	}, nil
}

// Encapsulate implements kem_encapsulate(pk) -> (ct, ss). Inputs are
// fixed-length opaque byte strings; a malformed public key is rejected
// before any library call.
func Encapsulate(publicKeyBytes []byte) (*EncapsulationResult, error) {
	if len(publicKeyBytes) != KEMPublicKeySize {
		return nil, fmt.Errorf("crypto: invalid KEM public key size: expected %d, got %d", KEMPublicKeySize, len(publicKeyBytes))
	}

	var publicKey kyber1024.PublicKey
	publicKey.Unpack(publicKeyBytes)

	ciphertext := make([]byte, KEMCiphertextSize)
	sharedKey := make([]byte, KEMSharedKeySize)
	publicKey.EncapsulateTo(ciphertext, sharedKey, nil)

	return &EncapsulationResult{Ciphertext: ciphertext, SharedKey: sharedKey}, nil
}

// Decapsulate implements kem_decapsulate(ct, sk) -> ss. Decapsulation
// failure surfaces a single well-defined value and never panics through
// the boundary - circl's DecapsulateTo does not
// itself fail on a malformed ciphertext of the right length (it derives
// an implicit-rejection pseudorandom shared secret per FO-transform
// semantics), so the well-defined failure mode this function raises is
// reserved for structurally invalid input sizes.
func Decapsulate(privateKeyBytes, ciphertextBytes []byte) ([]byte, error) {
	if len(privateKeyBytes) != KEMPrivateKeySize {
		return nil, fmt.Errorf("crypto: invalid KEM private key size: expected %d, got %d", KEMPrivateKeySize, len(privateKeyBytes))
	}
	if len(ciphertextBytes) != KEMCiphertextSize {
		return nil, fmt.Errorf("crypto: invalid KEM ciphertext size: expected %d, got %d", KEMCiphertextSize, len(ciphertextBytes))
	}

	var privateKey kyber1024.PrivateKey
	privateKey.Unpack(privateKeyBytes)

	sharedKey := make([]byte, KEMSharedKeySize)
	privateKey.DecapsulateTo(sharedKey, ciphertextBytes)

	return sharedKey, nil
}

// Sign implements sign(msg, sk) -> sigma.
func Sign(privateKeyBytes, message []byte) ([]byte, error) {
	if len(privateKeyBytes) != SigPrivateKeySize {
		return nil, fmt.Errorf("crypto: invalid signing key size: expected %d, got %d", SigPrivateKeySize, len(privateKeyBytes))
	}

	var privateKey mode3.PrivateKey
	var privKeyArray [mode3.PrivateKeySize]byte
	copy(privKeyArray[:], privateKeyBytes)
	privateKey.Unpack(&privKeyArray)

	signature := make([]byte, SigSize)
	mode3.SignTo(&privateKey, message, signature)

	return signature, nil
}

// Verify implements verify(msg, sigma, pk) -> bool. It never returns an
// error for a genuinely bad signature - only for structurally malformed
// input - so callers in the envelope codec can treat "verify returned
// false" and "verify returned an error" identically as verification
// failure and stay fail-closed.
func Verify(publicKeyBytes, message, signatureBytes []byte) (bool, error) {
	if len(publicKeyBytes) != SigPublicKeySize {
		return false, fmt.Errorf("crypto: invalid verification key size: expected %d, got %d", SigPublicKeySize, len(publicKeyBytes))
	}
	if len(signatureBytes) != SigSize {
		return false, fmt.Errorf("crypto: invalid signature size: expected %d, got %d", SigSize, len(signatureBytes))
	}

	var publicKey mode3.PublicKey
	var pubKeyArray [mode3.PublicKeySize]byte
	copy(pubKeyArray[:], publicKeyBytes)
	publicKey.Unpack(&pubKeyArray)

	return mode3.Verify(&publicKey, message, signatureBytes), nil
}

// KeyFingerprint computes a SHA-256 fingerprint of a public key, used for
// display and for correlating the same key across log lines without
// logging the key itself.
func KeyFingerprint(publicKey []byte) string {
	hash := sha256.Sum256(publicKey)
	return hex.EncodeToString(hash[:])
}
