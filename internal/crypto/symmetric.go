/*
Package crypto also provides the AES-256-GCM step used by the envelope
codec to bulk-encrypt message and file plaintext under the shared
secret produced by Encapsulate/Decapsulate.

NONCE HANDLING: 12-byte (96-bit) nonce, randomly generated per envelope.

The wire format carries ciphertext and authentication tag as two
separate fields, and the KEM shared secret is used directly as the AES
key - 32 bytes, no intermediate KDF.
*/
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
)

// SymmetricKeySize is the size of the AES-256 key (also the KEM shared
// secret size, since the envelope codec uses ss directly as aes_key).
const SymmetricKeySize = 32

// AESGCMNonceSize is the wire IV size.
const AESGCMNonceSize = 12

// AESGCMTagSize is the wire authentication tag size.
const AESGCMTagSize = 16

// GenerateNonce generates a random nonce of the given size.
func GenerateNonce(size int) ([]byte, error) {
	nonce := make([]byte, size)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("crypto: generate nonce: %w", err)
	}
	return nonce, nil
}

// AESGCMSealDetached encrypts plaintext under (key, iv), returning the
// ciphertext and authentication tag as two separate values to match the
// wire fields (ciphertext, tag) rather than Go's usual single Seal()
// return with the tag appended.
func AESGCMSealDetached(key, iv, plaintext []byte) (ciphertext, tag []byte, err error) {
	if len(key) != SymmetricKeySize {
		return nil, nil, fmt.Errorf("crypto: invalid AES key size: expected %d, got %d", SymmetricKeySize, len(key))
	}
	if len(iv) != AESGCMNonceSize {
		return nil, nil, fmt.Errorf("crypto: invalid IV size: expected %d, got %d", AESGCMNonceSize, len(iv))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, fmt.Errorf("crypto: create GCM: %w", err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	split := len(sealed) - gcm.Overhead()
	ciphertext = sealed[:split]
	tag = sealed[split:]
	return ciphertext, tag, nil
}

// AESGCMOpenDetached is the inverse of AESGCMSealDetached. Any failure -
// bad key size, bad tag, tampered ciphertext - is returned as a single
// generic error; callers at the envelope-codec boundary collapse this
// further into one "decryption failed" outcome.
func AESGCMOpenDetached(key, iv, ciphertext, tag []byte) ([]byte, error) {
	if len(key) != SymmetricKeySize {
		return nil, fmt.Errorf("crypto: invalid AES key size: expected %d, got %d", SymmetricKeySize, len(key))
	}
	if len(iv) != AESGCMNonceSize {
		return nil, fmt.Errorf("crypto: invalid IV size: expected %d, got %d", AESGCMNonceSize, len(iv))
	}
	if len(tag) != AESGCMTagSize {
		return nil, fmt.Errorf("crypto: invalid tag size: expected %d, got %d", AESGCMTagSize, len(tag))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: create GCM: %w", err)
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: AEAD open failed: %w", err)
	}
	return plaintext, nil
}
