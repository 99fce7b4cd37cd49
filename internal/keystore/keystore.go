// Package keystore implements the client-side secure keystore: a
// password-derived KEK, at-rest encryption of the long-lived
// KEM/signature secret keys, and a process-local session with an
// inactivity timeout.
package keystore

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/quantumshield/relay/internal/crypto"
)

// Key-derivation parameters. They are part of the on-disk format and
// must match on read.
const (
	PBKDF2Iterations = 600_000
	KEKSize          = 32
	SaltSize         = 16
)

// SessionTimeout is the inactivity window after which GetSecretKeys fails
// with ErrSessionNotInitialized.
const SessionTimeout = 30 * time.Minute

var (
	// ErrSessionNotInitialized is returned by GetSecretKeys when no
	// session exists, the session expired, or no mirror restore was
	// possible.
	ErrSessionNotInitialized = errors.New("keystore: session not initialized")
	// ErrInvalidCredentials collapses "no such username" and "wrong
	// password" into one outcome - unlock must fail without revealing
	// which of the two was wrong, and without corrupting stored data.
	ErrInvalidCredentials = errors.New("keystore: invalid username or password")
	// ErrAlreadyInitialized is returned by Initialize when a record for
	// the username already exists; re-initializing would destroy the
	// existing at-rest blob.
	ErrAlreadyInitialized = errors.New("keystore: record already initialized")
)

// SecretKeys is the plaintext long-lived key material. It is returned
// by value only for the duration of the crypto operation that needs it
// - callers must not hold it across suspension points.
type SecretKeys struct {
	KEMSecretKey []byte
	SigSecretKey []byte
}

// Zero overwrites both key slices in place. Callers should defer this
// immediately after obtaining a SecretKeys value from GetSecretKeys.
func (s *SecretKeys) Zero() {
	if s == nil {
		return
	}
	clear(s.KEMSecretKey)
	clear(s.SigSecretKey)
}

// PublicKeys is the non-secret half of a user's key material, stored
// alongside the encrypted record for convenient local lookup.
type PublicKeys struct {
	KEMPublicKey []byte
	SigPublicKey []byte
}

// Record is one user's at-rest keystore state: salt, the
// AES-256-GCM-encrypted secret-key blob (ciphertext and tag kept
// separate, matching the envelope codec's detached-AEAD convention), and
// the public key mirror.
type Record struct {
	Username   string
	Salt       []byte
	IV         []byte
	Ciphertext []byte
	Tag        []byte
	PublicKeys PublicKeys
}

// Store is the at-rest persistence boundary for Records. A production
// deployment backs this with whatever the client platform offers
// (browser IndexedDB, an OS keychain, an encrypted file) - this package
// only requires Load/Save semantics.
type Store interface {
	Load(username string) (*Record, bool, error)
	Save(record *Record) error
}

// SessionMirror models per-tab session storage: a place to mirror the
// in-memory KEK so a page reload can restore an unlocked session
// without re-prompting for the password, while still obeying the
// 30-minute inactivity window.
type SessionMirror interface {
	Save(username string, kek []byte, lastActivity time.Time) error
	Load() (username string, kek []byte, lastActivity time.Time, ok bool, err error)
	Clear() error
}

// session is the in-memory session state. Its presence is the
// invariant "KEK present <=> unlocked".
type session struct {
	username     string
	kek          []byte
	lastActivity time.Time
}

// Keystore is the client keystore handle. One Keystore serves one
// local user profile; it is safe for concurrent use.
type Keystore struct {
	store  Store
	mirror SessionMirror

	mu   sync.Mutex
	sess *session
}

// New constructs a Keystore backed by the given Store and SessionMirror.
func New(store Store, mirror SessionMirror) *Keystore {
	return &Keystore{store: store, mirror: mirror}
}

func deriveKEK(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, PBKDF2Iterations, KEKSize, sha256.New)
}

// Initialize enrolls a user: generate a fresh salt, derive the KEK,
// encrypt {kem_sk, sig_sk} under it, persist the record, and start an
// unlocked session.
func (k *Keystore) Initialize(username, password string, secrets SecretKeys, public PublicKeys) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if _, exists, err := k.store.Load(username); err != nil {
		return fmt.Errorf("keystore: check existing record: %w", err)
	} else if exists {
		return ErrAlreadyInitialized
	}

	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return fmt.Errorf("keystore: generate salt: %w", err)
	}

	kek := deriveKEK(password, salt)
	plaintext := encodeSecrets(secrets)

	iv, err := crypto.GenerateNonce(crypto.AESGCMNonceSize)
	if err != nil {
		return fmt.Errorf("keystore: generate iv: %w", err)
	}
	ciphertext, tag, err := crypto.AESGCMSealDetached(kek, iv, plaintext)
	clear(plaintext)
	if err != nil {
		return fmt.Errorf("keystore: seal secret keys: %w", err)
	}

	record := &Record{
		Username:   username,
		Salt:       salt,
		IV:         iv,
		Ciphertext: ciphertext,
		Tag:        tag,
		PublicKeys: public,
	}
	if err := k.store.Save(record); err != nil {
		return fmt.Errorf("keystore: persist record: %w", err)
	}

	now := time.Now()
	k.sess = &session{username: username, kek: kek, lastActivity: now}
	if err := k.mirror.Save(username, kek, now); err != nil {
		return fmt.Errorf("keystore: mirror session: %w", err)
	}
	return nil
}

// Unlock re-derives the KEK from the stored salt and validates it by
// attempting a decrypt. A wrong password fails with
// ErrInvalidCredentials and leaves the stored record untouched.
func (k *Keystore) Unlock(username, password string) error {
	k.mu.Lock()
	defer k.mu.Unlock()

	record, ok, err := k.store.Load(username)
	if err != nil {
		return fmt.Errorf("keystore: load record: %w", err)
	}
	if !ok {
		return ErrInvalidCredentials
	}

	kek := deriveKEK(password, record.Salt)
	plaintext, err := crypto.AESGCMOpenDetached(kek, record.IV, record.Ciphertext, record.Tag)
	if err != nil {
		clear(kek)
		return ErrInvalidCredentials
	}
	clear(plaintext)

	now := time.Now()
	k.sess = &session{username: username, kek: kek, lastActivity: now}
	if err := k.mirror.Save(username, kek, now); err != nil {
		return fmt.Errorf("keystore: mirror session: %w", err)
	}
	return nil
}

// GetSecretKeys refreshes the activity timestamp and returns the
// decrypted secret keys. If no in-memory session exists, it attempts a
// restore from the session mirror, subject to the same 30-minute window
// (reload survival).
func (k *Keystore) GetSecretKeys() (*SecretKeys, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	now := time.Now()

	if k.sess == nil {
		username, kek, lastActivity, ok, err := k.mirror.Load()
		if err != nil {
			return nil, fmt.Errorf("keystore: load session mirror: %w", err)
		}
		if !ok || now.Sub(lastActivity) > SessionTimeout {
			if ok {
				clear(kek)
				_ = k.mirror.Clear()
			}
			return nil, ErrSessionNotInitialized
		}
		k.sess = &session{username: username, kek: kek, lastActivity: lastActivity}
	}

	if now.Sub(k.sess.lastActivity) > SessionTimeout {
		k.clearLocked()
		return nil, ErrSessionNotInitialized
	}

	record, ok, err := k.store.Load(k.sess.username)
	if err != nil {
		return nil, fmt.Errorf("keystore: load record: %w", err)
	}
	if !ok {
		k.clearLocked()
		return nil, ErrSessionNotInitialized
	}

	plaintext, err := crypto.AESGCMOpenDetached(k.sess.kek, record.IV, record.Ciphertext, record.Tag)
	if err != nil {
		return nil, fmt.Errorf("keystore: decrypt secret keys: %w", err)
	}
	secrets := decodeSecrets(plaintext)
	clear(plaintext)

	k.sess.lastActivity = now
	if err := k.mirror.Save(k.sess.username, k.sess.kek, now); err != nil {
		return nil, fmt.Errorf("keystore: mirror session: %w", err)
	}

	return secrets, nil
}

// GetPublicKeys returns the non-secret public key mirror for a username.
// Unlike GetSecretKeys this does not require an unlocked session: public
// keys are not sensitive.
func (k *Keystore) GetPublicKeys(username string) (*PublicKeys, error) {
	record, ok, err := k.store.Load(username)
	if err != nil {
		return nil, fmt.Errorf("keystore: load record: %w", err)
	}
	if !ok {
		return nil, ErrSessionNotInitialized
	}
	public := record.PublicKeys
	return &public, nil
}

// ClearSession zeroes the in-memory KEK, clears the session mirror, and
// drops the session handle.
func (k *Keystore) ClearSession() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.clearLocked()
}

func (k *Keystore) clearLocked() error {
	if k.sess != nil {
		clear(k.sess.kek)
		k.sess = nil
	}
	return k.mirror.Clear()
}

// encodeSecrets and decodeSecrets use a fixed length-prefixed framing
// rather than encoding/json: the plaintext only ever exists transiently
// inside this package, so there is no cross-runtime compatibility
// requirement the way there is for the envelope codec's signed payload.
func encodeSecrets(s SecretKeys) []byte {
	buf := make([]byte, 4+len(s.KEMSecretKey)+len(s.SigSecretKey))
	putUint32(buf[0:4], uint32(len(s.KEMSecretKey)))
	copy(buf[4:], s.KEMSecretKey)
	copy(buf[4+len(s.KEMSecretKey):], s.SigSecretKey)
	return buf
}

func decodeSecrets(buf []byte) *SecretKeys {
	kemLen := getUint32(buf[0:4])
	kem := append([]byte(nil), buf[4:4+kemLen]...)
	sig := append([]byte(nil), buf[4+kemLen:]...)
	return &SecretKeys{KEMSecretKey: kem, SigSecretKey: sig}
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func getUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
