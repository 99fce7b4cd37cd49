package keystore_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/quantumshield/relay/internal/crypto"
	"github.com/quantumshield/relay/internal/keystore"
)

func newSecrets(t *testing.T) (keystore.SecretKeys, keystore.PublicKeys) {
	t.Helper()
	kem, err := crypto.GenerateKEMKeyPair()
	require.NoError(t, err)
	sig, err := crypto.GenerateSigKeyPair()
	require.NoError(t, err)
	return keystore.SecretKeys{KEMSecretKey: kem.PrivateKey, SigSecretKey: sig.PrivateKey},
		keystore.PublicKeys{KEMPublicKey: kem.PublicKey, SigPublicKey: sig.PublicKey}
}

func TestInitializeThenGetSecretKeys(t *testing.T) {
	ks := keystore.New(keystore.NewMemoryStore(), keystore.NewMemoryMirror())
	secrets, public := newSecrets(t)

	require.NoError(t, ks.Initialize("alice", "correct horse battery staple1!", secrets, public))

	got, err := ks.GetSecretKeys()
	require.NoError(t, err)
	require.Equal(t, secrets.KEMSecretKey, got.KEMSecretKey)
	require.Equal(t, secrets.SigSecretKey, got.SigSecretKey)
}

func TestInitializeTwiceFails(t *testing.T) {
	ks := keystore.New(keystore.NewMemoryStore(), keystore.NewMemoryMirror())
	secrets, public := newSecrets(t)

	require.NoError(t, ks.Initialize("alice", "correct horse battery staple1!", secrets, public))
	err := ks.Initialize("alice", "correct horse battery staple1!", secrets, public)
	require.ErrorIs(t, err, keystore.ErrAlreadyInitialized)
}

// Unlock with the correct password restores access; unlock with a
// wrong password fails without corrupting stored data.
func TestUnlockWrongPasswordDoesNotCorruptStore(t *testing.T) {
	store := keystore.NewMemoryStore()
	ks := keystore.New(store, keystore.NewMemoryMirror())
	secrets, public := newSecrets(t)
	require.NoError(t, ks.Initialize("alice", "correct horse battery staple1!", secrets, public))
	require.NoError(t, ks.ClearSession())

	err := ks.Unlock("alice", "wrong password entirely1!")
	require.ErrorIs(t, err, keystore.ErrInvalidCredentials)

	require.NoError(t, ks.Unlock("alice", "correct horse battery staple1!"))
	got, err := ks.GetSecretKeys()
	require.NoError(t, err)
	require.Equal(t, secrets.KEMSecretKey, got.KEMSecretKey)
}

func TestUnlockUnknownUserFails(t *testing.T) {
	ks := keystore.New(keystore.NewMemoryStore(), keystore.NewMemoryMirror())
	err := ks.Unlock("nobody", "whatever-password-1!")
	require.ErrorIs(t, err, keystore.ErrInvalidCredentials)
}

// GetSecretKeys fails after 31 minutes of inactivity. A fresh
// Keystore handle sharing the same Store and SessionMirror models a page
// reload: the in-memory session is gone, so GetSecretKeys must fall back
// to the mirror, whose timestamp is now stale.
func TestGetSecretKeysFailsAfterInactivityTimeout(t *testing.T) {
	store := keystore.NewMemoryStore()
	mirror := keystore.NewMemoryMirror()
	secrets, public := newSecrets(t)

	ks := keystore.New(store, mirror)
	require.NoError(t, ks.Initialize("alice", "correct horse battery staple1!", secrets, public))

	username, kek, _, ok, err := mirror.Load()
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, mirror.Save(username, kek, time.Now().Add(-31*time.Minute)))

	ks2 := keystore.New(store, mirror)
	_, err = ks2.GetSecretKeys()
	require.ErrorIs(t, err, keystore.ErrSessionNotInitialized)

	// Expiry clears the mirror too, so the stale KEK copy is gone.
	_, _, _, ok, err = mirror.Load()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClearSessionZeroesAndRequiresUnlock(t *testing.T) {
	ks := keystore.New(keystore.NewMemoryStore(), keystore.NewMemoryMirror())
	secrets, public := newSecrets(t)
	require.NoError(t, ks.Initialize("alice", "correct horse battery staple1!", secrets, public))

	require.NoError(t, ks.ClearSession())

	_, err := ks.GetSecretKeys()
	require.ErrorIs(t, err, keystore.ErrSessionNotInitialized)
}

func TestGetPublicKeysDoesNotRequireUnlockedSession(t *testing.T) {
	ks := keystore.New(keystore.NewMemoryStore(), keystore.NewMemoryMirror())
	secrets, public := newSecrets(t)
	require.NoError(t, ks.Initialize("alice", "correct horse battery staple1!", secrets, public))
	require.NoError(t, ks.ClearSession())

	got, err := ks.GetPublicKeys("alice")
	require.NoError(t, err)
	require.Equal(t, public.KEMPublicKey, got.KEMPublicKey)
}

func TestSecretKeysZeroClearsMaterial(t *testing.T) {
	secrets := keystore.SecretKeys{KEMSecretKey: []byte{1, 2, 3}, SigSecretKey: []byte{4, 5, 6}}
	secrets.Zero()
	require.Equal(t, []byte{0, 0, 0}, secrets.KEMSecretKey)
	require.Equal(t, []byte{0, 0, 0}, secrets.SigSecretKey)
}

func TestOfflineQueuePruneDropsExpiredEntries(t *testing.T) {
	q := keystore.NewOfflineQueue()
	now := time.Now()
	q.Enqueue(1, []byte("envelope-a"), now.Add(-25*time.Hour))
	q.Enqueue(2, []byte("envelope-b"), now)

	removed := q.Prune(now)
	require.Equal(t, 1, removed)

	pending := q.Pending()
	require.Len(t, pending, 1)
	require.EqualValues(t, 2, pending[0].RecipientID)
}
