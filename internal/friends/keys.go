package friends

import (
	"database/sql"
	"fmt"
)

// UserKeys is the read-only public key projection of a user
// (kem_public_key, sig_public_key). Secret keys never live server-side;
// they exist only as encrypted blobs in the client keystore
// (internal/keystore).
type UserKeys struct {
	KEMPublicKey []byte
	SigPublicKey []byte
}

// Keys implements GET /users/{id}/keys: a flat, static lookup against
// the immutable per-user key pair.
func (s *Service) Keys(userID int64) (*UserKeys, error) {
	var keys UserKeys
	err := s.db.QueryRow(
		`SELECT kem_public_key, sig_public_key FROM users WHERE id = $1`,
		userID,
	).Scan(&keys.KEMPublicKey, &keys.SigPublicKey)
	if err == sql.ErrNoRows {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("friends: lookup user keys: %w", err)
	}
	return &keys, nil
}

// SigPublicKey implements relay.KeyLookup: the relay calls this to fetch
// the sender's registered signature public key before verifying an
// envelope signature. The relay never trusts a client-supplied key.
func (s *Service) SigPublicKey(userID int64) ([]byte, error) {
	keys, err := s.Keys(userID)
	if err != nil {
		return nil, err
	}
	return keys.SigPublicKey, nil
}
