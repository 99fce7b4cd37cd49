// Package models holds the plain-struct data types shared across package
// boundaries that do not already own their own type (internal/friends
// owns Friendship/FriendRequest, internal/envelope owns the wire bundle,
// internal/relay owns its socket event DTOs). What remains here is
// the User projection and the envelope-adjacent shapes the HTTP
// surface serializes.
package models

// User is a read-only projection: this module never writes this
// record (registration is owned by the external auth service) and
// never sees secret keys, which exist only as encrypted blobs in the
// client keystore (internal/keystore).
//
// Invariant: (ID, KEMPublicKey, SigPublicKey) is immutable post-
// registration.
type User struct {
	ID           int64  `json:"user_id"`
	Username     string `json:"username"`
	KEMPublicKey []byte `json:"kem_public_key"`
	SigPublicKey []byte `json:"sig_public_key"`
}

// KeyBundle is the response shape for GET /users/{id}/keys, with both
// keys base64-encoded for the wire.
type KeyBundle struct {
	KEMPublicKey string `json:"kem_public_key"`
	SigPublicKey string `json:"sig_public_key"`
}

// AuthResponse is the one-time login payload: the external auth
// endpoint returns it exactly once, and the secret keys it
// carries are the seed for the client keystore's Initialize call. This
// module never issues this response (the endpoint is external); the
// shape is recorded here only as the contract a client-side caller of
// internal/keystore.Initialize consumes.
type AuthResponse struct {
	Token    string `json:"token"`
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	Keys     struct {
		KEMPublic string `json:"kem_public"`
		SigPublic string `json:"sig_public"`
		KEMSecret string `json:"kem_secret"`
		SigSecret string `json:"sig_secret"`
	} `json:"keys"`
}

// RateLimitInfo is the retry hint returned alongside a 429 from the
// HTTP surface. RetryAfter is in seconds, matching the Retry-After
// header the response also carries.
type RateLimitInfo struct {
	RetryAfter int64 `json:"retry_after_seconds"`
}
