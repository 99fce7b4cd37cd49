// Package auth is the authentication boundary glue: a verification-only
// adapter for bearer tokens issued by the external authentication endpoint,
// an origin allowlist gate, and the registration-time password policy
// predicate. Token issuance, password hashing, and user registration are
// owned by that external endpoint and are not implemented here.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidToken covers malformed tokens, bad signatures, and any
	// other structural problem. The relay never reports which.
	ErrInvalidToken = errors.New("invalid token")
	// ErrTokenExpired is returned when exp has passed.
	ErrTokenExpired = errors.New("token expired")
	// ErrSubjectMismatch is returned when the token's user_id does not
	// match the user_id the connection claims to be.
	ErrSubjectMismatch = errors.New("token subject does not match claimed user_id")
)

// Claims carries the three fields a bearer token must hold: user_id,
// username, exp. UserID is an opaque integer, not a UUID. It embeds
// jwt.RegisteredClaims
// so the standard exp/iat/nbf validation in golang-jwt applies unchanged.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Validator verifies bearer tokens issued by the external auth endpoint.
// It holds only the shared HMAC signing secret; it never issues tokens.
type Validator struct {
	secret []byte
}

// NewValidator builds a Validator from the signing secret shared with
// the external auth endpoint. A missing secret means the process must
// refuse to start; that check belongs to the caller in cmd/relay, not
// here.
func NewValidator(secret []byte) *Validator {
	return &Validator{secret: secret}
}

// Validate parses and verifies a bearer token, checking both its
// cryptographic validity and its exp claim. On any failure it returns
// ErrInvalidToken or ErrTokenExpired and never a lower-level cause, so
// callers cannot distinguish sub-reasons in a response to the client.
func (v *Validator) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithExpirationRequired())

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == 0 {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// ValidateHandshake verifies the token, then verifies token.subject ==
// user_id from the handshake payload. A connection presenting a valid
// token for a different user is rejected even though the token itself
// checks out.
func (v *Validator) ValidateHandshake(tokenString string, claimedUserID int64) (*Claims, error) {
	claims, err := v.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.UserID != claimedUserID {
		return nil, ErrSubjectMismatch
	}
	return claims, nil
}

// IssueForTests mints a token for use by this module's own test suites
// exercising the relay/friends HTTP and WS surfaces. It is not part of
// the production token-issuance path, which belongs to the external
// auth endpoint.
func (v *Validator) IssueForTests(userID int64, username string, ttl time.Duration) (string, error) {
	claims := &Claims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
