package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey int

const claimsContextKey contextKey = 0

// RequireToken is HTTP middleware for the friends/keys surface:
// every route it wraps requires a valid, unexpired bearer token, and the
// resulting Claims are attached to the request context for downstream
// handlers to read with ClaimsFromContext.
func (v *Validator) RequireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := v.fromRequest(r)
		if err != nil {
			http.Error(w, "authentication error", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), claimsContextKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (v *Validator) fromRequest(r *http.Request) (*Claims, error) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return nil, ErrInvalidToken
	}
	return v.Validate(strings.TrimPrefix(header, prefix))
}

// ClaimsFromContext retrieves the Claims attached by RequireToken. The
// second return value is false if no middleware ran, which callers
// should treat as a programming error, not a client-facing one.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*Claims)
	return claims, ok
}
