package auth

import (
	"errors"
	"strings"
	"unicode"
)

// ErrWeakPassword is returned when a password fails the registration
// policy.
var ErrWeakPassword = errors.New("password does not meet minimum policy")

const specialChars = "@$!%*?&"

// ValidatePasswordPolicy enforces the registration-time policy: at
// least 8 characters, mixed case, a digit, and one of @$!%*?&. The
// external auth endpoint is the actual enforcement point; this function
// is exported as the contract so that endpoint, and this module's own
// tests, share one definition instead of re-deriving it.
func ValidatePasswordPolicy(password string) error {
	if len(password) < 8 {
		return ErrWeakPassword
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case strings.ContainsRune(specialChars, r):
			hasSpecial = true
		}
	}

	if !hasUpper || !hasLower || !hasDigit || !hasSpecial {
		return ErrWeakPassword
	}
	return nil
}
