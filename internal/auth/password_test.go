package auth_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/quantumshield/relay/internal/auth"
)

func TestValidatePasswordPolicy(t *testing.T) {
	cases := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid", "Password1!", false},
		{"too short", "Pw1!", true},
		{"no uppercase", "password1!", true},
		{"no lowercase", "PASSWORD1!", true},
		{"no digit", "Password!", true},
		{"no special char", "Password1", true},
		{"all requirements, longer", "CorrectHorse99@", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := auth.ValidatePasswordPolicy(tc.password)
			if tc.wantErr {
				require.ErrorIs(t, err, auth.ErrWeakPassword)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
