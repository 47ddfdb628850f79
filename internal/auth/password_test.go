package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("Secret123")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "pbkdf2$sha256$"))

	assert.NoError(t, VerifyPassword(hash, "Secret123"))
	assert.ErrorIs(t, VerifyPassword(hash, "wrong"), ErrInvalidCredentials)
}

func TestHashPasswordSalted(t *testing.T) {
	first, err := HashPassword("Secret123")
	require.NoError(t, err)
	second, err := HashPassword("Secret123")
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "two hashes of the same password should use distinct salts")
}

func TestVerifyPasswordMalformedHashFailsClosed(t *testing.T) {
	cases := []struct {
		name string
		hash string
	}{
		{name: "empty", hash: ""},
		{name: "wrong field count", hash: "pbkdf2$sha256$120000$onlyfour"},
		{name: "unknown algorithm", hash: "argon2$sha256$120000$c2FsdA$a2V5"},
		{name: "bad iterations", hash: "pbkdf2$sha256$zero$c2FsdA$a2V5"},
		{name: "bad salt encoding", hash: "pbkdf2$sha256$120000$!!!$a2V5"},
		{name: "bad key encoding", hash: "pbkdf2$sha256$120000$c2FsdA$!!!"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.ErrorIs(t, VerifyPassword(tc.hash, "anything"), ErrInvalidCredentials)
		})
	}
}
