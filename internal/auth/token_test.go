package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cliptube/internal/models"
)

func testTokenConfig() TokenConfig {
	return TokenConfig{
		AccessSecret:  []byte("access-secret-for-tests"),
		RefreshSecret: []byte("refresh-secret-for-tests"),
		AccessTTL:     time.Minute,
		RefreshTTL:    time.Hour,
	}
}

func testUser() models.User {
	return models.User{
		ID:       "user-1",
		Username: "alice",
		Email:    "alice@example.com",
		FullName: "Alice Example",
	}
}

func TestNewTokenIssuerValidation(t *testing.T) {
	_, err := NewTokenIssuer(TokenConfig{})
	assert.Error(t, err)

	same := []byte("shared-secret")
	_, err = NewTokenIssuer(TokenConfig{AccessSecret: same, RefreshSecret: same})
	assert.Error(t, err, "identical secrets must be rejected")
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	issuer, err := NewTokenIssuer(testTokenConfig())
	require.NoError(t, err)

	token, expiresAt, err := issuer.IssueAccessToken(testUser())
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := issuer.VerifyAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, "alice@example.com", claims.Email)
	assert.Equal(t, "Alice Example", claims.FullName)
}

func TestTokenKindsAreNotInterchangeable(t *testing.T) {
	issuer, err := NewTokenIssuer(testTokenConfig())
	require.NoError(t, err)

	access, _, err := issuer.IssueAccessToken(testUser())
	require.NoError(t, err)
	refresh, _, err := issuer.IssueRefreshToken(testUser())
	require.NoError(t, err)

	_, err = issuer.VerifyRefreshToken(access)
	assert.ErrorIs(t, err, ErrUnauthorized)
	_, err = issuer.VerifyAccessToken(refresh)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRepeatedIssueYieldsDistinctTokens(t *testing.T) {
	issuer, err := NewTokenIssuer(testTokenConfig())
	require.NoError(t, err)

	first, _, err := issuer.IssueAccessToken(testUser())
	require.NoError(t, err)
	second, _, err := issuer.IssueAccessToken(testUser())
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestVerifyExpiredToken(t *testing.T) {
	issuer, err := NewTokenIssuer(testTokenConfig())
	require.NoError(t, err)

	issued := time.Now().Add(-2 * time.Hour)
	issuer.now = func() time.Time { return issued }
	token, _, err := issuer.IssueAccessToken(testUser())
	require.NoError(t, err)

	issuer.now = time.Now
	_, err = issuer.VerifyAccessToken(token)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerifyGarbageToken(t *testing.T) {
	issuer, err := NewTokenIssuer(testTokenConfig())
	require.NoError(t, err)

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := issuer.VerifyAccessToken(token)
		assert.ErrorIs(t, err, ErrUnauthorized)
	}
}
