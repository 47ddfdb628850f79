package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cliptube/internal/models"
)

// CredentialStore defines the persistence contract the session manager needs.
// Each call is logically atomic; RotateRefreshToken in particular must be a
// compare-and-swap so concurrent refreshes cannot both succeed.
type CredentialStore interface {
	FindUserByLogin(ctx context.Context, login string) (models.User, bool, error)
	FindUserByID(ctx context.Context, id string) (models.User, bool, error)
	SetRefreshToken(ctx context.Context, userID, token string, expiresAt time.Time) error
	RotateRefreshToken(ctx context.Context, userID, previous, next string, expiresAt time.Time) (bool, error)
	ClearRefreshToken(ctx context.Context, userID string) error
}

// TokenPair bundles the two credentials returned by Login and Refresh.
type TokenPair struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// SessionOption configures a SessionManager instance.
type SessionOption func(*SessionManager)

// WithPasswordVerifier overrides the password check, primarily so tests can
// avoid the PBKDF2 cost.
func WithPasswordVerifier(verify func(encodedHash, candidate string) error) SessionOption {
	return func(m *SessionManager) {
		if verify != nil {
			m.verifyPassword = verify
		}
	}
}

// SessionManager orchestrates login, request authentication, refresh-token
// rotation, and logout against a credential store.
//
// An access token is stateless: validity is signature plus expiry, never a
// storage lookup. A refresh token is stateful: beyond its own signature and
// expiry it must exactly match the value currently stored for the user, which
// is what makes rotation and logout-revocation effective.
type SessionManager struct {
	store          CredentialStore
	tokens         *TokenIssuer
	verifyPassword func(encodedHash, candidate string) error
}

// NewSessionManager wires a session manager over the provided store and
// token issuer.
func NewSessionManager(store CredentialStore, tokens *TokenIssuer, opts ...SessionOption) (*SessionManager, error) {
	if store == nil {
		return nil, fmt.Errorf("credential store is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token issuer is required")
	}
	manager := &SessionManager{
		store:          store,
		tokens:         tokens,
		verifyPassword: VerifyPassword,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(manager)
		}
	}
	return manager, nil
}

// Login verifies the credentials, issues a fresh token pair, and stores the
// refresh token on the user record. Any previously stored refresh token is
// overwritten and therefore invalidated: at most one refresh token per user
// is ever valid.
func (m *SessionManager) Login(ctx context.Context, login, password string) (TokenPair, models.User, error) {
	user, ok, err := m.store.FindUserByLogin(ctx, NormalizeLogin(login))
	if err != nil {
		return TokenPair{}, models.User{}, fmt.Errorf("find user: %w", err)
	}
	if !ok {
		return TokenPair{}, models.User{}, ErrNotFound
	}
	if err := m.verifyPassword(user.PasswordHash, password); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return TokenPair{}, models.User{}, ErrInvalidCredentials
		}
		return TokenPair{}, models.User{}, fmt.Errorf("verify password: %w", err)
	}
	pair, err := m.issuePair(user)
	if err != nil {
		return TokenPair{}, models.User{}, err
	}
	if err := m.store.SetRefreshToken(ctx, user.ID, pair.RefreshToken, pair.RefreshExpiresAt); err != nil {
		return TokenPair{}, models.User{}, fmt.Errorf("store refresh token: %w", err)
	}
	return pair, user, nil
}

// Authenticate validates an access token and returns the live user record.
// Verification short-circuits before any storage access; the user lookup
// afterwards guards against tokens issued for since-deleted accounts.
func (m *SessionManager) Authenticate(ctx context.Context, accessToken string) (models.User, error) {
	claims, err := m.tokens.VerifyAccessToken(accessToken)
	if err != nil {
		return models.User{}, ErrUnauthorized
	}
	user, ok, err := m.store.FindUserByID(ctx, claims.Subject)
	if err != nil {
		return models.User{}, fmt.Errorf("find user: %w", err)
	}
	if !ok {
		return models.User{}, ErrUnauthorized
	}
	return user, nil
}

// Refresh rotates a refresh token: the presented token must carry a valid
// signature and expiry and must exactly match the stored value. On success a
// brand-new pair is issued and the stored value swapped atomically, so the
// old refresh token is permanently unusable even before its expiry.
func (m *SessionManager) Refresh(ctx context.Context, refreshToken string) (TokenPair, models.User, error) {
	claims, err := m.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		return TokenPair{}, models.User{}, ErrUnauthorized
	}
	user, ok, err := m.store.FindUserByID(ctx, claims.Subject)
	if err != nil {
		return TokenPair{}, models.User{}, fmt.Errorf("find user: %w", err)
	}
	if !ok {
		return TokenPair{}, models.User{}, ErrUnauthorized
	}
	pair, err := m.issuePair(user)
	if err != nil {
		return TokenPair{}, models.User{}, err
	}
	swapped, err := m.store.RotateRefreshToken(ctx, user.ID, refreshToken, pair.RefreshToken, pair.RefreshExpiresAt)
	if err != nil {
		return TokenPair{}, models.User{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	if !swapped {
		// Stored value differs: the token was already rotated, cleared by
		// logout, or lost a concurrent refresh race.
		return TokenPair{}, models.User{}, ErrUnauthorized
	}
	return pair, user, nil
}

// Logout clears the stored refresh token. Logging out an already-logged-out
// user is a no-op success.
func (m *SessionManager) Logout(ctx context.Context, userID string) error {
	if userID == "" {
		return nil
	}
	if err := m.store.ClearRefreshToken(ctx, userID); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}

func (m *SessionManager) issuePair(user models.User) (TokenPair, error) {
	access, accessExp, err := m.tokens.IssueAccessToken(user)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue access token: %w", err)
	}
	refresh, refreshExp, err := m.tokens.IssueRefreshToken(user)
	if err != nil {
		return TokenPair{}, fmt.Errorf("issue refresh token: %w", err)
	}
	return TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}
