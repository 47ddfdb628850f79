package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"cliptube/internal/models"
)

const (
	// DefaultAccessTTL bounds access tokens when no TTL is configured.
	DefaultAccessTTL = 15 * time.Minute
	// DefaultRefreshTTL bounds refresh tokens when no TTL is configured.
	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// TokenConfig carries the signing secrets and expiry windows for both token
// kinds. Secrets must differ so an access token can never be replayed as a
// refresh token.
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
}

// Claims is the signed identity payload carried by both token kinds.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"fullName,omitempty"`
}

// TokenIssuer signs and verifies access and refresh tokens. Construct with
// NewTokenIssuer; the zero value is not usable.
type TokenIssuer struct {
	cfg TokenConfig
	now func() time.Time
}

// NewTokenIssuer validates the configuration and applies default TTLs.
func NewTokenIssuer(cfg TokenConfig) (*TokenIssuer, error) {
	if len(cfg.AccessSecret) == 0 || len(cfg.RefreshSecret) == 0 {
		return nil, fmt.Errorf("token secrets are required")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, fmt.Errorf("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = DefaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = DefaultRefreshTTL
	}
	return &TokenIssuer{cfg: cfg, now: time.Now}, nil
}

// IssueAccessToken signs a short-lived access token for the user.
func (t *TokenIssuer) IssueAccessToken(user models.User) (string, time.Time, error) {
	return t.issue(user, t.cfg.AccessSecret, t.cfg.AccessTTL)
}

// IssueRefreshToken signs a long-lived refresh token for the user.
func (t *TokenIssuer) IssueRefreshToken(user models.User) (string, time.Time, error) {
	return t.issue(user, t.cfg.RefreshSecret, t.cfg.RefreshTTL)
}

func (t *TokenIssuer) issue(user models.User, secret []byte, ttl time.Duration) (string, time.Time, error) {
	now := t.now().UTC()
	expiresAt := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject: user.ID,
			// A random ID keeps two tokens for the same user distinct even
			// when issued within the same second.
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Username: user.Username,
		Email:    user.Email,
		FullName: user.FullName,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// VerifyAccessToken validates signature and expiry against the access secret.
func (t *TokenIssuer) VerifyAccessToken(token string) (Claims, error) {
	return t.verify(token, t.cfg.AccessSecret)
}

// VerifyRefreshToken validates signature and expiry against the refresh secret.
func (t *TokenIssuer) VerifyRefreshToken(token string) (Claims, error) {
	return t.verify(token, t.cfg.RefreshSecret)
}

// verify collapses every parse, signature, and expiry failure into
// ErrUnauthorized so callers cannot leak which check failed.
func (t *TokenIssuer) verify(token string, secret []byte) (Claims, error) {
	claims := Claims{}
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil || !parsed.Valid || claims.Subject == "" {
		return Claims{}, ErrUnauthorized
	}
	return claims, nil
}
