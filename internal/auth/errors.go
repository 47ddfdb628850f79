package auth

import "errors"

var (
	// ErrNotFound indicates the login does not match any account.
	ErrNotFound = errors.New("account not found")
	// ErrInvalidCredentials indicates the password check failed.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized covers every token failure: malformed, bad signature,
	// expired, revoked, or reused. Callers must not distinguish the cause.
	ErrUnauthorized = errors.New("unauthorized")
)
