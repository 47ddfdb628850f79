package auth

import (
	"strings"

	"golang.org/x/text/secure/precis"
)

// NormalizeUsername canonicalizes a username with the PRECIS UsernameCaseMapped
// profile (Unicode-aware case folding). Inputs the profile rejects fall back to
// a plain lowercase trim so lookups stay deterministic.
func NormalizeUsername(s string) string {
	trimmed := strings.TrimSpace(s)
	mapped, err := precis.UsernameCaseMapped.String(trimmed)
	if err != nil {
		return strings.ToLower(trimmed)
	}
	return mapped
}

// NormalizeEmail canonicalizes an email address for exact-match lookup.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeLogin canonicalizes a username-or-email login field.
func NormalizeLogin(s string) string {
	if strings.Contains(s, "@") {
		return NormalizeEmail(s)
	}
	return NormalizeUsername(s)
}
