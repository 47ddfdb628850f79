package api

import (
	"net/http"
	"strings"
	"time"
)

const (
	accessTokenCookie  = "accessToken"
	refreshTokenCookie = "refreshToken"
)

type AuthCookieSecureMode int

const (
	AuthCookieSecureAuto AuthCookieSecureMode = iota
	AuthCookieSecureAlways
)

// AuthCookiePolicy controls the flags on the token cookies. Auto mode
// derives Secure from the request so local plain-HTTP development still
// works.
type AuthCookiePolicy struct {
	SameSite   http.SameSite
	SecureMode AuthCookieSecureMode
}

func DefaultAuthCookiePolicy() AuthCookiePolicy {
	return AuthCookiePolicy{
		SameSite:   http.SameSiteStrictMode,
		SecureMode: AuthCookieSecureAuto,
	}
}

func (p AuthCookiePolicy) secure(r *http.Request) bool {
	if p.SecureMode == AuthCookieSecureAlways {
		return true
	}
	return isSecureRequest(r)
}

func (h *Handler) cookiePolicy() AuthCookiePolicy {
	policy := h.CookiePolicy
	if policy.SameSite == 0 {
		policy.SameSite = http.SameSiteStrictMode
	}
	return policy
}

func setTokenCookie(w http.ResponseWriter, r *http.Request, name, token string, expires time.Time, policy AuthCookiePolicy) {
	if token == "" {
		return
	}
	maxAge := int(time.Until(expires).Seconds())
	if maxAge < 0 {
		maxAge = 0
	}
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    token,
		Path:     "/",
		Expires:  expires.UTC(),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   policy.secure(r),
		SameSite: policy.SameSite,
	})
}

func clearTokenCookie(w http.ResponseWriter, r *http.Request, name string, policy AuthCookiePolicy) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0).UTC(),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   policy.secure(r),
		SameSite: policy.SameSite,
	})
}

func (h *Handler) setAuthCookies(w http.ResponseWriter, r *http.Request, accessToken string, accessExpires time.Time, refreshToken string, refreshExpires time.Time) {
	policy := h.cookiePolicy()
	setTokenCookie(w, r, accessTokenCookie, accessToken, accessExpires, policy)
	setTokenCookie(w, r, refreshTokenCookie, refreshToken, refreshExpires, policy)
}

// ClearAuthCookies drops both token cookies from the response.
func (h *Handler) ClearAuthCookies(w http.ResponseWriter, r *http.Request) {
	policy := h.cookiePolicy()
	clearTokenCookie(w, r, accessTokenCookie, policy)
	clearTokenCookie(w, r, refreshTokenCookie, policy)
}

func isSecureRequest(r *http.Request) bool {
	if r == nil {
		return false
	}
	if r.TLS != nil {
		return true
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		for _, p := range strings.Split(proto, ",") {
			if strings.EqualFold(strings.TrimSpace(p), "https") {
				return true
			}
		}
	}
	if r.URL != nil && strings.EqualFold(r.URL.Scheme, "https") {
		return true
	}
	return false
}
