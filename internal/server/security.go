package server

import (
	"net/http"
	"strings"
)

const (
	defaultReferrerPolicy    = "no-referrer"
	defaultPermissionsPolicy = "camera=(), microphone=(), geolocation=(), autoplay=(self)"
)

// SecurityConfig shapes the hardening headers applied to every response. The
// zero value locks the API down for first-party use only; EmbedOrigins opens
// watch pages up to trusted embedding hosts and MediaSources admits an
// external CDN for stored video files.
type SecurityConfig struct {
	// EmbedOrigins lists sites allowed to frame the player, e.g.
	// "https://blog.example.com". Empty means no embedding at all.
	EmbedOrigins []string
	// MediaSources extends the media-src directive beyond the API host,
	// typically with the CDN that fronts the media store.
	MediaSources      []string
	ReferrerPolicy    string
	PermissionsPolicy string
}

// contentSecurityPolicy assembles the CSP from the configured embed and media
// sources. Directive order is stable so callers can match on substrings.
func (cfg SecurityConfig) contentSecurityPolicy() string {
	frameAncestors := "'none'"
	if len(cfg.EmbedOrigins) > 0 {
		frameAncestors = strings.Join(cfg.EmbedOrigins, " ")
	}
	mediaSources := "'self' blob:"
	if len(cfg.MediaSources) > 0 {
		mediaSources += " " + strings.Join(cfg.MediaSources, " ")
	}
	directives := []string{
		"default-src 'self'",
		"img-src 'self' data:",
		"media-src " + mediaSources,
		"script-src 'self'",
		"style-src 'self'",
		"object-src 'none'",
		"base-uri 'self'",
		"form-action 'self'",
		"frame-ancestors " + frameAncestors,
	}
	return strings.Join(directives, "; ")
}

func securityHeadersMiddleware(cfg SecurityConfig, next http.Handler) http.Handler {
	csp := cfg.contentSecurityPolicy()
	referrer := cfg.ReferrerPolicy
	if referrer == "" {
		referrer = defaultReferrerPolicy
	}
	permissions := cfg.PermissionsPolicy
	if permissions == "" {
		permissions = defaultPermissionsPolicy
	}
	// X-Frame-Options cannot express an allow list; once embed origins are
	// configured the frame-ancestors directive governs alone.
	frameOptions := "DENY"
	if len(cfg.EmbedOrigins) > 0 {
		frameOptions = ""
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers := w.Header()
		headers.Set("Content-Security-Policy", csp)
		headers.Set("X-Content-Type-Options", "nosniff")
		headers.Set("Referrer-Policy", referrer)
		headers.Set("Permissions-Policy", permissions)
		if frameOptions != "" {
			headers.Set("X-Frame-Options", frameOptions)
		}
		next.ServeHTTP(w, r)
	})
}
