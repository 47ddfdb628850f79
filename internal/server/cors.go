package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

const (
	corsAllowMethods  = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	corsAllowHeaders  = "Authorization, Content-Type, X-Request-Id"
	corsMaxAgeSeconds = "600"
)

// CORSConfig declares the origins allowed to call the API across domains.
// StudioOrigins serve the creator studio UI and ViewerOrigins the public
// watch pages. With both lists empty only same-origin requests get through.
type CORSConfig struct {
	StudioOrigins []string
	ViewerOrigins []string
}

// corsPolicy maps each normalized origin to the surface it was configured
// for, which keeps rejections and config errors attributable.
type corsPolicy struct {
	surfaces map[string]string
}

func newCORSPolicy(cfg CORSConfig) (corsPolicy, error) {
	policy := corsPolicy{surfaces: make(map[string]string)}
	for surface, origins := range map[string][]string{
		"studio": cfg.StudioOrigins,
		"viewer": cfg.ViewerOrigins,
	} {
		for _, origin := range origins {
			normalized, err := normalizeOrigin(origin)
			if err != nil {
				return corsPolicy{}, fmt.Errorf("%s origin %q: %w", surface, origin, err)
			}
			if normalized == "" {
				continue
			}
			policy.surfaces[normalized] = surface
		}
	}
	return policy, nil
}

// normalizeOrigin lowercases scheme and host so header comparisons are
// case-insensitive. A blank origin normalizes to "" without error.
func normalizeOrigin(origin string) (string, error) {
	origin = strings.TrimSpace(origin)
	if origin == "" {
		return "", nil
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return "", err
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("origin must include scheme and host")
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), nil
}

// surfaceFor resolves which configured surface the Origin header belongs to.
// An Origin matching the server's own host counts as same-origin.
func (p corsPolicy) surfaceFor(origin string, r *http.Request) (string, bool) {
	normalized, err := normalizeOrigin(origin)
	if err != nil || normalized == "" {
		return "", false
	}
	if surface, ok := p.surfaces[normalized]; ok {
		return surface, true
	}
	if requestOrigin(r) == normalized {
		return "same-origin", true
	}
	return "", false
}

func requestOrigin(r *http.Request) string {
	host := strings.ToLower(strings.TrimSpace(r.Host))
	if host == "" {
		return ""
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + host
}

func corsMiddleware(policy corsPolicy, logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := strings.TrimSpace(r.Header.Get("Origin"))
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		surface, ok := policy.surfaceFor(origin, r)
		if !ok {
			if logger != nil {
				logger.Warn("rejected cross-origin request", "origin", origin, "path", r.URL.Path)
			}
			http.Error(w, "origin not allowed", http.StatusForbidden)
			return
		}

		headers := w.Header()
		headers.Add("Vary", "Origin")
		headers.Set("Access-Control-Allow-Origin", origin)
		headers.Set("Access-Control-Allow-Credentials", "true")
		headers.Set("Access-Control-Expose-Headers", "Content-Disposition, X-Request-Id")

		if r.Method == http.MethodOptions {
			if r.Header.Get("Access-Control-Request-Method") != "" {
				headers.Set("Access-Control-Allow-Methods", corsAllowMethods)
				headers.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				headers.Set("Access-Control-Max-Age", corsMaxAgeSeconds)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if logger != nil && surface != "same-origin" {
			logger.Debug("cross-origin request", "origin", origin, "surface", surface)
		}
		next.ServeHTTP(w, r)
	})
}
