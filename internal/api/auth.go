package api

import (
	"context"
	"net/http"
	"strings"

	"cliptube/internal/auth"
	"cliptube/internal/models"
)

type contextKey string

const userContextKey contextKey = "authenticatedUser"

// ContextWithUser stores the authenticated user in the provided context.
func ContextWithUser(ctx context.Context, user models.User) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// UserFromContext retrieves the authenticated user from context if present.
func UserFromContext(ctx context.Context) (models.User, bool) {
	user, ok := ctx.Value(userContextKey).(models.User)
	return user, ok
}

// ExtractAccessToken reads the access token from the Authorization header or
// the access cookie, header taking precedence.
func ExtractAccessToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	if cookie, err := r.Cookie(accessTokenCookie); err == nil {
		return cookie.Value
	}
	return ""
}

// AuthenticateRequest resolves the access token on the request to a user.
// Returns auth.ErrUnauthorized for any token failure.
func (h *Handler) AuthenticateRequest(r *http.Request) (models.User, error) {
	token := ExtractAccessToken(r)
	if token == "" {
		return models.User{}, auth.ErrUnauthorized
	}
	return h.Sessions.Authenticate(r.Context(), token)
}

// AttachUser resolves the access token, if any, and stores the user on the
// request context. Requests without a valid token proceed anonymously;
// handlers that need authentication reject them via requireUser.
func (h *Handler) AttachUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if user, err := h.AuthenticateRequest(r); err == nil {
			r = r.WithContext(ContextWithUser(r.Context(), user))
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) requireUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, auth.ErrUnauthorized)
		return models.User{}, false
	}
	return user, true
}
