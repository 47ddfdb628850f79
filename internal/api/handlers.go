package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"cliptube/internal/auth"
	"cliptube/internal/media"
	"cliptube/internal/observability/metrics"
	"cliptube/internal/storage"
)

// Handler owns the HTTP surface. Routes are registered in internal/server;
// each exported method handles one path prefix and dispatches on verb.
type Handler struct {
	Store        storage.Repository
	Sessions     *auth.SessionManager
	Media        media.Store
	CookiePolicy AuthCookiePolicy
	// Metrics receives the auth and view counters. The HTTP series are
	// recorded by the server middleware, not here. Nil disables recording.
	Metrics *metrics.Recorder
}

func NewHandler(store storage.Repository, sessions *auth.SessionManager, mediaStore media.Store) *Handler {
	return &Handler{
		Store:        store,
		Sessions:     sessions,
		Media:        mediaStore,
		CookiePolicy: DefaultAuthCookiePolicy(),
	}
}

// envelope is the uniform response body: data rides along on success,
// failures carry only status and message.
type envelope struct {
	Status  int    `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeData(w http.ResponseWriter, status int, data any, message string) {
	if message == "" {
		message = "success"
	}
	writeJSON(w, status, envelope{Status: status, Data: data, Message: message})
}

func writeError(w http.ResponseWriter, status int, err error) {
	message := "internal server error"
	if err != nil && status < http.StatusInternalServerError {
		message = err.Error()
	}
	writeJSON(w, status, envelope{Status: status, Message: message})
}

// WriteError is the exported form used by middleware outside this package.
func WriteError(w http.ResponseWriter, status int, err error) {
	writeError(w, status, err)
}

// writeDomainError maps sentinel errors from storage and auth onto HTTP
// statuses. Anything unrecognized is treated as a validation failure: the
// repositories surface those as plain errors.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound) || errors.Is(err, auth.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err)
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, err)
	case errors.Is(err, storage.ErrDuplicate):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, storage.ErrSelfSubscription):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusBadRequest, err)
	}
}

func (h *Handler) observeAuth(action, outcome string) {
	if h.Metrics != nil {
		h.Metrics.ObserveAuthEvent(action, outcome)
	}
}

func (h *Handler) observeVideoView() {
	if h.Metrics != nil {
		h.Metrics.ObserveVideoView()
	}
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func decodeJSON(r *http.Request, dest any) error {
	if r.Body == nil {
		return errors.New("request body is required")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

// pathSegments splits the request path after prefix into its non-empty
// segments, e.g. /api/videos/{id}/comments -> ["{id}", "comments"].
func pathSegments(r *http.Request, prefix string) []string {
	trimmed := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	status := "ok"
	code := http.StatusOK
	if err := h.Store.Ping(r.Context()); err != nil {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}
	writeData(w, code, map[string]string{"status": status}, "health check")
}
