package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"cliptube/internal/auth"
	"cliptube/internal/media"
	"cliptube/internal/models"
	"cliptube/internal/storage"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"fullName"`
	Password string `json:"password"`
}

type loginRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

type updateAccountRequest struct {
	FullName *string `json:"fullName"`
}

type userResponse struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Email         string `json:"email"`
	FullName      string `json:"fullName"`
	AvatarURL     string `json:"avatarUrl,omitempty"`
	CoverImageURL string `json:"coverImageUrl,omitempty"`
	CreatedAt     string `json:"createdAt"`
}

type authResponse struct {
	User             userResponse `json:"user"`
	AccessToken      string       `json:"accessToken"`
	RefreshToken     string       `json:"refreshToken"`
	AccessExpiresAt  string       `json:"accessExpiresAt"`
	RefreshExpiresAt string       `json:"refreshExpiresAt"`
}

func newUserResponse(user models.PublicUser) userResponse {
	return userResponse{
		ID:            user.ID,
		Username:      user.Username,
		Email:         user.Email,
		FullName:      user.FullName,
		AvatarURL:     user.AvatarURL,
		CoverImageURL: user.CoverImageURL,
		CreatedAt:     user.CreatedAt.Format(time.RFC3339Nano),
	}
}

func newAuthResponse(user models.User, pair auth.TokenPair) authResponse {
	return authResponse{
		User:             newUserResponse(user.Public()),
		AccessToken:      pair.AccessToken,
		RefreshToken:     pair.RefreshToken,
		AccessExpiresAt:  pair.AccessExpiresAt.UTC().Format(time.RFC3339Nano),
		RefreshExpiresAt: pair.RefreshExpiresAt.UTC().Format(time.RFC3339Nano),
	}
}

// Register creates an account. JSON bodies carry the credential fields;
// multipart forms may additionally include avatar and coverImage files, which
// are relayed to the media store before the record is created.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	params := storage.CreateUserParams{}
	if strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data") {
		params.Username = r.FormValue("username")
		params.Email = r.FormValue("email")
		params.FullName = r.FormValue("fullName")
		params.Password = r.FormValue("password")
		avatarURL, err := h.saveFormImage(r, "avatar", media.KindAvatar)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		coverURL, err := h.saveFormImage(r, "coverImage", media.KindCover)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		params.AvatarURL = avatarURL
		params.CoverImageURL = coverURL
	} else {
		var req registerRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		params.Username = req.Username
		params.Email = req.Email
		params.FullName = req.FullName
		params.Password = req.Password
	}
	user, err := h.Store.CreateUser(r.Context(), params)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusCreated, newUserResponse(user.Public()), "user registered")
}

// saveFormImage relays an optional multipart file field to the media store
// and returns the stored URL, or "" when the field is absent.
func (h *Handler) saveFormImage(r *http.Request, field string, kind media.Kind) (string, error) {
	file, header, err := r.FormFile(field)
	if err != nil {
		return "", nil
	}
	defer file.Close()
	if h.Media == nil {
		return "", fmt.Errorf("media uploads not configured")
	}
	obj, err := h.Media.Save(r.Context(), kind, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		return "", err
	}
	return obj.URL, nil
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	login := req.Username
	if login == "" {
		login = req.Email
	}
	if login == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("username or email is required"))
		return
	}

	pair, user, err := h.Sessions.Login(r.Context(), login, req.Password)
	if err != nil {
		h.observeAuth("login", "failure")
		writeDomainError(w, err)
		return
	}
	h.observeAuth("login", "success")
	h.setAuthCookies(w, r, pair.AccessToken, pair.AccessExpiresAt, pair.RefreshToken, pair.RefreshExpiresAt)
	writeData(w, http.StatusOK, newAuthResponse(user, pair), "logged in")
}

// Refresh rotates the refresh token. The token comes from the request body
// or, failing that, the refresh cookie. The old token is invalid afterwards.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	// The body is optional: clients that rely on the cookie send none.
	var req refreshRequest
	_ = decodeJSON(r, &req)
	token := req.RefreshToken
	if token == "" {
		if cookie, err := r.Cookie(refreshTokenCookie); err == nil {
			token = cookie.Value
		}
	}
	if token == "" {
		h.observeAuth("refresh", "failure")
		writeError(w, http.StatusUnauthorized, auth.ErrUnauthorized)
		return
	}

	pair, user, err := h.Sessions.Refresh(r.Context(), token)
	if err != nil {
		h.observeAuth("refresh", "failure")
		writeDomainError(w, err)
		return
	}
	h.observeAuth("refresh", "success")
	h.setAuthCookies(w, r, pair.AccessToken, pair.AccessExpiresAt, pair.RefreshToken, pair.RefreshExpiresAt)
	writeData(w, http.StatusOK, newAuthResponse(user, pair), "token refreshed")
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if err := h.Sessions.Logout(r.Context(), user.ID); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	h.observeAuth("logout", "success")
	h.ClearAuthCookies(w, r)
	writeData(w, http.StatusOK, nil, "logged out")
}

// Me serves the authenticated account surface under /api/users/me.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	segments := pathSegments(r, "/api/users/me")
	if len(segments) == 0 {
		switch r.Method {
		case http.MethodGet:
			writeData(w, http.StatusOK, newUserResponse(user.Public()), "current user")
		case http.MethodPatch:
			h.updateAccount(w, r, user)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPatch)
		}
		return
	}

	switch segments[0] {
	case "password":
		h.changePassword(w, r, user)
	case "avatar":
		h.updateUserImage(w, r, user, media.KindAvatar)
	case "cover":
		h.updateUserImage(w, r, user, media.KindCover)
	case "history":
		h.watchHistory(w, r, user)
	case "likes":
		h.likedVideos(w, r, user)
	case "subscriptions":
		h.subscribedChannels(w, r, user)
	default:
		writeError(w, http.StatusNotFound, fmt.Errorf("unknown account path"))
	}
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request, user models.User) {
	var req updateAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.FullName == nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("no fields to update"))
		return
	}
	updated, err := h.Store.UpdateUser(r.Context(), user.ID, storage.UserUpdate{FullName: req.FullName})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, newUserResponse(updated.Public()), "account updated")
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request, user models.User) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := auth.VerifyPassword(user.PasswordHash, req.OldPassword); err != nil {
		writeDomainError(w, err)
		return
	}
	if len(req.NewPassword) < 8 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("password must be at least 8 characters"))
		return
	}
	hashed, err := auth.HashPassword(req.NewPassword)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if err := h.Store.SetUserPassword(r.Context(), user.ID, hashed); err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, nil, "password changed")
}

func (h *Handler) updateUserImage(w http.ResponseWriter, r *http.Request, user models.User, kind media.Kind) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	if h.Media == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("media uploads not configured"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("file field is required"))
		return
	}
	defer file.Close()

	obj, err := h.Media.Save(r.Context(), kind, header.Filename, header.Header.Get("Content-Type"), file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	update := storage.UserUpdate{}
	if kind == media.KindAvatar {
		update.AvatarURL = &obj.URL
	} else {
		update.CoverImageURL = &obj.URL
	}
	updated, err := h.Store.UpdateUser(r.Context(), user.ID, update)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeData(w, http.StatusOK, newUserResponse(updated.Public()), "image updated")
}

type watchEntryResponse struct {
	Video     videoResponse `json:"video"`
	WatchedAt string        `json:"watchedAt"`
}

func (h *Handler) watchHistory(w http.ResponseWriter, r *http.Request, user models.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	entries, err := h.Store.ListWatchHistory(r.Context(), user.ID, queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	response := make([]watchEntryResponse, 0, len(entries))
	for _, entry := range entries {
		video, ok, err := h.Store.GetVideo(r.Context(), entry.VideoID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if !ok {
			continue
		}
		response = append(response, watchEntryResponse{
			Video:     newVideoResponse(video),
			WatchedAt: entry.WatchedAt.UTC().Format(time.RFC3339Nano),
		})
	}
	writeData(w, http.StatusOK, response, "watch history")
}

func (h *Handler) likedVideos(w http.ResponseWriter, r *http.Request, user models.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	videos, err := h.Store.ListLikedVideos(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	response := make([]videoResponse, 0, len(videos))
	for _, video := range videos {
		response = append(response, newVideoResponse(video))
	}
	writeData(w, http.StatusOK, response, "liked videos")
}

func (h *Handler) subscribedChannels(w http.ResponseWriter, r *http.Request, user models.User) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	channels, err := h.Store.ListSubscribedChannels(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	response := make([]userResponse, 0, len(channels))
	for _, channel := range channels {
		response = append(response, newUserResponse(channel))
	}
	writeData(w, http.StatusOK, response, "subscribed channels")
}
