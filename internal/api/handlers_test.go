package api

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cliptube/internal/auth"
	"cliptube/internal/media"
	"cliptube/internal/observability/metrics"
	"cliptube/internal/storage"
)

type testEnv struct {
	handler *Handler
	server  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store, err := storage.NewStorage("")
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  []byte("test-access-secret"),
		RefreshSecret: []byte("test-refresh-secret"),
	})
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	sessions, err := auth.NewSessionManager(store, issuer)
	if err != nil {
		t.Fatalf("NewSessionManager: %v", err)
	}
	mediaStore, err := media.NewFileStore(t.TempDir(), "/media")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	h := NewHandler(store, sessions, mediaStore)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/register", h.Register)
	mux.HandleFunc("/api/auth/login", h.Login)
	mux.HandleFunc("/api/auth/refresh", h.Refresh)
	mux.HandleFunc("/api/auth/logout", h.Logout)
	mux.HandleFunc("/api/users/me", h.Me)
	mux.HandleFunc("/api/users/me/", h.Me)
	mux.HandleFunc("/api/videos", h.Videos)
	mux.HandleFunc("/api/videos/", h.VideoByID)
	mux.HandleFunc("/api/comments/", h.CommentByID)
	mux.HandleFunc("/api/channels/", h.ChannelByUsername)
	mux.HandleFunc("/healthz", h.Health)

	return &testEnv{handler: h, server: h.AttachUser(mux)}
}

type responseEnvelope struct {
	Status  int             `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*httptest.ResponseRecorder, responseEnvelope) {
	t.Helper()
	var reader io.Reader
	contentType := ""
	switch payload := body.(type) {
	case nil:
	case *bytes.Buffer:
		reader = payload
	default:
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(encoded)
		contentType = "application/json"
	}
	req := httptest.NewRequest(method, path, reader)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)

	var envelope responseEnvelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
			t.Fatalf("decode envelope from %s %s: %v (%s)", method, path, err, rec.Body.String())
		}
	}
	return rec, envelope
}

func (e *testEnv) register(t *testing.T, username string) {
	t.Helper()
	rec, _ := e.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"fullName": "Test " + username,
		"password": "correct horse battery",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d: %s", username, rec.Code, rec.Body.String())
	}
}

func (e *testEnv) login(t *testing.T, username string) authResponse {
	t.Helper()
	rec, envelope := e.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": username,
		"password": "correct horse battery",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d: %s", username, rec.Code, rec.Body.String())
	}
	var resp authResponse
	if err := json.Unmarshal(envelope.Data, &resp); err != nil {
		t.Fatalf("decode auth response: %v", err)
	}
	return resp
}

func multipartBody(t *testing.T, fields map[string]string, files map[string][2]string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write field %s: %v", key, err)
		}
	}
	for field, nameAndContent := range files {
		part, err := writer.CreateFormFile(field, nameAndContent[0])
		if err != nil {
			t.Fatalf("create file part %s: %v", field, err)
		}
		if _, err := part.Write([]byte(nameAndContent[1])); err != nil {
			t.Fatalf("write file part %s: %v", field, err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	return buf, writer.FormDataContentType()
}

func (e *testEnv) publishVideo(t *testing.T, token, title string) videoResponse {
	t.Helper()
	body, contentType := multipartBody(t,
		map[string]string{"title": title, "description": "about " + title, "duration": "12.5"},
		map[string][2]string{"videoFile": {title + ".mp4", "fake video bytes"}},
	)
	req := httptest.NewRequest(http.MethodPost, "/api/videos", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("publish video: status %d: %s", rec.Code, rec.Body.String())
	}
	var envelope responseEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	var video videoResponse
	if err := json.Unmarshal(envelope.Data, &video); err != nil {
		t.Fatalf("decode video: %v", err)
	}
	return video
}

func TestRegisterLoginAndCurrentUser(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice")

	rec, envelope := env.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": "alice",
		"email":    "other@example.com",
		"fullName": "Alice Again",
		"password": "correct horse battery",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate register: expected 409, got %d", rec.Code)
	}
	if envelope.Message == "" {
		t.Fatal("expected failure message in envelope")
	}

	session := env.login(t, "alice")
	if session.AccessToken == "" || session.RefreshToken == "" {
		t.Fatal("expected both tokens in login response")
	}

	rec, envelope = env.do(t, http.MethodGet, "/api/users/me", session.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: status %d: %s", rec.Code, rec.Body.String())
	}
	var me userResponse
	if err := json.Unmarshal(envelope.Data, &me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me.Username != "alice" {
		t.Fatalf("expected alice, got %q", me.Username)
	}
}

func TestLoginFailures(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "bob")

	rec, _ := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "bob",
		"password": "wrong password",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: expected 401, got %d", rec.Code)
	}

	rec, _ = env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "nobody",
		"password": "correct horse battery",
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown user: expected 404, got %d", rec.Code)
	}
}

func TestLoginSetsHttpOnlyCookies(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "carol")

	rec, _ := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "carol",
		"password": "correct horse battery",
	})
	cookies := rec.Result().Cookies()
	var names []string
	for _, cookie := range cookies {
		names = append(names, cookie.Name)
		if !cookie.HttpOnly {
			t.Errorf("cookie %s must be HttpOnly", cookie.Name)
		}
	}
	joined := strings.Join(names, ",")
	if !strings.Contains(joined, "accessToken") || !strings.Contains(joined, "refreshToken") {
		t.Fatalf("expected both token cookies, got %v", names)
	}
}

func TestRefreshRotatesAndInvalidatesOldToken(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "dave")
	session := env.login(t, "dave")

	rec, envelope := env.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refreshToken": session.RefreshToken,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("first refresh: status %d: %s", rec.Code, rec.Body.String())
	}
	var rotated authResponse
	if err := json.Unmarshal(envelope.Data, &rotated); err != nil {
		t.Fatalf("decode refresh response: %v", err)
	}
	if rotated.RefreshToken == session.RefreshToken {
		t.Fatal("refresh must issue a different refresh token")
	}

	rec, _ = env.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refreshToken": session.RefreshToken,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("stale refresh: expected 401, got %d", rec.Code)
	}

	rec, _ = env.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refreshToken": rotated.RefreshToken,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("rotated refresh: status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRefreshAcceptsCookie(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "erin")
	session := env.login(t, "erin")

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: "refreshToken", Value: session.RefreshToken})
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("cookie refresh: status %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "frank")
	session := env.login(t, "frank")

	rec, _ := env.do(t, http.MethodPost, "/api/auth/logout", session.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: status %d: %s", rec.Code, rec.Body.String())
	}

	rec, _ = env.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{
		"refreshToken": session.RefreshToken,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after logout: expected 401, got %d", rec.Code)
	}

	// Access tokens are stateless and stay valid until expiry.
	rec, _ = env.do(t, http.MethodGet, "/api/users/me", session.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me after logout: status %d", rec.Code)
	}
}

func TestProtectedRoutesRejectAnonymous(t *testing.T) {
	env := newTestEnv(t)
	for _, tc := range []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/users/me"},
		{http.MethodPost, "/api/auth/logout"},
		{http.MethodPost, "/api/videos"},
	} {
		rec, _ := env.do(t, tc.method, tc.path, "", nil)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected 401, got %d", tc.method, tc.path, rec.Code)
		}
	}

	rec, _ := env.do(t, http.MethodGet, "/api/users/me", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: expected 401, got %d", rec.Code)
	}
}

func TestVideoLifecycle(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "gina")
	session := env.login(t, "gina")
	video := env.publishVideo(t, session.AccessToken, "first upload")

	if !strings.HasPrefix(video.VideoURL, "/media/videos/") {
		t.Fatalf("unexpected video URL %q", video.VideoURL)
	}

	rec, envelope := env.do(t, http.MethodGet, "/api/videos/"+video.ID, session.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get video: status %d: %s", rec.Code, rec.Body.String())
	}
	var fetched videoResponse
	if err := json.Unmarshal(envelope.Data, &fetched); err != nil {
		t.Fatalf("decode video: %v", err)
	}
	if fetched.Views != 1 {
		t.Fatalf("expected view recorded, got %d", fetched.Views)
	}

	rec, envelope = env.do(t, http.MethodPatch, "/api/videos/"+video.ID, session.AccessToken, map[string]string{
		"title": "renamed upload",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("update video: status %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, &fetched); err != nil {
		t.Fatalf("decode video: %v", err)
	}
	if fetched.Title != "renamed upload" {
		t.Fatalf("expected renamed title, got %q", fetched.Title)
	}

	rec, envelope = env.do(t, http.MethodPost, "/api/videos/"+video.ID+"/publish", session.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle publish: status %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, &fetched); err != nil {
		t.Fatalf("decode video: %v", err)
	}
	if fetched.Published {
		t.Fatal("expected video to be unpublished")
	}

	// Unpublished videos 404 for everyone but the owner.
	rec, _ = env.do(t, http.MethodGet, "/api/videos/"+video.ID, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("anonymous get of unpublished video: expected 404, got %d", rec.Code)
	}

	rec, _ = env.do(t, http.MethodDelete, "/api/videos/"+video.ID, session.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete video: status %d: %s", rec.Code, rec.Body.String())
	}
	rec, _ = env.do(t, http.MethodGet, "/api/videos/"+video.ID, session.AccessToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get deleted video: expected 404, got %d", rec.Code)
	}
}

func TestVideoOwnershipEnforced(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "hank")
	env.register(t, "ivy")
	owner := env.login(t, "hank")
	other := env.login(t, "ivy")
	video := env.publishVideo(t, owner.AccessToken, "owned")

	rec, _ := env.do(t, http.MethodDelete, "/api/videos/"+video.ID, other.AccessToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("delete by non-owner: expected 403, got %d", rec.Code)
	}
	rec, _ = env.do(t, http.MethodPatch, "/api/videos/"+video.ID, other.AccessToken, map[string]string{"title": "stolen"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("update by non-owner: expected 403, got %d", rec.Code)
	}
}

func TestCommentsAndLikes(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "jack")
	env.register(t, "kate")
	owner := env.login(t, "jack")
	viewer := env.login(t, "kate")
	video := env.publishVideo(t, owner.AccessToken, "discussed")

	rec, envelope := env.do(t, http.MethodPost, "/api/videos/"+video.ID+"/comments", viewer.AccessToken, map[string]string{
		"content": "great video",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add comment: status %d: %s", rec.Code, rec.Body.String())
	}
	var comment commentResponse
	if err := json.Unmarshal(envelope.Data, &comment); err != nil {
		t.Fatalf("decode comment: %v", err)
	}

	rec, envelope = env.do(t, http.MethodGet, "/api/videos/"+video.ID+"/comments", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list comments: status %d", rec.Code)
	}
	var list commentListResponse
	if err := json.Unmarshal(envelope.Data, &list); err != nil {
		t.Fatalf("decode comment list: %v", err)
	}
	if list.Total != 1 || len(list.Comments) != 1 {
		t.Fatalf("expected 1 comment, got %d of %d", len(list.Comments), list.Total)
	}

	rec, _ = env.do(t, http.MethodPatch, "/api/comments/"+comment.ID, owner.AccessToken, map[string]string{"content": "hijacked"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("edit by non-author: expected 403, got %d", rec.Code)
	}

	rec, envelope = env.do(t, http.MethodPost, "/api/videos/"+video.ID+"/like", viewer.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("like video: status %d: %s", rec.Code, rec.Body.String())
	}
	var state likeStateResponse
	if err := json.Unmarshal(envelope.Data, &state); err != nil {
		t.Fatalf("decode like state: %v", err)
	}
	if !state.Liked || state.Count != 1 {
		t.Fatalf("expected liked count 1, got %+v", state)
	}

	rec, envelope = env.do(t, http.MethodPost, "/api/comments/"+comment.ID+"/like", owner.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("like comment: status %d: %s", rec.Code, rec.Body.String())
	}
	if err := json.Unmarshal(envelope.Data, &state); err != nil {
		t.Fatalf("decode like state: %v", err)
	}
	if !state.Liked || state.Count != 1 {
		t.Fatalf("expected comment liked count 1, got %+v", state)
	}

	rec, _ = env.do(t, http.MethodDelete, "/api/comments/"+comment.ID, viewer.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete comment: status %d", rec.Code)
	}
}

func TestChannelSubscription(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "leo")
	env.register(t, "mona")
	fan := env.login(t, "mona")

	rec, envelope := env.do(t, http.MethodPost, "/api/channels/leo/subscribe", fan.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("subscribe: status %d: %s", rec.Code, rec.Body.String())
	}
	var state subscriptionStateResponse
	if err := json.Unmarshal(envelope.Data, &state); err != nil {
		t.Fatalf("decode subscription state: %v", err)
	}
	if !state.Subscribed || state.Subscribers != 1 {
		t.Fatalf("expected subscribed with 1 subscriber, got %+v", state)
	}

	rec, envelope = env.do(t, http.MethodGet, "/api/channels/leo", fan.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("channel profile: status %d", rec.Code)
	}
	var profile channelResponse
	if err := json.Unmarshal(envelope.Data, &profile); err != nil {
		t.Fatalf("decode channel: %v", err)
	}
	if profile.Channel.Username != "leo" || !profile.Subscribed {
		t.Fatalf("unexpected channel profile %+v", profile)
	}

	fanSession := env.login(t, "leo")
	rec, _ = env.do(t, http.MethodPost, "/api/channels/leo/subscribe", fanSession.AccessToken, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("self subscribe: expected 400, got %d", rec.Code)
	}

	rec, _ = env.do(t, http.MethodPost, "/api/channels/leo/subscribe", fan.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unsubscribe: status %d", rec.Code)
	}
	rec, envelope = env.do(t, http.MethodGet, "/api/channels/leo", "", nil)
	if err := json.Unmarshal(envelope.Data, &profile); err != nil {
		t.Fatalf("decode channel: %v", err)
	}
	if profile.Subscribers != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe, got %d", profile.Subscribers)
	}
}

func TestWatchHistoryEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "nina")
	session := env.login(t, "nina")
	video := env.publishVideo(t, session.AccessToken, "watched")

	if rec, _ := env.do(t, http.MethodGet, "/api/videos/"+video.ID, session.AccessToken, nil); rec.Code != http.StatusOK {
		t.Fatalf("watch video: status %d", rec.Code)
	}

	rec, envelope := env.do(t, http.MethodGet, "/api/users/me/history", session.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history: status %d: %s", rec.Code, rec.Body.String())
	}
	var history []watchEntryResponse
	if err := json.Unmarshal(envelope.Data, &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history) != 1 || history[0].Video.ID != video.ID {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)
	rec, envelope := env.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health: status %d", rec.Code)
	}
	if envelope.Status != http.StatusOK {
		t.Fatalf("expected envelope status 200, got %d", envelope.Status)
	}
	var data map[string]string
	if err := json.Unmarshal(envelope.Data, &data); err != nil {
		t.Fatalf("decode health data: %v", err)
	}
	if data["status"] != "ok" {
		t.Fatalf("expected ok, got %v", data)
	}
}

func TestRegisterWithImageUploads(t *testing.T) {
	env := newTestEnv(t)
	body, contentType := multipartBody(t,
		map[string]string{
			"username": "drew",
			"email":    "drew@example.com",
			"fullName": "Drew Example",
			"password": "correct horse battery",
		},
		map[string][2]string{
			"avatar":     {"face.png", "avatar bytes"},
			"coverImage": {"banner.jpg", "cover bytes"},
		},
	)
	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: status %d: %s", rec.Code, rec.Body.String())
	}

	var envelope responseEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	var user userResponse
	if err := json.Unmarshal(envelope.Data, &user); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	if !strings.HasPrefix(user.AvatarURL, "/media/avatars/") {
		t.Fatalf("expected stored avatar URL, got %q", user.AvatarURL)
	}
	if !strings.HasPrefix(user.CoverImageURL, "/media/covers/") {
		t.Fatalf("expected stored cover URL, got %q", user.CoverImageURL)
	}
}

func scrapeMetrics(t *testing.T, recorder *metrics.Recorder) string {
	t.Helper()
	rec := httptest.NewRecorder()
	recorder.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rec.Body.String()
}

func TestAuthAndViewCountersRecorded(t *testing.T) {
	env := newTestEnv(t)
	recorder := metrics.New()
	env.handler.Metrics = recorder

	env.register(t, "metty")
	session := env.login(t, "metty")

	rec, _ := env.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{
		"username": "metty",
		"password": "wrong password",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login: expected 401, got %d", rec.Code)
	}
	rec, _ = env.do(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": "garbage"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad refresh: expected 401, got %d", rec.Code)
	}

	video := env.publishVideo(t, session.AccessToken, "counted clip")
	rec, _ = env.do(t, http.MethodGet, "/api/videos/"+video.ID, session.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get video: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	exposition := scrapeMetrics(t, recorder)
	for _, series := range []string{
		`cliptube_auth_events_total{action="login",outcome="success"} 1`,
		`cliptube_auth_events_total{action="login",outcome="failure"} 1`,
		`cliptube_auth_events_total{action="refresh",outcome="failure"} 1`,
		`cliptube_video_views_total 1`,
	} {
		if !strings.Contains(exposition, series) {
			t.Fatalf("missing series %q in exposition:\n%s", series, exposition)
		}
	}
}

func TestDeleteVideoRemovesStoredMedia(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "hoster")
	session := env.login(t, "hoster")

	body, contentType := multipartBody(t,
		map[string]string{"title": "cleanup clip", "duration": "3"},
		map[string][2]string{
			"videoFile": {"cleanup.mp4", "video bytes"},
			"thumbnail": {"cleanup.png", "png bytes"},
		},
	)
	req := httptest.NewRequest(http.MethodPost, "/api/videos", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	rec := httptest.NewRecorder()
	env.server.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("publish: status %d: %s", rec.Code, rec.Body.String())
	}
	var envelope responseEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	var video videoResponse
	if err := json.Unmarshal(envelope.Data, &video); err != nil {
		t.Fatalf("decode video: %v", err)
	}

	files := env.handler.Media.(*media.FileStore)
	paths := make([]string, 0, 2)
	for _, url := range []string{video.VideoURL, video.ThumbnailURL} {
		key, ok := files.KeyFromURL(url)
		if !ok {
			t.Fatalf("no storage key for URL %q", url)
		}
		stored := filepath.Join(files.BaseDir(), filepath.FromSlash(key))
		if _, err := os.Stat(stored); err != nil {
			t.Fatalf("expected stored asset at %s: %v", stored, err)
		}
		paths = append(paths, stored)
	}

	rec, _ = env.do(t, http.MethodDelete, "/api/videos/"+video.ID, session.AccessToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status %d: %s", rec.Code, rec.Body.String())
	}
	for _, stored := range paths {
		if _, err := os.Stat(stored); !os.IsNotExist(err) {
			t.Fatalf("expected %s to be deleted with the record", stored)
		}
	}
}
