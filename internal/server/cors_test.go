package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func serveCORS(t *testing.T, cfg CORSConfig, req *http.Request) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	policy, err := newCORSPolicy(cfg)
	if err != nil {
		t.Fatalf("newCORSPolicy: %v", err)
	}
	reached := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	})
	rec := httptest.NewRecorder()
	corsMiddleware(policy, nil, next).ServeHTTP(rec, req)
	return rec, reached
}

func TestCORSStudioUploadPreflight(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/videos", nil)
	req.Header.Set("Origin", "https://studio.cliptube.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Host = "api.cliptube.example"

	rec, reached := serveCORS(t, CORSConfig{
		StudioOrigins: []string{"https://studio.cliptube.example"},
	}, req)

	if reached {
		t.Fatal("preflight must not reach the API handlers")
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rec.Code)
	}
	if methods := rec.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(methods, http.MethodPost) {
		t.Fatalf("expected POST in allowed methods, got %q", methods)
	}
	if got := rec.Header().Get("Access-Control-Allow-Headers"); got != corsAllowHeaders {
		t.Fatalf("unexpected allowed headers: %q", got)
	}
	if got := rec.Header().Get("Access-Control-Max-Age"); got != corsMaxAgeSeconds {
		t.Fatalf("expected preflight caching, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://studio.cliptube.example" {
		t.Fatalf("unexpected allowed origin: %q", got)
	}
}

func TestCORSViewerOriginFetchesVideos(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/videos", nil)
	req.Header.Set("Origin", "https://watch.cliptube.example")
	req.Host = "api.cliptube.example"

	rec, reached := serveCORS(t, CORSConfig{
		ViewerOrigins: []string{"https://watch.cliptube.example"},
	}, req)

	if !reached {
		t.Fatal("expected viewer request to reach the handlers")
	}
	if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Fatalf("expected credentialed CORS for auth cookies, got %q", got)
	}
	if got := rec.Header().Get("Vary"); got != "Origin" {
		t.Fatalf("expected Vary: Origin, got %q", got)
	}
	if exposed := rec.Header().Get("Access-Control-Expose-Headers"); !strings.Contains(exposed, "X-Request-Id") {
		t.Fatalf("expected request id header to be exposed, got %q", exposed)
	}
}

func TestCORSUnknownOriginRejected(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/videos", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	req.Host = "api.cliptube.example"

	rec, reached := serveCORS(t, CORSConfig{
		StudioOrigins: []string{"https://studio.cliptube.example"},
		ViewerOrigins: []string{"https://watch.cliptube.example"},
	}, req)

	if reached {
		t.Fatal("expected rejection before the handlers")
	}
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestCORSSameOriginAlwaysAllowed(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/videos", nil)
	req.Header.Set("Origin", "http://cliptube.example")
	req.Host = "cliptube.example"

	rec, reached := serveCORS(t, CORSConfig{}, req)

	if !reached {
		t.Fatal("expected same-origin request to pass with no configured origins")
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestCORSOriginMatchIsCaseInsensitive(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/videos", nil)
	req.Header.Set("Origin", "https://watch.cliptube.example")
	req.Host = "api.cliptube.example"

	_, reached := serveCORS(t, CORSConfig{
		ViewerOrigins: []string{"HTTPS://Watch.ClipTube.Example"},
	}, req)

	if !reached {
		t.Fatal("expected mixed-case configured origin to match")
	}
}

func TestCORSConfigRejectsOriginWithoutScheme(t *testing.T) {
	if _, err := newCORSPolicy(CORSConfig{ViewerOrigins: []string{"watch.cliptube.example"}}); err == nil {
		t.Fatal("expected error for origin without scheme")
	}
}

func TestServerAppliesCORSPolicy(t *testing.T) {
	srv := newTestServer(t, Config{
		CORS: CORSConfig{
			StudioOrigins: []string{"https://studio.cliptube.example"},
			ViewerOrigins: []string{"https://watch.cliptube.example"},
		},
	})

	for _, origin := range []string{
		"https://studio.cliptube.example",
		"https://watch.cliptube.example",
	} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		req.Header.Set("Origin", origin)
		srv.Handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", origin, rec.Code)
		}
		if got := rec.Header().Get("Access-Control-Allow-Origin"); got != origin {
			t.Fatalf("%s: unexpected allowed origin %q", origin, got)
		}
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://phish.example.com")
	srv.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected unknown origin to get 403, got %d", rec.Code)
	}
}
