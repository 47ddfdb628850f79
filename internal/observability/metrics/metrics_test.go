package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, r *Recorder) string {
	t.Helper()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from metrics handler, got %d", rec.Code)
	}
	return rec.Body.String()
}

func TestObserveRequestNormalizesPath(t *testing.T) {
	r := New()
	r.ObserveRequest("get", "/api/videos/01hzxw8p4qfm2r7s9t0v1w2x3y/comments", http.StatusOK, 25*time.Millisecond)

	body := scrape(t, r)
	if !strings.Contains(body, `path="/api/videos/:id/comments"`) {
		t.Fatalf("expected normalized path label, got:\n%s", body)
	}
	if !strings.Contains(body, `method="GET"`) {
		t.Fatal("expected method label to be upper-cased")
	}
	if !strings.Contains(body, `status="200"`) {
		t.Fatal("expected status label")
	}
}

func TestObserveAuthEvent(t *testing.T) {
	r := New()
	r.ObserveAuthEvent("Login", "  SUCCESS ")
	r.ObserveAuthEvent("", "")

	body := scrape(t, r)
	if !strings.Contains(body, `cliptube_auth_events_total{action="login",outcome="success"} 1`) {
		t.Fatalf("expected normalized auth event labels, got:\n%s", body)
	}
	if !strings.Contains(body, `cliptube_auth_events_total{action="unknown",outcome="unknown"} 1`) {
		t.Fatalf("expected blank labels to fall back to unknown, got:\n%s", body)
	}
}

func TestObservePurgedTokensIgnoresNonPositive(t *testing.T) {
	r := New()
	r.ObservePurgedTokens(0)
	r.ObservePurgedTokens(-3)
	r.ObservePurgedTokens(4)

	body := scrape(t, r)
	if !strings.Contains(body, "cliptube_refresh_tokens_purged_total 4") {
		t.Fatalf("expected purge counter at 4, got:\n%s", body)
	}
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "static", in: "/api/videos", want: "/api/videos"},
		{name: "ulid segment", in: "/api/videos/01hzxw8p4qfm2r7s9t0v1w2x3y", want: "/api/videos/:id"},
		{name: "uuid segment", in: "/api/comments/2b1c6f4a-9d3e-4c21-8a5f-0f6d7c8b9a01/like", want: "/api/comments/:id/like"},
		{name: "short segment untouched", in: "/api/channels/casey", want: "/api/channels/casey"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := normalizePath(tc.in); got != tc.want {
				t.Fatalf("normalizePath(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestDefaultIsShared(t *testing.T) {
	if Default() != Default() {
		t.Fatal("expected Default to return the same instance")
	}
}
