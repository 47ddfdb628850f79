// Package metrics exposes Prometheus collectors for the HTTP surface and the
// auth/session lifecycle.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder owns a private Prometheus registry so tests can construct
// independent instances without collector name collisions.
type Recorder struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	authEvents      *prometheus.CounterVec
	videoViews      prometheus.Counter
	purgedTokens    prometheus.Counter
}

var defaultRecorder = New()

// New constructs a Recorder with its collectors registered.
func New() *Recorder {
	registry := prometheus.NewRegistry()
	r := &Recorder{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cliptube_http_requests_total",
			Help: "HTTP requests by method, normalized path, and status.",
		}, []string{"method", "path", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cliptube_http_request_duration_seconds",
			Help:    "HTTP request latency by method and normalized path.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cliptube_auth_events_total",
			Help: "Auth lifecycle events by action (login, refresh, logout) and outcome.",
		}, []string{"action", "outcome"}),
		videoViews: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cliptube_video_views_total",
			Help: "Video views recorded.",
		}),
		purgedTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cliptube_refresh_tokens_purged_total",
			Help: "Expired refresh tokens cleared by the background sweeper.",
		}),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.requestsTotal,
		r.requestDuration,
		r.authEvents,
		r.videoViews,
		r.purgedTokens,
	)
	return r
}

// Default returns the shared Recorder used when no custom instance is wired.
func Default() *Recorder {
	return defaultRecorder
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// ObserveRequest accumulates count and latency for a finished request.
func (r *Recorder) ObserveRequest(method, path string, status int, duration time.Duration) {
	normalized := normalizePath(path)
	r.requestsTotal.WithLabelValues(strings.ToUpper(method), normalized, strconv.Itoa(status)).Inc()
	r.requestDuration.WithLabelValues(strings.ToUpper(method), normalized).Observe(duration.Seconds())
}

// ObserveAuthEvent records an auth action outcome, e.g. ("login", "success").
func (r *Recorder) ObserveAuthEvent(action, outcome string) {
	r.authEvents.WithLabelValues(normalizeName(action), normalizeName(outcome)).Inc()
}

// ObserveVideoView counts one recorded view.
func (r *Recorder) ObserveVideoView() {
	r.videoViews.Inc()
}

// ObservePurgedTokens counts refresh tokens cleared by the sweeper.
func (r *Recorder) ObservePurgedTokens(n int) {
	if n > 0 {
		r.purgedTokens.Add(float64(n))
	}
}

func normalizeName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

// normalizePath collapses ID segments so the label cardinality stays bounded:
// /api/videos/01J.../comments becomes /api/videos/:id/comments.
func normalizePath(path string) string {
	segments := strings.Split(path, "/")
	for i, segment := range segments {
		if looksLikeID(segment) {
			segments[i] = ":id"
		}
	}
	return strings.Join(segments, "/")
}

func looksLikeID(segment string) bool {
	if len(segment) < 16 {
		return false
	}
	for _, r := range segment {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r == '-':
		default:
			return false
		}
	}
	return true
}
