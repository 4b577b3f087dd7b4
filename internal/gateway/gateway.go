// Package gateway implements the HTTP surface of the VVTTS dispatch layer:
// synchronous and asynchronous job submission, job inspection, health
// aggregation, the voice-option enumeration, and the voice-sample catalog.
// The gateway owns no job state — everything lives in the broker behind the
// queue service.
package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vietvoice/vvtts/internal/auth"
	"github.com/vietvoice/vvtts/internal/observe"
	"github.com/vietvoice/vvtts/internal/queue"
	"github.com/vietvoice/vvtts/internal/samples"
)

// APIVersion is reported by the root banner.
const APIVersion = "1.0.0"

// avgGenerationSeconds is the per-job estimate used for async wait hints.
const avgGenerationSeconds = 3.0

// Config carries the gateway's policy settings.
type Config struct {
	// JobTimeout bounds the synchronous wait, in seconds. Stamped into
	// every job.
	JobTimeout float64

	// TrustProxy enables the X-Forwarded-For localhost bypass.
	TrustProxy bool
}

// Server holds the gateway's collaborators. It is safe for concurrent use;
// all mutable state lives in the broker or the sample store.
type Server struct {
	queue   *queue.Service
	keys    *auth.Manager
	samples *samples.Store
	metrics *observe.Metrics

	jobTimeout float64
	trustProxy bool
}

// New assembles a Server from its collaborators.
func New(q *queue.Service, keys *auth.Manager, store *samples.Store, metrics *observe.Metrics, cfg Config) *Server {
	return &Server{
		queue:      q,
		keys:       keys,
		samples:    store,
		metrics:    metrics,
		jobTimeout: cfg.JobTimeout,
		trustProxy: cfg.TrustProxy,
	}
}

// Handler returns the fully-routed HTTP handler, wrapped in CORS and
// observability middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /synthesize", s.handleSynthesize)
	mux.HandleFunc("POST /synthesize/async", s.handleSynthesizeAsync)
	mux.HandleFunc("GET /job/{id}", s.handleJobStatus)
	mux.HandleFunc("GET /job/{id}/audio", s.handleJobAudio)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /voices", s.handleVoices)

	mux.HandleFunc("POST /voice-samples", s.handleSampleCreate)
	mux.HandleFunc("GET /voice-samples", s.handleSampleList)
	mux.HandleFunc("GET /voice-samples/{id}/audio", s.handleSampleAudio)
	mux.HandleFunc("DELETE /voice-samples/{id}", s.handleSampleDelete)

	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /{$}", s.handleRoot)

	return corsMiddleware(observe.Middleware(s.metrics)(mux))
}

// writeJSON encodes v as JSON with the given status code. On encoding
// failure it falls back to a plain 500 response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"detail":"encoding error"}`, http.StatusInternalServerError)
	}
}

// writeError writes the error envelope used across the API.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
