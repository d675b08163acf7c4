package telemetry

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// HealthStatus is the payload served at /healthz.
type HealthStatus struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	BarIndex  int       `json:"bar_index"`
}

// Server is the engine's read-only HTTP surface: Prometheus metrics and a
// liveness/status endpoint, intentionally excluding any mutating route
// (spec §9: "the HTTP surface is observation-only").
type Server struct {
	router    *mux.Router
	metrics   *Metrics
	log       zerolog.Logger
	startedAt time.Time
	barIndex  func() int
}

// NewServer builds a Server backed by metrics, reporting health via the
// currentBarIndex callback.
func NewServer(metrics *Metrics, log zerolog.Logger, currentBarIndex func() int) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		metrics:   metrics,
		log:       log,
		startedAt: time.Now(),
		barIndex:  currentBarIndex,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{})).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:    "ok",
		StartedAt: s.startedAt,
		BarIndex:  s.barIndex(),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.log.Error().Err(err).Msg("encode health status")
	}
}

// ListenAndServe blocks serving the health/metrics surface on addr.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.router)
}

// Handler returns the underlying router, for tests that want to drive
// requests with httptest without binding a real port.
func (s *Server) Handler() http.Handler {
	return s.router
}
