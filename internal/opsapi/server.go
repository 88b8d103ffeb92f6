// Package opsapi serves the operational HTTP surface: liveness, last
// iteration status, and Prometheus metrics.
package opsapi

import (
	"context"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/mux"

	"github.com/adgrid-network/weightd/internal/logger"
	"github.com/adgrid-network/weightd/internal/models"
	"github.com/adgrid-network/weightd/internal/observability"
	"github.com/adgrid-network/weightd/internal/storage"
)

// PhaseReporter exposes the pipeline's current phase.
type PhaseReporter interface {
	Phase() string
}

// Server is the ops HTTP server.
type Server struct {
	store   *storage.Storage
	metrics *observability.Metrics
	phases  PhaseReporter
	httpSrv *http.Server
	log     *logger.Logger
}

// New builds the ops server listening on addr. metrics may be nil, which
// disables the /metrics route.
func New(addr string, store *storage.Storage, metrics *observability.Metrics, phases PhaseReporter) *Server {
	s := &Server{
		store:   store,
		metrics: metrics,
		phases:  phases,
		log:     logger.Scoped("opsapi"),
	}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	if metrics != nil {
		r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	}

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until Shutdown; it returns on listener failure.
func (s *Server) Start() {
	s.log.Info("Ops server listening on %s", s.httpSrv.Addr)
	if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.log.Error("Ops server failed: %v", err)
	}
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// statusResponse is the /status payload.
type statusResponse struct {
	Phase          string                   `json:"phase"`
	LastIteration  *models.IterationRecord  `json:"last_iteration,omitempty"`
	LastSubmission *models.SubmissionRecord `json:"last_submission,omitempty"`
	Campaigns      []models.CampaignResult  `json:"campaigns,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{Phase: s.phases.Phase()}

	iterations, err := s.store.RecentIterations(1)
	if err != nil {
		s.log.Error("Failed to query last iteration: %v", err)
		http.Error(w, "storage error", http.StatusInternalServerError)
		return
	}
	if len(iterations) > 0 {
		resp.LastIteration = &iterations[0]
		results, err := s.store.CampaignResults(iterations[0].ID)
		if err != nil {
			s.log.Warn("Failed to query campaign results: %v", err)
		} else {
			resp.Campaigns = results
		}
	}

	if last, err := s.store.LastSubmission(); err != nil {
		s.log.Warn("Failed to query last submission: %v", err)
	} else {
		resp.LastSubmission = last
	}

	body, err := sonic.Marshal(resp)
	if err != nil {
		http.Error(w, "encoding error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}
