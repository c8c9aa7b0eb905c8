package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cwygoda/papers/internal/domain"
)

// ProgressSource exposes the live state of every year task.
type ProgressSource interface {
	Snapshot() []domain.ProgressState
}

// Server is the read-only HTTP status adapter.
type Server struct {
	history  *domain.HistoryService
	progress ProgressSource
	logger   *slog.Logger
	mux      *http.ServeMux
	server   *http.Server
}

// NewServer creates a new HTTP server. history may be nil when run history is disabled.
func NewServer(history *domain.HistoryService, progress ProgressSource, addr string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		history:  history,
		progress: progress,
		logger:   logger,
		mux:      http.NewServeMux(),
	}
	s.routes()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /progress", s.handleProgress)
	s.mux.HandleFunc("GET /runs", s.handleListRuns)
	s.mux.HandleFunc("GET /runs/{id}", s.handleGetRun)
}

// yearResponse is the JSON form of one year's recorded outcome.
type yearResponse struct {
	Year  int    `json:"year"`
	Label string `json:"label"`
	State string `json:"state"`
	Files int    `json:"files"`
	Bytes int64  `json:"bytes"`
	URL   string `json:"url,omitempty"`
	Error string `json:"error,omitempty"`
}

// runResponse is the JSON response for run endpoints.
type runResponse struct {
	ID         string         `json:"id"`
	Category   string         `json:"category"`
	StartYear  int            `json:"start_year"`
	EndYear    int            `json:"end_year"`
	Dest       string         `json:"dest"`
	Status     string         `json:"status"`
	Error      string         `json:"error,omitempty"`
	StartedAt  string         `json:"started_at"`
	FinishedAt string         `json:"finished_at,omitempty"`
	Years      []yearResponse `json:"years,omitempty"`
}

// errorResponse is the JSON error response.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	states := []domain.ProgressState{}
	if s.progress != nil {
		states = append(states, s.progress.Snapshot()...)
	}
	s.writeJSON(w, http.StatusOK, states)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "run history disabled")
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	runs, err := s.history.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("list runs", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	resp := make([]runResponse, 0, len(runs))
	for i := range runs {
		resp = append(resp, runToResponse(&runs[i]))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "run history disabled")
		return
	}

	run, err := s.history.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrRunNotFound) {
			s.writeError(w, http.StatusNotFound, "run not found")
			return
		}
		s.logger.Error("get run", "error", err)
		s.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.writeJSON(w, http.StatusOK, runToResponse(run))
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func runToResponse(run *domain.Run) runResponse {
	resp := runResponse{
		ID:        run.ID,
		Category:  string(run.Category),
		StartYear: int(run.StartYear),
		EndYear:   int(run.EndYear),
		Dest:      run.Dest,
		Status:    string(run.Status),
		Error:     run.Error,
		StartedAt: run.StartedAt.UTC().Format(time.RFC3339),
	}
	if !run.FinishedAt.IsZero() {
		resp.FinishedAt = run.FinishedAt.UTC().Format(time.RFC3339)
	}
	for _, y := range run.Years {
		resp.Years = append(resp.Years, yearResponse{
			Year:  int(y.Year),
			Label: y.Label,
			State: string(y.State),
			Files: y.Files,
			Bytes: y.Bytes,
			URL:   y.URL,
			Error: y.Error,
		})
	}
	return resp
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// ServeHTTP implements http.Handler for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Addr returns the server address.
func (s *Server) Addr() string {
	return s.server.Addr
}
