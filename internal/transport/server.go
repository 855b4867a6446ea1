// Package transport exposes the collection flow over HTTP. Each
// session gets its own state machine, registered by session ID.
package transport

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/tomliptrot/handwriting-app/internal/domain/session"
	"github.com/tomliptrot/handwriting-app/internal/domain/upload"
)

// MachineFactory builds a fresh state machine for a new or resumed
// session.
type MachineFactory func() *session.Machine

// Server routes worker requests to per-session state machines.
type Server struct {
	newMachine MachineFactory
	store      session.ProgressStore
	target     int
	maxBody    int64
	logger     *slog.Logger

	mu       sync.Mutex
	machines map[string]*session.Machine
}

// NewServer creates the HTTP router.
func NewServer(newMachine MachineFactory, store session.ProgressStore, target int, maxBody int64, logger *slog.Logger) *chi.Mux {
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		newMachine: newMachine,
		store:      store,
		target:     target,
		maxBody:    maxBody,
		logger:     logger,
		machines:   make(map[string]*session.Machine),
	}

	r := chi.NewRouter()
	r.Use(RequestLogger(logger))

	r.Post("/api/session", srv.handleStart)
	r.Post("/api/session/resume", srv.handleResume)
	r.Post("/api/session/{sessionID}/skip", srv.handleSkip)
	r.Post("/api/session/{sessionID}/upload", srv.handleUpload)
	r.Get("/api/session/{sessionID}", srv.handleGet)
	r.Get("/health", srv.handleHealth)

	return r
}

type startRequest struct {
	WorkerID string `json:"workerId"`
}

type sessionView struct {
	State           session.State              `json:"state"`
	Session         session.Session            `json:"session"`
	TargetImages    int                        `json:"targetImages"`
	ProgressPercent int                        `json:"progressPercent"`
	Incomplete      bool                       `json:"incomplete"`
	Summary         *session.CompletionSummary `json:"summary,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m := s.newMachine()
	sess, err := m.StartSession(r.Context(), req.WorkerID)
	if err != nil {
		s.writeMachineError(w, err)
		return
	}

	s.register(sess.SessionID, m)
	writeJSON(w, http.StatusOK, s.view(m))
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	snap, err := s.store.Load(req.WorkerID)
	if err != nil {
		s.logger.Error("failed to load progress snapshot", "worker_id", req.WorkerID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load saved progress")
		return
	}
	if snap == nil {
		writeError(w, http.StatusNotFound, "no saved progress")
		return
	}

	m := s.newMachine()
	sess, err := m.Resume(r.Context(), *snap)
	if err != nil {
		if errors.Is(err, session.ErrSnapshotStale) {
			if clearErr := s.store.Clear(req.WorkerID); clearErr != nil {
				s.logger.Warn("failed to clear stale snapshot", "worker_id", req.WorkerID, "error", clearErr)
			}
			writeError(w, http.StatusNotFound, "no saved progress")
			return
		}
		s.writeMachineError(w, err)
		return
	}

	s.register(sess.SessionID, m)
	writeJSON(w, http.StatusOK, s.view(m))
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lookup(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	if _, err := m.SkipCurrentCode(r.Context()); err != nil {
		s.writeMachineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(m))
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lookup(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := r.ParseMultipartForm(s.maxBody); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, session.ErrFileTooLarge.Error())
		return
	}

	f, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing image file")
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read image file")
		return
	}

	file := session.File{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}
	if _, err := m.BeginUpload(r.Context(), file); err != nil {
		s.writeMachineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(m))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	m, ok := s.lookup(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown session")
		return
	}
	writeJSON(w, http.StatusOK, s.view(m))
}

func (s *Server) register(sessionID string, m *session.Machine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.machines[sessionID] = m
}

func (s *Server) lookup(sessionID string) (*session.Machine, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.machines[sessionID]
	return m, ok
}

func (s *Server) view(m *session.Machine) sessionView {
	sess := m.Session()
	percent := 0
	if s.target > 0 {
		percent = sess.CompletedImages * 100 / s.target
	}
	return sessionView{
		State:           m.State(),
		Session:         sess,
		TargetImages:    s.target,
		ProgressPercent: percent,
		Incomplete:      m.Incomplete(),
		Summary:         m.Summary(),
	}
}

func (s *Server) writeMachineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidWorkerID):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrInvalidFile):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrFileTooLarge):
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, session.ErrWorkerBanned):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, session.ErrNotActive), errors.Is(err, session.ErrSessionExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, upload.ErrTransport):
		writeError(w, http.StatusBadGateway, "upload failed, please try again")
	default:
		s.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
