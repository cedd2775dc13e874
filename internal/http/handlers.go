package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"osce-simulator/internal/core"
	"osce-simulator/internal/db"
	"osce-simulator/pkg"
)

// EncounterStore is the read side of the encounter archive.
type EncounterStore interface {
	GetEncounter(ctx context.Context, id string) (*pkg.EncounterRecord, error)
	ListEncounters(ctx context.Context, caseID string, limit int) ([]pkg.EncounterRecord, error)
}

// Subscriber yields the ids of newly archived encounters.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan string, error)
}

// Server bundles together the dependencies required by HTTP handlers.  It
// implements http.Handler so it can be passed to http.ListenAndServe.
// Encounters and Events are optional; without them the archive routes
// answer 404.
type Server struct {
	Registry   *core.Registry
	Cases      core.CaseSource
	Encounters EncounterStore
	Events     Subscriber
	Logger     *zap.Logger

	router chi.Router
}

// NewServer constructs a Server and its routes.
func NewServer(registry *core.Registry, cases core.CaseSource, encounters EncounterStore, events Subscriber, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		Registry:   registry,
		Cases:      cases,
		Encounters: encounters,
		Events:     events,
		Logger:     logger,
	}
	s.router = s.routes()
	return s
}

// ServeHTTP dispatches to the chi router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.Logger))
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/cases", s.handleListCases)

		r.Post("/sessions", s.handleCreateSession)
		r.Route("/sessions/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleDeleteSession)
			r.Post("/credential", s.handleCredential)
			r.Post("/case", s.handleSelectCase)
			r.Post("/questions", s.handleAsk)
			r.Post("/actions", s.handleAction)
			r.Post("/end", s.handleEnd)
			r.Post("/assessment", s.handleAssessment)
			r.Post("/return", s.handleReturn)
		})

		r.Get("/encounters", s.handleListEncounters)
		r.Get("/encounters/stream", s.handleEncounterStream)
		r.Get("/encounters/{id}", s.handleGetEncounter)
	})
	return r
}

// requestLogger logs one line per request with the status it produced.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

type credentialRequest struct {
	APIKey string `json:"api_key"`
}

type selectCaseRequest struct {
	CaseID string `json:"case_id"`
}

type questionRequest struct {
	Text string `json:"text"`
}

type actionRequest struct {
	Name string `json:"name"`
}

type assessmentRequest struct {
	Diagnosis string `json:"diagnosis"`
	Plan      string `json:"plan"`
}

func (s *Server) handleListCases(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Cases.List())
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	m := s.Registry.Create()
	writeJSON(w, http.StatusCreated, m.Observe())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, m.Observe())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.Registry.Delete(chi.URLParam(r, "id")) {
		s.writeError(w, core.ErrUnknownSession)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCredential(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	var req credentialRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := m.SubmitCredential(r.Context(), req.APIKey); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m.Observe())
}

func (s *Server) handleSelectCase(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	var req selectCaseRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	greeting, err := m.SelectCase(r.Context(), req.CaseID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"greeting": greeting,
		"session":  m.Observe(),
	})
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	var req questionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	reply, err := m.Ask(r.Context(), req.Text)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reply":   reply,
		"session": m.Observe(),
	})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	var req actionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	res, err := m.PerformAction(req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"available": res != nil,
		"result":    res,
		"session":   m.Observe(),
	})
}

func (s *Server) handleEnd(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	if err := m.EndEncounter(); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m.Observe())
}

func (s *Server) handleAssessment(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	var req assessmentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	feedback, err := m.SubmitAssessment(r.Context(), req.Diagnosis, req.Plan)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"feedback": feedback,
		"session":  m.Observe(),
	})
}

func (s *Server) handleReturn(w http.ResponseWriter, r *http.Request) {
	m, ok := s.machine(w, r)
	if !ok {
		return
	}
	if err := m.ReturnToSelection(); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m.Observe())
}

// handleListEncounters returns archived encounters, newest first.
func (s *Server) handleListEncounters(w http.ResponseWriter, r *http.Request) {
	if s.Encounters == nil {
		http.Error(w, "encounter archive disabled", http.StatusNotFound)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	list, err := s.Encounters.ListEncounters(r.Context(), r.URL.Query().Get("case_id"), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) handleGetEncounter(w http.ResponseWriter, r *http.Request) {
	if s.Encounters == nil {
		http.Error(w, "encounter archive disabled", http.StatusNotFound)
		return
	}
	rec, err := s.Encounters.GetEncounter(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleEncounterStream streams archived encounters to reviewers using SSE.
// One encounter_completed event is written per notification until the
// client goes away.
func (s *Server) handleEncounterStream(w http.ResponseWriter, r *http.Request) {
	if s.Encounters == nil || s.Events == nil {
		http.Error(w, "encounter archive disabled", http.StatusNotFound)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	ctx := r.Context()
	ids, err := s.Events.Subscribe(ctx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for id := range ids {
		if err := s.sendEncounterEvent(ctx, w, id); err != nil {
			s.Logger.Warn("failed to send encounter event", zap.String("encounter_id", id), zap.Error(err))
			continue
		}
		flusher.Flush()
	}
}

// sendEncounterEvent writes an encounter_completed event for id.
func (s *Server) sendEncounterEvent(ctx context.Context, w http.ResponseWriter, id string) error {
	rec, err := s.Encounters.GetEncounter(ctx, id)
	if err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: encounter_completed\ndata: %s\n\n", data)
	return err
}

func (s *Server) machine(w http.ResponseWriter, r *http.Request) (*core.Machine, bool) {
	m, err := s.Registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return nil, false
	}
	return m, true
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var credErr *core.CredentialError
	switch {
	case errors.As(err, &credErr):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, core.ErrNotFound),
		errors.Is(err, core.ErrUnknownSession),
		errors.Is(err, db.ErrEncounterNotFound):
		return http.StatusNotFound
	case errors.Is(err, core.ErrEmptyQuestion),
		errors.Is(err, core.ErrEmptySubmission):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.Logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
