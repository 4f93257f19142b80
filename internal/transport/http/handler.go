package httptransport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"medgate/internal/platform/middleware"
	"medgate/internal/verify"
	"medgate/pkg/platform/sentinel"
)

// SessionReporter exposes the verification session state for health
// reporting. The verification client satisfies it.
type SessionReporter interface {
	Status() verify.Status
	SessionPersisted() bool
}

// Handler is the operator-facing HTTP surface: batch submission and status,
// plus the challenge relay.
type Handler struct {
	logger          *slog.Logger
	runner          *Runner
	solver          *RelaySolver
	session         SessionReporter
	operatorKeyHash string
}

func NewHandler(runner *Runner, solver *RelaySolver, session SessionReporter, operatorKeyHash string, logger *slog.Logger) *Handler {
	return &Handler{
		logger:          logger,
		runner:          runner,
		solver:          solver,
		session:         session,
		operatorKeyHash: operatorKeyHash,
	}
}

// Register mounts all routes. Mutating endpoints sit behind the operator
// key; reads and the metrics endpoint stay open.
func (h *Handler) Register(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/batches/{runID}", h.handleBatchStatus)
		r.Get("/challenge", h.handleGetChallenge)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireOperatorKey(h.operatorKeyHash, h.logger))
			r.Post("/batches", h.handleStartBatch)
			r.Post("/challenge/{challengeID}", h.handleAnswerChallenge)
		})
	})
}

type startBatchRequest struct {
	RecordIDs []string `json:"record_ids"`
}

type startBatchResponse struct {
	RunID string `json:"run_id"`
}

func (h *Handler) handleStartBatch(w http.ResponseWriter, r *http.Request) {
	var req startBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.RecordIDs) == 0 {
		writeError(w, http.StatusBadRequest, "record_ids is required")
		return
	}

	runID, err := h.runner.Start(r.Context(), req.RecordIDs)
	if err != nil {
		if errors.Is(err, ErrRunActive) {
			writeError(w, http.StatusConflict, "a run is already in progress")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to start batch", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to start batch")
		return
	}

	writeJSON(w, http.StatusAccepted, startBatchResponse{RunID: runID})
}

type batchStatusResponse struct {
	RunID              string         `json:"run_id"`
	State              BatchState     `json:"state"`
	Processed          int            `json:"processed"`
	Total              int            `json:"total"`
	StartedAt          time.Time      `json:"started_at"`
	FinishedAt         *time.Time     `json:"finished_at,omitempty"`
	SessionEstablished *bool          `json:"session_established,omitempty"`
	ByCategory         map[string]int `json:"by_category,omitempty"`
}

func (h *Handler) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	snap, ok := h.runner.Status(runID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown run")
		return
	}

	resp := batchStatusResponse{
		RunID:     snap.RunID,
		State:     snap.State,
		Processed: snap.Processed,
		Total:     snap.Total,
		StartedAt: snap.StartedAt,
	}
	if snap.Report != nil {
		resp.FinishedAt = &snap.FinishedAt
		resp.SessionEstablished = &snap.Report.SessionEstablished
		resp.ByCategory = make(map[string]int, len(snap.Report.ByCategory))
		for category, n := range snap.Report.ByCategory {
			resp.ByCategory[string(category)] = n
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type challengeResponse struct {
	ChallengeID string `json:"challenge_id"`
	Image       []byte `json:"image"`
}

func (h *Handler) handleGetChallenge(w http.ResponseWriter, r *http.Request) {
	ch, ok := h.solver.Current()
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, challengeResponse{ChallengeID: ch.ID, Image: ch.Image})
}

type answerChallengeRequest struct {
	Answer string `json:"answer"`
}

func (h *Handler) handleAnswerChallenge(w http.ResponseWriter, r *http.Request) {
	challengeID := chi.URLParam(r, "challengeID")

	var req answerChallengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Answer == "" {
		writeError(w, http.StatusBadRequest, "answer is required")
		return
	}

	if err := h.solver.Submit(challengeID, req.Answer); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no such pending challenge")
			return
		}
		h.logger.ErrorContext(r.Context(), "failed to accept challenge answer", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to accept answer")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type healthResponse struct {
	Status           string `json:"status"`
	Session          string `json:"session"`
	SessionPersisted bool   `json:"session_persisted"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:           "ok",
		Session:          string(h.session.Status()),
		SessionPersisted: h.session.SessionPersisted(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// NewRouter builds the service router with the shared middleware stack.
func NewRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(h.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(h.logger))
	h.Register(r)
	return r
}
