// Package ops exposes the operational HTTP surface: health, job status, and
// manual job triggering. It is an internal endpoint behind the deployment's
// network boundary, not a user-facing API.
package ops

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"citypulse/internal/db"
	"citypulse/internal/scheduler"
	"citypulse/internal/types"
)

// JobRunner is the scheduler capability the ops surface needs. Satisfied by
// scheduler.Registry. RunNow takes no context: manual runs execute on the
// scheduler's own context and cannot be aborted by the requester.
type JobRunner interface {
	Jobs() []scheduler.JobInfo
	RunNow(key string) (types.JobOutcome, error)
}

// RunHistory lists recent job runs. Satisfied by db.JobRunRepository.
type RunHistory interface {
	ListRecent(ctx context.Context, jobKey string, limit int) ([]types.JobRun, error)
}

// SnapshotHealth reports per-domain snapshot freshness. Satisfied by
// db.SnapshotRepository.
type SnapshotHealth interface {
	ListMeta(ctx context.Context) ([]db.SnapshotMeta, error)
}

// Handler serves the ops routes.
type Handler struct {
	runner    JobRunner
	history   RunHistory
	snapshots SnapshotHealth
	logger    *slog.Logger
}

// NewHandler creates the ops handler.
func NewHandler(runner JobRunner, history RunHistory, snapshots SnapshotHealth, logger *slog.Logger) *Handler {
	return &Handler{runner: runner, history: history, snapshots: snapshots, logger: logger}
}

// Router builds the ops router.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/healthz", h.handleHealth)
		r.Get("/jobs", h.handleListJobs)
	})

	// Manual runs wait for the job to finish, and an ingest cycle can
	// legitimately exceed the read-path timeout.
	r.Post("/jobs/{key}/run", h.handleRunJob)
	return r
}

type healthResponse struct {
	Status    string            `json:"status"`
	Snapshots []db.SnapshotMeta `json:"snapshots"`
}

// handleHealth reports process liveness plus per-domain snapshot state. The
// endpoint stays 200 even with degraded domains; a dead database is the only
// hard failure.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	metas, err := h.snapshots.ListMeta(r.Context())
	if err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "snapshot store unavailable")
		return
	}

	status := "ok"
	for _, m := range metas {
		if !m.Status.Evaluable() {
			status = "degraded"
			break
		}
	}
	h.writeJSON(w, http.StatusOK, healthResponse{Status: status, Snapshots: metas})
}

type jobsResponse struct {
	Jobs []scheduler.JobInfo `json:"jobs"`
	Runs []types.JobRun      `json:"recent_runs"`
}

// handleListJobs returns the registered jobs and recent run history.
func (h *Handler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	runs, err := h.history.ListRecent(r.Context(), r.URL.Query().Get("key"), 50)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "failed to load run history")
		return
	}
	h.writeJSON(w, http.StatusOK, jobsResponse{Jobs: h.runner.Jobs(), Runs: runs})
}

type runResponse struct {
	JobKey  string           `json:"job_key"`
	Outcome types.JobOutcome `json:"outcome"`
}

// handleRunJob triggers one job outside its schedule and waits for the
// outcome. A job already in flight responds 409 with outcome skipped.
func (h *Handler) handleRunJob(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	outcome, err := h.runner.RunNow(key)
	if err != nil {
		h.writeError(w, http.StatusNotFound, "unknown job key")
		return
	}

	status := http.StatusOK
	if outcome == types.JobSkipped {
		status = http.StatusConflict
	}
	h.writeJSON(w, status, runResponse{JobKey: key, Outcome: outcome})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.logger.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
