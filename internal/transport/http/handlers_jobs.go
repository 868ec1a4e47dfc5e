package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"busybeaver/internal/queue"
	"busybeaver/pkg/platform/httputil"
	"busybeaver/pkg/requestcontext"
)

// JobService is the queue as seen by the HTTP layer.
type JobService interface {
	Enqueue(ctx context.Context, name string, payload any) (*queue.Job, error)
	Job(ctx context.Context, id string) (*queue.Job, error)
}

type JobsHandler struct {
	jobs   JobService
	logger *slog.Logger
}

func NewJobsHandler(jobs JobService, logger *slog.Logger) *JobsHandler {
	return &JobsHandler{jobs: jobs, logger: logger}
}

func (h *JobsHandler) Register(r chi.Router) {
	r.Post("/jobs", h.handleEnqueue)
	r.Get("/jobs/{jobID}", h.handleGet)
}

type enqueueRequest struct {
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload"`
}

func (h *JobsHandler) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		h.logger.WarnContext(ctx, "invalid enqueue request", "request_id", requestID)
		httputil.WriteError(w, fmt.Errorf("%w: body must be {\"name\": string, \"payload\": any}", httputil.ErrBadRequest))
		return
	}

	job, err := h.jobs.Enqueue(ctx, req.Name, req.Payload)
	if err != nil {
		if errors.Is(err, queue.ErrUnknownJob) {
			httputil.WriteError(w, fmt.Errorf("%w: %v", httputil.ErrBadRequest, err))
			return
		}
		h.logger.ErrorContext(ctx, "enqueue failed",
			"request_id", requestID,
			"job", req.Name,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "job accepted",
		"request_id", requestID,
		"job_id", job.ID,
		"job", job.Name,
		"subject", requestcontext.Subject(ctx),
	)
	httputil.WriteJSON(w, http.StatusAccepted, job)
}

func (h *JobsHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	job, err := h.jobs.Job(ctx, chi.URLParam(r, "jobID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, job)
}
