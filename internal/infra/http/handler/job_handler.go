package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vulnwarden/api/internal/app"
	"github.com/vulnwarden/api/internal/infra/http/middleware"
	"github.com/vulnwarden/api/pkg/apierror"
	"github.com/vulnwarden/api/pkg/domain/job"
	"github.com/vulnwarden/api/pkg/logger"
)

// JobHandler exposes the import queue for inspection and lets staff
// trigger pipeline jobs outside their schedule.
type JobHandler struct {
	queue     job.Repository
	scheduler *app.Scheduler
	jobs      map[string]app.Job
	logger    *logger.Logger
}

// NewJobHandler creates a new JobHandler.
func NewJobHandler(queue job.Repository, scheduler *app.Scheduler, jobs map[string]app.Job, log *logger.Logger) *JobHandler {
	return &JobHandler{
		queue:     queue,
		scheduler: scheduler,
		jobs:      jobs,
		logger:    log.With("handler", "job"),
	}
}

// Routes mounts the organisation-scoped queue inspection route.
func (h *JobHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
}

// AdminRoutes mounts the staff-only trigger route.
func (h *JobHandler) AdminRoutes(r chi.Router) {
	r.Post("/{jobName}/run", h.Trigger)
}

// List returns the organisation's queue rows, including rows stuck at the
// attempts ceiling.
func (h *JobHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, err := middleware.OrganisationID(r)
	if err != nil {
		apierror.BadRequest("invalid organisation id").WriteJSON(w)
		return
	}

	entries, err := h.queue.ListByOrganisation(r.Context(), orgID)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"jobs": entries})
}

// Trigger runs a pipeline job immediately.
func (h *JobHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "jobName")
	j, ok := h.jobs[name]
	if !ok {
		apierror.NotFound("job").WriteJSON(w)
		return
	}

	h.scheduler.RunNow(name, j)
	h.logger.Info("job triggered", "job", name)
	respondJSON(w, http.StatusAccepted, map[string]string{"status": "triggered", "job": name})
}
