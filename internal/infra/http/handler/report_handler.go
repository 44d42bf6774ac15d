package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vulnwarden/api/internal/app"
	"github.com/vulnwarden/api/internal/infra/http/middleware"
	"github.com/vulnwarden/api/pkg/apierror"
	"github.com/vulnwarden/api/pkg/logger"
)

// ReportHandler handles HTTP requests for scan-run reports.
type ReportHandler struct {
	service *app.ReportService
	logger  *logger.Logger
}

// NewReportHandler creates a new ReportHandler.
func NewReportHandler(service *app.ReportService, log *logger.Logger) *ReportHandler {
	return &ReportHandler{
		service: service,
		logger:  log.With("handler", "report"),
	}
}

// Routes mounts the report routes.
func (h *ReportHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{reportID}", h.Get)
	r.Post("/{reportID}/finalise", h.Finalise)
}

// List returns the organisation's reports.
func (h *ReportHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, err := middleware.OrganisationID(r)
	if err != nil {
		apierror.BadRequest("invalid organisation id").WriteJSON(w)
		return
	}

	reports, err := h.service.List(r.Context(), orgID)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

// Get returns one report.
func (h *ReportHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, err := middleware.OrganisationID(r)
	if err != nil {
		apierror.BadRequest("invalid organisation id").WriteJSON(w)
		return
	}

	rep, err := h.service.Get(r.Context(), orgID, chi.URLParam(r, "reportID"))
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, rep)
}

// Finalise marks a preliminary report finalised.
func (h *ReportHandler) Finalise(w http.ResponseWriter, r *http.Request) {
	orgID, err := middleware.OrganisationID(r)
	if err != nil {
		apierror.BadRequest("invalid organisation id").WriteJSON(w)
		return
	}
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		apierror.Unauthorized("").WriteJSON(w)
		return
	}

	rep, err := h.service.Finalise(r.Context(), orgID, chi.URLParam(r, "reportID"), identity)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, rep)
}
