package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vulnwarden/api/internal/app"
	"github.com/vulnwarden/api/internal/infra/http/middleware"
	"github.com/vulnwarden/api/pkg/apierror"
	"github.com/vulnwarden/api/pkg/logger"
)

// ScanHandler handles HTTP requests for the local scan mirror.
type ScanHandler struct {
	service *app.ScanService
	logger  *logger.Logger
}

// NewScanHandler creates a new ScanHandler.
func NewScanHandler(service *app.ScanService, log *logger.Logger) *ScanHandler {
	return &ScanHandler{
		service: service,
		logger:  log.With("handler", "scan"),
	}
}

// Routes mounts the scan routes.
func (h *ScanHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/{scanID}", h.Get)
	r.Get("/{scanID}/editable", h.Editable)
}

// List returns the organisation's scans.
func (h *ScanHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, err := middleware.OrganisationID(r)
	if err != nil {
		apierror.BadRequest("invalid organisation id").WriteJSON(w)
		return
	}

	includeDeleted := r.URL.Query().Get("include_deleted") == "true"
	scans, err := h.service.List(r.Context(), orgID, includeDeleted)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"scans": scans})
}

// Get returns one scan by external id.
func (h *ScanHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, err := middleware.OrganisationID(r)
	if err != nil {
		apierror.BadRequest("invalid organisation id").WriteJSON(w)
		return
	}

	sc, err := h.service.Get(r.Context(), orgID, chi.URLParam(r, "scanID"))
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, sc)
}

// Editable reports whether the scan may be edited right now.
func (h *ScanHandler) Editable(w http.ResponseWriter, r *http.Request) {
	orgID, err := middleware.OrganisationID(r)
	if err != nil {
		apierror.BadRequest("invalid organisation id").WriteJSON(w)
		return
	}

	editable, err := h.service.CanEdit(r.Context(), orgID, chi.URLParam(r, "scanID"))
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"editable": editable})
}
