package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/vulnwarden/api/internal/app"
	"github.com/vulnwarden/api/internal/infra/http/middleware"
	"github.com/vulnwarden/api/pkg/apierror"
	"github.com/vulnwarden/api/pkg/domain/tenant"
	"github.com/vulnwarden/api/pkg/domain/vulnerability"
	"github.com/vulnwarden/api/pkg/logger"
	"github.com/vulnwarden/api/pkg/validator"
)

// VulnerabilityHandler handles HTTP requests for vulnerabilities, their
// lifecycle actions, history review and notes.
type VulnerabilityHandler struct {
	service   *app.LifecycleService
	validator *validator.Validator
	logger    *logger.Logger
}

// NewVulnerabilityHandler creates a new VulnerabilityHandler.
func NewVulnerabilityHandler(service *app.LifecycleService, v *validator.Validator, log *logger.Logger) *VulnerabilityHandler {
	return &VulnerabilityHandler{
		service:   service,
		validator: v,
		logger:    log.With("handler", "vulnerability"),
	}
}

// Routes mounts the vulnerability routes.
func (h *VulnerabilityHandler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/lock", h.Lock)
	r.Post("/unlock", h.Unlock)
	r.Post("/actions", h.BulkAction)

	r.Route("/{vulnID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Delete("/", h.Delete)
		r.Post("/actions", h.Action)
		r.Post("/history/{entryID}/approve", h.ApproveHistory)
		r.Post("/history/{entryID}/reject", h.RejectHistory)
		r.Post("/notes", h.AddNote)
		r.Put("/notes/{noteID}", h.UpdateNote)
		r.Delete("/notes/{noteID}", h.DeleteNote)
	})
}

// --- Request Types ---

// LockRequest identifies the vulnerabilities to lock or unlock.
type LockRequest struct {
	VulnerabilityIDs []string `json:"vulnerability_ids" validate:"required,min=1,max=500"`
}

// ActionRequest carries one lifecycle action payload.
type ActionRequest struct {
	Action    string     `json:"action" validate:"required,action_kind"`
	Reason    string     `json:"reason" validate:"max=2000"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	Date      *time.Time `json:"date"`
}

// BulkActionRequest combines an action with a target filter. The sentinel
// values "any" and "all" on a filter dimension mean no filter.
type BulkActionRequest struct {
	ActionRequest
	Ports     []int    `json:"ports"`
	Protocol  string   `json:"protocol"`
	PluginIDs []string `json:"plugin_ids"`
	Targets   []string `json:"targets"`
}

// RejectRequest carries the mandatory rejection reason.
type RejectRequest struct {
	RejectReason string `json:"reject_reason" validate:"required,max=2000"`
}

// NoteRequest carries a note body.
type NoteRequest struct {
	Note string `json:"note" validate:"required,max=5000"`
}

func (req *ActionRequest) toAction() vulnerability.Action {
	switch vulnerability.Kind(req.Action) {
	case vulnerability.KindFalsePositive:
		return vulnerability.NewFalsePositive(req.Reason)
	case vulnerability.KindSecurityException:
		var start, end time.Time
		if req.StartDate != nil {
			start = *req.StartDate
		}
		if req.EndDate != nil {
			end = *req.EndDate
		}
		return vulnerability.NewSecurityException(start, end, req.Reason)
	case vulnerability.KindProposedCloseDate:
		var date time.Time
		if req.Date != nil {
			date = *req.Date
		}
		return vulnerability.NewProposedCloseDate(date, req.Reason)
	default:
		return vulnerability.Action{}
	}
}

func (req *BulkActionRequest) toFilter() vulnerability.ActionFilter {
	return vulnerability.ActionFilter{
		Ports:     req.Ports,
		Protocol:  dropSentinel(req.Protocol),
		PluginIDs: dropSentinels(req.PluginIDs),
		Targets:   dropSentinels(req.Targets),
	}
}

func dropSentinel(v string) string {
	switch strings.ToLower(v) {
	case "any", "all":
		return ""
	}
	return v
}

func dropSentinels(vs []string) []string {
	if len(vs) == 1 {
		if s := strings.ToLower(vs[0]); s == "any" || s == "all" {
			return nil
		}
	}
	return vs
}

// --- Handlers ---

// List returns vulnerabilities matching the query filters.
func (h *VulnerabilityHandler) List(w http.ResponseWriter, r *http.Request) {
	orgID, err := middleware.OrganisationID(r)
	if err != nil {
		apierror.BadRequest("invalid organisation id").WriteJSON(w)
		return
	}

	q := r.URL.Query()
	filter := vulnerability.ListFilter{
		TenableScanID:  q.Get("scan_id"),
		IncludeDeleted: q.Get("include_deleted") == "true",
	}
	for _, raw := range q["severity"] {
		filter.Severities = append(filter.Severities, vulnerability.ParseSeverity(raw))
	}
	filter.PluginIDs = q["plugin_id"]
	filter.Targets = q["target"]

	vulns, err := h.service.List(r.Context(), orgID, filter)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"vulnerabilities": vulns})
}

// Get returns one vulnerability.
func (h *VulnerabilityHandler) Get(w http.ResponseWriter, r *http.Request) {
	orgID, err := middleware.OrganisationID(r)
	if err != nil {
		apierror.BadRequest("invalid organisation id").WriteJSON(w)
		return
	}

	v, err := h.service.Get(r.Context(), orgID, chi.URLParam(r, "vulnID"))
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"vulnerability": v,
		"sla_deadline":  v.SLADeadline(),
		"within_sla":    v.WithinSLA(time.Now()),
	})
}

// Lock attempts to lock a set of vulnerabilities for the caller.
func (h *VulnerabilityHandler) Lock(w http.ResponseWriter, r *http.Request) {
	orgID, identity, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req LockRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, h.logger, err)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleError(w, h.logger, err)
		return
	}

	result, err := h.service.Lock(r.Context(), orgID, req.VulnerabilityIDs, identity.UserID)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	status := http.StatusOK
	if result.Outcome == app.LockOutcomeAlreadyLocked {
		status = http.StatusConflict
	}
	respondJSON(w, status, result)
}

// Unlock releases the caller's locks.
func (h *VulnerabilityHandler) Unlock(w http.ResponseWriter, r *http.Request) {
	orgID, identity, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req LockRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, h.logger, err)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleError(w, h.logger, err)
		return
	}

	released, err := h.service.Unlock(r.Context(), orgID, req.VulnerabilityIDs, identity.UserID)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]int64{"released": released})
}

// Action applies one lifecycle action to one vulnerability.
func (h *VulnerabilityHandler) Action(w http.ResponseWriter, r *http.Request) {
	orgID, identity, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req ActionRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, h.logger, err)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleError(w, h.logger, err)
		return
	}

	v, err := h.service.PerformAction(r.Context(), orgID, chi.URLParam(r, "vulnID"), req.toAction(), identity)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, v)
}

// BulkAction applies one action to every vulnerability matching the filter.
func (h *VulnerabilityHandler) BulkAction(w http.ResponseWriter, r *http.Request) {
	orgID, identity, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req BulkActionRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, h.logger, err)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleError(w, h.logger, err)
		return
	}

	result, err := h.service.PerformBulkAction(r.Context(), orgID, req.toFilter(), req.toAction(), identity)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// ApproveHistory approves a pending history entry.
func (h *VulnerabilityHandler) ApproveHistory(w http.ResponseWriter, r *http.Request) {
	orgID, identity, ok := h.scope(w, r)
	if !ok {
		return
	}

	v, err := h.service.ApproveHistory(r.Context(), orgID,
		chi.URLParam(r, "vulnID"), chi.URLParam(r, "entryID"), identity)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, v)
}

// RejectHistory rejects a pending history entry.
func (h *VulnerabilityHandler) RejectHistory(w http.ResponseWriter, r *http.Request) {
	orgID, identity, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req RejectRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, h.logger, err)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleError(w, h.logger, err)
		return
	}

	v, err := h.service.RejectHistory(r.Context(), orgID,
		chi.URLParam(r, "vulnID"), chi.URLParam(r, "entryID"), req.RejectReason, identity)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, v)
}

// AddNote appends a note.
func (h *VulnerabilityHandler) AddNote(w http.ResponseWriter, r *http.Request) {
	orgID, identity, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req NoteRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, h.logger, err)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleError(w, h.logger, err)
		return
	}

	note, err := h.service.AddNote(r.Context(), orgID, chi.URLParam(r, "vulnID"), req.Note, identity)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusCreated, note)
}

// UpdateNote replaces a note's text.
func (h *VulnerabilityHandler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	orgID, identity, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req NoteRequest
	if err := decodeJSON(r, &req); err != nil {
		handleError(w, h.logger, err)
		return
	}
	if err := h.validator.Validate(req); err != nil {
		handleError(w, h.logger, err)
		return
	}

	err := h.service.UpdateNote(r.Context(), orgID,
		chi.URLParam(r, "vulnID"), chi.URLParam(r, "noteID"), req.Note, identity)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// DeleteNote removes a note.
func (h *VulnerabilityHandler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	orgID, identity, ok := h.scope(w, r)
	if !ok {
		return
	}

	err := h.service.DeleteNote(r.Context(), orgID,
		chi.URLParam(r, "vulnID"), chi.URLParam(r, "noteID"), identity)
	if err != nil {
		handleError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusNoContent, nil)
}

// Delete soft-deletes a vulnerability.
func (h *VulnerabilityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	orgID, identity, ok := h.scope(w, r)
	if !ok {
		return
	}

	if err := h.service.SoftDelete(r.Context(), orgID, chi.URLParam(r, "vulnID"), identity); err != nil {
		handleError(w, h.logger, err)
		return
	}

	respondJSON(w, http.StatusNoContent, nil)
}

// scope extracts the organisation and identity, writing the error response
// on failure.
func (h *VulnerabilityHandler) scope(w http.ResponseWriter, r *http.Request) (int64, tenant.Identity, bool) {
	orgID, err := middleware.OrganisationID(r)
	if err != nil {
		apierror.BadRequest("invalid organisation id").WriteJSON(w)
		return 0, tenant.Identity{}, false
	}
	identity, ok := middleware.GetIdentity(r.Context())
	if !ok {
		apierror.Unauthorized("").WriteJSON(w)
		return 0, tenant.Identity{}, false
	}
	return orgID, identity, true
}
