// Package handler contains the HTTP handlers for the inbound REST surface.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vulnwarden/api/pkg/apierror"
	"github.com/vulnwarden/api/pkg/domain/shared"
	"github.com/vulnwarden/api/pkg/logger"
	"github.com/vulnwarden/api/pkg/validator"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apierror.BadRequest("invalid request body")
	}
	return nil
}

// handleError maps domain errors onto the API error taxonomy.
func handleError(w http.ResponseWriter, log *logger.Logger, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		apierror.ValidationFailed("validation failed", validationErrs).WriteJSON(w)
		return
	}

	var apiErr *apierror.Error
	if errors.As(err, &apiErr) {
		apiErr.WriteJSON(w)
		return
	}

	switch {
	case shared.IsNotFound(err):
		apierror.NotFound("").WriteJSON(w)
	case shared.IsValidation(err):
		apierror.ValidationFailed(err.Error(), nil).WriteJSON(w)
	case errors.Is(err, shared.ErrForbidden):
		apierror.Forbidden(err.Error()).WriteJSON(w)
	case errors.Is(err, shared.ErrConflict):
		// Lock contention gets 423 so clients can distinguish it from
		// ordinary conflicts like an already-reviewed history entry.
		var domainErr *shared.DomainError
		if errors.As(err, &domainErr) && domainErr.Code == "LOCKED" {
			apierror.Locked(domainErr.Message).WriteJSON(w)
			return
		}
		apierror.Conflict(err.Error()).WriteJSON(w)
	case shared.IsConfiguration(err):
		apierror.Conflict(err.Error()).WriteJSON(w)
	case errors.Is(err, shared.ErrExternalService), shared.IsAuthExpired(err):
		apierror.UpstreamFailure("").WriteJSON(w)
	default:
		log.Error("unhandled error", "error", err)
		apierror.InternalError(err).WriteJSON(w)
	}
}
