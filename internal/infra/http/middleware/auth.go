// Package middleware provides the HTTP middleware stack: bearer
// authentication, organisation scoping, rate limiting and request body
// decompression.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/vulnwarden/api/internal/config"
	"github.com/vulnwarden/api/pkg/apierror"
	"github.com/vulnwarden/api/pkg/domain/tenant"
	"github.com/vulnwarden/api/pkg/logger"
)

type contextKey string

const identityKey contextKey = "identity"

// claims is the expected bearer token payload.
type claims struct {
	jwt.RegisteredClaims
	UserType      string  `json:"user_type"`
	Organisations []int64 `json:"organizations"`
}

// GetIdentity extracts the authenticated identity from the context.
func GetIdentity(ctx context.Context) (tenant.Identity, bool) {
	id, ok := ctx.Value(identityKey).(tenant.Identity)
	return id, ok
}

// Auth validates the bearer token and attaches the caller identity.
func Auth(cfg config.AuthConfig, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				apierror.Unauthorized("").WriteJSON(w)
				return
			}

			var c claims
			token, err := jwt.ParseWithClaims(raw, &c, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
				}
				return []byte(cfg.JWTSecret), nil
			}, jwt.WithIssuer(cfg.JWTIssuer))
			if err != nil || !token.Valid {
				log.Debug("token rejected", "error", err)
				apierror.Unauthorized("Invalid or expired token").WriteJSON(w)
				return
			}

			identity := tenant.Identity{
				UserID:        c.Subject,
				UserType:      tenant.UserType(c.UserType),
				Organisations: c.Organisations,
			}
			if identity.UserID == "" {
				apierror.Unauthorized("Token carries no subject").WriteJSON(w)
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireOrganisationAccess enforces that the caller may act on the
// organisation named in the route. Staff identities pass for any
// organisation; customers only for their own.
func RequireOrganisationAccess() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := GetIdentity(r.Context())
			if !ok {
				apierror.Unauthorized("").WriteJSON(w)
				return
			}

			orgID, err := OrganisationID(r)
			if err != nil {
				apierror.BadRequest("invalid organisation id").WriteJSON(w)
				return
			}

			if !identity.CanAccess(orgID) {
				apierror.Forbidden("No access to this organisation").WriteJSON(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RequireStaff rejects non-staff callers.
func RequireStaff() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := GetIdentity(r.Context())
			if !ok {
				apierror.Unauthorized("").WriteJSON(w)
				return
			}
			if !identity.UserType.IsStaff() {
				apierror.Forbidden("Staff access required").WriteJSON(w)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// OrganisationID parses the organisation route parameter.
func OrganisationID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "orgID"), 10, 64)
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
