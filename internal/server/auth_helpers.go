package server

import (
	"log"
	"net/http"

	"github.com/medsourcepro/msapi/internal/auth"
	"github.com/medsourcepro/msapi/internal/rbac"
	"github.com/medsourcepro/msapi/internal/repository"
	"github.com/medsourcepro/msapi/internal/services/iam"
)

// requirePrincipal extracts the authenticated principal or writes a 401.
func requirePrincipal(w http.ResponseWriter, r *http.Request) (auth.Principal, bool) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "authentication required")
	}
	return principal, ok
}

// resolveScope resolves the broadest context the principal's level allows for
// the permission tuple and builds the matching repository scope. Writes the
// error response itself when the caller has no grant at any context.
func resolveScope(w http.ResponseWriter, r *http.Request, iamSvc iam.Service, resource rbac.Resource, action rbac.Action) (auth.Principal, repository.Scope, bool) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return auth.Principal{}, repository.Scope{}, false
	}

	permCtx, allowed, err := iamSvc.BroadestContext(r.Context(), principal.Level, resource, action)
	if err != nil {
		log.Printf("Authorization check failed: %v", err)
		writeError(w, http.StatusInternalServerError, "authorization check failed")
		return auth.Principal{}, repository.Scope{}, false
	}
	// A grant at context none carries no data visibility; treat it the same
	// as no grant rather than letting the scope fail downstream.
	if !allowed || permCtx == rbac.ContextNone {
		writeError(w, http.StatusForbidden, "permission denied")
		return auth.Principal{}, repository.Scope{}, false
	}

	return principal, repository.Scope{
		Context:   string(permCtx),
		UserID:    principal.ID,
		TeamID:    principal.TeamID,
		AccountID: principal.AccountID,
	}, true
}
