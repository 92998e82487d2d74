package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medsourcepro/msapi/internal/rbac"
	"github.com/medsourcepro/msapi/internal/services/iam"
)

// CreateUserRequest represents the body of POST /api/admin/users.
type CreateUserRequest struct {
	Email     string  `json:"email"`
	Name      string  `json:"name"`
	Password  string  `json:"password"`
	RoleLevel int     `json:"role_level"`
	TeamID    *string `json:"team_id,omitempty"`
	AccountID *string `json:"account_id,omitempty"`
}

// HandleCreateUser handles POST /api/admin/users. Granting Admin or above
// requires a SuperAdmin caller; the service enforces the escalation gate.
func HandleCreateUser(iamSvc iam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requirePrincipal(w, r)
		if !ok {
			return
		}

		var req CreateUserRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		user, err := iamSvc.CreateUser(r.Context(), principal, iam.CreateUserParams{
			Email:     req.Email,
			Name:      req.Name,
			Password:  req.Password,
			Level:     rbac.RoleLevel(req.RoleLevel),
			TeamID:    req.TeamID,
			AccountID: req.AccountID,
		})
		if err != nil {
			serviceError(w, err, http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusCreated, toUserResponse(user))
	}
}

// HandleListUsers handles GET /api/admin/users.
func HandleListUsers(iamSvc iam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, err := iamSvc.ListUsers(r.Context())
		if err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}

		out := make([]UserResponse, 0, len(users))
		for i := range users {
			out = append(out, toUserResponse(&users[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// HandleGetUser handles GET /api/admin/users/{id}.
func HandleGetUser(iamSvc iam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := iamSvc.GetUserByID(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, toUserResponse(user))
	}
}

// SetRoleRequest represents the body of PUT /api/admin/users/{id}/role.
type SetRoleRequest struct {
	RoleLevel int `json:"role_level"`
}

// HandleSetUserRole handles PUT /api/admin/users/{id}/role. The user's live
// sessions are revoked so the old level cannot linger.
func HandleSetUserRole(iamSvc iam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requirePrincipal(w, r)
		if !ok {
			return
		}

		var req SetRoleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		userID := chi.URLParam(r, "id")
		if err := iamSvc.SetUserRole(r.Context(), principal, userID, rbac.RoleLevel(req.RoleLevel)); err != nil {
			serviceError(w, err, http.StatusBadRequest)
			return
		}

		user, err := iamSvc.GetUserByID(r.Context(), userID)
		if err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, toUserResponse(user))
	}
}

// HandleDisableUser handles POST /api/admin/users/{id}/disable.
func HandleDisableUser(iamSvc iam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := iamSvc.DisableUser(r.Context(), chi.URLParam(r, "id")); err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
	}
}

// HandleListUserSessions handles GET /api/admin/users/{id}/sessions.
func HandleListUserSessions(iamSvc iam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sessions, err := iamSvc.ListUserSessions(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}

		out := make([]SessionResponse, 0, len(sessions))
		for i := range sessions {
			out = append(out, toSessionResponse(&sessions[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// HandleRevokeUserSessions handles DELETE /api/admin/users/{id}/sessions.
func HandleRevokeUserSessions(iamSvc iam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := iamSvc.RevokeAllSessions(r.Context(), chi.URLParam(r, "id")); err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
	}
}

// CreateServiceAccountRequest represents the body of
// POST /api/admin/service-accounts.
type CreateServiceAccountRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	RoleLevel   int    `json:"role_level"`
}

// CreateServiceAccountResponse returns the unhashed client secret exactly
// once; it cannot be retrieved again.
type CreateServiceAccountResponse struct {
	ServiceAccount ServiceAccountResponse `json:"service_account"`
	ClientSecret   string                 `json:"client_secret"`
}

// HandleCreateServiceAccount handles POST /api/admin/service-accounts.
func HandleCreateServiceAccount(iamSvc iam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requirePrincipal(w, r)
		if !ok {
			return
		}

		var req CreateServiceAccountRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		sa, secret, err := iamSvc.CreateServiceAccount(r.Context(), req.Name, req.Description, rbac.RoleLevel(req.RoleLevel), principal.ID)
		if err != nil {
			serviceError(w, err, http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusCreated, CreateServiceAccountResponse{
			ServiceAccount: toServiceAccountResponse(sa),
			ClientSecret:   secret,
		})
	}
}

// HandleListServiceAccounts handles GET /api/admin/service-accounts.
func HandleListServiceAccounts(iamSvc iam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := iamSvc.ListServiceAccounts(r.Context())
		if err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}

		out := make([]ServiceAccountResponse, 0, len(list))
		for i := range list {
			out = append(out, toServiceAccountResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// RotateSecretResponse returns the replacement secret exactly once.
type RotateSecretResponse struct {
	ClientSecret string `json:"client_secret"`
	RotatedAt    int64  `json:"rotated_at"`
}

// HandleRotateServiceAccountSecret handles
// POST /api/admin/service-accounts/{clientID}/rotate.
func HandleRotateServiceAccountSecret(iamSvc iam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		secret, rotatedAt, err := iamSvc.RotateServiceAccountSecret(r.Context(), chi.URLParam(r, "clientID"))
		if err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, RotateSecretResponse{
			ClientSecret: secret,
			RotatedAt:    rotatedAt.UnixMilli(),
		})
	}
}

// HandleRevokeServiceAccount handles
// DELETE /api/admin/service-accounts/{clientID}.
func HandleRevokeServiceAccount(iamSvc iam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := iamSvc.RevokeServiceAccount(r.Context(), chi.URLParam(r, "clientID")); err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
	}
}

// HandleListPolicy handles GET /api/admin/policy.
func HandleListPolicy(iamSvc iam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rules, err := iamSvc.ListPolicy(r.Context())
		if err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}

		out := make([]PolicyRuleResponse, 0, len(rules))
		for _, rule := range rules {
			out = append(out, toPolicyRuleResponse(rule))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// PolicyRuleRequest represents the body of PUT and DELETE on
// /api/admin/policy.
type PolicyRuleRequest struct {
	Resource string `json:"resource"`
	Action   string `json:"action"`
	Context  string `json:"context"`
	MinLevel int    `json:"min_level,omitempty"`
}

// HandleSetPolicy handles PUT /api/admin/policy. Inserts or replaces the
// threshold for one permission tuple; running decisions see the change
// immediately because the decision cache is purged.
func HandleSetPolicy(iamSvc iam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PolicyRuleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		err := iamSvc.SetPermissionThreshold(
			r.Context(),
			rbac.Resource(req.Resource),
			rbac.Action(req.Action),
			rbac.Context(req.Context),
			rbac.RoleLevel(req.MinLevel),
		)
		if err != nil {
			serviceError(w, err, http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
	}
}

// HandleRemovePolicy handles DELETE /api/admin/policy. The tuple denies once
// removed; unknown tuples always deny.
func HandleRemovePolicy(iamSvc iam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req PolicyRuleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		err := iamSvc.RemovePermission(
			r.Context(),
			rbac.Resource(req.Resource),
			rbac.Action(req.Action),
			rbac.Context(req.Context),
		)
		if err != nil {
			serviceError(w, err, http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
	}
}
