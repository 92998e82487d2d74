package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/medsourcepro/msapi/internal/auth"
	"github.com/medsourcepro/msapi/internal/services/iam"
)

// LoginRequest represents credentials for password authentication.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents the response from POST /auth/login.
type LoginResponse struct {
	User      UserResponse `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt int64        `json:"expires_at"`
}

// HandleLogin authenticates a user with email and password, establishing both
// a session cookie and a bearer token.
func HandleLogin(iamSvc iam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.Email == "" || req.Password == "" {
			writeError(w, http.StatusBadRequest, "missing email or password")
			return
		}

		result, err := iamSvc.Login(r.Context(), req.Email, req.Password, r.UserAgent(), r.RemoteAddr)
		if err != nil {
			serviceError(w, err, http.StatusUnauthorized)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     auth.SessionCookieName,
			Value:    result.SessionToken,
			Path:     "/",
			Expires:  result.ExpiresAt,
			HttpOnly: true,
			Secure:   r.URL.Scheme == "https",
			SameSite: http.SameSiteLaxMode,
		})

		writeJSON(w, http.StatusOK, LoginResponse{
			User:      toUserResponse(result.User),
			Token:     result.Token,
			ExpiresAt: result.ExpiresAt.UnixMilli(),
		})
	}
}

// TokenRequest represents service account credentials for the client
// credentials grant.
type TokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// TokenResponse represents the response from POST /auth/token.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresAt   int64  `json:"expires_at"`
}

// HandleToken authenticates a service account and issues a bearer token.
func HandleToken(iamSvc iam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.ClientID == "" || req.ClientSecret == "" {
			writeError(w, http.StatusBadRequest, "missing client_id or client_secret")
			return
		}

		token, claims, err := iamSvc.ClientCredentialsLogin(r.Context(), req.ClientID, req.ClientSecret)
		if err != nil {
			serviceError(w, err, http.StatusUnauthorized)
			return
		}

		writeJSON(w, http.StatusOK, TokenResponse{
			AccessToken: token,
			TokenType:   "Bearer",
			ExpiresAt:   claims.ExpiresAt.UnixMilli(),
		})
	}
}

// HandleLogout revokes the caller's session and denylists their token.
func HandleLogout(iamSvc iam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requirePrincipal(w, r)
		if !ok {
			return
		}

		if err := iamSvc.Logout(r.Context(), principal); err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     auth.SessionCookieName,
			Value:    "",
			Path:     "/",
			Expires:  time.Unix(0, 0),
			HttpOnly: true,
			Secure:   r.URL.Scheme == "https",
			SameSite: http.SameSiteLaxMode,
		})

		writeJSON(w, http.StatusOK, map[string]string{"status": "logged out"})
	}
}

// WhoamiResponse represents the response from GET /api/auth/whoami.
type WhoamiResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	RoleLevel int    `json:"role_level"`
	Role      string `json:"role"`
	TeamID    string `json:"team_id,omitempty"`
	AccountID string `json:"account_id,omitempty"`
	Type      string `json:"type"`
}

// HandleWhoAmI returns the authenticated principal's identity and effective
// role level.
func HandleWhoAmI() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requirePrincipal(w, r)
		if !ok {
			return
		}

		writeJSON(w, http.StatusOK, WhoamiResponse{
			ID:        principal.ID,
			Email:     principal.Email,
			Name:      principal.Name,
			RoleLevel: int(principal.Level),
			Role:      principal.Level.String(),
			TeamID:    principal.TeamID,
			AccountID: principal.AccountID,
			Type:      string(principal.Type),
		})
	}
}

// HandleListMySessions returns the caller's own live sessions.
func HandleListMySessions(iamSvc iam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requirePrincipal(w, r)
		if !ok {
			return
		}

		sessions, err := iamSvc.ListUserSessions(r.Context(), principal.ID)
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

// HandleRevokeMySession revokes one of the caller's own sessions. Revoking a
// session belonging to another user requires session:delete at all context
// and lives under /api/admin.
func HandleRevokeMySession(iamSvc iam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requirePrincipal(w, r)
		if !ok {
			return
		}

		sessionID := chi.URLParam(r, "id")
		sessions, err := iamSvc.ListUserSessions(r.Context(), principal.ID)
		if err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}

		owned := false
		for i := range sessions {
			if sessions[i].ID == sessionID {
				owned = true
				break
			}
		}
		if !owned {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}

		if err := iamSvc.RevokeSession(r.Context(), sessionID); err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
	}
}
