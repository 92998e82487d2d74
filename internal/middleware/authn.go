// Package middleware provides HTTP middleware for authentication,
// authorization guards and request telemetry.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/medsourcepro/msapi/internal/auth"
	"github.com/medsourcepro/msapi/internal/services/iam"
	"github.com/medsourcepro/msapi/internal/telemetry"
)

// AuthnDependencies bundles what the authentication middleware needs.
type AuthnDependencies struct {
	IAM     iam.Service
	Metrics *telemetry.AuthMetrics // optional
}

// Authenticate resolves credentials on the request to a Principal and stores
// it on the context. The session cookie is tried before the Authorization
// header. Requests without credentials pass through anonymously; handlers and
// guards decide whether that is acceptable.
func Authenticate(deps AuthnDependencies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := iam.AuthRequest{
				SessionToken: sessionToken(r),
				BearerToken:  bearerToken(r),
			}

			if req.SessionToken == "" && req.BearerToken == "" {
				next.ServeHTTP(w, r)
				return
			}

			method := "bearer"
			if req.SessionToken != "" {
				method = "session"
			}

			principal, err := deps.IAM.AuthenticateRequest(r.Context(), req)
			if deps.Metrics != nil {
				deps.Metrics.RecordAuth(r.Context(), method, err == nil)
			}
			if err != nil {
				http.Error(w, authFailureMessage(err), http.StatusUnauthorized)
				return
			}

			ctx := auth.WithPrincipal(r.Context(), *principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func sessionToken(r *http.Request) string {
	cookie, err := r.Cookie(auth.SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// authFailureMessage maps authentication errors to client-safe messages
// without leaking which check failed beyond broad categories.
func authFailureMessage(err error) string {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return "token expired"
	case errors.Is(err, iam.ErrTokenRevoked):
		return "token revoked"
	case errors.Is(err, iam.ErrPrincipalDisabled):
		return "account disabled"
	default:
		return "invalid credentials"
	}
}
