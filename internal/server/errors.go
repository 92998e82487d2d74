package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/medsourcepro/msapi/internal/db/models"
	"github.com/medsourcepro/msapi/internal/repository"
	"github.com/medsourcepro/msapi/internal/services/accounts"
	"github.com/medsourcepro/msapi/internal/services/analytics"
	"github.com/medsourcepro/msapi/internal/services/catalog"
	"github.com/medsourcepro/msapi/internal/services/iam"
	"github.com/medsourcepro/msapi/internal/services/orders"
	"github.com/medsourcepro/msapi/internal/services/quotes"
)

// errorResponse is the JSON error envelope returned by every handler.
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// serviceError maps known service errors to HTTP statuses. Errors with no
// sentinel fall back to the given status; 5xx fallbacks hide the message.
func serviceError(w http.ResponseWriter, err error, fallback int) {
	status := fallback
	switch {
	case errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrInvalidTransition),
		errors.Is(err, repository.ErrStatusConflict),
		errors.Is(err, catalog.ErrDuplicateSKU),
		errors.Is(err, orders.ErrOrderNotEditable),
		errors.Is(err, orders.ErrCreditLimitExceeded),
		errors.Is(err, quotes.ErrQuoteExpired),
		errors.Is(err, quotes.ErrApprovalRequired):
		status = http.StatusConflict
	case errors.Is(err, catalog.ErrInvalidLabelExpr),
		errors.Is(err, catalog.ErrInvalidImport),
		errors.Is(err, orders.ErrEmptyOrder),
		errors.Is(err, quotes.ErrEmptyQuote),
		errors.Is(err, accounts.ErrInvalidAccountType):
		status = http.StatusBadRequest
	case errors.Is(err, orders.ErrProductUnavailable),
		errors.Is(err, quotes.ErrProductUnavailable):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, analytics.ErrNoAccess),
		errors.Is(err, iam.ErrRoleEscalation),
		errors.Is(err, iam.ErrPrincipalDisabled):
		status = http.StatusForbidden
	case errors.Is(err, iam.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	}

	if status >= http.StatusInternalServerError {
		log.Printf("Request failed: %v", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}
