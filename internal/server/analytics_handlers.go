package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/medsourcepro/msapi/internal/services/analytics"
)

// sinceParam parses the since query parameter (RFC 3339), defaulting to the
// last 30 days.
func sinceParam(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return time.Now().AddDate(0, 0, -30), nil
	}
	return time.Parse(time.RFC3339, raw)
}

// HandleRevenueSummary handles GET /api/analytics/revenue-summary.
func HandleRevenueSummary(svc analytics.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requirePrincipal(w, r)
		if !ok {
			return
		}

		since, err := sinceParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since parameter, expected RFC 3339")
			return
		}

		summary, err := svc.RevenueSummary(r.Context(), principal, since)
		if err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, summary)
	}
}

// HandleTopProducts handles GET /api/analytics/top-products.
func HandleTopProducts(svc analytics.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requirePrincipal(w, r)
		if !ok {
			return
		}

		since, err := sinceParam(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid since parameter, expected RFC 3339")
			return
		}

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err = strconv.Atoi(raw)
			if err != nil || limit < 0 {
				writeError(w, http.StatusBadRequest, "invalid limit parameter")
				return
			}
		}

		top, err := svc.TopProducts(r.Context(), principal, since, limit)
		if err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, top)
	}
}
