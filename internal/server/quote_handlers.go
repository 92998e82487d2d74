package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medsourcepro/msapi/internal/rbac"
	"github.com/medsourcepro/msapi/internal/services/iam"
	"github.com/medsourcepro/msapi/internal/services/quotes"
)

// HandleRequestQuote handles POST /api/quotes.
func HandleRequestQuote(svc quotes.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requirePrincipal(w, r)
		if !ok {
			return
		}

		var params quotes.RequestQuoteParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		quote, err := svc.RequestQuote(r.Context(), principal, params)
		if err != nil {
			serviceError(w, err, http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusCreated, toQuoteResponse(quote))
	}
}

// HandleGetQuote handles GET /api/quotes/{id}.
func HandleGetQuote(iamSvc iam.Service, svc quotes.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, scope, ok := resolveScope(w, r, iamSvc, rbac.ResourceQuote, rbac.ActionRead)
		if !ok {
			return
		}

		quote, err := svc.GetQuote(r.Context(), scope, chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, toQuoteResponse(quote))
	}
}

// HandleListQuotes handles GET /api/quotes.
func HandleListQuotes(iamSvc iam.Service, svc quotes.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, scope, ok := resolveScope(w, r, iamSvc, rbac.ResourceQuote, rbac.ActionRead)
		if !ok {
			return
		}

		list, err := svc.ListQuotes(r.Context(), scope)
		if err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}

		out := make([]QuoteResponse, 0, len(list))
		for i := range list {
			out = append(out, toQuoteResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// HandlePriceQuote handles POST /api/quotes/{id}/price.
func HandlePriceQuote(iamSvc iam.Service, svc quotes.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, scope, ok := resolveScope(w, r, iamSvc, rbac.ResourceQuote, rbac.ActionWrite)
		if !ok {
			return
		}

		var params quotes.PriceParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		quote, err := svc.PriceQuote(r.Context(), scope, chi.URLParam(r, "id"), params)
		if err != nil {
			serviceError(w, err, http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, toQuoteResponse(quote))
	}
}

// HandleApproveQuote handles POST /api/quotes/{id}/approve.
func HandleApproveQuote(iamSvc iam.Service, svc quotes.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, scope, ok := resolveScope(w, r, iamSvc, rbac.ResourceQuote, rbac.ActionApprove)
		if !ok {
			return
		}

		quote, err := svc.ApproveQuote(r.Context(), scope, principal, chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, toQuoteResponse(quote))
	}
}

// HandleRejectQuote handles POST /api/quotes/{id}/reject.
func HandleRejectQuote(iamSvc iam.Service, svc quotes.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, scope, ok := resolveScope(w, r, iamSvc, rbac.ResourceQuote, rbac.ActionWrite)
		if !ok {
			return
		}

		quote, err := svc.RejectQuote(r.Context(), scope, chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, toQuoteResponse(quote))
	}
}

// ConvertQuoteResponse carries both sides of a conversion.
type ConvertQuoteResponse struct {
	Quote QuoteResponse `json:"quote"`
	Order OrderResponse `json:"order"`
}

// HandleConvertQuote handles POST /api/quotes/{id}/convert.
func HandleConvertQuote(iamSvc iam.Service, svc quotes.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, scope, ok := resolveScope(w, r, iamSvc, rbac.ResourceQuote, rbac.ActionWrite)
		if !ok {
			return
		}

		quote, order, err := svc.ConvertQuote(r.Context(), scope, chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, ConvertQuoteResponse{
			Quote: toQuoteResponse(quote),
			Order: toOrderResponse(order),
		})
	}
}
