package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/medsourcepro/msapi/internal/db/models"
	"github.com/medsourcepro/msapi/internal/rbac"
	"github.com/medsourcepro/msapi/internal/services/accounts"
	"github.com/medsourcepro/msapi/internal/services/iam"
)

// AccountParams carries the writable fields of a customer account.
type AccountParams struct {
	Name            string  `json:"name"`
	Type            string  `json:"type"`
	Territory       string  `json:"territory"`
	TeamID          *string `json:"team_id"`
	OwnerID         *string `json:"owner_id"`
	CreditLimitCent int64   `json:"credit_limit_cent"`
}

func (p AccountParams) apply(account *models.Account) {
	account.Name = p.Name
	account.Type = p.Type
	account.Territory = p.Territory
	account.TeamID = p.TeamID
	account.OwnerID = p.OwnerID
	account.CreditLimitCent = p.CreditLimitCent
}

// HandleCreateAccount handles POST /api/accounts.
func HandleCreateAccount(svc accounts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var params AccountParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		account := &models.Account{}
		params.apply(account)
		if err := svc.CreateAccount(r.Context(), account); err != nil {
			serviceError(w, err, http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusCreated, toAccountResponse(account))
	}
}

// HandleGetAccount handles GET /api/accounts/{id}.
func HandleGetAccount(iamSvc iam.Service, svc accounts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, scope, ok := resolveScope(w, r, iamSvc, rbac.ResourceAccount, rbac.ActionRead)
		if !ok {
			return
		}

		account, err := svc.GetAccount(r.Context(), scope, chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, toAccountResponse(account))
	}
}

// HandleListAccounts handles GET /api/accounts.
func HandleListAccounts(iamSvc iam.Service, svc accounts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, scope, ok := resolveScope(w, r, iamSvc, rbac.ResourceAccount, rbac.ActionRead)
		if !ok {
			return
		}

		list, err := svc.ListAccounts(r.Context(), scope)
		if err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}

		out := make([]AccountResponse, 0, len(list))
		for i := range list {
			out = append(out, toAccountResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// HandleUpdateAccount handles PUT /api/accounts/{id}.
func HandleUpdateAccount(iamSvc iam.Service, svc accounts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, scope, ok := resolveScope(w, r, iamSvc, rbac.ResourceAccount, rbac.ActionWrite)
		if !ok {
			return
		}

		account, err := svc.GetAccount(r.Context(), scope, chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}

		var params AccountParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		params.apply(account)
		account.UpdatedAt = time.Now()
		if err := svc.UpdateAccount(r.Context(), scope, account); err != nil {
			serviceError(w, err, http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, toAccountResponse(account))
	}
}

// HandleDeleteAccount handles DELETE /api/accounts/{id}.
func HandleDeleteAccount(svc accounts.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteAccount(r.Context(), chi.URLParam(r, "id")); err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
