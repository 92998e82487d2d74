package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/medsourcepro/msapi/internal/rbac"
	"github.com/medsourcepro/msapi/internal/services/iam"
	"github.com/medsourcepro/msapi/internal/services/orders"
)

// HandleCreateOrder handles POST /api/orders.
func HandleCreateOrder(svc orders.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := requirePrincipal(w, r)
		if !ok {
			return
		}

		var params orders.CreateOrderParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		order, err := svc.CreateOrder(r.Context(), principal, params)
		if err != nil {
			serviceError(w, err, http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusCreated, toOrderResponse(order))
	}
}

// HandleGetOrder handles GET /api/orders/{id}.
func HandleGetOrder(iamSvc iam.Service, svc orders.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, scope, ok := resolveScope(w, r, iamSvc, rbac.ResourceOrder, rbac.ActionRead)
		if !ok {
			return
		}

		order, err := svc.GetOrder(r.Context(), scope, chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, toOrderResponse(order))
	}
}

// HandleListOrders handles GET /api/orders.
func HandleListOrders(iamSvc iam.Service, svc orders.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, scope, ok := resolveScope(w, r, iamSvc, rbac.ResourceOrder, rbac.ActionRead)
		if !ok {
			return
		}

		list, err := svc.ListOrders(r.Context(), scope)
		if err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}

		out := make([]OrderResponse, 0, len(list))
		for i := range list {
			out = append(out, toOrderResponse(&list[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// HandleUpdateOrderItems handles PUT /api/orders/{id}/items.
func HandleUpdateOrderItems(iamSvc iam.Service, svc orders.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, scope, ok := resolveScope(w, r, iamSvc, rbac.ResourceOrder, rbac.ActionWrite)
		if !ok {
			return
		}

		var body struct {
			Items []orders.ItemParams `json:"items"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		order, err := svc.UpdateOrderItems(r.Context(), scope, chi.URLParam(r, "id"), body.Items)
		if err != nil {
			serviceError(w, err, http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, toOrderResponse(order))
	}
}

// HandleSubmitOrder handles POST /api/orders/{id}/submit.
func HandleSubmitOrder(iamSvc iam.Service, svc orders.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, scope, ok := resolveScope(w, r, iamSvc, rbac.ResourceOrder, rbac.ActionWrite)
		if !ok {
			return
		}
		order, err := svc.SubmitOrder(r.Context(), scope, chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, toOrderResponse(order))
	}
}

// HandleApproveOrder handles POST /api/orders/{id}/approve.
func HandleApproveOrder(iamSvc iam.Service, svc orders.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, scope, ok := resolveScope(w, r, iamSvc, rbac.ResourceOrder, rbac.ActionApprove)
		if !ok {
			return
		}
		order, err := svc.ApproveOrder(r.Context(), scope, chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, toOrderResponse(order))
	}
}

// HandleFulfillOrder handles POST /api/orders/{id}/fulfill.
func HandleFulfillOrder(iamSvc iam.Service, svc orders.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, scope, ok := resolveScope(w, r, iamSvc, rbac.ResourceOrder, rbac.ActionFulfill)
		if !ok {
			return
		}
		order, err := svc.FulfillOrder(r.Context(), scope, chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, toOrderResponse(order))
	}
}

// HandleShipOrder handles POST /api/orders/{id}/ship.
func HandleShipOrder(iamSvc iam.Service, svc orders.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, scope, ok := resolveScope(w, r, iamSvc, rbac.ResourceOrder, rbac.ActionFulfill)
		if !ok {
			return
		}
		order, err := svc.ShipOrder(r.Context(), scope, chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, toOrderResponse(order))
	}
}

// HandleCancelOrder handles POST /api/orders/{id}/cancel.
func HandleCancelOrder(iamSvc iam.Service, svc orders.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, scope, ok := resolveScope(w, r, iamSvc, rbac.ResourceOrder, rbac.ActionWrite)
		if !ok {
			return
		}
		order, err := svc.CancelOrder(r.Context(), scope, chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, toOrderResponse(order))
	}
}
