package server

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/medsourcepro/msapi/internal/db/models"
	"github.com/medsourcepro/msapi/internal/repository"
	"github.com/medsourcepro/msapi/internal/services/catalog"
)

// ProductParams carries the writable fields of a product.
type ProductParams struct {
	SKU           string            `json:"sku"`
	Name          string            `json:"name"`
	Description   string            `json:"description"`
	Category      string            `json:"category"`
	UnitPriceCent int64             `json:"unit_price_cent"`
	UnitOfMeasure string            `json:"unit_of_measure"`
	RxRequired    bool              `json:"rx_required"`
	HazmatClass   string            `json:"hazmat_class"`
	StockQty      int               `json:"stock_qty"`
	Labels        map[string]string `json:"labels"`
}

func (p ProductParams) apply(product *models.Product) {
	product.SKU = p.SKU
	product.Name = p.Name
	product.Description = p.Description
	product.Category = p.Category
	product.UnitPriceCent = p.UnitPriceCent
	product.UnitOfMeasure = p.UnitOfMeasure
	if product.UnitOfMeasure == "" {
		product.UnitOfMeasure = "each"
	}
	product.RxRequired = p.RxRequired
	product.HazmatClass = p.HazmatClass
	product.StockQty = p.StockQty
	product.Labels = p.Labels
	if product.Labels == nil {
		product.Labels = models.LabelMap{}
	}
}

// HandleCreateProduct handles POST /api/products.
func HandleCreateProduct(svc catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var params ProductParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		product := &models.Product{}
		params.apply(product)
		if err := svc.CreateProduct(r.Context(), product); err != nil {
			serviceError(w, err, http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusCreated, toProductResponse(product))
	}
}

// HandleGetProduct handles GET /api/products/{id}.
func HandleGetProduct(svc catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		product, err := svc.GetProduct(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, toProductResponse(product))
	}
}

// HandleListProducts handles GET /api/products. Filters arrive as query
// parameters; label_expr takes a bexpr expression over product labels.
func HandleListProducts(svc catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := repository.ProductFilter{
			Category:            r.URL.Query().Get("category"),
			Search:              r.URL.Query().Get("search"),
			LabelExpr:           r.URL.Query().Get("label_expr"),
			IncludeDiscontinued: r.URL.Query().Get("include_discontinued") == "true",
		}

		products, err := svc.ListProducts(r.Context(), filter)
		if err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}

		out := make([]ProductResponse, 0, len(products))
		for i := range products {
			out = append(out, toProductResponse(&products[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// HandleUpdateProduct handles PUT /api/products/{id}.
func HandleUpdateProduct(svc catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		product, err := svc.GetProduct(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}

		var params ProductParams
		if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		params.apply(product)
		product.UpdatedAt = time.Now()
		if err := svc.UpdateProduct(r.Context(), product); err != nil {
			serviceError(w, err, http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, toProductResponse(product))
	}
}

// HandleDiscontinueProduct handles POST /api/products/{id}/discontinue.
func HandleDiscontinueProduct(svc catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := svc.DiscontinueProduct(r.Context(), id); err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}
		product, err := svc.GetProduct(r.Context(), id)
		if err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, toProductResponse(product))
	}
}

// HandleDeleteProduct handles DELETE /api/products/{id}.
func HandleDeleteProduct(svc catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleImportProducts handles POST /api/products/import. The body is a JSON
// bulk-import document validated against the embedded schema.
func HandleImportProducts(svc catalog.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 8<<20))
		if err != nil {
			writeError(w, http.StatusRequestEntityTooLarge, "import document too large")
			return
		}

		result, err := svc.ImportProducts(r.Context(), doc)
		if err != nil {
			serviceError(w, err, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, result)
	}
}
