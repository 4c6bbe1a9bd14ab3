package catalog

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ferrexpert/cotizador/internal/common"
	"github.com/ferrexpert/cotizador/internal/obs"
)

// Handler exposes the catalog endpoints.
type Handler struct {
	service *Service
	metrics *obs.DomainMetrics
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Service *Service
	Metrics *obs.DomainMetrics
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{service: cfg.Service, metrics: cfg.Metrics}
}

// Clients handles GET /api/v1/clients?q=.
func (h *Handler) Clients(w http.ResponseWriter, r *http.Request) {
	rows := h.service.SearchClients(r.URL.Query().Get("q"))
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// CreateClient handles POST /api/v1/clients.
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var c Client
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid JSON body", nil)
		return
	}
	if err := h.service.AddClient(r.Context(), c); err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": c})
}

// UpdateClient handles PUT /api/v1/clients/{index}.
func (h *Handler) UpdateClient(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	var c Client
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid JSON body", nil)
		return
	}
	if err := h.service.UpdateClient(r.Context(), index, c); err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// DeleteClient handles DELETE /api/v1/clients/{index}.
func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteClient(r.Context(), index); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ImportClients handles POST /api/v1/clients/import with a JSON array body.
func (h *Handler) ImportClients(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "unable to read body", nil)
		return
	}
	report, importErr := h.service.MergeImportClients(r.Context(), payload)
	if importErr != nil {
		h.countImportRejected("clients", importErr)
		common.WriteError(w, importErr)
		return
	}
	if h.metrics != nil {
		h.metrics.ImportsAccepted.WithLabelValues("clients").Inc()
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": report})
}

// ExportClients handles GET /api/v1/clients/export as a JSON download.
func (h *Handler) ExportClients(w http.ResponseWriter, r *http.Request) {
	writeJSONDownload(w, "clientes.json", h.service.Clients())
}

// Frequent handles GET /api/v1/clients/frequent.
func (h *Handler) Frequent(w http.ResponseWriter, r *http.Request) {
	common.JSON(w, http.StatusOK, map[string]any{"data": h.service.FrequentClients()})
}

// Products handles GET /api/v1/products?q=.
func (h *Handler) Products(w http.ResponseWriter, r *http.Request) {
	rows := h.service.SearchProducts(r.URL.Query().Get("q"))
	common.JSON(w, http.StatusOK, map[string]any{"data": rows})
}

// CreateProduct handles POST /api/v1/products.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var in ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid JSON body", nil)
		return
	}
	p, err := h.service.AddProduct(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": p})
}

// UpdateProduct handles PUT /api/v1/products/{index}.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	var in ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid JSON body", nil)
		return
	}
	p, err := h.service.UpdateProduct(r.Context(), index, in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": p})
}

// DeleteProduct handles DELETE /api/v1/products/{index}.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	index, ok := pathIndex(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteProduct(r.Context(), index); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ImportProducts handles POST /api/v1/products/import with a JSON array body.
func (h *Handler) ImportProducts(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "unable to read body", nil)
		return
	}
	report, importErr := h.service.ReplaceImportProducts(r.Context(), payload)
	if importErr != nil {
		h.countImportRejected("products", importErr)
		common.WriteError(w, importErr)
		return
	}
	if h.metrics != nil {
		h.metrics.ImportsAccepted.WithLabelValues("products").Inc()
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": report})
}

// ExportProducts handles GET /api/v1/products/export as a JSON download.
func (h *Handler) ExportProducts(w http.ResponseWriter, r *http.Request) {
	writeJSONDownload(w, "productos.json", h.service.Products())
}

// ProductUnits handles GET /api/v1/products/units.
func (h *Handler) ProductUnits(w http.ResponseWriter, r *http.Request) {
	common.JSON(w, http.StatusOK, map[string]any{"data": Units})
}

func (h *Handler) countImportRejected(catalog string, err error) {
	if h.metrics == nil {
		return
	}
	reason := "error"
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		reason = appErr.Code
	}
	h.metrics.ImportsRejected.WithLabelValues(catalog, reason).Inc()
}

func pathIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := chi.URLParam(r, "index")
	index, err := strconv.Atoi(raw)
	if err != nil || index < 0 {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "index must be a non-negative integer", map[string]any{"index": raw})
		return 0, false
	}
	return index, true
}

func writeJSONDownload(w http.ResponseWriter, filename string, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
