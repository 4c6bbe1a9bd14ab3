package quote

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ferrexpert/cotizador/internal/common"
	"github.com/ferrexpert/cotizador/internal/obs"
)

// Renderer turns a frozen document into PDF bytes.
type Renderer interface {
	Generate(doc Document) ([]byte, error)
}

// Handler exposes the quote-builder endpoints.
type Handler struct {
	builder  *Builder
	renderer Renderer
	filename string
	metrics  *obs.DomainMetrics
}

// HandlerConfig configures the Handler dependencies.
type HandlerConfig struct {
	Builder        *Builder
	Renderer       Renderer
	ExportFilename string
	Metrics        *obs.DomainMetrics
}

// NewHandler constructs a Handler.
func NewHandler(cfg HandlerConfig) *Handler {
	filename := cfg.ExportFilename
	if filename == "" {
		filename = "cotizacion.pdf"
	}
	return &Handler{
		builder:  cfg.Builder,
		renderer: cfg.Renderer,
		filename: filename,
		metrics:  cfg.Metrics,
	}
}

type stateResponse struct {
	Number           string  `json:"number"`
	State            string  `json:"state"`
	Client           any     `json:"client"`
	Lines            []Line  `json:"lines"`
	PorcentajeGlobal float64 `json:"porcentajeGlobal"`
	AutoApplyGlobal  bool    `json:"autoApplyGlobal"`
	Subtotal         float64 `json:"subtotal"`
	Tax              float64 `json:"tax"`
	Total            float64 `json:"total"`
}

// State handles GET /api/v1/quote.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	common.JSON(w, http.StatusOK, map[string]any{"data": h.snapshot()})
}

// New handles POST /api/v1/quote/new: abandons the working set and opens a
// fresh session with the next quotation number.
func (h *Handler) New(w http.ResponseWriter, r *http.Request) {
	number, err := h.builder.Start(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.QuotesStarted.Inc()
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": map[string]string{"number": number}})
}

// SelectClient handles POST /api/v1/quote/client with {"rut": "..."}.
func (h *Handler) SelectClient(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rut string `json:"rut"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid JSON body", nil)
		return
	}
	c, err := h.builder.SelectClient(r.Context(), req.Rut)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": c})
}

// ClearClient handles DELETE /api/v1/quote/client.
func (h *Handler) ClearClient(w http.ResponseWriter, r *http.Request) {
	h.builder.ClearClient()
	w.WriteHeader(http.StatusNoContent)
}

// AddLines handles POST /api/v1/quote/lines. Selections already present in
// the working set toggle off. applyGlobalMarkup defaults to the builder's
// auto-apply flag when the field is omitted.
func (h *Handler) AddLines(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items             []Selection `json:"items"`
		ApplyGlobalMarkup *bool       `json:"applyGlobalMarkup"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid JSON body", nil)
		return
	}
	apply := h.builder.AutoApply()
	if req.ApplyGlobalMarkup != nil {
		apply = *req.ApplyGlobalMarkup
	}
	lines, err := h.builder.AddLines(req.Items, apply)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": lines})
}

// UpdateLine handles PATCH /api/v1/quote/lines/{id}. Quantity and markup
// arrive as free-form values; anything unparseable coerces to zero.
func (h *Handler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathProductID(w, r)
	if !ok {
		return
	}
	var req struct {
		Cantidad           json.RawMessage `json:"cantidad"`
		PorcentajeGanancia json.RawMessage `json:"porcentajeGanancia"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid JSON body", nil)
		return
	}
	if req.Cantidad == nil && req.PorcentajeGanancia == nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "nothing to update", nil)
		return
	}

	var (
		line Line
		err  error
	)
	if req.Cantidad != nil {
		line, err = h.builder.UpdateLineQuantity(id, numericValue(req.Cantidad))
		if err != nil {
			common.WriteError(w, err)
			return
		}
	}
	if req.PorcentajeGanancia != nil {
		line, err = h.builder.UpdateLineMarkup(id, numericValue(req.PorcentajeGanancia))
		if err != nil {
			common.WriteError(w, err)
			return
		}
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": line})
}

// RemoveLine handles DELETE /api/v1/quote/lines/{id}.
func (h *Handler) RemoveLine(w http.ResponseWriter, r *http.Request) {
	id, ok := pathProductID(w, r)
	if !ok {
		return
	}
	if err := h.builder.RemoveLine(id); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ClearLines handles DELETE /api/v1/quote/lines.
func (h *Handler) ClearLines(w http.ResponseWriter, r *http.Request) {
	h.builder.ClearLines()
	w.WriteHeader(http.StatusNoContent)
}

// SetMarkup handles PUT /api/v1/quote/markup. Parse-or-zero applies to a
// supplied porcentaje; an omitted one leaves the current percent untouched.
func (h *Handler) SetMarkup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Porcentaje json.RawMessage `json:"porcentaje"`
		AutoApply  bool            `json:"autoApply"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid JSON body", nil)
		return
	}
	pct, _ := h.builder.GlobalMarkup()
	if req.Porcentaje != nil {
		pct = numericValue(req.Porcentaje)
	}
	h.builder.SetGlobalMarkup(pct, req.AutoApply)
	pct, auto := h.builder.GlobalMarkup()
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{"porcentaje": pct, "autoApply": auto},
	})
}

// ApplyMarkupAll handles POST /api/v1/quote/markup/apply-all.
func (h *Handler) ApplyMarkupAll(w http.ResponseWriter, r *http.Request) {
	lines := h.builder.ApplyGlobalMarkupToAll()
	common.JSON(w, http.StatusOK, map[string]any{"data": lines})
}

// Export handles POST /api/v1/quote/export: freezes the working set,
// renders the PDF, and streams it as an attachment.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	doc, err := h.builder.BuildDocument()
	if err != nil {
		common.WriteError(w, err)
		return
	}
	out, err := h.renderer.Generate(doc)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if h.metrics != nil {
		h.metrics.QuotesExported.Inc()
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", h.filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(out)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

func (h *Handler) snapshot() stateResponse {
	subtotal, tax, total := h.builder.Totals()
	pct, auto := h.builder.GlobalMarkup()
	resp := stateResponse{
		Number:           h.builder.Number(),
		State:            h.builder.State(),
		Lines:            h.builder.Lines(),
		PorcentajeGlobal: pct,
		AutoApplyGlobal:  auto,
		Subtotal:         subtotal,
		Tax:              tax,
		Total:            total,
	}
	if c := h.builder.Client(); c != nil {
		resp.Client = c
	}
	return resp
}

func pathProductID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, common.CodeBadRequest, "invalid product id", nil)
		return 0, false
	}
	return id, true
}

// numericValue coerces a raw JSON value into a non-negative float. Numbers
// pass through; quoted numbers are unwrapped; null, absent, and garbage all
// collapse to zero.
func numericValue(raw json.RawMessage) float64 {
	s := strings.TrimSpace(string(bytes.Trim(bytes.TrimSpace(raw), `"`)))
	return common.ParseNonNegative(s)
}
