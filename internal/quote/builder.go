package quote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ferrexpert/cotizador/internal/catalog"
	"github.com/ferrexpert/cotizador/internal/common"
	"github.com/ferrexpert/cotizador/internal/config"
	"github.com/ferrexpert/cotizador/internal/pricing"
	"github.com/ferrexpert/cotizador/internal/store"
)

// State labels for the builder lifecycle.
const (
	StateEmpty          = "empty"
	StateClientSelected = "client_selected"
	StateLinesPopulated = "lines_populated"
	StateExportable     = "exportable"
)

// Line extends a product snapshot with quoting fields. PrecioVenta and
// PrecioVentaConIVA are derived; they are recomputed on every change to
// Unitario or PorcentajeGanancia and never written directly.
type Line struct {
	catalog.Product
	CantidadCotizada   float64 `json:"cantidadCotizada"`
	PorcentajeGanancia float64 `json:"porcentajeGanancia"`
	PrecioVenta        float64 `json:"precioVenta"`
	PrecioVentaConIVA  float64 `json:"precioVentaConIVA"`
}

// Selection is one product chosen in the picker, with the quantity entered
// at selection time.
type Selection struct {
	ID       int     `json:"id"`
	Cantidad float64 `json:"cantidad"`
}

// Builder holds the single in-progress quote. It owns copies of product
// data, so catalog edits after selection never reach an open quote.
type Builder struct {
	mu           sync.Mutex
	client       *catalog.Client
	lines        []Line
	number       string
	globalMarkup float64
	autoApply    bool

	catalog *catalog.Service
	kv      *store.KV
	engine  pricing.Engine
	seller  config.Seller
	now     func() time.Time

	validityDays int
	paymentTerms string
}

// BuilderConfig groups Builder dependencies.
type BuilderConfig struct {
	Catalog            *catalog.Service
	Store              *store.KV
	TaxRatePercent     float64
	DefaultMarkup      float64
	AutoApplyByDefault bool
	Seller             config.Seller
	QuoteValidityDays  int
	PaymentTerms       string
	Now                func() time.Time
}

// NewBuilder constructs an empty Builder. Call Start to open the first
// session and draw a quotation number.
func NewBuilder(cfg BuilderConfig) (*Builder, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("quote: catalog service is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("quote: store is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	validity := cfg.QuoteValidityDays
	if validity <= 0 {
		validity = 30
	}
	return &Builder{
		catalog:      cfg.Catalog,
		kv:           cfg.Store,
		engine:       pricing.Engine{TaxRatePercent: cfg.TaxRatePercent},
		globalMarkup: common.ClampNonNegative(cfg.DefaultMarkup),
		autoApply:    cfg.AutoApplyByDefault,
		seller:       cfg.Seller,
		now:          now,
		validityDays: validity,
		paymentTerms: cfg.PaymentTerms,
	}, nil
}

// Start opens a fresh session: clears the working set and consumes the next
// quotation number. The counter is persisted immediately, so a session that
// is abandoned without exporting still leaves a gap in the sequence.
func (b *Builder) Start(ctx context.Context) (string, error) {
	n, err := b.kv.NextCounter(ctx, store.KeyQuoteCounter)
	if err != nil {
		return "", err
	}
	ts := b.now()
	number := fmt.Sprintf("%06d-%02d-COT%d", n, int(ts.Month()), ts.Year())

	b.mu.Lock()
	defer b.mu.Unlock()
	b.client = nil
	b.lines = nil
	b.number = number
	return number, nil
}

// Number returns the current quotation number.
func (b *Builder) Number() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.number
}

// State reports where the builder sits in its lifecycle.
func (b *Builder) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stateLocked()
}

func (b *Builder) stateLocked() string {
	switch {
	case b.client != nil && len(b.lines) > 0:
		return StateExportable
	case b.client != nil:
		return StateClientSelected
	case len(b.lines) > 0:
		return StateLinesPopulated
	default:
		return StateEmpty
	}
}

// Client returns the selected client, if any.
func (b *Builder) Client() *catalog.Client {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.client == nil {
		return nil
	}
	c := *b.client
	return &c
}

// Lines returns a copy of the current working set.
func (b *Builder) Lines() []Line {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Line, len(b.lines))
	copy(out, b.lines)
	return out
}

// GlobalMarkup returns the global markup percent and the auto-apply flag.
func (b *Builder) GlobalMarkup() (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.globalMarkup, b.autoApply
}

// SelectClient sets the quote's client by RUT and bumps the frequent-client
// cache for the picker.
func (b *Builder) SelectClient(ctx context.Context, rut string) (catalog.Client, error) {
	c, ok := b.catalog.FindClientByRUT(rut)
	if !ok {
		return catalog.Client{}, &common.AppError{
			Code:       common.CodeNotFound,
			Message:    "client not found",
			HTTPStatus: http.StatusNotFound,
			Details:    map[string]any{"rut": rut},
		}
	}
	// Bump before committing so a failed selection leaves no client behind.
	if err := b.catalog.BumpFrequent(ctx, c); err != nil {
		return catalog.Client{}, err
	}

	b.mu.Lock()
	b.client = &c
	b.mu.Unlock()
	return c, nil
}

// ClearClient removes the selected client, walking the state back.
func (b *Builder) ClearClient() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.client = nil
}

// AddLines merges picker selections into the working set. A selection whose
// product is already present is a toggle: the existing line is removed, not
// merged. New lines snapshot the product, default the quoted quantity to at
// least 1, and take the global markup when applyGlobalMarkup is set, 0
// otherwise. The batch is staged and committed whole: an unknown product id
// anywhere in it leaves the working set untouched.
func (b *Builder) AddLines(selections []Selection, applyGlobalMarkup bool) ([]Line, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	staged := make([]Line, len(b.lines))
	copy(staged, b.lines)

	for _, sel := range selections {
		if idx := lineIndex(staged, sel.ID); idx >= 0 {
			staged = append(staged[:idx], staged[idx+1:]...)
			continue
		}
		p, ok := b.catalog.FindProductByID(sel.ID)
		if !ok {
			return nil, &common.AppError{
				Code:       common.CodeNotFound,
				Message:    "product not found",
				HTTPStatus: http.StatusNotFound,
				Details:    map[string]any{"id": sel.ID},
			}
		}
		qty := common.ClampNonNegative(sel.Cantidad)
		if qty < 1 {
			qty = 1
		}
		markup := 0.0
		if applyGlobalMarkup {
			markup = b.globalMarkup
		}
		line := Line{
			Product:            p,
			CantidadCotizada:   qty,
			PorcentajeGanancia: markup,
		}
		b.recomputeLine(&line)
		staged = append(staged, line)
	}
	b.lines = staged

	out := make([]Line, len(b.lines))
	copy(out, b.lines)
	return out, nil
}

// UpdateLineQuantity sets the quoted quantity of a line with parse-or-zero
// coercion applied by the caller's input layer and clamped here again.
func (b *Builder) UpdateLineQuantity(productID int, qty float64) (Line, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := b.lineIndexLocked(productID)
	if idx < 0 {
		return Line{}, lineNotFound(productID)
	}
	b.lines[idx].CantidadCotizada = common.ClampNonNegative(qty)
	b.recomputeLine(&b.lines[idx])
	return b.lines[idx], nil
}

// UpdateLineMarkup sets a line's markup percent and recomputes its prices.
func (b *Builder) UpdateLineMarkup(productID int, pct float64) (Line, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := b.lineIndexLocked(productID)
	if idx < 0 {
		return Line{}, lineNotFound(productID)
	}
	b.lines[idx].PorcentajeGanancia = common.ClampNonNegative(pct)
	b.recomputeLine(&b.lines[idx])
	return b.lines[idx], nil
}

// SetGlobalMarkup stores the global markup percent and the auto-apply flag
// used when new lines arrive.
func (b *Builder) SetGlobalMarkup(pct float64, autoApply bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.globalMarkup = common.ClampNonNegative(pct)
	b.autoApply = autoApply
}

// AutoApply reports whether new selections take the global markup by default.
func (b *Builder) AutoApply() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.autoApply
}

// ApplyGlobalMarkupToAll overwrites every line's markup with the current
// global percent. This is a bulk, immediate overwrite with no per-line
// opt-out; running it twice with the same percent changes nothing further.
func (b *Builder) ApplyGlobalMarkupToAll() []Line {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.lines {
		b.lines[i].PorcentajeGanancia = b.globalMarkup
		b.recomputeLine(&b.lines[i])
	}
	out := make([]Line, len(b.lines))
	copy(out, b.lines)
	return out
}

// RemoveLine deletes the line for the given product id.
func (b *Builder) RemoveLine(productID int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	idx := b.lineIndexLocked(productID)
	if idx < 0 {
		return lineNotFound(productID)
	}
	b.lines = append(b.lines[:idx], b.lines[idx+1:]...)
	return nil
}

// ClearLines drops the whole working set.
func (b *Builder) ClearLines() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = nil
}

// Totals returns the full-precision aggregate figures.
func (b *Builder) Totals() (subtotal, tax, total float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalsLocked()
}

func (b *Builder) totalsLocked() (subtotal, tax, total float64) {
	pl := make([]pricing.Line, len(b.lines))
	for i, l := range b.lines {
		pl[i] = pricing.Line{
			Unitario:           l.Unitario,
			PorcentajeGanancia: l.PorcentajeGanancia,
			CantidadCotizada:   l.CantidadCotizada,
		}
	}
	subtotal = b.engine.QuoteSubtotal(pl)
	tax = b.engine.QuoteTax(subtotal)
	total = subtotal + tax
	return subtotal, tax, total
}

func (b *Builder) lineIndexLocked(productID int) int {
	return lineIndex(b.lines, productID)
}

func lineIndex(lines []Line, productID int) int {
	for i, l := range lines {
		if l.ID == productID {
			return i
		}
	}
	return -1
}

func (b *Builder) recomputeLine(l *Line) {
	l.PrecioVenta = pricing.SaleBasePrice(l.Unitario, l.PorcentajeGanancia)
	l.PrecioVentaConIVA = b.engine.PriceWithTax(l.PrecioVenta)
}

func lineNotFound(productID int) *common.AppError {
	return &common.AppError{
		Code:       common.CodeNotFound,
		Message:    "line not found",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"id": productID},
	}
}
