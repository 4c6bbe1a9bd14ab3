package quote

import (
	"time"

	"github.com/ferrexpert/cotizador/internal/catalog"
	"github.com/ferrexpert/cotizador/internal/common"
	"github.com/ferrexpert/cotizador/internal/config"
)

// DocumentItem is one printable table row. Every money figure here is
// rounded; the builder keeps full precision internally and rounding happens
// exactly once, when the document is assembled.
type DocumentItem struct {
	Index             int     `json:"item"`
	Descripcion       string  `json:"descripcion"`
	Marca             string  `json:"marca"`
	Und               string  `json:"und"`
	Cantidad          float64 `json:"cantidad"`
	PrecioVenta       float64 `json:"precioVenta"`
	PrecioVentaConIVA float64 `json:"precioVentaConIVA"`
	TotalNeto         float64 `json:"totalNeto"`
	TotalConIVA       float64 `json:"totalConIVA"`
}

// Document is the fixed snapshot handed to the PDF renderer.
type Document struct {
	Number         string         `json:"number"`
	Date           time.Time      `json:"date"`
	ValidityDays   int            `json:"validityDays"`
	PaymentTerms   string         `json:"paymentTerms"`
	TaxRatePercent float64        `json:"taxRatePercent"`
	Seller         config.Seller  `json:"seller"`
	Client         catalog.Client `json:"client"`
	Items          []DocumentItem `json:"items"`
	Subtotal       float64        `json:"subtotal"`
	Tax            float64        `json:"tax"`
	Total          float64        `json:"total"`
}

// BuildDocument freezes the current working set into a printable document.
// Export requires both a client and at least one line; anything less is
// rejected before any rendering starts.
func (b *Builder) BuildDocument() (Document, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.client == nil {
		return Document{}, common.ExportBlockedError("no client selected")
	}
	if len(b.lines) == 0 {
		return Document{}, common.ExportBlockedError("no lines in quote")
	}

	items := make([]DocumentItem, len(b.lines))
	for i, l := range b.lines {
		items[i] = DocumentItem{
			Index:             i + 1,
			Descripcion:       l.Descripcion,
			Marca:             l.Marca,
			Und:               l.Und,
			Cantidad:          l.CantidadCotizada,
			PrecioVenta:       common.RoundMoney(l.PrecioVenta),
			PrecioVentaConIVA: common.RoundMoney(l.PrecioVentaConIVA),
			TotalNeto:         common.RoundMoney(l.PrecioVenta * l.CantidadCotizada),
			TotalConIVA:       common.RoundMoney(l.PrecioVentaConIVA * l.CantidadCotizada),
		}
	}

	subtotal, tax, total := b.totalsLocked()
	return Document{
		Number:         b.number,
		Date:           b.now(),
		ValidityDays:   b.validityDays,
		PaymentTerms:   b.paymentTerms,
		TaxRatePercent: b.engine.TaxRatePercent,
		Seller:         b.seller,
		Client:         *b.client,
		Items:          items,
		Subtotal:       common.RoundMoney(subtotal),
		Tax:            common.RoundMoney(tax),
		Total:          common.RoundMoney(total),
	}, nil
}
