package pdf

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/jung-kurt/gofpdf"

	"github.com/ferrexpert/cotizador/internal/quote"
)

// Generator renders a quotation document to an A4 portrait PDF.
type Generator struct{}

func New() *Generator { return &Generator{} }

// Generate lays out the document using core fonts. Text passes through the
// cp1252 translator so Spanish accents render without embedded font files.
func (g *Generator) Generate(doc quote.Document) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Cotización "+doc.Number, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	// Seller header, top left.
	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 7, tr(doc.Seller.Name))
	pdf.Ln(6)
	pdf.SetFont("Helvetica", "", 9)
	for _, line := range []string{
		doc.Seller.Giro,
		doc.Seller.Address,
		doc.Seller.City,
		doc.Seller.Contact,
		doc.Seller.Email + " / " + doc.Seller.Phone,
	} {
		pdf.Cell(0, 4.5, tr(line))
		pdf.Ln(4.5)
	}

	// Boxed RUT / COTIZACIÓN / number, top right.
	pdf.Rect(150, 10, 50, 25, "D")
	pdf.SetXY(150, 12)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(50, 6, tr("R.U.T. "+doc.Seller.RUT), "", 1, "C", false, 0, "")
	pdf.SetX(150)
	pdf.CellFormat(50, 6, tr("COTIZACIÓN"), "", 1, "C", false, 0, "")
	pdf.SetX(150)
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(50, 6, tr("N° "+doc.Number), "", 1, "C", false, 0, "")

	pdf.SetY(46)

	// Client band.
	pdf.SetFillColor(220, 220, 220)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(130, 6, tr("CLIENTE"), "1", 0, "L", true, 0, "")
	pdf.CellFormat(60, 6, tr("CONDICIONES"), "1", 1, "L", true, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	left := [][2]string{
		{"Señor(es)", doc.Client.Entidad},
		{"R.U.T.", doc.Client.Rut},
		{"Dirección", doc.Client.Direccion},
		{"Comuna", doc.Client.Comuna},
	}
	right := [][2]string{
		{"Fecha", doc.Date.Format("02-01-2006")},
		{"Validez", fmt.Sprintf("%d días", doc.ValidityDays)},
		{"Cond. pago", doc.PaymentTerms},
		{"", ""},
	}
	for i := range left {
		pdf.CellFormat(30, 5.5, tr(left[i][0]), "L", 0, "L", false, 0, "")
		pdf.CellFormat(100, 5.5, tr(": "+left[i][1]), "", 0, "L", false, 0, "")
		pdf.CellFormat(25, 5.5, tr(right[i][0]), "L", 0, "L", false, 0, "")
		label := ""
		if right[i][0] != "" {
			label = ": " + right[i][1]
		}
		pdf.CellFormat(35, 5.5, tr(label), "R", 1, "L", false, 0, "")
	}
	pdf.CellFormat(190, 0, "", "T", 1, "", false, 0, "")
	pdf.Ln(4)

	// Product table.
	type col struct {
		w     float64
		title string
		align string
	}
	cols := []col{
		{12, "ITEM", "C"},
		{63, "DESCRIPCIÓN", "L"},
		{25, "MARCA", "L"},
		{12, "UND", "C"},
		{14, "CANT.", "R"},
		{21, "UNITARIO", "R"},
		{21, "TOTAL", "R"},
		{22, "TOTAL c/IVA", "R"},
	}
	pdf.SetFont("Helvetica", "B", 8)
	for _, c := range cols {
		pdf.CellFormat(c.w, 6, tr(c.title), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 8)
	for _, it := range doc.Items {
		cells := []string{
			strconv.Itoa(it.Index),
			clip(it.Descripcion, 48),
			clip(it.Marca, 18),
			it.Und,
			formatQty(it.Cantidad),
			formatMoney(it.PrecioVenta),
			formatMoney(it.TotalNeto),
			formatMoney(it.TotalConIVA),
		}
		for i, c := range cols {
			pdf.CellFormat(c.w, 5.5, tr(cells[i]), "1", 0, c.align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	// Totals block, right aligned under the table.
	pdf.Ln(2)
	totals := [][2]string{
		{"NETO", formatMoney(doc.Subtotal)},
		{fmt.Sprintf("IVA %g%%", doc.TaxRatePercent), formatMoney(doc.Tax)},
		{"TOTAL", formatMoney(doc.Total)},
	}
	for i, t := range totals {
		style := ""
		if i == len(totals)-1 {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 9)
		pdf.SetX(147)
		pdf.CellFormat(28, 6, tr(t[0]), "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, tr("$ "+t[1]), "1", 1, "R", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatQty(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func clip(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-1]) + "…"
}
