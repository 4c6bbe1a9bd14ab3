// Package pricing holds the pure arithmetic behind quotations: markup on top
// of unit cost, a single fixed tax rate, and line/aggregate totals. Values
// stay full-precision float64; rounding belongs to the document boundary.
package pricing

// Line is the pricing view of a quoted line item.
type Line struct {
	Unitario           float64
	PorcentajeGanancia float64
	CantidadCotizada   float64
}

// Engine applies a fixed tax rate to the markup arithmetic.
type Engine struct {
	TaxRatePercent float64
}

// SaleBasePrice derives the sale price from unit cost and markup percent.
func SaleBasePrice(unitCost, markupPercent float64) float64 {
	return unitCost * (1 + markupPercent/100)
}

// LineTotal multiplies a price by a quantity.
func LineTotal(price, quantity float64) float64 {
	return price * quantity
}

// PriceWithTax adds the engine's tax rate to a price.
func (e Engine) PriceWithTax(price float64) float64 {
	return price * (1 + e.TaxRatePercent/100)
}

// QuoteSubtotal sums the tax-exclusive sale value of every line.
func (e Engine) QuoteSubtotal(lines []Line) float64 {
	var subtotal float64
	for _, l := range lines {
		subtotal += LineTotal(SaleBasePrice(l.Unitario, l.PorcentajeGanancia), l.CantidadCotizada)
	}
	return subtotal
}

// QuoteTax computes the tax amount on a subtotal.
func (e Engine) QuoteTax(subtotal float64) float64 {
	return subtotal * e.TaxRatePercent / 100
}

// QuoteTotal is the tax-inclusive grand total.
func (e Engine) QuoteTotal(subtotal float64) float64 {
	return subtotal + e.QuoteTax(subtotal)
}
