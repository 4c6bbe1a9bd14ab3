package catalog

import "strings"

// Client is a catalog customer record. Identity is the normalized RUT; there
// is no numeric id.
type Client struct {
	Rut       string `json:"rut"`
	Entidad   string `json:"entidad"`
	Comuna    string `json:"comuna"`
	Direccion string `json:"direccion"`
}

// Product is a catalog stock record. Total is always derived from
// Cantidad × Unitario and never trusted from input.
type Product struct {
	ID          int     `json:"id"`
	Descripcion string  `json:"descripcion"`
	Marca       string  `json:"marca"`
	Und         string  `json:"und"`
	Cantidad    float64 `json:"cantidad"`
	Unitario    float64 `json:"unitario"`
	Total       float64 `json:"total"`
}

// FrequentClient is a client plus a usage counter, kept in the top-10 picker cache.
type FrequentClient struct {
	Client
	Usos int `json:"usos"`
}

// Units enumerates the unit strings offered by the product form. The catalog
// itself accepts any non-empty unit; the list is advisory.
var Units = []string{"UND", "KG", "M", "LT", "M2", "M3", "PAR", "SET"}

// NormalizeRUT canonicalizes a RUT for identity comparison.
func NormalizeRUT(rut string) string {
	return strings.ToLower(strings.TrimSpace(rut))
}
