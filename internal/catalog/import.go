package catalog

import (
	"context"
	"encoding/json"

	"github.com/ferrexpert/cotizador/internal/common"
)

// ClientImportReport summarises a merge-import run.
type ClientImportReport struct {
	Imported   int `json:"imported"`
	Duplicates int `json:"duplicates"`
	Invalid    int `json:"invalid"`
}

// ProductImportReport summarises a replace-import run.
type ProductImportReport struct {
	Imported int `json:"imported"`
	Rejected int `json:"rejected"`
}

// Import records use pointer fields so a missing JSON key is distinguishable
// from an empty value; presence of every field is what qualifies a candidate.
type clientImportRecord struct {
	Rut       *string `json:"rut" validate:"required"`
	Entidad   *string `json:"entidad" validate:"required"`
	Comuna    *string `json:"comuna" validate:"required"`
	Direccion *string `json:"direccion" validate:"required"`
}

type productImportRecord struct {
	ID          *int     `json:"id" validate:"required"`
	Descripcion *string  `json:"descripcion" validate:"required"`
	Marca       *string  `json:"marca" validate:"required"`
	Und         *string  `json:"und" validate:"required"`
	Cantidad    *float64 `json:"cantidad" validate:"required"`
	Unitario    *float64 `json:"unitario" validate:"required"`
	Total       *float64 `json:"total" validate:"required"`
}

// MergeImportClients parses a JSON array of client records and merges the
// valid, not-yet-present ones into the catalog. Duplicate detection uses the
// normalized RUT, both against the existing catalog and within the batch.
func (s *Service) MergeImportClients(ctx context.Context, payload []byte) (ClientImportReport, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return ClientImportReport{}, common.ImportFormatError(err)
	}

	report := ClientImportReport{}
	candidates := make([]Client, 0, len(raw))
	for _, element := range raw {
		var rec clientImportRecord
		if err := json.Unmarshal(element, &rec); err != nil {
			report.Invalid++
			continue
		}
		if err := s.validate.Struct(rec); err != nil {
			report.Invalid++
			continue
		}
		candidates = append(candidates, Client{
			Rut:       *rec.Rut,
			Entidad:   *rec.Entidad,
			Comuna:    *rec.Comuna,
			Direccion: *rec.Direccion,
		})
	}
	if len(candidates) == 0 {
		return report, common.ImportContentError(len(raw))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]struct{}, len(s.clients))
	for _, c := range s.clients {
		seen[NormalizeRUT(c.Rut)] = struct{}{}
	}
	for _, c := range candidates {
		key := NormalizeRUT(c.Rut)
		if _, dup := seen[key]; dup {
			report.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		s.clients = append(s.clients, c)
		report.Imported++
	}
	if report.Imported > 0 {
		if err := s.persistClients(ctx); err != nil {
			return report, err
		}
	}
	return report, nil
}

// ReplaceImportProducts parses a JSON array of product records and replaces
// the whole catalog with the valid ones. Imported totals are never trusted;
// every accepted record gets its total recomputed, and the id counter jumps
// past the highest imported id.
func (s *Service) ReplaceImportProducts(ctx context.Context, payload []byte) (ProductImportReport, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(payload, &raw); err != nil {
		return ProductImportReport{}, common.ImportFormatError(err)
	}

	report := ProductImportReport{}
	accepted := make([]Product, 0, len(raw))
	maxID := 0
	for _, element := range raw {
		var rec productImportRecord
		if err := json.Unmarshal(element, &rec); err != nil {
			report.Rejected++
			continue
		}
		if err := s.validate.Struct(rec); err != nil {
			report.Rejected++
			continue
		}
		cantidad := common.ClampNonNegative(*rec.Cantidad)
		unitario := common.ClampNonNegative(*rec.Unitario)
		p := Product{
			ID:          *rec.ID,
			Descripcion: *rec.Descripcion,
			Marca:       *rec.Marca,
			Und:         *rec.Und,
			Cantidad:    cantidad,
			Unitario:    unitario,
			Total:       cantidad * unitario,
		}
		if p.ID > maxID {
			maxID = p.ID
		}
		accepted = append(accepted, p)
		report.Imported++
	}
	if len(accepted) == 0 {
		return report, common.ImportContentError(len(raw))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.products = accepted
	s.nextID = maxID + 1
	if err := s.persistProducts(ctx); err != nil {
		return report, err
	}
	return report, nil
}
