package quote

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ferrexpert/cotizador/internal/catalog"
	"github.com/ferrexpert/cotizador/internal/common"
	"github.com/ferrexpert/cotizador/internal/store"
)

func newTestBuilder(t *testing.T) (*Builder, *catalog.Service) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	kv := store.New(client)

	ctx := context.Background()
	cat, err := catalog.NewService(ctx, catalog.ServiceConfig{Store: kv})
	require.NoError(t, err)

	require.NoError(t, cat.AddClient(ctx, catalog.Client{
		Rut: "11.111.111-1", Entidad: "Constructora Sur", Comuna: "Rancagua", Direccion: "Calle Uno 123",
	}))
	_, err = cat.AddProduct(ctx, catalog.ProductInput{
		Descripcion: "Cemento 25kg", Marca: "Polpaico", Und: "UND", Cantidad: 50, Unitario: 100,
	})
	require.NoError(t, err)
	_, err = cat.AddProduct(ctx, catalog.ProductInput{
		Descripcion: "Fierro 8mm", Marca: "CAP", Und: "UND", Cantidad: 200, Unitario: 250,
	})
	require.NoError(t, err)

	b, err := NewBuilder(BuilderConfig{
		Catalog:           cat,
		Store:             kv,
		TaxRatePercent:    19,
		QuoteValidityDays: 30,
		PaymentTerms:      "CRÉDITO",
		Now:               func() time.Time { return time.Date(2026, time.March, 15, 10, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return b, cat
}

func TestBuilderNumberSequence(t *testing.T) {
	b, _ := newTestBuilder(t)
	ctx := context.Background()

	n1, err := b.Start(ctx)
	require.NoError(t, err)
	require.Equal(t, "000001-03-COT2026", n1)

	// Abandoning a session still burns its number.
	n2, err := b.Start(ctx)
	require.NoError(t, err)
	require.Equal(t, "000002-03-COT2026", n2)
	require.Equal(t, n2, b.Number())
}

func TestBuilderAddLinesToggle(t *testing.T) {
	b, _ := newTestBuilder(t)
	_, err := b.Start(context.Background())
	require.NoError(t, err)

	lines, err := b.AddLines([]Selection{{ID: 1, Cantidad: 3}, {ID: 2, Cantidad: 5}}, false)
	require.NoError(t, err)
	require.Len(t, lines, 2)

	// Re-selecting an already quoted product removes it.
	lines, err = b.AddLines([]Selection{{ID: 1}}, false)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	require.Equal(t, 2, lines[0].ID)
}

func TestBuilderAddLinesDefaults(t *testing.T) {
	b, _ := newTestBuilder(t)
	b.SetGlobalMarkup(20, false)

	lines, err := b.AddLines([]Selection{{ID: 1, Cantidad: 0}}, true)
	require.NoError(t, err)
	require.Equal(t, 1.0, lines[0].CantidadCotizada)
	require.Equal(t, 20.0, lines[0].PorcentajeGanancia)
	require.InDelta(t, 120.0, lines[0].PrecioVenta, 1e-9)
	require.InDelta(t, 142.8, lines[0].PrecioVentaConIVA, 1e-9)

	// Without apply, lines start at zero markup.
	b.ClearLines()
	lines, err = b.AddLines([]Selection{{ID: 1, Cantidad: 2}}, false)
	require.NoError(t, err)
	require.Equal(t, 0.0, lines[0].PorcentajeGanancia)
	require.InDelta(t, 100.0, lines[0].PrecioVenta, 1e-9)
}

func TestBuilderAddLinesFailedBatchLeavesSetUnchanged(t *testing.T) {
	b, _ := newTestBuilder(t)
	_, err := b.AddLines([]Selection{{ID: 1, Cantidad: 2}}, false)
	require.NoError(t, err)

	// The toggle for id 1 must not survive the unknown-id failure.
	_, err = b.AddLines([]Selection{{ID: 1}, {ID: 99}}, false)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeNotFound, appErr.Code)

	lines := b.Lines()
	require.Len(t, lines, 1)
	require.Equal(t, 1, lines[0].ID)
	require.Equal(t, 2.0, lines[0].CantidadCotizada)
}

func TestBuilderAddLinesUnknownProduct(t *testing.T) {
	b, _ := newTestBuilder(t)
	_, err := b.AddLines([]Selection{{ID: 99}}, false)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeNotFound, appErr.Code)
}

func TestBuilderLineSnapshotIsolation(t *testing.T) {
	b, cat := newTestBuilder(t)
	ctx := context.Background()

	_, err := b.AddLines([]Selection{{ID: 1, Cantidad: 1}}, false)
	require.NoError(t, err)

	// Editing the catalog after selection must not reach the open quote.
	_, err = cat.UpdateProduct(ctx, 0, catalog.ProductInput{
		Descripcion: "Cemento 25kg", Marca: "Polpaico", Und: "UND", Cantidad: 50, Unitario: 999,
	})
	require.NoError(t, err)

	lines := b.Lines()
	require.Equal(t, 100.0, lines[0].Unitario)
}

func TestBuilderUpdateLine(t *testing.T) {
	b, _ := newTestBuilder(t)
	_, err := b.AddLines([]Selection{{ID: 1, Cantidad: 1}}, false)
	require.NoError(t, err)

	line, err := b.UpdateLineMarkup(1, 20)
	require.NoError(t, err)
	require.InDelta(t, 120.0, line.PrecioVenta, 1e-9)
	require.InDelta(t, 142.8, line.PrecioVentaConIVA, 1e-9)

	line, err = b.UpdateLineQuantity(1, 3)
	require.NoError(t, err)
	require.Equal(t, 3.0, line.CantidadCotizada)

	// Negative input clamps to zero instead of failing.
	line, err = b.UpdateLineQuantity(1, -4)
	require.NoError(t, err)
	require.Equal(t, 0.0, line.CantidadCotizada)

	_, err = b.UpdateLineMarkup(42, 10)
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeNotFound, appErr.Code)
}

func TestBuilderApplyGlobalMarkupToAll(t *testing.T) {
	b, _ := newTestBuilder(t)
	_, err := b.AddLines([]Selection{{ID: 1, Cantidad: 1}, {ID: 2, Cantidad: 1}}, false)
	require.NoError(t, err)
	_, err = b.UpdateLineMarkup(2, 35)
	require.NoError(t, err)

	b.SetGlobalMarkup(15, false)
	lines := b.ApplyGlobalMarkupToAll()
	for _, l := range lines {
		require.Equal(t, 15.0, l.PorcentajeGanancia)
	}

	// Applying again with the same percent is a no-op.
	again := b.ApplyGlobalMarkupToAll()
	require.Equal(t, lines, again)
}

func TestBuilderTotals(t *testing.T) {
	b, _ := newTestBuilder(t)
	_, err := b.AddLines([]Selection{{ID: 1, Cantidad: 3}}, false)
	require.NoError(t, err)
	_, err = b.UpdateLineMarkup(1, 30)
	require.NoError(t, err)

	subtotal, tax, total := b.Totals()
	require.InDelta(t, 390.0, subtotal, 1e-9)
	require.InDelta(t, 74.1, tax, 1e-9)
	require.InDelta(t, 464.1, total, 1e-9)
}

func TestBuilderStates(t *testing.T) {
	b, _ := newTestBuilder(t)
	ctx := context.Background()
	require.Equal(t, StateEmpty, b.State())

	_, err := b.SelectClient(ctx, "11.111.111-1")
	require.NoError(t, err)
	require.Equal(t, StateClientSelected, b.State())

	_, err = b.AddLines([]Selection{{ID: 1, Cantidad: 1}}, false)
	require.NoError(t, err)
	require.Equal(t, StateExportable, b.State())

	b.ClearClient()
	require.Equal(t, StateLinesPopulated, b.State())
}

func TestBuilderSelectClientBumpsFrequent(t *testing.T) {
	b, cat := newTestBuilder(t)
	ctx := context.Background()

	_, err := b.SelectClient(ctx, "11.111.111-1")
	require.NoError(t, err)
	_, err = b.SelectClient(ctx, "11.111.111-1")
	require.NoError(t, err)

	freq := cat.FrequentClients()
	require.Len(t, freq, 1)
	require.Equal(t, 2, freq[0].Usos)

	_, err = b.SelectClient(ctx, "99.999.999-9")
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeNotFound, appErr.Code)
}

func TestBuilderSelectClientBumpFailureLeavesNoClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	kv := store.New(client)

	ctx := context.Background()
	cat, err := catalog.NewService(ctx, catalog.ServiceConfig{Store: kv})
	require.NoError(t, err)
	require.NoError(t, cat.AddClient(ctx, catalog.Client{
		Rut: "11.111.111-1", Entidad: "Constructora Sur", Comuna: "Rancagua", Direccion: "Calle Uno 123",
	}))

	b, err := NewBuilder(BuilderConfig{Catalog: cat, Store: kv, TaxRatePercent: 19})
	require.NoError(t, err)

	// Store goes away between hydration and selection; the failed bump
	// must not leave a client selected.
	mr.Close()
	_, err = b.SelectClient(ctx, "11.111.111-1")
	require.Error(t, err)
	require.Nil(t, b.Client())
	require.Equal(t, StateEmpty, b.State())
}

func TestBuildDocumentBlocked(t *testing.T) {
	b, _ := newTestBuilder(t)
	ctx := context.Background()

	_, err := b.BuildDocument()
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeExportBlocked, appErr.Code)

	// Client without lines is still blocked.
	_, err = b.SelectClient(ctx, "11.111.111-1")
	require.NoError(t, err)
	_, err = b.BuildDocument()
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeExportBlocked, appErr.Code)

	// Lines without client too.
	b.ClearClient()
	_, err = b.AddLines([]Selection{{ID: 1, Cantidad: 1}}, false)
	require.NoError(t, err)
	_, err = b.BuildDocument()
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeExportBlocked, appErr.Code)
}

func TestBuildDocumentRounding(t *testing.T) {
	b, _ := newTestBuilder(t)
	ctx := context.Background()

	_, err := b.Start(ctx)
	require.NoError(t, err)
	_, err = b.SelectClient(ctx, "11.111.111-1")
	require.NoError(t, err)
	_, err = b.AddLines([]Selection{{ID: 1, Cantidad: 3}}, false)
	require.NoError(t, err)
	_, err = b.UpdateLineMarkup(1, 30)
	require.NoError(t, err)

	doc, err := b.BuildDocument()
	require.NoError(t, err)
	require.Equal(t, "000001-03-COT2026", doc.Number)
	require.Equal(t, 30, doc.ValidityDays)
	require.Equal(t, "CRÉDITO", doc.PaymentTerms)
	require.Len(t, doc.Items, 1)

	it := doc.Items[0]
	require.Equal(t, 1, it.Index)
	require.Equal(t, 130.0, it.PrecioVenta)
	// 130 * 1.19 = 154.7 rounds up.
	require.Equal(t, 155.0, it.PrecioVentaConIVA)
	require.Equal(t, 390.0, it.TotalNeto)
	require.Equal(t, 464.0, it.TotalConIVA)

	require.Equal(t, 390.0, doc.Subtotal)
	require.Equal(t, 74.0, doc.Tax)
	require.Equal(t, 464.0, doc.Total)
}
