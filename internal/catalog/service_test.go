package catalog

import (
	"context"
	"fmt"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ferrexpert/cotizador/internal/common"
	"github.com/ferrexpert/cotizador/internal/store"
)

func newTestService(t *testing.T) (*Service, *store.KV) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	kv := store.New(client)

	s, err := NewService(context.Background(), ServiceConfig{Store: kv})
	require.NoError(t, err)
	return s, kv
}

func TestAddClientValidation(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	err := s.AddClient(ctx, Client{Rut: "  ", Entidad: "X", Comuna: "Y", Direccion: "Z"})
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeValidation, appErr.Code)

	require.NoError(t, s.AddClient(ctx, Client{
		Rut: "11.111.111-1", Entidad: "Constructora Sur", Comuna: "Rancagua", Direccion: "Calle Uno 123",
	}))
	require.Len(t, s.Clients(), 1)
}

func TestClientPersistenceRoundTrip(t *testing.T) {
	s, kv := newTestService(t)
	ctx := context.Background()

	require.NoError(t, s.AddClient(ctx, Client{
		Rut: "11.111.111-1", Entidad: "Constructora Sur", Comuna: "Rancagua", Direccion: "Calle Uno 123",
	}))

	// A fresh service hydrates what the first one persisted.
	s2, err := NewService(ctx, ServiceConfig{Store: kv})
	require.NoError(t, err)
	require.Equal(t, s.Clients(), s2.Clients())
}

func TestSearchClients(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, s.AddClient(ctx, Client{Rut: "11.111.111-1", Entidad: "Constructora Sur", Comuna: "Rancagua", Direccion: "Calle Uno"}))
	require.NoError(t, s.AddClient(ctx, Client{Rut: "22.222.222-2", Entidad: "Ferretería Norte", Comuna: "Machalí", Direccion: "Calle Dos"}))

	require.Len(t, s.SearchClients(""), 2)
	require.Len(t, s.SearchClients("constructora"), 1)
	require.Len(t, s.SearchClients("22.222"), 1)
	require.Len(t, s.SearchClients("machalí"), 1)
	// Dirección is not a searchable field.
	require.Empty(t, s.SearchClients("calle uno"))
}

func TestProductIDsAreNeverReused(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.AddProduct(ctx, ProductInput{
			Descripcion: fmt.Sprintf("Producto %d", i+1), Marca: "M", Und: "UND", Cantidad: 1, Unitario: 10,
		})
		require.NoError(t, err)
	}
	require.NoError(t, s.DeleteProduct(ctx, 2))

	p, err := s.AddProduct(ctx, ProductInput{Descripcion: "Nuevo", Marca: "M", Und: "UND", Cantidad: 1, Unitario: 10})
	require.NoError(t, err)
	require.Equal(t, 4, p.ID)
}

func TestProductDerivedTotal(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()

	p, err := s.AddProduct(ctx, ProductInput{Descripcion: "Cemento", Marca: "Polpaico", Und: "UND", Cantidad: 4, Unitario: 2500})
	require.NoError(t, err)
	require.Equal(t, 10000.0, p.Total)

	p, err = s.UpdateProduct(ctx, 0, ProductInput{Descripcion: "Cemento", Marca: "Polpaico", Und: "UND", Cantidad: 2, Unitario: 3000})
	require.NoError(t, err)
	require.Equal(t, 1, p.ID)
	require.Equal(t, 6000.0, p.Total)
}

func TestSearchProducts(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	_, err := s.AddProduct(ctx, ProductInput{Descripcion: "Cemento 25kg", Marca: "Polpaico", Und: "UND", Cantidad: 1, Unitario: 100})
	require.NoError(t, err)
	_, err = s.AddProduct(ctx, ProductInput{Descripcion: "Arena fina", Marca: "Local", Und: "M3", Cantidad: 1, Unitario: 200})
	require.NoError(t, err)

	require.Len(t, s.SearchProducts("cemento"), 1)
	// "2" matches both id 2 and the 25kg description.
	require.Len(t, s.SearchProducts("2"), 2)
	require.Len(t, s.SearchProducts("m3"), 1)
	// Marca is not a searchable field.
	require.Empty(t, s.SearchProducts("polpaico"))
}

func TestMergeImportClients(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, s.AddClient(ctx, Client{Rut: "11.111.111-1", Entidad: "Existente", Comuna: "Rancagua", Direccion: "Calle Uno"}))

	payload := []byte(`[
		{"rut":"11.111.111-1","entidad":"Duplicado","comuna":"Rancagua","direccion":"Otra"},
		{"rut":"22.222.222-2","entidad":"Nueva","comuna":"Machalí","direccion":"Calle Dos"},
		{"rut":"22.222.222-2 ","entidad":"Misma con espacio","comuna":"Machalí","direccion":"Calle Dos"},
		{"rut":"33.333.333-3","entidad":"Sin comuna","direccion":"Calle Tres"}
	]`)
	report, err := s.MergeImportClients(ctx, payload)
	require.NoError(t, err)
	require.Equal(t, ClientImportReport{Imported: 1, Duplicates: 2, Invalid: 1}, report)
	require.Len(t, s.Clients(), 2)
}

func TestMergeImportClientsFormatError(t *testing.T) {
	s, _ := newTestService(t)

	_, err := s.MergeImportClients(context.Background(), []byte(`{"not":"an array"}`))
	var appErr *common.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeImportFormat, appErr.Code)

	// A well-formed array with nothing usable is a content error.
	_, err = s.MergeImportClients(context.Background(), []byte(`[{"rut":"only-rut"}]`))
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, common.CodeImportContent, appErr.Code)
}

func TestReplaceImportProducts(t *testing.T) {
	s, _ := newTestService(t)
	ctx := context.Background()
	_, err := s.AddProduct(ctx, ProductInput{Descripcion: "Viejo", Marca: "M", Und: "UND", Cantidad: 1, Unitario: 1})
	require.NoError(t, err)

	payload := []byte(`[
		{"id":7,"descripcion":"Cemento","marca":"Polpaico","und":"UND","cantidad":4,"unitario":2500,"total":999},
		{"id":9,"descripcion":"Arena","marca":"Local","und":"M3","cantidad":2,"unitario":-100,"total":1},
		{"id":3,"descripcion":"Incompleto","marca":"M","und":"UND","cantidad":1,"unitario":10}
	]`)
	report, err := s.ReplaceImportProducts(ctx, payload)
	require.NoError(t, err)
	require.Equal(t, ProductImportReport{Imported: 2, Rejected: 1}, report)

	products := s.Products()
	require.Len(t, products, 2)
	// Imported totals are recomputed, never trusted.
	require.Equal(t, 10000.0, products[0].Total)
	// Negative figures clamp to zero.
	require.Equal(t, 0.0, products[1].Unitario)
	require.Equal(t, 0.0, products[1].Total)

	// The id counter jumps past the highest imported id.
	p, err := s.AddProduct(ctx, ProductInput{Descripcion: "Nuevo", Marca: "M", Und: "UND", Cantidad: 1, Unitario: 10})
	require.NoError(t, err)
	require.Equal(t, 10, p.ID)
}

func TestFrequentClients(t *testing.T) {
	s, kv := newTestService(t)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		c := Client{Rut: fmt.Sprintf("%d-K", i), Entidad: fmt.Sprintf("Cliente %d", i), Comuna: "Rancagua", Direccion: "Calle"}
		bumps := 1
		if i == 5 {
			bumps = 3
		}
		for n := 0; n < bumps; n++ {
			require.NoError(t, s.BumpFrequent(ctx, c))
		}
	}

	freq := s.FrequentClients()
	require.Len(t, freq, 10)
	require.Equal(t, "5-K", freq[0].Rut)
	require.Equal(t, 3, freq[0].Usos)

	// The cache survives a restart.
	s2, err := NewService(ctx, ServiceConfig{Store: kv})
	require.NoError(t, err)
	require.Equal(t, freq, s2.FrequentClients())
}

func TestNormalizeRUT(t *testing.T) {
	require.Equal(t, "11.111.111-k", NormalizeRUT(" 11.111.111-K "))
}
