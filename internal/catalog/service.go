package catalog

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"

	validator "github.com/go-playground/validator/v10"

	"github.com/ferrexpert/cotizador/internal/common"
	"github.com/ferrexpert/cotizador/internal/store"
)

// Service owns the client and product catalogs. All mutations are serialized
// with a mutex and written through to the store before returning, so the
// persisted state never lags the in-memory one.
type Service struct {
	mu       sync.Mutex
	clients  []Client
	products []Product
	frequent []FrequentClient
	nextID   int

	kv       *store.KV
	validate *validator.Validate
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Store *store.KV
}

// NewService constructs a Service and hydrates it from the store. Absent keys
// hydrate to empty catalogs.
func NewService(ctx context.Context, cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("catalog: store is required")
	}
	s := &Service{
		kv:       cfg.Store,
		validate: validator.New(),
		nextID:   1,
	}
	if _, err := cfg.Store.GetJSON(ctx, store.KeyClients, &s.clients); err != nil {
		return nil, err
	}
	if _, err := cfg.Store.GetJSON(ctx, store.KeyProducts, &s.products); err != nil {
		return nil, err
	}
	if _, err := cfg.Store.GetJSON(ctx, store.KeyFrequentClients, &s.frequent); err != nil {
		return nil, err
	}
	s.nextID = maxProductID(s.products) + 1
	return s, nil
}

func maxProductID(products []Product) int {
	max := 0
	for _, p := range products {
		if p.ID > max {
			max = p.ID
		}
	}
	return max
}

// Clients returns a copy of the client catalog.
func (s *Service) Clients() []Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Client, len(s.clients))
	copy(out, s.clients)
	return out
}

// Products returns a copy of the product catalog.
func (s *Service) Products() []Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Product, len(s.products))
	copy(out, s.products)
	return out
}

// AddClient validates and appends a client record. A missing required field
// blocks the whole action; nothing is saved.
func (s *Service) AddClient(ctx context.Context, c Client) error {
	if err := validateClient(c); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients = append(s.clients, c)
	return s.persistClients(ctx)
}

// UpdateClient replaces the client at a stable position.
func (s *Service) UpdateClient(ctx context.Context, index int, c Client) error {
	if err := validateClient(c); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.clients) {
		return notFound("client", index)
	}
	s.clients[index] = c
	return s.persistClients(ctx)
}

// DeleteClient removes the client at the given position.
func (s *Service) DeleteClient(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.clients) {
		return notFound("client", index)
	}
	s.clients = append(s.clients[:index], s.clients[index+1:]...)
	return s.persistClients(ctx)
}

// SearchClients returns clients whose entidad, rut, or comuna contains the
// query, case-insensitively. An empty query matches everything.
func (s *Service) SearchClients(query string) []Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		out := make([]Client, len(s.clients))
		copy(out, s.clients)
		return out
	}
	out := make([]Client, 0)
	for _, c := range s.clients {
		if strings.Contains(strings.ToLower(c.Entidad), q) ||
			strings.Contains(strings.ToLower(c.Rut), q) ||
			strings.Contains(strings.ToLower(c.Comuna), q) {
			out = append(out, c)
		}
	}
	return out
}

// FindClientByRUT looks a client up by normalized RUT.
func (s *Service) FindClientByRUT(rut string) (Client, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	norm := NormalizeRUT(rut)
	for _, c := range s.clients {
		if NormalizeRUT(c.Rut) == norm {
			return c, true
		}
	}
	return Client{}, false
}

// ProductInput carries the user-editable product fields. ID and Total are
// always assigned by the service.
type ProductInput struct {
	Descripcion string  `json:"descripcion"`
	Marca       string  `json:"marca"`
	Und         string  `json:"und"`
	Cantidad    float64 `json:"cantidad"`
	Unitario    float64 `json:"unitario"`
}

// AddProduct validates the input, assigns the next sequential id, computes
// the derived total, and appends the record.
func (s *Service) AddProduct(ctx context.Context, in ProductInput) (Product, error) {
	if err := validateProductInput(in); err != nil {
		return Product{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := productFromInput(in)
	p.ID = s.nextID
	s.nextID++
	s.products = append(s.products, p)
	if err := s.persistProducts(ctx); err != nil {
		return Product{}, err
	}
	return p, nil
}

// UpdateProduct replaces the user-editable fields of the product at a stable
// position, keeping its id and recomputing the total.
func (s *Service) UpdateProduct(ctx context.Context, index int, in ProductInput) (Product, error) {
	if err := validateProductInput(in); err != nil {
		return Product{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.products) {
		return Product{}, notFound("product", index)
	}
	p := productFromInput(in)
	p.ID = s.products[index].ID
	s.products[index] = p
	if err := s.persistProducts(ctx); err != nil {
		return Product{}, err
	}
	return p, nil
}

// DeleteProduct removes the product at the given position. Its id is never
// reused within the session.
func (s *Service) DeleteProduct(ctx context.Context, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < 0 || index >= len(s.products) {
		return notFound("product", index)
	}
	s.products = append(s.products[:index], s.products[index+1:]...)
	return s.persistProducts(ctx)
}

// SearchProducts returns products whose descripcion, id, or und contains the
// query, case-insensitively. An empty query matches everything.
func (s *Service) SearchProducts(query string) []Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		out := make([]Product, len(s.products))
		copy(out, s.products)
		return out
	}
	out := make([]Product, 0)
	for _, p := range s.products {
		if strings.Contains(strings.ToLower(p.Descripcion), q) ||
			strings.Contains(strconv.Itoa(p.ID), q) ||
			strings.Contains(strings.ToLower(p.Und), q) {
			out = append(out, p)
		}
	}
	return out
}

// FindProductByID looks a product up by its catalog id.
func (s *Service) FindProductByID(id int) (Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

func productFromInput(in ProductInput) Product {
	cantidad := common.ClampNonNegative(in.Cantidad)
	unitario := common.ClampNonNegative(in.Unitario)
	return Product{
		Descripcion: in.Descripcion,
		Marca:       in.Marca,
		Und:         in.Und,
		Cantidad:    cantidad,
		Unitario:    unitario,
		Total:       cantidad * unitario,
	}
}

func validateClient(c Client) error {
	fields := []struct {
		name  string
		value string
	}{
		{"rut", c.Rut},
		{"entidad", c.Entidad},
		{"comuna", c.Comuna},
		{"direccion", c.Direccion},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return common.ValidationError(f.name)
		}
	}
	return nil
}

func validateProductInput(in ProductInput) error {
	fields := []struct {
		name  string
		value string
	}{
		{"descripcion", in.Descripcion},
		{"marca", in.Marca},
		{"und", in.Und},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return common.ValidationError(f.name)
		}
	}
	return nil
}

func (s *Service) persistClients(ctx context.Context) error {
	return s.kv.SetJSON(ctx, store.KeyClients, s.clients)
}

func (s *Service) persistProducts(ctx context.Context) error {
	return s.kv.SetJSON(ctx, store.KeyProducts, s.products)
}

func notFound(kind string, index int) *common.AppError {
	return &common.AppError{
		Code:       common.CodeNotFound,
		Message:    kind + " index out of range",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"index": index},
	}
}
