package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	redis "github.com/redis/go-redis/v9"

	"github.com/ferrexpert/cotizador/internal/catalog"
	"github.com/ferrexpert/cotizador/internal/store"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		log.Fatal("REDIS_URL is not set")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("Failed to parse REDIS_URL: %v", err)
	}
	client := redis.NewClient(opts)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("Failed to ping redis: %v", err)
	}

	kv := store.New(client)
	seedClients(ctx, kv)
	seedProducts(ctx, kv)

	log.Println("Seeding completed successfully!")
}

func seedClients(ctx context.Context, kv *store.KV) {
	clients := []catalog.Client{
		{Rut: "76.123.456-7", Entidad: "Constructora Rancagua Ltda.", Comuna: "Rancagua", Direccion: "Av. Libertador 1250"},
		{Rut: "77.987.654-3", Entidad: "Inmobiliaria Cachapoal SpA", Comuna: "Machalí", Direccion: "Camino Las Rosas 88"},
		{Rut: "12.345.678-9", Entidad: "Juan Pérez Obras Menores", Comuna: "Graneros", Direccion: "Los Aromos 412"},
		{Rut: "78.456.789-0", Entidad: "Servicios Eléctricos del Sur", Comuna: "Rancagua", Direccion: "Pasaje El Roble 73"},
		{Rut: "15.678.234-5", Entidad: "María González Gasfitería", Comuna: "Olivar", Direccion: "Calle Larga 190"},
	}

	log.Println("Seeding clients...")
	if err := kv.SetJSON(ctx, store.KeyClients, clients); err != nil {
		log.Fatalf("Failed to seed clients: %v", err)
	}
	log.Printf("Seeded %d clients", len(clients))
}

func seedProducts(ctx context.Context, kv *store.KV) {
	inputs := []catalog.ProductInput{
		{Descripcion: "Cemento Polpaico 25kg", Marca: "Polpaico", Und: "UND", Cantidad: 120, Unitario: 4590},
		{Descripcion: "Fierro estriado 8mm x 6m", Marca: "CAP", Und: "UND", Cantidad: 300, Unitario: 3190},
		{Descripcion: "Arena fina", Marca: "Áridos Cachapoal", Und: "M3", Cantidad: 15, Unitario: 18500},
		{Descripcion: "Plancha OSB 11.1mm", Marca: "LP", Und: "UND", Cantidad: 80, Unitario: 12990},
		{Descripcion: "Cable eléctrico THHN 2.5mm", Marca: "Cobrecon", Und: "M", Cantidad: 500, Unitario: 420},
		{Descripcion: "Pintura látex blanco", Marca: "Sipa", Und: "LT", Cantidad: 60, Unitario: 2890},
		{Descripcion: "Guantes de seguridad", Marca: "Steelpro", Und: "PAR", Cantidad: 45, Unitario: 1990},
	}

	products := make([]catalog.Product, len(inputs))
	for i, in := range inputs {
		products[i] = catalog.Product{
			ID:          i + 1,
			Descripcion: in.Descripcion,
			Marca:       in.Marca,
			Und:         in.Und,
			Cantidad:    in.Cantidad,
			Unitario:    in.Unitario,
			Total:       in.Cantidad * in.Unitario,
		}
	}

	log.Println("Seeding products...")
	if err := kv.SetJSON(ctx, store.KeyProducts, products); err != nil {
		log.Fatalf("Failed to seed products: %v", err)
	}
	log.Printf("Seeded %d products", len(products))
}
