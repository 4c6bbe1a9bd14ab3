package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Seller is the fixed identity block printed on every quotation. It comes
// from deployment configuration, never from user data.
type Seller struct {
	Name    string
	Giro    string
	Address string
	City    string
	Contact string
	Email   string
	Phone   string
	RUT     string
}

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string

	TaxRatePercent       float64
	DefaultMarkupPercent float64
	QuoteValidityDays    int
	PaymentTerms         string
	ExportFilename       string

	Seller Seller
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           k.String("REDIS_URL"),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),

		TaxRatePercent:       parseFloat(k.String("TAX_RATE_PERCENT"), 19),
		DefaultMarkupPercent: parseFloat(k.String("DEFAULT_MARKUP_PERCENT"), 0),
		QuoteValidityDays:    parseInt(k.String("QUOTE_VALIDITY_DAYS"), 30),
		PaymentTerms:         valueOrDefault(k.String("QUOTE_PAYMENT_TERMS"), "CRÉDITO"),
		ExportFilename:       valueOrDefault(k.String("QUOTE_EXPORT_FILENAME"), "cotizacion.pdf"),

		Seller: Seller{
			Name:    valueOrDefault(k.String("SELLER_NAME"), "FERREXPERT SpA."),
			Giro:    valueOrDefault(k.String("SELLER_GIRO"), "Venta al por menor por internet y vía telefónica"),
			Address: valueOrDefault(k.String("SELLER_ADDRESS"), "Av. Nueva Einstein 290, oficina 808"),
			City:    valueOrDefault(k.String("SELLER_CITY"), "Rancagua"),
			Contact: valueOrDefault(k.String("SELLER_CONTACT"), "Diego Gorigoitía R."),
			Email:   valueOrDefault(k.String("SELLER_EMAIL"), "Dgorigoitia@ferrexpert.cl"),
			Phone:   valueOrDefault(k.String("SELLER_PHONE"), "+569 53214349"),
			RUT:     valueOrDefault(k.String("SELLER_RUT"), "77.834.695-8"),
		},
	}

	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.TaxRatePercent < 0 {
		return nil, fmt.Errorf("TAX_RATE_PERCENT must not be negative: %v", cfg.TaxRatePercent)
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func parseFloat(value string, fallback float64) float64 {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseInt(value string, fallback int) int {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return fallback
	}
	return n
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(envVars map[string]string) (*Config, error) {
	original := make(map[string]string, len(envVars))
	for key := range envVars {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, envVars[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
