package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"net/http/pprof"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"

	"github.com/ferrexpert/cotizador/internal/catalog"
	"github.com/ferrexpert/cotizador/internal/common"
	"github.com/ferrexpert/cotizador/internal/config"
	"github.com/ferrexpert/cotizador/internal/health"
	"github.com/ferrexpert/cotizador/internal/obs"
	"github.com/ferrexpert/cotizador/internal/quote"
	"github.com/ferrexpert/cotizador/internal/quote/pdf"
	"github.com/ferrexpert/cotizador/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("env", cfg.AppEnv).Logger()

	metricsNamespace := envOrDefault("OBS_METRICS_NAMESPACE", "cotizador")
	metricsEnabled := envBool("OBS_ENABLE_PROMETHEUS", true)
	var domainMetrics *obs.DomainMetrics
	if metricsEnabled {
		domainMetrics = obs.NewDomainMetrics(metricsNamespace, nil)
	}

	tracingEnabled := envBool("OBS_ENABLE_TRACING", false)
	if tracingEnabled {
		sampling := envFloat("OBS_TRACING_SAMPLING_RATIO", 1.0)
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{
			ServiceName:   "cotizador-api",
			Endpoint:      envOrDefault("OBS_OTLP_ENDPOINT", ""),
			Exporter:      envOrDefault("OBS_TRACING_EXPORTER", "otlp"),
			SamplingRatio: sampling,
			Environment:   cfg.AppEnv,
		})
		if err != nil {
			logger.Error().Err(err).Msg("initialise tracing")
			tracingEnabled = false
		} else {
			defer func() {
				if err := shutdown(context.Background()); err != nil {
					logger.Error().Err(err).Msg("shutdown tracer")
				}
			}()
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if tracingEnabled {
		if err := redisotel.InstrumentTracing(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis tracing")
		}
	}
	if metricsEnabled {
		if err := redisotel.InstrumentMetrics(redisClient); err != nil {
			logger.Error().Err(err).Msg("instrument redis metrics")
		}
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}

	kv := store.New(redisClient)

	catalogService, err := catalog.NewService(ctx, catalog.ServiceConfig{Store: kv})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise catalog service")
	}
	catalogHandler := catalog.NewHandler(catalog.HandlerConfig{
		Service: catalogService,
		Metrics: domainMetrics,
	})

	builder, err := quote.NewBuilder(quote.BuilderConfig{
		Catalog:            catalogService,
		Store:              kv,
		TaxRatePercent:     cfg.TaxRatePercent,
		DefaultMarkup:      cfg.DefaultMarkupPercent,
		AutoApplyByDefault: cfg.DefaultMarkupPercent > 0,
		Seller:             cfg.Seller,
		QuoteValidityDays:  cfg.QuoteValidityDays,
		PaymentTerms:       cfg.PaymentTerms,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("initialise quote builder")
	}
	number, err := builder.Start(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("open quote session")
	}
	if domainMetrics != nil {
		domainMetrics.QuotesStarted.Inc()
	}
	logger.Info().Str("number", number).Msg("quote session opened")

	quoteHandler := quote.NewHandler(quote.HandlerConfig{
		Builder:        builder,
		Renderer:       pdf.New(),
		ExportFilename: cfg.ExportFilename,
		Metrics:        domainMetrics,
	})

	idem := common.Idem{R: redisClient, TTL: envDurationMillis("IDEMPOTENCY_TTL_MS", 600000)}

	var httpMetrics *obs.HTTPMetrics
	if metricsEnabled {
		buckets := obs.ParseBucketsCSV(envOrDefault("OBS_METRICS_BUCKETS_MS", ""))
		httpMetrics = obs.NewHTTPMetrics(metricsNamespace, buckets, nil)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(obs.RoutePatternMiddleware)
	if tracingEnabled {
		r.Use(obs.TracingMiddleware)
	}
	if metricsEnabled && httpMetrics != nil {
		r.Use(obs.HTTPObs{Metrics: httpMetrics}.Middleware)
	}
	r.Use(obs.RequestLogger{Logger: logger}.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg),
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}
	pprofEnabled := envBool("OBS_ENABLE_PPROF", false)
	if pprofEnabled {
		user := envOrDefault("SECURE_PPROF_BASIC_AUTH_USER", "")
		pass := envOrDefault("SECURE_PPROF_BASIC_AUTH_PASS", "")
		r.Mount("/debug/pprof", protectPprof(newPprofMux(), user, pass))
	}

	healthHandler := health.Handler{
		Checker:      storeChecker{kv: kv},
		StoreTimeout: envDurationMillis("HEALTH_READY_STORE_TIMEOUT_MS", 300),
	}
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)

	r.Route("/api/v1", func(v chi.Router) {
		v.Route("/clients", func(c chi.Router) {
			c.Get("/", catalogHandler.Clients)
			c.Post("/", catalogHandler.CreateClient)
			c.Get("/export", catalogHandler.ExportClients)
			c.Get("/frequent", catalogHandler.Frequent)
			c.With(idem.Middleware).Post("/import", catalogHandler.ImportClients)
			c.Put("/{index}", catalogHandler.UpdateClient)
			c.Delete("/{index}", catalogHandler.DeleteClient)
		})

		v.Route("/products", func(p chi.Router) {
			p.Get("/", catalogHandler.Products)
			p.Post("/", catalogHandler.CreateProduct)
			p.Get("/export", catalogHandler.ExportProducts)
			p.Get("/units", catalogHandler.ProductUnits)
			p.With(idem.Middleware).Post("/import", catalogHandler.ImportProducts)
			p.Put("/{index}", catalogHandler.UpdateProduct)
			p.Delete("/{index}", catalogHandler.DeleteProduct)
		})

		v.Route("/quote", func(q chi.Router) {
			q.Get("/", quoteHandler.State)
			q.Post("/new", quoteHandler.New)
			q.Post("/client", quoteHandler.SelectClient)
			q.Delete("/client", quoteHandler.ClearClient)
			q.Post("/lines", quoteHandler.AddLines)
			q.Delete("/lines", quoteHandler.ClearLines)
			q.Patch("/lines/{id}", quoteHandler.UpdateLine)
			q.Delete("/lines/{id}", quoteHandler.RemoveLine)
			q.Put("/markup", quoteHandler.SetMarkup)
			q.Post("/markup/apply-all", quoteHandler.ApplyMarkupAll)
			q.With(idem.Middleware).Post("/export", quoteHandler.Export)
		})
	})

	srv := &http.Server{
		Addr:    cfg.HTTPAddr(),
		Handler: r,
	}

	logger.Info().Str("addr", srv.Addr).Msg("server starting")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal().Err(err).Msg("server exited unexpectedly")
	}
}

func allowedOrigins(cfg *config.Config) []string {
	if len(cfg.CORSAllowedOrigins) == 0 {
		return []string{"*"}
	}
	return cfg.CORSAllowedOrigins
}

type storeChecker struct {
	kv *store.KV
}

func (c storeChecker) PingStore(ctx context.Context, timeout time.Duration) error {
	if c.kv == nil {
		return errors.New("store not configured")
	}
	return c.kv.Ping(ctx, timeout)
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if val, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "1", "t", "true", "yes", "on":
			return true
		case "0", "f", "false", "no", "off":
			return false
		}
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return parsed
		}
	}
	return fallback
}

func envDurationMillis(key string, fallback int) time.Duration {
	return time.Duration(envInt(key, fallback)) * time.Millisecond
}

func newPprofMux() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", pprof.Index)
	mux.HandleFunc("/cmdline", pprof.Cmdline)
	mux.HandleFunc("/profile", pprof.Profile)
	mux.HandleFunc("/symbol", pprof.Symbol)
	mux.HandleFunc("/trace", pprof.Trace)
	mux.Handle("/allocs", pprof.Handler("allocs"))
	mux.Handle("/goroutine", pprof.Handler("goroutine"))
	mux.Handle("/heap", pprof.Handler("heap"))
	return mux
}

func protectPprof(handler http.Handler, user, pass string) http.Handler {
	user = strings.TrimSpace(user)
	pass = strings.TrimSpace(pass)
	if user == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || subtle.ConstantTimeCompare([]byte(u), []byte(user)) != 1 || subtle.ConstantTimeCompare([]byte(p), []byte(pass)) != 1 {
			w.Header().Set("WWW-Authenticate", "Basic realm=restricted")
			http.Error(w, "unauthorised", http.StatusUnauthorized)
			return
		}
		handler.ServeHTTP(w, r)
	})
}
