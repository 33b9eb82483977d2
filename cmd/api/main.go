package main

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"cdnapi/internal/config"
	"cdnapi/internal/database"
	"cdnapi/internal/database/migration"
	"cdnapi/internal/fetch"
	handlers "cdnapi/internal/http/handler"
	"cdnapi/internal/http/middleware"
	"cdnapi/internal/otel"
	"cdnapi/internal/quota"
	"cdnapi/internal/relay"
	"cdnapi/internal/repository/postgres"
	"cdnapi/internal/service"
	"cdnapi/internal/storage"
)

func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	loc := time.UTC

	// Initialize OpenTelemetry tracing (no-op when OTEL_SDK_DISABLED=true)
	shutdownTracing, err := otel.Init(context.Background(), loc)
	if err != nil {
		log.Fatalf("failed to initialize tracing: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(ctx)
	}()

	// Initialize PostgreSQL connection (with pooling via database/sql)
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	// Apply schema migrations on first boot
	if err := migration.EnsureMigrated(context.Background(), db, loc, cfg.Database.Host); err != nil {
		log.Fatalf("failed to migrate database: %v", err)
	}

	// Initialize reusable S3-compatible object storage client (MinIO-supported)
	objStore, err := storage.NewMinIO(cfg.MinIO)
	if err != nil {
		log.Fatalf("failed to initialize object storage: %v", err)
	}

	// Assemble the ingestion pipeline
	fetcher := fetch.New(cfg.Fetch)
	writer := storage.NewWriter(objStore, storage.WriterConfig{
		MultipartThreshold: cfg.Upload.MultipartThreshold,
		PartConcurrency:    cfg.Upload.PartConcurrency,
	})
	uploadRepo := postgres.NewUploadPostgres(db)
	accountRepo := postgres.NewAccountPostgres(db)
	guard := quota.NewGuard(accountRepo)
	svc := service.NewIngestService(fetcher, writer, objStore, uploadRepo, guard, cfg.CDN)
	relayProc := relay.NewProcessor(svc, relay.NewDedup(10000, 24*time.Hour))

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
	})

	// Register global middleware
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	// JSON Logger middleware for structured request logs
	app.Use(middleware.Logger())
	// Trace inbound requests
	app.Use(otelfiber.Middleware())

	// Prometheus request counting plus /metrics exposition
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	promMW, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		log.Fatalf("failed to register prometheus metrics: %v", err)
	}
	app.Use(promMW.Handler())
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// Register HTTP routes with injected service
	handlers.RegisterRoutes(app, db, svc, relayProc, cfg.CDN.BaseURL)

	addr := ":" + cfg.Port

	if err := app.Listen(addr); err != nil {
		log.Fatalf("failed to start server: %v", err)
	}
}
