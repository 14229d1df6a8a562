package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"photofeed/internal/config"
	"photofeed/internal/database"
	"photofeed/internal/database/migration"
	"photofeed/internal/feed"
	handlers "photofeed/internal/http/handler"
	"photofeed/internal/http/middleware"
	"photofeed/internal/model"
	"photofeed/internal/notify"
	"photofeed/internal/otel"
	"photofeed/internal/repository/postgres"
	"photofeed/internal/service"
	"photofeed/internal/storage"
	"photofeed/internal/ws"
)

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracing")
	}
	defer shutdownTracing(context.Background())

	// Initialize PostgreSQL connection (with pooling via database/sql)
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	if err := migration.EnsureMigrated(ctx, db, cfg.Feed.NotifyChannel, log); err != nil {
		log.Fatal().Err(err).Msg("database migration failed")
	}

	// Initialize reusable S3-compatible object storage client (MinIO-supported)
	objStore, err := storage.NewMinIO(cfg.MinIO)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize object storage")
	}

	mediaRepo := postgres.NewMediaPostgres(db)
	profileRepo := postgres.NewProfilePostgres(db)
	mediaSvc := service.NewMediaService(objStore, mediaRepo, log)

	// The change bridge holds its own LISTEN connection; pool settings in
	// the DSN are ignored by pgx.Connect.
	dsn, err := database.BuildPostgresDSN(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid database config")
	}
	bridge := notify.NewPGBridge(dsn, cfg.Feed.NotifyChannel, log)
	go func() {
		if err := bridge.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("notify listener stopped")
		}
	}()

	hub := ws.NewHub(log)
	fetch := feed.FetchFunc(func(ctx context.Context, scope model.Scope) ([]model.MediaItem, error) {
		page, err := mediaSvc.List(ctx, scope, cfg.Feed.FetchLimit, 0)
		if err != nil {
			return nil, err
		}
		return page.Items, nil
	})
	manager := ws.NewManager(ctx, fetch, bridge, hub.Broadcast, log)

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler(),
	})

	// Register global middleware
	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	// JSON Logger middleware for structured request logs
	app.Use(middleware.Logger())
	app.Use(otelfiber.Middleware())

	promMW, err := middleware.NewPrometheusMiddleware(prometheus.DefaultRegisterer)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register prometheus metrics")
	}
	app.Use(promMW.Handler())
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	handlers.RegisterRoutes(app, handlers.Deps{
		DB:        db,
		Media:     mediaSvc,
		Profiles:  profileRepo,
		WSManager: manager,
		WSHub:     hub,
		JWTSecret: cfg.Auth.JWTSecret,
		Log:       log,
	})

	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down")
		_ = app.Shutdown()
	}()

	addr := ":" + cfg.Port
	if err := app.Listen(addr); err != nil {
		log.Fatal().Err(err).Msg("failed to start server")
	}
}
