package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/fhirlite/server/internal/config"
	"github.com/fhirlite/server/internal/domain/observation"
	"github.com/fhirlite/server/internal/domain/patient"
	"github.com/fhirlite/server/internal/platform/db"
	"github.com/fhirlite/server/internal/platform/fhir"
	"github.com/fhirlite/server/internal/platform/middleware"
)

const shutdownTimeout = 10 * time.Second

func runServer(cfg *config.Config, logger zerolog.Logger) error {
	ctx := context.Background()
	pool, err := db.NewPool(ctx, poolConfig(cfg))
	if err != nil {
		logger.Error().Err(err).Msg("failed to connect to database")
		return err
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	if cfg.AutoMigrate {
		count, err := db.NewMigrator(pool, cfg.MigrationsDir).Up(ctx)
		if err != nil {
			logger.Error().Err(err).Str("dir", cfg.MigrationsDir).Msg("auto-migration failed")
			return err
		}
		logger.Info().Int("applied", count).Msg("schema up to date")
	}

	retrier := db.NewRetrier(
		db.WithMaxAttempts(cfg.DBRetryAttempts),
		db.WithDelay(cfg.DBRetryDelay),
		db.WithLogger(logger),
	)
	e := newServer(cfg, logger, pool, retrier)

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	case <-quit:
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newServer wires routes and middleware. Resource routes share one pooled
// connection and Session per request.
func newServer(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, retrier *db.Retrier) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = fhir.ErrorHandler(logger)

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:  []string{echo.HeaderContentType, echo.HeaderAccept, fhir.HeaderPrefer, middleware.RequestIDHeader},
		ExposeHeaders: []string{echo.HeaderLocation, middleware.RequestIDHeader},
	}))
	e.Use(echomw.BodyLimit("1M"))

	e.GET("/health", db.HealthHandler(pool))

	negotiate := fhir.ContentNegotiationMiddleware()
	fhir.NewCapabilityHandler(capabilities(cfg.BaseURL)).RegisterRoutes(e, negotiate)

	resourceMW := []echo.MiddlewareFunc{
		negotiate,
		middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimitRPS,
			BurstSize:         cfg.RateLimitBurst,
		}),
		db.SessionMiddleware(pool, retrier),
	}

	patientSvc := patient.NewService(patient.NewRepo(pool), retrier)
	patient.NewHandler(patientSvc, cfg.BaseURL).RegisterRoutes(e, resourceMW...)

	observationSvc := observation.NewService(observation.NewRepo(pool), retrier)
	observation.NewHandler(observationSvc, cfg.BaseURL).RegisterRoutes(e, resourceMW...)

	return e
}

func capabilities(baseURL string) *fhir.CapabilityBuilder {
	b := fhir.NewCapabilityBuilder(baseURL, version)
	b.AddResource(patient.ResourceType, fhir.DefaultInteractions(),
		append(fhir.CapabilityParams(patient.SearchParams, "birthdate"), fhir.PagingParams()...))
	b.AddResource(observation.ResourceType, fhir.DefaultInteractions(),
		append(fhir.CapabilityParams(observation.SearchParams, "patient"), fhir.PagingParams()...))
	return b
}
