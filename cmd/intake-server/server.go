package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ehr/intake/internal/config"
	"github.com/ehr/intake/internal/domain/intake"
	"github.com/ehr/intake/internal/platform/auth"
	"github.com/ehr/intake/internal/platform/fhir"
	"github.com/ehr/intake/internal/platform/i18n"
	"github.com/ehr/intake/internal/platform/middleware"
)

const version = "0.1.0"

func runServer() error {
	// Logger
	logger := newServerLogger(os.Getenv("ENV"))

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	e, err := newServer(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Bool("tls", cfg.TLSEnabled).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newIntakeService wires the validator, mapper and catalog from config.
func newIntakeService(cfg *config.Config, logger zerolog.Logger) (*intake.Service, *i18n.Catalog, error) {
	catalog, err := i18n.Default()
	if err != nil {
		return nil, nil, fmt.Errorf("load catalog: %w", err)
	}
	if cfg.DefaultLocale != "" {
		if catalog, err = catalog.WithDefault(cfg.DefaultLocale); err != nil {
			return nil, nil, err
		}
	}
	strategy, err := intake.ParseIDStrategy(cfg.IDStrategy)
	if err != nil {
		return nil, nil, err
	}

	svc := intake.NewService(
		intake.NewValidator(catalog),
		intake.NewMapper(intake.NewIDGenerator(strategy)),
		cfg.ExportPrefix,
		logger,
	)
	return svc, catalog, nil
}

func newServer(cfg *config.Config, logger zerolog.Logger) (*echo.Echo, error) {
	svc, catalog, err := newIntakeService(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = outcomeErrorHandler(logger)

	// Global middleware
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders(cfg.TLSEnabled))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost},
		AllowHeaders:  []string{"Authorization", "Content-Type", "Accept-Language", middleware.RequestIDHeader},
		ExposeHeaders: []string{echo.HeaderContentDisposition, "Content-Language", middleware.RequestIDHeader},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})

	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}))

	// Auth middleware
	if cfg.IsDev() {
		apiV1.Use(auth.DevAuthMiddleware())
	} else {
		apiV1.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
		}))
	}
	apiV1.Use(auth.RequireRole(auth.RoleIntakeClerk, auth.RolePhysician, auth.RoleNurse))

	intake.NewHandler(svc, catalog).RegisterRoutes(apiV1)

	return e, nil
}

// outcomeErrorHandler renders unhandled errors as OperationOutcome bodies.
func outcomeErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		diagnostics := "internal server error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			diagnostics = fmt.Sprint(he.Message)
		} else {
			logger.Error().Err(err).Msg("unhandled error")
		}

		code := fhir.IssueTypeProcessing
		switch status {
		case http.StatusUnauthorized:
			code = fhir.IssueTypeLogin
		case http.StatusForbidden:
			code = fhir.IssueTypeSecurity
		case http.StatusNotFound, http.StatusMethodNotAllowed:
			code = fhir.IssueTypeNotFound
		case http.StatusRequestEntityTooLarge:
			code = fhir.IssueTypeTooCostly
		case http.StatusInternalServerError:
			code = fhir.IssueTypeException
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, fhir.NewOperationOutcome(fhir.IssueSeverityError, code, diagnostics))
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("failed to write error response")
		}
	}
}
