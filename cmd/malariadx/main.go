package main

import (
	"context"
	crypto_rand "crypto/rand"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/malariadx/malariadx/internal/config"
	"github.com/malariadx/malariadx/internal/detection"
	"github.com/malariadx/malariadx/internal/domain/analytics"
	"github.com/malariadx/malariadx/internal/domain/appointments"
	"github.com/malariadx/malariadx/internal/domain/identity"
	"github.com/malariadx/malariadx/internal/domain/organizations"
	"github.com/malariadx/malariadx/internal/domain/patients"
	"github.com/malariadx/malariadx/internal/domain/predictions"
	"github.com/malariadx/malariadx/internal/domain/reports"
	"github.com/malariadx/malariadx/internal/domain/tests"
	"github.com/malariadx/malariadx/internal/inference"
	"github.com/malariadx/malariadx/internal/platform/auth"
	"github.com/malariadx/malariadx/internal/platform/blobstore"
	"github.com/malariadx/malariadx/internal/platform/db"
	"github.com/malariadx/malariadx/internal/platform/metrics"
	"github.com/malariadx/malariadx/internal/platform/middleware"
	"github.com/malariadx/malariadx/internal/platform/websocket"
	"github.com/malariadx/malariadx/internal/session"
)

const version = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "malariadx",
		Short: "Malaria detection API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(detectCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func newLogger() zerolog.Logger {
	if os.Getenv("ENV") == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// resolveSigningKey returns the configured HS256 key. Outside standalone mode
// a missing key is replaced by a random one.
func resolveSigningKey(cfg *config.Config) ([]byte, bool, error) {
	key, err := cfg.SigningKey()
	if err != nil {
		return nil, false, err
	}
	if len(key) > 0 {
		return key, false, nil
	}
	key = make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("generate signing key: %w", err)
	}
	return key, true, nil
}

func newBlobStore(cfg *config.Config) (blobstore.Store, error) {
	if cfg.StorageDir == "" {
		return blobstore.NewMemoryStore(), nil
	}
	return blobstore.NewDirStore(cfg.StorageDir)
}

func newInferenceClient(cfg *config.Config, ts inference.TokenSource, rec inference.Recorder, logger zerolog.Logger) *inference.Client {
	opts := []inference.Option{
		inference.WithTokenSource(ts),
		inference.WithRateLimit(cfg.MLAPIRPS, int(cfg.MLAPIRPS)+1),
		inference.WithCacheTTL(cfg.MLCacheTTL),
		inference.WithTimeout(cfg.MLAPITimeout),
		inference.AuthenticateVariants(cfg.MLAuthVariants),
		inference.WithLogger(logger.With().Str("component", "inference").Logger()),
	}
	if rec != nil {
		opts = append(opts, inference.WithMetrics(rec))
	}
	return inference.New(cfg.MLAPIURL, opts...)
}

// services is the persistence facade shared by the server and the CLI.
type services struct {
	tests        *tests.Service
	testRepo     tests.Repository
	predictions  *predictions.Service
	reports      *reports.Service
	patients     *patients.Service
	appointments *appointments.Service
	orgs         *organizations.Service
	analytics    *analytics.Service
	identity     *identity.Service
}

func newServices(q db.Querier, blobs blobstore.Store, cfg *config.Config, issuer identity.TokenIssuer, revoker identity.TokenRevoker, logger zerolog.Logger) *services {
	s := &services{testRepo: tests.NewRepoPG(q)}
	s.tests = tests.NewService(s.testRepo, blobs, cfg.PublicBaseURL)
	s.predictions = predictions.NewService(predictions.NewRepoPG(q))
	s.reports = reports.NewService(reports.NewRepoPG(q), blobs, cfg.PublicBaseURL, logger)
	s.patients = patients.NewService(patients.NewRepoPG(q))
	s.appointments = appointments.NewService(appointments.NewRepoPG(q))
	s.orgs = organizations.NewService(organizations.NewRepoPG(q), organizations.NewDoctorRepoPG(q))
	s.analytics = analytics.NewService(analytics.NewRepoPG(q), s.testRepo, logger)
	s.identity = identity.NewService(identity.NewRepoPG(q), s.patients, s.orgs, issuer, logger)
	s.identity.SetActivityRecorder(s.analytics)
	if revoker != nil {
		s.identity.SetRevoker(revoker)
	}
	return s
}

func newOrchestrator(cfg *config.Config, client *inference.Client, svc *services, blobs blobstore.Store, logger zerolog.Logger) *detection.Orchestrator {
	orch := detection.NewOrchestrator(client, svc.tests, blobs, cfg.PublicBaseURL, cfg.DetectionMaxBytes(), logger)
	orch.SetPatientLookup(svc.patients)
	orch.SetActivityRecorder(svc.analytics)
	return orch
}

func runServer() error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	blobs, err := newBlobStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open blob storage")
	}

	m, err := metrics.New()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to register metrics")
	}

	// Auth
	mode := cfg.ResolvedAuthMode()
	key, randomKey, err := resolveSigningKey(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("signing key error")
	}
	if randomKey {
		logger.Warn().Msg("AUTH_SIGNING_KEY not set; using random key (tokens will not survive restart)")
	}
	revocations := auth.NewRevocationList()
	jwtCfg := auth.JWTConfig{
		Issuer:      cfg.AuthIssuer,
		Audience:    cfg.AuthAudience,
		JWKSURL:     cfg.AuthJWKSURL,
		Revocations: revocations,
		Skipper:     auth.AuthSkipper,
	}
	if mode != "external" {
		jwtCfg.SigningKey = key
	} else {
		logger.Warn().Msg("external auth mode: tokens issued by local sign-in are not accepted")
	}
	issuer := auth.NewIssuer(key, cfg.AuthIssuer, cfg.AuthAudience, cfg.AuthTokenTTL)

	svc := newServices(pool, blobs, cfg, issuer, revocations, logger)

	client := newInferenceClient(cfg, session.ContextTokenSource{}, m.Inference, logger)
	orch := newOrchestrator(cfg, client, svc, blobs, logger)
	orch.SetObserver(m.Detection)
	hub := websocket.NewHub(cfg.CORSOrigins, logger)
	orch.SetPublisher(hub)
	registry := detection.NewRegistry(cfg.DetectionWorkspaceTTL)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders(cfg.TLSEnabled))
	e.Use(m.HTTP.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit(cfg.IntakeDefaultMaxBytes(), cfg.DetectionMaxBytes()))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool, map[string]db.Pinger{"inference": client}))
	e.GET("/metrics", echo.WrapHandler(m.Handler()))
	blobstore.NewHandler(blobs).RegisterRoutes(e)

	apiV1 := e.Group("/api/v1")
	if mode == "development" {
		apiV1.Use(auth.DevAuthMiddleware(jwtCfg))
	} else {
		apiV1.Use(auth.JWTMiddleware(jwtCfg))
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	identity.NewHandler(svc.identity).RegisterRoutes(apiV1)
	orgHandler := organizations.NewHandler(svc.orgs)
	orgHandler.RegisterRoutes(apiV1)
	orgHandler.RegisterPublicRoutes(apiV1)
	patients.NewHandler(svc.patients).RegisterRoutes(apiV1)
	tests.NewHandler(svc.tests).RegisterRoutes(apiV1)
	predictions.NewHandler(svc.predictions).RegisterRoutes(apiV1)
	reports.NewHandler(svc.reports).RegisterRoutes(apiV1)
	appointments.NewHandler(svc.appointments).RegisterRoutes(apiV1)
	analytics.NewHandler(svc.analytics).RegisterRoutes(apiV1)
	inference.NewHandler(client, cfg.IntakeDefaultMaxBytes()).RegisterRoutes(apiV1)
	detectionHandler := detection.NewHandler(orch, registry)
	detectionHandler.SetStream(hub)
	detectionHandler.RegisterRoutes(apiV1)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("auth_mode", mode).Msg("starting server")
		var err error
		if cfg.TLSEnabled {
			err = e.StartTLS(addr, cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			err = e.Start(addr)
		}
		if err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
