// Package app wires the whole service together. Besides the explicit New
// constructor used by cmd/api, it offers a process-wide handle for embedding
// environments (serverless runtimes, tests) that reuse one initialized
// instance across invocations.
package app

import (
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/uptrace/bun"

	"catapis/internal/auth"
	"catapis/internal/breeds"
	"catapis/internal/config"
	"catapis/internal/database"
	httpserver "catapis/internal/http"
	"catapis/internal/images"
	"catapis/internal/logging"
	"catapis/internal/upstream"
	"catapis/internal/user"
)

// App aggregates the wired components of one service instance
type App struct {
	Config *config.Config
	Logger *logging.Logger
	DB     *bun.DB
	Router *chi.Mux
}

// New wires repositories, services and handlers into a ready router.
// It performs no I/O; the caller owns the database handle.
func New(cfg *config.Config, logger *logging.Logger, db *bun.DB) (*App, error) {
	userRepo := user.NewRepository(db)

	jwtService, err := auth.NewJWTService(cfg.Auth.JWTSecret)
	if err != nil {
		return nil, err
	}

	authService := auth.NewService(userRepo, jwtService, logger, cfg.Auth.TokenDuration)
	authHandler := auth.NewHandler(authService)
	authMiddleware := auth.NewMiddleware(jwtService)

	upstreamClient := upstream.NewClient(upstream.Options{
		BaseURL:    cfg.CatAPI.BaseURL,
		Timeout:    cfg.CatAPI.Timeout,
		Retries:    cfg.CatAPI.Retries,
		RetryDelay: cfg.CatAPI.RetryDelay,
	}, logger)

	breedsService := breeds.NewService(upstreamClient, cfg.CatAPI.APIKey, logger)
	breedsHandler := breeds.NewHandler(breedsService)

	imagesService := images.NewService(upstreamClient, cfg.CatAPI.APIKey, logger)
	imagesHandler := images.NewHandler(imagesService)

	router := httpserver.NewRouter(cfg, authHandler, authMiddleware, breedsHandler, imagesHandler, logger)

	return &App{
		Config: cfg,
		Logger: logger,
		DB:     db,
		Router: router,
	}, nil
}

var (
	sharedOnce sync.Once
	sharedApp  *App
	sharedErr  error

	// swapped out in tests; bootstrap dials the real database
	sharedBootstrap = bootstrap
)

// Shared returns the process-wide App, initializing it exactly once.
// Concurrent first callers block until the single initialization finishes;
// every caller then observes the same instance (or the same error).
func Shared() (*App, error) {
	sharedOnce.Do(func() {
		sharedApp, sharedErr = sharedBootstrap()
	})
	return sharedApp, sharedErr
}

func bootstrap() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logger := logging.NewLogger(cfg.Server.IsDevelopment())

	db, err := database.Connect(cfg.Database)
	if err != nil {
		return nil, err
	}

	return New(cfg, logger, db)
}
