package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	_ "catapis/docs" // Swagger docs (generated)
	"catapis/internal/app"
	httpServer "catapis/internal/http"
)

// @title           Cat APIs
// @version         1.0.0
// @description     Breed lookup, image lookup and auth, proxying TheCatAPI.

// @host      localhost:8080
// @BasePath  /

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the access token.

func main() {
	if err := run(); err != nil {
		log.Fatalf("Application error: %v", err)
	}
}

func run() error {
	// The process-wide handle loads config, opens the database and wires
	// every service exactly once
	a, err := app.Shared()
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer a.DB.Close()

	logger := a.Logger
	logger.Info("starting application",
		"env", a.Config.Server.Env,
		"port", a.Config.Server.Port,
	)

	server := httpServer.NewServer(
		":"+a.Config.Server.Port,
		a.Router,
		a.Config.Server.ReadTimeout,
		a.Config.Server.WriteTimeout,
		logger,
	)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	// Wait for interrupt signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())

		// Graceful shutdown with timeout
		ctx, cancel := context.WithTimeout(context.Background(), a.Config.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}
