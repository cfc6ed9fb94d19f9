package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cassian/api/internal/app"
	"cassian/api/internal/config"
	"cassian/api/internal/identity"
	"cassian/api/internal/session"
	"cassian/api/internal/store"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("api: %v", err)
	}
}

func run() error {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		return err
	}

	postgres := store.NewPostgresStore(db)

	jwtSecret, err := app.EnsureJWTSecret(ctx, postgres, cfg.JWTSecret)
	if err != nil {
		return err
	}

	sessions, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		return err
	}
	defer sessions.Close()

	users := identity.NewService(postgres)
	service := app.New(cfg, postgres, users, sessions, jwtSecret)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewHTTPServer(service, cfg.CORSOrigin).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Printf("api: listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errs:
		return err
	case sig := <-stop:
		log.Printf("api: received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
