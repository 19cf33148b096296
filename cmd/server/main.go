package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/nkhella/fairshare/internal/auth"
	"github.com/nkhella/fairshare/internal/config"
	"github.com/nkhella/fairshare/internal/server"
	"github.com/nkhella/fairshare/internal/session"
	"github.com/nkhella/fairshare/internal/storage/sqlite"
	"github.com/nkhella/fairshare/pkg/logging"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// A missing .env is fine; env vars still apply.
	_ = godotenv.Load()

	logging.Setup()
	logger := slog.Default()

	cfg, err := config.Load()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	store, err := sqlite.New(cfg.DB.Path)
	if err != nil {
		logger.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("storage initialized", "database", cfg.DB.Path)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions := session.NewStore(ctx, store, logger)
	jwtManager := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.TokenDuration)

	// Drop any cached session whose token no longer verifies. Runs off the
	// startup path so a slow disk never delays listening.
	go sessions.Reconcile(ctx, jwtManager)

	provider := auth.NewOtpAuthenticator(store, jwtManager, auth.LogSender{Logger: logger}, sessions, logger)
	handlers := server.NewHandlers(provider, store, sessions, logger)
	router := server.NewRouter(handlers, jwtManager, sessions, logger)

	srv := server.New(logger, cfg.HTTP, router)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}
}
