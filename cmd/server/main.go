package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/rs/zerolog"

	"github.com/rumor-ml/commons.systems/pjledger/internal/backend"
	"github.com/rumor-ml/commons.systems/pjledger/internal/config"
	"github.com/rumor-ml/commons.systems/pjledger/internal/firestore"
	"github.com/rumor-ml/commons.systems/pjledger/internal/logger"
	"github.com/rumor-ml/commons.systems/pjledger/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	boot := logger.New("info", false)
	cfg, err := config.Load(boot)
	if err != nil {
		boot.Fatal().Err(err).Msg("failed to load configuration")
	}
	if err := cfg.Validate(); err != nil {
		boot.Fatal().Err(err).Msg("invalid configuration")
	}
	log := logger.New(cfg.LogLevel, cfg.LogPretty)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	store, err := backend.Open(ctx, cfg)
	if err != nil {
		return err
	}
	svc, err := backend.NewServices(store, cfg, "")
	if err != nil {
		store.Close()
		return err
	}
	defer svc.Close()

	verifier, err := authClient(ctx, cfg, store)
	if err != nil {
		return err
	}

	// Log if using Firebase Auth Emulator
	if emulator := os.Getenv("FIREBASE_AUTH_EMULATOR_HOST"); emulator != "" {
		log.Info().Str("host", emulator).Msg("using Firebase Auth Emulator")
	}

	srv := server.New(server.Deps{
		Reports:        svc.Reports,
		Importer:       svc.Pipeline,
		Settlements:    svc.Settlements,
		Verifier:       verifier,
		Logger:         log,
		RateLimitRPS:   cfg.RateLimitRPS,
		RateLimitBurst: cfg.RateLimitBurst,
		AllowedOrigin:  cfg.AllowedOrigin,
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Str("store", cfg.Store).Msg("server starting")
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

// authClient reuses the Firestore store's Auth client, or creates one when the
// ledger lives in SQLite.
func authClient(ctx context.Context, cfg *config.Config, store backend.Store) (*auth.Client, error) {
	if client, ok := store.(*firestore.Client); ok {
		return client.Auth, nil
	}
	if cfg.GCPProjectID == "" {
		return nil, errors.New("GCP_PROJECT_ID is required to verify Firebase ID tokens")
	}
	return firestore.NewAuthClient(ctx, cfg.GCPProjectID, cfg.CredentialsFile)
}
