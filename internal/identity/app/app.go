// Package app wires configuration, storage, services and the HTTP surface
// into a runnable identity service.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	identityhttp "github.com/taskhive/identity/internal/identity/http"
	"github.com/taskhive/identity/internal/identity/service"
	"github.com/taskhive/identity/internal/identity/store"
	"github.com/taskhive/identity/internal/identity/store/drivers/sqlite"
	"github.com/taskhive/identity/pkg/jwtx"
	"github.com/taskhive/identity/pkg/slogx"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// Application holds the assembled service graph.
type Application struct {
	cfg    Config
	logger *slog.Logger

	store        store.Store
	keys         *jwtx.KeyMaterial
	codec        *jwtx.Codec
	auth         *service.AuthService
	housekeeping *service.HousekeepingService

	server *http.Server
}

// New builds the full application from configuration. Nothing starts
// running until Run is called.
func New(cfg Config) (*Application, error) {
	logger := slogx.New(slogx.Config{
		Service: "identity",
		Version: Version,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})

	app := &Application{cfg: cfg, logger: logger}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	if err := app.initKeys(); err != nil {
		return nil, fmt.Errorf("init signing keys: %w", err)
	}
	app.initServices()
	app.initHTTP()

	return app, nil
}

func (a *Application) initDatabase() error {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", a.cfg.DatabaseFile)

	st, err := sqlite.NewStore(dsn)
	if err != nil {
		return err
	}

	if err := st.ApplyMigrations(); err != nil {
		_ = st.Close()
		return err
	}

	a.store = st
	a.logger.Info("database ready", "file", a.cfg.DatabaseFile)
	return nil
}

func (a *Application) initKeys() error {
	keys, err := jwtx.ResolveKeyMaterial(jwtx.KeyConfig{
		PrivateKey: a.cfg.RSAPrivateKey,
		PublicKey:  a.cfg.RSAPublicKey,
		StorePath:  a.cfg.RSAKeyStorePath,
	}, a.logger)
	if err != nil {
		return err
	}

	a.keys = keys
	a.codec = &jwtx.Codec{Keys: keys, Issuer: a.cfg.Issuer}
	a.logger.Info("signing keys resolved", "source", keys.Source(), "kid", keys.KID())
	return nil
}

func (a *Application) initServices() {
	tokens := &service.TokenService{
		Store:            a.store,
		RefreshTTL:       a.cfg.RefreshTokenTTL,
		MaxActivePerUser: a.cfg.MaxActiveTokens,
	}

	social := &service.SocialService{
		GoogleClientID: a.cfg.GoogleClientID,
	}

	a.auth = &service.AuthService{
		Store:     a.store,
		Tokens:    tokens,
		Social:    social,
		Codec:     a.codec,
		Notifier:  &service.LogNotifier{Logger: a.logger},
		Events:    &service.LogEventSink{Logger: a.logger},
		AccessTTL: a.cfg.AccessTokenTTL,
	}

	a.housekeeping = service.NewHousekeepingService(a.store, a.logger, a.cfg.HousekeepingInterval)
}

func (a *Application) initHTTP() {
	router := identityhttp.NewRouter(a.auth, a.codec, a.store, Version, a.logger)
	router.ApplyRoutes()

	a.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Port),
		Handler:           router.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Run starts the HTTP server and housekeeping loop, then blocks until the
// process receives SIGINT or SIGTERM and the graceful shutdown completes.
func (a *Application) Run() error {
	a.housekeeping.Start()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http server listening", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		a.housekeeping.Stop()
		_ = a.store.Close()
		return err
	case sig := <-sigCh:
		a.logger.Info("shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.logger.Error("http shutdown incomplete", "error", err)
	}
	a.housekeeping.Stop()

	if err := a.store.Close(); err != nil {
		a.logger.Error("store close failed", "error", err)
	}

	a.logger.Info("shutdown complete")
	return nil
}
