package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/sugarchat/internal/auth"
	"github.com/vovakirdan/sugarchat/internal/config"
	"github.com/vovakirdan/sugarchat/internal/core"
	"github.com/vovakirdan/sugarchat/internal/metrics"
	"github.com/vovakirdan/sugarchat/internal/store"
	"github.com/vovakirdan/sugarchat/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/sugarchat/internal/transport/http"
)

// App wires the relay: store, auth, hub and HTTP transport.
type App struct {
	server *stdhttp.Server
	hub    *core.Hub
	store  store.Store
	cfg    *config.Config
	log    *zerolog.Logger
}

// New constructs the relay with the provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	return NewWithStore(cfg, st, logger), nil
}

// NewWithStore builds the relay on an already opened store, which App then
// owns and closes.
func NewWithStore(cfg *config.Config, st store.Store, logger *zerolog.Logger) *App {
	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})

	m := metrics.New()
	hub := core.NewHub(st,
		core.WithLogger(logger),
		core.WithMetrics(m),
		core.WithPendingLimit(cfg.PendingLimit),
	)
	server := transporthttp.NewServer(hub, authService, st, m, cfg, logger)

	return &App{
		server: server,
		hub:    hub,
		store:  st,
		cfg:    cfg,
		log:    logger,
	}
}

// Handler exposes the HTTP handler, mostly for tests.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go a.hub.Run(hubCtx)

	go func() {
		a.log.Info().Str("addr", a.cfg.Addr).Msg("relay listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
