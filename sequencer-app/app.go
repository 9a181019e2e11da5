package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/compose-network/sequencer/metrics"
	"github.com/compose-network/sequencer/sequencer-app/config"
	apisrv "github.com/compose-network/sequencer/server/api"
	"github.com/compose-network/sequencer/x/devnet"
	"github.com/compose-network/sequencer/x/sequencer"
	"github.com/compose-network/sequencer/x/slotclock"
)

// App wires the sequencer core, its collaborators, and the admin API. The
// shipped binary runs against the in-process devnet backend; a production
// node embeds the core with its own clients instead.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	seq     *sequencer.Sequencer
	backend *devnet.Backend

	apiServer *apisrv.Server
	cancel    context.CancelFunc
}

// NewApp creates a new application instance
func NewApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	app := &App{
		cfg: cfg,
		log: log.With().Str("component", "app").Logger(),
	}

	if err := app.initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}

	return app, nil
}

// initialize sets up the application components
func (a *App) initialize(ctx context.Context) error {
	core, err := a.cfg.Sequencer.Core()
	if err != nil {
		return err
	}

	clock := slotclock.New(core.GenesisTime, core.L2SlotDuration)
	a.backend = devnet.NewBackend(a.log, clock, core.Coinbase)

	opts := append(a.backend.Options(), sequencer.WithClock(clock))
	seq, err := sequencer.New(a.log, metrics.GetRegistry(), core, opts...)
	if err != nil {
		return fmt.Errorf("failed to create sequencer: %w", err)
	}
	a.seq = seq

	return a.initializeAPIServer()
}

// initializeAPIServer sets up the admin HTTP surface.
func (a *App) initializeAPIServer() error {
	s := apisrv.NewServer(a.cfg.API, a.log)

	s.Router.HandleFunc("/health", a.handleHealth).Methods(http.MethodGet)
	s.Router.HandleFunc("/ready", a.handleReady).Methods(http.MethodGet)
	s.Router.HandleFunc("/status", a.handleStatus).Methods(http.MethodGet)
	s.Router.HandleFunc("/flush", a.handleFlush).Methods(http.MethodPost)
	s.Router.HandleFunc("/start", a.handleStart).Methods(http.MethodPost)
	s.Router.HandleFunc("/stop", a.handleStop).Methods(http.MethodPost)
	s.Router.HandleFunc("/config", a.handleUpdateConfig).Methods(http.MethodPut)
	s.Router.HandleFunc("/txs", a.handleInjectTx).Methods(http.MethodPost)

	if a.cfg.Metrics.Enabled {
		s.Router.Handle(a.cfg.Metrics.Path,
			promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{})).
			Methods(http.MethodGet)
	}

	a.apiServer = s
	return nil
}

// Run starts the application and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.seq.Start(runCtx); err != nil {
		return fmt.Errorf("failed to start sequencer: %w", err)
	}

	go func() {
		if err := a.apiServer.Start(runCtx); err != nil {
			a.log.Error().Err(err).Msg("Admin API server error")
		}
	}()

	return a.runWithGracefulShutdown(runCtx)
}

// runWithGracefulShutdown handles shutdown signals.
func (a *App) runWithGracefulShutdown(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	a.log.Info().Msg("Sequencer node started successfully")

	select {
	case <-ctx.Done():
		a.log.Info().Msg("Context canceled, initiating shutdown")
	case sig := <-sigCh:
		a.log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	}

	if a.cancel != nil {
		a.cancel()
	}

	return a.shutdown()
}

// shutdown gracefully stops the sequencer and drains its cleanup work.
func (a *App) shutdown() error {
	a.log.Info().Msg("Initiating graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := a.seq.Stop(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("Sequencer shutdown error")
		return err
	}

	a.log.Info().Msg("Graceful shutdown complete")
	return nil
}
