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

	"github.com/benbjohnson/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Relay/internal/adapters/http"
	"github.com/dkeye/Relay/internal/adapters/rtc"
	"github.com/dkeye/Relay/internal/app"
	"github.com/dkeye/Relay/internal/app/bus"
	"github.com/dkeye/Relay/internal/app/calls"
	"github.com/dkeye/Relay/internal/app/orch"
	"github.com/dkeye/Relay/internal/auth"
	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/metrics"
	"github.com/dkeye/Relay/internal/storage/memory"
	"github.com/dkeye/Relay/internal/storage/sqlite"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
	log.Info().Msg("Server exited gracefully")
}

func run(ctx context.Context, cfg *config.Config) error {
	clk := clock.New()

	store, closeStore, err := openStore(cfg, clk)
	if err != nil {
		return err
	}
	defer closeStore()

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promReg)

	reg := app.NewRegistry(app.SimplePolicy{}, m)
	eventBus, err := bus.Open(ctx, bus.Options{
		RedisURL:    cfg.RedisURL,
		Channel:     cfg.RedisChannel,
		DialTimeout: cfg.RedisDialTimeout,
	}, reg, m)
	if err != nil {
		return fmt.Errorf("open event bus: %w", err)
	}
	defer func() {
		if err := eventBus.Close(); err != nil {
			log.Warn().Err(err).Msg("close event bus")
		}
	}()
	reg.SetPresence(app.NewPresenceNotifier(eventBus))

	gate, err := auth.NewHMACGate(cfg.Secret)
	if err != nil {
		return fmt.Errorf("auth gate: %w", err)
	}
	webrtcCfg, err := rtc.ConfigFromJSON(cfg.ICEServersJSON)
	if err != nil {
		return err
	}

	o := &orch.Orchestrator{
		Registry:     reg,
		Bus:          eventBus,
		Store:        store,
		Calls:        calls.NewService(store, clk, m),
		Clock:        clk,
		InviteLimit:  cfg.InviteLimit,
		InviteWindow: cfg.InviteWindow,
	}

	g, gctx := errgroup.WithContext(ctx)

	r := router.SetupRouter(gctx, cfg, router.Deps{
		Orch:     o,
		Gate:     gate,
		Backing:  eventBus.Backing(),
		Gatherer: promReg,
		WebRTC:   webrtcCfg,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		return eventBus.Run(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", addr).Str("bus", eventBus.Backing()).Msg("Relay server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})
	return g.Wait()
}

func openStore(cfg *config.Config, clk clock.Clock) (core.Store, func(), error) {
	if cfg.DatabasePath == "" {
		log.Warn().Msg("no database_path, messages and calls are kept in memory")
		return memory.New(clk), func() {}, nil
	}
	s, err := sqlite.Open(cfg.DatabasePath, clk)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	log.Info().Str("path", cfg.DatabasePath).Msg("sqlite store opened")
	return s, func() {
		if err := s.Close(); err != nil {
			log.Warn().Err(err).Msg("close store")
		}
	}, nil
}
