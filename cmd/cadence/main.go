// Command cadence is the main entry point for the Cadence adaptive reading
// server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/veloread/cadence/internal/a2c"
	"github.com/veloread/cadence/internal/config"
	"github.com/veloread/cadence/internal/env"
	"github.com/veloread/cadence/internal/health"
	"github.com/veloread/cadence/internal/observe"
	"github.com/veloread/cadence/internal/reading"
	"github.com/veloread/cadence/internal/server"
	"github.com/veloread/cadence/internal/store"
	"github.com/veloread/cadence/internal/trainer"
)

const version = "0.3.0"

const (
	defaultListenAddr = ":8080"
	defaultStateSize  = 20
	defaultActionSize = 8
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	haveConfigFile := true
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = &config.Config{}
			haveConfigFile = false
		} else {
			fmt.Fprintf(os.Stderr, "cadence: %v\n", err)
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so the config watcher can adjust it at
	// runtime.
	level := new(slog.LevelVar)
	level.Set(cfg.Server.LogLevel.Slog())
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if !haveConfigFile {
		slog.Warn("config file not found, using built-in defaults", "path", *configPath)
	}

	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = defaultListenAddr
	}

	slog.Info("cadence starting",
		"version", version,
		"config", *configPath,
		"listen_addr", listenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "cadence",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Persistence ───────────────────────────────────────────────────────────
	var (
		st       *store.Store
		schedSt  trainer.Store
		checkers []health.Checker
	)
	if cfg.Storage.Path != "" {
		st, err = store.Open(cfg.Storage.Path)
		if err != nil {
			slog.Error("failed to open store", "path", cfg.Storage.Path, "err", err)
			return 1
		}
		defer st.Close()
		schedSt = st
		checkers = append(checkers, health.Checker{Name: "store", Check: st.Ping})
		slog.Info("store opened", "path", cfg.Storage.Path)
	}

	// ── Policy ────────────────────────────────────────────────────────────────
	stateSize := cfg.Agent.StateSize
	if stateSize <= 0 {
		stateSize = defaultStateSize
	}
	actionSize := cfg.Agent.ActionSize
	if actionSize <= 0 {
		actionSize = defaultActionSize
	}
	policy, err := a2c.New(a2c.Config{
		StateSize:  stateSize,
		ActionSize: actionSize,
		HiddenSize: cfg.Agent.HiddenSize,
		ActorLR:    cfg.Agent.ActorLR,
		CriticLR:   cfg.Agent.CriticLR,
		Gamma:      cfg.Agent.Gamma,
		NStep:      cfg.Agent.NStep,
		Seed:       uint64(cfg.Agent.Seed),
	})
	if err != nil {
		slog.Error("failed to create policy", "err", err)
		return 1
	}

	// ── Training scheduler ────────────────────────────────────────────────────
	sched, err := trainer.NewScheduler(ctx, trainer.Config{
		Agent:        policy,
		Store:        schedSt,
		Interval:     cfg.Trainer.Interval.Std(),
		MaxSteps:     cfg.Trainer.MaxSteps,
		MinEpisodes:  cfg.Trainer.MinEpisodes,
		MaxEpisodes:  cfg.Trainer.MaxEpisodes,
		RewardWindow: cfg.Trainer.RewardWindow,
		Metrics:      metrics,
	})
	if err != nil {
		slog.Error("failed to create training scheduler", "err", err)
		return 1
	}
	checkers = append(checkers, health.Checker{Name: "scheduler", Check: func(context.Context) error {
		if !sched.Status().Running {
			return errors.New("scheduler not running")
		}
		return nil
	}})

	// ── Reading agent ─────────────────────────────────────────────────────────
	agent, err := reading.NewAgent(reading.AgentConfig{
		Policy:      policy,
		Environment: env.New(env.Config{StateSize: stateSize, ActionSize: actionSize}),
		Builder:     reading.NewBuilder(stateSize),
		Sink:        sched,
		Metrics:     metrics,
	})
	if err != nil {
		slog.Error("failed to create reading agent", "err", err)
		return 1
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	srv, err := server.New(server.Config{
		Agent:     agent,
		Scheduler: sched,
		Health:    health.New(checkers...),
		Metrics:   metrics,
	})
	if err != nil {
		slog.Error("failed to create server", "err", err)
		return 1
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	if haveConfigFile {
		watcher, werr := config.NewWatcher(*configPath, func(old, new *config.Config) {
			d := config.Diff(old, new)
			if d.LogLevelChanged {
				level.Set(d.NewLogLevel.Slog())
				slog.Info("log level changed", "level", d.NewLogLevel)
			}
			if d.RestartRequired {
				slog.Warn("config change requires a restart to take effect")
			}
		})
		if werr != nil {
			slog.Warn("config watcher disabled", "err", werr)
		} else {
			defer watcher.Stop()
		}
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	sched.Start(ctx)
	defer sched.Stop()

	httpSrv := &http.Server{
		Addr:              listenAddr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server ready", "addr", listenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, stopping")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}
