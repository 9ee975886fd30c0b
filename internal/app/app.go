package app

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"streamretry/internal/adapter/httpapi"
	"streamretry/internal/adapter/scheduler"
	"streamretry/internal/config"
	"streamretry/internal/demo"
	"streamretry/internal/platform/logger"
)

// App wires application components.
type App struct {
	cfg config.Config
	log *slog.Logger
}

// New creates a new App instance and loads configuration.
func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{
		Env:          cfg.Env,
		ConsoleLevel: cfg.Log.ConsoleLevel,
		FileLevel:    cfg.Log.FileLevel,
		File:         cfg.Log.File,
		App:          "retryd",
	})
	return &App{cfg: cfg, log: log}, nil
}

// Run starts the application and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	defer func() { _ = logger.Close(a.log) }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return a.serve(ctx)
}

func (a *App) serve(ctx context.Context) error {
	a.log.Info("starting", slog.String("env", a.cfg.Env))

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	engine, err := BuildEngine(ctx, a.cfg, a.log, reg)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			a.log.Error("shutdown", slog.Any("err", err))
		}
	}()

	sched := scheduler.New(ctx, scheduler.Config{
		Logger: a.log,
		Hooks: scheduler.JobHooks{
			OnJobStart:  engine.Metrics.JobStarted,
			OnJobFinish: engine.Metrics.JobFinished,
		},
	})
	if _, err := scheduler.ScheduleSweep(sched, a.cfg.Retry.SweepSchedule, engine.Resolver.Cache(), a.cfg.Retry.CacheIdleTTL); err != nil {
		return err
	}
	if a.cfg.Demo.Enabled {
		inv := demo.NewInventory(0.3, map[string]int{"apple": 12, "pear": 4, "plum": 0})
		w := demo.NewWorkload(inv, a.log,
			demo.CallLogger{Log: a.log, Position: a.cfg.Retry.Order - 1},
			engine.Advisor,
		)
		sched.AddTickerJob(a.cfg.Demo.Interval, w.Run, scheduler.JobOptions{
			Name:    "demo-workload",
			Timeout: 30 * time.Second,
			Overlap: scheduler.SkipIfRunning,
		})
	}

	srv := httpapi.New(httpapi.Config{
		Addr:         a.cfg.HTTP.Addr,
		Cache:        engine.Resolver.Cache(),
		Declarations: engine.Resolver,
		Executors:    engine.Executors,
		Gatherer:     reg,
		Logger:       a.log,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Run(gctx) })
	g.Go(func() error { return sched.Run(gctx) })
	err = g.Wait()
	a.log.Info("stopped")
	return err
}
