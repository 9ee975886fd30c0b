package app

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"streamretry/internal/config"
	"streamretry/internal/declare"
	"streamretry/internal/demo"
	"streamretry/internal/metrics"
	"streamretry/internal/platform/sqlite"
	"streamretry/internal/shared"
	"streamretry/pkg/retry"
)

// Engine is the assembled retry engine with its declarations applied.
type Engine struct {
	Taxonomy  *retry.Taxonomy
	Registry  *retry.Registry
	Executors *retry.Executors
	Resolver  *retry.Resolver
	Advisor   *retry.Advisor
	Metrics   *metrics.Metrics
	// Catalog is nil unless a catalog database is configured
	Catalog *sqlite.Catalog
	// Table holds the declarations that were applied
	Table declare.Table
}

// BuildEngine collects declarations from the policy file, the catalog and the demo
// and applies them to a fresh registry. Metrics are registered on reg.
func BuildEngine(ctx context.Context, cfg config.Config, log *slog.Logger, reg prometheus.Registerer) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}
	table, err := collect(cfg)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		Taxonomy:  retry.DefaultTaxonomy(),
		Registry:  retry.NewRegistry(),
		Executors: retry.NewExecutors(),
		Metrics:   metrics.New(reg),
	}

	if cfg.Retry.CatalogDB != "" {
		cat, info, err := sqlite.OpenCatalog(ctx, cfg.Retry.CatalogDB)
		if err != nil {
			return nil, err
		}
		log.Info("catalog opened",
			slog.String("path", cfg.Retry.CatalogDB),
			slog.Uint64("version", uint64(info.CurrentVersion)),
			slog.Bool("migrated", info.Applied),
		)
		e.Catalog = cat
		if err := cat.Save(ctx, table); err != nil {
			_ = cat.Close()
			return nil, err
		}
		if table, err = cat.Load(ctx); err != nil {
			_ = cat.Close()
			return nil, err
		}
	}

	observer := retry.Observers(retry.NewLogObserver(log), e.Metrics)
	execOpts := []retry.Option{retry.WithObserver(observer)}
	if err := declare.Apply(table, declare.Target{
		Registry:        e.Registry,
		Executors:       e.Executors,
		Taxonomy:        e.Taxonomy,
		ExecutorOptions: execOpts,
	}); err != nil {
		_ = e.Close()
		return nil, err
	}
	e.Table = table

	e.Resolver = retry.NewResolver(e.Registry, e.Executors,
		retry.WithTaxonomy(e.Taxonomy),
		retry.WithCache(retry.NewCache()),
		retry.WithExecutorOptions(execOpts...),
	)
	metrics.RegisterCache(reg, e.Resolver.Cache())

	e.Advisor = retry.NewAdvisor(e.Resolver,
		retry.WithOrder(cfg.Retry.Order),
		retry.WithProxyTargetClass(cfg.Retry.ProxyTargetClass),
		retry.WithResolveErrorHandler(func(ctx context.Context, inv retry.Invocation, err error) {
			log.ErrorContext(ctx, "retry resolution failed",
				slog.String("method", inv.Method().String()),
				slog.Any("err", err),
			)
		}),
	)

	log.Info("retry engine ready",
		slog.Int("declarations", table.Len()),
		slog.Any("executors", e.Executors.Names()),
	)
	return e, nil
}

func collect(cfg config.Config) (declare.Table, error) {
	var table declare.Table
	if cfg.Retry.PolicyFile != "" {
		t, err := declare.Load(cfg.Retry.PolicyFile)
		if err != nil {
			return declare.Table{}, err
		}
		table = t
	}
	if cfg.Demo.Enabled {
		table = table.Merge(demo.Table())
	}
	return table, nil
}

// Close releases the catalog.
func (e *Engine) Close() error {
	if e.Catalog == nil {
		return nil
	}
	err := e.Catalog.Close()
	e.Catalog = nil
	return shared.Wrap(err, "app: close catalog")
}
