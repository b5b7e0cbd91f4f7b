package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"RegionMetrics/internal/aggregate"
	"RegionMetrics/internal/api"
	"RegionMetrics/internal/canon"
	"RegionMetrics/internal/config"
	"RegionMetrics/internal/domain"
	"RegionMetrics/internal/forecast"
	"RegionMetrics/internal/infrastructure/ml"
	"RegionMetrics/internal/infrastructure/scheduler"
	"RegionMetrics/internal/infrastructure/storage"
	"RegionMetrics/internal/infrastructure/telegram"
	"RegionMetrics/internal/logging"
	"RegionMetrics/internal/metrics"
	"RegionMetrics/internal/ports"
	"RegionMetrics/internal/query"
	"RegionMetrics/internal/snapshot"
	"RegionMetrics/internal/source"
	"RegionMetrics/internal/usecase"
	"RegionMetrics/pkg/logger"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg      config.Config
	logger   *slog.Logger
	metrics  *metrics.Metrics
	pipeline *usecase.Pipeline
	closers  []func() error
}

// New validates the configuration and builds every component a command needs.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &Application{cfg: cfg, logger: baseLogger, metrics: metrics.New()}

	pipeline, err := a.buildPipeline(ctx)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.pipeline = pipeline
	return a, nil
}

func (a *Application) buildPipeline(ctx context.Context) (*usecase.Pipeline, error) {
	dirs, err := categoryMap(a.cfg.Input.Dirs)
	if err != nil {
		return nil, fmt.Errorf("input.dirs: %w", err)
	}
	schemas := aggregate.DefaultSchemas()
	overrides, err := categoryMap(a.cfg.Input.Schemas)
	if err != nil {
		return nil, fmt.Errorf("input.schemas: %w", err)
	}
	for category, schema := range overrides {
		schemas[category] = schema
	}

	loader := source.NewLoader(source.Options{
		BaseDir: a.cfg.Input.BaseDir,
		Dirs:    dirs,
		Pattern: a.cfg.Input.Pattern,
		Columns: source.Columns{
			Region:   a.cfg.Input.Columns.Region,
			District: a.cfg.Input.Columns.District,
			Date:     a.cfg.Input.Columns.Date,
		},
	}, a.logger.With("component", "source"))

	universe := canon.NewUniverse(a.cfg.Canonical.Entities)
	canonicalizer, err := canon.NewCanonicalizer(universe, a.cfg.Canonical.Aliases)
	if err != nil {
		return nil, fmt.Errorf("canonical aliases: %w", err)
	}
	reassigner, err := canon.NewReassigner(universe, a.cfg.Canonical.Reassignments)
	if err != nil {
		return nil, fmt.Errorf("canonical reassignments: %w", err)
	}
	aggregator, err := aggregate.New(a.cfg.Aggregation)
	if err != nil {
		return nil, fmt.Errorf("aggregation: %w", err)
	}

	deps := usecase.PipelineDeps{
		Source:        loader,
		Canonicalizer: canonicalizer,
		Reassigner:    reassigner,
		Aggregator:    aggregator,
		Schemas:       schemas,
		Writer:        snapshot.NewWriter(a.cfg.Snapshot.Path, !a.cfg.Snapshot.DisableManifest, a.logger.With("component", "snapshot")),
		Metrics:       a.metrics,
		Logger:        a.logger.With("component", "pipeline"),
	}

	if a.cfg.Database.DSN != "" {
		db, err := storage.OpenPostgres(ctx, a.cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		mirror := storage.NewPostgresMirror(db, a.cfg.Database.Table, a.cfg.Database.BatchSize, a.logger.With("component", "storage"))
		if err := mirror.EnsureSchema(ctx); err != nil {
			return nil, err
		}
		deps.Mirror = mirror
	}

	if tg := a.cfg.Notifications.Telegram; tg.BotToken != "" && tg.ChatID != "" {
		deps.Notifier = telegram.NewNotifier(tg.BotToken, tg.ChatID)
	}

	return usecase.NewPipeline(deps), nil
}

// Ingest runs the pipeline once.
func (a *Application) Ingest(ctx context.Context) (usecase.Report, error) {
	return a.pipeline.Run(ctx)
}

// Serve exposes the query API until ctx is cancelled. With refresh set the
// pipeline also runs on the configured cron schedule.
func (a *Application) Serve(ctx context.Context, refresh bool) error {
	service, stopWatch, err := a.queryService(ctx)
	if err != nil {
		return err
	}
	defer stopWatch()

	if refresh {
		driver := scheduler.NewCronScheduler(a.cfg.Scheduler.CronExpression, a.cfg.Scheduler.Location())
		refresher := usecase.NewScheduler(driver, a.pipeline, a.logger.With("component", "scheduler"))
		if err := refresher.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer func() {
			if err := refresher.Stop(context.Background()); err != nil {
				a.logger.Warn("scheduler stop failed", "error", err)
			}
		}()
		a.logger.Info("scheduled refresh enabled",
			"cron", a.cfg.Scheduler.CronExpression,
			"timezone", a.cfg.Scheduler.Location().String())
	}

	router := api.NewRouter(api.NewHandler(service, a.logger.With("component", "api")), api.RouterOptions{
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
		Metrics:        a.metrics,
		Logger:         a.logger.With("component", "http"),
	})
	srv := &http.Server{
		Addr:         a.cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		ErrorLog:     logger.New(a.logger, "http"),
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("query api listening", "addr", a.cfg.Server.Addr, "snapshot", a.cfg.Snapshot.Path)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.logger.Info("query api stopped")
	return nil
}

// Forecast projects every region of the published snapshot. When out is set
// the projections are also stored as a model file.
func (a *Application) Forecast(ctx context.Context, out string) (map[string]domain.Projection, error) {
	reader := snapshot.NewReader(a.cfg.Snapshot.Path, 0)
	service := query.NewService(reader, a.forecaster(), a.metrics, a.logger.With("component", "query"))

	projections, err := service.Projections(ctx)
	if err != nil {
		return nil, err
	}
	if out != "" {
		entries := make(map[string]forecast.ModelEntry, len(projections))
		for region, p := range projections {
			entries[region] = forecast.ModelEntry{Values: p.Values, Accuracy: p.Accuracy, Trend: p.Trend}
		}
		if err := forecast.WriteModel(out, entries); err != nil {
			return nil, err
		}
		a.logger.Info("model file written", "path", out, "regions", len(entries))
	}
	return projections, nil
}

// Close releases database handles.
func (a *Application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *Application) queryService(ctx context.Context) (*query.Service, func(), error) {
	reader := snapshot.NewReader(a.cfg.Snapshot.Path, a.cfg.Server.CacheTTL)

	if err := os.MkdirAll(filepath.Dir(a.cfg.Snapshot.Path), 0o755); err != nil {
		return nil, nil, fmt.Errorf("snapshot dir: %w", err)
	}
	watcher, err := snapshot.NewWatcher(reader, a.logger.With("component", "snapshot.watcher"))
	if err != nil {
		return nil, nil, err
	}
	if err := watcher.Start(ctx); err != nil {
		_ = watcher.Stop()
		return nil, nil, err
	}
	stop := func() {
		if err := watcher.Stop(); err != nil {
			a.logger.Warn("snapshot watcher stop failed", "error", err)
		}
	}

	service := query.NewService(reader, a.forecaster(), a.metrics, a.logger.With("component", "query"))
	return service, stop, nil
}

func (a *Application) forecaster() ports.Forecaster {
	var chain []ports.Forecaster
	if a.cfg.Forecast.URL != "" {
		chain = append(chain, ml.NewClient(a.cfg.Forecast.URL, a.cfg.Forecast.APIKey, a.cfg.Forecast.Horizon, a.cfg.Forecast.Timeout))
	}
	if a.cfg.Forecast.ModelFile != "" {
		chain = append(chain, forecast.NewModelFile(a.cfg.Forecast.ModelFile))
	}
	return forecast.NewChain(forecast.NewFallback(a.cfg.Forecast.Steps), a.logger.With("component", "forecast"), chain...)
}

func categoryMap[V any](in map[string]V) (map[domain.Category]V, error) {
	known := make(map[domain.Category]bool)
	for _, c := range domain.Categories() {
		known[c] = true
	}
	out := make(map[domain.Category]V, len(in))
	for name, v := range in {
		category := domain.Category(name)
		if !known[category] {
			return nil, fmt.Errorf("unknown category %q", name)
		}
		out[category] = v
	}
	return out, nil
}

