// Package orchestrator runs the per-source pipeline: fetch, normalize, reconcile.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"eventsCatalog/internal/config"
	"eventsCatalog/internal/connectors"
	"eventsCatalog/internal/metrics"
	"eventsCatalog/internal/models/domain"
	"eventsCatalog/internal/runlock"
	"eventsCatalog/internal/telemetry"
	"eventsCatalog/internal/utils/logger/sl"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var (
	ErrSourceBusy    = errors.New("source run already in progress")
	ErrUnknownSource = errors.New("unknown source")
)

// Connectors resolves source names to connectors.
type Connectors interface {
	Get(name string) (connectors.Connector, bool)
	Names() []string
}

type Normalizer interface {
	NormalizeAll(raws []domain.RawEvent) []domain.NormalizedEvent
}

// Reconciler merges one source's batch into the catalog.
type Reconciler interface {
	Reconcile(ctx context.Context, incoming []domain.NormalizedEvent, sourceName string) (domain.ReconcileReport, error)
	Merge(ctx context.Context, incoming []domain.NormalizedEvent, sourceName string) (domain.ReconcileReport, error)
}

// Categorizer enriches newly created events in the background.
type Categorizer interface {
	AddJob(requestID uuid.UUID, key string) (chan struct{}, error)
}

// Notifier receives every finished run.
type Notifier interface {
	NotifyRun(summary domain.RunSummary)
}

// Orchestrator runs sources on demand and on a schedule.
type Orchestrator struct {
	logger      *slog.Logger
	cfg         config.SchedulerConfig
	connectors  Connectors
	normalizer  Normalizer
	reconciler  Reconciler
	locker      runlock.Locker
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	now         func() time.Time
	categorizer Categorizer

	mu       sync.RWMutex
	notifier Notifier
	last     *domain.RunSummary

	cancel       context.CancelFunc
	shutdownChan chan struct{}
	wg           sync.WaitGroup
}

type Option func(*Orchestrator)

// WithLocker replaces the default in-process lock, e.g. with a runlock.Chain including Redis.
func WithLocker(l runlock.Locker) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.locker = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

func WithCategorizer(c Categorizer) Option {
	return func(o *Orchestrator) {
		o.categorizer = c
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func New(
	logger *slog.Logger,
	cfg config.SchedulerConfig,
	conns Connectors,
	norm Normalizer,
	rec Reconciler,
	opts ...Option,
) *Orchestrator {
	op := "Orchestrator.New()"
	log := logger.With(slog.String("op", op))

	if cfg.Parallelism < 1 {
		cfg.Parallelism = 1
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = 5 * time.Minute
	}

	o := &Orchestrator{
		logger:       logger,
		cfg:          cfg,
		connectors:   conns,
		normalizer:   norm,
		reconciler:   rec,
		locker:       runlock.NewLocal(),
		tracer:       telemetry.Tracer(),
		now:          time.Now,
		shutdownChan: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}

	log.Info("orchestrator created",
		slog.Int("sources", len(conns.Names())),
		slog.Int("parallelism", cfg.Parallelism),
	)
	return o
}

// SetNotifier installs the run notifier. The bot is built after the orchestrator.
func (o *Orchestrator) SetNotifier(n Notifier) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.notifier = n
}

// Sources lists the configured source names.
func (o *Orchestrator) Sources() []string {
	return o.connectors.Names()
}

// LastSummary returns the most recent finished run, if any.
func (o *Orchestrator) LastSummary() (domain.RunSummary, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return domain.RunSummary{}, false
	}
	return *o.last, true
}

// RunAll runs every source, up to Parallelism at a time. A failing source never stops the others.
func (o *Orchestrator) RunAll(ctx context.Context) (domain.RunSummary, error) {
	op := "Orchestrator.RunAll()"

	names := o.connectors.Names()
	if len(names) == 0 {
		return domain.RunSummary{}, fmt.Errorf("%s: %w", op, config.ErrNoSources)
	}
	return o.execute(ctx, op, names, false), nil
}

// RunSource runs one source. It fails with ErrSourceBusy when that source is already running.
func (o *Orchestrator) RunSource(ctx context.Context, name string) (domain.RunSummary, error) {
	op := "Orchestrator.RunSource()"

	if _, ok := o.connectors.Get(name); !ok {
		return domain.RunSummary{}, fmt.Errorf("%s: %s: %w", op, name, ErrUnknownSource)
	}

	// Take the lock up front so a busy source is an error for the caller, not a summary line.
	release, err := o.acquire(ctx, name)
	if err != nil {
		return domain.RunSummary{}, fmt.Errorf("%s: %w", op, err)
	}
	defer release()

	return o.execute(ctx, op, []string{name}, true), nil
}

// execute runs names and records the summary. held means the caller already owns the source lock.
func (o *Orchestrator) execute(ctx context.Context, op string, names []string, held bool) domain.RunSummary {
	summary := domain.RunSummary{
		RunID:     uuid.New(),
		StartedAt: o.now().UTC(),
		PerSource: make([]domain.SourceResult, len(names)),
	}
	log := o.logger.With(
		slog.String("op", op),
		slog.String("runID", summary.RunID.String()),
	)

	ctx, span := o.tracer.Start(ctx, "orchestrator.run", trace.WithAttributes(
		attribute.String("run.id", summary.RunID.String()),
		attribute.Int("run.sources", len(names)),
	))
	defer span.End()

	log.Info("run started", slog.Any("sources", names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Parallelism)
	for i, name := range names {
		g.Go(func() error {
			summary.PerSource[i] = o.runSource(gctx, log, name, held)
			return nil
		})
	}
	_ = g.Wait()

	summary.FinishedAt = o.now().UTC()
	totals := summary.Totals()
	failed := summary.Failed()
	if len(failed) > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d sources failed", len(failed)))
	}

	log.Info("run finished",
		slog.Int("succeeded", len(summary.Succeeded())),
		slog.Int("failed", len(failed)),
		slog.Int("created", totals.Created),
		slog.Int("updated", totals.Updated),
		slog.Int("retired", totals.Retired),
		slog.Duration("duration", totals.Duration),
	)

	o.mu.Lock()
	o.last = &summary
	notifier := o.notifier
	o.mu.Unlock()

	if notifier != nil {
		notifier.NotifyRun(summary)
	}
	return summary
}

func (o *Orchestrator) acquire(ctx context.Context, name string) (func(), error) {
	release, err := o.locker.Acquire(ctx, name)
	if err != nil {
		if errors.Is(err, runlock.ErrBusy) {
			o.metrics.SourceBusy(name)
			return nil, fmt.Errorf("%s: %w", name, ErrSourceBusy)
		}
		return nil, fmt.Errorf("%s: lock: %w", name, err)
	}
	return func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			o.logger.Error("failed to release source lock", slog.String("source", name), sl.Err(err))
		}
	}, nil
}

// runSource is one fetch-normalize-reconcile pass. Any fetch error suppresses retirement;
// events that did arrive are still merged.
func (o *Orchestrator) runSource(ctx context.Context, logger *slog.Logger, name string, held bool) domain.SourceResult {
	started := o.now()
	res := domain.SourceResult{Name: name}
	log := logger.With(slog.String("source", name))

	defer func() {
		res.Duration = o.now().Sub(started)
		o.metrics.ObserveSource(res, o.now())
	}()

	conn, ok := o.connectors.Get(name)
	if !ok {
		res.Error = ErrUnknownSource.Error()
		res.RetirementSkipped = true
		return res
	}

	if !held {
		release, err := o.acquire(ctx, name)
		if err != nil {
			log.Warn("source skipped", sl.Err(err))
			res.Error = err.Error()
			res.RetirementSkipped = true
			return res
		}
		defer release()
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.source", trace.WithAttributes(attribute.String("source", name)))
	defer span.End()

	fctx, cancel := context.WithTimeout(ctx, o.cfg.SourceTimeout)
	raws, fetchErr := conn.Fetch(fctx)
	cancel()

	res.Fetched = len(raws)
	events := o.normalizer.NormalizeAll(raws)
	span.SetAttributes(attribute.Int("source.fetched", len(raws)))

	var report domain.ReconcileReport
	var err error
	if fetchErr != nil {
		res.RetirementSkipped = true
		res.Error = fetchErr.Error()
		span.RecordError(fetchErr)
		span.SetStatus(codes.Error, "fetch failed")
		log.Error("fetch failed, retirement skipped", slog.Int("partial", len(events)), sl.Err(fetchErr))

		if len(events) == 0 {
			return res
		}
		report, err = o.reconciler.Merge(ctx, events, name)
	} else {
		report, err = o.reconciler.Reconcile(ctx, events, name)
	}

	res.ApplyReport(report)
	if err != nil {
		// A pass-level error means retirement did not happen.
		res.RetirementSkipped = true
		res.Error = joinErr(res.Error, err.Error())
		span.RecordError(err)
		span.SetStatus(codes.Error, "reconcile failed")
		log.Error("reconcile failed", sl.Err(err))
	}

	o.enqueueCategories(log, report.CreatedKeys)
	return res
}

func (o *Orchestrator) enqueueCategories(log *slog.Logger, keys []string) {
	if o.categorizer == nil {
		return
	}
	for _, key := range keys {
		if _, err := o.categorizer.AddJob(uuid.New(), key); err != nil {
			o.metrics.CategorizerJob("dropped")
			log.Warn("category job not queued", slog.String("key", key), sl.Err(err))
		}
	}
}

func joinErr(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}

// Start runs every source on the configured interval until Shutdown.
func (o *Orchestrator) Start() {
	op := "Orchestrator.Start()"
	log := o.logger.With(slog.String("op", op))

	ctx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.loop(ctx, log)
	}()

	log.Info("scheduler started",
		slog.Duration("interval", o.cfg.Interval),
		slog.Bool("runOnStart", o.cfg.RunOnStart),
	)
}

func (o *Orchestrator) loop(ctx context.Context, log *slog.Logger) {
	runOnce := func() {
		if _, err := o.RunAll(ctx); err != nil {
			log.Error("scheduled run failed", sl.Err(err))
		}
	}

	if o.cfg.RunOnStart {
		runOnce()
	}
	if o.cfg.Interval <= 0 {
		log.Info("no interval configured, scheduler idle")
		<-o.shutdownChan
		return
	}

	ticker := time.NewTicker(o.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-o.shutdownChan:
			log.Info("scheduler shutting down")
			return
		case <-ticker.C:
			runOnce()
		}
	}
}

// Shutdown stops the scheduler and waits for a run in flight to return.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	select {
	case <-o.shutdownChan:
		return nil
	default:
		close(o.shutdownChan)
	}
	if o.cancel != nil {
		o.cancel()
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("force exit orchestrator: %w", ctx.Err())
	}
}
