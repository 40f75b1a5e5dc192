// Package reconciler merges one source's normalized listings into the catalog.
//
// For every incoming key the engine inserts a new record, overwrites a changed one or just
// stamps lastSeenAt. Once every key was attempted, records of the same source that were not
// seen are retired to inactive. Operator-curated records (imported, or archived by hand) are
// never rewritten: only their lastSeenAt advances.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"eventsCatalog/internal/models/domain"
	"eventsCatalog/internal/normalizer"
	"eventsCatalog/internal/utils/logger/sl"

	"github.com/google/uuid"
)

// Catalog is the store contract the engine works against.
type Catalog interface {
	FindByKey(ctx context.Context, url string) (domain.CatalogEvent, error)
	Insert(ctx context.Context, event domain.CatalogEvent) error
	UpdateFields(ctx context.Context, url string, patch domain.EventPatch) error
	BulkUpdateWhere(ctx context.Context, filter domain.RetireFilter, patch domain.EventPatch) (int64, error)
}

// ImagePolicy decides whether an image-only difference counts as a change.
type ImagePolicy string

const (
	// ImageCarried ignores the image in change detection but copies it along with any tracked change.
	ImageCarried ImagePolicy = "carried"
	// ImageTracked treats the image like any other tracked field.
	ImageTracked ImagePolicy = "tracked"
)

var ErrEmptySource = errors.New("source name is empty")

var retiredStatuses = []domain.EventStatus{domain.EventStatusInactive, domain.EventStatusImported}

// outcome of one write. Lower values win when a key appears more than once in a pass.
type outcome int

const (
	outcomeCreated outcome = iota
	outcomeUpdated
	outcomeReactivated
	outcomeUnchanged
)

type Engine struct {
	logger      *slog.Logger
	catalog     Catalog
	now         func() time.Time
	imagePolicy ImagePolicy
}

type Option func(*Engine)

// WithClock replaces time.Now. Tests use it to pin timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

func WithImagePolicy(p ImagePolicy) Option {
	return func(e *Engine) {
		if p != "" {
			e.imagePolicy = p
		}
	}
}

func New(logger *slog.Logger, catalog Catalog, opts ...Option) *Engine {
	e := &Engine{
		logger:      logger,
		catalog:     catalog,
		now:         time.Now,
		imagePolicy: ImageCarried,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reconcile merges incoming into the catalog and retires the source's records that were not seen.
// Per-record failures land in the report. The returned error is reserved for pass-level problems;
// when it is set no retirement happened.
func (e *Engine) Reconcile(ctx context.Context, incoming []domain.NormalizedEvent, sourceName string) (domain.ReconcileReport, error) {
	return e.run(ctx, incoming, sourceName, true)
}

// Merge is Reconcile without the retirement pass. It is used for partial batches from a failed fetch.
func (e *Engine) Merge(ctx context.Context, incoming []domain.NormalizedEvent, sourceName string) (domain.ReconcileReport, error) {
	return e.run(ctx, incoming, sourceName, false)
}

func (e *Engine) run(ctx context.Context, incoming []domain.NormalizedEvent, sourceName string, retire bool) (domain.ReconcileReport, error) {
	op := "Reconciler.Reconcile()"
	log := e.logger.With(
		slog.String("op", op),
		slog.String("source", sourceName),
	)

	now := e.timestamp()
	report := domain.ReconcileReport{
		SourceName: sourceName,
		At:         now,
	}

	if sourceName == "" {
		return report, fmt.Errorf("%s: %w", op, ErrEmptySource)
	}

	seen := make(map[string]struct{}, len(incoming))
	seenKeys := make([]string, 0, len(incoming))
	outcomes := make(map[string]outcome, len(incoming))
	written := make([]string, 0, len(incoming))

	for _, ev := range incoming {
		if err := ctx.Err(); err != nil {
			tally(&report, written, outcomes)
			return report, fmt.Errorf("%s: pass aborted before retirement: %w", op, err)
		}

		key := ev.SourceEventURL
		if _, ok := seen[key]; key != "" && !ok {
			seen[key] = struct{}{}
			seenKeys = append(seenKeys, key)
		}

		if ev.SourceName != sourceName {
			if ev.SourceName != "" {
				log.Warn("event source differs from pass source, using pass source",
					slog.String("key", key),
					slog.String("eventSource", ev.SourceName),
				)
			}
			ev.SourceName = sourceName
		}

		if err := normalizer.Validate(ev); err != nil {
			log.Warn("skipping malformed event", slog.String("key", key), sl.Err(err))
			report.Skipped++
			continue
		}

		prev, repeat := outcomes[key]
		res, err := e.reconcileOne(ctx, log, ev, now, repeat && prev == outcomeCreated)
		if err != nil {
			log.Error("event write failed", slog.String("key", key), sl.Err(err))
			report.Failures = append(report.Failures, domain.RecordFailure{Key: key, Err: err})
			continue
		}

		if !repeat {
			outcomes[key] = res
			written = append(written, key)
			continue
		}
		report.Duplicates++
		if res < prev {
			outcomes[key] = res
		}
	}
	tally(&report, written, outcomes)

	if !retire {
		log.Info("merge finished without retirement",
			slog.Int("created", report.Created),
			slog.Int("updated", report.Updated),
			slog.Int("unchanged", report.Unchanged),
			slog.Int("failed", len(report.Failures)),
		)
		return report, nil
	}

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("%s: pass aborted before retirement: %w", op, err)
	}

	retired, err := e.catalog.BulkUpdateWhere(ctx,
		domain.RetireFilter{
			SourceName:       sourceName,
			ExcludedKeys:     seenKeys,
			ExcludedStatuses: retiredStatuses,
		},
		domain.EventPatch{
			Status:     domain.StatusPtr(domain.EventStatusInactive),
			LastSeenAt: domain.TimePtr(now),
		},
	)
	if err != nil {
		return report, fmt.Errorf("%s: retirement: %w", op, err)
	}
	report.Retired = int(retired)

	log.Info("source reconciled",
		slog.Int("incoming", len(incoming)),
		slog.Int("created", report.Created),
		slog.Int("updated", report.Updated),
		slog.Int("reactivated", report.Reactivated),
		slog.Int("unchanged", report.Unchanged),
		slog.Int("retired", report.Retired),
		slog.Int("skipped", report.Skipped),
		slog.Int("duplicates", report.Duplicates),
		slog.Int("failed", len(report.Failures)),
	)

	return report, nil
}

// tally counts each written key once, by the strongest outcome it reached in the pass.
func tally(report *domain.ReconcileReport, keys []string, outcomes map[string]outcome) {
	for _, key := range keys {
		switch outcomes[key] {
		case outcomeCreated:
			report.Created++
			report.CreatedKeys = append(report.CreatedKeys, key)
		case outcomeUpdated:
			report.Updated++
		case outcomeReactivated:
			report.Reactivated++
		case outcomeUnchanged:
			report.Unchanged++
		}
	}
}

func (e *Engine) reconcileOne(ctx context.Context, log *slog.Logger, ev domain.NormalizedEvent, now time.Time, createdInPass bool) (outcome, error) {
	stored, err := e.catalog.FindByKey(ctx, ev.SourceEventURL)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		err = e.catalog.Insert(ctx, newRecord(ev, now))
		if err == nil {
			return outcomeCreated, nil
		}
		if !errors.Is(err, domain.ErrDuplicateKey) {
			return 0, fmt.Errorf("insert: %w", err)
		}
		// Someone else inserted the key between lookup and insert.
		log.Debug("insert raced, treating as existing", slog.String("key", ev.SourceEventURL))
		stored, err = e.catalog.FindByKey(ctx, ev.SourceEventURL)
		if err != nil {
			return 0, fmt.Errorf("refetch after duplicate: %w", err)
		}
	case err != nil:
		return 0, fmt.Errorf("lookup: %w", err)
	}

	return e.merge(ctx, log, stored, ev, now, createdInPass)
}

func (e *Engine) merge(ctx context.Context, log *slog.Logger, stored domain.CatalogEvent, ev domain.NormalizedEvent, now time.Time, createdInPass bool) (outcome, error) {
	key := ev.SourceEventURL
	seenOnly := domain.EventPatch{LastSeenAt: domain.TimePtr(now)}

	if stored.IsCurated() {
		if err := e.catalog.UpdateFields(ctx, key, seenOnly); err != nil {
			return 0, fmt.Errorf("stamp curated: %w", err)
		}
		return outcomeUnchanged, nil
	}

	var (
		patch domain.EventPatch
		res   outcome
	)
	switch {
	case e.Changed(stored, ev):
		status := domain.EventStatusUpdated
		if createdInPass {
			status = domain.EventStatusNew
		}
		content := domain.ContentOf(ev)
		patch = domain.EventPatch{
			Content:          &content,
			Status:           &status,
			LastSeenAt:       domain.TimePtr(now),
			LastChangedAt:    domain.TimePtr(now),
			ExpectStatus:     []domain.EventStatus{stored.Status},
			ExpectUnarchived: true,
		}
		res = outcomeUpdated
	case stored.Status == domain.EventStatusInactive:
		// Retired earlier, live again with the same content.
		patch = domain.EventPatch{
			Status:           domain.StatusPtr(domain.EventStatusUpdated),
			LastSeenAt:       domain.TimePtr(now),
			ExpectStatus:     []domain.EventStatus{domain.EventStatusInactive},
			ExpectUnarchived: true,
		}
		res = outcomeReactivated
	default:
		patch = seenOnly
		res = outcomeUnchanged
	}

	err := e.catalog.UpdateFields(ctx, key, patch)
	if errors.Is(err, domain.ErrStatusChanged) {
		// An operator curated the record after we read it. Their state wins.
		log.Info("record curated concurrently, stamping only", slog.String("key", key))
		if err := e.catalog.UpdateFields(ctx, key, seenOnly); err != nil {
			return 0, fmt.Errorf("stamp after concurrent curation: %w", err)
		}
		return outcomeUnchanged, nil
	}
	if err != nil {
		return 0, fmt.Errorf("update: %w", err)
	}
	return res, nil
}

// Changed compares the tracked content fields of the stored record and the incoming listing.
func (e *Engine) Changed(stored domain.CatalogEvent, ev domain.NormalizedEvent) bool {
	if stored.Title != ev.Title ||
		stored.Description != ev.Description ||
		!stored.Start.Equal(ev.Start) ||
		stored.Venue.Name != ev.Venue.Name ||
		stored.Venue.Address != ev.Venue.Address {
		return true
	}
	return e.imagePolicy == ImageTracked && stored.ImageURL != ev.ImageURL
}

func (e *Engine) timestamp() time.Time {
	return e.now().UTC().Truncate(time.Microsecond)
}

func newRecord(ev domain.NormalizedEvent, now time.Time) domain.CatalogEvent {
	rec := domain.CatalogEvent{
		ID:             uuid.New(),
		SourceEventURL: ev.SourceEventURL,
		SourceName:     ev.SourceName,
		EventContent:   ev.EventContent,
		Status:         domain.EventStatusNew,
		ScrapeMeta: domain.ScrapeMeta{
			FirstSeenAt:   now,
			LastSeenAt:    now,
			LastChangedAt: now,
		},
	}
	return rec.Clone()
}
