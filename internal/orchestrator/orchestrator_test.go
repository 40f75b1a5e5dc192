package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"eventsCatalog/internal/config"
	"eventsCatalog/internal/connectors"
	"eventsCatalog/internal/models/domain"
	"eventsCatalog/internal/normalizer"
	"eventsCatalog/internal/reconciler"
	"eventsCatalog/internal/repositories/memory"
	"eventsCatalog/internal/runlock"
	"eventsCatalog/internal/utils/logger/sl"

	"github.com/google/uuid"
)

var start = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

// stubConnector returns whatever fetch returns.
type stubConnector struct {
	name  string
	fetch func(ctx context.Context) ([]domain.RawEvent, error)
}

func (s *stubConnector) Name() string { return s.name }

func (s *stubConnector) Fetch(ctx context.Context) ([]domain.RawEvent, error) {
	return s.fetch(ctx)
}

func listing(name string, urls ...string) *stubConnector {
	return &stubConnector{name: name, fetch: func(context.Context) ([]domain.RawEvent, error) {
		return raws(name, urls...), nil
	}}
}

func raws(source string, urls ...string) []domain.RawEvent {
	res := make([]domain.RawEvent, 0, len(urls))
	for _, u := range urls {
		res = append(res, domain.RawEvent{
			Title:      "Event " + u,
			StartDate:  start.Add(48 * time.Hour),
			VenueName:  "Hall",
			EventURL:   u,
			SourceName: source,
		})
	}
	return res
}

type recordingCategorizer struct {
	mu   sync.Mutex
	keys []string
	full bool
}

func (c *recordingCategorizer) AddJob(_ uuid.UUID, key string) (chan struct{}, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return nil, errors.New("job buffer is full")
	}
	c.keys = append(c.keys, key)
	done := make(chan struct{})
	close(done)
	return done, nil
}

type recordingNotifier struct {
	mu   sync.Mutex
	runs []domain.RunSummary
	ch   chan struct{}
}

func (n *recordingNotifier) NotifyRun(s domain.RunSummary) {
	n.mu.Lock()
	n.runs = append(n.runs, s)
	n.mu.Unlock()
	if n.ch != nil {
		select {
		case n.ch <- struct{}{}:
		default:
		}
	}
}

type fixture struct {
	catalog *memory.Catalog
	orch    *Orchestrator
	locker  *runlock.Local
}

func newFixture(t *testing.T, cfg config.SchedulerConfig, conns ...connectors.Connector) fixture {
	t.Helper()
	log := sl.Discard()
	cat := memory.New()
	engine := reconciler.New(log, cat, reconciler.WithClock(func() time.Time { return start }))
	locker := runlock.NewLocal()
	o := New(log, cfg, connectors.NewRegistry(conns...), normalizer.New("Sydney"), engine,
		WithLocker(locker),
		WithClock(func() time.Time { return start }),
	)
	return fixture{catalog: cat, orch: o, locker: locker}
}

func (f fixture) status(t *testing.T, url string) domain.EventStatus {
	t.Helper()
	ev, err := f.catalog.FindByKey(context.Background(), url)
	if err != nil {
		t.Fatalf("FindByKey(%s): %v", url, err)
	}
	return ev.Status
}

func TestRunAllHappyPath(t *testing.T) {
	f := newFixture(t, config.SchedulerConfig{},
		listing("a", "https://a/1", "https://a/2"),
		listing("b", "https://b/1"),
	)

	summary, err := f.orch.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(summary.PerSource) != 2 || len(summary.Failed()) != 0 {
		t.Fatalf("summary = %+v", summary)
	}
	if got := summary.Totals().Created; got != 3 {
		t.Errorf("created = %d, want 3", got)
	}
	if summary.RunID == uuid.Nil || summary.StartedAt.IsZero() {
		t.Errorf("run id/start not set: %+v", summary)
	}
	if last, ok := f.orch.LastSummary(); !ok || last.RunID != summary.RunID {
		t.Errorf("LastSummary = %+v, %v", last, ok)
	}
}

func TestFetchFailureSuppressesRetirement(t *testing.T) {
	fail := false
	conn := &stubConnector{name: "a", fetch: func(context.Context) ([]domain.RawEvent, error) {
		if fail {
			return nil, fmt.Errorf("boom: %w", connectors.ErrAuth)
		}
		return raws("a", "https://a/1", "https://a/2"), nil
	}}
	f := newFixture(t, config.SchedulerConfig{}, conn, listing("b", "https://b/1"))
	ctx := context.Background()

	if _, err := f.orch.RunAll(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}

	fail = true
	summary, err := f.orch.RunAll(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	failed := summary.Failed()
	if len(failed) != 1 || failed[0].Name != "a" || !failed[0].RetirementSkipped || failed[0].Retired != 0 {
		t.Fatalf("failed = %+v", failed)
	}
	for _, u := range []string{"https://a/1", "https://a/2"} {
		if s := f.status(t, u); s == domain.EventStatusInactive {
			t.Errorf("%s retired after fetch failure", u)
		}
	}
	if len(summary.Succeeded()) != 1 {
		t.Errorf("other source did not run: %+v", summary.PerSource)
	}
}

func TestEmptySuccessfulFetchRetires(t *testing.T) {
	empty := false
	conn := &stubConnector{name: "a", fetch: func(context.Context) ([]domain.RawEvent, error) {
		if empty {
			return []domain.RawEvent{}, nil
		}
		return raws("a", "https://a/1"), nil
	}}
	f := newFixture(t, config.SchedulerConfig{}, conn)
	ctx := context.Background()

	if _, err := f.orch.RunAll(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	empty = true
	summary, err := f.orch.RunAll(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.PerSource[0].Retired != 1 {
		t.Fatalf("retired = %d, want 1", summary.PerSource[0].Retired)
	}
	if s := f.status(t, "https://a/1"); s != domain.EventStatusInactive {
		t.Fatalf("status = %s", s)
	}
}

func TestPartialFetchMergesWithoutRetirement(t *testing.T) {
	partial := false
	conn := &stubConnector{name: "a", fetch: func(context.Context) ([]domain.RawEvent, error) {
		if partial {
			return raws("a", "https://a/1", "https://a/3"), fmt.Errorf("page 2: %w", connectors.ErrNetwork)
		}
		return raws("a", "https://a/1", "https://a/2"), nil
	}}
	f := newFixture(t, config.SchedulerConfig{}, conn)
	ctx := context.Background()

	if _, err := f.orch.RunAll(ctx); err != nil {
		t.Fatalf("first run: %v", err)
	}
	partial = true
	summary, err := f.orch.RunAll(ctx)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	res := summary.PerSource[0]
	if res.OK() || !res.RetirementSkipped {
		t.Fatalf("result = %+v", res)
	}
	if res.Created != 1 || res.Fetched != 2 {
		t.Errorf("created = %d fetched = %d", res.Created, res.Fetched)
	}
	if s := f.status(t, "https://a/2"); s == domain.EventStatusInactive {
		t.Error("record retired on a partial fetch")
	}
	if s := f.status(t, "https://a/3"); s != domain.EventStatusNew {
		t.Errorf("partial record status = %s", s)
	}
}

func TestRunSourceBusy(t *testing.T) {
	f := newFixture(t, config.SchedulerConfig{}, listing("a", "https://a/1"))
	ctx := context.Background()

	release, err := f.locker.Acquire(ctx, "a")
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}

	if _, err := f.orch.RunSource(ctx, "a"); !errors.Is(err, ErrSourceBusy) {
		t.Fatalf("RunSource err = %v, want ErrSourceBusy", err)
	}

	summary, err := f.orch.RunAll(ctx)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if res := summary.PerSource[0]; res.OK() || !res.RetirementSkipped {
		t.Fatalf("busy source result = %+v", res)
	}
	if f.catalog.Len() != 0 {
		t.Fatal("busy source wrote to the catalog")
	}

	_ = release(ctx)
	if _, err := f.orch.RunSource(ctx, "a"); err != nil {
		t.Fatalf("RunSource after release: %v", err)
	}
	if f.locker.Held("a") {
		t.Fatal("lock not released after run")
	}
}

func TestRunSourceUnknown(t *testing.T) {
	f := newFixture(t, config.SchedulerConfig{}, listing("a"))
	if _, err := f.orch.RunSource(context.Background(), "zzz"); !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("err = %v", err)
	}
}

func TestRunAllWithoutSources(t *testing.T) {
	f := newFixture(t, config.SchedulerConfig{})
	if _, err := f.orch.RunAll(context.Background()); !errors.Is(err, config.ErrNoSources) {
		t.Fatalf("err = %v", err)
	}
}

func TestParallelismBound(t *testing.T) {
	var inFlight, peak atomic.Int32
	slow := func(name string) *stubConnector {
		return &stubConnector{name: name, fetch: func(context.Context) ([]domain.RawEvent, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			inFlight.Add(-1)
			return raws(name, "https://"+name+"/1"), nil
		}}
	}

	f := newFixture(t, config.SchedulerConfig{Parallelism: 2},
		slow("a"), slow("b"), slow("c"), slow("d"),
	)
	summary, err := f.orch.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(summary.Succeeded()) != 4 {
		t.Fatalf("summary = %+v", summary.PerSource)
	}
	if p := peak.Load(); p > 2 || p < 1 {
		t.Fatalf("peak concurrency = %d, want <= 2", p)
	}
	// Results stay in source-name order regardless of completion order.
	for i, want := range []string{"a", "b", "c", "d"} {
		if summary.PerSource[i].Name != want {
			t.Errorf("PerSource[%d] = %s, want %s", i, summary.PerSource[i].Name, want)
		}
	}
}

func TestSourceTimeout(t *testing.T) {
	hang := &stubConnector{name: "a", fetch: func(ctx context.Context) ([]domain.RawEvent, error) {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %v", connectors.ErrTimeout, ctx.Err())
	}}
	f := newFixture(t, config.SchedulerConfig{SourceTimeout: 30 * time.Millisecond}, hang, listing("b", "https://b/1"))

	summary, err := f.orch.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if res := summary.PerSource[0]; res.OK() || !res.RetirementSkipped {
		t.Fatalf("timed out source = %+v", res)
	}
	if res := summary.PerSource[1]; !res.OK() || res.Created != 1 {
		t.Fatalf("next source = %+v", res)
	}
}

func TestCreatedKeysGoToCategorizer(t *testing.T) {
	cat := &recordingCategorizer{}
	log := sl.Discard()
	store := memory.New()
	engine := reconciler.New(log, store)
	o := New(log, config.SchedulerConfig{}, connectors.NewRegistry(listing("a", "https://a/1", "https://a/2")),
		normalizer.New("Sydney"), engine, WithCategorizer(cat))

	ctx := context.Background()
	if _, err := o.RunAll(ctx); err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if _, err := o.RunAll(ctx); err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(cat.keys) != 2 {
		t.Fatalf("categorizer keys = %v, want the two created keys once", cat.keys)
	}

	cat.full = true
	o2 := New(log, config.SchedulerConfig{}, connectors.NewRegistry(listing("c", "https://c/1")),
		normalizer.New("Sydney"), engine, WithCategorizer(cat))
	summary, err := o2.RunAll(ctx)
	if err != nil || !summary.PerSource[0].OK() {
		t.Fatalf("full categorizer must not fail the run: %+v, %v", summary, err)
	}
}

func TestNotifierReceivesSummary(t *testing.T) {
	n := &recordingNotifier{}
	f := newFixture(t, config.SchedulerConfig{}, listing("a", "https://a/1"))
	f.orch.SetNotifier(n)

	summary, err := f.orch.RunSource(context.Background(), "a")
	if err != nil {
		t.Fatalf("RunSource: %v", err)
	}
	if len(n.runs) != 1 || n.runs[0].RunID != summary.RunID {
		t.Fatalf("notified = %+v", n.runs)
	}
}

func TestSchedulerRunsOnStartAndStops(t *testing.T) {
	n := &recordingNotifier{ch: make(chan struct{}, 1)}
	f := newFixture(t, config.SchedulerConfig{RunOnStart: true, Interval: time.Hour}, listing("a", "https://a/1"))
	f.orch.SetNotifier(n)

	f.orch.Start()
	select {
	case <-n.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("run on start did not happen")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := f.orch.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := f.orch.Shutdown(ctx); err != nil {
		t.Fatalf("second Shutdown: %v", err)
	}
	if f.status(t, "https://a/1") != domain.EventStatusNew {
		t.Fatal("scheduled run did not reconcile")
	}
}
