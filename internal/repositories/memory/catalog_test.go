package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"eventsCatalog/internal/models/domain"

	"github.com/google/uuid"
)

var t0 = time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

func event(url, source string, status domain.EventStatus, start time.Time) domain.CatalogEvent {
	return domain.CatalogEvent{
		SourceEventURL: url,
		SourceName:     source,
		EventContent: domain.EventContent{
			Title:      "title " + url,
			Start:      start,
			Venue:      domain.Venue{Name: "Venue", City: "Sydney"},
			Categories: []string{"Music"},
		},
		Status:     status,
		ScrapeMeta: domain.ScrapeMeta{FirstSeenAt: t0, LastSeenAt: t0, LastChangedAt: t0},
	}
}

func TestInsertAndFind(t *testing.T) {
	ctx := context.Background()
	c := New()

	if err := c.Insert(ctx, event("u1", "S", domain.EventStatusNew, t0)); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	err := c.Insert(ctx, event("u1", "S", domain.EventStatusNew, t0))
	if !errors.Is(err, domain.ErrDuplicateKey) {
		t.Fatalf("second insert err = %v, want ErrDuplicateKey", err)
	}

	got, err := c.FindByKey(ctx, "u1")
	if err != nil {
		t.Fatalf("FindByKey: %v", err)
	}
	if got.ID == uuid.Nil {
		t.Fatal("id not assigned")
	}
	byID, err := c.FindByID(ctx, got.ID)
	if err != nil || byID.SourceEventURL != "u1" {
		t.Fatalf("FindByID = %+v, %v", byID, err)
	}

	if _, err := c.FindByKey(ctx, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing key err = %v", err)
	}
}

func TestReturnedRecordsAreCopies(t *testing.T) {
	ctx := context.Background()
	c := New()
	_ = c.Insert(ctx, event("u1", "S", domain.EventStatusNew, t0))

	got, _ := c.FindByKey(ctx, "u1")
	got.Categories[0] = "mutated"
	got.Title = "mutated"

	again, _ := c.FindByKey(ctx, "u1")
	if again.Categories[0] != "Music" || again.Title != "title u1" {
		t.Fatalf("store mutated through returned value: %+v", again)
	}
}

func TestUpdateFieldsExpectStatus(t *testing.T) {
	ctx := context.Background()
	c := New()
	_ = c.Insert(ctx, event("u1", "S", domain.EventStatusImported, t0))

	err := c.UpdateFields(ctx, "u1", domain.EventPatch{
		Status:       domain.StatusPtr(domain.EventStatusUpdated),
		ExpectStatus: []domain.EventStatus{domain.EventStatusNew},
	})
	if !errors.Is(err, domain.ErrStatusChanged) {
		t.Fatalf("err = %v, want ErrStatusChanged", err)
	}

	if err := c.UpdateFields(ctx, "missing", domain.EventPatch{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing err = %v", err)
	}
}

func TestUpdateFieldsTimestampsAreMonotonic(t *testing.T) {
	ctx := context.Background()
	c := New()
	_ = c.Insert(ctx, event("u1", "S", domain.EventStatusNew, t0))

	earlier := t0.Add(-time.Hour)
	if err := c.UpdateFields(ctx, "u1", domain.EventPatch{LastSeenAt: &earlier, LastChangedAt: &earlier}); err != nil {
		t.Fatalf("UpdateFields: %v", err)
	}
	got, _ := c.FindByKey(ctx, "u1")
	if !got.ScrapeMeta.LastSeenAt.Equal(t0) || !got.ScrapeMeta.LastChangedAt.Equal(t0) {
		t.Fatalf("timestamps moved backwards: %+v", got.ScrapeMeta)
	}
}

func TestBulkUpdateWhere(t *testing.T) {
	ctx := context.Background()
	c := New()
	_ = c.Insert(ctx, event("a1", "A", domain.EventStatusNew, t0))
	_ = c.Insert(ctx, event("a2", "A", domain.EventStatusUpdated, t0))
	_ = c.Insert(ctx, event("a3", "A", domain.EventStatusImported, t0))
	_ = c.Insert(ctx, event("a4", "A", domain.EventStatusNew, t0))
	_ = c.Insert(ctx, event("b1", "B", domain.EventStatusNew, t0))

	now := t0.Add(time.Hour)
	n, err := c.BulkUpdateWhere(ctx, domain.RetireFilter{
		SourceName:       "A",
		ExcludedKeys:     []string{"a4"},
		ExcludedStatuses: []domain.EventStatus{domain.EventStatusInactive, domain.EventStatusImported},
	}, domain.EventPatch{Status: domain.StatusPtr(domain.EventStatusInactive), LastSeenAt: &now})
	if err != nil {
		t.Fatalf("BulkUpdateWhere: %v", err)
	}
	if n != 2 {
		t.Fatalf("matched = %d, want 2", n)
	}

	want := map[string]domain.EventStatus{
		"a1": domain.EventStatusInactive,
		"a2": domain.EventStatusInactive,
		"a3": domain.EventStatusImported,
		"a4": domain.EventStatusNew,
		"b1": domain.EventStatusNew,
	}
	for url, status := range want {
		got, _ := c.FindByKey(ctx, url)
		if got.Status != status {
			t.Errorf("%s status = %s, want %s", url, got.Status, status)
		}
	}
}

func TestListEvents(t *testing.T) {
	ctx := context.Background()
	c := New()
	for i, st := range []domain.EventStatus{domain.EventStatusNew, domain.EventStatusInactive, domain.EventStatusUpdated, domain.EventStatusImported} {
		e := event(string(rune('a'+i)), "S", st, t0.Add(time.Duration(3-i)*time.Hour))
		_ = c.Insert(ctx, e)
	}

	events, total, err := c.ListEvents(ctx, domain.EventFilter{
		ExcludeStatuses: []domain.EventStatus{domain.EventStatusInactive},
		SortBy:          domain.SortByStartAsc,
		Page:            1,
		Limit:           2,
	})
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	if len(events) != 2 || events[0].SourceEventURL != "d" || events[1].SourceEventURL != "c" {
		t.Fatalf("page = %+v", events)
	}

	events, _, _ = c.ListEvents(ctx, domain.EventFilter{Search: "TITLE A", Limit: 10})
	if len(events) != 1 || events[0].SourceEventURL != "a" {
		t.Fatalf("search = %+v", events)
	}

	events, total, _ = c.ListEvents(ctx, domain.EventFilter{Page: 5, Limit: 10})
	if len(events) != 0 || total != 4 {
		t.Fatalf("out of range page = %d events, total %d", len(events), total)
	}
}

func TestCreateLead(t *testing.T) {
	ctx := context.Background()
	c := New()
	_ = c.Insert(ctx, event("u1", "S", domain.EventStatusNew, t0))
	ev, _ := c.FindByKey(ctx, "u1")

	lead := domain.TicketLead{Email: "a@b.co", EventID: ev.ID, EventURL: "u1", Consent: true}
	if _, err := c.CreateLead(ctx, lead); err != nil {
		t.Fatalf("CreateLead: %v", err)
	}
	if _, err := c.CreateLead(ctx, lead); !errors.Is(err, domain.ErrDuplicateKey) {
		t.Fatalf("repeat err = %v", err)
	}
	lead.EventID = uuid.New()
	if _, err := c.CreateLead(ctx, lead); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown event err = %v", err)
	}
}
