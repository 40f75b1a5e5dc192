// Package memory is an in-process catalog used by tests and the memory db driver.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"eventsCatalog/internal/models/domain"

	"github.com/google/uuid"
)

type leadKey struct {
	email   string
	eventID uuid.UUID
}

type Catalog struct {
	mu     sync.RWMutex
	events map[string]*domain.CatalogEvent
	ids    map[uuid.UUID]string
	leads  map[leadKey]domain.TicketLead
}

func New() *Catalog {
	return &Catalog{
		events: make(map[string]*domain.CatalogEvent),
		ids:    make(map[uuid.UUID]string),
		leads:  make(map[leadKey]domain.TicketLead),
	}
}

func (c *Catalog) FindByKey(ctx context.Context, url string) (domain.CatalogEvent, error) {
	if err := ctx.Err(); err != nil {
		return domain.CatalogEvent{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.events[url]
	if !ok {
		return domain.CatalogEvent{}, fmt.Errorf("memory.FindByKey(): %s: %w", url, domain.ErrNotFound)
	}
	return e.Clone(), nil
}

func (c *Catalog) FindByID(ctx context.Context, id uuid.UUID) (domain.CatalogEvent, error) {
	if err := ctx.Err(); err != nil {
		return domain.CatalogEvent{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	url, ok := c.ids[id]
	if !ok {
		return domain.CatalogEvent{}, fmt.Errorf("memory.FindByID(): %s: %w", id, domain.ErrNotFound)
	}
	return c.events[url].Clone(), nil
}

func (c *Catalog) Insert(ctx context.Context, event domain.CatalogEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.events[event.SourceEventURL]; ok {
		return fmt.Errorf("memory.Insert(): %s: %w", event.SourceEventURL, domain.ErrDuplicateKey)
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	stored := event.Clone()
	c.events[event.SourceEventURL] = &stored
	c.ids[event.ID] = event.SourceEventURL
	return nil
}

func (c *Catalog) UpdateFields(ctx context.Context, url string, patch domain.EventPatch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.events[url]
	if !ok {
		return fmt.Errorf("memory.UpdateFields(): %s: %w", url, domain.ErrNotFound)
	}
	if len(patch.ExpectStatus) > 0 && !domain.StatusIn(e.Status, patch.ExpectStatus) {
		return fmt.Errorf("memory.UpdateFields(): %s is %s: %w", url, e.Status, domain.ErrStatusChanged)
	}
	if patch.ExpectUnarchived && e.ArchivedMeta != nil {
		return fmt.Errorf("memory.UpdateFields(): %s is archived: %w", url, domain.ErrStatusChanged)
	}
	e.Apply(patch)
	return nil
}

func (c *Catalog) BulkUpdateWhere(ctx context.Context, filter domain.RetireFilter, patch domain.EventPatch) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	excluded := make(map[string]struct{}, len(filter.ExcludedKeys))
	for _, k := range filter.ExcludedKeys {
		excluded[k] = struct{}{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	var n int64
	for url, e := range c.events {
		if e.SourceName != filter.SourceName {
			continue
		}
		if _, ok := excluded[url]; ok {
			continue
		}
		if domain.StatusIn(e.Status, filter.ExcludedStatuses) {
			continue
		}
		e.Apply(patch)
		n++
	}
	return n, nil
}

// ListEvents returns one page of matching events and the total match count.
func (c *Catalog) ListEvents(ctx context.Context, filter domain.EventFilter) ([]domain.CatalogEvent, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	c.mu.RLock()
	matched := make([]domain.CatalogEvent, 0)
	for _, e := range c.events {
		if matches(*e, filter) {
			matched = append(matched, e.Clone())
		}
	}
	c.mu.RUnlock()

	switch filter.SortBy {
	case domain.SortByLastSeenDesc:
		sort.SliceStable(matched, func(i, j int) bool {
			if !matched[i].ScrapeMeta.LastSeenAt.Equal(matched[j].ScrapeMeta.LastSeenAt) {
				return matched[i].ScrapeMeta.LastSeenAt.After(matched[j].ScrapeMeta.LastSeenAt)
			}
			return matched[i].SourceEventURL < matched[j].SourceEventURL
		})
	default:
		sort.SliceStable(matched, func(i, j int) bool {
			if !matched[i].Start.Equal(matched[j].Start) {
				return matched[i].Start.Before(matched[j].Start)
			}
			return matched[i].SourceEventURL < matched[j].SourceEventURL
		})
	}

	total := len(matched)
	if filter.Limit <= 0 {
		return matched, total, nil
	}
	from := filter.Offset()
	if from >= total {
		return []domain.CatalogEvent{}, total, nil
	}
	to := from + filter.Limit
	if to > total {
		to = total
	}
	return matched[from:to], total, nil
}

func matches(e domain.CatalogEvent, f domain.EventFilter) bool {
	if len(f.Statuses) > 0 && !domain.StatusIn(e.Status, f.Statuses) {
		return false
	}
	if domain.StatusIn(e.Status, f.ExcludeStatuses) {
		return false
	}
	if f.SourceName != "" && e.SourceName != f.SourceName {
		return false
	}
	if f.City != "" && !strings.EqualFold(e.Venue.City, f.City) {
		return false
	}
	if f.Category != "" {
		found := false
		for _, c := range e.Categories {
			if strings.EqualFold(c, f.Category) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.DateFrom != nil && e.Start.Before(*f.DateFrom) {
		return false
	}
	if f.DateTo != nil && e.Start.After(*f.DateTo) {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		hay := []string{e.Title, e.Description, e.ShortSummary, e.Venue.Name}
		found := false
		for _, h := range hay {
			if strings.Contains(strings.ToLower(h), q) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// CreateLead stores a lead once per (email, event). A repeat returns ErrDuplicateKey.
func (c *Catalog) CreateLead(ctx context.Context, lead domain.TicketLead) (domain.TicketLead, error) {
	if err := ctx.Err(); err != nil {
		return domain.TicketLead{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.ids[lead.EventID]; !ok {
		return domain.TicketLead{}, fmt.Errorf("memory.CreateLead(): event %s: %w", lead.EventID, domain.ErrNotFound)
	}
	k := leadKey{email: lead.Email, eventID: lead.EventID}
	if _, ok := c.leads[k]; ok {
		return domain.TicketLead{}, fmt.Errorf("memory.CreateLead(): %w", domain.ErrDuplicateKey)
	}
	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	c.leads[k] = lead
	return lead, nil
}

// Len returns the number of stored events.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.events)
}

func (c *Catalog) Shutdown(ctx context.Context) error {
	return nil
}
