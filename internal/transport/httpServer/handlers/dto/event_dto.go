package dto

import (
	"time"

	"eventsCatalog/internal/models/domain"

	"github.com/google/uuid"
)

type VenueResponse struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
}

type ImportedMetaResponse struct {
	ImportedAt time.Time `json:"importedAt"`
	ImportedBy string    `json:"importedBy"`
	Notes      string    `json:"importNotes"`
}

type ArchivedMetaResponse struct {
	ArchivedAt time.Time `json:"archivedAt"`
	ArchivedBy string    `json:"archivedBy"`
}

type ScrapeMetaResponse struct {
	FirstSeenAt   time.Time `json:"firstSeenAt"`
	LastSeenAt    time.Time `json:"lastSeenAt"`
	LastChangedAt time.Time `json:"lastChangedAt"`
}

// EventResponse is the public shape of a catalog record.
type EventResponse struct {
	ID             uuid.UUID     `json:"id"`
	Title          string        `json:"title"`
	Description    string        `json:"description"`
	ShortSummary   string        `json:"shortSummary"`
	Start          time.Time     `json:"start"`
	End            *time.Time    `json:"end,omitempty"`
	Venue          VenueResponse `json:"venue"`
	Categories     []string      `json:"categories"`
	ImageURL       string        `json:"imageUrl,omitempty"`
	SourceName     string        `json:"sourceName"`
	SourceEventURL string        `json:"sourceEventUrl"`
	Status         string        `json:"status"`
}

// AdminEventResponse adds bookkeeping operators need.
type AdminEventResponse struct {
	EventResponse
	ScrapeMeta   ScrapeMetaResponse    `json:"scrapeMeta"`
	ImportedMeta *ImportedMetaResponse `json:"importedMeta,omitempty"`
	ArchivedMeta *ArchivedMetaResponse `json:"archivedMeta,omitempty"`
}

type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type EventListResponse[T any] struct {
	Events     []T        `json:"events"`
	Pagination Pagination `json:"pagination"`
}

type ImportRequest struct {
	EventID uuid.UUID `json:"eventId"`
	Notes   string    `json:"importNotes"`
}

// UpdateStatusRequest is the PATCH body. Only "imported" and "inactive" are accepted.
type UpdateStatusRequest struct {
	Status string `json:"status"`
	Notes  string `json:"importNotes"`
}

type CurationResponse struct {
	Success bool               `json:"success"`
	Event   AdminEventResponse `json:"event"`
}

type TicketLeadRequest struct {
	Email    string    `json:"email"`
	EventID  uuid.UUID `json:"eventId"`
	EventURL string    `json:"eventUrl"`
	Consent  *bool     `json:"consent"`
}

type TicketLeadResponse struct {
	Success           bool `json:"success"`
	AlreadyRegistered bool `json:"alreadyRegistered,omitempty"`
}

type SourceResultResponse struct {
	Name              string `json:"name"`
	Fetched           int    `json:"fetched"`
	Created           int    `json:"created"`
	Updated           int    `json:"updated"`
	Unchanged         int    `json:"unchanged"`
	Reactivated       int    `json:"reactivated"`
	Retired           int    `json:"retired"`
	Skipped           int    `json:"skipped"`
	Failed            int    `json:"failed"`
	Error             string `json:"error,omitempty"`
	RetirementSkipped bool   `json:"retirementSkipped,omitempty"`
	DurationMs        int64  `json:"durationMs"`
}

type RunSummaryResponse struct {
	Success    bool                   `json:"success"`
	RunID      uuid.UUID              `json:"runId"`
	StartedAt  time.Time              `json:"startedAt"`
	FinishedAt time.Time              `json:"finishedAt"`
	Sources    []SourceResultResponse `json:"sources"`
	Totals     SourceResultResponse   `json:"totals"`
}

func MapDomainToEventResponse(e domain.CatalogEvent) EventResponse {
	categories := e.Categories
	if categories == nil {
		categories = []string{}
	}
	return EventResponse{
		ID:             e.ID,
		Title:          e.Title,
		Description:    e.Description,
		ShortSummary:   e.ShortSummary,
		Start:          e.Start,
		End:            e.End,
		Venue:          VenueResponse{Name: e.Venue.Name, Address: e.Venue.Address, City: e.Venue.City},
		Categories:     categories,
		ImageURL:       e.ImageURL,
		SourceName:     e.SourceName,
		SourceEventURL: e.SourceEventURL,
		Status:         string(e.Status),
	}
}

func MapDomainToAdminEventResponse(e domain.CatalogEvent) AdminEventResponse {
	res := AdminEventResponse{
		EventResponse: MapDomainToEventResponse(e),
		ScrapeMeta: ScrapeMetaResponse{
			FirstSeenAt:   e.ScrapeMeta.FirstSeenAt,
			LastSeenAt:    e.ScrapeMeta.LastSeenAt,
			LastChangedAt: e.ScrapeMeta.LastChangedAt,
		},
	}
	if m := e.ImportedMeta; m != nil {
		res.ImportedMeta = &ImportedMetaResponse{ImportedAt: m.ImportedAt, ImportedBy: m.ImportedBy, Notes: m.Notes}
	}
	if m := e.ArchivedMeta; m != nil {
		res.ArchivedMeta = &ArchivedMetaResponse{ArchivedAt: m.ArchivedAt, ArchivedBy: m.ArchivedBy}
	}
	return res
}

// MapList converts a page of records with mapper.
func MapList[T any](events []domain.CatalogEvent, total int, filter domain.EventFilter, mapper func(domain.CatalogEvent) T) EventListResponse[T] {
	items := make([]T, len(events))
	for i, e := range events {
		items[i] = mapper(e)
	}
	pages := 0
	if filter.Limit > 0 {
		pages = (total + filter.Limit - 1) / filter.Limit
	}
	return EventListResponse[T]{
		Events:     items,
		Pagination: Pagination{Page: filter.Page, Limit: filter.Limit, Total: total, Pages: pages},
	}
}

func MapSourceResult(r domain.SourceResult) SourceResultResponse {
	return SourceResultResponse{
		Name:              r.Name,
		Fetched:           r.Fetched,
		Created:           r.Created,
		Updated:           r.Updated,
		Unchanged:         r.Unchanged,
		Reactivated:       r.Reactivated,
		Retired:           r.Retired,
		Skipped:           r.Skipped,
		Failed:            r.Failed,
		Error:             r.Error,
		RetirementSkipped: r.RetirementSkipped,
		DurationMs:        r.Duration.Milliseconds(),
	}
}

// MapRunSummary reports success only when every source completed.
func MapRunSummary(s domain.RunSummary) RunSummaryResponse {
	sources := make([]SourceResultResponse, len(s.PerSource))
	for i, r := range s.PerSource {
		sources[i] = MapSourceResult(r)
	}
	return RunSummaryResponse{
		Success:    len(s.Failed()) == 0,
		RunID:      s.RunID,
		StartedAt:  s.StartedAt,
		FinishedAt: s.FinishedAt,
		Sources:    sources,
		Totals:     MapSourceResult(s.Totals()),
	}
}
