package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// StatusIn reports whether s is one of list.
func StatusIn(s EventStatus, list []EventStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// Apply writes the non-nil parts of p onto e. Timestamps never move backwards.
func (e *CatalogEvent) Apply(p EventPatch) {
	if c := p.Content; c != nil {
		e.Title = c.Title
		e.Description = c.Description
		e.ShortSummary = c.ShortSummary
		e.Start = c.Start
		e.End = cloneTime(c.End)
		e.Venue.Name = c.VenueName
		e.Venue.Address = c.VenueAddress
		e.ImageURL = c.ImageURL
	}
	if p.Categories != nil {
		e.Categories = append([]string(nil), p.Categories...)
	}
	if p.Status != nil {
		e.Status = *p.Status
	}
	if p.LastSeenAt != nil && p.LastSeenAt.After(e.ScrapeMeta.LastSeenAt) {
		e.ScrapeMeta.LastSeenAt = *p.LastSeenAt
	}
	if p.LastChangedAt != nil && p.LastChangedAt.After(e.ScrapeMeta.LastChangedAt) {
		e.ScrapeMeta.LastChangedAt = *p.LastChangedAt
	}
	if p.ImportedMeta != nil {
		m := *p.ImportedMeta
		e.ImportedMeta = &m
	}
	if p.ArchivedMeta != nil {
		m := *p.ArchivedMeta
		e.ArchivedMeta = &m
	}
}

// Clone returns a deep copy.
func (e CatalogEvent) Clone() CatalogEvent {
	c := e
	c.End = cloneTime(e.End)
	if e.Categories != nil {
		c.Categories = append([]string(nil), e.Categories...)
	}
	if e.ImportedMeta != nil {
		m := *e.ImportedMeta
		c.ImportedMeta = &m
	}
	if e.ArchivedMeta != nil {
		m := *e.ArchivedMeta
		c.ArchivedMeta = &m
	}
	return c
}

// ContentOf extracts the overwritable fields of a normalized event.
func ContentOf(ev NormalizedEvent) ContentFields {
	return ContentFields{
		Title:        ev.Title,
		Description:  ev.Description,
		ShortSummary: ev.ShortSummary,
		Start:        ev.Start,
		End:          cloneTime(ev.End),
		VenueName:    ev.Venue.Name,
		VenueAddress: ev.Venue.Address,
		ImageURL:     ev.ImageURL,
	}
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

var ErrInvalidLead = errors.New("invalid ticket lead")

// TicketLead is a visitor's interest in an event, captured before redirecting to the source.
type TicketLead struct {
	ID        uuid.UUID
	Email     string
	EventID   uuid.UUID
	EventURL  string
	Consent   bool
	CreatedAt time.Time
}
