package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// EventStatus is the catalog lifecycle state of an event.
type EventStatus string

const (
	// EventStatusNew is the first observation of a source URL.
	EventStatusNew EventStatus = "new"
	// EventStatusUpdated means content changed since first observation, or the event came back after retirement.
	EventStatusUpdated EventStatus = "updated"
	// EventStatusInactive means gone from the source, or archived by an operator.
	EventStatusInactive EventStatus = "inactive"
	// EventStatusImported is curated by an operator. Automation never touches its content or status again.
	EventStatusImported EventStatus = "imported"
)

func (s EventStatus) String() string {
	return string(s)
}

// Valid reports whether s is one of the known statuses.
func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusNew, EventStatusUpdated, EventStatusInactive, EventStatusImported:
		return true
	default:
		return false
	}
}

var (
	ErrNotFound      = errors.New("event not found")
	ErrDuplicateKey  = errors.New("event with this source url already exists")
	ErrStatusChanged = errors.New("event status changed concurrently")
)

type Venue struct {
	Name    string
	Address string
	City    string
}

// EventContent is the source-provided part of an event.
type EventContent struct {
	Title        string
	Description  string
	ShortSummary string
	Start        time.Time
	End          *time.Time
	Venue        Venue
	Categories   []string
	ImageURL     string
}

// RawEvent is what a connector hands over before normalization.
type RawEvent struct {
	Title        string
	Description  string
	ShortSummary string
	StartDate    time.Time
	EndDate      *time.Time
	VenueName    string
	VenueAddress string
	VenueCity    string
	Categories   []string
	ImageURL     string
	EventURL     string
	SourceName   string
}

// NormalizedEvent is one listing of one run in canonical shape.
type NormalizedEvent struct {
	EventContent
	SourceName     string
	SourceEventURL string
}

type ScrapeMeta struct {
	FirstSeenAt   time.Time
	LastSeenAt    time.Time
	LastChangedAt time.Time
}

type ImportedMeta struct {
	ImportedAt time.Time
	ImportedBy string
	Notes      string
}

type ArchivedMeta struct {
	ArchivedAt time.Time
	ArchivedBy string
}

// CatalogEvent - persisted catalog record, keyed by SourceEventURL.
type CatalogEvent struct {
	ID             uuid.UUID
	SourceEventURL string
	SourceName     string
	EventContent
	Status       EventStatus
	ScrapeMeta   ScrapeMeta
	ImportedMeta *ImportedMeta
	ArchivedMeta *ArchivedMeta
}

// IsCurated reports whether an operator owns the record's status and content.
func (e CatalogEvent) IsCurated() bool {
	if e.Status == EventStatusImported {
		return true
	}
	return e.Status == EventStatusInactive && e.ArchivedMeta != nil
}

// ContentFields enumerates exactly what a reconciliation pass may overwrite.
type ContentFields struct {
	Title        string
	Description  string
	ShortSummary string
	Start        time.Time
	End          *time.Time
	VenueName    string
	VenueAddress string
	ImageURL     string
}

// EventPatch is a typed partial update. Nil fields are left untouched.
type EventPatch struct {
	Content       *ContentFields
	Categories    []string
	Status        *EventStatus
	LastSeenAt    *time.Time
	LastChangedAt *time.Time
	ImportedMeta  *ImportedMeta
	ArchivedMeta  *ArchivedMeta
	// ExpectStatus makes the update conditional on the current status.
	ExpectStatus []EventStatus
	// ExpectUnarchived rejects the update when an operator archived the record.
	ExpectUnarchived bool
}

// IsEmpty reports whether the patch would write nothing.
func (p EventPatch) IsEmpty() bool {
	return p.Content == nil && p.Categories == nil && p.Status == nil && p.LastSeenAt == nil &&
		p.LastChangedAt == nil && p.ImportedMeta == nil && p.ArchivedMeta == nil
}

// RetireFilter selects the records of one source that were not seen in a run.
type RetireFilter struct {
	SourceName       string
	ExcludedKeys     []string
	ExcludedStatuses []EventStatus
}

// EventFilter drives catalog listings for the read API.
type EventFilter struct {
	Statuses        []EventStatus
	ExcludeStatuses []EventStatus
	SourceName      string
	Category        string
	City            string
	Search          string
	DateFrom        *time.Time
	DateTo          *time.Time
	SortBy          EventSort
	Page            int
	Limit           int
}

type EventSort string

const (
	SortByStartAsc     EventSort = "start_asc"
	SortByLastSeenDesc EventSort = "last_seen_desc"
)

const (
	DefaultPublicLimit = 12
	DefaultAdminLimit  = 20
	MaxListLimit       = 200
)

// Offset returns the row offset for 1-based pages.
func (f EventFilter) Offset() int {
	if f.Page <= 1 {
		return 0
	}
	return (f.Page - 1) * f.Limit
}

func StatusPtr(s EventStatus) *EventStatus {
	return &s
}

func TimePtr(t time.Time) *time.Time {
	return &t
}
