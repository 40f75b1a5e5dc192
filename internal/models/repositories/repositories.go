package repositories

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type BaseModel struct {
	ID        uuid.UUID `db:"id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// CatalogEvent is one row of catalog_events.
type CatalogEvent struct {
	BaseModel
	SourceEventURL string         `db:"source_event_url"`
	SourceName     string         `db:"source_name"`
	Title          string         `db:"title"`
	Description    string         `db:"description"`
	ShortSummary   string         `db:"short_summary"`
	StartAt        time.Time      `db:"start_at"`
	EndAt          sql.NullTime   `db:"end_at"`
	VenueName      string         `db:"venue_name"`
	VenueAddress   string         `db:"venue_address"`
	VenueCity      string         `db:"venue_city"`
	Categories     pq.StringArray `db:"categories"`
	ImageURL       string         `db:"image_url"`
	Status         string         `db:"status"`
	FirstSeenAt    time.Time      `db:"first_seen_at"`
	LastSeenAt     time.Time      `db:"last_seen_at"`
	LastChangedAt  time.Time      `db:"last_changed_at"`
	ImportedAt     sql.NullTime   `db:"imported_at"`
	ImportedBy     sql.NullString `db:"imported_by"`
	ImportNotes    sql.NullString `db:"import_notes"`
	ArchivedAt     sql.NullTime   `db:"archived_at"`
	ArchivedBy     sql.NullString `db:"archived_by"`
}

type TicketLead struct {
	ID        uuid.UUID `db:"id"`
	Email     string    `db:"email"`
	EventID   uuid.UUID `db:"event_id"`
	EventURL  string    `db:"event_url"`
	Consent   bool      `db:"consent"`
	CreatedAt time.Time `db:"created_at"`
}
