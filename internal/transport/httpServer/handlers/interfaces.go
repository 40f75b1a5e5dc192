package handlers

import (
	"context"

	"eventsCatalog/internal/models/domain"

	"github.com/google/uuid"
)

// EventRepository is the read side of the catalog the handlers need.
type EventRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (domain.CatalogEvent, error)
	ListEvents(ctx context.Context, filter domain.EventFilter) ([]domain.CatalogEvent, int, error)
	CreateLead(ctx context.Context, lead domain.TicketLead) (domain.TicketLead, error)
}

// Curator applies operator decisions.
type Curator interface {
	MarkImported(ctx context.Context, url string, userID string, notes string) (domain.CatalogEvent, error)
	Archive(ctx context.Context, url string, userID string) (domain.CatalogEvent, error)
	SetStatus(ctx context.Context, url string, status domain.EventStatus, userID string, notes string) (domain.CatalogEvent, error)
}

// Runner starts ingestion runs.
type Runner interface {
	RunAll(ctx context.Context) (domain.RunSummary, error)
	RunSource(ctx context.Context, name string) (domain.RunSummary, error)
}

// CurationRecorder counts operator actions. *metrics.Metrics satisfies it.
type CurationRecorder interface {
	Curation(action string)
}
