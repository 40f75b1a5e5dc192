package repositories

import (
	"context"
	"fmt"

	"eventsCatalog/internal/models/domain"
	"eventsCatalog/internal/models/repositories"

	"github.com/google/uuid"
)

// CreateLead stores a lead once per (email, event).
func (r *Repository) CreateLead(ctx context.Context, lead domain.TicketLead) (domain.TicketLead, error) {
	op := "repository.CreateLead()"

	if lead.ID == uuid.Nil {
		lead.ID = uuid.New()
	}
	row := repositories.TicketLead{
		ID:       lead.ID,
		Email:    lead.Email,
		EventID:  lead.EventID,
		EventURL: lead.EventURL,
		Consent:  lead.Consent,
	}

	query := `INSERT INTO ticket_leads (id, email, event_id, event_url, consent, created_at)
		VALUES (:id, :email, :event_id, :event_url, :consent, CURRENT_TIMESTAMP)
		ON CONFLICT (email, event_id) DO NOTHING
		RETURNING created_at`

	rows, err := r.DB.NamedQueryContext(ctx, query, row)
	if err != nil {
		switch pqCode(err) {
		case pqForeignKeyViolation:
			return domain.TicketLead{}, fmt.Errorf("%s: event %s: %w", op, lead.EventID, domain.ErrNotFound)
		case pqUniqueViolation:
			return domain.TicketLead{}, fmt.Errorf("%s: %w", op, domain.ErrDuplicateKey)
		}
		return domain.TicketLead{}, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			if pqCode(err) == pqForeignKeyViolation {
				return domain.TicketLead{}, fmt.Errorf("%s: event %s: %w", op, lead.EventID, domain.ErrNotFound)
			}
			return domain.TicketLead{}, fmt.Errorf("%s: %w", op, err)
		}
		return domain.TicketLead{}, fmt.Errorf("%s: %w", op, domain.ErrDuplicateKey)
	}
	if err := rows.Scan(&lead.CreatedAt); err != nil {
		return domain.TicketLead{}, fmt.Errorf("%s: scan: %w", op, err)
	}
	lead.CreatedAt = lead.CreatedAt.UTC()
	return lead, nil
}
