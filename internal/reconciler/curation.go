package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"eventsCatalog/internal/models/domain"
)

var ErrUnsupportedStatus = errors.New("operators may only set imported or inactive")

// MarkImported hands the record over to the operator. Automated passes never touch its content
// or status afterwards.
func (e *Engine) MarkImported(ctx context.Context, url string, userID string, notes string) (domain.CatalogEvent, error) {
	op := "Reconciler.MarkImported()"
	log := e.logger.With(
		slog.String("op", op),
		slog.String("key", url),
		slog.String("user", userID),
	)

	patch := domain.EventPatch{
		Status: domain.StatusPtr(domain.EventStatusImported),
		ImportedMeta: &domain.ImportedMeta{
			ImportedAt: e.timestamp(),
			ImportedBy: userID,
			Notes:      notes,
		},
	}
	if err := e.catalog.UpdateFields(ctx, url, patch); err != nil {
		return domain.CatalogEvent{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("event marked imported")
	return e.reload(ctx, op, url)
}

// Archive retires the record by hand. Unlike automated retirement it sticks: the record is
// not revived when the source lists it again.
func (e *Engine) Archive(ctx context.Context, url string, userID string) (domain.CatalogEvent, error) {
	op := "Reconciler.Archive()"
	log := e.logger.With(
		slog.String("op", op),
		slog.String("key", url),
		slog.String("user", userID),
	)

	patch := domain.EventPatch{
		Status: domain.StatusPtr(domain.EventStatusInactive),
		ArchivedMeta: &domain.ArchivedMeta{
			ArchivedAt: e.timestamp(),
			ArchivedBy: userID,
		},
	}
	if err := e.catalog.UpdateFields(ctx, url, patch); err != nil {
		return domain.CatalogEvent{}, fmt.Errorf("%s: %w", op, err)
	}

	log.Info("event archived")
	return e.reload(ctx, op, url)
}

// SetStatus dispatches an operator status change to MarkImported or Archive.
func (e *Engine) SetStatus(ctx context.Context, url string, status domain.EventStatus, userID string, notes string) (domain.CatalogEvent, error) {
	switch status {
	case domain.EventStatusImported:
		return e.MarkImported(ctx, url, userID, notes)
	case domain.EventStatusInactive:
		return e.Archive(ctx, url, userID)
	default:
		return domain.CatalogEvent{}, fmt.Errorf("Reconciler.SetStatus(): %q: %w", status, ErrUnsupportedStatus)
	}
}

func (e *Engine) reload(ctx context.Context, op string, url string) (domain.CatalogEvent, error) {
	ev, err := e.catalog.FindByKey(ctx, url)
	if err != nil {
		return domain.CatalogEvent{}, fmt.Errorf("%s: reload: %w", op, err)
	}
	return ev, nil
}
