package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"eventsCatalog/internal/models/domain"
	"eventsCatalog/internal/models/repositories"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

const eventColumns = `id, source_event_url, source_name, title, description, short_summary,
	start_at, end_at, venue_name, venue_address, venue_city, categories, image_url, status,
	first_seen_at, last_seen_at, last_changed_at, imported_at, imported_by, import_notes,
	archived_at, archived_by, created_at, updated_at`

func (r *Repository) FindByKey(ctx context.Context, url string) (domain.CatalogEvent, error) {
	op := "repository.FindByKey()"

	var row repositories.CatalogEvent
	query := `SELECT ` + eventColumns + ` FROM catalog_events WHERE source_event_url = $1 LIMIT 1`

	err := r.DB.GetContext(ctx, &row, query, url)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CatalogEvent{}, fmt.Errorf("%s: %s: %w", op, url, domain.ErrNotFound)
		}
		return domain.CatalogEvent{}, fmt.Errorf("%s: %w", op, err)
	}

	return mapToDomain(row), nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (domain.CatalogEvent, error) {
	op := "repository.FindByID()"

	var row repositories.CatalogEvent
	query := `SELECT ` + eventColumns + ` FROM catalog_events WHERE id = $1 LIMIT 1`

	err := r.DB.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CatalogEvent{}, fmt.Errorf("%s: %s: %w", op, id, domain.ErrNotFound)
		}
		return domain.CatalogEvent{}, fmt.Errorf("%s: %w", op, err)
	}

	return mapToDomain(row), nil
}

// Insert never overwrites: a conflicting key surfaces as domain.ErrDuplicateKey.
func (r *Repository) Insert(ctx context.Context, event domain.CatalogEvent) error {
	op := "repository.Insert()"

	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	row := mapToRepo(event)

	query := `INSERT INTO catalog_events (
		id, source_event_url, source_name, title, description, short_summary,
		start_at, end_at, venue_name, venue_address, venue_city, categories, image_url, status,
		first_seen_at, last_seen_at, last_changed_at, imported_at, imported_by, import_notes,
		archived_at, archived_by, created_at, updated_at
	) VALUES (
		:id, :source_event_url, :source_name, :title, :description, :short_summary,
		:start_at, :end_at, :venue_name, :venue_address, :venue_city, :categories, :image_url, :status,
		:first_seen_at, :last_seen_at, :last_changed_at, :imported_at, :imported_by, :import_notes,
		:archived_at, :archived_by, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP
	) ON CONFLICT (source_event_url) DO NOTHING`

	res, err := r.DB.NamedExecContext(ctx, query, row)
	if err != nil {
		if pqCode(err) == pqUniqueViolation {
			return fmt.Errorf("%s: %s: %w", op, event.SourceEventURL, domain.ErrDuplicateKey)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %s: %w", op, event.SourceEventURL, domain.ErrDuplicateKey)
	}
	return nil
}

// UpdateFields applies a typed patch. A failed ExpectStatus or ExpectUnarchived guard
// returns domain.ErrStatusChanged.
func (r *Repository) UpdateFields(ctx context.Context, url string, patch domain.EventPatch) error {
	op := "repository.UpdateFields()"

	sets, args := patchSets(patch)
	if len(sets) == 0 {
		if _, err := r.FindByKey(ctx, url); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		return nil
	}

	query := `UPDATE catalog_events SET ` + strings.Join(sets, ", ") + ` WHERE source_event_url = ?`
	args = append(args, url)
	if len(patch.ExpectStatus) > 0 {
		query += ` AND status = ANY(?)`
		args = append(args, pq.Array(statusStrings(patch.ExpectStatus)))
	}
	if patch.ExpectUnarchived {
		query += ` AND archived_at IS NULL`
	}

	res, err := r.DB.ExecContext(ctx, r.DB.Rebind(query), args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n > 0 {
		return nil
	}

	// Nothing matched: either the key is unknown or a guard rejected the write.
	if _, err := r.FindByKey(ctx, url); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %s: %w", op, url, domain.ErrStatusChanged)
}

// BulkUpdateWhere patches every record of the source that is neither in ExcludedKeys nor in ExcludedStatuses.
func (r *Repository) BulkUpdateWhere(ctx context.Context, filter domain.RetireFilter, patch domain.EventPatch) (int64, error) {
	op := "repository.BulkUpdateWhere()"

	sets, args := patchSets(patch)
	if len(sets) == 0 {
		return 0, nil
	}

	query := `UPDATE catalog_events SET ` + strings.Join(sets, ", ") + `
		WHERE source_name = ?
		AND NOT (source_event_url = ANY(?))
		AND NOT (status = ANY(?))`
	keys := filter.ExcludedKeys
	if keys == nil {
		keys = []string{}
	}
	args = append(args, filter.SourceName, pq.Array(keys), pq.Array(statusStrings(filter.ExcludedStatuses)))

	res, err := r.DB.ExecContext(ctx, r.DB.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: rows affected: %w", op, err)
	}
	return n, nil
}

// ListEvents returns one page of matching events and the total match count.
func (r *Repository) ListEvents(ctx context.Context, filter domain.EventFilter) ([]domain.CatalogEvent, int, error) {
	op := "repository.ListEvents()"

	where, args := filterWhere(filter)

	var total int
	countQuery := r.DB.Rebind(`SELECT COUNT(*) FROM catalog_events` + where)
	if err := r.DB.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("%s: count: %w", op, err)
	}

	order := ` ORDER BY start_at ASC, source_event_url ASC`
	if filter.SortBy == domain.SortByLastSeenDesc {
		order = ` ORDER BY last_seen_at DESC, source_event_url ASC`
	}
	query := `SELECT ` + eventColumns + ` FROM catalog_events` + where + order
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset())
	}

	var rows []repositories.CatalogEvent
	if err := r.DB.SelectContext(ctx, &rows, r.DB.Rebind(query), args...); err != nil {
		return nil, 0, fmt.Errorf("%s: %w", op, err)
	}

	result := make([]domain.CatalogEvent, len(rows))
	for i, row := range rows {
		result[i] = mapToDomain(row)
	}
	return result, total, nil
}

func patchSets(p domain.EventPatch) ([]string, []any) {
	var sets []string
	var args []any
	set := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}

	if c := p.Content; c != nil {
		set("title", c.Title)
		set("description", c.Description)
		set("short_summary", c.ShortSummary)
		set("start_at", c.Start)
		set("end_at", nullTime(c.End))
		set("venue_name", c.VenueName)
		set("venue_address", c.VenueAddress)
		set("image_url", c.ImageURL)
	}
	if p.Categories != nil {
		set("categories", pq.StringArray(p.Categories))
	}
	if p.Status != nil {
		set("status", string(*p.Status))
	}
	if p.LastSeenAt != nil {
		sets = append(sets, "last_seen_at = GREATEST(last_seen_at, ?)")
		args = append(args, *p.LastSeenAt)
	}
	if p.LastChangedAt != nil {
		sets = append(sets, "last_changed_at = GREATEST(last_changed_at, ?)")
		args = append(args, *p.LastChangedAt)
	}
	if m := p.ImportedMeta; m != nil {
		set("imported_at", m.ImportedAt)
		set("imported_by", m.ImportedBy)
		set("import_notes", m.Notes)
	}
	if m := p.ArchivedMeta; m != nil {
		set("archived_at", m.ArchivedAt)
		set("archived_by", m.ArchivedBy)
	}
	if len(sets) > 0 {
		sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	}
	return sets, args
}

func filterWhere(f domain.EventFilter) (string, []any) {
	var conds []string
	var args []any

	if len(f.Statuses) > 0 {
		conds = append(conds, "status = ANY(?)")
		args = append(args, pq.Array(statusStrings(f.Statuses)))
	}
	if len(f.ExcludeStatuses) > 0 {
		conds = append(conds, "NOT (status = ANY(?))")
		args = append(args, pq.Array(statusStrings(f.ExcludeStatuses)))
	}
	if f.SourceName != "" {
		conds = append(conds, "source_name = ?")
		args = append(args, f.SourceName)
	}
	if f.City != "" {
		conds = append(conds, "lower(venue_city) = lower(?)")
		args = append(args, f.City)
	}
	if f.Category != "" {
		conds = append(conds, "EXISTS (SELECT 1 FROM unnest(categories) AS c WHERE lower(c) = lower(?))")
		args = append(args, f.Category)
	}
	if f.DateFrom != nil {
		conds = append(conds, "start_at >= ?")
		args = append(args, *f.DateFrom)
	}
	if f.DateTo != nil {
		conds = append(conds, "start_at <= ?")
		args = append(args, *f.DateTo)
	}
	if f.Search != "" {
		conds = append(conds, "(title ILIKE ? OR description ILIKE ? OR short_summary ILIKE ? OR venue_name ILIKE ?)")
		like := "%" + escapeLike(f.Search) + "%"
		args = append(args, like, like, like, like)
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func statusStrings(in []domain.EventStatus) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func mapToRepo(e domain.CatalogEvent) repositories.CatalogEvent {
	row := repositories.CatalogEvent{
		BaseModel: repositories.BaseModel{
			ID: e.ID,
		},
		SourceEventURL: e.SourceEventURL,
		SourceName:     e.SourceName,
		Title:          e.Title,
		Description:    e.Description,
		ShortSummary:   e.ShortSummary,
		StartAt:        e.Start,
		EndAt:          nullTime(e.End),
		VenueName:      e.Venue.Name,
		VenueAddress:   e.Venue.Address,
		VenueCity:      e.Venue.City,
		Categories:     pq.StringArray(e.Categories),
		ImageURL:       e.ImageURL,
		Status:         string(e.Status),
		FirstSeenAt:    e.ScrapeMeta.FirstSeenAt,
		LastSeenAt:     e.ScrapeMeta.LastSeenAt,
		LastChangedAt:  e.ScrapeMeta.LastChangedAt,
	}
	if row.Categories == nil {
		row.Categories = pq.StringArray{}
	}
	if m := e.ImportedMeta; m != nil {
		row.ImportedAt = sql.NullTime{Time: m.ImportedAt, Valid: true}
		row.ImportedBy = nullString(m.ImportedBy)
		row.ImportNotes = nullString(m.Notes)
	}
	if m := e.ArchivedMeta; m != nil {
		row.ArchivedAt = sql.NullTime{Time: m.ArchivedAt, Valid: true}
		row.ArchivedBy = nullString(m.ArchivedBy)
	}
	return row
}

func mapToDomain(row repositories.CatalogEvent) domain.CatalogEvent {
	e := domain.CatalogEvent{
		ID:             row.ID,
		SourceEventURL: row.SourceEventURL,
		SourceName:     row.SourceName,
		EventContent: domain.EventContent{
			Title:        row.Title,
			Description:  row.Description,
			ShortSummary: row.ShortSummary,
			Start:        row.StartAt.UTC(),
			Venue: domain.Venue{
				Name:    row.VenueName,
				Address: row.VenueAddress,
				City:    row.VenueCity,
			},
			Categories: []string(row.Categories),
			ImageURL:   row.ImageURL,
		},
		Status: domain.EventStatus(row.Status),
		ScrapeMeta: domain.ScrapeMeta{
			FirstSeenAt:   row.FirstSeenAt.UTC(),
			LastSeenAt:    row.LastSeenAt.UTC(),
			LastChangedAt: row.LastChangedAt.UTC(),
		},
	}
	if row.EndAt.Valid {
		end := row.EndAt.Time.UTC()
		e.End = &end
	}
	if row.ImportedAt.Valid {
		e.ImportedMeta = &domain.ImportedMeta{
			ImportedAt: row.ImportedAt.Time.UTC(),
			ImportedBy: row.ImportedBy.String,
			Notes:      row.ImportNotes.String,
		}
	}
	if row.ArchivedAt.Valid {
		e.ArchivedMeta = &domain.ArchivedMeta{
			ArchivedAt: row.ArchivedAt.Time.UTC(),
			ArchivedBy: row.ArchivedBy.String,
		}
	}
	return e
}
