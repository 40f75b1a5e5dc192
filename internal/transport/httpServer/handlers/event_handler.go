package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"eventsCatalog/internal/export"
	"eventsCatalog/internal/models/domain"
	"eventsCatalog/internal/reconciler"
	"eventsCatalog/internal/transport/httpServer/handlers/dto"
	"eventsCatalog/internal/transport/httpServer/middleware"
	"eventsCatalog/internal/utils"
	"eventsCatalog/internal/utils/logger/sl"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

type EventHandler struct {
	repository EventRepository
	curator    Curator
	metrics    CurationRecorder
	log        *slog.Logger
}

func NewEventHandler(log *slog.Logger, repo EventRepository, curator Curator, m CurationRecorder) *EventHandler {
	return &EventHandler{
		repository: repo,
		curator:    curator,
		metrics:    m,
		log:        log,
	}
}

// GetEvents handles GET /api/v1/events: everything but inactive, soonest first.
func (h *EventHandler) GetEvents(w http.ResponseWriter, r *http.Request) {
	op := "httpServer.handlers.EventHandler.GetEvents()"
	log := h.log.With(slog.String("op", op))

	q := r.URL.Query()
	page, limit, err := pagination(q.Get("page"), q.Get("limit"), domain.DefaultPublicLimit)
	if err != nil {
		h.respondError(log, err, w, http.StatusBadRequest)
		return
	}
	filter := domain.EventFilter{
		ExcludeStatuses: []domain.EventStatus{domain.EventStatusInactive},
		Category:        q.Get("category"),
		City:            q.Get("city"),
		Search:          q.Get("search"),
		SortBy:          domain.SortByStartAsc,
		Page:            page,
		Limit:           limit,
	}

	events, total, err := h.repository.ListEvents(r.Context(), filter)
	if err != nil {
		h.respondError(log, fmt.Errorf("failed to list events: %w", err), w, http.StatusInternalServerError)
		return
	}

	h.respond(log, w, http.StatusOK, dto.MapList(events, total, filter, dto.MapDomainToEventResponse))
}

// AdminGetEvents handles GET /api/v1/admin/events: every status, most recently seen first.
func (h *EventHandler) AdminGetEvents(w http.ResponseWriter, r *http.Request) {
	op := "httpServer.handlers.EventHandler.AdminGetEvents()"
	log := h.log.With(slog.String("op", op))

	filter, err := adminFilter(r)
	if err != nil {
		h.respondError(log, err, w, http.StatusBadRequest)
		return
	}

	events, total, err := h.repository.ListEvents(r.Context(), filter)
	if err != nil {
		h.respondError(log, fmt.Errorf("failed to list events: %w", err), w, http.StatusInternalServerError)
		return
	}

	h.respond(log, w, http.StatusOK, dto.MapList(events, total, filter, dto.MapDomainToAdminEventResponse))
}

// ImportEvent handles POST /api/v1/admin/events/{eventId}/import and POST /api/v1/admin/import.
func (h *EventHandler) ImportEvent(w http.ResponseWriter, r *http.Request) {
	op := "httpServer.handlers.EventHandler.ImportEvent()"
	log := h.log.With(slog.String("op", op))

	// The body is optional on the per-event route.
	var req dto.ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.respondError(log, fmt.Errorf("cannot decode json: %w", err), w, http.StatusBadRequest)
		return
	}

	id := req.EventID
	if param := chi.URLParam(r, "eventId"); param != "" {
		parsed, err := uuid.Parse(param)
		if err != nil {
			h.respondError(log, fmt.Errorf("invalid eventId: %w", err), w, http.StatusBadRequest)
			return
		}
		id = parsed
	}
	if id == uuid.Nil {
		h.respondError(log, errors.New("eventId is required"), w, http.StatusBadRequest)
		return
	}

	h.curate(log, w, r, id, domain.EventStatusImported, req.Notes)
}

// UpdateStatus handles PATCH /api/v1/admin/events/{eventId}.
func (h *EventHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	op := "httpServer.handlers.EventHandler.UpdateStatus()"
	log := h.log.With(slog.String("op", op))

	id, ok := h.eventID(log, w, r)
	if !ok {
		return
	}

	var req dto.UpdateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(log, fmt.Errorf("cannot decode json: %w", err), w, http.StatusBadRequest)
		return
	}
	status := domain.EventStatus(req.Status)
	if status != domain.EventStatusImported && status != domain.EventStatusInactive {
		h.respondError(log, fmt.Errorf("invalid status %q: %w", req.Status, reconciler.ErrUnsupportedStatus), w, http.StatusBadRequest)
		return
	}

	h.curate(log, w, r, id, status, req.Notes)
}

// ArchiveEvent handles DELETE /api/v1/admin/events/{eventId}. Records are never removed.
func (h *EventHandler) ArchiveEvent(w http.ResponseWriter, r *http.Request) {
	op := "httpServer.handlers.EventHandler.ArchiveEvent()"
	log := h.log.With(slog.String("op", op))

	id, ok := h.eventID(log, w, r)
	if !ok {
		return
	}
	h.curate(log, w, r, id, domain.EventStatusInactive, "")
}

// ExportXLSX handles GET /api/v1/admin/export.xlsx with the admin listing filters.
func (h *EventHandler) ExportXLSX(w http.ResponseWriter, r *http.Request) {
	op := "httpServer.handlers.EventHandler.ExportXLSX()"
	log := h.log.With(slog.String("op", op))

	filter, err := adminFilter(r)
	if err != nil {
		h.respondError(log, err, w, http.StatusBadRequest)
		return
	}

	events, err := export.Collect(r.Context(), h.repository, filter)
	if err != nil {
		h.respondError(log, fmt.Errorf("failed to collect events: %w", err), w, http.StatusInternalServerError)
		return
	}

	name := fmt.Sprintf("events-%s.xlsx", time.Now().UTC().Format("20060102-1504"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if err := export.WriteXLSX(w, events); err != nil {
		log.Error("failed to write xlsx", sl.Err(err))
		return
	}
	log.Info("catalog exported", slog.Int("events", len(events)))
}

func (h *EventHandler) curate(log *slog.Logger, w http.ResponseWriter, r *http.Request, id uuid.UUID, status domain.EventStatus, notes string) {
	ctx := r.Context()
	user := middleware.UserFromContext(ctx)

	event, err := h.repository.FindByID(ctx, id)
	if err != nil {
		h.respondError(log, fmt.Errorf("failed to get event: %w", err), w, statusFor(err))
		return
	}

	updated, err := h.curator.SetStatus(ctx, event.SourceEventURL, status, user, notes)
	if err != nil {
		h.respondError(log, fmt.Errorf("failed to update event: %w", err), w, statusFor(err))
		return
	}

	action := "import"
	if status == domain.EventStatusInactive {
		action = "archive"
	}
	h.metrics.Curation(action)
	log.Info("event curated",
		slog.String("eventID", id.String()),
		slog.String("status", string(status)),
		slog.String("user", user),
	)

	h.respond(log, w, http.StatusOK, dto.CurationResponse{Success: true, Event: dto.MapDomainToAdminEventResponse(updated)})
}

func (h *EventHandler) eventID(log *slog.Logger, w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	eventID := chi.URLParam(r, "eventId")
	if eventID == "" {
		h.respondError(log, errors.New("empty eventId"), w, http.StatusBadRequest)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(eventID)
	if err != nil {
		h.respondError(log, fmt.Errorf("invalid eventId: %w", err), w, http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}

func (h *EventHandler) respond(log *slog.Logger, w http.ResponseWriter, status int, data any) {
	if err := utils.Json(w, status, data); err != nil {
		log.Error("error encoding response", sl.Err(err))
	}
}

func (h *EventHandler) respondError(log *slog.Logger, err error, w http.ResponseWriter, status int) {
	respondError(log, err, w, status)
}

func respondError(log *slog.Logger, err error, w http.ResponseWriter, status int) {
	if status >= http.StatusInternalServerError {
		log.Error("handler error", sl.Err(err))
	} else {
		log.Warn("handler error", sl.Err(err))
	}
	if httpErr := utils.Err(w, status, err); httpErr != nil {
		log.Error("error sending http response", sl.Err(httpErr))
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrStatusChanged):
		return http.StatusConflict
	case errors.Is(err, reconciler.ErrUnsupportedStatus):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func adminFilter(r *http.Request) (domain.EventFilter, error) {
	q := r.URL.Query()
	page, limit, err := pagination(q.Get("page"), q.Get("limit"), domain.DefaultAdminLimit)
	if err != nil {
		return domain.EventFilter{}, err
	}
	filter := domain.EventFilter{
		SourceName: q.Get("source"),
		Category:   q.Get("category"),
		City:       q.Get("city"),
		Search:     q.Get("search"),
		SortBy:     domain.SortByLastSeenDesc,
		Page:       page,
		Limit:      limit,
	}

	if raw := q.Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status := domain.EventStatus(strings.TrimSpace(s))
			if !status.Valid() {
				return domain.EventFilter{}, fmt.Errorf("invalid status filter: %s", s)
			}
			filter.Statuses = append(filter.Statuses, status)
		}
	}
	if raw := q.Get("dateFrom"); raw != "" {
		t, err := parseDate(raw, false)
		if err != nil {
			return domain.EventFilter{}, fmt.Errorf("invalid dateFrom: %w", err)
		}
		filter.DateFrom = &t
	}
	if raw := q.Get("dateTo"); raw != "" {
		t, err := parseDate(raw, true)
		if err != nil {
			return domain.EventFilter{}, fmt.Errorf("invalid dateTo: %w", err)
		}
		filter.DateTo = &t
	}
	return filter, nil
}

// parseDate accepts RFC 3339 or a bare date. A bare dateTo covers the whole day.
func parseDate(raw string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func pagination(rawPage, rawLimit string, defaultLimit int) (int, int, error) {
	page, limit := 1, defaultLimit
	if rawPage != "" {
		p, err := strconv.Atoi(rawPage)
		if err != nil || p < 1 {
			return 0, 0, fmt.Errorf("invalid page: %q", rawPage)
		}
		page = p
	}
	if rawLimit != "" {
		l, err := strconv.Atoi(rawLimit)
		if err != nil || l < 1 {
			return 0, 0, fmt.Errorf("invalid limit: %q", rawLimit)
		}
		limit = min(l, domain.MaxListLimit)
	}
	return page, limit, nil
}
