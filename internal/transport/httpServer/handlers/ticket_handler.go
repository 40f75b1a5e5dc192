package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"eventsCatalog/internal/models/domain"
	"eventsCatalog/internal/transport/httpServer/handlers/dto"
	"eventsCatalog/internal/utils"
	"eventsCatalog/internal/utils/logger/sl"

	"github.com/google/uuid"
)

type TicketHandler struct {
	repository EventRepository
	log        *slog.Logger
}

func NewTicketHandler(log *slog.Logger, repo EventRepository) *TicketHandler {
	return &TicketHandler{
		repository: repo,
		log:        log,
	}
}

// CreateLead handles POST /api/v1/tickets. A repeated (email, event) pair is not an error.
func (h *TicketHandler) CreateLead(w http.ResponseWriter, r *http.Request) {
	op := "httpServer.handlers.TicketHandler.CreateLead()"
	log := h.log.With(slog.String("op", op))

	var req dto.TicketLeadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(log, fmt.Errorf("cannot decode json: %w", err), w, http.StatusBadRequest)
		return
	}

	lead, err := leadFromRequest(req)
	if err != nil {
		respondError(log, err, w, http.StatusBadRequest)
		return
	}

	_, err = h.repository.CreateLead(r.Context(), lead)
	switch {
	case errors.Is(err, domain.ErrDuplicateKey):
		h.respond(log, w, dto.TicketLeadResponse{Success: true, AlreadyRegistered: true})
		return
	case errors.Is(err, domain.ErrNotFound):
		respondError(log, fmt.Errorf("event %s: %w", lead.EventID, domain.ErrNotFound), w, http.StatusNotFound)
		return
	case err != nil:
		respondError(log, fmt.Errorf("failed to store lead: %w", err), w, http.StatusInternalServerError)
		return
	}

	log.Info("ticket lead stored", slog.String("eventID", lead.EventID.String()))
	h.respond(log, w, dto.TicketLeadResponse{Success: true})
}

func (h *TicketHandler) respond(log *slog.Logger, w http.ResponseWriter, data any) {
	if err := utils.Json(w, http.StatusOK, data); err != nil {
		log.Error("error encoding response", sl.Err(err))
	}
}

func leadFromRequest(req dto.TicketLeadRequest) (domain.TicketLead, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.EventID == uuid.Nil || strings.TrimSpace(req.EventURL) == "" {
		return domain.TicketLead{}, fmt.Errorf("email, eventId and eventUrl are required: %w", domain.ErrInvalidLead)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndex(email, "@")+1:], ".") {
		return domain.TicketLead{}, fmt.Errorf("invalid email address: %w", domain.ErrInvalidLead)
	}

	consent := true
	if req.Consent != nil {
		consent = *req.Consent
	}
	return domain.TicketLead{
		ID:        uuid.New(),
		Email:     email,
		EventID:   req.EventID,
		EventURL:  strings.TrimSpace(req.EventURL),
		Consent:   consent,
		CreatedAt: time.Now().UTC(),
	}, nil
}
