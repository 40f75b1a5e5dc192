package handlers

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"eventsCatalog/internal/config"
	"eventsCatalog/internal/models/domain"
	"eventsCatalog/internal/orchestrator"
	"eventsCatalog/internal/transport/httpServer/handlers/dto"
	"eventsCatalog/internal/utils"
	"eventsCatalog/internal/utils/logger/sl"
)

type ScrapeHandler struct {
	runner Runner
	log    *slog.Logger
}

func NewScrapeHandler(log *slog.Logger, runner Runner) *ScrapeHandler {
	return &ScrapeHandler{
		runner: runner,
		log:    log,
	}
}

// Trigger handles GET|POST /api/v1/scrape[?source=name]. It blocks until the run ends.
func (h *ScrapeHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	op := "httpServer.handlers.ScrapeHandler.Trigger()"
	source := r.URL.Query().Get("source")
	log := h.log.With(
		slog.String("op", op),
		slog.String("source", source),
	)

	var (
		summary domain.RunSummary
		err     error
	)
	if source == "" {
		summary, err = h.runner.RunAll(r.Context())
	} else {
		summary, err = h.runner.RunSource(r.Context(), source)
	}

	switch {
	case errors.Is(err, orchestrator.ErrSourceBusy):
		respondError(log, err, w, http.StatusConflict)
		return
	case errors.Is(err, orchestrator.ErrUnknownSource), errors.Is(err, config.ErrNoSources):
		respondError(log, err, w, http.StatusNotFound)
		return
	case err != nil:
		respondError(log, fmt.Errorf("run failed: %w", err), w, http.StatusInternalServerError)
		return
	}

	resp := dto.MapRunSummary(summary)
	log.Info("run triggered over http",
		slog.String("runID", summary.RunID.String()),
		slog.Bool("success", resp.Success),
	)
	if err := utils.Json(w, http.StatusOK, resp); err != nil {
		log.Error("error encoding response", sl.Err(err))
	}
}
