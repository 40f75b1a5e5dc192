package connectors

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"

	"eventsCatalog/internal/config"
	"eventsCatalog/internal/models/domain"
)

const humanitixURL = "https://developers.humanitix.com/api/v1/events"

// Humanitix reads the public Humanitix API. The key goes in the x-api-key header.
type Humanitix struct {
	base
	http *httpClient
}

func NewHumanitix(logger *slog.Logger, cfg config.SourceConfig) *Humanitix {
	b := newBase(logger, cfg)
	return &Humanitix{base: b, http: newHTTPClient(b.logger, cfg)}
}

// The API has answered with both envelopes over time.
type hxResponse struct {
	Events *[]hxEvent `json:"events"`
	Data   *[]hxEvent `json:"data"`
}

type hxPlace struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
}

type hxEvent struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Link        string `json:"link"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	Summary     string `json:"summary"`
	ImageURL    string `json:"imageUrl"`
	Image       *struct {
		URL string `json:"url"`
	} `json:"image"`
	StartDate string   `json:"startDate"`
	EndDate   string   `json:"endDate"`
	Venue     *hxPlace `json:"venue"`
	Location  *hxPlace `json:"location"`
	Category  string   `json:"category"`
}

func (h *Humanitix) Fetch(ctx context.Context) ([]domain.RawEvent, error) {
	op := "Humanitix.Fetch()"
	log := h.logger.With(slog.String("op", op))

	key, err := h.requireKey()
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("city", h.city("Sydney"))
	q.Set("country", h.countryCode())
	q.Set("status", "published")
	q.Set("limit", strconv.Itoa(h.pageSize()))
	q.Set("sort", "startDate")

	hdr := http.Header{}
	hdr.Set("x-api-key", key)

	var resp hxResponse
	if err := h.http.getJSON(ctx, firstNonEmpty(h.cfg.BaseURL, humanitixURL), q, hdr, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	var list []hxEvent
	switch {
	case resp.Events != nil:
		list = *resp.Events
	case resp.Data != nil:
		list = *resp.Data
	default:
		return nil, fmt.Errorf("%s: %w: neither events nor data present", op, ErrMalformedResponse)
	}

	events := make([]domain.RawEvent, 0, len(list))
	for _, ev := range list {
		title := firstNonEmpty(ev.Name, ev.Title)
		if title == "" {
			continue
		}
		eventURL := firstNonEmpty(ev.URL, ev.Link)
		if eventURL == "" && ev.Slug != "" {
			eventURL = "https://humanitix.com/au/" + ev.Slug
		}

		raw := domain.RawEvent{
			Title:        title,
			Description:  firstNonEmpty(HTMLToText(ev.Description), HTMLToText(ev.Summary), title),
			StartDate:    parseTime(ev.StartDate),
			EndDate:      parseTimePtr(ev.EndDate),
			VenueName:    DefaultVenueName,
			VenueAddress: DefaultVenueAddress,
			Categories:   []string{firstNonEmpty(ev.Category, "Community")},
			ImageURL:     ev.ImageURL,
			EventURL:     eventURL,
			SourceName:   h.Name(),
		}
		if raw.ImageURL == "" && ev.Image != nil {
			raw.ImageURL = ev.Image.URL
		}
		if p := firstPlace(ev.Venue, ev.Location); p != nil {
			raw.VenueName = firstNonEmpty(p.Name, DefaultVenueName)
			raw.VenueAddress = firstNonEmpty(p.Address, DefaultVenueAddress)
			raw.VenueCity = p.City
		}
		events = append(events, raw)
	}

	log.Info("events fetched", slog.Int("received", len(list)), slog.Int("kept", len(events)))
	return events, nil
}

func firstPlace(places ...*hxPlace) *hxPlace {
	for _, p := range places {
		if p != nil && (p.Name != "" || p.Address != "") {
			return p
		}
	}
	return nil
}
