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

const eventbriteURL = "https://www.eventbriteapi.com/v3/events/search/"

// Eventbrite reads the Eventbrite search API with a bearer token.
type Eventbrite struct {
	base
	http *httpClient
}

func NewEventbrite(logger *slog.Logger, cfg config.SourceConfig) *Eventbrite {
	b := newBase(logger, cfg)
	return &Eventbrite{base: b, http: newHTTPClient(b.logger, cfg)}
}

type ebResponse struct {
	Events []ebEvent `json:"events"`
}

type ebEvent struct {
	Name struct {
		Text string `json:"text"`
	} `json:"name"`
	Description struct {
		Text string `json:"text"`
		HTML string `json:"html"`
	} `json:"description"`
	Summary string `json:"summary"`
	URL     string `json:"url"`
	Start   struct {
		UTC string `json:"utc"`
	} `json:"start"`
	End struct {
		UTC string `json:"utc"`
	} `json:"end"`
	Venue *struct {
		Name    string `json:"name"`
		Address struct {
			City                    string `json:"city"`
			LocalizedAddressDisplay string `json:"localized_address_display"`
		} `json:"address"`
	} `json:"venue"`
	Category *struct {
		Name string `json:"name"`
	} `json:"category"`
	Logo *struct {
		URL string `json:"url"`
	} `json:"logo"`
}

func (e *Eventbrite) Fetch(ctx context.Context) ([]domain.RawEvent, error) {
	op := "Eventbrite.Fetch()"
	log := e.logger.With(slog.String("op", op))

	token, err := e.requireKey()
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("location.address", e.city("Sydney")+", NSW, Australia")
	q.Set("location.within", "30km")
	q.Set("expand", "venue,category")
	q.Set("sort_by", "date")
	q.Set("page_size", strconv.Itoa(e.pageSize()))
	q.Set("start_date.range_start", e.now().UTC().Format("2006-01-02T15:04:05Z"))

	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)

	var resp ebResponse
	if err := e.http.getJSON(ctx, firstNonEmpty(e.cfg.BaseURL, eventbriteURL), q, h, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if resp.Events == nil {
		return nil, fmt.Errorf("%s: %w: no events field", op, ErrMalformedResponse)
	}

	events := make([]domain.RawEvent, 0, len(resp.Events))
	for _, ev := range resp.Events {
		title := firstNonEmpty(ev.Name.Text)
		if title == "" {
			continue
		}
		raw := domain.RawEvent{
			Title:        title,
			Description:  firstNonEmpty(ev.Description.Text, HTMLToText(ev.Description.HTML), ev.Summary, title),
			ShortSummary: ev.Summary,
			StartDate:    parseTime(ev.Start.UTC),
			EndDate:      parseTimePtr(ev.End.UTC),
			VenueName:    DefaultVenueName,
			VenueAddress: DefaultVenueAddress,
			Categories:   []string{"General"},
			EventURL:     ev.URL,
			SourceName:   e.Name(),
		}
		if ev.Venue != nil {
			raw.VenueName = firstNonEmpty(ev.Venue.Name, DefaultVenueName)
			raw.VenueAddress = firstNonEmpty(ev.Venue.Address.LocalizedAddressDisplay, DefaultVenueAddress)
			raw.VenueCity = ev.Venue.Address.City
		}
		if ev.Category != nil && ev.Category.Name != "" {
			raw.Categories = []string{ev.Category.Name}
		}
		if ev.Logo != nil {
			raw.ImageURL = ev.Logo.URL
		}
		events = append(events, raw)
	}

	log.Info("events fetched", slog.Int("received", len(resp.Events)), slog.Int("kept", len(events)))
	return events, nil
}
