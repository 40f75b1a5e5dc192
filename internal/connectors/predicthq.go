package connectors

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"eventsCatalog/internal/config"
	"eventsCatalog/internal/models/domain"
)

const (
	predicthqURL    = "https://api.predicthq.com/v1/events/"
	predicthqWithin = "30km@-33.8688,151.2093"
	predicthqWindow = 90 * 24 // hours
)

var predicthqCategories = map[string]string{
	"concerts":        "Music",
	"festivals":       "Festival",
	"sports":          "Sport",
	"community":       "Community",
	"conferences":     "Technology",
	"expos":           "Technology",
	"performing_arts": "Arts",
	"school_holidays": "Family",
}

// PredictHQ reads the PredictHQ events search with a bearer token. It has no images.
type PredictHQ struct {
	base
	http *httpClient
}

func NewPredictHQ(logger *slog.Logger, cfg config.SourceConfig) *PredictHQ {
	b := newBase(logger, cfg)
	return &PredictHQ{base: b, http: newHTTPClient(b.logger, cfg)}
}

type phqResponse struct {
	Results *[]phqEvent `json:"results"`
}

type phqEvent struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Start       string    `json:"start"`
	End         string    `json:"end"`
	Location    []float64 `json:"location"` // [lng, lat]
	Entities    []struct {
		Type string `json:"type"`
		Name string `json:"name"`
		URL  string `json:"url"`
	} `json:"entities"`
}

func (p *PredictHQ) Fetch(ctx context.Context) ([]domain.RawEvent, error) {
	op := "PredictHQ.Fetch()"
	log := p.logger.With(slog.String("op", op))

	token, err := p.requireKey()
	if err != nil {
		return nil, err
	}

	now := p.now().UTC()
	q := url.Values{}
	q.Set("within", predicthqWithin)
	q.Set("active.gte", now.Format("2006-01-02"))
	q.Set("active.lte", now.Add(predicthqWindow*time.Hour).Format("2006-01-02"))
	q.Set("category", "concerts,festivals,sports,community,conferences,expos,performing_arts")
	q.Set("country", p.countryCode())
	q.Set("sort", "start")
	q.Set("limit", strconv.Itoa(p.pageSize()))

	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)

	var resp phqResponse
	if err := p.http.getJSON(ctx, firstNonEmpty(p.cfg.BaseURL, predicthqURL), q, h, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if resp.Results == nil {
		return nil, fmt.Errorf("%s: %w: no results field", op, ErrMalformedResponse)
	}

	events := make([]domain.RawEvent, 0, len(*resp.Results))
	for _, ev := range *resp.Results {
		title := firstNonEmpty(ev.Title)
		if title == "" {
			continue
		}

		venueName, organizerURL := "", ""
		for _, e := range ev.Entities {
			switch e.Type {
			case "venue":
				if venueName == "" {
					venueName = e.Name
				}
			case "organizer":
				if organizerURL == "" {
					organizerURL = e.URL
				}
			}
		}
		address := DefaultVenueAddress
		if len(ev.Location) == 2 {
			address = fmt.Sprintf("%.4f, %.4f", ev.Location[1], ev.Location[0])
		}
		eventURL := organizerURL
		if eventURL == "" && ev.ID != "" {
			eventURL = "https://predicthq.com/events/" + ev.ID
		}
		category, ok := predicthqCategories[ev.Category]
		if !ok {
			category = "General"
		}

		events = append(events, domain.RawEvent{
			Title:        title,
			Description:  firstNonEmpty(ev.Description, fmt.Sprintf("%s (%s event in %s)", title, ev.Category, p.city("Sydney"))),
			StartDate:    parseTime(ev.Start),
			EndDate:      parseTimePtr(ev.End),
			VenueName:    firstNonEmpty(venueName, DefaultVenueName),
			VenueAddress: address,
			Categories:   []string{category},
			EventURL:     eventURL,
			SourceName:   p.Name(),
		})
	}

	log.Info("events fetched", slog.Int("received", len(*resp.Results)), slog.Int("kept", len(events)))
	return events, nil
}
