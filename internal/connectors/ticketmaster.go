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

const ticketmasterURL = "https://app.ticketmaster.com/discovery/v2/events.json"

var ticketmasterSegments = map[string]string{
	"Music":          "Music",
	"Sports":         "Sport",
	"Arts & Theatre": "Arts",
	"Film":           "Arts",
	"Miscellaneous":  "General",
	"Family":         "Family",
}

// Ticketmaster reads the Discovery API. The key goes in the apikey query parameter.
type Ticketmaster struct {
	base
	http *httpClient
}

func NewTicketmaster(logger *slog.Logger, cfg config.SourceConfig) *Ticketmaster {
	b := newBase(logger, cfg)
	return &Ticketmaster{base: b, http: newHTTPClient(b.logger, cfg)}
}

type tmResponse struct {
	Embedded *struct {
		Events []tmEvent `json:"events"`
	} `json:"_embedded"`
}

type tmEvent struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	URL        string `json:"url"`
	Info       string `json:"info"`
	PleaseNote string `json:"pleaseNote"`
	Images     []struct {
		URL   string `json:"url"`
		Ratio string `json:"ratio"`
		Width int    `json:"width"`
	} `json:"images"`
	Dates struct {
		Start struct {
			DateTime  string `json:"dateTime"`
			LocalDate string `json:"localDate"`
		} `json:"start"`
		End struct {
			DateTime string `json:"dateTime"`
		} `json:"end"`
	} `json:"dates"`
	Classifications []struct {
		Segment struct {
			Name string `json:"name"`
		} `json:"segment"`
		Genre struct {
			Name string `json:"name"`
		} `json:"genre"`
	} `json:"classifications"`
	Embedded struct {
		Venues []struct {
			Name    string `json:"name"`
			Address struct {
				Line1 string `json:"line1"`
			} `json:"address"`
			City struct {
				Name string `json:"name"`
			} `json:"city"`
			State struct {
				StateCode string `json:"stateCode"`
			} `json:"state"`
		} `json:"venues"`
	} `json:"_embedded"`
}

func (t *Ticketmaster) Fetch(ctx context.Context) ([]domain.RawEvent, error) {
	op := "Ticketmaster.Fetch()"
	log := t.logger.With(slog.String("op", op))

	key, err := t.requireKey()
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("apikey", key)
	q.Set("city", t.city("Sydney"))
	q.Set("countryCode", t.countryCode())
	q.Set("size", strconv.Itoa(t.pageSize()))
	q.Set("sort", "date,asc")
	q.Set("startDateTime", t.now().UTC().Format("2006-01-02T15:04:05Z"))

	var resp tmResponse
	if err := t.http.getJSON(ctx, firstNonEmpty(t.cfg.BaseURL, ticketmasterURL), q, http.Header{}, &resp); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if resp.Embedded == nil {
		log.Info("source returned no events")
		return []domain.RawEvent{}, nil
	}

	events := make([]domain.RawEvent, 0, len(resp.Embedded.Events))
	for _, ev := range resp.Embedded.Events {
		raw, ok := t.toRaw(ev)
		if !ok {
			continue
		}
		events = append(events, raw)
	}

	log.Info("events fetched", slog.Int("received", len(resp.Embedded.Events)), slog.Int("kept", len(events)))
	return events, nil
}

func (t *Ticketmaster) toRaw(ev tmEvent) (domain.RawEvent, bool) {
	title := firstNonEmpty(ev.Name)
	if title == "" {
		return domain.RawEvent{}, false
	}
	eventURL := ev.URL
	if eventURL == "" && ev.ID != "" {
		eventURL = "https://www.ticketmaster.com.au/event/" + ev.ID
	}
	if eventURL == "" {
		return domain.RawEvent{}, false
	}

	var venueName, venueAddress, venueCity string
	if len(ev.Embedded.Venues) > 0 {
		v := ev.Embedded.Venues[0]
		venueName = v.Name
		venueAddress = joinNonEmpty(", ", v.Address.Line1, v.City.Name, v.State.StateCode)
		venueCity = v.City.Name
	}
	venueName = firstNonEmpty(venueName, DefaultVenueName)
	venueAddress = firstNonEmpty(venueAddress, DefaultVenueAddress)

	var image string
	for _, img := range ev.Images {
		if img.Ratio == "16_9" && img.Width > 500 {
			image = img.URL
			break
		}
	}
	if image == "" && len(ev.Images) > 0 {
		image = ev.Images[0].URL
	}

	description := firstNonEmpty(HTMLToText(ev.Info), HTMLToText(ev.PleaseNote), title+" at "+venueName)

	return domain.RawEvent{
		Title:        title,
		Description:  description,
		StartDate:    parseTime(firstNonEmpty(ev.Dates.Start.DateTime, ev.Dates.Start.LocalDate)),
		EndDate:      parseTimePtr(ev.Dates.End.DateTime),
		VenueName:    venueName,
		VenueAddress: venueAddress,
		VenueCity:    venueCity,
		Categories:   []string{ticketmasterCategory(ev)},
		ImageURL:     image,
		EventURL:     eventURL,
		SourceName:   t.Name(),
	}, true
}

func ticketmasterCategory(ev tmEvent) string {
	if len(ev.Classifications) == 0 {
		return "General"
	}
	seg := ev.Classifications[0].Segment.Name
	if c, ok := ticketmasterSegments[seg]; ok {
		return c
	}
	return firstNonEmpty(ev.Classifications[0].Genre.Name, seg, "General")
}
