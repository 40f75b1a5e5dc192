package connectors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"eventsCatalog/internal/config"
	"eventsCatalog/internal/models/domain"
)

const (
	meetupURL      = "https://api.meetup.com/gql"
	meetupTokenURL = "https://secure.meetup.com/oauth2/access"
	meetupQuery    = "technology community"
	meetupLat      = -33.8688
	meetupLon      = 151.2093
	meetupRadius   = 30 // miles
)

const meetupSearch = `query {
  keywordSearch(
    filter: {query: %s, lat: %g, lon: %g, radius: %d, source: EVENTS, startDateRange: %s}
    input: {first: %d}
  ) {
    edges {
      node {
        result {
          ... on Event {
            id title description dateTime endTime eventUrl imageUrl
            venue { name address city state }
            group { name urlname }
          }
        }
      }
    }
  }
}`

// Meetup searches the Meetup GraphQL API. The access token comes from an OAuth
// client-credentials exchange with apiKey/apiSecret and is reused until it expires.
type Meetup struct {
	base
	http *httpClient

	mu      sync.Mutex
	token   string
	expires time.Time
}

func NewMeetup(logger *slog.Logger, cfg config.SourceConfig) *Meetup {
	b := newBase(logger, cfg)
	return &Meetup{base: b, http: newHTTPClient(b.logger, cfg)}
}

type meetupTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type meetupResponse struct {
	Data *struct {
		KeywordSearch *struct {
			Edges []struct {
				Node struct {
					Result meetupEvent `json:"result"`
				} `json:"node"`
			} `json:"edges"`
		} `json:"keywordSearch"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type meetupEvent struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	DateTime    string `json:"dateTime"`
	EndTime     string `json:"endTime"`
	EventURL    string `json:"eventUrl"`
	ImageURL    string `json:"imageUrl"`
	Venue       *struct {
		Name    string `json:"name"`
		Address string `json:"address"`
		City    string `json:"city"`
		State   string `json:"state"`
	} `json:"venue"`
	Group *struct {
		Name    string `json:"name"`
		URLName string `json:"urlname"`
	} `json:"group"`
}

func (m *Meetup) Fetch(ctx context.Context) ([]domain.RawEvent, error) {
	op := "Meetup.Fetch()"
	log := m.logger.With(slog.String("op", op))

	token, err := m.accessToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	body, err := m.searchBody(m.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)

	var resp meetupResponse
	if err := m.http.postJSON(ctx, firstNonEmpty(m.cfg.BaseURL, meetupURL), "application/json", body, h, &resp); err != nil {
		if errors.Is(err, ErrAuth) {
			m.dropToken()
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("%s: %w: %s", op, ErrMalformedResponse, resp.Errors[0].Message)
	}
	if resp.Data == nil || resp.Data.KeywordSearch == nil {
		return nil, fmt.Errorf("%s: %w: no keywordSearch field", op, ErrMalformedResponse)
	}

	edges := resp.Data.KeywordSearch.Edges
	events := make([]domain.RawEvent, 0, len(edges))
	for _, edge := range edges {
		ev := edge.Node.Result
		title := firstNonEmpty(ev.Title)
		if title == "" {
			continue
		}

		var venueName, venueAddress string
		if ev.Venue != nil {
			venueName = ev.Venue.Name
			venueAddress = joinNonEmpty(", ", ev.Venue.Address, ev.Venue.City, ev.Venue.State)
		}
		if venueName == "" && ev.Group != nil {
			venueName = ev.Group.Name
		}
		eventURL := ev.EventURL
		if eventURL == "" && ev.Group != nil && ev.Group.URLName != "" && ev.ID != "" {
			eventURL = "https://www.meetup.com/" + ev.Group.URLName + "/events/" + ev.ID + "/"
		}

		events = append(events, domain.RawEvent{
			Title:        title,
			Description:  firstNonEmpty(HTMLToText(ev.Description), title+" (Meetup event in "+m.city("Sydney")+")"),
			StartDate:    parseTime(ev.DateTime),
			EndDate:      parseTimePtr(ev.EndTime),
			VenueName:    firstNonEmpty(venueName, DefaultVenueName),
			VenueAddress: firstNonEmpty(venueAddress, DefaultVenueAddress),
			Categories:   []string{"Technology"},
			ImageURL:     ev.ImageURL,
			EventURL:     eventURL,
			SourceName:   m.Name(),
		})
	}

	log.Info("events fetched", slog.Int("received", len(edges)), slog.Int("kept", len(events)))
	return events, nil
}

func (m *Meetup) searchBody(now time.Time) ([]byte, error) {
	query, err := json.Marshal(firstNonEmpty(m.cfg.Query, meetupQuery))
	if err != nil {
		return nil, err
	}
	from, err := json.Marshal(now.Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	gql := fmt.Sprintf(meetupSearch, query, meetupLat, meetupLon, meetupRadius, from, m.pageSize())
	return json.Marshal(map[string]string{"query": gql})
}

// accessToken returns the cached token or exchanges the client credentials for a new one.
func (m *Meetup) accessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" && m.now().Before(m.expires) {
		return m.token, nil
	}

	id, err := m.requireKey()
	if err != nil {
		return "", err
	}
	secret := m.cfg.ResolveAPISecret()
	if secret == "" {
		return "", fmt.Errorf("%s: api secret missing: %w", m.cfg.Name, ErrNotConfigured)
	}

	form := url.Values{}
	form.Set("client_id", id)
	form.Set("client_secret", secret)
	form.Set("grant_type", "client_credentials")

	var resp meetupTokenResponse
	if err := m.http.postJSON(ctx, firstNonEmpty(m.cfg.TokenURL, meetupTokenURL), "application/x-www-form-urlencoded", []byte(form.Encode()), nil, &resp); err != nil {
		return "", err
	}
	if strings.TrimSpace(resp.AccessToken) == "" {
		return "", fmt.Errorf("%w: no access token returned", ErrAuth)
	}

	ttl := time.Duration(resp.ExpiresIn) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	m.token = resp.AccessToken
	// renew a minute early
	m.expires = m.now().Add(ttl - time.Minute)
	return m.token, nil
}

func (m *Meetup) dropToken() {
	m.mu.Lock()
	m.token = ""
	m.mu.Unlock()
}
