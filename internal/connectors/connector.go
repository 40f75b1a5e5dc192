package connectors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"eventsCatalog/internal/config"
	"eventsCatalog/internal/models/domain"
)

// Fetch failures are classified into these kinds. Any of them means the listing is
// incomplete and must not drive retirement.
var (
	ErrTimeout           = errors.New("source timed out")
	ErrAuth              = errors.New("source rejected credentials")
	ErrMalformedResponse = errors.New("source returned a malformed response")
	ErrNetwork           = errors.New("source unreachable")
	ErrNotConfigured     = errors.New("source not configured")
	ErrUnknownType       = errors.New("unknown source type")
)

// Defaults used when a listing omits its venue.
const (
	DefaultVenueName    = "Sydney Venue"
	DefaultVenueAddress = "Sydney, NSW, Australia"
	defaultPageSize     = 50
)

// Connector fetches the full current listing of one source.
type Connector interface {
	Name() string
	Fetch(ctx context.Context) ([]domain.RawEvent, error)
}

// NewFromConfig builds a connector for one configured source.
func NewFromConfig(logger *slog.Logger, c config.SourceConfig) (Connector, error) {
	switch strings.ToLower(c.Type) {
	case "ticketmaster":
		return NewTicketmaster(logger, c), nil
	case "eventbrite":
		return NewEventbrite(logger, c), nil
	case "humanitix":
		return NewHumanitix(logger, c), nil
	case "predicthq":
		return NewPredictHQ(logger, c), nil
	case "meetup":
		return NewMeetup(logger, c), nil
	case "mec":
		return NewMEC(logger, c), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, c.Type)
	}
}

// Registry holds connectors by source name.
type Registry struct {
	connectors map[string]Connector
}

func NewRegistry(connectors ...Connector) *Registry {
	r := &Registry{connectors: make(map[string]Connector, len(connectors))}
	for _, c := range connectors {
		r.Register(c)
	}
	return r
}

// NewRegistryFromConfig builds a connector for every enabled source.
func NewRegistryFromConfig(logger *slog.Logger, sources []config.SourceConfig) (*Registry, error) {
	op := "connectors.NewRegistryFromConfig()"

	r := NewRegistry()
	for _, s := range sources {
		if !s.IsEnabled() {
			continue
		}
		c, err := NewFromConfig(logger, s)
		if err != nil {
			return nil, fmt.Errorf("%s: source %q: %w", op, s.Name, err)
		}
		r.Register(c)
	}
	return r, nil
}

// Register adds c, replacing any connector with the same name.
func (r *Registry) Register(c Connector) {
	r.connectors[c.Name()] = c
}

func (r *Registry) Get(name string) (Connector, bool) {
	c, ok := r.connectors[name]
	return c, ok
}

// Names returns the registered source names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.connectors))
	for n := range r.connectors {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// All returns the connectors ordered by name.
func (r *Registry) All() []Connector {
	names := r.Names()
	res := make([]Connector, 0, len(names))
	for _, n := range names {
		res = append(res, r.connectors[n])
	}
	return res
}

func (r *Registry) Len() int {
	return len(r.connectors)
}

// base carries what every connector shares.
type base struct {
	logger *slog.Logger
	cfg    config.SourceConfig
	now    func() time.Time
}

func newBase(logger *slog.Logger, cfg config.SourceConfig) base {
	return base{
		logger: logger.With(slog.String("source", cfg.Name)),
		cfg:    cfg,
		now:    time.Now,
	}
}

func (b base) Name() string {
	return b.cfg.Name
}

func (b base) pageSize() int {
	if b.cfg.PageSize > 0 {
		return b.cfg.PageSize
	}
	return defaultPageSize
}

func (b base) city(def string) string {
	if b.cfg.City != "" {
		return b.cfg.City
	}
	return def
}

func (b base) countryCode() string {
	if b.cfg.CountryCode != "" {
		return b.cfg.CountryCode
	}
	return "AU"
}

// requireKey resolves the API key or reports the source as not configured.
func (b base) requireKey() (string, error) {
	key := b.cfg.ResolveAPIKey()
	if key == "" {
		return "", fmt.Errorf("%s: api key missing: %w", b.cfg.Name, ErrNotConfigured)
	}
	return key, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}

func joinNonEmpty(sep string, values ...string) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, sep)
}

// parseTime accepts RFC3339 and a couple of date-only layouts. Zero on failure.
func parseTime(s string) time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04Z07:00", "2006-01-02T15:04:05", "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}

func parseTimePtr(s string) *time.Time {
	t := parseTime(s)
	if t.IsZero() {
		return nil
	}
	return &t
}
