// Package normalizer maps connector output onto the canonical event shape.
// Everything here is pure: no I/O, no clock, same input gives the same output.
package normalizer

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"eventsCatalog/internal/models/domain"
)

const (
	MaxDescriptionLen = 2000
	MaxSummaryLen     = 200

	DefaultCity = "Sydney"
)

var ErrInvalidEvent = errors.New("invalid event")

type Normalizer struct {
	defaultCity string
}

func New(defaultCity string) *Normalizer {
	if strings.TrimSpace(defaultCity) == "" {
		defaultCity = DefaultCity
	}
	return &Normalizer{defaultCity: strings.TrimSpace(defaultCity)}
}

// Normalize never fails. Malformed input passes through best-effort and is caught by Validate.
func (n *Normalizer) Normalize(raw domain.RawEvent) domain.NormalizedEvent {
	description := Truncate(strings.TrimSpace(raw.Description), MaxDescriptionLen)

	summary := strings.TrimSpace(raw.ShortSummary)
	if summary == "" {
		summary = strings.TrimSpace(Truncate(description, MaxSummaryLen))
	}
	summary = Truncate(summary, MaxSummaryLen)

	city := strings.TrimSpace(raw.VenueCity)
	if city == "" {
		city = n.defaultCity
	}

	var end *time.Time
	if raw.EndDate != nil && !raw.EndDate.IsZero() {
		e := canonicalTime(*raw.EndDate)
		end = &e
	}

	var start time.Time
	if !raw.StartDate.IsZero() {
		start = canonicalTime(raw.StartDate)
	}

	return domain.NormalizedEvent{
		EventContent: domain.EventContent{
			Title:        strings.TrimSpace(raw.Title),
			Description:  description,
			ShortSummary: summary,
			Start:        start,
			End:          end,
			Venue: domain.Venue{
				Name:    strings.TrimSpace(raw.VenueName),
				Address: strings.TrimSpace(raw.VenueAddress),
				City:    city,
			},
			Categories: Categories(raw.Categories),
			ImageURL:   strings.TrimSpace(raw.ImageURL),
		},
		SourceName:     strings.TrimSpace(raw.SourceName),
		SourceEventURL: strings.TrimSpace(raw.EventURL),
	}
}

func (n *Normalizer) NormalizeAll(raws []domain.RawEvent) []domain.NormalizedEvent {
	res := make([]domain.NormalizedEvent, 0, len(raws))
	for _, r := range raws {
		res = append(res, n.Normalize(r))
	}
	return res
}

// Validate reports the required fields a normalized event is missing.
func Validate(ev domain.NormalizedEvent) error {
	var missing []string
	if ev.SourceEventURL == "" {
		missing = append(missing, "sourceEventUrl")
	}
	if ev.Title == "" {
		missing = append(missing, "title")
	}
	if ev.Start.IsZero() {
		missing = append(missing, "start")
	}
	if ev.SourceName == "" {
		missing = append(missing, "sourceName")
	}
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: missing %s", ErrInvalidEvent, strings.Join(missing, ", "))
}

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	i := 0
	for pos := range s {
		if i == max {
			return s[:pos]
		}
		i++
	}
	return s
}

// Categories returns a sorted set: trimmed, empties dropped, case-insensitive duplicates folded to the first spelling.
func Categories(in []string) []string {
	if len(in) == 0 {
		return []string{}
	}
	seen := make(map[string]struct{}, len(in))
	res := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		k := strings.ToLower(c)
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		res = append(res, c)
	}
	sort.Strings(res)
	return res
}

// canonicalTime drops sub-second precision and the zone so stored and incoming values compare equal.
func canonicalTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
