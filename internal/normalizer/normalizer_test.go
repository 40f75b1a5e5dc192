package normalizer

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"eventsCatalog/internal/models/domain"
)

func TestNormalizeTrimsAndDefaults(t *testing.T) {
	n := New("")
	start := time.Date(2026, 3, 1, 19, 30, 15, 123456789, time.FixedZone("AEDT", 11*3600))

	got := n.Normalize(domain.RawEvent{
		Title:        "  Jazz Night \n",
		Description:  "  Live music at the harbour.  ",
		StartDate:    start,
		VenueName:    " Opera House ",
		VenueAddress: " Bennelong Point ",
		Categories:   []string{" Music", "music", "", "Arts "},
		ImageURL:     " https://img.example/1.jpg ",
		EventURL:     " https://tickets.example/e/1 ",
		SourceName:   " Ticketmaster ",
	})

	if got.Title != "Jazz Night" {
		t.Errorf("title = %q", got.Title)
	}
	if got.Description != "Live music at the harbour." {
		t.Errorf("description = %q", got.Description)
	}
	if got.ShortSummary != got.Description {
		t.Errorf("summary should fall back to description, got %q", got.ShortSummary)
	}
	if got.Venue.City != DefaultCity {
		t.Errorf("city = %q", got.Venue.City)
	}
	if got.Venue.Name != "Opera House" || got.Venue.Address != "Bennelong Point" {
		t.Errorf("venue = %+v", got.Venue)
	}
	if !reflect.DeepEqual(got.Categories, []string{"Arts", "Music"}) {
		t.Errorf("categories = %v", got.Categories)
	}
	if got.SourceEventURL != "https://tickets.example/e/1" || got.SourceName != "Ticketmaster" {
		t.Errorf("source = %q %q", got.SourceName, got.SourceEventURL)
	}
	if got.ImageURL != "https://img.example/1.jpg" {
		t.Errorf("image = %q", got.ImageURL)
	}
	want := time.Date(2026, 3, 1, 8, 30, 15, 0, time.UTC)
	if !got.Start.Equal(want) || got.Start.Location() != time.UTC {
		t.Errorf("start = %v, want %v", got.Start, want)
	}
	if got.End != nil {
		t.Errorf("end = %v, want nil", got.End)
	}
}

func TestNormalizeKeepsExplicitSummaryAndCity(t *testing.T) {
	n := New("Melbourne")
	got := n.Normalize(domain.RawEvent{
		Title:        "t",
		Description:  "long description",
		ShortSummary: "  short  ",
		VenueCity:    "Newcastle",
	})
	if got.ShortSummary != "short" {
		t.Errorf("summary = %q", got.ShortSummary)
	}
	if got.Venue.City != "Newcastle" {
		t.Errorf("city = %q", got.Venue.City)
	}

	got = n.Normalize(domain.RawEvent{Title: "t"})
	if got.Venue.City != "Melbourne" {
		t.Errorf("default city = %q", got.Venue.City)
	}
}

func TestNormalizeTruncation(t *testing.T) {
	n := New("")
	long := strings.Repeat("é", 2500)

	got := n.Normalize(domain.RawEvent{Description: long, ShortSummary: strings.Repeat("ж", 300)})

	if c := len([]rune(got.Description)); c != MaxDescriptionLen {
		t.Errorf("description runes = %d", c)
	}
	if c := len([]rune(got.ShortSummary)); c != MaxSummaryLen {
		t.Errorf("summary runes = %d", c)
	}

	got = n.Normalize(domain.RawEvent{Description: long})
	if c := len([]rune(got.ShortSummary)); c != MaxSummaryLen {
		t.Errorf("fallback summary runes = %d", c)
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	n := New("Sydney")
	end := time.Date(2026, 5, 2, 23, 0, 0, 0, time.UTC)
	raw := domain.RawEvent{
		Title:      "Festival",
		StartDate:  time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		EndDate:    &end,
		Categories: []string{"b", "a", "c"},
		EventURL:   "u",
		SourceName: "s",
	}

	first := n.Normalize(raw)
	second := n.Normalize(raw)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("not deterministic:\n%+v\n%+v", first, second)
	}
	if first.End == &end {
		t.Error("end pointer aliases the input")
	}
}

func TestValidate(t *testing.T) {
	valid := domain.NormalizedEvent{
		EventContent:   domain.EventContent{Title: "t", Start: time.Now()},
		SourceName:     "s",
		SourceEventURL: "u",
	}

	tests := []struct {
		name    string
		mutate  func(*domain.NormalizedEvent)
		wantErr bool
	}{
		{"valid", func(*domain.NormalizedEvent) {}, false},
		{"no url", func(e *domain.NormalizedEvent) { e.SourceEventURL = "" }, true},
		{"no title", func(e *domain.NormalizedEvent) { e.Title = "" }, true},
		{"no start", func(e *domain.NormalizedEvent) { e.Start = time.Time{} }, true},
		{"no source", func(e *domain.NormalizedEvent) { e.SourceName = "" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := valid
			tt.mutate(&ev)
			err := Validate(ev)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidEvent) {
				t.Fatalf("err = %v, want ErrInvalidEvent", err)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 3, "hel"},
		{"привет", 2, "пр"},
		{"abc", 0, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
