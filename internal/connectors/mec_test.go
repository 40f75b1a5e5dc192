package connectors

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"eventsCatalog/internal/config"
	"eventsCatalog/internal/utils/logger/sl"

	"github.com/PuerkitoBio/goquery"
)

func doc(t *testing.T, html string) *goquery.Document {
	t.Helper()
	d, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse html: %v", err)
	}
	return d
}

func TestParseMECListing(t *testing.T) {
	base, _ := url.Parse("https://club.example/events/")
	d := doc(t, `<html><body>
		<article class="mec-event-article"><a class="mec-color-hover" href="/event/a/">A</a></article>
		<article class="mec-event-article"><a class="mec-color-hover" href="https://club.example/event/b/#tickets">B</a></article>
		<article class="mec-event-article"><a class="mec-color-hover" href="/event/a/">A again</a></article>
		<div><a class="mec-color-hover" href="/not-an-event/">x</a></div>
	</body></html>`)

	got := parseMECListing(d, base)
	want := []string{"https://club.example/event/a/", "https://club.example/event/b/"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("links = %v, want %v", got, want)
	}
}

func TestParseMECDetail(t *testing.T) {
	d := doc(t, `<html><body>
		<h1 class="mec-single-title">
			Salsa   Night
		</h1>
		<div class="mec-events-event-image"><img src="https://club.example/salsa.jpg"></div>
		<div class="mec-single-event-description"><p>Dance all night.</p><script>track()</script><p>Bring shoes.</p></div>
		<div class="mec-single-event-date"><span class="mec-start-date-label">14 Mar 2026</span></div>
		<div class="mec-single-event-time"><abbr class="mec-events-abbr">20:30 - 23:00</abbr></div>
		<div class="mec-single-event-location"><span class="author">Club Hall</span><address class="mec-address">12 Oxford St</address></div>
		<div class="mec-single-event-category"><a>Dance</a><a> Latin </a></div>
	</body></html>`)

	loc, err := time.LoadLocation("Australia/Sydney")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	ev, ok := parseMECDetail(d, "https://club.example/event/salsa/", loc)
	if !ok {
		t.Fatal("detail rejected")
	}
	if ev.Title != "Salsa Night" {
		t.Errorf("title = %q", ev.Title)
	}
	if ev.Description != "Dance all night.Bring shoes." && ev.Description != "Dance all night. Bring shoes." {
		t.Errorf("description = %q", ev.Description)
	}
	if ev.VenueName != "Club Hall" || ev.VenueAddress != "12 Oxford St" {
		t.Errorf("venue = %q / %q", ev.VenueName, ev.VenueAddress)
	}
	if ev.ImageURL != "https://club.example/salsa.jpg" || len(ev.Categories) != 2 || ev.Categories[1] != "Latin" {
		t.Errorf("image/categories = %q %v", ev.ImageURL, ev.Categories)
	}
	// 20:30 AEDT is 09:30 UTC.
	if want := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC); !ev.StartDate.Equal(want) {
		t.Errorf("start = %v, want %v", ev.StartDate, want)
	}
}

func TestParseMECDetailWithoutTitle(t *testing.T) {
	d := doc(t, `<html><body><div class="mec-single-event-description">orphan</div></body></html>`)
	if _, ok := parseMECDetail(d, "https://club.example/x", time.UTC); ok {
		t.Fatal("page without title accepted")
	}
}

func TestParseMECDate(t *testing.T) {
	tests := []struct {
		date, clock string
		want        time.Time
	}{
		{"02 Jan 2026", "", time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"02 Jan 2026", "18:45", time.Date(2026, 1, 2, 18, 45, 0, 0, time.UTC)},
		{"02 Jan 2026", "All Day", time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)},
		{"", "18:45", time.Time{}},
		{"Jan 2 2026", "", time.Time{}},
	}
	for _, tt := range tests {
		if got := parseMECDate(tt.date, tt.clock, time.UTC); !got.Equal(tt.want) {
			t.Errorf("parseMECDate(%q, %q) = %v, want %v", tt.date, tt.clock, got, tt.want)
		}
	}
}

func TestMECWithoutBaseURL(t *testing.T) {
	c := NewMEC(sl.Discard(), config.SourceConfig{Name: "club", Type: "mec"})
	if _, err := c.Fetch(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v", err)
	}
}
