package connectors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"eventsCatalog/internal/config"
	"eventsCatalog/internal/models/domain"
	"eventsCatalog/internal/utils/logger/sl"

	"github.com/PuerkitoBio/goquery"
	"github.com/geziyor/geziyor"
	"github.com/geziyor/geziyor/client"
)

// MEC crawls a WordPress site running the Modern Events Calendar plugin: the listing
// page links to one detail page per event.
type MEC struct {
	base
	loc *time.Location
}

func NewMEC(logger *slog.Logger, cfg config.SourceConfig) *MEC {
	b := newBase(logger, cfg)
	loc := time.UTC
	if cfg.Timezone != "" {
		if l, err := time.LoadLocation(cfg.Timezone); err == nil {
			loc = l
		} else {
			b.logger.Warn("unknown timezone, using UTC", slog.String("timezone", cfg.Timezone), sl.Err(err))
		}
	}
	return &MEC{base: b, loc: loc}
}

// crawl collects results from geziyor callbacks, which run concurrently.
type crawl struct {
	mu      sync.Mutex
	listed  bool
	links   int
	events  []domain.RawEvent
	errs    []error
	skipped int
}

func (c *crawl) fail(err error) {
	c.mu.Lock()
	c.errs = append(c.errs, err)
	c.mu.Unlock()
}

func (m *MEC) Fetch(ctx context.Context) ([]domain.RawEvent, error) {
	op := "MEC.Fetch()"
	log := m.logger.With(slog.String("op", op))

	if m.cfg.BaseURL == "" {
		return nil, fmt.Errorf("%s: %s: base url missing: %w", op, m.Name(), ErrNotConfigured)
	}

	res := &crawl{}
	gz := geziyor.NewGeziyor(&geziyor.Options{
		StartURLs: []string{m.cfg.BaseURL},
		ParseFunc: func(g *geziyor.Geziyor, r *client.Response) {
			if err := statusError(r.StatusCode); err != nil {
				res.fail(fmt.Errorf("listing: %w", err))
				return
			}
			links := parseMECListing(r.HTMLDoc, r.Request.URL)
			res.mu.Lock()
			res.listed = true
			res.links = len(links)
			res.mu.Unlock()
			for _, link := range links {
				g.Get(link, m.parseDetail(res))
			}
		},
		ErrorFunc: func(g *geziyor.Geziyor, r *client.Request, err error) {
			res.fail(fmt.Errorf("%s: %w", r.URL, classify(err)))
		},
		ConcurrentRequests: 4,
		Timeout:            m.cfg.GetTimeout(),
		RetryTimes:         m.cfg.MaxRetries,
		RobotsTxtDisabled:  true,
		LogDisabled:        true,
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		gz.Start()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w: %v", op, ErrTimeout, ctx.Err())
	}

	res.mu.Lock()
	defer res.mu.Unlock()

	log.Info("crawl finished",
		slog.Int("links", res.links),
		slog.Int("events", len(res.events)),
		slog.Int("skipped", res.skipped),
		slog.Int("errors", len(res.errs)),
	)

	if !res.listed {
		if len(res.errs) > 0 {
			return nil, fmt.Errorf("%s: %w", op, errors.Join(res.errs...))
		}
		return nil, fmt.Errorf("%s: %w: listing page not parsed", op, ErrNetwork)
	}
	if len(res.errs) > 0 {
		// Some detail pages failed: the listing is partial.
		return res.events, fmt.Errorf("%s: %d detail pages failed: %w", op, len(res.errs), errors.Join(res.errs...))
	}
	if res.events == nil {
		res.events = []domain.RawEvent{}
	}
	return res.events, nil
}

func (m *MEC) parseDetail(res *crawl) func(g *geziyor.Geziyor, r *client.Response) {
	return func(g *geziyor.Geziyor, r *client.Response) {
		if err := statusError(r.StatusCode); err != nil {
			res.fail(fmt.Errorf("%s: %w", r.Request.URL, err))
			return
		}
		ev, ok := parseMECDetail(r.HTMLDoc, r.Request.URL.String(), m.loc)
		res.mu.Lock()
		defer res.mu.Unlock()
		if !ok {
			res.skipped++
			return
		}
		ev.SourceName = m.Name()
		res.events = append(res.events, ev)
	}
}

// parseMECListing returns the unique absolute detail links of a listing page.
func parseMECListing(doc *goquery.Document, base *url.URL) []string {
	seen := make(map[string]struct{})
	var links []string
	doc.Find("article.mec-event-article a.mec-color-hover").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		abs, err := base.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs.Fragment = ""
		link := abs.String()
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		links = append(links, link)
	})
	return links
}

// parseMECDetail reads one event page. ok is false when there is no title.
func parseMECDetail(doc *goquery.Document, pageURL string, loc *time.Location) (domain.RawEvent, bool) {
	title := collapse(doc.Find("h1.mec-single-title").First().Text())
	if title == "" {
		title = collapse(doc.Find(".mec-single-event-title").First().Text())
	}
	if title == "" {
		return domain.RawEvent{}, false
	}

	desc := doc.Find(".mec-single-event-description").First().Clone()
	desc.Find("script, style").Remove()

	ev := domain.RawEvent{
		Title:        title,
		Description:  collapse(desc.Text()),
		VenueName:    firstNonEmpty(collapse(doc.Find(".mec-single-event-location .author").First().Text()), DefaultVenueName),
		VenueAddress: firstNonEmpty(collapse(doc.Find(".mec-single-event-location .mec-address").First().Text()), DefaultVenueAddress),
		EventURL:     pageURL,
	}
	if src, ok := doc.Find(".mec-events-event-image img").First().Attr("src"); ok {
		ev.ImageURL = strings.TrimSpace(src)
	}
	doc.Find(".mec-single-event-category a").Each(func(_ int, sel *goquery.Selection) {
		if c := collapse(sel.Text()); c != "" {
			ev.Categories = append(ev.Categories, c)
		}
	})

	dateStr := collapse(doc.Find(".mec-single-event-date .mec-start-date-label").First().Text())
	timeStr := collapse(doc.Find(".mec-single-event-time .mec-events-abbr").First().Text())
	ev.StartDate = parseMECDate(dateStr, timeStr, loc)

	return ev, true
}

// parseMECDate combines "02 Jan 2006" with an optional "15:04" (or "15:04 - 18:00").
func parseMECDate(dateStr, timeStr string, loc *time.Location) time.Time {
	if dateStr == "" {
		return time.Time{}
	}
	d, err := time.ParseInLocation("02 Jan 2006", dateStr, loc)
	if err != nil {
		return time.Time{}
	}
	if f := strings.Fields(timeStr); len(f) > 0 {
		parts := strings.Split(f[0], ":")
		if len(parts) == 2 {
			hour, herr := strconv.Atoi(parts[0])
			min, merr := strconv.Atoi(parts[1])
			if herr == nil && merr == nil && hour < 24 && min < 60 {
				d = time.Date(d.Year(), d.Month(), d.Day(), hour, min, 0, 0, loc)
			}
		}
	}
	return d.UTC()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
