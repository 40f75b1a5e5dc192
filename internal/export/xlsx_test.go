package export

import (
	"bytes"
	"context"
	"fmt"
	"testing"
	"time"

	"eventsCatalog/internal/models/domain"
	"eventsCatalog/internal/repositories/memory"

	"github.com/xuri/excelize/v2"
)

var at = time.Date(2026, 6, 5, 19, 30, 0, 0, time.UTC)

func TestWriteXLSX(t *testing.T) {
	events := []domain.CatalogEvent{
		{
			SourceEventURL: "https://a/1",
			SourceName:     "humanitix",
			EventContent: domain.EventContent{
				Title:      "Vivid Talks",
				Start:      at,
				Venue:      domain.Venue{Name: "Town Hall", City: "Sydney"},
				Categories: []string{"Arts", "Technology"},
			},
			Status:       domain.EventStatusImported,
			ImportedMeta: &domain.ImportedMeta{ImportedBy: "ops", ImportedAt: at, Notes: "front page"},
		},
		{
			SourceEventURL: "https://a/2",
			SourceName:     "mec",
			EventContent:   domain.EventContent{Title: "Park Run", Start: at.Add(24 * time.Hour)},
			Status:         domain.EventStatusNew,
		},
	}

	var buf bytes.Buffer
	if err := WriteXLSX(&buf, events); err != nil {
		t.Fatalf("WriteXLSX: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want header + 2", len(rows))
	}
	if rows[0][3] != "Title" || rows[0][10] != "Source URL" {
		t.Errorf("header = %v", rows[0])
	}
	first := rows[1]
	if first[1] != "imported" || first[3] != "Vivid Talks" || first[4] != "2026-06-05 19:30" {
		t.Errorf("first row = %v", first)
	}
	if first[9] != "Arts, Technology" || first[14] != "ops" || first[16] != "front page" {
		t.Errorf("first row curation = %v", first)
	}
	if rows[2][3] != "Park Run" || rows[2][10] != "https://a/2" {
		t.Errorf("second row = %v", rows[2])
	}
}

func TestCollectReadsAllPages(t *testing.T) {
	ctx := context.Background()
	c := memory.New()
	n := domain.MaxListLimit + 5
	for i := 0; i < n; i++ {
		err := c.Insert(ctx, domain.CatalogEvent{
			SourceEventURL: fmt.Sprintf("https://x/%d", i),
			SourceName:     "S",
			EventContent:   domain.EventContent{Title: "t", Start: at.Add(time.Duration(i) * time.Minute)},
			Status:         domain.EventStatusNew,
			ScrapeMeta:     domain.ScrapeMeta{FirstSeenAt: at, LastSeenAt: at, LastChangedAt: at},
		})
		if err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	got, err := Collect(ctx, c, domain.EventFilter{SortBy: domain.SortByStartAsc})
	if err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if len(got) != n {
		t.Fatalf("collected %d, want %d", len(got), n)
	}
	if got[0].SourceEventURL != "https://x/0" || got[n-1].SourceEventURL != fmt.Sprintf("https://x/%d", n-1) {
		t.Errorf("order: first %s last %s", got[0].SourceEventURL, got[n-1].SourceEventURL)
	}
}
