// Package export renders catalog listings as spreadsheets for operators.
package export

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"eventsCatalog/internal/models/domain"

	"github.com/xuri/excelize/v2"
)

const SheetName = "Events"

var header = []string{
	"ID", "Status", "Source", "Title", "Start", "End", "Venue", "Address", "City",
	"Categories", "Source URL", "First seen", "Last seen", "Last changed",
	"Imported by", "Imported at", "Notes", "Archived by", "Archived at",
}

// widths are in column order; the stream writer needs them before the first row.
var widths = []struct {
	col   int
	width float64
}{{1, 38}, {4, 48}, {7, 30}, {8, 36}, {10, 24}, {11, 60}, {17, 40}}

// Lister pages through the catalog.
type Lister interface {
	ListEvents(ctx context.Context, filter domain.EventFilter) ([]domain.CatalogEvent, int, error)
}

// Collect reads every page matching filter.
func Collect(ctx context.Context, lister Lister, filter domain.EventFilter) ([]domain.CatalogEvent, error) {
	op := "export.Collect()"

	filter.Limit = domain.MaxListLimit
	filter.Page = 1
	res := make([]domain.CatalogEvent, 0)
	for {
		page, total, err := lister.ListEvents(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("%s: page %d: %w", op, filter.Page, err)
		}
		res = append(res, page...)
		if len(page) < filter.Limit || len(res) >= total {
			return res, nil
		}
		filter.Page++
	}
}

// WriteXLSX streams events into a single-sheet workbook.
func WriteXLSX(w io.Writer, events []domain.CatalogEvent) error {
	op := "export.WriteXLSX()"

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("%s: style: %w", op, err)
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	for _, c := range widths {
		if err := sw.SetColWidth(c.col, c.col, c.width); err != nil {
			return fmt.Errorf("%s: width: %w", op, err)
		}
	}

	head := make([]interface{}, len(header))
	for i, h := range header {
		head[i] = excelize.Cell{StyleID: bold, Value: h}
	}
	if err := sw.SetRow("A1", head); err != nil {
		return fmt.Errorf("%s: header: %w", op, err)
	}

	for i, e := range events {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		if err := sw.SetRow(cell, row(e)); err != nil {
			return fmt.Errorf("%s: row %d: %w", op, i+2, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("%s: flush: %w", op, err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("%s: write: %w", op, err)
	}
	return nil
}

func row(e domain.CatalogEvent) []interface{} {
	var end string
	if e.End != nil {
		end = stamp(*e.End)
	}
	var importedBy, importedAt, notes, archivedBy, archivedAt string
	if m := e.ImportedMeta; m != nil {
		importedBy, importedAt, notes = m.ImportedBy, stamp(m.ImportedAt), m.Notes
	}
	if m := e.ArchivedMeta; m != nil {
		archivedBy, archivedAt = m.ArchivedBy, stamp(m.ArchivedAt)
	}

	return []interface{}{
		e.ID.String(),
		string(e.Status),
		e.SourceName,
		e.Title,
		stamp(e.Start),
		end,
		e.Venue.Name,
		e.Venue.Address,
		e.Venue.City,
		strings.Join(e.Categories, ", "),
		e.SourceEventURL,
		stamp(e.ScrapeMeta.FirstSeenAt),
		stamp(e.ScrapeMeta.LastSeenAt),
		stamp(e.ScrapeMeta.LastChangedAt),
		importedBy,
		importedAt,
		notes,
		archivedBy,
		archivedAt,
	}
}

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}
