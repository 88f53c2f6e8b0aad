package normalize

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/zombor/auditguard/internal/extraction"
)

// load dispatches on the source format and returns its raw frame
func (n *Normalizer) load(ctx context.Context, src Source) (*Frame, error) {
	switch src.Format {
	case FormatDelimited:
		return loadDelimited(src.Data, src.Comma)
	case FormatSpreadsheet:
		return loadSpreadsheet(src.Data)
	case FormatDocument:
		pages, err := extraction.DocumentPages(src.Data)
		if err != nil {
			return nil, fmt.Errorf("reading document: %w", err)
		}
		return n.extractPages(ctx, src.Name, pages), nil
	case FormatImage:
		page, err := extraction.ImagePage(src.Data, src.ContentType)
		if err != nil {
			return nil, fmt.Errorf("reading image: %w", err)
		}
		return n.extractPages(ctx, src.Name, []extraction.Page{page}), nil
	default:
		return nil, fmt.Errorf("unsupported source format for %q", src.Name)
	}
}

func loadDelimited(data []byte, comma rune) (*Frame, error) {
	if comma == 0 {
		comma = ','
	}
	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading delimited table: %w", err)
	}
	return frameFromRows(rows), nil
}

func loadSpreadsheet(data []byte) (*Frame, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("spreadsheet has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q: %w", sheets[0], err)
	}
	return frameFromRows(rows), nil
}

// frameFromRows treats the first row as the header and skips blank rows
func frameFromRows(rows [][]string) *Frame {
	frame := &Frame{}
	if len(rows) == 0 {
		return frame
	}

	frame.Columns = append([]string{}, rows[0]...)
	if len(frame.Columns) > 0 {
		frame.Columns[0] = strings.TrimPrefix(frame.Columns[0], "\ufeff")
	}

	for _, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		cells := make([]any, len(row))
		for i, v := range row {
			cells[i] = v
		}
		frame.Rows = append(frame.Rows, cells)
	}
	return frame
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// extractPages runs the extractor over each page in order. A failing page
// contributes no records; the remaining pages are still processed.
func (n *Normalizer) extractPages(ctx context.Context, name string, pages []extraction.Page) *Frame {
	if n.extractor == nil {
		slog.Warn("No extractor configured, skipping unstructured source", "name", name, "pages", len(pages))
		return &Frame{}
	}

	var all []extraction.Candidate
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			slog.Warn("Extraction cancelled", "name", name, "page", page.Number, "error", err)
			break
		}

		candidates, err := n.extractor.Extract(ctx, page)
		if err != nil {
			slog.Warn("Failed to extract page",
				"name", name,
				"page", page.Number,
				"error", err,
			)
			continue
		}
		all = append(all, candidates...)
	}

	slog.Info("Extracted candidate records", "name", name, "pages", len(pages), "records", len(all))
	return frameFromCandidates(all)
}
