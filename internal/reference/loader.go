package reference

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	watchlistFile   = "watchlist.csv"
	marketRatesFile = "market_rates.csv"
	vendorIDColumn  = "vendor_id"
)

// MarketRates holds market-rate reference rows keyed by their header.
// No rule reads it yet.
type MarketRates struct {
	Columns []string
	Rows    [][]string
}

// Empty reports whether no market-rate rows were loaded
func (m *MarketRates) Empty() bool {
	return m == nil || len(m.Rows) == 0
}

// Loader reads reference data files from a data directory.
// Every load is total: failures are logged and produce empty results.
type Loader struct {
	dataDir string
}

// NewLoader creates a Loader for the given data directory
func NewLoader(dataDir string) *Loader {
	return &Loader{dataDir: dataDir}
}

// LoadWatchlist returns the trimmed vendor identifiers from watchlist.csv
func (l *Loader) LoadWatchlist() []string {
	path := filepath.Join(l.dataDir, watchlistFile)

	header, rows, err := readCSV(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("Watchlist not found", "path", path)
		} else {
			slog.Error("Failed to load watchlist", "path", path, "error", err)
		}
		return []string{}
	}

	col := -1
	for i, name := range header {
		if strings.TrimSpace(name) == vendorIDColumn {
			col = i
			break
		}
	}
	if col == -1 {
		slog.Warn("Watchlist has no vendor_id column", "path", path)
		return []string{}
	}

	vendors := make([]string, 0, len(rows))
	for _, row := range rows {
		if col >= len(row) {
			continue
		}
		vendor := strings.TrimSpace(row[col])
		if vendor == "" {
			continue
		}
		vendors = append(vendors, vendor)
	}
	return vendors
}

// LoadMarketRates returns the contents of market_rates.csv
func (l *Loader) LoadMarketRates() *MarketRates {
	path := filepath.Join(l.dataDir, marketRatesFile)

	header, rows, err := readCSV(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Error("Failed to load market rates", "path", path, "error", err)
		}
		return &MarketRates{}
	}
	return &MarketRates{Columns: header, Rows: rows}
}

// readCSV reads a headed CSV file and returns its header and data rows
func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil, fmt.Errorf("reading %s: empty file", filepath.Base(path))
		}
		return nil, nil, fmt.Errorf("reading %s header: %w", filepath.Base(path), err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	return header, rows, nil
}
