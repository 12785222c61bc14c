package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"raincast/ml"
)

// MissingMarkers are the cell spellings read as missing values, the same
// set pandas treats as NA by default. Any other cell that parses as a NaN
// number is missing as well.
var MissingMarkers = map[string]struct{}{
	"":         {},
	"#N/A":     {},
	"#N/A N/A": {},
	"#NA":      {},
	"-1.#IND":  {},
	"-1.#QNAN": {},
	"-NaN":     {},
	"-nan":     {},
	"1.#IND":   {},
	"1.#QNAN":  {},
	"<NA>":     {},
	"N/A":      {},
	"NA":       {},
	"NULL":     {},
	"NaN":      {},
	"None":     {},
	"n/a":      {},
	"nan":      {},
	"null":     {},
}

func isMissingCell(cell string) bool {
	cell = strings.TrimSpace(cell)
	if _, ok := MissingMarkers[cell]; ok {
		return true
	}
	f, err := strconv.ParseFloat(cell, 64)
	return err == nil && math.IsNaN(f)
}

// Record is one data row of the input file.
type Record struct {
	Line   int
	Values []ml.Value
	Label  int
}

// Table is the raw file: trimmed header names and every data row with
// missing markers already replaced.
type Table struct {
	Header  []string
	Records []*Record
	Stats   IngestionStats
}

// IngestionStats counts rows and missing cells per column.
type IngestionStats struct {
	Rows         int            `json:"rows"`
	Columns      int            `json:"columns"`
	MissingCells int            `json:"missing_cells"`
	MissingBy    map[string]int `json:"missing_by_column"`
}

// ReadCSV opens path and parses it with ParseCSV.
func ReadCSV(ctx context.Context, path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return ParseCSV(ctx, f)
}

// ParseCSV reads a comma-separated table with a header row. A leading UTF-8
// or UTF-16 byte-order mark is removed. Every row must have the header's
// field count.
func ParseCSV(ctx context.Context, r io.Reader) (*Table, error) {
	decoded := transform.NewReader(r, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	reader := csv.NewReader(decoded)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: no header row", ErrEmptyDataset)
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	table := &Table{
		Header: make([]string, len(header)),
		Stats:  IngestionStats{Columns: len(header), MissingBy: make(map[string]int)},
	}
	seen := make(map[string]bool, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if seen[name] {
			return nil, fmt.Errorf("duplicate column %q in header", name)
		}
		seen[name] = true
		table.Header[i] = name
	}

	for line := 2; ; line++ {
		if line%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		rec := &Record{Line: line, Values: make([]ml.Value, len(fields))}
		for i, cell := range fields {
			if isMissingCell(cell) {
				rec.Values[i] = ml.Missing()
				table.Stats.MissingCells++
				table.Stats.MissingBy[table.Header[i]]++
				continue
			}
			rec.Values[i] = ml.Text(cell)
		}
		table.Records = append(table.Records, rec)
	}
	table.Stats.Rows = len(table.Records)
	return table, nil
}

// ColumnIndex returns the position of name in the header, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}
