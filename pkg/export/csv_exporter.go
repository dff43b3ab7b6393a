package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Dataset is ordered tabular content; every row has one cell per header.
type Dataset struct {
	Headers []string
	Rows    [][]string
}

// Append adds a row, padding or truncating it to the header width.
func (d *Dataset) Append(cells ...string) {
	row := make([]string, len(d.Headers))
	copy(row, cells)
	d.Rows = append(d.Rows, row)
}

// CSVExporter renders datasets as CSV. Spreadsheet tools used by the club
// need a byte-order mark to detect UTF-8, so one is written when BOM is set.
type CSVExporter struct {
	BOM       bool
	Separator rune
}

// NewCSVExporter builds a comma separated exporter with a BOM.
func NewCSVExporter() *CSVExporter {
	return &CSVExporter{BOM: true, Separator: ','}
}

// Render produces CSV encoded bytes for the dataset.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv requires at least one header")
	}
	buf := &bytes.Buffer{}
	if e.BOM {
		buf.WriteString("\ufeff")
	}
	writer := csv.NewWriter(buf)
	if e.Separator != 0 {
		writer.Comma = e.Separator
	}
	if err := writer.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("write csv headers: %w", err)
	}
	for i, row := range data.Rows {
		if len(row) != len(data.Headers) {
			return nil, fmt.Errorf("csv row %d has %d cells, want %d", i, len(row), len(data.Headers))
		}
		if err := writer.Write(row); err != nil {
			return nil, fmt.Errorf("write csv row: %w", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}
