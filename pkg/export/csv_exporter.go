package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
)

// Dataset is the tabular shape shared by the CSV and PDF renderers.
// Rows are keyed by header name so callers can build them straight
// from ordinance fields without caring about column order.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

// CSVExporter renders a Dataset as RFC-4180 CSV, the download format
// for ordinance exports.
type CSVExporter struct{}

func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

// Render writes the header line followed by one line per row. Cells
// whose header has no entry in the row map come out empty, keeping
// every line the same width.
func (e *CSVExporter) Render(data Dataset) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("csv export needs at least one column")
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(data.Headers); err != nil {
		return nil, fmt.Errorf("csv header line: %w", err)
	}

	line := make([]string, len(data.Headers))
	for _, row := range data.Rows {
		for i, name := range data.Headers {
			line[i] = row[name]
		}
		if err := w.Write(line); err != nil {
			return nil, fmt.Errorf("csv data line: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csv flush: %w", err)
	}
	return buf.Bytes(), nil
}
