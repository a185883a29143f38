// Package export writes result tables as spreadsheet files.
package export

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/andresuchdata/autopo-py/replenish/internal/pipeline"
)

// Format names an output file format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// ErrUnsupportedFormat is returned for an unknown export format.
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ParseFormat accepts "xlsx" and "csv"; empty selects xlsx.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatXLSX:
		return FormatXLSX, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w %q", ErrUnsupportedFormat, s)
	}
}

// Encoder renders a table into a byte stream.
type Encoder interface {
	Encode(w io.Writer, table *pipeline.Table) error
	Extension() string
	ContentType() string
}

// EncoderFor returns the encoder of a format.
func EncoderFor(f Format) Encoder {
	if f == FormatCSV {
		return CSVWriter{}
	}
	return XLSXWriter{}
}

// XLSXWriter writes a table to a single sheet: one header row followed by
// one row per group. Null cells are left empty.
type XLSXWriter struct {
	Sheet string
}

func (x XLSXWriter) Extension() string { return ".xlsx" }

func (x XLSXWriter) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func (x XLSXWriter) Encode(w io.Writer, table *pipeline.Table) error {
	sheet := x.Sheet
	if sheet == "" {
		sheet = "Sheet1"
	}

	f := excelize.NewFile()
	defer f.Close()
	if sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			return fmt.Errorf("failed to name sheet: %w", err)
		}
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("failed to open sheet writer: %w", err)
	}

	header := table.Header()
	row := make([]interface{}, len(header))
	for i, h := range header {
		row[i] = h
	}
	if err := sw.SetRow("A1", row); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for n, r := range table.Rows {
		row := make([]interface{}, 0, len(header))
		row = append(row, r.Key.GroupID, r.Key.Description, r.Key.Code)
		for _, c := range r.Cells {
			if !c.Valid {
				row = append(row, nil)
				continue
			}
			row = append(row, c.Value.InexactFloat64())
		}
		axis, err := excelize.CoordinatesToCellName(1, n+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(axis, row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", n+2, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}
	return f.Write(w)
}

// CSVWriter writes a table as CSV with a header row.
type CSVWriter struct{}

func (CSVWriter) Extension() string   { return ".csv" }
func (CSVWriter) ContentType() string { return "text/csv" }

func (CSVWriter) Encode(w io.Writer, table *pipeline.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(table.Header()); err != nil {
		return err
	}
	for _, r := range table.Rows {
		if err := cw.Write(table.Strings(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
