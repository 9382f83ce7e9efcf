package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"advodash/pkg/models"
)

type Format string

const (
	CSV  Format = "csv"
	XLSX Format = "xlsx"
)

// Header is the column row of every export; the ingest alias table maps
// it straight back to the record fields.
var Header = []string{"Business Name", "Owner Name", "City", "State", "Mobile Number"}

const sheetName = "Advocates"

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case CSV, XLSX:
		return f, nil
	}
	return "", fmt.Errorf("unsupported export format %q", s)
}

func (f Format) ContentType() string {
	if f == XLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv; charset=utf-8"
}

func (f Format) FileName() string {
	return "advocates." + string(f)
}

// Write serializes the whole dataset, in load order, ignoring any filter or
// page the caller may be showing.
func Write(w io.Writer, ds *models.Dataset, f Format) error {
	switch f {
	case CSV:
		return writeCSV(w, ds)
	case XLSX:
		return writeXLSX(w, ds)
	}
	return fmt.Errorf("unsupported export format %q", f)
}

func row(r models.Record) []string {
	return []string{r.Name, r.Owner, r.City, r.State, r.Phone}
}

func writeCSV(w io.Writer, ds *models.Dataset) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for i := 0; i < ds.Len(); i++ {
		if err := cw.Write(row(ds.At(i))); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeXLSX(w io.Writer, ds *models.Dataset) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return fmt.Errorf("stream writer: %w", err)
	}

	// every cell as a string, so phone numbers keep leading zeros
	writeRow := func(n int, vals []string) error {
		cell, err := excelize.CoordinatesToCellName(1, n)
		if err != nil {
			return err
		}
		cells := make([]interface{}, len(vals))
		for i, v := range vals {
			cells[i] = v
		}
		return sw.SetRow(cell, cells)
	}

	if err := writeRow(1, Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i := 0; i < ds.Len(); i++ {
		if err := writeRow(i+2, row(ds.At(i))); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
