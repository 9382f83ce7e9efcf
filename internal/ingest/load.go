package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"advodash/pkg/models"
)

// ErrSourceUnreadable is returned when the source file is missing, in an
// unsupported format or cannot be parsed at all.
var ErrSourceUnreadable = errors.New("source unreadable")

type Options struct {
	Sheet       string // xlsx sheet; empty means the first one
	SampleLimit int    // how many rejected rows to keep as samples
}

func DefaultOptions() Options {
	return Options{SampleLimit: 10}
}

type LoadResult struct {
	Headers     []string
	Columns     Columns
	Records     []models.Record
	Diagnostics models.Diagnostics
}

// rowSource yields raw rows; the first row is the header.
type rowSource interface {
	Next() ([]string, error) // io.EOF when done
	Close() error
}

// Load reads every row of the spreadsheet or CSV at path through a
// Normalizer. Rejected rows are counted in the result, they never fail the
// load. ctx is checked between rows so a rebuild can be aborted.
func Load(ctx context.Context, path string, opts Options) (*LoadResult, error) {
	src, err := openContext(ctx, path, opts.Sheet)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrSourceUnreadable, path, err)
	}
	defer src.Close()

	header, err := src.Next()
	if err != nil {
		return nil, fmt.Errorf("%w: read header of %s: %v", ErrSourceUnreadable, path, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	norm := NewNormalizer(header)
	if norm.Columns().Name < 0 {
		return nil, fmt.Errorf("%w: %s: empty header row", ErrSourceUnreadable, path)
	}

	res := &LoadResult{Headers: header, Columns: norm.Columns()}
	for rowNum := 1; ; rowNum++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}

		cells, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s row %d: %v", ErrSourceUnreadable, path, rowNum, err)
		}
		if isBlankRow(cells) {
			continue
		}

		rec, err := norm.Normalize(cells)
		if err != nil {
			res.Diagnostics.Rejected++
			if len(res.Diagnostics.Samples) < opts.SampleLimit {
				res.Diagnostics.Samples = append(res.Diagnostics.Samples, models.RejectedRow{
					Row:    rowNum,
					Reason: err.Error(),
				})
			}
			continue
		}
		res.Records = append(res.Records, rec)
	}

	return res, nil
}

func openSource(path, sheet string) (rowSource, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return openXLSX(path, sheet)
	case ".csv", ".txt":
		return openCSV(path, ',')
	case ".tsv":
		return openCSV(path, '\t')
	}
	return nil, fmt.Errorf("unsupported file type %q", filepath.Ext(path))
}

// openContext bounds openSource by ctx. Opening an xlsx file unzips and
// parses shared strings up front, which is often the slowest step of a load.
func openContext(ctx context.Context, path, sheet string) (rowSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	type opened struct {
		src rowSource
		err error
	}
	ch := make(chan opened, 1)
	go func() {
		src, err := openSource(path, sheet)
		ch <- opened{src, err}
	}()

	select {
	case o := <-ch:
		return o.src, o.err
	case <-ctx.Done():
		// release the file once the abandoned open finishes
		go func() {
			if o := <-ch; o.err == nil {
				_ = o.src.Close()
			}
		}()
		return nil, ctx.Err()
	}
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

type csvSource struct {
	f *os.File
	r *csv.Reader
}

func openCSV(path string, comma rune) (*csvSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(f)
	r.Comma = comma
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	return &csvSource{f: f, r: r}, nil
}

func (s *csvSource) Next() ([]string, error) { return s.r.Read() }
func (s *csvSource) Close() error            { return s.f.Close() }

type xlsxSource struct {
	f    *excelize.File
	rows *excelize.Rows
}

func openXLSX(path, sheet string) (*xlsxSource, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if sheet == "" {
		_ = f.Close()
		return nil, errors.New("no sheets found")
	}
	rows, err := f.Rows(sheet)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("open sheet %q: %w", sheet, err)
	}
	return &xlsxSource{f: f, rows: rows}, nil
}

func (s *xlsxSource) Next() ([]string, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, err
		}
		return nil, io.EOF
	}
	return s.rows.Columns()
}

func (s *xlsxSource) Close() error {
	_ = s.rows.Close()
	return s.f.Close()
}
