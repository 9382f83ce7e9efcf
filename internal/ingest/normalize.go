package ingest

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"advodash/pkg/models"
)

// ErrRowRejected marks a row that cannot become a Record. It is counted
// by Load, never returned from it.
var ErrRowRejected = errors.New("row rejected")

// cell values spreadsheets and dataframe exports use for "nothing here"
var blankMarkers = map[string]bool{
	"":     true,
	"nan":  true,
	"none": true,
	"null": true,
	"n/a":  true,
	"-":    true,
}

// Normalizer turns rows of one source into Records. Build it once per
// load with NewNormalizer so column resolution happens a single time.
// A Normalizer is not safe for concurrent use.
type Normalizer struct {
	cols  Columns
	title cases.Caser
}

func NewNormalizer(headers []string) *Normalizer {
	return &Normalizer{
		cols:  ResolveColumns(headers),
		title: cases.Title(language.Und),
	}
}

// Columns exposes the resolved header mapping.
func (n *Normalizer) Columns() Columns { return n.cols }

// Normalize converts one row of cells (same order as the headers).
func (n *Normalizer) Normalize(cells []string) (models.Record, error) {
	name := cleanText(cellAt(cells, n.cols.Name))
	if name == "" {
		return models.Record{}, fmt.Errorf("%w: missing name", ErrRowRejected)
	}

	owner := cleanText(cellAt(cells, n.cols.Owner))
	if owner == "" {
		owner = models.Unknown
	}

	var phone string
	for _, idx := range n.cols.Phone {
		if phone = normalizePhone(cellAt(cells, idx)); phone != "" {
			break
		}
	}

	return models.Record{
		Name:  name,
		Owner: owner,
		City:  n.normalizePlace(cellAt(cells, n.cols.City), false),
		State: n.normalizePlace(cellAt(cells, n.cols.State), true),
		Phone: phone,
	}, nil
}

// NormalizeRow normalizes a single header→value mapping. Loading many rows
// should go through NewNormalizer instead.
func NormalizeRow(raw map[string]string) (models.Record, error) {
	headers := make([]string, 0, len(raw))
	cells := make([]string, 0, len(raw))
	for k, v := range raw {
		headers = append(headers, k)
		cells = append(cells, v)
	}
	return NewNormalizer(headers).Normalize(cells)
}

func (n *Normalizer) normalizePlace(raw string, abbreviations bool) string {
	s := cleanText(raw)
	if s == "" {
		return models.Unknown
	}
	if abbreviations && len(s) <= 3 && isLetters(s) {
		return strings.ToUpper(s)
	}
	return n.title.String(s)
}

// cleanText trims, collapses inner whitespace and maps blank markers to "".
func cleanText(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if blankMarkers[strings.ToLower(s)] {
		return ""
	}
	return s
}

// normalizePhone keeps digits only. Numeric spreadsheet cells often come
// back as "9876543210.0", so a trailing ".0" is dropped first.
func normalizePhone(raw string) string {
	s := strings.TrimSpace(raw)
	if blankMarkers[strings.ToLower(s)] {
		return ""
	}
	s = strings.TrimSuffix(s, ".0")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func cellAt(cells []string, idx int) string {
	if idx < 0 || idx >= len(cells) {
		return ""
	}
	return cells[idx]
}

func isLetters(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}
