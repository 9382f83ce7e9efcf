package query

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"advodash/pkg/models"
)

// ErrInvalidQuery rejects a request before the dataset is touched.
var ErrInvalidQuery = errors.New("invalid query")

// FieldFilter matches one named field, case-insensitively. Exact compares
// the whole value; otherwise Value must be a substring.
type FieldFilter struct {
	Field models.Field
	Value string
	Exact bool
}

// Filter criteria are AND-combined. The zero Filter matches every record.
type Filter struct {
	Search string // substring of name, owner, city, state or phone
	Fields []FieldFilter
}

type Sort struct {
	Field models.Field
	Desc  bool
}

type Request struct {
	Filter   Filter
	Page     int // 1-based
	PageSize int
	Sort     *Sort // nil keeps load order
}

type Limits struct {
	MinPageSize     int
	MaxPageSize     int
	DefaultPageSize int // used when PageSize is 0
}

func DefaultLimits() Limits {
	return Limits{MinPageSize: 1, MaxPageSize: 500, DefaultPageSize: 25}
}

// ClampPageSize applies the configured bounds.
func (l Limits) ClampPageSize(n int) int {
	if n == 0 && l.DefaultPageSize > 0 {
		n = l.DefaultPageSize
	}
	if n < l.MinPageSize {
		n = l.MinPageSize
	}
	if l.MaxPageSize > 0 && n > l.MaxPageSize {
		n = l.MaxPageSize
	}
	if n < 1 {
		n = 1
	}
	return n
}

type Result struct {
	Rows          []models.Record `json:"rows"`
	TotalMatching int             `json:"total_matching"`
	Page          int             `json:"page"`
	PageSize      int             `json:"page_size"`
}

// Validate checks the request without looking at any data.
func (r Request) Validate() error {
	if r.Page < 1 {
		return fmt.Errorf("%w: page must be >= 1, got %d", ErrInvalidQuery, r.Page)
	}
	if r.PageSize < 0 {
		return fmt.Errorf("%w: page_size must be >= 0, got %d", ErrInvalidQuery, r.PageSize)
	}
	for _, f := range r.Filter.Fields {
		if _, err := models.ParseField(string(f.Field)); err != nil {
			return fmt.Errorf("%w: filter: %v", ErrInvalidQuery, err)
		}
	}
	if r.Sort != nil {
		if _, err := models.ParseField(string(r.Sort.Field)); err != nil {
			return fmt.Errorf("%w: sort: %v", ErrInvalidQuery, err)
		}
	}
	return nil
}

// Run filters, sorts and pages ds. A page past the end yields no rows and
// the real TotalMatching.
func Run(ds *models.Dataset, req Request, limits Limits) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	idx := matchSorted(ds, req.Filter, req.Sort)
	size := limits.ClampPageSize(req.PageSize)
	res := Result{
		Rows:          []models.Record{},
		TotalMatching: len(idx),
		Page:          req.Page,
		PageSize:      size,
	}

	// compare in pages first; (Page-1)*size can overflow
	if req.Page-1 >= (len(idx)+size-1)/size {
		return res, nil
	}
	res.Rows = window(ds, idx, (req.Page-1)*size, size)
	return res, nil
}

// RunOffset is Run addressed by row offset instead of page, for table
// widgets that scroll by arbitrary offsets. Page in the result is the page
// the offset falls in.
func RunOffset(ds *models.Dataset, req Request, offset int, limits Limits) (Result, error) {
	if offset < 0 {
		return Result{}, fmt.Errorf("%w: offset must be >= 0, got %d", ErrInvalidQuery, offset)
	}
	req.Page = 1
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	idx := matchSorted(ds, req.Filter, req.Sort)
	size := limits.ClampPageSize(req.PageSize)
	return Result{
		Rows:          window(ds, idx, offset, size),
		TotalMatching: len(idx),
		Page:          offset/size + 1,
		PageSize:      size,
	}, nil
}

func matchSorted(ds *models.Dataset, f Filter, s *Sort) []int {
	idx := Match(ds, f)
	if s != nil {
		sortIndices(ds, idx, *s)
	}
	return idx
}

// window copies up to size records of idx starting at start.
func window(ds *models.Dataset, idx []int, start, size int) []models.Record {
	rows := []models.Record{}
	if start >= len(idx) {
		return rows
	}
	end := len(idx)
	if size < end-start {
		end = start + size
	}
	for _, i := range idx[start:end] {
		rows = append(rows, ds.At(i))
	}
	return rows
}

// Match returns the load-order indices of records passing f.
func Match(ds *models.Dataset, f Filter) []int {
	m := newMatcher(f)
	out := make([]int, 0, ds.Len())
	for i := 0; i < ds.Len(); i++ {
		if m.match(ds.At(i)) {
			out = append(out, i)
		}
	}
	return out
}

var searchFields = []models.Field{
	models.FieldName,
	models.FieldOwner,
	models.FieldCity,
	models.FieldState,
	models.FieldPhone,
}

type matcher struct {
	search string
	fields []FieldFilter
}

// newMatcher lowercases every needle once; empty needles are dropped.
func newMatcher(f Filter) matcher {
	m := matcher{search: strings.ToLower(strings.TrimSpace(f.Search))}
	for _, ff := range f.Fields {
		v := strings.ToLower(strings.TrimSpace(ff.Value))
		if v == "" {
			continue
		}
		m.fields = append(m.fields, FieldFilter{Field: ff.Field, Value: v, Exact: ff.Exact})
	}
	return m
}

func (m matcher) match(r models.Record) bool {
	if m.search != "" {
		hit := false
		for _, f := range searchFields {
			if strings.Contains(strings.ToLower(r.Value(f)), m.search) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}

	for _, ff := range m.fields {
		v := strings.ToLower(r.Value(ff.Field))
		if ff.Exact && v != ff.Value {
			return false
		}
		if !ff.Exact && !strings.Contains(v, ff.Value) {
			return false
		}
	}
	return true
}

// sortIndices orders idx by the field value, case-insensitively. The sort
// is stable, so equal values keep load order in both directions.
func sortIndices(ds *models.Dataset, idx []int, s Sort) {
	keys := make(map[int]string, len(idx))
	for _, i := range idx {
		keys[i] = strings.ToLower(ds.At(i).Value(s.Field))
	}
	sort.SliceStable(idx, func(a, b int) bool {
		ka, kb := keys[idx[a]], keys[idx[b]]
		if s.Desc {
			return ka > kb
		}
		return ka < kb
	})
}
