package stats

import (
	"sort"

	"advodash/pkg/models"
)

type Completeness struct {
	Present int `json:"present"`
	Absent  int `json:"absent"`
}

func (c Completeness) Total() int { return c.Present + c.Absent }

// Rate is the share of records with a phone, 0 for an empty group.
func (c Completeness) Rate() float64 {
	if c.Total() == 0 {
		return 0
	}
	return float64(c.Present) / float64(c.Total())
}

// PhoneCompletenessBy counts records with and without a phone per value
// of field.
func PhoneCompletenessBy(ds *models.Dataset, field models.Field) map[string]Completeness {
	out := make(map[string]Completeness)
	for i := 0; i < ds.Len(); i++ {
		r := ds.At(i)
		c := out[r.Value(field)]
		if r.HasPhone() {
			c.Present++
		} else {
			c.Absent++
		}
		out[r.Value(field)] = c
	}
	return out
}

type CompletenessRow struct {
	Value   string  `json:"value"`
	Present int     `json:"with_phone"`
	Total   int     `json:"total"`
	Rate    float64 `json:"rate"`
}

// RankCompleteness orders a PhoneCompletenessBy result by group size,
// largest first, ties by value, keeping at most limit rows.
func RankCompleteness(m map[string]Completeness, limit int) []CompletenessRow {
	out := make([]CompletenessRow, 0, len(m))
	for v, c := range m {
		out = append(out, CompletenessRow{Value: v, Present: c.Present, Total: c.Total(), Rate: c.Rate()})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return lessValue(out[i].Value, out[j].Value)
	})
	return truncate(out, max(limit, 0))
}

// CrossTab is a dense count grid: Matrix[i][j] counts records whose row
// field equals Rows[i] and column field equals Cols[j].
type CrossTab struct {
	RowField models.Field `json:"row_field"`
	ColField models.Field `json:"col_field"`
	Rows     []string     `json:"rows"`
	Cols     []string     `json:"cols"`
	Matrix   [][]int      `json:"matrix"`
}

// Total sums every cell.
func (x CrossTab) Total() int {
	n := 0
	for _, row := range x.Matrix {
		for _, v := range row {
			n += v
		}
	}
	return n
}

// CrossTabulate keeps the rowLimit most frequent row values and the
// colLimit most frequent column values (dataset-wide marginal counts,
// TopBy ordering). Records whose row or column value was not selected are
// left out of the matrix entirely; there is no "other" bucket, so Total()
// can be smaller than the dataset size. A limit <= 0 selects nothing.
func CrossTabulate(ds *models.Dataset, rowField, colField models.Field, rowLimit, colLimit int) CrossTab {
	x := CrossTab{RowField: rowField, ColField: colField, Rows: []string{}, Cols: []string{}}

	rowIdx := make(map[string]int)
	for i, c := range TopBy(ds, rowField, rowLimit) {
		x.Rows = append(x.Rows, c.Value)
		rowIdx[c.Value] = i
	}
	colIdx := make(map[string]int)
	for j, c := range TopBy(ds, colField, colLimit) {
		x.Cols = append(x.Cols, c.Value)
		colIdx[c.Value] = j
	}

	x.Matrix = make([][]int, len(x.Rows))
	for i := range x.Matrix {
		x.Matrix[i] = make([]int, len(x.Cols))
	}

	for k := 0; k < ds.Len(); k++ {
		r := ds.At(k)
		i, ok := rowIdx[r.Value(rowField)]
		if !ok {
			continue
		}
		j, ok := colIdx[r.Value(colField)]
		if !ok {
			continue
		}
		x.Matrix[i][j]++
	}
	return x
}
