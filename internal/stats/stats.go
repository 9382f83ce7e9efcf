// Package stats computes the dashboard aggregations over a Dataset. Every
// function is read-only and returns freshly allocated results.
package stats

import (
	"sort"
	"strings"

	"advodash/pkg/models"
)

type Summary struct {
	TotalRecords        int `json:"total_records"`
	UniqueOwners        int `json:"unique_owners"`
	UniqueStates        int `json:"unique_states"`
	UniqueCities        int `json:"unique_cities"`
	PhonesPresent       int `json:"phones_present"`
	PhonesMissing       int `json:"phones_missing"`
	PotentialDuplicates int `json:"potential_duplicates"`
}

// Count is one (value, count) pair of a ranking.
type Count struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Summarize computes the KPI block. Unique counts are case-insensitive and
// leave out the Unknown sentinel.
func Summarize(ds *models.Dataset) Summary {
	owners := make(map[string]struct{})
	states := make(map[string]struct{})
	cities := make(map[string]struct{})

	s := Summary{TotalRecords: ds.Len()}
	for i := 0; i < ds.Len(); i++ {
		r := ds.At(i)
		addKnown(owners, r.Owner)
		addKnown(states, r.State)
		addKnown(cities, r.City)
		if r.HasPhone() {
			s.PhonesPresent++
		} else {
			s.PhonesMissing++
		}
	}

	s.UniqueOwners = len(owners)
	s.UniqueStates = len(states)
	s.UniqueCities = len(cities)
	s.PotentialDuplicates = Duplicates(ds).Members
	return s
}

func addKnown(set map[string]struct{}, v string) {
	if v == "" || v == models.Unknown {
		return
	}
	set[strings.ToLower(v)] = struct{}{}
}

// TopBy ranks the values of field by record count, descending, ties broken
// by ascending value, and returns at most limit entries. A limit <= 0
// yields none.
func TopBy(ds *models.Dataset, field models.Field, limit int) []Count {
	return rank(countValues(ds, field), max(limit, 0))
}

// Treemap is TopBy over the whole value domain.
func Treemap(ds *models.Dataset, field models.Field) []Count {
	return rank(countValues(ds, field), noLimit)
}

// noLimit disables truncation in the ranking helpers.
const noLimit = -1

func countValues(ds *models.Dataset, field models.Field) map[string]int {
	counts := make(map[string]int)
	for i := 0; i < ds.Len(); i++ {
		counts[ds.At(i).Value(field)]++
	}
	return counts
}

func rank(counts map[string]int, limit int) []Count {
	out := make([]Count, 0, len(counts))
	for v, n := range counts {
		out = append(out, Count{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return lessValue(out[i].Value, out[j].Value)
	})
	return truncate(out, limit)
}

func truncate[T any](s []T, limit int) []T {
	if limit >= 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}

// lessValue orders case-insensitively, falling back to byte order so the
// result is total.
func lessValue(a, b string) bool {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	if la != lb {
		return la < lb
	}
	return a < b
}

// PairCount counts records sharing an (outer, inner) value pair, e.g. a
// city within a state.
type PairCount struct {
	Outer string `json:"outer"`
	Inner string `json:"inner"`
	Count int    `json:"count"`
}

// TopPairs ranks (outer, inner) pairs by count, ties broken by outer then
// inner value. At most limit pairs are returned.
func TopPairs(ds *models.Dataset, outer, inner models.Field, limit int) []PairCount {
	type pair struct{ outer, inner string }
	counts := make(map[pair]int)
	for i := 0; i < ds.Len(); i++ {
		r := ds.At(i)
		counts[pair{r.Value(outer), r.Value(inner)}]++
	}

	out := make([]PairCount, 0, len(counts))
	for p, n := range counts {
		out = append(out, PairCount{Outer: p.outer, Inner: p.inner, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Count != b.Count {
			return a.Count > b.Count
		}
		if a.Outer != b.Outer {
			return lessValue(a.Outer, b.Outer)
		}
		return lessValue(a.Inner, b.Inner)
	})
	return truncate(out, max(limit, 0))
}
