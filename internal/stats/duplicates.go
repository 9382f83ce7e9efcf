package stats

import (
	"sort"

	"advodash/pkg/models"
)

// DuplicateGroup lists the records (by load-order index) sharing a
// dedup key.
type DuplicateGroup struct {
	Key     string `json:"key"`
	Indices []int  `json:"indices"`
}

type DuplicateReport struct {
	Groups []DuplicateGroup `json:"groups"`
	// Members counts every record in a group of two or more, not just the
	// extra copies.
	Members int `json:"members"`
}

// Duplicates groups records by DedupKey and keeps groups with at least two
// members, largest group first, then by first occurrence.
func Duplicates(ds *models.Dataset) DuplicateReport {
	byKey := make(map[string][]int)
	var order []string
	for i := 0; i < ds.Len(); i++ {
		k := ds.At(i).DedupKey()
		if _, seen := byKey[k]; !seen {
			order = append(order, k)
		}
		byKey[k] = append(byKey[k], i)
	}

	var rep DuplicateReport
	for _, k := range order {
		idx := byKey[k]
		if len(idx) < 2 {
			continue
		}
		rep.Groups = append(rep.Groups, DuplicateGroup{Key: k, Indices: idx})
		rep.Members += len(idx)
	}
	sort.SliceStable(rep.Groups, func(i, j int) bool {
		return len(rep.Groups[i].Indices) > len(rep.Groups[j].Indices)
	})
	return rep
}
