package ingest

import (
	"strings"

	"advodash/pkg/models"
)

// Aliases maps each canonical field to the header spellings accepted for
// it, most specific first. Matching is case-insensitive: exact matches win,
// then substring matches.
var Aliases = map[models.Field][]string{
	models.FieldName:  {"business name", "advocate name", "name", "full name", "lawyer", "firm", "office", "company", "practice"},
	models.FieldOwner: {"owner name", "owner", "contact person", "principal", "proprietor", "head", "lead"},
	models.FieldCity:  {"city", "district", "town"},
	models.FieldState: {"state", "province", "region"},
	models.FieldPhone: {"mobile number", "phone number", "mobile", "phone", "contact", "cell", "whatsapp"},
}

// substring pass order; name last because "name" appears in most headers
var substringOrder = []models.Field{
	models.FieldOwner,
	models.FieldCity,
	models.FieldState,
	models.FieldPhone,
	models.FieldName,
}

// Columns holds the resolved header index per field; -1 means absent.
type Columns struct {
	Name  int
	Owner int
	City  int
	State int
	Phone []int // candidates in priority order
}

// ResolveColumns matches source headers against Aliases once per load.
// A header is claimed by at most one field. Extra phone-like headers are
// kept as fallbacks for blank phone cells.
func ResolveColumns(headers []string) Columns {
	lowered := make([]string, len(headers))
	for i, h := range headers {
		lowered[i] = strings.Join(strings.Fields(strings.ToLower(h)), " ")
	}

	claimed := make(map[int]bool, len(headers))
	found := make(map[models.Field]int)

	// pass 1: exact alias match
	for _, f := range substringOrder {
		if idx := pick(lowered, claimed, Aliases[f], true); idx >= 0 {
			found[f] = idx
			claimed[idx] = true
		}
	}
	// pass 2: substring match for fields still missing
	for _, f := range substringOrder {
		if _, ok := found[f]; ok {
			continue
		}
		if idx := pick(lowered, claimed, Aliases[f], false); idx >= 0 {
			found[f] = idx
			claimed[idx] = true
		}
	}

	cols := Columns{Name: -1, Owner: -1, City: -1, State: -1}
	if idx, ok := found[models.FieldName]; ok {
		cols.Name = idx
	}
	if idx, ok := found[models.FieldOwner]; ok {
		cols.Owner = idx
	}
	if idx, ok := found[models.FieldCity]; ok {
		cols.City = idx
	}
	if idx, ok := found[models.FieldState]; ok {
		cols.State = idx
	}
	if idx, ok := found[models.FieldPhone]; ok {
		cols.Phone = append(cols.Phone, idx)
		for _, alias := range Aliases[models.FieldPhone] {
			for i, low := range lowered {
				if claimed[i] || !strings.Contains(low, alias) {
					continue
				}
				claimed[i] = true
				cols.Phone = append(cols.Phone, i)
			}
		}
	}

	// no name-like header: the owner column doubles as the name, and
	// failing that the first column
	if cols.Name < 0 {
		cols.Name = cols.Owner
	}
	if cols.Name < 0 && len(headers) > 0 {
		cols.Name = 0
	}
	return cols
}

func pick(lowered []string, claimed map[int]bool, aliases []string, exact bool) int {
	for _, alias := range aliases {
		for i, low := range lowered {
			if claimed[i] || low == "" {
				continue
			}
			if exact && low == alias {
				return i
			}
			if !exact && strings.Contains(low, alias) {
				return i
			}
		}
	}
	return -1
}
