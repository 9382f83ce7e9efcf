package models

import (
	"fmt"
	"strings"
)

// Unknown is substituted for a missing owner, city or state.
const Unknown = "Unknown"

type Field string

const (
	FieldName  Field = "name"
	FieldOwner Field = "owner"
	FieldCity  Field = "city"
	FieldState Field = "state"
	FieldPhone Field = "phone"
)

// Fields lists every record field in export/column order.
var Fields = []Field{FieldName, FieldOwner, FieldCity, FieldState, FieldPhone}

// ParseField maps a field name (case-insensitive) to a Field.
func ParseField(s string) (Field, error) {
	f := Field(strings.ToLower(strings.TrimSpace(s)))
	switch f {
	case FieldName, FieldOwner, FieldCity, FieldState, FieldPhone:
		return f, nil
	}
	return "", fmt.Errorf("unknown field %q", s)
}

// Record is the normalized form of one business/advocate row.
//
// Records are built by the ingest package and never modified afterwards;
// a reload replaces the whole Dataset instead.
type Record struct {
	Name  string `json:"name"`            // business or advocate name, never empty
	Owner string `json:"owner"`           // owner name or Unknown
	City  string `json:"city"`            // title cased or Unknown
	State string `json:"state"`           // title cased (abbreviations upper) or Unknown
	Phone string `json:"phone,omitempty"` // digits only, "" when absent
}

// HasPhone reports whether the source row carried a usable phone number.
func (r Record) HasPhone() bool { return r.Phone != "" }

// Value returns the value of f. Unknown fields yield "".
func (r Record) Value(f Field) string {
	switch f {
	case FieldName:
		return r.Name
	case FieldOwner:
		return r.Owner
	case FieldCity:
		return r.City
	case FieldState:
		return r.State
	case FieldPhone:
		return r.Phone
	}
	return ""
}

// DedupKey is the case-insensitive name+phone composite used to spot
// likely duplicates. It is not an identity.
func (r Record) DedupKey() string {
	return strings.ToLower(strings.Join(strings.Fields(r.Name), " ")) + "|" + r.Phone
}
