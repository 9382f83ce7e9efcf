package models

import (
	"slices"
	"time"
)

// RejectedRow describes one source row the normalizer skipped.
type RejectedRow struct {
	Row    int    `json:"row"` // 1-based data row number (header excluded)
	Reason string `json:"reason"`
}

// Diagnostics summarizes rows that could not be turned into Records.
type Diagnostics struct {
	Rejected int           `json:"rejected"`
	Samples  []RejectedRow `json:"samples,omitempty"`
}

// DatasetMeta is the load metadata carried by a Dataset.
type DatasetMeta struct {
	LoadID      string    `json:"load_id"`
	SourcePath  string    `json:"source_path"`
	SourceMTime time.Time `json:"source_mtime"`
	LoadedAt    time.Time `json:"loaded_at"`
	FromMirror  bool      `json:"from_mirror"`
}

// Dataset is an immutable, ordered snapshot of all loaded Records. It is
// shared between goroutines, so every accessor hands out copies.
type Dataset struct {
	meta    DatasetMeta
	diag    Diagnostics
	records []Record
}

// NewDataset takes ownership of copies of records and diag.
func NewDataset(meta DatasetMeta, records []Record, diag Diagnostics) *Dataset {
	diag.Samples = slices.Clone(diag.Samples)
	return &Dataset{
		meta:    meta,
		diag:    diag,
		records: slices.Clone(records),
	}
}

func (d *Dataset) Meta() DatasetMeta { return d.meta }

func (d *Dataset) Diagnostics() Diagnostics {
	diag := d.diag
	diag.Samples = slices.Clone(d.diag.Samples)
	return diag
}

func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.records)
}

// At returns the i-th record in load order.
func (d *Dataset) At(i int) Record { return d.records[i] }

// Records returns a copy of the records in load order.
func (d *Dataset) Records() []Record {
	if d == nil {
		return nil
	}
	return slices.Clone(d.records)
}
