package sync

import (
	"time"

	"advodash/pkg/models"
)

const TypeDatasetReloaded = "dataset.reloaded"

type ReloadEvent struct {
	Type       string    `json:"type"` // "dataset.reloaded"
	LoadID     string    `json:"load_id"`
	Records    int       `json:"records"`
	Rejected   int       `json:"rejected"`
	FromMirror bool      `json:"from_mirror"`
	At         time.Time `json:"at"`
}

func NewReloadEvent(ds *models.Dataset) ReloadEvent {
	return ReloadEvent{
		Type:       TypeDatasetReloaded,
		LoadID:     ds.Meta().LoadID,
		Records:    ds.Len(),
		Rejected:   ds.Diagnostics().Rejected,
		FromMirror: ds.Meta().FromMirror,
		At:         ds.Meta().LoadedAt,
	}
}
