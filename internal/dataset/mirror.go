package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"advodash/pkg/models"
)

const mirrorVersion = 1

// mirrorDoc is the on-disk JSON snapshot of a Dataset. SourcePath and
// SourceMTime are the freshness marker compared against the source file.
type mirrorDoc struct {
	Version     int                `json:"version"`
	LoadID      string             `json:"load_id"`
	SourcePath  string             `json:"source_path"`
	SourceMTime time.Time          `json:"source_mtime"`
	LoadedAt    time.Time          `json:"loaded_at"`
	Diagnostics models.Diagnostics `json:"diagnostics"`
	Records     []models.Record    `json:"records"`
}

func newMirrorDoc(ds *models.Dataset) mirrorDoc {
	meta := ds.Meta()
	return mirrorDoc{
		Version:     mirrorVersion,
		LoadID:      meta.LoadID,
		SourcePath:  meta.SourcePath,
		SourceMTime: meta.SourceMTime,
		LoadedAt:    meta.LoadedAt,
		Diagnostics: ds.Diagnostics(),
		Records:     ds.Records(),
	}
}

// fresh reports whether the mirror was built from sourcePath at or after
// its current modification time.
func (m mirrorDoc) fresh(sourcePath string, sourceMTime time.Time) bool {
	return filepath.Clean(m.SourcePath) == filepath.Clean(sourcePath) &&
		!m.SourceMTime.Before(sourceMTime)
}

func (m mirrorDoc) dataset() *models.Dataset {
	return models.NewDataset(models.DatasetMeta{
		LoadID:      m.LoadID,
		SourcePath:  m.SourcePath,
		SourceMTime: m.SourceMTime,
		LoadedAt:    m.LoadedAt,
		FromMirror:  true,
	}, m.Records, m.Diagnostics)
}

func readMirror(path string) (mirrorDoc, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return mirrorDoc{}, err
	}

	var doc mirrorDoc
	if err := json.Unmarshal(b, &doc); err != nil {
		return mirrorDoc{}, fmt.Errorf("decode mirror: %w", err)
	}
	if doc.Version != mirrorVersion {
		return mirrorDoc{}, fmt.Errorf("mirror version %d, want %d", doc.Version, mirrorVersion)
	}
	for i, r := range doc.Records {
		if r.Name == "" {
			return mirrorDoc{}, fmt.Errorf("mirror record %d has no name", i)
		}
	}
	return doc, nil
}

// writeMirror replaces the mirror atomically: the document is written to a
// temp file next to path and renamed over it.
func writeMirror(path string, ds *models.Dataset) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure mirror dir: %w", err)
	}

	b, err := json.Marshal(newMirrorDoc(ds))
	if err != nil {
		return fmt.Errorf("marshal mirror: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp mirror: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp mirror: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp mirror: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp mirror: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp mirror: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename mirror: %w", err)
	}
	return nil
}

func isNotExist(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}
