package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"advodash/internal/ingest"
	"advodash/pkg/models"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

var sampleRows = [][]string{
	{"Business Name", "Owner Name", "City", "State", "Mobile Number"},
	{"Acme Law", "J. Doe", "austin", "tx", "(555) 123-4567"},
	{"Acme Law", "", "Austin", "TX", "5551234567"},
	{"", "Nobody", "Dallas", "TX", ""},
	{"Beta Legal", "A. Roy", "mumbai", "maharashtra", ""},
}

func writeCSV(t *testing.T, path string, rows [][]string, mtime time.Time) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	w := csv.NewWriter(f)
	require.NoError(t, w.WriteAll(rows))
	require.NoError(t, f.Close())
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func writeXLSX(t *testing.T, path string, rows [][]string, mtime time.Time) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		vals := make([]interface{}, len(row))
		for j, v := range row {
			vals[j] = v
		}
		require.NoError(t, f.SetSheetRow(sheet, cell, &vals))
	}
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func newTestCache(dir, source string) *Cache {
	return New(Config{
		SourcePath: source,
		MirrorPath: filepath.Join(dir, "mirror.json"),
	}, WithLogger(log.New(io.Discard, "", 0)))
}

func TestGetParsesSourceAndWritesMirror(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "advocates.csv")
	writeCSV(t, src, sampleRows, baseTime)

	c := newTestCache(dir, src)
	ds, err := c.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, ds.Len())
	assert.Equal(t, 1, ds.Diagnostics().Rejected)
	require.Len(t, ds.Diagnostics().Samples, 1)
	assert.Equal(t, 3, ds.Diagnostics().Samples[0].Row)
	assert.False(t, ds.Meta().FromMirror)
	assert.NotEmpty(t, ds.Meta().LoadID)
	assert.True(t, ds.Meta().SourceMTime.Equal(baseTime))
	assert.Equal(t, "Austin", ds.At(0).City)

	_, err = os.Stat(filepath.Join(dir, "mirror.json"))
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasSuffix(e.Name(), ".tmp"), "leftover temp file %s", e.Name())
	}
}

func TestGetIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "advocates.csv")
	writeCSV(t, src, sampleRows, baseTime)

	c := newTestCache(dir, src)
	first, err := c.Get(context.Background())
	require.NoError(t, err)
	second, err := c.Get(context.Background())
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, first.Records(), second.Records())
	assert.Equal(t, int64(1), c.Stats().Rebuilds)
	assert.Equal(t, int64(1), c.Stats().SourceParses)
}

func TestGetUsesFreshMirror(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "advocates.csv")
	writeCSV(t, src, sampleRows, baseTime)

	built, err := newTestCache(dir, src).Get(context.Background())
	require.NoError(t, err)

	c := newTestCache(dir, src)
	ds, err := c.Get(context.Background())
	require.NoError(t, err)

	assert.True(t, ds.Meta().FromMirror)
	assert.Equal(t, built.Meta().LoadID, ds.Meta().LoadID)
	assert.Equal(t, built.Records(), ds.Records())
	assert.Equal(t, built.Diagnostics(), ds.Diagnostics())
	assert.Equal(t, int64(0), c.Stats().SourceParses)
	assert.Equal(t, int64(1), c.Stats().MirrorLoads)
}

func TestGetRebuildsWhenSourceChanges(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "advocates.csv")
	writeCSV(t, src, sampleRows, baseTime)

	c := newTestCache(dir, src)
	first, err := c.Get(context.Background())
	require.NoError(t, err)

	writeCSV(t, src, sampleRows[:2], baseTime.Add(time.Hour))
	second, err := c.Get(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.Meta().LoadID, second.Meta().LoadID)
	assert.Equal(t, 1, second.Len())
	assert.Equal(t, 3, first.Len(), "old snapshot must stay intact")

	// a fresh process must not trust the old mirror either
	other := newTestCache(dir, src)
	third, err := other.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, second.Meta().LoadID, third.Meta().LoadID)
	assert.True(t, third.Meta().FromMirror)
}

func TestInvalidateSkipsMirror(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "advocates.csv")
	writeCSV(t, src, sampleRows, baseTime)

	c := newTestCache(dir, src)
	first, err := c.Get(context.Background())
	require.NoError(t, err)

	c.Invalidate()
	second, err := c.Get(context.Background())
	require.NoError(t, err)

	assert.NotEqual(t, first.Meta().LoadID, second.Meta().LoadID)
	assert.False(t, second.Meta().FromMirror)
	assert.Equal(t, int64(2), c.Stats().SourceParses)
}

func TestCorruptMirrorIsRebuilt(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "advocates.csv")
	mirror := filepath.Join(dir, "mirror.json")
	writeCSV(t, src, sampleRows, baseTime)
	require.NoError(t, os.WriteFile(mirror, []byte(`{"version":1,"records":[{"na`), 0o644))

	c := newTestCache(dir, src)
	ds, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, ds.Meta().FromMirror)
	assert.Equal(t, 3, ds.Len())

	_, err = readMirror(mirror)
	assert.NoError(t, err)
}

func TestUnreadableSourceServesPrevious(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "advocates.xlsx")
	writeXLSX(t, src, sampleRows, baseTime)

	c := newTestCache(dir, src)
	first, err := c.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, first.Len())

	require.NoError(t, os.WriteFile(src, []byte("definitely not a zip"), 0o644))
	require.NoError(t, os.Chtimes(src, baseTime.Add(time.Hour), baseTime.Add(time.Hour)))

	second, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int64(1), c.Stats().StaleServes)

	// the broken file is not re-parsed while it stays unchanged
	_, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Stats().SourceParses)

	// a new process falls back to the stale mirror
	other := newTestCache(dir, src)
	third, err := other.Get(context.Background())
	require.NoError(t, err)
	assert.True(t, third.Meta().FromMirror)
	assert.Equal(t, first.Records(), third.Records())
}

func TestMissingSourceServesMirror(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "advocates.csv")
	writeCSV(t, src, sampleRows, baseTime)

	_, err := newTestCache(dir, src).Get(context.Background())
	require.NoError(t, err)
	require.NoError(t, os.Remove(src))

	ds, err := newTestCache(dir, src).Get(context.Background())
	require.NoError(t, err)
	assert.True(t, ds.Meta().FromMirror)
	assert.Equal(t, 3, ds.Len())
}

func TestUnavailableWithoutAnySnapshot(t *testing.T) {
	dir := t.TempDir()

	_, err := newTestCache(dir, filepath.Join(dir, "missing.csv")).Get(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDatasetUnavailable))
	assert.True(t, errors.Is(err, ingest.ErrSourceUnreadable))

	junk := filepath.Join(dir, "junk.xlsx")
	require.NoError(t, os.WriteFile(junk, []byte("junk"), 0o644))
	_, err = newTestCache(dir, junk).Get(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDatasetUnavailable))
	assert.True(t, errors.Is(err, ingest.ErrSourceUnreadable))
}

func TestMirrorWriteFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "advocates.csv")
	writeCSV(t, src, sampleRows, baseTime)

	// parent of the mirror is a regular file, so the directory cannot exist
	c := New(Config{
		SourcePath: src,
		MirrorPath: filepath.Join(src, "mirror.json"),
	}, WithLogger(log.New(io.Discard, "", 0)))

	ds, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Len())
	assert.Equal(t, int64(1), c.Stats().MirrorWriteFailures)
}

func TestConcurrentGetParsesOnce(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "advocates.csv")
	writeCSV(t, src, sampleRows, baseTime)

	c := newTestCache(dir, src)

	var wg sync.WaitGroup
	results := make([]*models.Dataset, 32)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ds, err := c.Get(context.Background())
			assert.NoError(t, err)
			results[i] = ds
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), c.Stats().SourceParses)
	for _, ds := range results {
		assert.Same(t, results[0], ds)
	}
}

func TestOnLoadHook(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "advocates.csv")
	writeCSV(t, src, sampleRows, baseTime)

	c := newTestCache(dir, src)
	var loaded []string
	c.OnLoad(func(ds *models.Dataset) { loaded = append(loaded, ds.Meta().LoadID) })

	ds, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{ds.Meta().LoadID}, loaded)
}

func TestClosedCacheAbortsRebuild(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "advocates.csv")
	writeCSV(t, src, sampleRows, baseTime)

	c := newTestCache(dir, src)
	c.Close()

	_, err := c.Get(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDatasetUnavailable))
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestGetHonorsCallerContext(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "advocates.csv")
	writeCSV(t, src, sampleRows, baseTime)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestCache(dir, src)
	// either the rebuild wins the race or the cancelled wait does; both are fine
	ds, err := c.Get(ctx)
	if err != nil {
		assert.True(t, errors.Is(err, context.Canceled))
	} else {
		assert.Equal(t, 3, ds.Len())
	}
}

func TestRebuildTimeoutFailsAndRetries(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "advocates.csv")
	rows := [][]string{sampleRows[0]}
	for i := 0; i < 20000; i++ {
		rows = append(rows, []string{"Firm " + strings.Repeat("x", i%7), "Owner", "Pune", "Maharashtra", "9000000000"})
	}
	writeCSV(t, src, rows, baseTime)

	c := New(Config{
		SourcePath:     src,
		MirrorPath:     filepath.Join(dir, "mirror.json"),
		RebuildTimeout: time.Nanosecond,
	}, WithLogger(log.New(io.Discard, "", 0)))
	defer c.Close()

	start := time.Now()
	_, err := c.Get(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDatasetUnavailable))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Less(t, time.Since(start), 5*time.Second)

	// an unchanged source is tried again after a timeout
	_, err = c.Get(context.Background())
	require.Error(t, err)
	assert.Equal(t, int64(2), c.Stats().SourceParses)
	assert.NoFileExists(t, filepath.Join(dir, "mirror.json"))
}
