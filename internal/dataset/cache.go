package dataset

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"advodash/internal/ingest"
	"advodash/pkg/models"
)

var (
	// ErrDatasetUnavailable means no dataset could be produced from the
	// source, the in-memory snapshot or the mirror.
	ErrDatasetUnavailable = errors.New("dataset unavailable")

	// ErrMirrorWriteFailed is logged (never returned) when the mirror
	// could not be replaced; the in-memory dataset is still served.
	ErrMirrorWriteFailed = errors.New("mirror write failed")
)

type Config struct {
	SourcePath     string
	Sheet          string
	MirrorPath     string
	RebuildTimeout time.Duration
	SampleLimit    int
}

type Option func(*Cache)

func WithLogger(l *log.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}

// Stats counts what the cache has done since it was created.
type Stats struct {
	Rebuilds            int64 `json:"rebuilds"`
	SourceParses        int64 `json:"source_parses"`
	MirrorLoads         int64 `json:"mirror_loads"`
	MirrorWriteFailures int64 `json:"mirror_write_failures"`
	StaleServes         int64 `json:"stale_serves"`
}

// Cache owns the authoritative Dataset. Readers get the current immutable
// snapshot; a rebuild swaps in a new one. At most one rebuild runs at a
// time and concurrent callers wait for it.
type Cache struct {
	cfg    Config
	logger *log.Logger

	current atomic.Pointer[models.Dataset]
	dirty   atomic.Bool
	// mtime (unix nanos) of a source that failed to parse, so an unchanged
	// broken file is not re-parsed on every request
	failedMTime atomic.Int64

	group  singleflight.Group
	ctx    context.Context
	cancel context.CancelFunc

	hookMu sync.Mutex
	hooks  []func(*models.Dataset)

	rebuilds, parses, mirrorLoads, mirrorFails, stale atomic.Int64
}

func New(cfg Config, opts ...Option) *Cache {
	if cfg.RebuildTimeout <= 0 {
		cfg.RebuildTimeout = time.Minute
	}
	if cfg.SampleLimit <= 0 {
		cfg.SampleLimit = ingest.DefaultOptions().SampleLimit
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Cache{
		cfg:    cfg,
		logger: log.Default(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnLoad registers fn to run after every newly published dataset.
func (c *Cache) OnLoad(fn func(*models.Dataset)) {
	c.hookMu.Lock()
	c.hooks = append(c.hooks, fn)
	c.hookMu.Unlock()
}

// Invalidate forces the next Get to rebuild from the source, skipping the
// mirror.
func (c *Cache) Invalidate() {
	c.failedMTime.Store(0)
	c.dirty.Store(true)
}

// Close aborts any in-flight rebuild. Later rebuilds fail immediately, so
// Get only serves what is already loaded.
func (c *Cache) Close() {
	c.cancel()
}

// Current returns the loaded snapshot without triggering a rebuild.
func (c *Cache) Current() *models.Dataset {
	return c.current.Load()
}

func (c *Cache) Stats() Stats {
	return Stats{
		Rebuilds:            c.rebuilds.Load(),
		SourceParses:        c.parses.Load(),
		MirrorLoads:         c.mirrorLoads.Load(),
		MirrorWriteFailures: c.mirrorFails.Load(),
		StaleServes:         c.stale.Load(),
	}
}

// Get returns the current dataset, loading or rebuilding it first when
// the source changed, Invalidate was called or nothing is loaded yet.
func (c *Cache) Get(ctx context.Context) (*models.Dataset, error) {
	if ds := c.current.Load(); ds != nil && !c.dirty.Load() {
		fi, err := os.Stat(c.cfg.SourcePath)
		if err != nil {
			// source gone: keep serving what we have
			return ds, nil
		}
		mtime := fi.ModTime()
		if !mtime.After(ds.Meta().SourceMTime) || mtime.UnixNano() == c.failedMTime.Load() {
			return ds, nil
		}
	}

	ch := c.group.DoChan("rebuild", func() (any, error) {
		return c.rebuild()
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*models.Dataset), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Cache) rebuild() (*models.Dataset, error) {
	c.rebuilds.Add(1)
	force := c.dirty.Swap(false)
	prev := c.current.Load()
	src := c.cfg.SourcePath

	fi, err := os.Stat(src)
	if err != nil {
		srcErr := fmt.Errorf("%w: %v", ingest.ErrSourceUnreadable, err)
		return c.fallback(prev, srcErr)
	}
	mtime := fi.ModTime()

	if !force {
		if prev != nil && !mtime.After(prev.Meta().SourceMTime) {
			return prev, nil
		}
		doc, err := readMirror(c.cfg.MirrorPath)
		switch {
		case err == nil && doc.fresh(src, mtime):
			ds := doc.dataset()
			c.mirrorLoads.Add(1)
			c.logger.Printf("[dataset] loaded %d records from mirror %s", ds.Len(), c.cfg.MirrorPath)
			c.publish(ds)
			return ds, nil
		case err == nil:
			c.logger.Printf("[dataset] mirror %s is stale, rebuilding from %s", c.cfg.MirrorPath, src)
		case !isNotExist(err):
			c.logger.Printf("[dataset] mirror %s unusable: %v", c.cfg.MirrorPath, err)
		}
	}

	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.RebuildTimeout)
	defer cancel()

	c.parses.Add(1)
	start := time.Now()
	res, err := ingest.Load(ctx, src, ingest.Options{Sheet: c.cfg.Sheet, SampleLimit: c.cfg.SampleLimit})
	if err != nil {
		// a timeout or shutdown says nothing about the file; retry next time
		if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, context.Canceled) {
			c.failedMTime.Store(mtime.UnixNano())
		}
		return c.fallback(prev, err)
	}
	c.failedMTime.Store(0)

	ds := models.NewDataset(models.DatasetMeta{
		LoadID:      uuid.NewString(),
		SourcePath:  src,
		SourceMTime: mtime,
		LoadedAt:    time.Now().UTC(),
	}, res.Records, res.Diagnostics)

	c.logger.Printf("[dataset] parsed %s: %d records, %d rejected (%s)",
		src, ds.Len(), res.Diagnostics.Rejected, time.Since(start).Round(time.Millisecond))
	for _, s := range res.Diagnostics.Samples {
		c.logger.Printf("[dataset] rejected row %d: %s", s.Row, s.Reason)
	}

	if err := writeMirror(c.cfg.MirrorPath, ds); err != nil {
		c.mirrorFails.Add(1)
		c.logger.Printf("[dataset] warning: %v: %v", ErrMirrorWriteFailed, err)
	}

	c.publish(ds)
	return ds, nil
}

// fallback serves the best snapshot available after the source failed:
// the in-memory dataset, then whatever mirror exists, regardless of age.
func (c *Cache) fallback(prev *models.Dataset, srcErr error) (*models.Dataset, error) {
	if prev != nil {
		c.stale.Add(1)
		c.logger.Printf("[dataset] warning: serving previous dataset %s: %v", prev.Meta().LoadID, srcErr)
		return prev, nil
	}

	doc, err := readMirror(c.cfg.MirrorPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDatasetUnavailable, srcErr)
	}

	ds := doc.dataset()
	c.stale.Add(1)
	c.mirrorLoads.Add(1)
	c.logger.Printf("[dataset] warning: serving mirror %s built at %s: %v",
		c.cfg.MirrorPath, ds.Meta().LoadedAt.Format(time.RFC3339), srcErr)
	c.publish(ds)
	return ds, nil
}

func (c *Cache) publish(ds *models.Dataset) {
	c.current.Store(ds)

	c.hookMu.Lock()
	hooks := append([]func(*models.Dataset){}, c.hooks...)
	c.hookMu.Unlock()

	for _, fn := range hooks {
		fn(ds)
	}
}
