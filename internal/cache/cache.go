package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/local/printmanager/internal/dispatcher"
	"github.com/local/printmanager/internal/docerr"
	"github.com/local/printmanager/internal/docmeta"
	"github.com/local/printmanager/internal/inkcov"
	"github.com/local/printmanager/internal/metrics"
)

// MetadataReader reads the basic, non-color metadata of a document.
type MetadataReader interface {
	Read(ctx context.Context, path string) (docmeta.Info, error)
}

// Analyzer classifies the pages of a document. Analyze blocks.
type Analyzer interface {
	IsToolAvailable() bool
	Analyze(ctx context.Context, path string) (inkcov.Report, error)
}

// ReportStore persists color reports by document key.
type ReportStore interface {
	Load(ctx context.Context, key docmeta.Key) (inkcov.Report, bool, error)
	Save(ctx context.Context, key docmeta.Key, rep inkcov.Report) error
}

// Submitter runs tasks off the caller's goroutine.
type Submitter interface {
	Submit(t dispatcher.Task) error
}

// EnrichStatus is the immediate result of Enrich.
type EnrichStatus int

const (
	// EnrichStarted means an analysis was queued.
	EnrichStarted EnrichStatus = iota
	// EnrichInFlight means an analysis for the document is already running.
	EnrichInFlight
	// EnrichUnavailable means the tool is missing; color info stays unknown.
	EnrichUnavailable
	// EnrichCached means the document version already has a known report.
	EnrichCached
)

func (s EnrichStatus) String() string {
	switch s {
	case EnrichStarted:
		return "started"
	case EnrichInFlight:
		return "in_flight"
	case EnrichUnavailable:
		return "unavailable"
	case EnrichCached:
		return "cached"
	default:
		return fmt.Sprintf("EnrichStatus(%d)", int(s))
	}
}

type Options struct {
	Reader   MetadataReader
	Analyzer Analyzer
	Pool     Submitter
	// Store is optional.
	Store ReportStore
}

// Cache holds one DocumentMetadata per document version and runs at most one
// color analysis per key at a time. A single mutex guards entries, the path
// index and the in-flight set; it is never held while a document is read or
// analyzed.
type Cache struct {
	reader   MetadataReader
	analyzer Analyzer
	pool     Submitter
	store    ReportStore

	mu       sync.Mutex
	entries  map[docmeta.Key]DocumentMetadata
	byPath   map[string]docmeta.Key
	inflight map[docmeta.Key]struct{}
	subs     map[int]func(DocumentMetadata)
	nextSub  int

	pending sync.WaitGroup
}

func New(opts Options) *Cache {
	return &Cache{
		reader:   opts.Reader,
		analyzer: opts.Analyzer,
		pool:     opts.Pool,
		store:    opts.Store,
		entries:  make(map[docmeta.Key]DocumentMetadata),
		byPath:   make(map[string]docmeta.Key),
		inflight: make(map[docmeta.Key]struct{}),
		subs:     make(map[int]func(DocumentMetadata)),
	}
}

// GetOrLoad returns the cached entry for the current version of path, reading
// it first if needed. It never touches color info and is safe to call
// repeatedly.
func (c *Cache) GetOrLoad(ctx context.Context, path string) (DocumentMetadata, error) {
	key, _, err := docmeta.Identify(path)
	if err != nil {
		return DocumentMetadata{}, err
	}

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return e.clone(), nil
	}
	c.mu.Unlock()

	info, err := c.reader.Read(ctx, path)
	if err != nil {
		return DocumentMetadata{}, err
	}
	entry := DocumentMetadata{Key: key, Info: info, LoadedAt: time.Now().UTC()}

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		// lost a race with a concurrent load of the same version
		c.mu.Unlock()
		return e.clone(), nil
	}
	if old, ok := c.byPath[info.Path]; ok && old != key {
		if _, running := c.inflight[old]; !running {
			delete(c.entries, old)
		}
		log.Debug().Str("file", info.Path).Str("old_key", string(old)).Str("key", string(key)).Msg("document changed on disk")
	}
	c.entries[key] = entry
	c.byPath[info.Path] = key
	n := len(c.entries)
	c.mu.Unlock()

	metrics.SetCacheEntries(n)
	log.Debug().Str("key", string(key)).Str("file", info.Path).Int("pages", info.PageCount).Msg("document loaded")
	return entry.clone(), nil
}

// Get returns the entry for key. The second result is false on a miss.
func (c *Cache) Get(key docmeta.Key) (DocumentMetadata, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok {
		return DocumentMetadata{}, false
	}
	return e.clone(), true
}

// List returns all entries ordered by path.
func (c *Cache) List() []DocumentMetadata {
	c.mu.Lock()
	out := make([]DocumentMetadata, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.clone())
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path == out[j].Path {
			return out[i].Key < out[j].Key
		}
		return out[i].Path < out[j].Path
	})
	return out
}

// Remove drops key. An analysis still running for it completes and its
// result is discarded.
func (c *Cache) Remove(key docmeta.Key) bool {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
		if c.byPath[e.Path] == key {
			delete(c.byPath, e.Path)
		}
	}
	n := len(c.entries)
	c.mu.Unlock()
	if ok {
		metrics.SetCacheEntries(n)
	}
	return ok
}

// Subscribe registers fn for every replaced entry. Callbacks run on the
// goroutine that completed the update and must not block. The returned func
// unsubscribes.
func (c *Cache) Subscribe(fn func(DocumentMetadata)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Enrich starts color analysis of path without blocking. The document is
// loaded first, so on a nil error the entry exists.
func (c *Cache) Enrich(ctx context.Context, path string) (EnrichStatus, error) {
	doc, err := c.GetOrLoad(ctx, path)
	if err != nil {
		return 0, err
	}
	if c.analyzer == nil || !c.analyzer.IsToolAvailable() {
		metrics.IncEnrich("unavailable")
		return EnrichUnavailable, nil
	}

	c.mu.Lock()
	if _, running := c.inflight[doc.Key]; running {
		c.mu.Unlock()
		metrics.IncEnrich("in_flight")
		return EnrichInFlight, nil
	}
	cur, ok := c.entries[doc.Key]
	if !ok {
		// removed between load and here
		c.mu.Unlock()
		return 0, fmt.Errorf("%w: %s", docerr.ErrNotFound, doc.Key)
	}
	if cur.ColorKnown() {
		c.mu.Unlock()
		metrics.IncEnrich("cached")
		return EnrichCached, nil
	}
	prev := cur.Color
	pending := cur.withColor(ColorInfo{State: ColorPending})
	c.entries[doc.Key] = pending
	c.inflight[doc.Key] = struct{}{}
	metrics.SetInflight(len(c.inflight))
	c.pending.Add(1)
	c.mu.Unlock()

	c.notify(pending)

	key, docPath := doc.Key, doc.Path
	if err := c.pool.Submit(func(ctx context.Context) { c.enrich(ctx, key, docPath) }); err != nil {
		c.mu.Lock()
		delete(c.inflight, key)
		metrics.SetInflight(len(c.inflight))
		e, ok := c.entries[key]
		if ok {
			e = e.withColor(prev)
			c.entries[key] = e
		}
		c.mu.Unlock()
		c.pending.Done()
		if ok {
			c.notify(e)
		}
		return 0, fmt.Errorf("queue analysis of %s: %w", docPath, err)
	}

	metrics.IncEnrich("started")
	return EnrichStarted, nil
}

// Wait blocks until every analysis started so far has completed.
func (c *Cache) Wait() { c.pending.Wait() }

func (c *Cache) enrich(ctx context.Context, key docmeta.Key, path string) {
	defer c.pending.Done()
	lg := log.With().Str("key", string(key)).Str("file", path).Logger()

	if c.store != nil {
		rep, ok, err := c.store.Load(ctx, key)
		if err != nil {
			lg.Warn().Err(err).Msg("report store lookup failed")
		}
		if ok {
			metrics.IncEnrich("store_hit")
			c.complete(key, rep, nil)
			return
		}
	}

	rep, err := c.analyzer.Analyze(ctx, path)
	if err == nil && c.store != nil {
		if serr := c.store.Save(ctx, key, rep); serr != nil {
			lg.Warn().Err(serr).Msg("report store save failed")
		}
	}
	if err != nil {
		lg.Warn().Err(err).Str("category", docerr.Category(err)).Msg("color analysis failed; color info unavailable")
	}
	c.complete(key, rep, err)
}

// complete replaces the entry for key and always clears the in-flight mark.
func (c *Cache) complete(key docmeta.Key, rep inkcov.Report, err error) {
	c.mu.Lock()
	delete(c.inflight, key)
	metrics.SetInflight(len(c.inflight))
	e, ok := c.entries[key]
	if !ok {
		c.mu.Unlock()
		log.Debug().Str("key", string(key)).Msg("analysis finished for a removed document; discarding")
		return
	}
	if c.byPath[e.Path] != key {
		// file changed while this version was analyzed; GetOrLoad kept it only for us
		delete(c.entries, key)
		n := len(c.entries)
		c.mu.Unlock()
		metrics.SetCacheEntries(n)
		log.Debug().Str("key", string(key)).Str("file", e.Path).Msg("analysis finished for a superseded version; evicted")
		return
	}
	switch {
	case err == nil:
		e = e.withColor(knownColor(rep))
	case docerr.IsToolUnavailable(err):
		e = e.withColor(ColorInfo{State: ColorUnknown})
	default:
		e = e.withColor(failedColor(err))
	}
	c.entries[key] = e
	c.mu.Unlock()

	c.notify(e)
}

func (c *Cache) notify(e DocumentMetadata) {
	c.mu.Lock()
	fns := make([]func(DocumentMetadata), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		fn(e.clone())
	}
}

func (d DocumentMetadata) clone() DocumentMetadata {
	d.PageSizes = append([]docmeta.PageSize(nil), d.PageSizes...)
	if d.Color.Report != nil {
		r := d.Color.Report.Clone()
		d.Color.Report = &r
	}
	return d
}
