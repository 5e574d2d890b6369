// Package catalog discovers the per-state dataset files held in a blob store
// and derives the widget configuration from them.
package catalog

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"foodpantry/internal/blob"
	"foodpantry/internal/config"
	"foodpantry/internal/dataset"
	"foodpantry/internal/log"
)

// Entry is the current dataset file for one state.
type Entry struct {
	State        string    `json:"state"`
	Key          string    `json:"key"`
	Version      string    `json:"version,omitempty"`
	Size         int64     `json:"size_bytes"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified"`
	// Versions counts every file found for the state, the current one included.
	Versions int `json:"versions"`
}

// Settings are the parts of the widget configuration the catalog cannot
// discover.
type Settings struct {
	DatasetsBaseURL string
	Labels          map[string]string
	// CacheBuster overrides the derived one when set.
	CacheBuster string
}

// Catalog holds the last discovered entries. It is safe for concurrent use.
type Catalog struct {
	store    blob.Store
	recorder dataset.Recorder

	mu        sync.RWMutex
	entries   []Entry
	refreshed time.Time
	observers []func([]Entry)
}

// Option customizes a Catalog.
type Option func(*Catalog)

// WithRecorder observes every refresh as the "catalog_refresh" operation.
func WithRecorder(r dataset.Recorder) Option { return func(c *Catalog) { c.recorder = r } }

// New returns an empty catalog over store; call Refresh to populate it.
func New(store blob.Store, opts ...Option) *Catalog {
	c := &Catalog{store: store}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnRefresh registers fn to run with the new entries after every successful
// refresh.
func (c *Catalog) OnRefresh(fn func([]Entry)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

// Refresh lists the store and picks the highest version per state. Keys that
// do not follow the dataset filename convention are ignored.
func (c *Catalog) Refresh(ctx context.Context) (err error) {
	if c.recorder != nil {
		start := time.Now()
		defer func() { c.recorder.Observe(ctx, "catalog_refresh", err == nil, time.Since(start)) }()
	}
	infos, err := c.store.List(ctx, "")
	if err != nil {
		return fmt.Errorf("catalog: list blobs: %w", err)
	}
	entries := Select(infos)

	c.mu.Lock()
	c.entries = entries
	c.refreshed = time.Now().UTC()
	observers := append([]func([]Entry){}, c.observers...)
	c.mu.Unlock()

	log.Debug(ctx).Int("states", len(entries)).Int("blobs", len(infos)).Msg("catalog: refreshed")
	for _, fn := range observers {
		fn(cloneEntries(entries))
	}
	return nil
}

// Select reduces a blob listing to one entry per state, ordered by state.
func Select(infos []blob.Info) []Entry {
	current := make(map[string]Entry)
	for _, info := range infos {
		state, version, ok := dataset.ParseFilename(info.Key)
		if !ok {
			continue
		}
		candidate := Entry{
			State:        state,
			Key:          info.Key,
			Version:      version,
			Size:         info.Size,
			ETag:         info.ETag,
			LastModified: info.LastModified,
		}
		prev, seen := current[state]
		candidate.Versions = prev.Versions + 1
		if !seen || dataset.CompareVersions(version, prev.Version) > 0 {
			current[state] = candidate
			continue
		}
		prev.Versions = candidate.Versions
		current[state] = prev
	}
	entries := make([]Entry, 0, len(current))
	for _, e := range current {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].State < entries[j].State })
	return entries
}

// Entries returns the current entries ordered by state.
func (c *Catalog) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneEntries(c.entries)
}

// Lookup returns the current entry for a state code.
func (c *Catalog) Lookup(state string) (Entry, bool) {
	code, ok := config.NormalizeStateCode(state)
	if !ok {
		return Entry{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.entries {
		if e.State == code {
			return e, true
		}
	}
	return Entry{}, false
}

// Refreshed reports when the catalog last listed the store.
func (c *Catalog) Refreshed() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.refreshed
}

// Config builds the widget configuration: every discovered state, with an
// explicit filename per state so the widget never derives one.
func (c *Catalog) Config(s Settings) config.Config {
	entries := c.Entries()
	cfg := config.Config{
		DatasetsBaseURL: s.DatasetsBaseURL,
		States:          make([]string, 0, len(entries)),
		Datasets:        make(map[string]string, len(entries)),
		Labels:          s.Labels,
		CacheBuster:     s.CacheBuster,
	}
	for _, e := range entries {
		cfg.States = append(cfg.States, e.State)
		cfg.Datasets[e.State] = e.Key
	}
	if cfg.CacheBuster == "" && len(entries) > 0 {
		cfg.CacheBuster = Fingerprint(entries)
	}
	return config.Normalize(cfg)
}

// Fingerprint is a short digest of the entries' keys and ETags. It changes
// whenever a dataset is republished.
func Fingerprint(entries []Entry) string {
	h := sha256.New()
	for _, e := range entries {
		fmt.Fprintf(h, "%s\x00%s\x00%d\n", e.Key, e.ETag, e.Size)
	}
	return hex.EncodeToString(h.Sum(nil))[:12]
}

func cloneEntries(in []Entry) []Entry {
	return append([]Entry(nil), in...)
}
