// Package publish turns raw scraper output into versioned per-state dataset
// files, writes them to the blob store and records each publication in the
// ledger.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"

	"foodpantry/internal/blob"
	"foodpantry/internal/config"
	"foodpantry/internal/dataset"
	"foodpantry/internal/ledger"
	"foodpantry/internal/log"
)

// VersionLayout formats the timestamp used as a dataset version.
const VersionLayout = "20060102150405"

// Recorder observes publisher activity; *metrics.Recorder implements it.
type Recorder interface {
	dataset.Recorder
	Published(state string)
}

// Input is one raw scraper file: either a JSON array of records or an object
// with a "pantries" array.
type Input struct {
	Name string
	Body []byte
}

// Result summarizes a Publish run.
type Result struct {
	Publications []ledger.Publication
	// Rejected counts records dropped for lacking a usable state.
	Rejected int
}

// Publisher writes datasets. Use New.
type Publisher struct {
	store    blob.Store
	ledger   ledger.Store
	recorder Recorder
	now      func() time.Time
	newID    func() string
	backOff  func() backoff.BackOff
	readers  int
	state    string
}

// Option customizes a Publisher.
type Option func(*Publisher)

// WithRecorder attaches metrics.
func WithRecorder(r Recorder) Option { return func(p *Publisher) { p.recorder = r } }

// WithClock overrides the time source used for versions.
func WithClock(now func() time.Time) Option { return func(p *Publisher) { p.now = now } }

// WithIDs overrides publication id generation.
func WithIDs(fn func() string) Option { return func(p *Publisher) { p.newID = fn } }

// WithBackOff sets the retry policy for blob writes.
func WithBackOff(fn func() backoff.BackOff) Option { return func(p *Publisher) { p.backOff = fn } }

// WithConcurrency bounds how many input files are read at once.
func WithConcurrency(n int) Option {
	return func(p *Publisher) {
		if n > 0 {
			p.readers = n
		}
	}
}

// WithDefaultState assigns records without a valid state to code.
func WithDefaultState(code string) Option {
	return func(p *Publisher) {
		if c, ok := config.NormalizeStateCode(code); ok {
			p.state = c
		}
	}
}

// New returns a publisher writing to store and recording to l.
func New(store blob.Store, l ledger.Store, opts ...Option) *Publisher {
	p := &Publisher{
		store:   store,
		ledger:  l,
		now:     time.Now,
		newID:   func() string { return uuid.NewString() },
		readers: 4,
		backOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = 30 * time.Second
			return backoff.WithMaxRetries(b, 5)
		},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PublishFS reads the named files from fsys concurrently, then publishes them.
func (p *Publisher) PublishFS(ctx context.Context, fsys fs.FS, names []string) (Result, error) {
	inputs := make([]Input, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.readers)
	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			body, err := fs.ReadFile(fsys, name)
			if err != nil {
				return fmt.Errorf("read %s: %w", name, err)
			}
			inputs[i] = Input{Name: name, Body: body}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}
	return p.Publish(ctx, inputs)
}

// Publish parses, dedupes and writes one dataset per state found in inputs.
// All datasets of a run share one version.
func (p *Publisher) Publish(ctx context.Context, inputs []Input) (res Result, err error) {
	start := time.Now()
	defer func() {
		if p.recorder != nil {
			p.recorder.Observe(ctx, "publish", err == nil, time.Since(start))
		}
	}()

	var records []dataset.Record
	for _, in := range inputs {
		recs, err := ParseInput(in.Body)
		if err != nil {
			return Result{}, fmt.Errorf("parse %s: %w", in.Name, err)
		}
		log.Debug(ctx).Str("input", in.Name).Int("records", len(recs)).Msg("publish: parsed input")
		records = append(records, recs...)
	}

	byState := make(map[string][]dataset.Record)
	for _, rec := range records {
		code, ok := config.NormalizeStateCode(rec.State)
		if !ok {
			code = p.state
		}
		if code == "" {
			res.Rejected++
			continue
		}
		byState[code] = append(byState[code], rec)
	}
	states := make([]string, 0, len(byState))
	for code := range byState {
		states = append(states, code)
	}
	sort.Strings(states)

	published := p.now().UTC()
	version := published.Format(VersionLayout)
	for _, code := range states {
		pub, err := p.publishState(ctx, code, version, published, byState[code])
		if err != nil {
			return res, err
		}
		res.Publications = append(res.Publications, pub)
	}
	if res.Rejected > 0 {
		log.Warn(ctx).Int("rejected", res.Rejected).Msg("publish: records without a state were skipped")
	}
	return res, nil
}

func (p *Publisher) publishState(ctx context.Context, code, version string, published time.Time, records []dataset.Record) (ledger.Publication, error) {
	unique, merged := Dedupe(records)
	AssignIDs(unique)
	payload, err := json.Marshal(unique)
	if err != nil {
		return ledger.Publication{}, fmt.Errorf("encode %s dataset: %w", code, err)
	}
	pub := ledger.Publication{
		ID:          p.newID(),
		State:       code,
		Key:         dataset.Filename(code, version),
		Version:     version,
		Duplicates:  merged,
		Stats:       ComputeStats(unique),
		PublishedAt: published,
	}

	var info blob.Info
	put := func() error {
		var err error
		info, err = p.store.Put(ctx, pub.Key, bytes.NewReader(payload), blob.PutOptions{
			ContentType: "application/json",
			Metadata:    map[string]string{"state": code, "version": version, "publication": pub.ID},
		})
		if errors.Is(err, blob.ErrExists) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, wait time.Duration) {
		log.Warn(ctx).Err(err).Str("key", pub.Key).Dur("retry_in", wait).Msg("publish: blob write failed")
	}
	if err := backoff.RetryNotify(put, backoff.WithContext(p.backOff(), ctx), notify); err != nil {
		return ledger.Publication{}, fmt.Errorf("write %s: %w", pub.Key, err)
	}
	pub.Size, pub.ETag = info.Size, info.ETag

	if err := p.ledger.Record(ctx, pub); err != nil {
		err = fmt.Errorf("record publication %s: %w", pub.ID, err)
		// An unrecorded dataset must not become the catalog's current version.
		if _, derr := p.store.Delete(context.WithoutCancel(ctx), pub.Key); derr != nil {
			return ledger.Publication{}, errors.Join(err, fmt.Errorf("roll back %s: %w", pub.Key, derr))
		}
		log.Warn(ctx).Err(err).Str("key", pub.Key).Msg("publish: dataset removed after ledger failure")
		return ledger.Publication{}, err
	}
	if p.recorder != nil {
		p.recorder.Published(code)
	}
	log.Info(ctx).
		Str("state", code).
		Str("key", pub.Key).
		Int("records", pub.Stats.Total).
		Int("duplicates", merged).
		Msg("publish: dataset written")
	return pub, nil
}

// ParseInput decodes a raw scraper file. Objects are read from the root
// array or from a "pantries" array; anything else is a format error.
func ParseInput(body []byte) ([]dataset.Record, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: input is not valid JSON", dataset.ErrFormat)
	}
	root := gjson.ParseBytes(body)
	list := root
	if root.IsObject() {
		list = root.Get("pantries")
	}
	if !list.IsArray() {
		return nil, fmt.Errorf("%w: expected an array of pantries", dataset.ErrFormat)
	}
	var out []dataset.Record
	list.ForEach(func(_, item gjson.Result) bool {
		if item.IsObject() {
			out = append(out, dataset.DecodeRecord(item))
		}
		return true
	})
	return out, nil
}

// AssignIDs gives every record without an id, or with an id already used
// earlier in the slice, the next integer above the highest numeric id.
func AssignIDs(records []dataset.Record) {
	next := 0
	for _, r := range records {
		if n, err := strconv.Atoi(strings.TrimSpace(r.ID)); err == nil && n > next {
			next = n
		}
	}
	seen := make(map[string]bool, len(records))
	for i := range records {
		id := strings.TrimSpace(records[i].ID)
		if id == "" || seen[id] {
			next++
			id = strconv.Itoa(next)
		}
		records[i].ID = id
		seen[id] = true
	}
}
