package publish

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodpantry/internal/blob"
	"foodpantry/internal/dataset"
	"foodpantry/internal/infra/persistence/memory"
	"foodpantry/internal/ledger"
)

var fixedNow = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

const scraperOutput = `{
  "pantries": [
    {"name": "Reno Food Bank", "address": "1 Main St", "city": "Reno", "state": "NV", "zip": "89501", "phone": "(775) 555-0100", "source_url": "https://pantries.example/nv/1"},
    {"name": "reno food bank", "address": "1 main st", "city": "Reno", "state": "nv", "zip": "89501", "phone": "775-555-0100", "hours": "Mon-Fri 9-5"},
    {"name": "LA Pantry", "city": "Los Angeles", "state": "CA", "website": "la.example"},
    {"name": "Nowhere", "state": "??"},
    "not an object"
  ],
  "stats": {"total": 4}
}`

type fakeRecorder struct {
	ops       []string
	published []string
}

func (f *fakeRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	if success {
		f.ops = append(f.ops, op+":ok")
		return
	}
	f.ops = append(f.ops, op+":error")
}

func (f *fakeRecorder) Published(state string) { f.published = append(f.published, state) }

func newPublisher(store blob.Store, l ledger.Store, opts ...Option) *Publisher {
	var n int64
	base := []Option{
		WithClock(func() time.Time { return fixedNow }),
		WithIDs(func() string { return "pub-" + string(rune('a'+atomic.AddInt64(&n, 1)-1)) }),
		WithBackOff(func() backoff.BackOff { return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3) }),
	}
	return New(store, l, append(base, opts...)...)
}

func TestPublishWritesPerStateDatasets(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	l := memory.NewStore()
	rec := &fakeRecorder{}
	p := newPublisher(store, l, WithRecorder(rec))

	res, err := p.Publish(ctx, []Input{{Name: "scrape.json", Body: []byte(scraperOutput)}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Rejected)
	require.Len(t, res.Publications, 2)

	ca, nv := res.Publications[0], res.Publications[1]
	assert.Equal(t, "CA", ca.State)
	assert.Equal(t, "nv_food_pantries_20240115103000.json", nv.Key)
	assert.Equal(t, "20240115103000", nv.Version)
	assert.Equal(t, 1, nv.Duplicates)
	assert.Equal(t, ledger.Stats{Total: 1, WithPhone: 1, WithHours: 1}, nv.Stats)
	assert.Equal(t, ledger.Stats{Total: 1, WithWebsite: 1}, ca.Stats)
	assert.Positive(t, nv.Size)
	assert.NotEmpty(t, nv.ETag)

	_, body, err := store.Get(ctx, nv.Key)
	require.NoError(t, err)
	data, _ := io.ReadAll(body)
	records, err := dataset.ParseRecords(data)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "1", records[0].ID)
	assert.Equal(t, "Reno Food Bank", records[0].Name)
	assert.Equal(t, "Mon-Fri 9-5", records[0].Hours)
	assert.Equal(t, "https://pantries.example/nv/1", records[0].SourceURL)
	assert.Contains(t, string(data), `"id":1`)

	listed, err := l.List(ctx, ledger.Filter{})
	require.NoError(t, err)
	assert.Len(t, listed, 2)
	assert.Equal(t, []string{"CA", "NV"}, rec.published)
	assert.Equal(t, []string{"publish:ok"}, rec.ops)
}

func TestPublishDefaultState(t *testing.T) {
	ctx := context.Background()
	p := newPublisher(blob.NewMemory(), memory.NewStore(), WithDefaultState("wi"))
	res, err := p.Publish(ctx, []Input{{Name: "x", Body: []byte(`[{"name":"A"},{"name":"B","state":"MN"}]`)}})
	require.NoError(t, err)
	assert.Zero(t, res.Rejected)
	require.Len(t, res.Publications, 2)
	assert.Equal(t, "MN", res.Publications[0].State)
	assert.Equal(t, "WI", res.Publications[1].State)
}

func TestPublishRejectsBadInput(t *testing.T) {
	p := newPublisher(blob.NewMemory(), memory.NewStore())
	_, err := p.Publish(context.Background(), []Input{{Name: "bad.json", Body: []byte(`{"pantries": 3}`)}})
	assert.ErrorIs(t, err, dataset.ErrFormat)
	assert.ErrorContains(t, err, "bad.json")

	_, err = p.Publish(context.Background(), []Input{{Name: "junk", Body: []byte(`{`)}})
	assert.ErrorIs(t, err, dataset.ErrFormat)
}

type flakyStore struct {
	blob.Store
	failures int32
}

func (f *flakyStore) Put(ctx context.Context, key string, r io.Reader, opts blob.PutOptions) (blob.Info, error) {
	if atomic.AddInt32(&f.failures, -1) >= 0 {
		return blob.Info{}, errors.New("connection reset")
	}
	return f.Store.Put(ctx, key, r, opts)
}

func TestPublishRetriesBlobWrites(t *testing.T) {
	store := &flakyStore{Store: blob.NewMemory(), failures: 2}
	p := newPublisher(store, memory.NewStore())
	res, err := p.Publish(context.Background(), []Input{{Name: "x", Body: []byte(`[{"name":"A","state":"NV"}]`)}})
	require.NoError(t, err)
	require.Len(t, res.Publications, 1)

	_, rc, err := store.Get(context.Background(), res.Publications[0].Key)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	assert.True(t, bytes.HasPrefix(data, []byte(`[{"id":1`)))
}

func TestPublishDoesNotRetryExistingVersion(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	_, err := store.Put(ctx, "nv_food_pantries_20240115103000.json", bytes.NewReader([]byte("[]")), blob.PutOptions{})
	require.NoError(t, err)
	l := memory.NewStore()
	rec := &fakeRecorder{}
	p := newPublisher(store, l, WithRecorder(rec))

	_, err = p.Publish(ctx, []Input{{Name: "x", Body: []byte(`[{"name":"A","state":"NV"}]`)}})
	assert.ErrorIs(t, err, blob.ErrExists)
	listed, _ := l.List(ctx, ledger.Filter{})
	assert.Empty(t, listed)
	assert.Equal(t, []string{"publish:error"}, rec.ops)
}

func TestPublishFSReadsAllFiles(t *testing.T) {
	fsys := fstest.MapFS{
		"a.json": {Data: []byte(`[{"name":"A","state":"NV"}]`)},
		"b.json": {Data: []byte(`{"pantries":[{"name":"B","state":"NV"}]}`)},
	}
	p := newPublisher(blob.NewMemory(), memory.NewStore(), WithConcurrency(1))
	res, err := p.PublishFS(context.Background(), fsys, []string{"a.json", "b.json"})
	require.NoError(t, err)
	require.Len(t, res.Publications, 1)
	assert.Equal(t, 2, res.Publications[0].Stats.Total)

	_, err = p.PublishFS(context.Background(), fsys, []string{"missing.json"})
	assert.ErrorContains(t, err, "read missing.json")
}

type downLedger struct{ ledger.Store }

func (downLedger) Record(context.Context, ledger.Publication) error { return errors.New("ledger down") }

func TestPublishRemovesDatasetWhenLedgerFails(t *testing.T) {
	ctx := context.Background()
	store := blob.NewMemory()
	input := []Input{{Name: "x", Body: []byte(`[{"name":"A","state":"CA"}]`)}}

	_, err := newPublisher(store, downLedger{Store: memory.NewStore()}).Publish(ctx, input)
	require.ErrorContains(t, err, "ledger down")
	infos, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, infos)

	// the same version can be published once the ledger is back
	l := memory.NewStore()
	res, err := newPublisher(store, l).Publish(ctx, input)
	require.NoError(t, err)
	require.Len(t, res.Publications, 1)
	assert.Equal(t, "ca_food_pantries_20240115103000.json", res.Publications[0].Key)
	listed, err := l.List(ctx, ledger.Filter{})
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

type stuckStore struct{ blob.Store }

func (stuckStore) Delete(context.Context, string) (bool, error) {
	return false, errors.New("permission denied")
}

func TestPublishReportsFailedRollback(t *testing.T) {
	store := stuckStore{Store: blob.NewMemory()}
	_, err := newPublisher(store, downLedger{Store: memory.NewStore()}).Publish(context.Background(),
		[]Input{{Name: "x", Body: []byte(`[{"name":"A","state":"CA"}]`)}})
	require.Error(t, err)
	assert.ErrorContains(t, err, "ledger down")
	assert.ErrorContains(t, err, "roll back ca_food_pantries_20240115103000.json: permission denied")
}
