package datasets_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodpantry/internal/adapters/datasets"
	"foodpantry/internal/blob"
	"foodpantry/internal/catalog"
	"foodpantry/internal/config"
	"foodpantry/internal/infra/persistence/memory"
	"foodpantry/internal/ledger"
	"foodpantry/internal/metrics"
)

const nvBody = `[{"id":1,"name":"Reno Food Bank","state":"NV"}]`

type fixture struct {
	store   blob.Store
	ledger  ledger.Store
	metrics *metrics.Recorder
	handler *datasets.Handler
}

func setupHandler(t *testing.T, opts ...datasets.Option) fixture {
	t.Helper()
	ctx := context.Background()
	store := blob.NewMemory()
	for key, body := range map[string]string{
		"nv_food_pantries_20240101000000.json": `[]`,
		"nv_food_pantries_20240201000000.json": nvBody,
		"ca_food_pantries.json":                `[]`,
		"notes.txt":                            `hello`,
	} {
		_, err := store.Put(ctx, key, strings.NewReader(body), blob.PutOptions{ContentType: "application/json"})
		require.NoError(t, err)
	}
	cat := catalog.New(store)
	require.NoError(t, cat.Refresh(ctx))

	l := memory.NewStore()
	at := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, l.Record(ctx, ledger.Publication{ID: "p1", State: "NV", Key: "nv_food_pantries_20240201000000.json", Version: "20240201000000", PublishedAt: at}))
	require.NoError(t, l.Record(ctx, ledger.Publication{ID: "p2", State: "CA", Key: "ca_food_pantries.json", PublishedAt: at.Add(-time.Hour)}))

	m := metrics.New()
	base := []datasets.Option{datasets.WithLedger(l), datasets.WithMetrics(m)}
	h, err := datasets.NewHandler(store, cat, append(base, opts...)...)
	require.NoError(t, err)
	return fixture{store: store, ledger: l, metrics: m, handler: h}
}

func (f fixture) do(t *testing.T, method, target string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	resp := httptest.NewRecorder()
	f.handler.ServeHTTP(resp, req)
	return resp
}

func TestHandlerRequiresStoreAndCatalog(t *testing.T) {
	_, err := datasets.NewHandler(nil, nil)
	assert.Error(t, err)
}

func TestHandlerServesDatasetWithETag(t *testing.T) {
	f := setupHandler(t)

	resp := f.do(t, http.MethodGet, "/datasets/nv_food_pantries_20240201000000.json", http.Header{"Origin": {"https://pantries.example.org"}})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, nvBody, resp.Body.String())
	assert.Equal(t, "application/json; charset=utf-8", resp.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header().Get("Cache-Control"))
	assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"))
	etag := resp.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.True(t, strings.HasPrefix(etag, `"`))

	resp = f.do(t, http.MethodGet, "/datasets/nv_food_pantries_20240201000000.json", http.Header{"If-None-Match": {etag}})
	assert.Equal(t, http.StatusNotModified, resp.Code)
	assert.Empty(t, resp.Body.String())

	// older versions stay reachable by name
	resp = f.do(t, http.MethodGet, "/datasets/nv_food_pantries_20240101000000.json", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "[]", resp.Body.String())

	resp = f.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	body := resp.Body.String()
	assert.Contains(t, body, `pantry_dataset_cache_lookups_total{result="hit"} 1`)
	assert.Contains(t, body, `pantry_dataset_cache_lookups_total{result="miss"} 2`)
	assert.Contains(t, body, `pantry_http_requests_total{code="304",route="/datasets/{file}"} 1`)
}

func TestHandlerHeadDataset(t *testing.T) {
	f := setupHandler(t)
	resp := f.do(t, http.MethodHead, "/datasets/ca_food_pantries.json", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Empty(t, resp.Body.String())
}

func TestHandlerDatasetNotFound(t *testing.T) {
	f := setupHandler(t)
	for _, target := range []string{
		"/datasets/tx_food_pantries.json",
		"/datasets/notes.txt",
		"/datasets/..%2Fsecret.json",
	} {
		resp := f.do(t, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusNotFound, resp.Code, target)
		assert.Equal(t, "dataset not found\n", resp.Body.String(), target)
		assert.True(t, strings.HasPrefix(resp.Header().Get("Content-Type"), "text/plain"), target)
	}
}

type failingStore struct{ blob.Store }

func (failingStore) Head(context.Context, string) (blob.Info, error) {
	return blob.Info{}, io.ErrUnexpectedEOF
}

func TestHandlerDatasetStoreFailure(t *testing.T) {
	store := failingStore{Store: blob.NewMemory()}
	h, err := datasets.NewHandler(store, catalog.New(store))
	require.NoError(t, err)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/datasets/nv_food_pantries.json", nil))
	assert.Equal(t, http.StatusBadGateway, resp.Code)
	assert.Equal(t, "dataset store unavailable\n", resp.Body.String())
}

func TestHandlerConfig(t *testing.T) {
	f := setupHandler(t)

	resp := f.do(t, http.MethodGet, "/api/v1/config", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	cfg, err := config.Read(resp.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/datasets", cfg.DatasetsBaseURL)
	assert.Equal(t, []string{"CA", "NV"}, cfg.States)
	assert.Equal(t, "nv_food_pantries_20240201000000.json", cfg.Datasets["NV"])
	assert.Len(t, cfg.CacheBuster, 12)

	resp = f.do(t, http.MethodGet, "/api/v1/config", http.Header{"X-Forwarded-Proto": {"https"}})
	cfg, err = config.Read(resp.Body.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/datasets", cfg.DatasetsBaseURL)
}

func TestHandlerConfigScript(t *testing.T) {
	f := setupHandler(t, datasets.WithSettings(catalog.Settings{
		DatasetsBaseURL: "https://cdn.example.org/pantries",
		Labels:          map[string]string{config.LabelChooseState: "Pick a state"},
	}), datasets.WithGlobal("pantryConfig"))

	resp := f.do(t, http.MethodGet, "/config.js", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "application/javascript; charset=utf-8", resp.Header().Get("Content-Type"))
	script := resp.Body.String()
	require.True(t, strings.HasPrefix(script, "window.pantryConfig = "))

	cfg, err := config.ReadScript(script, "pantryConfig")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.org/pantries", cfg.DatasetsBaseURL)
	assert.Equal(t, "Pick a state", cfg.Label(config.LabelChooseState))
}

func TestHandlerListDatasets(t *testing.T) {
	f := setupHandler(t)
	resp := f.do(t, http.MethodGet, "/api/v1/datasets", nil)
	require.Equal(t, http.StatusOK, resp.Code)

	var body struct {
		Datasets []catalog.Entry `json:"datasets"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Datasets, 2)
	assert.Equal(t, "CA", body.Datasets[0].State)
	assert.Equal(t, "NV", body.Datasets[1].State)
	assert.Equal(t, 2, body.Datasets[1].Versions)
	assert.Equal(t, int64(len(nvBody)), body.Datasets[1].Size)
}

func TestHandlerListPublications(t *testing.T) {
	f := setupHandler(t)

	var body struct {
		Publications []ledger.Publication `json:"publications"`
	}
	resp := f.do(t, http.MethodGet, "/api/v1/publications", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Publications, 2)
	assert.Equal(t, "p1", body.Publications[0].ID)

	resp = f.do(t, http.MethodGet, "/api/v1/publications?state=ca", nil)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Len(t, body.Publications, 1)
	assert.Equal(t, "p2", body.Publications[0].ID)

	resp = f.do(t, http.MethodGet, "/api/v1/publications?limit=1", nil)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Len(t, body.Publications, 1)

	resp = f.do(t, http.MethodGet, "/api/v1/publications?limit=x", nil)
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestHandlerPublicationsWithoutLedger(t *testing.T) {
	store := blob.NewMemory()
	h, err := datasets.NewHandler(store, catalog.New(store))
	require.NoError(t, err)
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/publications", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)

	resp = httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestHandlerHealth(t *testing.T) {
	f := setupHandler(t)
	resp := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.EqualValues(t, 2, body["states"])
}

func TestHandlerServesNewlyPublishedDataset(t *testing.T) {
	f := setupHandler(t)
	_, err := f.store.Put(context.Background(), "tx_food_pantries_1.json", bytes.NewReader([]byte(`[{"id":9}]`)), blob.PutOptions{})
	require.NoError(t, err)
	resp := f.do(t, http.MethodGet, "/datasets/tx_food_pantries_1.json", nil)
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, `[{"id":9}]`, resp.Body.String())
}

func TestHandlerAnswersCrossOriginPreflight(t *testing.T) {
	f := setupHandler(t)
	for _, target := range []string{
		"/datasets/nv_food_pantries_20240201000000.json",
		"/api/v1/config",
		"/config.js",
	} {
		resp := f.do(t, http.MethodOptions, target, http.Header{
			"Origin":                         {"https://pantries.example.org"},
			"Access-Control-Request-Method":  {http.MethodGet},
			"Access-Control-Request-Headers": {"cache-control,pragma"},
		})
		assert.Equal(t, http.StatusNoContent, resp.Code, target)
		assert.Equal(t, "*", resp.Header().Get("Access-Control-Allow-Origin"), target)
		assert.Equal(t, http.MethodGet, resp.Header().Get("Access-Control-Allow-Methods"), target)
		allowed := strings.ToLower(resp.Header().Get("Access-Control-Allow-Headers"))
		assert.Contains(t, allowed, "cache-control", target)
		assert.Contains(t, allowed, "pragma", target)
	}

	resp := f.do(t, http.MethodOptions, "/api/v1/config", http.Header{
		"Origin":                        {"https://pantries.example.org"},
		"Access-Control-Request-Method": {http.MethodDelete},
	})
	assert.Empty(t, resp.Header().Get("Access-Control-Allow-Origin"))
}

// ctxStore fails reads whose context is already done.
type ctxStore struct{ blob.Store }

func (s ctxStore) Get(ctx context.Context, key string) (blob.Info, io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return blob.Info{}, nil, err
	}
	return s.Store.Get(ctx, key)
}

func TestHandlerSharedReadIgnoresCallerCancellation(t *testing.T) {
	ctx := context.Background()
	store := ctxStore{Store: blob.NewMemory()}
	_, err := store.Put(ctx, "nv_food_pantries_1.json", strings.NewReader(nvBody), blob.PutOptions{})
	require.NoError(t, err)
	h, err := datasets.NewHandler(store, catalog.New(store))
	require.NoError(t, err)

	gone, cancel := context.WithCancel(ctx)
	cancel()
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/datasets/nv_food_pantries_1.json", nil).WithContext(gone))
	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, nvBody, resp.Body.String())
}

func TestHandlerDatasetEntry(t *testing.T) {
	f := setupHandler(t)

	resp := f.do(t, http.MethodGet, "/api/v1/datasets/nv", nil)
	require.Equal(t, http.StatusOK, resp.Code)
	var body struct {
		Dataset catalog.Entry `json:"dataset"`
		URL     string        `json:"url"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "NV", body.Dataset.State)
	assert.Equal(t, "nv_food_pantries_20240201000000.json", body.Dataset.Key)
	assert.Equal(t, "http://example.com/datasets/nv_food_pantries_20240201000000.json", body.URL)

	resp = f.do(t, http.MethodGet, "/api/v1/datasets/wy", nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

// signingStore reports the s3 driver and signs every GET.
type signingStore struct {
	blob.Store
	expiry time.Duration
}

func (s *signingStore) Driver() blob.Driver { return blob.DriverS3 }

func (s *signingStore) PresignURL(_ context.Context, key string, opts blob.SignedURLOptions) (string, error) {
	s.expiry = opts.Expiry
	return "https://bucket.s3.example.com/" + key + "?X-Amz-Signature=abc", nil
}

func TestHandlerDatasetEntrySignsS3Links(t *testing.T) {
	ctx := context.Background()
	store := &signingStore{Store: blob.NewMemory()}
	_, err := store.Put(ctx, "ca_food_pantries_2.json", strings.NewReader(`[]`), blob.PutOptions{})
	require.NoError(t, err)
	cat := catalog.New(store)
	require.NoError(t, cat.Refresh(ctx))
	h, err := datasets.NewHandler(store, cat, datasets.WithPresignExpiry(5*time.Minute))
	require.NoError(t, err)

	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/api/v1/datasets/CA", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	var body struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "https://bucket.s3.example.com/ca_food_pantries_2.json?X-Amz-Signature=abc", body.URL)
	assert.Equal(t, 5*time.Minute, store.expiry)
}
