package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"foodpantry/internal/catalog"
)

func TestObserveAndCounters(t *testing.T) {
	r := New()
	r.Observe(context.Background(), "dataset_load", true, 20*time.Millisecond)
	r.Observe(context.Background(), "dataset_load", false, time.Millisecond)
	r.Observe(context.Background(), "", true, time.Millisecond)
	assert.Equal(t, 2, testutil.CollectAndCount(r.operations))

	r.CacheLookup(true)
	r.CacheLookup(true)
	r.CacheLookup(false)
	assert.Equal(t, 2.0, testutil.ToFloat64(r.cache.WithLabelValues("hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.cache.WithLabelValues("miss")))

	r.Catalog([]catalog.Entry{{State: "CA", Size: 10}, {State: "NV", Size: 20}})
	assert.Equal(t, 2.0, testutil.ToFloat64(r.states))
	assert.Equal(t, 20.0, testutil.ToFloat64(r.datasetSz.WithLabelValues("NV")))
	r.Catalog([]catalog.Entry{{State: "CA", Size: 10}})
	assert.Equal(t, 1, testutil.CollectAndCount(r.datasetSz))

	r.Published("NV")
	assert.Equal(t, 1.0, testutil.ToFloat64(r.published.WithLabelValues("NV")))
}

func TestMiddlewareUsesRoutePattern(t *testing.T) {
	r := New()
	router := chi.NewRouter()
	router.Use(r.Middleware)
	router.Get("/datasets/{file}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	router.Method(http.MethodGet, "/metrics", r.Handler())

	for _, file := range []string{"a.json", "b.json"} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/datasets/"+file, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(r.requests.WithLabelValues("/datasets/{file}", "404")))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	assert.True(t, strings.Contains(string(body), "pantry_http_requests_total"))
	assert.Contains(t, string(body), "go_goroutines")
}

func TestSnapshot(t *testing.T) {
	r := New()
	snap, err := r.Snapshot()
	require.NoError(t, err)
	assert.Empty(t, snap.Operations)
	assert.Empty(t, snap.Publications)

	ctx := context.Background()
	r.Observe(ctx, "publish", true, time.Second)
	r.Observe(ctx, "publish", true, time.Second)
	r.Observe(ctx, "dataset_load", false, time.Millisecond)
	r.Published("NV")
	r.Published("NV")
	r.Published("CA")

	snap, err = r.Snapshot()
	require.NoError(t, err)
	assert.Equal(t, map[string]uint64{"publish/success": 2, "dataset_load/error": 1}, snap.Operations)
	assert.Equal(t, map[string]float64{"NV": 2, "CA": 1}, snap.Publications)
}
