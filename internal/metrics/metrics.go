// Package metrics exposes the dataset service's Prometheus collectors.
package metrics

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"foodpantry/internal/catalog"
)

const namespace = "pantry"

// Recorder owns a registry and the collectors registered on it. The zero
// value is not usable; call New.
type Recorder struct {
	registry *prometheus.Registry

	operations *prometheus.HistogramVec
	requests   *prometheus.CounterVec
	cache      *prometheus.CounterVec
	states     prometheus.Gauge
	datasetSz  *prometheus.GaugeVec
	published  *prometheus.CounterVec
}

// New registers the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of dataset operations by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route pattern and status code.",
		}, []string{"route", "code"}),
		cache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_cache_lookups_total",
			Help:      "Dataset byte cache lookups by result.",
		}, []string{"result"}),
		states: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_states",
			Help:      "States with a published dataset.",
		}),
		datasetSz: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_dataset_bytes",
			Help:      "Size of the current dataset file per state.",
		}, []string{"state"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publications_total",
			Help:      "Datasets published, by state.",
		}, []string{"state"}),
	}
	r.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.operations, r.requests, r.cache, r.states, r.datasetSz, r.published,
	)
	return r
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// Observe records an operation outcome. It satisfies dataset.Recorder.
func (r *Recorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	result := "error"
	if success {
		result = "success"
	}
	r.operations.WithLabelValues(operation, result).Observe(duration.Seconds())
}

// CacheLookup counts one dataset cache hit or miss.
func (r *Recorder) CacheLookup(hit bool) {
	if hit {
		r.cache.WithLabelValues("hit").Inc()
		return
	}
	r.cache.WithLabelValues("miss").Inc()
}

// Catalog replaces the catalog gauges with the given entries.
func (r *Recorder) Catalog(entries []catalog.Entry) {
	r.states.Set(float64(len(entries)))
	r.datasetSz.Reset()
	for _, e := range entries {
		r.datasetSz.WithLabelValues(e.State).Set(float64(e.Size))
	}
}

// Published counts one publication for state.
func (r *Recorder) Published(state string) {
	r.published.WithLabelValues(state).Inc()
}

// Snapshot is the operation and publication counts gathered from the
// registry, for commands that exit before anything scrapes them.
type Snapshot struct {
	// Operations counts observations keyed by "operation/result".
	Operations   map[string]uint64  `json:"operations"`
	Publications map[string]float64 `json:"publications"`
}

// Snapshot gathers the current counts.
func (r *Recorder) Snapshot() (Snapshot, error) {
	families, err := r.registry.Gather()
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Operations: map[string]uint64{}, Publications: map[string]float64{}}
	for _, mf := range families {
		switch mf.GetName() {
		case namespace + "_operation_duration_seconds":
			for _, m := range mf.GetMetric() {
				l := labels(m)
				snap.Operations[l["operation"]+"/"+l["result"]] = m.GetHistogram().GetSampleCount()
			}
		case namespace + "_publications_total":
			for _, m := range mf.GetMetric() {
				snap.Publications[labels(m)["state"]] = m.GetCounter().GetValue()
			}
		}
	}
	return snap, nil
}

func labels(m *dto.Metric) map[string]string {
	out := make(map[string]string, len(m.GetLabel()))
	for _, lp := range m.GetLabel() {
		out[lp.GetName()] = lp.GetValue()
	}
	return out
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Middleware counts requests by chi route pattern, so path parameters do
// not explode label cardinality. Mount it on a chi router.
func (r *Recorder) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, req)
		route := "unmatched"
		if rc := chi.RouteContext(req.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				route = p
			}
		}
		r.requests.WithLabelValues(route, strconv.Itoa(sw.status)).Inc()
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
