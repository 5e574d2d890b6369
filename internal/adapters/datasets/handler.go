// Package datasets serves published dataset files and the widget
// configuration over HTTP.
package datasets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/cors"
	"golang.org/x/sync/singleflight"

	"foodpantry/internal/blob"
	"foodpantry/internal/catalog"
	"foodpantry/internal/config"
	"foodpantry/internal/dataset"
	"foodpantry/internal/ledger"
	"foodpantry/internal/log"
	"foodpantry/internal/metrics"
)

const (
	// DefaultCacheEntries bounds the number of dataset bodies kept in memory.
	DefaultCacheEntries = 64
	// MaxCachedBytes is the largest dataset body that is cached.
	MaxCachedBytes = 16 << 20
	// DefaultPresignExpiry is how long signed dataset links stay valid.
	DefaultPresignExpiry = 15 * time.Minute
)

// Catalog exposes the current dataset files for HTTP handlers.
type Catalog interface {
	Entries() []catalog.Entry
	Lookup(state string) (catalog.Entry, bool)
	Refreshed() time.Time
	Config(s catalog.Settings) config.Config
}

// Handler provides HTTP access to datasets, configuration and publications.
type Handler struct {
	store    blob.Store
	catalog  Catalog
	ledger   ledger.Store
	metrics  *metrics.Recorder
	settings catalog.Settings
	global   string
	entries  int
	expiry   time.Duration

	cache  *lru.Cache[string, []byte]
	reads  singleflight.Group
	router chi.Router
}

// Option customizes a Handler.
type Option func(*Handler)

// WithLedger enables /api/v1/publications.
func WithLedger(l ledger.Store) Option { return func(h *Handler) { h.ledger = l } }

// WithMetrics counts requests and cache lookups and mounts /metrics.
func WithMetrics(m *metrics.Recorder) Option { return func(h *Handler) { h.metrics = m } }

// WithSettings sets the configuration values the catalog cannot discover.
// When DatasetsBaseURL is empty it is derived from each request.
func WithSettings(s catalog.Settings) Option { return func(h *Handler) { h.settings = s } }

// WithGlobal names the window property /config.js assigns.
func WithGlobal(name string) Option { return func(h *Handler) { h.global = name } }

// WithCacheEntries bounds the dataset cache.
func WithCacheEntries(n int) Option {
	return func(h *Handler) {
		if n > 0 {
			h.entries = n
		}
	}
}

// WithPresignExpiry sets the lifetime of signed links handed out for
// stores that support them.
func WithPresignExpiry(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.expiry = d
		}
	}
}

// NewHandler constructs the dataset HTTP handler.
func NewHandler(store blob.Store, c Catalog, opts ...Option) (*Handler, error) {
	if store == nil || c == nil {
		return nil, errors.New("datasets: store and catalog are required")
	}
	h := &Handler{store: store, catalog: c, global: config.DefaultGlobal, entries: DefaultCacheEntries, expiry: DefaultPresignExpiry}
	for _, opt := range opts {
		opt(h)
	}
	cache, err := lru.New[string, []byte](h.entries)
	if err != nil {
		return nil, fmt.Errorf("datasets: create cache: %w", err)
	}
	h.cache = cache
	h.router = h.routes()
	return h, nil
}

func (h *Handler) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(log.NewHandler())
	if h.metrics != nil {
		r.Use(h.metrics.Middleware)
	}
	// The widget is embedded on other origins and sends no-cache headers,
	// so its fetches are preflighted.
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead},
		AllowedHeaders: []string{"Cache-Control", "Pragma"},
		MaxAge:         600,
	}).Handler)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}
	r.Get("/healthz", h.handleHealth)
	r.Get("/datasets/{file}", h.handleDataset)
	r.Head("/datasets/{file}", h.handleDataset)
	r.Get("/config.js", h.handleConfigScript)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/config", h.handleConfig)
		r.Get("/datasets", h.handleListDatasets)
		r.Get("/datasets/{state}", h.handleDatasetEntry)
		r.Get("/publications", h.handleListPublications)
	})
	return r
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"states":    len(h.catalog.Entries()),
		"refreshed": h.catalog.Refreshed(),
	})
}

// handleDataset serves any file that follows the dataset naming convention,
// the current version or an older one. Errors are plain text so the widget
// can show them as they are.
func (h *Handler) handleDataset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	file := chi.URLParam(r, "file")
	if _, _, ok := dataset.ParseFilename(file); !ok {
		http.Error(w, "dataset not found", http.StatusNotFound)
		return
	}
	info, err := h.store.Head(ctx, file)
	if errors.Is(err, blob.ErrNotFound) {
		http.Error(w, "dataset not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("file", file).Msg("datasets: head")
		http.Error(w, "dataset store unavailable", http.StatusBadGateway)
		return
	}

	body, err := h.body(ctx, info)
	if errors.Is(err, blob.ErrNotFound) {
		http.Error(w, "dataset not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("file", file).Msg("datasets: read")
		http.Error(w, "dataset store unavailable", http.StatusBadGateway)
		return
	}

	header := w.Header()
	header.Set("Content-Type", "application/json; charset=utf-8")
	header.Set("Cache-Control", "no-cache")
	if info.ETag != "" {
		header.Set("ETag", quoteETag(info.ETag))
	}
	http.ServeContent(w, r, file, info.LastModified, bytes.NewReader(body))
}

func (h *Handler) body(ctx context.Context, info blob.Info) ([]byte, error) {
	cacheKey := info.Key + "\x00" + info.ETag
	if info.ETag != "" {
		if data, ok := h.cache.Get(cacheKey); ok {
			h.cacheLookup(true)
			return data, nil
		}
		h.cacheLookup(false)
	}
	// Concurrent misses for the same version share one read, which must
	// outlive the request that started it.
	shared := context.WithoutCancel(ctx)
	v, err, _ := h.reads.Do(cacheKey, func() (any, error) {
		_, rc, err := h.store.Get(shared, info.Key)
		if err != nil {
			return nil, err
		}
		defer func() { _ = rc.Close() }()
		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", info.Key, err)
		}
		if info.ETag != "" && len(data) <= MaxCachedBytes {
			h.cache.Add(cacheKey, data)
		}
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (h *Handler) cacheLookup(hit bool) {
	if h.metrics != nil {
		h.metrics.CacheLookup(hit)
	}
}

func (h *Handler) handleConfig(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-cache")
	writeJSON(w, http.StatusOK, h.config(r))
}

func (h *Handler) handleConfigScript(w http.ResponseWriter, r *http.Request) {
	script, err := h.config(r).MarshalScript(h.global)
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("datasets: render config script")
		http.Error(w, "configuration unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	_, _ = w.Write(script)
}

func (h *Handler) config(r *http.Request) config.Config {
	s := h.settings
	s.DatasetsBaseURL = h.datasetsBase(r)
	return h.catalog.Config(s)
}

func (h *Handler) datasetsBase(r *http.Request) string {
	if h.settings.DatasetsBaseURL != "" {
		return h.settings.DatasetsBaseURL
	}
	return baseURL(r) + "/datasets"
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if fwd := r.Header.Get("X-Forwarded-Proto"); fwd != "" {
		scheme = strings.ToLower(strings.TrimSpace(strings.Split(fwd, ",")[0]))
	}
	return scheme + "://" + r.Host
}

func (h *Handler) handleListDatasets(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"datasets":  h.catalog.Entries(),
		"refreshed": h.catalog.Refreshed(),
	})
}

// handleDatasetEntry describes the current dataset of one state, with a link
// to download it. S3 stores hand out a signed link to the object itself.
func (h *Handler) handleDatasetEntry(w http.ResponseWriter, r *http.Request) {
	entry, ok := h.catalog.Lookup(chi.URLParam(r, "state"))
	if !ok {
		writeError(w, http.StatusNotFound, "no dataset for state")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dataset": entry,
		"url":     h.downloadURL(r, entry.Key),
	})
}

func (h *Handler) downloadURL(r *http.Request, key string) string {
	if h.store.Driver() == blob.DriverS3 {
		u, err := h.store.PresignURL(r.Context(), key, blob.SignedURLOptions{Method: http.MethodGet, Expiry: h.expiry})
		if err == nil {
			return u
		}
		log.Ctx(r.Context()).Warn().Err(err).Str("key", key).Msg("datasets: presign failed, using server link")
	}
	return strings.TrimRight(h.datasetsBase(r), "/") + "/" + url.PathEscape(key)
}

func (h *Handler) handleListPublications(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeError(w, http.StatusNotFound, "publication ledger not configured")
		return
	}
	filter := ledger.Filter{State: r.URL.Query().Get("state")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}
	pubs, err := h.ledger.List(r.Context(), filter)
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("datasets: list publications")
		writeError(w, http.StatusInternalServerError, "list publications failed")
		return
	}
	if pubs == nil {
		pubs = []ledger.Publication{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"publications": pubs})
}

func quoteETag(etag string) string {
	if strings.HasPrefix(etag, `"`) || strings.HasPrefix(etag, `W/"`) {
		return etag
	}
	return strconv.Quote(etag)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
