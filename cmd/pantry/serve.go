package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
	"golang.org/x/sync/errgroup"

	"foodpantry/internal/adapters/datasets"
	"foodpantry/internal/blob"
	"foodpantry/internal/catalog"
	"foodpantry/internal/config"
	"foodpantry/internal/log"
	"foodpantry/internal/metrics"
	"foodpantry/internal/storage"
)

type serveConfig struct {
	addr            string
	baseURL         string
	cacheBuster     string
	global          string
	cacheEntries    int
	watch           bool
	refreshInterval time.Duration
	shutdownTimeout time.Duration
}

func newServeCommand(before func()) *ffcli.Command {
	var cfg serveConfig
	fs := flag.NewFlagSet("pantry serve", flag.ContinueOnError)
	fs.StringVar(&cfg.addr, "addr", ":8080", "listen address")
	fs.StringVar(&cfg.baseURL, "datasets-base-url", "", "public dataset location written into the widget config (default: this server's /datasets)")
	fs.StringVar(&cfg.cacheBuster, "cache-buster", "", "fixed cache buster (default: derived from the current datasets)")
	fs.StringVar(&cfg.global, "config-global", config.DefaultGlobal, "window property assigned by /config.js")
	fs.IntVar(&cfg.cacheEntries, "cache-entries", datasets.DefaultCacheEntries, "dataset bodies kept in memory")
	fs.BoolVar(&cfg.watch, "watch", true, "refresh the catalog on file changes (fs driver only)")
	fs.DurationVar(&cfg.refreshInterval, "refresh-interval", time.Minute, "catalog refresh period when not watching; 0 disables")
	fs.DurationVar(&cfg.shutdownTimeout, "shutdown-timeout", 10*time.Second, "grace period for in-flight requests")

	return &ffcli.Command{
		Name:       "serve",
		ShortUsage: "pantry serve [flags]",
		ShortHelp:  "serve dataset files, widget configuration and the publication ledger",
		FlagSet:    fs,
		Options:    []ff.Option{ff.WithEnvVarPrefix(envPrefix)},
		Exec: func(ctx context.Context, _ []string) error {
			before()
			ln, err := net.Listen("tcp", cfg.addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", cfg.addr, err)
			}
			return serve(ctx, ln, cfg)
		},
	}
}

// serve runs until ctx is done and the server has shut down.
func serve(ctx context.Context, ln net.Listener, cfg serveConfig) error {
	store, err := blob.Open(ctx)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}
	ledger, err := storage.OpenLedger(ctx)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() { _ = ledger.Close() }()

	recorder := metrics.New()
	cat := catalog.New(store, catalog.WithRecorder(recorder))
	cat.OnRefresh(recorder.Catalog)
	cat.OnRefresh(countPublications(recorder))
	if err := cat.Refresh(ctx); err != nil {
		return err
	}

	handler, err := datasets.NewHandler(store, cat,
		datasets.WithLedger(ledger),
		datasets.WithMetrics(recorder),
		datasets.WithGlobal(cfg.global),
		datasets.WithCacheEntries(cfg.cacheEntries),
		datasets.WithSettings(catalog.Settings{DatasetsBaseURL: cfg.baseURL, CacheBuster: cfg.cacheBuster}),
	)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info(gctx).Str("addr", ln.Addr().String()).Str("blob_driver", string(store.Driver())).Msg("pantry: serving")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), cfg.shutdownTimeout)
		defer cancel()
		log.Info(gctx).Msg("pantry: shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return keepFresh(gctx, cat, store, cfg)
	})
	return g.Wait()
}

// countPublications counts one publication whenever a state's current
// dataset changes after the first refresh.
func countPublications(rec *metrics.Recorder) func([]catalog.Entry) {
	var (
		mu   sync.Mutex
		seen map[string]string
	)
	return func(entries []catalog.Entry) {
		mu.Lock()
		defer mu.Unlock()
		current := make(map[string]string, len(entries))
		for _, e := range entries {
			current[e.State] = e.Key
			if seen != nil && seen[e.State] != e.Key {
				rec.Published(e.State)
			}
		}
		seen = current
	}
}

// keepFresh watches the fs root when possible and otherwise polls.
func keepFresh(ctx context.Context, cat *catalog.Catalog, store blob.Store, cfg serveConfig) error {
	if root, ok := blob.Root(store); ok && cfg.watch {
		return cat.Watch(ctx, root, catalog.DefaultDebounce)
	}
	if cfg.refreshInterval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(cfg.refreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := cat.Refresh(ctx); err != nil {
				log.Warn(ctx).Err(err).Msg("pantry: catalog refresh")
			}
		}
	}
}
