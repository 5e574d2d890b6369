package catalog

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"foodpantry/internal/dataset"
	"foodpantry/internal/log"
)

// DefaultDebounce coalesces bursts of file events (a publish writes the data
// file and its sidecar) into one refresh.
const DefaultDebounce = 250 * time.Millisecond

// Watch refreshes the catalog whenever a dataset file under root is created,
// written, renamed or removed. It blocks until ctx is done.
func (c *Catalog) Watch(ctx context.Context, root string, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("catalog: create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()
	if err := watcher.Add(root); err != nil {
		return fmt.Errorf("catalog: watch %s: %w", root, err)
	}
	log.Info(ctx).Str("root", root).Msg("catalog: watching for dataset changes")

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("catalog: watcher events channel closed")
			}
			if !relevant(event) {
				continue
			}
			log.Debug(ctx).Str("file", event.Name).Str("op", event.Op.String()).Msg("catalog: dataset change")
			timer.Reset(debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("catalog: watcher errors channel closed")
			}
			log.Warn(ctx).Err(err).Msg("catalog: watcher error")
		case <-timer.C:
			if err := c.Refresh(ctx); err != nil {
				log.Error().Err(err).Msg("catalog: refresh after change")
			}
		}
	}
}

func relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	name := strings.TrimSuffix(filepath.Base(event.Name), ".meta")
	_, _, ok := dataset.ParseFilename(name)
	return ok
}
