// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package intent

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// CatalogWatcher reloads the catalog when its backing document changes.
// Writes are debounced so editors that write-then-rename or write in
// chunks trigger a single reload.
type CatalogWatcher struct {
	catalog  *Catalog
	watcher  *fsnotify.Watcher
	debounce time.Duration
	log      *zap.Logger
	cancel   context.CancelFunc
}

// NewCatalogWatcher creates a watcher over the catalog's document.
func NewCatalogWatcher(catalog *Catalog, log *zap.Logger) (*CatalogWatcher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &CatalogWatcher{
		catalog:  catalog,
		watcher:  w,
		debounce: 500 * time.Millisecond,
		log:      log.Named("catalog-watcher"),
	}, nil
}

// Watch starts observing the catalog file. Watching the parent directory
// rather than the file itself survives atomic rename-over-write updates.
func (cw *CatalogWatcher) Watch() error {
	if cw.catalog.path == "" {
		return nil
	}
	if err := cw.watcher.Add(filepath.Dir(cw.catalog.path)); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	cw.cancel = cancel
	go cw.run(ctx)
	return nil
}

func (cw *CatalogWatcher) run(ctx context.Context) {
	target := filepath.Clean(cw.catalog.path)

	var timer *time.Timer
	reload := func() {
		if err := cw.catalog.Reload(); err != nil {
			cw.log.Warn("catalog reload failed, keeping current", zap.Error(err))
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case ev, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(cw.debounce, reload)

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.log.Warn("catalog watch error", zap.Error(err))
		}
	}
}

// Close stops watching and releases resources.
func (cw *CatalogWatcher) Close() error {
	if cw.cancel != nil {
		cw.cancel()
	}
	return cw.watcher.Close()
}
