package catalog

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/starford/attractor-gallery/internal/codec"
	"github.com/starford/attractor-gallery/internal/models"
	"github.com/starford/attractor-gallery/internal/storage"
)

// Event kinds passed to EventCallback.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// EventCallback is called after a watcher-driven catalog change.
type EventCallback func(kind string, id models.ID)

const reconcileDelay = 200 * time.Millisecond

// Watch starts an fsnotify watcher on the store root and keeps the catalog
// in step with record files until ctx is cancelled. cb (if non-nil) is
// called after each successful catalog mutation.
//
// New directories are added to the watch list as they appear. Renames
// delete the old entry and schedule a debounced reconciliation pass.
func Watch(ctx context.Context, db RecordIndex, store *storage.FS, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := store.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(reconcileDelay)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(reconcileDelay)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			if _, err := syncIndex(ctx, db, store, logger, cb); err != nil {
				logger.Warn("watcher: reconcile failed", slog.String("error", err.Error()))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					// Files may have landed before the watch was added.
					scheduleReconcile()
					continue
				}
			}

			if !codec.IsRecordFile(filepath.Base(ev.Name)) {
				continue
			}
			loc, ok := store.Locate(ev.Name)
			if !ok {
				continue
			}
			source := string(loc)

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				rec, loadErr := store.LoadFull(ctx, loc)
				if loadErr != nil {
					logger.Warn("watcher: load failed", slog.String("source", source), slog.String("error", loadErr.Error()))
					continue
				}
				if upErr := db.UpsertRecord(ctx, rec, source); upErr != nil {
					logger.Warn("watcher: index failed", slog.String("source", source), slog.String("error", upErr.Error()))
					continue
				}
				kind := EventUpdated
				if ev.Op&fsnotify.Create != 0 {
					kind = EventCreated
				}
				logger.Debug("watcher: indexed", slog.String("source", source), slog.String("op", kind))
				if cb != nil {
					cb(kind, rec.ID)
				}

			case ev.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				// fsnotify reports Rename on the old path only; the new
				// path arrives as a Create if it stays under the root.
				id, found, delErr := db.DeleteBySource(ctx, source)
				if delErr != nil {
					logger.Warn("watcher: delete failed", slog.String("source", source), slog.String("error", delErr.Error()))
				} else if found {
					logger.Debug("watcher: deleted", slog.String("source", source))
					if cb != nil {
						cb(EventDeleted, id)
					}
				}
				if ev.Op&fsnotify.Rename != 0 {
					scheduleReconcile()
				}
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
