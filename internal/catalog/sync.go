package catalog

import (
	"context"
	"log/slog"

	"github.com/starford/attractor-gallery/internal/models"
	"github.com/starford/attractor-gallery/internal/storage"
)

// SyncStats summarises one Sync pass.
type SyncStats struct {
	Indexed   int
	Unchanged int
	Removed   int
	Failed    int
}

// Sync brings the catalog up to date with src:
//   - new or changed records (by fingerprint) are loaded and upserted
//   - records whose source no longer exists are removed
//
// Per-record failures are logged and counted; only enumeration errors
// are returned.
func Sync(ctx context.Context, db RecordIndex, src storage.Provider, logger *slog.Logger) (SyncStats, error) {
	return syncIndex(ctx, db, src, logger, nil)
}

func syncIndex(ctx context.Context, db RecordIndex, src storage.Provider, logger *slog.Logger, cb EventCallback) (SyncStats, error) {
	var stats SyncStats

	metas, err := src.ListMetadata(ctx)
	if err != nil {
		return stats, err
	}
	fingerprints, err := db.AllFingerprints(ctx)
	if err != nil {
		return stats, err
	}

	seen := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		source := string(m.Locator)
		seen[source] = struct{}{}

		fp, known := fingerprints[source]
		if known && fp == m.Fingerprint && fp != "" {
			stats.Unchanged++
			continue
		}
		if err := importOne(ctx, db, src, source); err != nil {
			stats.Failed++
			logger.Warn("sync: import failed", slog.String("source", source), slog.String("error", err.Error()))
			continue
		}
		stats.Indexed++
		logger.Debug("sync: indexed", slog.String("source", source), slog.String("id", m.ID.Hex()))
		if cb != nil {
			kind := EventCreated
			if known {
				kind = EventUpdated
			}
			cb(kind, m.ID)
		}
	}

	for source := range fingerprints {
		if _, ok := seen[source]; ok {
			continue
		}
		id, found, err := db.DeleteBySource(ctx, source)
		if err != nil {
			logger.Warn("sync: delete failed", slog.String("source", source), slog.String("error", err.Error()))
			continue
		}
		if found {
			stats.Removed++
			logger.Debug("sync: removed stale", slog.String("source", source), slog.String("id", id.Hex()))
			if cb != nil {
				cb(EventDeleted, id)
			}
		}
	}

	logger.Info("sync: done",
		slog.Int("indexed", stats.Indexed),
		slog.Int("unchanged", stats.Unchanged),
		slog.Int("removed", stats.Removed),
		slog.Int("failed", stats.Failed))
	return stats, nil
}

func importOne(ctx context.Context, db RecordIndex, src storage.Provider, source string) error {
	rec, err := src.LoadFull(ctx, models.Locator(source))
	if err != nil {
		return err
	}
	return db.UpsertRecord(ctx, rec, source)
}
