package catalog

import (
	"context"

	"github.com/starford/attractor-gallery/internal/curator"
	"github.com/starford/attractor-gallery/internal/models"
	"github.com/starford/attractor-gallery/internal/storage"
)

// RecordIndex is the catalog surface used by the importer, watcher and API.
// Consumers should depend on this interface rather than *DB.
type RecordIndex interface {
	storage.Provider
	UpsertRecord(ctx context.Context, rec *models.Record, source string) error
	DeleteRecord(ctx context.Context, id models.ID) error
	DeleteBySource(ctx context.Context, source string) (models.ID, bool, error)
	AllFingerprints(ctx context.Context) (map[string]string, error)
	RecordRun(ctx context.Context, res *curator.Result) (string, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)
	RunSelections(ctx context.Context, runID string) ([]RunSelection, error)
	Close() error
}

// Verify *DB satisfies RecordIndex at compile time.
var _ RecordIndex = (*DB)(nil)
