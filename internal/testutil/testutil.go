// Package testutil provides shared test helpers for setting up record stores and catalogs.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/attractor-gallery/internal/catalog"
	"github.com/starford/attractor-gallery/internal/codec"
	"github.com/starford/attractor-gallery/internal/models"
	"github.com/starford/attractor-gallery/internal/storage"
)

// TestDB creates a temporary SQLite catalog that is automatically cleaned up.
func TestDB(t *testing.T) *catalog.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "gallery-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := catalog.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestResults creates a temporary results directory with a storage.FS.
func TestResults(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir, storage.WithLogger(QuietLogger()))
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// Record builds a record with a three-exponent spectrum led by lambda and
// a short bounded trajectory.
func Record(id models.ID, lambda, kyDim float64, method string) *models.Record {
	return &models.Record{
		Metadata: models.Metadata{
			ID:       id,
			Coeffs:   []float64{0.5, -1.2, 0.8},
			Spectrum: []float64{lambda, 0, -10},
			KYDim:    kyDim,
			Method:   method,
		},
		Trajectory: []models.Point{{0.1, 0.2, 0.3}, {1, -1, 2}, {-0.5, 0.25, 1.5}},
	}
}

// WriteRecords persists recs into store uncompressed.
func WriteRecords(t *testing.T, store *storage.FS, recs ...*models.Record) {
	t.Helper()
	for _, r := range recs {
		if _, err := store.WriteRecord(r, codec.None); err != nil {
			t.Fatal(err)
		}
	}
}

// QuietLogger discards everything below error level.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}
