package catalog

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/starford/attractor-gallery/internal/codec"
	"github.com/starford/attractor-gallery/internal/models"
	"github.com/starford/attractor-gallery/internal/storage"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFS(t *testing.T) *storage.FS {
	t.Helper()
	fsys, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return fsys
}

func TestSync(t *testing.T) {
	db := testDB(t)
	src := testFS(t)
	ctx := context.Background()

	locA, err := src.WriteRecord(sampleRecord(0xa, "evolve", 0.3, 2), codec.None)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := src.WriteRecord(sampleRecord(0xb, "random", 0.2, 1.5), codec.Zstd); err != nil {
		t.Fatal(err)
	}

	stats, err := Sync(ctx, db, src, discardLogger())
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if stats.Indexed != 2 || stats.Unchanged != 0 {
		t.Errorf("first sync stats = %+v", stats)
	}

	stats, err = Sync(ctx, db, src, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Indexed != 0 || stats.Unchanged != 2 {
		t.Errorf("second sync stats = %+v", stats)
	}

	if err := src.Delete(locA); err != nil {
		t.Fatal(err)
	}
	stats, err = Sync(ctx, db, src, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Removed != 1 {
		t.Errorf("third sync stats = %+v", stats)
	}

	metas, _ := db.ListMetadata(ctx)
	if len(metas) != 1 || metas[0].ID != 0xb {
		t.Errorf("catalog = %+v", metas)
	}
}

func TestSync_ReimportsChanged(t *testing.T) {
	db := testDB(t)
	src := testFS(t)
	ctx := context.Background()

	rec := sampleRecord(0xc, "evolve", 0.3, 2)
	_, _ = src.WriteRecord(rec, codec.None)
	if _, err := Sync(ctx, db, src, discardLogger()); err != nil {
		t.Fatal(err)
	}

	rec.Method = "random"
	rec.Trajectory = append(rec.Trajectory, models.Point{7, 8, 9})
	_, _ = src.WriteRecord(rec, codec.None)

	stats, err := Sync(ctx, db, src, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Indexed != 1 {
		t.Errorf("stats = %+v", stats)
	}
	got, err := db.LoadFull(ctx, models.Locator(rec.ID.Hex()))
	if err != nil {
		t.Fatal(err)
	}
	if got.Method != "random" || len(got.Trajectory) != 4 {
		t.Errorf("got method=%q points=%d", got.Method, len(got.Trajectory))
	}
}

func TestSync_CountsFailures(t *testing.T) {
	db := testDB(t)
	src := storage.NewMemory(sampleRecord(1, "evolve", 0.3, 2))
	ctx := context.Background()

	vanishing := &vanishingStore{Memory: src, gone: map[models.ID]bool{1: true}}
	stats, err := Sync(ctx, db, vanishing, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	if stats.Failed != 1 || stats.Indexed != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

// vanishingStore lists records but fails to load the ones marked gone.
type vanishingStore struct {
	*storage.Memory
	gone map[models.ID]bool
}

func (v *vanishingStore) LoadFull(ctx context.Context, loc models.Locator) (*models.Record, error) {
	id, err := models.ParseID(string(loc))
	if err == nil && v.gone[id] {
		v.Memory.Remove(id)
	}
	return v.Memory.LoadFull(ctx, loc)
}
