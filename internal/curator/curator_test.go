package curator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/attractor-gallery/internal/apperr"
	"github.com/starford/attractor-gallery/internal/models"
	"github.com/starford/attractor-gallery/internal/scoring"
	"github.com/starford/attractor-gallery/internal/storage"
	"github.com/starford/attractor-gallery/internal/validity"
)

func rec(id models.ID, lam, dim float64, method string) *models.Record {
	return &models.Record{
		Metadata: models.Metadata{
			ID:       id,
			Spectrum: []float64{lam, 0, -10},
			KYDim:    dim,
			Method:   method,
		},
		Trajectory: []models.Point{{0.1, 0.2, 0.3}, {1, -1, 2}},
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

func bufferLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// vanishing wraps a store and pretends some records were deleted after
// enumeration.
type vanishing struct {
	*storage.Memory
	gone map[models.ID]bool
}

func (v *vanishing) LoadFull(ctx context.Context, loc models.Locator) (*models.Record, error) {
	id, err := models.ParseID(string(loc))
	if err == nil && v.gone[id] {
		return nil, fmt.Errorf("test: %s: %w", loc, apperr.ErrNotFound)
	}
	return v.Memory.LoadFull(ctx, loc)
}

func ids(g *Group) []models.ID {
	var out []models.ID
	for _, s := range g.Selected {
		out = append(out, s.Record.ID)
	}
	return out
}

func TestCurate_BellCurveExample(t *testing.T) {
	store := storage.NewMemory(
		rec(0x1, 0.3, 2.1, "evolve"),
		rec(0x2, 5.0, 1.0, "evolve"),
		rec(0x3, math.NaN(), 1.5, "evolve"),
	)
	c := New(store, Config{
		TopN:         1,
		Groups:       []string{"evolve"},
		DefaultGroup: "random",
		Policy:       scoring.BellCurvePolicy,
	}, quietLogger())

	res, err := c.Curate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Considered)
	assert.Equal(t, 2, res.Valid)
	assert.Equal(t, 1, res.InvalidReasons[validity.ErrNonFiniteSpectrum.Error()])

	require.Len(t, res.Groups, 2)
	evolve := &res.Groups[0]
	assert.Equal(t, "evolve", evolve.Label)
	assert.Equal(t, 3, evolve.Considered)
	assert.Equal(t, 2, evolve.Valid)
	assert.Equal(t, []models.ID{0x1}, ids(evolve))
	require.Len(t, evolve.Ranked, 1)
	assert.InDelta(t, 2.1*3+2, evolve.Ranked[0].Score, 1e-9)

	other := &res.Groups[1]
	assert.Equal(t, "random", other.Label)
	assert.Empty(t, other.Selected)
	assert.Equal(t, 0, other.Considered)
}

func TestCurate_InvalidNeverRanked(t *testing.T) {
	store := storage.NewMemory(
		rec(1, math.NaN(), 3, ""),
		rec(2, 150, 3, ""),
		rec(3, 0.5, math.NaN(), ""),
		rec(4, 0.5, 1, ""),
	)
	res, err := New(store, Config{TopN: 10, Policy: scoring.LinearPolicy}, quietLogger()).Curate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Valid)
	for _, g := range res.Groups {
		for _, r := range g.Ranked {
			assert.Equal(t, models.ID(4), r.ID)
		}
	}
}

func TestCurate_StableTies(t *testing.T) {
	var recs []*models.Record
	for _, id := range []models.ID{9, 3, 7, 1, 5} {
		recs = append(recs, rec(id, 1.0, 2.0, "evolve"))
	}
	res, err := New(storage.NewMemory(recs...), Config{
		TopN:   5,
		Groups: []string{"evolve"},
		Policy: scoring.LinearPolicy,
	}, quietLogger()).Curate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []models.ID{9, 3, 7, 1, 5}, ids(&res.Groups[0]))
}

func TestCurate_TopNBound(t *testing.T) {
	var recs []*models.Record
	for i := 1; i <= 30; i++ {
		recs = append(recs, rec(models.ID(i), float64(i)/10, 1.5, "evolve"))
	}
	recs = append(recs, rec(100, 0.4, 1.2, ""), rec(101, 0.5, 1.1, "random"))

	res, err := New(storage.NewMemory(recs...), Config{
		TopN:   20,
		Groups: []string{"evolve"},
		Policy: scoring.LinearPolicy,
	}, quietLogger()).Curate(context.Background())
	require.NoError(t, err)

	evolve, ok := res.Group("evolve")
	require.True(t, ok)
	assert.Len(t, evolve.Selected, 20)
	assert.Equal(t, models.ID(30), evolve.Selected[0].Record.ID, "highest λ1 first")

	other, ok := res.Group("other")
	require.True(t, ok)
	assert.Len(t, other.Selected, 2, "smaller pool returns fewer than N")
}

func TestCurate_TrajectoryDropNoBackfill(t *testing.T) {
	bad := rec(2, 0.9, 2.0, "evolve")
	bad.Trajectory = append(bad.Trajectory, models.Point{0, 2e6, 0})
	store := storage.NewMemory(
		rec(1, 1.0, 2.0, "evolve"),
		bad,
		rec(3, 0.1, 1.0, "evolve"),
	)
	res, err := New(store, Config{
		TopN:   2,
		Groups: []string{"evolve"},
		Policy: scoring.LinearPolicy,
	}, quietLogger()).Curate(context.Background())
	require.NoError(t, err)

	g := &res.Groups[0]
	assert.Len(t, g.Ranked, 2, "bad record was ranked in the top-N")
	assert.Equal(t, []models.ID{1}, ids(g), "no backfill from record 3")
	require.Len(t, g.Dropped, 1)
	assert.Equal(t, models.ID(2), g.Dropped[0].ID)
	assert.Contains(t, g.Dropped[0].Reason, "exceeds bound")
}

func TestCurate_VanishedRecordSkippedOnce(t *testing.T) {
	store := &vanishing{
		Memory: storage.NewMemory(
			rec(1, 1.0, 2.0, "evolve"),
			rec(2, 0.9, 2.0, "evolve"),
			rec(3, 0.8, 2.0, "evolve"),
		),
		gone: map[models.ID]bool{2: true},
	}
	var logs bytes.Buffer
	res, err := New(store, Config{
		TopN:   3,
		Groups: []string{"evolve"},
		Policy: scoring.LinearPolicy,
	}, bufferLogger(&logs)).Curate(context.Background())
	require.NoError(t, err)

	g := &res.Groups[0]
	assert.Equal(t, []models.ID{1, 3}, ids(g))
	require.Len(t, g.Skipped, 1)
	assert.Equal(t, models.ID(2), g.Skipped[0].ID)
	assert.Equal(t, 1, strings.Count(logs.String(), "record vanished"))
	assert.Equal(t, 3, g.Selected[1].Rank, "rank is kept from the pre-render table")
}

func TestCurate_IncompleteRecordsNeverSelected(t *testing.T) {
	fs, err := storage.NewFS(t.TempDir(), storage.WithLogger(quietLogger()))
	require.NoError(t, err)
	files := map[string]string{
		"0000000000000001.json": `{"id":1,"spectrum":[0.3],"method":"evolve","trajectory":[[1,2,3]]}`,
		"0000000000000002.json": `{"id":2,"spectrum":[0.3],"ky_dim":1,"method":"evolve","trajectory":[[1,2]]}`,
		"0000000000000003.json": `{"id":3,"spectrum":[0.3],"ky_dim":0.5,"method":"evolve"}`,
		"0000000000000004.json": `{"id":4,"spectrum":[0.3],"ky_dim":0.2,"method":"evolve","trajectory":[[1,2,3]]}`,
	}
	for name, body := range files {
		require.NoError(t, fs.Write(name, []byte(body)))
	}

	res, err := New(fs, Config{
		TopN:   5,
		Groups: []string{"evolve"},
		Policy: scoring.BellCurvePolicy,
	}, quietLogger()).Curate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, res.Considered)
	assert.Equal(t, 3, res.Valid, "missing ky_dim fails the metadata check")
	assert.Equal(t, 1, res.InvalidReasons[validity.ErrNonFiniteDimension.Error()])

	g := &res.Groups[0]
	assert.Equal(t, []models.ID{4}, ids(g))
	require.Len(t, g.Skipped, 2)
	for _, s := range g.Skipped {
		assert.Contains(t, []models.ID{2, 3}, s.ID)
	}
}

func TestCurate_DefaultLabelDoesNotShadowTag(t *testing.T) {
	store := storage.NewMemory(
		rec(1, 0.3, 2.0, "random"),
		rec(2, 0.3, 1.5, ""),
		rec(3, 0.3, 1.8, "evolve"),
	)
	res, err := New(store, Config{
		TopN:         5,
		DefaultGroup: "random",
		Policy:       scoring.BellCurvePolicy,
	}, quietLogger()).Curate(context.Background())
	require.NoError(t, err)

	require.Len(t, res.Groups, 3)
	seen := map[string]bool{}
	for _, g := range res.Groups {
		assert.False(t, seen[g.Label], "duplicate label %q", g.Label)
		seen[g.Label] = true
	}

	tagged, ok := res.Group("random")
	require.True(t, ok)
	assert.Equal(t, []models.ID{1}, ids(tagged))

	untagged, ok := res.Group("random-2")
	require.True(t, ok)
	assert.Equal(t, DefaultKey, untagged.Key)
	assert.Equal(t, []models.ID{2}, ids(untagged))
}

func TestCurate_EnumerationFailureIsFatal(t *testing.T) {
	store := storage.NewMemory()
	store.ListErr = errors.New("disk gone")

	_, err := New(store, Config{TopN: 5}, quietLogger()).Curate(context.Background())
	assert.ErrorIs(t, err, apperr.ErrStoreUnavailable)
}

func TestCurate_EmptyStore(t *testing.T) {
	res, err := New(storage.NewMemory(), Config{TopN: 5, Groups: []string{"evolve"}}, quietLogger()).Curate(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Groups, 2)
	for _, g := range res.Groups {
		assert.Empty(t, g.Selected)
	}
	assert.Equal(t, 0, res.Rendered())
}

func TestCurate_BellSentinelNeverSelected(t *testing.T) {
	store := storage.NewMemory(
		rec(1, 0.001, 9.0, ""),
		rec(2, -0.5, 9.0, ""),
		rec(3, 0.2, 1.0, ""),
	)
	res, err := New(store, Config{TopN: 5, Policy: scoring.BellCurvePolicy}, quietLogger()).Curate(context.Background())
	require.NoError(t, err)
	g, ok := res.Group("other")
	require.True(t, ok)
	assert.Equal(t, []models.ID{3}, ids(g))
	assert.Equal(t, 3, g.Valid)
}

func TestWriteSummary(t *testing.T) {
	store := storage.NewMemory(rec(0xbeef, 0.3, 2.1, "evolve"))
	res, err := New(store, Config{TopN: 3, Groups: []string{"evolve"}, DefaultGroup: "random"}, quietLogger()).Curate(context.Background())
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, WriteSummary(&out, res))
	s := out.String()
	assert.Contains(t, s, "== evolve (top 3, scoring=bell) ==")
	assert.Contains(t, s, "000000000000beef")
	assert.Contains(t, s, "(no candidates)")
	assert.Contains(t, s, "total: considered=1 valid=1 rendered=1")
}
