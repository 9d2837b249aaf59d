package curationservice

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/attractor-gallery/internal/apperr"
	"github.com/starford/attractor-gallery/internal/curator"
	"github.com/starford/attractor-gallery/internal/scoring"
	"github.com/starford/attractor-gallery/internal/storage"
	"github.com/starford/attractor-gallery/internal/testutil"
)

type recordingExporter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (e *recordingExporter) Export(_ context.Context, _ *curator.Result) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	return e.err
}

type fakeRuns struct {
	ids []string
	err error
}

func (f *fakeRuns) RecordRun(_ context.Context, _ *curator.Result) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	id := "run-" + string(rune('a'+len(f.ids)))
	f.ids = append(f.ids, id)
	return id, nil
}

func newService(t *testing.T, opts ...Option) *Service {
	t.Helper()
	store := storage.NewMemory(
		testutil.Record(0x1, 0.3, 2.1, "evolve"),
		testutil.Record(0x2, 0.5, 1.4, "evolve"),
		testutil.Record(0x3, 0.2, 1.2, "random"),
		testutil.Record(0x4, 0.001, 2.0, "random"),
	)
	c := curator.New(store, curator.Config{
		TopN:         5,
		Groups:       []string{"evolve"},
		DefaultGroup: "random",
		Policy:       scoring.BellCurvePolicy,
	}, testutil.QuietLogger())
	return New(c, append([]Option{WithLogger(testutil.QuietLogger())}, opts...)...)
}

func TestLatestBeforeRun(t *testing.T) {
	svc := newService(t)
	_, err := svc.Latest()
	assert.ErrorIs(t, err, apperr.ErrNoSelection)
	_, err = svc.Groups()
	assert.ErrorIs(t, err, apperr.ErrNoSelection)
}

func TestCurate_ExportsRecordsAndNotifies(t *testing.T) {
	exp := &recordingExporter{}
	runs := &fakeRuns{}
	var notified *Snapshot
	svc := newService(t, WithExporter(exp), WithRunRecorder(runs), WithNotify(func(s *Snapshot) { notified = s }))

	snap, err := svc.Curate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, exp.calls)
	assert.Equal(t, "run-a", snap.RunID)
	assert.Same(t, snap, notified)

	latest, err := svc.Latest()
	require.NoError(t, err)
	assert.Same(t, snap, latest)

	groups, err := svc.Groups()
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "evolve", groups[0].Label)
	assert.Equal(t, 2, groups[0].Selected)
	assert.Equal(t, "random", groups[1].Label)
	// The near-zero exponent is rejected by the bell policy.
	assert.Equal(t, 1, groups[1].Selected)
}

func TestCurate_ExportFailureKeepsPrevious(t *testing.T) {
	exp := &recordingExporter{}
	svc := newService(t, WithExporter(exp))

	first, err := svc.Curate(context.Background())
	require.NoError(t, err)

	exp.err = errors.New("disk full")
	_, err = svc.Curate(context.Background())
	require.Error(t, err)

	latest, err := svc.Latest()
	require.NoError(t, err)
	assert.Same(t, first, latest)
}

func TestCurate_RunRecordFailureIsNotFatal(t *testing.T) {
	svc := newService(t, WithRunRecorder(&fakeRuns{err: errors.New("db locked")}))
	snap, err := svc.Curate(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.RunID)
}

func TestGroupAndRecord(t *testing.T) {
	svc := newService(t)
	_, err := svc.Curate(context.Background())
	require.NoError(t, err)

	g, err := svc.Group("evolve")
	require.NoError(t, err)
	assert.Len(t, g.Selected, 2)

	_, err = svc.Group("missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	sel, err := svc.Record(0x3)
	require.NoError(t, err)
	assert.Equal(t, "random", sel.Group)
	assert.Equal(t, 1, sel.Rank)

	_, err = svc.Record(0x4)
	assert.ErrorIs(t, err, apperr.ErrNotFound, "rejected record is not part of the selection")
}

func TestScore(t *testing.T) {
	svc := newService(t)

	score, ok, err := svc.Score("", 0.3, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 8.0, score, 1e-9)

	score, ok, err = svc.Score("bell", 0.005, 2)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, scoring.Rejected, score)

	score, ok, err = svc.Score("linear", 12, 1.5)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.InDelta(t, 13.0, score, 1e-9)

	_, _, err = svc.Score("entropy", 1, 1)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, _, err = svc.Score("", math.NaN(), 1)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestSnapshotGroupsStayWithTheirRun(t *testing.T) {
	store := storage.NewMemory(testutil.Record(0x1, 0.3, 2.1, "evolve"))
	c := curator.New(store, curator.Config{
		TopN:         5,
		Groups:       []string{"evolve"},
		DefaultGroup: "random",
		Policy:       scoring.BellCurvePolicy,
	}, testutil.QuietLogger())
	svc := New(c, WithLogger(testutil.QuietLogger()))

	first, err := svc.Curate(context.Background())
	require.NoError(t, err)

	store.Put(testutil.Record(0x2, 0.4, 1.9, "evolve"))
	second, err := svc.Curate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, first.Groups()[0].Selected, "older snapshot must not see the newer run")
	assert.Equal(t, 2, second.Groups()[0].Selected)

	latest, err := svc.Groups()
	require.NoError(t, err)
	assert.Equal(t, second.Groups(), latest)
}
