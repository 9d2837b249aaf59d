package catalog

import (
	"context"
	"testing"

	"github.com/starford/attractor-gallery/internal/curator"
	"github.com/starford/attractor-gallery/internal/models"
)

func sampleResult() *curator.Result {
	return &curator.Result{
		Policy:     "bell",
		TopN:       3,
		Considered: 5,
		Valid:      4,
		Groups: []curator.Group{
			{
				Key:   "evolve",
				Label: "evolve",
				Ranked: []curator.Row{
					{Rank: 1, ID: 1, Score: 9},
					{Rank: 2, ID: 2, Score: 8},
					{Rank: 3, ID: 3, Score: 7},
				},
				Selected: []curator.Selection{
					{Rank: 1, Score: 9, Record: &models.Record{Metadata: models.Metadata{ID: 1}}},
				},
				Skipped: []curator.Drop{{ID: 2, Reason: "not found"}},
				Dropped: []curator.Drop{{ID: 3, Reason: "coordinate out of bounds"}},
			},
			{
				Key:    "",
				Label:  "random",
				Ranked: []curator.Row{{Rank: 1, ID: 4, Score: 5}},
				Selected: []curator.Selection{
					{Rank: 1, Score: 5, Record: &models.Record{Metadata: models.Metadata{ID: 4}}},
				},
			},
		},
	}
}

func TestRecordRunAndList(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	first, err := db.RecordRun(ctx, sampleResult())
	if err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	second, err := db.RecordRun(ctx, sampleResult())
	if err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	if second <= first {
		t.Errorf("run ids not increasing: %s then %s", first, second)
	}

	runs, err := db.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != second {
		t.Fatalf("runs = %+v", runs)
	}
	r := runs[0]
	if r.Policy != "bell" || r.TopN != 3 || r.Considered != 5 || r.Valid != 4 || r.Rendered != 2 {
		t.Errorf("run = %+v", r)
	}

	runs, _ = db.ListRuns(ctx, 1)
	if len(runs) != 1 {
		t.Errorf("limit ignored: %d runs", len(runs))
	}
}

func TestRunSelections(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	id, err := db.RecordRun(ctx, sampleResult())
	if err != nil {
		t.Fatal(err)
	}

	sels, err := db.RunSelections(ctx, id)
	if err != nil {
		t.Fatalf("RunSelections: %v", err)
	}
	if len(sels) != 4 {
		t.Fatalf("got %d selections, want 4", len(sels))
	}
	want := map[models.ID]string{1: StatusRendered, 2: StatusSkipped, 3: StatusDropped, 4: StatusRendered}
	for _, s := range sels {
		if s.Status != want[s.RecordID] {
			t.Errorf("record %s status = %q, want %q", s.RecordID, s.Status, want[s.RecordID])
		}
	}
	if sels[0].Group != "evolve" || sels[3].Group != "random" {
		t.Errorf("unexpected grouping: %+v", sels)
	}
}

func TestRecordRun_KeysSelectionsByGroupKey(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	res := &curator.Result{
		Policy: "bell",
		TopN:   1,
		Groups: []curator.Group{
			{Key: "random", Label: "random", Ranked: []curator.Row{{Rank: 1, ID: 1, Score: 3}}},
			{Key: "", Label: "random", Ranked: []curator.Row{{Rank: 1, ID: 2, Score: 2}}},
		},
	}
	runID, err := db.RecordRun(ctx, res)
	if err != nil {
		t.Fatalf("RecordRun with a repeated label: %v", err)
	}

	sels, err := db.RunSelections(ctx, runID)
	if err != nil {
		t.Fatal(err)
	}
	if len(sels) != 2 {
		t.Fatalf("selections = %d, want 2", len(sels))
	}
	keys := map[string]models.ID{}
	for _, s := range sels {
		keys[s.GroupKey] = s.RecordID
	}
	if keys["random"] != 1 || keys[""] != 2 {
		t.Errorf("selections by key = %v", keys)
	}
}
