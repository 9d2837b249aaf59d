package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/starford/attractor-gallery/internal/curator"
	"github.com/starford/attractor-gallery/internal/models"
)

// Selection statuses stored per ranked candidate.
const (
	StatusRendered = "rendered"
	StatusSkipped  = "skipped"
	StatusDropped  = "dropped"
)

// Run is one recorded curation run.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	Policy     string    `json:"policy"`
	TopN       int       `json:"top_n"`
	Considered int       `json:"considered"`
	Valid      int       `json:"valid"`
	Rendered   int       `json:"rendered"`
}

// RunSelection is one ranked candidate of a recorded run. GroupKey is the
// partition key ("" for the catch-all group); Group is its display label.
type RunSelection struct {
	RunID    string    `json:"run_id"`
	GroupKey string    `json:"group_key"`
	Group    string    `json:"group"`
	Rank     int       `json:"rank"`
	RecordID models.ID `json:"-"`
	Score    float64   `json:"score"`
	Status   string    `json:"status"`
}

func (db *DB) newRunID(now time.Time) string {
	db.idMu.Lock()
	defer db.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(now), db.entropy).String()
}

// RecordRun stores the result of a curation run and returns its id. Run ids
// sort by start time.
func (db *DB) RecordRun(ctx context.Context, res *curator.Result) (string, error) {
	now := time.Now().UTC()
	id := db.newRunID(now)

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, policy, top_n, considered, valid, rendered)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, id, now, res.Policy, res.TopN, res.Considered, res.Valid, res.Rendered())
	if err != nil {
		return "", fmt.Errorf("catalog: insert run: %w", err)
	}

	for _, g := range res.Groups {
		status := selectionStatus(&g)
		for _, row := range g.Ranked {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO run_selections (run_id, grp_key, grp, rank, record_id, score, status)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, id, g.Key, g.Label, row.Rank, row.ID.Hex(), row.Score, status[row.ID])
			if err != nil {
				return "", fmt.Errorf("catalog: insert selection: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("catalog: commit run: %w", err)
	}
	return id, nil
}

func selectionStatus(g *curator.Group) map[models.ID]string {
	out := make(map[models.ID]string, len(g.Ranked))
	for _, s := range g.Selected {
		out[s.Record.ID] = StatusRendered
	}
	for _, d := range g.Skipped {
		out[d.ID] = StatusSkipped
	}
	for _, d := range g.Dropped {
		out[d.ID] = StatusDropped
	}
	return out
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, started_at, policy, top_n, considered, valid, rendered
		FROM runs
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.StartedAt, &r.Policy, &r.TopN, &r.Considered, &r.Valid, &r.Rendered); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RunSelections returns the ranked candidates of a run, by group and rank.
func (db *DB) RunSelections(ctx context.Context, runID string) ([]RunSelection, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT run_id, grp_key, grp, rank, record_id, score, status
		FROM run_selections
		WHERE run_id = ?
		ORDER BY grp, rank
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("catalog: run selections: %w", err)
	}
	defer rows.Close()

	var out []RunSelection
	for rows.Next() {
		var (
			s   RunSelection
			hex string
		)
		if err := rows.Scan(&s.RunID, &s.GroupKey, &s.Group, &s.Rank, &hex, &s.Score, &s.Status); err != nil {
			return nil, err
		}
		id, err := models.ParseID(hex)
		if err != nil {
			return nil, err
		}
		s.RecordID = id
		out = append(out, s)
	}
	return out, rows.Err()
}
