package api

import (
	"math"

	"github.com/starford/attractor-gallery/internal/catalog"
	"github.com/starford/attractor-gallery/internal/codec"
	"github.com/starford/attractor-gallery/internal/curationservice"
	"github.com/starford/attractor-gallery/internal/curator"
	"github.com/starford/attractor-gallery/internal/gallery"
	"github.com/starford/attractor-gallery/internal/models"
)

// GroupSummary is a per-group count line (aliased from the domain layer).
type GroupSummary = curationservice.GroupSummary

// Run is a recorded curation run (aliased from the catalog).
type Run = catalog.Run

// GroupListResponse wraps the groups of the latest run.
type GroupListResponse struct {
	RunID     string         `json:"run_id,omitempty" example:"01J9Z3K4X5V6W7Y8Z9A0B1C2D3"`
	CuratedAt string         `json:"curated_at" example:"2026-01-02T15:04:05Z" validate:"required"`
	Policy    string         `json:"policy" example:"bell" validate:"required"`
	TopN      int            `json:"top_n" example:"20" validate:"required"`
	Groups    []GroupSummary `json:"groups" validate:"required"`
}

// RankRow is one line of the pre-render summary table.
type RankRow struct {
	Rank            int     `json:"rank" example:"1" validate:"required"`
	ID              string  `json:"id" example:"00000000deadbeef" validate:"required"`
	LeadingExponent float64 `json:"leading_exponent" example:"0.31" validate:"required"`
	Dimension       float64 `json:"ky_dim" example:"2.05" validate:"required"`
	Score           float64 `json:"score" example:"7.99" validate:"required"`
}

// SelectedItem is one final record of a group.
type SelectedItem struct {
	Rank     int     `json:"rank" example:"1" validate:"required"`
	ID       string  `json:"id" example:"00000000deadbeef" validate:"required"`
	Score    float64 `json:"score" example:"7.99" validate:"required"`
	Caption  string  `json:"caption" validate:"required"`
	Artifact string  `json:"artifact" example:"00000000deadbeef.json" validate:"required"`
	Image    string  `json:"image" example:"00000000deadbeef.png" validate:"required"`
}

// DropItem is a candidate that did not make the final cut.
type DropItem struct {
	ID     string `json:"id" example:"00000000deadbeef" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

// GroupDetail is the full outcome of one group.
type GroupDetail struct {
	Label      string         `json:"label" example:"evolve" validate:"required"`
	Considered int            `json:"considered" validate:"required"`
	Valid      int            `json:"valid" validate:"required"`
	Ranked     []RankRow      `json:"ranked" validate:"required"`
	Selected   []SelectedItem `json:"selected" validate:"required"`
	Skipped    []DropItem     `json:"skipped" validate:"required"`
	Dropped    []DropItem     `json:"dropped" validate:"required"`
}

// RecordDetail is a final record with its placement in the selection.
type RecordDetail struct {
	ID              string         `json:"id" example:"00000000deadbeef" validate:"required"`
	Group           string         `json:"group" example:"evolve" validate:"required"`
	Rank            int            `json:"rank" validate:"required"`
	Score           float64        `json:"score" validate:"required"`
	Method          string         `json:"method" example:"evolve"`
	LeadingExponent float64        `json:"leading_exponent" validate:"required"`
	KYDim           float64        `json:"ky_dim" validate:"required"`
	Spectrum        []float64      `json:"spectrum" validate:"required"`
	Coeffs          []*float64     `json:"coeffs,omitempty"`
	Points          int            `json:"points" validate:"required"`
	Caption         string         `json:"caption" validate:"required"`
	Artifact        string         `json:"artifact" validate:"required"`
	Image           string         `json:"image" validate:"required"`
	Trajectory      []models.Point `json:"trajectory,omitempty"`
}

// CurateResponse reports a finished on-demand run.
type CurateResponse struct {
	RunID      string         `json:"run_id,omitempty"`
	Considered int            `json:"considered" validate:"required"`
	Valid      int            `json:"valid" validate:"required"`
	Rendered   int            `json:"rendered" validate:"required"`
	Groups     []GroupSummary `json:"groups" validate:"required"`
}

// RunListResponse wraps recorded runs.
type RunListResponse struct {
	Runs []Run `json:"runs" validate:"required"`
}

// RunSelectionItem is one ranked candidate of a recorded run.
type RunSelectionItem struct {
	Group  string  `json:"group" validate:"required"`
	Rank   int     `json:"rank" validate:"required"`
	ID     string  `json:"id" validate:"required"`
	Score  float64 `json:"score" validate:"required"`
	Status string  `json:"status" example:"rendered" validate:"required"`
}

func groupDetail(g *curator.Group, kind codec.Kind) GroupDetail {
	d := GroupDetail{
		Label:      g.Label,
		Considered: g.Considered,
		Valid:      g.Valid,
		Ranked:     make([]RankRow, 0, len(g.Ranked)),
		Selected:   make([]SelectedItem, 0, len(g.Selected)),
		Skipped:    dropItems(g.Skipped),
		Dropped:    dropItems(g.Dropped),
	}
	for _, r := range g.Ranked {
		d.Ranked = append(d.Ranked, RankRow{
			Rank:            r.Rank,
			ID:              r.ID.Hex(),
			LeadingExponent: r.LeadingExponent,
			Dimension:       r.Dimension,
			Score:           r.Score,
		})
	}
	for _, s := range g.Selected {
		d.Selected = append(d.Selected, SelectedItem{
			Rank:     s.Rank,
			ID:       s.Record.ID.Hex(),
			Score:    s.Score,
			Caption:  gallery.Caption(s.Record),
			Artifact: gallery.ArtifactName(s.Record.ID, kind),
			Image:    gallery.ImageName(s.Record.ID),
		})
	}
	return d
}

func dropItems(drops []curator.Drop) []DropItem {
	out := make([]DropItem, 0, len(drops))
	for _, d := range drops {
		out = append(out, DropItem{ID: d.ID.Hex(), Reason: d.Reason})
	}
	return out
}

func recordDetail(sel *curationservice.SelectedRecord, kind codec.Kind, withTrajectory bool) RecordDetail {
	rec := sel.Record
	d := RecordDetail{
		ID:              rec.ID.Hex(),
		Group:           sel.Group,
		Rank:            sel.Rank,
		Score:           sel.Score,
		Method:          rec.Method,
		LeadingExponent: rec.LeadingExponent(),
		KYDim:           rec.KYDim,
		Spectrum:        rec.Spectrum,
		Coeffs:          nullable(rec.Coeffs),
		Points:          len(rec.Trajectory),
		Caption:         gallery.Caption(rec),
		Artifact:        gallery.ArtifactName(rec.ID, kind),
		Image:           gallery.ImageName(rec.ID),
	}
	if withTrajectory {
		d.Trajectory = rec.Trajectory
	}
	return d
}

// nullable maps non-finite values to JSON null.
func nullable(vs []float64) []*float64 {
	if len(vs) == 0 {
		return nil
	}
	out := make([]*float64, len(vs))
	for i := range vs {
		if !math.IsNaN(vs[i]) && !math.IsInf(vs[i], 0) {
			out[i] = &vs[i]
		}
	}
	return out
}
