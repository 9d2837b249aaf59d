// Package curator ranks attractor records and selects a bounded top-N
// subset per category for export.
//
// A run enumerates metadata only, filters and ranks it, and then loads the
// full record (with trajectory) just for the selected candidates. Per-record
// failures are skipped and reported; only an unreadable store is fatal.
package curator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/starford/attractor-gallery/internal/apperr"
	"github.com/starford/attractor-gallery/internal/models"
	"github.com/starford/attractor-gallery/internal/scoring"
	"github.com/starford/attractor-gallery/internal/storage"
	"github.com/starford/attractor-gallery/internal/validity"
)

// Config controls grouping, ranking and selection.
type Config struct {
	// TopN is the per-group selection budget.
	TopN int
	// Groups lists the named category tags. Empty means one group per
	// distinct tag.
	Groups []string
	// DefaultGroup labels the catch-all group.
	DefaultGroup string
	Policy       scoring.Policy
	Bounds       validity.Bounds
}

// Row is one line of a pre-render summary table.
type Row struct {
	Rank            int
	ID              models.ID
	LeadingExponent float64
	Dimension       float64
	Score           float64
}

// Selection is a full record that survived both validity tiers.
type Selection struct {
	Rank   int
	Score  float64
	Record *models.Record
}

// Drop records why a selected candidate did not make the final cut.
type Drop struct {
	ID     models.ID
	Reason string
}

// Group is the outcome for one partition key.
type Group struct {
	Key   string
	Label string

	// Considered counts enumerated records with this group's tag.
	Considered int
	// Valid counts records that passed the metadata check.
	Valid int
	// Ranked is the pre-render table of the top-N candidates.
	Ranked []Row
	// Selected holds the final full records, in rank order.
	Selected []Selection
	// Skipped lists candidates whose locator no longer resolved or
	// could not be read.
	Skipped []Drop
	// Dropped lists candidates that failed the trajectory check.
	Dropped []Drop
}

// Result is the outcome of a curation run.
type Result struct {
	Policy     string
	TopN       int
	Considered int
	Valid      int
	// InvalidReasons counts metadata rejections per reason.
	InvalidReasons map[string]int
	Groups         []Group
}

// Rendered returns the number of final records across groups.
func (r *Result) Rendered() int {
	n := 0
	for _, g := range r.Groups {
		n += len(g.Selected)
	}
	return n
}

// Group returns the group with the given label.
func (r *Result) Group(label string) (*Group, bool) {
	for i := range r.Groups {
		if r.Groups[i].Label == label {
			return &r.Groups[i], true
		}
	}
	return nil, false
}

// Curator runs the curation pipeline against a store.
type Curator struct {
	store  storage.Provider
	cfg    Config
	logger *slog.Logger
}

// New creates a Curator. A nil logger uses slog.Default().
func New(store storage.Provider, cfg Config, logger *slog.Logger) *Curator {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Policy.Score == nil {
		cfg.Policy = scoring.BellCurvePolicy
	}
	if cfg.DefaultGroup == "" {
		cfg.DefaultGroup = "other"
	}
	if cfg.Bounds == (validity.Bounds{}) {
		cfg.Bounds = validity.DefaultBounds()
	}
	return &Curator{store: store, cfg: cfg, logger: logger}
}

// Config returns the effective configuration.
func (c *Curator) Config() Config { return c.cfg }

// Curate runs one pass of the pipeline. It fails only if the store cannot be
// enumerated.
func (c *Curator) Curate(ctx context.Context) (*Result, error) {
	metas, err := c.store.ListMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("curator: enumerate: %w", err)
	}

	res := &Result{
		Policy:         c.cfg.Policy.Name,
		TopN:           c.cfg.TopN,
		Considered:     len(metas),
		InvalidReasons: make(map[string]int),
	}

	valid := make([]models.Metadata, 0, len(metas))
	for _, m := range metas {
		if err := validity.Metadata(&m, c.cfg.Bounds); err != nil {
			res.InvalidReasons[reason(err)]++
			c.logger.Debug("curator: metadata rejected",
				slog.String("id", m.ID.Hex()),
				slog.String("reason", err.Error()))
			continue
		}
		valid = append(valid, m)
	}
	res.Valid = len(valid)
	c.logger.Info("curator: metadata filtered",
		slog.Int("considered", res.Considered),
		slog.Int("valid", res.Valid),
		slog.Int("invalid", res.Considered-res.Valid))

	all := PartitionByTag(metas, c.cfg.Groups)
	pool := PartitionByTag(valid, c.cfg.Groups)
	labels := Labels(all.Keys, c.cfg.DefaultGroup)

	for _, key := range all.Keys {
		g := Group{
			Key:        key,
			Label:      labels[key],
			Considered: len(all.Members[key]),
			Valid:      len(pool.Members[key]),
		}
		top := Top(Rank(pool.Members[key], c.cfg.Policy), c.cfg.TopN)
		for i, cand := range top {
			g.Ranked = append(g.Ranked, Row{
				Rank:            i + 1,
				ID:              cand.Meta.ID,
				LeadingExponent: cand.Meta.LeadingExponent(),
				Dimension:       cand.Meta.KYDim,
				Score:           cand.Score,
			})
		}
		c.loadSelected(ctx, &g, top)
		res.Groups = append(res.Groups, g)
	}

	for _, g := range res.Groups {
		c.logger.Info("curator: group selected",
			slog.String("group", g.Label),
			slog.Int("considered", g.Considered),
			slog.Int("valid", g.Valid),
			slog.Int("ranked", len(g.Ranked)),
			slog.Int("rendered", len(g.Selected)),
			slog.Int("skipped", len(g.Skipped)),
			slog.Int("dropped", len(g.Dropped)))
	}
	return res, nil
}

// loadSelected fetches the full record for each candidate and applies the
// trajectory check. Losses are not backfilled from lower-ranked candidates.
func (c *Curator) loadSelected(ctx context.Context, g *Group, top []Candidate) {
	for i, cand := range top {
		id := cand.Meta.ID
		rec, err := c.store.LoadFull(ctx, cand.Meta.Locator)
		if err != nil {
			msg := "curator: record unreadable, skipping"
			if errors.Is(err, apperr.ErrNotFound) {
				msg = "curator: record vanished, skipping"
			}
			c.logger.Warn(msg,
				slog.String("group", g.Label),
				slog.String("id", id.Hex()),
				slog.String("error", err.Error()))
			g.Skipped = append(g.Skipped, Drop{ID: id, Reason: err.Error()})
			continue
		}
		if err := validity.Record(rec, c.cfg.Bounds); err != nil {
			c.logger.Warn("curator: trajectory rejected, dropping",
				slog.String("group", g.Label),
				slog.String("id", id.Hex()),
				slog.String("reason", err.Error()))
			g.Dropped = append(g.Dropped, Drop{ID: id, Reason: err.Error()})
			continue
		}
		c.logger.Debug("curator: accepted",
			slog.String("group", g.Label),
			slog.String("id", id.Hex()),
			slog.Float64("score", cand.Score))
		g.Selected = append(g.Selected, Selection{Rank: i + 1, Score: cand.Score, Record: rec})
	}
}

var reasons = []error{
	validity.ErrEmptySpectrum,
	validity.ErrNonFiniteSpectrum,
	validity.ErrNonFiniteDimension,
	validity.ErrDivergingExponent,
}

func reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r) {
			return r.Error()
		}
	}
	return err.Error()
}
