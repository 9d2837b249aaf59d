// Package curationservice runs the curation pipeline on demand and keeps
// the latest selection for the HTTP and MCP surfaces.
package curationservice

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/starford/attractor-gallery/internal/apperr"
	"github.com/starford/attractor-gallery/internal/curator"
	"github.com/starford/attractor-gallery/internal/gallery"
	"github.com/starford/attractor-gallery/internal/models"
	"github.com/starford/attractor-gallery/internal/scoring"
)

// RunRecorder persists finished runs. catalog.DB implements it.
type RunRecorder interface {
	RecordRun(ctx context.Context, res *curator.Result) (string, error)
}

// Snapshot is the outcome of one completed run.
type Snapshot struct {
	RunID     string
	CuratedAt time.Time
	Result    *curator.Result
}

// Groups summarises every group of this snapshot.
func (s *Snapshot) Groups() []GroupSummary {
	out := make([]GroupSummary, 0, len(s.Result.Groups))
	for i := range s.Result.Groups {
		out = append(out, summarise(&s.Result.Groups[i]))
	}
	return out
}

// GroupSummary is a per-group count line.
type GroupSummary struct {
	Label      string `json:"label"`
	Considered int    `json:"considered"`
	Valid      int    `json:"valid"`
	Ranked     int    `json:"ranked"`
	Selected   int    `json:"selected"`
	Skipped    int    `json:"skipped"`
	Dropped    int    `json:"dropped"`
}

// SelectedRecord is one final record with its group and rank.
type SelectedRecord struct {
	Group  string
	Rank   int
	Score  float64
	Record *models.Record
}

// Option configures a Service.
type Option func(*Service)

// WithExporter sets the exporter run after each curation.
func WithExporter(e gallery.Exporter) Option {
	return func(s *Service) { s.exporter = e }
}

// WithRunRecorder stores every run through r.
func WithRunRecorder(r RunRecorder) Option {
	return func(s *Service) { s.runs = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithNotify registers fn to be called after each successful run.
func WithNotify(fn func(*Snapshot)) Option {
	return func(s *Service) { s.notify = fn }
}

// Service coordinates the curator, the exporter and run history.
type Service struct {
	curator  *curator.Curator
	exporter gallery.Exporter
	runs     RunRecorder
	logger   *slog.Logger
	notify   func(*Snapshot)
	now      func() time.Time

	// runMu serialises runs; mu guards latest.
	runMu  sync.Mutex
	mu     sync.RWMutex
	latest *Snapshot
}

// New creates a Service around c.
func New(c *curator.Curator, opts ...Option) *Service {
	s := &Service{curator: c, logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Config returns the curator configuration.
func (s *Service) Config() curator.Config {
	return s.curator.Config()
}

// Curate runs the pipeline, exports the selection and records the run.
// A failed export fails the run; a failed run record is only logged.
func (s *Service) Curate(ctx context.Context) (*Snapshot, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	started := s.now().UTC()
	res, err := s.curator.Curate(ctx)
	if err != nil {
		return nil, err
	}
	if s.exporter != nil {
		if err := s.exporter.Export(ctx, res); err != nil {
			return nil, fmt.Errorf("curationservice: export: %w", err)
		}
	}

	snap := &Snapshot{CuratedAt: started, Result: res}
	if s.runs != nil {
		id, err := s.runs.RecordRun(ctx, res)
		if err != nil {
			s.logger.Warn("curationservice: record run failed", slog.String("error", err.Error()))
		} else {
			snap.RunID = id
		}
	}

	s.mu.Lock()
	s.latest = snap
	s.mu.Unlock()

	s.logger.Info("curationservice: run complete",
		slog.String("run_id", snap.RunID),
		slog.Int("considered", res.Considered),
		slog.Int("valid", res.Valid),
		slog.Int("rendered", res.Rendered()))

	if s.notify != nil {
		s.notify(snap)
	}
	return snap, nil
}

// Latest returns the most recent snapshot.
func (s *Service) Latest() (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.latest == nil {
		return nil, apperr.ErrNoSelection
	}
	return s.latest, nil
}

// Groups summarises every group of the latest run.
func (s *Service) Groups() ([]GroupSummary, error) {
	snap, err := s.Latest()
	if err != nil {
		return nil, err
	}
	return snap.Groups(), nil
}

// Group returns the group with label from the latest run.
func (s *Service) Group(label string) (*curator.Group, error) {
	snap, err := s.Latest()
	if err != nil {
		return nil, err
	}
	g, ok := snap.Result.Group(label)
	if !ok {
		return nil, fmt.Errorf("curationservice: group %q: %w", label, apperr.ErrNotFound)
	}
	return g, nil
}

// Record looks up a final record of the latest run by id.
func (s *Service) Record(id models.ID) (*SelectedRecord, error) {
	snap, err := s.Latest()
	if err != nil {
		return nil, err
	}
	for _, g := range snap.Result.Groups {
		for _, sel := range g.Selected {
			if sel.Record.ID == id {
				return &SelectedRecord{Group: g.Label, Rank: sel.Rank, Score: sel.Score, Record: sel.Record}, nil
			}
		}
	}
	return nil, fmt.Errorf("curationservice: record %s: %w", id, apperr.ErrNotFound)
}

// Score evaluates the named policy (or the configured one when name is
// empty) on a leading exponent and dimension.
func (s *Service) Score(name string, leading, kyDim float64) (float64, bool, error) {
	policy := s.curator.Config().Policy
	if name != "" {
		p, err := scoring.Lookup(name)
		if err != nil {
			return 0, false, fmt.Errorf("%w: %w", apperr.ErrInvalidInput, err)
		}
		policy = p
	}
	if math.IsNaN(leading) || math.IsNaN(kyDim) {
		return 0, false, fmt.Errorf("%w: leading exponent and dimension must be numbers", apperr.ErrInvalidInput)
	}
	score := policy.Score([]float64{leading}, kyDim)
	return score, policy.Selectable(score), nil
}

func summarise(g *curator.Group) GroupSummary {
	return GroupSummary{
		Label:      g.Label,
		Considered: g.Considered,
		Valid:      g.Valid,
		Ranked:     len(g.Ranked),
		Selected:   len(g.Selected),
		Skipped:    len(g.Skipped),
		Dropped:    len(g.Dropped),
	}
}
