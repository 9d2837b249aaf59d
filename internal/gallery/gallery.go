// Package gallery hands a curation result to downstream renderers.
//
// The Dir exporter writes one data artifact per selected record (the full
// record, trajectory included, named by its hex id) and a manifest.json
// index listing groups in order. Rasterisation reads those files; it is not
// done here.
package gallery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/attractor-gallery/internal/checksum"
	"github.com/starford/attractor-gallery/internal/codec"
	"github.com/starford/attractor-gallery/internal/curator"
	"github.com/starford/attractor-gallery/internal/models"
	"github.com/starford/attractor-gallery/internal/storage"
)

// ManifestName is the index document written next to the artifacts.
const ManifestName = "manifest.json"

// Exporter consumes a curation result.
type Exporter interface {
	Export(ctx context.Context, res *curator.Result) error
}

// ArtifactName returns the data file name for id.
func ArtifactName(id models.ID, kind codec.Kind) string {
	return id.Hex() + ".json" + kind.Extension()
}

// ImageName returns the file name a renderer should produce for id.
func ImageName(id models.ID) string {
	return id.Hex() + ".png"
}

// Caption returns the display caption for a record.
func Caption(rec *models.Record) string {
	return fmt.Sprintf("λ₁=%.3f  dim=%.2f  id=%s", rec.LeadingExponent(), rec.KYDim, rec.ID.Hex())
}

// Manifest is the ordered index of an export.
type Manifest struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Policy      string          `json:"policy"`
	TopN        int             `json:"top_n"`
	Groups      []ManifestGroup `json:"groups"`
}

// ManifestGroup lists one group's exported records in rank order.
type ManifestGroup struct {
	Label      string          `json:"label"`
	Considered int             `json:"considered"`
	Valid      int             `json:"valid"`
	Rendered   int             `json:"rendered"`
	Records    []ManifestEntry `json:"records"`
}

// ManifestEntry describes one exported record.
type ManifestEntry struct {
	Rank            int     `json:"rank"`
	ID              string  `json:"id"`
	Method          string  `json:"method"`
	LeadingExponent float64 `json:"leading_exponent"`
	KYDim           float64 `json:"ky_dim"`
	Score           float64 `json:"score"`
	Points          int     `json:"points"`
	Caption         string  `json:"caption"`
	Artifact        string  `json:"artifact"`
	Image           string  `json:"image"`
	Checksum        string  `json:"checksum"`
}

// Dir exports artifacts into a local directory.
type Dir struct {
	root    string
	kind    codec.Kind
	workers int
	logger  *slog.Logger
	now     func() time.Time
}

// NewDir creates the output directory if needed. workers bounds concurrent
// artifact writes; values below 1 mean 1.
func NewDir(root string, kind codec.Kind, workers int, logger *slog.Logger) (*Dir, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("gallery: create output dir: %w", err)
	}
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dir{root: root, kind: kind, workers: workers, logger: logger, now: time.Now}, nil
}

// Root returns the output directory.
func (d *Dir) Root() string { return d.root }

type written struct {
	entry ManifestEntry
	ok    bool
}

// Export writes every selected record, then the manifest. A record whose
// artifact cannot be written is logged and left out of the manifest.
func (d *Dir) Export(ctx context.Context, res *curator.Result) error {
	m := Manifest{
		GeneratedAt: d.now().UTC(),
		Policy:      res.Policy,
		TopN:        res.TopN,
	}

	for _, grp := range res.Groups {
		out := make([]written, len(grp.Selected))
		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(d.workers)
		for i, sel := range grp.Selected {
			g.Go(func() error {
				entry, err := d.writeArtifact(sel)
				if err != nil {
					d.logger.Warn("gallery: artifact write failed",
						slog.String("group", grp.Label),
						slog.String("id", sel.Record.ID.Hex()),
						slog.String("error", err.Error()))
					return nil
				}
				out[i] = written{entry: entry, ok: true}
				return nil
			})
		}
		_ = g.Wait()

		mg := ManifestGroup{
			Label:      grp.Label,
			Considered: grp.Considered,
			Valid:      grp.Valid,
			Records:    []ManifestEntry{},
		}
		for _, w := range out {
			if w.ok {
				mg.Records = append(mg.Records, w.entry)
			}
		}
		mg.Rendered = len(mg.Records)
		m.Groups = append(m.Groups, mg)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("gallery: encode manifest: %w", err)
	}
	if err := storage.WriteFileAtomic(filepath.Join(d.root, ManifestName), data); err != nil {
		return fmt.Errorf("gallery: write manifest: %w", err)
	}
	d.logger.Info("gallery: exported",
		slog.String("dir", d.root),
		slog.Int("groups", len(m.Groups)))
	return nil
}

func (d *Dir) writeArtifact(sel curator.Selection) (ManifestEntry, error) {
	rec := sel.Record
	var buf bytes.Buffer
	w, err := codec.NewWriter(d.kind, &buf)
	if err != nil {
		return ManifestEntry{}, err
	}
	if err := json.NewEncoder(w).Encode(rec); err != nil {
		return ManifestEntry{}, fmt.Errorf("encode: %w", err)
	}
	if err := w.Close(); err != nil {
		return ManifestEntry{}, fmt.Errorf("flush: %w", err)
	}

	name := ArtifactName(rec.ID, d.kind)
	if err := storage.WriteFileAtomic(filepath.Join(d.root, name), buf.Bytes()); err != nil {
		return ManifestEntry{}, err
	}
	return ManifestEntry{
		Rank:            sel.Rank,
		ID:              rec.ID.Hex(),
		Method:          rec.Method,
		LeadingExponent: rec.LeadingExponent(),
		KYDim:           rec.KYDim,
		Score:           sel.Score,
		Points:          len(rec.Trajectory),
		Caption:         Caption(rec),
		Artifact:        name,
		Image:           ImageName(rec.ID),
		Checksum:        checksum.Sum(buf.Bytes()),
	}, nil
}

// ReadManifest loads a previously exported manifest.
func ReadManifest(root string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(root, ManifestName))
	if err != nil {
		return nil, fmt.Errorf("gallery: read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("gallery: decode manifest: %w", err)
	}
	return &m, nil
}

// Console prints the summary tables of a result.
type Console struct {
	W io.Writer
}

// Export writes the pre-render tables and final counts.
func (c Console) Export(_ context.Context, res *curator.Result) error {
	return curator.WriteSummary(c.W, res)
}

// Multi runs exporters in order and stops at the first error.
type Multi []Exporter

// Export calls each exporter in turn.
func (m Multi) Export(ctx context.Context, res *curator.Result) error {
	for _, e := range m {
		if err := e.Export(ctx, res); err != nil {
			return err
		}
	}
	return nil
}
