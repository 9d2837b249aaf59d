package curator

import (
	"fmt"
	"io"
	"strings"
)

// WriteSummary prints the pre-render table of every group followed by the
// final per-group counts.
func WriteSummary(w io.Writer, res *Result) error {
	p := &printer{w: w}
	for _, g := range res.Groups {
		p.printf("\n== %s (top %d, scoring=%s) ==\n", g.Label, res.TopN, res.Policy)
		p.printf("%4s  %16s  %8s  %6s  %7s\n", "Rank", "ID", "λ1", "dim", "score")
		p.printf("%s\n", strings.Repeat("-", 50))
		if len(g.Ranked) == 0 {
			p.printf("  (no candidates)\n")
		}
		for _, r := range g.Ranked {
			p.printf("%4d  %s  %8.4f  %6.3f  %7.3f\n",
				r.Rank, r.ID.Hex(), r.LeadingExponent, r.Dimension, r.Score)
		}
	}

	p.printf("\n%-12s %10s %8s %8s %8s %8s %8s\n",
		"group", "considered", "valid", "selected", "rendered", "skipped", "dropped")
	for _, g := range res.Groups {
		p.printf("%-12s %10d %8d %8d %8d %8d %8d\n",
			g.Label, g.Considered, g.Valid, len(g.Ranked), len(g.Selected), len(g.Skipped), len(g.Dropped))
	}
	p.printf("total: considered=%d valid=%d rendered=%d\n", res.Considered, res.Valid, res.Rendered())
	return p.err
}

// printer remembers the first write error so callers check once.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
