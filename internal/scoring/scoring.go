// Package scoring computes the interestingness rank key of an attractor
// from its Lyapunov spectrum and Kaplan–Yorke dimension.
//
// Policies are pure functions of (spectrum, ky_dim). The rest of the
// pipeline only sees a Policy, so the formula can be swapped by name.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

const (
	// LinearClamp caps the leading exponent's contribution in Linear.
	LinearClamp = 10.0
	// ChaosThreshold is the leading exponent below which BellCurve rejects.
	ChaosThreshold = 0.01
	// BellCenter is the leading exponent that BellCurve rewards most.
	BellCenter = 0.3
	// Rejected is the BellCurve score meaning "never select".
	Rejected = -1.0
)

// Func maps summary statistics to a score. spectrum is non-empty and finite.
type Func func(spectrum []float64, kyDim float64) float64

// Linear rewards dimension and chaos strength, clamping the exponent:
// ky_dim*2 + min(λ₁, 10).
func Linear(spectrum []float64, kyDim float64) float64 {
	return kyDim*2 + math.Min(spectrum[0], LinearClamp)
}

// BellCurve rewards dimension linearly and chaos strength through a
// log-normal bump centred at λ₁ = 0.3 with unit width in log space.
// Near-zero or negative leading exponents score Rejected.
func BellCurve(spectrum []float64, kyDim float64) float64 {
	lam := spectrum[0]
	if lam < ChaosThreshold {
		return Rejected
	}
	d := math.Log(lam) - math.Log(BellCenter)
	return kyDim*3.0 + 2.0*math.Exp(-(d*d)/2)
}

// Policy is a named scoring function.
type Policy struct {
	Name  string
	Score Func

	// rejects marks policies where Rejected is a sentinel, not a score.
	rejects bool
}

// Selectable reports whether a record with this score may be selected.
func (p Policy) Selectable(score float64) bool {
	return !(p.rejects && score == Rejected)
}

// New wraps fn as a policy without a rejection sentinel.
func New(name string, fn Func) Policy {
	return Policy{Name: name, Score: fn}
}

var (
	LinearPolicy    = Policy{Name: "linear", Score: Linear}
	BellCurvePolicy = Policy{Name: "bell", Score: BellCurve, rejects: true}
)

var registry = map[string]Policy{
	"linear":     LinearPolicy,
	"bell":       BellCurvePolicy,
	"bell-curve": BellCurvePolicy,
}

// Lookup returns the policy registered under name (case-insensitive).
func Lookup(name string) (Policy, error) {
	p, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return Policy{}, fmt.Errorf("scoring: unknown policy %q (known: %s)", name, strings.Join(Names(), ", "))
	}
	return p, nil
}

// Names lists the registered policy names.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
