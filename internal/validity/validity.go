// Package validity decides whether a record's numeric content is usable.
//
// There are two tiers. CheckMetadata is cheap and runs on every enumerated
// record before scoring. CheckTrajectory walks every trajectory point and runs
// only on the full records selected for export.
package validity

import (
	"errors"
	"fmt"
	"math"

	"github.com/starford/attractor-gallery/internal/models"
)

// Default bounds.
const (
	DefaultMaxLeadingExponent = 100.0
	DefaultMaxCoordinate      = 1e6
)

var (
	ErrEmptySpectrum         = errors.New("spectrum is empty")
	ErrNonFiniteSpectrum     = errors.New("spectrum contains a non-finite value")
	ErrNonFiniteDimension    = errors.New("ky_dim is not finite")
	ErrDivergingExponent     = errors.New("leading exponent exceeds bound")
	ErrNonFiniteTrajectory   = errors.New("trajectory contains a non-finite coordinate")
	ErrCoordinateOutOfBounds = errors.New("trajectory coordinate exceeds bound")
)

// Bounds holds the sanity limits applied by the checks.
type Bounds struct {
	// MaxLeadingExponent is an exclusive ceiling on spectrum[0].
	MaxLeadingExponent float64
	// MaxCoordinate is an inclusive ceiling on |coordinate|.
	MaxCoordinate float64
}

// DefaultBounds returns the reference limits.
func DefaultBounds() Bounds {
	return Bounds{
		MaxLeadingExponent: DefaultMaxLeadingExponent,
		MaxCoordinate:      DefaultMaxCoordinate,
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// CheckMetadata validates the summary statistics of a record. It returns nil
// when the record may be scored.
func CheckMetadata(spectrum []float64, kyDim float64, b Bounds) error {
	if len(spectrum) == 0 {
		return ErrEmptySpectrum
	}
	for i, v := range spectrum {
		if !finite(v) {
			return fmt.Errorf("%w: spectrum[%d]=%v", ErrNonFiniteSpectrum, i, v)
		}
	}
	if !finite(kyDim) {
		return fmt.Errorf("%w: %v", ErrNonFiniteDimension, kyDim)
	}
	if spectrum[0] >= b.MaxLeadingExponent {
		return fmt.Errorf("%w: %v >= %v", ErrDivergingExponent, spectrum[0], b.MaxLeadingExponent)
	}
	return nil
}

// CheckTrajectory validates every coordinate of a full trajectory.
func CheckTrajectory(traj []models.Point, b Bounds) error {
	for i, p := range traj {
		for axis, v := range p {
			if math.IsNaN(v) {
				return fmt.Errorf("%w: point %d axis %d", ErrNonFiniteTrajectory, i, axis)
			}
			if math.Abs(v) > b.MaxCoordinate {
				return fmt.Errorf("%w: point %d axis %d |%v| > %v", ErrCoordinateOutOfBounds, i, axis, v, b.MaxCoordinate)
			}
		}
	}
	return nil
}

// Metadata is a convenience wrapper over CheckMetadata.
func Metadata(m *models.Metadata, b Bounds) error {
	return CheckMetadata(m.Spectrum, m.KYDim, b)
}

// Record applies both tiers to a full record.
func Record(r *models.Record, b Bounds) error {
	if err := Metadata(&r.Metadata, b); err != nil {
		return err
	}
	return CheckTrajectory(r.Trajectory, b)
}
