package validity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/starford/attractor-gallery/internal/models"
)

func TestCheckMetadata(t *testing.T) {
	b := DefaultBounds()
	nan := math.NaN()

	tests := []struct {
		name     string
		spectrum []float64
		kyDim    float64
		want     error
	}{
		{"valid", []float64{0.9, 0, -14}, 2.06, nil},
		{"empty spectrum", nil, 2, ErrEmptySpectrum},
		{"nan leading", []float64{nan, 0, -1}, 2, ErrNonFiniteSpectrum},
		{"nan trailing", []float64{0.5, 0, nan}, 2, ErrNonFiniteSpectrum},
		{"inf in spectrum", []float64{0.5, math.Inf(-1)}, 2, ErrNonFiniteSpectrum},
		{"nan dimension", []float64{0.5}, nan, ErrNonFiniteDimension},
		{"diverging", []float64{150}, 2, ErrDivergingExponent},
		{"at bound", []float64{100}, 2, ErrDivergingExponent},
		{"just below bound", []float64{99.999}, 2, nil},
		{"negative leading", []float64{-3}, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckMetadata(tt.spectrum, tt.kyDim, b)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCheckMetadata_CustomBound(t *testing.T) {
	b := Bounds{MaxLeadingExponent: 5, MaxCoordinate: 1}
	assert.ErrorIs(t, CheckMetadata([]float64{5}, 1, b), ErrDivergingExponent)
	assert.NoError(t, CheckMetadata([]float64{4.9}, 1, b))
}

func TestCheckTrajectory(t *testing.T) {
	b := DefaultBounds()

	assert.NoError(t, CheckTrajectory(nil, b))
	assert.NoError(t, CheckTrajectory([]models.Point{{1, 2, 3}, {-1e6, 1e6, 0}}, b), "bound is inclusive")
	assert.ErrorIs(t, CheckTrajectory([]models.Point{{1, 2, 3}, {0, math.NaN(), 0}}, b), ErrNonFiniteTrajectory)
	assert.ErrorIs(t, CheckTrajectory([]models.Point{{0, 0, 1e6 + 1}}, b), ErrCoordinateOutOfBounds)
	assert.ErrorIs(t, CheckTrajectory([]models.Point{{math.Inf(-1), 0, 0}}, b), ErrCoordinateOutOfBounds)
}

func TestRecord(t *testing.T) {
	b := DefaultBounds()
	rec := &models.Record{
		Metadata:   models.Metadata{ID: 1, Spectrum: []float64{0.3}, KYDim: 2.1},
		Trajectory: []models.Point{{0, 0, 0}},
	}
	assert.NoError(t, Record(rec, b))

	rec.Trajectory = append(rec.Trajectory, models.Point{2e6, 0, 0})
	assert.ErrorIs(t, Record(rec, b), ErrCoordinateOutOfBounds)

	rec.Spectrum = []float64{math.NaN()}
	assert.ErrorIs(t, Record(rec, b), ErrNonFiniteSpectrum)
}
