// Package models defines the attractor record types shared by the curation pipeline.
package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ID identifies an attractor record. It is assigned once upstream and never reused.
type ID uint64

// Hex returns the fixed-width (16 digit) lowercase hex form used for display
// and artifact names.
func (id ID) Hex() string {
	return fmt.Sprintf("%016x", uint64(id))
}

func (id ID) String() string { return id.Hex() }

// ParseID parses a hex identifier, with or without a 0x prefix.
func ParseID(s string) (ID, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("models: parse id %q: %w", s, err)
	}
	return ID(v), nil
}

// Point is a single 3-D trajectory sample.
type Point [3]float64

// Locator is an opaque, backend-specific reference to a persisted record.
type Locator string

// Metadata is the lightweight projection of a record without its trajectory.
type Metadata struct {
	ID       ID
	Coeffs   []float64
	Spectrum []float64
	KYDim    float64
	Method   string

	// Locator is set by the store that enumerated the record.
	Locator Locator
	// Fingerprint changes whenever the persisted record changes.
	Fingerprint string
}

// LeadingExponent returns spectrum[0], or NaN for an empty spectrum.
func (m *Metadata) LeadingExponent() float64 {
	if len(m.Spectrum) == 0 {
		return math.NaN()
	}
	return m.Spectrum[0]
}

// Record is the full view of an attractor, including its trajectory.
type Record struct {
	Metadata
	Trajectory []Point
}
