package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
)

// number is a float64 whose JSON form maps null to NaN and back.
// The upstream simulator serialises non-finite values as null.
type number float64

func (n number) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(f)
}

func (n *number) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*n = number(math.NaN())
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*n = number(f)
	return nil
}

// Decode errors for full records. Stores wrap them with apperr.ErrInvalidRecord.
var (
	ErrMissingTrajectory = errors.New("models: trajectory missing")
	ErrMalformedPoint    = errors.New("models: trajectory point must have 3 coordinates")
)

// wirePoint is decoded as a slice so a short or long point is detectable;
// a Go array would silently zero-fill or truncate.
type wirePoint []number

// wireRecord is the persisted metadata layout. KYDim is nil when the field
// is absent or null.
type wireRecord struct {
	ID       ID       `json:"id"`
	Coeffs   []number `json:"coeffs,omitempty"`
	Spectrum []number `json:"spectrum"`
	KYDim    *number  `json:"ky_dim"`
	Method   string   `json:"method"`
}

type wireFull struct {
	wireRecord
	// Trajectory is nil when the field is absent or null.
	Trajectory *[]wirePoint `json:"trajectory"`
}

func toNumbers(in []float64) []number {
	if in == nil {
		return nil
	}
	out := make([]number, len(in))
	for i, v := range in {
		out[i] = number(v)
	}
	return out
}

func fromNumbers(in []number) []float64 {
	if in == nil {
		return nil
	}
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}

func (m *Metadata) toWire() wireRecord {
	return wireRecord{
		ID:       m.ID,
		Coeffs:   toNumbers(m.Coeffs),
		Spectrum: toNumbers(m.Spectrum),
		KYDim:    numberPtr(m.KYDim),
		Method:   m.Method,
	}
}

func numberPtr(f float64) *number {
	n := number(f)
	return &n
}

func (w *wireRecord) metadata() Metadata {
	return Metadata{
		ID:       w.ID,
		Coeffs:   fromNumbers(w.Coeffs),
		Spectrum: fromNumbers(w.Spectrum),
		KYDim:    w.kyDim(),
		Method:   w.Method,
	}
}

// kyDim maps a missing dimension to NaN so validity checks reject it.
func (w *wireRecord) kyDim() float64 {
	if w.KYDim == nil {
		return math.NaN()
	}
	return float64(*w.KYDim)
}

// MarshalJSON encodes the metadata in the persisted record layout.
func (m Metadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.toWire())
}

// UnmarshalJSON decodes the persisted layout, ignoring any trajectory.
func (m *Metadata) UnmarshalJSON(b []byte) error {
	var w wireRecord
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	loc, fp := m.Locator, m.Fingerprint
	*m = w.metadata()
	m.Locator, m.Fingerprint = loc, fp
	return nil
}

// MarshalJSON encodes the full record in the persisted layout.
func (r Record) MarshalJSON() ([]byte, error) {
	traj := make([]wirePoint, len(r.Trajectory))
	for i, p := range r.Trajectory {
		traj[i] = wirePoint{number(p[0]), number(p[1]), number(p[2])}
	}
	return json.Marshal(wireFull{wireRecord: r.Metadata.toWire(), Trajectory: &traj})
}

// UnmarshalJSON decodes a full record. The trajectory must be present and
// every point must have exactly three coordinates.
func (r *Record) UnmarshalJSON(b []byte) error {
	var w wireFull
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if w.Trajectory == nil {
		return ErrMissingTrajectory
	}
	traj := make([]Point, len(*w.Trajectory))
	for i, p := range *w.Trajectory {
		if len(p) != 3 {
			return fmt.Errorf("%w: point %d has %d", ErrMalformedPoint, i, len(p))
		}
		traj[i] = Point{float64(p[0]), float64(p[1]), float64(p[2])}
	}
	loc, fp := r.Locator, r.Fingerprint
	r.Metadata = w.metadata()
	r.Locator, r.Fingerprint = loc, fp
	r.Trajectory = traj
	return nil
}

// DecodeRecord reads one full record from r.
func DecodeRecord(r io.Reader) (*Record, error) {
	var rec Record
	if err := json.NewDecoder(r).Decode(&rec); err != nil {
		return nil, fmt.Errorf("models: decode record: %w", err)
	}
	return &rec, nil
}

// DecodeMetadata reads the metadata fields of one record from r. The
// trajectory value is consumed token by token and never materialised, so
// memory stays bounded by the metadata size regardless of trajectory length.
func DecodeMetadata(r io.Reader) (Metadata, error) {
	dec := json.NewDecoder(r)
	var w wireRecord

	tok, err := dec.Token()
	if err != nil {
		return Metadata{}, fmt.Errorf("models: decode metadata: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return Metadata{}, errors.New("models: decode metadata: expected object")
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return Metadata{}, fmt.Errorf("models: decode metadata: %w", err)
		}
		key, _ := tok.(string)

		var target any
		switch key {
		case "id":
			target = &w.ID
		case "coeffs":
			target = &w.Coeffs
		case "spectrum":
			target = &w.Spectrum
		case "ky_dim":
			target = &w.KYDim
		case "method":
			target = &w.Method
		}

		if target == nil {
			if err := skipValue(dec); err != nil {
				return Metadata{}, fmt.Errorf("models: skip %q: %w", key, err)
			}
			continue
		}
		if err := dec.Decode(target); err != nil {
			return Metadata{}, fmt.Errorf("models: decode %q: %w", key, err)
		}
	}
	return w.metadata(), nil
}

// skipValue consumes the next JSON value from dec without keeping it.
func skipValue(dec *json.Decoder) error {
	depth := 0
	for {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if d, ok := tok.(json.Delim); ok {
			switch d {
			case '[', '{':
				depth++
			case ']', '}':
				depth--
			}
		}
		if depth == 0 {
			return nil
		}
	}
}
