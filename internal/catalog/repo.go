package catalog

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/starford/attractor-gallery/internal/apperr"
	"github.com/starford/attractor-gallery/internal/codec"
	"github.com/starford/attractor-gallery/internal/models"
)

// UpsertRecord inserts or replaces a record and its trajectory within a
// transaction. source is the upstream locator the record was imported from.
func (db *DB) UpsertRecord(ctx context.Context, rec *models.Record, source string) error {
	spectrum, err := encodeFloats(rec.Spectrum)
	if err != nil {
		return fmt.Errorf("catalog: encode spectrum: %w", err)
	}
	coeffs, err := encodeFloats(rec.Coeffs)
	if err != nil {
		return fmt.Errorf("catalog: encode coeffs: %w", err)
	}
	traj, err := encodeTrajectory(rec.Trajectory)
	if err != nil {
		return fmt.Errorf("catalog: encode trajectory: %w", err)
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	id := rec.ID.Hex()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (id, method, spectrum, ky_dim, coeffs, source, fingerprint, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			method      = excluded.method,
			spectrum    = excluded.spectrum,
			ky_dim      = excluded.ky_dim,
			coeffs      = excluded.coeffs,
			source      = excluded.source,
			fingerprint = excluded.fingerprint,
			updated_at  = excluded.updated_at
	`, id, rec.Method, spectrum, nullFloat(rec.KYDim), coeffs, source, rec.Fingerprint)
	if err != nil {
		return fmt.Errorf("catalog: upsert record: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO trajectories (id, points, data) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET points = excluded.points, data = excluded.data
	`, id, len(rec.Trajectory), traj)
	if err != nil {
		return fmt.Errorf("catalog: upsert trajectory: %w", err)
	}

	return tx.Commit()
}

// DeleteRecord removes a record and its trajectory.
func (db *DB) DeleteRecord(ctx context.Context, id models.ID) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("catalog: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM trajectories WHERE id = ?`, id.Hex()); err != nil {
		return fmt.Errorf("catalog: delete trajectory: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id.Hex()); err != nil {
		return fmt.Errorf("catalog: delete record: %w", err)
	}

	return tx.Commit()
}

// DeleteBySource removes the record imported from source and reports its id.
func (db *DB) DeleteBySource(ctx context.Context, source string) (models.ID, bool, error) {
	var hex string
	err := db.conn.QueryRowContext(ctx, `SELECT id FROM records WHERE source = ?`, source).Scan(&hex)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("catalog: lookup source: %w", err)
	}
	id, err := models.ParseID(hex)
	if err != nil {
		return 0, false, err
	}
	return id, true, db.DeleteRecord(ctx, id)
}

// AllFingerprints returns source → fingerprint for every record.
func (db *DB) AllFingerprints(ctx context.Context) (map[string]string, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT source, fingerprint FROM records`)
	if err != nil {
		return nil, fmt.Errorf("catalog: all fingerprints: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var src, fp string
		if err := rows.Scan(&src, &fp); err != nil {
			return nil, err
		}
		out[src] = fp
	}
	return out, rows.Err()
}

// ListMetadata enumerates records by id without touching the trajectory table.
func (db *DB) ListMetadata(ctx context.Context) ([]models.Metadata, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, method, spectrum, ky_dim, coeffs, fingerprint
		FROM records
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("catalog: list: %w: %w", apperr.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var out []models.Metadata
	for rows.Next() {
		m, err := scanMetadata(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: list: %w: %w", apperr.ErrStoreUnavailable, err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: list: %w: %w", apperr.ErrStoreUnavailable, err)
	}
	return out, nil
}

// LoadFull returns the record and its trajectory. The locator is the hex id.
func (db *DB) LoadFull(ctx context.Context, loc models.Locator) (*models.Record, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT r.id, r.method, r.spectrum, r.ky_dim, r.coeffs, r.fingerprint, t.data
		FROM records r JOIN trajectories t ON t.id = r.id
		WHERE r.id = ?
	`, string(loc))

	var (
		hex, method, spectrum, coeffs, fp string
		kyDim                             sql.NullFloat64
		data                              []byte
	)
	err := row.Scan(&hex, &method, &spectrum, &kyDim, &coeffs, &fp, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("catalog: load %s: %w", loc, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: load %s: %w", loc, err)
	}
	m, err := buildMetadata(hex, method, spectrum, kyDim, coeffs, fp)
	if err != nil {
		return nil, fmt.Errorf("catalog: load %s: %w: %w", loc, apperr.ErrInvalidRecord, err)
	}
	traj, err := decodeTrajectory(data)
	if err != nil {
		return nil, fmt.Errorf("catalog: load %s: %w: %w", loc, apperr.ErrInvalidRecord, err)
	}
	return &models.Record{Metadata: m, Trajectory: traj}, nil
}

func scanMetadata(rows *sql.Rows) (models.Metadata, error) {
	var (
		hex, method, spectrum, coeffs, fp string
		kyDim                             sql.NullFloat64
	)
	if err := rows.Scan(&hex, &method, &spectrum, &kyDim, &coeffs, &fp); err != nil {
		return models.Metadata{}, err
	}
	return buildMetadata(hex, method, spectrum, kyDim, coeffs, fp)
}

func buildMetadata(hex, method, spectrum string, kyDim sql.NullFloat64, coeffs, fp string) (models.Metadata, error) {
	id, err := models.ParseID(hex)
	if err != nil {
		return models.Metadata{}, err
	}
	spec, err := decodeFloats(spectrum)
	if err != nil {
		return models.Metadata{}, err
	}
	co, err := decodeFloats(coeffs)
	if err != nil {
		return models.Metadata{}, err
	}
	dim := math.NaN()
	if kyDim.Valid {
		dim = kyDim.Float64
	}
	return models.Metadata{
		ID:          id,
		Coeffs:      co,
		Spectrum:    spec,
		KYDim:       dim,
		Method:      method,
		Locator:     models.Locator(hex),
		Fingerprint: fp,
	}, nil
}

func nullFloat(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

// encodeFloats stores non-finite values as JSON null.
func encodeFloats(vs []float64) (string, error) {
	out := make([]*float64, len(vs))
	for i := range vs {
		if !math.IsNaN(vs[i]) && !math.IsInf(vs[i], 0) {
			out[i] = &vs[i]
		}
	}
	b, err := json.Marshal(out)
	return string(b), err
}

func decodeFloats(s string) ([]float64, error) {
	var in []*float64
	if err := json.Unmarshal([]byte(s), &in); err != nil {
		return nil, err
	}
	if len(in) == 0 {
		return nil, nil
	}
	out := make([]float64, len(in))
	for i, v := range in {
		if v == nil {
			out[i] = math.NaN()
		} else {
			out[i] = *v
		}
	}
	return out, nil
}

// encodeTrajectory packs points as little-endian float64 triples and
// compresses them with zstd. Non-finite values survive unchanged.
func encodeTrajectory(traj []models.Point) ([]byte, error) {
	var buf bytes.Buffer
	w, err := codec.NewWriter(codec.Zstd, &buf)
	if err != nil {
		return nil, err
	}
	if err := binary.Write(w, binary.LittleEndian, traj); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeTrajectory(data []byte) ([]models.Point, error) {
	r, err := codec.NewReader(codec.Zstd, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	const pointSize = 3 * 8
	if len(raw)%pointSize != 0 {
		return nil, fmt.Errorf("trajectory blob has %d bytes, not a multiple of %d", len(raw), pointSize)
	}
	traj := make([]models.Point, len(raw)/pointSize)
	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, traj); err != nil {
		return nil, err
	}
	return traj, nil
}
