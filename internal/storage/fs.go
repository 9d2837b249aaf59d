package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/starford/attractor-gallery/internal/apperr"
	"github.com/starford/attractor-gallery/internal/checksum"
	"github.com/starford/attractor-gallery/internal/codec"
	"github.com/starford/attractor-gallery/internal/models"
)

// FS implements Provider over a directory of JSON record files
// (<id>.json, optionally .zst or .lz4 compressed).
type FS struct {
	root   string // absolute path to the results directory
	logger *slog.Logger
}

// FSOption configures an FS provider.
type FSOption func(*FS)

// WithLogger sets the logger used to report skipped files.
func WithLogger(l *slog.Logger) FSOption {
	return func(f *FS) {
		f.logger = l
	}
}

// NewFS creates a new FS provider rooted at the given directory.
// The directory must already exist.
func NewFS(root string, opts ...FSOption) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	f := &FS{root: abs, logger: slog.Default()}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Root returns the absolute results directory.
func (f *FS) Root() string { return f.root }

// safePath resolves a relative path against the root and rejects
// any result that escapes it (directory traversal).
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(rel)
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: absolute paths not allowed: %s", rel)
	}
	joined := filepath.Join(f.root, cleaned)
	abs, err := filepath.Abs(joined)
	if err != nil {
		return "", fmt.Errorf("storage: resolve path: %w", err)
	}
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: path escapes root: %s", rel)
	}
	return abs, nil
}

// Locate converts an absolute path under root into a Locator.
func (f *FS) Locate(abs string) (models.Locator, bool) {
	rel, err := filepath.Rel(f.root, abs)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return models.Locator(filepath.ToSlash(rel)), true
}

// ListMetadata walks the root in lexical order and decodes the metadata of
// every record file. Only an unreadable root is fatal; entries that vanish,
// cannot be read or fail to decode are logged and skipped.
func (f *FS) ListMetadata(_ context.Context) ([]models.Metadata, error) {
	var out []models.Metadata
	err := filepath.WalkDir(f.root, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if p == f.root {
				return walkErr
			}
			f.logger.Warn("storage: skipping unreadable entry",
				slog.String("path", p),
				slog.String("error", walkErr.Error()))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !codec.IsRecordFile(d.Name()) {
			return nil
		}
		loc, _ := f.Locate(p)
		info, err := d.Info()
		if err != nil {
			// Removed between the directory read and the stat.
			f.logger.Warn("storage: skipping vanished record",
				slog.String("locator", string(loc)),
				slog.String("error", err.Error()))
			return nil
		}
		m, err := f.readMetadata(p)
		if err != nil {
			f.logger.Warn("storage: skipping undecodable record",
				slog.String("locator", string(loc)),
				slog.String("error", err.Error()))
			return nil
		}
		m.Locator = loc
		m.Fingerprint = checksum.Fingerprint(info)
		out = append(out, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w: %w", f.root, apperr.ErrStoreUnavailable, err)
	}
	return out, nil
}

func (f *FS) readMetadata(path string) (models.Metadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return models.Metadata{}, err
	}
	defer file.Close()

	r, err := codec.NewReader(codec.Detect(path), file)
	if err != nil {
		return models.Metadata{}, err
	}
	defer r.Close()
	return models.DecodeMetadata(r)
}

// LoadFull reads and decodes the complete record behind loc.
func (f *FS) LoadFull(_ context.Context, loc models.Locator) (*models.Record, error) {
	abs, err := f.safePath(string(loc))
	if err != nil {
		return nil, err
	}
	file, err := os.Open(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("storage: load %s: %w", loc, apperr.ErrNotFound)
		}
		return nil, fmt.Errorf("storage: load %s: %w", loc, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("storage: stat %s: %w", loc, err)
	}

	r, err := codec.NewReader(codec.Detect(abs), file)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	rec, err := models.DecodeRecord(r)
	if err != nil {
		return nil, fmt.Errorf("storage: load %s: %w: %w", loc, apperr.ErrInvalidRecord, err)
	}
	rec.Locator = loc
	rec.Fingerprint = checksum.Fingerprint(info)
	return rec, nil
}

// WriteRecord persists rec as <id>.json plus the compression suffix for kind
// and returns its locator.
func (f *FS) WriteRecord(rec *models.Record, kind codec.Kind) (models.Locator, error) {
	var buf bytes.Buffer
	w, err := codec.NewWriter(kind, &buf)
	if err != nil {
		return "", err
	}
	if err := json.NewEncoder(w).Encode(rec); err != nil {
		return "", fmt.Errorf("storage: encode %s: %w", rec.ID, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("storage: flush %s: %w", rec.ID, err)
	}
	name := rec.ID.Hex() + ".json" + kind.Extension()
	if err := f.Write(name, buf.Bytes()); err != nil {
		return "", err
	}
	return models.Locator(name), nil
}

// Write atomically writes content: tmp file → fsync → rename.
func (f *FS) Write(path string, content []byte) error {
	abs, err := f.safePath(path)
	if err != nil {
		return err
	}
	return WriteFileAtomic(abs, content)
}

// Delete removes a record file.
func (f *FS) Delete(loc models.Locator) error {
	abs, err := f.safePath(string(loc))
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil {
		return fmt.Errorf("storage: delete %s: %w", loc, err)
	}
	return nil
}

// WriteFileAtomic writes content to abs via a temp file in the same
// directory, so readers never observe a partial file.
func WriteFileAtomic(abs string, content []byte) error {
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".gallery-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}
