// Package objstore provides a storage.Provider backed by MinIO or any
// S3-compatible object store.
package objstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/time/rate"

	"github.com/starford/attractor-gallery/internal/apperr"
	"github.com/starford/attractor-gallery/internal/codec"
	"github.com/starford/attractor-gallery/internal/models"
	"github.com/starford/attractor-gallery/internal/storage"
)

// Store reads records from objects under a bucket prefix.
type Store struct {
	client  *minio.Client
	bucket  string
	prefix  string
	limiter *rate.Limiter
	logger  *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for skipped objects.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithRequestLimit caps object requests per second. Zero or negative
// disables limiting.
func WithRequestLimit(perSecond float64) Option {
	return func(s *Store) {
		if perSecond > 0 {
			burst := int(perSecond)
			if burst < 1 {
				burst = 1
			}
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

var _ storage.Provider = (*Store)(nil)

// Dial creates a MinIO client with static credentials.
func Dial(endpoint, accessKey, secretKey string, useSSL bool) (*minio.Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("objstore: client: %w", err)
	}
	return client, nil
}

// NewStore creates a Store over bucket. prefix is prepended to every key.
func NewStore(client *minio.Client, bucket, prefix string, opts ...Option) *Store {
	s := &Store{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) key(loc models.Locator) string {
	return path.Join(s.prefix, string(loc))
}

func (s *Store) locate(key string) models.Locator {
	rel := strings.TrimPrefix(key, s.prefix)
	return models.Locator(strings.TrimPrefix(rel, "/"))
}

func (s *Store) wait(ctx context.Context) error {
	if s.limiter == nil {
		return nil
	}
	return s.limiter.Wait(ctx)
}

// ListMetadata lists record objects under the prefix and decodes the
// metadata of each, skipping the trajectory while streaming. Objects that
// fail to decode are logged and skipped.
func (s *Store) ListMetadata(ctx context.Context) ([]models.Metadata, error) {
	listPrefix := s.prefix
	if listPrefix != "" {
		listPrefix += "/"
	}

	var out []models.Metadata
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    listPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("objstore: list %s/%s: %w: %w", s.bucket, listPrefix, apperr.ErrStoreUnavailable, obj.Err)
		}
		if !codec.IsRecordFile(path.Base(obj.Key)) {
			continue
		}
		loc := s.locate(obj.Key)
		m, err := s.readMetadata(ctx, obj.Key)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("objstore: list: %w: %w", apperr.ErrStoreUnavailable, ctx.Err())
			}
			s.logger.Warn("objstore: skipping undecodable record",
				slog.String("locator", string(loc)),
				slog.String("error", err.Error()))
			continue
		}
		m.Locator = loc
		m.Fingerprint = obj.ETag
		out = append(out, m)
	}
	return out, nil
}

func (s *Store) readMetadata(ctx context.Context, key string) (models.Metadata, error) {
	if err := s.wait(ctx); err != nil {
		return models.Metadata{}, err
	}
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return models.Metadata{}, err
	}
	defer obj.Close()

	r, err := codec.NewReader(codec.Detect(key), obj)
	if err != nil {
		return models.Metadata{}, err
	}
	defer r.Close()
	return models.DecodeMetadata(r)
}

// LoadFull fetches and decodes the complete record behind loc.
func (s *Store) LoadFull(ctx context.Context, loc models.Locator) (*models.Record, error) {
	if err := s.wait(ctx); err != nil {
		return nil, err
	}
	key := s.key(loc)
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, s.wrapErr(loc, err)
	}
	defer obj.Close()

	// GetObject is lazy; Stat surfaces a missing key before decoding.
	info, err := obj.Stat()
	if err != nil {
		return nil, s.wrapErr(loc, err)
	}

	r, err := codec.NewReader(codec.Detect(key), obj)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	rec, err := models.DecodeRecord(r)
	if err != nil {
		return nil, fmt.Errorf("objstore: load %s: %w: %w", loc, apperr.ErrInvalidRecord, err)
	}
	rec.Locator = loc
	rec.Fingerprint = info.ETag
	return rec, nil
}

// PutRecord uploads rec as <id>.json plus the suffix for kind.
func (s *Store) PutRecord(ctx context.Context, rec *models.Record, kind codec.Kind) (models.Locator, error) {
	var buf bytes.Buffer
	w, err := codec.NewWriter(kind, &buf)
	if err != nil {
		return "", err
	}
	if err := json.NewEncoder(w).Encode(rec); err != nil {
		return "", fmt.Errorf("objstore: encode %s: %w", rec.ID, err)
	}
	if err := w.Close(); err != nil {
		return "", err
	}

	loc := models.Locator(rec.ID.Hex() + ".json" + kind.Extension())
	if err := s.wait(ctx); err != nil {
		return "", err
	}
	_, err = s.client.PutObject(ctx, s.bucket, s.key(loc), bytes.NewReader(buf.Bytes()), int64(buf.Len()), minio.PutObjectOptions{})
	if err != nil {
		return "", fmt.Errorf("objstore: put %s: %w", loc, err)
	}
	return loc, nil
}

// Delete removes the object behind loc. Missing objects are not an error.
func (s *Store) Delete(ctx context.Context, loc models.Locator) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.key(loc), minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("objstore: delete %s: %w", loc, err)
	}
	return nil
}

func (s *Store) wrapErr(loc models.Locator, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("objstore: load %s: %w", loc, apperr.ErrNotFound)
	}
	return fmt.Errorf("objstore: load %s: %w", loc, err)
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	code := minio.ToErrorResponse(err).Code
	return code == "NoSuchKey" || code == "NotFound"
}
