// Package apperr holds the sentinel errors shared across the curation pipeline.
package apperr

import "errors"

var (
	// ErrNotFound means a locator no longer resolves. Callers skip the record.
	ErrNotFound = errors.New("not found")
	// ErrStoreUnavailable means the store could not be enumerated at all.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidRecord means a persisted record could not be decoded.
	ErrInvalidRecord = errors.New("invalid record")
	// ErrNoSelection means no curation run has completed yet.
	ErrNoSelection = errors.New("no selection yet")
	// ErrInvalidInput is returned for malformed caller input.
	ErrInvalidInput = errors.New("invalid input")
)
