// Package storage defines the record store abstraction used by the curator.
package storage

import (
	"context"

	"github.com/starford/attractor-gallery/internal/models"
)

// Provider gives two-phase access to persisted attractor records.
type Provider interface {
	// ListMetadata enumerates every record without reading trajectories.
	// An error means the store itself could not be enumerated.
	ListMetadata(ctx context.Context) ([]models.Metadata, error)
	// LoadFull returns the full record for a locator obtained from
	// ListMetadata. It returns apperr.ErrNotFound if the record is gone.
	LoadFull(ctx context.Context, loc models.Locator) (*models.Record, error)
}
