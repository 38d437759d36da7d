// Package resolution persists per-listing artisan resolutions and
// implements the correction workflow: automated writes at ingestion time,
// human verification and reassignment afterwards, with provenance rules
// keeping the two from clobbering each other.
package resolution

import (
	"context"

	"github.com/touken-lab/meikan/internal/model"
)

// Store is the resolution persistence interface. GetResolution and
// GetListing return (nil, nil) for absent rows.
//
// SaveResolution is a whole-row upsert; the provenance rules that decide
// whether a write is allowed live in Service, which reads before writing.
// Concurrent corrections on the same listing are last-write-wins at the row
// level.
type Store interface {
	GetResolution(ctx context.Context, listingID int64) (*model.Resolution, error)
	SaveResolution(ctx context.Context, res *model.Resolution) error

	EnsureListing(ctx context.Context, l model.Listing) error
	GetListing(ctx context.Context, id int64) (*model.Listing, error)
	ListingExists(ctx context.Context, id int64) (bool, error)
	ListUnresolved(ctx context.Context, limit int) ([]model.Listing, error)

	AppendAudit(ctx context.Context, ev model.AuditEvent) error
	ListAudit(ctx context.Context, listingID int64, limit int) ([]model.AuditEvent, error)

	Migrate(ctx context.Context) error
	Close() error
}
