// Package catalog is the read-mostly repository of canonical artisan
// records, keyed by stable code. It backs both automated candidate
// retrieval and the interactive lookup used by the correction workflow.
package catalog

import (
	"context"

	"github.com/touken-lab/meikan/internal/fault"
	"github.com/touken-lab/meikan/internal/model"
)

// Store is the catalog persistence interface. Get returns (nil, nil) for an
// unknown code; callers that need a typed not-found map it themselves.
type Store interface {
	Get(ctx context.Context, code string) (*model.ArtisanRecord, error)
	All(ctx context.Context) ([]model.ArtisanRecord, error)
	Search(ctx context.Context, query string, domain model.Domain, limit int) ([]model.ArtisanRecord, error)
	Upsert(ctx context.Context, records []model.ArtisanRecord) (int64, error)
	Count(ctx context.Context) (int, error)
	Migrate(ctx context.Context) error
	Close() error
}

// Unprovisioned is the Store used when no catalog backend is configured in
// this deployment. Every operation fails with a typed unavailable error, so
// the absence is one explicit capability decided at startup instead of an
// ambient boolean checked at call sites.
type Unprovisioned struct{}

var _ Store = Unprovisioned{}

func (Unprovisioned) err() error {
	return fault.Unavailable("catalog not configured")
}

func (u Unprovisioned) Get(context.Context, string) (*model.ArtisanRecord, error) {
	return nil, u.err()
}

func (u Unprovisioned) All(context.Context) ([]model.ArtisanRecord, error) {
	return nil, u.err()
}

func (u Unprovisioned) Search(context.Context, string, model.Domain, int) ([]model.ArtisanRecord, error) {
	return nil, u.err()
}

func (u Unprovisioned) Upsert(context.Context, []model.ArtisanRecord) (int64, error) {
	return 0, u.err()
}

func (u Unprovisioned) Count(context.Context) (int, error) { return 0, u.err() }

func (u Unprovisioned) Migrate(context.Context) error { return u.err() }

func (Unprovisioned) Close() error { return nil }
