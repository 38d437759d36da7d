package catalog

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/touken-lab/meikan/internal/fault"
	"github.com/touken-lab/meikan/internal/model"
)

// Search limits. Queries under MinQueryLen are rejected outright rather than
// silently returning nothing: a one-character pattern would scan the whole
// catalog.
const (
	MinQueryLen  = 2
	DefaultLimit = 20
	MaxLimit     = 50
)

// Lookup is the interactive fuzzy search over the catalog used by the
// correction workflow. Ranking favors well-documented artisans (notability
// rank), a deliberate UX choice distinct from the retriever's pure
// relevance ordering.
type Lookup struct {
	store Store
}

// NewLookup creates a Lookup over the given catalog store.
func NewLookup(store Store) *Lookup {
	if store == nil {
		store = Unprovisioned{}
	}
	return &Lookup{store: store}
}

// Search validates and executes a catalog query. domainFilter accepts the
// UI spellings ("smith", "tosogu", "all"); limit is clamped to [1, MaxLimit]
// with DefaultLimit for zero.
func (l *Lookup) Search(ctx context.Context, query, domainFilter string, limit int) ([]model.ArtisanRecord, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinQueryLen {
		return nil, fault.InvalidInput("search query must be at least %d characters", MinQueryLen)
	}

	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	domain := model.ParseDomainFilter(domainFilter)

	records, err := l.store.Search(ctx, query, domain, limit)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("catalog search",
		zap.String("query", query),
		zap.String("domain", string(domain)),
		zap.Int("results", len(records)),
	)
	return records, nil
}
