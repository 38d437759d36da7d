package resolution

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/touken-lab/meikan/internal/db"
	"github.com/touken-lab/meikan/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "resolution: postgres parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "resolution: postgres create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "resolution: postgres ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS listings (
	id          BIGINT PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	domain      TEXT NOT NULL DEFAULT 'any',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS resolutions (
	listing_id   BIGINT PRIMARY KEY REFERENCES listings(id),
	artisan_code TEXT,
	confidence   TEXT NOT NULL DEFAULT 'NONE',
	method       TEXT NOT NULL DEFAULT '',
	candidates   JSONB NOT NULL DEFAULT '[]',
	verified     TEXT,
	verified_by  TEXT NOT NULL DEFAULT '',
	verified_at  TIMESTAMPTZ,
	hidden       BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at   TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_events (
	id            TEXT PRIMARY KEY,
	listing_id    BIGINT NOT NULL,
	actor         TEXT NOT NULL,
	action        TEXT NOT NULL,
	from_code     TEXT,
	to_code       TEXT,
	from_verified TEXT,
	to_verified   TEXT,
	created_at    TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_events_listing ON audit_events(listing_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "resolution: postgres migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) GetResolution(ctx context.Context, listingID int64) (*model.Resolution, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+resolutionColumns+` FROM resolutions WHERE listing_id = $1`,
		listingID,
	)
	res, err := scanPgResolution(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "resolution: postgres get %d", listingID)
	}
	return res, nil
}

func (s *PostgresStore) SaveResolution(ctx context.Context, res *model.Resolution) error {
	candidatesJSON, err := json.Marshal(res.Candidates)
	if err != nil {
		return eris.Wrap(err, "resolution: marshal candidates")
	}
	if res.Candidates == nil {
		candidatesJSON = []byte("[]")
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO resolutions (listing_id, artisan_code, confidence, method, candidates, verified, verified_by, verified_at, hidden, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (listing_id) DO UPDATE SET
			artisan_code = EXCLUDED.artisan_code,
			confidence   = EXCLUDED.confidence,
			method       = EXCLUDED.method,
			candidates   = EXCLUDED.candidates,
			verified     = EXCLUDED.verified,
			verified_by  = EXCLUDED.verified_by,
			verified_at  = EXCLUDED.verified_at,
			hidden       = EXCLUDED.hidden,
			updated_at   = EXCLUDED.updated_at`,
		res.ListingID, res.ArtisanCode, string(res.Confidence), res.Method,
		string(candidatesJSON), verifiedArg(res.Verified), res.VerifiedBy,
		res.VerifiedAt, res.Hidden, res.UpdatedAt,
	)
	return eris.Wrapf(err, "resolution: postgres save %d", res.ListingID)
}

func (s *PostgresStore) EnsureListing(ctx context.Context, l model.Listing) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO listings (id, title, description, domain)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			title       = EXCLUDED.title,
			description = EXCLUDED.description,
			domain      = EXCLUDED.domain`,
		l.ID, l.Title, l.Description, string(l.Domain),
	)
	return eris.Wrapf(err, "resolution: postgres ensure listing %d", l.ID)
}

func (s *PostgresStore) GetListing(ctx context.Context, id int64) (*model.Listing, error) {
	var l model.Listing
	var domain string
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, description, domain FROM listings WHERE id = $1`, id,
	).Scan(&l.ID, &l.Title, &l.Description, &domain)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "resolution: postgres get listing %d", id)
	}
	l.Domain = model.Domain(domain)
	return &l, nil
}

func (s *PostgresStore) ListingExists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM listings WHERE id = $1`, id,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "resolution: postgres listing exists %d", id)
	}
	return true, nil
}

func (s *PostgresStore) ListUnresolved(ctx context.Context, limit int) ([]model.Listing, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT l.id, l.title, l.description, l.domain
		FROM listings l
		LEFT JOIN resolutions r ON r.listing_id = l.id
		WHERE r.listing_id IS NULL
		ORDER BY l.id
		LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "resolution: postgres list unresolved")
	}
	defer rows.Close()

	var listings []model.Listing
	for rows.Next() {
		var l model.Listing
		var domain string
		if err := rows.Scan(&l.ID, &l.Title, &l.Description, &domain); err != nil {
			return nil, eris.Wrap(err, "resolution: postgres scan listing")
		}
		l.Domain = model.Domain(domain)
		listings = append(listings, l)
	}
	return listings, eris.Wrap(rows.Err(), "resolution: postgres unresolved iterate")
}

func (s *PostgresStore) AppendAudit(ctx context.Context, ev model.AuditEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_events (id, listing_id, actor, action, from_code, to_code, from_verified, to_verified, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		ev.ID, ev.ListingID, ev.Actor, string(ev.Action),
		ev.FromCode, ev.ToCode, verifiedArg(ev.FromVerified), verifiedArg(ev.ToVerified),
		ev.CreatedAt,
	)
	return eris.Wrapf(err, "resolution: postgres append audit for %d", ev.ListingID)
}

func (s *PostgresStore) ListAudit(ctx context.Context, listingID int64, limit int) ([]model.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, listing_id, actor, action, from_code, to_code, from_verified, to_verified, created_at
		FROM audit_events
		WHERE listing_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2`, listingID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "resolution: postgres list audit")
	}
	defer rows.Close()

	var events []model.AuditEvent
	for rows.Next() {
		var ev model.AuditEvent
		var action string
		var fromV, toV *string
		if err := rows.Scan(&ev.ID, &ev.ListingID, &ev.Actor, &action,
			&ev.FromCode, &ev.ToCode, &fromV, &toV, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "resolution: postgres scan audit row")
		}
		ev.Action = model.AuditAction(action)
		if fromV != nil {
			v := model.VerifiedStatus(*fromV)
			ev.FromVerified = &v
		}
		if toV != nil {
			v := model.VerifiedStatus(*toV)
			ev.ToVerified = &v
		}
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "resolution: postgres audit iterate")
}

// scanPgResolution scans a pgx row; candidates arrive as JSONB text.
func scanPgResolution(row pgx.Row) (*model.Resolution, error) {
	var res model.Resolution
	var code *string
	var verified *string
	var verifiedAt *time.Time
	var candidatesJSON []byte

	err := row.Scan(
		&res.ListingID, &code, &res.Confidence, &res.Method,
		&candidatesJSON, &verified, &res.VerifiedBy, &verifiedAt,
		&res.Hidden, &res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	res.ArtisanCode = code
	if verified != nil {
		v := model.VerifiedStatus(*verified)
		res.Verified = &v
	}
	res.VerifiedAt = verifiedAt
	if err := json.Unmarshal(candidatesJSON, &res.Candidates); err != nil {
		return nil, eris.Wrap(err, "resolution: unmarshal candidates")
	}
	return &res, nil
}
