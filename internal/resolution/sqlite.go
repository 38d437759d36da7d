package resolution

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/touken-lab/meikan/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite resolution store at the given path and
// configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "resolution: sqlite open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "resolution: sqlite exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS listings (
	id          INTEGER PRIMARY KEY,
	title       TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	domain      TEXT NOT NULL DEFAULT 'any',
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS resolutions (
	listing_id   INTEGER PRIMARY KEY REFERENCES listings(id),
	artisan_code TEXT,
	confidence   TEXT NOT NULL DEFAULT 'NONE',
	method       TEXT NOT NULL DEFAULT '',
	candidates   TEXT NOT NULL DEFAULT '[]',
	verified     TEXT,
	verified_by  TEXT NOT NULL DEFAULT '',
	verified_at  DATETIME,
	hidden       INTEGER NOT NULL DEFAULT 0,
	updated_at   DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_events (
	id            TEXT PRIMARY KEY,
	listing_id    INTEGER NOT NULL,
	actor         TEXT NOT NULL,
	action        TEXT NOT NULL,
	from_code     TEXT,
	to_code       TEXT,
	from_verified TEXT,
	to_verified   TEXT,
	created_at    DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_events_listing ON audit_events(listing_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "resolution: sqlite migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const resolutionColumns = `listing_id, artisan_code, confidence, method, candidates, verified, verified_by, verified_at, hidden, updated_at`

func (s *SQLiteStore) GetResolution(ctx context.Context, listingID int64) (*model.Resolution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+resolutionColumns+` FROM resolutions WHERE listing_id = ?`,
		listingID,
	)
	res, err := scanResolution(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "resolution: sqlite get %d", listingID)
	}
	return res, nil
}

func (s *SQLiteStore) SaveResolution(ctx context.Context, res *model.Resolution) error {
	candidatesJSON, err := json.Marshal(res.Candidates)
	if err != nil {
		return eris.Wrap(err, "resolution: marshal candidates")
	}
	if res.Candidates == nil {
		candidatesJSON = []byte("[]")
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO resolutions (listing_id, artisan_code, confidence, method, candidates, verified, verified_by, verified_at, hidden, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(listing_id) DO UPDATE SET
			artisan_code = excluded.artisan_code,
			confidence   = excluded.confidence,
			method       = excluded.method,
			candidates   = excluded.candidates,
			verified     = excluded.verified,
			verified_by  = excluded.verified_by,
			verified_at  = excluded.verified_at,
			hidden       = excluded.hidden,
			updated_at   = excluded.updated_at`,
		res.ListingID, res.ArtisanCode, string(res.Confidence), res.Method,
		string(candidatesJSON), verifiedArg(res.Verified), res.VerifiedBy,
		res.VerifiedAt, res.Hidden, res.UpdatedAt,
	)
	return eris.Wrapf(err, "resolution: sqlite save %d", res.ListingID)
}

func (s *SQLiteStore) EnsureListing(ctx context.Context, l model.Listing) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO listings (id, title, description, domain)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title       = excluded.title,
			description = excluded.description,
			domain      = excluded.domain`,
		l.ID, l.Title, l.Description, string(l.Domain),
	)
	return eris.Wrapf(err, "resolution: sqlite ensure listing %d", l.ID)
}

func (s *SQLiteStore) GetListing(ctx context.Context, id int64) (*model.Listing, error) {
	var l model.Listing
	var domain string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, description, domain FROM listings WHERE id = ?`, id,
	).Scan(&l.ID, &l.Title, &l.Description, &domain)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "resolution: sqlite get listing %d", id)
	}
	l.Domain = model.Domain(domain)
	return &l, nil
}

func (s *SQLiteStore) ListingExists(ctx context.Context, id int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM listings WHERE id = ?`, id,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, eris.Wrapf(err, "resolution: sqlite listing exists %d", id)
	}
	return true, nil
}

// ListUnresolved returns listings with no resolution row yet, oldest first.
func (s *SQLiteStore) ListUnresolved(ctx context.Context, limit int) ([]model.Listing, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT l.id, l.title, l.description, l.domain
		FROM listings l
		LEFT JOIN resolutions r ON r.listing_id = l.id
		WHERE r.listing_id IS NULL
		ORDER BY l.id
		LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "resolution: sqlite list unresolved")
	}
	defer rows.Close()

	var listings []model.Listing
	for rows.Next() {
		var l model.Listing
		var domain string
		if err := rows.Scan(&l.ID, &l.Title, &l.Description, &domain); err != nil {
			return nil, eris.Wrap(err, "resolution: sqlite scan listing")
		}
		l.Domain = model.Domain(domain)
		listings = append(listings, l)
	}
	return listings, eris.Wrap(rows.Err(), "resolution: sqlite unresolved iterate")
}

func (s *SQLiteStore) AppendAudit(ctx context.Context, ev model.AuditEvent) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, listing_id, actor, action, from_code, to_code, from_verified, to_verified, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, ev.ListingID, ev.Actor, string(ev.Action),
		ev.FromCode, ev.ToCode, verifiedArg(ev.FromVerified), verifiedArg(ev.ToVerified),
		ev.CreatedAt,
	)
	return eris.Wrapf(err, "resolution: sqlite append audit for %d", ev.ListingID)
}

func (s *SQLiteStore) ListAudit(ctx context.Context, listingID int64, limit int) ([]model.AuditEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, listing_id, actor, action, from_code, to_code, from_verified, to_verified, created_at
		FROM audit_events
		WHERE listing_id = ?
		ORDER BY created_at DESC, id
		LIMIT ?`, listingID, limit)
	if err != nil {
		return nil, eris.Wrap(err, "resolution: sqlite list audit")
	}
	defer rows.Close()

	var events []model.AuditEvent
	for rows.Next() {
		var ev model.AuditEvent
		var action string
		var fromV, toV sql.NullString
		if err := rows.Scan(&ev.ID, &ev.ListingID, &ev.Actor, &action,
			&ev.FromCode, &ev.ToCode, &fromV, &toV, &ev.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "resolution: sqlite scan audit row")
		}
		ev.Action = model.AuditAction(action)
		ev.FromVerified = verifiedFromNull(fromV)
		ev.ToVerified = verifiedFromNull(toV)
		events = append(events, ev)
	}
	return events, eris.Wrap(rows.Err(), "resolution: sqlite audit iterate")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanResolution(row scannable) (*model.Resolution, error) {
	var res model.Resolution
	var code sql.NullString
	var verified sql.NullString
	var verifiedAt sql.NullTime
	var candidatesJSON string

	err := row.Scan(
		&res.ListingID, &code, &res.Confidence, &res.Method,
		&candidatesJSON, &verified, &res.VerifiedBy, &verifiedAt,
		&res.Hidden, &res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if code.Valid {
		res.ArtisanCode = &code.String
	}
	res.Verified = verifiedFromNull(verified)
	if verifiedAt.Valid {
		t := verifiedAt.Time
		res.VerifiedAt = &t
	}
	if err := json.Unmarshal([]byte(candidatesJSON), &res.Candidates); err != nil {
		return nil, eris.Wrap(err, "resolution: unmarshal candidates")
	}
	return &res, nil
}

func verifiedArg(v *model.VerifiedStatus) any {
	if v == nil {
		return nil
	}
	return string(*v)
}

func verifiedFromNull(ns sql.NullString) *model.VerifiedStatus {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	v := model.VerifiedStatus(ns.String)
	return &v
}

// now returns the current UTC time truncated to milliseconds, keeping
// round-trips through DATETIME columns comparison-safe in tests.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
