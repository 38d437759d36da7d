package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
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
		return nil, eris.Wrap(err, "catalog: postgres parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: postgres create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "catalog: postgres ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS artisans (
	code        TEXT PRIMARY KEY,
	name_romaji TEXT NOT NULL,
	name_norm   TEXT NOT NULL,
	name_kanji  TEXT NOT NULL DEFAULT '',
	school      TEXT NOT NULL DEFAULT '',
	province    TEXT NOT NULL DEFAULT '',
	era         TEXT NOT NULL DEFAULT '',
	generation  TEXT NOT NULL DEFAULT '',
	notability  INTEGER,
	domain      TEXT NOT NULL DEFAULT 'sword',
	is_school   BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_artisans_name_norm ON artisans(name_norm);
CREATE INDEX IF NOT EXISTS idx_artisans_school ON artisans(school);
CREATE INDEX IF NOT EXISTS idx_artisans_domain ON artisans(domain);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "catalog: postgres migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, code string) (*model.ArtisanRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+artisanColumns+` FROM artisans WHERE UPPER(code) = UPPER($1)`,
		code,
	)
	rec, err := scanArtisan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: postgres get %s", code)
	}
	return rec, nil
}

func (s *PostgresStore) All(ctx context.Context) ([]model.ArtisanRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+artisanColumns+` FROM artisans ORDER BY code`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: postgres list all")
	}
	defer rows.Close()

	var records []model.ArtisanRecord
	for rows.Next() {
		rec, err := scanArtisan(rows)
		if err != nil {
			return nil, eris.Wrap(err, "catalog: postgres scan artisan")
		}
		records = append(records, *rec)
	}
	return records, eris.Wrap(rows.Err(), "catalog: postgres iterate")
}

// Search mirrors the SQLite search: escaped case-insensitive substring match
// ranked by notability descending, nulls last. Backslash is the default LIKE
// escape character in Postgres, so EscapeLike patterns work unmodified.
func (s *PostgresStore) Search(ctx context.Context, query string, domain model.Domain, limit int) ([]model.ArtisanRecord, error) {
	pattern := "%" + EscapeLike(strings.ToLower(query)) + "%"
	normPattern := "%" + EscapeLike(NormalizeRomaji(query)) + "%"

	sqlQuery := `SELECT ` + artisanColumns + ` FROM artisans
	WHERE (code ILIKE $1
		OR name_romaji ILIKE $1
		OR name_norm LIKE $2
		OR name_kanji LIKE $1
		OR school ILIKE $1
		OR (school || ' ' || name_romaji) ILIKE $1)`
	args := []any{pattern, normPattern}

	if domain != model.DomainAny && domain != "" {
		sqlQuery += ` AND (domain = $3 OR domain = $4)`
		args = append(args, string(domain), string(model.DomainBoth))
	}

	sqlQuery += fmt.Sprintf(` ORDER BY notability DESC NULLS LAST, code LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, sqlQuery, args...)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: postgres search")
	}
	defer rows.Close()

	var records []model.ArtisanRecord
	for rows.Next() {
		rec, err := scanArtisan(rows)
		if err != nil {
			return nil, eris.Wrap(err, "catalog: postgres scan search row")
		}
		records = append(records, *rec)
	}
	return records, eris.Wrap(rows.Err(), "catalog: postgres search iterate")
}

// Upsert bulk-loads records through a temp table COPY, replacing existing
// rows by code. The normalized romaji column is computed here so search and
// retrieval never depend on the seed file being pre-normalized.
func (s *PostgresStore) Upsert(ctx context.Context, records []model.ArtisanRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		if rec.Code == "" {
			return 0, eris.New("catalog: upsert record with empty code")
		}
		rows = append(rows, []any{
			rec.Code, rec.NameRomaji, NormalizeRomaji(rec.NameRomaji), rec.NameKanji,
			rec.School, rec.Province, rec.Era, rec.Generation,
			rec.Notability, string(rec.Domain), rec.IsSchoolCode,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table: "artisans",
		Columns: []string{
			"code", "name_romaji", "name_norm", "name_kanji", "school",
			"province", "era", "generation", "notability", "domain", "is_school",
		},
		ConflictKeys: []string{"code"},
	}, rows)
	return n, eris.Wrap(err, "catalog: postgres upsert")
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM artisans`).Scan(&n)
	return n, eris.Wrap(err, "catalog: postgres count")
}

