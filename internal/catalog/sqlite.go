package catalog

import (
	"context"
	"database/sql"
	"strings"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/touken-lab/meikan/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite catalog at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: sqlite open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "catalog: sqlite exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
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
	is_school   INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_artisans_name_norm ON artisans(name_norm);
CREATE INDEX IF NOT EXISTS idx_artisans_school ON artisans(school);
CREATE INDEX IF NOT EXISTS idx_artisans_domain ON artisans(domain);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "catalog: sqlite migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const artisanColumns = `code, name_romaji, name_kanji, school, province, era, generation, notability, domain, is_school`

func (s *SQLiteStore) Get(ctx context.Context, code string) (*model.ArtisanRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+artisanColumns+` FROM artisans WHERE code = ? COLLATE NOCASE`,
		code,
	)
	rec, err := scanArtisan(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: sqlite get %s", code)
	}
	return rec, nil
}

func (s *SQLiteStore) All(ctx context.Context) ([]model.ArtisanRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+artisanColumns+` FROM artisans ORDER BY code`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: sqlite list all")
	}
	defer rows.Close()

	var records []model.ArtisanRecord
	for rows.Next() {
		rec, err := scanArtisan(rows)
		if err != nil {
			return nil, eris.Wrap(err, "catalog: sqlite scan artisan")
		}
		records = append(records, *rec)
	}
	return records, eris.Wrap(rows.Err(), "catalog: sqlite iterate")
}

// Search performs a case-insensitive substring match across code, romaji,
// normalized romaji, kanji, school, and display name. LIKE wildcards in the
// query are escaped so they always match literally. Results are ordered by
// notability rank descending with unranked records last.
func (s *SQLiteStore) Search(ctx context.Context, query string, domain model.Domain, limit int) ([]model.ArtisanRecord, error) {
	pattern := "%" + EscapeLike(strings.ToLower(query)) + "%"
	normPattern := "%" + EscapeLike(NormalizeRomaji(query)) + "%"

	sqlQuery := `SELECT ` + artisanColumns + ` FROM artisans
	WHERE (lower(code) LIKE ? ESCAPE '\'
		OR lower(name_romaji) LIKE ? ESCAPE '\'
		OR name_norm LIKE ? ESCAPE '\'
		OR name_kanji LIKE ? ESCAPE '\'
		OR lower(school) LIKE ? ESCAPE '\'
		OR lower(school || ' ' || name_romaji) LIKE ? ESCAPE '\')`
	args := []any{pattern, pattern, normPattern, pattern, pattern, pattern}

	if domain != model.DomainAny && domain != "" {
		sqlQuery += ` AND (domain = ? OR domain = ?)`
		args = append(args, string(domain), string(model.DomainBoth))
	}

	sqlQuery += ` ORDER BY notability IS NULL, notability DESC, code LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, eris.Wrap(err, "catalog: sqlite search")
	}
	defer rows.Close()

	var records []model.ArtisanRecord
	for rows.Next() {
		rec, err := scanArtisan(rows)
		if err != nil {
			return nil, eris.Wrap(err, "catalog: sqlite scan search row")
		}
		records = append(records, *rec)
	}
	return records, eris.Wrap(rows.Err(), "catalog: sqlite search iterate")
}

func (s *SQLiteStore) Upsert(ctx context.Context, records []model.ArtisanRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "catalog: sqlite begin upsert")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO artisans (code, name_romaji, name_norm, name_kanji, school, province, era, generation, notability, domain, is_school)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			name_romaji = excluded.name_romaji,
			name_norm   = excluded.name_norm,
			name_kanji  = excluded.name_kanji,
			school      = excluded.school,
			province    = excluded.province,
			era         = excluded.era,
			generation  = excluded.generation,
			notability  = excluded.notability,
			domain      = excluded.domain,
			is_school   = excluded.is_school`)
	if err != nil {
		return 0, eris.Wrap(err, "catalog: sqlite prepare upsert")
	}
	defer stmt.Close()

	var n int64
	for _, rec := range records {
		if rec.Code == "" {
			return n, eris.New("catalog: upsert record with empty code")
		}
		_, err := stmt.ExecContext(ctx,
			rec.Code, rec.NameRomaji, NormalizeRomaji(rec.NameRomaji), rec.NameKanji,
			rec.School, rec.Province, rec.Era, rec.Generation,
			rec.Notability, string(rec.Domain), rec.IsSchoolCode,
		)
		if err != nil {
			return n, eris.Wrapf(err, "catalog: sqlite upsert %s", rec.Code)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return n, eris.Wrap(err, "catalog: sqlite commit upsert")
	}
	return n, nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM artisans`).Scan(&n)
	return n, eris.Wrap(err, "catalog: sqlite count")
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanArtisan(row scannable) (*model.ArtisanRecord, error) {
	var rec model.ArtisanRecord
	var notability sql.NullInt64
	var domain string

	err := row.Scan(
		&rec.Code, &rec.NameRomaji, &rec.NameKanji, &rec.School,
		&rec.Province, &rec.Era, &rec.Generation,
		&notability, &domain, &rec.IsSchoolCode,
	)
	if err != nil {
		return nil, err
	}

	if notability.Valid {
		n := int(notability.Int64)
		rec.Notability = &n
	}
	rec.Domain = model.Domain(domain)
	return &rec, nil
}
