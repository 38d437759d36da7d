package catalog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/touken-lab/meikan/internal/model"
)

func intPtr(n int) *int { return &n }

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func seedCatalog(t *testing.T, store *SQLiteStore) {
	t.Helper()
	records := []model.ArtisanRecord{
		{Code: "MAS590", NameRomaji: "Masamune", NameKanji: "正宗", School: "Sōshū", Province: "Sagami", Era: "Kamakura", Notability: intPtr(99), Domain: model.DomainSword},
		{Code: "MAS120", NameRomaji: "Masamune", School: "Sendai", Province: "Mutsu", Era: "Edo", Notability: intPtr(40), Domain: model.DomainSword},
		{Code: "NAG045", NameRomaji: "Nagamitsu", NameKanji: "長光", School: "Osafune", Province: "Bizen", Notability: intPtr(85), Domain: model.DomainSword},
		{Code: "GOT001", NameRomaji: "Gotō Yūjō", NameKanji: "後藤祐乗", School: "Gotō", Notability: intPtr(70), Domain: model.DomainTosogu},
		{Code: "SCH-SOSHU", NameRomaji: "Sōshū", School: "Sōshū", Domain: model.DomainSword, IsSchoolCode: true},
		{Code: "MYO200", NameRomaji: "Myōju", NameKanji: "明寿", School: "Umetada", Notability: intPtr(60), Domain: model.DomainBoth},
	}
	n, err := store.Upsert(context.Background(), records)
	require.NoError(t, err)
	require.EqualValues(t, len(records), n)
}

func TestSQLiteGet(t *testing.T) {
	store := newTestSQLite(t)
	seedCatalog(t, store)
	ctx := context.Background()

	rec, err := store.Get(ctx, "MAS590")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Masamune", rec.NameRomaji)
	assert.Equal(t, "Sōshū", rec.School)
	require.NotNil(t, rec.Notability)
	assert.Equal(t, 99, *rec.Notability)

	// Case-insensitive code lookup.
	rec, err = store.Get(ctx, "mas590")
	require.NoError(t, err)
	require.NotNil(t, rec)

	// Absence is (nil, nil), not an error.
	rec, err = store.Get(ctx, "NOPE999")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestSQLiteUpsertOverwrites(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, []model.ArtisanRecord{
		{Code: "KAN300", NameRomaji: "Kanemoto", Domain: model.DomainSword},
	})
	require.NoError(t, err)

	_, err = store.Upsert(ctx, []model.ArtisanRecord{
		{Code: "KAN300", NameRomaji: "Kanemoto", School: "Seki", Notability: intPtr(55), Domain: model.DomainSword},
	})
	require.NoError(t, err)

	rec, err := store.Get(ctx, "KAN300")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Seki", rec.School)
	require.NotNil(t, rec.Notability)
	assert.Equal(t, 55, *rec.Notability)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSQLiteUpsertRejectsEmptyCode(t *testing.T) {
	store := newTestSQLite(t)
	_, err := store.Upsert(context.Background(), []model.ArtisanRecord{{NameRomaji: "Nameless"}})
	require.Error(t, err)
}

func TestSQLiteSearchOrdering(t *testing.T) {
	store := newTestSQLite(t)
	seedCatalog(t, store)

	records, err := store.Search(context.Background(), "masamune", model.DomainAny, 20)
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Notability rank descending: famous Sagami smith before the Sendai line.
	assert.Equal(t, "MAS590", records[0].Code)
	assert.Equal(t, "MAS120", records[1].Code)
}

func TestSQLiteSearchUnrankedLast(t *testing.T) {
	store := newTestSQLite(t)
	seedCatalog(t, store)

	records, err := store.Search(context.Background(), "soshu", model.DomainAny, 20)
	require.NoError(t, err)
	require.NotEmpty(t, records)

	// SCH-SOSHU carries no notability rank and must sort after ranked records.
	assert.Equal(t, "SCH-SOSHU", records[len(records)-1].Code)
}

func TestSQLiteSearchDomainFilter(t *testing.T) {
	store := newTestSQLite(t)
	seedCatalog(t, store)
	ctx := context.Background()

	records, err := store.Search(ctx, "myoju", model.DomainSword, 20)
	require.NoError(t, err)
	require.Len(t, records, 1, "domain=both records satisfy the sword filter")
	assert.Equal(t, "MYO200", records[0].Code)

	records, err = store.Search(ctx, "goto", model.DomainSword, 20)
	require.NoError(t, err)
	assert.Empty(t, records, "tosogu-only maker filtered out")

	records, err = store.Search(ctx, "goto", model.DomainTosogu, 20)
	require.NoError(t, err)
	require.Len(t, records, 1)
}

func TestSQLiteSearchDiacritics(t *testing.T) {
	store := newTestSQLite(t)
	seedCatalog(t, store)

	// Plain ASCII query matches the macron spelling via name_norm.
	records, err := store.Search(context.Background(), "goto yujo", model.DomainAny, 20)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "GOT001", records[0].Code)
}

func TestSQLiteSearchKanji(t *testing.T) {
	store := newTestSQLite(t)
	seedCatalog(t, store)

	records, err := store.Search(context.Background(), "正宗", model.DomainAny, 20)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "MAS590", records[0].Code)
}

func TestSQLiteSearchLiteralWildcards(t *testing.T) {
	store := newTestSQLite(t)
	ctx := context.Background()

	_, err := store.Upsert(ctx, []model.ArtisanRecord{
		{Code: "ODD001", NameRomaji: "50% off_", Domain: model.DomainSword},
		{Code: "ODD002", NameRomaji: "500 offer", Domain: model.DomainSword},
	})
	require.NoError(t, err)

	// Wildcards in the query match literally: "%" and "_" must not act as
	// LIKE metacharacters and sweep in ODD002.
	records, err := store.Search(ctx, "50% off_", model.DomainAny, 20)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ODD001", records[0].Code)
}

func TestSQLiteSearchLimit(t *testing.T) {
	store := newTestSQLite(t)
	seedCatalog(t, store)

	records, err := store.Search(context.Background(), "masamune", model.DomainAny, 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "MAS590", records[0].Code)
}

func TestSQLiteAll(t *testing.T) {
	store := newTestSQLite(t)
	seedCatalog(t, store)

	records, err := store.All(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 6)
}
