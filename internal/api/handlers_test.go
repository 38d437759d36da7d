package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/touken-lab/meikan/internal/catalog"
	"github.com/touken-lab/meikan/internal/model"
	"github.com/touken-lab/meikan/internal/resolution"
	"github.com/touken-lab/meikan/internal/retrieval"
)

const (
	testReadToken  = "read-token"
	testAdminToken = "admin-token"
)

func intPtr(n int) *int { return &n }

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	dir := t.TempDir()

	cat, err := catalog.NewSQLite(filepath.Join(dir, "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { cat.Close() })

	ctx := context.Background()
	require.NoError(t, cat.Migrate(ctx))
	_, err = cat.Upsert(ctx, []model.ArtisanRecord{
		{Code: "MAS590", NameRomaji: "Masamune", NameKanji: "正宗", School: "Sōshū", Notability: intPtr(99), Domain: model.DomainSword},
		{Code: "MAS120", NameRomaji: "Masamune", School: "Sendai", Notability: intPtr(40), Domain: model.DomainSword},
		{Code: "NAG045", NameRomaji: "Nagamitsu", School: "Osafune", Notability: intPtr(85), Domain: model.DomainSword},
		{Code: "ODD001", NameRomaji: "50% off_", Domain: model.DomainSword},
		{Code: "ODD002", NameRomaji: "500 offer", Domain: model.DomainSword},
	})
	require.NoError(t, err)

	store, err := resolution.NewSQLite(filepath.Join(dir, "resolutions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(ctx))

	cfg := retrieval.DefaultConfig()
	svc := resolution.NewService(store, cat, retrieval.New(cat, cfg), cfg)

	srv := New(catalog.NewLookup(cat), cat, svc, Config{
		ReadToken:  testReadToken,
		AdminToken: testAdminToken,
	})
	return srv.Router()
}

// newUnprovisionedServer builds a deployment with no catalog backend.
func newUnprovisionedServer(t *testing.T) http.Handler {
	t.Helper()

	store, err := resolution.NewSQLite(filepath.Join(t.TempDir(), "resolutions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	cfg := retrieval.DefaultConfig()
	svc := resolution.NewService(store, nil, retrieval.New(catalog.Unprovisioned{}, cfg), cfg)

	srv := New(catalog.NewLookup(nil), nil, svc, Config{
		ReadToken:  testReadToken,
		AdminToken: testAdminToken,
	})
	return srv.Router()
}

func doRequest(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func resolveListing(t *testing.T, h http.Handler, id int64, title string) {
	t.Helper()
	rec := doRequest(t, h, http.MethodPost, "/api/v1/resolve", testAdminToken, map[string]any{
		"listing_id": id,
		"title":      title,
		"domain":     "sword",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHealth(t *testing.T) {
	h := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuth(t *testing.T) {
	h := newTestServer(t)

	// No token at all.
	rec := doRequest(t, h, http.MethodGet, "/api/v1/artisans/search?q=masamune", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Unrecognized token.
	rec = doRequest(t, h, http.MethodGet, "/api/v1/artisans/search?q=masamune", "who-dis", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Read token on a read route.
	rec = doRequest(t, h, http.MethodGet, "/api/v1/artisans/search?q=masamune", testReadToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Read token on a write route: authenticated but not authorized.
	rec = doRequest(t, h, http.MethodPost, "/api/v1/listings/1/verify", testReadToken, map[string]any{"status": "correct"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Admin token works everywhere.
	rec = doRequest(t, h, http.MethodGet, "/api/v1/artisans/search?q=masamune", testAdminToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSearch(t *testing.T) {
	h := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/artisans/search?q=masamune", testReadToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[searchResponse](t, rec)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "MAS590", resp.Results[0].Code)
	assert.Equal(t, "Sōshū Masamune", resp.Results[0].DisplayName)
	assert.Empty(t, resp.Message)
}

func TestSearchShortQuery(t *testing.T) {
	h := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/artisans/search?q=m", testReadToken, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody[errorBody](t, rec)
	assert.Equal(t, "invalid_input", body.Reason)
}

func TestSearchBadLimit(t *testing.T) {
	h := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/artisans/search?q=masamune&limit=lots", testReadToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchNoMatches(t *testing.T) {
	h := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/artisans/search?q=zzzzzz", testReadToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[searchResponse](t, rec)
	assert.Empty(t, resp.Results)
	assert.Equal(t, "no matches", resp.Message)
}

func TestSearchLiteralWildcards(t *testing.T) {
	h := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/artisans/search?q="+"50%25+off_", testReadToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[searchResponse](t, rec)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "ODD001", resp.Results[0].Code)
}

func TestSearchDomainFilter(t *testing.T) {
	h := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/artisans/search?q=nagamitsu&domain=smith&limit=5", testReadToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[searchResponse](t, rec)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "NAG045", resp.Results[0].Code)
}

func TestSearchUnprovisioned(t *testing.T) {
	h := newUnprovisionedServer(t)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/artisans/search?q=masamune", testReadToken, nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	resp := decodeBody[searchResponse](t, rec)
	assert.Empty(t, resp.Results)
	assert.Equal(t, "catalog not configured", resp.Message)
}

func TestArtisanDetail(t *testing.T) {
	h := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/artisans/MAS590", testReadToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	artisan := decodeBody[model.ArtisanRecord](t, rec)
	assert.Equal(t, "Masamune", artisan.NameRomaji)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/artisans/NOPE999", testReadToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestResolveAndGetResolution(t *testing.T) {
	h := newTestServer(t)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/resolve", testAdminToken, map[string]any{
		"listing_id": 1,
		"title":      "Katana signed Nagamitsu",
		"domain":     "sword",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody[resolutionBody](t, rec)
	require.NotNil(t, body.ArtisanCode)
	assert.Equal(t, "NAG045", *body.ArtisanCode)
	assert.Equal(t, model.StateResolvedAuto, body.State)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/listings/1/resolution", testReadToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody[resolutionBody](t, rec)
	require.NotNil(t, body.ArtisanCode)
	assert.Equal(t, "NAG045", *body.ArtisanCode)
}

func TestGetResolutionErrors(t *testing.T) {
	h := newTestServer(t)

	rec := doRequest(t, h, http.MethodGet, "/api/v1/listings/999/resolution", testReadToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/listings/abc/resolution", testReadToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResolveValidation(t *testing.T) {
	h := newTestServer(t)

	rec := doRequest(t, h, http.MethodPost, "/api/v1/resolve", testAdminToken, map[string]any{
		"title": "no id",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVerifyFlow(t *testing.T) {
	h := newTestServer(t)
	resolveListing(t, h, 1, "Katana signed Masamune")

	rec := doRequest(t, h, http.MethodPost, "/api/v1/listings/1/verify", testAdminToken, map[string]any{"status": "incorrect"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody[resolutionBody](t, rec)
	assert.Equal(t, model.StateFlaggedIncorrect, body.State)

	// Same status again toggles back.
	rec = doRequest(t, h, http.MethodPost, "/api/v1/listings/1/verify", testAdminToken, map[string]any{"status": "incorrect"})
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody[resolutionBody](t, rec)
	assert.Equal(t, model.StateResolvedAuto, body.State)
	assert.Nil(t, body.Verified)

	// Invalid status string.
	rec = doRequest(t, h, http.MethodPost, "/api/v1/listings/1/verify", testAdminToken, map[string]any{"status": "maybe"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// No resolution yet.
	rec = doRequest(t, h, http.MethodPost, "/api/v1/listings/999/verify", testAdminToken, map[string]any{"status": "correct"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestFixArtisanFlow(t *testing.T) {
	h := newTestServer(t)
	resolveListing(t, h, 1, "Katana signed Masamune")

	rec := doRequest(t, h, http.MethodPost, "/api/v1/listings/1/artisan", testAdminToken, map[string]any{
		"code":       "MAS120",
		"confidence": "HIGH",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody[resolutionBody](t, rec)
	require.NotNil(t, body.ArtisanCode)
	assert.Equal(t, "MAS120", *body.ArtisanCode)
	assert.Equal(t, model.StateResolvedCorrected, body.State)
	require.NotNil(t, body.Verified)
	assert.Equal(t, model.VerifiedCorrect, *body.Verified)
	assert.NotEmpty(t, body.Candidates, "automated candidates survive the correction")

	// A lowercase tier is normalized before it is persisted.
	rec = doRequest(t, h, http.MethodPost, "/api/v1/listings/1/artisan", testAdminToken, map[string]any{
		"code":       "MAS120",
		"confidence": "medium",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decodeBody[resolutionBody](t, rec)
	assert.Equal(t, model.ConfidenceMedium, body.Confidence)
}

func TestFixArtisanUnknownSentinel(t *testing.T) {
	h := newTestServer(t)
	resolveListing(t, h, 1, "Katana signed Masamune")

	// Confidence defaults to LOW when omitted.
	rec := doRequest(t, h, http.MethodPost, "/api/v1/listings/1/artisan", testAdminToken, map[string]any{
		"code": "UNKNOWN",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody[resolutionBody](t, rec)
	require.NotNil(t, body.ArtisanCode)
	assert.Equal(t, model.UnknownArtisanCode, *body.ArtisanCode)
	assert.Equal(t, model.ConfidenceLow, body.Confidence)
	assert.Equal(t, model.StateResolvedCorrected, body.State)
}

func TestFixArtisanRejectsUnknownCode(t *testing.T) {
	h := newTestServer(t)
	resolveListing(t, h, 1, "Katana signed Masamune")

	rec := doRequest(t, h, http.MethodPost, "/api/v1/listings/1/artisan", testAdminToken, map[string]any{
		"code":       "NOPE999",
		"confidence": "HIGH",
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	body := decodeBody[errorBody](t, rec)
	assert.Equal(t, "invalid_input", body.Reason)
}

func TestActorHeader(t *testing.T) {
	h := newTestServer(t)
	resolveListing(t, h, 1, "Katana signed Masamune")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/listings/1/artisan",
		bytes.NewBufferString(`{"code":"MAS120","confidence":"HIGH"}`))
	req.Header.Set("Authorization", "Bearer "+testAdminToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor", "reviewer@touken.example")

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody[resolutionBody](t, rec)
	assert.Equal(t, "reviewer@touken.example", body.VerifiedBy)
}

func TestToggleVisibilityEndpoint(t *testing.T) {
	h := newTestServer(t)
	resolveListing(t, h, 1, "Katana signed Masamune")

	rec := doRequest(t, h, http.MethodPost, "/api/v1/listings/1/visibility", testAdminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody[resolutionBody](t, rec)
	assert.True(t, body.Hidden)

	rec = doRequest(t, h, http.MethodPost, "/api/v1/listings/1/visibility", testAdminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody[resolutionBody](t, rec)
	assert.False(t, body.Hidden)

	rec = doRequest(t, h, http.MethodPost, "/api/v1/listings/999/visibility", testAdminToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuditTrail(t *testing.T) {
	h := newTestServer(t)
	resolveListing(t, h, 1, "Katana signed Masamune")

	rec := doRequest(t, h, http.MethodPost, "/api/v1/listings/1/verify", testAdminToken, map[string]any{"status": "correct"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = doRequest(t, h, http.MethodPost, "/api/v1/listings/1/visibility", testAdminToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doRequest(t, h, http.MethodGet, "/api/v1/listings/1/audit", testReadToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body := decodeBody[auditResponse](t, rec)
	require.Len(t, body.Events, 2)

	actions := make(map[model.AuditAction]bool)
	for _, ev := range body.Events {
		assert.Equal(t, int64(1), ev.ListingID)
		assert.NotEmpty(t, ev.ID)
		actions[ev.Action] = true
	}
	assert.True(t, actions[model.AuditVerify])
	assert.True(t, actions[model.AuditVisibility])

	// A listing without corrections has an empty trail.
	rec = doRequest(t, h, http.MethodGet, "/api/v1/listings/42/audit", testReadToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body = decodeBody[auditResponse](t, rec)
	assert.Empty(t, body.Events)

	rec = doRequest(t, h, http.MethodGet, "/api/v1/listings/1/audit?limit=zero", testReadToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSearchThrottle(t *testing.T) {
	store, err := resolution.NewSQLite(filepath.Join(t.TempDir(), "resolutions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	cfg := retrieval.DefaultConfig()
	svc := resolution.NewService(store, nil, retrieval.New(catalog.Unprovisioned{}, cfg), cfg)

	srv := New(catalog.NewLookup(nil), nil, svc, Config{
		ReadToken:   testReadToken,
		AdminToken:  testAdminToken,
		SearchRate:  1,
		SearchBurst: 1,
	})
	h := srv.Router()

	throttled := false
	for i := 0; i < 5; i++ {
		rec := doRequest(t, h, http.MethodGet, fmt.Sprintf("/api/v1/artisans/search?q=masamune&i=%d", i), testReadToken, nil)
		if rec.Code == http.StatusTooManyRequests {
			throttled = true
			assert.Equal(t, "1", rec.Header().Get("Retry-After"))
			break
		}
	}
	assert.True(t, throttled, "burst of searches should trip the limiter")
}
