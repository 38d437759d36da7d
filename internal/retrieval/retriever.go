// Package retrieval turns noisy listing text into ranked artisan candidates
// and classifies the result into a confidence tier. Matching runs as a
// cascade of passes, strongest signal first, each tagging its hits with the
// method that produced them.
package retrieval

import (
	"context"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/agext/levenshtein"
	gocache "github.com/patrickmn/go-cache"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/touken-lab/meikan/internal/catalog"
	"github.com/touken-lab/meikan/internal/fault"
	"github.com/touken-lab/meikan/internal/model"
)

// Retrieval method tags, carried on each candidate for audit and display.
const (
	MethodExactCode   = "exact_code"
	MethodExactName   = "exact_name"
	MethodFuzzyRomaji = "fuzzy_romaji"
	MethodSchoolName  = "school_name"
)

// Score anchors per pass. Fuzzy scores are scaled below the exact-name
// anchor so a perfect normalized match never outranks a verbatim one.
const (
	scoreExactCode  = 1.0
	scoreExactName  = 0.95
	fuzzyScoreScale = 0.90
	scoreSchoolName = 0.55
)

const snapshotKey = "catalog"

// Retriever matches listing text against an in-memory snapshot of the
// catalog. The catalog is read-mostly and small (thousands of records), so
// a TTL-cached snapshot beats per-call queries.
type Retriever struct {
	store catalog.Store
	cfg   Config
	snap  *gocache.Cache
}

// New creates a Retriever over the given catalog store.
func New(store catalog.Store, cfg Config) *Retriever {
	ttl := cfg.SnapshotTTL()
	return &Retriever{
		store: store,
		cfg:   cfg,
		snap:  gocache.New(ttl, 2*ttl),
	}
}

// indexedRecord pairs a catalog record with its precomputed normalized name.
type indexedRecord struct {
	model.ArtisanRecord
	norm string
}

// Retrieve returns up to MaxCandidates scored candidates for the given
// free text, strictly ordered by non-increasing score. Ties prefer named
// individuals over school buckets, then higher notability (nulls last).
// Text shorter than two runes is a caller error. No match at all returns an
// empty list, which Classify maps to NONE.
func (r *Retriever) Retrieve(ctx context.Context, text string, domain model.Domain) ([]model.Candidate, error) {
	trimmed := strings.TrimSpace(text)
	if utf8.RuneCountInString(trimmed) < 2 {
		return nil, fault.InvalidInput("retrieval text must be at least 2 characters")
	}

	records, err := r.snapshot(ctx)
	if err != nil {
		return nil, err
	}

	lowText := strings.ToLower(trimmed)
	normTokens := strings.Fields(catalog.NormalizeRomaji(trimmed))
	codeTokens := tokenSet(strings.ToUpper(trimmed))

	var matches []scoredMatch
	for i := range records {
		rec := &records[i]
		if !rec.Domain.Matches(domain) {
			continue
		}
		score, method, ok := r.matchRecord(rec, trimmed, lowText, normTokens, codeTokens)
		if !ok {
			continue
		}
		matches = append(matches, scoredMatch{rec: rec, score: score, method: method})
	}

	sortMatches(matches)

	limit := r.cfg.MaxCandidates
	if limit <= 0 {
		limit = DefaultMaxCandidates
	}
	if len(matches) > limit {
		matches = matches[:limit]
	}

	candidates := make([]model.Candidate, 0, len(matches))
	for _, m := range matches {
		candidates = append(candidates, model.Candidate{
			Code:   m.rec.Code,
			Score:  m.score,
			Method: m.method,
		})
	}

	zap.L().Debug("candidate retrieval",
		zap.String("domain", string(domain)),
		zap.Int("candidates", len(candidates)),
	)
	return candidates, nil
}

// matchRecord runs the pass cascade for one record and returns the best hit.
func (r *Retriever) matchRecord(rec *indexedRecord, text, lowText string, normTokens []string, codeTokens map[string]bool) (float64, string, bool) {
	// Pass 1: the catalog code itself appears in the text. Certification
	// papers and dealer listings quote codes verbatim.
	if codeTokens[strings.ToUpper(rec.Code)] {
		return scoreExactCode, MethodExactCode, true
	}

	// Pass 2: verbatim name containment, romaji or kanji.
	if rec.NameRomaji != "" && containsWord(lowText, strings.ToLower(rec.NameRomaji)) {
		return scoreExactName, MethodExactName, true
	}
	if rec.NameKanji != "" && strings.Contains(text, rec.NameKanji) {
		return scoreExactName, MethodExactName, true
	}

	// Pass 3: fuzzy match on normalized romaji, diacritic and hyphenation
	// insensitive.
	if rec.norm != "" {
		if sim := bestWindowSimilarity(normTokens, rec.norm); sim >= r.cfg.FuzzyFloor {
			return sim * fuzzyScoreScale, MethodFuzzyRomaji, true
		}
	}

	// Pass 4: school or display name substring.
	if rec.School != "" && containsWord(lowText, strings.ToLower(rec.School)) {
		return scoreSchoolName, MethodSchoolName, true
	}
	if dn := strings.ToLower(rec.DisplayName()); dn != "" && strings.Contains(lowText, dn) {
		return scoreSchoolName, MethodSchoolName, true
	}

	return 0, "", false
}

// snapshot returns the cached catalog index, loading it on miss.
func (r *Retriever) snapshot(ctx context.Context) ([]indexedRecord, error) {
	if v, ok := r.snap.Get(snapshotKey); ok {
		return v.([]indexedRecord), nil
	}

	records, err := r.store.All(ctx)
	if err != nil {
		if fault.KindOf(err) != fault.KindUnknown {
			return nil, err
		}
		return nil, eris.Wrap(err, "retrieval: load catalog snapshot")
	}

	indexed := make([]indexedRecord, 0, len(records))
	for _, rec := range records {
		indexed = append(indexed, indexedRecord{
			ArtisanRecord: rec,
			norm:          catalog.NormalizeRomaji(rec.NameRomaji),
		})
	}
	r.snap.SetDefault(snapshotKey, indexed)

	zap.L().Debug("catalog snapshot loaded", zap.Int("records", len(indexed)))
	return indexed, nil
}

type scoredMatch struct {
	rec    *indexedRecord
	score  float64
	method string
}

// sortMatches orders by score descending; among equal scores a named
// individual outranks a school bucket, then notability rank descending with
// unranked records last, then code for determinism.
func sortMatches(matches []scoredMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.score != b.score {
			return a.score > b.score
		}
		if a.rec.IsSchoolCode != b.rec.IsSchoolCode {
			return !a.rec.IsSchoolCode
		}
		an, bn := a.rec.Notability, b.rec.Notability
		switch {
		case an != nil && bn == nil:
			return true
		case an == nil && bn != nil:
			return false
		case an != nil && bn != nil && *an != *bn:
			return *an > *bn
		}
		return a.rec.Code < b.rec.Code
	})
}

// bestWindowSimilarity slides a window the width of the name across the
// text tokens and returns the best Levenshtein similarity. OCR'd signatures
// embed the name anywhere in surrounding noise, so whole-string similarity
// would drown it.
func bestWindowSimilarity(tokens []string, name string) float64 {
	w := len(strings.Fields(name))
	if w == 0 || len(tokens) == 0 {
		return 0
	}
	if w >= len(tokens) {
		return levenshtein.Similarity(strings.Join(tokens, " "), name, nil)
	}

	best := 0.0
	for i := 0; i+w <= len(tokens); i++ {
		sim := levenshtein.Similarity(strings.Join(tokens[i:i+w], " "), name, nil)
		if sim > best {
			best = sim
		}
	}
	return best
}

// tokenSet splits text on non-alphanumeric runes into a set, for exact code
// hits.
func tokenSet(s string) map[string]bool {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

// containsWord reports whether needle occurs in haystack at word boundaries.
// Plain substring containment would let "masa" hit "Masamune".
func containsWord(haystack, needle string) bool {
	if needle == "" {
		return false
	}
	for start := 0; ; {
		idx := strings.Index(haystack[start:], needle)
		if idx < 0 {
			return false
		}
		i := start + idx
		end := i + len(needle)
		beforeOK := i == 0 || isBoundary(rune(haystack[i-1]))
		afterOK := end == len(haystack) || isBoundary(rune(haystack[end]))
		if beforeOK && afterOK {
			return true
		}
		start = i + 1
	}
}

func isBoundary(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
