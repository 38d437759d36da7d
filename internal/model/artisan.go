// Package model defines the core domain types shared across the resolver.
package model

import "strings"

// Domain indicates which craft a catalog record or filter covers.
type Domain string

// Domain values. DomainAny is only valid as a filter, never on a record.
const (
	DomainSword  Domain = "sword"
	DomainTosogu Domain = "tosogu"
	DomainBoth   Domain = "both"
	DomainAny    Domain = "any"
)

// ParseDomainFilter maps user-facing filter spellings to a Domain filter.
// The search UI says "smith"/"all" where the ingestion side says "sword"/"any".
func ParseDomainFilter(s string) Domain {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sword", "smith":
		return DomainSword
	case "tosogu", "fitting", "fittings":
		return DomainTosogu
	default:
		return DomainAny
	}
}

// Matches reports whether a record with domain d satisfies the given filter.
// Records marked "both" satisfy either craft filter.
func (d Domain) Matches(filter Domain) bool {
	if filter == DomainAny || filter == "" {
		return true
	}
	return d == filter || d == DomainBoth
}

// ArtisanRecord is a canonical catalog entry for a swordsmith or tosogu maker.
// Records are curated externally; the resolver treats them as read-mostly
// reference data keyed by the stable Code.
type ArtisanRecord struct {
	Code         string `json:"code" yaml:"code"`
	NameRomaji   string `json:"name_romaji" yaml:"name_romaji"`
	NameKanji    string `json:"name_kanji,omitempty" yaml:"name_kanji,omitempty"`
	School       string `json:"school,omitempty" yaml:"school,omitempty"`
	Province     string `json:"province,omitempty" yaml:"province,omitempty"`
	Era          string `json:"era,omitempty" yaml:"era,omitempty"`
	Generation   string `json:"generation,omitempty" yaml:"generation,omitempty"`
	Notability   *int   `json:"notability,omitempty" yaml:"notability,omitempty"`
	Domain       Domain `json:"domain" yaml:"domain"`
	IsSchoolCode bool   `json:"is_school_code,omitempty" yaml:"is_school_code,omitempty"`
}

// DisplayName renders the human-facing name, prefixed with the school when
// one is recorded ("Osafune Nagamitsu" rather than bare "Nagamitsu").
func (a ArtisanRecord) DisplayName() string {
	if a.School != "" && !strings.EqualFold(a.School, a.NameRomaji) {
		return a.School + " " + a.NameRomaji
	}
	return a.NameRomaji
}
