package model

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// UnknownArtisanCode is the reserved sentinel for a listing a reviewer has
// deliberately left unidentified. Distinct from a nil code, which means
// resolution has not been attempted (or found nothing).
const UnknownArtisanCode = "UNKNOWN"

// MethodManual tags resolutions written by a human through the correction
// workflow, as opposed to the retrieval method tags set by automated runs.
const MethodManual = "manual"

// ConfidenceTier is the coarse certainty classification of a resolution.
type ConfidenceTier string

// Confidence tiers, strongest to weakest.
const (
	ConfidenceHigh   ConfidenceTier = "HIGH"
	ConfidenceMedium ConfidenceTier = "MEDIUM"
	ConfidenceLow    ConfidenceTier = "LOW"
	ConfidenceNone   ConfidenceTier = "NONE"
)

// ParseConfidence validates a user-supplied tier string.
func ParseConfidence(s string) (ConfidenceTier, error) {
	switch t := ConfidenceTier(strings.ToUpper(strings.TrimSpace(s))); t {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow, ConfidenceNone:
		return t, nil
	default:
		return "", eris.Errorf("invalid confidence tier %q", s)
	}
}

// VerifiedStatus is a reviewer's judgement on a stored resolution.
type VerifiedStatus string

// Verified statuses. A nil *VerifiedStatus means no judgement recorded.
const (
	VerifiedCorrect   VerifiedStatus = "correct"
	VerifiedIncorrect VerifiedStatus = "incorrect"
)

// Candidate is one scored artisan match surfaced by retrieval, kept on the
// resolution for audit and reviewer display.
type Candidate struct {
	Code   string  `json:"code"`
	Score  float64 `json:"score"`
	Method string  `json:"method"`
}

// Resolution is the stored association between a listing and a catalog
// artisan. One row per listing; created by automated resolution and
// thereafter mutated only through the correction workflow.
type Resolution struct {
	ListingID   int64           `json:"listing_id"`
	ArtisanCode *string         `json:"artisan_code"`
	Confidence  ConfidenceTier  `json:"confidence"`
	Method      string          `json:"method,omitempty"`
	Candidates  []Candidate     `json:"candidates"`
	Verified    *VerifiedStatus `json:"verified"`
	VerifiedBy  string          `json:"verified_by,omitempty"`
	VerifiedAt  *time.Time      `json:"verified_at,omitempty"`
	Hidden      bool            `json:"hidden"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ResolutionState is the derived position in the correction state machine.
type ResolutionState string

// Resolution states.
const (
	StateUnresolved        ResolutionState = "UNRESOLVED"
	StateResolvedAuto      ResolutionState = "RESOLVED_AUTO"
	StateResolvedVerified  ResolutionState = "RESOLVED_VERIFIED"
	StateFlaggedIncorrect  ResolutionState = "FLAGGED_INCORRECT"
	StateResolvedCorrected ResolutionState = "RESOLVED_CORRECTED"
)

// State derives the correction-workflow state from the stored fields.
func (r *Resolution) State() ResolutionState {
	if r == nil || r.ArtisanCode == nil {
		return StateUnresolved
	}
	switch {
	case r.Verified == nil:
		return StateResolvedAuto
	case *r.Verified == VerifiedIncorrect:
		return StateFlaggedIncorrect
	case r.Method == MethodManual:
		return StateResolvedCorrected
	default:
		return StateResolvedVerified
	}
}

// HumanTouched reports whether a reviewer has recorded any judgement or
// correction on this resolution. Automated re-runs must not clobber these
// rows without explicit intent.
func (r *Resolution) HumanTouched() bool {
	if r == nil {
		return false
	}
	return r.Verified != nil || r.Method == MethodManual
}

// Listing is the minimal view of a scraped listing the resolver needs:
// enough text to retrieve candidates and a domain hint. The full listing
// record lives in the scraping side of the system.
type Listing struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Domain      Domain `json:"domain,omitempty"`
}

// Text concatenates the searchable free text of a listing.
func (l Listing) Text() string {
	if l.Description == "" {
		return l.Title
	}
	return l.Title + " " + l.Description
}
