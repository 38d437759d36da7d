package model

import "time"

// AuditAction identifies the kind of correction recorded in the audit log.
type AuditAction string

// Audit actions.
const (
	AuditVerify     AuditAction = "verify"
	AuditFixArtisan AuditAction = "fix_artisan"
	AuditReResolve  AuditAction = "re_resolve"
	AuditVisibility AuditAction = "toggle_visibility"
)

// AuditEvent records one correction-workflow mutation for provenance.
type AuditEvent struct {
	ID           string          `json:"id"`
	ListingID    int64           `json:"listing_id"`
	Actor        string          `json:"actor"`
	Action       AuditAction     `json:"action"`
	FromCode     *string         `json:"from_code,omitempty"`
	ToCode       *string         `json:"to_code,omitempty"`
	FromVerified *VerifiedStatus `json:"from_verified,omitempty"`
	ToVerified   *VerifiedStatus `json:"to_verified,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}
