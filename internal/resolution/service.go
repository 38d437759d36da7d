package resolution

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/touken-lab/meikan/internal/catalog"
	"github.com/touken-lab/meikan/internal/fault"
	"github.com/touken-lab/meikan/internal/model"
	"github.com/touken-lab/meikan/internal/retrieval"
)

// Service implements automated resolution and the correction workflow over
// a resolution store, a catalog, and the candidate retriever.
//
// Writes distinguish provenance: automated re-runs never clobber a
// human-touched row unless the caller passes explicit re-resolve intent.
// Simultaneous corrections on the same listing are last-write-wins; the
// premise is that corrections are low-frequency, human-paced events.
type Service struct {
	store     Store
	catalog   catalog.Store
	retriever *retrieval.Retriever
	cfg       retrieval.Config
}

// NewService wires the resolver service.
func NewService(store Store, cat catalog.Store, retriever *retrieval.Retriever, cfg retrieval.Config) *Service {
	if cat == nil {
		cat = catalog.Unprovisioned{}
	}
	return &Service{store: store, catalog: cat, retriever: retriever, cfg: cfg}
}

// Get returns the stored resolution for a listing, or a typed not-found.
func (s *Service) Get(ctx context.Context, listingID int64) (*model.Resolution, error) {
	res, err := s.store.GetResolution(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if res == nil {
		return nil, fault.NotFound("no resolution for listing %d", listingID)
	}
	return res, nil
}

// Resolve runs automated resolution for a listing: retrieve candidates,
// classify confidence, persist. A row a human has already verified or
// corrected is left untouched unless force is set; with force, the prior
// verification is cleared as an explicit, audited re-resolution.
func (s *Service) Resolve(ctx context.Context, listingID int64, text string, domain model.Domain, force bool) (*model.Resolution, error) {
	exists, err := s.store.ListingExists(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, fault.NotFound("listing %d not found", listingID)
	}

	current, err := s.store.GetResolution(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if current.HumanTouched() && !force {
		zap.L().Info("skipping re-resolution of human-corrected listing",
			zap.Int64("listing_id", listingID),
			zap.String("state", string(current.State())),
		)
		return current, nil
	}

	candidates, err := s.retriever.Retrieve(ctx, text, domain)
	if err != nil {
		return nil, err
	}
	tier := retrieval.Classify(candidates, s.cfg)

	res := &model.Resolution{
		ListingID:  listingID,
		Confidence: tier,
		Candidates: candidates,
		UpdatedAt:  now(),
	}
	if len(candidates) > 0 {
		top := candidates[0]
		res.ArtisanCode = &top.Code
		res.Method = top.Method
	}

	if err := s.store.SaveResolution(ctx, res); err != nil {
		return nil, err
	}

	if current.HumanTouched() {
		// Forced past a human verification: leave an audit trail.
		s.audit(ctx, model.AuditEvent{
			ListingID:    listingID,
			Actor:        "system",
			Action:       model.AuditReResolve,
			FromCode:     current.ArtisanCode,
			ToCode:       res.ArtisanCode,
			FromVerified: current.Verified,
		})
	}

	zap.L().Info("listing resolved",
		zap.Int64("listing_id", listingID),
		zap.String("confidence", string(tier)),
		zap.Int("candidates", len(candidates)),
	)
	return res, nil
}

// ResolveListing registers (or refreshes) the listing text and runs
// automated resolution over it. This is the ingestion-facing entry point.
func (s *Service) ResolveListing(ctx context.Context, l model.Listing, force bool) (*model.Resolution, error) {
	if l.ID <= 0 {
		return nil, fault.InvalidInput("listing id is required")
	}
	if err := s.store.EnsureListing(ctx, l); err != nil {
		return nil, err
	}
	return s.Resolve(ctx, l.ID, l.Text(), l.Domain, force)
}

// Verify records a reviewer's judgement on a resolution. Repeating the same
// status is a strict toggle that clears it back to null; a nil status clears
// unconditionally. Marking incorrect is a workflow hint for the reviewer to
// open the search path next; it changes no other field.
func (s *Service) Verify(ctx context.Context, listingID int64, status *model.VerifiedStatus, actor string) (*model.Resolution, error) {
	current, err := s.store.GetResolution(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fault.NotFound("no resolution for listing %d", listingID)
	}
	if current.ArtisanCode == nil {
		return nil, fault.InvalidInput("listing %d has no attributed artisan to verify", listingID)
	}

	next := status
	if status != nil && current.Verified != nil && *current.Verified == *status {
		next = nil
	}

	prior := current.Verified
	current.Verified = next
	if next != nil {
		current.VerifiedBy = actor
		t := now()
		current.VerifiedAt = &t
	} else {
		current.VerifiedBy = ""
		current.VerifiedAt = nil
	}
	current.UpdatedAt = now()

	if err := s.store.SaveResolution(ctx, current); err != nil {
		return nil, err
	}

	s.audit(ctx, model.AuditEvent{
		ListingID:    listingID,
		Actor:        actor,
		Action:       model.AuditVerify,
		FromVerified: prior,
		ToVerified:   next,
	})
	return current, nil
}

// FixArtisan assigns a catalog code (or the UNKNOWN sentinel) with the given
// confidence, atomically marking the resolution verified-correct: a
// correction is self-verifying. Candidates are preserved unchanged for
// audit. Any non-sentinel code must exist in the catalog; when the catalog
// cannot answer, the write fails closed rather than persisting an
// unvalidated code.
func (s *Service) FixArtisan(ctx context.Context, listingID int64, code string, confidence model.ConfidenceTier, actor string) (*model.Resolution, error) {
	if code == "" {
		return nil, fault.InvalidInput("artisan code is required")
	}
	tier, err := model.ParseConfidence(string(confidence))
	if err != nil {
		return nil, fault.InvalidInput("invalid confidence tier %q", confidence)
	}

	if code != model.UnknownArtisanCode {
		rec, err := s.catalog.Get(ctx, code)
		if err != nil {
			if fault.KindOf(err) != fault.KindUnknown {
				return nil, err
			}
			return nil, fault.Wrap(fault.KindUnavailable, err, "catalog lookup failed")
		}
		if rec == nil {
			return nil, fault.InvalidInput("unknown artisan code %q", code)
		}
	}

	current, err := s.store.GetResolution(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		exists, err := s.store.ListingExists(ctx, listingID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fault.NotFound("listing %d not found", listingID)
		}
		current = &model.Resolution{ListingID: listingID}
	}

	priorCode := current.ArtisanCode
	priorVerified := current.Verified

	verified := model.VerifiedCorrect
	t := now()
	current.ArtisanCode = &code
	current.Confidence = tier
	current.Method = model.MethodManual
	current.Verified = &verified
	current.VerifiedBy = actor
	current.VerifiedAt = &t
	current.UpdatedAt = t

	if err := s.store.SaveResolution(ctx, current); err != nil {
		return nil, err
	}

	s.audit(ctx, model.AuditEvent{
		ListingID:    listingID,
		Actor:        actor,
		Action:       model.AuditFixArtisan,
		FromCode:     priorCode,
		ToCode:       &code,
		FromVerified: priorVerified,
		ToVerified:   &verified,
	})

	zap.L().Info("artisan corrected",
		zap.Int64("listing_id", listingID),
		zap.String("code", code),
		zap.String("actor", actor),
	)
	return current, nil
}

// ToggleVisibility flips whether a resolution is shown to downstream
// display surfaces. Hiding is a presentation concern: it changes no code,
// confidence, or verification field.
func (s *Service) ToggleVisibility(ctx context.Context, listingID int64, actor string) (*model.Resolution, error) {
	current, err := s.store.GetResolution(ctx, listingID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fault.NotFound("no resolution for listing %d", listingID)
	}

	current.Hidden = !current.Hidden
	current.UpdatedAt = now()

	if err := s.store.SaveResolution(ctx, current); err != nil {
		return nil, err
	}

	s.audit(ctx, model.AuditEvent{
		ListingID: listingID,
		Actor:     actor,
		Action:    model.AuditVisibility,
	})
	return current, nil
}

// Audit returns the correction history for a listing, newest first.
func (s *Service) Audit(ctx context.Context, listingID int64, limit int) ([]model.AuditEvent, error) {
	return s.store.ListAudit(ctx, listingID, limit)
}

// audit appends a correction event. Failures are logged, never fatal: the
// primary write already succeeded.
func (s *Service) audit(ctx context.Context, ev model.AuditEvent) {
	ev.ID = uuid.New().String()
	ev.CreatedAt = now()
	if err := s.store.AppendAudit(ctx, ev); err != nil {
		zap.L().Warn("audit append failed",
			zap.Int64("listing_id", ev.ListingID),
			zap.Error(err),
		)
	}
}
