package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/touken-lab/meikan/internal/fault"
	"github.com/touken-lab/meikan/internal/model"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type searchResponse struct {
	Results []artisanSummary `json:"results"`
	Message string           `json:"message,omitempty"`
}

type artisanSummary struct {
	Code        string `json:"code"`
	DisplayName string `json:"display_name"`
	NameKanji   string `json:"name_kanji,omitempty"`
	School      string `json:"school,omitempty"`
	Province    string `json:"province,omitempty"`
	Era         string `json:"era,omitempty"`
	Generation  string `json:"generation,omitempty"`
	Notability  *int   `json:"notability,omitempty"`
	Domain      string `json:"domain"`
	IsSchool    bool   `json:"is_school,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	domain := r.URL.Query().Get("domain")
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, fault.InvalidInput("limit must be an integer"))
			return
		}
		limit = n
	}

	records, err := s.lookup.Search(r.Context(), q, domain, limit)
	if err != nil {
		// An unprovisioned catalog is a soft failure for search: the
		// client gets an explicit signal and an empty result set.
		if fault.IsUnavailable(err) {
			writeJSON(w, http.StatusServiceUnavailable, searchResponse{
				Results: []artisanSummary{},
				Message: "catalog not configured",
			})
			return
		}
		writeError(w, err)
		return
	}

	resp := searchResponse{Results: make([]artisanSummary, 0, len(records))}
	for _, rec := range records {
		resp.Results = append(resp.Results, summarize(rec))
	}
	if len(resp.Results) == 0 {
		resp.Message = "no matches"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleArtisan(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	rec, err := s.catalog.Get(r.Context(), code)
	if err != nil {
		writeError(w, err)
		return
	}
	if rec == nil {
		writeError(w, fault.NotFound("artisan %q not found", code))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleGetResolution(w http.ResponseWriter, r *http.Request) {
	id, err := listingID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolutionResponse(res))
}

type auditResponse struct {
	Events []model.AuditEvent `json:"events"`
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	id, err := listingID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, fault.InvalidInput("limit must be an integer"))
			return
		}
		limit = n
	}
	events, err := s.svc.Audit(r.Context(), id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []model.AuditEvent{}
	}
	writeJSON(w, http.StatusOK, auditResponse{Events: events})
}

type verifyRequest struct {
	Status *string `json:"status"`
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	id, err := listingID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fault.InvalidInput("invalid request body"))
		return
	}

	var status *model.VerifiedStatus
	if req.Status != nil {
		switch v := model.VerifiedStatus(*req.Status); v {
		case model.VerifiedCorrect, model.VerifiedIncorrect:
			status = &v
		default:
			writeError(w, fault.InvalidInput("status must be correct, incorrect, or null"))
			return
		}
	}

	res, err := s.svc.Verify(r.Context(), id, status, actorFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolutionResponse(res))
}

type fixArtisanRequest struct {
	Code       string `json:"code"`
	Confidence string `json:"confidence"`
}

func (s *Server) handleFixArtisan(w http.ResponseWriter, r *http.Request) {
	id, err := listingID(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req fixArtisanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fault.InvalidInput("invalid request body"))
		return
	}

	confidence := model.ConfidenceTier(req.Confidence)
	if req.Confidence == "" {
		confidence = model.ConfidenceLow
	}

	res, err := s.svc.FixArtisan(r.Context(), id, req.Code, confidence, actorFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolutionResponse(res))
}

func (s *Server) handleToggleVisibility(w http.ResponseWriter, r *http.Request) {
	id, err := listingID(r)
	if err != nil {
		writeError(w, err)
		return
	}
	res, err := s.svc.ToggleVisibility(r.Context(), id, actorFrom(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolutionResponse(res))
}

type resolveRequest struct {
	ListingID int64  `json:"listing_id"`
	Title     string `json:"title"`
	Text      string `json:"text"`
	Domain    string `json:"domain"`
	Force     bool   `json:"force"`
}

// handleResolve is the ingestion hook: it registers the listing text and
// runs automated resolution over it.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fault.InvalidInput("invalid request body"))
		return
	}
	if req.ListingID <= 0 {
		writeError(w, fault.InvalidInput("listing_id is required"))
		return
	}

	res, err := s.svc.ResolveListing(r.Context(), model.Listing{
		ID:          req.ListingID,
		Title:       req.Title,
		Description: req.Text,
		Domain:      model.ParseDomainFilter(req.Domain),
	}, req.Force)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resolutionResponse(res))
}

// helpers

func listingID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fault.InvalidInput("invalid listing id %q", raw)
	}
	return id, nil
}

// actorFrom identifies the human behind a correction. The identity provider
// in front of this service sets X-Actor; writes without it are attributed
// to the admin token.
func actorFrom(r *http.Request) string {
	if actor := r.Header.Get("X-Actor"); actor != "" {
		return actor
	}
	return "admin"
}

type resolutionBody struct {
	*model.Resolution
	State model.ResolutionState `json:"state"`
}

func resolutionResponse(res *model.Resolution) resolutionBody {
	return resolutionBody{Resolution: res, State: res.State()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// writeError maps the fault taxonomy onto HTTP statuses with a typed reason
// so reviewers can decide whether a retry makes sense.
func writeError(w http.ResponseWriter, err error) {
	kind := fault.KindOf(err)
	status := http.StatusInternalServerError
	switch kind {
	case fault.KindInvalidInput:
		status = http.StatusBadRequest
	case fault.KindNotFound:
		status = http.StatusNotFound
	case fault.KindUnauthorized:
		status = http.StatusUnauthorized
	case fault.KindForbidden:
		status = http.StatusForbidden
	case fault.KindConflict:
		status = http.StatusConflict
	case fault.KindUnavailable:
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Reason: kind.String()})
}

func summarize(rec model.ArtisanRecord) artisanSummary {
	return artisanSummary{
		Code:        rec.Code,
		DisplayName: rec.DisplayName(),
		NameKanji:   rec.NameKanji,
		School:      rec.School,
		Province:    rec.Province,
		Era:         rec.Era,
		Generation:  rec.Generation,
		Notability:  rec.Notability,
		Domain:      string(rec.Domain),
		IsSchool:    rec.IsSchoolCode,
	}
}
