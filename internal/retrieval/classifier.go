package retrieval

import "github.com/touken-lab/meikan/internal/model"

// Classify maps a ranked candidate list to a confidence tier. Pure function
// of the top score, the margin to the runner-up, and the top candidate's
// retrieval method; it never auto-confirms a match.
//
//   - NONE: empty candidate list.
//   - HIGH: top score at or above HighScore AND either an exact-identifier
//     match or a margin of at least HighMargin over the runner-up.
//   - MEDIUM: top score at or above MediumScore but thin margin or a fuzzy
//     method.
//   - LOW: weak textual overlap only.
func Classify(candidates []model.Candidate, cfg Config) model.ConfidenceTier {
	if len(candidates) == 0 {
		return model.ConfidenceNone
	}

	top := candidates[0]

	// A sole candidate has no runner-up to be confused with; treat the
	// margin as its full score.
	margin := top.Score
	if len(candidates) > 1 {
		margin = top.Score - candidates[1].Score
	}

	switch {
	case top.Score >= cfg.HighScore && (top.Method == MethodExactCode || margin >= cfg.HighMargin):
		return model.ConfidenceHigh
	case top.Score >= cfg.MediumScore:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}
