package retrieval

import "time"

// Defaults for retrieval and classification tuning. The confidence
// thresholds were calibrated against a hand-labeled sample of resolved
// listings, not derived from first principles; adjust via config, not here.
const (
	DefaultMaxCandidates = 10
	DefaultFuzzyFloor    = 0.60
	DefaultHighScore     = 0.90
	DefaultHighMargin    = 0.25
	DefaultMediumScore   = 0.75
	DefaultSnapshotTTL   = 5 * time.Minute
)

// Config holds retrieval and classification tuning.
type Config struct {
	MaxCandidates   int     `yaml:"max_candidates" mapstructure:"max_candidates"`
	FuzzyFloor      float64 `yaml:"fuzzy_floor" mapstructure:"fuzzy_floor"`
	HighScore       float64 `yaml:"high_score" mapstructure:"high_score"`
	HighMargin      float64 `yaml:"high_margin" mapstructure:"high_margin"`
	MediumScore     float64 `yaml:"medium_score" mapstructure:"medium_score"`
	SnapshotTTLSecs int     `yaml:"snapshot_ttl_secs" mapstructure:"snapshot_ttl_secs"`
}

// DefaultConfig returns the calibrated defaults.
func DefaultConfig() Config {
	return Config{
		MaxCandidates:   DefaultMaxCandidates,
		FuzzyFloor:      DefaultFuzzyFloor,
		HighScore:       DefaultHighScore,
		HighMargin:      DefaultHighMargin,
		MediumScore:     DefaultMediumScore,
		SnapshotTTLSecs: int(DefaultSnapshotTTL / time.Second),
	}
}

// SnapshotTTL returns the catalog snapshot TTL as a duration.
func (c Config) SnapshotTTL() time.Duration {
	if c.SnapshotTTLSecs <= 0 {
		return DefaultSnapshotTTL
	}
	return time.Duration(c.SnapshotTTLSecs) * time.Second
}
