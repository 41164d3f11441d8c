package dedupe

// Config holds the similarity weights and decision thresholds for duplicate
// detection. Keeping them here rather than as inline literals makes the
// decision table unit-testable and tunable.
type Config struct {
	// OverallThreshold is the minimum weighted similarity for a stored truck
	// to count as a match at all.
	OverallThreshold float64 `mapstructure:"overall_threshold"`

	// Field weights for the overall score. The score is normalized over the
	// fields comparable on both sides, so these act as ratios.
	NameWeight     float64 `mapstructure:"name_weight"`
	LocationWeight float64 `mapstructure:"location_weight"`
	ContactWeight  float64 `mapstructure:"contact_weight"`
	MenuWeight     float64 `mapstructure:"menu_weight"`

	// Per-field thresholds for a field to be reported in matched_fields.
	// Contact requires an exact match; menu is exclusive (>).
	NameFieldThreshold     float64 `mapstructure:"name_field_threshold"`
	LocationFieldThreshold float64 `mapstructure:"location_field_threshold"`
	ContactFieldThreshold  float64 `mapstructure:"contact_field_threshold"`
	MenuFieldThreshold     float64 `mapstructure:"menu_field_threshold"`

	// Confidence tiers and recommendation cut-offs on the overall score.
	HighConfidence   float64 `mapstructure:"high_confidence"`
	MediumConfidence float64 `mapstructure:"medium_confidence"`
	MergeThreshold   float64 `mapstructure:"merge_threshold"`
	UpdateThreshold  float64 `mapstructure:"update_threshold"`

	// MaxCandidates bounds how many stored trucks are compared per call.
	MaxCandidates int `mapstructure:"max_candidates"`
}

// DefaultConfig returns the standard duplicate-detection thresholds.
func DefaultConfig() Config {
	return Config{
		OverallThreshold:       0.80,
		NameWeight:             0.4,
		LocationWeight:         0.3,
		ContactWeight:          0.2,
		MenuWeight:             0.1,
		NameFieldThreshold:     0.85,
		LocationFieldThreshold: 0.90,
		ContactFieldThreshold:  1.0,
		MenuFieldThreshold:     0.70,
		HighConfidence:         0.95,
		MediumConfidence:       0.85,
		MergeThreshold:         0.95,
		UpdateThreshold:        0.90,
		MaxCandidates:          1000,
	}
}

func (c Config) withDefaults() Config {
	if c.OverallThreshold <= 0 {
		return DefaultConfig()
	}
	if c.MaxCandidates <= 0 {
		c.MaxCandidates = 1000
	}
	return c
}
