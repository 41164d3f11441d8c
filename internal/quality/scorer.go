// Package quality implements the rule-based completeness scorer. Scoring is
// a pure function of a record's field values so the ingestion path and the
// nightly batch re-scorer can never diverge.
package quality

import (
	"math"
	"regexp"
	"unicode/utf8"

	"github.com/streeteats/ingest-cli/internal/model"
)

// Severity classifies a validation rule.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Grade is the letter grade derived from a quality score.
type Grade string

const (
	GradeA Grade = "A"
	GradeB Grade = "B"
	GradeC Grade = "C"
	GradeD Grade = "D"
	GradeF Grade = "F"
)

// Config holds the point values for each rule severity. Keeping these in a
// struct rather than scattered literals makes the weighting unit-testable
// and tunable without touching control flow.
type Config struct {
	CriticalPoints float64 `mapstructure:"critical_points"`
	WarningPoints  float64 `mapstructure:"warning_points"`
	InfoPoints     float64 `mapstructure:"info_points"`
	MaxNameLength  int     `mapstructure:"max_name_length"`
}

// DefaultConfig returns the standard rule weighting.
func DefaultConfig() Config {
	return Config{
		CriticalPoints: 1.0,
		WarningPoints:  0.5,
		InfoPoints:     0.1,
		MaxNameLength:  100,
	}
}

// RuleResult records the outcome of a single rule for audit.
type RuleResult struct {
	Rule     string   `json:"rule"`
	Severity Severity `json:"severity"`
	Points   float64  `json:"points"`
	Passed   bool     `json:"passed"`
	Message  string   `json:"message,omitempty"`
}

// Validation groups failed rules by severity.
type Validation struct {
	Critical []string `json:"critical"`
	Warnings []string `json:"warnings"`
	Info     []string `json:"info"`
}

// Breakdown summarizes how a score was computed.
type Breakdown struct {
	CriticalPassed      int     `json:"criticalPassed"`
	WarningsPassed      int     `json:"warningsPassed"`
	TotalPossiblePoints float64 `json:"totalPossiblePoints"`
	ActualPoints        float64 `json:"actualPoints"`
}

// ScoreResult is the full output of scoring one record.
type ScoreResult struct {
	Score     float64      `json:"score"` // 0-100
	Grade     Grade        `json:"grade"`
	Breakdown Breakdown    `json:"breakdown"`
	Rules     []RuleResult `json:"rules"`
}

// Scorer evaluates the fixed rule battery against stored trucks.
type Scorer struct {
	cfg      Config
	nameRule *regexp.Regexp
}

// allowed name characters: letters, digits, whitespace, and common business
// name punctuation.
var namePattern = regexp.MustCompile(`^[\p{L}\p{N}\s&'’.,!()\-]+$`)

// NewScorer creates a Scorer with the given rule weighting.
func NewScorer(cfg Config) *Scorer {
	if cfg.CriticalPoints <= 0 {
		cfg = DefaultConfig()
	}
	if cfg.MaxNameLength <= 0 {
		cfg.MaxNameLength = 100
	}
	return &Scorer{cfg: cfg, nameRule: namePattern}
}

type rule struct {
	name     string
	severity Severity
	message  string
	check    func(*model.StoredTruck) bool
}

func (s *Scorer) rules() []rule {
	return []rule{
		{
			name:     "name_present",
			severity: SeverityCritical,
			message:  "name is empty",
			check:    func(t *model.StoredTruck) bool { return t.Name != "" },
		},
		{
			name:     "id_present",
			severity: SeverityCritical,
			message:  "record has no identifier",
			check:    func(t *model.StoredTruck) bool { return t.ID != "" },
		},
		{
			name:     "name_well_formed",
			severity: SeverityCritical,
			message:  "name contains disallowed characters or is too long",
			check: func(t *model.StoredTruck) bool {
				if t.Name == "" || utf8.RuneCountInString(t.Name) > s.cfg.MaxNameLength {
					return false
				}
				return s.nameRule.MatchString(t.Name)
			},
		},
		{
			name:     "price_range_valid",
			severity: SeverityWarning,
			message:  "price_range is not one of $, $$, $$$, $$$$",
			check:    func(t *model.StoredTruck) bool { return model.ValidPriceRange(t.PriceRange) },
		},
		{
			name:     "coordinates_have_address",
			severity: SeverityWarning,
			message:  "coordinates present without an address",
			check: func(t *model.StoredTruck) bool {
				if t.CurrentLocation == nil {
					return true
				}
				return t.CurrentLocation.Address != ""
			},
		},
		{
			name:     "contact_present",
			severity: SeverityWarning,
			message:  "no phone, email, or website",
			check:    func(t *model.StoredTruck) bool { return !t.ContactInfo.Empty() },
		},
		{
			name:     "cuisine_present",
			severity: SeverityWarning,
			message:  "cuisine_type is empty",
			check:    func(t *model.StoredTruck) bool { return len(t.CuisineType) > 0 },
		},
		{
			name:     "description_present",
			severity: SeverityInfo,
			message:  "description is empty",
			check:    func(t *model.StoredTruck) bool { return t.Description != "" },
		},
		{
			name:     "hours_present",
			severity: SeverityInfo,
			message:  "no operating hours",
			check: func(t *model.StoredTruck) bool {
				for _, h := range t.OperatingHours {
					if h != nil {
						return true
					}
				}
				return false
			},
		},
		{
			name:     "social_present",
			severity: SeverityInfo,
			message:  "no social media handles",
			check:    func(t *model.StoredTruck) bool { return !t.SocialMedia.Empty() },
		},
		{
			name:     "menu_present",
			severity: SeverityInfo,
			message:  "menu is empty",
			check:    func(t *model.StoredTruck) bool { return len(t.Menu) > 0 },
		},
	}
}

func (s *Scorer) points(sev Severity) float64 {
	switch sev {
	case SeverityCritical:
		return s.cfg.CriticalPoints
	case SeverityWarning:
		return s.cfg.WarningPoints
	default:
		return s.cfg.InfoPoints
	}
}

// Validate runs the rule battery and returns the failed rules grouped by
// severity.
func (s *Scorer) Validate(t *model.StoredTruck) Validation {
	var v Validation
	for _, r := range s.rules() {
		if r.check(t) {
			continue
		}
		switch r.severity {
		case SeverityCritical:
			v.Critical = append(v.Critical, r.message)
		case SeverityWarning:
			v.Warnings = append(v.Warnings, r.message)
		default:
			v.Info = append(v.Info, r.message)
		}
	}
	return v
}

// Score computes the 0-100 completeness score, letter grade, and per-rule
// breakdown for a record.
func (s *Scorer) Score(t *model.StoredTruck) ScoreResult {
	var result ScoreResult
	var possible, actual float64

	for _, r := range s.rules() {
		pts := s.points(r.severity)
		possible += pts

		passed := r.check(t)
		if passed {
			actual += pts
			switch r.severity {
			case SeverityCritical:
				result.Breakdown.CriticalPassed++
			case SeverityWarning:
				result.Breakdown.WarningsPassed++
			}
		}

		rr := RuleResult{
			Rule:     r.name,
			Severity: r.severity,
			Points:   pts,
			Passed:   passed,
		}
		if !passed {
			rr.Message = r.message
		}
		result.Rules = append(result.Rules, rr)
	}

	result.Breakdown.TotalPossiblePoints = possible
	result.Breakdown.ActualPoints = actual

	result.Score = math.Round(100*actual/possible*100) / 100
	result.Grade = gradeFor(result.Score)
	return result
}

// NormalizedScore returns the 0-1 score stored denormalized on the record as
// data_quality_score.
func (r ScoreResult) NormalizedScore() float64 {
	return r.Score / 100
}

func gradeFor(score float64) Grade {
	switch {
	case score >= 90:
		return GradeA
	case score >= 80:
		return GradeB
	case score >= 70:
		return GradeC
	case score >= 60:
		return GradeD
	default:
		return GradeF
	}
}
