// Package dedupe decides whether a freshly extracted truck is the same
// real-world entity as one already stored, and what to do about it.
package dedupe

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"

	"github.com/streeteats/ingest-cli/internal/model"
	"github.com/streeteats/ingest-cli/internal/similarity"
	"github.com/streeteats/ingest-cli/internal/store"
)

// Confidence buckets an overall similarity score.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Recommendation is the suggested handling for a single match.
type Recommendation string

const (
	RecommendMerge        Recommendation = "merge"
	RecommendUpdate       Recommendation = "update"
	RecommendSkip         Recommendation = "skip"
	RecommendManualReview Recommendation = "manual_review"
)

// Action is the final storage decision for a candidate record.
type Action string

const (
	ActionCreate       Action = "create"
	ActionMerge        Action = "merge"
	ActionUpdate       Action = "update"
	ActionSkip         Action = "skip"
	ActionManualReview Action = "manual_review"
)

// Match is the comparison result against one stored truck.
type Match struct {
	Truck          *model.StoredTruck `json:"truck"`
	Similarity     float64            `json:"similarity"`
	MatchedFields  []string           `json:"matched_fields"`
	Confidence     Confidence         `json:"confidence"`
	Recommendation Recommendation     `json:"recommendation"`
}

// DetectionResult is the full output of one duplicate check.
type DetectionResult struct {
	IsDuplicate bool    `json:"is_duplicate"`
	Matches     []Match `json:"matches"`
	BestMatch   *Match  `json:"best_match,omitempty"`
	Action      Action  `json:"action"`

	// FailureReason is set when comparison infrastructure failed and the
	// resolver failed open to create.
	FailureReason string `json:"failure_reason,omitempty"`
}

// Storage is the record-store surface the resolver needs. store.Store
// satisfies it.
type Storage interface {
	ListTrucks(ctx context.Context, filter store.TruckFilter) ([]model.StoredTruck, error)
	GetTruck(ctx context.Context, id string) (*model.StoredTruck, error)
	GetTruckByURL(ctx context.Context, sourceURL string) (*model.StoredTruck, error)
	UpdateTruck(ctx context.Context, truck *model.StoredTruck) error
	DeleteTruck(ctx context.Context, id string) error
}

// Resolver screens candidate records against stored trucks.
type Resolver struct {
	storage Storage
	cfg     Config
}

// NewResolver creates a Resolver backed by the given storage.
func NewResolver(storage Storage, cfg Config) *Resolver {
	return &Resolver{storage: storage, cfg: cfg.withDefaults()}
}

// CheckForDuplicates compares the candidate against every stored truck and
// returns all matches above the overall threshold, sorted by similarity
// descending, plus the chosen action.
//
// On storage failure the resolver fails open: ingestion must never drop a
// truck because comparison infrastructure hiccuped. The failure is surfaced
// via FailureReason for the run summary.
func (r *Resolver) CheckForDuplicates(ctx context.Context, candidate *model.FoodTruck) *DetectionResult {
	// A record already stored for one of the candidate's source URLs is the
	// same entity by definition; re-running a completed job must update it,
	// never create a second copy.
	for _, u := range candidate.SourceURLs {
		existing, err := r.storage.GetTruckByURL(ctx, u)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			zap.L().Warn("dedupe: source url lookup failed, failing open to create",
				zap.String("source_url", u),
				zap.Error(err),
			)
			return &DetectionResult{
				Action:        ActionCreate,
				FailureReason: err.Error(),
			}
		}

		m := r.compare(candidate, existing)
		m.MatchedFields = append(m.MatchedFields, "source_url")
		m.Confidence = ConfidenceHigh
		m.Recommendation = RecommendUpdate
		return &DetectionResult{
			IsDuplicate: true,
			Matches:     []Match{m},
			BestMatch:   &m,
			Action:      ActionUpdate,
		}
	}

	existing, err := r.storage.ListTrucks(ctx, store.TruckFilter{Limit: r.cfg.MaxCandidates})
	if err != nil {
		zap.L().Warn("dedupe: listing stored trucks failed, failing open to create",
			zap.String("candidate", candidate.Name),
			zap.Error(err),
		)
		return &DetectionResult{
			Action:        ActionCreate,
			FailureReason: err.Error(),
		}
	}

	result := &DetectionResult{Action: ActionCreate}
	for i := range existing {
		m := r.compare(candidate, &existing[i])
		if m.Similarity >= r.cfg.OverallThreshold {
			result.Matches = append(result.Matches, m)
		}
	}

	if len(result.Matches) == 0 {
		return result
	}

	sort.SliceStable(result.Matches, func(i, j int) bool {
		return result.Matches[i].Similarity > result.Matches[j].Similarity
	})

	result.IsDuplicate = true
	result.BestMatch = &result.Matches[0]

	// Only a high-confidence best match is trusted to act on its own
	// recommendation; everything else goes to a human.
	if result.BestMatch.Confidence == ConfidenceHigh {
		result.Action = Action(result.BestMatch.Recommendation)
	} else {
		result.Action = ActionManualReview
	}

	zap.L().Debug("dedupe: candidate matched stored trucks",
		zap.String("candidate", candidate.Name),
		zap.Int("matches", len(result.Matches)),
		zap.Float64("best_similarity", result.BestMatch.Similarity),
		zap.String("action", string(result.Action)),
	)

	return result
}

// compare scores the candidate against one stored truck. The overall score
// is normalized over the fields comparable on both sides, keeping the
// configured weight ratios: a sparse record is judged on the data it has,
// not penalized for fields neither side carries.
func (r *Resolver) compare(candidate *model.FoodTruck, existing *model.StoredTruck) Match {
	nameSim := similarity.String(candidate.Name, existing.Name)
	locSim := similarity.Location(candidate.CurrentLocation, existing.CurrentLocation)
	contactSim := similarity.Contact(candidate.ContactInfo, existing.ContactInfo)
	menuSim := similarity.Menu(candidate.Menu, existing.Menu)

	sum := r.cfg.NameWeight * nameSim
	weight := r.cfg.NameWeight
	if candidate.CurrentLocation != nil && existing.CurrentLocation != nil {
		sum += r.cfg.LocationWeight * locSim
		weight += r.cfg.LocationWeight
	}
	if similarity.ContactComparable(candidate.ContactInfo, existing.ContactInfo) {
		sum += r.cfg.ContactWeight * contactSim
		weight += r.cfg.ContactWeight
	}
	if len(candidate.Menu) > 0 && len(existing.Menu) > 0 {
		sum += r.cfg.MenuWeight * menuSim
		weight += r.cfg.MenuWeight
	}

	var overall float64
	if weight > 0 {
		overall = sum / weight
	}

	var matched []string
	if nameSim >= r.cfg.NameFieldThreshold {
		matched = append(matched, "name")
	}
	if locSim >= r.cfg.LocationFieldThreshold {
		matched = append(matched, "location")
	}
	if contactSim >= r.cfg.ContactFieldThreshold {
		matched = append(matched, "contact")
	}
	if menuSim > r.cfg.MenuFieldThreshold {
		matched = append(matched, "menu")
	}

	return Match{
		Truck:          existing,
		Similarity:     overall,
		MatchedFields:  matched,
		Confidence:     r.confidence(overall),
		Recommendation: r.recommendation(overall),
	}
}

func (r *Resolver) confidence(overall float64) Confidence {
	switch {
	case overall >= r.cfg.HighConfidence:
		return ConfidenceHigh
	case overall >= r.cfg.MediumConfidence:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

func (r *Resolver) recommendation(overall float64) Recommendation {
	switch {
	case overall >= r.cfg.MergeThreshold:
		return RecommendMerge
	case overall >= r.cfg.UpdateThreshold:
		return RecommendUpdate
	case overall >= r.cfg.OverallThreshold:
		return RecommendManualReview
	default:
		return RecommendSkip
	}
}
