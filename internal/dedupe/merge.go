package dedupe

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/streeteats/ingest-cli/internal/model"
)

// ErrSourceNotDeleted indicates the merge was persisted onto the target but
// the source record could not be removed. The merged data is safe; the
// caller decides whether to retry the deletion.
var ErrSourceNotDeleted = eris.New("dedupe: merged but source record not deleted")

// MergeResult reports the outcome of merging two stored trucks.
type MergeResult struct {
	TargetID      string             `json:"target_id"`
	SourceID      string             `json:"source_id"`
	Merged        *model.StoredTruck `json:"merged,omitempty"`
	SourceDeleted bool               `json:"source_deleted"`
}

// MergeDuplicates merges the source truck into the target: target's
// non-empty scalars win, arrays are unioned, and the source record is
// removed. Merging a record into itself is a guarded no-op.
//
// Merge-then-delete is two storage calls; a failed delete after a persisted
// merge is reported as ErrSourceNotDeleted rather than swallowed.
func (r *Resolver) MergeDuplicates(ctx context.Context, targetID, sourceID string) (*MergeResult, error) {
	result := &MergeResult{TargetID: targetID, SourceID: sourceID}

	if targetID == sourceID {
		target, err := r.storage.GetTruck(ctx, targetID)
		if err != nil {
			return nil, eris.Wrapf(err, "dedupe: load truck %s", targetID)
		}
		result.Merged = target
		return result, nil
	}

	target, err := r.storage.GetTruck(ctx, targetID)
	if err != nil {
		return nil, eris.Wrapf(err, "dedupe: load merge target %s", targetID)
	}
	source, err := r.storage.GetTruck(ctx, sourceID)
	if err != nil {
		return nil, eris.Wrapf(err, "dedupe: load merge source %s", sourceID)
	}

	MergeRecord(target, &source.FoodTruck)

	if err := r.storage.UpdateTruck(ctx, target); err != nil {
		return nil, eris.Wrapf(err, "dedupe: persist merge onto %s", targetID)
	}
	result.Merged = target

	if err := r.storage.DeleteTruck(ctx, sourceID); err != nil {
		zap.L().Error("dedupe: merge persisted but source delete failed",
			zap.String("target_id", targetID),
			zap.String("source_id", sourceID),
			zap.Error(err),
		)
		return result, eris.Wrap(ErrSourceNotDeleted, err.Error())
	}
	result.SourceDeleted = true

	zap.L().Info("dedupe: merged duplicate trucks",
		zap.String("target_id", targetID),
		zap.String("source_id", sourceID),
	)
	return result, nil
}

// MergeRecord folds source into target in place. The target's non-empty
// scalar fields win; array fields are unioned; contact and social blocks
// merge field by field with the target overriding; review_count takes the
// maximum. last_scraped_at is stamped with the current time.
func MergeRecord(target *model.StoredTruck, source *model.FoodTruck) {
	if target.Name == "" {
		target.Name = source.Name
	}
	if target.Description == "" {
		target.Description = source.Description
	}
	if target.PriceRange == "" {
		target.PriceRange = source.PriceRange
	}
	if target.CurrentLocation == nil {
		target.CurrentLocation = source.CurrentLocation
	}

	if len(target.CuisineType) == 0 {
		target.CuisineType = source.CuisineType
	}
	if len(target.Specialties) == 0 {
		target.Specialties = source.Specialties
	}
	if len(target.Menu) == 0 {
		target.Menu = source.Menu
	}
	if len(target.ScheduledLocations) == 0 {
		target.ScheduledLocations = source.ScheduledLocations
	}
	if len(target.OperatingHours) == 0 {
		target.OperatingHours = source.OperatingHours
	}

	target.SourceURLs = unionStrings(target.SourceURLs, source.SourceURLs)
	target.ContactInfo = mergeContact(target.ContactInfo, source.ContactInfo)
	target.SocialMedia = mergeSocial(target.SocialMedia, source.SocialMedia)

	if source.ReviewCount > target.ReviewCount {
		target.ReviewCount = source.ReviewCount
	}

	target.LastScrapedAt = time.Now().UTC()
}

func unionStrings(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, s := range a {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func mergeContact(target, source model.ContactInfo) model.ContactInfo {
	if target.Phone == "" {
		target.Phone = source.Phone
	}
	if target.Email == "" {
		target.Email = source.Email
	}
	if target.Website == "" {
		target.Website = source.Website
	}
	return target
}

func mergeSocial(target, source model.SocialMedia) model.SocialMedia {
	if target.Instagram == "" {
		target.Instagram = source.Instagram
	}
	if target.Facebook == "" {
		target.Facebook = source.Facebook
	}
	if target.Twitter == "" {
		target.Twitter = source.Twitter
	}
	if target.TikTok == "" {
		target.TikTok = source.TikTok
	}
	if target.Yelp == "" {
		target.Yelp = source.Yelp
	}
	return target
}
