package dedupe

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streeteats/ingest-cli/internal/model"
)

func TestMergeDuplicates_FoldsSourceIntoTarget(t *testing.T) {
	target := storedBBQ()
	target.Description = ""
	target.SocialMedia = model.SocialMedia{}

	source := &model.StoredTruck{
		ID: "bbq-dup",
		FoodTruck: model.FoodTruck{
			Name:        "Rolling Thunder Barbecue",
			Description: "Slow-smoked brisket.",
			ContactInfo: model.ContactInfo{Email: "hello@rollingthunderbbq.com"},
			SocialMedia: model.SocialMedia{Instagram: "@rollingthunderbbq"},
			SourceURLs:  []string{"https://directory.example.com/bbq"},
			ReviewCount: 42,
		},
	}

	storage := newFakeStorage(target, source)
	r := NewResolver(storage, DefaultConfig())

	result, err := r.MergeDuplicates(context.Background(), "bbq-1", "bbq-dup")
	require.NoError(t, err)
	require.NotNil(t, result.Merged)
	assert.True(t, result.SourceDeleted)

	merged := result.Merged
	// target scalars win; empty target fields fill from source
	assert.Equal(t, "Rolling Thunder BBQ", merged.Name)
	assert.Equal(t, "Slow-smoked brisket.", merged.Description)
	// contact merges field by field
	assert.Equal(t, "843-555-0199", merged.ContactInfo.Phone)
	assert.Equal(t, "hello@rollingthunderbbq.com", merged.ContactInfo.Email)
	assert.Equal(t, "@rollingthunderbbq", merged.SocialMedia.Instagram)
	// source URLs union
	assert.ElementsMatch(t,
		[]string{"https://example.com/bbq", "https://directory.example.com/bbq"},
		merged.SourceURLs,
	)
	assert.Equal(t, 42, merged.ReviewCount)
	assert.False(t, merged.LastScrapedAt.IsZero())

	// source record is gone
	_, err = storage.GetTruck(context.Background(), "bbq-dup")
	assert.Error(t, err)
}

func TestMergeDuplicates_SelfMergeIsNoOp(t *testing.T) {
	target := storedBBQ()
	storage := newFakeStorage(target)
	r := NewResolver(storage, DefaultConfig())

	result, err := r.MergeDuplicates(context.Background(), "bbq-1", "bbq-1")
	require.NoError(t, err)
	assert.Equal(t, "bbq-1", result.Merged.ID)
	assert.False(t, result.SourceDeleted)
	assert.Zero(t, storage.updateCalls)
	assert.Zero(t, storage.deleteCalls)
}

func TestMergeDuplicates_DeleteFailureIsReported(t *testing.T) {
	target := storedBBQ()
	source := storedBBQ()
	source.ID = "bbq-dup"
	source.SourceURLs = []string{"https://directory.example.com/bbq"}

	storage := newFakeStorage(target, source)
	storage.deleteErr = eris.New("disk full")
	r := NewResolver(storage, DefaultConfig())

	result, err := r.MergeDuplicates(context.Background(), "bbq-1", "bbq-dup")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSourceNotDeleted)
	// the merge itself was persisted
	require.NotNil(t, result)
	assert.NotNil(t, result.Merged)
	assert.False(t, result.SourceDeleted)
	assert.Equal(t, 1, storage.updateCalls)
}

func TestMergeDuplicates_MissingTarget(t *testing.T) {
	storage := newFakeStorage(storedBBQ())
	r := NewResolver(storage, DefaultConfig())

	result, err := r.MergeDuplicates(context.Background(), "nope", "bbq-1")
	assert.Error(t, err)
	assert.Nil(t, result)
}

func TestMergeRecord_ArraysPreferTarget(t *testing.T) {
	target := storedBBQ()
	target.CuisineType = []string{"bbq"}

	source := &model.FoodTruck{
		CuisineType: []string{"southern", "bbq"},
		Menu:        []model.MenuCategory{{Name: "Sides"}},
	}

	MergeRecord(target, source)

	assert.Equal(t, []string{"bbq"}, target.CuisineType)
	// target menu was non-empty, so it is kept as-is
	assert.Len(t, target.Menu, 2)
}

func TestMergeRecord_FillsEmptyTargetFields(t *testing.T) {
	target := &model.StoredTruck{ID: "x", FoodTruck: model.FoodTruck{Name: "X"}}
	source := &model.FoodTruck{
		Description:     "From source",
		PriceRange:      model.PriceCheap,
		CuisineType:     []string{"fusion"},
		CurrentLocation: &model.Location{Lat: 1, Lng: 2},
	}

	MergeRecord(target, source)

	assert.Equal(t, "From source", target.Description)
	assert.Equal(t, model.PriceCheap, target.PriceRange)
	assert.Equal(t, []string{"fusion"}, target.CuisineType)
	require.NotNil(t, target.CurrentLocation)
	assert.Equal(t, 1.0, target.CurrentLocation.Lat)
}
