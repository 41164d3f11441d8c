package extract

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streeteats/ingest-cli/internal/model"
)

const srcURL = "https://example.com/bbq"

func parseOK(t *testing.T, text string) *model.FoodTruck {
	t.Helper()
	truck, err := ParseTruck(text, srcURL, time.Now().UTC())
	require.NoError(t, err)
	return truck
}

func TestParseTruck_FullRecord(t *testing.T) {
	truck := parseOK(t, `{
		"name": "Rolling Thunder BBQ",
		"description": "Slow-smoked brisket.",
		"cuisine_type": ["bbq", "southern"],
		"price_range": "$$",
		"current_location": {"lat": 32.78, "lng": -79.93, "address": "99 Market St"},
		"operating_hours": {
			"monday": {"open": "11:00", "close": "20:00"},
			"sunday": {"closed": true}
		},
		"menu": [{"name": "Plates", "items": [{"name": "Brisket Plate", "price": 14.5}]}],
		"contact_info": {"phone": "843-555-0199", "website": "https://rollingthunderbbq.com"},
		"social_media": {"instagram": "@rollingthunderbbq"},
		"review_count": 128
	}`)

	assert.Equal(t, "Rolling Thunder BBQ", truck.Name)
	assert.Equal(t, model.PriceModerate, truck.PriceRange)
	assert.Equal(t, []string{"bbq", "southern"}, truck.CuisineType)
	require.NotNil(t, truck.CurrentLocation)
	assert.InDelta(t, 32.78, truck.CurrentLocation.Lat, 0.001)
	assert.Equal(t, []string{srcURL}, truck.SourceURLs)
	assert.Equal(t, 128, truck.ReviewCount)
	require.Len(t, truck.Menu, 1)
	require.Len(t, truck.Menu[0].Items, 1)
	require.NotNil(t, truck.Menu[0].Items[0].Price)
	assert.Equal(t, 14.5, *truck.Menu[0].Items[0].Price)
}

func TestParseTruck_MissingNameFails(t *testing.T) {
	_, err := ParseTruck(`{"description": "no name"}`, srcURL, time.Now())
	assert.Error(t, err)

	_, err = ParseTruck(`{"name": "   "}`, srcURL, time.Now())
	assert.Error(t, err)
}

func TestParseTruck_InvalidJSONFails(t *testing.T) {
	_, err := ParseTruck(`not json at all`, srcURL, time.Now())
	assert.Error(t, err)
}

func TestParseTruck_StripsCodeFences(t *testing.T) {
	truck := parseOK(t, "```json\n{\"name\": \"Seoul Food\"}\n```")
	assert.Equal(t, "Seoul Food", truck.Name)

	truck = parseOK(t, "```\n{\"name\": \"Seoul Food\"}\n```")
	assert.Equal(t, "Seoul Food", truck.Name)
}

func TestParseTruck_InvalidPriceRangeDropped(t *testing.T) {
	truck := parseOK(t, `{"name": "X", "price_range": "cheap"}`)
	assert.Empty(t, truck.PriceRange)
}

func TestParseTruck_OutOfRangeCoordinatesDropped(t *testing.T) {
	truck := parseOK(t, `{"name": "X", "current_location": {"lat": 91.0, "lng": 0.0}}`)
	assert.Nil(t, truck.CurrentLocation)

	truck = parseOK(t, `{"name": "X", "current_location": {"lat": 0.0, "lng": -181.0}}`)
	assert.Nil(t, truck.CurrentLocation)
}

func TestParseTruck_NumericStringsCoerced(t *testing.T) {
	truck := parseOK(t, `{
		"name": "X",
		"current_location": {"lat": "32.78", "lng": "-79.93"},
		"menu": [{"name": "Plates", "items": [{"name": "Plate", "price": "$12.50"}]}],
		"review_count": "42"
	}`)

	require.NotNil(t, truck.CurrentLocation)
	assert.InDelta(t, 32.78, truck.CurrentLocation.Lat, 0.001)
	require.NotNil(t, truck.Menu[0].Items[0].Price)
	assert.Equal(t, 12.50, *truck.Menu[0].Items[0].Price)
	assert.Equal(t, 42, truck.ReviewCount)
}

func TestParseTruck_HoursNormalizedToSevenDays(t *testing.T) {
	truck := parseOK(t, `{
		"name": "X",
		"operating_hours": {
			"monday": {"open": "11:00", "close": "20:00"},
			"sunday": {"closed": true},
			"brunchday": {"open": "10:00", "close": "14:00"}
		}
	}`)

	require.Len(t, truck.OperatingHours, 7)
	require.NotNil(t, truck.OperatingHours["monday"])
	assert.Equal(t, "11:00", truck.OperatingHours["monday"].Open)
	require.NotNil(t, truck.OperatingHours["sunday"])
	assert.True(t, truck.OperatingHours["sunday"].Closed)
	assert.Nil(t, truck.OperatingHours["tuesday"])
	_, hasBogusDay := truck.OperatingHours["brunchday"]
	assert.False(t, hasBogusDay)
}

func TestParseTruck_ClosedWinsOverTimes(t *testing.T) {
	truck := parseOK(t, `{
		"name": "X",
		"operating_hours": {"monday": {"closed": true, "open": "11:00", "close": "20:00"}}
	}`)

	mon := truck.OperatingHours["monday"]
	require.NotNil(t, mon)
	assert.True(t, mon.Closed)
	assert.Empty(t, mon.Open)
	assert.Empty(t, mon.Close)
}

func TestParseTruck_HalfSpecifiedDayDropped(t *testing.T) {
	truck := parseOK(t, `{
		"name": "X",
		"operating_hours": {
			"monday": {"open": "11:00"},
			"friday": {"open": "11:00", "close": "20:00"}
		}
	}`)

	assert.Nil(t, truck.OperatingHours["monday"])
	assert.NotNil(t, truck.OperatingHours["friday"])
}

func TestParseTruck_AllUnknownHoursOmitted(t *testing.T) {
	truck := parseOK(t, `{"name": "X", "operating_hours": {"monday": {"open": "11:00"}}}`)
	assert.Nil(t, truck.OperatingHours)
}

func TestParseTruck_MalformedMenuEntriesDropped(t *testing.T) {
	truck := parseOK(t, `{
		"name": "X",
		"menu": [
			"just a string",
			{"items": [{"name": "Orphan"}]},
			{"name": "Tacos", "items": [{"name": "Al Pastor"}, {"price": 3.5}]}
		]
	}`)

	require.Len(t, truck.Menu, 1)
	assert.Equal(t, "Tacos", truck.Menu[0].Name)
	require.Len(t, truck.Menu[0].Items, 1)
	assert.Equal(t, "Al Pastor", truck.Menu[0].Items[0].Name)
}

func TestParseTruck_NegativePriceDropped(t *testing.T) {
	truck := parseOK(t, `{
		"name": "X",
		"menu": [{"name": "Plates", "items": [{"name": "Plate", "price": -4}]}]
	}`)
	assert.Nil(t, truck.Menu[0].Items[0].Price)
}

func TestParseTruck_WrongTypesIgnored(t *testing.T) {
	truck := parseOK(t, `{
		"name": "X",
		"description": 12,
		"cuisine_type": "bbq",
		"review_count": {"count": 4}
	}`)

	assert.Empty(t, truck.Description)
	assert.Nil(t, truck.CuisineType)
	assert.Zero(t, truck.ReviewCount)
}
