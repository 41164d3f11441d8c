package extract

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/streeteats/ingest-cli/internal/model"
)

// rawTruck mirrors the model output with loose typing so that numeric
// strings, missing fields, and malformed sub-objects survive unmarshal and
// can be coerced or dropped individually.
type rawTruck struct {
	Name               any                `json:"name"`
	Description        any                `json:"description"`
	CuisineType        any                `json:"cuisine_type"`
	PriceRange         any                `json:"price_range"`
	Specialties        any                `json:"specialties"`
	CurrentLocation    *rawLocation       `json:"current_location"`
	ScheduledLocations []rawLocation      `json:"scheduled_locations"`
	OperatingHours     map[string]*rawDay `json:"operating_hours"`
	Menu               []json.RawMessage  `json:"menu"`
	ContactInfo        rawContact         `json:"contact_info"`
	SocialMedia        rawSocial          `json:"social_media"`
	ReviewCount        any                `json:"review_count"`
}

type rawLocation struct {
	Lat     any `json:"lat"`
	Lng     any `json:"lng"`
	Address any `json:"address"`
}

type rawDay struct {
	Closed any `json:"closed"`
	Open   any `json:"open"`
	Close  any `json:"close"`
}

type rawCategory struct {
	Name  any       `json:"name"`
	Items []rawItem `json:"items"`
}

type rawItem struct {
	Name        any `json:"name"`
	Price       any `json:"price"`
	Description any `json:"description"`
	DietaryTags any `json:"dietary_tags"`
}

type rawContact struct {
	Phone   any `json:"phone"`
	Email   any `json:"email"`
	Website any `json:"website"`
}

type rawSocial struct {
	Instagram any `json:"instagram"`
	Facebook  any `json:"facebook"`
	Twitter   any `json:"twitter"`
	TikTok    any `json:"tiktok"`
	Yelp      any `json:"yelp"`
}

// ParseTruck parses model output into a FoodTruck, coercing loose types and
// dropping malformed sub-records with a warning rather than aborting the
// whole record. A missing or empty name is the only fatal condition.
func ParseTruck(text, sourceURL string, now time.Time) (*model.FoodTruck, error) {
	jsonText := stripFences(text)

	var raw rawTruck
	if err := json.Unmarshal([]byte(jsonText), &raw); err != nil {
		return nil, eris.Wrap(err, "parse: invalid json")
	}

	name := strings.TrimSpace(asString(raw.Name))
	if name == "" {
		return nil, eris.New("parse: extracted record has no name")
	}

	truck := &model.FoodTruck{
		Name:          name,
		Description:   strings.TrimSpace(asString(raw.Description)),
		CuisineType:   asStringSlice(raw.CuisineType),
		Specialties:   asStringSlice(raw.Specialties),
		SourceURLs:    []string{sourceURL},
		LastScrapedAt: now,
	}

	if pr := model.PriceRange(strings.TrimSpace(asString(raw.PriceRange))); model.ValidPriceRange(pr) {
		truck.PriceRange = pr
	} else if pr != "" {
		zap.L().Warn("parse: dropping invalid price_range",
			zap.String("source_url", sourceURL),
			zap.String("price_range", string(pr)),
		)
	}

	if loc := parseLocation(raw.CurrentLocation, now); loc != nil {
		truck.CurrentLocation = loc
	}
	for i := range raw.ScheduledLocations {
		if loc := parseLocation(&raw.ScheduledLocations[i], now); loc != nil {
			truck.ScheduledLocations = append(truck.ScheduledLocations, *loc)
		}
	}

	truck.OperatingHours = parseHours(raw.OperatingHours, sourceURL)
	truck.Menu = parseMenu(raw.Menu, sourceURL)

	truck.ContactInfo = model.ContactInfo{
		Phone:   strings.TrimSpace(asString(raw.ContactInfo.Phone)),
		Email:   strings.TrimSpace(asString(raw.ContactInfo.Email)),
		Website: strings.TrimSpace(asString(raw.ContactInfo.Website)),
	}
	truck.SocialMedia = model.SocialMedia{
		Instagram: strings.TrimSpace(asString(raw.SocialMedia.Instagram)),
		Facebook:  strings.TrimSpace(asString(raw.SocialMedia.Facebook)),
		Twitter:   strings.TrimSpace(asString(raw.SocialMedia.Twitter)),
		TikTok:    strings.TrimSpace(asString(raw.SocialMedia.TikTok)),
		Yelp:      strings.TrimSpace(asString(raw.SocialMedia.Yelp)),
	}

	if n, ok := asInt(raw.ReviewCount); ok && n > 0 {
		truck.ReviewCount = n
	}

	return truck, nil
}

// stripFences removes a surrounding markdown code fence, if present.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if i := strings.LastIndex(text, "```"); i >= 0 {
			text = text[:i]
		}
	}
	return strings.TrimSpace(text)
}

func parseLocation(raw *rawLocation, now time.Time) *model.Location {
	if raw == nil {
		return nil
	}
	lat, okLat := asFloat(raw.Lat)
	lng, okLng := asFloat(raw.Lng)
	if !okLat || !okLng {
		return nil
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return nil
	}
	return &model.Location{
		Lat:       lat,
		Lng:       lng,
		Address:   strings.TrimSpace(asString(raw.Address)),
		Timestamp: now,
	}
}

// parseHours normalizes to exactly the seven weekday keys. A day carrying
// both closed and open/close times keeps only the closed flag.
func parseHours(raw map[string]*rawDay, sourceURL string) model.OperatingHours {
	if len(raw) == 0 {
		return nil
	}

	hours := make(model.OperatingHours, len(model.Weekdays))
	var known bool
	for _, day := range model.Weekdays {
		rd := raw[strings.ToLower(day)]
		if rd == nil {
			hours[day] = nil
			continue
		}

		if closed, ok := rd.Closed.(bool); ok && closed {
			hours[day] = &model.DayHours{Closed: true}
			known = true
			continue
		}

		openAt := strings.TrimSpace(asString(rd.Open))
		closeAt := strings.TrimSpace(asString(rd.Close))
		if openAt == "" || closeAt == "" {
			if openAt != "" || closeAt != "" {
				zap.L().Warn("parse: dropping half-specified day hours",
					zap.String("source_url", sourceURL),
					zap.String("day", day),
				)
			}
			hours[day] = nil
			continue
		}
		hours[day] = &model.DayHours{Open: openAt, Close: closeAt}
		known = true
	}

	if !known {
		return nil
	}
	return hours
}

// parseMenu drops malformed categories and items with a warning instead of
// failing the record.
func parseMenu(raw []json.RawMessage, sourceURL string) []model.MenuCategory {
	var menu []model.MenuCategory
	for _, rawCat := range raw {
		var cat rawCategory
		if err := json.Unmarshal(rawCat, &cat); err != nil {
			zap.L().Warn("parse: dropping malformed menu category",
				zap.String("source_url", sourceURL),
				zap.Error(err),
			)
			continue
		}

		name := strings.TrimSpace(asString(cat.Name))
		if name == "" {
			zap.L().Warn("parse: dropping unnamed menu category",
				zap.String("source_url", sourceURL),
			)
			continue
		}

		mc := model.MenuCategory{Name: name}
		for _, item := range cat.Items {
			itemName := strings.TrimSpace(asString(item.Name))
			if itemName == "" {
				zap.L().Warn("parse: dropping unnamed menu item",
					zap.String("source_url", sourceURL),
					zap.String("category", name),
				)
				continue
			}
			mi := model.MenuItem{
				Name:        itemName,
				Description: strings.TrimSpace(asString(item.Description)),
				DietaryTags: asStringSlice(item.DietaryTags),
			}
			if price, ok := asFloat(item.Price); ok && price >= 0 {
				mi.Price = &price
			}
			mc.Items = append(mc.Items, mi)
		}
		menu = append(menu, mc)
	}
	return menu
}

// coercion helpers

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asStringSlice(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	var out []string
	for _, item := range items {
		if s := strings.TrimSpace(asString(item)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// asFloat accepts JSON numbers and numeric strings like "12.50" or "$12.50".
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		s := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(n), "$"))
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func asInt(v any) (int, bool) {
	f, ok := asFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}
