package model

import (
	"time"
)

// VerificationStatus tracks whether a stored truck has been human-reviewed.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "pending"
	VerificationVerified VerificationStatus = "verified"
	VerificationFlagged  VerificationStatus = "flagged"
)

// PriceRange is one of the four enumerated price tiers.
type PriceRange string

const (
	PriceCheap     PriceRange = "$"
	PriceModerate  PriceRange = "$$"
	PriceExpensive PriceRange = "$$$"
	PricePremium   PriceRange = "$$$$"
)

// ValidPriceRange reports whether p is one of the four enumerated tiers.
func ValidPriceRange(p PriceRange) bool {
	switch p {
	case PriceCheap, PriceModerate, PriceExpensive, PricePremium:
		return true
	}
	return false
}

// Weekdays lists the seven operating_hours keys in order. Every FoodTruck
// carries all seven, each entry nil (unknown), closed, or open/close times.
var Weekdays = []string{
	"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday",
}

// DayHours is the schedule for a single weekday. Closed and Open/Close are
// mutually exclusive: a closed day never carries time fields.
type DayHours struct {
	Closed bool   `json:"closed,omitempty"`
	Open   string `json:"open,omitempty"`
	Close  string `json:"close,omitempty"`
}

// OperatingHours maps weekday name to that day's schedule. A nil entry means
// hours for that day are unknown.
type OperatingHours map[string]*DayHours

// NormalizedHours returns a copy of h with exactly the seven weekday keys,
// dropping anything else and filling missing days with nil.
func NormalizedHours(h OperatingHours) OperatingHours {
	out := make(OperatingHours, len(Weekdays))
	for _, day := range Weekdays {
		out[day] = h[day]
	}
	return out
}

// Location is a point where a truck is or will be operating.
type Location struct {
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
	Address   string    `json:"address,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// MenuItem is a single dish within a menu category.
type MenuItem struct {
	Name        string   `json:"name"`
	Price       *float64 `json:"price,omitempty"`
	Description string   `json:"description,omitempty"`
	DietaryTags []string `json:"dietary_tags,omitempty"`
}

// MenuCategory groups menu items under a named section.
type MenuCategory struct {
	Name  string     `json:"name"`
	Items []MenuItem `json:"items,omitempty"`
}

// ContactInfo holds direct contact channels for a truck.
type ContactInfo struct {
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Website string `json:"website,omitempty"`
}

// Empty reports whether no contact channel is present.
func (c ContactInfo) Empty() bool {
	return c.Phone == "" && c.Email == "" && c.Website == ""
}

// SocialMedia holds the truck's social handles.
type SocialMedia struct {
	Instagram string `json:"instagram,omitempty"`
	Facebook  string `json:"facebook,omitempty"`
	Twitter   string `json:"twitter,omitempty"`
	TikTok    string `json:"tiktok,omitempty"`
	Yelp      string `json:"yelp,omitempty"`
}

// Empty reports whether no social handle is present.
func (s SocialMedia) Empty() bool {
	return s.Instagram == "" && s.Facebook == "" && s.Twitter == "" &&
		s.TikTok == "" && s.Yelp == ""
}

// FoodTruck is the structured record produced by content extraction for one
// target URL. It is immutable once produced; the duplicate resolver turns it
// into a persisted StoredTruck.
type FoodTruck struct {
	Name               string         `json:"name"`
	Description        string         `json:"description,omitempty"`
	CuisineType        []string       `json:"cuisine_type,omitempty"`
	PriceRange         PriceRange     `json:"price_range,omitempty"`
	Specialties        []string       `json:"specialties,omitempty"`
	CurrentLocation    *Location      `json:"current_location,omitempty"`
	ScheduledLocations []Location     `json:"scheduled_locations,omitempty"`
	OperatingHours     OperatingHours `json:"operating_hours,omitempty"`
	Menu               []MenuCategory `json:"menu,omitempty"`
	ContactInfo        ContactInfo    `json:"contact_info"`
	SocialMedia        SocialMedia    `json:"social_media"`
	SourceURLs         []string       `json:"source_urls,omitempty"`
	ReviewCount        int            `json:"review_count,omitempty"`
	LastScrapedAt      time.Time      `json:"last_scraped_at"`
}

// StoredTruck is a persisted, identified food-truck entity.
type StoredTruck struct {
	FoodTruck

	ID                 string             `json:"id"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
	DataQualityScore   float64            `json:"data_quality_score"` // 0-1 scale
	VerificationStatus VerificationStatus `json:"verification_status"`
}
