// Package similarity provides pure field-level similarity functions used by
// duplicate detection. All functions return a score in [0, 1] and perform no
// I/O.
package similarity

import (
	"math"
	"net/url"
	"strings"

	"github.com/agext/levenshtein"
	"golang.org/x/text/unicode/norm"

	"github.com/streeteats/ingest-cli/internal/model"
)

// String compares two strings case-insensitively after trimming and NFKC
// normalization. Equal strings score 1.0; otherwise the score is
// 1 - editDistance/maxLen. Either input being empty scores 0.
func String(a, b string) float64 {
	a = normalize(a)
	b = normalize(b)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}

	ra := []rune(a)
	rb := []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}

	dist := levenshtein.Distance(a, b, nil)
	return 1 - float64(dist)/float64(maxLen)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(norm.NFKC.String(s)))
}

// Location compares two truck locations by averaging the available
// sub-scores: free-text address similarity and geographic proximity. Returns
// 0 unless both locations are present.
func Location(a, b *model.Location) float64 {
	if a == nil || b == nil {
		return 0
	}

	var total float64
	var n int

	if a.Address != "" && b.Address != "" {
		total += String(a.Address, b.Address)
		n++
	}

	total += geoProximity(a, b)
	n++

	return total / float64(n)
}

// geoProximity scores 1.0 for points within 0.1 km of each other, decaying
// linearly to 0 at 1 km.
func geoProximity(a, b *model.Location) float64 {
	km := haversineKm(a.Lat, a.Lng, b.Lat, b.Lng)
	if km <= 0.1 {
		return 1
	}
	return math.Max(0, 1-km)
}

const earthRadiusKm = 6371

// haversineKm returns the great-circle distance between two points in km.
func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	dLat := toRadians(lat2 - lat1)
	dLng := toRadians(lng2 - lng1)

	s := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(lat1))*math.Cos(toRadians(lat2))*
			math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
	return earthRadiusKm * c
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Contact compares two contact blocks field by field: phone on digits only,
// website on normalized host, email case-insensitively. The score is the
// fraction of fields present on both sides that match exactly; 0 if no field
// is comparable.
func Contact(a, b model.ContactInfo) float64 {
	var comparable, matched int

	if a.Phone != "" && b.Phone != "" {
		comparable++
		if phoneDigits(a.Phone) == phoneDigits(b.Phone) {
			matched++
		}
	}
	if a.Website != "" && b.Website != "" {
		comparable++
		if websiteHost(a.Website) == websiteHost(b.Website) {
			matched++
		}
	}
	if a.Email != "" && b.Email != "" {
		comparable++
		if strings.EqualFold(strings.TrimSpace(a.Email), strings.TrimSpace(b.Email)) {
			matched++
		}
	}

	if comparable == 0 {
		return 0
	}
	return float64(matched) / float64(comparable)
}

// ContactComparable reports whether the two blocks share at least one
// populated channel, i.e. whether Contact has anything to score.
func ContactComparable(a, b model.ContactInfo) bool {
	return (a.Phone != "" && b.Phone != "") ||
		(a.Website != "" && b.Website != "") ||
		(a.Email != "" && b.Email != "")
}

func phoneDigits(s string) string {
	var sb strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// websiteHost extracts the lower-cased host, dropping scheme, www prefix,
// path, and port.
func websiteHost(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return s
	}
	host := u.Hostname()
	return strings.TrimPrefix(host, "www.")
}

// Menu compares two menus by Jaccard overlap of their lower-cased category
// name sets. Either menu being empty scores 0.
func Menu(a, b []model.MenuCategory) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	setA := categoryNames(a)
	setB := categoryNames(b)

	var intersection int
	for name := range setA {
		if setB[name] {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func categoryNames(menu []model.MenuCategory) map[string]bool {
	set := make(map[string]bool, len(menu))
	for _, c := range menu {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name != "" {
			set[name] = true
		}
	}
	return set
}
