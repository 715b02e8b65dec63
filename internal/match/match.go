// Package match evaluates listings against stored user filters.
package match

import (
	"strings"

	"github.com/flatwatch/flatwatch/internal/listing"
)

// Matches reports whether a listing satisfies a user's filter.
//
// Checks run in a fixed order and the first failing one rejects: city,
// price min/max, rooms min/max, area min/max. Numeric bounds only apply
// when the listing actually carries the fact (value > 0); a listing with
// an unknown price is never rejected by a price bound. Nil bounds are
// unset. Keywords are a soft signal and never reject.
func Matches(l listing.Listing, f listing.UserFilter) bool {
	if !cityMatches(l.City, f.City) {
		return false
	}
	if !boundsOK(l.Price, f.PriceMin, f.PriceMax) {
		return false
	}
	if !boundsOK(l.Rooms, f.RoomsMin, f.RoomsMax) {
		return false
	}
	return boundsOK(l.Area, f.AreaMin, f.AreaMax)
}

// cityMatches accepts when either side is unset, otherwise compares
// case-insensitively as a bidirectional substring so "Frankfurt" matches
// "Frankfurt am Main" and vice versa.
func cityMatches(listingCity, filterCity string) bool {
	lc := strings.ToLower(strings.TrimSpace(listingCity))
	fc := strings.ToLower(strings.TrimSpace(filterCity))
	if lc == "" || fc == "" {
		return true
	}
	return strings.Contains(lc, fc) || strings.Contains(fc, lc)
}

func boundsOK(value float64, min, max *float64) bool {
	if value <= 0 {
		return true
	}
	if min != nil && value < *min {
		return false
	}
	if max != nil && value > *max {
		return false
	}
	return true
}

// KeywordHits returns the filter keywords found in the listing title,
// description or features, case-insensitively. An empty result does not
// disqualify the listing; callers use hits for ranking and presentation.
func KeywordHits(l listing.Listing, keywords []string) []string {
	if len(keywords) == 0 {
		return nil
	}
	haystack := strings.ToLower(l.Title + " " + l.Description + " " + strings.Join(l.Features, " "))
	var hits []string
	for _, kw := range keywords {
		k := strings.ToLower(strings.TrimSpace(kw))
		if k != "" && strings.Contains(haystack, k) {
			hits = append(hits, kw)
		}
	}
	return hits
}
