// Package listing defines the domain model shared across the ingestion
// pipeline: normalized listings, search queries, and user filters.
package listing

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// MaxImages caps the number of image URLs kept per listing.
const MaxImages = 10

// Listing is a normalized property advertisement.
// Price, Rooms and Area are always >= 0; 0 means "unknown / on request".
type Listing struct {
	SurrogateID    string          `json:"surrogate_id"`
	ExternalID     string          `json:"external_id"`
	Source         string          `json:"source"`
	Title          string          `json:"title"`
	Description    string          `json:"description"`
	Price          float64         `json:"price"`
	Rooms          float64         `json:"rooms"`
	Area           float64         `json:"area"`
	City           string          `json:"city"`
	District       string          `json:"district"`
	Street         string          `json:"street"`
	PostalCode     string          `json:"postal_code"`
	URL            string          `json:"url"`
	ApplicationURL string          `json:"application_url"`
	Images         []string        `json:"images"`
	Features       []string        `json:"features"`
	Raw            json.RawMessage `json:"raw,omitempty"`

	FirstSeenNs int64 `json:"first_seen_ns"`
	LastSeenNs  int64 `json:"last_seen_ns"`
}

// SurrogateID derives the stable deduplication identity for a listing:
// apify_<source>_<sha1(source|url|providerID)[:20]>. It must be identical
// for the same provider item across ingestion runs.
func SurrogateID(source, canonicalURL, providerID string) string {
	sum := sha1.Sum([]byte(source + "|" + canonicalURL + "|" + providerID))
	return "apify_" + source + "_" + hex.EncodeToString(sum[:])[:20]
}

// Key returns the (source, external_id) identity string used by the
// known-listing projection.
func (l Listing) Key() string {
	return l.Source + "_" + l.ExternalID
}

// HasMeaningfulContent reports whether the listing passes the retention
// predicate: at least one of a positive numeric fact, a non-trivial title,
// a non-trivial description, or a URL. Listings failing it are discarded
// during normalization and again defensively by the worker.
func (l Listing) HasMeaningfulContent() bool {
	if l.Price > 0 || l.Rooms > 0 || l.Area > 0 {
		return true
	}
	if len(strings.TrimSpace(l.Title)) > 10 {
		return true
	}
	if len(strings.TrimSpace(l.Description)) > 20 {
		return true
	}
	return strings.TrimSpace(l.URL) != ""
}

// Query is the normalized provider search input.
// Nil bounds are unset; a zero value is a valid explicit bound.
type Query struct {
	City     string   `json:"city"`
	PriceMin *float64 `json:"price_min,omitempty"`
	PriceMax *float64 `json:"price_max,omitempty"`
	RoomsMin *float64 `json:"rooms_min,omitempty"`
	RoomsMax *float64 `json:"rooms_max,omitempty"`
}

// WithCity returns a copy of the query targeting the given city.
func (q Query) WithCity(city string) Query {
	q.City = city
	return q
}

// UserFilter holds one user's stored search criteria.
// Nil bounds are unset; keywords are a soft signal, never a rejection.
type UserFilter struct {
	UserID   int64    `json:"user_id"`
	City     string   `json:"city,omitempty"`
	PriceMin *float64 `json:"price_min,omitempty"`
	PriceMax *float64 `json:"price_max,omitempty"`
	RoomsMin *float64 `json:"rooms_min,omitempty"`
	RoomsMax *float64 `json:"rooms_max,omitempty"`
	AreaMin  *float64 `json:"area_min,omitempty"`
	AreaMax  *float64 `json:"area_max,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

// User is a subscriber identity with a preferred language tag.
type User struct {
	TelegramID int64  `json:"telegram_id"`
	Username   string `json:"username,omitempty"`
	Language   string `json:"language"`
}

// Subscription ties a user to a paid monitoring period.
type Subscription struct {
	UserID      int64  `json:"user_id"`
	Status      string `json:"status"`
	CreatedAtNs int64  `json:"created_at_ns"`
	ExpiresAtNs int64  `json:"expires_at_ns"`
}

// SubscriptionStatusActive is the only status that, combined with an
// unexpired ExpiresAt, makes a subscription active.
const SubscriptionStatusActive = "active"

// Active reports whether the subscription grants monitoring at nowNs.
func (s Subscription) Active(nowNs int64) bool {
	return s.Status == SubscriptionStatusActive && nowNs < s.ExpiresAtNs
}

// Float returns a pointer to v, for building queries and filters inline.
func Float(v float64) *float64 {
	return &v
}
