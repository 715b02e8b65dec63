package store

import (
	"path/filepath"
	"testing"

	"github.com/flatwatch/flatwatch/internal/listing"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "flatwatch.db"))
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUserRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if u, err := s.GetUser(42); err != nil || u != nil {
		t.Fatalf("GetUser on empty db = (%v, %v), want (nil, nil)", u, err)
	}

	if err := s.SaveUser(listing.User{TelegramID: 42, Username: "anna", Language: "de"}, 100); err != nil {
		t.Fatalf("SaveUser: %v", err)
	}
	u, err := s.GetUser(42)
	if err != nil || u == nil {
		t.Fatalf("GetUser = (%v, %v)", u, err)
	}
	if u.Username != "anna" || u.Language != "de" {
		t.Errorf("user = %+v", u)
	}

	if err := s.UpdateUserLanguage(42, "en"); err != nil {
		t.Fatalf("UpdateUserLanguage: %v", err)
	}
	u, _ = s.GetUser(42)
	if u.Language != "en" {
		t.Errorf("language = %q, want en", u.Language)
	}
}

func TestSubscriptionAndActiveUsers(t *testing.T) {
	s := openTestStore(t)
	now := int64(1_000)

	for _, u := range []listing.User{
		{TelegramID: 1, Language: "de"},
		{TelegramID: 2, Language: "de"},
		{TelegramID: 3, Language: "en"},
	} {
		if err := s.SaveUser(u, now); err != nil {
			t.Fatal(err)
		}
	}
	subs := []listing.Subscription{
		{UserID: 1, Status: listing.SubscriptionStatusActive, CreatedAtNs: now, ExpiresAtNs: now + 100},
		{UserID: 2, Status: "cancelled", CreatedAtNs: now, ExpiresAtNs: now + 100},
		{UserID: 3, Status: listing.SubscriptionStatusActive, CreatedAtNs: now, ExpiresAtNs: now - 1},
	}
	for _, sub := range subs {
		if err := s.SaveSubscription(sub); err != nil {
			t.Fatal(err)
		}
	}

	active, err := s.UsersWithActiveSubscriptions(now)
	if err != nil {
		t.Fatalf("UsersWithActiveSubscriptions: %v", err)
	}
	if len(active) != 1 || active[0].TelegramID != 1 {
		t.Errorf("active users = %+v, want only user 1", active)
	}

	got, err := s.GetSubscription(2)
	if err != nil || got == nil || got.Status != "cancelled" {
		t.Errorf("GetSubscription(2) = (%+v, %v)", got, err)
	}
	if got, _ := s.GetSubscription(99); got != nil {
		t.Errorf("GetSubscription(99) = %+v, want nil", got)
	}
}

func TestUserFilterRoundTrip(t *testing.T) {
	s := openTestStore(t)
	if err := s.SaveUser(listing.User{TelegramID: 7, Language: "de"}, 1); err != nil {
		t.Fatal(err)
	}

	f := listing.UserFilter{
		UserID:   7,
		City:     "Berlin",
		PriceMax: listing.Float(1200),
		RoomsMin: listing.Float(2),
		Keywords: []string{"balkon", "altbau"},
	}
	if err := s.SaveUserFilter(f, 10); err != nil {
		t.Fatalf("SaveUserFilter: %v", err)
	}

	got, err := s.GetUserFilter(7)
	if err != nil || got == nil {
		t.Fatalf("GetUserFilter = (%v, %v)", got, err)
	}
	if got.City != "Berlin" || got.PriceMax == nil || *got.PriceMax != 1200 {
		t.Errorf("filter = %+v", got)
	}
	if got.PriceMin != nil {
		t.Error("unset bound should stay nil")
	}
	if len(got.Keywords) != 2 {
		t.Errorf("keywords = %v", got.Keywords)
	}

	if got, _ := s.GetUserFilter(8); got != nil {
		t.Errorf("GetUserFilter(8) = %+v, want nil", got)
	}
}

func testListing(external string, lastSeen int64) listing.Listing {
	url := "https://www.example.com/expose/" + external
	return listing.Listing{
		SurrogateID: listing.SurrogateID("immobilienscout24", url, external),
		ExternalID:  external,
		Source:      "immobilienscout24",
		Title:       "Wohnung " + external,
		Price:       900,
		Rooms:       2,
		Area:        60,
		City:        "Berlin",
		URL:         url,
		Images:      []string{"https://img.example.com/" + external + ".jpg"},
		FirstSeenNs: lastSeen,
		LastSeenNs:  lastSeen,
	}
}

func TestSaveListingUpsertPreservesFirstSeen(t *testing.T) {
	s := openTestStore(t)

	l := testListing("a1", 100)
	if err := s.SaveListing(l); err != nil {
		t.Fatalf("SaveListing: %v", err)
	}

	l.Price = 950
	l.LastSeenNs = 200
	l.FirstSeenNs = 200 // must be ignored on update
	if err := s.SaveListing(l); err != nil {
		t.Fatalf("SaveListing update: %v", err)
	}

	got, err := s.GetListing(l.SurrogateID)
	if err != nil || got == nil {
		t.Fatalf("GetListing = (%v, %v)", got, err)
	}
	if got.Price != 950 {
		t.Errorf("price = %v, want refreshed 950", got.Price)
	}
	if got.FirstSeenNs != 100 {
		t.Errorf("first_seen_ns = %d, want original 100", got.FirstSeenNs)
	}
	if got.LastSeenNs != 200 {
		t.Errorf("last_seen_ns = %d, want 200", got.LastSeenNs)
	}
	if len(got.Images) != 1 {
		t.Errorf("images = %v", got.Images)
	}
}

func TestFindListings(t *testing.T) {
	s := openTestStore(t)

	for i, spec := range []struct {
		external string
		city     string
		price    float64
		lastSeen int64
	}{
		{"a", "Berlin", 800, 10},
		{"b", "Berlin", 1500, 20},
		{"c", "Hamburg", 900, 30},
		{"d", "Berlin", 0, 40}, // price unknown
	} {
		l := testListing(spec.external, spec.lastSeen)
		l.City = spec.city
		l.Price = spec.price
		if err := s.SaveListing(l); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	got, err := s.FindListings(listing.Query{City: "berlin", PriceMax: listing.Float(1000)}, 10, 0)
	if err != nil {
		t.Fatalf("FindListings: %v", err)
	}
	if len(got) != 1 || got[0].ExternalID != "a" {
		t.Errorf("got %d listings (%+v), want only a", len(got), got)
	}

	all, err := s.FindListings(listing.Query{City: "Berlin"}, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d Berlin listings, want 3", len(all))
	}
	if all[0].ExternalID != "d" {
		t.Errorf("ordering: first = %s, want newest d", all[0].ExternalID)
	}

	page, err := s.FindListings(listing.Query{City: "Berlin"}, 1, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 1 || page[0].ExternalID != "b" {
		t.Errorf("pagination: %+v", page)
	}
}

func TestKnownSurrogateIDs(t *testing.T) {
	s := openTestStore(t)
	for _, ext := range []string{"x", "y"} {
		if err := s.SaveListing(testListing(ext, 1)); err != nil {
			t.Fatal(err)
		}
	}
	ids, err := s.KnownSurrogateIDs()
	if err != nil {
		t.Fatalf("KnownSurrogateIDs: %v", err)
	}
	if len(ids) != 2 {
		t.Errorf("got %d ids, want 2", len(ids))
	}
}

func TestPurgeListingsOlderThan(t *testing.T) {
	s := openTestStore(t)
	s.SaveListing(testListing("old", 10))
	s.SaveListing(testListing("new", 100))

	n, err := s.PurgeListingsOlderThan(50)
	if err != nil {
		t.Fatalf("PurgeListingsOlderThan: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d rows, want 1", n)
	}
	ids, _ := s.KnownSurrogateIDs()
	if len(ids) != 1 {
		t.Errorf("remaining = %v", ids)
	}
}

func TestNotificationLedger(t *testing.T) {
	s := openTestStore(t)

	ok, err := s.HasNotification(5, "apify_x_1")
	if err != nil || ok {
		t.Fatalf("HasNotification on empty = (%v, %v)", ok, err)
	}

	recorded, err := s.SaveNotification("n-1", 5, "apify_x_1", 100)
	if err != nil || !recorded {
		t.Fatalf("SaveNotification = (%v, %v)", recorded, err)
	}

	// Same pair again, different id: must be ignored.
	recorded, err = s.SaveNotification("n-2", 5, "apify_x_1", 200)
	if err != nil {
		t.Fatalf("SaveNotification repeat: %v", err)
	}
	if recorded {
		t.Error("duplicate (user, listing) pair was recorded twice")
	}

	ok, err = s.HasNotification(5, "apify_x_1")
	if err != nil || !ok {
		t.Errorf("HasNotification = (%v, %v), want true", ok, err)
	}
}
