package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/flatwatch/flatwatch/internal/listing"
	"github.com/flatwatch/flatwatch/internal/provider"
)

type fakeSearcher struct {
	listings []listing.Listing
	calls    int
}

func (f *fakeSearcher) FindListings(_ listing.Query, limit, _ int) ([]listing.Listing, error) {
	f.calls++
	if len(f.listings) > limit {
		return f.listings[:limit], nil
	}
	return f.listings, nil
}

type fakeAdapter struct {
	name     string
	listings []listing.Listing

	mu    sync.Mutex
	calls int
}

func (f *fakeAdapter) Name() string { return f.name }

func (f *fakeAdapter) Search(context.Context, listing.Query, provider.SearchOptions) ([]listing.Listing, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.listings, nil
}

func mk(source, external string) listing.Listing {
	return listing.Listing{
		SurrogateID: "apify_" + source + "_" + external,
		ExternalID:  external,
		Source:      source,
		Title:       "Wohnung " + external + " in ruhiger Lage",
		Price:       800,
		URL:         "https://x/" + external,
	}
}

func TestSearchInterleavesSources(t *testing.T) {
	repo := &fakeSearcher{listings: []listing.Listing{mk("immowelt", "s1"), mk("immowelt", "s2")}}
	is24 := &fakeAdapter{name: "immobilienscout24", listings: []listing.Listing{
		mk("immobilienscout24", "a1"), mk("immobilienscout24", "a2"), mk("immobilienscout24", "a3"),
	}}
	ka := &fakeAdapter{name: "kleinanzeigen", listings: []listing.Listing{mk("kleinanzeigen", "k1")}}
	svc := New(repo, []provider.Adapter{is24, ka}, time.Minute, 64)

	got, err := svc.Search(context.Background(), listing.Query{City: "Berlin"}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	// Round one takes one listing per source bucket in sorted order:
	// immobilienscout24, kleinanzeigen, stored.
	wantFirst := []string{"a1", "k1", "s1"}
	for i, want := range wantFirst {
		if got[i].ExternalID != want {
			t.Fatalf("position %d = %s, want %s (got order %v)", i, got[i].ExternalID, want, externals(got))
		}
	}
	if len(got) != 6 {
		t.Errorf("got %d listings, want all 6", len(got))
	}
}

func TestSearchDeduplicatesAcrossStoredAndLive(t *testing.T) {
	dup := mk("immobilienscout24", "same")
	repo := &fakeSearcher{listings: []listing.Listing{dup}}
	is24 := &fakeAdapter{name: "immobilienscout24", listings: []listing.Listing{dup, mk("immobilienscout24", "other")}}
	svc := New(repo, []provider.Adapter{is24}, time.Minute, 64)

	got, err := svc.Search(context.Background(), listing.Query{City: "Berlin"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("got %v, want the duplicate collapsed", externals(got))
	}
}

func TestSearchRespectsLimit(t *testing.T) {
	var many []listing.Listing
	for _, e := range []string{"a", "b", "c", "d", "e", "f"} {
		many = append(many, mk("immobilienscout24", e))
	}
	svc := New(&fakeSearcher{}, []provider.Adapter{&fakeAdapter{name: "immobilienscout24", listings: many}}, time.Minute, 64)

	got, err := svc.Search(context.Background(), listing.Query{City: "Berlin"}, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 4 {
		t.Errorf("got %d listings, want limit 4", len(got))
	}
}

func TestSearchCachesResults(t *testing.T) {
	repo := &fakeSearcher{}
	adapter := &fakeAdapter{name: "immobilienscout24", listings: []listing.Listing{mk("immobilienscout24", "a")}}
	svc := New(repo, []provider.Adapter{adapter}, time.Minute, 64)
	q := listing.Query{City: "Berlin", PriceMax: listing.Float(1000)}

	if _, err := svc.Search(context.Background(), q, 10); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Search(context.Background(), q, 10); err != nil {
		t.Fatal(err)
	}
	if adapter.calls != 1 {
		t.Errorf("adapter called %d times, want cached second hit", adapter.calls)
	}

	// A different query misses the cache.
	if _, err := svc.Search(context.Background(), q.WithCity("Hamburg"), 10); err != nil {
		t.Fatal(err)
	}
	if adapter.calls != 2 {
		t.Errorf("adapter calls = %d, want distinct queries to miss", adapter.calls)
	}
}

func TestSearchEmptyResultNotCached(t *testing.T) {
	adapter := &fakeAdapter{name: "immobilienscout24"}
	svc := New(&fakeSearcher{}, []provider.Adapter{adapter}, time.Minute, 64)
	q := listing.Query{City: "Nirgendwo"}

	got, err := svc.Search(context.Background(), q, 10)
	if err != nil || len(got) != 0 {
		t.Fatalf("Search = (%v, %v), want empty", externals(got), err)
	}
	svc.Search(context.Background(), q, 10)
	if adapter.calls != 2 {
		t.Errorf("adapter calls = %d; empty results must not be memoized", adapter.calls)
	}
}

func TestCacheKeyDistinguishesBounds(t *testing.T) {
	base := listing.Query{City: "Berlin"}
	if cacheKey(base) == cacheKey(base.WithCity("Hamburg")) {
		t.Error("city must affect the key")
	}
	withMax := base
	withMax.PriceMax = listing.Float(1000)
	if cacheKey(base) == cacheKey(withMax) {
		t.Error("bounds must affect the key")
	}
	again := base
	if cacheKey(base) != cacheKey(again) {
		t.Error("identical queries must share a key")
	}
}

func externals(ls []listing.Listing) []string {
	var out []string
	for _, l := range ls {
		out = append(out, l.ExternalID)
	}
	return out
}
