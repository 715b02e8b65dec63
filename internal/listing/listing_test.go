package listing

import (
	"strings"
	"testing"
	"time"
)

func TestSurrogateIDStable(t *testing.T) {
	a := SurrogateID("immowelt", "https://www.immowelt.de/expose/abc", "abc")
	b := SurrogateID("immowelt", "https://www.immowelt.de/expose/abc", "abc")
	if a != b {
		t.Fatalf("surrogate id not stable: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "apify_immowelt_") {
		t.Fatalf("unexpected surrogate id format: %q", a)
	}
	if got := len(strings.TrimPrefix(a, "apify_immowelt_")); got != 20 {
		t.Fatalf("hash suffix length = %d, want 20", got)
	}
}

func TestSurrogateIDDistinguishesSources(t *testing.T) {
	a := SurrogateID("immowelt", "https://example.com/1", "1")
	b := SurrogateID("immobilienscout24", "https://example.com/1", "1")
	if a == b {
		t.Fatalf("different sources produced the same surrogate id %q", a)
	}
}

func TestHasMeaningfulContent(t *testing.T) {
	tests := []struct {
		name string
		l    Listing
		want bool
	}{
		{"all empty", Listing{Title: "Apt"}, false},
		{"price only", Listing{Price: 1200, Title: "Wohnung"}, true},
		{"rooms only", Listing{Rooms: 2}, true},
		{"area only", Listing{Area: 55}, true},
		{"long title", Listing{Title: "Helle 2-Zimmer-Wohnung"}, true},
		{"long description", Listing{Description: "Schöne Wohnung in ruhiger Lage"}, true},
		{"url only", Listing{URL: "https://example.com/expose/1"}, true},
		{"whitespace title", Listing{Title: "            "}, false},
		{"short everything", Listing{Title: "Apt", Description: "klein", URL: ""}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.l.HasMeaningfulContent(); got != tt.want {
				t.Errorf("HasMeaningfulContent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSubscriptionActive(t *testing.T) {
	now := time.Now().UnixNano()
	hour := time.Hour.Nanoseconds()

	active := Subscription{Status: SubscriptionStatusActive, ExpiresAtNs: now + hour}
	if !active.Active(now) {
		t.Error("unexpired active subscription reported inactive")
	}

	expired := Subscription{Status: SubscriptionStatusActive, ExpiresAtNs: now - hour}
	if expired.Active(now) {
		t.Error("expired subscription reported active")
	}

	cancelled := Subscription{Status: "cancelled", ExpiresAtNs: now + hour}
	if cancelled.Active(now) {
		t.Error("cancelled subscription reported active")
	}
}

func TestQueryWithCity(t *testing.T) {
	q := Query{City: "Berlin", PriceMax: Float(1500)}
	got := q.WithCity("Hamburg")
	if got.City != "Hamburg" {
		t.Fatalf("WithCity city = %q", got.City)
	}
	if q.City != "Berlin" {
		t.Fatal("WithCity mutated the receiver")
	}
	if got.PriceMax == nil || *got.PriceMax != 1500 {
		t.Fatal("WithCity dropped other bounds")
	}
}
