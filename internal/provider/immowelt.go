package provider

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/flatwatch/flatwatch/internal/listing"
	"github.com/flatwatch/flatwatch/internal/normalize"
)

// immoweltLocationIDs maps known city names (lowercased) to the Immowelt
// classified-search location identifiers.
var immoweltLocationIDs = map[string]string{
	"berlin":     "AD08DE6681",
	"hamburg":    "AD08DE6683",
	"münchen":    "AD08DE6679",
	"köln":       "AD08DE6748",
	"frankfurt":  "AD08DE6678",
	"stuttgart":  "AD08DE6691",
	"düsseldorf": "AD08DE6698",
	"leipzig":    "AD08DE6707",
	"dortmund":   "AD08DE6696",
	"essen":      "AD08DE6700",
	"bremen":     "AD08DE6685",
	"dresden":    "AD08DE6695",
}

// NewImmowelt builds the Immowelt adapter. The search runs a three-tier
// URL cascade: full filters, relaxed (no *Min bounds), location-only.
// startURL overrides tier one when set.
func NewImmowelt(client *actorClient, actorID, startURL string, cooldown *Cooldown) Adapter {
	return &actorAdapter{
		name:     "immowelt",
		cooldown: cooldown,
		run: func(ctx context.Context, q listing.Query) ([]normalize.Item, error) {
			urls := immoweltCascade(q)
			if startURL != "" {
				urls[0] = startURL
			}
			var lastErr error
			for tier, u := range urls {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
				items, err := client.Run(ctx, actorID, map[string]any{"startUrl": u})
				if err == nil && len(items) > 0 {
					return items, nil
				}
				if err != nil {
					var quota *QuotaError
					if errors.As(err, &quota) {
						return nil, err
					}
					lastErr = err
					log.Printf("[provider] immowelt tier %d failed: %v", tier+1, err)
				}
			}
			if lastErr != nil {
				return nil, lastErr
			}
			return nil, ErrRemoteEmpty
		},
	}
}

// immoweltCascade builds the three search URLs, strictest first.
func immoweltCascade(q listing.Query) []string {
	loc := immoweltLocation(q.City)

	full := url.Values{}
	full.Set("distributionTypes", "Rent")
	full.Set("estateTypes", "Apartment")
	full.Set("locations", loc)
	if q.PriceMin != nil {
		full.Set("priceMin", trimFloat(*q.PriceMin))
	}
	if q.PriceMax != nil {
		full.Set("priceMax", trimFloat(*q.PriceMax))
	}
	if q.RoomsMin != nil {
		full.Set("numberOfRoomsMin", trimFloat(*q.RoomsMin))
	}
	if q.RoomsMax != nil {
		full.Set("numberOfRoomsMax", trimFloat(*q.RoomsMax))
	}

	relaxed := url.Values{}
	for k, v := range full {
		if k == "priceMin" || k == "numberOfRoomsMin" {
			continue
		}
		relaxed[k] = v
	}

	locationOnly := url.Values{}
	locationOnly.Set("distributionTypes", "Rent")
	locationOnly.Set("estateTypes", "Apartment")
	locationOnly.Set("locations", loc)

	base := "https://www.immowelt.de/classified-search?"
	return []string{
		base + full.Encode(),
		base + relaxed.Encode(),
		base + locationOnly.Encode(),
	}
}

// immoweltLocation resolves the location parameter: the known ID when the
// city is in the table, otherwise the city label itself.
func immoweltLocation(city string) string {
	if id, ok := immoweltLocationIDs[strings.ToLower(strings.TrimSpace(city))]; ok {
		return id
	}
	return strings.TrimSpace(city)
}

func trimFloat(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}
