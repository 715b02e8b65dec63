package provider

import (
	"context"
	"fmt"

	"github.com/flatwatch/flatwatch/internal/listing"
	"github.com/flatwatch/flatwatch/internal/normalize"
)

// NewImmoscout builds the ImmoScout24 adapter. startURL overrides the
// synthesized city search URL when set.
func NewImmoscout(client *actorClient, actorID, startURL string, cooldown *Cooldown) Adapter {
	return &actorAdapter{
		name:     "immobilienscout24",
		cooldown: cooldown,
		run: func(ctx context.Context, q listing.Query) ([]normalize.Item, error) {
			url := startURL
			if url == "" {
				url = immoscoutSearchURL(q)
			}
			input := map[string]any{
				"startUrl":         url,
				"maxPagesToScrape": 1,
			}
			return client.Run(ctx, actorID, input)
		},
	}
}

// immoscoutSearchURL synthesizes the rental search URL for a city with
// optional price and room bounds.
func immoscoutSearchURL(q listing.Query) string {
	url := fmt.Sprintf("https://www.immobilienscout24.de/Suche/de/%s/wohnung-mieten", citySlug(q.City))
	sep := "?"
	if q.PriceMax != nil {
		url += fmt.Sprintf("%sprice=-%.1f", sep, *q.PriceMax)
		sep = "&"
	}
	if q.RoomsMin != nil {
		url += fmt.Sprintf("%snumberofrooms=%.1f-", sep, *q.RoomsMin)
	}
	return url
}
