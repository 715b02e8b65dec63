package provider

import (
	"context"
	"fmt"

	"github.com/flatwatch/flatwatch/internal/listing"
	"github.com/flatwatch/flatwatch/internal/normalize"
)

// NewKleinanzeigen builds the Kleinanzeigen adapter.
func NewKleinanzeigen(client *actorClient, actorID string, cooldown *Cooldown) Adapter {
	return &actorAdapter{
		name:     "kleinanzeigen",
		cooldown: cooldown,
		run: func(ctx context.Context, q listing.Query) ([]normalize.Item, error) {
			url := fmt.Sprintf("https://www.kleinanzeigen.de/s-wohnung-mieten/%s/k0", citySlug(q.City))
			input := map[string]any{
				"startUrls":   []map[string]any{{"url": url}},
				"searchQuery": q.City,
				"maxItems":    30,
			}
			return client.Run(ctx, actorID, input)
		},
	}
}
