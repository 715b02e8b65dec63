// Package provider fetches raw listings from external marketplaces via
// Apify actors and turns them into normalized listings. Each adapter is
// gated by a cooldown so upstream actors are not hammered.
package provider

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/flatwatch/flatwatch/internal/listing"
	"github.com/flatwatch/flatwatch/internal/normalize"
)

// Adapter is one marketplace source.
type Adapter interface {
	Name() string
	Search(ctx context.Context, q listing.Query, opts SearchOptions) ([]listing.Listing, error)
}

// SearchOptions modify a single search call.
type SearchOptions struct {
	// BypassCooldown skips the cooldown gate, used by force checks and
	// on-demand feed requests that the operator explicitly triggered.
	BypassCooldown bool
}

// runFunc produces raw items for a query; adapters plug their actor
// invocation (single run or URL cascade) in here.
type runFunc func(ctx context.Context, q listing.Query) ([]normalize.Item, error)

// actorAdapter is the shared skeleton: cooldown gate, actor run,
// normalization.
type actorAdapter struct {
	name     string
	cooldown *Cooldown
	run      runFunc
}

func (a *actorAdapter) Name() string { return a.name }

func (a *actorAdapter) Search(ctx context.Context, q listing.Query, opts SearchOptions) ([]listing.Listing, error) {
	// TryAcquire claims the window atomically so concurrent city jobs in
	// one wave cannot launch parallel runs of the same actor.
	if !opts.BypassCooldown && !a.cooldown.TryAcquire() {
		return nil, fmt.Errorf("%s: %w (%s remaining)", a.name, ErrCooldown, a.cooldown.Remaining())
	}

	items, err := a.run(ctx, q)
	// Every completed attempt stamps the gate, successful or not, so a
	// failing upstream still gets its breathing room.
	a.cooldown.Stamp()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", a.name, err)
	}

	listings := make([]listing.Listing, 0, len(items))
	for _, item := range items {
		l, ok := normalize.Convert(item, a.name, q)
		if !ok {
			continue
		}
		listings = append(listings, l)
	}
	log.Printf("[provider] %s: %d items, %d meaningful", a.name, len(items), len(listings))
	return listings, nil
}

// citySlug renders a city name for use in marketplace URL paths.
func citySlug(city string) string {
	s := strings.ToLower(strings.TrimSpace(city))
	r := strings.NewReplacer("ä", "ae", "ö", "oe", "ü", "ue", "ß", "ss", " ", "-")
	return r.Replace(s)
}
