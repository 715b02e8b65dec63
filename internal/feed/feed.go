// Package feed serves on-demand listing searches: stored results merged
// with a live provider sweep, diversified across sources, memoized in a
// TTL cache.
package feed

import (
	"context"
	"encoding/json"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/maypok86/otter"
	"github.com/zeebo/xxh3"

	"github.com/flatwatch/flatwatch/internal/listing"
	"github.com/flatwatch/flatwatch/internal/provider"
)

const storedSourceName = "stored"

// Searcher is the slice of the store the feed needs.
type Searcher interface {
	FindListings(q listing.Query, limit, offset int) ([]listing.Listing, error)
}

// Service answers ad-hoc feed queries.
type Service struct {
	repo     Searcher
	adapters []provider.Adapter
	cache    otter.Cache[uint64, []listing.Listing]
}

// New builds a feed Service memoizing up to capacity query results for ttl.
func New(repo Searcher, adapters []provider.Adapter, ttl time.Duration, capacity int) *Service {
	cache, err := otter.MustBuilder[uint64, []listing.Listing](capacity).
		Cost(func(_ uint64, _ []listing.Listing) uint32 { return 1 }).
		WithTTL(ttl).
		Build()
	if err != nil {
		panic("feed: failed to create cache: " + err.Error())
	}
	return &Service{repo: repo, adapters: adapters, cache: cache}
}

// Search returns up to limit listings for the query. Identical queries
// within the cache TTL are served from memory without touching providers.
// An empty result means no listing matches yet.
func (s *Service) Search(ctx context.Context, q listing.Query, limit int) ([]listing.Listing, error) {
	key := cacheKey(q)
	if cached, ok := s.cache.Get(key); ok {
		if len(cached) > limit {
			cached = cached[:limit]
		}
		return cached, nil
	}

	stored, err := s.repo.FindListings(q, limit/2, 0)
	if err != nil {
		log.Printf("[feed] stored lookup: %v", err)
	}

	live := s.liveSweep(ctx, q)

	merged := interleave(stored, live, limit)
	if len(merged) > 0 {
		s.cache.Set(key, merged)
	}
	return merged, nil
}

// liveSweep queries all adapters in parallel with cooldowns respected;
// adapters sitting in cooldown simply contribute nothing.
func (s *Service) liveSweep(ctx context.Context, q listing.Query) []listing.Listing {
	var (
		mu  sync.Mutex
		out []listing.Listing
		wg  sync.WaitGroup
	)
	for _, a := range s.adapters {
		wg.Add(1)
		go func(a provider.Adapter) {
			defer wg.Done()
			listings, err := a.Search(ctx, q, provider.SearchOptions{})
			if err != nil {
				log.Printf("[feed] %s: %v", a.Name(), err)
				return
			}
			mu.Lock()
			out = append(out, listings...)
			mu.Unlock()
		}(a)
	}
	wg.Wait()
	return out
}

// cacheKey hashes the canonical JSON rendering of the query.
func cacheKey(q listing.Query) uint64 {
	data, err := json.Marshal(q)
	if err != nil {
		return 0
	}
	return xxh3.Hash(data)
}

// interleave diversifies the result: listings are grouped per source and
// taken round-robin in stable source order, deduplicated by
// (source, external_id). Stored results count as their own source bucket
// so a noisy provider cannot crowd them out.
func interleave(stored, live []listing.Listing, limit int) []listing.Listing {
	buckets := map[string][]listing.Listing{}
	seen := map[string]bool{}

	add := func(bucket string, l listing.Listing) {
		k := l.Key()
		if seen[k] {
			return
		}
		seen[k] = true
		buckets[bucket] = append(buckets[bucket], l)
	}
	for _, l := range stored {
		add(storedSourceName, l)
	}
	for _, l := range live {
		add(l.Source, l)
	}

	order := make([]string, 0, len(buckets))
	for name := range buckets {
		order = append(order, name)
	}
	sort.Strings(order)

	var out []listing.Listing
	for len(out) < limit {
		progressed := false
		for _, name := range order {
			b := buckets[name]
			if len(b) == 0 {
				continue
			}
			out = append(out, b[0])
			buckets[name] = b[1:]
			progressed = true
			if len(out) == limit {
				break
			}
		}
		if !progressed {
			break
		}
	}
	return out
}
