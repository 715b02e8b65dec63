// Package dedupe holds the in-memory projection of already-seen listings.
package dedupe

import (
	"github.com/puzpuzpuz/xsync/v4"
)

// KnownSet is a concurrent set of listing surrogate IDs. It answers the
// "have we seen this before" question without touching the database on
// the hot path; the store remains the durable source of truth.
type KnownSet struct {
	ids *xsync.Map[string, struct{}]
}

// NewKnownSet creates an empty set.
func NewKnownSet() *KnownSet {
	return &KnownSet{ids: xsync.NewMap[string, struct{}]()}
}

// Warm loads surrogate IDs into the set, typically from the store at
// startup so restarts do not re-notify old listings.
func (k *KnownSet) Warm(ids []string) {
	for _, id := range ids {
		k.ids.Store(id, struct{}{})
	}
}

// Contains reports whether the surrogate ID has been recorded.
func (k *KnownSet) Contains(id string) bool {
	_, ok := k.ids.Load(id)
	return ok
}

// Record marks the surrogate ID as seen. It returns true when the ID was
// new, false when it was already present, so concurrent workers racing on
// the same listing elect exactly one winner.
func (k *KnownSet) Record(id string) bool {
	_, loaded := k.ids.LoadOrStore(id, struct{}{})
	return !loaded
}

// Len returns the number of recorded IDs.
func (k *KnownSet) Len() int {
	return k.ids.Size()
}
