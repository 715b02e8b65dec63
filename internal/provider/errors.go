package provider

import (
	"errors"
	"fmt"
)

// ErrCooldown indicates the adapter was skipped because its cooldown
// window has not elapsed yet.
var ErrCooldown = errors.New("provider: cooldown active")

// ErrRemoteEmpty indicates the actor run completed but produced no items.
var ErrRemoteEmpty = errors.New("provider: remote returned no items")

// HTTPStatusError indicates the Apify API responded, but with an
// unexpected status code.
type HTTPStatusError struct {
	StatusCode int
	URL        string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("provider: unexpected status %d from %s", e.StatusCode, e.URL)
}

// QuotaError is the 402-class terminal failure: the platform quota is
// exhausted and retrying within this run cannot help.
type QuotaError struct {
	StatusCode int
	ActorID    string
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("provider: quota exhausted for actor %s (status %d)", e.ActorID, e.StatusCode)
}
