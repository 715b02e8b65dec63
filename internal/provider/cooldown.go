package provider

import (
	"sync/atomic"
	"time"

	"github.com/flatwatch/flatwatch/internal/config"
)

// Cooldown gates how often an adapter may hit its upstream actor. The
// effective window stretches by the quiet scaling factor during quiet
// hours. Safe for concurrent use.
type Cooldown struct {
	base    time.Duration
	scaling float64
	quiet   config.QuietHours

	lastRun atomic.Int64 // unix nanos of the last completed attempt

	now func() time.Time
}

// NewCooldown builds a gate with the given base window and quiet-hours
// scaling.
func NewCooldown(base time.Duration, scaling float64, quiet config.QuietHours) *Cooldown {
	return &Cooldown{
		base:    base,
		scaling: scaling,
		quiet:   quiet,
		now:     time.Now,
	}
}

// Effective returns the cooldown window applicable right now.
func (c *Cooldown) Effective() time.Duration {
	if c.quiet.Contains(c.now().Hour()) && c.scaling > 1 {
		return time.Duration(float64(c.base) * c.scaling)
	}
	return c.base
}

// Ready reports whether enough time has passed since the last attempt.
// A gate that has never fired is always ready.
func (c *Cooldown) Ready() bool {
	last := c.lastRun.Load()
	if last == 0 {
		return true
	}
	return c.now().Sub(time.Unix(0, last)) >= c.Effective()
}

// TryAcquire atomically claims the window when the gate is open. Exactly
// one of several concurrent callers wins; the rest see a closed gate. The
// winner re-stamps via Stamp once its attempt completes.
func (c *Cooldown) TryAcquire() bool {
	last := c.lastRun.Load()
	if last != 0 && c.now().Sub(time.Unix(0, last)) < c.Effective() {
		return false
	}
	return c.lastRun.CompareAndSwap(last, c.now().UnixNano())
}

// Remaining returns how long until the gate opens again, zero when ready.
func (c *Cooldown) Remaining() time.Duration {
	last := c.lastRun.Load()
	if last == 0 {
		return 0
	}
	rem := c.Effective() - c.now().Sub(time.Unix(0, last))
	if rem < 0 {
		return 0
	}
	return rem
}

// Stamp records a completed attempt. Called on success and on terminal
// failures alike so a broken upstream is not hammered.
func (c *Cooldown) Stamp() {
	c.lastRun.Store(c.now().UnixNano())
}
