// Package notify delivers matched listings to users with per-user
// throttling, per-cycle caps, and an at-most-once audit ledger.
package notify

import (
	"context"
	"errors"
	"log"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/flatwatch/flatwatch/internal/listing"
)

// Sender delivers one listing to one user. Implementations wrap the
// actual messaging channel (Telegram bot, log output in development).
type Sender interface {
	SendListing(ctx context.Context, userID int64, l listing.Listing, language string) error
}

// Ledger is the persistent at-most-once record of deliveries.
type Ledger interface {
	HasNotification(userID int64, listingID string) (bool, error)
	SaveNotification(id string, userID int64, listingID string, sentAtNs int64) (bool, error)
}

// ErrCycleCap is returned when the per-cycle delivery budget for a user
// is exhausted; the listing stays persisted and may match again later.
var ErrCycleCap = errors.New("per-cycle notification cap reached")

// Dispatcher coordinates delivery. Safe for concurrent use.
type Dispatcher struct {
	sender   Sender
	ledger   Ledger
	throttle time.Duration
	maxCycle int

	// nextSend holds the earliest allowed send time per user; Compute
	// reserves slots so concurrent dispatches queue behind each other.
	nextSend *xsync.Map[int64, time.Time]
	sent     *xsync.Map[int64, *atomic.Int64]

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewDispatcher builds a Dispatcher. throttle is the minimum gap between
// two deliveries to the same user; maxPerCycle caps deliveries per user
// within one scheduler cycle.
func NewDispatcher(sender Sender, ledger Ledger, throttle time.Duration, maxPerCycle int) *Dispatcher {
	return &Dispatcher{
		sender:   sender,
		ledger:   ledger,
		throttle: throttle,
		maxCycle: maxPerCycle,
		nextSend: xsync.NewMap[int64, time.Time](),
		sent:     xsync.NewMap[int64, *atomic.Int64](),
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ResetCycle clears the per-cycle counters. The scheduler calls it at the
// start of each enqueuer wave.
func (d *Dispatcher) ResetCycle() {
	d.sent.Range(func(userID int64, c *atomic.Int64) bool {
		c.Store(0)
		return true
	})
}

// SentTo returns how many deliveries the user received this cycle.
func (d *Dispatcher) SentTo(userID int64) int {
	c, ok := d.sent.Load(userID)
	if !ok {
		return 0
	}
	return int(c.Load())
}

// Dispatch delivers l to the user unless already delivered, the cycle cap
// is reached, or sending fails. It returns true when a new delivery was
// made and recorded.
func (d *Dispatcher) Dispatch(ctx context.Context, user listing.User, l listing.Listing) (bool, error) {
	already, err := d.ledger.HasNotification(user.TelegramID, l.SurrogateID)
	if err != nil {
		return false, err
	}
	if already {
		return false, nil
	}

	counter, _ := d.sent.LoadOrStore(user.TelegramID, &atomic.Int64{})
	if n := counter.Add(1); int(n) > d.maxCycle {
		counter.Add(-1)
		return false, ErrCycleCap
	}

	if err := d.waitThrottle(ctx, user.TelegramID); err != nil {
		counter.Add(-1)
		return false, err
	}

	if err := d.sender.SendListing(ctx, user.TelegramID, l, user.Language); err != nil {
		counter.Add(-1)
		log.Printf("[notify] user=%d listing=%s send failed: %v", user.TelegramID, l.SurrogateID, err)
		return false, err
	}

	recorded, err := d.ledger.SaveNotification(uuid.NewString(), user.TelegramID, l.SurrogateID, d.now().UnixNano())
	if err != nil {
		return false, err
	}
	if !recorded {
		// Lost a race with another worker; the user still got one message.
		return false, nil
	}
	return true, nil
}

// waitThrottle reserves the next send slot for the user and waits until
// it opens.
func (d *Dispatcher) waitThrottle(ctx context.Context, userID int64) error {
	var wait time.Duration
	d.nextSend.Compute(userID, func(prev time.Time, loaded bool) (time.Time, xsync.ComputeOp) {
		now := d.now()
		start := now
		if loaded && prev.After(now) {
			start = prev
		}
		wait = start.Sub(now)
		return start.Add(d.throttle), xsync.UpdateOp
	})
	if wait <= 0 {
		return nil
	}
	return d.sleep(ctx, wait)
}
