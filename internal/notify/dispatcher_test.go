package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/flatwatch/flatwatch/internal/listing"
)

type fakeSender struct {
	mu    sync.Mutex
	sent  []string
	fail  bool
	delay func()
}

func (f *fakeSender) SendListing(_ context.Context, userID int64, l listing.Listing, _ string) error {
	if f.delay != nil {
		f.delay()
	}
	if f.fail {
		return errors.New("telegram unavailable")
	}
	f.mu.Lock()
	f.sent = append(f.sent, l.SurrogateID)
	f.mu.Unlock()
	return nil
}

type fakeLedger struct {
	mu      sync.Mutex
	records map[string]bool // user|listing
	saveErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: make(map[string]bool)}
}

func ledgerKey(userID int64, listingID string) string {
	return fmt.Sprintf("%d|%s", userID, listingID)
}

func (f *fakeLedger) HasNotification(userID int64, listingID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.records[ledgerKey(userID, listingID)], nil
}

func (f *fakeLedger) SaveNotification(id string, userID int64, listingID string, _ int64) (bool, error) {
	if f.saveErr != nil {
		return false, f.saveErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	k := ledgerKey(userID, listingID)
	if f.records[k] {
		return false, nil
	}
	f.records[k] = true
	return true, nil
}

func testDispatcher(sender Sender, ledger Ledger, maxPerCycle int) *Dispatcher {
	d := NewDispatcher(sender, ledger, 2*time.Second, maxPerCycle)
	d.now = func() time.Time { return time.Unix(0, 0) }
	d.sleep = func(context.Context, time.Duration) error { return nil }
	return d
}

func testUser() listing.User {
	return listing.User{TelegramID: 7, Language: "de"}
}

func testListing(id string) listing.Listing {
	return listing.Listing{SurrogateID: id, Title: "Wohnung", Price: 900, City: "Berlin", URL: "https://x"}
}

func TestDispatchDeliversAndRecords(t *testing.T) {
	sender := &fakeSender{}
	ledger := newFakeLedger()
	d := testDispatcher(sender, ledger, 8)

	sent, err := d.Dispatch(context.Background(), testUser(), testListing("apify_x_1"))
	if err != nil || !sent {
		t.Fatalf("Dispatch = (%v, %v), want (true, nil)", sent, err)
	}
	if len(sender.sent) != 1 {
		t.Errorf("sender calls = %d", len(sender.sent))
	}
	if ok, _ := ledger.HasNotification(7, "apify_x_1"); !ok {
		t.Error("delivery not recorded")
	}
	if d.SentTo(7) != 1 {
		t.Errorf("SentTo = %d, want 1", d.SentTo(7))
	}
}

func TestDispatchAtMostOnce(t *testing.T) {
	sender := &fakeSender{}
	ledger := newFakeLedger()
	d := testDispatcher(sender, ledger, 8)

	if _, err := d.Dispatch(context.Background(), testUser(), testListing("apify_x_1")); err != nil {
		t.Fatal(err)
	}
	sent, err := d.Dispatch(context.Background(), testUser(), testListing("apify_x_1"))
	if err != nil {
		t.Fatal(err)
	}
	if sent {
		t.Error("second dispatch of the same listing delivered again")
	}
	if len(sender.sent) != 1 {
		t.Errorf("sender calls = %d, want 1", len(sender.sent))
	}
}

func TestDispatchCycleCap(t *testing.T) {
	sender := &fakeSender{}
	ledger := newFakeLedger()
	d := testDispatcher(sender, ledger, 2)
	ctx := context.Background()

	for _, id := range []string{"a", "b"} {
		if sent, err := d.Dispatch(ctx, testUser(), testListing(id)); err != nil || !sent {
			t.Fatalf("dispatch %s = (%v, %v)", id, sent, err)
		}
	}

	sent, err := d.Dispatch(ctx, testUser(), testListing("c"))
	if !errors.Is(err, ErrCycleCap) || sent {
		t.Fatalf("over-cap dispatch = (%v, %v), want ErrCycleCap", sent, err)
	}

	// A new cycle frees the budget; the undelivered listing goes through.
	d.ResetCycle()
	sent, err = d.Dispatch(ctx, testUser(), testListing("c"))
	if err != nil || !sent {
		t.Errorf("post-reset dispatch = (%v, %v)", sent, err)
	}
}

func TestDispatchSendFailureLeavesNoRecord(t *testing.T) {
	sender := &fakeSender{fail: true}
	ledger := newFakeLedger()
	d := testDispatcher(sender, ledger, 8)

	sent, err := d.Dispatch(context.Background(), testUser(), testListing("apify_x_1"))
	if err == nil || sent {
		t.Fatalf("Dispatch = (%v, %v), want send error", sent, err)
	}
	if ok, _ := ledger.HasNotification(7, "apify_x_1"); ok {
		t.Error("failed delivery was recorded")
	}
	if d.SentTo(7) != 0 {
		t.Errorf("SentTo = %d after failure, want 0", d.SentTo(7))
	}

	// Retry in a later cycle succeeds.
	sender.fail = false
	sent, err = d.Dispatch(context.Background(), testUser(), testListing("apify_x_1"))
	if err != nil || !sent {
		t.Errorf("retry dispatch = (%v, %v)", sent, err)
	}
}

func TestDispatchThrottleWaits(t *testing.T) {
	sender := &fakeSender{}
	ledger := newFakeLedger()
	d := NewDispatcher(sender, ledger, 2*time.Second, 8)

	clock := time.Unix(1000, 0)
	d.now = func() time.Time { return clock }
	var waits []time.Duration
	d.sleep = func(_ context.Context, w time.Duration) error {
		waits = append(waits, w)
		return nil
	}

	ctx := context.Background()
	d.Dispatch(ctx, testUser(), testListing("a"))
	d.Dispatch(ctx, testUser(), testListing("b"))
	d.Dispatch(ctx, testUser(), testListing("c"))

	if len(waits) != 2 {
		t.Fatalf("got %d waits, want 2 (first send is free)", len(waits))
	}
	if waits[0] != 2*time.Second || waits[1] != 4*time.Second {
		t.Errorf("waits = %v, want reservation chain 2s, 4s", waits)
	}
}

func TestDispatchThrottleIsPerUser(t *testing.T) {
	sender := &fakeSender{}
	ledger := newFakeLedger()
	d := NewDispatcher(sender, ledger, 2*time.Second, 8)
	d.now = func() time.Time { return time.Unix(1000, 0) }

	var waits int
	d.sleep = func(context.Context, time.Duration) error {
		waits++
		return nil
	}

	ctx := context.Background()
	d.Dispatch(ctx, listing.User{TelegramID: 1}, testListing("a"))
	d.Dispatch(ctx, listing.User{TelegramID: 2}, testListing("a"))

	if waits != 0 {
		t.Errorf("distinct users should not throttle each other, got %d waits", waits)
	}
}

func TestDispatchConcurrentSameListing(t *testing.T) {
	sender := &fakeSender{}
	ledger := newFakeLedger()
	d := testDispatcher(sender, ledger, 100)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if sent, _ := d.Dispatch(context.Background(), testUser(), testListing("contested")); sent {
				mu.Lock()
				delivered++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// The ledger save is the arbiter: exactly one dispatch reports a new
	// delivery even when the pre-check races.
	if delivered != 1 {
		t.Errorf("delivered = %d, want 1", delivered)
	}
}
