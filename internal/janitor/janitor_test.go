package janitor

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakePurger struct {
	mu      sync.Mutex
	cutoffs []int64
	err     error
}

func (f *fakePurger) PurgeListingsOlderThan(cutoffNs int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cutoffs = append(f.cutoffs, cutoffNs)
	if f.err != nil {
		return 0, f.err
	}
	return 3, nil
}

func TestRunOnceUsesRetentionCutoff(t *testing.T) {
	p := &fakePurger{}
	j := New(p, "0 4 * * *", 30*24*time.Hour)
	at := time.Date(2026, 8, 24, 4, 0, 0, 0, time.UTC)
	j.now = func() time.Time { return at }

	j.RunOnce()

	if len(p.cutoffs) != 1 {
		t.Fatalf("purge calls = %d, want 1", len(p.cutoffs))
	}
	want := at.Add(-30 * 24 * time.Hour).UnixNano()
	if p.cutoffs[0] != want {
		t.Errorf("cutoff = %d, want %d", p.cutoffs[0], want)
	}
}

func TestRunOnceSwallowsPurgeErrors(t *testing.T) {
	p := &fakePurger{err: errors.New("database locked")}
	j := New(p, "0 4 * * *", time.Hour)
	j.RunOnce() // must not panic or propagate
	if len(p.cutoffs) != 1 {
		t.Errorf("purge calls = %d", len(p.cutoffs))
	}
}

func TestStartRejectsBadSchedule(t *testing.T) {
	j := New(&fakePurger{}, "not a cron spec", time.Hour)
	if err := j.Start(); err == nil {
		t.Fatal("expected schedule parse error")
	}
}

func TestStartStop(t *testing.T) {
	j := New(&fakePurger{}, "0 4 * * *", time.Hour)
	if err := j.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	j.Stop()
	// Stop on a never-started janitor is a no-op.
	New(&fakePurger{}, "0 4 * * *", time.Hour).Stop()
}
