// Package janitor runs the scheduled retention purge over stored listings.
package janitor

import (
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// Purger deletes listings last seen before the cutoff; satisfied by the
// store.
type Purger interface {
	PurgeListingsOlderThan(cutoffNs int64) (int64, error)
}

// Janitor purges listings older than the retention window on a cron
// schedule.
type Janitor struct {
	purger    Purger
	retention time.Duration
	schedule  string

	cron *cron.Cron
	now  func() time.Time
}

// New builds a Janitor. schedule is a standard five-field cron spec;
// retention is how long a listing may go unseen before it is purged.
func New(purger Purger, schedule string, retention time.Duration) *Janitor {
	return &Janitor{
		purger:    purger,
		retention: retention,
		schedule:  schedule,
		now:       time.Now,
	}
}

// Start registers the schedule and launches the cron runner.
func (j *Janitor) Start() error {
	c := cron.New()
	if _, err := c.AddFunc(j.schedule, j.RunOnce); err != nil {
		return fmt.Errorf("janitor: schedule %q: %w", j.schedule, err)
	}
	c.Start()
	j.cron = c
	log.Printf("[janitor] scheduled %q, retention %s", j.schedule, j.retention)
	return nil
}

// Stop halts the cron runner, waiting for an in-flight purge to finish.
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
}

// RunOnce performs one purge pass immediately.
func (j *Janitor) RunOnce() {
	cutoff := j.now().Add(-j.retention).UnixNano()
	n, err := j.purger.PurgeListingsOlderThan(cutoff)
	if err != nil {
		log.Printf("[janitor] purge: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[janitor] purged %d stale listings", n)
	}
}
