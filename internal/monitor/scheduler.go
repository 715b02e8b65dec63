// Package monitor drives the continuous ingestion loop: an enqueuer that
// derives one job per monitored city at an adaptive cadence, and a worker
// pool that fans out the provider adapters, persists new listings, and
// hands matches to the notification dispatcher.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/flatwatch/flatwatch/internal/config"
	"github.com/flatwatch/flatwatch/internal/dedupe"
	"github.com/flatwatch/flatwatch/internal/listing"
	"github.com/flatwatch/flatwatch/internal/match"
	"github.com/flatwatch/flatwatch/internal/normalize"
	"github.com/flatwatch/flatwatch/internal/notify"
	"github.com/flatwatch/flatwatch/internal/provider"
)

// businessHoursTick caps the check interval during working hours so
// fresh listings surface quickly when most are posted.
const businessHoursTick = 30 * time.Second

// Repo is the slice of the store the scheduler needs.
type Repo interface {
	UsersWithActiveSubscriptions(nowNs int64) ([]listing.User, error)
	GetUserFilter(userID int64) (*listing.UserFilter, error)
	SaveListing(l listing.Listing) error
}

// Dispatcher delivers one listing to one user; satisfied by
// notify.Dispatcher.
type Dispatcher interface {
	ResetCycle()
	Dispatch(ctx context.Context, user listing.User, l listing.Listing) (bool, error)
}

// State is the scheduler lifecycle state.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// ErrNotIdle and ErrNotRunning guard the lifecycle transitions.
var (
	ErrNotIdle    = errors.New("scheduler: not idle")
	ErrNotRunning = errors.New("scheduler: not running")
)

// Config carries the scheduler knobs, derived from the env config.
type Config struct {
	DefaultCity         string
	MaxPriceCap         float64
	CheckIntervalNormal time.Duration
	CheckIntervalQuiet  time.Duration
	QuietHours          config.QuietHours
	Workers             int
	MaxApartmentsPerJob int
}

type userWithFilter struct {
	user   listing.User
	filter listing.UserFilter
}

// job is one unit of worker work: search a city for its interested users.
// A nil job is the worker shutdown sentinel.
type job struct {
	query  listing.Query
	users  []userWithFilter
	bypass bool
}

// Status is a point-in-time scheduler snapshot.
type Status struct {
	State     string `json:"state"`
	Cycles    int64  `json:"cycles"`
	Processed int64  `json:"processed"`
	Notified  int64  `json:"notified"`
	Known     int    `json:"known"`
}

// Scheduler owns the ingestion loop.
type Scheduler struct {
	cfg        Config
	repo       Repo
	adapters   []provider.Adapter
	known      *dedupe.KnownSet
	dispatcher Dispatcher
	enricher   *normalize.Enricher // optional

	state atomic.Int32

	jobs     chan *job
	stopCh   chan struct{}
	enqWg    sync.WaitGroup
	workerWg sync.WaitGroup

	cycles    atomic.Int64
	processed atomic.Int64
	notified  atomic.Int64

	now func() time.Time
}

// New builds a Scheduler. enricher may be nil to disable page enrichment.
func New(cfg Config, repo Repo, adapters []provider.Adapter, known *dedupe.KnownSet, dispatcher Dispatcher, enricher *normalize.Enricher) *Scheduler {
	return &Scheduler{
		cfg:        cfg,
		repo:       repo,
		adapters:   adapters,
		known:      known,
		dispatcher: dispatcher,
		enricher:   enricher,
		now:        time.Now,
	}
}

// workerCount clamps the configured pool size into [4, 10].
func (s *Scheduler) workerCount() int {
	n := s.cfg.Workers
	if n > 10 {
		n = 10
	}
	if n < 4 {
		n = 4
	}
	return n
}

// Start launches the workers and the enqueuer. Only valid from idle.
func (s *Scheduler) Start() error {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return fmt.Errorf("%w: %s", ErrNotIdle, State(s.state.Load()))
	}

	s.stopCh = make(chan struct{})
	s.jobs = make(chan *job, 16)

	workers := s.workerCount()
	for i := 0; i < workers; i++ {
		s.workerWg.Add(1)
		go s.worker(i)
	}

	s.enqWg.Add(1)
	go s.enqueueLoop()

	log.Printf("[monitor] started: %d workers, %d adapters", workers, len(s.adapters))
	return nil
}

// Stop drains the loop: the enqueuer exits, every worker receives one nil
// sentinel, and the call returns once all workers have joined.
func (s *Scheduler) Stop() error {
	if !s.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return fmt.Errorf("%w: %s", ErrNotRunning, State(s.state.Load()))
	}

	close(s.stopCh)
	s.enqWg.Wait()

	for i := 0; i < s.workerCount(); i++ {
		s.jobs <- nil
	}
	s.workerWg.Wait()

	s.state.Store(int32(StateIdle))
	log.Printf("[monitor] stopped after %d cycles", s.cycles.Load())
	return nil
}

// ForceCheck runs one enqueuer pass immediately with cooldowns bypassed.
func (s *Scheduler) ForceCheck() error {
	if State(s.state.Load()) != StateRunning {
		return ErrNotRunning
	}
	s.pass(true)
	return nil
}

// Status returns a snapshot of loop counters.
func (s *Scheduler) Status() Status {
	return Status{
		State:     State(s.state.Load()).String(),
		Cycles:    s.cycles.Load(),
		Processed: s.processed.Load(),
		Notified:  s.notified.Load(),
		Known:     s.known.Len(),
	}
}

func (s *Scheduler) enqueueLoop() {
	defer s.enqWg.Done()

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C // drain initial fire

	for {
		s.pass(false)

		timer.Reset(s.tick())
		select {
		case <-s.stopCh:
			return
		case <-timer.C:
		}
	}
}

// tick returns the sleep until the next pass: the quiet interval inside
// quiet hours, otherwise the normal interval capped during business hours.
func (s *Scheduler) tick() time.Duration {
	now := s.now()
	if s.cfg.QuietHours.Contains(now.Hour()) {
		return s.cfg.CheckIntervalQuiet
	}
	d := s.cfg.CheckIntervalNormal
	if h := now.Hour(); h >= 9 && h < 18 && d > businessHoursTick {
		d = businessHoursTick
	}
	return d
}

// pass runs one enqueuer wave: reset cycle counters, load the active
// users and their filters, group them by city, enqueue one job per city.
func (s *Scheduler) pass(bypass bool) {
	s.cycles.Add(1)
	s.dispatcher.ResetCycle()

	users, err := s.repo.UsersWithActiveSubscriptions(s.now().UnixNano())
	if err != nil {
		log.Printf("[monitor] load users: %v", err)
		return
	}
	if len(users) == 0 {
		return
	}

	byCity := make(map[string][]userWithFilter)
	for _, u := range users {
		f, err := s.repo.GetUserFilter(u.TelegramID)
		if err != nil {
			log.Printf("[monitor] load filter user=%d: %v", u.TelegramID, err)
			continue
		}
		uf := userWithFilter{user: u}
		if f != nil {
			uf.filter = *f
		}
		// Runaway price bounds are clamped to the global cap.
		if c := s.cfg.MaxPriceCap; c > 0 && uf.filter.PriceMax != nil && *uf.filter.PriceMax > c {
			uf.filter.PriceMax = listing.Float(c)
		}
		city := uf.filter.City
		if city == "" {
			city = s.cfg.DefaultCity
		}
		byCity[city] = append(byCity[city], uf)
	}

	for city, interested := range byCity {
		j := &job{
			query:  listing.Query{City: city},
			users:  interested,
			bypass: bypass,
		}
		select {
		case s.jobs <- j:
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) worker(id int) {
	defer s.workerWg.Done()
	for {
		j := <-s.jobs
		if j == nil {
			return
		}
		s.processJob(id, j)
	}
}

// processJob fans out all adapters for the job's city, persists new
// listings, and dispatches matches. Failures are logged, never fatal.
func (s *Scheduler) processJob(workerID int, j *job) {
	ctx := context.Background()
	opts := provider.SearchOptions{BypassCooldown: j.bypass}

	var (
		mu     sync.Mutex
		found  []listing.Listing
		fanOut sync.WaitGroup
	)
	for _, a := range s.adapters {
		fanOut.Add(1)
		go func(a provider.Adapter) {
			defer fanOut.Done()
			listings, err := a.Search(ctx, j.query, opts)
			if err != nil {
				if errors.Is(err, provider.ErrCooldown) {
					return
				}
				log.Printf("[monitor] worker=%d %s search %s: %v", workerID, a.Name(), j.query.City, err)
				return
			}
			mu.Lock()
			found = append(found, listings...)
			mu.Unlock()
		}(a)
	}
	fanOut.Wait()

	kept := found[:0]
	for _, l := range found {
		// The adapters already filtered, but merged payloads go through
		// the gate once more before touching state.
		if l.HasMeaningfulContent() {
			kept = append(kept, l)
		}
	}
	if max := s.cfg.MaxApartmentsPerJob; max > 0 && len(kept) > max {
		kept = kept[:max]
	}

	for _, l := range kept {
		if s.known.Contains(l.SurrogateID) {
			continue
		}
		s.ingest(ctx, j, l)
	}
}

// ingest persists one new listing and notifies every interested user
// whose filter matches.
func (s *Scheduler) ingest(ctx context.Context, j *job, l listing.Listing) {
	if s.enricher != nil {
		s.enricher.Enrich(ctx, &l)
	}

	nowNs := s.now().UnixNano()
	l.FirstSeenNs = nowNs
	l.LastSeenNs = nowNs
	if err := s.repo.SaveListing(l); err != nil {
		log.Printf("[monitor] save %s: %v", l.SurrogateID, err)
		return
	}
	if !s.known.Record(l.SurrogateID) {
		// Another worker won the race; it also owns the notifications.
		return
	}
	s.processed.Add(1)

	var wg sync.WaitGroup
	for _, uf := range j.users {
		if !match.Matches(l, uf.filter) {
			continue
		}
		wg.Add(1)
		go func(uf userWithFilter) {
			defer wg.Done()
			sent, err := s.dispatcher.Dispatch(ctx, uf.user, l)
			if err != nil && !errors.Is(err, notify.ErrCycleCap) {
				log.Printf("[monitor] dispatch user=%d listing=%s: %v", uf.user.TelegramID, l.SurrogateID, err)
				return
			}
			if sent {
				s.notified.Add(1)
			}
		}(uf)
	}
	wg.Wait()
}
