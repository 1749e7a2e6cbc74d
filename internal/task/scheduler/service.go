package scheduler

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"winova/internal/eventbus"
	logx "winova/pkg/logx"
)

const defaultRequeueDelay = time.Second

type Service struct {
	mu sync.Mutex

	log logx.Logger
	cfg Config
	loc *time.Location
	bus eventbus.Bus

	engine  Enqueuer
	handler Handler

	jobs map[string]*job

	// c triggers recurring jobs; one-shots use per-job timers. nil while stopped.
	c   *cron.Cron
	now func() time.Time
}

func New(cfg Config, eng Enqueuer, handler Handler, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:     cfg,
		log:     log,
		bus:     bus,
		engine:  eng,
		handler: handler,
		jobs:    map[string]*job{},
		now:     time.Now,
	}
	s.loc = s.loadLocationLocked()
	return s
}

// Enabled reports the current config flag.
func (s *Service) Enabled() bool {
	s.mu.Lock()
	en := s.cfg.Enabled
	s.mu.Unlock()
	return en
}

// Location is where report cron expressions are evaluated.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	loc := s.loc
	s.mu.Unlock()
	return loc
}

// Apply swaps the config. A timezone change only affects reports registered
// afterwards; armed triggers keep the rules they were built with.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	s.cfg = cfg
	if strings.TrimSpace(cfg.Timezone) != oldTZ {
		s.loc = s.loadLocationLocked()
	}
	s.mu.Unlock()
}

// Start starts cron triggering and arms every enabled job. It is idempotent.
func (s *Service) Start(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled; jobs will be registered but not fired")
		return
	}

	s.c = cron.New(cron.WithLocation(s.loc))
	s.c.Start()
	for _, j := range s.jobs {
		s.syncLocked(j)
	}
	s.log.Info("service started", logx.String("tz", s.loc.String()), logx.Int("jobs", len(s.jobs)))
}

// Stop stops cron triggering and all timers. Registered jobs stay in memory
// and are re-armed on the next Start. In-flight dispatches are not interrupted.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	if c != nil {
		for _, j := range s.jobs {
			s.disarmLocked(j)
		}
	}
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}

	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("scheduler stop incomplete", logx.Err(ctx.Err()))
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

// syncLocked arms j when it is enabled, scheduled and the service is running,
// and disarms it otherwise.
func (s *Service) syncLocked(j *job) {
	s.disarmLocked(j)
	if s.c == nil || !j.enabled || j.status != StatusScheduled {
		return
	}
	gen := j.gen
	fire := func() { s.trigger(j, gen) }
	if j.rule.Recurring() {
		j.entry = s.c.Schedule(&occurrences{first: j.next, rule: j.rule}, cron.FuncJob(fire))
		return
	}
	j.timer = time.AfterFunc(j.next.Sub(s.now()), fire)
}

func (s *Service) disarmLocked(j *job) {
	j.gen++
	if j.timer != nil {
		j.timer.Stop()
		j.timer = nil
	}
	if j.entry != 0 {
		if s.c != nil {
			s.c.Remove(j.entry)
		}
		j.entry = 0
	}
}

// trigger is called by cron or a timer when an armed occurrence is due.
// A recurring entry that comes due while the job is still firing is skipped.
func (s *Service) trigger(j *job, gen uint64) {
	s.mu.Lock()
	if s.jobs[j.id] != j || j.gen != gen || !j.enabled || j.status != StatusScheduled {
		s.mu.Unlock()
		return
	}
	j.status = StatusFiring
	j.fires++
	j.lastFired = s.now()
	s.mu.Unlock()

	s.submit(j)
}

// occurrences feeds cron the armed fire time first and the rule afterwards.
// cron calls Next only from its run goroutine.
type occurrences struct {
	first time.Time
	rule  Rule
	used  bool
}

func (o *occurrences) Next(t time.Time) time.Time {
	if !o.used {
		o.used = true
		return o.first
	}
	return o.rule.Next(t)
}

func (s *Service) loadLocationLocked() *time.Location {
	tz := strings.TrimSpace(s.cfg.Timezone)
	if tz == "" || strings.EqualFold(tz, "UTC") {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone; falling back to UTC", logx.String("tz", tz), logx.Err(err))
		return time.UTC
	}
	return loc
}

func (s *Service) requeueDelay() time.Duration {
	s.mu.Lock()
	d := s.cfg.RequeueDelay
	s.mu.Unlock()
	if d <= 0 {
		d = defaultRequeueDelay
	}
	return d
}

func (s *Service) publish(typ string, j *job, next time.Time, reason string) {
	eventbus.Publish(s.bus, typ, JobEvent{ID: j.id, Kind: j.kind(), Payload: j.payload.Kind(), NextFire: next, Reason: reason})
}
