package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"winova/internal/eventbus"
	"winova/internal/schedule"
	"winova/internal/task/engine"
	logx "winova/pkg/logx"
)

// Register inserts a job or atomically replaces the job with the same id.
// A replacement resets the job to Scheduled. If the id is firing, the
// replacement is held until that firing settles.
func (s *Service) Register(id string, spec FireSpec, p Payload) (JobHandle, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return JobHandle{}, ErrEmptyID
	}
	if spec.FireAt.IsZero() {
		return JobHandle{}, ErrNoFireTime
	}
	if p.Alert == nil && p.Report == nil {
		return JobHandle{}, ErrEmptyPayload
	}
	spec.FireAt = spec.FireAt.UTC()
	if spec.Rule == nil {
		spec.Rule = schedule.OneShot(spec.FireAt)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	j, exists := s.jobs[id]
	if exists && j.status == StatusFiring {
		j.pending = &pendingReg{spec: spec, payload: p}
		s.log.Debug("job replacement deferred until firing settles", logx.String("job_id", id))
		s.publish(eventbus.JobReplaced, j, spec.FireAt, "deferred")
		return JobHandle{ID: id, NextFire: spec.FireAt, Replaced: true, Deferred: true}, nil
	}

	if !exists {
		j = &job{id: id}
		s.jobs[id] = j
	}
	s.applyLocked(j, spec, p)

	typ := eventbus.JobRegistered
	if exists {
		typ = eventbus.JobReplaced
	}
	s.publish(typ, j, j.next, "")
	s.log.Debug("job registered",
		logx.String("job_id", id),
		logx.String("rule", j.rule.String()),
		logx.Time("next_fire", j.next),
		logx.Bool("enabled", j.enabled),
		logx.Bool("replaced", exists),
	)
	return JobHandle{ID: id, NextFire: j.next, Replaced: exists}, nil
}

// applyLocked installs spec/payload on j and re-arms its trigger.
func (s *Service) applyLocked(j *job, spec FireSpec, p Payload) {
	j.rule = spec.Rule
	j.next = spec.FireAt
	j.enabled = spec.Enabled
	j.payload = p
	j.status = StatusScheduled
	j.pending = nil
	j.cancelled = false
	s.syncLocked(j)
}

// Cancel removes the job. An in-flight firing is not aborted, but the job is
// not re-armed afterwards. Reports whether the id was known.
func (s *Service) Cancel(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return false
	}
	if j.status == StatusFiring {
		j.cancelled = true
		j.pending = nil
		s.publish(eventbus.JobCancelled, j, time.Time{}, "deferred")
		return true
	}
	s.disarmLocked(j)
	j.status = StatusCancelled
	delete(s.jobs, id)
	s.publish(eventbus.JobCancelled, j, time.Time{}, "")
	return true
}

// SetEnabled toggles whether the job is eligible to fire. A re-enabled
// recurring job whose next fire passed while disabled moves to the next
// occurrence after now. A one-shot keeps its time and fires at once if due.
func (s *Service) SetEnabled(id string, enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	j, ok := s.jobs[id]
	if !ok {
		return false
	}
	if j.enabled == enabled {
		return true
	}
	j.enabled = enabled
	if enabled && j.rule.Recurring() && j.status == StatusScheduled {
		if now := s.now(); j.next.Before(now) {
			if next := j.rule.Next(now); !next.IsZero() {
				j.next = next
			}
		}
	}
	if j.status == StatusScheduled {
		s.syncLocked(j)
	}

	typ := eventbus.JobDisabled
	if enabled {
		typ = eventbus.JobEnabled
	}
	s.publish(typ, j, j.next, "")
	return true
}

// Get returns a snapshot of one job.
func (s *Service) Get(id string) (JobInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return JobInfo{}, false
	}
	return j.info(), true
}

// Len is the number of addressable jobs.
func (s *Service) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// submit hands a Firing job to the engine. Called without s.mu.
func (s *Service) submit(j *job) {
	s.mu.Lock()
	id := j.id
	p := j.payload
	fires := j.fires
	timeout := s.cfg.DispatchTimeout
	s.publish(eventbus.JobFired, j, j.next, "")
	s.mu.Unlock()

	handler := s.handler
	task := engine.Task{
		ID:      fmt.Sprintf("%s#%d", id, fires),
		Name:    "job:" + p.Kind(),
		Timeout: timeout,
		Run: func(ctx context.Context) error {
			// Settle even if the handler panics; the engine recovers the panic.
			defer s.settle(j, true, "")
			if handler == nil {
				return nil
			}
			if !handler(ctx, id, p) {
				return fmt.Errorf("%w: %s", ErrDispatchFailed, id)
			}
			return nil
		},
		OnDrop: func(reason error) {
			s.settle(j, false, reason.Error())
		},
	}

	if s.engine == nil {
		s.settle(j, false, "no engine")
		return
	}
	if err := s.engine.Enqueue(task); err != nil {
		s.log.Warn("job submit rejected; requeueing", logx.String("job_id", id), logx.Err(err))
		s.settle(j, false, err.Error())
	}
}

// settle moves a Firing job to its next state. fired=false means the
// dispatch never ran and the same occurrence is retried after RequeueDelay.
func (s *Service) settle(j *job, fired bool, reason string) {
	delay := s.requeueDelay()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.jobs[j.id] != j || j.status != StatusFiring {
		return
	}
	now := s.now()

	switch {
	case j.pending != nil:
		pr := j.pending
		s.applyLocked(j, pr.spec, pr.payload)
		s.publish(eventbus.JobReplaced, j, j.next, "applied")
		return
	case j.cancelled:
		s.disarmLocked(j)
		j.status = StatusCancelled
		delete(s.jobs, j.id)
		return
	case !fired:
		j.status = StatusScheduled
		j.next = now.Add(delay)
		s.syncLocked(j)
		s.publish(eventbus.JobRequeued, j, j.next, reason)
		return
	}

	next := j.rule.Next(now)
	if !j.rule.Recurring() || next.IsZero() {
		s.disarmLocked(j)
		j.status = StatusDone
		delete(s.jobs, j.id)
		s.publish(eventbus.JobCompleted, j, time.Time{}, "")
		return
	}
	j.status = StatusScheduled
	j.next = next
	s.syncLocked(j)
	s.publish(eventbus.JobCompleted, j, next, "")
}
