package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"winova/internal/schedule"
	"winova/internal/task/engine"
)

var (
	ErrNoFireTime     = errors.New("scheduler: fire time required")
	ErrEmptyID        = errors.New("scheduler: job id required")
	ErrEmptyPayload   = errors.New("scheduler: payload required")
	ErrDispatchFailed = errors.New("scheduler: dispatch reported failure")
)

// Config controls the registry.
type Config struct {
	Enabled bool

	// Timezone is the IANA zone report cron expressions are evaluated in.
	// Empty means UTC.
	Timezone string

	// RequeueDelay is how long a job waits before another attempt when the
	// task engine rejects it. Default 1s.
	RequeueDelay time.Duration

	// DispatchTimeout bounds each dispatch. 0 falls back to the engine's
	// default timeout.
	DispatchTimeout time.Duration
}

type Kind string

const (
	KindOneShot   Kind = "one_shot"
	KindRecurring Kind = "recurring"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusFiring    Status = "firing"
	StatusDone      Status = "done"
	StatusCancelled Status = "cancelled"
)

// Payload carries exactly one of the typed dispatch inputs.
type Payload struct {
	Alert  *schedule.AlertScheduleSpec  `json:"alert,omitempty"`
	Report *schedule.ReportScheduleSpec `json:"report,omitempty"`
}

func (p Payload) Kind() string {
	switch {
	case p.Alert != nil:
		return "alert"
	case p.Report != nil:
		return "report"
	default:
		return ""
	}
}

func (p Payload) owner() string {
	switch {
	case p.Alert != nil:
		return p.Alert.OwnerID
	case p.Report != nil:
		return p.Report.OwnerID
	default:
		return ""
	}
}

// Rule yields occurrences strictly after t; the zero time means none.
// schedule.FireRule implements it. Every Rule is also a cron.Schedule.
type Rule interface {
	Next(t time.Time) time.Time
	Recurring() bool
	String() string
}

var _ Rule = schedule.FireRule{}

// FireSpec tells the registry when a job first fires and how it recurs.
// A nil Rule is a one-shot at FireAt.
type FireSpec struct {
	Rule    Rule
	FireAt  time.Time
	Enabled bool
}

// FromResolution builds the FireSpec for a resolved specification.
func FromResolution(res schedule.Resolution, enabled bool) FireSpec {
	return FireSpec{Rule: res.Rule, FireAt: res.FireAt, Enabled: enabled}
}

// JobHandle is returned by Register.
type JobHandle struct {
	ID       string
	NextFire time.Time
	Replaced bool
	// Deferred is true when the job was firing and the replacement applies
	// once that firing settles.
	Deferred bool
}

// Handler runs a due job. It reports success; failures are not retried.
type Handler func(ctx context.Context, id string, p Payload) bool

// Enqueuer is the part of the task engine the registry needs.
type Enqueuer interface {
	Enqueue(t engine.Task) error
}

// JobInfo is a point-in-time view of one job.
type JobInfo struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Rule      string    `json:"rule"`
	Payload   string    `json:"payload"`
	OwnerID   string    `json:"owner_id,omitempty"`
	NextFire  time.Time `json:"next_fire"`
	Enabled   bool      `json:"enabled"`
	Status    Status    `json:"status"`
	Fires     uint64    `json:"fires"`
	LastFired time.Time `json:"last_fired,omitempty"`
	Pending   bool      `json:"pending_replacement,omitempty"`
}

// Snapshot is a diagnostics view of the registry and its engine.
type Snapshot struct {
	Enabled  bool             `json:"enabled"`
	Running  bool             `json:"running"`
	Timezone string           `json:"timezone"`
	Jobs     []JobInfo        `json:"jobs"`
	Engine   *engine.Snapshot `json:"engine,omitempty"`
}

// JobEvent is published on the bus for job lifecycle events.
type JobEvent struct {
	ID       string    `json:"id"`
	Kind     Kind      `json:"kind"`
	Payload  string    `json:"payload"`
	NextFire time.Time `json:"next_fire,omitempty"`
	Reason   string    `json:"reason,omitempty"`
}

type job struct {
	id      string
	rule    Rule
	next    time.Time
	enabled bool
	payload Payload
	status  Status

	// Armed trigger: a cron entry for recurring rules, a timer otherwise.
	// gen is bumped on every (dis)arm so a stale trigger is a no-op.
	entry cron.EntryID
	timer *time.Timer
	gen   uint64

	// Set while firing.
	pending   *pendingReg
	cancelled bool

	fires     uint64
	lastFired time.Time
}

type pendingReg struct {
	spec    FireSpec
	payload Payload
}

func (j *job) kind() Kind {
	if j.rule.Recurring() {
		return KindRecurring
	}
	return KindOneShot
}

func (j *job) info() JobInfo {
	return JobInfo{
		ID:        j.id,
		Kind:      j.kind(),
		Rule:      j.rule.String(),
		Payload:   j.payload.Kind(),
		OwnerID:   j.payload.owner(),
		NextFire:  j.next,
		Enabled:   j.enabled,
		Status:    j.status,
		Fires:     j.fires,
		LastFired: j.lastFired,
		Pending:   j.pending != nil,
	}
}
