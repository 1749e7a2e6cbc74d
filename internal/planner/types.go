package planner

import (
	"context"
	"errors"
	"time"

	"winova/internal/dispatch"
	"winova/internal/schedule"
	"winova/internal/task/scheduler"
)

var (
	ErrNotFound  = errors.New("planner: job not found")
	ErrForbidden = errors.New("planner: job belongs to another owner")
)

// Definition states.
const (
	StateActive    = "active"
	StateDisabled  = "disabled"
	StateCancelled = "cancelled"
	// StateFired marks a one-shot that was dispatched immediately.
	StateFired = "fired"
)

// Registry is the part of scheduler.Service the planner drives.
type Registry interface {
	Register(id string, spec scheduler.FireSpec, p scheduler.Payload) (scheduler.JobHandle, error)
	Cancel(id string) bool
	SetEnabled(id string, enabled bool) bool
	Get(id string) (scheduler.JobInfo, bool)
	Location() *time.Location
}

// Dispatcher runs payloads synchronously.
type Dispatcher interface {
	Alert(ctx context.Context, spec schedule.AlertScheduleSpec) (dispatch.AlertRecord, error)
	Report(ctx context.Context, spec schedule.ReportScheduleSpec) (dispatch.ReportRecord, error)
}

// AlertDefinition is one revision of a stored alert schedule.
type AlertDefinition struct {
	ID string `json:"id,omitempty"`
	schedule.AlertScheduleSpec
	AdvanceNoticeDays int       `json:"advance_notice_days"`
	JobID             string    `json:"job_id"`
	TriggerTime       time.Time `json:"trigger_time"`
	State             string    `json:"state"`
	CreatedAt         time.Time `json:"created_at"`
}

// ReportDefinition is one revision of a stored report schedule.
type ReportDefinition struct {
	ID string `json:"id,omitempty"`
	schedule.ReportScheduleSpec
	JobID     string    `json:"job_id"`
	NextRun   time.Time `json:"next_run"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"created_at"`
}

// AlertResult describes what ScheduleAlert did.
type AlertResult struct {
	ScheduleID string
	JobID      string
	// TriggerTime is the first registry firing; zero if nothing was registered.
	TriggerTime time.Time
	Registered  bool

	// Set when the request was past due and dispatched synchronously.
	Immediate   bool
	TriggeredAt time.Time
	Dispatched  bool
}

// ReportResult describes what ScheduleReport did.
type ReportResult struct {
	ScheduleID string
	JobID      string
	NextRun    time.Time
}

// RestoreStats summarizes a Restore pass.
type RestoreStats struct {
	Alerts  int
	Reports int
	Skipped int
}
