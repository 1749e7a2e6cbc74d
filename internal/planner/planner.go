package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"winova/internal/schedule"
	"winova/internal/storage"
	"winova/internal/task/scheduler"
	logx "winova/pkg/logx"
)

type Planner struct {
	reg   Registry
	disp  Dispatcher
	store storage.Gateway
	log   logx.Logger
	now   func() time.Time

	// Serializes definition revisions so the latest stored revision matches
	// the registry.
	mu sync.Mutex
}

func New(reg Registry, disp Dispatcher, store storage.Gateway, log logx.Logger) *Planner {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Planner{reg: reg, disp: disp, store: store, log: log, now: time.Now}
}

// ScheduleAlert validates spec, stores its definition and registers the job.
// A past-due enabled request is dispatched before returning; a recurring one
// is also registered for its next occurrence.
func (p *Planner) ScheduleAlert(ctx context.Context, spec schedule.AlertScheduleSpec) (AlertResult, error) {
	spec.Normalize()
	now := p.now().UTC()
	res, err := schedule.ResolveAlert(spec, now)
	if err != nil {
		return AlertResult{}, err
	}
	jobID := schedule.AlertJobID(spec)
	out := AlertResult{JobID: jobID}

	fire := scheduler.FromResolution(res, spec.Enabled)
	if res.Immediate && !spec.Enabled && !res.Scheduled() {
		// A disabled past-due one-shot waits for SetEnabled instead of firing.
		fire.FireAt = res.Candidate
	}

	if err := p.registerAlert(ctx, jobID, spec, res, fire, now, &out); err != nil {
		return AlertResult{}, err
	}

	if res.Immediate && spec.Enabled {
		out.Immediate = true
		rec, err := p.disp.Alert(ctx, spec)
		out.TriggeredAt = rec.TriggeredAt
		out.Dispatched = err == nil
		if err != nil {
			p.log.Warn("immediate alert dispatch failed", logx.String("job_id", jobID), logx.Err(err))
		}
	}

	p.log.Info("alert scheduled",
		logx.String("job_id", jobID),
		logx.String("schedule_id", out.ScheduleID),
		logx.Bool("immediate", out.Immediate),
		logx.Time("trigger_time", out.TriggerTime),
	)
	return out, nil
}

func (p *Planner) registerAlert(ctx context.Context, jobID string, spec schedule.AlertScheduleSpec, res schedule.Resolution, fire scheduler.FireSpec, now time.Time, out *AlertResult) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if fire.FireAt.IsZero() {
		p.reg.Cancel(jobID)
	} else {
		h, err := p.reg.Register(jobID, fire, scheduler.Payload{Alert: &spec})
		if err != nil {
			return err
		}
		out.Registered = true
		out.TriggerTime = h.NextFire
	}

	state := StateActive
	if !spec.Enabled {
		state = StateDisabled
	}
	def := AlertDefinition{
		AlertScheduleSpec: spec,
		AdvanceNoticeDays: int(spec.AdvanceLead / (24 * time.Hour)),
		JobID:             jobID,
		TriggerTime:       out.TriggerTime,
		State:             state,
		CreatedAt:         now,
	}
	if !out.Registered {
		def.State = StateFired
		def.TriggerTime = res.Candidate
	}
	id, err := p.store.Insert(ctx, storage.AlertSchedules, def)
	if err != nil {
		if out.Registered {
			p.reg.Cancel(jobID)
		}
		return fmt.Errorf("store alert schedule: %w", err)
	}
	out.ScheduleID = id
	return nil
}

// ScheduleReport validates spec, stores its definition and registers the
// cron job.
func (p *Planner) ScheduleReport(ctx context.Context, spec schedule.ReportScheduleSpec) (ReportResult, error) {
	spec.Normalize()
	now := p.now().UTC()
	res, err := schedule.ResolveReport(spec, p.reg.Location(), now)
	if err != nil {
		return ReportResult{}, err
	}
	jobID := schedule.ReportJobID(spec)

	p.mu.Lock()
	defer p.mu.Unlock()

	h, err := p.reg.Register(jobID, scheduler.FromResolution(res, spec.Enabled), scheduler.Payload{Report: &spec})
	if err != nil {
		return ReportResult{}, err
	}
	state := StateActive
	if !spec.Enabled {
		state = StateDisabled
	}
	id, err := p.store.Insert(ctx, storage.ReportSchedules, ReportDefinition{
		ReportScheduleSpec: spec,
		JobID:              jobID,
		NextRun:            h.NextFire,
		State:              state,
		CreatedAt:          now,
	})
	if err != nil {
		p.reg.Cancel(jobID)
		return ReportResult{}, fmt.Errorf("store report schedule: %w", err)
	}

	p.log.Info("report scheduled", logx.String("job_id", jobID), logx.String("schedule_id", id), logx.Time("next_run", h.NextFire))
	return ReportResult{ScheduleID: id, JobID: jobID, NextRun: h.NextFire}, nil
}

// TriggerAlertNow dispatches spec synchronously without registering a job.
func (p *Planner) TriggerAlertNow(ctx context.Context, spec schedule.AlertScheduleSpec) (time.Time, error) {
	spec.Normalize()
	if err := spec.Validate(); err != nil {
		return time.Time{}, err
	}
	rec, err := p.disp.Alert(ctx, spec)
	if err != nil {
		return time.Time{}, err
	}
	return rec.TriggeredAt, nil
}

// GenerateReportNow dispatches spec synchronously. The cron expression is
// ignored.
func (p *Planner) GenerateReportNow(ctx context.Context, spec schedule.ReportScheduleSpec) (time.Time, error) {
	spec.Normalize()
	if err := spec.ValidateContent(); err != nil {
		return time.Time{}, err
	}
	rec, err := p.disp.Report(ctx, spec)
	if err != nil {
		return time.Time{}, err
	}
	return rec.GeneratedAt, nil
}

// Cancel removes an owner's job and records the cancellation.
func (p *Planner) Cancel(ctx context.Context, ownerID, jobID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkOwner(ownerID, jobID); err != nil {
		return err
	}
	if !p.reg.Cancel(jobID) {
		return ErrNotFound
	}
	return p.reviseLocked(ctx, jobID, StateCancelled)
}

// SetEnabled toggles an owner's job and records the new state.
func (p *Planner) SetEnabled(ctx context.Context, ownerID, jobID string, enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.checkOwner(ownerID, jobID); err != nil {
		return err
	}
	if !p.reg.SetEnabled(jobID, enabled) {
		return ErrNotFound
	}
	state := StateActive
	if !enabled {
		state = StateDisabled
	}
	return p.reviseLocked(ctx, jobID, state)
}

func (p *Planner) checkOwner(ownerID, jobID string) error {
	info, ok := p.reg.Get(jobID)
	if !ok {
		return ErrNotFound
	}
	if info.OwnerID != ownerID {
		return ErrForbidden
	}
	return nil
}

// reviseLocked appends a revision of the latest stored definition of jobID.
func (p *Planner) reviseLocked(ctx context.Context, jobID, state string) error {
	now := p.now().UTC()
	switch {
	case strings.HasPrefix(jobID, "alert:"):
		var defs []AlertDefinition
		if err := p.store.Find(ctx, storage.AlertSchedules, storage.Query{Filter: map[string]any{"job_id": jobID}, Sort: "-", Limit: 1}, &defs); err != nil {
			return err
		}
		if len(defs) == 0 {
			return nil
		}
		d := defs[0]
		d.ID = ""
		d.State = state
		d.Enabled = state == StateActive
		d.CreatedAt = now
		if info, ok := p.reg.Get(jobID); ok {
			d.TriggerTime = info.NextFire
		}
		_, err := p.store.Insert(ctx, storage.AlertSchedules, d)
		return err
	case strings.HasPrefix(jobID, "report:"):
		var defs []ReportDefinition
		if err := p.store.Find(ctx, storage.ReportSchedules, storage.Query{Filter: map[string]any{"job_id": jobID}, Sort: "-", Limit: 1}, &defs); err != nil {
			return err
		}
		if len(defs) == 0 {
			return nil
		}
		d := defs[0]
		d.ID = ""
		d.State = state
		d.Enabled = state == StateActive
		d.CreatedAt = now
		if info, ok := p.reg.Get(jobID); ok {
			d.NextRun = info.NextFire
		}
		_, err := p.store.Insert(ctx, storage.ReportSchedules, d)
		return err
	}
	return nil
}

// Restore re-registers the latest revision of every stored definition.
// Cancelled definitions and one-shot alerts whose fire time has passed are
// skipped; recurring alerts resume at their next occurrence.
func (p *Planner) Restore(ctx context.Context) (RestoreStats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var st RestoreStats
	now := p.now().UTC()

	var alerts []AlertDefinition
	if err := p.store.Find(ctx, storage.AlertSchedules, storage.Query{}, &alerts); err != nil {
		return st, fmt.Errorf("load alert schedules: %w", err)
	}
	for _, d := range latestAlerts(alerts) {
		if err := p.restoreAlert(d, now); err != nil {
			st.Skipped++
			p.log.Debug("alert schedule not restored", logx.String("job_id", d.JobID), logx.Err(err))
			continue
		}
		st.Alerts++
	}

	var reports []ReportDefinition
	if err := p.store.Find(ctx, storage.ReportSchedules, storage.Query{}, &reports); err != nil {
		return st, fmt.Errorf("load report schedules: %w", err)
	}
	for _, d := range latestReports(reports) {
		if err := p.restoreReport(d, now); err != nil {
			st.Skipped++
			p.log.Debug("report schedule not restored", logx.String("job_id", d.JobID), logx.Err(err))
			continue
		}
		st.Reports++
	}

	p.log.Info("schedules restored", logx.Int("alerts", st.Alerts), logx.Int("reports", st.Reports), logx.Int("skipped", st.Skipped))
	return st, nil
}

var (
	errCancelled = errors.New("cancelled or already fired")
	errExpired   = errors.New("fire time passed")
)

func (p *Planner) restoreAlert(d AlertDefinition, now time.Time) error {
	if d.State == StateCancelled || d.State == StateFired {
		return errCancelled
	}
	spec := d.AlertScheduleSpec
	spec.Enabled = d.State == StateActive
	res, err := schedule.ResolveAlert(spec, now)
	if err != nil {
		return err
	}
	fire := scheduler.FromResolution(res, spec.Enabled)
	if !res.Scheduled() {
		if spec.Enabled {
			return errExpired
		}
		fire.FireAt = res.Candidate
	}
	_, err = p.reg.Register(d.JobID, fire, scheduler.Payload{Alert: &spec})
	return err
}

func (p *Planner) restoreReport(d ReportDefinition, now time.Time) error {
	if d.State == StateCancelled {
		return errCancelled
	}
	spec := d.ReportScheduleSpec
	spec.Enabled = d.State == StateActive
	res, err := schedule.ResolveReport(spec, p.reg.Location(), now)
	if err != nil {
		return err
	}
	_, err = p.reg.Register(d.JobID, scheduler.FromResolution(res, spec.Enabled), scheduler.Payload{Report: &spec})
	return err
}

// latestAlerts keeps the last revision per job id, in first-seen order.
func latestAlerts(defs []AlertDefinition) []AlertDefinition {
	idx := map[string]int{}
	var out []AlertDefinition
	for _, d := range defs {
		if i, ok := idx[d.JobID]; ok {
			out[i] = d
			continue
		}
		idx[d.JobID] = len(out)
		out = append(out, d)
	}
	return out
}

func latestReports(defs []ReportDefinition) []ReportDefinition {
	idx := map[string]int{}
	var out []ReportDefinition
	for _, d := range defs {
		if i, ok := idx[d.JobID]; ok {
			out[i] = d
			continue
		}
		idx[d.JobID] = len(out)
		out = append(out, d)
	}
	return out
}
