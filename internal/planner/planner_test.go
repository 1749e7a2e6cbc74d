package planner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"winova/internal/dispatch"
	"winova/internal/schedule"
	"winova/internal/storage"
	"winova/internal/task/scheduler"
	logx "winova/pkg/logx"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type fakeJob struct {
	spec    scheduler.FireSpec
	payload scheduler.Payload
}

type fakeRegistry struct {
	mu   sync.Mutex
	jobs map[string]fakeJob
}

func newFakeRegistry() *fakeRegistry { return &fakeRegistry{jobs: map[string]fakeJob{}} }

func (r *fakeRegistry) Register(id string, spec scheduler.FireSpec, p scheduler.Payload) (scheduler.JobHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if spec.FireAt.IsZero() {
		return scheduler.JobHandle{}, scheduler.ErrNoFireTime
	}
	_, replaced := r.jobs[id]
	r.jobs[id] = fakeJob{spec: spec, payload: p}
	return scheduler.JobHandle{ID: id, NextFire: spec.FireAt, Replaced: replaced}, nil
}

func (r *fakeRegistry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jobs[id]
	delete(r.jobs, id)
	return ok
}

func (r *fakeRegistry) SetEnabled(id string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if ok {
		j.spec.Enabled = enabled
		r.jobs[id] = j
	}
	return ok
}

func (r *fakeRegistry) Get(id string) (scheduler.JobInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return scheduler.JobInfo{}, false
	}
	owner := ""
	switch {
	case j.payload.Alert != nil:
		owner = j.payload.Alert.OwnerID
	case j.payload.Report != nil:
		owner = j.payload.Report.OwnerID
	}
	return scheduler.JobInfo{ID: id, OwnerID: owner, NextFire: j.spec.FireAt, Enabled: j.spec.Enabled}, true
}

func (r *fakeRegistry) Location() *time.Location { return time.UTC }

func (r *fakeRegistry) job(id string) (fakeJob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	return j, ok
}

type fakeDispatcher struct {
	mu      sync.Mutex
	alerts  int
	reports int
	err     error
}

func (d *fakeDispatcher) Alert(ctx context.Context, spec schedule.AlertScheduleSpec) (dispatch.AlertRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.alerts++
	if d.err != nil {
		return dispatch.AlertRecord{}, d.err
	}
	return dispatch.AlertRecord{OwnerID: spec.OwnerID, TriggeredAt: testNow, Status: dispatch.StatusActive}, nil
}

func (d *fakeDispatcher) Report(ctx context.Context, spec schedule.ReportScheduleSpec) (dispatch.ReportRecord, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.reports++
	if d.err != nil {
		return dispatch.ReportRecord{}, d.err
	}
	return dispatch.ReportRecord{OwnerID: spec.OwnerID, GeneratedAt: testNow, Status: dispatch.StatusCompleted}, nil
}

func newTestPlanner(t *testing.T) (*Planner, *fakeRegistry, *fakeDispatcher, storage.Gateway) {
	t.Helper()
	reg := newFakeRegistry()
	disp := &fakeDispatcher{}
	store := storage.NewMemory()
	p := New(reg, disp, store, logx.Nop())
	p.now = func() time.Time { return testNow }
	return p, reg, disp, store
}

func alertSpec(deadline time.Time, rec schedule.Recurrence) schedule.AlertScheduleSpec {
	return schedule.AlertScheduleSpec{
		OwnerID:     "u1",
		Kind:        schedule.AlertComplianceDeadline,
		Title:       "ETS filing",
		Deadline:    deadline,
		AdvanceLead: 7 * 24 * time.Hour,
		Recurrence:  rec,
		Enabled:     true,
	}
}

func TestScheduleAlert(t *testing.T) {
	t.Parallel()

	day := 24 * time.Hour
	tests := []struct {
		name           string
		spec           func() schedule.AlertScheduleSpec
		wantRegistered bool
		wantImmediate  bool
		wantTrigger    time.Time
		wantState      string
	}{
		{
			name:           "future one-shot",
			spec:           func() schedule.AlertScheduleSpec { return alertSpec(testNow.Add(10*day), schedule.RecurNone) },
			wantRegistered: true,
			wantTrigger:    testNow.Add(3 * day),
			wantState:      StateActive,
		},
		{
			name:          "past-due one-shot fires now",
			spec:          func() schedule.AlertScheduleSpec { return alertSpec(testNow.Add(-day), schedule.RecurNone) },
			wantImmediate: true,
			wantState:     StateFired,
		},
		{
			name:           "past-due recurring fires now and rearms",
			spec:           func() schedule.AlertScheduleSpec { return alertSpec(testNow.Add(-day), schedule.RecurDaily) },
			wantRegistered: true,
			wantImmediate:  true,
			wantTrigger:    time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC),
			wantState:      StateActive,
		},
		{
			name: "disabled past-due one-shot waits",
			spec: func() schedule.AlertScheduleSpec {
				s := alertSpec(testNow.Add(-day), schedule.RecurNone)
				s.Enabled = false
				return s
			},
			wantRegistered: true,
			wantTrigger:    testNow.Add(-8 * day),
			wantState:      StateDisabled,
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, reg, disp, store := newTestPlanner(t)
			spec := tt.spec()

			res, err := p.ScheduleAlert(context.Background(), spec)
			if err != nil {
				t.Fatalf("schedule: %v", err)
			}
			if res.JobID != schedule.AlertJobID(spec) || res.ScheduleID == "" {
				t.Fatalf("unexpected ids: %+v", res)
			}
			if res.Registered != tt.wantRegistered || res.Immediate != tt.wantImmediate {
				t.Fatalf("registered=%v immediate=%v", res.Registered, res.Immediate)
			}
			if tt.wantRegistered && !res.TriggerTime.Equal(tt.wantTrigger) {
				t.Fatalf("trigger time %s want %s", res.TriggerTime, tt.wantTrigger)
			}
			if _, ok := reg.job(res.JobID); ok != tt.wantRegistered {
				t.Fatalf("registry has job=%v", ok)
			}
			wantAlerts := 0
			if tt.wantImmediate {
				wantAlerts = 1
				if !res.Dispatched || !res.TriggeredAt.Equal(testNow) {
					t.Fatalf("immediate dispatch not reported: %+v", res)
				}
			}
			if disp.alerts != wantAlerts {
				t.Fatalf("dispatched %d alerts want %d", disp.alerts, wantAlerts)
			}

			var defs []AlertDefinition
			if err := store.Find(context.Background(), storage.AlertSchedules, storage.Query{}, &defs); err != nil {
				t.Fatalf("find: %v", err)
			}
			if len(defs) != 1 || defs[0].State != tt.wantState || defs[0].AdvanceNoticeDays != 7 || defs[0].OwnerID != "u1" {
				t.Fatalf("unexpected definitions: %+v", defs)
			}
		})
	}
}

func TestScheduleAlertInvalid(t *testing.T) {
	t.Parallel()

	p, reg, _, store := newTestPlanner(t)
	spec := alertSpec(testNow.Add(time.Hour), "fortnightly")
	_, err := p.ScheduleAlert(context.Background(), spec)
	if !errors.Is(err, schedule.ErrInvalidSchedule) {
		t.Fatalf("expected ErrInvalidSchedule, got %v", err)
	}
	var defs []AlertDefinition
	_ = store.Find(context.Background(), storage.AlertSchedules, storage.Query{}, &defs)
	if len(defs) != 0 || len(reg.jobs) != 0 {
		t.Fatalf("invalid request must not register or store")
	}
}

func TestScheduleReport(t *testing.T) {
	t.Parallel()

	p, reg, _, store := newTestPlanner(t)
	spec := schedule.ReportScheduleSpec{
		OwnerID:    "u1",
		Kind:       schedule.ReportCompliance,
		Title:      "Monthly",
		Cron:       "0 0 1 * *",
		Recipients: []string{"a@example.com"},
		Enabled:    true,
	}
	res, err := p.ScheduleReport(context.Background(), spec)
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	want := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	if !res.NextRun.Equal(want) {
		t.Fatalf("next run %s want %s", res.NextRun, want)
	}
	j, ok := reg.job(res.JobID)
	rule, _ := j.spec.Rule.(schedule.FireRule)
	if !ok || j.payload.Report == nil || rule.Kind != schedule.RuleCron {
		t.Fatalf("unexpected registry job: %+v", j)
	}
	var defs []ReportDefinition
	if err := store.Find(context.Background(), storage.ReportSchedules, storage.Query{}, &defs); err != nil || len(defs) != 1 {
		t.Fatalf("expected 1 definition, got %d (%v)", len(defs), err)
	}

	spec.Cron = "0 0 32 * *"
	var se *schedule.ScheduleError
	if _, err := p.ScheduleReport(context.Background(), spec); !errors.As(err, &se) || se.Field != "day-of-month" {
		t.Fatalf("expected day-of-month ScheduleError, got %v", err)
	}
}

func TestTriggerNow(t *testing.T) {
	t.Parallel()

	p, reg, disp, _ := newTestPlanner(t)
	ctx := context.Background()

	at, err := p.TriggerAlertNow(ctx, alertSpec(testNow.Add(30*24*time.Hour), schedule.RecurNone))
	if err != nil || !at.Equal(testNow) {
		t.Fatalf("trigger: at=%s err=%v", at, err)
	}
	report := schedule.ReportScheduleSpec{OwnerID: "u1", Kind: schedule.ReportCompliance, Title: "Adhoc"}
	if _, err := p.GenerateReportNow(ctx, report); err != nil {
		t.Fatalf("generate: %v", err)
	}
	if disp.alerts != 1 || disp.reports != 1 || len(reg.jobs) != 0 {
		t.Fatalf("alerts=%d reports=%d jobs=%d", disp.alerts, disp.reports, len(reg.jobs))
	}

	disp.err = dispatch.ErrNoSourceData
	if _, err := p.GenerateReportNow(ctx, report); !errors.Is(err, dispatch.ErrNoSourceData) {
		t.Fatalf("expected dispatch error, got %v", err)
	}
	if _, err := p.GenerateReportNow(ctx, schedule.ReportScheduleSpec{OwnerID: "u1"}); !errors.Is(err, schedule.ErrInvalidSchedule) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCancelAndSetEnabledCheckOwner(t *testing.T) {
	t.Parallel()

	p, reg, _, store := newTestPlanner(t)
	ctx := context.Background()
	res, err := p.ScheduleAlert(ctx, alertSpec(testNow.Add(10*24*time.Hour), schedule.RecurWeekly))
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}

	if err := p.Cancel(ctx, "intruder", res.JobID); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := p.SetEnabled(ctx, "u1", "alert:missing", false); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := p.SetEnabled(ctx, "u1", res.JobID, false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	if j, _ := reg.job(res.JobID); j.spec.Enabled {
		t.Fatalf("job should be disabled")
	}
	if err := p.Cancel(ctx, "u1", res.JobID); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	var defs []AlertDefinition
	if err := store.Find(ctx, storage.AlertSchedules, storage.Query{}, &defs); err != nil {
		t.Fatalf("find: %v", err)
	}
	states := []string{}
	for _, d := range defs {
		states = append(states, d.State)
	}
	if len(states) != 3 || states[0] != StateActive || states[1] != StateDisabled || states[2] != StateCancelled {
		t.Fatalf("unexpected revisions: %v", states)
	}
}

func TestRestore(t *testing.T) {
	t.Parallel()

	p, _, _, store := newTestPlanner(t)
	ctx := context.Background()
	day := 24 * time.Hour

	future, _ := p.ScheduleAlert(ctx, alertSpec(testNow.Add(10*day), schedule.RecurNone))
	weekly, _ := p.ScheduleAlert(ctx, alertSpec(testNow.Add(20*day), schedule.RecurWeekly))
	cancelled, _ := p.ScheduleAlert(ctx, alertSpec(testNow.Add(30*day), schedule.RecurNone))
	_, _ = p.ScheduleAlert(ctx, alertSpec(testNow.Add(-day), schedule.RecurNone)) // fired immediately
	if err := p.Cancel(ctx, "u1", cancelled.JobID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	report, err := p.ScheduleReport(ctx, schedule.ReportScheduleSpec{OwnerID: "u1", Kind: schedule.ReportCompliance, Title: "M", Cron: "0 0 1 * *", Enabled: true})
	if err != nil {
		t.Fatalf("schedule report: %v", err)
	}

	// Restart: a fresh registry, later clock.
	reg2 := newFakeRegistry()
	p2 := New(reg2, &fakeDispatcher{}, store, logx.Nop())
	p2.now = func() time.Time { return testNow.Add(5 * day) }

	st, err := p2.Restore(ctx)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if st.Alerts != 1 || st.Reports != 1 || st.Skipped != 3 {
		t.Fatalf("unexpected stats: %+v", st)
	}
	if _, ok := reg2.job(future.JobID); ok {
		t.Fatalf("expired one-shot must not be restored")
	}
	if _, ok := reg2.job(cancelled.JobID); ok {
		t.Fatalf("cancelled job must not be restored")
	}
	if j, ok := reg2.job(weekly.JobID); !ok || !j.spec.FireAt.Equal(testNow.Add(13*day)) {
		t.Fatalf("weekly job not restored at its candidate: %+v", j)
	}
	if _, ok := reg2.job(report.JobID); !ok {
		t.Fatalf("report job not restored")
	}
}
