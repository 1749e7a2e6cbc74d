package schedule

import (
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

func alertSpec(deadline time.Time, lead time.Duration, rec Recurrence) AlertScheduleSpec {
	return AlertScheduleSpec{
		OwnerID:     "u1",
		Kind:        AlertComplianceDeadline,
		Title:       "EU ETS filing",
		Deadline:    deadline,
		AdvanceLead: lead,
		Recurrence:  rec,
		Enabled:     true,
	}
}

func TestResolveAlertOneShot(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		deadline  time.Time
		lead      time.Duration
		immediate bool
		fireAt    time.Time
	}{
		{
			name:     "future candidate",
			deadline: testNow.Add(10 * 24 * time.Hour),
			lead:     DefaultAdvanceLead,
			fireAt:   testNow.Add(3 * 24 * time.Hour),
		},
		{
			name:      "past candidate",
			deadline:  testNow.Add(3 * 24 * time.Hour),
			lead:      DefaultAdvanceLead,
			immediate: true,
		},
		{
			name:      "candidate equal to now",
			deadline:  testNow.Add(DefaultAdvanceLead),
			lead:      DefaultAdvanceLead,
			immediate: true,
		},
		{
			name:     "zero lead",
			deadline: testNow.Add(time.Minute),
			fireAt:   testNow.Add(time.Minute),
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			res, err := ResolveAlert(alertSpec(tt.deadline, tt.lead, RecurNone), testNow)
			if err != nil {
				t.Fatalf("ResolveAlert error: %v", err)
			}
			if res.Immediate != tt.immediate {
				t.Fatalf("Immediate = %v, want %v", res.Immediate, tt.immediate)
			}
			if !res.FireAt.Equal(tt.fireAt) {
				t.Fatalf("FireAt = %v, want %v", res.FireAt, tt.fireAt)
			}
			if res.Rule.Kind != RuleOneShot {
				t.Fatalf("Rule.Kind = %v, want one_shot", res.Rule.Kind)
			}
		})
	}
}

func TestResolveAlertRecurringPastDueFiresNowAndSchedulesNext(t *testing.T) {
	t.Parallel()
	// candidate = 2024-03-05 08:30 UTC, already past.
	spec := alertSpec(time.Date(2024, 3, 12, 8, 30, 0, 0, time.UTC), DefaultAdvanceLead, RecurDaily)
	res, err := ResolveAlert(spec, testNow)
	if err != nil {
		t.Fatalf("ResolveAlert error: %v", err)
	}
	if !res.Immediate {
		t.Fatal("expected immediate first occurrence")
	}
	want := time.Date(2024, 3, 11, 8, 30, 0, 0, time.UTC)
	if !res.FireAt.Equal(want) {
		t.Fatalf("FireAt = %v, want %v", res.FireAt, want)
	}
	if !res.FireAt.After(testNow) {
		t.Fatal("next occurrence must be in the future")
	}
}

func TestResolveAlertRecurringFuture(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		rec    Recurrence
		kind   RuleKind
		second time.Time
	}{
		{"daily", RecurDaily, RuleDaily, time.Date(2024, 3, 19, 15, 0, 0, 0, time.UTC)},
		{"weekly", RecurWeekly, RuleWeekly, time.Date(2024, 3, 25, 15, 0, 0, 0, time.UTC)},
		{"monthly", RecurMonthly, RuleMonthly, time.Date(2024, 4, 18, 15, 0, 0, 0, time.UTC)},
		{"yearly", RecurYearly, RuleYearly, time.Date(2025, 3, 18, 15, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			// candidate = Monday 2024-03-18 15:00 UTC.
			spec := alertSpec(time.Date(2024, 3, 25, 15, 0, 0, 0, time.UTC), DefaultAdvanceLead, tt.rec)
			res, err := ResolveAlert(spec, testNow)
			if err != nil {
				t.Fatalf("ResolveAlert error: %v", err)
			}
			candidate := time.Date(2024, 3, 18, 15, 0, 0, 0, time.UTC)
			if res.Immediate || !res.FireAt.Equal(candidate) {
				t.Fatalf("got immediate=%v fireAt=%v, want fireAt=%v", res.Immediate, res.FireAt, candidate)
			}
			if res.Rule.Kind != tt.kind {
				t.Fatalf("Rule.Kind = %v, want %v", res.Rule.Kind, tt.kind)
			}
			if got := res.Rule.Next(res.FireAt); !got.Equal(tt.second) {
				t.Fatalf("second occurrence = %v, want %v", got, tt.second)
			}
		})
	}
}

func TestResolveAlertNormalizesToUTC(t *testing.T) {
	t.Parallel()
	zone := time.FixedZone("UTC+2", 2*60*60)
	spec := alertSpec(time.Date(2024, 4, 1, 10, 0, 0, 0, zone), 0, RecurDaily)
	res, err := ResolveAlert(spec, testNow)
	if err != nil {
		t.Fatalf("ResolveAlert error: %v", err)
	}
	if res.Rule.Hour != 8 || res.Rule.Minute != 0 {
		t.Fatalf("anchor = %02d:%02d, want 08:00 UTC", res.Rule.Hour, res.Rule.Minute)
	}
	if res.FireAt.Location() != time.UTC {
		t.Fatalf("FireAt location = %v, want UTC", res.FireAt.Location())
	}
}

func TestResolveAlertRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		mut   func(*AlertScheduleSpec)
		field string
	}{
		{"negative lead", func(s *AlertScheduleSpec) { s.AdvanceLead = -time.Hour }, "advance_notice_days"},
		{"bad recurrence", func(s *AlertScheduleSpec) { s.Recurrence = "hourly" }, "recurrence"},
		{"bad priority", func(s *AlertScheduleSpec) { s.Priority = "urgent" }, "priority"},
		{"missing owner", func(s *AlertScheduleSpec) { s.OwnerID = " " }, "owner_id"},
		{"missing deadline", func(s *AlertScheduleSpec) { s.Deadline = time.Time{} }, "deadline"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			spec := alertSpec(testNow.Add(30*24*time.Hour), DefaultAdvanceLead, RecurNone)
			tt.mut(&spec)
			_, err := ResolveAlert(spec, testNow)
			if !errors.Is(err, ErrInvalidSchedule) {
				t.Fatalf("err = %v, want ErrInvalidSchedule", err)
			}
			var se *ScheduleError
			if !errors.As(err, &se) || se.Field != tt.field {
				t.Fatalf("err = %v, want field %q", err, tt.field)
			}
		})
	}
}

func TestResolveReport(t *testing.T) {
	t.Parallel()
	spec := ReportScheduleSpec{
		OwnerID:    "u1",
		Kind:       ReportCompliance,
		Title:      "Weekly compliance",
		Cron:       "0 9 * * 1",
		Recipients: []string{"ops@example.com"},
		Enabled:    true,
	}
	res, err := ResolveReport(spec, time.UTC, testNow)
	if err != nil {
		t.Fatalf("ResolveReport error: %v", err)
	}
	want := time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC)
	if res.Immediate || !res.FireAt.Equal(want) {
		t.Fatalf("FireAt = %v, want %v", res.FireAt, want)
	}
	if res.Rule.Kind != RuleCron {
		t.Fatalf("Rule.Kind = %v, want cron", res.Rule.Kind)
	}
	if got := res.Rule.Next(want); !got.Equal(want.AddDate(0, 0, 7)) {
		t.Fatalf("second occurrence = %v", got)
	}
}

func TestResolveReportNeverFires(t *testing.T) {
	t.Parallel()
	spec := ReportScheduleSpec{OwnerID: "u1", Kind: ReportCompliance, Title: "t", Cron: "0 0 30 2 *"}
	if _, err := ResolveReport(spec, time.UTC, testNow); !errors.Is(err, ErrInvalidSchedule) {
		t.Fatalf("err = %v, want ErrInvalidSchedule", err)
	}
}
