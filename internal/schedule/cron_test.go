package schedule

import (
	"errors"
	"testing"
	"time"
)

func TestValidateCronAccepts(t *testing.T) {
	t.Parallel()
	for _, expr := range []string{
		"0 9 * * 1",
		"*/15 * * * *",
		"0 0 1,15 * *",
		"30 9-17 * * 1-5",
		"  0   6 * *   0 ",
		"0 12 * 1,7 1",
	} {
		if _, err := ValidateCron(expr); err != nil {
			t.Fatalf("ValidateCron(%q) error: %v", expr, err)
		}
	}
}

func TestValidateCronRejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		expr  string
		field string
	}{
		{"0 9 * *", "schedule_cron"},
		{"0 9 * * * *", "schedule_cron"},
		{"@daily", "schedule_cron"},
		{"", "schedule_cron"},
		{"60 * * * *", "minute"},
		{"0 24 * * *", "hour"},
		{"0 0 32 * *", "day-of-month"},
		{"0 0 0 * *", "day-of-month"},
		{"0 0 * 13 *", "month"},
		{"0 0 * * 7", "day-of-week"},
		{"*/0 * * * *", "minute"},
		{"0 x * * *", "hour"},
		{"0 12 * JAN *", "month"},
		{"0 12 * * MON", "day-of-week"},
		{"0 12 ? * 1", "day-of-month"},
		{"0 12 * * mon-fri", "day-of-week"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.expr, func(t *testing.T) {
			t.Parallel()
			_, err := ValidateCron(tt.expr)
			if !errors.Is(err, ErrInvalidSchedule) {
				t.Fatalf("ValidateCron(%q) err = %v, want ErrInvalidSchedule", tt.expr, err)
			}
			var se *ScheduleError
			if !errors.As(err, &se) {
				t.Fatalf("err %T is not *ScheduleError", err)
			}
			if se.Field != tt.field {
				t.Fatalf("Field = %q, want %q", se.Field, tt.field)
			}
		})
	}
}

func TestCronRuleConstraintSets(t *testing.T) {
	t.Parallel()
	r, err := ValidateCron("5 9-10 * * 1")
	if err != nil {
		t.Fatalf("ValidateCron error: %v", err)
	}
	if r.Minute != 1<<5 {
		t.Fatalf("Minute = %b", r.Minute)
	}
	if r.Hour != 1<<9|1<<10 {
		t.Fatalf("Hour = %b", r.Hour)
	}
	if r.Dow&(1<<1) == 0 {
		t.Fatalf("Dow = %b, want Monday set", r.Dow)
	}
	if r.Expr != "5 9-10 * * 1" {
		t.Fatalf("Expr = %q", r.Expr)
	}
}

func TestParseCronLocation(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("UTC+7", 7*60*60)
	r, err := ParseCron("0 9 * * *", loc)
	if err != nil {
		t.Fatalf("ParseCron error: %v", err)
	}
	got := r.Next(time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC))
	want := time.Date(2024, 3, 10, 2, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("Next = %v, want %v", got, want)
	}
}
