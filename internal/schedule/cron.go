package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var cronFieldNames = [5]string{"minute", "hour", "day-of-month", "month", "day-of-week"}

// standardParser accepts exactly the classic five fields. Descriptors
// (@daily, @every) are rejected. Month/weekday names and "?" are rejected
// by numericField before parsing.
var standardParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// CronRule is a parsed five-field expression. The constraint sets are bitmasks
// (bit n set = value n allowed) as produced by robfig/cron.
type CronRule struct {
	Expr     string
	Minute   uint64
	Hour     uint64
	Dom      uint64
	Month    uint64
	Dow      uint64
	Location *time.Location

	sched *cron.SpecSchedule
}

// Next returns the first activation strictly after t, or zero if none exists
// within robfig's five-year search window.
func (r *CronRule) Next(t time.Time) time.Time {
	if r == nil || r.sched == nil {
		return time.Time{}
	}
	return r.sched.Next(t)
}

// ValidateCron parses expr in UTC.
func ValidateCron(expr string) (*CronRule, error) {
	return ParseCron(expr, time.UTC)
}

// ParseCron validates a five-field cron expression and returns its rule
// evaluated in loc. The error names the first offending field.
func ParseCron(expr string, loc *time.Location) (*CronRule, error) {
	if loc == nil {
		loc = time.UTC
	}
	fields := strings.Fields(expr)
	if len(fields) != 5 {
		return nil, invalid("schedule_cron", expr, "expected 5 fields, got %d", len(fields))
	}
	for i, f := range fields {
		if err := numericField(f); err != nil {
			return nil, &ScheduleError{Field: cronFieldNames[i], Value: f, Err: err}
		}
		// Parse each field alone so the error names it.
		alone := [5]string{"*", "*", "*", "*", "*"}
		alone[i] = f
		if _, err := standardParser.Parse(strings.Join(alone[:], " ")); err != nil {
			return nil, &ScheduleError{Field: cronFieldNames[i], Value: f, Err: err}
		}
	}

	norm := strings.Join(fields, " ")
	s, err := standardParser.Parse(norm)
	if err != nil {
		return nil, invalid("schedule_cron", expr, "%v", err)
	}
	spec, ok := s.(*cron.SpecSchedule)
	if !ok {
		return nil, invalid("schedule_cron", expr, "unexpected schedule type %T", s)
	}
	spec.Location = loc

	return &CronRule{
		Expr:     norm,
		Minute:   spec.Minute,
		Hour:     spec.Hour,
		Dom:      spec.Dom,
		Month:    spec.Month,
		Dow:      spec.Dow,
		Location: loc,
		sched:    spec,
	}, nil
}

// numericField allows digits, "*", and the "," "-" "/" operators.
func numericField(f string) error {
	for _, r := range f {
		switch {
		case r >= '0' && r <= '9':
		case r == '*', r == ',', r == '-', r == '/':
		default:
			return fmt.Errorf("unexpected character %q; use numeric values", r)
		}
	}
	return nil
}

// calendarSchedule builds a UTC cron schedule for the calendar recurrences.
func calendarSchedule(minute, hour int, dom, month, dow string) *cron.SpecSchedule {
	expr := fmt.Sprintf("%d %d %s %s %s", minute, hour, dom, month, dow)
	s, err := standardParser.Parse(expr)
	if err != nil {
		// Inputs come from time.Time accessors and are always in range.
		panic(fmt.Sprintf("schedule: calendar expression %q: %v", expr, err))
	}
	spec := s.(*cron.SpecSchedule)
	spec.Location = time.UTC
	return spec
}
