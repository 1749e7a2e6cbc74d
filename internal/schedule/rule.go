package schedule

import (
	"fmt"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
)

// RuleKind tags a FireRule.
type RuleKind int

const (
	RuleOneShot RuleKind = iota
	RuleDaily
	RuleWeekly
	RuleMonthly
	RuleYearly
	RuleCron
)

func (k RuleKind) String() string {
	switch k {
	case RuleOneShot:
		return "one_shot"
	case RuleDaily:
		return "daily"
	case RuleWeekly:
		return "weekly"
	case RuleMonthly:
		return "monthly"
	case RuleYearly:
		return "yearly"
	case RuleCron:
		return "cron"
	default:
		return "unknown(" + strconv.Itoa(int(k)) + ")"
	}
}

// FireRule is the tagged recurrence consumed by the job registry. Only the
// fields relevant to Kind are meaningful. Build it with the constructors.
//
// Calendar rules fire at Hour:Minute UTC. A Monthly rule anchored on a day a
// month does not have (e.g. the 31st) skips that month.
type FireRule struct {
	Kind RuleKind

	// At is the one-shot instant.
	At time.Time

	Hour    int
	Minute  int
	Weekday time.Weekday
	Day     int
	Month   time.Month

	Cron *CronRule

	sched cron.Schedule
}

func OneShot(at time.Time) FireRule {
	return FireRule{Kind: RuleOneShot, At: at.UTC()}
}

func Daily(hour, minute int) FireRule {
	return FireRule{Kind: RuleDaily, Hour: hour, Minute: minute,
		sched: calendarSchedule(minute, hour, "*", "*", "*")}
}

func Weekly(wd time.Weekday, hour, minute int) FireRule {
	return FireRule{Kind: RuleWeekly, Weekday: wd, Hour: hour, Minute: minute,
		sched: calendarSchedule(minute, hour, "*", "*", strconv.Itoa(int(wd)))}
}

func Monthly(day, hour, minute int) FireRule {
	return FireRule{Kind: RuleMonthly, Day: day, Hour: hour, Minute: minute,
		sched: calendarSchedule(minute, hour, strconv.Itoa(day), "*", "*")}
}

func Yearly(month time.Month, day, hour, minute int) FireRule {
	return FireRule{Kind: RuleYearly, Month: month, Day: day, Hour: hour, Minute: minute,
		sched: calendarSchedule(minute, hour, strconv.Itoa(day), strconv.Itoa(int(month)), "*")}
}

func Cron(rule *CronRule) FireRule {
	return FireRule{Kind: RuleCron, Cron: rule}
}

// AnchoredOn builds the calendar rule for a recurrence using the UTC
// hour/minute (and weekday, day, month as needed) of candidate.
func AnchoredOn(r Recurrence, candidate time.Time) (FireRule, bool) {
	c := candidate.UTC()
	switch r {
	case RecurDaily:
		return Daily(c.Hour(), c.Minute()), true
	case RecurWeekly:
		return Weekly(c.Weekday(), c.Hour(), c.Minute()), true
	case RecurMonthly:
		return Monthly(c.Day(), c.Hour(), c.Minute()), true
	case RecurYearly:
		return Yearly(c.Month(), c.Day(), c.Hour(), c.Minute()), true
	default:
		return FireRule{}, false
	}
}

// Recurring reports whether the rule produces more than one occurrence.
func (r FireRule) Recurring() bool { return r.Kind != RuleOneShot }

// Next returns the first occurrence strictly after t. The zero time means
// there is none (a one-shot already in the past, or an unsatisfiable cron).
func (r FireRule) Next(t time.Time) time.Time {
	switch r.Kind {
	case RuleOneShot:
		if r.At.After(t) {
			return r.At
		}
		return time.Time{}
	case RuleCron:
		return r.Cron.Next(t)
	default:
		if r.sched == nil {
			return time.Time{}
		}
		return r.sched.Next(t)
	}
}

func (r FireRule) String() string {
	switch r.Kind {
	case RuleOneShot:
		return "once@" + r.At.Format(time.RFC3339)
	case RuleDaily:
		return fmt.Sprintf("daily@%02d:%02dZ", r.Hour, r.Minute)
	case RuleWeekly:
		return fmt.Sprintf("weekly@%s %02d:%02dZ", r.Weekday, r.Hour, r.Minute)
	case RuleMonthly:
		return fmt.Sprintf("monthly@%d %02d:%02dZ", r.Day, r.Hour, r.Minute)
	case RuleYearly:
		return fmt.Sprintf("yearly@%s %d %02d:%02dZ", r.Month, r.Day, r.Hour, r.Minute)
	case RuleCron:
		if r.Cron == nil {
			return "cron@?"
		}
		return "cron@" + r.Cron.Expr
	default:
		return r.Kind.String()
	}
}
