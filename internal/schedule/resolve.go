package schedule

import (
	"time"
)

// Resolution is the outcome of resolving a specification at a given instant.
//
// Immediate means the dispatcher should run now, synchronously. FireAt is the
// next time the registry should fire (zero when nothing is left to schedule).
// A one-shot that is past due is Immediate with a zero FireAt; a recurring
// alert whose first occurrence is past due is Immediate and also carries the
// rule's next occurrence after now.
type Resolution struct {
	Immediate bool
	Candidate time.Time
	FireAt    time.Time
	Rule      FireRule
}

// Scheduled reports whether a job must be registered.
func (r Resolution) Scheduled() bool { return !r.FireAt.IsZero() }

// ResolveAlert normalizes and validates spec, then computes its fire plan.
func ResolveAlert(spec AlertScheduleSpec, now time.Time) (Resolution, error) {
	spec.Normalize()
	if err := spec.Validate(); err != nil {
		return Resolution{}, err
	}
	now = now.UTC()
	candidate := spec.Candidate()

	rule, recurring := AnchoredOn(spec.Recurrence, candidate)
	if !recurring {
		if !candidate.After(now) {
			return Resolution{Immediate: true, Candidate: candidate, Rule: OneShot(candidate)}, nil
		}
		return Resolution{Candidate: candidate, FireAt: candidate, Rule: OneShot(candidate)}, nil
	}

	if candidate.After(now) {
		return Resolution{Candidate: candidate, FireAt: candidate, Rule: rule}, nil
	}
	return Resolution{Immediate: true, Candidate: candidate, FireAt: rule.Next(now), Rule: rule}, nil
}

// ResolveReport validates spec and computes the first cron occurrence after
// now, evaluated in loc.
func ResolveReport(spec ReportScheduleSpec, loc *time.Location, now time.Time) (Resolution, error) {
	spec.Normalize()
	if err := spec.Validate(); err != nil {
		return Resolution{}, err
	}
	cr, err := ParseCron(spec.Cron, loc)
	if err != nil {
		return Resolution{}, err
	}
	rule := Cron(cr)
	next := rule.Next(now)
	if next.IsZero() {
		return Resolution{}, invalid("schedule_cron", spec.Cron, "expression never fires")
	}
	return Resolution{Candidate: next, FireAt: next, Rule: rule}, nil
}
