package schedule

import (
	"errors"
	"fmt"
)

// ErrInvalidSchedule is returned (wrapped) for every rejected specification.
var ErrInvalidSchedule = errors.New("invalid schedule")

// ScheduleError reports which field of a specification was rejected.
type ScheduleError struct {
	Field string
	Value string
	Err   error
}

func (e *ScheduleError) Error() string {
	if e == nil {
		return ""
	}
	if e.Value == "" {
		return fmt.Sprintf("invalid schedule: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("invalid schedule: %s %q: %v", e.Field, e.Value, e.Err)
}

func (e *ScheduleError) Unwrap() error { return e.Err }

func (e *ScheduleError) Is(target error) bool { return target == ErrInvalidSchedule }

func invalid(field, value string, format string, args ...any) error {
	return &ScheduleError{Field: field, Value: value, Err: fmt.Errorf(format, args...)}
}
