package schedule

import (
	"strings"
	"time"
)

// AlertKind is an open enum; unknown kinds are accepted and carried through.
type AlertKind string

const (
	AlertComplianceDeadline AlertKind = "compliance_deadline"
	AlertReportGeneration   AlertKind = "report_generation"
	AlertDataReview         AlertKind = "data_review"
)

type Recurrence string

const (
	RecurNone    Recurrence = "none"
	RecurDaily   Recurrence = "daily"
	RecurWeekly  Recurrence = "weekly"
	RecurMonthly Recurrence = "monthly"
	RecurYearly  Recurrence = "yearly"
)

func (r Recurrence) Valid() bool {
	switch r {
	case RecurNone, RecurDaily, RecurWeekly, RecurMonthly, RecurYearly:
		return true
	}
	return false
}

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// ReportKind selects the content builder. Unknown kinds are accepted and
// produce empty content.
type ReportKind string

const (
	ReportCompliance        ReportKind = "compliance"
	ReportCarbonAnalysis    ReportKind = "carbon_analysis"
	ReportRegulatorySummary ReportKind = "regulatory_summary"
)

// DefaultAdvanceLead is used when a request omits the lead time.
const DefaultAdvanceLead = 7 * 24 * time.Hour

// AlertScheduleSpec describes a deadline alert request.
type AlertScheduleSpec struct {
	OwnerID     string        `json:"owner_id"`
	Kind        AlertKind     `json:"alert_type"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Deadline    time.Time     `json:"deadline"`
	AdvanceLead time.Duration `json:"advance_lead"`
	Recurrence  Recurrence    `json:"recurrence"`
	Priority    Priority      `json:"priority"`
	Enabled     bool          `json:"enabled"`

	// Notification request carried to the dispatcher.
	SendEmail bool   `json:"send_email"`
	Email     string `json:"email,omitempty"`
}

// Normalize trims strings, converts the deadline to UTC and fills defaults
// for empty recurrence and priority.
func (s *AlertScheduleSpec) Normalize() {
	s.OwnerID = strings.TrimSpace(s.OwnerID)
	s.Title = strings.TrimSpace(s.Title)
	s.Email = strings.TrimSpace(s.Email)
	s.Kind = AlertKind(strings.TrimSpace(string(s.Kind)))
	s.Recurrence = Recurrence(strings.ToLower(strings.TrimSpace(string(s.Recurrence))))
	s.Priority = Priority(strings.ToLower(strings.TrimSpace(string(s.Priority))))
	if s.Recurrence == "" {
		s.Recurrence = RecurNone
	}
	if s.Priority == "" {
		s.Priority = PriorityMedium
	}
	if !s.Deadline.IsZero() {
		s.Deadline = s.Deadline.UTC()
	}
}

// Validate checks a normalized spec.
func (s AlertScheduleSpec) Validate() error {
	if s.OwnerID == "" {
		return invalid("owner_id", "", "required")
	}
	if s.Kind == "" {
		return invalid("alert_type", "", "required")
	}
	if s.Title == "" {
		return invalid("title", "", "required")
	}
	if s.Deadline.IsZero() {
		return invalid("deadline", "", "required")
	}
	if s.AdvanceLead < 0 {
		return invalid("advance_notice_days", s.AdvanceLead.String(), "must be >= 0")
	}
	if !s.Recurrence.Valid() {
		return invalid("recurrence", string(s.Recurrence), "must be one of none, daily, weekly, monthly, yearly")
	}
	if !s.Priority.Valid() {
		return invalid("priority", string(s.Priority), "must be one of low, medium, high, critical")
	}
	if s.SendEmail && s.Email != "" && !strings.Contains(s.Email, "@") && !strings.Contains(s.Email, ":") {
		return invalid("email", s.Email, "not an address")
	}
	return nil
}

// Candidate is the deadline minus the lead time.
func (s AlertScheduleSpec) Candidate() time.Time {
	return s.Deadline.UTC().Add(-s.AdvanceLead)
}

// ReportScheduleSpec describes a recurring report request.
type ReportScheduleSpec struct {
	OwnerID       string     `json:"owner_id"`
	Kind          ReportKind `json:"report_type"`
	Title         string     `json:"title"`
	Cron          string     `json:"schedule_cron"`
	Recipients    []string   `json:"recipients"`
	IncludeCharts bool       `json:"include_charts"`
	Enabled       bool       `json:"enabled"`
}

// Normalize trims strings, collapses cron whitespace and de-duplicates
// recipients preserving first-seen order.
func (s *ReportScheduleSpec) Normalize() {
	s.OwnerID = strings.TrimSpace(s.OwnerID)
	s.Title = strings.TrimSpace(s.Title)
	s.Kind = ReportKind(strings.TrimSpace(string(s.Kind)))
	s.Cron = strings.Join(strings.Fields(s.Cron), " ")

	seen := make(map[string]struct{}, len(s.Recipients))
	out := make([]string, 0, len(s.Recipients))
	for _, r := range s.Recipients {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	s.Recipients = out
}

// Validate checks a normalized spec, including the cron expression.
func (s ReportScheduleSpec) Validate() error {
	if err := s.ValidateContent(); err != nil {
		return err
	}
	_, err := ValidateCron(s.Cron)
	return err
}

// ValidateContent checks everything but the cron expression. On-demand
// generation has no schedule.
func (s ReportScheduleSpec) ValidateContent() error {
	if s.OwnerID == "" {
		return invalid("owner_id", "", "required")
	}
	if s.Kind == "" {
		return invalid("report_type", "", "required")
	}
	if s.Title == "" {
		return invalid("title", "", "required")
	}
	return nil
}
