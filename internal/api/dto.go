package api

import (
	"time"

	"winova/internal/schedule"
)

// ErrorResponse is returned for every non-2xx answer.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// AlertScheduleRequest is the body of the alert endpoints.
type AlertScheduleRequest struct {
	AlertType         string    `json:"alert_type"`
	Title             string    `json:"title"`
	Description       string    `json:"description"`
	Deadline          time.Time `json:"deadline"`
	AdvanceNoticeDays *int      `json:"advance_notice_days,omitempty"`
	Recurrence        string    `json:"recurrence"`
	Priority          string    `json:"priority"`
	Enabled           *bool     `json:"enabled,omitempty"`
	SendEmail         bool      `json:"send_email"`
	Email             string    `json:"email,omitempty"`
}

func (r AlertScheduleRequest) spec(owner string) schedule.AlertScheduleSpec {
	lead := schedule.DefaultAdvanceLead
	if r.AdvanceNoticeDays != nil {
		lead = time.Duration(*r.AdvanceNoticeDays) * 24 * time.Hour
	}
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return schedule.AlertScheduleSpec{
		OwnerID:     owner,
		Kind:        schedule.AlertKind(r.AlertType),
		Title:       r.Title,
		Description: r.Description,
		Deadline:    r.Deadline,
		AdvanceLead: lead,
		Recurrence:  schedule.Recurrence(r.Recurrence),
		Priority:    schedule.Priority(r.Priority),
		Enabled:     enabled,
		SendEmail:   r.SendEmail,
		Email:       r.Email,
	}
}

// ReportScheduleRequest is the body of the report endpoints.
type ReportScheduleRequest struct {
	ReportType    string   `json:"report_type"`
	Title         string   `json:"title"`
	ScheduleCron  string   `json:"schedule_cron"`
	Recipients    []string `json:"recipients"`
	IncludeCharts bool     `json:"include_charts"`
	Enabled       *bool    `json:"enabled,omitempty"`
}

func (r ReportScheduleRequest) spec(owner string) schedule.ReportScheduleSpec {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return schedule.ReportScheduleSpec{
		OwnerID:       owner,
		Kind:          schedule.ReportKind(r.ReportType),
		Title:         r.Title,
		Cron:          r.ScheduleCron,
		Recipients:    r.Recipients,
		IncludeCharts: r.IncludeCharts,
		Enabled:       enabled,
	}
}

type AlertScheduleResponse struct {
	Success     bool       `json:"success"`
	Message     string     `json:"message"`
	ScheduleID  string     `json:"schedule_id,omitempty"`
	JobID       string     `json:"job_id,omitempty"`
	TriggerTime *time.Time `json:"trigger_time,omitempty"`
	TriggeredAt *time.Time `json:"triggered_at,omitempty"`
}

type ReportScheduleResponse struct {
	Success    bool      `json:"success"`
	Message    string    `json:"message"`
	ScheduleID string    `json:"schedule_id"`
	JobID      string    `json:"job_id"`
	NextRun    time.Time `json:"next_run"`
}

type TriggerResponse struct {
	Success     bool      `json:"success"`
	Message     string    `json:"message"`
	TriggeredAt time.Time `json:"triggered_at"`
}

type EnabledRequest struct {
	Enabled *bool `json:"enabled"`
}

type HealthResponse struct {
	Status   string            `json:"status"`
	Services map[string]string `json:"services"`
}
