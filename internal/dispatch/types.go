package dispatch

import (
	"context"
	"errors"
	"time"

	"winova/internal/schedule"
)

var (
	// ErrNoSourceData means the owner has no uploads to build a report from.
	ErrNoSourceData = errors.New("dispatch: no source records for owner")
	ErrPanic        = errors.New("dispatch: panic")
)

// Record statuses.
const (
	StatusActive    = "active"
	StatusRead      = "read"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Notifier sends one message to one address.
type Notifier interface {
	Send(ctx context.Context, address, subject, body string) error
}

// AlertRecord is stored in storage.Alerts when an alert fires.
type AlertRecord struct {
	ID          string             `json:"id,omitempty"`
	OwnerID     string             `json:"owner_id"`
	Kind        schedule.AlertKind `json:"alert_type"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Priority    schedule.Priority  `json:"priority"`
	Deadline    time.Time          `json:"deadline"`
	TriggeredAt time.Time          `json:"triggered_at"`
	Status      string             `json:"status"`
}

// ReportRecord is stored in storage.Reports when a report is generated.
type ReportRecord struct {
	ID          string              `json:"id,omitempty"`
	OwnerID     string              `json:"owner_id"`
	Kind        schedule.ReportKind `json:"report_type"`
	Title       string              `json:"title"`
	Content     map[string]any      `json:"content"`
	Recipients  []string            `json:"recipients,omitempty"`
	GeneratedAt time.Time           `json:"generated_at"`
	Status      string              `json:"status"`
}

// Upload is the part of an uploaded dataset a report reads.
type Upload struct {
	ID          string    `json:"id,omitempty"`
	OwnerID     string    `json:"owner_id"`
	Filename    string    `json:"filename"`
	RecordCount int       `json:"record_count"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// Event is the Data of dispatch.* bus events.
type Event struct {
	JobID    string `json:"job_id,omitempty"`
	OwnerID  string `json:"owner_id"`
	Kind     string `json:"kind"`
	Title    string `json:"title"`
	RecordID string `json:"record_id,omitempty"`
	OK       bool   `json:"ok"`
	Notified int    `json:"notified"`
	Failed   int    `json:"notify_failed"`
	Error    string `json:"error,omitempty"`
}
