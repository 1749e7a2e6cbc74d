package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrDisabled          = errors.New("storage disabled")
	ErrInvalidCollection = errors.New("storage: invalid collection name")
	ErrInvalidField      = errors.New("storage: invalid field name")
)

// Collection names.
const (
	Alerts          = "proactive_alerts"
	AlertSchedules  = "alert_schedules"
	Reports         = "automated_reports"
	ReportSchedules = "report_schedules"
	Uploads         = "uploads"
)

// FieldID is the document id key set on every insert.
const FieldID = "id"

// Config configures storage.
//
// Driver values: "memory" (default), "file", "sqlite", "mongo".
type Config struct {
	Driver string
	// Path is the journal directory (file) or database file (sqlite).
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// Mongo only.
	URI      string
	Database string
	Timeout  time.Duration
}

// Query selects documents from one collection.
//
// Filter is top-level equality; values are compared after JSON encoding, so
// 3 and 3.0 match. Sort is a field name, "-field" for descending, "" for
// insertion order and "-" for newest insertion first. Ties are broken by
// insertion order in the sort direction. Limit <= 0 means no limit.
//
// String sorting is lexical except that two RFC 3339 timestamps compare as
// times in the memory and file drivers.
type Query struct {
	Filter map[string]any
	Sort   string
	Limit  int
}

// Newest is the common "most recent first" query for an owner.
func Newest(ownerID string, limit int) Query {
	return Query{Filter: map[string]any{"owner_id": ownerID}, Sort: "-", Limit: limit}
}

// Gateway is the persistence contract used by the dispatcher and the API.
type Gateway interface {
	// Insert stores doc in collection and returns its id.
	Insert(ctx context.Context, collection string, doc any) (string, error)
	// Find decodes matching documents into out, which must point to a slice.
	Find(ctx context.Context, collection string, q Query, out any) error
	Ping(ctx context.Context) error
	Close() error
}
