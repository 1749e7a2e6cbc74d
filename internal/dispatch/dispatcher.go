package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"winova/internal/eventbus"
	"winova/internal/schedule"
	"winova/internal/storage"
	"winova/internal/task/scheduler"
	logx "winova/pkg/logx"
)

// DefaultSendTimeout bounds the delivery to one address.
const DefaultSendTimeout = time.Minute

// Dispatcher turns fired payloads into stored records and notifications.
type Dispatcher struct {
	store  storage.Gateway
	notify Notifier
	log    logx.Logger
	bus    eventbus.Bus
	now    func() time.Time

	sendTimeout time.Duration
}

// New builds a dispatcher. notify may be nil; notifications are then skipped.
func New(store storage.Gateway, notify Notifier, log logx.Logger, bus eventbus.Bus) *Dispatcher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{store: store, notify: notify, log: log, bus: bus, now: time.Now, sendTimeout: DefaultSendTimeout}
}

// SetSendTimeout changes the per-address delivery deadline. d <= 0 restores
// DefaultSendTimeout.
func (d *Dispatcher) SetSendTimeout(timeout time.Duration) {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	d.sendTimeout = timeout
}

// Handle is the scheduler.Handler for registered jobs.
func (d *Dispatcher) Handle(ctx context.Context, id string, p scheduler.Payload) bool {
	switch {
	case p.Alert != nil:
		_, err := d.alert(ctx, id, *p.Alert)
		return err == nil
	case p.Report != nil:
		_, err := d.report(ctx, id, *p.Report)
		return err == nil
	}
	d.log.Warn("empty payload", logx.String("job_id", id))
	return false
}

// DispatchAlert stores an active AlertRecord and notifies the owner when
// requested. It returns false only if the record could not be stored.
func (d *Dispatcher) DispatchAlert(ctx context.Context, spec schedule.AlertScheduleSpec) bool {
	_, err := d.alert(ctx, "", spec)
	return err == nil
}

// DispatchReport generates and stores a ReportRecord, then notifies every
// recipient. It returns false when the owner has no uploads or storage fails.
func (d *Dispatcher) DispatchReport(ctx context.Context, spec schedule.ReportScheduleSpec) bool {
	_, err := d.report(ctx, "", spec)
	return err == nil
}

// Alert is DispatchAlert returning the stored record.
func (d *Dispatcher) Alert(ctx context.Context, spec schedule.AlertScheduleSpec) (AlertRecord, error) {
	return d.alert(ctx, "", spec)
}

// Report is DispatchReport returning the stored record.
func (d *Dispatcher) Report(ctx context.Context, spec schedule.ReportScheduleSpec) (ReportRecord, error) {
	return d.report(ctx, "", spec)
}

func (d *Dispatcher) alert(ctx context.Context, jobID string, spec schedule.AlertScheduleSpec) (rec AlertRecord, err error) {
	log := d.log.With(logx.String("job_id", jobID), logx.String("owner_id", spec.OwnerID), logx.String("alert_type", string(spec.Kind)))
	ev := Event{JobID: jobID, OwnerID: spec.OwnerID, Kind: string(spec.Kind), Title: spec.Title}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
			log.Error("alert dispatch panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
		ev.OK = err == nil
		if err != nil {
			ev.Error = err.Error()
		}
		eventbus.Publish(d.bus, eventbus.DispatchAlert, ev)
	}()

	rec = AlertRecord{
		OwnerID:     spec.OwnerID,
		Kind:        spec.Kind,
		Title:       spec.Title,
		Description: spec.Description,
		Priority:    spec.Priority,
		Deadline:    spec.Deadline.UTC(),
		TriggeredAt: d.now().UTC(),
		Status:      StatusActive,
	}
	if d.store == nil {
		return rec, storage.ErrDisabled
	}
	id, err := d.store.Insert(ctx, storage.Alerts, rec)
	if err != nil {
		log.Error("alert record not stored", logx.Err(err))
		return rec, err
	}
	rec.ID = id
	ev.RecordID = id
	log.Info("alert triggered", logx.String("record_id", id), logx.String("priority", string(spec.Priority)))

	if spec.SendEmail && strings.TrimSpace(spec.Email) != "" && d.notify != nil {
		subject := "Compliance alert: " + spec.Title
		if nerr := d.sendOne(ctx, spec.Email, subject, alertBody(rec)); nerr != nil {
			ev.Failed++
			log.Warn("alert notification failed", logx.String("address", spec.Email), logx.Err(nerr))
		} else {
			ev.Notified++
		}
	}
	return rec, nil
}

func (d *Dispatcher) report(ctx context.Context, jobID string, spec schedule.ReportScheduleSpec) (rec ReportRecord, err error) {
	log := d.log.With(logx.String("job_id", jobID), logx.String("owner_id", spec.OwnerID), logx.String("report_type", string(spec.Kind)))
	ev := Event{JobID: jobID, OwnerID: spec.OwnerID, Kind: string(spec.Kind), Title: spec.Title}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
			log.Error("report dispatch panicked", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
		}
		ev.OK = err == nil
		if err != nil {
			ev.Error = err.Error()
		}
		eventbus.Publish(d.bus, eventbus.DispatchReport, ev)
	}()

	if d.store == nil {
		return rec, storage.ErrDisabled
	}
	var uploads []Upload
	if err := d.store.Find(ctx, storage.Uploads, storage.Query{Filter: map[string]any{"owner_id": spec.OwnerID}}, &uploads); err != nil {
		log.Error("uploads not loaded", logx.Err(err))
		return rec, err
	}
	if len(uploads) == 0 {
		log.Info("report skipped: no uploads")
		return rec, ErrNoSourceData
	}

	rec = ReportRecord{
		OwnerID:     spec.OwnerID,
		Kind:        spec.Kind,
		Title:       spec.Title,
		Content:     buildContent(spec.Kind, uploads),
		Recipients:  spec.Recipients,
		GeneratedAt: d.now().UTC(),
		Status:      StatusCompleted,
	}
	id, err := d.store.Insert(ctx, storage.Reports, rec)
	if err != nil {
		log.Error("report record not stored", logx.Err(err))
		return rec, err
	}
	rec.ID = id
	ev.RecordID = id
	log.Info("report generated", logx.String("record_id", id), logx.Int("uploads", len(uploads)))

	if d.notify == nil {
		return rec, nil
	}
	subject := "Report ready: " + spec.Title
	body := reportBody(rec)
	for _, to := range spec.Recipients {
		if nerr := d.sendOne(ctx, to, subject, body); nerr != nil {
			ev.Failed++
			log.Warn("report notification failed", logx.String("address", to), logx.Err(nerr))
			continue
		}
		ev.Notified++
	}
	return rec, nil
}

// sendOne delivers to a single address. The record is already stored, so the
// send runs on its own deadline detached from the dispatch context, and a
// panicking sender only costs this address.
func (d *Dispatcher) sendOne(ctx context.Context, to, subject, body string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: notifier: %v", ErrPanic, r)
			d.log.Error("notifier panicked", logx.String("address", to), logx.Any("panic", r))
		}
	}()
	timeout := d.sendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	return d.notify.Send(sendCtx, to, subject, body)
}

func alertBody(r AlertRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", r.Title)
	if r.Description != "" {
		fmt.Fprintf(&b, "%s\n\n", r.Description)
	}
	fmt.Fprintf(&b, "Type: %s\n", r.Kind)
	fmt.Fprintf(&b, "Priority: %s\n", r.Priority)
	if !r.Deadline.IsZero() {
		fmt.Fprintf(&b, "Deadline: %s\n", r.Deadline.Format(time.RFC1123))
	}
	return b.String()
}

func reportBody(r ReportRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Your %s report %q was generated at %s.\n", strings.ReplaceAll(string(r.Kind), "_", " "), r.Title, r.GeneratedAt.Format(time.RFC1123))
	if n, ok := r.Content["total_records"].(int); ok {
		fmt.Fprintf(&b, "Records analysed: %d\n", n)
	}
	if s, ok := r.Content["compliance_status"].(string); ok {
		fmt.Fprintf(&b, "Status: %s\n", s)
	}
	return b.String()
}

// IsNoData reports whether err means the report had nothing to build from.
func IsNoData(err error) bool { return errors.Is(err, ErrNoSourceData) }
