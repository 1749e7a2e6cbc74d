// Package scheduler is the in-memory job registry.
//
// Jobs are keyed by a caller-chosen deterministic id. Registering an existing
// id replaces the job atomically. Recurring jobs are triggered by a
// robfig/cron runner, one-shots by per-job timers. A trigger only hands the
// job to the task engine; execution never happens on the trigger goroutine.
//
// State machine per job:
//
//	Scheduled -> Firing -> Done        (one-shot)
//	Scheduled -> Firing -> Scheduled   (recurring, next occurrence)
//	Scheduled -> Cancelled
//
// A given id never fires twice concurrently. Register or Cancel while a job
// is Firing takes effect when that firing settles.
package scheduler
