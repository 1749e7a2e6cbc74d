// Package planner turns schedule requests into registry jobs.
//
// It resolves a request, stores its definition, and either registers a job
// or dispatches immediately when the request is already past due. Stored
// definitions are append-only: cancel and enable/disable append a new
// revision, and Restore re-registers the latest revision of each job after a
// restart.
package planner
