// Package dispatch performs the domain action of a fired job.
//
// An alert firing persists an AlertRecord and optionally notifies the owner.
// A report firing loads the owner's uploads, builds kind-specific content,
// persists a ReportRecord and notifies each recipient independently.
//
// Persistence is the success criterion. Notifier failures are logged and
// never flip a dispatch to failed. Nothing escapes as a panic.
package dispatch
