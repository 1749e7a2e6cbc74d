package eventbus

// Event types emitted on the bus.
const (
	JobRegistered = "job.registered"
	JobReplaced   = "job.replaced"
	JobFired      = "job.fired"
	JobCompleted  = "job.completed"
	JobCancelled  = "job.cancelled"
	JobDisabled   = "job.disabled"
	JobEnabled    = "job.enabled"
	JobRequeued   = "job.requeued"

	DispatchAlert  = "dispatch.alert"
	DispatchReport = "dispatch.report"

	NotifierSent   = "notifier.sent"
	NotifierFailed = "notifier.failed"

	TaskStarted  = "task.started"
	TaskFinished = "task.finished"
	TaskFailed   = "task.failed"
	TaskDropped  = "task.dropped"
)
