package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionJobClaimed    = "job.claimed"
	ActionJobSucceeded  = "job.succeeded"
	ActionJobRetrying   = "job.retrying"
	ActionJobDead       = "job.dead"
	ActionJobSuperseded = "job.superseded"
	ActionScheduleFired = "schedule.fired"
)

// Audit event categories group related actions.
const (
	CategoryJob      = "curator.job"
	CategorySchedule = "curator.schedule"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceJob      = "job"
	ResourceSchedule = "schedule_entry"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionJobClaimed,
		ActionJobSucceeded,
		ActionJobRetrying,
		ActionJobDead,
		ActionJobSuperseded,
		ActionScheduleFired,
	}
}
