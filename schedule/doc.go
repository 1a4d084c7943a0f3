// Package schedule fires recurring jobs from cron expressions.
//
// An [Entry] binds a cron expression to the job type, payload, and
// target queue of the envelope it enqueues. The [Scheduler] evaluates
// entries on a tick loop and enqueues one envelope per due fire.
//
// There is no leader election. Every fire uses a deterministic job id
// derived from the entry name and the scheduled fire time, so when
// several scheduler replicas fire the same occurrence the consumers'
// claim step collapses the duplicates to one processed job. Interval
// descriptors ("@every 30s") anchor to each replica's registration
// time and so fire independently per replica; wall-clock expressions
// dedupe across replicas.
//
// Typical use is a nightly index rebuild per catalog subject:
//
//	sched.Add(schedule.Entry{
//	    Name:    "nightly-rebuild-obs",
//	    Spec:    "0 2 * * *",
//	    Type:    job.TypeRebuild,
//	    Queue:   "catalog",
//	    Payload: map[string]any{"subject": "Open_Bible_Stories"},
//	})
package schedule
