// Package engine wires the curator subsystems into a running consumer:
// processor, middleware stack, worker pool, quarantine service, and
// scheduler.
//
// The root curator package defines configuration and the service shell
// but cannot import the subsystem packages without a cycle. Engine sits
// above all of them and below the application: [Build] type-asserts the
// consumer's store and transport to the full subsystem contracts and
// assembles everything in one place.
//
// # Building and running
//
//	c, err := curator.New(
//	    curator.WithStore(pg),
//	    curator.WithTransport(rq),
//	    curator.WithConcurrency(8),
//	)
//	if err != nil {
//	    return err
//	}
//
//	eng, err := engine.Build(c,
//	    engine.WithNotifySink(slackSink),
//	    engine.WithQueueConfig(queue.Config{Name: "catalog", MaxConcurrency: 4}),
//	)
//	if err != nil {
//	    return err
//	}
//
//	return eng.Run(ctx)
//
// Run blocks until ctx is cancelled, then drains active jobs within
// Config.ShutdownTimeout. Transports that implement [queue.Maintainer]
// get a maintenance loop alongside the pool.
//
// # Options
//
//   - [WithTransform] — override the transform for a job type
//   - [WithIndexer] — back the rebuild transform with a real index
//   - [WithNotifySink] — deliver notifications to an external channel
//   - [WithScheduleEntry] — register a recurring cron-fired job
//   - [WithExtension] — register a lifecycle extension
//   - [WithMiddleware] — append middleware to the processing chain
//   - [WithBackoff] — set the retry backoff strategy
//   - [WithQueueConfig] — per-queue concurrency and rate limits
//   - [WithTracerProvider] — set the OpenTelemetry tracer provider
//   - [WithMeterProvider] — set the OpenTelemetry meter provider
package engine
