package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/curator/ext"
	"github.com/xraph/curator/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension     = (*MetricsExtension)(nil)
	_ ext.JobClaimed    = (*MetricsExtension)(nil)
	_ ext.JobSucceeded  = (*MetricsExtension)(nil)
	_ ext.JobRetrying   = (*MetricsExtension)(nil)
	_ ext.JobDead       = (*MetricsExtension)(nil)
	_ ext.JobSuperseded = (*MetricsExtension)(nil)
	_ ext.ScheduleFired = (*MetricsExtension)(nil)
)

// meterName is the instrumentation scope name for lifecycle metrics.
const meterName = "github.com/xraph/curator/observability"

// MetricsExtension records system-wide lifecycle counters via OpenTelemetry.
// Register it as a curator extension to track claim rates, completions,
// retries, quarantined jobs, supersede skips, and schedule fires.
//
// The middleware package measures individual transform calls; this
// extension covers the transitions the middleware cannot see: claims,
// supersede skips, terminal quarantine writes, and schedule fires.
type MetricsExtension struct {
	jobsClaimed    metric.Int64Counter
	jobsSucceeded  metric.Int64Counter
	jobsRetried    metric.Int64Counter
	jobsDead       metric.Int64Counter
	jobsSuperseded metric.Int64Counter
	scheduleFires  metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension using the global OTel
// MeterProvider. If no MeterProvider is configured, noop instruments are
// used and the extension records nothing.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension with the
// provided meter. This variant allows injecting a specific MeterProvider
// for testing.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	// On error the OTel API returns noop instruments, so the extension
	// degrades gracefully.
	claimed, _ := meter.Int64Counter("curator.jobs.claimed",
		metric.WithDescription("Jobs claimed for processing"),
		metric.WithUnit("{job}"),
	)
	succeeded, _ := meter.Int64Counter("curator.jobs.succeeded",
		metric.WithDescription("Jobs that finished successfully"),
		metric.WithUnit("{job}"),
	)
	retried, _ := meter.Int64Counter("curator.jobs.retried",
		metric.WithDescription("Retry attempts scheduled after failures"),
		metric.WithUnit("{job}"),
	)
	dead, _ := meter.Int64Counter("curator.jobs.dead",
		metric.WithDescription("Jobs moved to the quarantine"),
		metric.WithUnit("{job}"),
	)
	superseded, _ := meter.Int64Counter("curator.jobs.superseded",
		metric.WithDescription("Jobs skipped because newer work was queued"),
		metric.WithUnit("{job}"),
	)
	fires, _ := meter.Int64Counter("curator.schedule.fired",
		metric.WithDescription("Schedule entries fired"),
		metric.WithUnit("{fire}"),
	)

	return &MetricsExtension{
		jobsClaimed:    claimed,
		jobsSucceeded:  succeeded,
		jobsRetried:    retried,
		jobsDead:       dead,
		jobsSuperseded: superseded,
		scheduleFires:  fires,
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// ── Job lifecycle hooks ─────────────────────────────

// OnJobClaimed implements ext.JobClaimed.
func (m *MetricsExtension) OnJobClaimed(ctx context.Context, env *job.Envelope, _ *job.Record) error {
	m.jobsClaimed.Add(ctx, 1, typeAttr(env))
	return nil
}

// OnJobSucceeded implements ext.JobSucceeded.
func (m *MetricsExtension) OnJobSucceeded(ctx context.Context, env *job.Envelope, _ time.Duration) error {
	m.jobsSucceeded.Add(ctx, 1, typeAttr(env))
	return nil
}

// OnJobRetrying implements ext.JobRetrying.
func (m *MetricsExtension) OnJobRetrying(ctx context.Context, env *job.Envelope, _ int, _ time.Duration) error {
	m.jobsRetried.Add(ctx, 1, typeAttr(env))
	return nil
}

// OnJobDead implements ext.JobDead.
func (m *MetricsExtension) OnJobDead(ctx context.Context, env *job.Envelope, _ error) error {
	m.jobsDead.Add(ctx, 1, typeAttr(env))
	return nil
}

// OnJobSuperseded implements ext.JobSuperseded.
func (m *MetricsExtension) OnJobSuperseded(ctx context.Context, env *job.Envelope, _ *job.Envelope) error {
	m.jobsSuperseded.Add(ctx, 1, typeAttr(env))
	return nil
}

// ── Schedule lifecycle hooks ────────────────────────

// OnScheduleFired implements ext.ScheduleFired.
func (m *MetricsExtension) OnScheduleFired(ctx context.Context, entryName string, _ string) error {
	m.scheduleFires.Add(ctx, 1, metric.WithAttributes(attribute.String("entry", entryName)))
	return nil
}

func typeAttr(env *job.Envelope) metric.AddOption {
	return metric.WithAttributes(attribute.String("job_type", string(env.Type)))
}
