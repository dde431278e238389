package dataset

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/benchtop-io/benchd/internal/telemetry"
)

// meterName scopes the OTel instruments emitted alongside run spans.
const meterName = "benchd.dataset"

// emitRunObs records one finished run on the OTel metrics pipeline.
// The meter provider is looked up at call time, so runs recorded
// before telemetry is configured land on the noop provider instead of
// binding it at init.
func emitRunObs(ctx context.Context, experiment, status string, rows int64, elapsed time.Duration) {
	meter := otel.GetMeterProvider().Meter(meterName)

	runsTotal, _ := meter.Int64Counter("benchd.runs.finished",
		metric.WithDescription("Measurement runs reaching a terminal state"))
	runsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(telemetry.RunExperimentKey, experiment),
		attribute.String(telemetry.RunStatusKey, status),
	))

	rowsTotal, _ := meter.Int64Counter("benchd.runs.rows",
		metric.WithDescription("Result rows committed by finished runs"))
	rowsTotal.Add(ctx, rows, metric.WithAttributes(
		attribute.String(telemetry.RunExperimentKey, experiment),
	))

	runSeconds, _ := meter.Float64Histogram("benchd.runs.duration",
		metric.WithDescription("Wall time of finished runs"),
		metric.WithUnit("s"))
	runSeconds.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
		attribute.String(telemetry.RunStatusKey, status),
	))
}
