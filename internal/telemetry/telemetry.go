// Package telemetry records engine call metrics through OpenTelemetry.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Instrument names.
const (
	MetricCalls    = "cryptonet.engine.calls"
	MetricFailures = "cryptonet.engine.failures"
	MetricDuration = "cryptonet.engine.duration"
)

// Attribute keys attached to every measurement.
const (
	AttrOp     = attribute.Key("cryptonet.op")
	AttrStatus = attribute.Key("cryptonet.status")
	AttrKind   = attribute.Key("cryptonet.error_kind")
)

// Recorder holds the engine call instruments.
type Recorder struct {
	calls    metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
}

// NewRecorder creates the instruments on meter. A nil meter records nothing.
func NewRecorder(meter metric.Meter) (*Recorder, error) {
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("cryptonet")
	}

	calls, err := meter.Int64Counter(MetricCalls,
		metric.WithDescription("Engine calls issued."),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create counter %s: %w", MetricCalls, err)
	}

	failures, err := meter.Int64Counter(MetricFailures,
		metric.WithDescription("Engine calls that returned an error or no result."),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create counter %s: %w", MetricFailures, err)
	}

	duration, err := meter.Float64Histogram(MetricDuration,
		metric.WithDescription("Wall time spent inside the engine."),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create histogram %s: %w", MetricDuration, err)
	}

	return &Recorder{calls: calls, failures: failures, duration: duration}, nil
}

// Call describes one finished engine call.
type Call struct {
	Op       string
	Status   int32
	Elapsed  time.Duration
	Failed   bool
	FailKind string
}

// Record adds one call to the instruments.
func (r *Recorder) Record(ctx context.Context, c Call) {
	attrs := metric.WithAttributes(AttrOp.String(c.Op), AttrStatus.Int(int(c.Status)))

	r.calls.Add(ctx, 1, attrs)
	r.duration.Record(ctx, c.Elapsed.Seconds(), metric.WithAttributes(AttrOp.String(c.Op)))
	if c.Failed {
		r.failures.Add(ctx, 1, metric.WithAttributes(AttrOp.String(c.Op), AttrKind.String(c.FailKind)))
	}
}
