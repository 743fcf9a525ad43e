package fetch

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/matheus3301/chatsync/internal/fetch"

// Metrics instruments the orchestrators of one session.
type Metrics struct {
	loads    metric.Int64Counter
	joins    metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
	waiters  metric.Int64UpDownCounter
}

// NewMetrics creates the fetch instruments on meter. A nil meter uses the
// global meter provider.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	if meter == nil {
		meter = otel.Meter(meterName)
	}

	loads, err := meter.Int64Counter(
		"chatsync_fetch_loads_total",
		metric.WithDescription("Loader invocations started"),
	)
	if err != nil {
		return nil, err
	}

	joins, err := meter.Int64Counter(
		"chatsync_fetch_joins_total",
		metric.WithDescription("Ensure calls that joined a load already in flight"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter(
		"chatsync_fetch_failures_total",
		metric.WithDescription("Loads that returned an error"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"chatsync_fetch_duration_seconds",
		metric.WithDescription("Loader duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	waiters, err := meter.Int64UpDownCounter(
		"chatsync_fetch_waiters",
		metric.WithDescription("Callers blocked in Ensure"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		loads:    loads,
		joins:    joins,
		failures: failures,
		duration: duration,
		waiters:  waiters,
	}, nil
}

func storeAttr(store string) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("store", store))
}

func (m *Metrics) loadStarted(ctx context.Context, store string) {
	m.loads.Add(ctx, 1, storeAttr(store))
}

func (m *Metrics) joined(ctx context.Context, store string) {
	m.joins.Add(ctx, 1, storeAttr(store))
}

func (m *Metrics) loadFinished(ctx context.Context, store string, seconds float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
		m.failures.Add(ctx, 1, storeAttr(store))
	}
	m.duration.Record(ctx, seconds, metric.WithAttributes(
		attribute.String("store", store),
		attribute.String("status", status),
	))
}

func (m *Metrics) waiting(ctx context.Context, store string, delta int64) {
	m.waiters.Add(ctx, delta, storeAttr(store))
}
