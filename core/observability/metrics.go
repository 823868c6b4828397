package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentationName is the meter name used by NewGlobal.
const InstrumentationName = "github.com/searchktools/mini-server"

// Metrics holds the server's otel instruments. A nil *Metrics is valid and
// records nothing, so callers never need to guard.
type Metrics struct {
	jobsSubmitted   metric.Int64Counter
	jobsCompleted   metric.Int64Counter
	jobsPanicked    metric.Int64Counter
	requests        metric.Int64Counter
	requestDuration metric.Float64Histogram
	parseFailures   metric.Int64Counter
	activeConns     metric.Int64UpDownCounter
}

// New creates the instruments on meter.
func New(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.jobsSubmitted, err = meter.Int64Counter("miniserver.jobs.submitted",
		metric.WithDescription("Jobs handed to the worker pool"),
		metric.WithUnit("{job}")); err != nil {
		return nil, fmt.Errorf("jobs.submitted: %w", err)
	}
	if m.jobsCompleted, err = meter.Int64Counter("miniserver.jobs.completed",
		metric.WithDescription("Jobs that finished running, including panicked ones"),
		metric.WithUnit("{job}")); err != nil {
		return nil, fmt.Errorf("jobs.completed: %w", err)
	}
	if m.jobsPanicked, err = meter.Int64Counter("miniserver.jobs.panicked",
		metric.WithDescription("Jobs recovered from a panic"),
		metric.WithUnit("{job}")); err != nil {
		return nil, fmt.Errorf("jobs.panicked: %w", err)
	}
	if m.requests, err = meter.Int64Counter("miniserver.requests",
		metric.WithDescription("Responses written, by method and status"),
		metric.WithUnit("{request}")); err != nil {
		return nil, fmt.Errorf("requests: %w", err)
	}
	if m.requestDuration, err = meter.Float64Histogram("miniserver.request.duration",
		metric.WithDescription("Handler latency"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("request.duration: %w", err)
	}
	if m.parseFailures, err = meter.Int64Counter("miniserver.parse.failures",
		metric.WithDescription("Requests rejected by the parser, by kind"),
		metric.WithUnit("{request}")); err != nil {
		return nil, fmt.Errorf("parse.failures: %w", err)
	}
	if m.activeConns, err = meter.Int64UpDownCounter("miniserver.connections.active",
		metric.WithDescription("Connections currently owned by a worker"),
		metric.WithUnit("{connection}")); err != nil {
		return nil, fmt.Errorf("connections.active: %w", err)
	}

	return m, nil
}

// NewGlobal creates the instruments on the globally registered provider.
func NewGlobal() (*Metrics, error) {
	return New(otel.Meter(InstrumentationName))
}

func (m *Metrics) JobSubmitted(ctx context.Context) {
	if m == nil {
		return
	}
	m.jobsSubmitted.Add(ctx, 1)
}

func (m *Metrics) JobCompleted(ctx context.Context) {
	if m == nil {
		return
	}
	m.jobsCompleted.Add(ctx, 1)
}

func (m *Metrics) JobPanicked(ctx context.Context) {
	if m == nil {
		return
	}
	m.jobsPanicked.Add(ctx, 1)
}

// RequestServed records one handled request.
func (m *Metrics) RequestServed(ctx context.Context, method string, status int, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.Int("http.status_code", status),
	)
	m.requests.Add(ctx, 1, attrs)
	m.requestDuration.Record(ctx, float64(d)/float64(time.Millisecond), attrs)
}

func (m *Metrics) ParseFailed(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.parseFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (m *Metrics) ConnOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeConns.Add(ctx, 1)
}

func (m *Metrics) ConnClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeConns.Add(ctx, -1)
}
