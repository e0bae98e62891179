// Package telemetry wires OpenTelemetry traces, metrics and logs for a
// taskpilot process. Exporters write JSON to a single file; when telemetry is
// disabled every instrument is a no-op.
package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/ShayCichocki/taskpilot/pkg/models"
)

const instrumentationName = "github.com/ShayCichocki/taskpilot"

// Options configures Setup.
type Options struct {
	Enabled bool
	// Writer receives exporter output. Required when Enabled.
	Writer io.Writer
	// ServiceVersion is recorded on the resource.
	ServiceVersion string
	// MetricInterval is the periodic export interval. Zero means 30s.
	MetricInterval time.Duration
}

// Telemetry holds the providers and the engine's instruments.
type Telemetry struct {
	tracer trace.Tracer
	logger *slog.Logger

	transitions   metric.Int64Counter
	completed     metric.Int64Counter
	failed        metric.Int64Counter
	attempts      metric.Int64Histogram
	phaseDuration metric.Float64Histogram

	shutdown []func(context.Context) error
}

// Nop returns telemetry whose instruments record nothing.
func Nop() *Telemetry {
	t := &Telemetry{tracer: tracenoop.NewTracerProvider().Tracer(instrumentationName)}
	// The noop meter never fails to create instruments.
	_ = t.instruments(metricnoop.NewMeterProvider().Meter(instrumentationName))
	return t
}

// Setup creates the providers, registers them globally and builds the
// instruments. Call Shutdown to flush.
func Setup(ctx context.Context, opts Options) (*Telemetry, error) {
	if !opts.Enabled {
		return Nop(), nil
	}
	if opts.Writer == nil {
		return nil, errors.New("telemetry enabled without a writer")
	}
	w := &lockedWriter{w: opts.Writer}
	interval := opts.MetricInterval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", "taskpilot"),
		attribute.String("service.version", opts.ServiceVersion),
	)
	t := &Telemetry{}

	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExporter), sdktrace.WithResource(res))
	t.shutdown = append(t.shutdown, tp.Shutdown)
	otel.SetTracerProvider(tp)

	metricExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(w))
	if err != nil {
		return nil, errors.Join(err, t.Shutdown(ctx))
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(interval))),
	)
	t.shutdown = append(t.shutdown, mp.Shutdown)
	otel.SetMeterProvider(mp)

	logExporter, err := stdoutlog.New(stdoutlog.WithWriter(w))
	if err != nil {
		return nil, errors.Join(err, t.Shutdown(ctx))
	}
	lp := sdklog.NewLoggerProvider(sdklog.WithResource(res), sdklog.WithProcessor(sdklog.NewBatchProcessor(logExporter)))
	t.shutdown = append(t.shutdown, lp.Shutdown)
	global.SetLoggerProvider(lp)

	t.tracer = tp.Tracer(instrumentationName)
	t.logger = otelslog.NewLogger(instrumentationName, otelslog.WithLoggerProvider(lp))
	if err := t.instruments(mp.Meter(instrumentationName)); err != nil {
		return nil, errors.Join(err, t.Shutdown(ctx))
	}
	return t, nil
}

func (t *Telemetry) instruments(meter metric.Meter) error {
	var err, e error
	t.transitions, e = meter.Int64Counter("taskpilot.task.transitions",
		metric.WithDescription("Task state transitions"), metric.WithUnit("{transition}"))
	err = errors.Join(err, e)
	t.completed, e = meter.Int64Counter("taskpilot.task.completed",
		metric.WithDescription("Tasks confirmed complete"), metric.WithUnit("{task}"))
	err = errors.Join(err, e)
	t.failed, e = meter.Int64Counter("taskpilot.task.failed",
		metric.WithDescription("Tasks that failed or were cancelled"), metric.WithUnit("{task}"))
	err = errors.Join(err, e)
	t.attempts, e = meter.Int64Histogram("taskpilot.confirmation.attempts",
		metric.WithDescription("Instructions and probes sent per task"), metric.WithUnit("{attempt}"))
	err = errors.Join(err, e)
	t.phaseDuration, e = meter.Float64Histogram("taskpilot.phase.duration",
		metric.WithDescription("Wall time of each execution phase"), metric.WithUnit("s"))
	return errors.Join(err, e)
}

// Tracer returns the tracer for engine spans.
func (t *Telemetry) Tracer() trace.Tracer { return t.tracer }

// Logger returns the OpenTelemetry log bridge, or nil when disabled.
func (t *Telemetry) Logger() *slog.Logger { return t.logger }

// RecordTransition counts one task state change.
func (t *Telemetry) RecordTransition(ctx context.Context, from, to models.TaskState) {
	t.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
}

// RecordOutcome records a task reaching a terminal state.
func (t *Telemetry) RecordOutcome(ctx context.Context, state models.TaskState, reason models.FailureReason, attempts int) {
	if state == models.TaskCompleted {
		t.completed.Add(ctx, 1)
	} else {
		t.failed.Add(ctx, 1, metric.WithAttributes(
			attribute.String("state", string(state)),
			attribute.String("reason", string(reason)),
		))
	}
	if attempts > 0 {
		t.attempts.Record(ctx, int64(attempts))
	}
}

// RecordPhase records the duration of one phase.
func (t *Telemetry) RecordPhase(ctx context.Context, index int, d time.Duration, failed int) {
	t.phaseDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.Int("phase", index),
		attribute.Bool("failures", failed > 0),
	))
}

// Shutdown flushes and stops every provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var err error
	for i := len(t.shutdown) - 1; i >= 0; i-- {
		err = errors.Join(err, t.shutdown[i](ctx))
	}
	t.shutdown = nil
	return err
}

// lockedWriter serializes the three exporters writing to one file.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
