// Package telemetry installs the process tracer provider. Finished spans are
// written to the log so traces are visible without a collector.
package telemetry

import (
	"context"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// LogExporter writes every finished span as one structured log line.
type LogExporter struct {
	logger log.FieldLogger
}

func NewLogExporter(logger log.FieldLogger) *LogExporter {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &LogExporter{logger: logger}
}

func (e *LogExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		fields := log.Fields{
			"trace_id":    s.SpanContext().TraceID().String(),
			"span_id":     s.SpanContext().SpanID().String(),
			"span":        s.Name(),
			"kind":        s.SpanKind().String(),
			"duration_ms": float64(s.EndTime().Sub(s.StartTime())) / 1e6,
			"status":      s.Status().Code.String(),
		}
		if p := s.Parent(); p.IsValid() {
			fields["parent_id"] = p.SpanID().String()
		}
		for _, kv := range s.Attributes() {
			fields["attr."+string(kv.Key)] = kv.Value.AsInterface()
		}
		entry := e.logger.WithFields(fields)
		if desc := s.Status().Description; desc != "" {
			entry = entry.WithField("status_description", desc)
		}
		entry.Debug("span")
	}
	return ctx.Err()
}

func (e *LogExporter) Shutdown(ctx context.Context) error {
	return ctx.Err()
}

// Setup installs a global tracer provider that batches spans into the log
// exporter. The returned func flushes and stops it.
func Setup(logger log.FieldLogger) func(context.Context) error {
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(NewLogExporter(logger)))
	otel.SetTracerProvider(tp)
	return tp.Shutdown
}
