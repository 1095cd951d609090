package api

import (
	"context"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	boardSpanName    = "board.request"
	boardEventName   = "board.request.metrics"
	boardEventDomain = "taskboard.board"
	observability    = "observability.event"
)

// boardRequestMetrics records one board request as a span plus a structured
// log line carrying the same attributes.
type boardRequestMetrics struct {
	logger         *log.Logger
	span           trace.Span
	route          string
	start          time.Time
	authDuration   time.Duration
	loadDuration   time.Duration
	encodeDuration time.Duration
	tasksReturned  int
	hasMore        bool
	generation     uint64
	errorStage     string
}

func newBoardRequestMetrics(ctx context.Context, logger *log.Logger, route string) (*boardRequestMetrics, context.Context) {
	ctx, span := otel.Tracer("taskboard/api").Start(ctx, boardSpanName,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("http.route", route)),
	)
	return &boardRequestMetrics{logger: logger, span: span, route: route, start: time.Now()}, ctx
}

func (m *boardRequestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *boardRequestMetrics) ObserveLoad(d time.Duration) {
	if d > 0 {
		m.loadDuration = d
	}
}

func (m *boardRequestMetrics) ObserveEncode(d time.Duration) {
	if d > 0 {
		m.encodeDuration = d
	}
}

// SetSnapshot records what the response carried.
func (m *boardRequestMetrics) SetSnapshot(tasks int, hasMore bool, generation uint64) {
	m.tasksReturned = max(tasks, 0)
	m.hasMore = hasMore
	m.generation = generation
}

func (m *boardRequestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

func (m *boardRequestMetrics) attributes(status int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("http.route", m.route),
		attribute.Int("http.status_code", status),
		attribute.Float64("taskboard.board.total_ms", durationToMillis(time.Since(m.start))),
		attribute.Int("taskboard.board.tasks_returned", m.tasksReturned),
		attribute.Bool("taskboard.board.has_more", m.hasMore),
		attribute.Int64("taskboard.board.generation", int64(m.generation)),
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64("taskboard.board.auth_ms", durationToMillis(m.authDuration)))
	}
	if m.loadDuration > 0 {
		attrs = append(attrs, attribute.Float64("taskboard.board.load_ms", durationToMillis(m.loadDuration)))
	}
	if m.encodeDuration > 0 {
		attrs = append(attrs, attribute.Float64("taskboard.board.encode_ms", durationToMillis(m.encodeDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("taskboard.board.error_stage", m.errorStage))
	}
	return attrs
}

// Log ends the span and writes the metrics line.
func (m *boardRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}
	attrs := m.attributes(status)
	severity, number := severityForStatus(status, err)

	eventAttrs := append([]attribute.KeyValue{
		attribute.String("event.name", boardEventName),
		attribute.String("event.domain", boardEventDomain),
		attribute.String("severity_text", severity),
	}, attrs...)
	if err != nil {
		eventAttrs = append(eventAttrs, attribute.String("error.message", err.Error()))
	}
	m.span.SetAttributes(attrs...)
	m.span.AddEvent(observability, trace.WithAttributes(eventAttrs...))
	if severity == "ERROR" {
		desc := http.StatusText(status)
		if err != nil {
			desc = err.Error()
		}
		m.span.SetStatus(codes.Error, desc)
	} else {
		m.span.SetStatus(codes.Ok, "")
	}
	sc := m.span.SpanContext()
	m.span.End()

	if m.logger == nil {
		return
	}
	values := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		values[string(kv.Key)] = kv.Value.AsInterface()
	}
	fields := log.Fields{
		"event.name":      boardEventName,
		"event.domain":    boardEventDomain,
		"severity_text":   severity,
		"severity_number": number,
		"attributes":      values,
	}
	if sc.HasTraceID() {
		fields["trace_id"] = sc.TraceID().String()
		fields["span_id"] = sc.SpanID().String()
	}
	entry := m.logger.WithFields(fields)
	if err != nil {
		entry = entry.WithError(err)
	}
	switch severity {
	case "ERROR":
		entry.Error(observability)
	case "WARN":
		entry.Warn(observability)
	default:
		entry.Info(observability)
	}
}

// severityForStatus maps a response to OpenTelemetry log severity.
func severityForStatus(status int, err error) (string, int) {
	switch {
	case status >= http.StatusInternalServerError, status == 0 && err != nil:
		return "ERROR", 17
	case status >= http.StatusBadRequest:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
