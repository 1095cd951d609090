package gateway

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"taskboard/domain"
)

const tracerName = "taskboard/gateway"

// Traced records a span around every call into the wrapped Service.
type Traced struct {
	base   Service
	tracer trace.Tracer
}

// NewTraced wraps base using the global tracer provider.
func NewTraced(base Service) *Traced {
	return &Traced{base: base, tracer: otel.Tracer(tracerName)}
}

func (t *Traced) start(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, "gateway."+op, trace.WithAttributes(attrs...), trace.WithSpanKind(trace.SpanKindClient))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (t *Traced) FetchPage(ctx context.Context, status domain.Status, filters domain.FilterSet, page PageSpec) ([]domain.Task, error) {
	ctx, span := t.start(ctx, "FetchPage",
		attribute.String("task.status", string(status)),
		attribute.Int("page.limit", page.Limit),
		attribute.Int("page.offset", page.Offset),
		attribute.Bool("page.keyset", page.After != nil),
	)
	tasks, err := t.base.FetchPage(ctx, status, filters, page)
	span.SetAttributes(attribute.Int("page.rows", len(tasks)))
	finish(span, err)
	return tasks, err
}

func (t *Traced) CountByStatus(ctx context.Context, status domain.Status, filters domain.FilterSet) (int, error) {
	ctx, span := t.start(ctx, "CountByStatus", attribute.String("task.status", string(status)))
	n, err := t.base.CountByStatus(ctx, status, filters)
	finish(span, err)
	return n, err
}

func (t *Traced) UpdateStatus(ctx context.Context, taskID string, status domain.Status) error {
	ctx, span := t.start(ctx, "UpdateStatus", attribute.String("task.id", taskID), attribute.String("task.status", string(status)))
	err := t.base.UpdateStatus(ctx, taskID, status)
	finish(span, err)
	return err
}

func (t *Traced) ListDistinctValues(ctx context.Context, column LookupColumn) ([]string, error) {
	ctx, span := t.start(ctx, "ListDistinctValues", attribute.String("lookup.column", string(column)))
	values, err := t.base.ListDistinctValues(ctx, column)
	finish(span, err)
	return values, err
}

func (t *Traced) SubcategoryMap(ctx context.Context) (map[string][]string, error) {
	ctx, span := t.start(ctx, "SubcategoryMap")
	m, err := t.base.SubcategoryMap(ctx)
	finish(span, err)
	return m, err
}

func (t *Traced) Discarded(ctx context.Context, limit int) ([]domain.Task, error) {
	ctx, span := t.start(ctx, "Discarded", attribute.Int("page.limit", limit))
	tasks, err := t.base.Discarded(ctx, limit)
	finish(span, err)
	return tasks, err
}

func (t *Traced) TaskDetails(ctx context.Context, taskID string) (domain.Task, error) {
	ctx, span := t.start(ctx, "TaskDetails", attribute.String("task.id", taskID))
	task, err := t.base.TaskDetails(ctx, taskID)
	finish(span, err)
	return task, err
}

func (t *Traced) Comments(ctx context.Context, taskID string) ([]domain.Comment, error) {
	ctx, span := t.start(ctx, "Comments", attribute.String("task.id", taskID))
	comments, err := t.base.Comments(ctx, taskID)
	finish(span, err)
	return comments, err
}

func (t *Traced) AddComment(ctx context.Context, taskID, content, userEmail string) (domain.Comment, error) {
	ctx, span := t.start(ctx, "AddComment", attribute.String("task.id", taskID))
	c, err := t.base.AddComment(ctx, taskID, content, userEmail)
	finish(span, err)
	return c, err
}
