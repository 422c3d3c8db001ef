package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope for bridge spans.
const TracerName = "github.com/BaSui01/streambridge"

// Span attribute keys.
const (
	AttrStreamID   = attribute.Key("streambridge.stream_id")
	AttrSide       = attribute.Key("streambridge.side")
	AttrEndStatus  = attribute.Key("streambridge.end_status")
	AttrChunkCount = attribute.Key("streambridge.chunks")
	AttrURL        = attribute.Key("streambridge.url")
	AttrRole       = attribute.Key("streambridge.role")
)

// StartStreamSpan 为一个流的完整生命周期开启 span，流终止时调用 EndStreamSpan
func StartStreamSpan(ctx context.Context, side, id string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{AttrStreamID.String(id), AttrSide.String(side)}, attrs...)
	return otel.Tracer(TracerName).Start(ctx, "stream."+side,
		trace.WithSpanKind(spanKind(side)),
		trace.WithAttributes(attrs...),
	)
}

// EndStreamSpan records the terminal status and chunk count and ends span.
// A non-zero status marks the span as an error.
func EndStreamSpan(span trace.Span, status int, statusText string, chunks int) {
	if span == nil {
		return
	}
	span.SetAttributes(AttrEndStatus.Int(status), AttrChunkCount.Int(chunks))
	if status != 0 {
		span.SetStatus(codes.Error, statusText)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func spanKind(side string) trace.SpanKind {
	switch side {
	case "host":
		return trace.SpanKindProducer
	case "consumer":
		return trace.SpanKindConsumer
	default:
		return trace.SpanKindInternal
	}
}
