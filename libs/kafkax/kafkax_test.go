package kafkax

import (
	"context"
	"testing"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

func TestExtractEventMetaFallsBackToKeyAndTopic(t *testing.T) {
	meta := ExtractEventMeta(kafka.Message{Topic: "queue.ticket.status_changed.v1", Key: []byte("t1")})
	if meta.EventID != "t1" || meta.EventType != "queue.ticket.status_changed.v1" {
		t.Fatalf("unexpected meta %+v", meta)
	}

	meta = ExtractEventMeta(kafka.Message{
		Topic:   "topic",
		Key:     []byte("key"),
		Headers: []kafka.Header{{Key: "event_id", Value: []byte("e1")}, {Key: "event_type", Value: []byte("type")}},
	})
	if meta.EventID != "e1" || meta.EventType != "type" {
		t.Fatalf("expected header values to win, got %+v", meta)
	}
}

func TestEventMetaHeadersRoundTrip(t *testing.T) {
	headers := EventMeta{EventID: "e1", EventType: "queue.ticket.created.v1", AggregateID: "t1"}.Headers()
	if len(headers) != 3 {
		t.Fatalf("expected 3 headers, got %v", headers)
	}
	meta := ExtractEventMeta(kafka.Message{Topic: "other", Key: []byte("k"), Headers: headers})
	if meta.EventID != "e1" || meta.EventType != "queue.ticket.created.v1" || meta.AggregateID != "t1" {
		t.Fatalf("unexpected meta %+v", meta)
	}

	if got := (EventMeta{EventID: "e2"}).Headers(); len(got) != 1 {
		t.Fatalf("empty fields must be skipped, got %v", got)
	}
}

func TestReadyCheckWithoutBrokers(t *testing.T) {
	if err := ReadyCheck(" , ")(context.Background()); err == nil {
		t.Fatalf("expected error for empty broker list")
	}
}

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092 ")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
	if SplitBrokers("") != nil {
		t.Fatalf("expected nil for empty input")
	}
}

func TestTraceHeadersRoundTrip(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID, TraceFlags: trace.FlagsSampled, Remote: true})
	ctx := trace.ContextWithRemoteSpanContext(context.Background(), sc)

	headers := InjectTraceHeaders(ctx, []kafka.Header{{Key: "event_id", Value: []byte("e1")}})
	if HeaderValue(headers, "traceparent") == "" {
		t.Fatalf("expected traceparent header, got %v", headers)
	}
	if HeaderValue(headers, "event_id") != "e1" {
		t.Fatalf("existing headers must be kept")
	}

	got := trace.SpanContextFromContext(ExtractTraceContext(context.Background(), kafka.Message{Headers: headers}))
	if got.TraceID() != traceID || got.SpanID() != spanID {
		t.Fatalf("unexpected extracted span context %v", got)
	}
}
