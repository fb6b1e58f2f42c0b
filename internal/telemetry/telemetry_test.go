package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/felipepmaragno/chatgw/internal/domain"
)

func useRecorder(t *testing.T) *tracetest.SpanRecorder {
	t.Helper()
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	prev := tracer
	tracer = tp.Tracer("test")
	t.Cleanup(func() {
		tracer = prev
		tp.Shutdown(context.Background())
	})
	return rec
}

func attrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestInit_NoEndpoint(t *testing.T) {
	shutdown, err := Init(context.Background(), "chatgw-test", "dev", "")
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
	if Tracer() == nil {
		t.Error("Tracer() should never be nil")
	}
}

func TestSpanAttributes(t *testing.T) {
	rec := useRecorder(t)

	ctx, span := StartSpan(context.Background(), "chatgw.send")
	if GetTraceID(ctx) == "" {
		t.Error("GetTraceID() should return the active trace id")
	}

	cost := 0.002
	AddRequestAttributes(span, "openai", "gpt-4o", domain.UnifiedRequest{
		Messages: []domain.ChatMessage{domain.UserMessage("hi")},
		Stream:   true,
	})
	AddResponseAttributes(span, &domain.UnifiedResponse{
		ID:           "resp-1",
		FinishReason: domain.FinishStop,
		Usage:        &domain.TokenUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5, EstimatedCost: &cost},
	})
	span.End()

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(ended))
	}
	got := attrs(ended[0])

	checks := map[attribute.Key]attribute.Value{
		"provider":               attribute.StringValue("openai"),
		"model":                  attribute.StringValue("gpt-4o"),
		"request.stream":         attribute.BoolValue(true),
		"request.messages":       attribute.IntValue(1),
		"response.finish_reason": attribute.StringValue("stop"),
		"tokens.total":           attribute.IntValue(5),
		"tokens.estimated":       attribute.BoolValue(false),
		"cost.usd":               attribute.Float64Value(0.002),
	}
	for key, want := range checks {
		if got[key] != want {
			t.Errorf("attribute %s = %v, want %v", key, got[key].Emit(), want.Emit())
		}
	}
}

func TestAddErrorAttribute(t *testing.T) {
	rec := useRecorder(t)

	_, span := StartSpan(context.Background(), "chatgw.send")
	AddErrorAttribute(span, domain.NewProviderError(domain.KindRateLimitExceeded, "groq", "slow down"))
	span.End()

	ended := rec.Ended()[0]
	if ended.Status().Code != codes.Error {
		t.Errorf("status = %v, want Error", ended.Status().Code)
	}
	if got := attrs(ended)["error.kind"]; got != attribute.StringValue("rate_limit_exceeded") {
		t.Errorf("error.kind = %v, want rate_limit_exceeded", got.Emit())
	}
	if len(ended.Events()) == 0 {
		t.Error("error should be recorded as a span event")
	}
}

func TestGetTraceID_NoSpan(t *testing.T) {
	if id := GetTraceID(context.Background()); id != "" {
		t.Errorf("GetTraceID() = %q, want empty", id)
	}
}
