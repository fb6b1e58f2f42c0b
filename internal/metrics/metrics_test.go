package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordRequest(t *testing.T) {
	RequestsTotal.Reset()
	RequestDuration.Reset()

	RecordRequest("openai", "gpt-4o", ModeSend, "success", 1.5)

	count := testutil.ToFloat64(RequestsTotal.WithLabelValues("openai", "gpt-4o", ModeSend, "success"))
	if count != 1 {
		t.Errorf("RequestsTotal = %v, want 1", count)
	}
	if n := testutil.CollectAndCount(RequestDuration); n != 1 {
		t.Errorf("RequestDuration series = %d, want 1", n)
	}
}

func TestRecordTokens(t *testing.T) {
	TokensTotal.Reset()

	RecordTokens("openai", "gpt-4o", 100, 50, false)
	RecordTokens("huggingface", "zephyr", 10, 5, true)

	inputCount := testutil.ToFloat64(TokensTotal.WithLabelValues("openai", "gpt-4o", "input", "false"))
	if inputCount != 100 {
		t.Errorf("input tokens = %v, want 100", inputCount)
	}

	outputCount := testutil.ToFloat64(TokensTotal.WithLabelValues("openai", "gpt-4o", "output", "false"))
	if outputCount != 50 {
		t.Errorf("output tokens = %v, want 50", outputCount)
	}

	estimated := testutil.ToFloat64(TokensTotal.WithLabelValues("huggingface", "zephyr", "output", "true"))
	if estimated != 5 {
		t.Errorf("estimated output tokens = %v, want 5", estimated)
	}
}

func TestRecordCost(t *testing.T) {
	CostTotal.Reset()

	RecordCost("openai", "gpt-4o", 0.05)
	RecordCost("openai", "gpt-4o", 0.03)

	cost := testutil.ToFloat64(CostTotal.WithLabelValues("openai", "gpt-4o"))
	if cost < 0.0799 || cost > 0.0801 {
		t.Errorf("CostTotal = %v, want 0.08", cost)
	}
}

func TestRecordProviderError(t *testing.T) {
	ProviderErrors.Reset()

	RecordProviderError("openai", "timeout")
	RecordProviderError("openai", "rate_limit_exceeded")
	RecordProviderError("openai", "timeout")

	timeouts := testutil.ToFloat64(ProviderErrors.WithLabelValues("openai", "timeout"))
	if timeouts != 2 {
		t.Errorf("timeout errors = %v, want 2", timeouts)
	}

	rateLimits := testutil.ToFloat64(ProviderErrors.WithLabelValues("openai", "rate_limit_exceeded"))
	if rateLimits != 1 {
		t.Errorf("rate_limit_exceeded errors = %v, want 1", rateLimits)
	}
}

func TestActiveStreams(t *testing.T) {
	ActiveStreams.Reset()

	IncrementActiveStreams("anthropic")
	IncrementActiveStreams("anthropic")

	streams := testutil.ToFloat64(ActiveStreams.WithLabelValues("anthropic"))
	if streams != 2 {
		t.Errorf("ActiveStreams = %v, want 2", streams)
	}

	DecrementActiveStreams("anthropic")
	streams = testutil.ToFloat64(ActiveStreams.WithLabelValues("anthropic"))
	if streams != 1 {
		t.Errorf("ActiveStreams after dec = %v, want 1", streams)
	}
}

func TestStreamFragments(t *testing.T) {
	StreamFragments.Reset()
	TimeToFirstFragment.Reset()

	RecordFirstFragment("gemini", 0.2)
	for i := 0; i < 3; i++ {
		RecordFragment("gemini")
	}

	if n := testutil.ToFloat64(StreamFragments.WithLabelValues("gemini")); n != 3 {
		t.Errorf("StreamFragments = %v, want 3", n)
	}
	if n := testutil.CollectAndCount(TimeToFirstFragment); n != 1 {
		t.Errorf("TimeToFirstFragment series = %d, want 1", n)
	}
}

func TestMultipleProviders(t *testing.T) {
	RequestsTotal.Reset()

	RecordRequest("openai", "gpt-4o", ModeSend, "success", 1.0)
	RecordRequest("anthropic", "claude-3", ModeStream, "success", 2.0)
	RecordRequest("openai", "gpt-4o", ModeSend, "error", 0.5)

	openaiSuccess := testutil.ToFloat64(RequestsTotal.WithLabelValues("openai", "gpt-4o", ModeSend, "success"))
	if openaiSuccess != 1 {
		t.Errorf("openai success = %v, want 1", openaiSuccess)
	}

	openaiError := testutil.ToFloat64(RequestsTotal.WithLabelValues("openai", "gpt-4o", ModeSend, "error"))
	if openaiError != 1 {
		t.Errorf("openai error = %v, want 1", openaiError)
	}

	anthropicStream := testutil.ToFloat64(RequestsTotal.WithLabelValues("anthropic", "claude-3", ModeStream, "success"))
	if anthropicStream != 1 {
		t.Errorf("anthropic stream success = %v, want 1", anthropicStream)
	}
}

func TestHandler(t *testing.T) {
	RequestsTotal.Reset()
	RecordRequest("ollama", "llama3.2", ModeSend, "success", 0.1)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `chatgw_requests_total{mode="send",model="llama3.2",provider="ollama",status="success"} 1`) {
		t.Error("metrics output missing chatgw_requests_total sample")
	}
}
