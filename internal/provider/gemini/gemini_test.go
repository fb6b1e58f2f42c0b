package gemini

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felipepmaragno/chatgw/internal/descriptor"
	"github.com/felipepmaragno/chatgw/internal/domain"
	"github.com/felipepmaragno/chatgw/internal/provider"
	"github.com/felipepmaragno/chatgw/internal/stream"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc) *Adapter {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	d := descriptor.Builtin()["gemini"].Clone()
	d.BaseURL = server.URL

	return New(provider.Config{
		Descriptor: d,
		APIKey:     "g-test",
		Client:     server.Client(),
	})
}

const generateJSON = `{
	"candidates": [{"content": {"role": "model", "parts": [{"text": "Hello"}, {"text": " world"}]}, "finishReason": "STOP"}],
	"usageMetadata": {"promptTokenCount": 3, "candidatesTokenCount": 2, "totalTokenCount": 5},
	"modelVersion": "gemini-2.0-flash"
}`

const unitsStream = "data: {\"candidates\":[{\"content\":{\"role\":\"model\",\"parts\":[{\"text\":\"Hello\"}]}}]}\r\n\r\n" +
	"data: {\"candidates\":[{\"content\":{\"role\":\"model\",\"parts\":[{\"text\":\" world\"}]},\"finishReason\":\"STOP\"}],\"usageMetadata\":{\"promptTokenCount\":3,\"candidatesTokenCount\":2,\"totalTokenCount\":5}}\r\n\r\n"

func TestTransformRequest_FoldsRoles(t *testing.T) {
	d := descriptor.Builtin()["gemini"]
	req := domain.UnifiedRequest{
		SystemPrompt: "be brief",
		Messages: []domain.ChatMessage{
			domain.UserMessage("hi"),
			domain.AssistantMessage("hello"),
			{Role: domain.RoleFunction, Name: "lookup", Content: "42"},
			domain.SystemMessage("use metric"),
		},
	}

	out := TransformRequest(req, d)

	require.Len(t, out.Contents, 3)
	assert.Equal(t, "user", out.Contents[0].Role)
	assert.Equal(t, []Part{{Text: "be brief"}, {Text: "hi"}}, out.Contents[0].Parts)
	assert.Equal(t, "model", out.Contents[1].Role)
	assert.Equal(t, "user", out.Contents[2].Role)
	assert.Equal(t, []Part{{Text: "42"}, {Text: "use metric"}}, out.Contents[2].Parts)
	assert.Nil(t, out.GenerationConfig)
}

func TestTransformRequest_RoleMarkers(t *testing.T) {
	d := descriptor.Builtin()["gemini"].Clone()
	d.FoldRoleMarkers = true

	req := domain.UnifiedRequest{
		Messages: []domain.ChatMessage{
			domain.SystemMessage("use metric"),
			{Role: domain.RoleFunction, Name: "lookup", Content: "42"},
			domain.UserMessage("hi"),
		},
	}

	out := TransformRequest(req, d)

	require.Len(t, out.Contents, 1)
	assert.Equal(t, []Part{
		{Text: "System: use metric"},
		{Text: "Function lookup: 42"},
		{Text: "hi"},
	}, out.Contents[0].Parts)
}

func TestTransformRequest_GenerationConfig(t *testing.T) {
	d := descriptor.Builtin()["gemini"]
	temp, maxTokens := 0.2, 64
	req := domain.UnifiedRequest{
		Messages:    []domain.ChatMessage{domain.UserMessage("hi")},
		Temperature: &temp,
		MaxTokens:   &maxTokens,
	}

	body, err := json.Marshal(TransformRequest(req, d))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"contents": [{"role": "user", "parts": [{"text": "hi"}]}],
		"generationConfig": {"temperature": 0.2, "maxOutputTokens": 64}
	}`, string(body))
}

func TestRoundTrip(t *testing.T) {
	d := descriptor.Builtin()["gemini"]
	req := domain.UnifiedRequest{
		SystemPrompt: "preface",
		Messages:     []domain.ChatMessage{domain.UserMessage("round trip me")},
	}

	wire := TransformRequest(req, d)
	last := wire.Contents[len(wire.Contents)-1]
	echo := last.Parts[len(last.Parts)-1]

	resp, err := TransformResponse("gemini", Response{
		Candidates: []Candidate{{Content: Content{Role: "model", Parts: []Part{echo}}, FinishReason: "STOP"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "round trip me", resp.Content())
}

func TestTransformResponse_Blocked(t *testing.T) {
	resp, err := TransformResponse("gemini", Response{PromptFeedback: &PromptFeedback{BlockReason: "SAFETY"}})
	require.NoError(t, err)
	assert.Equal(t, domain.FinishContentFilter, resp.FinishReason)

	_, err = TransformResponse("gemini", Response{})
	assert.ErrorIs(t, err, domain.ErrDecodingError)
}

func TestSend_KeyAsQueryParam(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.0-flash:generateContent", r.URL.Path)
		assert.Equal(t, "g-test", r.URL.Query().Get("key"))
		assert.Empty(t, r.Header.Get("Authorization"))
		io.WriteString(w, generateJSON)
	})

	resp, err := a.Send(context.Background(), domain.UnifiedRequest{
		Messages: []domain.ChatMessage{domain.UserMessage("hi")},
	})
	require.NoError(t, err)

	assert.Equal(t, "Hello world", resp.Content())
	assert.Equal(t, domain.FinishStop, resp.FinishReason)
	assert.Equal(t, 5, resp.Usage.TotalTokens)
	assert.Equal(t, "gemini", resp.Provider)
}

func TestSend_ErrorMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{401, domain.ErrAuthenticationFailed},
		{403, domain.ErrAuthenticationFailed},
		{429, domain.ErrRateLimitExceeded},
		{400, domain.ErrInvalidRequest},
		{500, domain.ErrServerError},
		{404, domain.ErrHTTPError},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, `{"error":{"code":1,"message":"nope","status":"X"}}`)
			})

			_, err := a.Send(context.Background(), domain.UnifiedRequest{
				Messages: []domain.ChatMessage{domain.UserMessage("hi")},
			})
			require.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), "nope")
		})
	}
}

func TestSendStreaming_WholeContentUnits(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/gemini-2.0-flash:streamGenerateContent", r.URL.Path)
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))
		assert.Equal(t, "g-test", r.URL.Query().Get("key"))
		io.WriteString(w, unitsStream)
	})

	s, err := a.SendStreaming(context.Background(), domain.UnifiedRequest{
		Messages: []domain.ChatMessage{domain.UserMessage("hi")},
	})
	require.NoError(t, err)

	var frags []*domain.UnifiedResponse
	for r, err := range s.Fragments() {
		require.NoError(t, err)
		frags = append(frags, r)
	}

	require.Len(t, frags, 3)
	assert.Equal(t, "Hello", frags[0].Content())
	assert.Equal(t, " world", frags[1].Content())
	assert.Equal(t, domain.FinishNone, frags[1].FinishReason)
	assert.Equal(t, domain.FinishStop, frags[2].FinishReason)
	assert.Equal(t, 5, frags[2].Usage.TotalTokens)
}

func TestStreamConcatenationMatchesSend(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("alt") == "sse" {
			io.WriteString(w, unitsStream)
			return
		}
		io.WriteString(w, generateJSON)
	})
	req := domain.UnifiedRequest{Messages: []domain.ChatMessage{domain.UserMessage("hi")}}

	full, err := a.Send(context.Background(), req)
	require.NoError(t, err)

	s, err := a.SendStreaming(context.Background(), req)
	require.NoError(t, err)
	collected, err := stream.Collect(s)
	require.NoError(t, err)

	assert.Equal(t, full.Content(), collected.Content())
}

func TestSendStreaming_ErrorUnit(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "data: {\"error\":{\"code\":429,\"message\":\"Resource exhausted\"}}\n\n")
	})

	s, err := a.SendStreaming(context.Background(), domain.UnifiedRequest{
		Messages: []domain.ChatMessage{domain.UserMessage("hi")},
	})
	require.NoError(t, err)

	_, err = stream.Collect(s)
	require.ErrorIs(t, err, domain.ErrRateLimitExceeded)
}

func TestSend_FunctionsUnsupported(t *testing.T) {
	a := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})

	_, err := a.Send(context.Background(), domain.UnifiedRequest{
		Messages:  []domain.ChatMessage{domain.UserMessage("hi")},
		Functions: []domain.FunctionDefinition{{Name: "f"}},
	})
	assert.ErrorIs(t, err, domain.ErrUnsupportedFeature)
}
