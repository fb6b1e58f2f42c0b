// Package openai binds every vendor that speaks the chat-completions wire
// shape: OpenAI itself, Azure, OpenRouter, Groq, Mistral, Ollama and the
// other compatible gateways in the descriptor catalog.
package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"github.com/felipepmaragno/chatgw/internal/domain"
	"github.com/felipepmaragno/chatgw/internal/provider"
	"github.com/felipepmaragno/chatgw/internal/stream"
)

const chatPath = "/chat/completions"

type Adapter struct {
	provider.Base
}

func New(cfg provider.Config) *Adapter {
	return &Adapter{
		Base: provider.NewBase(cfg, statusOverrides[cfg.Descriptor.ID]),
	}
}

func (a *Adapter) Send(ctx context.Context, req domain.UnifiedRequest) (*domain.UnifiedResponse, error) {
	if err := a.Validate(req); err != nil {
		return nil, err
	}

	body := TransformRequest(req.WithStream(false), a.Descriptor())

	var out Response
	if err := a.DoJSON(ctx, provider.Call{Path: chatPath, Body: body}, &out); err != nil {
		return nil, err
	}

	resp, err := TransformResponse(a.ID(), out)
	if err != nil {
		return nil, err
	}
	if resp.Model == "" {
		resp.Model = body.Model
	}
	repairArguments(resp)

	return a.Finalize(resp, req), nil
}

func (a *Adapter) SendStreaming(ctx context.Context, req domain.UnifiedRequest) (*stream.Stream, error) {
	if err := a.Validate(req); err != nil {
		return nil, err
	}

	if !a.Descriptor().SupportsStreaming {
		full, err := a.Send(ctx, req)
		if err != nil {
			return nil, err
		}
		return a.Simulate(ctx, full), nil
	}

	body := TransformRequest(req.WithStream(true), a.Descriptor())

	return a.OpenStream(ctx, provider.Call{Path: chatPath, Body: body}, provider.StreamOptions{
		Request:  req,
		Model:    body.Model,
		Decoder:  NewDecoder(a.ID()),
		Finalize: repairArguments,
	})
}

// NewDecoder reads chat-completion chunks. Function-call deltas are passed
// through for the normalizer to accumulate.
func NewDecoder(providerID string) stream.Decoder {
	return stream.DecoderFunc(func(ev stream.Event) (stream.Frame, error) {
		var chunk StreamChunk
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			return stream.Frame{}, fmt.Errorf("decode chunk: %w", err)
		}

		if chunk.Error != nil {
			return stream.Frame{}, streamError(providerID, chunk.Error)
		}

		frame := stream.Frame{ID: chunk.ID, Model: chunk.Model}
		if len(chunk.Choices) > 0 {
			choice := chunk.Choices[0]
			frame.Content = choice.Delta.Content
			if fc := choice.Delta.FunctionCall; fc != nil {
				frame.FunctionCall = &domain.FunctionCall{Name: fc.Name, Arguments: fc.Arguments}
			}
			if choice.FinishReason != nil {
				frame.FinishReason = mapFinishReason(*choice.FinishReason)
			}
		}
		if u := chunk.Usage; u != nil {
			frame.Usage = &domain.TokenUsage{
				PromptTokens:     u.PromptTokens,
				CompletionTokens: u.CompletionTokens,
				TotalTokens:      u.TotalTokens,
			}
		}
		return frame, nil
	})
}

func streamError(providerID string, e *APIError) error {
	tag := strings.ToLower(e.Type + " " + strings.Trim(string(e.Code), `"`))

	kind := domain.KindServerError
	switch {
	case strings.Contains(tag, "rate_limit"), strings.Contains(tag, "429"):
		kind = domain.KindRateLimitExceeded
	case strings.Contains(tag, "invalid_api_key"), strings.Contains(tag, "authentication"), strings.Contains(tag, "401"):
		kind = domain.KindAuthenticationFailed
	case strings.Contains(tag, "invalid_request"), strings.Contains(tag, "400"):
		kind = domain.KindInvalidRequest
	}

	msg := e.Message
	if msg == "" {
		msg = "stream error"
	}
	return domain.NewProviderError(kind, providerID, msg)
}

// repairArguments fixes the truncated or loosely quoted argument JSON some
// models emit for function calls.
func repairArguments(resp *domain.UnifiedResponse) {
	fc := resp.FunctionCall
	if fc == nil || fc.Arguments == "" || json.Valid([]byte(fc.Arguments)) {
		return
	}

	repaired, err := jsonrepair.JSONRepair(fc.Arguments)
	if err != nil {
		slog.Debug("function call arguments could not be repaired",
			"provider", resp.Provider,
			"function", fc.Name,
			"error", err,
		)
		return
	}
	fc.Arguments = repaired
}

var statusOverrides = map[string]provider.StatusOverride{
	"openrouter": openRouterOverride,
}

// openRouterOverride: OpenRouter answers 502/503 when it cannot route to
// any upstream for the requested model.
func openRouterOverride(status int, msg string) (string, bool) {
	switch status {
	case http.StatusBadGateway:
		return "upstream provider returned an invalid response via openrouter: " + msg, true
	case http.StatusServiceUnavailable:
		return "no upstream provider available for the requested model via openrouter: " + msg, true
	}
	return "", false
}

var _ provider.Adapter = (*Adapter)(nil)
