// Package anthropic binds the messages API. Its request shape, response
// shape and stream decoder are shared with the bedrock adapter.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/felipepmaragno/chatgw/internal/domain"
	"github.com/felipepmaragno/chatgw/internal/provider"
	"github.com/felipepmaragno/chatgw/internal/stream"
)

const messagesPath = "/messages"

type Adapter struct {
	provider.Base
}

func New(cfg provider.Config) *Adapter {
	return &Adapter{Base: provider.NewBase(cfg, nil)}
}

func (a *Adapter) Validate(req domain.UnifiedRequest) error {
	if err := a.Base.Validate(req); err != nil {
		return err
	}
	return ValidateTurns(a.ID(), req)
}

func (a *Adapter) Send(ctx context.Context, req domain.UnifiedRequest) (*domain.UnifiedResponse, error) {
	if err := a.Validate(req); err != nil {
		return nil, err
	}

	body := TransformRequest(req.WithStream(false), a.Descriptor())

	var out Response
	if err := a.DoJSON(ctx, provider.Call{Path: messagesPath, Body: body}, &out); err != nil {
		return nil, err
	}

	resp := TransformResponse(out)
	if resp.Model == "" {
		resp.Model = body.Model
	}
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

	return a.OpenStream(ctx, provider.Call{Path: messagesPath, Body: body}, provider.StreamOptions{
		Request: req,
		Model:   body.Model,
		Decoder: NewDecoder(a.ID()),
	})
}

type streamEvent struct {
	Type    string       `json:"type"`
	Message *Response    `json:"message,omitempty"`
	Delta   *streamDelta `json:"delta,omitempty"`
	Usage   *Usage       `json:"usage,omitempty"`
	Error   *apiError    `json:"error,omitempty"`
}

type streamDelta struct {
	Type       string `json:"type"`
	Text       string `json:"text"`
	StopReason string `json:"stop_reason"`
}

type apiError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewDecoder reads typed event envelopes. The event type is taken from the
// JSON body, so the same decoder serves SSE and the Bedrock event stream.
// Events that carry no text still yield an empty fragment.
func NewDecoder(providerID string) stream.Decoder {
	return stream.DecoderFunc(func(ev stream.Event) (stream.Frame, error) {
		var e streamEvent
		if err := json.Unmarshal([]byte(ev.Data), &e); err != nil {
			return stream.Frame{}, fmt.Errorf("decode event: %w", err)
		}
		if e.Type == "" {
			e.Type = ev.Name
		}

		switch e.Type {
		case "message_start":
			frame := stream.Frame{Emit: true}
			if m := e.Message; m != nil {
				frame.ID = m.ID
				frame.Model = m.Model
				frame.Usage = domain.NewTokenUsage(m.Usage.InputTokens, m.Usage.OutputTokens)
			}
			return frame, nil

		case "content_block_delta":
			frame := stream.Frame{Emit: true}
			if e.Delta != nil && e.Delta.Type == "text_delta" {
				frame.Content = e.Delta.Text
			}
			return frame, nil

		case "message_delta":
			frame := stream.Frame{Emit: true}
			if e.Delta != nil {
				frame.FinishReason = MapStopReason(e.Delta.StopReason)
			}
			if e.Usage != nil {
				frame.Usage = &domain.TokenUsage{
					PromptTokens:     e.Usage.InputTokens,
					CompletionTokens: e.Usage.OutputTokens,
				}
			}
			return frame, nil

		case "message_stop":
			return stream.Frame{Done: true}, nil

		case "error":
			return stream.Frame{}, streamError(providerID, e.Error)

		default:
			// ping, content_block_start, content_block_stop
			return stream.Frame{Emit: true}, nil
		}
	})
}

func streamError(providerID string, e *apiError) error {
	if e == nil {
		return domain.NewProviderError(domain.KindUnknown, providerID, "stream error")
	}

	kind := domain.KindServerError
	switch e.Type {
	case "rate_limit_error":
		kind = domain.KindRateLimitExceeded
	case "authentication_error", "permission_error":
		kind = domain.KindAuthenticationFailed
	case "invalid_request_error", "not_found_error", "request_too_large":
		kind = domain.KindInvalidRequest
	}
	return domain.NewProviderError(kind, providerID, e.Message)
}

var _ provider.Adapter = (*Adapter)(nil)
