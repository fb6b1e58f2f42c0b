// Package gemini binds the generateContent API. Authentication is a query
// parameter and streamed units are whole content objects, not deltas.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/felipepmaragno/chatgw/internal/domain"
	"github.com/felipepmaragno/chatgw/internal/provider"
	"github.com/felipepmaragno/chatgw/internal/stream"
)

type Adapter struct {
	provider.Base
}

func New(cfg provider.Config) *Adapter {
	return &Adapter{Base: provider.NewBase(cfg, nil)}
}

func modelPath(model, method string) string {
	return "/models/" + url.PathEscape(model) + ":" + method
}

func (a *Adapter) Send(ctx context.Context, req domain.UnifiedRequest) (*domain.UnifiedResponse, error) {
	if err := a.Validate(req); err != nil {
		return nil, err
	}

	model := a.Descriptor().ResolveModel(req.Model)
	body := TransformRequest(req, a.Descriptor())

	var out Response
	if err := a.DoJSON(ctx, provider.Call{Path: modelPath(model, "generateContent"), Body: body}, &out); err != nil {
		return nil, err
	}

	resp, err := TransformResponse(a.ID(), out)
	if err != nil {
		return nil, err
	}
	if resp.Model == "" {
		resp.Model = model
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

	model := a.Descriptor().ResolveModel(req.Model)
	call := provider.Call{
		Path:  modelPath(model, "streamGenerateContent"),
		Body:  TransformRequest(req, a.Descriptor()),
		Query: url.Values{"alt": {"sse"}},
	}

	return a.OpenStream(ctx, call, provider.StreamOptions{
		Request: req,
		Model:   model,
		Decoder: NewDecoder(a.ID()),
	})
}

// NewDecoder treats every unit as a whole-content fragment: its text is
// emitted as is, never diffed against earlier units.
func NewDecoder(providerID string) stream.Decoder {
	return stream.DecoderFunc(func(ev stream.Event) (stream.Frame, error) {
		var unit Response
		if err := json.Unmarshal([]byte(ev.Data), &unit); err != nil {
			return stream.Frame{}, fmt.Errorf("decode unit: %w", err)
		}

		if e := unit.Error; e != nil {
			return stream.Frame{}, &domain.ProviderError{
				Kind:       provider.KindForStatus(e.Code),
				Provider:   providerID,
				StatusCode: e.Code,
				Message:    e.Message,
			}
		}

		frame := stream.Frame{
			Model: unit.ModelVersion,
			Usage: usage(unit.UsageMetadata),
		}
		if len(unit.Candidates) > 0 {
			c := unit.Candidates[0]
			frame.Content = text(c.Content)
			frame.FinishReason = MapFinishReason(c.FinishReason)
		} else if pf := unit.PromptFeedback; pf != nil && pf.BlockReason != "" {
			frame.FinishReason = domain.FinishContentFilter
		}
		return frame, nil
	})
}

var _ provider.Adapter = (*Adapter)(nil)
