// Package bedrock binds Anthropic models hosted on AWS Bedrock. The body is
// the messages-API shape; transport, signing and streaming go through the
// AWS SDK instead of plain HTTP.
package bedrock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/aws/smithy-go"

	"github.com/felipepmaragno/chatgw/internal/domain"
	"github.com/felipepmaragno/chatgw/internal/provider"
	"github.com/felipepmaragno/chatgw/internal/provider/anthropic"
	"github.com/felipepmaragno/chatgw/internal/stream"
)

const anthropicVersion = "bedrock-2023-05-31"

// eventStream is the subset of the SDK event stream the adapter reads.
type eventStream interface {
	Events() <-chan types.ResponseStream
	Close() error
	Err() error
}

type invoker interface {
	Invoke(ctx context.Context, modelID string, body []byte) ([]byte, error)
	InvokeStream(ctx context.Context, modelID string, body []byte) (eventStream, error)
}

type sdkInvoker struct {
	client *bedrockruntime.Client
}

func (s sdkInvoker) Invoke(ctx context.Context, modelID string, body []byte) ([]byte, error) {
	output, err := s.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
		ModelId:     aws.String(modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, err
	}
	return output.Body, nil
}

func (s sdkInvoker) InvokeStream(ctx context.Context, modelID string, body []byte) (eventStream, error) {
	output, err := s.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(modelID),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, err
	}
	return output.GetStream(), nil
}

type Adapter struct {
	provider.Base
	invoker invoker
}

// New loads the default AWS credential chain for the descriptor's region.
func New(ctx context.Context, cfg provider.Config) (*Adapter, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Descriptor.Region)}
	if cfg.Client != nil {
		opts = append(opts, config.WithHTTPClient(cfg.Client))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, domain.NewProviderError(domain.KindInvalidConfiguration, cfg.Descriptor.ID,
			fmt.Sprintf("load aws config: %v", err))
	}
	return NewWithConfig(cfg, awsCfg), nil
}

func NewWithConfig(cfg provider.Config, awsCfg aws.Config) *Adapter {
	return newWithInvoker(cfg, sdkInvoker{client: bedrockruntime.NewFromConfig(awsCfg)})
}

func newWithInvoker(cfg provider.Config, inv invoker) *Adapter {
	return &Adapter{
		Base:    provider.NewBase(cfg, nil),
		invoker: inv,
	}
}

// Validate accepts the short model aliases as well as full Bedrock model ids.
func (a *Adapter) Validate(req domain.UnifiedRequest) error {
	req.Model = resolveModelID(req.Model)
	if err := provider.Validate(a.Descriptor(), req); err != nil {
		return err
	}
	return anthropic.ValidateTurns(a.ID(), req)
}

func (a *Adapter) Send(ctx context.Context, req domain.UnifiedRequest) (*domain.UnifiedResponse, error) {
	if err := a.Validate(req); err != nil {
		return nil, err
	}

	modelID, body, err := a.encode(req)
	if err != nil {
		return nil, err
	}

	raw, err := a.invoker.Invoke(ctx, modelID, body)
	if err != nil {
		return nil, a.mapError(err)
	}

	var out anthropic.Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, provider.DecodingError(a.ID(), err)
	}

	resp := anthropic.TransformResponse(out)
	resp.Model = modelID
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

	modelID, body, err := a.encode(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	events, err := a.invoker.InvokeStream(ctx, modelID, body)
	if err != nil {
		cancel()
		return nil, a.mapError(err)
	}

	src := &eventSource{ctx: ctx, events: events}
	return stream.Native(ctx, cancel, src, events, anthropic.NewDecoder(a.ID()), stream.Options{
		Provider:    a.ID(),
		Descriptor:  a.Descriptor(),
		Request:     req,
		Model:       modelID,
		IdleTimeout: a.IdleTimeout(),
		MapError:    a.mapError,
	}), nil
}

func (a *Adapter) encode(req domain.UnifiedRequest) (string, []byte, error) {
	modelID := resolveModelID(a.Descriptor().ResolveModel(req.Model))

	wire := anthropic.TransformRequest(req.WithStream(false), a.Descriptor())
	wire.Model = ""
	wire.AnthropicVersion = anthropicVersion

	body, err := json.Marshal(wire)
	if err != nil {
		return "", nil, provider.EncodingError(a.ID(), err)
	}
	return modelID, body, nil
}

// mapError reads the HTTP status out of SDK errors so Bedrock failures land
// in the same categories as every other vendor.
func (a *Adapter) mapError(err error) error {
	var re *awshttp.ResponseError
	if errors.As(err, &re) {
		msg := re.Error()
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) {
			msg = apiErr.ErrorMessage()
		}
		pe := provider.MapHTTPError(a.ID(), re.HTTPStatusCode(), []byte(msg), nil)
		pe.Err = err
		return pe
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		kind := domain.KindServerError
		switch apiErr.ErrorCode() {
		case "ThrottlingException":
			kind = domain.KindRateLimitExceeded
		case "ValidationException":
			kind = domain.KindInvalidRequest
		case "AccessDeniedException":
			kind = domain.KindAuthenticationFailed
		}
		return &domain.ProviderError{Kind: kind, Provider: a.ID(), Message: apiErr.ErrorMessage(), Err: err}
	}

	return provider.MapTransportError(a.ID(), err)
}

// eventSource adapts the SDK event channel to the normalizer.
type eventSource struct {
	ctx    context.Context
	events eventStream
}

func (e *eventSource) Next() (stream.Event, error) {
	for {
		select {
		case ev, ok := <-e.events.Events():
			if !ok {
				if err := e.events.Err(); err != nil {
					return stream.Event{}, err
				}
				return stream.Event{}, io.EOF
			}
			if chunk, isChunk := ev.(*types.ResponseStreamMemberChunk); isChunk {
				return stream.Event{Data: string(chunk.Value.Bytes)}, nil
			}
		case <-e.ctx.Done():
			return stream.Event{}, e.ctx.Err()
		}
	}
}

var modelAliases = map[string]string{
	"claude-3-5-sonnet": "anthropic.claude-3-5-sonnet-20241022-v2:0",
	"claude-3-5-haiku":  "anthropic.claude-3-5-haiku-20241022-v1:0",
	"claude-3-opus":     "anthropic.claude-3-opus-20240229-v1:0",
	"claude-3-haiku":    "anthropic.claude-3-haiku-20240307-v1:0",
}

func resolveModelID(model string) string {
	if mapped, ok := modelAliases[model]; ok {
		return mapped
	}
	return model
}

var _ provider.Adapter = (*Adapter)(nil)
