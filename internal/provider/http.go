package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/felipepmaragno/chatgw/internal/cost"
	"github.com/felipepmaragno/chatgw/internal/descriptor"
	"github.com/felipepmaragno/chatgw/internal/domain"
	"github.com/felipepmaragno/chatgw/internal/stream"
)

const maxErrorBody = 64 * 1024

// Call is one JSON POST against the adapter's base URL.
type Call struct {
	Path   string
	Body   any
	Query  url.Values
	Stream bool
}

// Do performs call with the descriptor's authentication, static headers and
// static query parameters applied. Non-2xx responses are read, closed and
// mapped; on success the caller owns resp.Body.
func (b *Base) Do(ctx context.Context, call Call) (*http.Response, error) {
	d := b.desc

	if d.RequiresKey && b.apiKey == "" {
		return nil, domain.NewProviderError(domain.KindMissingAPIKey, d.ID, "no API key configured")
	}

	payload, err := json.Marshal(call.Body)
	if err != nil {
		return nil, EncodingError(d.ID, err)
	}

	endpoint, err := b.endpoint(call)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, &domain.ProviderError{Kind: domain.KindInvalidURL, Provider: d.ID, Message: endpoint, Err: err}
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if call.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	for k, v := range d.Headers {
		httpReq.Header.Set(k, v)
	}
	if d.Auth.Scheme == descriptor.AuthHeader && b.apiKey != "" {
		httpReq.Header.Set(d.Auth.Header, d.Auth.Value(b.apiKey))
	}

	resp, err := b.client.Do(httpReq)
	if err != nil {
		return nil, MapTransportError(d.ID, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, MapHTTPError(d.ID, resp.StatusCode, body, b.override)
	}

	return resp, nil
}

func (b *Base) endpoint(call Call) (string, error) {
	d := b.desc
	raw := d.Endpoint(call.Path)

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", &domain.ProviderError{Kind: domain.KindInvalidURL, Provider: d.ID, Message: raw, Err: err}
	}

	q := u.Query()
	for k, v := range d.Query {
		q.Set(k, v)
	}
	for k, vs := range call.Query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	if d.Auth.Scheme == descriptor.AuthQuery && b.apiKey != "" {
		q.Set(d.Auth.Param, b.apiKey)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// DoJSON performs call and decodes a successful body into out.
func (b *Base) DoJSON(ctx context.Context, call Call, out any) error {
	resp, err := b.Do(ctx, call)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return domain.ContextError(b.desc.ID, ctxErr)
		}
		return DecodingError(b.desc.ID, err)
	}
	return nil
}

// StreamOptions configures OpenStream.
type StreamOptions struct {
	Request  domain.UnifiedRequest
	Model    string
	Decoder  stream.Decoder
	Finalize func(*domain.UnifiedResponse)
}

// OpenStream performs a streaming call and hands its body to the native
// normalizer. The request context is owned by the returned stream.
func (b *Base) OpenStream(ctx context.Context, call Call, opts StreamOptions) (*stream.Stream, error) {
	ctx, cancel := context.WithCancel(ctx)

	call.Stream = true
	resp, err := b.Do(ctx, call)
	if err != nil {
		cancel()
		return nil, err
	}

	return stream.Native(ctx, cancel, stream.NewSSEReader(resp.Body), resp.Body, opts.Decoder, stream.Options{
		Provider:    b.desc.ID,
		Descriptor:  b.desc,
		Request:     opts.Request,
		Model:       opts.Model,
		IdleTimeout: b.idleTimeout,
		MapError:    b.MapTransportError,
		Finalize:    opts.Finalize,
	}), nil
}

// Finalize completes a single-shot response: identity, finish reason,
// usage (heuristic when the vendor sent none) and cost.
func (b *Base) Finalize(resp *domain.UnifiedResponse, req domain.UnifiedRequest) *domain.UnifiedResponse {
	if resp.ID == "" {
		resp.ID = uuid.NewString()
	}
	resp.Provider = b.desc.ID
	if resp.Timestamp.IsZero() {
		resp.Timestamp = time.Now()
	}
	if resp.Message.Role == "" {
		resp.Message.Role = domain.RoleAssistant
	}
	if resp.FinishReason == domain.FinishNone {
		if resp.FunctionCall != nil {
			resp.FinishReason = domain.FinishFunctionCall
		} else {
			resp.FinishReason = domain.FinishStop
		}
	}

	if resp.Usage == nil {
		resp.Usage = cost.HeuristicUsage(req, resp.Message.Content)
	} else if resp.Usage.TotalTokens == 0 {
		resp.Usage.TotalTokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens
	}
	cost.Annotate(resp.Usage, resp.Model, b.desc)

	return resp
}
