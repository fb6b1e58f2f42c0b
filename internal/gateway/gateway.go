// Package gateway is the caller-facing entry point: it resolves a provider,
// builds its adapter and runs single-shot or streaming calls, recording
// metrics, traces, the usage ledger and operator notifications on the way.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/felipepmaragno/chatgw/internal/circuitbreaker"
	"github.com/felipepmaragno/chatgw/internal/cost"
	"github.com/felipepmaragno/chatgw/internal/descriptor"
	"github.com/felipepmaragno/chatgw/internal/domain"
	"github.com/felipepmaragno/chatgw/internal/metrics"
	"github.com/felipepmaragno/chatgw/internal/notifications"
	"github.com/felipepmaragno/chatgw/internal/provider"
	"github.com/felipepmaragno/chatgw/internal/stream"
	"github.com/felipepmaragno/chatgw/internal/telemetry"
)

const notifyTimeout = 5 * time.Second

// AdapterFactory is the part of the registry the gateway depends on.
type AdapterFactory interface {
	CreateAdapter(ctx context.Context, id string) (provider.Adapter, error)
	Descriptor(id string) (*descriptor.Descriptor, error)
	Available(ctx context.Context) ([]string, error)
	IDs() []string
}

type Config struct {
	Adapters        AdapterFactory
	DefaultProvider string
	// RequestTimeout bounds single-shot calls. Streams are bounded by the
	// idle watchdog instead.
	RequestTimeout time.Duration
	Tracker        cost.Tracker
	Notifier       notifications.Notifier
	// Breakers is optional; nil disables failing fast.
	Breakers *circuitbreaker.Set
}

type Gateway struct {
	adapters        AdapterFactory
	defaultProvider string
	requestTimeout  time.Duration
	tracker         cost.Tracker
	notifier        notifications.Notifier
	breakers        *circuitbreaker.Set
}

func New(cfg Config) *Gateway {
	return &Gateway{
		adapters:        cfg.Adapters,
		defaultProvider: cfg.DefaultProvider,
		requestTimeout:  cfg.RequestTimeout,
		tracker:         cfg.Tracker,
		notifier:        cfg.Notifier,
		breakers:        cfg.Breakers,
	}
}

func (g *Gateway) providerID(id string) string {
	if id == "" {
		return g.defaultProvider
	}
	return id
}

// admit consults the provider's breaker. The returned record func must be
// called with the call's outcome.
func (g *Gateway) admit(id string) (func(error), error) {
	if g.breakers == nil {
		return func(error) {}, nil
	}
	b := g.breakers.Get(id)
	if err := b.Allow(); err != nil {
		return nil, &domain.ProviderError{
			Kind:     domain.KindServerError,
			Provider: id,
			Message:  "provider is failing, retry later",
			Err:      err,
		}
	}
	return b.Record, nil
}

// Send performs a single-shot call against providerID, or the default
// provider when providerID is empty.
func (g *Gateway) Send(ctx context.Context, providerID string, req domain.UnifiedRequest) (*domain.UnifiedResponse, error) {
	id := g.providerID(providerID)
	start := time.Now()

	ctx, span := telemetry.StartSpan(ctx, "chatgw.send")
	defer span.End()

	if g.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.requestTimeout)
		defer cancel()
	}

	adapter, err := g.adapters.CreateAdapter(ctx, id)
	if err != nil {
		g.finish(ctx, call{span: span, provider: id, model: req.Model, mode: metrics.ModeSend, start: start}, nil, err)
		return nil, err
	}

	record, err := g.admit(id)
	if err != nil {
		g.finish(ctx, call{span: span, provider: id, model: req.Model, mode: metrics.ModeSend, start: start}, nil, err)
		return nil, err
	}

	c := call{
		span:     span,
		provider: id,
		model:    adapter.Descriptor().ResolveModel(req.Model),
		mode:     metrics.ModeSend,
		start:    start,
	}
	telemetry.AddRequestAttributes(span, id, c.model, req)

	resp, err := adapter.Send(ctx, req.WithStream(false))
	record(err)
	g.finish(ctx, c, resp, err)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// Stream opens a streaming call. Errors raised before the first fragment,
// including validation and HTTP failures, are returned here; later ones are
// the terminal element of the stream.
func (g *Gateway) Stream(ctx context.Context, providerID string, req domain.UnifiedRequest) (*stream.Stream, error) {
	id := g.providerID(providerID)
	start := time.Now()

	spanCtx, span := telemetry.StartSpan(ctx, "chatgw.stream")

	adapter, err := g.adapters.CreateAdapter(spanCtx, id)
	if err == nil {
		var record func(error)
		if record, err = g.admit(id); err == nil {
			return g.stream(spanCtx, span, adapter, record, req, start)
		}
	}
	g.finish(spanCtx, call{span: span, provider: id, model: req.Model, mode: metrics.ModeStream, start: start}, nil, err)
	span.End()
	return nil, err
}

func (g *Gateway) stream(spanCtx context.Context, span trace.Span, adapter provider.Adapter, record func(error), req domain.UnifiedRequest, start time.Time) (*stream.Stream, error) {
	id := adapter.ID()

	c := call{
		span:     span,
		provider: id,
		model:    adapter.Descriptor().ResolveModel(req.Model),
		mode:     metrics.ModeStream,
		start:    start,
	}
	telemetry.AddRequestAttributes(span, id, c.model, req)

	src, err := adapter.SendStreaming(spanCtx, req.WithStream(true))
	if err != nil {
		record(err)
		g.finish(spanCtx, c, nil, err)
		span.End()
		return nil, err
	}

	metrics.IncrementActiveStreams(id)

	var first sync.Once
	return stream.Observe(spanCtx, src, stream.Hooks{
		Fragment: func(*domain.UnifiedResponse) {
			first.Do(func() {
				metrics.RecordFirstFragment(id, time.Since(start).Seconds())
			})
			metrics.RecordFragment(id)
		},
		End: func(last *domain.UnifiedResponse, err error) {
			defer span.End()
			metrics.DecrementActiveStreams(id)
			record(err)
			g.finish(context.WithoutCancel(spanCtx), c, last, err)
		},
	}), nil
}

// Models lists the catalog of providerID, or of every registered provider
// when providerID is empty. Listing needs no credentials.
func (g *Gateway) Models(providerID string) ([]domain.Model, error) {
	ids := g.adapters.IDs()
	if providerID != "" {
		ids = []string{providerID}
	}

	var out []domain.Model
	for _, id := range ids {
		d, err := g.adapters.Descriptor(id)
		if err != nil {
			return nil, err
		}
		for _, m := range d.Models {
			out = append(out, domain.Model{ID: m, Provider: id})
		}
	}
	return out, nil
}

// Providers lists the providers whose adapters can be created right now.
func (g *Gateway) Providers(ctx context.Context) ([]string, error) {
	return g.adapters.Available(ctx)
}

type call struct {
	span     trace.Span
	provider string
	model    string
	mode     string
	start    time.Time
}

// finish records the outcome of one call. resp is the complete response for
// Send and the terminal fragment (possibly nil) for Stream.
func (g *Gateway) finish(ctx context.Context, c call, resp *domain.UnifiedResponse, err error) {
	elapsed := time.Since(c.start)
	if resp != nil && resp.Model != "" {
		c.model = resp.Model
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordRequest(c.provider, c.model, c.mode, status, elapsed.Seconds())

	rec := cost.UsageRecord{
		RequestID: uuid.NewString(),
		Provider:  c.provider,
		Model:     c.model,
		Streamed:  c.mode == metrics.ModeStream,
		Status:    status,
		LatencyMs: elapsed.Milliseconds(),
		Timestamp: time.Now(),
	}

	if err != nil {
		metrics.RecordProviderError(c.provider, domain.KindOf(err).String())
		telemetry.AddErrorAttribute(c.span, err)
		slog.Warn("request failed",
			"provider", c.provider,
			"model", c.model,
			"mode", c.mode,
			"error_kind", domain.KindOf(err).String(),
			"error", err,
			"trace_id", telemetry.GetTraceID(ctx),
		)
		g.notify(ctx, c.provider, err)
	} else if resp != nil {
		if resp.ID != "" {
			rec.RequestID = resp.ID
		}
		if u := resp.Usage; u != nil {
			metrics.RecordTokens(c.provider, c.model, u.PromptTokens, u.CompletionTokens, u.Estimated)
			if u.EstimatedCost != nil {
				metrics.RecordCost(c.provider, c.model, *u.EstimatedCost)
			}
			rec.InputTokens = u.PromptTokens
			rec.OutputTokens = u.CompletionTokens
			rec.CostUSD = u.EstimatedCost
			rec.Estimated = u.Estimated
		}
		telemetry.AddResponseAttributes(c.span, resp)
		slog.Info("request completed",
			"provider", c.provider,
			"model", c.model,
			"mode", c.mode,
			"finish_reason", resp.FinishReason,
			"latency_ms", rec.LatencyMs,
			"trace_id", telemetry.GetTraceID(ctx),
		)
	}

	if g.tracker == nil {
		return
	}
	if err := g.tracker.Record(context.WithoutCancel(ctx), rec); err != nil {
		slog.Error("failed to record usage", "provider", c.provider, "error", err)
	}
}

func (g *Gateway) notify(ctx context.Context, providerID string, err error) {
	if g.notifier == nil || errors.Is(err, circuitbreaker.ErrOpen) {
		return
	}
	n, ok := notifications.FromError(providerID, err)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := g.notifier.Send(ctx, n); err != nil {
		slog.Error("failed to send notification", "type", n.Type, "provider", providerID, "error", err)
	}
}
