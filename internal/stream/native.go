package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/felipepmaragno/chatgw/internal/cost"
	"github.com/felipepmaragno/chatgw/internal/descriptor"
	"github.com/felipepmaragno/chatgw/internal/domain"
)

// Frame is the family-neutral reading of one vendor event.
type Frame struct {
	ID      string
	Model   string
	Content string
	// Emit forces a fragment even when Content is empty.
	Emit         bool
	FinishReason domain.FinishReason
	Usage        *domain.TokenUsage
	// FunctionCall carries a partial call: a name and/or an arguments delta.
	FunctionCall *domain.FunctionCall
	// Done marks the vendor's explicit end of stream.
	Done bool
}

// Decoder reads one vendor event. A *domain.ProviderError ends the stream;
// any other error marks the frame as malformed and it is skipped.
type Decoder interface {
	Decode(ev Event) (Frame, error)
}

type DecoderFunc func(ev Event) (Frame, error)

func (f DecoderFunc) Decode(ev Event) (Frame, error) { return f(ev) }

type Options struct {
	Provider   string
	Descriptor *descriptor.Descriptor
	// Request feeds heuristic usage when the vendor reports none.
	Request domain.UnifiedRequest
	Model   string
	// IdleTimeout bounds the silence between two events; zero disables it.
	IdleTimeout time.Duration
	// MapError converts a transport read failure into the taxonomy.
	MapError func(error) error
	// Finalize adjusts the terminal fragment before it is emitted.
	Finalize func(*domain.UnifiedResponse)
}

// Native forwards decoded vendor events as soon as each is complete and
// finishes with one terminal fragment carrying the finish reason and usage.
// body is closed when the producer exits or the context is cancelled.
func Native(ctx context.Context, cancel context.CancelFunc, src EventSource, body io.Closer, dec Decoder, opts Options) *Stream {
	return New(ctx, cancel, opts.Provider, func(ctx context.Context, emit Emit) error {
		return pump(ctx, cancel, src, body, dec, opts, emit)
	})
}

func pump(ctx context.Context, cancel context.CancelFunc, src EventSource, body io.Closer, dec Decoder, opts Options, emit Emit) error {
	release := context.AfterFunc(ctx, func() { body.Close() })
	defer release()
	defer body.Close()

	var idle atomic.Bool
	var watchdog *time.Timer
	if opts.IdleTimeout > 0 {
		watchdog = time.AfterFunc(opts.IdleTimeout, func() {
			idle.Store(true)
			cancel()
		})
		defer watchdog.Stop()
	}

	var (
		id      string
		model   = opts.Model
		content strings.Builder
		finish  domain.FinishReason
		usage   *domain.TokenUsage
		call    *domain.FunctionCall
	)

	for {
		ev, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if idle.Load() {
				return idleTimeout(opts)
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return domain.ContextError(opts.Provider, ctxErr)
			}
			return opts.mapError(err)
		}
		if watchdog != nil {
			watchdog.Reset(opts.IdleTimeout)
		}

		if strings.TrimSpace(ev.Data) == DoneSentinel {
			break
		}

		frame, err := dec.Decode(ev)
		if err != nil {
			var pe *domain.ProviderError
			if errors.As(err, &pe) {
				return err
			}
			slog.Debug("skipping malformed stream frame",
				"provider", opts.Provider,
				"event", ev.Name,
				"error", err,
			)
			continue
		}

		if frame.ID != "" && id == "" {
			id = frame.ID
		}
		if frame.Model != "" {
			model = frame.Model
		}
		if frame.Usage != nil {
			usage = mergeUsage(usage, frame.Usage)
		}
		if frame.FinishReason != domain.FinishNone {
			finish = frame.FinishReason
		}
		if fc := frame.FunctionCall; fc != nil {
			if call == nil {
				call = &domain.FunctionCall{}
			}
			if fc.Name != "" {
				call.Name = fc.Name
			}
			call.Arguments += fc.Arguments
		}

		if frame.Content != "" || frame.Emit {
			if id == "" {
				id = uuid.NewString()
			}
			content.WriteString(frame.Content)
			// A slow consumer is not vendor silence.
			if watchdog != nil {
				watchdog.Stop()
			}
			if !emit(fragment(id, model, opts.Provider, frame.Content)) {
				if idle.Load() {
					return idleTimeout(opts)
				}
				return nil
			}
			if watchdog != nil {
				watchdog.Reset(opts.IdleTimeout)
			}
		}

		if frame.Done {
			break
		}
	}
	if watchdog != nil {
		watchdog.Stop()
	}

	if idle.Load() {
		return idleTimeout(opts)
	}
	if err := ctx.Err(); err != nil {
		return domain.ContextError(opts.Provider, err)
	}

	if id == "" {
		id = uuid.NewString()
	}
	final := fragment(id, model, opts.Provider, "")
	if call != nil && call.Name != "" {
		final.FunctionCall = call
		if finish == domain.FinishNone {
			finish = domain.FinishFunctionCall
		}
	}
	if finish == domain.FinishNone {
		finish = domain.FinishStop
	}
	final.FinishReason = finish

	if usage == nil {
		usage = cost.HeuristicUsage(opts.Request, content.String())
	}
	cost.Annotate(usage, model, opts.Descriptor)
	final.Usage = usage

	if opts.Finalize != nil {
		opts.Finalize(final)
	}

	emit(final)
	return nil
}

func fragment(id, model, provider, content string) *domain.UnifiedResponse {
	return &domain.UnifiedResponse{
		ID:        id,
		Message:   domain.AssistantMessage(content),
		Model:     model,
		Provider:  provider,
		Timestamp: time.Now(),
	}
}

// mergeUsage combines partial usage reports; some vendors send prompt and
// completion counts in separate events.
func mergeUsage(acc, u *domain.TokenUsage) *domain.TokenUsage {
	if acc == nil {
		acc = &domain.TokenUsage{}
	}
	if u.PromptTokens > 0 {
		acc.PromptTokens = u.PromptTokens
	}
	if u.CompletionTokens > 0 {
		acc.CompletionTokens = u.CompletionTokens
	}
	acc.TotalTokens = max(u.TotalTokens, acc.PromptTokens+acc.CompletionTokens)
	return acc
}

func idleTimeout(opts Options) error {
	return &domain.ProviderError{
		Kind:     domain.KindTimeout,
		Provider: opts.Provider,
		Message:  "no data received for " + opts.IdleTimeout.String(),
	}
}

func (o Options) mapError(err error) error {
	if o.MapError != nil {
		return o.MapError(err)
	}
	return &domain.ProviderError{
		Kind:     domain.KindNetworkError,
		Provider: o.Provider,
		Message:  err.Error(),
		Err:      err,
	}
}
