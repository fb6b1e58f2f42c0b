// Package stream turns vendor output into an ordered, finite sequence of
// UnifiedResponse fragments. A producer goroutine decodes transport bytes (or
// re-slices a complete response) and hands fragments to the consumer over a
// bounded channel.
package stream

import (
	"context"
	"io"
	"iter"
	"sync"

	"github.com/felipepmaragno/chatgw/internal/domain"
)

// BufferSize bounds how far the producer may run ahead of the consumer.
const BufferSize = 16

type result struct {
	resp *domain.UnifiedResponse
	err  error
}

// Emit hands one fragment to the consumer. It returns false once the consumer
// has gone away; the producer must then return promptly.
type Emit func(*domain.UnifiedResponse) bool

// Producer writes fragments through emit. A returned error becomes the
// terminal element of the sequence.
type Producer func(ctx context.Context, emit Emit) error

// Stream is a single-use, non-restartable fragment sequence. Callers must
// either read it until Recv returns an error or call Close.
type Stream struct {
	provider string
	ctx      context.Context
	cancel   context.CancelFunc
	ch       chan result
	closed   chan struct{}
	done     chan struct{}
	once     sync.Once

	// consumer-side state, touched only by the reading goroutine
	terminal bool
	err      error
}

// New starts produce on its own goroutine. The context passed to produce is
// ctx; cancel must cancel it and is called on Close and when produce returns.
func New(ctx context.Context, cancel context.CancelFunc, provider string, produce Producer) *Stream {
	s := &Stream{
		provider: provider,
		ctx:      ctx,
		cancel:   cancel,
		ch:       make(chan result, BufferSize),
		closed:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go s.run(produce)
	return s
}

func (s *Stream) run(produce Producer) {
	defer close(s.done)
	defer close(s.ch)
	defer s.cancel()

	if err := produce(s.ctx, s.emit); err != nil {
		select {
		case s.ch <- result{err: err}:
		case <-s.closed:
		}
	}
}

func (s *Stream) emit(r *domain.UnifiedResponse) bool {
	select {
	case s.ch <- result{resp: r}:
		return true
	case <-s.closed:
		return false
	case <-s.ctx.Done():
		return false
	}
}

// Provider returns the id of the provider producing the stream.
func (s *Stream) Provider() string {
	return s.provider
}

// Recv returns the next fragment. After the terminal fragment it returns
// io.EOF; after an error it keeps returning that error.
func (s *Stream) Recv() (*domain.UnifiedResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.terminal {
		return nil, io.EOF
	}

	select {
	case <-s.closed:
		return nil, io.EOF
	default:
	}

	r, ok := <-s.ch
	if !ok {
		select {
		case <-s.closed:
			return nil, io.EOF
		default:
		}
		if err := s.ctx.Err(); err != nil {
			s.err = domain.ContextError(s.provider, err)
			return nil, s.err
		}
		s.terminal = true
		return nil, io.EOF
	}

	if r.err != nil {
		s.err = r.err
		return nil, r.err
	}
	if r.resp.Terminal() {
		s.terminal = true
	}
	return r.resp, nil
}

// Fragments ranges over the stream. Breaking out of the loop closes it.
func (s *Stream) Fragments() iter.Seq2[*domain.UnifiedResponse, error] {
	return func(yield func(*domain.UnifiedResponse, error) bool) {
		defer s.Close()

		for {
			r, err := s.Recv()
			if err == io.EOF {
				return
			}
			if !yield(r, err) || err != nil {
				return
			}
		}
	}
}

// Close cancels the producer and waits for it to release its connection.
// It is safe to call more than once.
func (s *Stream) Close() error {
	s.once.Do(func() {
		close(s.closed)
		s.cancel()
	})
	<-s.done
	return nil
}

// Collect drains the stream into one response whose content is the
// concatenation of every fragment and whose finish reason and usage come
// from the terminal fragment.
func Collect(s *Stream) (*domain.UnifiedResponse, error) {
	defer s.Close()

	var (
		out     *domain.UnifiedResponse
		content []byte
	)
	for r, err := range s.Fragments() {
		if err != nil {
			return nil, err
		}
		if out == nil {
			cp := *r
			out = &cp
		}
		content = append(content, r.Message.Content...)
		if r.Terminal() {
			out.FinishReason = r.FinishReason
			out.Usage = r.Usage
			out.FunctionCall = r.FunctionCall
			if r.Model != "" {
				out.Model = r.Model
			}
		}
	}
	if out == nil {
		return nil, domain.NewProviderError(domain.KindDecodingError, s.provider, "stream ended without fragments")
	}
	out.Message.Content = string(content)
	return out, nil
}

// Hooks observe a stream without altering it. Fragment runs for each
// fragment before it is forwarded; End runs exactly once, with the terminal
// fragment (or nil) and the terminal error (or nil).
type Hooks struct {
	Fragment func(r *domain.UnifiedResponse)
	End      func(last *domain.UnifiedResponse, err error)
}

// Observe forwards every element of src unchanged while calling hooks.
func Observe(ctx context.Context, src *Stream, hooks Hooks) *Stream {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(ctx, func() { src.Close() })

	end := func(last *domain.UnifiedResponse, err error) {
		if hooks.End != nil {
			hooks.End(last, err)
		}
	}

	return New(ctx, cancel, src.provider, func(ctx context.Context, emit Emit) error {
		defer stop()
		defer src.Close()

		var last *domain.UnifiedResponse
		for {
			r, err := src.Recv()
			if err == io.EOF {
				if last == nil && ctx.Err() != nil {
					err = domain.ContextError(src.provider, ctx.Err())
					end(nil, err)
					return err
				}
				end(last, nil)
				return nil
			}
			if err != nil {
				end(last, err)
				return err
			}
			if r.Terminal() {
				last = r
			}
			if hooks.Fragment != nil {
				hooks.Fragment(r)
			}
			if !emit(r) {
				end(last, domain.ContextError(src.provider, context.Canceled))
				return nil
			}
		}
	})
}
