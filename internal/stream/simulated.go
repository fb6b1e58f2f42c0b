package stream

import (
	"context"
	"time"
	"unicode"

	"github.com/felipepmaragno/chatgw/internal/domain"
)

const (
	DefaultChunkDelay    = 30 * time.Millisecond
	DefaultWordsPerChunk = 1
)

type SimulateOptions struct {
	// Delay separates consecutive fragments. Zero emits them back to back.
	Delay         time.Duration
	WordsPerChunk int
}

// Simulate re-emits a complete response as incremental word fragments for
// vendors without a native streaming mode. The terminal fragment carries the
// response's finish reason, usage and function call.
func Simulate(ctx context.Context, full *domain.UnifiedResponse, opts SimulateOptions) *Stream {
	ctx, cancel := context.WithCancel(ctx)

	return New(ctx, cancel, full.Provider, func(ctx context.Context, emit Emit) error {
		chunks := SplitWords(full.Message.Content, opts.WordsPerChunk)

		var timer *time.Timer
		if opts.Delay > 0 {
			timer = time.NewTimer(opts.Delay)
			defer timer.Stop()
		}

		for i, chunk := range chunks {
			if i > 0 && timer != nil {
				timer.Reset(opts.Delay)
				select {
				case <-timer.C:
				case <-ctx.Done():
					return nil
				}
			}

			frag := fragment(full.ID, full.Model, full.Provider, chunk)
			if !emit(frag) {
				return nil
			}
		}

		final := fragment(full.ID, full.Model, full.Provider, "")
		final.FinishReason = full.FinishReason
		if final.FinishReason == domain.FinishNone {
			final.FinishReason = domain.FinishStop
		}
		final.Usage = full.Usage
		final.FunctionCall = full.FunctionCall
		emit(final)
		return nil
	})
}

// SplitWords slices text into chunks of n words. Whitespace stays attached to
// the preceding word so the chunks concatenate back to text exactly.
func SplitWords(text string, n int) []string {
	if text == "" {
		return nil
	}
	if n < 1 {
		n = DefaultWordsPerChunk
	}

	var (
		chunks []string
		start  int
		words  int
		inWord bool
	)
	for i, r := range text {
		space := unicode.IsSpace(r)
		if !space && !inWord {
			if words == n {
				chunks = append(chunks, text[start:i])
				start = i
				words = 0
			}
			words++
		}
		inWord = !space
	}
	chunks = append(chunks, text[start:])
	return chunks
}
