package stream

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/felipepmaragno/chatgw/internal/domain"
)

func fullResponse(content string) *domain.UnifiedResponse {
	return &domain.UnifiedResponse{
		ID:           "resp-1",
		Message:      domain.AssistantMessage(content),
		FinishReason: domain.FinishLength,
		Usage:        domain.NewTokenUsage(4, 6),
		Model:        "m",
		Provider:     "huggingface",
		Timestamp:    time.Now(),
	}
}

func TestSplitWords(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		n        int
		expected []string
	}{
		{"empty", "", 1, nil},
		{"single word", "hello", 1, []string{"hello"}},
		{"one per chunk", "hello big world", 1, []string{"hello ", "big ", "world"}},
		{"two per chunk", "a b c d e", 2, []string{"a b ", "c d ", "e"}},
		{"leading space kept", "  hi there", 1, []string{"  hi ", "there"}},
		{"newlines kept", "one\n\ntwo", 1, []string{"one\n\n", "two"}},
		{"zero defaults to one", "x y", 0, []string{"x ", "y"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SplitWords(tt.text, tt.n)
			if len(got) != len(tt.expected) {
				t.Fatalf("SplitWords(%q, %d) = %q, want %q", tt.text, tt.n, got, tt.expected)
			}
			for i := range got {
				if got[i] != tt.expected[i] {
					t.Errorf("chunk %d = %q, want %q", i, got[i], tt.expected[i])
				}
			}
			if strings.Join(got, "") != tt.text {
				t.Error("chunks must concatenate back to the input")
			}
		})
	}
}

func TestSimulate_ConcatenationMatchesFullResponse(t *testing.T) {
	full := fullResponse("The quick brown fox jumps over the lazy dog.")

	frags, err := drain(t, Simulate(context.Background(), full, SimulateOptions{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var b strings.Builder
	for _, f := range frags[:len(frags)-1] {
		if f.Terminal() {
			t.Fatal("only the last fragment may be terminal")
		}
		b.WriteString(f.Content())
	}
	if b.String() != full.Content() {
		t.Errorf("concatenation = %q, want %q", b.String(), full.Content())
	}

	last := frags[len(frags)-1]
	if last.FinishReason != domain.FinishLength {
		t.Errorf("FinishReason = %q, want length", last.FinishReason)
	}
	if last.Usage == nil || last.Usage.TotalTokens != 10 {
		t.Errorf("terminal usage = %+v", last.Usage)
	}
	if len(frags) != 9+1 {
		t.Errorf("expected 9 word fragments plus terminal, got %d", len(frags))
	}
}

func TestSimulate_WallClockBound(t *testing.T) {
	full := fullResponse("one two three four five")
	delay := 10 * time.Millisecond
	chunks := len(SplitWords(full.Content(), 1))

	start := time.Now()
	if _, err := drain(t, Simulate(context.Background(), full, SimulateOptions{Delay: delay})); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	elapsed := time.Since(start)

	if elapsed < time.Duration(chunks-1)*delay {
		t.Errorf("elapsed %v shorter than the configured pacing", elapsed)
	}
	if elapsed > time.Duration(chunks)*delay+200*time.Millisecond {
		t.Errorf("elapsed %v exceeds chunk count times delay", elapsed)
	}
}

func TestSimulate_CancelStopsImmediately(t *testing.T) {
	full := fullResponse("slow words that never finish")
	s := Simulate(context.Background(), full, SimulateOptions{Delay: time.Hour})

	if _, err := s.Recv(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	start := time.Now()
	s.Close()
	if time.Since(start) > time.Second {
		t.Error("Close should not wait for the pacing delay")
	}
}

func TestSimulate_EmptyContent(t *testing.T) {
	full := fullResponse("")
	full.FinishReason = domain.FinishNone

	frags, err := drain(t, Simulate(context.Background(), full, SimulateOptions{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(frags) != 1 || frags[0].FinishReason != domain.FinishStop {
		t.Errorf("expected a single stop fragment, got %+v", frags)
	}
}
