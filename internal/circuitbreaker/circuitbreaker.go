// Package circuitbreaker fails calls fast while a provider is failing on its
// side.
//
// States:
//   - Closed: calls pass through
//   - Open: calls fail with ErrOpen until the cooldown elapses
//   - Half-Open: calls pass; enough successes close the circuit, one
//     failure reopens it
package circuitbreaker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/felipepmaragno/chatgw/internal/domain"
)

var ErrOpen = errors.New("circuit breaker open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

type Config struct {
	FailureThreshold int
	SuccessThreshold int
	Cooldown         time.Duration
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
	}
}

// Trips reports whether err counts against the provider. Only failures on
// the vendor's side do; rejected requests and caller cancellation do not.
func Trips(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	switch domain.KindOf(err) {
	case domain.KindServerError, domain.KindNetworkError, domain.KindTimeout:
		return true
	}
	return false
}

type Breaker struct {
	mu          sync.Mutex
	provider    string
	state       State
	failures    int
	successes   int
	lastFailure time.Time
	config      Config
	now         func() time.Time
}

func New(provider string, cfg Config) *Breaker {
	return &Breaker{
		provider: provider,
		state:    StateClosed,
		config:   cfg,
		now:      time.Now,
	}
}

// Allow returns ErrOpen while the circuit is open and the cooldown has not
// elapsed. The first call after the cooldown moves it to half-open.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}
	if b.now().Sub(b.lastFailure) < b.config.Cooldown {
		return ErrOpen
	}
	b.state = StateHalfOpen
	b.successes = 0
	slog.Info("circuit half-open", "provider", b.provider)
	return nil
}

// Record feeds the outcome of a call. Errors that do not trip are ignored.
func (b *Breaker) Record(err error) {
	switch {
	case err == nil:
		b.recordSuccess()
	case Trips(err):
		b.recordFailure()
	}
}

func (b *Breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.state = StateClosed
			b.failures = 0
			b.successes = 0
			slog.Info("circuit closed", "provider", b.provider)
		}
	}
}

func (b *Breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = b.now()

	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.config.FailureThreshold {
			b.state = StateOpen
			slog.Warn("circuit opened", "provider", b.provider, "failures", b.failures)
		}
	case StateHalfOpen:
		b.state = StateOpen
		b.successes = 0
		slog.Warn("circuit reopened", "provider", b.provider)
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Set holds one breaker per provider, created on first use.
type Set struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	config   Config
}

func NewSet(cfg Config) *Set {
	return &Set{
		breakers: make(map[string]*Breaker),
		config:   cfg,
	}
}

func (s *Set) Get(provider string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.breakers[provider]
	if !ok {
		b = New(provider, s.config)
		s.breakers[provider] = b
	}
	return b
}

func (s *Set) States() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	states := make(map[string]string, len(s.breakers))
	for id, b := range s.breakers {
		states[id] = b.State().String()
	}
	return states
}
