// Package keystore resolves provider API keys. The registry asks a Store for
// the key of a provider id; where the key lives (environment, memory, AWS
// Secrets Manager, Redis) is the Store's concern.
package keystore

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
)

// ErrNotFound is returned when no key is stored for a provider.
var ErrNotFound = errors.New("api key not found")

type Store interface {
	GetAPIKey(ctx context.Context, providerID string) (string, error)
}

// EnvVar is the variable the Env store reads for a provider:
// "openrouter" reads OPENROUTER_API_KEY.
func EnvVar(providerID string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r - 'a' + 'A'
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, providerID)
	return name + "_API_KEY"
}

type Env struct {
	lookup func(string) (string, bool)
}

func NewEnv() *Env {
	return &Env{lookup: os.LookupEnv}
}

func (e *Env) GetAPIKey(_ context.Context, providerID string) (string, error) {
	value, ok := e.lookup(EnvVar(providerID))
	if !ok || strings.TrimSpace(value) == "" {
		return "", ErrNotFound
	}
	return strings.TrimSpace(value), nil
}

type InMemory struct {
	mu   sync.RWMutex
	keys map[string]string
}

func NewInMemory() *InMemory {
	return &InMemory{keys: make(map[string]string)}
}

func (s *InMemory) GetAPIKey(_ context.Context, providerID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.keys[providerID]
	if !ok || value == "" {
		return "", ErrNotFound
	}
	return value, nil
}

func (s *InMemory) Set(providerID, key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[providerID] = key
}

func (s *InMemory) Delete(providerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.keys, providerID)
}
