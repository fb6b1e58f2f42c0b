package keystore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/felipepmaragno/chatgw/internal/httputil"
)

const DefaultCacheTTL = 5 * time.Minute

type secretsAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// SecretsManager reads one secret per provider, named prefix+providerID, and
// caches values for a TTL.
type SecretsManager struct {
	client secretsAPI
	prefix string
	cache  map[string]*cachedSecret
	mu     sync.RWMutex
	ttl    time.Duration
	now    func() time.Time
}

type cachedSecret struct {
	value     string
	expiresAt time.Time
}

func NewSecretsManager(ctx context.Context, region, prefix string) (*SecretsManager, error) {
	cfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(region),
		config.WithHTTPClient(httputil.DefaultClient()),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewSecretsManagerWithConfig(cfg, prefix), nil
}

func NewSecretsManagerWithConfig(cfg aws.Config, prefix string) *SecretsManager {
	return newSecretsManager(secretsmanager.NewFromConfig(cfg), prefix)
}

func newSecretsManager(client secretsAPI, prefix string) *SecretsManager {
	return &SecretsManager{
		client: client,
		prefix: prefix,
		cache:  make(map[string]*cachedSecret),
		ttl:    DefaultCacheTTL,
		now:    time.Now,
	}
}

func (s *SecretsManager) GetAPIKey(ctx context.Context, providerID string) (string, error) {
	name := s.prefix + providerID

	s.mu.RLock()
	if cached, ok := s.cache[name]; ok && s.now().Before(cached.expiresAt) {
		s.mu.RUnlock()
		return cached.value, nil
	}
	s.mu.RUnlock()

	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		var notFound *types.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("get secret %s: %w", name, err)
	}

	value := aws.ToString(result.SecretString)
	if value == "" {
		return "", ErrNotFound
	}

	s.mu.Lock()
	s.cache[name] = &cachedSecret{
		value:     value,
		expiresAt: s.now().Add(s.ttl),
	}
	s.mu.Unlock()

	return value, nil
}

func (s *SecretsManager) SetCacheTTL(ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ttl = ttl
}

func (s *SecretsManager) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*cachedSecret)
}
