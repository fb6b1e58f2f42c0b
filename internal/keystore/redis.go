package keystore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/felipepmaragno/chatgw/internal/crypto"
)

const redisKeyPrefix = "chatgw:apikey:"

// Redis keeps provider keys sealed with an Encryptor; plaintext keys never
// reach the server.
type Redis struct {
	client *redis.Client
	enc    *crypto.Encryptor
}

func NewRedis(redisURL string, enc *crypto.Encryptor) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return NewRedisWithClient(client, enc), nil
}

func NewRedisWithClient(client *redis.Client, enc *crypto.Encryptor) *Redis {
	return &Redis{client: client, enc: enc}
}

func (r *Redis) GetAPIKey(ctx context.Context, providerID string) (string, error) {
	sealed, err := r.client.Get(ctx, redisKeyPrefix+providerID).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get key for %s: %w", providerID, err)
	}

	key, err := r.enc.Decrypt(sealed)
	if err != nil {
		return "", fmt.Errorf("decrypt key for %s: %w", providerID, err)
	}
	return key, nil
}

func (r *Redis) Put(ctx context.Context, providerID, key string) error {
	sealed, err := r.enc.Encrypt(key)
	if err != nil {
		return fmt.Errorf("encrypt key for %s: %w", providerID, err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+providerID, sealed, 0).Err(); err != nil {
		return fmt.Errorf("store key for %s: %w", providerID, err)
	}

	slog.Info("provider key stored",
		"provider", providerID,
		"fingerprint", crypto.Fingerprint(key),
	)
	return nil
}

func (r *Redis) Delete(ctx context.Context, providerID string) error {
	return r.client.Del(ctx, redisKeyPrefix+providerID).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
