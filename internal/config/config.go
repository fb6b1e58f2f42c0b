package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/felipepmaragno/chatgw/internal/descriptor"
)

const (
	KeyStoreEnv   = "env"
	KeyStoreAWS   = "aws"
	KeyStoreRedis = "redis"
)

type Config struct {
	LogLevel        string
	DefaultProvider string
	DescriptorsFile string

	KeyStore      string
	AWSRegion     string
	SecretPrefix  string
	RedisURL      string
	EncryptionKey string

	DatabaseURL  string
	OTLPEndpoint string
	SNSTopicARN  string

	RequestTimeout      time.Duration
	StreamIdleTimeout   time.Duration
	SimulatedChunkDelay time.Duration
	SimulatedChunkWords int
}

// Load reads the environment, after applying a .env file when one exists.
// ENV_FILE names a different file; naming one that is missing is an error.
func Load() (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		DefaultProvider:     getEnv("DEFAULT_PROVIDER", "openai"),
		DescriptorsFile:     getEnv("DESCRIPTORS_FILE", ""),
		KeyStore:            getEnv("KEY_STORE", KeyStoreEnv),
		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		SecretPrefix:        getEnv("SECRET_PREFIX", "chatgw/"),
		RedisURL:            getEnv("REDIS_URL", ""),
		EncryptionKey:       getEnv("ENCRYPTION_KEY", ""),
		DatabaseURL:         getEnv("DATABASE_URL", ""),
		OTLPEndpoint:        getEnv("OTLP_ENDPOINT", ""),
		SNSTopicARN:         getEnv("SNS_TOPIC_ARN", ""),
		RequestTimeout:      getDurationEnv("REQUEST_TIMEOUT", 60*time.Second),
		StreamIdleTimeout:   getDurationEnv("STREAM_IDLE_TIMEOUT", 30*time.Second),
		SimulatedChunkDelay: time.Duration(getIntEnv("SIMULATED_CHUNK_DELAY_MS", 30)) * time.Millisecond,
		SimulatedChunkWords: getIntEnv("SIMULATED_CHUNK_WORDS", 1),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.KeyStore {
	case KeyStoreEnv, KeyStoreAWS:
	case KeyStoreRedis:
		if c.RedisURL == "" {
			return errors.New("KEY_STORE=redis requires REDIS_URL")
		}
		if c.EncryptionKey == "" {
			return errors.New("KEY_STORE=redis requires ENCRYPTION_KEY")
		}
	default:
		return fmt.Errorf("unknown KEY_STORE %q", c.KeyStore)
	}

	if c.SimulatedChunkWords < 1 {
		return fmt.Errorf("SIMULATED_CHUNK_WORDS must be at least 1, got %d", c.SimulatedChunkWords)
	}
	if c.SimulatedChunkDelay < 0 {
		return fmt.Errorf("SIMULATED_CHUNK_DELAY_MS must not be negative")
	}
	return nil
}

// Descriptors returns the built-in catalog with DescriptorsFile applied.
func (c *Config) Descriptors() (*descriptor.Set, error) {
	all := descriptor.Builtin()

	if c.DescriptorsFile != "" {
		file, err := descriptor.LoadFile(c.DescriptorsFile)
		if err != nil {
			return nil, err
		}
		all, err = descriptor.Merge(all, file)
		if err != nil {
			return nil, err
		}
	}

	return descriptor.NewSet(all)
}

func loadDotEnv() error {
	path := os.Getenv("ENV_FILE")
	explicit := path != ""
	if !explicit {
		path = ".env"
	}

	if err := godotenv.Load(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
