package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

var allVars = []string{
	"ENV_FILE", "LOG_LEVEL", "DEFAULT_PROVIDER", "DESCRIPTORS_FILE",
	"KEY_STORE", "AWS_REGION", "SECRET_PREFIX", "REDIS_URL", "ENCRYPTION_KEY",
	"DATABASE_URL", "OTLP_ENDPOINT", "SNS_TOPIC_ARN",
	"REQUEST_TIMEOUT", "STREAM_IDLE_TIMEOUT",
	"SIMULATED_CHUNK_DELAY_MS", "SIMULATED_CHUNK_WORDS",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, v := range allVars {
		t.Setenv(v, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		name     string
		got      string
		expected string
	}{
		{"LogLevel", cfg.LogLevel, "info"},
		{"DefaultProvider", cfg.DefaultProvider, "openai"},
		{"DescriptorsFile", cfg.DescriptorsFile, ""},
		{"KeyStore", cfg.KeyStore, KeyStoreEnv},
		{"AWSRegion", cfg.AWSRegion, "us-east-1"},
		{"SecretPrefix", cfg.SecretPrefix, "chatgw/"},
		{"RedisURL", cfg.RedisURL, ""},
		{"DatabaseURL", cfg.DatabaseURL, ""},
		{"OTLPEndpoint", cfg.OTLPEndpoint, ""},
		{"SNSTopicARN", cfg.SNSTopicARN, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("%s = %q, want %q", tt.name, tt.got, tt.expected)
			}
		})
	}

	if cfg.RequestTimeout != 60*time.Second {
		t.Errorf("RequestTimeout = %v, want 60s", cfg.RequestTimeout)
	}
	if cfg.StreamIdleTimeout != 30*time.Second {
		t.Errorf("StreamIdleTimeout = %v, want 30s", cfg.StreamIdleTimeout)
	}
	if cfg.SimulatedChunkDelay != 30*time.Millisecond {
		t.Errorf("SimulatedChunkDelay = %v, want 30ms", cfg.SimulatedChunkDelay)
	}
	if cfg.SimulatedChunkWords != 1 {
		t.Errorf("SimulatedChunkWords = %d, want 1", cfg.SimulatedChunkWords)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DEFAULT_PROVIDER", "anthropic")
	t.Setenv("KEY_STORE", "redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379")
	t.Setenv("ENCRYPTION_KEY", "my-secret-key")
	t.Setenv("DATABASE_URL", "postgres://localhost/test")
	t.Setenv("OTLP_ENDPOINT", "jaeger:4317")
	t.Setenv("SNS_TOPIC_ARN", "arn:aws:sns:us-east-1:123:chatgw")
	t.Setenv("REQUEST_TIMEOUT", "15")
	t.Setenv("STREAM_IDLE_TIMEOUT", "1500ms")
	t.Setenv("SIMULATED_CHUNK_DELAY_MS", "0")
	t.Setenv("SIMULATED_CHUNK_WORDS", "3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
	if cfg.DefaultProvider != "anthropic" {
		t.Errorf("DefaultProvider = %q, want anthropic", cfg.DefaultProvider)
	}
	if cfg.KeyStore != KeyStoreRedis {
		t.Errorf("KeyStore = %q, want redis", cfg.KeyStore)
	}
	if cfg.SNSTopicARN != "arn:aws:sns:us-east-1:123:chatgw" {
		t.Errorf("SNSTopicARN = %q", cfg.SNSTopicARN)
	}
	if cfg.RequestTimeout != 15*time.Second {
		t.Errorf("RequestTimeout = %v, want 15s", cfg.RequestTimeout)
	}
	if cfg.StreamIdleTimeout != 1500*time.Millisecond {
		t.Errorf("StreamIdleTimeout = %v, want 1.5s", cfg.StreamIdleTimeout)
	}
	if cfg.SimulatedChunkDelay != 0 {
		t.Errorf("SimulatedChunkDelay = %v, want 0", cfg.SimulatedChunkDelay)
	}
	if cfg.SimulatedChunkWords != 3 {
		t.Errorf("SimulatedChunkWords = %d, want 3", cfg.SimulatedChunkWords)
	}
}

func TestLoad_InvalidDurationUsesDefault(t *testing.T) {
	clearEnv(t)
	t.Setenv("REQUEST_TIMEOUT", "soon")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.RequestTimeout != 60*time.Second {
		t.Errorf("RequestTimeout = %v, want default 60s", cfg.RequestTimeout)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown key store", map[string]string{"KEY_STORE": "vault"}},
		{"redis without url", map[string]string{"KEY_STORE": "redis", "ENCRYPTION_KEY": "k"}},
		{"redis without encryption key", map[string]string{"KEY_STORE": "redis", "REDIS_URL": "redis://x"}},
		{"zero chunk words", map[string]string{"SIMULATED_CHUNK_WORDS": "0"}},
		{"negative chunk delay", map[string]string{"SIMULATED_CHUNK_DELAY_MS": "-5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			if _, err := Load(); err == nil {
				t.Error("Load() should fail")
			}
		})
	}
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("LOG_LEVEL")

	path := filepath.Join(t.TempDir(), "test.env")
	if err := os.WriteFile(path, []byte("LOG_LEVEL=warn\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ENV_FILE", path)
	t.Cleanup(func() { os.Unsetenv("LOG_LEVEL") })

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn from env file", cfg.LogLevel)
	}
}

func TestLoad_MissingExplicitEnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))

	if _, err := Load(); err == nil {
		t.Error("Load() should fail when ENV_FILE does not exist")
	}
}

func TestDescriptors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "descriptors.yaml")
	doc := `providers:
  openai:
    base_url: https://proxy.internal/v1
  local:
    family: openai
    base_url: http://localhost:8000/v1
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := &Config{DescriptorsFile: path}
	set, err := cfg.Descriptors()
	if err != nil {
		t.Fatalf("Descriptors() error = %v", err)
	}

	openai, ok := set.Get("openai")
	if !ok || openai.BaseURL != "https://proxy.internal/v1" {
		t.Errorf("openai override not applied: %+v", openai)
	}
	if _, ok := set.Get("local"); !ok {
		t.Error("new provider from file missing")
	}
	if _, ok := set.Get("anthropic"); !ok {
		t.Error("built-in provider dropped by merge")
	}
}

func TestDescriptors_BuiltinOnly(t *testing.T) {
	set, err := (&Config{}).Descriptors()
	if err != nil {
		t.Fatalf("Descriptors() error = %v", err)
	}
	if len(set.IDs()) != 14 {
		t.Errorf("len(IDs()) = %d, want 14", len(set.IDs()))
	}
}
