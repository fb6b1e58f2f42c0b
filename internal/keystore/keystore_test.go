package keystore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
)

func TestEnvVar(t *testing.T) {
	tests := []struct {
		id   string
		want string
	}{
		{"openai", "OPENAI_API_KEY"},
		{"openrouter", "OPENROUTER_API_KEY"},
		{"my-vendor.v2", "MY_VENDOR_V2_API_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := EnvVar(tt.id); got != tt.want {
				t.Errorf("EnvVar(%q) = %q, want %q", tt.id, got, tt.want)
			}
		})
	}
}

func TestEnv_GetAPIKey(t *testing.T) {
	env := map[string]string{
		"OPENAI_API_KEY": " sk-env \n",
		"GROQ_API_KEY":   "   ",
	}
	store := &Env{lookup: func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}}
	ctx := context.Background()

	key, err := store.GetAPIKey(ctx, "openai")
	if err != nil {
		t.Fatalf("GetAPIKey() error = %v", err)
	}
	if key != "sk-env" {
		t.Errorf("GetAPIKey() = %q, want sk-env", key)
	}

	if _, err := store.GetAPIKey(ctx, "groq"); !errors.Is(err, ErrNotFound) {
		t.Errorf("blank key error = %v, want ErrNotFound", err)
	}
	if _, err := store.GetAPIKey(ctx, "mistral"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unset key error = %v, want ErrNotFound", err)
	}
}

func TestEnv_ReadsProcessEnvironment(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "sk-deep")

	key, err := NewEnv().GetAPIKey(context.Background(), "deepseek")
	if err != nil {
		t.Fatalf("GetAPIKey() error = %v", err)
	}
	if key != "sk-deep" {
		t.Errorf("GetAPIKey() = %q, want sk-deep", key)
	}
}

func TestInMemory(t *testing.T) {
	store := NewInMemory()
	ctx := context.Background()

	if _, err := store.GetAPIKey(ctx, "openai"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty store error = %v, want ErrNotFound", err)
	}

	store.Set("openai", "sk-test")
	key, err := store.GetAPIKey(ctx, "openai")
	if err != nil || key != "sk-test" {
		t.Fatalf("GetAPIKey() = %q, %v", key, err)
	}

	store.Delete("openai")
	if _, err := store.GetAPIKey(ctx, "openai"); !errors.Is(err, ErrNotFound) {
		t.Errorf("after delete error = %v, want ErrNotFound", err)
	}
}

type mockSecretsAPI struct {
	values map[string]string
	err    error
	calls  int
	last   string
}

func (m *mockSecretsAPI) GetSecretValue(_ context.Context, in *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	m.calls++
	m.last = aws.ToString(in.SecretId)
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.values[m.last]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("not found")}
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

func TestSecretsManager_GetAPIKey(t *testing.T) {
	api := &mockSecretsAPI{values: map[string]string{"chatgw/openai": "sk-aws"}}
	store := newSecretsManager(api, "chatgw/")
	ctx := context.Background()

	key, err := store.GetAPIKey(ctx, "openai")
	if err != nil {
		t.Fatalf("GetAPIKey() error = %v", err)
	}
	if key != "sk-aws" {
		t.Errorf("GetAPIKey() = %q, want sk-aws", key)
	}
	if api.last != "chatgw/openai" {
		t.Errorf("secret id = %q, want chatgw/openai", api.last)
	}

	if _, err := store.GetAPIKey(ctx, "groq"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing secret error = %v, want ErrNotFound", err)
	}
}

func TestSecretsManager_Cache(t *testing.T) {
	api := &mockSecretsAPI{values: map[string]string{"openai": "sk-aws"}}
	store := newSecretsManager(api, "")
	now := time.Now()
	store.now = func() time.Time { return now }
	ctx := context.Background()

	store.GetAPIKey(ctx, "openai")
	store.GetAPIKey(ctx, "openai")
	if api.calls != 1 {
		t.Errorf("calls = %d, want 1 (cached)", api.calls)
	}

	now = now.Add(DefaultCacheTTL + time.Second)
	store.GetAPIKey(ctx, "openai")
	if api.calls != 2 {
		t.Errorf("calls = %d, want 2 after expiry", api.calls)
	}

	store.ClearCache()
	store.GetAPIKey(ctx, "openai")
	if api.calls != 3 {
		t.Errorf("calls = %d, want 3 after clear", api.calls)
	}
}

func TestSecretsManager_Error(t *testing.T) {
	boom := errors.New("throttled")
	store := newSecretsManager(&mockSecretsAPI{err: boom}, "")

	_, err := store.GetAPIKey(context.Background(), "openai")
	if !errors.Is(err, boom) {
		t.Errorf("error = %v, want wrapped %v", err, boom)
	}
	if errors.Is(err, ErrNotFound) {
		t.Error("transport failure should not read as a missing key")
	}
}
