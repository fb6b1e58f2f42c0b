package descriptor

import (
	"strings"
	"testing"
)

func TestBuiltin_AllValid(t *testing.T) {
	set, err := NewSet(Builtin())
	if err != nil {
		t.Fatalf("NewSet() error = %v", err)
	}

	if len(set.IDs()) < 12 {
		t.Errorf("expected at least 12 built-in providers, got %d", len(set.IDs()))
	}

	families := map[Family]bool{}
	for _, id := range set.IDs() {
		d, _ := set.Get(id)
		families[d.Family] = true
	}

	for _, f := range []Family{FamilyOpenAI, FamilyAnthropic, FamilyGemini} {
		if !families[f] {
			t.Errorf("no built-in provider for family %s", f)
		}
	}
}

func TestBuiltin_ReturnsFreshCopies(t *testing.T) {
	a := Builtin()
	a["openai"].Models[0] = "mutated"

	b := Builtin()
	if b["openai"].Models[0] == "mutated" {
		t.Error("Builtin() should not share state between calls")
	}
}

func TestDescriptor_HasModel(t *testing.T) {
	d := &Descriptor{Models: []string{"a", "b"}}

	if !d.HasModel("a") {
		t.Error("expected a to be in catalog")
	}
	if d.HasModel("c") {
		t.Error("expected c to be absent")
	}

	empty := &Descriptor{}
	if !empty.HasModel("anything") {
		t.Error("empty catalog should accept any model")
	}
}

func TestDescriptor_ResolveModel(t *testing.T) {
	tests := []struct {
		name     string
		d        Descriptor
		model    string
		expected string
	}{
		{"explicit", Descriptor{DefaultModel: "x"}, "y", "y"},
		{"default", Descriptor{DefaultModel: "x", Models: []string{"z"}}, "", "x"},
		{"first in catalog", Descriptor{Models: []string{"z"}}, "", "z"},
		{"nothing", Descriptor{}, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.d.ResolveModel(tt.model); got != tt.expected {
				t.Errorf("ResolveModel(%q) = %q, want %q", tt.model, got, tt.expected)
			}
		})
	}
}

func TestDescriptor_Validate(t *testing.T) {
	tests := []struct {
		name    string
		d       Descriptor
		wantErr string
	}{
		{"missing id", Descriptor{Family: FamilyOpenAI, BaseURL: "http://x"}, "id"},
		{"bad family", Descriptor{ID: "x", Family: "soap", BaseURL: "http://x"}, "family"},
		{"missing base url", Descriptor{ID: "x", Family: FamilyOpenAI, Auth: Auth{Scheme: AuthNone}}, "base_url"},
		{"header without name", Descriptor{ID: "x", Family: FamilyOpenAI, BaseURL: "http://x", Auth: Auth{Scheme: AuthHeader}}, "header"},
		{"query without param", Descriptor{ID: "x", Family: FamilyGemini, BaseURL: "http://x", Auth: Auth{Scheme: AuthQuery}}, "param"},
		{"negative ceiling", Descriptor{ID: "x", Family: FamilyOpenAI, BaseURL: "http://x", Auth: Auth{Scheme: AuthNone}, MaxTokens: -1}, "max_tokens"},
		{"bedrock without base url", Descriptor{ID: "x", Family: FamilyBedrock, Auth: Auth{Scheme: AuthAWS}}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.d.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestAuth_Value(t *testing.T) {
	if got := bearer.Value("sk-1"); got != "Bearer sk-1" {
		t.Errorf("Value() = %q", got)
	}
	raw := Auth{Scheme: AuthHeader, Header: "x-api-key"}
	if got := raw.Value("k"); got != "k" {
		t.Errorf("Value() = %q", got)
	}
}

func TestMerge_OverridesAndAdds(t *testing.T) {
	doc := []byte(`
providers:
  openai:
    base_url: https://proxy.internal/v1
    max_tokens: 64000
    supports_functions: false
    headers:
      X-Team: core
  local:
    family: openai
    base_url: http://localhost:8000/v1
    requires_key: false
    auth:
      scheme: none
`)

	f, err := Parse(doc)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	base := Builtin()
	merged, err := Merge(base, f)
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}

	openai := merged["openai"]
	if openai.BaseURL != "https://proxy.internal/v1" {
		t.Errorf("BaseURL = %q", openai.BaseURL)
	}
	if openai.MaxTokens != 64000 {
		t.Errorf("MaxTokens = %d", openai.MaxTokens)
	}
	if openai.SupportsFunctions {
		t.Error("SupportsFunctions should be overridden to false")
	}
	if !openai.SupportsStreaming {
		t.Error("SupportsStreaming should keep its base value")
	}
	if openai.Headers["X-Team"] != "core" {
		t.Error("expected merged header")
	}
	if base["openai"].BaseURL == openai.BaseURL {
		t.Error("Merge must not mutate the base map")
	}

	local, ok := merged["local"]
	if !ok {
		t.Fatal("expected new provider 'local'")
	}
	if local.Family != FamilyOpenAI || local.RequiresKey {
		t.Errorf("unexpected local descriptor: %+v", local)
	}

	if _, err := NewSet(merged); err != nil {
		t.Errorf("merged set should validate: %v", err)
	}
}

func TestMerge_NewProviderNeedsFamily(t *testing.T) {
	f, err := Parse([]byte("providers:\n  mystery:\n    base_url: http://x\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if _, err := Merge(Builtin(), f); err == nil {
		t.Error("expected error for new provider without family")
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("providers: [")); err == nil {
		t.Error("expected parse error")
	}
}
