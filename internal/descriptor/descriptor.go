// Package descriptor holds the static, per-vendor facts every adapter is
// bound to: endpoint, authentication scheme, model catalog, pricing and
// capability flags. Descriptors are built once at startup and shared
// read-only afterwards.
package descriptor

import (
	"fmt"
	"slices"
	"strings"
)

// Family identifies one of the wire-protocol shapes an adapter speaks.
type Family string

const (
	FamilyOpenAI    Family = "openai"
	FamilyAnthropic Family = "anthropic"
	FamilyGemini    Family = "gemini"
	FamilyBedrock   Family = "bedrock"
)

func (f Family) Valid() bool {
	switch f {
	case FamilyOpenAI, FamilyAnthropic, FamilyGemini, FamilyBedrock:
		return true
	}
	return false
}

type AuthScheme string

const (
	AuthNone   AuthScheme = "none"
	AuthHeader AuthScheme = "header"
	AuthQuery  AuthScheme = "query"
	// AuthAWS delegates signing to the AWS SDK credential chain.
	AuthAWS AuthScheme = "aws"
)

// Auth describes where the API key goes. For AuthHeader the header value is
// Prefix+key; for AuthQuery the key is sent as the Param query parameter.
type Auth struct {
	Scheme AuthScheme `yaml:"scheme"`
	Header string     `yaml:"header"`
	Prefix string     `yaml:"prefix"`
	Param  string     `yaml:"param"`
}

// Value builds the credential value for a header-based scheme.
func (a Auth) Value(apiKey string) string {
	return a.Prefix + apiKey
}

type ModelPricing struct {
	InputPer1K  float64 `yaml:"input_per_1k"`
	OutputPer1K float64 `yaml:"output_per_1k"`
}

type Descriptor struct {
	ID      string            `yaml:"id"`
	Family  Family            `yaml:"family"`
	BaseURL string            `yaml:"base_url"`
	Auth    Auth              `yaml:"auth"`
	Headers map[string]string `yaml:"headers"`
	Query   map[string]string `yaml:"query"`

	Models       []string                `yaml:"models"`
	DefaultModel string                  `yaml:"default_model"`
	Pricing      map[string]ModelPricing `yaml:"pricing"`

	SupportsStreaming    bool `yaml:"supports_streaming"`
	SupportsFunctions    bool `yaml:"supports_functions"`
	SupportsSystemPrompt bool `yaml:"supports_system_prompt"`

	// MaxTokens is the hard ceiling for requested output tokens; zero means none.
	MaxTokens int `yaml:"max_tokens"`

	// RequiresKey is false for vendors reachable without an API key (local
	// servers, AWS credential chain).
	RequiresKey bool `yaml:"requires_key"`

	// FoldRoleMarkers prefixes folded system/function turns with their
	// original role ("System: ...") in families that lack those roles.
	FoldRoleMarkers bool `yaml:"fold_role_markers"`

	// Region is used by the bedrock family only.
	Region string `yaml:"region"`
}

// HasModel reports whether model is in the catalog. An empty catalog
// accepts any model.
func (d *Descriptor) HasModel(model string) bool {
	if len(d.Models) == 0 {
		return true
	}
	return slices.Contains(d.Models, model)
}

// ResolveModel returns the requested model or the descriptor default.
func (d *Descriptor) ResolveModel(model string) string {
	if model != "" {
		return model
	}
	if d.DefaultModel != "" {
		return d.DefaultModel
	}
	if len(d.Models) > 0 {
		return d.Models[0]
	}
	return ""
}

// PricingFor returns the per-1K prices for a model when both are known.
func (d *Descriptor) PricingFor(model string) (ModelPricing, bool) {
	p, ok := d.Pricing[model]
	return p, ok
}

// Endpoint joins the base URL with a path.
func (d *Descriptor) Endpoint(path string) string {
	return strings.TrimRight(d.BaseURL, "/") + path
}

func (d *Descriptor) Validate() error {
	if strings.TrimSpace(d.ID) == "" {
		return fmt.Errorf("descriptor id must not be empty")
	}
	if !d.Family.Valid() {
		return fmt.Errorf("descriptor %s: unknown family %q", d.ID, d.Family)
	}
	if d.Family != FamilyBedrock && strings.TrimSpace(d.BaseURL) == "" {
		return fmt.Errorf("descriptor %s: base_url must be provided", d.ID)
	}
	if d.MaxTokens < 0 {
		return fmt.Errorf("descriptor %s: max_tokens must not be negative", d.ID)
	}
	switch d.Auth.Scheme {
	case AuthNone, AuthAWS:
	case AuthHeader:
		if d.Auth.Header == "" {
			return fmt.Errorf("descriptor %s: auth header name must be provided", d.ID)
		}
	case AuthQuery:
		if d.Auth.Param == "" {
			return fmt.Errorf("descriptor %s: auth query param must be provided", d.ID)
		}
	default:
		return fmt.Errorf("descriptor %s: unknown auth scheme %q", d.ID, d.Auth.Scheme)
	}
	for model, p := range d.Pricing {
		if p.InputPer1K < 0 || p.OutputPer1K < 0 {
			return fmt.Errorf("descriptor %s: negative price for model %s", d.ID, model)
		}
	}
	return nil
}

// Clone returns a deep copy so overrides never alias shared maps or slices.
func (d *Descriptor) Clone() *Descriptor {
	c := *d
	c.Models = slices.Clone(d.Models)
	c.Headers = cloneMap(d.Headers)
	c.Query = cloneMap(d.Query)
	if d.Pricing != nil {
		c.Pricing = make(map[string]ModelPricing, len(d.Pricing))
		for k, v := range d.Pricing {
			c.Pricing[k] = v
		}
	}
	return &c
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
