package descriptor

import (
	"fmt"
	"sort"
)

var bearer = Auth{Scheme: AuthHeader, Header: "Authorization", Prefix: "Bearer "}

func openAICompatible(id, baseURL string, models []string, pricing map[string]ModelPricing) *Descriptor {
	return &Descriptor{
		ID:                   id,
		Family:               FamilyOpenAI,
		BaseURL:              baseURL,
		Auth:                 bearer,
		Models:               models,
		Pricing:              pricing,
		SupportsStreaming:    true,
		SupportsFunctions:    true,
		SupportsSystemPrompt: true,
		RequiresKey:          true,
	}
}

// Builtin returns fresh copies of the built-in vendor descriptors keyed by id.
func Builtin() map[string]*Descriptor {
	openai := openAICompatible("openai", "https://api.openai.com/v1",
		[]string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-4", "gpt-3.5-turbo"},
		map[string]ModelPricing{
			"gpt-4":         {InputPer1K: 0.03, OutputPer1K: 0.06},
			"gpt-4-turbo":   {InputPer1K: 0.01, OutputPer1K: 0.03},
			"gpt-4o":        {InputPer1K: 0.005, OutputPer1K: 0.015},
			"gpt-4o-mini":   {InputPer1K: 0.00015, OutputPer1K: 0.0006},
			"gpt-3.5-turbo": {InputPer1K: 0.0005, OutputPer1K: 0.0015},
		})
	openai.DefaultModel = "gpt-4o-mini"
	openai.MaxTokens = 128000

	azure := openAICompatible("azure", "https://example.openai.azure.com/openai/deployments/default",
		nil, nil)
	azure.Auth = Auth{Scheme: AuthHeader, Header: "api-key"}
	azure.Query = map[string]string{"api-version": "2024-06-01"}

	groq := openAICompatible("groq", "https://api.groq.com/openai/v1",
		[]string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant", "mixtral-8x7b-32768"},
		map[string]ModelPricing{
			"llama-3.3-70b-versatile": {InputPer1K: 0.00059, OutputPer1K: 0.00079},
			"llama-3.1-8b-instant":    {InputPer1K: 0.00005, OutputPer1K: 0.00008},
		})
	groq.MaxTokens = 32768

	mistral := openAICompatible("mistral", "https://api.mistral.ai/v1",
		[]string{"mistral-large-latest", "mistral-small-latest", "codestral-latest"},
		map[string]ModelPricing{
			"mistral-large-latest": {InputPer1K: 0.002, OutputPer1K: 0.006},
			"mistral-small-latest": {InputPer1K: 0.0002, OutputPer1K: 0.0006},
		})

	deepseek := openAICompatible("deepseek", "https://api.deepseek.com/v1",
		[]string{"deepseek-chat", "deepseek-reasoner"},
		map[string]ModelPricing{
			"deepseek-chat":     {InputPer1K: 0.00027, OutputPer1K: 0.0011},
			"deepseek-reasoner": {InputPer1K: 0.00055, OutputPer1K: 0.00219},
		})
	deepseek.MaxTokens = 8192

	xai := openAICompatible("xai", "https://api.x.ai/v1",
		[]string{"grok-2-latest", "grok-beta"}, nil)

	together := openAICompatible("together", "https://api.together.xyz/v1", nil, nil)

	perplexity := openAICompatible("perplexity", "https://api.perplexity.ai",
		[]string{"sonar", "sonar-pro", "sonar-reasoning"},
		map[string]ModelPricing{
			"sonar":     {InputPer1K: 0.001, OutputPer1K: 0.001},
			"sonar-pro": {InputPer1K: 0.003, OutputPer1K: 0.015},
		})
	perplexity.SupportsFunctions = false

	openrouter := openAICompatible("openrouter", "https://openrouter.ai/api/v1", nil, nil)
	openrouter.Headers = map[string]string{
		"HTTP-Referer": "https://github.com/felipepmaragno/chatgw",
		"X-Title":      "chatgw",
	}

	huggingface := openAICompatible("huggingface", "https://api-inference.huggingface.co/v1", nil, nil)
	huggingface.SupportsStreaming = false
	huggingface.SupportsFunctions = false

	ollama := openAICompatible("ollama", "http://localhost:11434/v1", nil, nil)
	ollama.Auth = Auth{Scheme: AuthNone}
	ollama.RequiresKey = false
	ollama.SupportsFunctions = false

	anthropic := &Descriptor{
		ID:      "anthropic",
		Family:  FamilyAnthropic,
		BaseURL: "https://api.anthropic.com/v1",
		Auth:    Auth{Scheme: AuthHeader, Header: "x-api-key"},
		Headers: map[string]string{"anthropic-version": "2023-06-01"},
		Models: []string{
			"claude-3-5-sonnet-20241022",
			"claude-3-5-haiku-20241022",
			"claude-3-opus-20240229",
			"claude-3-sonnet-20240229",
			"claude-3-haiku-20240307",
		},
		DefaultModel: "claude-3-5-sonnet-20241022",
		Pricing: map[string]ModelPricing{
			"claude-3-5-sonnet-20241022": {InputPer1K: 0.003, OutputPer1K: 0.015},
			"claude-3-5-haiku-20241022":  {InputPer1K: 0.001, OutputPer1K: 0.005},
			"claude-3-opus-20240229":     {InputPer1K: 0.015, OutputPer1K: 0.075},
			"claude-3-sonnet-20240229":   {InputPer1K: 0.003, OutputPer1K: 0.015},
			"claude-3-haiku-20240307":    {InputPer1K: 0.00025, OutputPer1K: 0.00125},
		},
		SupportsStreaming:    true,
		SupportsSystemPrompt: true,
		MaxTokens:            8192,
		RequiresKey:          true,
	}

	bedrock := &Descriptor{
		ID:     "bedrock",
		Family: FamilyBedrock,
		Auth:   Auth{Scheme: AuthAWS},
		Models: []string{
			"anthropic.claude-3-5-sonnet-20241022-v2:0",
			"anthropic.claude-3-5-haiku-20241022-v1:0",
			"anthropic.claude-3-opus-20240229-v1:0",
			"anthropic.claude-3-haiku-20240307-v1:0",
		},
		DefaultModel: "anthropic.claude-3-5-sonnet-20241022-v2:0",
		Pricing: map[string]ModelPricing{
			"anthropic.claude-3-5-sonnet-20241022-v2:0": {InputPer1K: 0.003, OutputPer1K: 0.015},
			"anthropic.claude-3-5-haiku-20241022-v1:0":  {InputPer1K: 0.001, OutputPer1K: 0.005},
			"anthropic.claude-3-haiku-20240307-v1:0":    {InputPer1K: 0.00025, OutputPer1K: 0.00125},
		},
		SupportsStreaming:    true,
		SupportsSystemPrompt: true,
		MaxTokens:            8192,
		Region:               "us-east-1",
	}

	gemini := &Descriptor{
		ID:      "gemini",
		Family:  FamilyGemini,
		BaseURL: "https://generativelanguage.googleapis.com/v1beta",
		Auth:    Auth{Scheme: AuthQuery, Param: "key"},
		Models: []string{
			"gemini-2.0-flash",
			"gemini-1.5-pro",
			"gemini-1.5-flash",
		},
		DefaultModel: "gemini-2.0-flash",
		Pricing: map[string]ModelPricing{
			"gemini-2.0-flash": {InputPer1K: 0.0001, OutputPer1K: 0.0004},
			"gemini-1.5-pro":   {InputPer1K: 0.00125, OutputPer1K: 0.005},
			"gemini-1.5-flash": {InputPer1K: 0.000075, OutputPer1K: 0.0003},
		},
		SupportsStreaming: true,
		MaxTokens:         8192,
		RequiresKey:       true,
	}

	all := []*Descriptor{
		openai, azure, groq, mistral, deepseek, xai, together, perplexity,
		openrouter, huggingface, ollama, anthropic, bedrock, gemini,
	}

	out := make(map[string]*Descriptor, len(all))
	for _, d := range all {
		out[d.ID] = d
	}
	return out
}

// Set is an immutable collection of validated descriptors.
type Set struct {
	byID map[string]*Descriptor
}

// NewSet validates every descriptor and freezes the collection.
func NewSet(descriptors map[string]*Descriptor) (*Set, error) {
	byID := make(map[string]*Descriptor, len(descriptors))
	for id, d := range descriptors {
		if d.ID != id {
			return nil, fmt.Errorf("descriptor keyed %q has id %q", id, d.ID)
		}
		if err := d.Validate(); err != nil {
			return nil, err
		}
		byID[id] = d.Clone()
	}
	return &Set{byID: byID}, nil
}

func (s *Set) Get(id string) (*Descriptor, bool) {
	d, ok := s.byID[id]
	return d, ok
}

// IDs returns provider ids in sorted order.
func (s *Set) IDs() []string {
	ids := make([]string, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
