package gemini

import (
	"strings"

	"github.com/felipepmaragno/chatgw/internal/descriptor"
	"github.com/felipepmaragno/chatgw/internal/domain"
)

const (
	roleUser  = "user"
	roleModel = "model"
)

type Request struct {
	Contents         []Content         `json:"contents"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

type Part struct {
	Text string `json:"text"`
}

type GenerationConfig struct {
	Temperature     *float64 `json:"temperature,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type Response struct {
	Candidates     []Candidate     `json:"candidates"`
	UsageMetadata  *UsageMetadata  `json:"usageMetadata,omitempty"`
	ModelVersion   string          `json:"modelVersion,omitempty"`
	PromptFeedback *PromptFeedback `json:"promptFeedback,omitempty"`
	Error          *APIError       `json:"error,omitempty"`
}

type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type UsageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type PromptFeedback struct {
	BlockReason string `json:"blockReason,omitempty"`
}

type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// TransformRequest builds a generateContent body.
//
// Only "user" and "model" roles exist, so the mapping is lossy: the request
// system prompt, system turns and function turns are all folded into user
// turns. With d.FoldRoleMarkers set each folded turn is prefixed with its
// original role ("System: ...", "Function lookup: ..."); by default the text
// is passed through unmarked. Consecutive turns of one role are merged into
// a single content with several parts.
func TransformRequest(req domain.UnifiedRequest, d *descriptor.Descriptor) Request {
	contents := make([]Content, 0, len(req.Messages)+1)

	add := func(role, text string) {
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, Part{Text: text})
			return
		}
		contents = append(contents, Content{Role: role, Parts: []Part{{Text: text}}})
	}

	if req.SystemPrompt != "" {
		add(roleUser, fold(d, "System", req.SystemPrompt))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case domain.RoleAssistant:
			add(roleModel, m.Content)
		case domain.RoleSystem:
			add(roleUser, fold(d, "System", m.Content))
		case domain.RoleFunction:
			label := "Function"
			if m.Name != "" {
				label += " " + m.Name
			}
			add(roleUser, fold(d, label, m.Content))
		default:
			add(roleUser, m.Content)
		}
	}

	out := Request{Contents: contents}
	if req.Temperature != nil || req.MaxTokens != nil {
		out.GenerationConfig = &GenerationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		}
	}
	return out
}

func fold(d *descriptor.Descriptor, label, text string) string {
	if !d.FoldRoleMarkers {
		return text
	}
	return label + ": " + text
}

// TransformResponse reads the first candidate. A prompt blocked before any
// candidate was produced is reported as a content-filter finish.
func TransformResponse(providerID string, resp Response) (*domain.UnifiedResponse, error) {
	out := &domain.UnifiedResponse{
		Message: domain.AssistantMessage(""),
		Model:   resp.ModelVersion,
		Usage:   usage(resp.UsageMetadata),
	}

	if len(resp.Candidates) == 0 {
		if pf := resp.PromptFeedback; pf != nil && pf.BlockReason != "" {
			out.FinishReason = domain.FinishContentFilter
			return out, nil
		}
		return nil, domain.NewProviderError(domain.KindDecodingError, providerID, "response has no candidates")
	}

	c := resp.Candidates[0]
	out.Message.Content = text(c.Content)
	out.FinishReason = MapFinishReason(c.FinishReason)
	return out, nil
}

func text(c Content) string {
	var b strings.Builder
	for _, p := range c.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}

func usage(u *UsageMetadata) *domain.TokenUsage {
	if u == nil {
		return nil
	}
	return &domain.TokenUsage{
		PromptTokens:     u.PromptTokenCount,
		CompletionTokens: u.CandidatesTokenCount,
		TotalTokens:      u.TotalTokenCount,
	}
}

func MapFinishReason(reason string) domain.FinishReason {
	switch reason {
	case "", "FINISH_REASON_UNSPECIFIED":
		return domain.FinishNone
	case "STOP":
		return domain.FinishStop
	case "MAX_TOKENS":
		return domain.FinishLength
	case "SAFETY", "RECITATION", "BLOCKLIST", "PROHIBITED_CONTENT", "SPII":
		return domain.FinishContentFilter
	default:
		return domain.FinishStop
	}
}
