package anthropic

import (
	"fmt"
	"strings"

	"github.com/felipepmaragno/chatgw/internal/descriptor"
	"github.com/felipepmaragno/chatgw/internal/domain"
)

// DefaultMaxTokens is sent when the caller sets no limit; the messages API
// requires one.
const DefaultMaxTokens = 4096

type Request struct {
	// AnthropicVersion is set for Bedrock, which takes the version in the
	// body rather than a header.
	AnthropicVersion string    `json:"anthropic_version,omitempty"`
	Model            string    `json:"model,omitempty"`
	MaxTokens        int       `json:"max_tokens"`
	Messages         []Message `json:"messages"`
	System           string    `json:"system,omitempty"`
	Temperature      *float64  `json:"temperature,omitempty"`
	Stream           bool      `json:"stream,omitempty"`
}

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Response struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// ValidateTurns rejects conversations the messages API refuses once system
// turns are lifted out: none left, or an assistant turn first.
func ValidateTurns(providerID string, req domain.UnifiedRequest) error {
	for _, m := range req.Messages {
		if m.Role == domain.RoleSystem {
			continue
		}
		if m.Role == domain.RoleAssistant {
			return domain.NewProviderError(domain.KindInvalidRequest, providerID,
				fmt.Sprintf("%s conversations must start with a user turn", providerID))
		}
		return nil
	}
	return domain.NewProviderError(domain.KindInvalidRequest, providerID,
		"at least one non-system message is required")
}

// TransformRequest builds a messages-API body. System content (the request's
// system prompt plus any system-role turns) goes to the top-level system
// field and never into messages. Function turns become user turns, and
// consecutive turns of the same role are merged because the API requires
// alternation.
func TransformRequest(req domain.UnifiedRequest, d *descriptor.Descriptor) Request {
	var system []string
	if req.SystemPrompt != "" {
		system = append(system, req.SystemPrompt)
	}

	messages := make([]Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == domain.RoleSystem {
			system = append(system, m.Content)
			continue
		}

		role := "user"
		if m.Role == domain.RoleAssistant {
			role = "assistant"
		}

		if n := len(messages); n > 0 && messages[n-1].Role == role {
			messages[n-1].Content += "\n\n" + m.Content
			continue
		}
		messages = append(messages, Message{Role: role, Content: m.Content})
	}

	maxTokens := DefaultMaxTokens
	if d.MaxTokens > 0 && d.MaxTokens < maxTokens {
		maxTokens = d.MaxTokens
	}
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	}

	return Request{
		Model:       d.ResolveModel(req.Model),
		MaxTokens:   maxTokens,
		Messages:    messages,
		System:      strings.Join(system, "\n\n"),
		Temperature: req.Temperature,
		Stream:      req.Stream,
	}
}

// TransformResponse joins the text blocks of a messages-API response.
func TransformResponse(resp Response) *domain.UnifiedResponse {
	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &domain.UnifiedResponse{
		ID:           resp.ID,
		Message:      domain.AssistantMessage(content.String()),
		FinishReason: MapStopReason(resp.StopReason),
		Usage:        domain.NewTokenUsage(resp.Usage.InputTokens, resp.Usage.OutputTokens),
		Model:        resp.Model,
	}
}

func MapStopReason(reason string) domain.FinishReason {
	switch reason {
	case "":
		return domain.FinishNone
	case "end_turn", "stop_sequence":
		return domain.FinishStop
	case "max_tokens":
		return domain.FinishLength
	case "tool_use":
		return domain.FinishFunctionCall
	case "refusal":
		return domain.FinishContentFilter
	default:
		return domain.FinishStop
	}
}
