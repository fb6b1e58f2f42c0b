package openai

import (
	"encoding/json"

	"github.com/felipepmaragno/chatgw/internal/descriptor"
	"github.com/felipepmaragno/chatgw/internal/domain"
)

type Request struct {
	Model        string                      `json:"model"`
	Messages     []Message                   `json:"messages"`
	Temperature  *float64                    `json:"temperature,omitempty"`
	MaxTokens    *int                        `json:"max_tokens,omitempty"`
	Stream       bool                        `json:"stream,omitempty"`
	Functions    []domain.FunctionDefinition `json:"functions,omitempty"`
	FunctionCall any                         `json:"function_call,omitempty"`
}

type Message struct {
	Role         string        `json:"role"`
	Content      string        `json:"content"`
	Name         string        `json:"name,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
}

type FunctionCall struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type Response struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type StreamChunk struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []StreamChoice `json:"choices"`
	Usage   *Usage         `json:"usage,omitempty"`
	Error   *APIError      `json:"error,omitempty"`
}

type StreamChoice struct {
	Index        int     `json:"index"`
	Delta        Delta   `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

type Delta struct {
	Role         string        `json:"role,omitempty"`
	Content      string        `json:"content,omitempty"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
}

type APIError struct {
	Message string          `json:"message"`
	Type    string          `json:"type"`
	Code    json.RawMessage `json:"code,omitempty"`
}

// TransformRequest builds the chat-completions body. A request-level system
// prompt is injected as a leading system message; nothing is injected when it
// is empty.
func TransformRequest(req domain.UnifiedRequest, d *descriptor.Descriptor) Request {
	messages := make([]Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, Message{Role: systemRole(d), Content: req.SystemPrompt})
	}
	for _, m := range req.Messages {
		role := string(m.Role)
		if m.Role == domain.RoleSystem {
			role = systemRole(d)
		}
		messages = append(messages, Message{
			Role:    role,
			Content: m.Content,
			Name:    m.Name,
		})
	}

	out := Request{
		Model:       d.ResolveModel(req.Model),
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      req.Stream,
		Functions:   req.Functions,
	}
	if fc := req.FunctionCall; fc != nil {
		if fc.Name != "" {
			out.FunctionCall = map[string]string{"name": fc.Name}
		} else if fc.Mode != "" {
			out.FunctionCall = fc.Mode
		}
	}
	return out
}

func systemRole(d *descriptor.Descriptor) string {
	if d.SupportsSystemPrompt {
		return string(domain.RoleSystem)
	}
	return string(domain.RoleUser)
}

// TransformResponse reads the first choice of a chat-completions response.
func TransformResponse(providerID string, resp Response) (*domain.UnifiedResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, domain.NewProviderError(domain.KindDecodingError, providerID, "response has no choices")
	}
	choice := resp.Choices[0]

	out := &domain.UnifiedResponse{
		ID:           resp.ID,
		Message:      domain.AssistantMessage(choice.Message.Content),
		FinishReason: mapFinishReason(choice.FinishReason),
		Model:        resp.Model,
	}
	if fc := choice.Message.FunctionCall; fc != nil && fc.Name != "" {
		out.FunctionCall = &domain.FunctionCall{Name: fc.Name, Arguments: fc.Arguments}
	}
	if u := resp.Usage; u != nil {
		out.Usage = &domain.TokenUsage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return out, nil
}

func mapFinishReason(reason string) domain.FinishReason {
	switch reason {
	case "":
		return domain.FinishNone
	case "stop":
		return domain.FinishStop
	case "length":
		return domain.FinishLength
	case "content_filter":
		return domain.FinishContentFilter
	case "function_call", "tool_calls":
		return domain.FinishFunctionCall
	default:
		return domain.FinishStop
	}
}
