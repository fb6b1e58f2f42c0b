package domain

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleFunction  Role = "function"
)

func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleFunction:
		return true
	}
	return false
}

type ChatMessage struct {
	ID        string    `json:"id,omitempty"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Name      string    `json:"name,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

func SystemMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleSystem, Content: content}
}

func UserMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleUser, Content: content}
}

func AssistantMessage(content string) ChatMessage {
	return ChatMessage{Role: RoleAssistant, Content: content}
}

// FunctionDefinition describes a callable function offered to the model.
// Parameters holds a JSON Schema object.
type FunctionDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// FunctionCallOption selects how the model may call functions: "auto", "none",
// or the name of one specific function.
type FunctionCallOption struct {
	Mode string `json:"mode,omitempty"`
	Name string `json:"name,omitempty"`
}

type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// UnifiedRequest is built once per turn and must not be mutated after it is
// handed to an adapter. Use WithStream to derive the streaming variant.
type UnifiedRequest struct {
	Messages     []ChatMessage        `json:"messages"`
	Model        string               `json:"model,omitempty"`
	Temperature  *float64             `json:"temperature,omitempty"`
	MaxTokens    *int                 `json:"max_tokens,omitempty"`
	SystemPrompt string               `json:"system_prompt,omitempty"`
	Stream       bool                 `json:"stream,omitempty"`
	Functions    []FunctionDefinition `json:"functions,omitempty"`
	FunctionCall *FunctionCallOption  `json:"function_call,omitempty"`
	Metadata     map[string]string    `json:"metadata,omitempty"`
}

// WithStream returns a copy of the request with the stream flag set.
func (r UnifiedRequest) WithStream(stream bool) UnifiedRequest {
	r.Stream = stream
	return r
}

type FinishReason string

const (
	FinishNone          FinishReason = ""
	FinishStop          FinishReason = "stop"
	FinishLength        FinishReason = "length"
	FinishContentFilter FinishReason = "content_filter"
	FinishFunctionCall  FinishReason = "function_call"
	FinishError         FinishReason = "error"
)

// TokenUsage reports token accounting. Estimated is set when the vendor did
// not report usage and the counts were derived heuristically.
type TokenUsage struct {
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	TotalTokens      int      `json:"total_tokens"`
	EstimatedCost    *float64 `json:"estimated_cost,omitempty"`
	Estimated        bool     `json:"estimated,omitempty"`
}

// NewTokenUsage fills TotalTokens from the prompt and completion counts.
func NewTokenUsage(prompt, completion int) *TokenUsage {
	return &TokenUsage{
		PromptTokens:     prompt,
		CompletionTokens: completion,
		TotalTokens:      prompt + completion,
	}
}

// UnifiedResponse is either a complete response or one fragment of a stream.
// Only the terminal fragment of a stream carries a FinishReason and Usage.
type UnifiedResponse struct {
	ID           string        `json:"id"`
	Message      ChatMessage   `json:"message"`
	FinishReason FinishReason  `json:"finish_reason,omitempty"`
	Usage        *TokenUsage   `json:"usage,omitempty"`
	Model        string        `json:"model"`
	Provider     string        `json:"provider"`
	FunctionCall *FunctionCall `json:"function_call,omitempty"`
	Timestamp    time.Time     `json:"timestamp"`
}

func (r *UnifiedResponse) Content() string {
	return r.Message.Content
}

// Terminal reports whether this is the final element of a sequence.
func (r *UnifiedResponse) Terminal() bool {
	return r.FinishReason != FinishNone
}

type Model struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
}
