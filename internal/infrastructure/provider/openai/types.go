package openai

import (
	"encoding/json"

	"github.com/eztalk/relay/internal/domain/entity"
)

// Request is the chat-completions body sent upstream. Struct order is the
// deterministic wire order; caller-injected parameter maps marshal with
// sorted keys.
type Request struct {
	Model       string                  `json:"model"`
	Messages    []entity.ApiMessage     `json:"messages"`
	Stream      bool                    `json:"stream"`
	Temperature *float64                `json:"temperature,omitempty"`
	TopP        *float64                `json:"top_p,omitempty"`
	MaxTokens   *int                    `json:"max_tokens,omitempty"`
	Tools       []entity.ToolDefinition `json:"tools,omitempty"`
	ToolChoice  any                     `json:"tool_choice,omitempty"`
	ExtraBody   map[string]any          `json:"extra_body,omitempty"`
}

// streamChunk is one upstream SSE data payload.
type streamChunk struct {
	Choices []streamChoice `json:"choices"`
}

type streamChoice struct {
	Delta        streamDelta `json:"delta"`
	FinishReason string      `json:"finish_reason"`
}

// streamDelta mirrors the delta object. ToolCalls stays raw so the
// index-keyed fragments are forwarded byte-for-byte.
type streamDelta struct {
	Content          string          `json:"content"`
	ReasoningContent string          `json:"reasoning_content"`
	ToolCalls        json.RawMessage `json:"tool_calls"`
	FinishReason     string          `json:"finish_reason"`
}
