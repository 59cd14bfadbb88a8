package entity

// Provider names accepted in ChatRequest.Provider.
const (
	ProviderOpenAI = "openai"
	ProviderGoogle = "google"
)

// Message roles accepted in ApiMessage.Role.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ChatRequest is the canonical, provider-agnostic request body of
// POST /chat. The caller supplies the upstream credential per request; the
// relay holds no keys of its own.
type ChatRequest struct {
	Provider   string `json:"provider" binding:"required"`
	Model      string `json:"model" binding:"required"`
	APIKey     string `json:"api_key" binding:"required"`
	APIAddress string `json:"api_address,omitempty"`

	Messages []ApiMessage `json:"messages" binding:"required"`

	Temperature *float64 `json:"temperature,omitempty" binding:"omitempty,gte=0,lte=2"`
	TopP        *float64 `json:"top_p,omitempty" binding:"omitempty,gte=0,lte=1"`
	MaxTokens   *int     `json:"max_tokens,omitempty" binding:"omitempty,gt=0"`

	Tools []ToolDefinition `json:"tools,omitempty"`

	// ToolChoice is either a keyword ("none", "auto", "required") or a
	// {type:"function", function:{name}} selector. Kept loose here; each
	// translator interprets it.
	ToolChoice any `json:"tool_choice,omitempty"`

	UseWebSearch bool `json:"use_web_search,omitempty"`

	// ForceCustomReasoningPrompt selects guided reasoning: nil leaves the
	// choice to the model heuristic, true forces it, false disables it.
	// ForceGoogleReasoningPrompt is the historical name for the same flag
	// and applies only when the canonical field is absent.
	ForceCustomReasoningPrompt *bool `json:"force_custom_reasoning_prompt,omitempty"`
	ForceGoogleReasoningPrompt *bool `json:"force_google_reasoning_prompt,omitempty"`

	// CustomModelParameters merges into the upstream body top-level;
	// CustomExtraBody merges under extra_body. Both forwarded verbatim.
	CustomModelParameters map[string]any `json:"custom_model_parameters,omitempty"`
	CustomExtraBody       map[string]any `json:"custom_extra_body,omitempty"`
}

// ApiMessage is one turn of the canonical conversation.
type ApiMessage struct {
	Role       string     `json:"role" binding:"required,oneof=system user assistant tool"`
	Content    string     `json:"content,omitempty"`
	Name       string     `json:"name,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is an assistant-issued function call in OpenAI shape.
// Arguments is a JSON string, never an object.
type ToolCall struct {
	Index    int              `json:"index,omitempty"`
	ID       string           `json:"id,omitempty"`
	Type     string           `json:"type,omitempty"`
	Function ToolCallFunction `json:"function"`
}

type ToolCallFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

// ToolDefinition is an OpenAI-style function-tool declaration.
type ToolDefinition struct {
	Type     string        `json:"type"`
	Function *ToolFunction `json:"function,omitempty"`
}

type ToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// Empty reports whether the message carries neither content nor tool calls
// and should be dropped before translation.
func (m ApiMessage) Empty() bool {
	return m.Content == "" && len(m.ToolCalls) == 0
}

// FilteredMessages returns a copy of the message list with empty messages
// removed.
func (r *ChatRequest) FilteredMessages() []ApiMessage {
	out := make([]ApiMessage, 0, len(r.Messages))
	for _, m := range r.Messages {
		if m.Empty() {
			continue
		}
		out = append(out, m)
	}
	return out
}

// ForceReasoning resolves the force flag, preferring the canonical field
// over the historical alias. nil means unset.
func (r *ChatRequest) ForceReasoning() *bool {
	if r.ForceCustomReasoningPrompt != nil {
		return r.ForceCustomReasoningPrompt
	}
	return r.ForceGoogleReasoningPrompt
}

// LastUserIndex returns the index of the last message with role "user" and
// non-empty content, or -1.
func LastUserIndex(messages []ApiMessage) int {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == RoleUser && messages[i].Content != "" {
			return i
		}
	}
	return -1
}

// ToolChoiceKind classifies a tool_choice value.
type ToolChoiceKind int

const (
	ToolChoiceAbsent ToolChoiceKind = iota
	ToolChoiceNone
	ToolChoiceAuto
	ToolChoiceRequired
	ToolChoiceFunction
	ToolChoiceInvalid
)

// ClassifyToolChoice normalizes the loose tool_choice value into a kind and,
// for function selectors, the target function name.
func ClassifyToolChoice(v any) (ToolChoiceKind, string) {
	switch tc := v.(type) {
	case nil:
		return ToolChoiceAbsent, ""
	case string:
		switch tc {
		case "none":
			return ToolChoiceNone, ""
		case "auto":
			return ToolChoiceAuto, ""
		case "required":
			return ToolChoiceRequired, ""
		}
		return ToolChoiceInvalid, ""
	case map[string]any:
		if t, _ := tc["type"].(string); t != "function" {
			return ToolChoiceInvalid, ""
		}
		fn, _ := tc["function"].(map[string]any)
		name, _ := fn["name"].(string)
		if name == "" {
			return ToolChoiceInvalid, ""
		}
		return ToolChoiceFunction, name
	}
	return ToolChoiceInvalid, ""
}

// DeclaredToolNames lists the function names declared in tools, skipping
// non-function and unnamed entries.
func DeclaredToolNames(tools []ToolDefinition) []string {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		if t.Type != "function" || t.Function == nil || t.Function.Name == "" {
			continue
		}
		names = append(names, t.Function.Name)
	}
	return names
}
