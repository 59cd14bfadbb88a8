package google

import "encoding/json"

// Gemini content roles. v1beta streaming has no system role; system turns
// are sent as annotated user blocks.
const (
	roleUser  = "user"
	roleModel = "model"
)

// Function-calling modes of toolConfig.function_calling_config.
const (
	modeAuto = "AUTO"
	modeAny  = "ANY"
	modeNone = "NONE"
)

// Request is the streamGenerateContent body.
type Request struct {
	Contents         []Content         `json:"contents"`
	Tools            []Tool            `json:"tools,omitempty"`
	ToolConfig       *ToolConfig       `json:"toolConfig,omitempty"`
	GenerationConfig *GenerationConfig `json:"generationConfig,omitempty"`
}

type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// Part carries exactly one of its members.
type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

// FunctionCall is an assistant-issued call replayed into the conversation.
// Args is always an object, never a JSON string.
type FunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// FunctionResponse carries a tool result back to the model.
type FunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type Tool struct {
	FunctionDeclarations []FunctionDeclaration `json:"functionDeclarations"`
}

type FunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type ToolConfig struct {
	FunctionCallingConfig FunctionCallingConfig `json:"function_calling_config"`
}

type FunctionCallingConfig struct {
	Mode                 string   `json:"mode"`
	AllowedFunctionNames []string `json:"allowed_function_names,omitempty"`
}

type GenerationConfig struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"topP,omitempty"`
	MaxOutputTokens  *int     `json:"maxOutputTokens,omitempty"`
	ResponseMimeType string   `json:"responseMimeType,omitempty"`
	ResponseSchema   *Schema  `json:"responseSchema,omitempty"`
}

// streamChunk is one upstream SSE data payload.
type streamChunk struct {
	Candidates []candidate `json:"candidates"`
}

type candidate struct {
	Content      *candidateContent `json:"content"`
	FinishReason string            `json:"finishReason"`
}

type candidateContent struct {
	Parts []candidatePart `json:"parts"`
}

// candidatePart keeps functionCall args raw so they are forwarded to the
// downstream event byte-for-byte.
type candidatePart struct {
	Text         string              `json:"text"`
	FunctionCall *streamFunctionCall `json:"functionCall"`
}

type streamFunctionCall struct {
	Name string          `json:"name"`
	Args json.RawMessage `json:"args"`
}
