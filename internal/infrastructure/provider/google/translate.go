package google

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"go.uber.org/zap"

	"github.com/eztalk/relay/internal/domain/entity"
	"github.com/eztalk/relay/internal/domain/service"
	"github.com/eztalk/relay/internal/infrastructure/provider"
)

const (
	defaultBaseURL = "https://generativelanguage.googleapis.com"
	streamMethod   = ":streamGenerateContent"

	// v1beta streaming has no system role; system turns travel as
	// annotated user blocks.
	systemPrefix = "[System Instruction or Context]\n"
)

func init() {
	provider.RegisterFactory(entity.ProviderGoogle, func(opts provider.Options) provider.Translator {
		return New(opts)
	})
}

// Translator targets the Gemini streamGenerateContent API.
type Translator struct {
	separator string
	logger    *zap.Logger
}

var _ provider.Translator = (*Translator)(nil)

func New(opts provider.Options) *Translator {
	sep := opts.Separator
	if sep == "" {
		sep = service.DefaultSeparator
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Translator{
		separator: sep,
		logger:    logger.With(zap.String("provider", entity.ProviderGoogle)),
	}
}

func (t *Translator) Name() string { return entity.ProviderGoogle }

// BuildRequest translates the canonical request. The credential travels in
// the key query parameter; it is attached only after URL construction
// succeeds so no error path can echo it.
func (t *Translator) BuildRequest(ctx context.Context, req *entity.ChatRequest) (*http.Request, error) {
	body, err := t.BuildPayload(req)
	if err != nil {
		return nil, err
	}

	endpoint := t.baseURL(req) + "/v1beta/models/" + url.PathEscape(req.Model) + streamMethod
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create upstream request: %w", err)
	}
	q := url.Values{}
	q.Set("key", req.APIKey)
	q.Set("alt", "sse")
	httpReq.URL.RawQuery = q.Encode()

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	return httpReq, nil
}

// BuildPayload produces the streamGenerateContent JSON body including the
// reasoning-mode mutations for the resolved mode.
func (t *Translator) BuildPayload(req *entity.ChatRequest) ([]byte, error) {
	mode := service.DecideMode(entity.ProviderGoogle, req.Model, req.ForceReasoning())

	msgs := req.FilteredMessages()
	if mode == service.ModeSeparator {
		msgs = provider.AppendSeparatorDirective(msgs, t.separator)
	}
	if mode == service.ModeJSONSchema {
		msgs = append([]entity.ApiMessage{{Role: entity.RoleSystem, Content: SchemaInstruction}}, msgs...)
	}
	msgs = provider.MergeSystemDirective(msgs, provider.KatexDirective)

	if len(req.CustomExtraBody) > 0 {
		t.logger.Debug("extra_body has no Gemini equivalent, ignoring",
			zap.Int("ignored_keys", len(req.CustomExtraBody)))
	}

	apiReq := &Request{
		Contents:         t.buildContents(msgs),
		Tools:            buildTools(req.Tools),
		ToolConfig:       t.buildToolConfig(req.ToolChoice, entity.DeclaredToolNames(req.Tools)),
		GenerationConfig: buildGenerationConfig(req, mode),
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal upstream request: %w", err)
	}
	if len(req.CustomModelParameters) == 0 {
		return body, nil
	}

	var merged map[string]any
	if err := json.Unmarshal(body, &merged); err != nil {
		return nil, fmt.Errorf("merge custom model parameters: %w", err)
	}
	for k, v := range req.CustomModelParameters {
		merged[k] = v
	}
	out, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("marshal merged request: %w", err)
	}
	return out, nil
}

func (t *Translator) baseURL(req *entity.ChatRequest) string {
	if base := strings.TrimRight(strings.TrimSpace(req.APIAddress), "/"); base != "" {
		return base
	}
	return defaultBaseURL
}

// buildContents maps canonical messages onto Gemini contents. Assistant
// tool calls become functionCall parts with parsed argument objects; tool
// results become user-role functionResponse parts.
func (t *Translator) buildContents(msgs []entity.ApiMessage) []Content {
	contents := make([]Content, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case entity.RoleSystem:
			contents = append(contents, Content{
				Role:  roleUser,
				Parts: []Part{{Text: systemPrefix + m.Content}},
			})
		case entity.RoleUser:
			contents = append(contents, Content{
				Role:  roleUser,
				Parts: []Part{{Text: m.Content}},
			})
		case entity.RoleAssistant:
			parts := make([]Part, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				parts = append(parts, Part{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				parts = append(parts, Part{FunctionCall: &FunctionCall{
					Name: tc.Function.Name,
					Args: t.parseCallArguments(tc.Function.Name, tc.Function.Arguments),
				}})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, Content{Role: roleModel, Parts: parts})
		case entity.RoleTool:
			contents = append(contents, Content{
				Role: roleUser,
				Parts: []Part{{FunctionResponse: &FunctionResponse{
					Name:     m.Name,
					Response: parseToolResponse(m.Content),
				}}},
			})
		default:
			t.logger.Warn("dropping message with unknown role", zap.String("role", m.Role))
		}
	}
	return contents
}

// parseCallArguments decodes the OpenAI-style arguments string into the
// object Gemini requires. Unparsable arguments degrade to an empty object.
func (t *Translator) parseCallArguments(name, raw string) map[string]any {
	args := map[string]any{}
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return args
	}
	if err := json.Unmarshal([]byte(trimmed), &args); err != nil {
		t.logger.Warn("unparsable tool-call arguments, sending empty object",
			zap.String("function", name), zap.Error(err))
		return map[string]any{}
	}
	return args
}

// parseToolResponse decodes a tool result into an object; non-object
// results are wrapped so the payload stays schema-valid.
func parseToolResponse(content string) map[string]any {
	resp := map[string]any{}
	if err := json.Unmarshal([]byte(content), &resp); err != nil {
		return map[string]any{"raw_response": content}
	}
	return resp
}

func buildTools(defs []entity.ToolDefinition) []Tool {
	decls := make([]FunctionDeclaration, 0, len(defs))
	for _, d := range defs {
		if d.Type != "function" || d.Function == nil || d.Function.Name == "" {
			continue
		}
		decls = append(decls, FunctionDeclaration{
			Name:        d.Function.Name,
			Description: d.Function.Description,
			Parameters:  d.Function.Parameters,
		})
	}
	if len(decls) == 0 {
		return nil
	}
	return []Tool{{FunctionDeclarations: decls}}
}

// buildToolConfig maps the loose tool_choice onto function_calling_config.
func (t *Translator) buildToolConfig(choice any, declared []string) *ToolConfig {
	kind, name := entity.ClassifyToolChoice(choice)
	switch kind {
	case entity.ToolChoiceAbsent:
		return nil
	case entity.ToolChoiceNone:
		return toolConfig(modeNone, nil)
	case entity.ToolChoiceAuto:
		return toolConfig(modeAuto, nil)
	case entity.ToolChoiceRequired:
		if len(declared) > 0 {
			return toolConfig(modeAny, nil)
		}
		return toolConfig(modeAuto, nil)
	case entity.ToolChoiceFunction:
		if slices.Contains(declared, name) {
			return toolConfig(modeAny, []string{name})
		}
		t.logger.Warn("tool_choice names an undeclared function, falling back to AUTO",
			zap.String("function", name))
		return toolConfig(modeAuto, nil)
	default:
		t.logger.Warn("unrecognized tool_choice shape, falling back to AUTO")
		return toolConfig(modeAuto, nil)
	}
}

func toolConfig(mode string, allowed []string) *ToolConfig {
	return &ToolConfig{FunctionCallingConfig: FunctionCallingConfig{
		Mode:                 mode,
		AllowedFunctionNames: allowed,
	}}
}

func buildGenerationConfig(req *entity.ChatRequest, mode service.ReasoningMode) *GenerationConfig {
	gc := &GenerationConfig{
		Temperature:     req.Temperature,
		TopP:            req.TopP,
		MaxOutputTokens: req.MaxTokens,
	}
	if mode == service.ModeJSONSchema {
		gc.ResponseMimeType = "application/json"
		gc.ResponseSchema = reasoningSchema()
	}
	if gc.Temperature == nil && gc.TopP == nil && gc.MaxOutputTokens == nil && gc.ResponseMimeType == "" {
		return nil
	}
	return gc
}

func (t *Translator) NewParser(logger *zap.Logger) provider.StreamParser {
	return &Parser{logger: logger}
}
