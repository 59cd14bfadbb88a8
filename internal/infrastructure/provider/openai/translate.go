package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/eztalk/relay/internal/domain/entity"
	"github.com/eztalk/relay/internal/domain/service"
	"github.com/eztalk/relay/internal/infrastructure/provider"
)

const completionsPath = "/v1/chat/completions"

func init() {
	provider.RegisterFactory(entity.ProviderOpenAI, func(opts provider.Options) provider.Translator {
		return New(opts)
	})
}

// Translator targets OpenAI-compatible chat-completions endpoints: OpenAI
// itself plus the DeepSeek/Qwen/vLLM family that mirrors its wire format.
type Translator struct {
	defaultBase string
	separator   string
	logger      *zap.Logger
}

var _ provider.Translator = (*Translator)(nil)

func New(opts provider.Options) *Translator {
	base := strings.TrimRight(strings.TrimSpace(opts.DefaultOpenAIBase), "/")
	if base == "" {
		base = "https://api.openai.com"
	}
	sep := opts.Separator
	if sep == "" {
		sep = service.DefaultSeparator
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Translator{
		defaultBase: base,
		separator:   sep,
		logger:      logger.With(zap.String("provider", entity.ProviderOpenAI)),
	}
}

func (t *Translator) Name() string { return entity.ProviderOpenAI }

// BuildRequest translates the canonical request into an upstream HTTP
// request. The Authorization header carries the caller's credential and must
// never be copied into logs.
func (t *Translator) BuildRequest(ctx context.Context, req *entity.ChatRequest) (*http.Request, error) {
	body, err := t.BuildPayload(req)
	if err != nil {
		return nil, err
	}

	url := t.baseURL(req) + completionsPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create upstream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+req.APIKey)
	return httpReq, nil
}

// BuildPayload produces the upstream JSON body. Sampling parameters are
// forwarded only when the caller supplied them.
func (t *Translator) BuildPayload(req *entity.ChatRequest) ([]byte, error) {
	apiReq := &Request{
		Model:       req.Model,
		Messages:    t.prepareMessages(req),
		Stream:      true,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
		Tools:       req.Tools,
		ToolChoice:  req.ToolChoice,
		ExtraBody:   req.CustomExtraBody,
	}

	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal upstream request: %w", err)
	}
	if len(req.CustomModelParameters) == 0 {
		return body, nil
	}

	// Caller-requested top-level overrides win over every translated field.
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
	return t.defaultBase
}

// prepareMessages filters empty turns, appends the step-by-step directive to
// the last user message when separator mode is active, then merges the math
// formatting directive into the system message.
func (t *Translator) prepareMessages(req *entity.ChatRequest) []entity.ApiMessage {
	msgs := req.FilteredMessages()
	if service.DecideMode(entity.ProviderOpenAI, req.Model, req.ForceReasoning()) == service.ModeSeparator {
		msgs = provider.AppendSeparatorDirective(msgs, t.separator)
	}
	return provider.MergeSystemDirective(msgs, provider.KatexDirective)
}

func (t *Translator) NewParser(logger *zap.Logger) provider.StreamParser {
	return &Parser{logger: logger}
}
