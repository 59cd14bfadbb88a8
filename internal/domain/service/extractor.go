package service

import (
	"encoding/json"
	"strings"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/eztalk/relay/internal/domain/entity"
)

// DefaultSeparator is the sentinel the separator mode instructs the model
// to place between its reasoning and its final answer.
const DefaultSeparator = "--- FINAL ANSWER ---"

// ReasoningMode selects how the extractor splits reasoning from the final
// answer.
type ReasoningMode int

const (
	// ModeNone passes provider deltas through with no splitting beyond
	// native reasoning_content handling.
	ModeNone ReasoningMode = iota
	// ModeJSONSchema expects the whole stream to form one
	// {"reasoning":..., "answer":...} JSON document (Gemini responseSchema).
	ModeJSONSchema
	// ModeSeparator expects free text with a sentinel line between
	// reasoning and answer.
	ModeSeparator
)

// DecideMode picks the guided-reasoning branch for a request. JSON-schema
// mode requires a Gemini pro/thinking model and wins over the separator
// when both qualify, since double-mutating the prompt would corrupt the
// schema contract. The separator fires only on an explicit force=true.
func DecideMode(provider, model string, force *bool) ReasoningMode {
	if provider == entity.ProviderGoogle && IsGeminiThinkingModel(model) && (force == nil || *force) {
		return ModeJSONSchema
	}
	if force != nil && *force {
		return ModeSeparator
	}
	return ModeNone
}

// IsGeminiThinkingModel reports whether the model name denotes a Gemini
// pro or thinking variant.
func IsGeminiThinkingModel(model string) bool {
	m := strings.ToLower(model)
	if !strings.Contains(m, "gemini") {
		return false
	}
	return strings.Contains(m, "pro") || strings.Contains(m, "thinking")
}

// StreamDelta is the provider-neutral unit a stream parser hands the
// extractor for one upstream chunk.
type StreamDelta struct {
	// Reasoning carries a native reasoning_content fragment.
	Reasoning string
	// Content carries a visible text fragment.
	Content string
	// ToolCalls carries an OpenAI tool_calls delta array, verbatim.
	ToolCalls json.RawMessage
	// FunctionCalls carries parsed Gemini functionCall parts.
	FunctionCalls []FunctionCall
	// FinishReason, when non-empty, terminates the turn.
	FinishReason string
}

// FunctionCall is a Gemini functionCall part with its synthesized id.
type FunctionCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// Stream phases. Once the answer starts there is no way back into the
// reasoning phase; late reasoning fragments are dropped.
type extractState string

const (
	statePre       extractState = "pre"
	stateReasoning extractState = "reasoning"
	stateContent   extractState = "content"
	stateTerminal  extractState = "terminal"
)

// reasoningEnvelope is the JSON document Gemini streams in schema mode.
type reasoningEnvelope struct {
	Reasoning string `json:"reasoning"`
	Answer    string `json:"answer"`
}

// Extractor turns parser deltas into normalized events, enforcing the
// ordering contract: reasoning events first, at most one reasoning_finish,
// then content/tool events, then exactly one finish.
type Extractor struct {
	mode      ReasoningMode
	separator string
	logger    *zap.Logger

	state extractState

	// reasoningRaw accumulates native reasoning_content fragments;
	// streamRaw accumulates visible text (the separator buffer or the
	// JSON envelope buffer, depending on mode; plain content otherwise).
	reasoningRaw strings.Builder
	streamRaw    strings.Builder

	reasoning *DiffChannel
	content   *DiffChannel

	sepIdx         int  // byte offset of the separator in streamRaw
	sepFound       bool // separator observed
	envelopeParsed bool // envelope decoded at least once
}

// ExtractorOption configures an Extractor.
type ExtractorOption func(*Extractor)

// WithSeparator overrides the sentinel used by ModeSeparator.
func WithSeparator(sep string) ExtractorOption {
	return func(e *Extractor) {
		if sep != "" {
			e.separator = sep
		}
	}
}

// WithPostProcessor applies fn to every emitted text suffix (e.g.
// LatexToUnicode). It runs after the diff is taken and never feeds back
// into the accumulators.
func WithPostProcessor(fn func(string) string) ExtractorOption {
	return func(e *Extractor) {
		e.reasoning = NewDiffChannel(fn)
		e.content = NewDiffChannel(fn)
	}
}

// NewExtractor creates an extractor for one response stream.
func NewExtractor(mode ReasoningMode, logger *zap.Logger, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		mode:      mode,
		separator: DefaultSeparator,
		logger:    logger,
		state:     statePre,
		reasoning: NewDiffChannel(nil),
		content:   NewDiffChannel(nil),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Finished reports whether the terminal finish has been emitted.
func (e *Extractor) Finished() bool {
	return e.state == stateTerminal
}

// Feed processes one parser delta and returns the normalized events it
// produces, possibly none.
func (e *Extractor) Feed(d StreamDelta) []entity.Event {
	if e.state == stateTerminal {
		e.logger.Debug("delta after terminal finish dropped")
		return nil
	}

	var events []entity.Event

	if d.Reasoning != "" {
		events = append(events, e.feedReasoning(d.Reasoning)...)
	}

	if d.Content != "" {
		switch e.mode {
		case ModeJSONSchema:
			events = append(events, e.feedEnvelope(d.Content)...)
		case ModeSeparator:
			events = append(events, e.feedSeparated(d.Content)...)
		default:
			events = append(events, e.feedContent(d.Content)...)
		}
	}

	if len(d.ToolCalls) > 0 {
		events = append(events, e.leaveReasoning()...)
		events = append(events, entity.NewToolCallsChunkEvent(d.ToolCalls))
		e.state = stateContent
	}

	for _, fc := range d.FunctionCalls {
		events = append(events, e.leaveReasoning()...)
		events = append(events, entity.NewGoogleFunctionCallEvent(fc.ID, fc.Name, fc.Args))
		e.state = stateContent
	}

	if d.FinishReason != "" {
		events = append(events, e.finish(d.FinishReason)...)
	}

	return events
}

// Close flushes buffered text and emits the terminal finish. The
// orchestrator calls it when the upstream stream ends without a parser-level
// finish reason. Returns nil if the stream already finished.
func (e *Extractor) Close(reason string) []entity.Event {
	if e.state == stateTerminal {
		return nil
	}
	return e.finish(reason)
}

// feedReasoning routes a native reasoning_content fragment.
func (e *Extractor) feedReasoning(text string) []entity.Event {
	if e.state == stateContent {
		e.logger.Warn("reasoning delta after answer started, dropping",
			zap.Int("len", len(text)))
		return nil
	}
	if e.mode != ModeNone && e.streamRaw.Len() > 0 {
		// The guided buffer already owns the reasoning channel; mixing a
		// second raw source would corrupt the diff accounting.
		e.logger.Warn("reasoning delta alongside guided-reasoning text, dropping",
			zap.Int("len", len(text)))
		return nil
	}
	e.reasoningRaw.WriteString(text)
	suffix := e.reasoning.Advance(e.reasoningRaw.String())
	if suffix == "" {
		return nil
	}
	e.state = stateReasoning
	return []entity.Event{entity.NewReasoningEvent(suffix)}
}

// feedContent routes a plain content fragment (ModeNone).
func (e *Extractor) feedContent(text string) []entity.Event {
	e.streamRaw.WriteString(text)
	suffix := e.content.Advance(e.streamRaw.String())
	if suffix == "" {
		return nil
	}
	events := e.leaveReasoning()
	e.state = stateContent
	return append(events, entity.NewContentEvent(suffix))
}

// feedEnvelope accumulates schema-mode text and re-parses the whole buffer
// after each delta. Partial JSON is expected mid-stream and stays silent.
func (e *Extractor) feedEnvelope(text string) []entity.Event {
	e.streamRaw.WriteString(text)

	var env reasoningEnvelope
	if err := sonic.UnmarshalString(e.streamRaw.String(), &env); err != nil {
		return nil
	}
	e.envelopeParsed = true

	var events []entity.Event
	if e.state == stateContent {
		if len(env.Reasoning) > 0 && e.reasoning.Yielded() < len(env.Reasoning) {
			e.logger.Debug("reasoning field grew after answer started, dropping growth")
		}
	} else if suffix := e.reasoning.Advance(e.reasoningRaw.String() + env.Reasoning); suffix != "" {
		e.state = stateReasoning
		events = append(events, entity.NewReasoningEvent(suffix))
	}

	if env.Answer != "" {
		events = append(events, e.leaveReasoning()...)
		if suffix := e.content.Advance(env.Answer); suffix != "" {
			events = append(events, entity.NewContentEvent(suffix))
		}
		e.state = stateContent
	}
	return events
}

// feedSeparated accumulates separator-mode text. Before the sentinel is
// seen everything is reasoning, minus a held-back tail that could still
// turn out to be the start of the sentinel. After the sentinel everything
// is content with further sentinel occurrences elided.
func (e *Extractor) feedSeparated(text string) []entity.Event {
	e.streamRaw.WriteString(text)
	buf := e.streamRaw.String()

	if !e.sepFound {
		idx := strings.Index(buf, e.separator)
		if idx < 0 {
			safe := len(buf) - separatorHoldback(buf, e.separator)
			suffix := e.reasoning.Advance(e.reasoningRaw.String() + buf[:safe])
			if suffix == "" {
				return nil
			}
			e.state = stateReasoning
			return []entity.Event{entity.NewReasoningEvent(suffix)}
		}

		e.sepFound = true
		e.sepIdx = idx

		var events []entity.Event
		if suffix := e.reasoning.Advance(e.reasoningRaw.String() + buf[:idx]); suffix != "" {
			e.state = stateReasoning
			events = append(events, entity.NewReasoningEvent(suffix))
		}
		events = append(events, e.leaveReasoning()...)
		if suffix := e.content.Advance(e.elidedTail(buf)); suffix != "" {
			events = append(events, entity.NewContentEvent(suffix))
		}
		e.state = stateContent
		return events
	}

	suffix := e.content.Advance(e.elidedTail(buf))
	if suffix == "" {
		return nil
	}
	return []entity.Event{entity.NewContentEvent(suffix)}
}

// elidedTail returns the answer region of the separator buffer with every
// further separator occurrence removed and a possible trailing partial
// separator held back.
func (e *Extractor) elidedTail(buf string) string {
	tail := strings.ReplaceAll(buf[e.sepIdx+len(e.separator):], e.separator, "")
	return tail[:len(tail)-separatorHoldback(tail, e.separator)]
}

// finish flushes mode-specific leftovers, closes the reasoning phase and
// emits the terminal finish.
func (e *Extractor) finish(reason string) []entity.Event {
	var events []entity.Event

	switch e.mode {
	case ModeJSONSchema:
		if !e.envelopeParsed && e.streamRaw.Len() > 0 {
			// The buffer never became valid JSON: ship it once as plain
			// content rather than swallowing the model's output.
			e.logger.Warn("schema-mode buffer never parsed, emitting raw text",
				zap.Int("len", e.streamRaw.Len()))
			events = append(events, e.leaveReasoning()...)
			if suffix := e.content.Advance(e.streamRaw.String()); suffix != "" {
				events = append(events, entity.NewContentEvent(suffix))
			}
			e.state = stateContent
		}
	case ModeSeparator:
		if !e.sepFound && e.streamRaw.Len() > 0 {
			// No sentinel in the whole stream: everything, including any
			// held-back tail, is reasoning.
			if suffix := e.reasoning.Advance(e.reasoningRaw.String() + e.streamRaw.String()); suffix != "" {
				e.state = stateReasoning
				events = append(events, entity.NewReasoningEvent(suffix))
			}
		} else if e.sepFound {
			// Release a held-back partial that never completed.
			tail := strings.ReplaceAll(e.streamRaw.String()[e.sepIdx+len(e.separator):], e.separator, "")
			if suffix := e.content.Advance(tail); suffix != "" {
				events = append(events, entity.NewContentEvent(suffix))
			}
		}
	}

	events = append(events, e.leaveReasoning()...)
	events = append(events, entity.NewFinishEvent(reason))
	e.state = stateTerminal
	return events
}

// leaveReasoning emits the single reasoning_finish boundary when the stream
// is leaving the reasoning phase.
func (e *Extractor) leaveReasoning() []entity.Event {
	if e.state != stateReasoning {
		return nil
	}
	e.state = stateContent
	return []entity.Event{entity.NewReasoningFinishEvent()}
}

// separatorHoldback returns the length of the longest strict prefix of sep
// that s ends with, i.e. how many trailing bytes of s might still complete
// into the separator and must not be emitted yet.
func separatorHoldback(s, sep string) int {
	max := len(sep) - 1
	if max > len(s) {
		max = len(s)
	}
	for k := max; k >= 1; k-- {
		if strings.HasSuffix(s, sep[:k]) {
			return k
		}
	}
	return 0
}
