// Package provider defines the translator contract between the canonical
// chat request and each upstream vendor API, plus the registry the
// orchestrator resolves providers through.
package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/eztalk/relay/internal/domain/entity"
	"github.com/eztalk/relay/internal/domain/service"
	"github.com/eztalk/relay/pkg/apperr"
)

// Translator turns a canonical request into a vendor HTTP request and
// supplies the parser for that vendor's stream format.
type Translator interface {
	// Name returns the provider identifier ("openai", "google").
	Name() string

	// BuildRequest translates req into a ready-to-send upstream request,
	// including reasoning-mode prompt mutations. It never logs the api_key.
	BuildRequest(ctx context.Context, req *entity.ChatRequest) (*http.Request, error)

	// NewParser returns a fresh line parser for one stream. The logger is
	// request-scoped so parse warnings carry the request id.
	NewParser(logger *zap.Logger) StreamParser
}

// StreamParser consumes upstream lines one at a time and yields the neutral
// deltas they carry. Lines that carry nothing (blanks, comments, [DONE])
// and malformed payloads yield no deltas; malformed payloads are logged and
// dropped, never fatal.
type StreamParser interface {
	ParseLine(line string) []service.StreamDelta
}

// Options carries shared construction inputs for translator factories.
type Options struct {
	// DefaultOpenAIBase is used when the request carries no api_address.
	DefaultOpenAIBase string
	// Separator is the guided-reasoning sentinel for ModeSeparator.
	Separator string
	Logger    *zap.Logger
}

// Factory builds a Translator. Providers register themselves via init() in
// their own package; adding a vendor means implementing Translator and
// calling RegisterFactory.
type Factory func(opts Options) Translator

var (
	factoryMu sync.RWMutex
	factories = map[string]Factory{}
)

// RegisterFactory registers a translator factory under the provider name.
func RegisterFactory(name string, factory Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[name] = factory
}

// CreateTranslator resolves a provider name to a constructed translator.
func CreateTranslator(name string, opts Options) (Translator, error) {
	factoryMu.RLock()
	factory, ok := factories[name]
	factoryMu.RUnlock()

	if !ok {
		return nil, apperr.NewProviderUnsupported(name)
	}
	return factory(opts), nil
}

// KatexDirective is merged into the outgoing system message so models emit
// $...$ and $$...$$ delimited math. The relay forwards math untouched.
const KatexDirective = "When writing mathematical expressions, use KaTeX-compatible delimiters: " +
	"$...$ for inline math and $$...$$ for display math. " +
	"Do not use \\(...\\) or \\[...\\] delimiters."

// MergeSystemDirective returns a copy of msgs with directive merged into the
// system message: appended when the list already leads with one, otherwise
// prepended as a new system message.
func MergeSystemDirective(msgs []entity.ApiMessage, directive string) []entity.ApiMessage {
	if len(msgs) > 0 && msgs[0].Role == entity.RoleSystem {
		out := make([]entity.ApiMessage, len(msgs))
		copy(out, msgs)
		out[0].Content = out[0].Content + "\n\n" + directive
		return out
	}
	out := make([]entity.ApiMessage, 0, len(msgs)+1)
	out = append(out, entity.ApiMessage{Role: entity.RoleSystem, Content: directive})
	return append(out, msgs...)
}

// AppendSeparatorDirective returns a copy of msgs with the separator-mode
// instruction appended to the last non-empty user message. Without a user
// message there is nothing to instruct and msgs is returned unchanged.
func AppendSeparatorDirective(msgs []entity.ApiMessage, separator string) []entity.ApiMessage {
	i := entity.LastUserIndex(msgs)
	if i < 0 {
		return msgs
	}
	out := make([]entity.ApiMessage, len(msgs))
	copy(out, msgs)
	out[i].Content = out[i].Content + "\n\n" + SeparatorDirective(separator)
	return out
}

// SeparatorDirective is the instruction that teaches the model the sentinel
// protocol the guided-reasoning extractor parses.
func SeparatorDirective(separator string) string {
	return fmt.Sprintf(
		"Think through the problem step by step first and show that reasoning. "+
			"When the reasoning is complete, output a line containing exactly:\n%s\n"+
			"and then give only the final answer after that line.", separator)
}

// DataPayload extracts the payload of an SSE data line. ok is false for
// blank lines, comments, other SSE fields and empty payloads.
func DataPayload(line string) (string, bool) {
	if !strings.HasPrefix(line, "data:") {
		return "", false
	}
	payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
	if payload == "" {
		return "", false
	}
	return payload, true
}
