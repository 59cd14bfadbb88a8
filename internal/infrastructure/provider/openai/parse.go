package openai

import (
	"encoding/json"
	"strings"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/eztalk/relay/internal/domain/service"
	"github.com/eztalk/relay/internal/infrastructure/provider"
)

const doneMarker = "[DONE]"

// Parser reads the OpenAI streaming format: "data: {...}" lines closed by a
// "data: [DONE]" sentinel.
type Parser struct {
	logger *zap.Logger
}

var _ provider.StreamParser = (*Parser)(nil)

// ParseLine extracts the deltas carried by one stream line. Blank lines,
// comments, the done sentinel and malformed payloads yield nothing; malformed
// payloads are logged and skipped so one bad chunk cannot kill the stream.
func (p *Parser) ParseLine(line string) []service.StreamDelta {
	payload, ok := provider.DataPayload(line)
	if !ok || payload == doneMarker {
		return nil
	}

	var chunk streamChunk
	if err := sonic.UnmarshalString(payload, &chunk); err != nil {
		p.logger.Warn("dropping malformed upstream chunk", zap.Error(err))
		return nil
	}

	deltas := make([]service.StreamDelta, 0, len(chunk.Choices))
	for _, choice := range chunk.Choices {
		d := service.StreamDelta{
			Reasoning: choice.Delta.ReasoningContent,
			Content:   choice.Delta.Content,
			ToolCalls: normalizeRawArray(choice.Delta.ToolCalls),
		}
		// Some backends put finish_reason inside the delta instead of on
		// the choice; the inner one wins when both are set.
		if choice.Delta.FinishReason != "" {
			d.FinishReason = choice.Delta.FinishReason
		} else {
			d.FinishReason = choice.FinishReason
		}
		if d.Reasoning == "" && d.Content == "" && len(d.ToolCalls) == 0 && d.FinishReason == "" {
			continue
		}
		deltas = append(deltas, d)
	}
	if len(deltas) == 0 {
		return nil
	}
	return deltas
}

// normalizeRawArray maps JSON null and empty arrays to an absent value so
// they are not mistaken for tool-call fragments.
func normalizeRawArray(raw json.RawMessage) json.RawMessage {
	switch strings.TrimSpace(string(raw)) {
	case "", "null", "[]":
		return nil
	}
	return raw
}
