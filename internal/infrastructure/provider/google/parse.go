package google

import (
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eztalk/relay/internal/domain/service"
	"github.com/eztalk/relay/internal/infrastructure/provider"
)

// Gemini emits this placeholder before a real finish reason is known; it
// carries no signal and is never forwarded.
const finishUnspecified = "FINISH_REASON_UNSPECIFIED"

// Parser reads the Gemini alt=sse stream: "data: {...}" lines with no done
// sentinel; the terminal chunk carries candidates[].finishReason.
type Parser struct {
	logger *zap.Logger
}

var _ provider.StreamParser = (*Parser)(nil)

// ParseLine extracts the deltas carried by one stream line. Candidate part
// texts are concatenated into one block; each functionCall part gets a
// synthesized downstream id.
func (p *Parser) ParseLine(line string) []service.StreamDelta {
	payload, ok := provider.DataPayload(line)
	if !ok {
		return nil
	}

	var chunk streamChunk
	if err := sonic.UnmarshalString(payload, &chunk); err != nil {
		p.logger.Warn("dropping malformed upstream chunk", zap.Error(err))
		return nil
	}

	deltas := make([]service.StreamDelta, 0, len(chunk.Candidates))
	for _, cand := range chunk.Candidates {
		var d service.StreamDelta
		if cand.Content != nil {
			var text strings.Builder
			for _, part := range cand.Content.Parts {
				if part.Text != "" {
					text.WriteString(part.Text)
				}
				if part.FunctionCall != nil {
					d.FunctionCalls = append(d.FunctionCalls, service.FunctionCall{
						ID:   newFunctionCallID(),
						Name: part.FunctionCall.Name,
						Args: part.FunctionCall.Args,
					})
				}
			}
			d.Content = text.String()
		}
		if cand.FinishReason != "" && cand.FinishReason != finishUnspecified {
			d.FinishReason = cand.FinishReason
		}
		if d.Content == "" && len(d.FunctionCalls) == 0 && d.FinishReason == "" {
			continue
		}
		deltas = append(deltas, d)
	}
	if len(deltas) == 0 {
		return nil
	}
	return deltas
}

// newFunctionCallID synthesizes the stable downstream id for one Gemini
// function call. The first eight uuid characters are hex.
func newFunctionCallID() string {
	return "gemini_fc_" + uuid.NewString()[:8]
}
