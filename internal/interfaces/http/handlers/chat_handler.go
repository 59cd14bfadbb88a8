package handlers

import (
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/eztalk/relay/internal/application/usecase"
	"github.com/eztalk/relay/internal/domain/entity"
	"github.com/eztalk/relay/pkg/apperr"
)

// ChatHandler serves POST /chat: one canonical request in, a stream of
// normalized events out.
type ChatHandler struct {
	chat   *usecase.ChatStream
	logger *zap.Logger
}

func NewChatHandler(chat *usecase.ChatStream, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{
		chat:   chat,
		logger: logger.With(zap.String("handler", "chat")),
	}
}

// Chat handles POST /chat. Failures before the first byte use the JSON error
// envelope; once streaming starts, every failure is an in-stream event.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req entity.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if err := h.chat.Validate(&req); err != nil {
		writeError(c, statusOf(err), apperr.MessageOf(err))
		return
	}

	// The body is line-delimited JSON, one event per LF, not SSE framing,
	// despite the content type.
	c.Writer.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Writer.WriteHeader(http.StatusOK)

	flusher, _ := c.Writer.(http.Flusher)
	id, events := h.chat.Run(c.Request.Context(), &req)

	for event := range events {
		line, err := sonic.Marshal(event)
		if err != nil {
			h.logger.Error("event marshal failed",
				zap.String("request_id", id),
				zap.String("event_type", string(event.Type)),
				zap.Error(err),
			)
			continue
		}
		line = append(line, '\n')
		if _, err := c.Writer.Write(line); err != nil {
			h.logger.Info("downstream write failed, stopping",
				zap.String("request_id", id),
				zap.Error(err),
			)
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// writeError sends the pre-stream JSON error envelope.
func writeError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": gin.H{
		"message": message,
		"code":    status,
		"type":    "proxy_error",
	}})
}

// statusOf maps an application error onto its pre-stream HTTP status.
func statusOf(err error) int {
	switch apperr.CodeOf(err) {
	case apperr.CodeInvalidInput, apperr.CodeProviderUnsupported:
		return http.StatusBadRequest
	case apperr.CodeClientUnready:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
