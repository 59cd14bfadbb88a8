package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HealthHandler reports liveness plus upstream client readiness.
type HealthHandler struct {
	ready  func() bool
	logger *zap.Logger
}

// NewHealthHandler creates the handler. ready reports whether the shared
// upstream client initialized.
func NewHealthHandler(ready func() bool, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		ready:  ready,
		logger: logger.With(zap.String("handler", "health")),
	}
}

// Health handles GET /health. The response is always 200; status degrades to
// "warning" when the upstream client is missing, which makes /chat return 503.
func (h *HealthHandler) Health(c *gin.Context) {
	if h.ready != nil && h.ready() {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "detail": "Service is running"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "warning", "detail": "HTTP client not initialized"})
}
