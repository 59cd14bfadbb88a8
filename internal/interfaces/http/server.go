// Package http is the relay's downstream surface: one streaming chat
// endpoint and a health probe behind wildcard CORS.
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/eztalk/relay/internal/application/usecase"
	"github.com/eztalk/relay/internal/interfaces/http/handlers"
)

// Server wraps the gin engine and its http.Server.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// Config carries the listen address and the gin mode switch.
type Config struct {
	Addr  string
	Debug bool
}

// NewServer builds the router and handlers around the chat orchestrator.
func NewServer(cfg Config, chat *usecase.ChatStream, logger *zap.Logger) *Server {
	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(logger))
	router.Use(cors.New(corsConfig()))

	chatHandler := handlers.NewChatHandler(chat, logger)
	healthHandler := handlers.NewHealthHandler(chat.Ready, logger)

	router.POST("/chat", chatHandler.Chat)
	router.GET("/health", healthHandler.Health)

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: router,
	}

	return &Server{
		server: server,
		logger: logger,
	}
}

// Start begins serving in the background. Listen errors after startup are
// logged, not returned; Stop is the shutdown path.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server", zap.String("address", s.server.Addr))

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop drains in-flight requests until ctx expires.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// corsConfig allows every origin while still echoing the caller's Origin
// header, so credentialed cross-origin requests work the way the wildcard
// policy promises. Headers are enumerated because browsers refuse a literal
// "*" once credentials are allowed.
func corsConfig() cors.Config {
	return cors.Config{
		AllowOriginFunc:  func(string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", "Cache-Control"},
		ExposeHeaders:    []string{"*"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
}

// requestLogger logs one line per request. Streaming responses log on
// completion, so latency covers the whole stream.
func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}
