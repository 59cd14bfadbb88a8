// Package application wires the relay's process-lifetime pieces together:
// configuration, the shared upstream client, the search collaborator, the
// chat orchestrator and the HTTP surface.
package application

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/eztalk/relay/internal/application/usecase"
	"github.com/eztalk/relay/internal/infrastructure/config"
	_ "github.com/eztalk/relay/internal/infrastructure/provider/google" // register google translator factory
	_ "github.com/eztalk/relay/internal/infrastructure/provider/openai" // register openai translator factory
	"github.com/eztalk/relay/internal/infrastructure/search"
	"github.com/eztalk/relay/internal/infrastructure/upstream"
	httpserver "github.com/eztalk/relay/internal/interfaces/http"
)

// App is the dependency container for one relay process.
type App struct {
	config *config.Config
	logger *zap.Logger

	client     *upstream.Client
	search     *search.Service
	chatStream *usecase.ChatStream
	httpServer *httpserver.Server
}

// NewApp builds the full container. A failed upstream client or search
// initialization degrades the process (503 on /chat, search disabled)
// instead of refusing to boot; only impossible wiring is fatal.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	app := &App{
		config: cfg,
		logger: logger,
	}

	app.initUpstream()
	if err := app.initSearch(); err != nil {
		return nil, err
	}
	app.initUseCases()
	app.initInterfaces()

	return app, nil
}

func (app *App) initUpstream() {
	client, err := upstream.NewClient(app.config.Upstream, app.logger)
	if err != nil {
		app.logger.Error("upstream client init failed, /chat will return 503", zap.Error(err))
		return
	}
	app.client = client
}

func (app *App) initSearch() error {
	svc, err := search.New(context.Background(), app.config.Search, app.logger)
	if err != nil {
		app.logger.Warn("web search init failed, feature disabled", zap.Error(err))
		svc, err = search.New(context.Background(), config.SearchConfig{}, app.logger)
		if err != nil {
			return err
		}
	}
	app.search = svc
	return nil
}

func (app *App) initUseCases() {
	app.chatStream = usecase.NewChatStream(app.config, app.client, app.search, app.logger)
}

func (app *App) initInterfaces() {
	app.httpServer = httpserver.NewServer(httpserver.Config{
		Addr:  app.config.Server.Addr(),
		Debug: strings.EqualFold(app.config.Log.Level, "debug"),
	}, app.chatStream, app.logger)
}

// Start brings the HTTP surface up. It returns once the listener goroutine
// is launched.
func (app *App) Start(ctx context.Context) error {
	app.logger.Info("Starting relay",
		zap.String("address", app.config.Server.Addr()),
		zap.Bool("upstream_ready", app.client != nil),
		zap.Bool("web_search", app.search.Enabled()),
	)
	return app.httpServer.Start(ctx)
}

// Stop drains the HTTP server and releases pooled upstream connections.
func (app *App) Stop(ctx context.Context) error {
	app.logger.Info("Stopping relay")

	if err := app.httpServer.Stop(ctx); err != nil {
		app.logger.Error("HTTP server shutdown failed", zap.Error(err))
		return err
	}
	if app.client != nil {
		app.client.CloseIdleConnections()
	}

	app.logger.Info("Relay stopped")
	return nil
}

// ChatStream exposes the orchestrator, mainly for tests.
func (app *App) ChatStream() *usecase.ChatStream {
	return app.chatStream
}
