package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eztalk/relay/internal/domain/entity"
	"github.com/eztalk/relay/internal/domain/service"
	"github.com/eztalk/relay/internal/infrastructure/config"
	"github.com/eztalk/relay/internal/infrastructure/provider"
	"github.com/eztalk/relay/internal/infrastructure/search"
	"github.com/eztalk/relay/internal/infrastructure/sse"
	"github.com/eztalk/relay/internal/infrastructure/upstream"
	"github.com/eztalk/relay/pkg/apperr"
	"github.com/eztalk/relay/pkg/safego"
)

const (
	// eventBuffer smooths bursts between the driver and the HTTP writer
	// without letting the driver run far ahead of a slow consumer.
	eventBuffer = 32

	// readChunkSize is the upstream read granularity. Chunk boundaries are
	// irrelevant for correctness; the framer reassembles lines.
	readChunkSize = 8 * 1024
)

// Searcher is the web-search collaborator surface the orchestrator needs.
// *search.Service satisfies it. A service without credentials returns no
// results; the stage events still fire because the caller asked for search.
type Searcher interface {
	Search(ctx context.Context, query string) []entity.SearchResult
}

// ChatStream drives one /chat request end to end: optional web search,
// payload translation, the upstream stream, and the normalized event
// sequence. It guarantees exactly one terminal finish event per stream and
// goes silent on caller cancellation.
type ChatStream struct {
	cfg    *config.Config
	client *upstream.Client
	search Searcher
	logger *zap.Logger
}

// NewChatStream creates the orchestrator. client may be nil when startup
// could not build it; Validate then rejects requests with CLIENT_UNREADY.
func NewChatStream(cfg *config.Config, client *upstream.Client, searcher Searcher, logger *zap.Logger) *ChatStream {
	return &ChatStream{
		cfg:    cfg,
		client: client,
		search: searcher,
		logger: logger,
	}
}

// Ready reports whether the shared upstream client initialized.
func (uc *ChatStream) Ready() bool {
	return uc.client != nil
}

// Validate rejects requests that must fail before any stream bytes are
// written. Everything past this point surfaces as in-stream events.
func (uc *ChatStream) Validate(req *entity.ChatRequest) error {
	if uc.client == nil {
		return apperr.NewClientUnready()
	}
	if req.Provider != entity.ProviderOpenAI && req.Provider != entity.ProviderGoogle {
		return apperr.NewProviderUnsupported(req.Provider)
	}
	if len(req.FilteredMessages()) == 0 {
		return apperr.NewInvalidInput("messages must contain at least one entry with content or tool_calls")
	}
	return nil
}

// Run starts the stream driver and returns the request id and the event
// channel. The channel is closed when the stream ends for any reason; the
// final event is the terminal finish unless the caller cancelled.
func (uc *ChatStream) Run(ctx context.Context, req *entity.ChatRequest) (string, <-chan entity.Event) {
	id := newRequestID()
	logger := uc.logger.With(zap.String("request_id", id))
	events := make(chan entity.Event, eventBuffer)

	logger.Info("chat stream started",
		zap.String("provider", req.Provider),
		zap.String("model", req.Model),
		zap.Int("messages", len(req.Messages)),
		zap.Bool("web_search", req.UseWebSearch),
	)

	safego.Go(logger, "chat-stream", func() {
		defer close(events)
		start := time.Now()
		em := &emitter{ctx: ctx, ch: events}
		uc.drive(ctx, req, logger, em)
		logger.Info("chat stream closed",
			zap.Int("events", em.sent),
			zap.Bool("cancelled", em.gone),
			zap.Duration("elapsed", time.Since(start)),
		)
	})

	return id, events
}

func (uc *ChatStream) drive(ctx context.Context, req *entity.ChatRequest, logger *zap.Logger, em *emitter) {
	msgs := req.FilteredMessages()

	searchPerformed := false
	if req.UseWebSearch && uc.search != nil {
		msgs, searchPerformed = uc.searchStage(ctx, msgs, logger, em)
		if em.gone {
			return
		}
	}

	upstreamReq := *req
	upstreamReq.Messages = msgs

	translator, err := provider.CreateTranslator(req.Provider, provider.Options{
		DefaultOpenAIBase: uc.cfg.Upstream.DefaultOpenAIBase,
		Separator:         uc.cfg.Stream.Separator,
		Logger:            logger,
	})
	if err != nil {
		logger.Error("translator resolution failed", zap.Error(err))
		em.fail(apperr.MessageOf(err), 0, entity.FinishInternalError)
		return
	}

	httpReq, err := translator.BuildRequest(ctx, &upstreamReq)
	if err != nil {
		logger.Error("upstream request build failed", zap.Error(err))
		em.fail("Internal server error: failed to build upstream request", 0, entity.FinishInternalError)
		return
	}

	resp, release, err := uc.client.Stream(ctx, httpReq)
	if err != nil {
		uc.emitTransportFailure(err, false, logger, em)
		return
	}
	defer release()
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body := upstream.ReadErrorBody(resp)
		message := upstream.ExtractErrorMessage(resp.StatusCode, body)
		logger.Warn("upstream rejected request",
			zap.Int("status", resp.StatusCode),
			zap.String("message", message),
		)
		em.send(entity.NewErrorEvent(message, resp.StatusCode))
		em.send(entity.NewFinishEvent(entity.FinishUpstreamError))
		return
	}

	// Context cancellation does not interrupt an in-flight body read, so a
	// watcher force-closes the body when the caller goes away.
	streamDone := make(chan struct{})
	defer close(streamDone)
	safego.Go(logger, "body-watcher", func() {
		select {
		case <-ctx.Done():
			resp.Body.Close()
		case <-streamDone:
		}
	})

	uc.pump(ctx, resp.Body, translator, req, searchPerformed, logger, em)
}

// searchStage runs the pre-flight web search: stage events, the search call
// itself, and context injection before the last user message. It returns the
// possibly extended message list and whether the stage ran at all. A request
// without a usable query skips the stage entirely, stage events included.
func (uc *ChatStream) searchStage(ctx context.Context, msgs []entity.ApiMessage, logger *zap.Logger, em *emitter) ([]entity.ApiMessage, bool) {
	queryIdx := entity.LastUserIndex(msgs)
	if queryIdx < 0 {
		logger.Debug("web search requested without a user query, skipping")
		return msgs, false
	}
	query := msgs[queryIdx].Content

	if !em.send(entity.NewStatusUpdateEvent(entity.StageWebIndexingStarted)) {
		return msgs, true
	}

	// The SDK call is synchronous; run it off this goroutine so caller
	// cancellation abandons the wait instead of the call. The buffered
	// channel always receives, so a late result is simply dropped.
	resultCh := make(chan []entity.SearchResult, 1)
	searchCtx := context.WithoutCancel(ctx)
	safego.Go(logger, "web-search", func() {
		var results []entity.SearchResult
		defer func() { resultCh <- results }()
		results = uc.search.Search(searchCtx, query)
	})

	var results []entity.SearchResult
	select {
	case results = <-resultCh:
	case <-ctx.Done():
		em.gone = true
		return msgs, true
	}

	if len(results) > 0 {
		if !em.send(entity.NewWebSearchResultsEvent(results)) {
			return msgs, true
		}
		block := search.BuildContextBlock(query, results)
		injected := make([]entity.ApiMessage, 0, len(msgs)+1)
		injected = append(injected, msgs[:queryIdx]...)
		injected = append(injected, entity.ApiMessage{Role: entity.RoleSystem, Content: block})
		injected = append(injected, msgs[queryIdx:]...)
		msgs = injected
		logger.Info("web search context injected", zap.Int("results", len(results)))
	} else {
		logger.Info("web search produced no results")
	}

	em.send(entity.NewStatusUpdateEvent(entity.StageWebAnalysisStarted))
	return msgs, true
}

// pump reads the upstream body to completion, framing bytes into SSE lines,
// parsing lines into deltas and feeding the extractor until it reaches its
// terminal state or the stream ends.
func (uc *ChatStream) pump(ctx context.Context, body io.Reader, translator provider.Translator, req *entity.ChatRequest, searchPerformed bool, logger *zap.Logger, em *emitter) {
	parser := translator.NewParser(logger)
	extractor := uc.newExtractor(req, logger)
	framer := sse.NewFramer(uc.cfg.Stream.MaxSSELineLength)

	buf := make([]byte, readChunkSize)
	upstreamProduced := false

	for !extractor.Finished() {
		n, err := body.Read(buf)
		if n > 0 {
			if !upstreamProduced {
				upstreamProduced = true
				if searchPerformed && !em.send(entity.NewStatusUpdateEvent(entity.StageWebAnalysisComplete)) {
					return
				}
			}
			for _, line := range framer.Push(buf[:n]) {
				for _, delta := range parser.ParseLine(line) {
					if !em.sendAll(extractor.Feed(delta)) {
						return
					}
				}
				if extractor.Finished() {
					break
				}
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				logger.Info("caller cancelled, dropping upstream stream")
				em.gone = true
				return
			}
			uc.emitTransportFailure(err, upstreamProduced, logger, em)
			return
		}
	}

	if dropped := framer.DroppedLines(); dropped > 0 {
		logger.Warn("oversized stream lines dropped", zap.Int("lines", dropped))
	}
	if extractor.Finished() {
		return
	}

	// Upstream closed without a terminal chunk: flush the unterminated tail
	// and synthesize the finish.
	if line, ok := framer.Flush(); ok {
		for _, delta := range parser.ParseLine(line) {
			if !em.sendAll(extractor.Feed(delta)) {
				return
			}
		}
	}
	em.sendAll(extractor.Close(entity.FinishStop))
}

// emitTransportFailure maps a transport error onto the in-stream error
// taxonomy. Caller cancellation emits nothing.
func (uc *ChatStream) emitTransportFailure(err error, upstreamProduced bool, logger *zap.Logger, em *emitter) {
	classified := upstream.ClassifyError(err)
	if errors.Is(classified, context.Canceled) {
		logger.Info("caller cancelled, dropping upstream stream")
		em.gone = true
		return
	}

	switch apperr.CodeOf(classified) {
	case apperr.CodeTimeout:
		logger.Warn("upstream timed out", zap.Error(classified))
		em.fail(apperr.MessageOf(classified), 0, entity.FinishTimeoutError)
	case apperr.CodeNetwork:
		logger.Warn("upstream network fault", zap.Error(classified))
		em.fail(apperr.MessageOf(classified), 0, entity.FinishNetworkError)
	default:
		logger.Error("unexpected stream failure", zap.Error(classified))
		if upstreamProduced {
			em.send(entity.NewFinishEvent(entity.FinishInternalError))
			return
		}
		em.fail(apperr.MessageOf(classified), 0, entity.FinishInternalError)
	}
}

func (uc *ChatStream) newExtractor(req *entity.ChatRequest, logger *zap.Logger) *service.Extractor {
	mode := service.DecideMode(req.Provider, req.Model, req.ForceReasoning())
	opts := []service.ExtractorOption{service.WithSeparator(uc.cfg.Stream.Separator)}
	if uc.cfg.Stream.LatexToUnicode {
		opts = append(opts, service.WithPostProcessor(service.LatexToUnicode))
	}
	return service.NewExtractor(mode, logger, opts...)
}

// emitter serializes event delivery for one request. It owns the
// single-finish bookkeeping for driver-level error paths and turns caller
// cancellation into a permanent no-send state.
type emitter struct {
	ctx  context.Context
	ch   chan<- entity.Event
	sent int

	gone     bool
	finished bool
}

// send delivers one event unless the caller is gone or a terminal finish
// was already delivered. It reports whether delivery happened.
func (em *emitter) send(ev entity.Event) bool {
	if em.gone || em.finished && ev.Terminal() {
		return false
	}
	select {
	case em.ch <- ev:
		em.sent++
		if ev.Terminal() {
			em.finished = true
		}
		return true
	case <-em.ctx.Done():
		em.gone = true
		return false
	}
}

func (em *emitter) sendAll(events []entity.Event) bool {
	for _, ev := range events {
		if !em.send(ev) {
			return false
		}
	}
	return true
}

// fail delivers the error/finish terminal pair.
func (em *emitter) fail(message string, upstreamStatus int, reason string) {
	em.send(entity.NewErrorEvent(message, upstreamStatus))
	em.send(entity.NewFinishEvent(reason))
}

func newRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
