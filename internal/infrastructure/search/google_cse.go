// Package search implements the web-search collaborator backed by Google
// Programmable Search. Search failures are logged and swallowed: a broken
// search must never fail the chat request it decorates.
package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
	customsearch "google.golang.org/api/customsearch/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/eztalk/relay/internal/domain/entity"
	"github.com/eztalk/relay/internal/infrastructure/config"
	"github.com/eztalk/relay/internal/infrastructure/provider"
)

// Service wraps the Custom Search SDK. A Service built without credentials
// is inert: Search returns an empty list without calling out.
type Service struct {
	svc         *customsearch.Service
	cseID       string
	resultCount int64
	snippetMax  int
	logger      *zap.Logger
}

// New builds the collaborator. The SDK manages its own HTTP transport
// because option.WithHTTPClient would bypass the API-key transport wrapper.
func New(ctx context.Context, cfg config.SearchConfig, logger *zap.Logger) (*Service, error) {
	s := &Service{
		cseID:       cfg.GoogleCSEID,
		resultCount: int64(cfg.ResultCount),
		snippetMax:  cfg.SnippetMaxLength,
		logger:      logger,
	}
	if !cfg.Enabled() {
		logger.Info("web search disabled: GOOGLE_API_KEY or GOOGLE_CSE_ID not set")
		return s, nil
	}

	svc, err := customsearch.NewService(ctx, option.WithAPIKey(cfg.GoogleAPIKey))
	if err != nil {
		return nil, fmt.Errorf("create custom search service: %w", err)
	}
	s.svc = svc
	return s, nil
}

// Enabled reports whether Search can reach the API at all.
func (s *Service) Enabled() bool {
	return s.svc != nil
}

// Search runs one query and maps the items onto 1-based results. Every
// failure path logs and returns nil.
func (s *Service) Search(ctx context.Context, query string) []entity.SearchResult {
	query = strings.TrimSpace(query)
	if query == "" || s.svc == nil {
		return nil
	}

	resp, err := s.svc.Cse.List().
		Context(ctx).
		Q(query).
		Cx(s.cseID).
		Num(s.resultCount).
		Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) {
			s.logger.Warn("web search API error",
				zap.Int("status", gerr.Code),
				zap.String("message", gerr.Message))
		} else {
			s.logger.Warn("web search failed", zap.Error(err))
		}
		return nil
	}

	results := make([]entity.SearchResult, 0, len(resp.Items))
	for i, item := range resp.Items {
		results = append(results, entity.SearchResult{
			Index:   i + 1,
			Title:   item.Title,
			Href:    item.Link,
			Snippet: truncateSnippet(item.Snippet, s.snippetMax),
		})
	}
	return results
}

// truncateSnippet caps a snippet at max characters, marking the cut.
func truncateSnippet(s string, max int) string {
	s = strings.TrimSpace(s)
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max]) + "..."
}

// BuildContextBlock renders results into the system message the orchestrator
// inserts before the last user message.
func BuildContextBlock(query string, results []entity.SearchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A web search for %q was performed. Use the following results to inform your answer and cite indices like [1] where relevant.\n\n", query)
	for _, r := range results {
		fmt.Fprintf(&b, "[%d] %s — %s (%s)\n", r.Index, r.Title, r.Snippet, r.Href)
	}
	b.WriteString("\n")
	b.WriteString(provider.KatexDirective)
	return b.String()
}
