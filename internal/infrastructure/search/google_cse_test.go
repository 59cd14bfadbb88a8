package search

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/zap"
	customsearch "google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"

	"github.com/eztalk/relay/internal/domain/entity"
	"github.com/eztalk/relay/internal/infrastructure/config"
	"github.com/eztalk/relay/internal/infrastructure/provider"
)

func newTestService(t *testing.T, upstream string) *Service {
	t.Helper()
	svc, err := customsearch.NewService(context.Background(),
		option.WithAPIKey("test-key"),
		option.WithEndpoint(upstream+"/"))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &Service{
		svc:         svc,
		cseID:       "cse-id",
		resultCount: 2,
		snippetMax:  200,
		logger:      zap.NewNop(),
	}
}

func TestSearchMapsResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("q") != "golang relay" {
			t.Errorf("q = %q", q.Get("q"))
		}
		if q.Get("cx") != "cse-id" {
			t.Errorf("cx = %q", q.Get("cx"))
		}
		if q.Get("num") != "2" {
			t.Errorf("num = %q", q.Get("num"))
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"items":[
			{"title":"First","link":"https://a.example","snippet":"about relays"},
			{"title":"Second","link":"https://b.example","snippet":"more detail"}
		]}`)
	}))
	defer srv.Close()

	s := newTestService(t, srv.URL)
	got := s.Search(context.Background(), "golang relay")

	want := []entity.SearchResult{
		{Index: 1, Title: "First", Href: "https://a.example", Snippet: "about relays"},
		{Index: 2, Title: "Second", Href: "https://b.example", Snippet: "more detail"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Search mismatch (-want +got):\n%s", diff)
	}
}

func TestSearchSwallowsAPIErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":403,"message":"Quota exceeded"}}`)
	}))
	defer srv.Close()

	s := newTestService(t, srv.URL)
	if got := s.Search(context.Background(), "anything"); got != nil {
		t.Errorf("Search = %+v, want nil on API error", got)
	}
}

func TestSearchShortCircuits(t *testing.T) {
	disabled, err := New(context.Background(), config.SearchConfig{}, zap.NewNop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if disabled.Enabled() {
		t.Error("service without credentials reports enabled")
	}
	if got := disabled.Search(context.Background(), "query"); got != nil {
		t.Errorf("disabled Search = %+v, want nil", got)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("blank query must not reach the API")
	}))
	defer srv.Close()
	s := newTestService(t, srv.URL)
	if got := s.Search(context.Background(), "   "); got != nil {
		t.Errorf("blank query Search = %+v, want nil", got)
	}
}

func TestTruncateSnippet(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"short kept", "brief", 10, "brief"},
		{"exact kept", "12345", 5, "12345"},
		{"long cut", "abcdefghij", 5, "abcde..."},
		{"multibyte safe", "日本語のテキスト", 3, "日本語..."},
		{"zero max keeps all", "anything", 0, "anything"},
		{"surrounding space trimmed", "  padded  ", 20, "padded"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := truncateSnippet(tt.in, tt.max); got != tt.want {
				t.Errorf("truncateSnippet(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
			}
		})
	}
}

func TestBuildContextBlock(t *testing.T) {
	results := []entity.SearchResult{
		{Index: 1, Title: "First", Href: "https://a.example", Snippet: "about relays"},
	}
	block := BuildContextBlock("golang relay", results)

	for _, fragment := range []string{
		`"golang relay"`,
		"[1] First",
		"about relays",
		"https://a.example",
		provider.KatexDirective,
	} {
		if !strings.Contains(block, fragment) {
			t.Errorf("context block missing %q:\n%s", fragment, block)
		}
	}
}
