package http

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/eztalk/relay/internal/application/usecase"
	"github.com/eztalk/relay/internal/domain/entity"
	"github.com/eztalk/relay/internal/infrastructure/config"
	"github.com/eztalk/relay/internal/infrastructure/upstream"

	_ "github.com/eztalk/relay/internal/infrastructure/provider/google"
	_ "github.com/eztalk/relay/internal/infrastructure/provider/openai"
)

func newTestServer(t *testing.T, withClient bool) *Server {
	t.Helper()
	cfg := &config.Config{
		Upstream: config.UpstreamConfig{
			APITimeout:        30,
			ReadTimeout:       10,
			MaxConnections:    8,
			DefaultOpenAIBase: "https://api.openai.com",
		},
		Stream: config.StreamConfig{
			MaxSSELineLength: 1 << 20,
			Separator:        "--- FINAL ANSWER ---",
		},
	}
	var client *upstream.Client
	if withClient {
		var err error
		client, err = upstream.NewClient(cfg.Upstream, zap.NewNop())
		if err != nil {
			t.Fatalf("NewClient: %v", err)
		}
	}
	chat := usecase.NewChatStream(cfg, client, nil, zap.NewNop())
	return NewServer(Config{Addr: ":0"}, chat, zap.NewNop())
}

func do(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(w, req)
	return w
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
		Type    string `json:"type"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, body io.Reader) errorEnvelope {
	t.Helper()
	var env errorEnvelope
	if err := json.NewDecoder(body).Decode(&env); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return env
}

func TestHealthStates(t *testing.T) {
	tests := []struct {
		name       string
		withClient bool
		wantStatus string
	}{
		{"client ready", true, "ok"},
		{"client missing", false, "warning"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.withClient)
			w := do(s, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			var body struct {
				Status string `json:"status"`
				Detail string `json:"detail"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode health body: %v", err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			if body.Detail == "" {
				t.Error("detail missing")
			}
		})
	}
}

func TestChatRejectsBeforeStreaming(t *testing.T) {
	tests := []struct {
		name       string
		withClient bool
		body       string
		wantCode   int
	}{
		{
			"unknown provider",
			true,
			`{"provider":"anthropic","model":"m","api_key":"k","messages":[{"role":"user","content":"hi"}]}`,
			http.StatusBadRequest,
		},
		{
			"malformed json",
			true,
			`{"provider":`,
			http.StatusBadRequest,
		},
		{
			"missing api_key",
			true,
			`{"provider":"openai","model":"m","messages":[{"role":"user","content":"hi"}]}`,
			http.StatusBadRequest,
		},
		{
			"client unready",
			false,
			`{"provider":"openai","model":"m","api_key":"k","messages":[{"role":"user","content":"hi"}]}`,
			http.StatusServiceUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, tt.withClient)
			req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := do(s, req)

			if w.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d; body %s", w.Code, tt.wantCode, w.Body.String())
			}
			env := decodeEnvelope(t, w.Body)
			if env.Error.Type != "proxy_error" {
				t.Errorf("error type = %q, want proxy_error", env.Error.Type)
			}
			if env.Error.Code != tt.wantCode {
				t.Errorf("error code = %d, want %d", env.Error.Code, tt.wantCode)
			}
			if env.Error.Message == "" {
				t.Error("error message missing")
			}
		})
	}
}

func TestChatStreamsLineDelimitedEvents(t *testing.T) {
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"choices\":[{\"delta\":{\"content\":\"hi there\"},\"finish_reason\":\"stop\"}]}\n\ndata: [DONE]\n\n")
	}))
	t.Cleanup(upstreamSrv.Close)

	s := newTestServer(t, true)
	body := `{"provider":"openai","model":"gpt-4o-mini","api_key":"k","api_address":"` + upstreamSrv.URL + `","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := do(s, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body %s", w.Code, w.Body.String())
	}
	headers := map[string]string{
		"Content-Type":      "text/event-stream; charset=utf-8",
		"Cache-Control":     "no-cache",
		"Connection":        "keep-alive",
		"X-Accel-Buffering": "no",
	}
	for key, want := range headers {
		if got := w.Header().Get(key); got != want {
			t.Errorf("header %s = %q, want %q", key, got, want)
		}
	}

	lines := strings.Split(strings.TrimRight(w.Body.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2:\n%s", len(lines), w.Body.String())
	}
	var events []entity.Event
	for _, line := range lines {
		var ev entity.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("line is not a JSON event: %v\n%s", err, line)
		}
		events = append(events, ev)
	}
	if events[0].Type != entity.EventContent || events[0].Text != "hi there" {
		t.Errorf("first event = %+v, want content hi there", events[0])
	}
	if events[1].Type != entity.EventFinish || events[1].Reason != "stop" {
		t.Errorf("last event = %+v, want finish stop", events[1])
	}
	for _, ev := range events {
		if ev.Timestamp.IsZero() {
			t.Errorf("event %s missing timestamp", ev.Type)
		}
	}
}

func TestCORSPreflightEchoesOrigin(t *testing.T) {
	s := newTestServer(t, true)
	req := httptest.NewRequest(http.MethodOptions, "/chat", nil)
	req.Header.Set("Origin", "http://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := do(s, req)

	if w.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d, want 204", w.Code)
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://app.example" {
		t.Errorf("allow-origin = %q, want the echoed origin", got)
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
		t.Errorf("allow-credentials = %q, want true", got)
	}
	if methods := w.Header().Get("Access-Control-Allow-Methods"); !strings.Contains(methods, "POST") {
		t.Errorf("allow-methods = %q, want POST included", methods)
	}
}
