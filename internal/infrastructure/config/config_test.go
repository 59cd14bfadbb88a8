package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if got := cfg.Server.Addr(); got != "0.0.0.0:8000" {
		t.Errorf("addr = %q, want %q", got, "0.0.0.0:8000")
	}
	if cfg.Upstream.APITimeout != 300 || cfg.Upstream.ReadTimeout != 60 {
		t.Errorf("timeouts = %d/%d, want 300/60", cfg.Upstream.APITimeout, cfg.Upstream.ReadTimeout)
	}
	if cfg.Upstream.MaxConnections != 200 {
		t.Errorf("max connections = %d, want 200", cfg.Upstream.MaxConnections)
	}
	if cfg.Upstream.DefaultOpenAIBase != "https://api.openai.com" {
		t.Errorf("openai base = %q", cfg.Upstream.DefaultOpenAIBase)
	}
	if cfg.Search.Enabled() {
		t.Error("search should be disabled without credentials")
	}
	if cfg.Search.ResultCount != 5 || cfg.Search.SnippetMaxLength != 200 {
		t.Errorf("search defaults = %d/%d, want 5/200", cfg.Search.ResultCount, cfg.Search.SnippetMaxLength)
	}
	if cfg.Stream.MaxSSELineLength != 1<<20 {
		t.Errorf("max line = %d, want %d", cfg.Stream.MaxSSELineLength, 1<<20)
	}
	if cfg.Stream.Separator != "--- FINAL ANSWER ---" {
		t.Errorf("separator = %q", cfg.Stream.Separator)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("log = %q/%q, want info/json", cfg.Log.Level, cfg.Log.Format)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "9100")
	t.Setenv("API_TIMEOUT", "45")
	t.Setenv("READ_TIMEOUT", "7")
	t.Setenv("MAX_CONNECTIONS", "12")
	t.Setenv("DEFAULT_OPENAI_API_BASE_URL", "https://proxy.internal")
	t.Setenv("GOOGLE_API_KEY", "k")
	t.Setenv("GOOGLE_CSE_ID", "cx")
	t.Setenv("SEARCH_RESULT_COUNT", "3")
	t.Setenv("SEARCH_SNIPPET_MAX_LENGTH", "80")
	t.Setenv("MAX_SSE_LINE_LENGTH", "4096")
	t.Setenv("THINKING_PROCESS_SEPARATOR", "===CUT===")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if got := cfg.Server.Addr(); got != "127.0.0.1:9100" {
		t.Errorf("addr = %q, want %q", got, "127.0.0.1:9100")
	}
	if cfg.Upstream.APITimeoutDuration() != 45*time.Second {
		t.Errorf("api timeout = %v, want 45s", cfg.Upstream.APITimeoutDuration())
	}
	if cfg.Upstream.ReadTimeoutDuration() != 7*time.Second {
		t.Errorf("read timeout = %v, want 7s", cfg.Upstream.ReadTimeoutDuration())
	}
	if cfg.Upstream.MaxConnections != 12 {
		t.Errorf("max connections = %d, want 12", cfg.Upstream.MaxConnections)
	}
	if cfg.Upstream.DefaultOpenAIBase != "https://proxy.internal" {
		t.Errorf("openai base = %q", cfg.Upstream.DefaultOpenAIBase)
	}
	if !cfg.Search.Enabled() {
		t.Error("search should be enabled with both credentials")
	}
	if cfg.Search.ResultCount != 3 || cfg.Search.SnippetMaxLength != 80 {
		t.Errorf("search = %d/%d, want 3/80", cfg.Search.ResultCount, cfg.Search.SnippetMaxLength)
	}
	if cfg.Stream.MaxSSELineLength != 4096 {
		t.Errorf("max line = %d, want 4096", cfg.Stream.MaxSSELineLength)
	}
	if cfg.Stream.Separator != "===CUT===" {
		t.Errorf("separator = %q, want ===CUT===", cfg.Stream.Separator)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "console" {
		t.Errorf("log = %q/%q, want debug/console", cfg.Log.Level, cfg.Log.Format)
	}
}

func TestLoadClampsAndFallbacks(t *testing.T) {
	t.Setenv("SEARCH_RESULT_COUNT", "50")
	t.Setenv("API_TIMEOUT", "not-a-number")
	t.Setenv("PORT", "-1")
	t.Setenv("MAX_SSE_LINE_LENGTH", "0")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Search.ResultCount != 10 {
		t.Errorf("result count = %d, want clamped 10", cfg.Search.ResultCount)
	}
	if cfg.Upstream.APITimeout != 300 {
		t.Errorf("api timeout = %d, want default 300", cfg.Upstream.APITimeout)
	}
	if cfg.Server.Port != 8000 {
		t.Errorf("port = %d, want default 8000", cfg.Server.Port)
	}
	if cfg.Stream.MaxSSELineLength != 1<<20 {
		t.Errorf("max line = %d, want default", cfg.Stream.MaxSSELineLength)
	}
}

func TestSearchEnabledNeedsBothCredentials(t *testing.T) {
	t.Setenv("GOOGLE_API_KEY", "k")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Search.Enabled() {
		t.Error("search must stay disabled with only an api key")
	}
}
