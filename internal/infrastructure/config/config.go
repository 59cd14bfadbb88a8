package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full relay configuration. Every knob has a default and an
// environment variable override; an optional config.yaml in the working
// directory sits between the two.
type Config struct {
	Server   ServerConfig
	Upstream UpstreamConfig
	Search   SearchConfig
	Stream   StreamConfig
	Log      LogConfig
}

// ServerConfig is the listen address of the relay itself.
type ServerConfig struct {
	Host string
	Port int
}

func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// UpstreamConfig shapes the shared provider HTTP client. Timeouts are in
// seconds to match the environment variable convention.
type UpstreamConfig struct {
	APITimeout        int
	ReadTimeout       int
	MaxConnections    int
	DefaultOpenAIBase string
}

// APITimeoutDuration is the per-request wall clock budget.
func (c UpstreamConfig) APITimeoutDuration() time.Duration {
	return time.Duration(c.APITimeout) * time.Second
}

// ReadTimeoutDuration is the inter-chunk stall budget while streaming.
func (c UpstreamConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(c.ReadTimeout) * time.Second
}

// SearchConfig configures Google Programmable Search. Both credentials must
// be present for the feature to activate.
type SearchConfig struct {
	GoogleAPIKey     string
	GoogleCSEID      string
	ResultCount      int
	SnippetMaxLength int
}

// Enabled reports whether web search can be attempted at all.
func (c SearchConfig) Enabled() bool {
	return c.GoogleAPIKey != "" && c.GoogleCSEID != ""
}

// StreamConfig tunes stream handling and the guided-reasoning separator.
type StreamConfig struct {
	MaxSSELineLength int
	Separator        string
	LatexToUnicode   bool
}

// LogConfig controls zap. Format is "json" or "console".
type LogConfig struct {
	Level  string
	Format string
}

// Load builds the configuration from defaults, an optional ./config.yaml
// and environment variables, in increasing priority. Unparsable numeric
// values degrade to their defaults; a bad environment never crashes the
// relay.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	bindEnvs(v)
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("server.host"),
			Port: v.GetInt("server.port"),
		},
		Upstream: UpstreamConfig{
			APITimeout:        v.GetInt("upstream.api_timeout"),
			ReadTimeout:       v.GetInt("upstream.read_timeout"),
			MaxConnections:    v.GetInt("upstream.max_connections"),
			DefaultOpenAIBase: v.GetString("upstream.default_openai_api_base_url"),
		},
		Search: SearchConfig{
			GoogleAPIKey:     v.GetString("search.google_api_key"),
			GoogleCSEID:      v.GetString("search.google_cse_id"),
			ResultCount:      v.GetInt("search.result_count"),
			SnippetMaxLength: v.GetInt("search.snippet_max_length"),
		},
		Stream: StreamConfig{
			MaxSSELineLength: v.GetInt("stream.max_sse_line_length"),
			Separator:        v.GetString("stream.thinking_process_separator"),
			LatexToUnicode:   v.GetBool("stream.latex_to_unicode"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	cfg.normalize()
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8000)

	v.SetDefault("upstream.api_timeout", 300)
	v.SetDefault("upstream.read_timeout", 60)
	v.SetDefault("upstream.max_connections", 200)
	v.SetDefault("upstream.default_openai_api_base_url", "https://api.openai.com")

	v.SetDefault("search.google_api_key", "")
	v.SetDefault("search.google_cse_id", "")
	v.SetDefault("search.result_count", 5)
	v.SetDefault("search.snippet_max_length", 200)

	v.SetDefault("stream.max_sse_line_length", 1<<20)
	v.SetDefault("stream.thinking_process_separator", "--- FINAL ANSWER ---")
	v.SetDefault("stream.latex_to_unicode", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// bindEnvs maps the flat environment variable names onto the nested keys.
func bindEnvs(v *viper.Viper) {
	binds := map[string]string{
		"server.host":                          "HOST",
		"server.port":                          "PORT",
		"upstream.api_timeout":                 "API_TIMEOUT",
		"upstream.read_timeout":                "READ_TIMEOUT",
		"upstream.max_connections":             "MAX_CONNECTIONS",
		"upstream.default_openai_api_base_url": "DEFAULT_OPENAI_API_BASE_URL",
		"search.google_api_key":                "GOOGLE_API_KEY",
		"search.google_cse_id":                 "GOOGLE_CSE_ID",
		"search.result_count":                  "SEARCH_RESULT_COUNT",
		"search.snippet_max_length":            "SEARCH_SNIPPET_MAX_LENGTH",
		"stream.max_sse_line_length":           "MAX_SSE_LINE_LENGTH",
		"stream.thinking_process_separator":    "THINKING_PROCESS_SEPARATOR",
		"stream.latex_to_unicode":              "LATEX_TO_UNICODE",
		"log.level":                            "LOG_LEVEL",
		"log.format":                           "LOG_FORMAT",
	}
	for key, env := range binds {
		_ = v.BindEnv(key, env)
	}
}

// normalize replaces unusable values with their defaults and clamps the
// bounded ones.
func (c *Config) normalize() {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		c.Server.Port = 8000
	}
	if c.Upstream.APITimeout <= 0 {
		c.Upstream.APITimeout = 300
	}
	if c.Upstream.ReadTimeout <= 0 {
		c.Upstream.ReadTimeout = 60
	}
	if c.Upstream.MaxConnections <= 0 {
		c.Upstream.MaxConnections = 200
	}
	if c.Upstream.DefaultOpenAIBase == "" {
		c.Upstream.DefaultOpenAIBase = "https://api.openai.com"
	}
	if c.Search.ResultCount <= 0 {
		c.Search.ResultCount = 5
	}
	if c.Search.ResultCount > 10 {
		c.Search.ResultCount = 10
	}
	if c.Search.SnippetMaxLength <= 0 {
		c.Search.SnippetMaxLength = 200
	}
	if c.Stream.MaxSSELineLength <= 0 {
		c.Stream.MaxSSELineLength = 1 << 20
	}
	if c.Stream.Separator == "" {
		c.Stream.Separator = "--- FINAL ANSWER ---"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}
