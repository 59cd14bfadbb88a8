// Package upstream owns the pooled HTTP client every provider request
// travels through, the per-read stall guard for streaming bodies, and the
// mapping of transport failures onto the relay error taxonomy.
package upstream

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/eztalk/relay/internal/infrastructure/config"
	"github.com/eztalk/relay/pkg/apperr"
)

// maxErrorBody caps how much of a failed upstream response is read while
// extracting an error message.
const maxErrorBody = 64 * 1024

// ErrReadTimeout marks a body read that exceeded the per-read stall budget.
var ErrReadTimeout = errors.New("upstream read idle timeout")

// Client is the process-wide pooled HTTP client. One instance serves both
// providers; per-request deadlines come from configuration, not from the
// callers.
type Client struct {
	http        *http.Client
	apiTimeout  time.Duration
	readTimeout time.Duration
	logger      *zap.Logger
}

// NewClient builds the pooled client. HTTP/2 is negotiated where upstreams
// offer it. Environment proxies are deliberately not consulted: the relay
// talks to vendor APIs directly.
func NewClient(cfg config.UpstreamConfig, logger *zap.Logger) (*Client, error) {
	transport := &http.Transport{
		Proxy:             nil,
		ForceAttemptHTTP2: true,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: 15 * time.Second,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConns:        cfg.MaxConnections,
		MaxIdleConnsPerHost: cfg.MaxConnections,
		MaxConnsPerHost:     cfg.MaxConnections,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, fmt.Errorf("configure http2 transport: %w", err)
	}

	return &Client{
		http:        &http.Client{Transport: transport},
		apiTimeout:  cfg.APITimeoutDuration(),
		readTimeout: cfg.ReadTimeoutDuration(),
		logger:      logger,
	}, nil
}

// Stream executes req under the overall request deadline and returns the
// response with its body wrapped in the stall guard. cancel releases the
// deadline and must be called when the stream ends. A non-2xx status is not
// an error here; callers inspect it.
func (c *Client) Stream(ctx context.Context, req *http.Request) (*http.Response, context.CancelFunc, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.apiTimeout)

	resp, err := c.http.Do(req.WithContext(reqCtx))
	if err != nil {
		cancel()
		return nil, nil, ClassifyError(err)
	}

	resp.Body = &timedBody{body: resp.Body, timeout: c.readTimeout}
	return resp, cancel, nil
}

// CloseIdleConnections drains the pool during shutdown.
func (c *Client) CloseIdleConnections() {
	c.http.CloseIdleConnections()
}

// ClassifyError maps a transport failure onto the relay error taxonomy.
// Caller cancellation stays a bare context.Canceled so the orchestrator can
// go quiet instead of emitting error events. Any URL inside the error chain
// is scrubbed first: Gemini carries the credential as a query parameter.
func ClassifyError(err error) error {
	if err == nil {
		return nil
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		ue.URL = RedactURL(ue.URL)
	}

	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, ErrReadTimeout), errors.Is(err, context.DeadlineExceeded):
		return apperr.NewTimeout("timeout contacting upstream API", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return apperr.NewTimeout("timeout contacting upstream API", err)
	}
	return apperr.NewNetwork("network error contacting upstream API", err)
}

// RedactURL masks credential-bearing query parameters so the string is safe
// to log or embed in an error.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "<unparsable url>"
	}
	q := u.Query()
	if q.Has("key") {
		q.Set("key", "***")
		u.RawQuery = q.Encode()
	}
	return u.String()
}

// ReadErrorBody drains at most maxErrorBody bytes of a failed response and
// closes it. A read failure returns whatever arrived.
func ReadErrorBody(resp *http.Response) []byte {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return body
}

// ExtractErrorMessage pulls a human-readable message out of an upstream
// error body. Vendors disagree on the envelope shape, so the known ones are
// tried before falling back to the raw body.
func ExtractErrorMessage(status int, body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return fmt.Sprintf("Upstream returned status %d", status)
	}
	if msg := envelopeMessage(trimmed); msg != "" {
		return msg
	}
	return fmt.Sprintf("Upstream error %d: %.100s", status, trimmed)
}

func envelopeMessage(body []byte) string {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return ""
	}
	return messageFrom(doc)
}

// messageFrom walks the known envelope shapes: {"error":{"message":...}},
// {"error":"..."}, {"message":"..."} and the one-element array Gemini wraps
// its errors in.
func messageFrom(doc any) string {
	switch v := doc.(type) {
	case map[string]any:
		switch e := v["error"].(type) {
		case map[string]any:
			if msg, ok := e["message"].(string); ok && msg != "" {
				return msg
			}
		case string:
			if e != "" {
				return e
			}
		}
		if msg, ok := v["message"].(string); ok && msg != "" {
			return msg
		}
	case []any:
		if len(v) > 0 {
			return messageFrom(v[0])
		}
	}
	return ""
}

// timedBody enforces a per-read stall budget on a streaming response body.
// A stalled upstream surfaces as ErrReadTimeout instead of hanging the
// request goroutine until the overall deadline.
type timedBody struct {
	body    io.ReadCloser
	timeout time.Duration
}

type readResult struct {
	n   int
	err error
}

func (t *timedBody) Read(p []byte) (int, error) {
	ch := make(chan readResult, 1)
	go func() {
		n, err := t.body.Read(p)
		ch <- readResult{n, err}
	}()
	select {
	case res := <-ch:
		return res.n, res.err
	case <-time.After(t.timeout):
		// The pending read unblocks when the caller closes the body.
		return 0, ErrReadTimeout
	}
}

func (t *timedBody) Close() error { return t.body.Close() }
