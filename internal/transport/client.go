// ABOUTME: HTTP client for the agent stream and execute endpoints.
// ABOUTME: Posts {task, conversationId}, decodes SSE frames, and reports exactly one terminal event.

package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/2389/agentchat/internal/auth"
	"github.com/2389/agentchat/internal/frame"
)

const (
	DefaultStreamPath  = "/api/agent/stream"
	DefaultExecutePath = "/api/agent/execute"

	// maxErrorBody bounds how much of a failed response body is read.
	maxErrorBody = 4096
)

// StatusError is returned through OnError when the endpoint answers with a
// non-200 status.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned status %d: %s", e.StatusCode, e.Message)
}

// Config describes where and how to reach the agent.
type Config struct {
	BaseURL     string
	StreamPath  string
	ExecutePath string
	Token       string
	// Scheme picks the credential header; empty means auth.SchemeAPIKey
	Scheme      auth.Scheme
	DialTimeout time.Duration

	// HTTPClient overrides the default client (tests)
	HTTPClient *http.Client
}

// Client opens agent exchanges.
type Client struct {
	baseURL     string
	streamPath  string
	executePath string
	token       string
	scheme      auth.Scheme
	http        *http.Client
	logger      *slog.Logger
}

// New creates a Client. Pass nil logger for default.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	streamPath := cfg.StreamPath
	if streamPath == "" {
		streamPath = DefaultStreamPath
	}
	executePath := cfg.ExecutePath
	if executePath == "" {
		executePath = DefaultExecutePath
	}

	scheme := cfg.Scheme
	if scheme == "" {
		scheme = auth.SchemeAPIKey
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = newHTTPClient(cfg.DialTimeout)
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		streamPath:  streamPath,
		executePath: executePath,
		token:       cfg.Token,
		scheme:      scheme,
		http:        httpClient,
		logger:      logger.With("component", "transport"),
	}
}

// newHTTPClient builds a client without an overall timeout; a stream lives
// until it completes or is aborted. Only connection setup is bounded.
func newHTTPClient(dialTimeout time.Duration) *http.Client {
	if dialTimeout <= 0 {
		return &http.Client{}
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = (&net.Dialer{Timeout: dialTimeout}).DialContext
	t.TLSHandshakeTimeout = dialTimeout
	return &http.Client{Transport: t}
}

// Open starts a streaming exchange and returns immediately.
// conversationID is the server-assigned ID, empty on a conversation's first turn.
func (c *Client) Open(ctx context.Context, task, conversationID string, h Handler) *Handle {
	handle, ctx := c.newHandle(ctx, h)
	go c.runStream(ctx, handle, frame.TaskRequest{Task: task, ConversationID: conversationID})
	return handle
}

// OpenExecute starts a legacy non-streaming exchange and returns immediately.
func (c *Client) OpenExecute(ctx context.Context, task, conversationID string, h Handler) *Handle {
	handle, ctx := c.newHandle(ctx, h)
	go c.runExecute(ctx, handle, frame.TaskRequest{Task: task, ConversationID: conversationID})
	return handle
}

func (c *Client) newHandle(ctx context.Context, h Handler) (*Handle, context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	return newHandle(uuid.New().String(), h, cancel), ctx
}

// runStream reads frames until an end frame, EOF, error, or abort.
func (c *Client) runStream(ctx context.Context, h *Handle, req frame.TaskRequest) {
	defer close(h.done)
	defer h.cancel()

	logger := c.logger.With("exchange_id", h.id)

	resp, err := c.post(ctx, c.streamPath, req, "text/event-stream")
	if err != nil {
		c.failUnlessAborted(logger, h, err)
		return
	}
	defer resp.Body.Close()

	logger.Debug("stream opened", "conversation_id", req.ConversationID)

	dec := frame.NewDecoder(resp.Body)
	frames := 0
	for {
		f, err := dec.Next()
		if errors.Is(err, io.EOF) {
			logger.Debug("stream ended without end frame", "frames", frames)
			h.complete("")
			return
		}
		if err != nil {
			c.failUnlessAborted(logger, h, fmt.Errorf("reading stream: %w", err))
			return
		}

		if f.Type == frame.TypeEnd {
			logger.Debug("stream completed", "frames", frames, "server_conversation_id", f.Data)
			h.complete(strings.TrimSpace(f.Data))
			return
		}

		frames++
		if !h.message(f) {
			logger.Debug("stream aborted", "frames", frames)
			return
		}
	}
}

// runExecute performs one request/response exchange.
func (c *Client) runExecute(ctx context.Context, h *Handle, req frame.TaskRequest) {
	defer close(h.done)
	defer h.cancel()

	logger := c.logger.With("exchange_id", h.id)

	resp, err := c.post(ctx, c.executePath, req, "application/json")
	if err != nil {
		c.failUnlessAborted(logger, h, err)
		return
	}
	defer resp.Body.Close()

	var result frame.Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.failUnlessAborted(logger, h, fmt.Errorf("parsing response: %w", err))
		return
	}

	if !h.message(frame.Frame{Type: frame.TypeResult, Result: &result}) {
		return
	}
	h.complete(result.ConversationID)
}

func (c *Client) failUnlessAborted(logger *slog.Logger, h *Handle, err error) {
	if h.Aborted() {
		return
	}
	logger.Warn("exchange failed", "error", err)
	h.fail(err)
}

// post sends the task request and returns a 200 response.
func (c *Client) post(ctx context.Context, path string, body frame.TaskRequest, accept string) (*http.Response, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", accept)
	if c.token != "" {
		switch c.scheme {
		case auth.SchemeBearer:
			req.Header.Set("Authorization", "Bearer "+c.token)
		default:
			req.Header.Set(auth.APIKeyHeader, c.token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Message:    readErrorMessage(resp),
		}
	}
	return resp, nil
}

// readErrorMessage extracts a human-readable reason from an error response.
func readErrorMessage(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		var errResp map[string]any
		if err := json.Unmarshal(data, &errResp); err == nil {
			for _, key := range []string{"error", "message", "errorMessage"} {
				if msg, ok := errResp[key].(string); ok && msg != "" {
					return msg
				}
			}
		}
	}

	return strings.TrimSpace(string(data))
}
