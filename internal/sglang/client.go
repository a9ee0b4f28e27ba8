// Package sglang talks to the OpenAI-compatible HTTP API exposed by an
// SGLang server.
package sglang

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// API paths served by SGLang
const (
	ChatCompletionsPath = "/v1/chat/completions"
	ModelsPath          = "/v1/models"
	HealthPath          = "/health"
)

// Client handles communication with the serving framework
type Client struct {
	baseURL     string
	httpClient  *http.Client
	probeClient *http.Client
	logger      *zap.Logger
}

// Option configures a Client
type Option func(*Client)

// WithLogger attaches a logger; the default is a no-op logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithProbeTimeout sets the timeout used by HealthCheck and ListModels.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.probeClient.Timeout = d
	}
}

// NewClient creates a new client. timeout bounds a whole chat round trip.
// Keep-alives are disabled: each request opens and closes its own connection.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	transport := &http.Transport{
		Proxy:             http.ProxyFromEnvironment,
		DisableKeepAlives: true,
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		probeClient: &http.Client{
			Timeout:   5 * time.Second,
			Transport: transport,
		},
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// BaseURL returns the server base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Chat sends a non-streaming chat completion request and blocks until the
// full reply arrives. Failures are *ConnectionError or *ProtocolError.
func (c *Client) Chat(ctx context.Context, req ChatRequest) (*Completion, error) {
	req.Stream = false

	jsonData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + ChatCompletionsPath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	c.logger.Debug("sending chat request",
		zap.String("url", url),
		zap.String("model", req.Model),
		zap.Int("message_count", len(req.Messages)),
		zap.Int("body_size", len(jsonData)),
	)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, connectionError(url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, connectionError(url, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProtocolError{StatusCode: resp.StatusCode, Body: snippet(body)}
	}

	completion, err := parseChatResponse(body)
	if err != nil {
		return nil, &ProtocolError{StatusCode: resp.StatusCode, Body: snippet(body), Err: err}
	}

	return completion, nil
}

// parseChatResponse extracts the first choice's content and usage.
func parseChatResponse(body []byte) (*Completion, error) {
	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, errors.New("response has no choices")
	}

	choice := chatResp.Choices[0]
	if choice.Message.Content == nil {
		return nil, errors.New("response choice has no message content")
	}

	return &Completion{
		Content:      *choice.Message.Content,
		Model:        chatResp.Model,
		FinishReason: choice.FinishReason,
		Usage:        chatResp.Usage,
	}, nil
}

// HealthCheck verifies that the server is accessible and reports healthy
func (c *Client) HealthCheck(ctx context.Context) error {
	url := c.baseURL + HealthPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := c.probeClient.Do(req)
	if err != nil {
		return connectionError(url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &ProtocolError{StatusCode: resp.StatusCode, Body: snippet(body)}
	}

	return nil
}

// ListModels returns the ids of the models the server is serving
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	url := c.baseURL + ModelsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.probeClient.Do(req)
	if err != nil {
		return nil, connectionError(url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, connectionError(url, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ProtocolError{StatusCode: resp.StatusCode, Body: snippet(body)}
	}

	var list ModelList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, &ProtocolError{StatusCode: resp.StatusCode, Body: snippet(body), Err: err}
	}

	models := make([]string, 0, len(list.Data))
	for _, m := range list.Data {
		id := m.ID
		if id == "" {
			id = "unknown"
		}
		models = append(models, id)
	}

	return models, nil
}

func connectionError(url string, err error) *ConnectionError {
	ce := &ConnectionError{URL: url, Err: err}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		ce.Timeout = true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		ce.Timeout = true
	}
	return ce
}
