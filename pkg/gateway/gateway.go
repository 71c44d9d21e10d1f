package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/xhad/thinktank/internal/models"
	"golang.org/x/time/rate"
)

const (
	chatPath     = "/chat"
	extractPath  = "/extract_text"
	followupPath = "/followup_chat"

	maxResponseBytes = 32 << 20
	maxErrorExcerpt  = 200
)

type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RateLimit  float64 // requests per second, 0 disables limiting
	HTTPClient *http.Client
}

// Client issues the three backend calls. It keeps no conversation state
// between calls.
type Client struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
}

func NewWithConfig(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("backend base URL is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.Timeout < 0 {
		return nil, fmt.Errorf("timeout cannot be negative")
	}
	if config.RateLimit < 0 {
		return nil, fmt.Errorf("rate limit cannot be negative")
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{}
	}

	var limiter *rate.Limiter
	if config.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}

	return &Client{
		config:  config,
		client:  client,
		limiter: limiter,
	}, nil
}

func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

type chatRequest struct {
	Message string `json:"message"`
}

type followupRequest struct {
	Doc     string            `json:"doc"`
	History models.Transcript `json:"history"`
}

// SendIndexedChat asks the backend a question against the indexed corpus.
func (c *Client) SendIndexedChat(ctx context.Context, message string) (string, error) {
	body, err := json.Marshal(chatRequest{Message: message})
	if err != nil {
		return "", fmt.Errorf("failed to encode chat request: %w", err)
	}
	return c.post(ctx, "chat", chatPath, "application/json", body, "response")
}

// ExtractDocument uploads file and returns the text the backend extracted
// from it.
func (c *Client) ExtractDocument(ctx context.Context, file io.Reader, filename string) (string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("failed to create multipart form: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to finish multipart form: %w", err)
	}
	return c.post(ctx, "extract_text", extractPath, mw.FormDataContentType(), buf.Bytes(), "text")
}

// SendFollowup asks a question about doc. history is sent verbatim and is
// expected to already contain the question as its last user turn.
func (c *Client) SendFollowup(ctx context.Context, doc string, history models.Transcript) (string, error) {
	body, err := json.Marshal(followupRequest{Doc: doc, History: history.Clone()})
	if err != nil {
		return "", fmt.Errorf("failed to encode followup request: %w", err)
	}
	return c.post(ctx, "followup_chat", followupPath, "application/json", body, "answer")
}

func (c *Client) post(ctx context.Context, op, path, contentType string, body []byte, field string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", classify(ctx, op, err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", transportError(op, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", classify(ctx, op, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", classify(ctx, op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", protocolError(op, resp.StatusCode, "backend returned %s%s", resp.Status, excerpt(data))
	}

	return decodeField(op, resp.StatusCode, data, field)
}

// decodeField extracts a string field from a JSON object body.
func decodeField(op string, status int, data []byte, field string) (string, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return "", protocolError(op, status, "invalid JSON response%s", excerpt(data))
	}
	raw, ok := fields[field]
	if !ok || string(raw) == "null" {
		return "", protocolError(op, status, "response is missing field %q", field)
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", protocolError(op, status, "field %q is not a string", field)
	}
	return value, nil
}

func classify(ctx context.Context, op string, err error) *GatewayError {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return timeoutError(op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return timeoutError(op, err)
	}
	return transportError(op, err)
}

func excerpt(data []byte) string {
	text := strings.Join(strings.Fields(string(data)), " ")
	if text == "" {
		return ""
	}
	if runes := []rune(text); len(runes) > maxErrorExcerpt {
		text = string(runes[:maxErrorExcerpt]) + "..."
	}
	return ": " + text
}
