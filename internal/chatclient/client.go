// Package chatclient talks to the chat proxy route from Go.
package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"tabletalk-web/internal/jsonl"
	"tabletalk-web/internal/models"
)

const ChatPath = "/api/chat"

var ErrStreamFailed = errors.New("failed to stream chat")

type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient overrides the HTTP client. Its Timeout must be zero or long
// enough to cover a whole stream.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StreamChat posts payload to the proxy route. Cancelling ctx aborts the
// request and ends the stream.
func (c *Client) StreamChat(ctx context.Context, payload models.ChatPayload) (*Stream, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+ChatPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", jsonl.ContentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrStreamFailed, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 || resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, fmt.Errorf("%w: status %d", ErrStreamFailed, resp.StatusCode)
	}

	return &Stream{body: resp.Body, lines: jsonl.NewReader(resp.Body)}, nil
}

// Stream yields the response lines in arrival order.
type Stream struct {
	body  io.ReadCloser
	lines *jsonl.Reader
}

func (s *Stream) Next() bool {
	return s.lines.Next()
}

func (s *Stream) Line() string {
	return s.lines.Line()
}

func (s *Stream) Err() error {
	return s.lines.Err()
}

func (s *Stream) Close() error {
	return s.body.Close()
}
