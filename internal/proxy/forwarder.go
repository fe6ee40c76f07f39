// Package proxy forwards chat requests to the conversational backend and
// relays its newline-delimited response stream.
package proxy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"tabletalk-web/internal/jsonl"
)

const (
	DefaultResponseTimeout = 30 * time.Second
	DefaultReadTimeout     = 2 * time.Minute

	relayBufferSize = 32 * 1024
	// cap on how much of an error body is kept for StatusError
	maxErrorBody = 4 * 1024
)

type Config struct {
	BackendURL string
	ChatPath   string
	// ResponseTimeout bounds the wait for the backend's response headers.
	ResponseTimeout time.Duration
	// ReadTimeout bounds the gap between two chunks of the response body.
	// Zero disables the check.
	ReadTimeout time.Duration
}

type Forwarder struct {
	client      *http.Client
	target      string
	readTimeout time.Duration
	logger      *slog.Logger
}

func NewForwarder(cfg Config, logger *slog.Logger) *Forwarder {
	responseTimeout := cfg.ResponseTimeout
	if responseTimeout <= 0 {
		responseTimeout = DefaultResponseTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: responseTimeout,
		// compressed bodies would be buffered by the decoder and arrive in bursts
		DisableCompression: true,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	return &Forwarder{
		// no client timeout: streams may legitimately run for minutes
		client:      &http.Client{Transport: transport},
		target:      strings.TrimRight(cfg.BackendURL, "/") + cfg.ChatPath,
		readTimeout: cfg.ReadTimeout,
		logger:      logger,
	}
}

// Target is the backend URL requests are forwarded to.
func (f *Forwarder) Target() string {
	return f.target
}

// Open POSTs body to the backend chat endpoint. The caller owns the response
// body. Any status code is returned as-is; only transport failures are errors.
func (f *Forwarder) Open(ctx context.Context, body []byte, requestID string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build backend request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", jsonl.ContentType)
	if requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	f.logger.Debug("backend responded",
		"request_id", requestID,
		"status", resp.StatusCode,
		"latency_ms", time.Since(start).Milliseconds())
	return resp, nil
}

type chunk struct {
	data []byte
	err  error
}

// Relay copies body to w as it arrives, flushing after every read when w is an
// http.Flusher. Each chunk is also written to tap when tap is non-nil. It
// returns the number of bytes written to w.
func (f *Forwarder) Relay(ctx context.Context, w io.Writer, body io.Reader, tap io.Writer) (int64, error) {
	chunks := make(chan chunk)
	done := make(chan struct{})
	defer close(done)

	go func() {
		buf := make([]byte, relayBufferSize)
		for {
			n, err := body.Read(buf)
			var data []byte
			if n > 0 {
				data = append([]byte(nil), buf[:n]...)
			}
			select {
			case chunks <- chunk{data: data, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	var stalled <-chan time.Time
	var timer *time.Timer
	if f.readTimeout > 0 {
		timer = time.NewTimer(f.readTimeout)
		defer timer.Stop()
		stalled = timer.C
	}

	flusher, canFlush := w.(http.Flusher)
	var total int64

	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()

		case <-stalled:
			return total, fmt.Errorf("%w for %s", ErrStreamStalled, f.readTimeout)

		case c := <-chunks:
			if len(c.data) > 0 {
				n, err := w.Write(c.data)
				total += int64(n)
				if err != nil {
					return total, fmt.Errorf("write to client: %w", err)
				}
				if canFlush {
					flusher.Flush()
				}
				if tap != nil {
					_, _ = tap.Write(c.data)
				}
			}
			if c.err != nil {
				if errors.Is(c.err, io.EOF) {
					return total, nil
				}
				return total, fmt.Errorf("read from backend: %w", c.err)
			}
			if timer != nil {
				timer.Reset(f.readTimeout)
			}
		}
	}
}

// Lines forwards body and calls onLine for each non-empty line of a
// successful response. A non-2xx answer is reported as *StatusError.
func (f *Forwarder) Lines(ctx context.Context, body []byte, requestID string, onLine func(string)) error {
	resp, err := f.Open(ctx, body, requestID)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	lw := jsonl.NewWriter(onLine)
	_, err = f.Relay(ctx, lw, resp.Body, nil)
	lw.Flush()
	return err
}
