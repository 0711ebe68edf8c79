// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/chuli1122/chuli-home-sub001/internal/model"
)

const (
	// MaxResponseSize caps non-streaming response bodies.
	MaxResponseSize = 10 * 1024 * 1024

	userAgent = "chuli/1.0"
)

// Options configures a Client.
type Options struct {
	BaseURL string
	Token   string

	// Timeout bounds non-streaming requests. Streams are bounded only by
	// their context.
	Timeout time.Duration

	// RateLimit is requests per second; zero disables limiting.
	RateLimit float64
	Burst     int

	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client talks to the chat backend.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	stream  *http.Client
	limiter *rate.Limiter
	log     *zap.Logger
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	limit := rate.Inf
	if opts.RateLimit > 0 {
		limit = rate.Limit(opts.RateLimit)
	}

	base := opts.HTTPClient
	if base == nil {
		base = &http.Client{}
	}
	timed := *base
	timed.Timeout = opts.Timeout
	streaming := *base
	streaming.Timeout = 0

	return &Client{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		token:   opts.Token,
		http:    &timed,
		stream:  &streaming,
		limiter: rate.NewLimiter(limit, opts.Burst),
		log:     opts.Logger.Named("api"),
	}
}

// BaseURL returns the backend root.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) messagesURL(sessionID string) string {
	return c.baseURL + "/api/sessions/" + url.PathEscape(sessionID) + "/messages"
}

func (c *Client) setHeaders(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("User-Agent", userAgent)
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
}

// do waits for the limiter, sends req and returns the response. Non-2xx
// responses are converted to *APIError and the body is closed.
func (c *Client) do(client *http.Client, req *http.Request) (*http.Response, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	c.setHeaders(req)

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		c.log.Warn("request failed",
			zap.String("method", req.Method),
			zap.String("path", req.URL.Path),
			zap.Error(err))
		return nil, fmt.Errorf("request failed: %w", err)
	}
	c.log.Debug("response",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, errorFromBody(resp.StatusCode, body)
	}
	return resp, nil
}

// errorFromBody builds an APIError, preferring {"error": "..."} or
// {"detail": "..."} messages over the raw body.
func errorFromBody(status int, body []byte) error {
	var parsed struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &parsed); err == nil {
		switch {
		case parsed.Error != "":
			msg = parsed.Error
		case parsed.Detail != "":
			msg = parsed.Detail
		}
	}
	return &APIError{Status: status, Message: msg}
}

func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, fmt.Errorf("response exceeded maximum size of %d bytes", MaxResponseSize)
	}
	return body, nil
}

// =============================================================================
// HISTORY
// =============================================================================

// pageResponse decodes has_more as a pointer so its absence is detectable.
type pageResponse struct {
	Messages []model.Message `json:"messages"`
	HasMore  *bool           `json:"has_more"`
}

// FetchMessages returns one page of history, sorted ascending.
func (c *Client) FetchMessages(ctx context.Context, sessionID string, opts model.FetchOptions) (model.Page, error) {
	q := url.Values{}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.BeforeID != nil {
		q.Set("before_id", opts.BeforeID.String())
	}
	if opts.Search != "" {
		q.Set("search", opts.Search)
	}
	u := c.messagesURL(sessionID)
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return model.Page{}, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.do(c.http, req)
	if err != nil {
		return model.Page{}, err
	}
	defer resp.Body.Close()

	body, err := readResponse(resp)
	if err != nil {
		return model.Page{}, err
	}

	var pr pageResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return model.Page{}, fmt.Errorf("failed to parse history page: %w", err)
	}
	if pr.HasMore == nil {
		return model.Page{}, ErrMissingHasMore
	}

	page := model.Page{Messages: pr.Messages, HasMore: *pr.HasMore}
	page.Normalize()
	return page, nil
}

// =============================================================================
// MUTATIONS
// =============================================================================

// DeleteMessage deletes a message on the backend. A message that is already
// gone counts as deleted.
func (c *Client) DeleteMessage(ctx context.Context, sessionID string, id model.MessageID) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.messagesURL(sessionID)+"/"+id.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.do(c.http, req)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return fmt.Errorf("delete %s: %w", id, err)
	}
	resp.Body.Close()
	return nil
}

// EditMessage replaces the content of a message on the backend.
func (c *Client) EditMessage(ctx context.Context, sessionID string, id model.MessageID, content string) error {
	body, err := json.Marshal(map[string]string{"content": content})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.messagesURL(sessionID)+"/"+id.String(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := c.do(c.http, req)
	if err != nil {
		return fmt.Errorf("edit %s: %w", id, err)
	}
	resp.Body.Close()
	return nil
}

// =============================================================================
// STREAMING
// =============================================================================

// Stream posts payload and calls onChunk with each non-empty content delta
// until the backend sends [DONE] or closes the stream. Failures after the
// request was accepted are returned as *StreamError carrying the partial
// content.
func (c *Client) Stream(ctx context.Context, sessionID string, payload model.Payload, onChunk func(text string)) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	u := c.baseURL + "/api/sessions/" + url.PathEscape(sessionID) + "/stream"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.do(c.stream, req)
	if err != nil {
		return &StreamError{Err: err}
	}
	defer resp.Body.Close()

	return c.processStream(ctx, resp.Body, onChunk)
}

func (c *Client) processStream(ctx context.Context, body io.Reader, onChunk func(string)) error {
	reader := NewSSEReader(body)
	var received strings.Builder

	fail := func(err error) error {
		return &StreamError{Partial: received.String(), Err: err}
	}

	for {
		select {
		case <-ctx.Done():
			return fail(ctx.Err())
		default:
		}

		event, data, err := reader.ReadEvent()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return fail(ctxErr)
			}
			return fail(err)
		}

		if bytes.Equal(data, doneMarker) {
			return nil
		}

		var chunk streamChunk
		if err := json.Unmarshal(data, &chunk); err != nil {
			c.log.Debug("skipping malformed chunk", zap.ByteString("data", data))
			continue
		}

		if event == "error" || chunk.Error != "" {
			msg := chunk.Error
			if msg == "" {
				msg = "backend reported an error"
			}
			return fail(errors.New(msg))
		}

		if chunk.Content == "" {
			continue
		}
		received.WriteString(chunk.Content)
		onChunk(chunk.Content)
	}
}
