// Package assistant is a minimal client for OpenAI-compatible chat
// completion endpoints, used by the /ask command.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrEmptyResponse is returned when the upstream answered without choices.
var ErrEmptyResponse = errors.New("assistant: empty response")

// StatusError reports a non-200 upstream response.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string { return "assistant: unexpected status " + e.Status }

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	// SystemPrompt is prepended to every conversation when non-empty.
	SystemPrompt string
	// Timeout bounds one HTTP attempt.
	Timeout time.Duration
	// MaxTries bounds attempts on 429/5xx and transport errors.
	MaxTries uint
}

// Client talks to POST {BaseURL}/chat/completions.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient returns a Client with defaults filled in.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 3
	}
	return &Client{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Ask sends prompt as a single user turn and returns the first choice.
// Rate limiting (429) and server errors are retried with exponential backoff.
func (c *Client) Ask(ctx context.Context, prompt string) (string, error) {
	msgs := make([]chatMessage, 0, 2)
	if c.cfg.SystemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: c.cfg.SystemPrompt})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: prompt})
	body, err := json.Marshal(chatRequest{Model: c.cfg.Model, Messages: msgs})
	if err != nil {
		return "", err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second

	out, err := backoff.Retry(ctx, func() (chatResponse, error) {
		return c.do(ctx, body)
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(c.cfg.MaxTries))
	if err != nil {
		return "", err
	}
	if len(out.Choices) == 0 {
		return "", ErrEmptyResponse
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

func (c *Client) do(ctx context.Context, body []byte) (chatResponse, error) {
	var out chatResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return out, backoff.Permanent(err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return out, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		serr := &StatusError{Code: resp.StatusCode, Status: resp.Status}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return out, serr
		}
		return out, backoff.Permanent(serr)
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, backoff.Permanent(fmt.Errorf("assistant: decode: %w", err))
	}
	return out, nil
}
