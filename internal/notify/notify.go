// Package notify posts messages to the chat webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"busybeaver/internal/platform/config"
	"busybeaver/internal/queue"
)

// JobPostMessage is the queue job name for asynchronous posting.
const JobPostMessage = "notify.post_message"

// ErrNotConfigured is returned when no webhook URL is set.
var ErrNotConfigured = errors.New("notify webhook is not configured")

// Message is a chat message.
type Message struct {
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

type apiResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	TS    string `json:"ts,omitempty"`
}

// Client posts to the webhook with a bearer token.
type Client struct {
	url   string
	token string
	http  *http.Client
}

// New builds a client. A nil httpClient gets one with cfg.Timeout.
func New(cfg config.NotifyConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{url: cfg.WebhookURL, token: cfg.Token, http: httpClient}
}

// PostMessage sends msg and returns the message timestamp the API assigned.
func (c *Client) PostMessage(ctx context.Context, msg Message) (string, error) {
	if c.url == "" {
		return "", ErrNotConfigured
	}
	if msg.Channel == "" || msg.Text == "" {
		return "", fmt.Errorf("post message: channel and text are required")
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("post message: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("post message failed: %s", resp.Status)
	}

	var out apiResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if !out.OK {
		return "", fmt.Errorf("post message rejected: %s", out.Error)
	}
	return out.TS, nil
}

// JobHandler runs JobPostMessage jobs. The job result is {"ts": ...}.
func JobHandler(c *Client) queue.HandlerFunc {
	return func(ctx context.Context, job *queue.Job) (any, error) {
		var msg Message
		if err := job.Decode(&msg); err != nil {
			return nil, err
		}
		ts, err := c.PostMessage(ctx, msg)
		if err != nil {
			return nil, err
		}
		return map[string]string{"ts": ts}, nil
	}
}
