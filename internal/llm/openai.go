package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Ensure Client implements the interface.
var _ Completer = (*Client)(nil)

// Default configuration values.
const (
	DefaultTimeout = 120 * time.Second
)

// Config holds configuration for an OpenAI-compatible /completions endpoint.
type Config struct {
	BaseURL string
	APIKey  string
	Model   string
	// Timeout bounds batch requests. Streams are bounded by their context only.
	Timeout time.Duration
}

// Client calls POST {BaseURL}/completions.
type Client struct {
	client  *http.Client
	stream  *http.Client
	baseURL string
	apiKey  string
	model   string
}

type completionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	Temperature float64  `json:"temperature"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	Stream      bool     `json:"stream,omitempty"`
}

type completionResponse struct {
	Choices []struct {
		Text         string  `json:"text"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewClient creates a completion client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("llm: base URL is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm: model is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Client{
		client:  &http.Client{Timeout: cfg.Timeout},
		stream:  &http.Client{},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
	}, nil
}

func (c *Client) newRequest(ctx context.Context, prompt string, opts Options, stream bool) (*http.Request, error) {
	body, err := json.Marshal(completionRequest{
		Model:       c.model,
		Prompt:      prompt,
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		Stop:        opts.Stop,
		Stream:      stream,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if stream {
		req.Header.Set("Accept", "text/event-stream")
	}
	return req, nil
}

// Complete returns the full completion text.
func (c *Client) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	req, err := c.newRequest(ctx, prompt, opts, false)
	if err != nil {
		return "", err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("llm error (status %d): %s", resp.StatusCode, string(body))
	}

	var out completionResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if out.Error != nil {
		return "", fmt.Errorf("llm error: %s", out.Error.Message)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("llm returned no choices")
	}
	return out.Choices[0].Text, nil
}

// StreamComplete streams completion text from server-sent events.
func (c *Client) StreamComplete(ctx context.Context, prompt string, opts Options) (<-chan Delta, error) {
	req, err := c.newRequest(ctx, prompt, opts, true)
	if err != nil {
		return nil, err
	}

	resp, err := c.stream.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("llm error (status %d): %s", resp.StatusCode, string(body))
	}

	ch := make(chan Delta)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		send := func(d Delta) bool {
			select {
			case ch <- d:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			data, ok := strings.CutPrefix(line, "data:")
			if !ok {
				continue
			}
			data = strings.TrimSpace(data)
			if data == "[DONE]" {
				return
			}

			var chunk completionResponse
			if err := json.Unmarshal([]byte(data), &chunk); err != nil {
				send(Delta{Err: fmt.Errorf("decode stream chunk: %w", err)})
				return
			}
			if chunk.Error != nil {
				send(Delta{Err: fmt.Errorf("llm error: %s", chunk.Error.Message)})
				return
			}
			for _, choice := range chunk.Choices {
				if choice.Text == "" {
					continue
				}
				if !send(Delta{Text: choice.Text}) {
					return
				}
			}
		}
		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			send(Delta{Err: fmt.Errorf("read stream: %w", err)})
		}
	}()

	return ch, nil
}
