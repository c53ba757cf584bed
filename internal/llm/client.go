// ABOUTME: Chat-model capability consumed by the memory pipeline
// ABOUTME: go-openai backed client with per-call endpoint, retry, and timeout
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/junelab/palmchat/internal/util"
	openai "github.com/sashabaranov/go-openai"
)

// ErrCapabilityMissing is returned when a call lacks its endpoint, key, or
// model. The memory pipeline treats it as a silent no-op.
var ErrCapabilityMissing = errors.New("chat model capability missing")

// DefaultTimeout bounds a single model call.
const DefaultTimeout = 30 * time.Second

// Message is one chat message in a model call.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request describes one chat-model call. URL, Key, and Model come from the
// apiSettings record, not process config, so per-database endpoints work.
type Request struct {
	URL         string
	Key         string
	Model       string
	Messages    []Message
	Temperature float32
	MaxTokens   int
	Timeout     time.Duration
}

// Choice mirrors the wire shape the pipeline validates against.
type Choice struct {
	Message Message `json:"message"`
}

// Response is the validated subset of a chat completion.
type Response struct {
	Choices []Choice `json:"choices"`
}

// Content defensively extracts the first choice's text: choices non-empty,
// content a non-blank string. Anything else reports false.
func (r *Response) Content() (string, bool) {
	if r == nil || len(r.Choices) == 0 {
		return "", false
	}
	content := r.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", false
	}
	return content, true
}

// Caller is the capability interface the core consumes. The production
// implementation is Client; tests substitute mocks.
type Caller interface {
	CallChatModel(ctx context.Context, req Request) (*Response, error)
}

// Client calls OpenAI-compatible endpoints with retry and backoff.
type Client struct {
	maxRetries int
	retryDelay time.Duration
}

// NewClient returns a client with the given retry policy.
func NewClient(maxRetries int, retryDelay time.Duration) *Client {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if retryDelay <= 0 {
		retryDelay = 2 * time.Second
	}
	return &Client{maxRetries: maxRetries, retryDelay: retryDelay}
}

// CallChatModel performs one chat completion against the endpoint named in
// the request.
func (c *Client) CallChatModel(ctx context.Context, req Request) (*Response, error) {
	if req.URL == "" || req.Model == "" {
		return nil, ErrCapabilityMissing
	}

	cfg := openai.DefaultConfig(req.Key)
	cfg.BaseURL = strings.TrimSuffix(req.URL, "/")
	client := openai.NewClientWithConfig(cfg)

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	messages := make([]openai.ChatCompletionMessage, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(util.CalculateBackoff(c.retryDelay, attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, timeout)
		resp, err := client.CreateChatCompletion(callCtx, openai.ChatCompletionRequest{
			Model:       req.Model,
			Messages:    messages,
			Temperature: req.Temperature,
			MaxTokens:   req.MaxTokens,
		})
		cancel()

		if err != nil {
			lastErr = fmt.Errorf("attempt %d: %w", attempt+1, err)
			continue
		}

		out := &Response{Choices: make([]Choice, len(resp.Choices))}
		for i, ch := range resp.Choices {
			out.Choices[i] = Choice{Message: Message{
				Role:    ch.Message.Role,
				Content: ch.Message.Content,
			}}
		}
		return out, nil
	}
	return nil, fmt.Errorf("chat model call failed after %d attempts: %w", c.maxRetries+1, lastErr)
}
