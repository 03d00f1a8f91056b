// Package extract adapts the external text-understanding service. The
// endpoint is OpenAI-compatible (DeepSeek); requests run in JSON mode and
// the nested JSON content is parsed into structured rules and candidates.
package extract

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/kerimala/MKUEMRLP/internal/model"
)

// emptyContentRetries caps retries on 2xx responses with empty content,
// a known flakiness of the service's JSON mode.
const emptyContentRetries = 2

// defaultRetryAfter is used when a 429 carries no usable Retry-After
// header.
const defaultRetryAfter = 60 * time.Second

// ErrEmptyContent marks a response whose body stayed empty after all
// retries.
var ErrEmptyContent = errors.New("empty content from extraction service")

// ParseError marks a 2xx response whose content is not the expected
// structure. Not retryable: the problem is structural, not transient.
type ParseError struct {
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse extraction response: %v (raw: %.200s)", e.Err, e.Raw)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Client calls the extraction service. It is stateless apart from
// configuration and safe for concurrent use.
type Client struct {
	api     *openai.Client
	cfg     model.ServiceConfig
	verbose bool
}

// NewClient validates the service configuration and builds a client.
func NewClient(cfg model.ServiceConfig, verbose bool) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("extraction service API key is required (set NSGX_API_KEY)")
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("extraction service base URL is required")
	}
	if !strings.HasPrefix(cfg.BaseURL, "http://") && !strings.HasPrefix(cfg.BaseURL, "https://") {
		return nil, fmt.Errorf("extraction service base URL must be a valid URL, got: %s", cfg.BaseURL)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = cfg.BaseURL
	clientConfig.HTTPClient = &http.Client{
		Transport: &retryAfterTransport{base: http.DefaultTransport},
	}

	return &Client{
		api:     openai.NewClientWithConfig(clientConfig),
		cfg:     cfg,
		verbose: verbose,
	}, nil
}

// Extract processes one unit with the given model. It returns the parsed
// result together with the raw JSON content for caching. Rate limiting
// (429) is retried for as long as the server keeps asking; all other
// transport failures are permanent for this attempt.
func (c *Client) Extract(ctx context.Context, unit model.TextUnit, instructions, modelName string) (*model.UnitResult, []byte, error) {
	userContent := unit.Text
	// JSON mode requires the marker token somewhere in the prompt.
	if !strings.Contains(strings.ToLower(instructions), "json") &&
		!strings.Contains(strings.ToLower(unit.Text), "json") {
		userContent = "Extract information from the following text and return valid JSON: " + unit.Text
	}

	req := openai.ChatCompletionRequest{
		Model: modelName,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: instructions},
			{Role: openai.ChatMessageRoleUser, Content: userContent},
		},
		Temperature:    c.cfg.Temperature,
		MaxTokens:      c.cfg.MaxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}

	emptyRetries := 0
	for {
		content, err := c.complete(ctx, req, modelName)

		var rateLimited *rateLimitError
		switch {
		case errors.As(err, &rateLimited):
			fmt.Fprintf(os.Stderr, "Warning: rate limited on %s__%s, waiting %v\n",
				unit.DocID, unit.UnitID, rateLimited.retryAfter)
			select {
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-time.After(rateLimited.retryAfter):
			}
			continue

		case errors.Is(err, ErrEmptyContent):
			if emptyRetries < emptyContentRetries {
				emptyRetries++
				if c.verbose {
					fmt.Fprintf(os.Stderr, "Warning: empty content for %s__%s, retrying (%d/%d)\n",
						unit.DocID, unit.UnitID, emptyRetries, emptyContentRetries)
				}
				select {
				case <-ctx.Done():
					return nil, nil, ctx.Err()
				case <-time.After(time.Second):
				}
				continue
			}
			return nil, nil, fmt.Errorf("%s__%s after %d attempts: %w",
				unit.DocID, unit.UnitID, emptyRetries+1, ErrEmptyContent)

		case err != nil:
			return nil, nil, err
		}

		result, err := ParseContent(unit, []byte(content))
		if err != nil {
			return nil, nil, err
		}
		return result, []byte(content), nil
	}
}

// complete performs a single chat completion call with the per-model
// timeout and returns the message content.
func (c *Client) complete(ctx context.Context, req openai.ChatCompletionRequest, modelName string) (string, error) {
	timeout := c.cfg.Timeout
	if modelName == c.cfg.ReasonerModel && c.cfg.ReasonerTimeout > 0 {
		timeout = c.cfg.ReasonerTimeout
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var retryAfter atomic.Int64
	callCtx = context.WithValue(callCtx, retryAfterCtxKey{}, &retryAfter)

	resp, err := c.api.CreateChatCompletion(callCtx, req)
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			wait := defaultRetryAfter
			if d := retryAfter.Load(); d > 0 {
				wait = time.Duration(d)
			}
			return "", &rateLimitError{retryAfter: wait}
		}
		return "", fmt.Errorf("extraction request: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyContent
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyContent
	}
	return content, nil
}

// rateLimitError carries the server-dictated wait before reissuing.
type rateLimitError struct {
	retryAfter time.Duration
}

func (e *rateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %v", e.retryAfter)
}

// retryAfterCtxKey locates the per-call capture slot in the request
// context.
type retryAfterCtxKey struct{}

// retryAfterTransport records the Retry-After header of 429 responses.
// The SDK does not expose response headers on errors, so the wait is
// smuggled out through the request context instead.
type retryAfterTransport struct {
	base http.RoundTripper
}

func (t *retryAfterTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err == nil && resp.StatusCode == http.StatusTooManyRequests {
		if d := parseRetryAfter(resp.Header.Get("Retry-After")); d > 0 {
			if slot, ok := req.Context().Value(retryAfterCtxKey{}).(*atomic.Int64); ok {
				slot.Store(int64(d))
			}
		}
	}
	return resp, err
}

// parseRetryAfter handles the delay-seconds form of the header.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	secs, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
