package translate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxTokens = 1024

func newAnthropicClient(prov Provider, httpClient *http.Client) *anthropic.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(prov.APIKey),
		option.WithHTTPClient(httpClient),
		// Retries are handled by callAnthropic so the shared pause applies.
		option.WithMaxRetries(0),
	}
	if prov.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(prov.BaseURL))
	}
	client := anthropic.NewClient(opts...)
	return &client
}

func (c *Client) callAnthropic(ctx context.Context, systemPrompt, userPrompt string, maxRetries int) (string, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.opts.Provider.Model),
		MaxTokens: anthropicMaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, retryWait(attempt-1)); err != nil {
				return "", err
			}
		}
		if err := c.rl.waitIfPaused(ctx); err != nil {
			return "", err
		}
		c.opts.debug("[DEBUG] %s attempt %d: messages %s", c.opts.Provider.Name, attempt+1, c.opts.Provider.Model)

		message, err := c.anthropic.Messages.New(ctx, params)
		if err == nil {
			var sb strings.Builder
			for _, block := range message.Content {
				if block.Type == "text" {
					sb.WriteString(block.Text)
				}
			}
			if sb.Len() == 0 {
				return "", fmt.Errorf("unexpected response format: no text blocks")
			}
			return sb.String(), nil
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryable(err) {
			return "", fmt.Errorf("non-retryable error: %w", err)
		}
	}
	return "", fmt.Errorf("failed after %d attempts: %w", maxRetries+1, lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return false
}
