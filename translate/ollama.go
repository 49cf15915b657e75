package translate

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

func newOllamaClient(prov Provider, httpClient *http.Client) (*api.Client, error) {
	base, err := url.Parse(strings.TrimRight(prov.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid ollama URL %q: %w", prov.BaseURL, err)
	}
	return api.NewClient(base, httpClient), nil
}

func (c *Client) callOllama(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	stream := false
	req := &api.GenerateRequest{
		Model:  c.opts.Provider.Model,
		System: systemPrompt,
		Prompt: userPrompt,
		Stream: &stream,
		Options: map[string]any{
			"temperature": c.opts.effectiveTemperature(),
		},
	}
	c.opts.debug("[DEBUG] %s: generate %s", c.opts.Provider.Name, req.Model)

	var sb strings.Builder
	err := c.ollama.Generate(ctx, req, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generation failed: %w", err)
	}
	return sb.String(), nil
}

// Available reports whether the provider answers a cheap request. Only
// Ollama is probed; hosted providers are assumed reachable.
func (c *Client) Available(ctx context.Context) bool {
	if c.ollama == nil {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := c.ollama.List(ctx)
	return err == nil
}
