// Package translate sends sentences to an AI provider for translation and
// entity extraction. Supported providers: Google AI (Gemini), Groq, Qwen
// (DashScope), OpenRouter, any OpenAI-compatible endpoint, Anthropic and
// Ollama.
package translate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/ollama/ollama/api"

	"github.com/eamt-tools/entsub/langmeta"
	"github.com/eamt-tools/entsub/netclient"
)

// ---------------------------------------------------------------------------
// Provider IDs
// ---------------------------------------------------------------------------

const (
	ProviderGoogle       = "google"
	ProviderGroq         = "groq"
	ProviderQwen         = "qwen"
	ProviderOpenRouter   = "openrouter"
	ProviderCustomOpenAI = "custom-openai"
	ProviderAnthropic    = "anthropic"
	ProviderOllama       = "ollama"
)

// ErrAPIKeyRequired is returned when a hosted provider has no API key.
var ErrAPIKeyRequired = errors.New("API key required")

// ---------------------------------------------------------------------------
// Provider configuration
// ---------------------------------------------------------------------------

// Provider holds the configuration for an AI translation service.
type Provider struct {
	// ID is the provider identifier (google, groq, ollama, etc.).
	ID string
	// Name is the display name.
	Name string
	// BaseURL is the API base URL.
	BaseURL string
	// APIKey is the authentication key (empty for local services).
	APIKey string
	// Model is the model identifier.
	Model string
	// Proxy is an optional HTTP/HTTPS proxy URL.
	Proxy string
	// Timeout is the request timeout.
	Timeout time.Duration
}

// NeedsAPIKey reports whether the provider is a hosted service.
func (p Provider) NeedsAPIKey() bool {
	return p.ID != ProviderOllama && p.ID != ProviderCustomOpenAI
}

// DefaultProviders returns the pre-configured provider definitions.
func DefaultProviders() map[string]Provider {
	return map[string]Provider{
		ProviderGoogle: {
			ID:      ProviderGoogle,
			Name:    "Google AI (Gemini)",
			BaseURL: "https://generativelanguage.googleapis.com",
			Model:   "gemini-2.0-flash",
			Timeout: 120 * time.Second,
		},
		ProviderGroq: {
			ID:      ProviderGroq,
			Name:    "Groq",
			BaseURL: "https://api.groq.com/openai/v1",
			Model:   "llama-3.3-70b-versatile",
			Timeout: 60 * time.Second,
		},
		ProviderQwen: {
			ID:      ProviderQwen,
			Name:    "Qwen (DashScope)",
			BaseURL: "https://dashscope-intl.aliyuncs.com/compatible-mode/v1",
			Model:   "qwen-mt-plus",
			Timeout: 120 * time.Second,
		},
		ProviderOpenRouter: {
			ID:      ProviderOpenRouter,
			Name:    "OpenRouter",
			BaseURL: "https://openrouter.ai/api/v1",
			Model:   "",
			Timeout: 120 * time.Second,
		},
		ProviderCustomOpenAI: {
			ID:      ProviderCustomOpenAI,
			Name:    "Custom OpenAI",
			Model:   "",
			Timeout: 60 * time.Second,
		},
		ProviderAnthropic: {
			ID:      ProviderAnthropic,
			Name:    "Anthropic",
			BaseURL: "https://api.anthropic.com",
			Model:   "claude-3-5-haiku-latest",
			Timeout: 120 * time.Second,
		},
		ProviderOllama: {
			ID:      ProviderOllama,
			Name:    "Ollama",
			BaseURL: "http://localhost:11434",
			Model:   "qwen2.5:7b",
			Timeout: 300 * time.Second,
		},
	}
}

// ProviderIDs returns the known provider IDs in display order.
func ProviderIDs() []string {
	return []string{
		ProviderGoogle, ProviderGroq, ProviderQwen, ProviderOpenRouter,
		ProviderCustomOpenAI, ProviderAnthropic, ProviderOllama,
	}
}

// ---------------------------------------------------------------------------
// Prompts
// ---------------------------------------------------------------------------

// DefaultSystemPrompt asks for a single translated sentence.
const DefaultSystemPrompt = `You are a professional translator. Translate the user's English text into {{targetLang}}.

RULES:
- Translate for naturalness and fluency in {{targetLang}}, not word-for-word.
- Render names of people, places, organizations, works and events with the name commonly used in {{targetLang}}.
- When an entity translation dictionary is given, use those renderings exactly.
- Keep the question form, numbers and punctuation of the source.
- Return ONLY the translated text on a single line, with no quotes, notes or explanations.`

// ExtractSystemPrompt asks for the named entities of a sentence.
const ExtractSystemPrompt = `You are a helpful assistant that extracts named entities from text. Always return the named entities as a JSON array of strings, such as ["Entity1", "Entity2"], copying each entity exactly as it appears in the text. If no entities are found, return an empty array [].`

// PromptsConfig holds prompt overrides loaded from prompts.json.
type PromptsConfig struct {
	Prompts map[string]string `json:"prompts"`
}

// Prompt keys in PromptsConfig.
const (
	PromptTranslate = "translate"
	PromptExtract   = "extract"
)

// DefaultPrompts returns the built-in prompts keyed by purpose.
func DefaultPrompts() PromptsConfig {
	return PromptsConfig{Prompts: map[string]string{
		PromptTranslate: DefaultSystemPrompt,
		PromptExtract:   ExtractSystemPrompt,
	}}
}

// LoadPrompts reads prompt overrides from path. A missing file yields the
// built-in prompts.
func LoadPrompts(path string) (PromptsConfig, error) {
	cfg := DefaultPrompts()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read prompts file: %w", err)
	}

	var loaded PromptsConfig
	if err := json.Unmarshal(data, &loaded); err != nil {
		return cfg, fmt.Errorf("failed to parse prompts file: %w", err)
	}
	for k, v := range loaded.Prompts {
		if strings.TrimSpace(v) != "" {
			cfg.Prompts[k] = v
		}
	}
	return cfg, nil
}

// WritePrompts writes cfg to path as formatted JSON.
func WritePrompts(path string, cfg PromptsConfig) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling prompts: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating prompts directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing prompts file: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Requests
// ---------------------------------------------------------------------------

// GlossaryEntry pins the rendering of one entity.
type GlossaryEntry struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// Request is one sentence to translate.
type Request struct {
	Text string
	// SourceLang defaults to English.
	SourceLang string
	TargetLang string
	// Glossary is an optional entity translation dictionary.
	Glossary []GlossaryEntry
}

// Translator maps a sentence into its target language.
type Translator interface {
	Translate(ctx context.Context, req Request) (string, error)
}

// TranslatorFunc adapts a function to Translator.
type TranslatorFunc func(ctx context.Context, req Request) (string, error)

// Translate calls f.
func (f TranslatorFunc) Translate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// ---------------------------------------------------------------------------
// Client options
// ---------------------------------------------------------------------------

// Options controls the client behavior.
type Options struct {
	// Provider is the AI provider configuration.
	Provider Provider
	// Timeout is the per-request timeout (overrides provider timeout if set).
	Timeout time.Duration
	// MaxRetries is the maximum number of retries on rate limit (429),
	// 5xx and transport errors. Default: 3.
	MaxRetries int
	// Temperature for sampling. Default: 0.3.
	Temperature float64
	// Prompts overrides the built-in prompts.
	Prompts PromptsConfig
	// OnLog emits log messages during translation.
	OnLog func(format string, args ...any)
	// OnError emits error messages during translation.
	OnError func(format string, args ...any)
	// Verbose enables detailed logging.
	Verbose bool
}

func (o *Options) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) logError(format string, args ...any) {
	if o.OnError != nil {
		o.OnError(format, args...)
	} else if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) debug(format string, args ...any) {
	if o.Verbose {
		o.log(format, args...)
	}
}

func (o *Options) effectiveTimeout() time.Duration {
	if o.Timeout > 0 {
		return o.Timeout
	}
	if o.Provider.Timeout > 0 {
		return o.Provider.Timeout
	}
	return 120 * time.Second
}

func (o *Options) effectiveMaxRetries() int {
	if o.MaxRetries > 0 {
		return o.MaxRetries
	}
	return 3
}

func (o *Options) effectiveTemperature() float64 {
	if o.Temperature > 0 {
		return o.Temperature
	}
	return 0.3
}

func (o *Options) prompt(key string) string {
	if p, ok := o.Prompts.Prompts[key]; ok && p != "" {
		return p
	}
	return DefaultPrompts().Prompts[key]
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// Client talks to one provider. It is safe for concurrent use.
type Client struct {
	opts Options
	rl   *rateLimitState

	httpClient *http.Client
	anthropic  *anthropic.Client
	ollama     *api.Client
}

var _ Translator = (*Client)(nil)

// New validates opts and builds a client for its provider.
func New(opts Options) (*Client, error) {
	prov := opts.Provider
	if prov.ID == "" {
		return nil, fmt.Errorf("no provider selected")
	}
	if prov.Model == "" {
		return nil, fmt.Errorf("provider %s: no model set", prov.ID)
	}
	if prov.APIKey == "" && prov.NeedsAPIKey() {
		return nil, fmt.Errorf("provider %s: %w", prov.ID, ErrAPIKeyRequired)
	}
	if prov.BaseURL == "" && prov.ID != ProviderAnthropic {
		return nil, fmt.Errorf("provider %s: no base URL set", prov.ID)
	}

	c := &Client{
		opts:       opts,
		rl:         &rateLimitState{},
		httpClient: netclient.New(prov.Proxy, opts.effectiveTimeout()),
	}

	switch prov.ID {
	case ProviderAnthropic:
		c.anthropic = newAnthropicClient(prov, c.httpClient)
	case ProviderOllama:
		oc, err := newOllamaClient(prov, c.httpClient)
		if err != nil {
			return nil, err
		}
		c.ollama = oc
	}
	return c, nil
}

// Provider returns the client's provider configuration.
func (c *Client) Provider() Provider { return c.opts.Provider }

// Translate implements Translator.
func (c *Client) Translate(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Text) == "" {
		return "", nil
	}
	system := strings.ReplaceAll(c.opts.prompt(PromptTranslate), "{{targetLang}}", langmeta.EnglishName(req.TargetLang))
	user := buildTranslatePrompt(req)

	out, err := c.complete(ctx, system, user)
	if err != nil {
		c.opts.logError("%s: translation failed: %v", c.opts.Provider.Name, err)
		return "", err
	}
	text := CleanResponse(out)
	if text == "" {
		return "", fmt.Errorf("%s returned an empty translation", c.opts.Provider.Name)
	}
	return text, nil
}

// ExtractEntities asks the model for the named entities in text.
func (c *Client) ExtractEntities(ctx context.Context, text string) ([]string, error) {
	out, err := c.complete(ctx, c.opts.prompt(PromptExtract), text)
	if err != nil {
		return nil, err
	}
	return ParseEntityList(out)
}

// buildTranslatePrompt renders the user message: the optional dictionary
// followed by the text.
func buildTranslatePrompt(req Request) string {
	var b strings.Builder
	src := req.SourceLang
	if src == "" {
		src = "en"
	}
	fmt.Fprintf(&b, "Translate the following %s text to %s", langmeta.EnglishName(src), langmeta.EnglishName(req.TargetLang))
	if len(req.Glossary) > 0 {
		b.WriteString(", using the given entity translation dictionary.\n- Dictionary:\n")
		for _, g := range req.Glossary {
			fmt.Fprintf(&b, "  - %q -> %q\n", g.Source, g.Target)
		}
	} else {
		b.WriteString(".\n")
	}
	fmt.Fprintf(&b, "\nText: %s", req.Text)
	return b.String()
}

// complete sends one system+user exchange to the provider.
func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	prov := c.opts.Provider
	maxRetries := c.opts.effectiveMaxRetries()

	switch prov.ID {
	case ProviderAnthropic:
		return c.callAnthropic(ctx, system, user, maxRetries)
	case ProviderOllama:
		return c.callOllama(ctx, system, user)
	case ProviderGoogle:
		return c.callHTTPProvider(ctx, system, user, formatGeminiNative, maxRetries)
	default:
		return c.callHTTPProvider(ctx, system, user, formatOpenAIChat, maxRetries)
	}
}
