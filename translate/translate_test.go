package translate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func init() {
	retryWait = func(int) time.Duration { return time.Millisecond }
}

// ---------------------------------------------------------------------------
// CleanResponse / ParseEntityList
// ---------------------------------------------------------------------------

func TestCleanResponse(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"Was ist die Hauptstadt von Frankreich?", "Was ist die Hauptstadt von Frankreich?"},
		{"<think>\nthe user wants German\n</think>\n\nWer schrieb den Hobbit?", "Wer schrieb den Hobbit?"},
		{"reasoning without opening tag</think>\nBonjour", "Bonjour"},
		{"Here is the translation:\n\n\"Dov'è Roma?\"\n", "Dov'è Roma?"},
		{"```\nこんにちは\n```", "こんにちは"},
		{"「東京はどこ？」", "東京はどこ？"},
		{"   ", ""},
	}
	for _, tt := range tests {
		if got := CleanResponse(tt.in); got != tt.want {
			t.Errorf("CleanResponse(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseEntityList(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"json", `["France", "Paris"]`, []string{"France", "Paris"}},
		{"single quotes", `['The Hobbit', 'J. R. R. Tolkien']`, []string{"The Hobbit", "J. R. R. Tolkien"}},
		{"escaped quote", `['Conan O\'Brien']`, []string{"Conan O'Brien"}},
		{"fenced", "```json\n[\"Rome\"]\n```", []string{"Rome"}},
		{"prose around", "The entities are: [\"Berlin\"] hope this helps", []string{"Berlin"}},
		{"empty", `[]`, []string{}},
		{"dedup", `["Rome", "Rome", " "]`, []string{"Rome"}},
		{"think", "<think>maybe [\"x\"]</think>[\"Tokyo\"]", []string{"Tokyo"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseEntityList(tt.in)
			if err != nil {
				t.Fatalf("error: %v", err)
			}
			if strings.Join(got, "|") != strings.Join(tt.want, "|") || len(got) != len(tt.want) {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseEntityList_Invalid(t *testing.T) {
	for _, in := range []string{"no entities here", "[France, Paris]", "['open"} {
		if _, err := ParseEntityList(in); !errors.Is(err, ErrUnparsable) {
			t.Errorf("ParseEntityList(%q) err = %v, want ErrUnparsable", in, err)
		}
	}
}

// ---------------------------------------------------------------------------
// Prompts
// ---------------------------------------------------------------------------

func TestBuildTranslatePrompt(t *testing.T) {
	p := buildTranslatePrompt(Request{
		Text:       "Who wrote The Hobbit?",
		TargetLang: "it_IT",
		Glossary:   []GlossaryEntry{{Source: "The Hobbit", Target: "Lo Hobbit"}},
	})
	for _, want := range []string{"English text to Italian", `"The Hobbit" -> "Lo Hobbit"`, "Text: Who wrote The Hobbit?"} {
		if !strings.Contains(p, want) {
			t.Errorf("prompt missing %q:\n%s", want, p)
		}
	}

	plain := buildTranslatePrompt(Request{Text: "Hi", TargetLang: "fr_FR"})
	if strings.Contains(plain, "Dictionary") {
		t.Errorf("prompt without glossary mentions a dictionary:\n%s", plain)
	}
}

func TestLoadPrompts(t *testing.T) {
	dir := t.TempDir()

	cfg, err := LoadPrompts(filepath.Join(dir, "missing.json"))
	if err != nil {
		t.Fatalf("missing file: %v", err)
	}
	if cfg.Prompts[PromptTranslate] != DefaultSystemPrompt {
		t.Error("missing file should yield default prompts")
	}

	path := filepath.Join(dir, "prompts.json")
	custom := PromptsConfig{Prompts: map[string]string{PromptExtract: "list entities", PromptTranslate: " "}}
	if err := WritePrompts(path, custom); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadPrompts(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Prompts[PromptExtract] != "list entities" {
		t.Errorf("extract prompt = %q", cfg.Prompts[PromptExtract])
	}
	if cfg.Prompts[PromptTranslate] != DefaultSystemPrompt {
		t.Error("blank override should keep the default")
	}

	os.WriteFile(path, []byte("{"), 0644)
	if _, err := LoadPrompts(path); err == nil {
		t.Error("expected error for malformed prompts file")
	}
}

// ---------------------------------------------------------------------------
// Client construction
// ---------------------------------------------------------------------------

func TestNew_Validation(t *testing.T) {
	provs := DefaultProviders()

	if _, err := New(Options{Provider: provs[ProviderGroq]}); !errors.Is(err, ErrAPIKeyRequired) {
		t.Errorf("groq without key: err = %v", err)
	}
	if _, err := New(Options{Provider: provs[ProviderOllama]}); err != nil {
		t.Errorf("ollama without key: %v", err)
	}
	noModel := provs[ProviderOpenRouter]
	noModel.APIKey = "k"
	if _, err := New(Options{Provider: noModel}); err == nil {
		t.Error("expected error for missing model")
	}
	if _, err := New(Options{}); err == nil {
		t.Error("expected error for missing provider")
	}
}

func TestDefaultProviders(t *testing.T) {
	provs := DefaultProviders()
	for _, id := range ProviderIDs() {
		p, ok := provs[id]
		if !ok {
			t.Errorf("provider %s missing", id)
			continue
		}
		if p.ID != id || p.Name == "" {
			t.Errorf("provider %s: bad definition %+v", id, p)
		}
	}
}

// ---------------------------------------------------------------------------
// HTTP providers
// ---------------------------------------------------------------------------

func TestTranslate_OpenAIChat(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("Authorization = %q", auth)
		}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &got)
		io.WriteString(w, `{"choices":[{"message":{"role":"assistant","content":"Was ist die Hauptstadt von Frankreich?"}}]}`)
	}))
	defer srv.Close()

	c, err := New(Options{Provider: Provider{
		ID: ProviderGroq, Name: "Groq", BaseURL: srv.URL + "/v1", APIKey: "secret", Model: "m",
	}})
	if err != nil {
		t.Fatal(err)
	}
	out, err := c.Translate(context.Background(), Request{Text: "What is the capital of France?", TargetLang: "de_DE"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "Was ist die Hauptstadt von Frankreich?" {
		t.Errorf("translation = %q", out)
	}
	if got.Model != "m" || len(got.Messages) != 2 {
		t.Fatalf("request = %+v", got)
	}
	if !strings.Contains(got.Messages[0].Content, "into German") {
		t.Errorf("system prompt not rendered: %q", got.Messages[0].Content)
	}
}

func TestTranslate_Gemini(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1beta/models/gemini-x:generateContent" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if key := r.Header.Get("x-goog-api-key"); key != "g" {
			t.Errorf("api key header = %q", key)
		}
		io.WriteString(w, `{"candidates":[{"content":{"parts":[{"text":"Chi ha scritto "},{"text":"Lo Hobbit?"}]}}]}`)
	}))
	defer srv.Close()

	c, err := New(Options{Provider: Provider{ID: ProviderGoogle, Name: "Google", BaseURL: srv.URL, APIKey: "g", Model: "gemini-x"}})
	if err != nil {
		t.Fatal(err)
	}
	out, err := c.Translate(context.Background(), Request{Text: "Who wrote The Hobbit?", TargetLang: "it_IT"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "Chi ha scritto Lo Hobbit?" {
		t.Errorf("translation = %q", out)
	}
}

func TestCallHTTPProvider_Retries(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch atomic.AddInt32(&calls, 1) {
		case 1:
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
		case 2:
			w.WriteHeader(http.StatusBadGateway)
		default:
			io.WriteString(w, `{"choices":[{"message":{"content":"ok"}}]}`)
		}
	}))
	defer srv.Close()

	c, _ := New(Options{Provider: Provider{ID: ProviderCustomOpenAI, Name: "t", BaseURL: srv.URL, Model: "m"}})
	out, err := c.Translate(context.Background(), Request{Text: "x", TargetLang: "fr_FR"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "ok" || atomic.LoadInt32(&calls) != 3 {
		t.Errorf("out = %q after %d calls", out, calls)
	}
}

func TestCallHTTPProvider_ClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, `{"error":{"message":"bad key"}}`)
	}))
	defer srv.Close()

	var logged []string
	c, _ := New(Options{
		Provider: Provider{ID: ProviderCustomOpenAI, Name: "t", BaseURL: srv.URL, Model: "m"},
		OnError:  func(format string, args ...any) { logged = append(logged, format) },
	})
	_, err := c.Translate(context.Background(), Request{Text: "x", TargetLang: "fr_FR"})
	if err == nil || !strings.Contains(err.Error(), "status 401") {
		t.Fatalf("err = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if len(logged) != 1 {
		t.Errorf("logged %d errors, want 1", len(logged))
	}
}

func TestTranslate_EmptyReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[{"message":{"content":"<think>hm</think>\n"}}]}`)
	}))
	defer srv.Close()

	c, _ := New(Options{Provider: Provider{ID: ProviderCustomOpenAI, Name: "t", BaseURL: srv.URL, Model: "m"}})
	if _, err := c.Translate(context.Background(), Request{Text: "x", TargetLang: "fr_FR"}); err == nil {
		t.Error("expected error for empty translation")
	}
	out, err := c.Translate(context.Background(), Request{Text: "  ", TargetLang: "fr_FR"})
	if err != nil || out != "" {
		t.Errorf("blank input: %q, %v", out, err)
	}
}

func TestExtractEntities(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"choices":[{"message":{"content":"['France']"}}]}`)
	}))
	defer srv.Close()

	c, _ := New(Options{Provider: Provider{ID: ProviderCustomOpenAI, Name: "t", BaseURL: srv.URL, Model: "m"}})
	ents, err := c.ExtractEntities(context.Background(), "What is the capital of France?")
	if err != nil {
		t.Fatal(err)
	}
	if len(ents) != 1 || ents[0] != "France" {
		t.Errorf("entities = %q", ents)
	}
}

func TestParseRetryDelay(t *testing.T) {
	h := http.Header{}
	if d := parseRetryDelay(h, []byte(`{"error":{"details":[{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"30s"}]}}`)); d != 35*time.Second {
		t.Errorf("RetryInfo delay = %v", d)
	}
	if d := parseRetryDelay(h, []byte(`not json`)); d != 65*time.Second {
		t.Errorf("default delay = %v", d)
	}
	h.Set("Retry-After", "7")
	if d := parseRetryDelay(h, nil); d != 7*time.Second {
		t.Errorf("Retry-After delay = %v", d)
	}
}

// ---------------------------------------------------------------------------
// SDK providers
// ---------------------------------------------------------------------------

func TestTranslate_Anthropic(t *testing.T) {
	var system string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var req struct {
			System []struct {
				Text string `json:"text"`
			} `json:"system"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.System) > 0 {
			system = req.System[0].Text
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"m",
			"content":[{"type":"text","text":"Wo liegt München?"}],
			"stop_reason":"end_turn","usage":{"input_tokens":1,"output_tokens":1}}`)
	}))
	defer srv.Close()

	c, err := New(Options{Provider: Provider{ID: ProviderAnthropic, Name: "Anthropic", BaseURL: srv.URL, APIKey: "a", Model: "m"}})
	if err != nil {
		t.Fatal(err)
	}
	out, err := c.Translate(context.Background(), Request{Text: "Where is Munich?", TargetLang: "de_DE"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "Wo liegt München?" {
		t.Errorf("translation = %q", out)
	}
	if !strings.Contains(system, "German") {
		t.Errorf("system prompt = %q", system)
	}
}

func TestTranslate_Ollama(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/generate":
			var req struct {
				Model  string `json:"model"`
				System string `json:"system"`
				Stream *bool  `json:"stream"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			if req.Stream == nil || *req.Stream {
				t.Error("expected non-streaming request")
			}
			w.Header().Set("Content-Type", "application/json")
			io.WriteString(w, `{"model":"qwen","response":"<think>ok</think>\nOù est Berlin ?","done":true}`)
		case "/api/tags":
			io.WriteString(w, `{"models":[]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c, err := New(Options{Provider: Provider{ID: ProviderOllama, Name: "Ollama", BaseURL: srv.URL, Model: "qwen"}})
	if err != nil {
		t.Fatal(err)
	}
	if !c.Available(context.Background()) {
		t.Error("server should be available")
	}
	out, err := c.Translate(context.Background(), Request{Text: "Where is Berlin?", TargetLang: "fr_FR"})
	if err != nil {
		t.Fatal(err)
	}
	if out != "Où est Berlin ?" {
		t.Errorf("translation = %q", out)
	}
}

func TestRateLimitState(t *testing.T) {
	rl := &rateLimitState{}
	if err := rl.waitIfPaused(context.Background()); err != nil {
		t.Fatal(err)
	}
	rl.pause(time.Hour)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := rl.waitIfPaused(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
	rl.unpause()
	if rl.isPaused() {
		t.Error("still paused after unpause")
	}
}
