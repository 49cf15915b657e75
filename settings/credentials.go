// Package settings stores entsub user settings: provider credentials and
// prompt overrides.
//
// All settings live in the XDG data directory:
//
//	$XDG_DATA_HOME/entsub/  (default: ~/.local/share/entsub/)
//
// Files stored:
//   - auth.json     API keys, base URLs and preferred models per provider
//   - prompts.json  translation and extraction prompt overrides
//
// auth.json is a JSON object keyed by provider ID. It is written with 0600
// permissions.
//
// Lookup order for API keys:
//  1. --api-key flag (highest priority)
//  2. ENTSUB_API_KEY environment variable
//  3. the provider's own environment variable (GROQ_API_KEY, ...)
//  4. this credential store
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

const (
	dataDirName = "entsub"
	fileName    = "auth.json"
	promptsName = "prompts.json"
)

// Info is the entry stored per provider in auth.json.
type Info struct {
	Key     string `json:"key,omitempty"`
	BaseURL string `json:"baseUrl,omitempty"`
	Model   string `json:"model,omitempty"`
}

// Store holds all provider credentials, keyed by provider ID.
type Store map[string]*Info

// ---------------------------------------------------------------------------
// File paths
// ---------------------------------------------------------------------------

// dataDir respects $XDG_DATA_HOME and falls back to ~/.local/share.
func dataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, dataDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", dataDirName), nil
}

func filePath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, fileName), nil
}

// FilePath returns the auth.json path for display purposes.
func FilePath() string {
	p, err := filePath()
	if err != nil {
		return ""
	}
	return p
}

// PromptsFilePath returns the path to prompts.json.
func PromptsFilePath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, promptsName), nil
}

// DataDir returns the entsub data directory. Downloaded NER models are
// kept in its models/ subdirectory.
func DataDir() (string, error) {
	return dataDir()
}

// ---------------------------------------------------------------------------
// Load / Save
// ---------------------------------------------------------------------------

// Load reads the credential store. A missing or invalid file yields an
// empty store.
func Load() Store {
	path, err := filePath()
	if err != nil {
		return make(Store)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return make(Store)
	}
	var store Store
	if err := json.Unmarshal(data, &store); err != nil || store == nil {
		return make(Store)
	}
	return store
}

// Save writes the credential store with 0600 permissions.
func Save(store Store) error {
	path, err := filePath()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(store, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing auth file: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Get / Set / Remove
// ---------------------------------------------------------------------------

// Get returns the entry for a provider, or nil if not found.
func Get(providerID string) *Info {
	return Load()[providerID]
}

// Set stores an entry for a provider, replacing any previous one.
func Set(providerID string, info *Info) error {
	store := Load()
	store[providerID] = info
	return Save(store)
}

// Remove deletes the entry for a provider.
func Remove(providerID string) error {
	store := Load()
	if _, ok := store[providerID]; !ok {
		return nil
	}
	delete(store, providerID)
	return Save(store)
}

// RemoveAll removes all stored credentials.
func RemoveAll() error {
	path, err := filePath()
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing auth file: %w", err)
	}
	return nil
}

// Providers returns the stored provider IDs, sorted.
func Providers() []string {
	store := Load()
	ids := make([]string, 0, len(store))
	for id := range store {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GetAPIKey returns the stored API key for a provider, or "".
func GetAPIKey(providerID string) string {
	if info := Get(providerID); info != nil {
		return info.Key
	}
	return ""
}

// GetBaseURL returns the stored base URL for a provider, or "".
func GetBaseURL(providerID string) string {
	if info := Get(providerID); info != nil {
		return info.BaseURL
	}
	return ""
}

// GetModel returns the stored model for a provider, or "".
func GetModel(providerID string) string {
	if info := Get(providerID); info != nil {
		return info.Model
	}
	return ""
}

// ---------------------------------------------------------------------------
// Environment
// ---------------------------------------------------------------------------

// EnvAPIKey is the provider-independent API key variable.
const EnvAPIKey = "ENTSUB_API_KEY"

// providerEnv maps provider IDs to their conventional key variables.
var providerEnv = map[string][]string{
	"google":        {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
	"groq":          {"GROQ_API_KEY"},
	"qwen":          {"DASHSCOPE_API_KEY"},
	"openrouter":    {"OPENROUTER_API_KEY"},
	"custom-openai": {"OPENAI_API_KEY"},
	"anthropic":     {"ANTHROPIC_API_KEY"},
}

// ResolveAPIKey applies the lookup order documented on the package: flag,
// ENTSUB_API_KEY, provider variable, credential store.
func ResolveAPIKey(providerID, flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv(EnvAPIKey); v != "" {
		return v
	}
	for _, name := range providerEnv[providerID] {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return GetAPIKey(providerID)
}

// MaskKey returns a masked version of a key for display.
func MaskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
