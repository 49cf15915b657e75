// Package config reads .entsub.yaml, the per-directory defaults for the
// entsub command. Command-line flags override every value set here.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// FileName is the default config file name.
const FileName = ".entsub.yaml"

// File is the top-level .entsub.yaml structure.
type File struct {
	// Provider is the translation provider ID (google, groq, ollama, ...).
	Provider string `yaml:"provider,omitempty"`
	Model    string `yaml:"model,omitempty"`
	BaseURL  string `yaml:"base_url,omitempty" validate:"omitempty,url"`
	Proxy    string `yaml:"proxy,omitempty" validate:"omitempty,url"`
	// Timeout is the per-request translation timeout.
	Timeout time.Duration `yaml:"timeout,omitempty" validate:"min=0"`

	// Strategy is post-edit, pre-edit or hint.
	Strategy string `yaml:"strategy,omitempty" validate:"omitempty,oneof=post-edit pre-edit hint"`
	// Extractor is bio, llm or none.
	Extractor  string `yaml:"extractor,omitempty" validate:"omitempty,oneof=bio llm none"`
	NERModel   string `yaml:"ner_model,omitempty"`
	SkipEntity bool   `yaml:"skip_entity,omitempty"`

	// Dict is a JSONL entity dictionary consulted before the knowledge base.
	Dict string `yaml:"dict,omitempty"`
	// Prompts is a prompts.json file overriding the built-in prompts.
	Prompts string `yaml:"prompts,omitempty"`
	// Languages restricts a run to these target locales.
	Languages []string `yaml:"languages,omitempty" validate:"dive,required"`

	KB KB `yaml:"kb,omitempty"`

	// Checkpoint is the checkpoint file path (default entsub.lock).
	Checkpoint string `yaml:"checkpoint,omitempty"`
	// LogFile receives a copy of all diagnostics, rotated by size.
	LogFile string `yaml:"log_file,omitempty"`

	path string
}

// KB configures the knowledge-base client.
type KB struct {
	URL     string        `yaml:"url,omitempty" validate:"omitempty,url"`
	Rate    time.Duration `yaml:"rate,omitempty" validate:"min=0"`
	Retries int           `yaml:"retries,omitempty" validate:"min=0,max=10"`
	Timeout time.Duration `yaml:"timeout,omitempty" validate:"min=0"`
	Proxy   string        `yaml:"proxy,omitempty" validate:"omitempty,url"`
}

// Defaults applied when a field is unset.
const (
	DefaultStrategy  = "post-edit"
	DefaultExtractor = "bio"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Load reads .entsub.yaml from dir. It returns nil, nil when the file does
// not exist.
func Load(dir string) (*File, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile reads and validates a config file. It returns nil, nil when the
// file does not exist.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	f.path = path

	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.applyDefaults()
	return &f, nil
}

// Validate checks field values.
func (f *File) Validate() error {
	err := validate.Struct(f)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: invalid value %v (%s)", fieldPath(fe.Namespace()), fe.Value(), fe.Tag()))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// fieldPath drops the struct name from a validator namespace
// ("File.kb.url" -> "kb.url").
func fieldPath(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

func (f *File) applyDefaults() {
	if f.Strategy == "" {
		f.Strategy = DefaultStrategy
	}
	if f.Extractor == "" {
		f.Extractor = DefaultExtractor
	}
	dir := filepath.Dir(f.path)
	f.Dict = resolvePath(dir, f.Dict)
	f.Prompts = resolvePath(dir, f.Prompts)
	f.Checkpoint = resolvePath(dir, f.Checkpoint)
	f.LogFile = resolvePath(dir, f.LogFile)
	// A model may be a Hugging Face name rather than a path.
	if local := resolvePath(dir, f.NERModel); local != "" {
		if _, err := os.Stat(local); err == nil {
			f.NERModel = local
		}
	}
}

// resolvePath makes p relative to the config file's directory.
func resolvePath(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}

// Path returns the file the config was loaded from.
func (f *File) Path() string {
	return f.path
}

// WantsLanguage reports whether a run should include target locale lang.
// An empty language list includes every locale.
func (f *File) WantsLanguage(lang string) bool {
	if f == nil || len(f.Languages) == 0 {
		return true
	}
	for _, l := range f.Languages {
		if strings.EqualFold(l, lang) {
			return true
		}
	}
	return false
}
