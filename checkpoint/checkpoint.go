// Package checkpoint implements entsub.lock, a file that remembers the
// prediction made for every record together with the MD5 checksum of its
// source sentence. A resumed run reuses predictions whose source did not
// change and only sends new or edited sentences through the pipeline.
package checkpoint

import (
	"crypto/md5"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileName is the default checkpoint file name.
const FileName = "entsub.lock"

// Version is the checkpoint format version.
const Version = 1

// Entry is the stored outcome of one record.
type Entry struct {
	Hash       string `yaml:"hash"`
	Prediction string `yaml:"prediction"`
}

// File represents the entsub.lock structure.
type File struct {
	Version int                         `yaml:"version"`
	Locales map[string]map[string]Entry `yaml:"locales"` // locale -> id -> entry

	mu   sync.Mutex `yaml:"-"`
	path string     `yaml:"-"`
}

// New returns an empty checkpoint that saves to path.
func New(path string) *File {
	return &File{
		Version: Version,
		Locales: make(map[string]map[string]Entry),
		path:    path,
	}
}

// Load reads the checkpoint from dir. A missing file yields an empty one.
func Load(dir string) (*File, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile reads the checkpoint at path. A missing file yields an empty one.
func LoadFile(path string) (*File, error) {
	cp := New(path)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cp, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cp); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if cp.Version > Version {
		return nil, fmt.Errorf("%s: unsupported version %d", path, cp.Version)
	}
	cp.path = path
	if cp.Locales == nil {
		cp.Locales = make(map[string]map[string]Entry)
	}
	return cp, nil
}

// Save writes the checkpoint to disk through a temporary file, so an
// interrupted write never leaves a truncated checkpoint behind.
func (cp *File) Save() error {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if cp.path == "" {
		return fmt.Errorf("checkpoint path not set")
	}
	data, err := yaml.Marshal(cp)
	if err != nil {
		return fmt.Errorf("marshaling checkpoint: %w", err)
	}

	tmp := cp.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, cp.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("writing %s: %w", cp.path, err)
	}
	return nil
}

// Path returns the checkpoint path.
func (cp *File) Path() string {
	return cp.path
}

// Hash computes the MD5 hex digest of a string.
func Hash(s string) string {
	return fmt.Sprintf("%x", md5.Sum([]byte(s)))
}

// Lookup returns the stored prediction for a record if its source is
// unchanged.
func (cp *File) Lookup(locale, id, source string) (string, bool) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	e, ok := cp.Locales[locale][id]
	if !ok || e.Hash != Hash(source) {
		return "", false
	}
	return e.Prediction, true
}

// Record stores the prediction made for a record.
func (cp *File) Record(locale, id, source, prediction string) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	if cp.Locales[locale] == nil {
		cp.Locales[locale] = make(map[string]Entry)
	}
	cp.Locales[locale][id] = Entry{Hash: Hash(source), Prediction: prediction}
}

// Clean drops entries of locale whose IDs are not in ids.
func (cp *File) Clean(locale string, ids []string) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	existing := cp.Locales[locale]
	if existing == nil {
		return
	}
	valid := make(map[string]bool, len(ids))
	for _, id := range ids {
		valid[id] = true
	}
	for id := range existing {
		if !valid[id] {
			delete(existing, id)
		}
	}
}

// RemoveLocale forgets every entry of locale.
func (cp *File) RemoveLocale(locale string) {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	delete(cp.Locales, locale)
}

// Stats returns the number of locales and total entries.
func (cp *File) Stats() (locales, entries int) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	locales = len(cp.Locales)
	for _, m := range cp.Locales {
		entries += len(m)
	}
	return
}

// LocaleNames returns the sorted locales.
func (cp *File) LocaleNames() []string {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	out := make([]string, 0, len(cp.Locales))
	for l := range cp.Locales {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// Summary returns a human-readable summary string.
func (cp *File) Summary() string {
	locales, entries := cp.Stats()
	if locales == 0 {
		return "empty"
	}

	var parts []string
	for _, l := range cp.LocaleNames() {
		cp.mu.Lock()
		n := len(cp.Locales[l])
		cp.mu.Unlock()
		parts = append(parts, fmt.Sprintf("%s: %d", l, n))
	}
	return fmt.Sprintf("%d locales, %d predictions (%s)", locales, entries, strings.Join(parts, ", "))
}
