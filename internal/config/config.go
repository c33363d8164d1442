// Package config is a layered, read-only key-value store over an INI file,
// with typed getters and a sensitive-value resolver that delegates to
// internal/secrets. Sections and keys are case-sensitive; a DEFAULT
// section supplies fallbacks for every other section, matching Python's
// configparser semantics the original worker relies on.
package config

import (
	"fmt"
	"strconv"

	"gopkg.in/ini.v1"

	"github.com/neicnordic/ingest-worker/internal/secrets"
)

// Store wraps a loaded INI file. It is immutable after Load.
type Store struct {
	file *ini.File
}

// Load reads path as an INI document with the delimiters, comment prefixes
// and DEFAULT-section fallback the original config module uses, and with
// interpolation disabled.
func Load(path string) (*Store, error) {
	file, err := ini.LoadSources(ini.LoadOptions{
		IgnoreInlineComment:   true,
		Insensitive:           false,
		InsensitiveSections:   false,
		KeyValueDelimiters:    "=:",
		KeyValueDelimiterOnWrite: "=",
	}, path)
	if err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return &Store{file: file}, nil
}

// section returns the named section with every DEFAULT key it lacks
// filled in, giving configparser's DEFAULT fallback.
func (s *Store) section(name string) *ini.Section {
	sec, err := s.file.GetSection(name)
	if err != nil {
		sec = s.file.Section(name)
	}
	if name != ini.DefaultSection {
		for _, k := range s.file.Section(ini.DefaultSection).Keys() {
			if !sec.HasKey(k.Name()) {
				_, _ = sec.NewKey(k.Name(), k.Value())
			}
		}
	}
	return sec
}

// Get returns the raw string value for section/key, or def when absent.
func (s *Store) Get(section, key, def string) string {
	sec := s.section(section)
	if !sec.HasKey(key) {
		return def
	}
	return sec.Key(key).Value()
}

// GetRequired returns the raw string value for section/key, failing if the
// key is absent from both the named section and DEFAULT.
func (s *Store) GetRequired(section, key string) (string, error) {
	sec := s.section(section)
	if !sec.HasKey(key) {
		return "", fmt.Errorf("missing required config key [%s] %s", section, key)
	}
	return sec.Key(key).Value(), nil
}

// GetInt returns the integer value for section/key, or def when absent or
// unparsable.
func (s *Store) GetInt(section, key string, def int) int {
	sec := s.section(section)
	if !sec.HasKey(key) {
		return def
	}
	v, err := strconv.Atoi(sec.Key(key).Value())
	if err != nil {
		return def
	}
	return v
}

// GetBool returns the boolean value for section/key, or def when absent or
// unparsable.
func (s *Store) GetBool(section, key string, def bool) bool {
	sec := s.section(section)
	if !sec.HasKey(key) {
		return def
	}
	v, err := strconv.ParseBool(sec.Key(key).Value())
	if err != nil {
		return def
	}
	return v
}

// GetSensitive runs the raw value for section/key through
// internal/secrets.Resolve. A missing key resolves to ("", nil), matching
// CONF.getsensitive(..., fallback=None) in the original.
func (s *Store) GetSensitive(section, key string) (string, error) {
	sec := s.section(section)
	if !sec.HasKey(key) {
		return "", nil
	}
	return secrets.Resolve(sec.Key(key).Value())
}
