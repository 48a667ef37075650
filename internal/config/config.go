package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	LanguageItalian   = "it"
	LanguageEnglish   = "en"
	LanguageUkrainian = "uk"
	LanguageRussian   = "ru"
	LanguageRomanian  = "ro"
	LanguageArabic    = "ar"

	DefaultBaseURL            = "http://localhost:8000"
	DefaultLanguage           = LanguageItalian
	DefaultRequestTimeout     = 30 * time.Second
	DefaultMaxAttachmentBytes = 5 * 1024 * 1024
)

// Chip is a quick-reply shortcut that submits a canned prompt.
type Chip struct {
	Key    string `yaml:"key"`
	Prompt string `yaml:"prompt"`
}

// Config holds application configuration
type Config struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Language       string        `yaml:"language"`
	Debug          bool          `yaml:"debug"`
	// Plain disables markdown and styled output in the REPL.
	Plain bool `yaml:"plain"`

	DataDir string `yaml:"data_dir"` // SQLite durable storage lives here
	LogDir  string `yaml:"log_dir"`

	MaxAttachmentBytes int64         `yaml:"max_attachment_bytes"`
	HealthTTL          time.Duration `yaml:"health_ttl"`

	// Serialize makes submissions complete in submission order.
	Serialize bool `yaml:"serialize"`

	Chips []Chip `yaml:"chips"`
}

// Default returns the configuration used when no file or flags override it.
func Default() Config {
	return Config{
		BaseURL:            DefaultBaseURL,
		RequestTimeout:     DefaultRequestTimeout,
		Language:           DefaultLanguage,
		DataDir:            ".legalmind",
		LogDir:             "logs",
		MaxAttachmentBytes: DefaultMaxAttachmentBytes,
		HealthTTL:          10 * time.Second,
		Chips:              DefaultChips(),
	}
}

// DefaultChips returns the built-in legal shortcuts.
func DefaultChips() []Chip {
	return []Chip{
		{Key: "patronato_query", Prompt: "I have a question about the NASpI procedure."},
		{Key: "check_deadlines", Prompt: "What are the deadlines for submitting documents for pensione di vecchiaia?"},
		{Key: "find_documents", Prompt: "What documents are needed for ricongiungimento?"},
		{Key: "simulate_case", Prompt: "What are my rights in case of a work injury (INAIL)?"},
	}
}

// ValidLanguage reports whether lang is one of the supported language tags.
func ValidLanguage(lang string) bool {
	switch lang {
	case LanguageItalian, LanguageEnglish, LanguageUkrainian, LanguageRussian, LanguageRomanian, LanguageArabic:
		return true
	}
	return false
}

// Load reads a YAML file and overlays it on top of Default(). A missing path
// yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, errors.Wrapf(err, "failed to read config %s", path)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "failed to parse config %s", path)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the fields that have no sensible fallback.
func (c Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url must not be empty")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request_timeout must be positive")
	}
	if c.MaxAttachmentBytes <= 0 {
		return errors.New("max_attachment_bytes must be positive")
	}
	seen := make(map[string]bool, len(c.Chips))
	for _, chip := range c.Chips {
		if chip.Key == "" || chip.Prompt == "" {
			return errors.New("chips need both key and prompt")
		}
		if seen[chip.Key] {
			return errors.Errorf("duplicate chip key %q", chip.Key)
		}
		seen[chip.Key] = true
	}
	return nil
}

// Chip looks up a chip by key.
func (c Config) Chip(key string) (Chip, bool) {
	return FindChip(c.Chips, key)
}

// FindChip looks up a chip by key in chips.
func FindChip(chips []Chip, key string) (Chip, bool) {
	for _, chip := range chips {
		if chip.Key == key {
			return chip, true
		}
	}
	return Chip{}, false
}
