package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Config is the service configuration. Every leaf is addressable by its
// dotted JSON key (see Lookup); fields tagged secret are masked in
// listings.
type Config struct {
	DataDir       string `json:"data_dir"`
	LogLevel      string `json:"log_level"`
	MaxConcurrent int    `json:"max_concurrent"`
	StaticDir     string `json:"static_dir"`
	LLM           struct {
		BaseURL          string  `json:"base_url"`
		APIKey           string  `json:"api_key" secret:"true"`
		Model            string  `json:"model"`
		MaxTokens        int     `json:"max_tokens"`
		Temperature      float32 `json:"temperature"`
		MaxContextTokens int     `json:"max_context_tokens"`
		TimeoutSeconds   int     `json:"timeout_seconds"`
	} `json:"llm"`
	HTTP struct {
		Listen string `json:"listen"`
	} `json:"http"`
	OA struct {
		BaseURL string `json:"base_url"`
		APIKey  string `json:"api_key" secret:"true"`
	} `json:"oa"`
	Skills struct {
		Examples bool   `json:"examples"`
		JokeAPI  string `json:"joke_api"`
	} `json:"skills"`
	Telegram struct {
		Token string `json:"token" secret:"true"`
	} `json:"telegram"`
}

// LogLevels are the accepted values of log_level.
var LogLevels = []string{"debug", "info", "warn", "error"}

// envOverrides maps environment variables onto settings. Set variables win
// over the file.
var envOverrides = []struct {
	env string
	key string
}{
	{"OPENAI_API_KEY", "llm.api_key"},
	{"OPENAI_BASE_URL", "llm.base_url"},
	{"OPENAI_MODEL", "llm.model"},
	{"TELEGRAM_BOT_TOKEN", "telegram.token"},
	{"QINGJIA_LISTEN", "http.listen"},
}

// DefaultPath is ~/.qingjia/config.json.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return filepath.Join(home, ".qingjia", "config.json")
}

// Default returns the configuration written on first run.
func Default() *Config {
	cfg := &Config{
		DataDir:       filepath.Dir(DefaultPath()),
		LogLevel:      "info",
		MaxConcurrent: 2,
	}
	cfg.LLM.BaseURL = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-3.5-turbo"
	cfg.LLM.MaxTokens = 2000
	cfg.LLM.Temperature = 0.7
	cfg.LLM.MaxContextTokens = 16000
	cfg.LLM.TimeoutSeconds = 60
	cfg.HTTP.Listen = ":8000"
	cfg.OA.BaseURL = "https://oa.example.com/api"
	cfg.Skills.JokeAPI = "https://v2.jokeapi.dev/joke/"
	return cfg
}

// Load returns the effective configuration: the file at path (written with
// defaults if missing) with environment overrides applied, validated.
func Load(path string) (*Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return nil, err
	}
	for _, o := range envOverrides {
		v := os.Getenv(o.env)
		if v == "" {
			continue
		}
		if err := mustLookup(o.key).parse(cfg, v); err != nil {
			return nil, fmt.Errorf("%s: %w", o.env, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Read returns the file at path over the defaults, without environment
// overrides. A missing file is created with defaults. Unknown keys in the
// file are rejected.
func Read(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// Save validates cfg and writes it to path atomically, creating the
// directory if needed.
func Save(path string, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	data = append(data, '\n')

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

// Validate reports every setting that the service cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.DataDir != "", "data_dir is required")
	check(slices.Contains(LogLevels, strings.ToLower(c.LogLevel)),
		"log_level must be one of %s, got %q", strings.Join(LogLevels, ", "), c.LogLevel)
	check(c.MaxConcurrent >= 1, "max_concurrent must be at least 1, got %d", c.MaxConcurrent)
	check(c.LLM.Model != "", "llm.model is required")
	check(c.LLM.MaxTokens >= 1, "llm.max_tokens must be at least 1, got %d", c.LLM.MaxTokens)
	check(c.LLM.Temperature >= 0 && c.LLM.Temperature <= 2, "llm.temperature must be between 0 and 2, got %g", c.LLM.Temperature)
	check(c.LLM.MaxContextTokens >= 0, "llm.max_context_tokens must not be negative, got %d", c.LLM.MaxContextTokens)
	check(c.LLM.TimeoutSeconds >= 1, "llm.timeout_seconds must be at least 1, got %d", c.LLM.TimeoutSeconds)
	check(c.HTTP.Listen != "", "http.listen is required")
	errs = append(errs, checkURL("llm.base_url", c.LLM.BaseURL, true), checkURL("oa.base_url", c.OA.BaseURL, false))
	if c.Skills.Examples {
		errs = append(errs, checkURL("skills.joke_api", c.Skills.JokeAPI, false))
	}
	return errors.Join(errs...)
}

func checkURL(key, raw string, required bool) error {
	if raw == "" {
		if required {
			return fmt.Errorf("%s is required", key)
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", key, raw)
	}
	return nil
}

// EnvOverride returns the environment variable currently overriding key, or
// "" when the file value is in effect.
func EnvOverride(key string) string {
	for _, o := range envOverrides {
		if o.key == key && os.Getenv(o.env) != "" {
			return o.env
		}
	}
	return ""
}

// Value is one setting as shown by ListValues.
type Value struct {
	Key    string
	Type   string
	Value  string
	Secret bool
	// Env names the environment variable overriding the file, if any.
	Env string
}

// ListValues returns every setting of cfg in declaration order, with secrets
// masked when mask is set.
func ListValues(cfg *Config, mask bool) []Value {
	out := make([]Value, 0, len(settings))
	for _, s := range settings {
		out = append(out, Value{
			Key:    s.Key,
			Type:   s.Type(),
			Value:  s.format(cfg, mask),
			Secret: s.Secret,
			Env:    EnvOverride(s.Key),
		})
	}
	return out
}

// GetValue returns the effective value of key, unmasked.
func GetValue(path, key string) (string, error) {
	s, err := Lookup(key)
	if err != nil {
		return "", err
	}
	cfg, err := Load(path)
	if err != nil {
		return "", err
	}
	return s.format(cfg, false), nil
}

// SetValue parses value as the type of key and stores it in the file at
// path. Environment overrides are never written back, and the result must
// pass Validate.
func SetValue(path, key, value string) error {
	s, err := Lookup(key)
	if err != nil {
		return err
	}
	cfg, err := Read(path)
	if err != nil {
		return err
	}
	if err := s.parse(cfg, value); err != nil {
		return err
	}
	return Save(path, cfg)
}
