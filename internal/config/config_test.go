package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func tempConfigPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.json")
}

// clearEnv blanks every override so a developer's shell cannot leak into
// the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, o := range envOverrides {
		t.Setenv(o.env, "")
	}
}

func writeRaw(t *testing.T, path, body string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_WritesDefaults(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MaxConcurrent != 2 || cfg.HTTP.Listen != ":8000" || cfg.LLM.Model != "gpt-3.5-turbo" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Skills.Examples {
		t.Error("example skills should be off by default")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("defaults were not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("config holds secrets, mode = %o", perm)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)
	writeRaw(t, path, `{"max_concurrent": 5, "llm": {"model": "qwen-plus"}, "skills": {"examples": true}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.MaxConcurrent != 5 || cfg.LLM.Model != "qwen-plus" || !cfg.Skills.Examples {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.LLM.MaxTokens != 2000 || cfg.LLM.Temperature != 0.7 || cfg.OA.BaseURL != "https://oa.example.com/api" {
		t.Errorf("defaults lost for unset keys: %+v", cfg)
	}
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)
	writeRaw(t, path, `{"llm": {"modle": "gpt-4"}}`)

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), `unknown field "modle"`) {
		t.Fatalf("expected unknown field error, got %v", err)
	}
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)
	writeRaw(t, path, `{"max_concurrent": 0, "log_level": "verbose"}`)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"max_concurrent must be at least 1", `log_level must be one of debug, info, warn, error, got "verbose"`} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)
	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("OPENAI_BASE_URL", "http://localhost:1234/v1")
	t.Setenv("OPENAI_MODEL", "qwen-plus")
	t.Setenv("TELEGRAM_BOT_TOKEN", "tg-env")
	t.Setenv("QINGJIA_LISTEN", "127.0.0.1:9999")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.APIKey != "sk-env" {
		t.Errorf("api key = %q", cfg.LLM.APIKey)
	}
	if cfg.LLM.BaseURL != "http://localhost:1234/v1" {
		t.Errorf("base url = %q", cfg.LLM.BaseURL)
	}
	if cfg.LLM.Model != "qwen-plus" {
		t.Errorf("model = %q", cfg.LLM.Model)
	}
	if cfg.Telegram.Token != "tg-env" {
		t.Errorf("telegram token = %q", cfg.Telegram.Token)
	}
	if cfg.HTTP.Listen != "127.0.0.1:9999" {
		t.Errorf("listen = %q", cfg.HTTP.Listen)
	}

	t.Setenv("OPENAI_BASE_URL", "localhost:1234")
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "llm.base_url must be an http(s) URL") {
		t.Errorf("expected bad override to fail validation, got %v", err)
	}
}

func TestEnvOverridesNameRealSettings(t *testing.T) {
	for _, o := range envOverrides {
		if _, err := Lookup(o.key); err != nil {
			t.Errorf("%s: %v", o.env, err)
		}
	}
}

func TestRead_IgnoresEnv(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)
	t.Setenv("OPENAI_API_KEY", "sk-env")

	cfg, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.APIKey != "" {
		t.Errorf("Read applied env override: %q", cfg.LLM.APIKey)
	}
}

func TestSave_RejectsInvalidConfig(t *testing.T) {
	path := tempConfigPath(t)
	cfg := Default()
	cfg.LLM.Temperature = 3

	err := Save(path, cfg)
	if err == nil || !strings.Contains(err.Error(), "llm.temperature must be between 0 and 2") {
		t.Fatalf("expected temperature error, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("invalid config was written")
	}
}

func TestValidate(t *testing.T) {
	tests := map[string]struct {
		mutate func(*Config)
		want   string
	}{
		"defaults":             {func(*Config) {}, ""},
		"upper-case level":     {func(c *Config) { c.LogLevel = "DEBUG" }, ""},
		"no data dir":          {func(c *Config) { c.DataDir = "" }, "data_dir is required"},
		"zero max tokens":      {func(c *Config) { c.LLM.MaxTokens = 0 }, "llm.max_tokens must be at least 1"},
		"negative window":      {func(c *Config) { c.LLM.MaxContextTokens = -1 }, "llm.max_context_tokens must not be negative"},
		"zero timeout":         {func(c *Config) { c.LLM.TimeoutSeconds = 0 }, "llm.timeout_seconds must be at least 1"},
		"no listen":            {func(c *Config) { c.HTTP.Listen = "" }, "http.listen is required"},
		"no model":             {func(c *Config) { c.LLM.Model = "" }, "llm.model is required"},
		"no llm url":           {func(c *Config) { c.LLM.BaseURL = "" }, "llm.base_url is required"},
		"oa url optional":      {func(c *Config) { c.OA.BaseURL = "" }, ""},
		"oa url scheme":        {func(c *Config) { c.OA.BaseURL = "ftp://oa" }, "oa.base_url must be an http(s) URL"},
		"joke api when off":    {func(c *Config) { c.Skills.JokeAPI = "::" }, ""},
		"joke api when on":     {func(c *Config) { c.Skills.Examples = true; c.Skills.JokeAPI = "::" }, "skills.joke_api must be an http(s) URL"},
		"negative temperature": {func(c *Config) { c.LLM.Temperature = -0.1 }, "llm.temperature must be between 0 and 2"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			switch {
			case tt.want == "" && err != nil:
				t.Errorf("unexpected error: %v", err)
			case tt.want != "" && (err == nil || !strings.Contains(err.Error(), tt.want)):
				t.Errorf("expected %q, got %v", tt.want, err)
			}
		})
	}
}

func TestSetValue_Typed(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)

	for key, value := range map[string]string{
		"skills.examples":     "true",
		"max_concurrent":      "8",
		"llm.temperature":     "0.3",
		"llm.model":           "gpt-4o",
		"http.listen":         "127.0.0.1:8080",
		"oa.api_key":          "[not json",
		"llm.timeout_seconds": " 30 ",
	} {
		if err := SetValue(path, key, value); err != nil {
			t.Fatalf("SetValue(%s, %q): %v", key, value, err)
		}
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Skills.Examples || cfg.MaxConcurrent != 8 || cfg.LLM.Temperature != 0.3 || cfg.LLM.TimeoutSeconds != 30 {
		t.Errorf("typed values not stored: %+v", cfg)
	}
	if cfg.LLM.Model != "gpt-4o" || cfg.HTTP.Listen != "127.0.0.1:8080" || cfg.OA.APIKey != "[not json" {
		t.Errorf("string values not stored: %+v", cfg)
	}

	// Stored with JSON types, not as strings.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw struct {
		MaxConcurrent any `json:"max_concurrent"`
		Skills        struct {
			Examples any `json:"examples"`
		} `json:"skills"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if raw.MaxConcurrent != float64(8) || raw.Skills.Examples != true {
		t.Errorf("wrong JSON types: %#v %#v", raw.MaxConcurrent, raw.Skills.Examples)
	}
}

func TestSetValue_Rejects(t *testing.T) {
	clearEnv(t)
	tests := map[string]struct {
		key, value, want string
	}{
		"unknown key":   {"custom.setting", "x", "unknown config key: custom.setting"},
		"section key":   {"llm", "x", "unknown config key: llm"},
		"bool":          {"skills.examples", "yes please", `skills.examples expects true or false, got "yes please"`},
		"int":           {"max_concurrent", "many", `max_concurrent expects an integer, got "many"`},
		"int not float": {"llm.max_tokens", "1.5", "llm.max_tokens expects an integer"},
		"float":         {"llm.temperature", "warm", `llm.temperature expects a number, got "warm"`},
		"out of range":  {"max_concurrent", "0", "max_concurrent must be at least 1"},
		"bad log level": {"log_level", "loud", "log_level must be one of"},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			path := tempConfigPath(t)
			if err := Save(path, Default()); err != nil {
				t.Fatal(err)
			}
			before, _ := os.ReadFile(path)

			err := SetValue(path, tt.key, tt.value)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected %q, got %v", tt.want, err)
			}
			after, _ := os.ReadFile(path)
			if string(before) != string(after) {
				t.Error("rejected value changed the file")
			}
		})
	}
}

func TestSetValue_DoesNotPersistEnv(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)
	t.Setenv("OPENAI_API_KEY", "sk-from-env")

	if err := SetValue(path, "llm.model", "gpt-4o"); err != nil {
		t.Fatal(err)
	}
	cfg, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.APIKey != "" {
		t.Errorf("env override leaked into the file: %q", cfg.LLM.APIKey)
	}
	if cfg.LLM.Model != "gpt-4o" {
		t.Errorf("model = %q", cfg.LLM.Model)
	}
}

func TestGetValue(t *testing.T) {
	clearEnv(t)
	path := tempConfigPath(t)
	if err := SetValue(path, "llm.temperature", "0.2"); err != nil {
		t.Fatal(err)
	}
	if err := SetValue(path, "llm.api_key", "sk-file-secret"); err != nil {
		t.Fatal(err)
	}

	for key, want := range map[string]string{
		"llm.temperature": "0.2",
		"max_concurrent":  "2",
		"skills.examples": "false",
		"llm.api_key":     "sk-file-secret",
	} {
		got, err := GetValue(path, key)
		if err != nil {
			t.Fatalf("GetValue(%s): %v", key, err)
		}
		if got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}

	t.Setenv("OPENAI_MODEL", "qwen-plus")
	if got, _ := GetValue(path, "llm.model"); got != "qwen-plus" {
		t.Errorf("get should report the effective value, got %q", got)
	}

	if _, err := GetValue(path, "nonexistent.key"); err == nil || err.Error() != "unknown config key: nonexistent.key" {
		t.Errorf("unexpected error: %v", err)
	}
}
