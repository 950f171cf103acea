package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Memory.MaxHistoryTokens != 32000 {
		t.Errorf("Expected MaxHistoryTokens to be 32000, got %d", cfg.Memory.MaxHistoryTokens)
	}
	if cfg.Memory.CompactThreshold != 0.8 {
		t.Errorf("Expected CompactThreshold to be 0.8, got %v", cfg.Memory.CompactThreshold)
	}
	if cfg.Memory.HistoryLimit != 25 {
		t.Errorf("Expected HistoryLimit to be 25, got %d", cfg.Memory.HistoryLimit)
	}
	if cfg.Memory.ChatMemoryLimit != 100 {
		t.Errorf("Expected ChatMemoryLimit to be 100, got %d", cfg.Memory.ChatMemoryLimit)
	}
	if cfg.Enrichment.TimeoutSeconds != 10 {
		t.Errorf("Expected enrichment timeout 10s, got %d", cfg.Enrichment.TimeoutSeconds)
	}
	if cfg.WebSearch.Provider != "duckduckgo-html" {
		t.Errorf("Expected WebSearch provider to be duckduckgo-html, got %s", cfg.WebSearch.Provider)
	}
	if cfg.Bot.RateLimitPerMinute != 10 {
		t.Errorf("Expected rate limit 10, got %d", cfg.Bot.RateLimitPerMinute)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"empty BaseURL", func(c *Config) { c.Model.BaseURL = "" }, true},
		{"invalid Temperature", func(c *Config) { c.Model.Temperature = 3.0 }, true},
		{"zero max tokens", func(c *Config) { c.Model.MaxTokens = 0 }, true},
		{"threshold above one", func(c *Config) { c.Memory.CompactThreshold = 1.5 }, true},
		{"zero history limit", func(c *Config) { c.Memory.HistoryLimit = 0 }, true},
		{"unknown provider", func(c *Config) { c.WebSearch.Provider = "bing" }, true},
		{"searxng without base url", func(c *Config) {
			c.WebSearch.Provider = "searxng"
			c.WebSearch.BaseURL = ""
		}, true},
		{"matrix enabled without homeserver", func(c *Config) { c.Matrix.Enabled = true }, true},
		{"journal disabled without path", func(c *Config) {
			c.Journal.Enabled = false
			c.Journal.DBPath = ""
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	configTestDir := filepath.Join(t.TempDir(), "config")
	SetConfigDir(configTestDir)

	cfg := DefaultConfig()
	cfg.Model.APIKey = "test-api-key"
	cfg.Bot.TriggerWords = []string{"кампус"}

	if err := Save(cfg); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	configPath := filepath.Join(configTestDir, "config.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("Config file not created")
	}

	loadedCfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if loadedCfg.Model.APIKey != cfg.Model.APIKey {
		t.Errorf("API Key mismatch: expected %s, got %s", cfg.Model.APIKey, loadedCfg.Model.APIKey)
	}
	if len(loadedCfg.Bot.TriggerWords) != 1 || loadedCfg.Bot.TriggerWords[0] != "кампус" {
		t.Errorf("Trigger words mismatch: %v", loadedCfg.Bot.TriggerWords)
	}
}

func TestLoad_MergesSecretsWithoutPersistingThem(t *testing.T) {
	configTestDir := filepath.Join(t.TempDir(), "config")
	SetConfigDir(configTestDir)

	if err := os.MkdirAll(configTestDir, 0755); err != nil {
		t.Fatal(err)
	}
	secrets := "# tokens\nLLM_API_KEY=sk-secret\nTELEGRAM_BOT_TOKEN=\"123:abc\"\nGITHUB_TOKEN=ghp_x\n"
	if err := os.WriteFile(filepath.Join(configTestDir, ".secrets"), []byte(secrets), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Model.APIKey != "sk-secret" {
		t.Errorf("APIKey = %q, want sk-secret", cfg.Model.APIKey)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Errorf("Telegram token = %q, want 123:abc", cfg.Telegram.Token)
	}
	if cfg.Enrichment.GitHubToken != "ghp_x" {
		t.Errorf("GitHub token = %q, want ghp_x", cfg.Enrichment.GitHubToken)
	}

	data, err := os.ReadFile(filepath.Join(configTestDir, "config.yaml"))
	if err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if strings.Contains(string(data), "sk-secret") {
		t.Error("secrets must not be written to config.yaml")
	}
}

func TestParseSecrets(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		key     string
		want    string
		wantErr bool
	}{
		{"plain", "GITHUB_TOKEN=ghp_x\n", SecretGitHubToken, "ghp_x", false},
		{"quoted and padded", "  MATRIX_ACCESS_TOKEN = 'syt_abc'  \n", SecretMatrixToken, "syt_abc", false},
		{"comments skipped", "# WEB_SEARCH_API_KEY=nope\n\nWEB_SEARCH_API_KEY=k\n", SecretWebSearchKey, "k", false},
		{"value keeps equals", "LLM_API_KEY=a=b\n", SecretLLMAPIKey, "a=b", false},
		{"malformed line", "TELEGRAM_BOT_TOKEN\n", SecretTelegramToken, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := parseSecrets(strings.NewReader(tt.input))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got := s.Get(tt.key); got != tt.want {
				t.Errorf("Get(%s) = %q, want %q", tt.key, got, tt.want)
			}
		})
	}
}

func TestSecrets_OpenAIAlias(t *testing.T) {
	s, err := parseSecrets(strings.NewReader("OPENAI_API_KEY=sk-old\n"))
	if err != nil {
		t.Fatal(err)
	}
	if got := s.GetLLMAPIKey(); got != "sk-old" {
		t.Errorf("GetLLMAPIKey = %q", got)
	}
	var missing *Secrets
	if missing.GetTelegramToken() != "" {
		t.Error("nil secrets should read as empty")
	}
}

func TestIsAPIKeyConfigured(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.IsAPIKeyConfigured() {
		t.Error("Default config should not have API Key")
	}

	cfg.Model.APIKey = "test-key"
	if !cfg.IsAPIKeyConfigured() {
		t.Error("Should return true after setting API Key")
	}
}

func TestString_RedactsCredentials(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model.APIKey = "sk-1234567890abcdef"
	cfg.Telegram.Token = "short"

	out := cfg.String()
	if strings.Contains(out, "sk-1234567890abcdef") {
		t.Error("API key should be redacted")
	}
	if !strings.Contains(out, "sk-12345...") {
		t.Errorf("expected key prefix in output:\n%s", out)
	}
	if strings.Contains(out, "short") {
		t.Error("short token should be fully masked")
	}
}

func TestPromptConfig_FallsBackPerField(t *testing.T) {
	p := &PromptConfig{
		Language: "en",
		Prompts: map[string]LanguagePrompts{
			"en": {System: "custom system"},
		},
	}

	got := p.GetPrompts()
	if got.System != "custom system" {
		t.Errorf("System = %q", got.System)
	}
	if got.Apology != DefaultPromptConfig().Prompts["uk"].Apology {
		t.Errorf("Apology should fall back to uk default, got %q", got.Apology)
	}

	p.Language = "de"
	if p.GetSystemPrompt() != DefaultPromptConfig().Prompts["uk"].System {
		t.Error("unknown language should use uk defaults")
	}
}

func TestLoadPromptConfig_FromFile(t *testing.T) {
	dir := t.TempDir()
	SetConfigDir(dir)

	yamlData := "language: en\nprompts:\n  en:\n    apology: \"oops\"\n"
	if err := os.WriteFile(filepath.Join(dir, "prompt.yaml"), []byte(yamlData), 0644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadPromptConfig()
	if err != nil {
		t.Fatalf("LoadPromptConfig() error = %v", err)
	}
	if p.GetApology() != "oops" {
		t.Errorf("Apology = %q, want oops", p.GetApology())
	}
	if p.GetSystemPrompt() == "" {
		t.Error("system prompt should fall back to defaults")
	}
}
