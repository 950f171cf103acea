package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	// configDir is the configuration directory path
	// Can be set via SetConfigDir before loading config
	configDir     string
	configDirInit bool
)

// SetConfigDir sets a custom configuration directory
// Must be called before any config loading functions
func SetConfigDir(dir string) {
	configDir = dir
	configDirInit = true
}

// GetConfigDir returns the configuration directory
// Priority: 1. Manually set via SetConfigDir, 2. ./config in current directory
func GetConfigDir() string {
	if !configDirInit {
		cwd, err := os.Getwd()
		if err == nil {
			configDir = filepath.Join(cwd, "config")
		}
		configDirInit = true
	}
	return configDir
}

// Config application configuration structure
type Config struct {
	Telegram   TelegramConfig   `yaml:"telegram"`
	Matrix     MatrixConfig     `yaml:"matrix"`
	Model      ModelConfig      `yaml:"model"`
	Memory     MemoryConfig     `yaml:"memory"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	WebSearch  WebSearchConfig  `yaml:"web_search"`
	Bot        BotConfig        `yaml:"bot"`
	Journal    JournalConfig    `yaml:"journal"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Log        LogConfig        `yaml:"log"`
}

// TelegramConfig Telegram Bot API transport
type TelegramConfig struct {
	Enabled            bool   `yaml:"enabled"`
	Token              string `yaml:"token"`
	PollTimeoutSeconds int    `yaml:"poll_timeout_seconds"`
	Debug              bool   `yaml:"debug"`
}

// MatrixConfig Matrix client-server transport
type MatrixConfig struct {
	Enabled     bool     `yaml:"enabled"`
	Homeserver  string   `yaml:"homeserver"`
	UserID      string   `yaml:"user_id"`
	AccessToken string   `yaml:"access_token"`
	Rooms       []string `yaml:"rooms"` // empty means every joined room
	AutoJoin    bool     `yaml:"auto_join"`
}

// ModelConfig LLM model configuration
type ModelConfig struct {
	APIKey         string  `yaml:"api_key"`
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int     `yaml:"max_tokens"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
}

// MemoryConfig conversation memory limits
type MemoryConfig struct {
	MaxHistoryTokens    int     `yaml:"max_history_tokens"`
	CompactToTokens     int     `yaml:"compact_to_tokens"`
	CompactThreshold    float64 `yaml:"compact_threshold"`
	HistoryLimit        int     `yaml:"history_limit"`
	CompactTail         int     `yaml:"compact_tail"`
	CompactFallbackKeep int     `yaml:"compact_fallback_keep"`
	ChatMemoryLimit     int     `yaml:"chat_memory_limit"`
	ChatContextEntries  int     `yaml:"chat_context_entries"`
	ChatEntryMaxChars   int     `yaml:"chat_entry_max_chars"`
	SummaryTemperature  float64 `yaml:"summary_temperature"`
	SummaryMaxTokens    int     `yaml:"summary_max_tokens"`
}

// EnrichmentConfig context enrichment fetchers
type EnrichmentConfig struct {
	Enabled         bool   `yaml:"enabled"`
	TimeoutSeconds  int    `yaml:"timeout_seconds"`
	CacheTTLMinutes int    `yaml:"cache_ttl_minutes"`
	UserAgent       string `yaml:"user_agent"`
	PageMaxChars    int    `yaml:"page_max_chars"`
	GitHubAPIBase   string `yaml:"github_api_base"`
	GitHubToken     string `yaml:"github_token"`
	ETagCacheSize   int    `yaml:"etag_cache_size"`
}

// WebSearchConfig web search configuration
type WebSearchConfig struct {
	Provider       string `yaml:"provider"`
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	DefaultLimit   int    `yaml:"default_limit"`
	UserAgent      string `yaml:"user_agent"`
}

// BotConfig dispatch behaviour shared by all transports
type BotConfig struct {
	Name               string   `yaml:"name"`
	Username           string   `yaml:"username"`
	TriggerWords       []string `yaml:"trigger_words"`
	RateLimitPerMinute int      `yaml:"rate_limit_per_minute"`
	MaxMessageLength   int      `yaml:"max_message_length"`
	GreetNewMembers    bool     `yaml:"greet_new_members"`
}

// JournalConfig usage journal storage
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	DBPath  string `yaml:"db_path"`
}

// MetricsConfig Prometheus and health endpoint
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// LogConfig logger settings
type LogConfig struct {
	Level   string `yaml:"level"`
	MaxDays int    `yaml:"max_days"`
	Console bool   `yaml:"console"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			Enabled:            true,
			PollTimeoutSeconds: 60,
		},
		Matrix: MatrixConfig{
			Enabled:  false,
			AutoJoin: true,
		},
		Model: ModelConfig{
			APIKey:         "",
			BaseURL:        "https://api.openai.com",
			Model:          "gpt-4o-mini",
			Temperature:    0.7,
			MaxTokens:      2000,
			TimeoutSeconds: 120,
		},
		Memory: MemoryConfig{
			MaxHistoryTokens:    32000,
			CompactToTokens:     16000,
			CompactThreshold:    0.8,
			HistoryLimit:        25,
			CompactTail:         3,
			CompactFallbackKeep: 10,
			ChatMemoryLimit:     100,
			ChatContextEntries:  20,
			ChatEntryMaxChars:   200,
			SummaryTemperature:  0.3,
			SummaryMaxTokens:    200,
		},
		Enrichment: EnrichmentConfig{
			Enabled:         true,
			TimeoutSeconds:  10,
			CacheTTLMinutes: 10,
			UserAgent:       "CampusBot/1.0 (+https://github.com/hession/campusbot)",
			PageMaxChars:    1500,
			GitHubAPIBase:   "https://api.github.com",
			ETagCacheSize:   256,
		},
		WebSearch: WebSearchConfig{
			Provider:       "duckduckgo-html",
			BaseURL:        "https://html.duckduckgo.com",
			APIKey:         "",
			TimeoutSeconds: 10,
			DefaultLimit:   3,
			UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) CampusBot/1.0",
		},
		Bot: BotConfig{
			Name:               "CampusBot",
			TriggerWords:       []string{"бот", "bot"},
			RateLimitPerMinute: 10,
			MaxMessageLength:   4096,
			GreetNewMembers:    true,
		},
		Journal: JournalConfig{
			Enabled: true,
			DBPath:  filepath.Join("data", "campusbot.db"),
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9090",
		},
		Log: LogConfig{
			Level:   "info",
			MaxDays: 7,
			Console: true,
		},
	}
}

// ConfigDir returns the configuration directory path
func ConfigDir() (string, error) {
	dir := GetConfigDir()
	if dir == "" {
		return "", fmt.Errorf("failed to determine config directory")
	}
	return dir, nil
}

// LogDir returns the log directory path
func LogDir() string {
	dir := GetConfigDir()
	if dir == "" {
		return "logs"
	}
	return filepath.Join(dir, "logs")
}

// ConfigPath returns the configuration file path
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load loads configuration from file and merges with secrets.
// A default config file is written when none exists.
func Load() (*Config, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Written before secrets are merged so tokens never land in config.yaml
		if err := Save(cfg); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	secrets, err := LoadSecrets()
	if err != nil {
		return nil, err
	}
	cfg.mergeSecrets(secrets)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// mergeSecrets fills credentials that the YAML file left empty
func (c *Config) mergeSecrets(s *Secrets) {
	if s == nil {
		return
	}
	fill := func(dst *string, value string) {
		if *dst == "" && value != "" {
			*dst = value
		}
	}
	fill(&c.Model.APIKey, s.GetLLMAPIKey())
	fill(&c.Telegram.Token, s.GetTelegramToken())
	fill(&c.Matrix.AccessToken, s.GetMatrixAccessToken())
	fill(&c.Enrichment.GitHubToken, s.GetGitHubToken())
	fill(&c.WebSearch.APIKey, s.GetWebSearchAPIKey())
}

// Save saves configuration to file
func Save(cfg *Config) error {
	configPath, err := ConfigPath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	content := "# CampusBot Configuration File\n# Credentials belong in .secrets next to this file\n\n" + string(data)

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Model.BaseURL == "" {
		return fmt.Errorf("config error: model.base_url cannot be empty")
	}
	if c.Model.Model == "" {
		return fmt.Errorf("config error: model.model cannot be empty")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("config error: model.temperature must be between 0 and 2")
	}
	if c.Model.MaxTokens <= 0 {
		return fmt.Errorf("config error: model.max_tokens must be greater than 0")
	}

	m := c.Memory
	if m.MaxHistoryTokens <= 0 {
		return fmt.Errorf("config error: memory.max_history_tokens must be greater than 0")
	}
	if m.CompactThreshold <= 0 || m.CompactThreshold > 1 {
		return fmt.Errorf("config error: memory.compact_threshold must be in (0, 1]")
	}
	if m.HistoryLimit <= 0 {
		return fmt.Errorf("config error: memory.history_limit must be greater than 0")
	}
	if m.CompactTail <= 0 || m.CompactFallbackKeep <= 0 {
		return fmt.Errorf("config error: memory.compact_tail and memory.compact_fallback_keep must be greater than 0")
	}
	if m.ChatMemoryLimit <= 0 || m.ChatContextEntries <= 0 || m.ChatEntryMaxChars <= 0 {
		return fmt.Errorf("config error: memory chat limits must be greater than 0")
	}

	if c.Enrichment.TimeoutSeconds <= 0 {
		return fmt.Errorf("config error: enrichment.timeout_seconds must be greater than 0")
	}
	if c.Enrichment.PageMaxChars <= 0 {
		return fmt.Errorf("config error: enrichment.page_max_chars must be greater than 0")
	}

	provider := strings.ToLower(strings.TrimSpace(c.WebSearch.Provider))
	switch provider {
	case "", "duckduckgo-html", "duckduckgo":
	case "searxng":
		if strings.TrimSpace(c.WebSearch.BaseURL) == "" {
			return fmt.Errorf("config error: web_search.base_url cannot be empty for searxng provider")
		}
	default:
		return fmt.Errorf("config error: unknown web_search.provider %q", c.WebSearch.Provider)
	}
	if c.WebSearch.TimeoutSeconds <= 0 {
		return fmt.Errorf("config error: web_search.timeout_seconds must be greater than 0")
	}
	if c.WebSearch.DefaultLimit <= 0 {
		return fmt.Errorf("config error: web_search.default_limit must be greater than 0")
	}

	if c.Bot.MaxMessageLength <= 0 {
		return fmt.Errorf("config error: bot.max_message_length must be greater than 0")
	}

	if c.Journal.Enabled && c.Journal.DBPath == "" {
		return fmt.Errorf("config error: journal.db_path cannot be empty")
	}

	if c.Matrix.Enabled {
		if c.Matrix.Homeserver == "" || c.Matrix.UserID == "" {
			return fmt.Errorf("config error: matrix.homeserver and matrix.user_id are required when matrix is enabled")
		}
	}

	return nil
}

// IsAPIKeyConfigured checks if API key is configured
func (c *Config) IsAPIKeyConfigured() bool {
	return c.Model.APIKey != ""
}

// ModelTimeout returns the completion request timeout
func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.Model.TimeoutSeconds) * time.Second
}

// EnrichmentTimeout returns the per-fetch timeout
func (c *Config) EnrichmentTimeout() time.Duration {
	return time.Duration(c.Enrichment.TimeoutSeconds) * time.Second
}

// EnrichmentCacheTTL returns how long fetched context is reused
func (c *Config) EnrichmentCacheTTL() time.Duration {
	return time.Duration(c.Enrichment.CacheTTLMinutes) * time.Minute
}

// String returns string representation of config (hides sensitive info)
func (c *Config) String() string {
	return fmt.Sprintf(`CampusBot Configuration:
  Telegram:
    Enabled: %v
    Token: %s
  Matrix:
    Enabled: %v
    Homeserver: %s
    User ID: %s
    Access Token: %s
  Model:
    API Key: %s
    Base URL: %s
    Model: %s
    Temperature: %.1f
    Max Tokens: %d
  Memory:
    Max History Tokens: %d
    Compact Threshold: %.2f
    History Limit: %d
    Chat Memory Limit: %d
  Enrichment:
    Enabled: %v
    Timeout Seconds: %d
    Cache TTL Minutes: %d
    GitHub Token: %s
  Web Search:
    Provider: %s
    Base URL: %s
    API Key: %s
  Bot:
    Name: %s
    Trigger Words: %s
    Rate Limit Per Minute: %d
  Journal:
    Enabled: %v
    DB Path: %s
  Metrics:
    Enabled: %v
    Addr: %s
  Log:
    Level: %s`,
		c.Telegram.Enabled,
		redactAPIKey(c.Telegram.Token),
		c.Matrix.Enabled,
		c.Matrix.Homeserver,
		c.Matrix.UserID,
		redactAPIKey(c.Matrix.AccessToken),
		redactAPIKey(c.Model.APIKey),
		c.Model.BaseURL,
		c.Model.Model,
		c.Model.Temperature,
		c.Model.MaxTokens,
		c.Memory.MaxHistoryTokens,
		c.Memory.CompactThreshold,
		c.Memory.HistoryLimit,
		c.Memory.ChatMemoryLimit,
		c.Enrichment.Enabled,
		c.Enrichment.TimeoutSeconds,
		c.Enrichment.CacheTTLMinutes,
		redactAPIKey(c.Enrichment.GitHubToken),
		c.WebSearch.Provider,
		c.WebSearch.BaseURL,
		redactAPIKey(c.WebSearch.APIKey),
		c.Bot.Name,
		strings.Join(c.Bot.TriggerWords, ", "),
		c.Bot.RateLimitPerMinute,
		c.Journal.Enabled,
		c.Journal.DBPath,
		c.Metrics.Enabled,
		c.Metrics.Addr,
		c.Log.Level,
	)
}

func redactAPIKey(value string) string {
	if value == "" {
		return "(not configured)"
	}
	if len(value) > 8 {
		return value[:8] + "..."
	}
	return "***"
}
