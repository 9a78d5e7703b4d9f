package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/elonfeng/trendcollector/internal/logging"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Sources    SourcesConfig    `yaml:"sources"`
	Classifier ClassifierConfig `yaml:"classifier"`
	LLM        LLMConfig        `yaml:"llm"`
	Alerts     AlertsConfig     `yaml:"alerts"`
	Server     ServerConfig     `yaml:"server"`
	Cache      CacheConfig      `yaml:"cache"`
	Log        logging.Config   `yaml:"log"`
}

// DatabaseConfig configures SQLite storage.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// ScheduleConfig configures the collection loop.
type ScheduleConfig struct {
	CollectInterval  string `yaml:"collect_interval"`
	SourceTimeout    string `yaml:"source_timeout"`
	RunOnStart       bool   `yaml:"run_on_start"`
	Parallelism      int    `yaml:"parallelism"` // zero means all adapters at once
	KeepUnclassified bool   `yaml:"keep_unclassified"`
	GroupByNiche     bool   `yaml:"group_by_niche"`
}

// ParseCollectInterval returns the collect interval as time.Duration.
func (s ScheduleConfig) ParseCollectInterval() time.Duration {
	d, err := time.ParseDuration(s.CollectInterval)
	if err != nil || d <= 0 {
		return 6 * time.Hour
	}
	return d
}

// ParseSourceTimeout returns the per-adapter timeout as time.Duration.
func (s ScheduleConfig) ParseSourceTimeout() time.Duration {
	d, err := time.ParseDuration(s.SourceTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// SourcesConfig holds configuration for all trend sources.
type SourcesConfig struct {
	Google  GoogleConfig  `yaml:"google"`
	YouTube YouTubeConfig `yaml:"youtube"`
	Reddit  RedditConfig  `yaml:"reddit"`
	Bing    BingConfig    `yaml:"bing"`
	TikTok  TikTokConfig  `yaml:"tiktok"`
}

// GoogleConfig for the Google Trends adapter.
type GoogleConfig struct {
	Enabled bool     `yaml:"enabled"`
	Topics  []string `yaml:"topics"`
}

// YouTubeConfig for the YouTube adapter.
type YouTubeConfig struct {
	Enabled bool     `yaml:"enabled"`
	Queries []string `yaml:"queries"`
	Topics  []string `yaml:"topics"`
}

// RedditConfig for the Reddit adapter.
type RedditConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Subreddits []string `yaml:"subreddits"`
	Topics     []string `yaml:"topics"`
}

// BingConfig for the Bing adapter.
type BingConfig struct {
	Enabled bool     `yaml:"enabled"`
	Market  string   `yaml:"market"`
	Topics  []string `yaml:"topics"`
}

// TikTokConfig for the TikTok adapter.
type TikTokConfig struct {
	Enabled bool     `yaml:"enabled"`
	Topics  []string `yaml:"topics"`
}

// ClassifierConfig selects how topics are labelled with niches.
type ClassifierConfig struct {
	Kind    string              `yaml:"kind"` // "keyword", "llm" or "none"
	Niches  map[string][]string `yaml:"niches"`
	Exclude []string            `yaml:"exclude"`
}

// LLMConfig configures the optional language model used for classification
// and content generation.
type LLMConfig struct {
	Enabled           bool    `yaml:"enabled"`
	Provider          string  `yaml:"provider"` // "openai" or "anthropic"
	Model             string  `yaml:"model"`    // empty picks the provider default
	APIKey            string  `yaml:"api_key"`
	BaseURL           string  `yaml:"base_url"` // custom endpoint (optional)
	Temperature       float64 `yaml:"temperature"`
	MaxTokens         int     `yaml:"max_tokens"`
	RequestsPerMinute int     `yaml:"requests_per_minute"`
	Timeout           string  `yaml:"timeout"`
}

// ParseTimeout returns the request timeout as time.Duration.
func (l LLMConfig) ParseTimeout() time.Duration {
	d, err := time.ParseDuration(l.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// AlertsConfig configures publish notification destinations.
type AlertsConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// SlackConfig for Slack webhook alerts.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// DiscordConfig for Discord webhook alerts.
type DiscordConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
}

// WebhookConfig for generic webhook alerts.
type WebhookConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// CacheConfig configures the optional Redis response cache.
type CacheConfig struct {
	RedisURL string `yaml:"redis_url"`
	TTL      string `yaml:"ttl"`
}

// ParseTTL returns the cache TTL as time.Duration.
func (c CacheConfig) ParseTTL() time.Duration {
	d, err := time.ParseDuration(c.TTL)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Path: "./trends.db"},
		Schedule: ScheduleConfig{
			CollectInterval:  "6h",
			SourceTimeout:    "30s",
			RunOnStart:       true,
			KeepUnclassified: true,
		},
		Sources: SourcesConfig{
			Google:  GoogleConfig{Enabled: true},
			YouTube: YouTubeConfig{Enabled: true, Queries: []string{"inherited house", "downsizing tips"}},
			Reddit: RedditConfig{
				Enabled:    true,
				Subreddits: []string{"RealEstate", "personalfinance", "AgingParents"},
			},
			Bing:   BingConfig{Enabled: true, Market: "en-US"},
			TikTok: TikTokConfig{Enabled: true},
		},
		Classifier: ClassifierConfig{Kind: "keyword"},
		LLM: LLMConfig{
			Provider:          "openai",
			Temperature:       0.7,
			MaxTokens:         1200,
			RequestsPerMinute: 20,
			Timeout:           "60s",
		},
		Server: ServerConfig{Port: 8000, AllowedOrigins: []string{"*"}},
		Cache:  CacheConfig{TTL: "5m"},
		Log:    logging.Config{Level: "info", Format: "text"},
	}
}

// Load reads configuration from a YAML file and applies env var overrides.
// A .env file in the working directory, when present, is loaded first and
// never overrides variables already set in the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)
	return cfg, nil
}

// applyEnvOverrides overrides config values with environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TRENDCOLLECTOR_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("TRENDCOLLECTOR_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TRENDCOLLECTOR_COLLECT_INTERVAL"); v != "" {
		cfg.Schedule.CollectInterval = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.Cache.RedisURL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SLACK_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Slack.WebhookURL = v
		cfg.Alerts.Slack.Enabled = true
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Alerts.Discord.WebhookURL = v
		cfg.Alerts.Discord.Enabled = true
	}
	applyLLMKeys(&cfg.LLM, os.Getenv("OPENAI_API_KEY"), os.Getenv("ANTHROPIC_API_KEY"))
}

// applyLLMKeys picks the API key for the configured provider. The provider
// only switches to Anthropic when the config left it at the OpenAI default
// with no model pinned and no OpenAI key is set.
func applyLLMKeys(l *LLMConfig, openaiKey, anthropicKey string) {
	provider := strings.ToLower(strings.TrimSpace(l.Provider))
	switch {
	case provider == "anthropic":
		if anthropicKey != "" {
			l.APIKey = anthropicKey
			l.Enabled = true
		}
	case openaiKey != "":
		l.APIKey = openaiKey
		l.Enabled = true
	case anthropicKey != "" && (provider == "" || provider == "openai") && l.Model == "":
		l.Provider = "anthropic"
		l.APIKey = anthropicKey
		l.Enabled = true
	}
}
