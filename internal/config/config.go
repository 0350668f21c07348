// Package config provides configuration loading for the survey bot.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/Usernode-Labs/usernode-dapp-starter/internal/logging"
	"github.com/Usernode-Labs/usernode-dapp-starter/internal/paths"
)

// Config is the bot configuration. Zero fields are filled from Defaults().
type Config struct {
	Provider    string  `json:"provider" yaml:"provider"` // registry id: openai, anthropic, gemini, xai, ...
	APIKey      string  `json:"apiKey" yaml:"apiKey"`
	Endpoint    string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`   // overrides the registry endpoint
	ChatModel   string  `json:"chatModel,omitempty" yaml:"chatModel,omitempty"` // overrides the registry chat model
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`

	Research ResearchConfig `json:"research" yaml:"research"`
	Search   SearchConfig   `json:"search" yaml:"search"`
	Image    ImageConfig    `json:"image" yaml:"image"`
	Store    StoreConfig    `json:"store" yaml:"store"`
	Decision DecisionConfig `json:"decision" yaml:"decision"`
	Bot      BotConfig      `json:"bot" yaml:"bot"`
	Log      LogConfig      `json:"log" yaml:"log"`
}

// ResearchConfig controls the research agent.
type ResearchConfig struct {
	Enabled       *bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	MaxSteps      int     `json:"maxSteps,omitempty" yaml:"maxSteps,omitempty"`
	SummaryMaxLen int     `json:"summaryMaxLen,omitempty" yaml:"summaryMaxLen,omitempty"`
	Temperature   float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
}

// SearchConfig controls the web search tool and page fetching.
type SearchConfig struct {
	APIKey             string `json:"apiKey" yaml:"apiKey"`
	Endpoint           string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	IntervalMs         int    `json:"intervalMs,omitempty" yaml:"intervalMs,omitempty"` // pacing between search calls
	MaxRetries         int    `json:"maxRetries,omitempty" yaml:"maxRetries,omitempty"`
	MaxResults         int    `json:"maxResults,omitempty" yaml:"maxResults,omitempty"`
	MaxQueryLen        int    `json:"maxQueryLen,omitempty" yaml:"maxQueryLen,omitempty"`
	PageBudget         int    `json:"pageBudget,omitempty" yaml:"pageBudget,omitempty"` // characters kept from a fetched page
	PageTimeoutSeconds int    `json:"pageTimeoutSeconds,omitempty" yaml:"pageTimeoutSeconds,omitempty"`
}

// ImageConfig controls the generation router. Provider/APIKey/Model name the
// rendering backend used by the refine-then-delegate strategy; Backend
// overrides the kind implied by the chat provider.
type ImageConfig struct {
	Enabled  *bool  `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Backend  string `json:"backend,omitempty" yaml:"backend,omitempty"` // "", direct, native, refine, none
	Provider string `json:"provider,omitempty" yaml:"provider,omitempty"`
	APIKey   string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	Model    string `json:"model,omitempty" yaml:"model,omitempty"`
	Size     string `json:"size,omitempty" yaml:"size,omitempty"`
	Rehost   bool   `json:"rehost,omitempty" yaml:"rehost,omitempty"` // re-host temporary URLs through the store
}

// StoreConfig points at the object store used to host image bytes.
type StoreConfig struct {
	URL            string `json:"url,omitempty" yaml:"url,omitempty"`
	APIKey         string `json:"apiKey,omitempty" yaml:"apiKey,omitempty"`
	TimeoutSeconds int    `json:"timeoutSeconds,omitempty" yaml:"timeoutSeconds,omitempty"`
}

// DecisionConfig controls vote and suggestion prompts.
type DecisionConfig struct {
	LabelMaxLen        int     `json:"labelMaxLen,omitempty" yaml:"labelMaxLen,omitempty"`
	VoteTemperature    float64 `json:"voteTemperature,omitempty" yaml:"voteTemperature,omitempty"`
	SuggestTemperature float64 `json:"suggestTemperature,omitempty" yaml:"suggestTemperature,omitempty"`
}

// BotConfig controls the decision cycle and ledger submission.
type BotConfig struct {
	Schedule    string `json:"schedule,omitempty" yaml:"schedule,omitempty"` // robfig/cron spec
	Concurrency int    `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	Suggestions *bool  `json:"suggestions,omitempty" yaml:"suggestions,omitempty"`
	LedgerURL   string `json:"ledgerUrl,omitempty" yaml:"ledgerUrl,omitempty"`
	FromAddress string `json:"fromAddress,omitempty" yaml:"fromAddress,omitempty"`
	ToAddress   string `json:"toAddress,omitempty" yaml:"toAddress,omitempty"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level string `json:"level,omitempty" yaml:"level,omitempty"`
}

func boolPtr(b bool) *bool { return &b }

// Defaults returns the configuration used for any field left unset.
func Defaults() *Config {
	return &Config{
		Provider:    "openai",
		Temperature: 0.7,
		Research: ResearchConfig{
			Enabled:       boolPtr(true),
			MaxSteps:      6,
			SummaryMaxLen: 1500,
			Temperature:   0.3,
		},
		Search: SearchConfig{
			Endpoint:           "https://api.search.brave.com/res/v1/web/search",
			IntervalMs:         1200,
			MaxRetries:         3,
			MaxResults:         5,
			MaxQueryLen:        300,
			PageBudget:         6000,
			PageTimeoutSeconds: 8,
		},
		Image: ImageConfig{
			Enabled:  boolPtr(true),
			Provider: "openai",
			Size:     "1024x1024",
		},
		Store: StoreConfig{
			TimeoutSeconds: 30,
		},
		Decision: DecisionConfig{
			LabelMaxLen:        120,
			VoteTemperature:    0.2,
			SuggestTemperature: 0.9,
		},
		Bot: BotConfig{
			Schedule:    "@every 10m",
			Concurrency: 4,
			Suggestions: boolPtr(true),
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// ConfigurationError reports a missing setting required by a feature.
type ConfigurationError struct {
	Feature string
	Missing string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s: missing required setting %s", e.Feature, e.Missing)
}

// Features reports which optional features the configuration enables.
type Features struct {
	Research    bool
	Images      bool
	Store       bool
	Suggestions bool
	Ledger      bool
}

// Find returns the active config file, "" if none exists. See
// paths.ConfigPath for the search order.
func Find() string {
	path, err := paths.ConfigPath()
	if err != nil {
		logging.L_warn("config: cannot resolve config path", "error", err)
		return ""
	}
	return path
}

// Load reads the file at path (JSON or YAML by extension; "" means no file),
// applies SURVEYBOT_* environment overrides, then fills defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		logging.L_debug("config: file loaded", "path", path)
	}

	applyEnv(cfg, os.Getenv)

	// WithoutDereference keeps an explicit *bool false from being replaced.
	if err := mergo.Merge(cfg, Defaults(), mergo.WithoutDereference); err != nil {
		return nil, fmt.Errorf("failed to apply defaults: %w", err)
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// applyEnv overrides fields from the environment. getenv is injectable for tests.
func applyEnv(cfg *Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Provider, "SURVEYBOT_PROVIDER")
	set(&cfg.APIKey, "SURVEYBOT_API_KEY")
	set(&cfg.ChatModel, "SURVEYBOT_MODEL")
	set(&cfg.Search.APIKey, "SURVEYBOT_SEARCH_KEY")
	set(&cfg.Store.URL, "SURVEYBOT_STORE_URL")
	set(&cfg.Image.Provider, "SURVEYBOT_IMAGE_PROVIDER")
	set(&cfg.Image.APIKey, "SURVEYBOT_IMAGE_API_KEY")
	set(&cfg.Bot.LedgerURL, "SURVEYBOT_LEDGER_URL")
	set(&cfg.Log.Level, "SURVEYBOT_LOG_LEVEL")

	if v := strings.TrimSpace(getenv("SURVEYBOT_MAX_RESEARCH_STEPS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Research.MaxSteps = n
		} else {
			logging.L_warn("config: ignoring invalid SURVEYBOT_MAX_RESEARCH_STEPS", "value", v)
		}
	}
}

// Validate reports the one setting whose absence is fatal: the chat API key.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Provider) == "" {
		return &ConfigurationError{Feature: "chat", Missing: "provider"}
	}
	if strings.TrimSpace(c.APIKey) == "" {
		return &ConfigurationError{Feature: "chat", Missing: "apiKey"}
	}
	return nil
}

// Features derives which optional features are usable.
func (c *Config) Features() Features {
	return Features{
		Research:    c.ResearchEnabled() && c.Search.APIKey != "",
		Images:      c.Image.Enabled == nil || *c.Image.Enabled,
		Store:       c.Store.URL != "",
		Suggestions: c.Bot.Suggestions == nil || *c.Bot.Suggestions,
		Ledger:      c.Bot.LedgerURL != "",
	}
}

// ResearchEnabled reports whether research is switched on (it still needs a search key).
func (c *Config) ResearchEnabled() bool {
	return c.Research.Enabled == nil || *c.Research.Enabled
}

// SearchInterval returns the pacing interval between search calls.
func (c *Config) SearchInterval() time.Duration {
	return time.Duration(c.Search.IntervalMs) * time.Millisecond
}

// PageTimeout returns the page fetch timeout.
func (c *Config) PageTimeout() time.Duration {
	return time.Duration(c.Search.PageTimeoutSeconds) * time.Second
}

// StoreTimeout returns the object store request timeout.
func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.Store.TimeoutSeconds) * time.Second
}
