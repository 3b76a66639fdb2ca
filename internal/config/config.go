package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"parlor/internal/llm"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig      `json:"server"`
	Database DatabaseConfig    `json:"database"`
	UserMode string            `json:"user_mode"` // "single" or "multi"
	Logging  LoggingConfig     `json:"logging"`
	Folders  FoldersConfig     `json:"folders"`
	Chat     ChatConfig        `json:"chat"`
	Models   []llm.ModelConfig `json:"models"`
}

// ServerConfig controls the HTTP server
type ServerConfig struct {
	Port        int    `json:"port"`
	BindAddress string `json:"bind_address"`
}

// DatabaseConfig controls sqlite storage
type DatabaseConfig struct {
	Path string `json:"path"`
}

// LoggingConfig controls logging behavior
type LoggingConfig struct {
	Level string `json:"level"` // "debug", "info", "warn", "error"
}

// FoldersConfig controls folder deletion behavior
type FoldersConfig struct {
	// DeletePolicy is "block" (refuse to delete non-empty folders) or
	// "cascade" (folder deletion removes its conversations).
	DeletePolicy string `json:"delete_policy"`
}

// CascadeDelete reports whether folder deletion removes contained
// conversations.
func (f FoldersConfig) CascadeDelete() bool {
	return f.DeletePolicy == "cascade"
}

// ChatConfig tunes the conversation orchestrator
type ChatConfig struct {
	DefaultModel     string `json:"default_model"`   // model config ID for new conversations
	SummarizeModel   string `json:"summarize_model"` // lower-cost model for title generation
	TurnTimeoutSecs  int    `json:"turn_timeout_seconds"`
	RetryBaseDelayMS int    `json:"retry_base_delay_ms"`
}

// Load reads configuration from a JSON file, creating it with defaults if
// it doesn't exist.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg := Default()
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used for fresh installs.
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080, BindAddress: "127.0.0.1"},
		Database: DatabaseConfig{Path: "parlor.db"},
		UserMode: "single",
		Logging:  LoggingConfig{Level: "info"},
		Folders:  FoldersConfig{DeletePolicy: "block"},
		Chat: ChatConfig{
			TurnTimeoutSecs:  120,
			RetryBaseDelayMS: 500,
		},
	}
}

// Save writes the configuration to disk as indented JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.UserMode != "single" && c.UserMode != "multi" {
		return fmt.Errorf("user_mode must be \"single\" or \"multi\", got %q", c.UserMode)
	}
	if c.Folders.DeletePolicy != "block" && c.Folders.DeletePolicy != "cascade" {
		return fmt.Errorf("folders.delete_policy must be \"block\" or \"cascade\", got %q", c.Folders.DeletePolicy)
	}
	if len(c.Models) == 0 {
		return fmt.Errorf("at least one model configuration is required")
	}
	ids := make(map[string]bool, len(c.Models))
	for _, m := range c.Models {
		if m.ID == "" {
			return fmt.Errorf("model configuration missing id")
		}
		if ids[m.ID] {
			return fmt.Errorf("duplicate model configuration: %s", m.ID)
		}
		ids[m.ID] = true
	}
	if c.Chat.DefaultModel == "" {
		return fmt.Errorf("chat.default_model is required")
	}
	if !ids[c.Chat.DefaultModel] {
		return fmt.Errorf("chat.default_model %q is not a configured model", c.Chat.DefaultModel)
	}
	if c.Chat.SummarizeModel != "" && !ids[c.Chat.SummarizeModel] {
		return fmt.Errorf("chat.summarize_model %q is not a configured model", c.Chat.SummarizeModel)
	}
	return nil
}

// SummarizerModel returns the model ID used for title generation, falling
// back to the default chat model.
func (c *Config) SummarizerModel() string {
	if c.Chat.SummarizeModel != "" {
		return c.Chat.SummarizeModel
	}
	return c.Chat.DefaultModel
}

// ParseLevel maps a config level string onto zerolog's level names,
// defaulting to info.
func ParseLevel(level string) string {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return strings.ToLower(level)
	default:
		return "info"
	}
}
