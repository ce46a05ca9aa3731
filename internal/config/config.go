// Package config holds all application configuration for the Archon agent
// backend. It is loaded from ~/.archon/config.yaml and can be overridden by
// environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	LLM     LLMConfig     `mapstructure:"llm" yaml:"llm"`
	Agent   AgentConfig   `mapstructure:"agent" yaml:"agent"`
	Server  ServerConfig  `mapstructure:"server" yaml:"server"`
	State   StateConfig   `mapstructure:"state" yaml:"state"`
	Home    HomeConfig    `mapstructure:"home" yaml:"home"`
	Search  SearchConfig  `mapstructure:"search" yaml:"search"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// LLMConfig contains configuration for the LLM provider families.
type LLMConfig struct {
	// DefaultModel is used when a request does not name a model
	DefaultModel string `mapstructure:"default_model" yaml:"default_model"`
	// Providers maps provider family names to their configuration
	Providers map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
}

// ProviderConfig configures one provider family.
type ProviderConfig struct {
	// Endpoint is the API base URL; empty uses the family default
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	// APIKey is the authentication key for the provider
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	// Model is the family's default model
	Model string `mapstructure:"model" yaml:"model,omitempty"`
	// TimeoutSec is the per-call HTTP timeout in seconds
	TimeoutSec int `mapstructure:"timeout_sec" yaml:"timeout_sec,omitempty"`
}

// AgentConfig controls the orchestration loop.
type AgentConfig struct {
	// MaxIterations bounds the decision loop per turn
	MaxIterations int `mapstructure:"max_iterations" yaml:"max_iterations"`
}

// ServerConfig controls the HTTP/WebSocket surface.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080"
	Addr string `mapstructure:"addr" yaml:"addr"`
	// ReadTimeout and WriteTimeout bound request handling
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// StateConfig locates the user state database.
type StateConfig struct {
	// DataDir is the directory holding state.db
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
}

// HomeConfig configures the smart-home bridge capability.
type HomeConfig struct {
	// BridgeURL is the local bridge's base URL; empty disables home capabilities
	BridgeURL string `mapstructure:"bridge_url" yaml:"bridge_url,omitempty"`
	// Token authenticates against the bridge
	Token string `mapstructure:"token" yaml:"token,omitempty"`
}

// SearchConfig configures the web search capability.
type SearchConfig struct {
	// Endpoint overrides the default instant-answer API
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level" yaml:"level"`
	// Pretty enables human-readable console output instead of JSON
	Pretty bool `mapstructure:"pretty" yaml:"pretty"`
}

// Default returns a Config with sensible default values.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	archonDir := filepath.Join(homeDir, ".archon")

	return &Config{
		LLM: LLMConfig{
			DefaultModel: "gpt-4.1",
			Providers: map[string]ProviderConfig{
				"openai": {
					Model: "gpt-4.1",
				},
				"openrouter": {
					Model: "anthropic/claude-sonnet-4",
				},
				"gemini": {
					Model: "gemini-2.5-flash",
				},
			},
		},
		Agent: AgentConfig{
			MaxIterations: 3,
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 5 * time.Minute, // turns can take a while
		},
		State: StateConfig{
			DataDir: archonDir,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}

// Load reads configuration from the default location (~/.archon/config.yaml)
// and merges with environment variables. If no config file exists, it creates
// one with default values.
func Load() (*Config, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home directory: %w", err)
	}
	return LoadFromPath(filepath.Join(homeDir, ".archon", "config.yaml"))
}

// LoadFromPath reads configuration from a specific file path and merges with
// environment variables. If the file doesn't exist, it is created with
// default values.
func LoadFromPath(path string) (*Config, error) {
	configDir := filepath.Dir(path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("create config directory: %w", err)
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := writeConfigFile(path, Default()); err != nil {
			return nil, fmt.Errorf("write default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Environment overrides, e.g. ARCHON_LLM_PROVIDERS_OPENAI_API_KEY
	v.SetEnvPrefix("ARCHON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

// applyDefaults fills in zero values left by a sparse config file.
func (c *Config) applyDefaults() {
	defaults := Default()
	if c.LLM.DefaultModel == "" {
		c.LLM.DefaultModel = defaults.LLM.DefaultModel
	}
	if c.Agent.MaxIterations <= 0 {
		c.Agent.MaxIterations = defaults.Agent.MaxIterations
	}
	if c.Server.Addr == "" {
		c.Server.Addr = defaults.Server.Addr
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = defaults.Server.ReadTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = defaults.Server.WriteTimeout
	}
	if c.State.DataDir == "" {
		c.State.DataDir = defaults.State.DataDir
	}
	if c.Logging.Level == "" {
		c.Logging.Level = defaults.Logging.Level
	}
}

// Validate checks the configuration for common errors.
func (c *Config) Validate() error {
	if c.LLM.DefaultModel == "" {
		return fmt.Errorf("llm.default_model cannot be empty")
	}
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be positive")
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level %q, must be one of: debug, info, warn, error", c.Logging.Level)
	}
	return nil
}

// SaveToPath writes the current configuration to a specific file path.
func (c *Config) SaveToPath(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return writeConfigFile(path, c)
}

func writeConfigFile(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
