// Package config loads surveylens settings from YAML with environment
// overrides.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"

	"github.com/TobiSchelling/surveylens/internal/llm"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	LLM     LLM     `yaml:"llm"`
	Queue   Queue   `yaml:"queue"`
	Output  Output  `yaml:"output"`
	Server  Server  `yaml:"server"`
	Logging Logging `yaml:"logging"`
}

type LLM struct {
	Provider        string        `yaml:"provider"          env:"SURVEYLENS_LLM_PROVIDER"`
	Model           string        `yaml:"model"             env:"SURVEYLENS_LLM_MODEL"`
	OllamaURL       string        `yaml:"ollama_url"        env:"SURVEYLENS_OLLAMA_URL"`
	OpenAIModel     string        `yaml:"openai_model"      env:"SURVEYLENS_OPENAI_MODEL"`
	APIKeyEnv       string        `yaml:"api_key_env"`
	AnthropicModel  string        `yaml:"anthropic_model"   env:"SURVEYLENS_ANTHROPIC_MODEL"`
	AnthropicKeyEnv string        `yaml:"anthropic_key_env"`
	MaxTokens       int           `yaml:"max_tokens"        env:"SURVEYLENS_LLM_MAX_TOKENS"`
	Timeout         time.Duration `yaml:"timeout"           env:"SURVEYLENS_LLM_TIMEOUT"`
}

// Queue controls pacing of classification calls.
type Queue struct {
	Interval  time.Duration `yaml:"interval"   env:"SURVEYLENS_QUEUE_INTERVAL"`
	DateOrder string        `yaml:"date_order" env:"SURVEYLENS_DATE_ORDER"`
}

type Output struct {
	DataDir     string        `yaml:"data_dir"     env:"SURVEYLENS_DATA_DIR"`
	BusyTimeout time.Duration `yaml:"busy_timeout" env:"SURVEYLENS_BUSY_TIMEOUT"`
}

type Server struct {
	Port int `yaml:"port" env:"SURVEYLENS_PORT"`
}

type Logging struct {
	Level  string `yaml:"level"  env:"SURVEYLENS_LOG_LEVEL"`
	Format string `yaml:"format" env:"SURVEYLENS_LOG_FORMAT"`
}

// ConfigDir returns the XDG config directory for surveylens.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "surveylens")
}

// DataDir returns the XDG data directory for surveylens.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "surveylens")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/surveylens/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'surveylens init' to create a default config",
		xdgConfig,
	)
}

// Load reads a config YAML file, applies environment overrides and
// validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		LLM: LLM{
			Provider:        "ollama",
			Model:           "qwen2.5:7b",
			OllamaURL:       "http://localhost:11434",
			OpenAIModel:     "gpt-4o-mini",
			APIKeyEnv:       "OPENAI_API_KEY",
			AnthropicModel:  "claude-haiku-4-5",
			AnthropicKeyEnv: "ANTHROPIC_API_KEY",
			MaxTokens:       512,
			Timeout:         120 * time.Second,
		},
		Queue: Queue{
			Interval:  1100 * time.Millisecond,
			DateOrder: "auto",
		},
		Output:  Output{BusyTimeout: 5 * time.Second},
		Server:  Server{Port: 8000},
		Logging: Logging{Level: "info", Format: "text"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

// DBPath returns the SQLite database location.
func (c *Config) DBPath() string {
	return filepath.Join(c.GetDataDir(), "surveylens.db")
}

// LLMSettings converts the llm section for llm.CreateProvider.
func (c *Config) LLMSettings() llm.Settings {
	return llm.Settings{
		Provider:        c.LLM.Provider,
		Model:           c.LLM.Model,
		OllamaURL:       c.LLM.OllamaURL,
		OpenAIModel:     c.LLM.OpenAIModel,
		APIKeyEnv:       c.LLM.APIKeyEnv,
		AnthropicModel:  c.LLM.AnthropicModel,
		AnthropicKeyEnv: c.LLM.AnthropicKeyEnv,
		Timeout:         c.LLM.Timeout,
	}
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
