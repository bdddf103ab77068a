package config

import (
	"fmt"
	"slices"
	"strings"

	"github.com/TobiSchelling/surveylens/internal/dates"
)

var (
	providers  = []string{"ollama", "openai", "anthropic"}
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// Validate checks enumerations and ranges. Load calls it automatically.
func (c *Config) Validate() error {
	if !slices.Contains(providers, strings.ToLower(c.LLM.Provider)) {
		return fmt.Errorf("llm.provider must be one of %s (got %q)", strings.Join(providers, ", "), c.LLM.Provider)
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be > 0 (got %d)", c.LLM.MaxTokens)
	}
	if c.LLM.Timeout < 0 {
		return fmt.Errorf("llm.timeout must be >= 0 (got %s)", c.LLM.Timeout)
	}
	if c.Queue.Interval < 0 {
		return fmt.Errorf("queue.interval must be >= 0 (got %s)", c.Queue.Interval)
	}
	if c.Output.BusyTimeout < 0 {
		return fmt.Errorf("output.busy_timeout must be >= 0 (got %s)", c.Output.BusyTimeout)
	}
	if _, err := dates.ParseOrder(c.Queue.DateOrder); err != nil {
		return fmt.Errorf("queue.date_order: %w", err)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535 (got %d)", c.Server.Port)
	}
	if !slices.Contains(logLevels, strings.ToLower(c.Logging.Level)) {
		return fmt.Errorf("logging.level must be one of %s (got %q)", strings.Join(logLevels, ", "), c.Logging.Level)
	}
	if !slices.Contains(logFormats, strings.ToLower(c.Logging.Format)) {
		return fmt.Errorf("logging.format must be one of %s (got %q)", strings.Join(logFormats, ", "), c.Logging.Format)
	}
	return nil
}
