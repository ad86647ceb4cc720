// Package llm wraps the Gemini multimodal model for the two decisions the
// pipeline delegates to it: reading invoice images into records, and
// arbitrating between close customer candidates.
package llm

import (
	"fmt"
	"strings"
	"time"
)

// Config holds Gemini settings
type Config struct {
	APIKey            string        `json:"-" mapstructure:"api_key"`
	Model             string        `json:"model" mapstructure:"model"`
	RequestsPerMinute int           `json:"requests_per_minute" mapstructure:"requests_per_minute"`
	Timeout           time.Duration `json:"timeout" mapstructure:"timeout"`
	Temperature       float32       `json:"temperature" mapstructure:"temperature"`
	MaxOutputTokens   int32         `json:"max_output_tokens" mapstructure:"max_output_tokens"`
}

// DefaultConfig returns the production model settings. The API key is
// supplied from GEMINI_API_KEY by the caller.
func DefaultConfig() *Config {
	return &Config{
		Model:             "gemini-1.5-flash",
		RequestsPerMinute: 15,
		Timeout:           60 * time.Second,
		Temperature:       0.1,
		MaxOutputTokens:   8192,
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if strings.TrimSpace(c.APIKey) == "" {
		return fmt.Errorf("gemini api key is required")
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("gemini model is required")
	}
	if c.RequestsPerMinute <= 0 {
		return fmt.Errorf("requests per minute must be positive: %d", c.RequestsPerMinute)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive: %s", c.Timeout)
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2: %f", c.Temperature)
	}
	return nil
}
