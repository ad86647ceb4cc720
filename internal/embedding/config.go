// Package embedding provides the optional semantic search strategy: customer
// documents are embedded by an Ollama server, vectors are cached in sqlite,
// and queries are ranked by cosine similarity.
package embedding

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds embedding service settings
type Config struct {
	Enabled   bool          `json:"enabled" mapstructure:"enabled"`
	BaseURL   string        `json:"base_url" mapstructure:"base_url"`
	Model     string        `json:"model" mapstructure:"model"`
	CachePath string        `json:"cache_path" mapstructure:"cache_path"`
	Timeout   time.Duration `json:"timeout" mapstructure:"timeout"`
	// ProbeInterval is how long an availability check is trusted
	ProbeInterval time.Duration `json:"probe_interval" mapstructure:"probe_interval"`
}

// DefaultProbeInterval is used when ProbeInterval is not set
const DefaultProbeInterval = time.Minute

// DefaultConfig returns settings for a local Ollama install. Embeddings are
// off unless enabled explicitly.
func DefaultConfig() *Config {
	return &Config{
		Enabled:   false,
		BaseURL:   "http://localhost:11434",
		Model:     "nomic-embed-text",
		CachePath: "cache/embeddings.db",
		Timeout:   30 * time.Second,

		ProbeInterval: DefaultProbeInterval,
	}
}

// Validate checks the configuration. A disabled config is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("embedding model is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid embedding base url: %q", c.BaseURL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("embedding timeout must be positive: %s", c.Timeout)
	}
	if c.ProbeInterval < 0 {
		return fmt.Errorf("embedding probe interval must not be negative: %s", c.ProbeInterval)
	}
	return nil
}
