package models

import (
	"fmt"
	"net/url"
)

// ScrapeConfig is the per-run configuration assembled from the config
// file and CLI flags.
type ScrapeConfig struct {
	BaseURL     string `mapstructure:"base_url"`
	SubjectsURL string `mapstructure:"subjects_url"`

	// MaxConcurrentRenderers bounds the browser pool size.
	MaxConcurrentRenderers int `mapstructure:"max_concurrent_renderers"`

	// MaxRequestsPerSec throttles all outbound HTTP (fetch + assets).
	MaxRequestsPerSec float64 `mapstructure:"max_requests_per_sec"`

	// MaxEmptyPages is the consecutive-empty-page stop condition.
	MaxEmptyPages int `mapstructure:"max_empty_pages"`

	// TotalPages is the known last page, 0 when unbounded.
	TotalPages int `mapstructure:"total_pages"`

	FetchTimeoutSec  int  `mapstructure:"fetch_timeout_sec"`
	RenderTimeoutSec int  `mapstructure:"render_timeout_sec"`
	SettleDelayMS    int  `mapstructure:"settle_delay_ms"`
	Headless         bool `mapstructure:"headless"`
	InsecureTLS      bool `mapstructure:"insecure_tls"`

	UserAgent string `mapstructure:"user_agent"`
}

// Validate rejects configurations the runner cannot start with.
func (c *ScrapeConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	if err := ValidateURL(c.BaseURL); err != nil {
		return fmt.Errorf("base_url: %w", err)
	}
	if c.MaxConcurrentRenderers < 1 {
		return fmt.Errorf("max_concurrent_renderers must be >= 1, got %d", c.MaxConcurrentRenderers)
	}
	if c.MaxRequestsPerSec <= 0 {
		return fmt.Errorf("max_requests_per_sec must be > 0, got %v", c.MaxRequestsPerSec)
	}
	if c.MaxEmptyPages < 1 {
		return fmt.Errorf("max_empty_pages must be >= 1, got %d", c.MaxEmptyPages)
	}
	if c.FetchTimeoutSec < 1 || c.RenderTimeoutSec < 1 {
		return fmt.Errorf("timeouts must be >= 1s")
	}
	return nil
}

// ValidateURL accepts absolute http/https URLs only.
func ValidateURL(raw string) error {
	if raw == "" {
		return fmt.Errorf("empty URL")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("URL %q has no host", raw)
	}
	return nil
}
