// Package alert delivers drift incidents to webhook endpoints with
// severity filtering and per-detector cooldowns.
package alert

import (
	"strings"
	"time"

	"github.com/Tanmay-24/agentwatch/internal/model"
)

// Config defines one webhook alert destination.
type Config struct {
	URL string `yaml:"url" json:"url"`

	// Format is "slack", "discord", or "generic". Empty auto-detects from
	// the URL host.
	Format string `yaml:"format" json:"format"`

	// MinSeverity drops incidents below this grade (default MED).
	MinSeverity model.Severity `yaml:"min_severity" json:"min_severity"`

	// Cooldown suppresses repeat alerts per (agent, detector) pair
	// (default 60s).
	Cooldown time.Duration `yaml:"cooldown" json:"cooldown"`

	Headers map[string]string `yaml:"headers" json:"headers"`
}

func (c *Config) applyDefaults() {
	if c.MinSeverity == "" {
		c.MinSeverity = model.SeverityMedium
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 60 * time.Second
	}
	if c.Format == "" {
		c.Format = detectFormat(c.URL)
	}
}

func detectFormat(url string) string {
	switch {
	case strings.Contains(url, "hooks.slack.com"):
		return "slack"
	case strings.Contains(url, "discord.com"):
		return "discord"
	default:
		return "generic"
	}
}
