package config

import (
	"fmt"

	"sunwell/internal/logging"
)

// LoggingConfig configures the engine's category-scoped logger. Category
// names must match one of logging.KnownCategories (scan, cascade, wave,
// verify, integration, audit, ...); anything else is almost certainly a
// typo in config.yaml and is rejected by Validate rather than silently
// doing nothing.
type LoggingConfig struct {
	Level      string          `yaml:"level" json:"level,omitempty"`           // debug, info, warn, error
	Format     string          `yaml:"format" json:"format,omitempty"`         // json, text
	File       string          `yaml:"file" json:"file,omitempty"`             // legacy single file
	DebugMode  bool            `yaml:"debug_mode" json:"debug_mode,omitempty"` // master toggle - false = no debug output
	Categories map[string]bool `yaml:"categories" json:"categories,omitempty"` // per-category debug toggles, e.g. {"wave": true, "verify": false}
}

// IsCategoryEnabled returns whether debug logging is enabled for a
// category. Returns false outright if debug_mode is false; otherwise
// true unless the category is explicitly disabled.
func (c *LoggingConfig) IsCategoryEnabled(category string) bool {
	if !c.DebugMode {
		return false
	}
	if c.Categories == nil {
		return true
	}
	enabled, exists := c.Categories[category]
	if !exists {
		return true
	}
	return enabled
}

// Validate rejects category names that don't match any logger the
// engine actually has, since a misspelled entry in config.yaml would
// otherwise silently never take effect.
func (c *LoggingConfig) Validate() error {
	if len(c.Categories) == 0 {
		return nil
	}
	known := make(map[string]bool, len(logging.KnownCategories()))
	for _, cat := range logging.KnownCategories() {
		known[string(cat)] = true
	}
	for name := range c.Categories {
		if !known[name] {
			return fmt.Errorf("logging: unknown category %q", name)
		}
	}
	return nil
}
