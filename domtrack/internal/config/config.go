// CLAUDE:SUMMARY Defines domtrack config structs, parses YAML configuration files with defaults and validates them.
// Package config handles domtrack configuration from YAML files.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level domtrack configuration.
type Config struct {
	PageID   string          `yaml:"page_id"`
	Source   SourceConfig    `yaml:"source"`
	Debounce DebounceConfig  `yaml:"debounce"`
	Watchers []WatcherConfig `yaml:"watchers"`
	Sinks    []SinkConfig    `yaml:"sinks"`
	HTTP     HTTPConfig      `yaml:"http"`
	Snippet  SnippetConfig   `yaml:"snippet"`
}

// SourceConfig says where the document comes from.
type SourceConfig struct {
	Type             string        `yaml:"type"` // file | http | browser
	Path             string        `yaml:"path"` // for file
	URL              string        `yaml:"url"`  // for http and browser
	PollInterval     time.Duration `yaml:"poll_interval"`
	Stealth          string        `yaml:"stealth"` // headless | headful
	Remote           string        `yaml:"remote"`  // existing Chrome DevTools URL
	ResourceBlocking []string      `yaml:"resource_blocking"`
}

// DebounceConfig controls mutation batching.
type DebounceConfig struct {
	Window      time.Duration `yaml:"window"`
	MaxBuffer   int           `yaml:"max_buffer"`
	SettleAfter time.Duration `yaml:"settle_after"`
}

// WatcherConfig starts one watcher.
type WatcherConfig struct {
	Entity      string  `yaml:"entity"`
	Root        string  `yaml:"root"` // CSS selector, default "body"
	Threshold   float64 `yaml:"threshold"`
	DetachGrace *int    `yaml:"detach_grace"`
}

// SinkConfig defines an output backend.
type SinkConfig struct {
	Type    string `yaml:"type"` // stdout | webhook | sqlite
	URL     string `yaml:"url"`  // for webhook
	Path    string `yaml:"path"` // for sqlite
	Retries int    `yaml:"retries"`
	Buffer  int    `yaml:"buffer"`
}

// HTTPConfig enables the status endpoints when Addr is set.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// SnippetConfig bounds the HTML carried by detections.
type SnippetConfig struct {
	MaxLen    int  `yaml:"max_len"`
	NoPreview bool `yaml:"no_preview"`
}

// LoadFile reads a YAML configuration file, applies defaults and validates.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.PageID == "" {
		c.PageID = "page"
	}
	if c.Source.Type == "" {
		c.Source.Type = "file"
	}
	if c.Source.PollInterval <= 0 {
		c.Source.PollInterval = 2 * time.Second
	}
	if c.Source.Stealth == "" {
		c.Source.Stealth = "headless"
	}
	if c.Debounce.Window <= 0 {
		c.Debounce.Window = 25 * time.Millisecond
	}
	if c.Debounce.MaxBuffer <= 0 {
		c.Debounce.MaxBuffer = 1000
	}
	if c.Debounce.SettleAfter <= 0 {
		c.Debounce.SettleAfter = 4 * c.Debounce.Window
	}
	for i := range c.Watchers {
		if c.Watchers[i].Root == "" {
			c.Watchers[i].Root = "body"
		}
	}
	for i := range c.Sinks {
		if c.Sinks[i].Retries <= 0 {
			c.Sinks[i].Retries = 3
		}
		if c.Sinks[i].Buffer <= 0 {
			c.Sinks[i].Buffer = 256
		}
	}
	if len(c.Sinks) == 0 {
		c.Sinks = []SinkConfig{{Type: "stdout", Retries: 3, Buffer: 256}}
	}
	if c.Snippet.MaxLen == 0 {
		c.Snippet.MaxLen = 2048
	}
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	var errs []error
	switch c.Source.Type {
	case "file":
		if c.Source.Path == "" {
			errs = append(errs, errors.New("source: file needs a path"))
		}
	case "http", "browser":
		if c.Source.URL == "" {
			errs = append(errs, fmt.Errorf("source: %s needs a url", c.Source.Type))
		}
	default:
		errs = append(errs, fmt.Errorf("source: unknown type %q", c.Source.Type))
	}
	if c.Source.Stealth != "headless" && c.Source.Stealth != "headful" {
		errs = append(errs, fmt.Errorf("source: unknown stealth %q", c.Source.Stealth))
	}
	if len(c.Watchers) == 0 {
		errs = append(errs, errors.New("watchers: at least one is required"))
	}
	for i, w := range c.Watchers {
		if w.Entity == "" {
			errs = append(errs, fmt.Errorf("watchers[%d]: entity is required", i))
		}
		if w.Threshold < 0 || w.Threshold > 1 {
			errs = append(errs, fmt.Errorf("watchers[%d]: threshold %v out of [0,1]", i, w.Threshold))
		}
	}
	for i, s := range c.Sinks {
		switch s.Type {
		case "stdout":
		case "webhook":
			if s.URL == "" {
				errs = append(errs, fmt.Errorf("sinks[%d]: webhook needs a url", i))
			}
		case "sqlite":
			if s.Path == "" {
				errs = append(errs, fmt.Errorf("sinks[%d]: sqlite needs a path", i))
			}
		default:
			errs = append(errs, fmt.Errorf("sinks[%d]: unknown type %q", i, s.Type))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
