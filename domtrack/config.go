package domtrack

import (
	"github.com/hazyhaar/domsense/domtrack/internal/config"
)

// Config is the top-level domtrack configuration. Re-exported from internal.
type Config = config.Config

// SourceConfig says where the document comes from.
type SourceConfig = config.SourceConfig

// WatcherConfig starts one watcher.
type WatcherConfig = config.WatcherConfig

// SinkConfig defines an output backend.
type SinkConfig = config.SinkConfig

// LoadConfigFile reads, defaults and validates a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// ParseConfig is LoadConfigFile for in-memory YAML.
func ParseConfig(data []byte) (*Config, error) {
	return config.Parse(data)
}
