// Package config loads application settings in three layers: built-in
// defaults, an optional YAML file, then STORM_-prefixed environment
// variables. Later layers win.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file search paths.
const ConfigPathEnvVar = "STORM_CONFIG_PATH"

// DefaultConfigPaths lists where the config file is searched, in order.
var DefaultConfigPaths = []string{
	"storm.yaml",
	"storm.yml",
	"/etc/storm/storm.yaml",
}

// Config is the application configuration. Storm definitions live in the
// database; this only covers the process itself.
type Config struct {
	Database   DatabaseConfig   `koanf:"database"`
	Spotify    SpotifyConfig    `koanf:"spotify"`
	Weatherboy WeatherboyConfig `koanf:"weatherboy"`
	Logging    LoggingConfig    `koanf:"logging"`
	Collection CollectionConfig `koanf:"collection"`
}

// DatabaseConfig locates the SQLite database.
type DatabaseConfig struct {
	Path string `koanf:"path"`
}

// SpotifyConfig holds API credentials. UserToken is only needed for playlist
// delivery; reads run on client credentials.
type SpotifyConfig struct {
	ClientID     string `koanf:"client_id"`
	ClientSecret string `koanf:"client_secret"`
	UserToken    string `koanf:"user_token"`
}

// WeatherboyConfig locates the optional ranking service. An empty URL
// disables ranking.
type WeatherboyConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// CollectionConfig tunes the metadata collection loops.
type CollectionConfig struct {
	AlbumBatchSize             int `koanf:"album_batch_size"`
	FeatureBatchSize           int `koanf:"feature_batch_size"`
	RetryLimit                 int `koanf:"retry_limit"`
	ConsecutiveBadBatchesLimit int `koanf:"consecutive_bad_batches_limit"`
	RereleaseWindowDays        int `koanf:"rerelease_window_days"`
}

func defaultConfig() Config {
	return Config{
		Database: DatabaseConfig{
			Path: "storm.db",
		},
		Weatherboy: WeatherboyConfig{
			Timeout: 30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Collection: CollectionConfig{
			AlbumBatchSize:             20,
			FeatureBatchSize:           100,
			RetryLimit:                 5,
			ConsecutiveBadBatchesLimit: 10,
			RereleaseWindowDays:        60,
		},
	}
}

// Load builds the configuration: defaults, then the YAML file if one exists,
// then environment variables.
func Load() (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("STORM_", ".", envTransform), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
		return ""
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransform maps STORM_SPOTIFY_CLIENT_ID to spotify.client_id: the first
// underscore after the prefix separates the section, the rest is the key.
func envTransform(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, "STORM_"))
	parts := strings.SplitN(s, "_", 2)
	if len(parts) == 1 {
		return parts[0]
	}
	return parts[0] + "." + parts[1]
}
