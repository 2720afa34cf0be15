package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config represents the main application configuration structure
// containing all configuration sections
type Config struct {
	Server   ServerConfig   `toml:"server"`   // HTTP server settings
	Logging  LoggingConfig  `toml:"logging"`  // Application logging settings
	Storage  StorageConfig  `toml:"storage"`  // Data persistence settings
	Airfield AirfieldConfig `toml:"airfield"` // Runway and board settings
	VOR      VORConfig      `toml:"vor"`      // Navigation beacon used as the polar origin
	Feed     FeedConfig     `toml:"feed"`     // WebSocket change feed settings
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port               int      `toml:"port"`                    // Primary HTTP port for the server
	Host               string   `toml:"host"`                    // Host address to bind to (e.g., 127.0.0.1 for localhost only, 0.0.0.0 for all interfaces)
	CORSAllowedOrigins []string `toml:"cors_allowed_origins"`    // List of origins allowed for CORS requests (use ["*"] for all origins)
	ReadTimeoutSecs    int      `toml:"read_timeout_seconds"`    // Maximum duration for reading the entire request (0 = no timeout)
	WriteTimeoutSecs   int      `toml:"write_timeout_seconds"`   // Maximum duration for writing the response (0 = no timeout, needed for the feed)
	IdleTimeoutSecs    int      `toml:"idle_timeout_seconds"`    // Maximum duration to wait for the next request when keep-alives are enabled
	RequestTimeoutSecs int      `toml:"request_timeout_seconds"` // Per-request deadline for API handlers
	ShutdownTimeoutSec int      `toml:"shutdown_timeout_seconds"`
	StaticFilesDir     string   `toml:"static_files_dir"` // Directory to serve the ops screens from (empty disables)
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `toml:"level"`  // debug, info, warn, error
	Format     string `toml:"format"` // console or json
	File       string `toml:"file"`   // Optional log file, rotated by size
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// Storage backends
const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// StorageConfig contains data storage configuration
type StorageConfig struct {
	Type       string `toml:"type"`        // sqlite or memory
	SQLitePath string `toml:"sqlite_path"` // Database file, created if missing
	// StateCacheSeconds is how long global state reads are cached (0 = no cache)
	StateCacheSeconds int `toml:"state_cache_seconds"`
}

// AirfieldConfig contains airfield level settings
type AirfieldConfig struct {
	Name          string `toml:"name"`
	DefaultRunway string `toml:"default_runway"` // Used until a runway in use is stored
	ArchiveLimit  int    `toml:"archive_limit"`  // Rows returned by the archive projection
}

// VORConfig seeds the navigation beacon until one is stored
type VORConfig struct {
	Name      string  `toml:"name"`
	Latitude  float64 `toml:"latitude"`
	Longitude float64 `toml:"longitude"`
	Frequency float64 `toml:"frequency"`
	// MagneticRadials rotates reported radials by the local declination on the map
	MagneticRadials bool `toml:"magnetic_radials"`
}

// FeedConfig contains change feed settings
type FeedConfig struct {
	Enabled    bool `toml:"enabled"`
	SendBuffer int  `toml:"send_buffer"` // Messages queued per client before it is dropped
}

// Default returns a configuration that runs without a file
func Default() *Config {
	c := &Config{
		Feed: FeedConfig{Enabled: true},
	}
	c.setDefaults()
	return c
}

// Load loads the configuration from the specified file path
func Load(path string) (*Config, error) {
	config := Config{Feed: FeedConfig{Enabled: true}}

	// Check if the file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", path)
	}

	// Read the config file
	md, err := toml.DecodeFile(path, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}

	return &config, nil
}

// LoadWithFallback loads the configuration by checking multiple locations in order of preference
func LoadWithFallback(preferredPath string) (*Config, error) {
	// List of paths to check in order of preference
	searchPaths := []string{
		preferredPath,         // User-specified path (if provided)
		"configs/config.toml", // configs/ folder
		"config.toml",         // Root directory
	}

	// Remove duplicates while preserving order
	uniquePaths := make([]string, 0, len(searchPaths))
	seen := make(map[string]bool)
	for _, path := range searchPaths {
		if path != "" && !seen[path] {
			uniquePaths = append(uniquePaths, path)
			seen[path] = true
		}
	}

	var lastErr error
	for _, path := range uniquePaths {
		if _, err := os.Stat(path); err == nil {
			config, err := Load(path)
			if err != nil {
				lastErr = fmt.Errorf("failed to load config from %s: %w", path, err)
				continue
			}
			return config, nil
		}
		lastErr = fmt.Errorf("config file not found: %s", path)
	}

	return nil, fmt.Errorf("config file not found in any of the expected locations: %v. Last error: %w", uniquePaths, lastErr)
}

// Validate validates the configuration, filling in defaults for unset values
func (c *Config) Validate() error {
	c.setDefaults()

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.StaticFilesDir != "" {
		if _, err := os.Stat(c.Server.StaticFilesDir); os.IsNotExist(err) {
			return fmt.Errorf("static files directory does not exist: %s", c.Server.StaticFilesDir)
		}
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "console" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid logging format: %s (must be console or json)", c.Logging.Format)
	}

	switch c.Storage.Type {
	case StorageMemory:
	case StorageSQLite:
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for sqlite storage")
		}
	default:
		return fmt.Errorf("invalid storage type: %s (must be %s or %s)", c.Storage.Type, StorageSQLite, StorageMemory)
	}
	if c.Storage.StateCacheSeconds < 0 {
		return fmt.Errorf("invalid state_cache_seconds: %d (must be >= 0)", c.Storage.StateCacheSeconds)
	}

	if c.Airfield.DefaultRunway != "04" && c.Airfield.DefaultRunway != "22" {
		return fmt.Errorf("invalid default runway: %s (must be 04 or 22)", c.Airfield.DefaultRunway)
	}
	if c.Airfield.ArchiveLimit < 0 {
		return fmt.Errorf("invalid archive_limit: %d", c.Airfield.ArchiveLimit)
	}

	if c.VOR.Latitude < -90 || c.VOR.Latitude > 90 {
		return fmt.Errorf("invalid VOR latitude: %f", c.VOR.Latitude)
	}
	if c.VOR.Longitude < -180 || c.VOR.Longitude > 180 {
		return fmt.Errorf("invalid VOR longitude: %f", c.VOR.Longitude)
	}

	return nil
}

func (c *Config) setDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.ReadTimeoutSecs == 0 {
		c.Server.ReadTimeoutSecs = 15
	}
	if c.Server.IdleTimeoutSecs == 0 {
		c.Server.IdleTimeoutSecs = 60
	}
	if c.Server.RequestTimeoutSecs == 0 {
		c.Server.RequestTimeoutSecs = 30
	}
	if c.Server.ShutdownTimeoutSec == 0 {
		c.Server.ShutdownTimeoutSec = 10
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "console"
	}
	if c.Logging.MaxSizeMB == 0 {
		c.Logging.MaxSizeMB = 50
	}
	if c.Logging.MaxBackups == 0 {
		c.Logging.MaxBackups = 5
	}

	if c.Storage.Type == "" {
		c.Storage.Type = StorageSQLite
	}
	if c.Storage.Type == StorageSQLite && c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/airfield-ops.db"
	}

	if c.Airfield.DefaultRunway == "" {
		c.Airfield.DefaultRunway = "22"
	}
	if c.Airfield.ArchiveLimit == 0 {
		c.Airfield.ArchiveLimit = 20
	}

	if c.VOR.Latitude == 0 && c.VOR.Longitude == 0 {
		c.VOR.Name = "GDA VOR"
		c.VOR.Latitude = 21.5268
		c.VOR.Longitude = 80.2903
		c.VOR.Frequency = 114.2
	}

	if c.Feed.SendBuffer == 0 {
		c.Feed.SendBuffer = 256
	}
}
