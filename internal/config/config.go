package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the root application configuration
type Config struct {
	API       APIConfig       `mapstructure:"api" yaml:"api"`
	Player    PlayerConfig    `mapstructure:"player" yaml:"player"`
	Providers ProvidersConfig `mapstructure:"providers" yaml:"providers"`
	Subtitles SubtitlesConfig `mapstructure:"subtitles" yaml:"subtitles"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
	Advanced  AdvancedConfig  `mapstructure:"advanced" yaml:"advanced"`
}

// APIConfig holds settings for the MNFLIX backend API
type APIConfig struct {
	BaseURL string        `mapstructure:"base_url" yaml:"base_url"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// PlayerConfig holds settings for the underlying player engine
type PlayerConfig struct {
	LoadUserConfig bool `mapstructure:"load_user_config" yaml:"load_user_config"`
	Fullscreen     bool `mapstructure:"fullscreen" yaml:"fullscreen"`
	Volume         int  `mapstructure:"volume" yaml:"volume"`
}

// ProvidersConfig holds provider ordering and fallback settings
type ProvidersConfig struct {
	// Priority is the fixed provider ordering; providers not listed
	// here are appended in discovery order.
	Priority []string `mapstructure:"priority" yaml:"priority"`
	// Fallback names the single best-effort provider whose candidate
	// streams are retried sequentially on playback failure.
	Fallback string `mapstructure:"fallback" yaml:"fallback"`
}

// SubtitlesConfig holds caption defaults
type SubtitlesConfig struct {
	// PreferredLanguage seeds the caption preference before the user
	// has made any selection.
	PreferredLanguage string `mapstructure:"preferred_language" yaml:"preferred_language"`
}

// DatabaseConfig holds sqlite settings
type DatabaseConfig struct {
	Path           string `mapstructure:"path" yaml:"path"`
	MaxConnections int    `mapstructure:"max_connections" yaml:"max_connections"`
	WALMode        bool   `mapstructure:"wal_mode" yaml:"wal_mode"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file"`
	Color      bool   `mapstructure:"color" yaml:"color"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// AdvancedConfig holds debugging and tuning knobs
type AdvancedConfig struct {
	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// SetDefaults registers default values on the given viper instance
func SetDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "http://localhost:4000")
	v.SetDefault("api.timeout", 30*time.Second)

	v.SetDefault("player.load_user_config", false)
	v.SetDefault("player.fullscreen", true)
	v.SetDefault("player.volume", 100)

	v.SetDefault("providers.priority", []string{
		"lush", "flow", "flux", "sonata", "zen", "breeze", "nova",
	})
	v.SetDefault("providers.fallback", "zen")

	v.SetDefault("subtitles.preferred_language", "mn")

	v.SetDefault("database.path", filepath.Join(getDataDir(), "mnflix", "mnflix.db"))
	v.SetDefault("database.max_connections", 4)
	v.SetDefault("database.wal_mode", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.file", filepath.Join(getStateDir(), "mnflix", "mnflix.log"))
	v.SetDefault("logging.color", true)
	v.SetDefault("logging.max_size", 10)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age", 28)
	v.SetDefault("logging.compress", true)

	v.SetDefault("advanced.debug", false)
}

// Load reads configuration from the given file (or the default search
// path when empty) and returns the parsed config together with the
// viper instance used, so callers can watch for changes.
func Load(cfgFile string) (*Config, *viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(getConfigDir(), "mnflix"))
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("MNFLIX")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return &cfg, v, nil
}

// InitializeDirs creates the config, data and state directories
func InitializeDirs() error {
	dirs := []string{
		filepath.Join(getConfigDir(), "mnflix"),
		filepath.Join(getDataDir(), "mnflix"),
		filepath.Join(getStateDir(), "mnflix"),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// DefaultConfigPath returns the path `mnflix config init` writes to
func DefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "mnflix", "config.yaml")
}

// WriteDefault writes the default configuration as YAML to path.
// Refuses to overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("failed to build default config: %w", err)
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal default config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func getConfigDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return "."
}

func getDataDir() string {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		return getConfigDir()
	}
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "share")
}

func getStateDir() string {
	if runtime.GOOS == "windows" || runtime.GOOS == "darwin" {
		return getConfigDir()
	}
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".local", "state")
}
