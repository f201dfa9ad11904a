// Package util provides common utilities for pingwatch.
package util

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
	DBPath   string `mapstructure:"db_path"`

	// Ping settings
	Count        int           `mapstructure:"count"`
	Period       time.Duration `mapstructure:"period"`
	Timeout      time.Duration `mapstructure:"timeout"`
	Retry        int           `mapstructure:"retry"`
	Size         int           `mapstructure:"size"`
	TTL          int           `mapstructure:"ttl"`
	Unprivileged bool          `mapstructure:"unprivileged"`

	// Monitor settings
	Network         string        `mapstructure:"network"`
	ScanInterval    time.Duration `mapstructure:"scan_interval"`
	ScanTimeout     time.Duration `mapstructure:"scan_timeout"`
	ScanConcurrency int           `mapstructure:"scan_concurrency"`
	ScanRate        float64       `mapstructure:"scan_rate"`
	ChangesOnly     bool          `mapstructure:"changes_only"`
	ResolveMAC      bool          `mapstructure:"resolve_mac"`
	Notify          bool          `mapstructure:"notify"`

	// Offline events older than this are purged by the daemon.
	Retention time.Duration `mapstructure:"retention"`

	ReportOutputDir string `mapstructure:"report_output_dir"`

	// Web server
	WebPort int `mapstructure:"web_port"`
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".pingwatch")

	return &Config{
		DataDir:  dataDir,
		LogLevel: "info",
		LogFile:  filepath.Join(dataDir, "pingwatch.log"),
		DBPath:   filepath.Join(dataDir, "pingwatch.db"),

		Count:   3,
		Period:  time.Second,
		Timeout: 5 * time.Second,
		Retry:   1,
		Size:    56,
		TTL:     64,

		ScanInterval:    60 * time.Second,
		ScanTimeout:     500 * time.Millisecond,
		ScanConcurrency: 256,
		ResolveMAC:      true,
		Notify:          true,

		Retention: 30 * 24 * time.Hour,

		ReportOutputDir: filepath.Join(dataDir, "reports"),
		WebPort:         8080,
	}
}

// LoadConfig loads configuration from file and environment.
func LoadConfig() (*Config, error) {
	cfg := DefaultConfig()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data dir: %w", err)
	}

	v := viper.GetViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(cfg.DataDir)
	v.AddConfigPath(".")
	v.SetEnvPrefix("pingwatch")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("log_file", cfg.LogFile)
	v.SetDefault("db_path", cfg.DBPath)
	v.SetDefault("count", cfg.Count)
	v.SetDefault("period", cfg.Period)
	v.SetDefault("timeout", cfg.Timeout)
	v.SetDefault("retry", cfg.Retry)
	v.SetDefault("size", cfg.Size)
	v.SetDefault("ttl", cfg.TTL)
	v.SetDefault("unprivileged", cfg.Unprivileged)
	v.SetDefault("network", cfg.Network)
	v.SetDefault("scan_interval", cfg.ScanInterval)
	v.SetDefault("scan_timeout", cfg.ScanTimeout)
	v.SetDefault("scan_concurrency", cfg.ScanConcurrency)
	v.SetDefault("scan_rate", cfg.ScanRate)
	v.SetDefault("changes_only", cfg.ChangesOnly)
	v.SetDefault("resolve_mac", cfg.ResolveMAC)
	v.SetDefault("notify", cfg.Notify)
	v.SetDefault("retention", cfg.Retention)
	v.SetDefault("report_output_dir", cfg.ReportOutputDir)
	v.SetDefault("web_port", cfg.WebPort)
}

// Validate rejects values the probing engine cannot work with.
func (c *Config) Validate() error {
	switch {
	case c.Count < 0:
		return fmt.Errorf("invalid count %d: must not be negative", c.Count)
	case c.Retry < 0:
		return fmt.Errorf("invalid retry %d: must not be negative", c.Retry)
	case c.TTL < 1 || c.TTL > 255:
		return fmt.Errorf("invalid ttl %d: must be between 1 and 255", c.TTL)
	case c.Timeout <= 0:
		return fmt.Errorf("invalid timeout %s: must be positive", c.Timeout)
	case c.ScanConcurrency < 0:
		return fmt.Errorf("invalid scan_concurrency %d: must not be negative", c.ScanConcurrency)
	}
	return nil
}

// EnsureDir ensures a directory exists.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// ParseDuration extends time.ParseDuration with day ("7d") and week ("2w")
// units.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if n := len(s); n > 1 {
		var unit time.Duration
		switch s[n-1] {
		case 'd':
			unit = 24 * time.Hour
		case 'w':
			unit = 7 * 24 * time.Hour
		}
		if unit != 0 {
			var count int
			if _, err := fmt.Sscanf(s, "%d", &count); err == nil && fmt.Sprintf("%d", count) == s[:n-1] {
				return time.Duration(count) * unit, nil
			}
		}
	}
	return time.ParseDuration(s)
}
