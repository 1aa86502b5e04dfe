package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	ListenAddr  string `mapstructure:"listen_addr" yaml:"listen_addr"`
	Environment string `mapstructure:"environment" yaml:"environment"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`

	// Analysis service
	AnalysisProvider string `mapstructure:"analysis_provider" yaml:"analysis_provider"`
	AnalysisURL      string `mapstructure:"analysis_url" yaml:"analysis_url"`

	// HTTP/Retry configuration
	HTTPTimeoutSec   int `mapstructure:"http_timeout_sec" yaml:"http_timeout_sec"`
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Wizard sessions and uploads
	SessionTTLMin int      `mapstructure:"session_ttl_min" yaml:"session_ttl_min"`
	MaxUploadMB   int      `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
	ProfileRows   int      `mapstructure:"profile_rows" yaml:"profile_rows"`
	CORSOrigins   []string `mapstructure:"cors_origins" yaml:"cors_origins"`
}

// Production reports whether logs should use the JSON encoder.
func (c *Global) Production() bool {
	return strings.EqualFold(c.Environment, "production")
}

func (c *Global) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSec) * time.Second
}

func (c *Global) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

func (c *Global) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayMs) * time.Millisecond
}

func (c *Global) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMin) * time.Minute
}

// MaxUploadBytes is the request body limit for uploads.
func (c *Global) MaxUploadBytes() int {
	return c.MaxUploadMB << 20
}

func defaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".stagewise"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.stagewise/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	path := cfgFile
	if path == "" {
		dir, err := defaultDir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults. A .env file in the
// working directory is applied to the environment first, without overriding
// variables that are already set.
// Precedence: flags (cfgFile) > env > config file > defaults.
func Load(cfgFile string) (*Global, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("STAGEWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("analysis_provider", "placeholder")
	v.SetDefault("analysis_url", "")
	// HTTP/retry defaults
	v.SetDefault("http_timeout_sec", 120)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 500)
	v.SetDefault("retry_max_delay_ms", 4000)
	v.SetDefault("session_ttl_min", 60)
	v.SetDefault("max_upload_mb", 50)
	v.SetDefault("profile_rows", 500)
	v.SetDefault("cors_origins", []string{"http://localhost:3000"})

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := defaultDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// A missing file is fine; a present but unreadable one is not.
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound && (cfgFile == "" || fileExists(cfgFile)) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	// Comma-separated origins from the environment arrive as one element.
	if len(c.CORSOrigins) == 1 && strings.Contains(c.CORSOrigins[0], ",") {
		c.CORSOrigins = splitList(c.CORSOrigins[0])
	}
	return &c, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Keys lists the settable configuration keys in display order.
func Keys() []string {
	return []string{
		"listen_addr", "environment", "log_level", "log_file",
		"analysis_provider", "analysis_url",
		"http_timeout_sec", "retry_max_attempts", "retry_base_delay_ms", "retry_max_delay_ms",
		"session_ttl_min", "max_upload_mb", "profile_rows", "cors_origins",
	}
}

// Get renders one key's value.
func (c *Global) Get(key string) (string, error) {
	switch key {
	case "listen_addr":
		return c.ListenAddr, nil
	case "environment":
		return c.Environment, nil
	case "log_level":
		return c.LogLevel, nil
	case "log_file":
		return c.LogFile, nil
	case "analysis_provider":
		return c.AnalysisProvider, nil
	case "analysis_url":
		return c.AnalysisURL, nil
	case "cors_origins":
		return strings.Join(c.CORSOrigins, ","), nil
	}
	if p, ok := c.intField(key); ok {
		return strconv.Itoa(*p), nil
	}
	return "", fmt.Errorf("unknown key: %s", key)
}

// Set parses and assigns one key's value.
func (c *Global) Set(key, val string) error {
	switch key {
	case "listen_addr":
		c.ListenAddr = val
	case "environment":
		switch strings.ToLower(val) {
		case "development", "production":
			c.Environment = strings.ToLower(val)
		default:
			return fmt.Errorf("invalid environment: %s (use development or production)", val)
		}
	case "log_level":
		switch strings.ToLower(val) {
		case "debug", "info", "warn", "error":
			c.LogLevel = strings.ToLower(val)
		default:
			return fmt.Errorf("invalid log_level: %s", val)
		}
	case "log_file":
		c.LogFile = val
	case "analysis_provider":
		c.AnalysisProvider = strings.ToLower(val)
	case "analysis_url":
		c.AnalysisURL = val
	case "cors_origins":
		c.CORSOrigins = splitList(val)
	default:
		p, ok := c.intField(key)
		if !ok {
			return fmt.Errorf("unknown key: %s", key)
		}
		i, err := strconv.Atoi(val)
		if err != nil || i < 0 {
			return fmt.Errorf("invalid int for %s: %v", key, val)
		}
		*p = i
	}
	return nil
}

func (c *Global) intField(key string) (*int, bool) {
	switch key {
	case "http_timeout_sec":
		return &c.HTTPTimeoutSec, true
	case "retry_max_attempts":
		return &c.RetryMaxAttempts, true
	case "retry_base_delay_ms":
		return &c.RetryBaseDelayMs, true
	case "retry_max_delay_ms":
		return &c.RetryMaxDelayMs, true
	case "session_ttl_min":
		return &c.SessionTTLMin, true
	case "max_upload_mb":
		return &c.MaxUploadMB, true
	case "profile_rows":
		return &c.ProfileRows, true
	}
	return nil, false
}
