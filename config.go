package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mpryc/nbp-mcp-server/internal/logger"
	"github.com/mpryc/nbp-mcp-server/internal/nbp"
	"github.com/mpryc/nbp-mcp-server/internal/usage"
	"gopkg.in/yaml.v3"
)

const (
	transportStdio          = "stdio"
	transportStreamableHTTP = "streamable-http"

	defaultHost             = "0.0.0.0"
	defaultPort             = 8000
	defaultRangeConcurrency = 4
)

type fileConfig struct {
	API    apiConfig    `yaml:"api"`
	Server serverConfig `yaml:"server"`
	Log    logConfig    `yaml:"log"`
	Usage  usageConfig  `yaml:"usage"`
}

type apiConfig struct {
	URL              string `yaml:"url,omitempty"`
	UserAgent        string `yaml:"user_agent,omitempty"`
	Timeout          string `yaml:"timeout,omitempty"`
	RangeConcurrency int    `yaml:"range_concurrency,omitempty"`

	TimeoutDuration time.Duration `yaml:"-"`
	TimeoutSet      bool          `yaml:"-"`
}

type serverConfig struct {
	Transport string `yaml:"transport,omitempty"`
	Host      string `yaml:"host,omitempty"`
	Port      int    `yaml:"port,omitempty"`
}

type logConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
	Output string `yaml:"output,omitempty"`
}

type usageConfig struct {
	Driver         string            `yaml:"driver,omitempty"`
	DB             string            `yaml:"db,omitempty"`
	DSN            string            `yaml:"dsn,omitempty"`
	Host           string            `yaml:"host,omitempty"`
	Port           string            `yaml:"port,omitempty"`
	User           string            `yaml:"user,omitempty"`
	Password       string            `yaml:"password,omitempty"`
	Database       string            `yaml:"database,omitempty"`
	Table          string            `yaml:"table,omitempty"`
	Collection     string            `yaml:"collection,omitempty"`
	Prefix         string            `yaml:"prefix,omitempty"`
	Joined         string            `yaml:"joined,omitempty"`
	Separator      string            `yaml:"separator,omitempty"`
	TimeZone       string            `yaml:"timezone,omitempty"`
	WeekStart      string            `yaml:"week_start,omitempty"`
	Granularities  configStringSlice `yaml:"granularities,omitempty"`
	BufferMode     string            `yaml:"buffer_mode,omitempty"`
	BufferSize     int               `yaml:"buffer_size,omitempty"`
	BufferDuration string            `yaml:"buffer_duration,omitempty"`

	BufferDurationValue time.Duration `yaml:"-"`
}

type configStringSlice []string

func (c *fileConfig) normalize() error {
	if c == nil {
		return nil
	}
	if value := strings.TrimSpace(c.API.Timeout); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("api: invalid timeout: %w", err)
		}
		c.API.TimeoutDuration = parsed
		c.API.TimeoutSet = true
	}
	if value := strings.TrimSpace(c.Usage.BufferDuration); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("usage: invalid buffer_duration: %w", err)
		}
		c.Usage.BufferDurationValue = parsed
	}
	if c.Server.Transport != "" {
		transport, err := normalizeTransport(c.Server.Transport)
		if err != nil {
			return fmt.Errorf("server: %w", err)
		}
		c.Server.Transport = transport
	}
	return nil
}

func (s *configStringSlice) UnmarshalYAML(value *yaml.Node) error {
	if value == nil || value.Kind == 0 {
		return nil
	}

	switch value.Kind {
	case yaml.ScalarNode:
		var raw string
		if err := value.Decode(&raw); err != nil {
			return err
		}
		*s = normalizeStringList(strings.Split(raw, ","))
		return nil
	case yaml.SequenceNode:
		var raw []string
		if err := value.Decode(&raw); err != nil {
			return err
		}
		*s = normalizeStringList(raw)
		return nil
	default:
		return fmt.Errorf("granularities must be a string or list")
	}
}

func (s configStringSlice) Joined() string {
	return strings.Join([]string(s), ",")
}

func normalizeStringList(values []string) []string {
	cleaned := make([]string, 0, len(values))
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		cleaned = append(cleaned, trimmed)
	}
	if len(cleaned) == 0 {
		return nil
	}
	return cleaned
}

func normalizeTransport(value string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", transportStdio:
		return transportStdio, nil
	case transportStreamableHTTP, "http", "streamable_http":
		return transportStreamableHTTP, nil
	default:
		return "", fmt.Errorf("unsupported transport %q (use stdio or streamable-http)", value)
	}
}

// settings is the resolved runtime configuration after env and file
// values are merged. Command flags overwrite fields directly.
type settings struct {
	ConfigPath string

	APIURL           string
	UserAgent        string
	Timeout          time.Duration
	RangeConcurrency int

	Transport string
	Host      string
	Port      int

	LogLevel  string
	LogFormat string
	LogOutput string

	Usage usage.Options
}

func (s settings) address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// loadSettings loads .env, locates and reads the config file, and applies
// env > file > default for every key.
func loadSettings(args []string) (settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return settings{}, fmt.Errorf("load .env: %w", err)
	}

	cfg, path, err := resolveConfig(args)
	if err != nil {
		return settings{}, err
	}

	return mergeSettings(cfg, path)
}

func mergeSettings(cfg *fileConfig, path string) (settings, error) {
	if cfg == nil {
		cfg = &fileConfig{}
	}

	timeout := nbp.DefaultTimeout
	if cfg.API.TimeoutSet {
		timeout = cfg.API.TimeoutDuration
	}
	timeout, err := pickDuration(os.Getenv("NBP_TIMEOUT"), timeout)
	if err != nil {
		return settings{}, fmt.Errorf("NBP_TIMEOUT: %w", err)
	}

	concurrency, err := pickInt(os.Getenv("NBP_RANGE_CONCURRENCY"), cfg.API.RangeConcurrency, defaultRangeConcurrency)
	if err != nil {
		return settings{}, fmt.Errorf("NBP_RANGE_CONCURRENCY: %w", err)
	}
	port, err := pickInt(os.Getenv("NBP_PORT"), cfg.Server.Port, defaultPort)
	if err != nil {
		return settings{}, fmt.Errorf("NBP_PORT: %w", err)
	}
	transport, err := normalizeTransport(pickString(os.Getenv("NBP_TRANSPORT"), cfg.Server.Transport, transportStdio))
	if err != nil {
		return settings{}, err
	}

	bufferSize, err := pickInt(os.Getenv("NBP_USAGE_BUFFER_SIZE"), cfg.Usage.BufferSize, 0)
	if err != nil {
		return settings{}, fmt.Errorf("NBP_USAGE_BUFFER_SIZE: %w", err)
	}
	bufferDuration, err := pickDuration(os.Getenv("NBP_USAGE_BUFFER_DURATION"), cfg.Usage.BufferDurationValue)
	if err != nil {
		return settings{}, fmt.Errorf("NBP_USAGE_BUFFER_DURATION: %w", err)
	}

	u := cfg.Usage
	return settings{
		ConfigPath: path,

		APIURL:           pickString(os.Getenv("NBP_API_URL"), cfg.API.URL, nbp.DefaultBaseURL),
		UserAgent:        pickString(os.Getenv("NBP_USER_AGENT"), cfg.API.UserAgent, nbp.DefaultUserAgent),
		Timeout:          timeout,
		RangeConcurrency: concurrency,

		Transport: transport,
		Host:      pickString(os.Getenv("NBP_HOST"), cfg.Server.Host, defaultHost),
		Port:      port,

		LogLevel:  pickString(os.Getenv("NBP_LOG_LEVEL"), cfg.Log.Level, logger.DefaultLevel),
		LogFormat: pickString(os.Getenv("NBP_LOG_FORMAT"), cfg.Log.Format, logger.DefaultFormat),
		LogOutput: pickString(os.Getenv("NBP_LOG_OUTPUT"), cfg.Log.Output, logger.DefaultOutput),

		Usage: usage.Options{
			Driver:          pickString(os.Getenv("NBP_USAGE_DRIVER"), u.Driver, ""),
			DBPath:          pickString(os.Getenv("NBP_USAGE_DB"), u.DB, ""),
			DSN:             pickString(os.Getenv("NBP_USAGE_DSN"), u.DSN, ""),
			Host:            pickString(os.Getenv("NBP_USAGE_HOST"), u.Host, ""),
			Port:            pickString(os.Getenv("NBP_USAGE_PORT"), u.Port, ""),
			User:            pickString(os.Getenv("NBP_USAGE_USER"), u.User, ""),
			Password:        pickString(os.Getenv("NBP_USAGE_PASSWORD"), u.Password, ""),
			Database:        pickString(os.Getenv("NBP_USAGE_DATABASE"), u.Database, ""),
			Table:           pickString(os.Getenv("NBP_USAGE_TABLE"), u.Table, usage.DefaultTable),
			Collection:      pickString(os.Getenv("NBP_USAGE_COLLECTION"), u.Collection, ""),
			Prefix:          pickString(os.Getenv("NBP_USAGE_PREFIX"), u.Prefix, ""),
			Joined:          pickString(os.Getenv("NBP_USAGE_JOINED"), u.Joined, ""),
			Separator:       pickString(os.Getenv("NBP_USAGE_SEPARATOR"), u.Separator, ""),
			TimeZone:        pickString(os.Getenv("NBP_USAGE_TIMEZONE"), u.TimeZone, "UTC"),
			BeginningOfWeek: pickString(os.Getenv("NBP_USAGE_WEEK_START"), u.WeekStart, "monday"),
			Granularities:   pickString(os.Getenv("NBP_USAGE_GRANULARITIES"), u.Granularities.Joined(), ""),
			BufferMode:      pickString(os.Getenv("NBP_USAGE_BUFFER_MODE"), u.BufferMode, ""),
			BufferDuration:  bufferDuration,
			BufferSize:      bufferSize,
		},
	}, nil
}

func pickString(envValue, cfgValue, defaultValue string) string {
	if strings.TrimSpace(envValue) != "" {
		return strings.TrimSpace(envValue)
	}
	if strings.TrimSpace(cfgValue) != "" {
		return strings.TrimSpace(cfgValue)
	}
	return defaultValue
}

func pickInt(envValue string, cfgValue, defaultValue int) (int, error) {
	if strings.TrimSpace(envValue) != "" {
		return strconv.Atoi(strings.TrimSpace(envValue))
	}
	if cfgValue != 0 {
		return cfgValue, nil
	}
	return defaultValue, nil
}

func pickDuration(envValue string, fallback time.Duration) (time.Duration, error) {
	if strings.TrimSpace(envValue) == "" {
		return fallback, nil
	}
	return time.ParseDuration(strings.TrimSpace(envValue))
}

func resolveConfig(args []string) (*fileConfig, string, error) {
	path, explicit, err := findConfigPath(args)
	if err != nil {
		return nil, "", err
	}
	if !explicit {
		if envPath := strings.TrimSpace(os.Getenv("NBP_MCP_CONFIG")); envPath != "" {
			path = envPath
			explicit = true
		}
	}

	defaultPath, err := defaultConfigPath()
	if err == nil && strings.TrimSpace(path) == "" {
		path = defaultPath
	}

	if strings.TrimSpace(path) == "" {
		return &fileConfig{}, "", nil
	}

	expanded, err := expandPath(path)
	if err != nil {
		return nil, path, err
	}
	path = filepath.Clean(expanded)

	cfg, err := loadConfigFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return &fileConfig{}, path, nil
		}
		return nil, path, err
	}

	return cfg, path, nil
}

// findConfigPath scans raw arguments for --config before flags are parsed,
// since the file supplies the flag defaults.
func findConfigPath(args []string) (string, bool, error) {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			break
		}
		if arg == "--config" {
			if i+1 >= len(args) {
				return "", true, fmt.Errorf("--config requires a value")
			}
			value := strings.TrimSpace(args[i+1])
			if value == "" {
				return "", true, fmt.Errorf("--config requires a value")
			}
			return value, true, nil
		}
		if strings.HasPrefix(arg, "--config=") {
			value := strings.TrimSpace(strings.TrimPrefix(arg, "--config="))
			if value == "" {
				return "", true, fmt.Errorf("--config requires a value")
			}
			return value, true, nil
		}
	}
	return "", false, nil
}

func defaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "nbp-mcp", "config.yaml"), nil
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	if path == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return home, nil
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}

func loadConfigFile(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if strings.TrimSpace(string(data)) == "" {
		return &fileConfig{}, nil
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	return &cfg, nil
}

func saveConfigFile(path string, cfg *fileConfig) error {
	if cfg == nil {
		cfg = &fileConfig{}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

// defaultFileConfig is what `config init` writes.
func defaultFileConfig() *fileConfig {
	return &fileConfig{
		API: apiConfig{
			URL:              nbp.DefaultBaseURL,
			Timeout:          nbp.DefaultTimeout.String(),
			RangeConcurrency: defaultRangeConcurrency,
		},
		Server: serverConfig{
			Transport: transportStdio,
			Host:      defaultHost,
			Port:      defaultPort,
		},
		Log: logConfig{
			Level:  logger.DefaultLevel,
			Format: logger.DefaultFormat,
			Output: logger.DefaultOutput,
		},
		Usage: usageConfig{
			Table: usage.DefaultTable,
		},
	}
}
