package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/newthinker/prism/internal/core"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Backtest      BacktestConfig      `mapstructure:"backtest"`
	Sandbox       SandboxConfig       `mapstructure:"sandbox"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Collectors    CollectorsConfig    `mapstructure:"collectors"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

type ServerConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Mode        string `mapstructure:"mode"`
	APIKey      string `mapstructure:"api_key"`
	JobTTLHours int    `mapstructure:"job_ttl_hours"`
	MaxJobs     int    `mapstructure:"max_jobs"`
}

// BacktestConfig holds run defaults applied when a request leaves them unset.
type BacktestConfig struct {
	InitialCapital float64 `mapstructure:"initial_capital"`
	Commission     float64 `mapstructure:"commission"`
	MinBars        int     `mapstructure:"min_bars"`
	Parallelism    int     `mapstructure:"parallelism"`
}

// SandboxConfig bounds strategy execution.
type SandboxConfig struct {
	Timeout   time.Duration `mapstructure:"timeout"`
	MaxAllocs int64         `mapstructure:"max_allocs"`
}

// StorageConfig selects the backend for custom strategy documents.
type StorageConfig struct {
	Type string   `mapstructure:"type"` // "localfs", "s3" or "sqlite"
	Path string   `mapstructure:"path"` // For localfs
	DSN  string   `mapstructure:"dsn"`  // For sqlite
	S3   S3Config `mapstructure:"s3"`   // For S3
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Prefix    string `mapstructure:"prefix"`
}

// CollectorsConfig lists market data sources. Fallback order is parquet,
// eastmoney, binance, then yahoo.
type CollectorsConfig struct {
	Yahoo     SourceConfig  `mapstructure:"yahoo"`
	Eastmoney SourceConfig  `mapstructure:"eastmoney"`
	Binance   SourceConfig  `mapstructure:"binance"`
	Parquet   ParquetConfig `mapstructure:"parquet"`
}

// SourceConfig configures an HTTP market data source.
type SourceConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	BaseURL           string        `mapstructure:"base_url"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

type ParquetConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LLMConfig struct {
	Provider string        `mapstructure:"provider"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Claude   ClaudeConfig  `mapstructure:"claude"`
	OpenAI   OpenAIConfig  `mapstructure:"openai"`
	Ollama   OllamaConfig  `mapstructure:"ollama"`
}

type ClaudeConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type OpenAIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type OllamaConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Model    string `mapstructure:"model"`
}

// NotificationsConfig lists channels told about finished backtest jobs.
// A channel with no url or bot token is off.
type NotificationsConfig struct {
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type WebhookConfig struct {
	URL     string            `mapstructure:"url"`
	Headers map[string]string `mapstructure:"headers"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token"`
	ChatID   string `mapstructure:"chat_id"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Load reads configuration from file on top of Defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Support environment variable overrides
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	// Expand environment variables in string values
	for _, key := range v.AllKeys() {
		val := v.GetString(key)
		if strings.HasPrefix(val, "${") && strings.HasSuffix(val, "}") {
			envKey := strings.TrimSuffix(strings.TrimPrefix(val, "${"), "}")
			v.Set(key, os.Getenv(envKey))
		}
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return cfg, nil
}

// Defaults returns a config with sensible defaults
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			Mode:        "release",
			JobTTLHours: 1,
			MaxJobs:     100,
		},
		Backtest: BacktestConfig{
			InitialCapital: 100000,
			Commission:     0.001,
			MinBars:        2,
			Parallelism:    4,
		},
		Sandbox: SandboxConfig{
			Timeout:   5 * time.Second,
			MaxAllocs: 10_000_000,
		},
		Storage: StorageConfig{
			Type: "localfs",
			Path: "./data/strategies",
		},
		Collectors: CollectorsConfig{
			Yahoo: SourceConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
				Timeout:           30 * time.Second,
			},
			Eastmoney: SourceConfig{
				RequestsPerMinute: 120,
				Timeout:           10 * time.Second,
			},
			Binance: SourceConfig{
				RequestsPerMinute: 600,
				Timeout:           10 * time.Second,
			},
		},
		LLM: LLMConfig{
			Timeout: 2 * time.Minute,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

func invalid(format string, args ...any) error {
	return core.WrapError(core.ErrConfigInvalid, fmt.Errorf(format, args...))
}

func missing(format string, args ...any) error {
	return core.WrapError(core.ErrConfigMissing, fmt.Errorf(format, args...))
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return invalid("port must be between 1 and 65535, got %d", c.Server.Port)
	}

	b := c.Backtest
	if b.InitialCapital <= 0 {
		return invalid("backtest.initial_capital must be positive, got %g", b.InitialCapital)
	}
	if b.Commission < 0 || b.Commission >= 1 {
		return invalid("backtest.commission must be in [0, 1), got %g", b.Commission)
	}
	if b.MinBars < 1 {
		return invalid("backtest.min_bars must be at least 1, got %d", b.MinBars)
	}
	if b.Parallelism < 1 {
		return invalid("backtest.parallelism must be at least 1, got %d", b.Parallelism)
	}
	if c.Sandbox.Timeout <= 0 {
		return invalid("sandbox.timeout must be positive, got %s", c.Sandbox.Timeout)
	}

	switch c.Storage.Type {
	case "localfs":
		if c.Storage.Path == "" {
			return missing("storage.path required for localfs storage")
		}
	case "sqlite":
		if c.Storage.DSN == "" {
			return missing("storage.dsn required for sqlite storage")
		}
	case "s3":
		if c.Storage.S3.Bucket == "" {
			return missing("storage.s3.bucket required for s3 storage")
		}
	default:
		return invalid("unknown storage type %q", c.Storage.Type)
	}

	if c.Collectors.Parquet.Enabled && c.Collectors.Parquet.Path == "" {
		return missing("collectors.parquet.path required when parquet is enabled")
	}
	for name, src := range map[string]SourceConfig{
		"yahoo":     c.Collectors.Yahoo,
		"eastmoney": c.Collectors.Eastmoney,
		"binance":   c.Collectors.Binance,
	} {
		if src.RequestsPerMinute < 0 {
			return invalid("collectors.%s.requests_per_minute cannot be negative", name)
		}
	}

	// LLM validation - if provider set, check config exists
	switch c.LLM.Provider {
	case "":
	case "claude":
		if c.LLM.Claude.APIKey == "" {
			return missing("claude api_key required when provider is claude")
		}
	case "openai":
		if c.LLM.OpenAI.APIKey == "" {
			return missing("openai api_key required when provider is openai")
		}
	case "ollama":
	default:
		return invalid("unknown llm provider %q", c.LLM.Provider)
	}

	if tg := c.Notifications.Telegram; tg.BotToken != "" && tg.ChatID == "" {
		return missing("notifications.telegram.chat_id required with a bot_token")
	}

	return nil
}
