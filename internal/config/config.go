package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Provider  ProviderConfig  `yaml:"provider" mapstructure:"provider"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Chunk     ChunkConfig     `yaml:"chunk" mapstructure:"chunk"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ProviderConfig selects the active LLM provider.
type ProviderConfig struct {
	Name string `yaml:"name" mapstructure:"name"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// OpenAIConfig holds OpenAI API settings.
type OpenAIConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// StoreConfig configures the run-record database backend. Driver "off"
// disables persistence.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ExtractConfig tunes the extraction engine.
type ExtractConfig struct {
	MaxFields           int      `yaml:"max_fields" mapstructure:"max_fields"`
	MaxItems            int      `yaml:"max_items" mapstructure:"max_items"`
	MaxRetries          int      `yaml:"max_retries" mapstructure:"max_retries"`
	ConcurrencyLimit    int      `yaml:"concurrency_limit" mapstructure:"concurrency_limit"`
	WindowTimeoutSecs   int      `yaml:"window_timeout_secs" mapstructure:"window_timeout_secs"`
	TotalTimeoutSecs    int      `yaml:"total_timeout_secs" mapstructure:"total_timeout_secs"`
	RetryBackoffMs      int      `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	ContextWindowMargin int      `yaml:"context_window_margin" mapstructure:"context_window_margin"`
	InjectionMode       string   `yaml:"injection_mode" mapstructure:"injection_mode"`
	MergedFallbackTypes []string `yaml:"merged_fallback_types" mapstructure:"merged_fallback_types"`
	DebugDir            string   `yaml:"debug_dir" mapstructure:"debug_dir"`
}

// WindowTimeout returns the per-window timeout as a duration.
func (c ExtractConfig) WindowTimeout() time.Duration {
	return time.Duration(c.WindowTimeoutSecs) * time.Second
}

// TotalTimeout returns the whole-run timeout as a duration.
func (c ExtractConfig) TotalTimeout() time.Duration {
	return time.Duration(c.TotalTimeoutSecs) * time.Second
}

// RetryBackoff returns the base retry backoff as a duration.
func (c ExtractConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffMs) * time.Millisecond
}

// ChunkConfig selects the chunking strategy for stage-1 discovery.
type ChunkConfig struct {
	Strategy string `yaml:"strategy" mapstructure:"strategy"`
	Size     int    `yaml:"size" mapstructure:"size"`
	Overlap  int    `yaml:"overlap" mapstructure:"overlap"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CLINEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("provider.name", "anthropic")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("openai.model", "gpt-5")
	v.SetDefault("store.driver", "off")
	v.SetDefault("extract.max_fields", 10)
	v.SetDefault("extract.max_items", 5)
	v.SetDefault("extract.max_retries", 2)
	v.SetDefault("extract.concurrency_limit", 4)
	v.SetDefault("extract.window_timeout_secs", 45)
	v.SetDefault("extract.total_timeout_secs", 300)
	v.SetDefault("extract.retry_backoff_ms", 500)
	v.SetDefault("extract.context_window_margin", 200)
	v.SetDefault("extract.injection_mode", "guide")
	v.SetDefault("extract.merged_fallback_types", []string{"MedicationStatement", "DiagnosticReport"})
	v.SetDefault("chunk.strategy", "character")
	v.SetDefault("chunk.size", 2000)
	v.SetDefault("chunk.overlap", 200)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
