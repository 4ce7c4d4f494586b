package config

import (
	"slices"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Modes accepted by Validate.
const (
	ModeAnalyze  = "analyze"
	ModeServe    = "serve"
	ModeSessions = "sessions"
)

// Providers accepted in llm.provider.
const (
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// Config holds the full application configuration.
type Config struct {
	YouTube   YouTubeConfig   `yaml:"youtube" mapstructure:"youtube"`
	LLM       LLMConfig       `yaml:"llm" mapstructure:"llm"`
	Gate      GateConfig      `yaml:"gate" mapstructure:"gate"`
	Search    SearchConfig    `yaml:"search" mapstructure:"search"`
	Collector CollectorConfig `yaml:"collector" mapstructure:"collector"`
	Sampler   SamplerConfig   `yaml:"sampler" mapstructure:"sampler"`
	Session   SessionConfig   `yaml:"session" mapstructure:"session"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Catalog   CatalogConfig   `yaml:"catalog" mapstructure:"catalog"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// YouTubeConfig holds YouTube Data API credentials.
type YouTubeConfig struct {
	Keys     []string `yaml:"keys" mapstructure:"keys"`
	Endpoint string   `yaml:"endpoint" mapstructure:"endpoint"`
}

// LLMConfig selects and tunes the language model provider.
type LLMConfig struct {
	Provider         string        `yaml:"provider" mapstructure:"provider"`
	Keys             []string      `yaml:"keys" mapstructure:"keys"`
	Model            string        `yaml:"model" mapstructure:"model"`
	Temperature      float32       `yaml:"temperature" mapstructure:"temperature"`
	MaxOutputTokens  int32         `yaml:"max_output_tokens" mapstructure:"max_output_tokens"`
	Timeout          time.Duration `yaml:"timeout" mapstructure:"timeout"`
	CacheTTL         time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl"`
	BaseURL          string        `yaml:"base_url" mapstructure:"base_url"`
	SystemPromptFile string        `yaml:"system_prompt_file" mapstructure:"system_prompt_file"`
}

// GateConfig bounds concurrent LLM calls.
type GateConfig struct {
	Capacity int           `yaml:"capacity" mapstructure:"capacity"`
	Wait     time.Duration `yaml:"wait" mapstructure:"wait"`
}

// SearchConfig configures candidate discovery.
type SearchConfig struct {
	MaxResults int    `yaml:"max_results" mapstructure:"max_results"`
	Exclude    string `yaml:"exclude" mapstructure:"exclude"`
}

// CollectorConfig bounds comment collection.
type CollectorConfig struct {
	Workers       int           `yaml:"workers" mapstructure:"workers"`
	MaxPerVideo   int           `yaml:"max_per_video" mapstructure:"max_per_video"`
	MaxTotal      int           `yaml:"max_total" mapstructure:"max_total"`
	PageInterval  time.Duration `yaml:"page_interval" mapstructure:"page_interval"`
	RetryAttempts int           `yaml:"retry_attempts" mapstructure:"retry_attempts"`
}

// SamplerConfig bounds the LLM sample.
type SamplerConfig struct {
	MaxCharsPerComment int    `yaml:"max_chars_per_comment" mapstructure:"max_chars_per_comment"`
	MaxTotalChars      int    `yaml:"max_total_chars" mapstructure:"max_total_chars"`
	TopN               int    `yaml:"top_n" mapstructure:"top_n"`
	RandomN            int    `yaml:"random_n" mapstructure:"random_n"`
	DedupKey           string `yaml:"dedup_key" mapstructure:"dedup_key"`
	Seed               uint64 `yaml:"seed" mapstructure:"seed"`
}

// SessionConfig configures runtime sessions.
type SessionConfig struct {
	WorkDir      string `yaml:"work_dir" mapstructure:"work_dir"`
	Timezone     string `yaml:"timezone" mapstructure:"timezone"`
	HistoryTurns int    `yaml:"history_turns" mapstructure:"history_turns"`
}

// StoreConfig configures the saved-session backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// CatalogConfig points at the first-party video catalog.
type CatalogConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port           int           `yaml:"port" mapstructure:"port"`
	RatePerMinute  int           `yaml:"rate_per_minute" mapstructure:"rate_per_minute"`
	AllowedOrigins []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	RequestTimeout time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
	SessionIdle    time.Duration `yaml:"session_idle" mapstructure:"session_idle"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from ./config.yaml, if present, and environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path and environment. An empty path
// falls back to an optional ./config.yaml; a named file must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
	}
	v.SetConfigType("yaml")

	// Environment
	v.SetEnvPrefix("COMMENTSCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("youtube.keys", []string{})
	v.SetDefault("youtube.endpoint", "")
	v.SetDefault("llm.provider", ProviderGemini)
	v.SetDefault("llm.keys", []string{})
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_output_tokens", 8192)
	v.SetDefault("llm.timeout", "120s")
	v.SetDefault("llm.cache_ttl", "20m")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.system_prompt_file", "")
	v.SetDefault("gate.capacity", 3)
	v.SetDefault("gate.wait", "120s")
	v.SetDefault("search.max_results", 60)
	v.SetDefault("search.exclude", `(?i)\bOST\b`)
	v.SetDefault("collector.workers", 8)
	v.SetDefault("collector.max_per_video", 4000)
	v.SetDefault("collector.max_total", 120000)
	v.SetDefault("collector.page_interval", "200ms")
	v.SetDefault("collector.retry_attempts", 3)
	v.SetDefault("sampler.max_chars_per_comment", 280)
	v.SetDefault("sampler.max_total_chars", 420000)
	v.SetDefault("sampler.top_n", 1000)
	v.SetDefault("sampler.random_n", 1000)
	v.SetDefault("sampler.dedup_key", "text")
	v.SetDefault("sampler.seed", 42)
	v.SetDefault("session.work_dir", "./data/sessions")
	v.SetDefault("session.timezone", "Asia/Seoul")
	v.SetDefault("session.history_turns", 10)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "./data/commentscope.db")
	v.SetDefault("store.database_url", "")
	v.SetDefault("catalog.dir", "./data/catalog")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_per_minute", 30)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.request_timeout", "15m")
	v.SetDefault("server.session_idle", "2h")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
	cfg.YouTube.Keys = splitKeys(cfg.YouTube.Keys)
	cfg.LLM.Keys = splitKeys(cfg.LLM.Keys)
	cfg.LLM.Provider = strings.ToLower(strings.TrimSpace(cfg.LLM.Provider))

	return &cfg, nil
}

// splitKeys flattens comma-separated entries and drops blanks.
func splitKeys(raw []string) []string {
	var out []string
	for _, r := range raw {
		for k := range strings.SplitSeq(r, ",") {
			if k = strings.TrimSpace(k); k != "" {
				out = append(out, k)
			}
		}
	}
	return out
}

// Validate checks that the settings needed by mode are present. All
// problems are reported together.
func (c *Config) Validate(mode string) error {
	var errs []string
	switch mode {
	case ModeAnalyze, ModeServe:
		if len(c.YouTube.Keys) == 0 {
			errs = append(errs, "youtube.keys is required")
		}
		if len(c.LLM.Keys) == 0 {
			errs = append(errs, "llm.keys is required")
		}
		if !slices.Contains([]string{ProviderGemini, ProviderAnthropic}, c.LLM.Provider) {
			errs = append(errs, "llm.provider must be gemini or anthropic")
		}
		if c.LLM.Model == "" {
			errs = append(errs, "llm.model is required")
		}
		if c.Gate.Capacity < 1 {
			errs = append(errs, "gate.capacity must be > 0")
		}
		if c.Collector.Workers < 1 || c.Collector.Workers > 32 {
			errs = append(errs, "collector.workers must be between 1 and 32")
		}
		if mode == ModeServe && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case ModeSessions:
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			errs = append(errs, "store.path is required for sqlite")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for postgres")
		}
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
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
