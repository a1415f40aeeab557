package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/jobleads-cli/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Browser    BrowserConfig    `yaml:"browser" mapstructure:"browser"`
	Scrape     ScrapeConfig     `yaml:"scrape" mapstructure:"scrape"`
	Contact    ContactConfig    `yaml:"contact" mapstructure:"contact"`
	Refresh    RefreshConfig    `yaml:"refresh" mapstructure:"refresh"`
	Google     GoogleConfig     `yaml:"google" mapstructure:"google"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Enrich     EnrichConfig     `yaml:"enrich" mapstructure:"enrich"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// BrowserConfig configures the Chrome instance used for scraping.
type BrowserConfig struct {
	Headless           bool   `yaml:"headless" mapstructure:"headless"`
	ExecPath           string `yaml:"exec_path" mapstructure:"exec_path"`
	UserAgent          string `yaml:"user_agent" mapstructure:"user_agent"`
	UserDataDir        string `yaml:"user_data_dir" mapstructure:"user_data_dir"`
	NoSandbox          bool   `yaml:"no_sandbox" mapstructure:"no_sandbox"`
	Stealth            bool   `yaml:"stealth" mapstructure:"stealth"`
	NavTimeoutSecs     int    `yaml:"nav_timeout_secs" mapstructure:"nav_timeout_secs"`
	SelectorTimeoutSec int    `yaml:"selector_timeout_secs" mapstructure:"selector_timeout_secs"`
	IdleWaitMs         int    `yaml:"idle_wait_ms" mapstructure:"idle_wait_ms"`
}

// ScrapeConfig configures scrape runs.
type ScrapeConfig struct {
	SmartStopThreshold   int                     `yaml:"smart_stop_threshold" mapstructure:"smart_stop_threshold"`
	DefaultSources       []string                `yaml:"default_sources" mapstructure:"default_sources"`
	MaxPages             int                     `yaml:"max_pages" mapstructure:"max_pages"`
	NavigationsPerSecond float64                 `yaml:"navigations_per_second" mapstructure:"navigations_per_second"`
	NavMaxAttempts       int                     `yaml:"nav_max_attempts" mapstructure:"nav_max_attempts"`
	NavBackoffMs         int                     `yaml:"nav_backoff_ms" mapstructure:"nav_backoff_ms"`
	Sources              map[string]SourceConfig `yaml:"sources" mapstructure:"sources"`
}

// SourceConfig overrides pacing for one board. Zero values keep the
// board's own profile.
type SourceConfig struct {
	ItemDelayMs int `yaml:"item_delay_ms" mapstructure:"item_delay_ms"`
	PageDelayMs int `yaml:"page_delay_ms" mapstructure:"page_delay_ms"`
	PageCap     int `yaml:"page_cap" mapstructure:"page_cap"`
}

// ContactConfig configures the company-site contact crawler.
type ContactConfig struct {
	// MaxPages caps pages per company site; 0 tries every candidate page.
	MaxPages        int      `yaml:"max_pages" mapstructure:"max_pages"`
	Paths           []string `yaml:"paths" mapstructure:"paths"`
	ExcludePatterns []string `yaml:"exclude_patterns" mapstructure:"exclude_patterns"`
	HTTPRateLimit   float64  `yaml:"http_rate_limit" mapstructure:"http_rate_limit"`
}

// RefreshConfig configures refresh passes.
type RefreshConfig struct {
	CompanyDelayMs int      `yaml:"company_delay_ms" mapstructure:"company_delay_ms"`
	Sources        []string `yaml:"sources" mapstructure:"sources"`
}

// GoogleConfig holds Google Places API settings.
type GoogleConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	SummaryModel string `yaml:"summary_model" mapstructure:"summary_model"`
	MaxTokens    int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// EnrichConfig configures the circuit breakers around outside services.
type EnrichConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ServerConfig configures the control API.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// MonitoringConfig configures scrape health alerts.
type MonitoringConfig struct {
	Enabled                bool    `yaml:"enabled" mapstructure:"enabled"`
	WebhookURL             string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold   float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	ItemErrorRateThreshold float64 `yaml:"item_error_rate_threshold" mapstructure:"item_error_rate_threshold"`
	MinRuns                int     `yaml:"min_runs" mapstructure:"min_runs"`
	LookbackWindowHours    int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs      int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	AlertCooldownMins      int     `yaml:"alert_cooldown_mins" mapstructure:"alert_cooldown_mins"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("JOBLEADS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "jobleads.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.stealth", true)
	v.SetDefault("browser.nav_timeout_secs", 30)
	v.SetDefault("browser.selector_timeout_secs", 10)
	v.SetDefault("browser.idle_wait_ms", 1500)
	v.SetDefault("scrape.smart_stop_threshold", 50)
	v.SetDefault("scrape.default_sources", []string{"mynavi", "doda", "rikunabi"})
	v.SetDefault("scrape.max_pages", 0)
	v.SetDefault("scrape.navigations_per_second", 1.0)
	v.SetDefault("scrape.nav_max_attempts", 3)
	v.SetDefault("scrape.nav_backoff_ms", 2000)
	v.SetDefault("contact.max_pages", 0)
	v.SetDefault("contact.exclude_patterns", []string{"/recruit/*", "/news/*", "/blog/*", "/ir/*"})
	v.SetDefault("contact.http_rate_limit", 2.0)
	v.SetDefault("refresh.company_delay_ms", 3000)
	v.SetDefault("refresh.sources", []string{"mynavi", "doda", "rikunabi"})
	v.SetDefault("google.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("google.rate_limit", 5.0)
	v.SetDefault("anthropic.summary_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 512)
	v.SetDefault("enrich.failure_threshold", 5)
	v.SetDefault("enrich.reset_timeout_secs", 60)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.item_error_rate_threshold", 0.3)
	v.SetDefault("monitoring.min_runs", 2)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.alert_cooldown_mins", 60)

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

// Validate checks values that would otherwise fail deep inside a run.
// mode names the command about to run ("scrape", "refresh", "enrich",
// "serve" or "monitor") and adds its own requirements.
func (c *Config) Validate(mode string) error {
	var problems []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}

	switch mode {
	case "scrape", "serve":
		if c.Scrape.SmartStopThreshold <= 0 {
			problems = append(problems, "scrape.smart_stop_threshold must be > 0")
		}
		problems = append(problems, unknownSources("scrape.default_sources", c.Scrape.DefaultSources)...)
		for id := range c.Scrape.Sources {
			if !knownSource(id) {
				problems = append(problems, fmt.Sprintf("scrape.sources: unknown source %q", id))
			}
		}
		if mode == "serve" && c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if mode == "serve" && c.Monitoring.Enabled {
			problems = append(problems, c.monitoringProblems()...)
		}
	case "refresh":
		if len(c.Refresh.Sources) == 0 {
			problems = append(problems, "refresh.sources must name at least one board")
		}
		problems = append(problems, unknownSources("refresh.sources", c.Refresh.Sources)...)
	case "enrich":
		if c.Google.Key == "" && c.Anthropic.Key == "" {
			problems = append(problems, "google.key or anthropic.key is required")
		}
	case "monitor":
		problems = append(problems, c.monitoringProblems()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) monitoringProblems() []string {
	var problems []string
	if t := c.Monitoring.FailureRateThreshold; t < 0 || t > 1 {
		problems = append(problems, "monitoring.failure_rate_threshold must be between 0 and 1")
	}
	if c.Monitoring.LookbackWindowHours <= 0 {
		problems = append(problems, "monitoring.lookback_window_hours must be > 0")
	}
	return problems
}

func unknownSources(key string, ids []string) []string {
	var problems []string
	for _, id := range ids {
		if !knownSource(id) {
			problems = append(problems, fmt.Sprintf("%s: unknown source %q", key, id))
		}
	}
	return problems
}

func knownSource(id string) bool {
	switch model.Source(id) {
	case model.SourceMynavi, model.SourceDoda, model.SourceRikunabi, model.SourceEnJapan:
		return true
	}
	return false
}

// Sources converts ids to sources.
func Sources(ids []string) []model.Source {
	out := make([]model.Source, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, model.Source(id))
		}
	}
	return out
}

// NavTimeout returns the page-load timeout.
func (b BrowserConfig) NavTimeout() time.Duration {
	return time.Duration(b.NavTimeoutSecs) * time.Second
}

// CompanyDelay returns the pause between refreshed companies.
func (r RefreshConfig) CompanyDelay() time.Duration {
	return time.Duration(r.CompanyDelayMs) * time.Millisecond
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
