package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Portal      PortalConfig      `yaml:"portal" mapstructure:"portal"`
	Credentials CredentialsConfig `yaml:"credentials" mapstructure:"credentials"`
	Retry       RetryConfig       `yaml:"retry" mapstructure:"retry"`
	Pacing      PacingConfig      `yaml:"pacing" mapstructure:"pacing"`
	Store       StoreConfig       `yaml:"store" mapstructure:"store"`
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
}

// PortalConfig selects the regional portal and its transport behavior.
type PortalConfig struct {
	// Region keys into Endpoints; flags may override it per run.
	Region string `yaml:"region" mapstructure:"region"`
	// Endpoints maps regional identity to base URL.
	Endpoints map[string]string `yaml:"endpoints" mapstructure:"endpoints"`
	// InsecureTLS skips certificate verification for the grid endpoints.
	// The portal serves them from custom ports with mismatched certs.
	InsecureTLS bool `yaml:"insecure_tls" mapstructure:"insecure_tls"`
	// RateLimitRPS / RateLimitBurst pace the fast-path requests.
	RateLimitRPS   float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst" mapstructure:"rate_limit_burst"`
}

// BaseURL resolves the configured region to its endpoint.
func (p PortalConfig) BaseURL() (string, error) {
	u, ok := p.Endpoints[strings.ToLower(p.Region)]
	if !ok || u == "" {
		return "", eris.Errorf("config: no endpoint for region %q", p.Region)
	}
	return u, nil
}

// LoginURL is the region's login page.
func (p PortalConfig) LoginURL() (string, error) {
	base, err := p.BaseURL()
	if err != nil {
		return "", err
	}
	return strings.TrimRight(base, "/") + "/login", nil
}

// CredentialsConfig holds the portal logins.
type CredentialsConfig struct {
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
	// ByProvider overrides credentials for specific provider contexts.
	ByProvider map[string]UserPass `yaml:"by_provider" mapstructure:"by_provider"`
}

// UserPass is one username/password pair.
type UserPass struct {
	Username string `yaml:"username" mapstructure:"username"`
	Password string `yaml:"password" mapstructure:"password"`
}

// RetryConfig tunes the transient-failure retry policy.
type RetryConfig struct {
	MaxAttempts       int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS  int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffSecs    int     `yaml:"max_backoff_secs" mapstructure:"max_backoff_secs"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier" mapstructure:"backoff_multiplier"`
}

// PacingConfig tunes the explicit waits of the page-driven engines.
type PacingConfig struct {
	TableWaitSecs      int `yaml:"table_wait_secs" mapstructure:"table_wait_secs"`
	PollIntervalMS     int `yaml:"poll_interval_ms" mapstructure:"poll_interval_ms"`
	ScrollSettleMS     int `yaml:"scroll_settle_ms" mapstructure:"scroll_settle_ms"`
	RequestTimeoutSecs int `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
}

// StoreConfig configures the run-history database.
type StoreConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
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
	v.SetEnvPrefix("EBILLING")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("portal.region", "sgprc")
	v.SetDefault("portal.endpoints", map[string]string{
		"sgprc": "https://ebilling.sgprc.org:8380",
		"elarc": "https://ebilling.elarc.org:8380",
	})
	v.SetDefault("portal.insecure_tls", false)
	v.SetDefault("portal.rate_limit_rps", 4.0)
	v.SetDefault("portal.rate_limit_burst", 2)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_secs", 30)
	v.SetDefault("retry.backoff_multiplier", 2.0)
	v.SetDefault("pacing.table_wait_secs", 10)
	v.SetDefault("pacing.poll_interval_ms", 500)
	v.SetDefault("pacing.scroll_settle_ms", 1000)
	v.SetDefault("pacing.request_timeout_secs", 30)
	v.SetDefault("store.path", "ebilling-runs.db")
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
