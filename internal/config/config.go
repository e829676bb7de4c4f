package config

import (
	"errors"
	"io/fs"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	APIKey            string  `mapstructure:"api_key"`
	APISecret         string  `mapstructure:"api_secret"`
	BaseURL           string  `mapstructure:"base_url"`
	DataDir           string  `mapstructure:"data_dir"`
	CacheTTLSeconds   int     `mapstructure:"cache_ttl"`
	RefreshGapSeconds int     `mapstructure:"refresh_gap"`
	RetryDelaySeconds int     `mapstructure:"retry_delay"`
	StaleThresholdMin int     `mapstructure:"stale_threshold_min"`
	PositionsTimeout  int     `mapstructure:"positions_timeout"`
	CashTimeout       int     `mapstructure:"cash_timeout"`
	ConcentrationPct  float64 `mapstructure:"concentration_pct"`
	DebugLogging      bool    `mapstructure:"debug_logging"`

	path string
}

const (
	DefaultBaseURL           = "https://live.trading212.com/api/v0"
	DefaultDataDir           = "data"
	DefaultCacheTTL          = 300
	DefaultRefreshGap        = 60
	DefaultRetryDelay        = 60
	DefaultStaleThresholdMin = 10
	DefaultPositionsTimeout  = 12
	DefaultCashTimeout       = 8
	DefaultConcentrationPct  = 25
)

// Load reads the configuration file at path, applying defaults and
// TRACKER_* environment overrides. Credentials may legitimately be empty;
// the broker client fails closed without them.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	defaults := map[string]interface{}{
		"base_url":            DefaultBaseURL,
		"data_dir":            DefaultDataDir,
		"cache_ttl":           DefaultCacheTTL,
		"refresh_gap":         DefaultRefreshGap,
		"retry_delay":         DefaultRetryDelay,
		"stale_threshold_min": DefaultStaleThresholdMin,
		"positions_timeout":   DefaultPositionsTimeout,
		"cash_timeout":        DefaultCashTimeout,
		"concentration_pct":   DefaultConcentrationPct,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine on first run; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.path = path

	loadEnvironmentVariables(v, &cfg)

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if err := validateURL(cfg.BaseURL, "http"); err != nil {
		return errors.New("invalid base URL")
	}
	if cfg.CacheTTLSeconds <= 0 {
		return errors.New("invalid cache_ttl")
	}
	if cfg.RefreshGapSeconds <= 0 {
		return errors.New("invalid refresh_gap")
	}
	if cfg.RetryDelaySeconds <= 0 {
		return errors.New("invalid retry_delay")
	}
	if cfg.StaleThresholdMin <= 0 {
		return errors.New("invalid stale_threshold_min")
	}
	if cfg.PositionsTimeout <= 0 || cfg.CashTimeout <= 0 {
		return errors.New("invalid request timeout")
	}
	if cfg.ConcentrationPct <= 0 {
		return errors.New("invalid concentration_pct")
	}
	return nil
}

func validateURL(rawURL, protocol string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	return nil
}

func loadEnvironmentVariables(v *viper.Viper, cfg *Config) {
	v.AutomaticEnv()
	v.SetEnvPrefix("TRACKER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if key := v.GetString("API_KEY"); key != "" {
		cfg.APIKey = key
	}
	if secret := v.GetString("API_SECRET"); secret != "" {
		cfg.APISecret = secret
	}
}

// HasCredentials reports whether a complete key/secret pair is present.
func (c *Config) HasCredentials() bool {
	return c.APIKey != "" && c.APISecret != ""
}

// SaveCredentials persists an updated key/secret pair back to the config file.
func (c *Config) SaveCredentials(apiKey, apiSecret string) error {
	c.APIKey = apiKey
	c.APISecret = apiSecret

	v := viper.New()
	v.SetConfigFile(c.path)
	v.Set("api_key", c.APIKey)
	v.Set("api_secret", c.APISecret)
	v.Set("base_url", c.BaseURL)
	v.Set("data_dir", c.DataDir)
	v.Set("cache_ttl", c.CacheTTLSeconds)
	v.Set("refresh_gap", c.RefreshGapSeconds)
	v.Set("retry_delay", c.RetryDelaySeconds)
	v.Set("stale_threshold_min", c.StaleThresholdMin)
	v.Set("positions_timeout", c.PositionsTimeout)
	v.Set("cash_timeout", c.CashTimeout)
	v.Set("concentration_pct", c.ConcentrationPct)
	v.Set("debug_logging", c.DebugLogging)
	return v.WriteConfig()
}
