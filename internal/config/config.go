package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/shintothemars/tft-bbri/internal/logging"
)

// Config materialises application configuration.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Logging  logging.Config `mapstructure:"logging"`
	Market   MarketConfig   `mapstructure:"market"`
	Model    ModelConfig    `mapstructure:"model"`
	Forecast ForecastConfig `mapstructure:"forecast"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Chart    ChartConfig    `mapstructure:"chart"`
	Database DatabaseConfig `mapstructure:"database"`
	Watch    WatchConfig    `mapstructure:"watch"`
	Alerting AlertingConfig `mapstructure:"alerting"`
}

// AppConfig general metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// MarketConfig selects and tunes the bar provider.
type MarketConfig struct {
	Provider     string          `mapstructure:"provider"`
	Symbol       string          `mapstructure:"symbol"`
	LookbackDays int             `mapstructure:"lookback_days"`
	BufferDays   int             `mapstructure:"buffer_days"`
	Attempts     int             `mapstructure:"attempts"`
	RetryDelay   time.Duration   `mapstructure:"retry_delay"`
	Yahoo        YahooConfig     `mapstructure:"yahoo"`
	Breaker      BreakerConfig   `mapstructure:"breaker"`
	Synthetic    SyntheticConfig `mapstructure:"synthetic"`
}

// YahooConfig captures Yahoo Finance chart API connectivity.
type YahooConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// BreakerConfig tunes the provider circuit breaker.
type BreakerConfig struct {
	MaxRequests uint32        `mapstructure:"max_requests"`
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MinRequests uint32        `mapstructure:"min_requests"`
	FailureRate float64       `mapstructure:"failure_rate"`
}

// SyntheticConfig parameterises the fallback random walk.
type SyntheticConfig struct {
	Seed       int64   `mapstructure:"seed"`
	BasePrice  float64 `mapstructure:"base_price"`
	Drift      float64 `mapstructure:"drift"`
	Volatility float64 `mapstructure:"volatility"`
	MinPrice   float64 `mapstructure:"min_price"`
	MaxPrice   float64 `mapstructure:"max_price"`
}

// ModelConfig locates the weights artifact and fixes the dataset shape.
type ModelConfig struct {
	WeightsPath         string    `mapstructure:"weights_path"`
	Quantiles           []float64 `mapstructure:"quantiles"`
	MinEncoderLength    int       `mapstructure:"min_encoder_length"`
	MaxEncoderLength    int       `mapstructure:"max_encoder_length"`
	MaxPredictionLength int       `mapstructure:"max_prediction_length"`
	HiddenSize          int       `mapstructure:"hidden_size"`
	Seed                int64     `mapstructure:"seed"`
}

// ForecastConfig shapes the prediction result.
type ForecastConfig struct {
	LowerLevel   float64 `mapstructure:"lower_level"`
	MedianLevel  float64 `mapstructure:"median_level"`
	UpperLevel   float64 `mapstructure:"upper_level"`
	HistoryRows  int     `mapstructure:"history_rows"`
	FallbackBand float64 `mapstructure:"fallback_band"`
}

// HTTPConfig governs the API server.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	CORSOrigins     string        `mapstructure:"cors_origins"`
	Chart           bool          `mapstructure:"chart"`
}

// ChartConfig sets rendered chart dimensions and labels.
type ChartConfig struct {
	Width    int    `mapstructure:"width"`
	Height   int    `mapstructure:"height"`
	Title    string `mapstructure:"title"`
	Currency string `mapstructure:"currency"`
}

// DatabaseConfig encapsulates PostgreSQL connectivity.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// WatchConfig governs the scheduled forecast job.
type WatchConfig struct {
	Cron            string  `mapstructure:"cron"`
	Timezone        string  `mapstructure:"timezone"`
	HorizonDays     int     `mapstructure:"horizon_days"`
	ThresholdPct    float64 `mapstructure:"threshold_pct"`
	NotifyDegraded  bool    `mapstructure:"notify_degraded"`
	RunOnStart      bool    `mapstructure:"run_on_start"`
	AdvisoryLockKey int64   `mapstructure:"advisory_lock_key"`
}

// AlertingConfig defines notification routing.
type AlertingConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Telegram TelegramConfig `mapstructure:"telegram"`
}

// TelegramConfig 描述 Telegram 告警参数。
type TelegramConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	BotToken string        `mapstructure:"bot_token"`
	ChatID   string        `mapstructure:"chat_id"`
	APIBase  string        `mapstructure:"api_base"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Load builds configuration from file, environment, and defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TFTBBRI")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := readConfig(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readConfig(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "tftbbri")
	v.SetDefault("app.environment", "development")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("market.provider", "yahoo")
	v.SetDefault("market.symbol", "BBRI.JK")
	v.SetDefault("market.lookback_days", 180)
	v.SetDefault("market.buffer_days", 60)
	v.SetDefault("market.attempts", 3)
	v.SetDefault("market.retry_delay", "2s")
	v.SetDefault("market.yahoo.base_url", "https://query1.finance.yahoo.com")
	v.SetDefault("market.yahoo.timeout", "15s")
	v.SetDefault("market.yahoo.user_agent", "Mozilla/5.0 (compatible; tftbbri/1.0)")
	v.SetDefault("market.breaker.max_requests", 1)
	v.SetDefault("market.breaker.interval", "1m")
	v.SetDefault("market.breaker.timeout", "30s")
	v.SetDefault("market.breaker.min_requests", 3)
	v.SetDefault("market.breaker.failure_rate", 0.6)
	v.SetDefault("market.synthetic.seed", 42)
	v.SetDefault("market.synthetic.base_price", 5000.0)
	v.SetDefault("market.synthetic.drift", 0.0002)
	v.SetDefault("market.synthetic.volatility", 0.015)
	v.SetDefault("market.synthetic.min_price", 4200.0)
	v.SetDefault("market.synthetic.max_price", 5800.0)

	v.SetDefault("model.weights_path", "models/tft_bbri.json")
	v.SetDefault("model.quantiles", []float64{0.02, 0.1, 0.25, 0.5, 0.75, 0.9, 0.98})
	v.SetDefault("model.min_encoder_length", 30)
	v.SetDefault("model.max_encoder_length", 60)
	v.SetDefault("model.max_prediction_length", 30)
	v.SetDefault("model.hidden_size", 32)
	v.SetDefault("model.seed", 42)

	v.SetDefault("forecast.lower_level", 0.1)
	v.SetDefault("forecast.median_level", 0.5)
	v.SetDefault("forecast.upper_level", 0.9)
	v.SetDefault("forecast.history_rows", 90)
	v.SetDefault("forecast.fallback_band", 0.10)

	v.SetDefault("http.addr", ":8000")
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "120s")
	v.SetDefault("http.idle_timeout", "60s")
	v.SetDefault("http.shutdown_timeout", "10s")
	v.SetDefault("http.request_timeout", "90s")
	v.SetDefault("http.cors_origins", "*")
	v.SetDefault("http.chart", true)

	v.SetDefault("chart.width", 1000)
	v.SetDefault("chart.height", 500)
	v.SetDefault("chart.title", "Prediksi Harga Saham BBRI")
	v.SetDefault("chart.currency", "Rp")

	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.connect_timeout", "5s")

	v.SetDefault("watch.cron", "30 16 * * 1-5")
	v.SetDefault("watch.timezone", "Asia/Jakarta")
	v.SetDefault("watch.horizon_days", 7)
	v.SetDefault("watch.threshold_pct", 3.0)
	v.SetDefault("watch.notify_degraded", true)
	v.SetDefault("watch.run_on_start", false)
	v.SetDefault("watch.advisory_lock_key", int64(0x42425249))

	v.SetDefault("alerting.enabled", false)
	v.SetDefault("alerting.telegram.enabled", false)
	v.SetDefault("alerting.telegram.api_base", "https://api.telegram.org")
	v.SetDefault("alerting.telegram.timeout", "10s")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// Validate performs basic sanity checks on the configuration values.
func (c *Config) Validate() error {
	switch c.Market.Provider {
	case "yahoo", "postgres":
	default:
		return fmt.Errorf("market.provider must be yahoo or postgres, got %q", c.Market.Provider)
	}
	if c.Market.Symbol == "" {
		return fmt.Errorf("market.symbol is required")
	}
	if c.Market.LookbackDays <= 0 {
		return fmt.Errorf("market.lookback_days must be greater than zero")
	}
	if c.Market.BufferDays < 0 {
		return fmt.Errorf("market.buffer_days cannot be negative")
	}
	if c.Market.Attempts < 1 {
		return fmt.Errorf("market.attempts must be at least 1")
	}
	if c.Market.Synthetic.MinPrice <= 0 || c.Market.Synthetic.MaxPrice <= c.Market.Synthetic.MinPrice {
		return fmt.Errorf("market.synthetic price bounds must satisfy 0 < min_price < max_price")
	}

	if c.Model.MinEncoderLength <= 0 || c.Model.MaxEncoderLength < c.Model.MinEncoderLength {
		return fmt.Errorf("model encoder length bounds must satisfy 0 < min <= max")
	}
	if c.Model.MaxPredictionLength <= 0 {
		return fmt.Errorf("model.max_prediction_length must be greater than zero")
	}
	if err := validateQuantiles(c.Model.Quantiles); err != nil {
		return err
	}
	for name, level := range map[string]float64{
		"lower_level":  c.Forecast.LowerLevel,
		"median_level": c.Forecast.MedianLevel,
		"upper_level":  c.Forecast.UpperLevel,
	} {
		if !containsLevel(c.Model.Quantiles, level) {
			return fmt.Errorf("forecast.%s %v is not one of model.quantiles", name, level)
		}
	}
	if !(c.Forecast.LowerLevel < c.Forecast.MedianLevel && c.Forecast.MedianLevel < c.Forecast.UpperLevel) {
		return fmt.Errorf("forecast levels must satisfy lower < median < upper")
	}
	if c.Forecast.HistoryRows <= 0 {
		return fmt.Errorf("forecast.history_rows must be greater than zero")
	}
	if c.Forecast.FallbackBand <= 0 || c.Forecast.FallbackBand >= 1 {
		return fmt.Errorf("forecast.fallback_band must be within (0, 1)")
	}

	if c.Watch.HorizonDays < 1 || c.Watch.HorizonDays > c.Model.MaxPredictionLength {
		return fmt.Errorf("watch.horizon_days must be within [1, %d]", c.Model.MaxPredictionLength)
	}
	if c.Watch.ThresholdPct < 0 {
		return fmt.Errorf("watch.threshold_pct cannot be negative")
	}

	if c.Alerting.Telegram.Enabled {
		if c.Alerting.Telegram.BotToken == "" {
			return fmt.Errorf("alerting.telegram.bot_token 必须配置")
		}
		if c.Alerting.Telegram.ChatID == "" {
			return fmt.Errorf("alerting.telegram.chat_id 必须配置")
		}
	}
	return nil
}

func validateQuantiles(levels []float64) error {
	if len(levels) == 0 {
		return fmt.Errorf("model.quantiles must not be empty")
	}
	if !sort.Float64sAreSorted(levels) {
		return fmt.Errorf("model.quantiles must be sorted ascending")
	}
	for i, q := range levels {
		if q <= 0 || q >= 1 {
			return fmt.Errorf("model.quantiles[%d] = %v must be within (0, 1)", i, q)
		}
		if i > 0 && levels[i-1] == q {
			return fmt.Errorf("model.quantiles contains duplicate level %v", q)
		}
	}
	return nil
}

func containsLevel(levels []float64, level float64) bool {
	for _, q := range levels {
		if q == level {
			return true
		}
	}
	return false
}

// Location resolves the watch timezone, falling back to WIB when the zone
// database is unavailable.
func (w WatchConfig) Location() *time.Location {
	if w.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(w.Timezone)
	if err != nil {
		return time.FixedZone("WIB", 7*3600)
	}
	return loc
}
