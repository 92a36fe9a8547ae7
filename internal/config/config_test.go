package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("defaults should load: %v", err)
	}
	if cfg.Market.Symbol != "BBRI.JK" || cfg.Market.Provider != "yahoo" {
		t.Fatalf("unexpected market defaults %+v", cfg.Market)
	}
	if cfg.Market.Attempts != 3 || cfg.Market.LookbackDays != 180 || cfg.Market.BufferDays != 60 {
		t.Fatalf("unexpected fetch defaults %+v", cfg.Market)
	}
	if len(cfg.Model.Quantiles) != 7 || cfg.Model.Quantiles[3] != 0.5 {
		t.Fatalf("unexpected quantiles %v", cfg.Model.Quantiles)
	}
	if cfg.HTTP.RequestTimeout != 90*time.Second {
		t.Fatalf("unexpected request timeout %s", cfg.HTTP.RequestTimeout)
	}
	if cfg.Forecast.HistoryRows != 90 {
		t.Fatalf("unexpected history rows %d", cfg.Forecast.HistoryRows)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := strings.Join([]string{
		"market:",
		"  provider: postgres",
		"  retry_delay: 250ms",
		"watch:",
		"  horizon_days: 14",
	}, "\n")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TFTBBRI_MARKET_SYMBOL", "BBCA.JK")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Market.Provider != "postgres" {
		t.Fatalf("file value ignored: %q", cfg.Market.Provider)
	}
	if cfg.Market.RetryDelay != 250*time.Millisecond {
		t.Fatalf("duration not decoded: %s", cfg.Market.RetryDelay)
	}
	if cfg.Market.Symbol != "BBCA.JK" {
		t.Fatalf("env override ignored: %q", cfg.Market.Symbol)
	}
	if cfg.Watch.HorizonDays != 14 {
		t.Fatalf("unexpected horizon %d", cfg.Watch.HorizonDays)
	}
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())
	base, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"provider", func(c *Config) { c.Market.Provider = "csv" }, "market.provider"},
		{"attempts", func(c *Config) { c.Market.Attempts = 0 }, "market.attempts"},
		{"unsorted quantiles", func(c *Config) { c.Model.Quantiles = []float64{0.5, 0.1, 0.9} }, "sorted"},
		{"level missing", func(c *Config) { c.Forecast.UpperLevel = 0.95 }, "upper_level"},
		{"band", func(c *Config) { c.Forecast.FallbackBand = 1 }, "fallback_band"},
		{"encoder", func(c *Config) { c.Model.MaxEncoderLength = 10 }, "encoder"},
		{"horizon", func(c *Config) { c.Watch.HorizonDays = 31 }, "watch.horizon_days"},
		{"telegram", func(c *Config) { c.Alerting.Telegram.Enabled = true }, "bot_token"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := *base
			cfg.Model.Quantiles = append([]float64(nil), base.Model.Quantiles...)
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}
