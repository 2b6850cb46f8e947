package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

const sampleConfig = `
env: dev
log:
  level: debug
  outputs: [console]
gateway:
  symbol: R_100
  pipDigits: 2
  rateLimit: 5
  rateBurst: 5
trade:
  mode: paper
  currency: USD
  payoutRatio: 0.95
  durationTicks: 1
  initialBalance: 1000
engine:
  windowCapacity: 500
  strategy: differ
  volatilitySpan: 20
risk:
  dailyLossLimitPct: 0.08
  minConfidenceDiffer: 70
  minConfidenceMatch: 75
  maxOpenWagers: 1
  breakerThreshold: 3
  breakerCooldownMinutes: 30
sizing:
  minConfidence: 55
  kellyFactor: 0.5
  minStake: 0.35
  maxStake: 50
journal:
  path: journal.db
  buffer: 256
server:
  addr: ":8080"
`

func TestLoad(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Env != "dev" || cfg.Gateway.Symbol != "R_100" {
		t.Fatalf("unexpected cfg values: %+v", cfg)
	}
	if cfg.Log.Level != "debug" {
		t.Fatalf("log section not applied: %+v", cfg.Log)
	}
	if cfg.Risk.BreakerCooldownMinutes != 30 {
		t.Fatalf("risk section not applied: %+v", cfg.Risk)
	}
	// 未出现的键保持 Default 值
	if cfg.Trade.Currency != "USD" || cfg.Alerts.ThrottleMinutes != 5 {
		t.Fatalf("defaults not preserved: %+v %+v", cfg.Trade, cfg.Alerts)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := writeTempConfig(t, `
env: dev
gateway:
  symbol: R_100
trade:
  mode: live
`)
	// live 模式缺 token
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for live mode without token")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, `
env: prod
gateway:
  symbol: R_100
trade:
  mode: live
  initialBalance: 0
`)
	t.Setenv("DERIV_TOKEN", "env-token")
	t.Setenv("DERIV_APP_ID", "4242")
	cfg, err := LoadWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Gateway.Token != "env-token" || cfg.Gateway.AppID != "4242" {
		t.Fatalf("env overrides not applied: %+v", cfg.Gateway)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(AppConfig{}); err == nil {
		t.Fatalf("expected error for empty config")
	}

	cases := []struct {
		name   string
		mutate func(*AppConfig)
	}{
		{"missing symbol", func(c *AppConfig) { c.Gateway.Symbol = "" }},
		{"bad trade mode", func(c *AppConfig) { c.Trade.Mode = "dry-run" }},
		{"bad strategy", func(c *AppConfig) { c.Engine.Strategy = "over" }},
		{"duration out of range", func(c *AppConfig) { c.Trade.DurationTicks = 11 }},
		{"loss pct above 1", func(c *AppConfig) { c.Risk.DailyLossLimitPct = 1.5 }},
		{"confidence above 100", func(c *AppConfig) { c.Risk.MinConfidenceMatch = 150 }},
		{"kelly above 1", func(c *AppConfig) { c.Sizing.KellyFactor = 2 }},
		{"stake bounds inverted", func(c *AppConfig) { c.Sizing.MinStake, c.Sizing.MaxStake = 10, 1 }},
		{"negative consensus window", func(c *AppConfig) { c.Signal.ConsensusWindows = []int{25, -1} }},
		{"negative journal buffer", func(c *AppConfig) { c.Journal.Buffer = -1 }},
	}
	for _, tc := range cases {
		cfg := Default()
		tc.mutate(&cfg)
		err := Validate(cfg)
		if err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
		if _, ok := err.(ErrInvalid); !ok {
			t.Fatalf("%s: expected ErrInvalid, got %T", tc.name, err)
		}
	}
}

func TestDefaultPassesValidation(t *testing.T) {
	if err := Validate(Default()); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}
