package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// AppConfig 主运行时配置
type AppConfig struct {
	Env      string         `yaml:"env"`
	Log      LogConfig      `yaml:"log"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Trade    TradeConfig    `yaml:"trade"`
	Engine   EngineConfig   `yaml:"engine"`
	Signal   SignalConfig   `yaml:"signal"`
	Ensemble EnsembleConfig `yaml:"ensemble"`
	Sizing   SizingConfig   `yaml:"sizing"`
	Risk     RiskConfig     `yaml:"risk"`
	Journal  JournalConfig  `yaml:"journal"`
	Server   ServerConfig   `yaml:"server"`
	Alerts   AlertConfig    `yaml:"alerts"`
}

type LogConfig struct {
	Level      string   `yaml:"level"`
	Outputs    []string `yaml:"outputs"` // console / file
	OutputFile string   `yaml:"outputFile"`
	ErrorFile  string   `yaml:"errorFile"`
	Format     string   `yaml:"format"` // json / console
	MaxSize    int      `yaml:"maxSize"`
	MaxBackups int      `yaml:"maxBackups"`
	MaxAge     int      `yaml:"maxAge"`
}

// GatewayConfig 保存 Deriv 连接参数。Token 留空时从 DERIV_TOKEN 读取。
type GatewayConfig struct {
	Endpoint  string  `yaml:"endpoint"`
	AppID     string  `yaml:"appId"`
	Token     string  `yaml:"token"`
	Symbol    string  `yaml:"symbol"`    // 交易标的，如 R_100
	PipDigits int32   `yaml:"pipDigits"` // 报价小数位，末位即数字
	RateLimit float64 `yaml:"rateLimit"` // 出站请求每秒上限，0 用默认
	RateBurst int     `yaml:"rateBurst"`
}

// TradeConfig 控制成交通道。paper 为本地模拟结算，live 走真实买入。
type TradeConfig struct {
	Mode           string  `yaml:"mode"` // paper / live
	Currency       string  `yaml:"currency"`
	PayoutRatio    float64 `yaml:"payoutRatio"`    // paper 结算赔付率
	DurationTicks  int     `yaml:"durationTicks"`  // 合约时长，1..10 跳
	InitialBalance float64 `yaml:"initialBalance"` // paper 起始余额，live 从授权帧取
}

type EngineConfig struct {
	WindowCapacity    int     `yaml:"windowCapacity"`
	Strategy          string  `yaml:"strategy"` // match / differ
	VolatilitySpan    int     `yaml:"volatilitySpan"`
	ConfirmEntryDigit bool    `yaml:"confirmEntryDigit"`
	SessionStopLoss   float64 `yaml:"sessionStopLoss"`
	SessionTakeProfit float64 `yaml:"sessionTakeProfit"`
	MaxPending        int     `yaml:"maxPending"`
}

// SignalConfig 选择并调校提取器集合，零值字段由各提取器自用默认。
type SignalConfig struct {
	Enabled          []string         `yaml:"enabled"` // 空则使用默认集合
	FrequencySpan    int              `yaml:"frequencySpan"`
	GapSpan          int              `yaml:"gapSpan"`
	ConsensusWindows []int            `yaml:"consensusWindows"`
	PatternSpan      int              `yaml:"patternSpan"`
	Volatility       VolatilityTuning `yaml:"volatility"`
	ModelPath        string           `yaml:"modelPath"` // 空则不启用模型提取器
	ModelSeqLen      int              `yaml:"modelSeqLen"`
}

type VolatilityTuning struct {
	Span        int     `yaml:"span"`
	Floor       float64 `yaml:"floor"`
	Ceiling     float64 `yaml:"ceiling"`
	MaxMomentum float64 `yaml:"maxMomentum"`
}

type EnsembleConfig struct {
	ConfidenceCap float64 `yaml:"confidenceCap"`
	AccuracySpan  int     `yaml:"accuracySpan"`
}

type SizingConfig struct {
	MinConfidence  float64 `yaml:"minConfidence"`
	WinProbCap     float64 `yaml:"winProbCap"`
	PayoutRatio    float64 `yaml:"payoutRatio"`
	KellyFactor    float64 `yaml:"kellyFactor"`
	MaxPositionPct float64 `yaml:"maxPositionPct"`
	MinStake       float64 `yaml:"minStake"`
	MaxStake       float64 `yaml:"maxStake"`
}

type RiskConfig struct {
	DailyLossLimitPct      float64 `yaml:"dailyLossLimitPct"`
	WeeklyLossLimitPct     float64 `yaml:"weeklyLossLimitPct"`
	MonthlyLossLimitPct    float64 `yaml:"monthlyLossLimitPct"`
	MinBalance             float64 `yaml:"minBalance"`
	MinConfidenceDiffer    float64 `yaml:"minConfidenceDiffer"`
	MinConfidenceMatch     float64 `yaml:"minConfidenceMatch"`
	VolatilityCeiling      float64 `yaml:"volatilityCeiling"`
	MaxStakePct            float64 `yaml:"maxStakePct"`
	MaxOpenWagers          int     `yaml:"maxOpenWagers"`
	MaxTradesPerHour       int     `yaml:"maxTradesPerHour"`
	MaxTradesPerDay        int     `yaml:"maxTradesPerDay"`
	BreakerThreshold       int     `yaml:"breakerThreshold"`
	BreakerCooldownMinutes int     `yaml:"breakerCooldownMinutes"`
}

// JournalConfig 控制 SQLite 交易日志。Path 为空时不落库。
type JournalConfig struct {
	Path   string `yaml:"path"`
	Buffer int    `yaml:"buffer"` // 后台写队列长度
}

// ServerConfig 控制 HTTP 状态服务。Addr 为空时不启动。
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type AlertConfig struct {
	ThrottleMinutes int  `yaml:"throttleMinutes"` // 同类告警的最小间隔
	Console         bool `yaml:"console"`         // 是否附加控制台通道
}

// Default 返回一份纸面模式的基础配置。
// Load 在其上反序列化，未写的键保留这里的值。
func Default() AppConfig {
	return AppConfig{
		Env: "dev",
		Log: LogConfig{
			Level:      "info",
			Outputs:    []string{"console"},
			Format:     "console",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
		Gateway: GatewayConfig{
			Symbol:    "R_100",
			PipDigits: 2,
		},
		Trade: TradeConfig{
			Mode:           "paper",
			Currency:       "USD",
			PayoutRatio:    0.95,
			DurationTicks:  1,
			InitialBalance: 1000,
		},
		Engine: EngineConfig{
			Strategy: "differ",
		},
		Alerts: AlertConfig{
			ThrottleMinutes: 5,
			Console:         true,
		},
	}
}

// Load 读取 YAML 配置并做基础校验
func Load(path string) (AppConfig, error) {
	cfg, err := read(path)
	if err != nil {
		return cfg, err
	}
	return cfg, Validate(cfg)
}

// LoadWithEnvOverrides 在校验前用环境变量覆盖敏感字段，
// 只经 DERIV_TOKEN 提供令牌的部署也能通过校验。
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := read(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("DERIV_TOKEN"); v != "" {
		cfg.Gateway.Token = v
	}
	if v := os.Getenv("DERIV_APP_ID"); v != "" {
		cfg.Gateway.AppID = v
	}
	return cfg, Validate(cfg)
}

func read(path string) (AppConfig, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	return cfg, nil
}
