package sim

import (
	"time"

	"digit-trader-go/ensemble"
	"digit-trader-go/exposure"
	"digit-trader-go/gateway"
	"digit-trader-go/infrastructure/logger"
	"digit-trader-go/internal/engine"
	"digit-trader-go/market"
	"digit-trader-go/posttrade"
	"digit-trader-go/risk"
	"digit-trader-go/signal"
	"digit-trader-go/sizing"
)

// RunnerConfig 描述一轮离线模拟，零值字段落到各组件的默认值。
type RunnerConfig struct {
	Symbol   string // 默认 R_100
	Seed     int64
	Strategy string // match / differ，默认 differ

	Anchor    float64
	Sigma     float64
	PipDigits int32
	HotDigit  int
	HotBias   float64

	InitialBalance float64 // 默认 1000
	PayoutRatio    float64

	WindowCapacity    int
	SessionStopLoss   float64
	SessionTakeProfit float64
	MaxPending        int

	MinConfidence  float64
	KellyFactor    float64
	MaxPositionPct float64
	MinStake       float64
	MaxStake       float64

	MinConfidenceDiffer float64
	MinConfidenceMatch  float64
	BreakerThreshold    int
	BreakerCooldown     time.Duration
	MaxTradesPerHour    int
	MaxTradesPerDay     int
}

// BuildRunner 用内存组件组装 Runner，适合离线仿真与多种子并行实验。
func BuildRunner(cfg RunnerConfig) (*Runner, error) {
	if cfg.Symbol == "" {
		cfg.Symbol = "R_100"
	}
	if cfg.Strategy == "" {
		cfg.Strategy = "differ"
	}
	if cfg.InitialBalance <= 0 {
		cfg.InitialBalance = 1000
	}
	if cfg.PipDigits <= 0 {
		cfg.PipDigits = 4
	}

	direction, err := market.ParseDirection(cfg.Strategy)
	if err != nil {
		return nil, err
	}
	extractors, err := signal.NewFactory().Build(signal.Config{})
	if err != nil {
		return nil, err
	}

	gen := NewGenerator(GeneratorConfig{
		Symbol:    cfg.Symbol,
		Seed:      cfg.Seed,
		Anchor:    cfg.Anchor,
		Sigma:     cfg.Sigma,
		PipDigits: cfg.PipDigits,
		HotDigit:  cfg.HotDigit,
		HotBias:   cfg.HotBias,
	})
	clock := &simClock{now: time.Unix(gen.NextEpoch(), 0).UTC()}

	eng, err := engine.New(engine.Config{
		Symbol:            cfg.Symbol,
		PipDigits:         cfg.PipDigits,
		WindowCapacity:    cfg.WindowCapacity,
		Strategy:          direction,
		SessionStopLoss:   cfg.SessionStopLoss,
		SessionTakeProfit: cfg.SessionTakeProfit,
		MaxPending:        cfg.MaxPending,
	}, engine.Components{
		Predictor: ensemble.NewPredictor(extractors, ensemble.Config{}),
		Sizer: sizing.New(sizing.Config{
			MinConfidence:  cfg.MinConfidence,
			PayoutRatio:    cfg.PayoutRatio,
			KellyFactor:    cfg.KellyFactor,
			MaxPositionPct: cfg.MaxPositionPct,
			MinStake:       cfg.MinStake,
			MaxStake:       cfg.MaxStake,
		}),
		Governor: risk.NewGovernor(risk.Config{
			MinConfidenceDiffer: cfg.MinConfidenceDiffer,
			MinConfidenceMatch:  cfg.MinConfidenceMatch,
			BreakerThreshold:    cfg.BreakerThreshold,
			BreakerCooldown:     cfg.BreakerCooldown,
			MaxTradesPerHour:    cfg.MaxTradesPerHour,
			MaxTradesPerDay:     cfg.MaxTradesPerDay,
		}, cfg.InitialBalance, clock),
		Outcomes: posttrade.NewTracker(0),
		Analyzer: posttrade.NewAnalyzer(),
		Exposure: exposure.NewTracker(),
		Logger:   logger.NewNop(),
	})
	if err != nil {
		return nil, err
	}

	sink := &simSink{eng: eng}
	paper, err := gateway.NewPaperTrader(gateway.PaperConfig{
		PipDigits:   cfg.PipDigits,
		PayoutRatio: cfg.PayoutRatio,
		Sink:        sink,
		Logger:      logger.NewNop(),
	})
	if err != nil {
		return nil, err
	}

	return &Runner{
		Engine: eng,
		Paper:  paper,
		Gen:    gen,
		clock:  clock,
		seed:   cfg.Seed,
	}, nil
}
