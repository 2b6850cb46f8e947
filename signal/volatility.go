package signal

import (
	"math"

	"digit-trader-go/market"
)

// VolatilityExtractor 是纯标量提取器：输出近期价格标准差、动量、
// 市场状态与会话信息，并给出 favorable 标记。波动率落在
// [floor, ceiling] 区间且动量温和时才视为可交易；两端极端
// （死水或剧烈波动）都会使启发式失真，引擎应跳过。
type VolatilityExtractor struct {
	span        int
	floor       float64
	ceiling     float64
	maxMomentum float64
	detector    *market.RegimeDetector
}

// VolatilityConfig 配置可交易区间；零值使用默认
// （span 20，floor 0.0005，ceiling 0.002，动量上限 0.005）。
type VolatilityConfig struct {
	Span        int
	Floor       float64
	Ceiling     float64
	MaxMomentum float64
}

// NewVolatilityExtractor 创建波动率/会话提取器。
func NewVolatilityExtractor(cfg VolatilityConfig) *VolatilityExtractor {
	if cfg.Span <= 0 {
		cfg.Span = 20
	}
	if cfg.Floor <= 0 {
		cfg.Floor = 0.0005
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = 0.002
	}
	if cfg.MaxMomentum <= 0 {
		cfg.MaxMomentum = 0.005
	}
	return &VolatilityExtractor{
		span:        cfg.Span,
		floor:       cfg.Floor,
		ceiling:     cfg.Ceiling,
		maxMomentum: cfg.MaxMomentum,
		detector:    market.NewRegimeDetector(cfg.Span, 0, 0),
	}
}

func (e *VolatilityExtractor) Name() string { return MethodVolatility }

func (e *VolatilityExtractor) MinSamples() int { return 20 }

func (e *VolatilityExtractor) Score(win *market.Window) Result {
	if win == nil || win.Len() < e.MinSamples() {
		return NeutralScalar(MethodVolatility)
	}

	prices := win.Prices()
	recent := win.LastPrices(e.span)
	sd := market.PriceStdDev(recent, len(recent))

	momentum := 0.0
	if n := len(prices); n >= 5 && prices[n-5] != 0 {
		momentum = (prices[n-1] - prices[n-5]) / prices[n-5]
	}

	favorable := 0.0
	if sd > e.floor && sd < e.ceiling && math.Abs(momentum) < e.maxMomentum {
		favorable = 1.0
	}

	regime := e.detector.Detect(prices)

	last, _ := win.Last()
	session := market.SessionAt(last.At)
	bias := sessionBiasShare(win.LastDigits(20), session)

	return Result{
		Method: MethodVolatility,
		Scalars: map[string]float64{
			ScalarVolatility:  sd,
			ScalarMomentum:    momentum,
			ScalarFavorable:   favorable,
			ScalarRegime:      float64(regime),
			ScalarSession:     float64(session),
			ScalarSessionBias: bias,
		},
	}
}

// sessionBiasShare 计算会话偏好数字在近端样本中的占比。
func sessionBiasShare(digits []int, s market.Session) float64 {
	if len(digits) == 0 {
		return 0
	}
	hits := 0
	for _, d := range digits {
		if s.Favors(d) {
			hits++
		}
	}
	return float64(hits) / float64(len(digits))
}
