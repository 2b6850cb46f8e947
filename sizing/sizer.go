// Package sizing 根据置信度、余额与市场状态计算单笔下注金额。
// 以半凯利为基础，叠加波动率、市场状态、近期胜率与置信度档位四类
// 有界乘数，最终截断到货币最小增量。
package sizing

import (
	"math"

	"github.com/shopspring/decimal"

	"digit-trader-go/market"
)

// Config 仓位计算配置
type Config struct {
	MinConfidence  float64 // 低于此置信度直接返回零，默认 55
	WinProbCap     float64 // 置信度折算胜率的上限，默认 0.85
	PayoutRatio    float64 // 赔付率 b，默认 0.95
	KellyFactor    float64 // 凯利保守系数，默认 0.5（半凯利）
	MaxPositionPct float64 // 单笔占余额比例硬上限，默认 0.02
	MinStake       float64 // 平台最小下注额，默认 0.35
	MaxStake       float64 // 单笔绝对上限，默认 50.0
}

// Context 一次仓位计算的输入
type Context struct {
	Confidence float64       // 预测置信度 0-100
	Balance    float64       // 当前余额
	Volatility float64       // 最近价格标准差
	Regime     market.Regime // 市场状态
	Recent     Recent        // 近期交易表现
}

// Recent 近期交易表现摘要
type Recent struct {
	WinRate float64 // 近期胜率 [0,1]
	Trades  int     // 样本笔数，不足5笔不做调整
}

// Sizer 仓位计算器，无内部状态，可并发使用
type Sizer struct {
	cfg Config
}

// New 创建仓位计算器并填充默认配置
func New(cfg Config) *Sizer {
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 55
	}
	if cfg.WinProbCap <= 0 {
		cfg.WinProbCap = 0.85
	}
	if cfg.PayoutRatio <= 0 {
		cfg.PayoutRatio = 0.95
	}
	if cfg.KellyFactor <= 0 {
		cfg.KellyFactor = 0.5
	}
	if cfg.MaxPositionPct <= 0 {
		cfg.MaxPositionPct = 0.02
	}
	if cfg.MinStake <= 0 {
		cfg.MinStake = 0.35
	}
	if cfg.MaxStake <= 0 {
		cfg.MaxStake = 50.0
	}
	return &Sizer{cfg: cfg}
}

// Size 计算下注金额。返回零表示明确不交易：
// 置信度低于门槛、余额不足，或风险上限容不下最小下注额。
// 结果向下截断到 0.01，且永不超过 balance*MaxPositionPct。
func (s *Sizer) Size(ctx Context) decimal.Decimal {
	if ctx.Confidence < s.cfg.MinConfidence || ctx.Balance <= 0 {
		return decimal.Zero
	}

	// 凯利公式 f = (b*p - q) / b，取保守系数并封顶
	p := math.Min(ctx.Confidence/100, s.cfg.WinProbCap)
	q := 1 - p
	b := s.cfg.PayoutRatio
	fraction := (b*p - q) / b * s.cfg.KellyFactor
	if fraction < 0 {
		fraction = 0
	}
	if fraction > s.cfg.MaxPositionPct {
		fraction = s.cfg.MaxPositionPct
	}
	stake := ctx.Balance * fraction

	stake *= volatilityFactor(ctx.Volatility)
	stake *= regimeFactor(ctx.Regime)
	stake *= recentFactor(ctx.Recent)
	stake *= confidenceFactor(ctx.Confidence)

	upper := math.Min(s.cfg.MaxStake, ctx.Balance*s.cfg.MaxPositionPct)
	if upper < s.cfg.MinStake {
		// 风险上限低于平台最小下注额，无法开仓
		return decimal.Zero
	}
	if stake > upper {
		stake = upper
	}
	if stake < s.cfg.MinStake {
		stake = s.cfg.MinStake
	}

	return decimal.NewFromFloat(stake).Truncate(2)
}

// volatilityFactor 波动率越高仓位越小
func volatilityFactor(volatility float64) float64 {
	switch {
	case volatility < 0.0005:
		return 1.2
	case volatility < 0.001:
		return 1.0
	case volatility < 0.002:
		return 0.7
	default:
		return 0.4
	}
}

// regimeFactor 市场状态乘数
func regimeFactor(regime market.Regime) float64 {
	switch regime {
	case market.RegimeTrending:
		return 1.1
	case market.RegimeVolatile:
		return 0.6
	default:
		return 1.0
	}
}

// recentFactor 近期胜率乘数，样本不足5笔不调整
func recentFactor(recent Recent) float64 {
	if recent.Trades < 5 {
		return 1.0
	}
	switch {
	case recent.WinRate > 0.7:
		return 1.15
	case recent.WinRate < 0.3:
		return 0.7
	default:
		return 1.0
	}
}

// confidenceFactor 置信度档位乘数
func confidenceFactor(confidence float64) float64 {
	switch {
	case confidence >= 85:
		return 1.3
	case confidence >= 75:
		return 1.1
	case confidence >= 65:
		return 1.0
	default:
		return 0.8
	}
}
