// Package sim 提供离线模拟：合成行情生成器加上内存组件装配的
// 决策回路，用于多种子实验与回归，不连任何网关。
package sim

import (
	"math/rand"
	"strconv"
	"time"

	"digit-trader-go/gateway"
)

// GeneratorConfig 控制合成行情序列，零值字段使用默认值。
type GeneratorConfig struct {
	Symbol      string  // 默认 R_100
	Seed        int64   // 相同种子产生相同序列
	Anchor      float64 // 均值回归中枢，默认 1234.5
	Phi         float64 // AR(1) 回归系数，默认 0.9
	Sigma       float64 // 每跳扰动标准差（绝对价格），默认 0.0004
	PipDigits   int32   // 报价小数位，默认 4
	StartEpoch  int64   // 首跳时间戳，默认 2025-01-01 00:00:00 UTC
	IntervalSec int64   // 跳间隔秒数，默认 2
	HotDigit    int     // HotBias > 0 时，以该概率把末位改写成这个数字
	HotBias     float64 // [0,1]，0 表示末位不做偏置
}

// Generator 用均值回归的 AR(1) 过程生成合成指数报价。
// 扰动幅度默认落在引擎的可交易波动率区间内，末位数字近似均匀；
// 配置 HotBias 后末位分布出现已知偏差，可用来验证提取器能否抓到。
type Generator struct {
	rng      *rand.Rand
	symbol   string
	anchor   float64
	phi      float64
	sigma    float64
	price    float64
	pip      int32
	epoch    int64
	interval int64
	hotDigit int
	hotBias  float64
}

// NewGenerator 创建生成器。
func NewGenerator(cfg GeneratorConfig) *Generator {
	if cfg.Symbol == "" {
		cfg.Symbol = "R_100"
	}
	if cfg.Anchor <= 0 {
		cfg.Anchor = 1234.5
	}
	if cfg.Phi <= 0 || cfg.Phi >= 1 {
		cfg.Phi = 0.9
	}
	if cfg.Sigma <= 0 {
		cfg.Sigma = 0.0004
	}
	if cfg.PipDigits <= 0 {
		cfg.PipDigits = 4
	}
	if cfg.StartEpoch <= 0 {
		cfg.StartEpoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	}
	if cfg.IntervalSec <= 0 {
		cfg.IntervalSec = 2
	}
	if cfg.HotDigit < 0 || cfg.HotDigit > 9 {
		cfg.HotBias = 0
	}
	return &Generator{
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		symbol:   cfg.Symbol,
		anchor:   cfg.Anchor,
		phi:      cfg.Phi,
		sigma:    cfg.Sigma,
		price:    cfg.Anchor,
		pip:      cfg.PipDigits,
		epoch:    cfg.StartEpoch,
		interval: cfg.IntervalSec,
		hotDigit: cfg.HotDigit,
		hotBias:  cfg.HotBias,
	}
}

// Next 生成下一跳。末位偏置只改写报价字符串，不污染过程状态。
func (g *Generator) Next() gateway.TickEvent {
	g.price = g.anchor + g.phi*(g.price-g.anchor) + g.sigma*g.rng.NormFloat64()
	quote := strconv.FormatFloat(g.price, 'f', int(g.pip), 64)
	if g.hotBias > 0 && g.rng.Float64() < g.hotBias {
		quote = quote[:len(quote)-1] + string(rune('0'+g.hotDigit))
	}
	ev := gateway.TickEvent{
		Symbol:  g.symbol,
		Quote:   quote,
		Epoch:   g.epoch,
		PipSize: int(g.pip),
	}
	g.epoch += g.interval
	return ev
}

// NextEpoch 返回下一跳的时间戳，装配时用来对齐风控时钟。
func (g *Generator) NextEpoch() int64 { return g.epoch }
