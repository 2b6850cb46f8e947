// Package risk 实现交易前风控与交易后状态维护。
// Governor 是唯一的风险决策入口：交易前按固定顺序执行全部检查，
// 任一失败即拒绝并给出具体原因；交易结算只通过 ApplyOutcome 回写。
package risk

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"digit-trader-go/market"
)

// State 风控状态机的三个状态
type State int

const (
	// StateTrading 正常交易
	StateTrading State = iota
	// StateSuspended 软暂停，亏损限额或余额下限触发，待日切或人工恢复
	StateSuspended
	// StateCircuitOpen 硬熔断，连败触发冷却或外部强制打开
	StateCircuitOpen
)

// String 返回状态名称
func (s State) String() string {
	switch s {
	case StateTrading:
		return "TRADING"
	case StateSuspended:
		return "SUSPENDED"
	case StateCircuitOpen:
		return "CIRCUIT_OPEN"
	default:
		return "UNKNOWN"
	}
}

// Config 风控配置
type Config struct {
	DailyLossLimitPct   float64       // 日亏损占日初余额比例上限，默认 0.08
	WeeklyLossLimitPct  float64       // 周亏损比例上限，默认 0.15
	MonthlyLossLimitPct float64       // 月亏损比例上限，默认 0.25
	MinBalance          float64       // 余额下限，<=0 时关闭该检查
	MinConfidenceDiffer float64       // differ 方向置信度下限，默认 70
	MinConfidenceMatch  float64       // match 方向置信度下限，默认 75
	VolatilityCeiling   float64       // 波动率上限，默认 0.003
	MaxStakePct         float64       // 单笔下注占余额比例上限，默认 0.02
	MaxOpenWagers       int           // 并发未结注数上限，默认 1
	MaxTradesPerHour    int           // 每小时下单数上限，默认 20
	MaxTradesPerDay     int           // 每日下单数上限，默认 100
	BreakerThreshold    int           // 连败熔断阈值，默认 3
	BreakerCooldown     time.Duration // 熔断冷却时长，默认 30 分钟
}

// CheckContext 一次交易前检查的输入
type CheckContext struct {
	Direction  market.Direction
	Confidence float64
	Volatility float64
	Stake      decimal.Decimal
	OpenWagers int // 当前未结注数
}

// Governor 风控状态机。
// 不加锁，由引擎串行访问；所有计时按 UTC 日历边界懒惰重置。
type Governor struct {
	cfg     Config
	breaker *LossBreaker
	clock   Clock

	enabled bool

	balance    float64
	dayStart   float64 // 各周期起点时刻的余额
	weekStart  float64
	monthStart float64

	day   time.Time // 各周期锚点
	hour  time.Time
	week  time.Time
	month time.Time

	tradesToday    int
	tradesThisHour int
	totalTrades    int64
}

// NewGovernor 创建风控状态机并填充默认配置
func NewGovernor(cfg Config, startingBalance float64, clock Clock) *Governor {
	if cfg.DailyLossLimitPct <= 0 {
		cfg.DailyLossLimitPct = 0.08
	}
	if cfg.WeeklyLossLimitPct <= 0 {
		cfg.WeeklyLossLimitPct = 0.15
	}
	if cfg.MonthlyLossLimitPct <= 0 {
		cfg.MonthlyLossLimitPct = 0.25
	}
	if cfg.MinConfidenceDiffer <= 0 {
		cfg.MinConfidenceDiffer = 70
	}
	if cfg.MinConfidenceMatch <= 0 {
		cfg.MinConfidenceMatch = 75
	}
	if cfg.VolatilityCeiling <= 0 {
		cfg.VolatilityCeiling = 0.003
	}
	if cfg.MaxStakePct <= 0 {
		cfg.MaxStakePct = 0.02
	}
	if cfg.MaxOpenWagers <= 0 {
		cfg.MaxOpenWagers = 1
	}
	if cfg.MaxTradesPerHour <= 0 {
		cfg.MaxTradesPerHour = 20
	}
	if cfg.MaxTradesPerDay <= 0 {
		cfg.MaxTradesPerDay = 100
	}
	if clock == nil {
		clock = NowUTC
	}

	now := clock.Now().UTC()
	return &Governor{
		cfg:        cfg,
		breaker:    NewLossBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown, clock),
		clock:      clock,
		enabled:    true,
		balance:    startingBalance,
		dayStart:   startingBalance,
		weekStart:  startingBalance,
		monthStart: startingBalance,
		day:        startOfDay(now),
		hour:       startOfHour(now),
		week:       startOfWeek(now),
		month:      startOfMonth(now),
	}
}

// CheckTrade 按固定顺序执行全部交易前检查。
// 顺序：停机开关、熔断状态、暂停状态、连败计数、方向置信度下限、
// 波动率上限、注额比例、并发注数、小时与当日下单数上限。
// 返回 nil 表示放行；检查不修改任何计数。
func (g *Governor) CheckTrade(ctx CheckContext) error {
	if !g.enabled {
		return ErrTradingDisabled
	}

	g.rollover(g.clock.Now().UTC())

	if g.breaker.IsOpen() {
		if g.breaker.Forced() {
			return fmt.Errorf("%w: forced open, manual reset required", ErrCircuitOpen)
		}
		return fmt.Errorf("%w: %s remaining", ErrCircuitOpen, g.breaker.RemainingCooldown().Round(time.Second))
	}

	if err := g.suspension(); err != nil {
		return err
	}

	if g.breaker.ConsecutiveLosses() >= g.breaker.Threshold() {
		return fmt.Errorf("%w: %d losses", ErrTooManyLosses, g.breaker.ConsecutiveLosses())
	}

	floor := g.cfg.MinConfidenceMatch
	if ctx.Direction == market.DirectionDiffer {
		floor = g.cfg.MinConfidenceDiffer
	}
	if ctx.Confidence < floor {
		return fmt.Errorf("%w: %.1f < %.1f for %s", ErrLowConfidence, ctx.Confidence, floor, ctx.Direction)
	}

	if ctx.Volatility > g.cfg.VolatilityCeiling {
		return fmt.Errorf("%w: %.6f > %.6f", ErrVolatilityTooHigh, ctx.Volatility, g.cfg.VolatilityCeiling)
	}

	maxStake := decimal.NewFromFloat(g.balance * g.cfg.MaxStakePct)
	if ctx.Stake.GreaterThan(maxStake) {
		return fmt.Errorf("%w: %s > %s", ErrStakeTooLarge, ctx.Stake, maxStake.StringFixed(2))
	}

	if ctx.OpenWagers >= g.cfg.MaxOpenWagers {
		return fmt.Errorf("%w: %d open", ErrTooManyOpenWagers, ctx.OpenWagers)
	}

	if g.tradesThisHour >= g.cfg.MaxTradesPerHour {
		return fmt.Errorf("%w: %d this hour", ErrHourlyCapReached, g.tradesThisHour)
	}
	if g.tradesToday >= g.cfg.MaxTradesPerDay {
		return fmt.Errorf("%w: %d today", ErrDailyCapReached, g.tradesToday)
	}

	return nil
}

// RecordTrade 在决策真正发出后累加下单计数
func (g *Governor) RecordTrade() {
	g.rollover(g.clock.Now().UTC())
	g.tradesToday++
	g.tradesThisHour++
	g.totalTrades++
}

// ApplyOutcome 风控状态的唯一结算回写入口。
// 更新余额并驱动连败熔断器；亏损时 profit 为负数。
func (g *Governor) ApplyOutcome(profit float64, won bool) {
	g.rollover(g.clock.Now().UTC())
	g.balance += profit
	if won {
		g.breaker.RecordWin()
	} else {
		g.breaker.RecordLoss()
	}
}

// GetState 返回当前风控状态；熔断优先于暂停
func (g *Governor) GetState() State {
	g.rollover(g.clock.Now().UTC())
	if g.breaker.IsOpen() {
		return StateCircuitOpen
	}
	if g.suspension() != nil {
		return StateSuspended
	}
	return StateTrading
}

// SetEnabled 总停机开关，关闭后 CheckTrade 直接拒绝
func (g *Governor) SetEnabled(enabled bool) { g.enabled = enabled }

// IsEnabled 返回停机开关状态
func (g *Governor) IsEnabled() bool { return g.enabled }

// ForceOpen 外部灾难信号强制熔断，只能人工恢复
func (g *Governor) ForceOpen() { g.breaker.ForceOpen() }

// ForceClose 人工关闭熔断并清零连败计数
func (g *Governor) ForceClose() { g.breaker.ForceClose() }

// Balance 返回当前余额
func (g *Governor) Balance() float64 { return g.balance }

// SetBalance 以外部权威余额校准本地余额
func (g *Governor) SetBalance(balance float64) {
	g.balance = balance
}

// Breaker 返回内部熔断器，供状态展示使用
func (g *Governor) Breaker() *LossBreaker { return g.breaker }

// SetConfidenceFloors 热更新方向置信度下限；非正值被忽略
func (g *Governor) SetConfidenceFloors(differ, match float64) {
	if differ > 0 {
		g.cfg.MinConfidenceDiffer = differ
	}
	if match > 0 {
		g.cfg.MinConfidenceMatch = match
	}
}

// SetLossLimits 热更新各周期亏损比例上限；非正值被忽略
func (g *Governor) SetLossLimits(daily, weekly, monthly float64) {
	if daily > 0 {
		g.cfg.DailyLossLimitPct = daily
	}
	if weekly > 0 {
		g.cfg.WeeklyLossLimitPct = weekly
	}
	if monthly > 0 {
		g.cfg.MonthlyLossLimitPct = monthly
	}
}

// SetBreakerThreshold 热更新连败熔断阈值
func (g *Governor) SetBreakerThreshold(threshold int) {
	g.breaker.SetThreshold(threshold)
}

// Metrics 风控指标快照
type Metrics struct {
	State           State
	Enabled         bool
	Balance         float64
	DayStartBalance float64
	DailyLoss       float64
	WeeklyLoss      float64
	MonthlyLoss     float64
	TradesToday     int
	TradesThisHour  int
	TotalTrades     int64
	SuspendReason   string
	Breaker         BreakerMetrics
}

// GetMetrics 返回风控指标快照
func (g *Governor) GetMetrics() Metrics {
	g.rollover(g.clock.Now().UTC())

	m := Metrics{
		State:           g.GetState(),
		Enabled:         g.enabled,
		Balance:         g.balance,
		DayStartBalance: g.dayStart,
		DailyLoss:       g.dayStart - g.balance,
		WeeklyLoss:      g.weekStart - g.balance,
		MonthlyLoss:     g.monthStart - g.balance,
		TradesToday:     g.tradesToday,
		TradesThisHour:  g.tradesThisHour,
		TotalTrades:     g.totalTrades,
		Breaker:         g.breaker.GetMetrics(),
	}
	if err := g.suspension(); err != nil {
		m.SuspendReason = err.Error()
	}
	return m
}

// suspension 判断是否处于软暂停，返回具体原因
func (g *Governor) suspension() error {
	if g.cfg.MinBalance > 0 && g.balance < g.cfg.MinBalance {
		return fmt.Errorf("%w: balance %.2f below minimum %.2f", ErrSuspended, g.balance, g.cfg.MinBalance)
	}
	if g.dayStart > 0 {
		loss := g.dayStart - g.balance
		limit := g.dayStart * g.cfg.DailyLossLimitPct
		if loss >= limit {
			return fmt.Errorf("%w: daily loss %.2f >= limit %.2f", ErrSuspended, loss, limit)
		}
	}
	if g.weekStart > 0 {
		loss := g.weekStart - g.balance
		limit := g.weekStart * g.cfg.WeeklyLossLimitPct
		if loss >= limit {
			return fmt.Errorf("%w: weekly loss %.2f >= limit %.2f", ErrSuspended, loss, limit)
		}
	}
	if g.monthStart > 0 {
		loss := g.monthStart - g.balance
		limit := g.monthStart * g.cfg.MonthlyLossLimitPct
		if loss >= limit {
			return fmt.Errorf("%w: monthly loss %.2f >= limit %.2f", ErrSuspended, loss, limit)
		}
	}
	return nil
}

// rollover 按 UTC 日历边界懒惰重置各周期计数与基准余额
func (g *Governor) rollover(now time.Time) {
	if h := startOfHour(now); !h.Equal(g.hour) {
		g.hour = h
		g.tradesThisHour = 0
	}
	if d := startOfDay(now); !d.Equal(g.day) {
		g.day = d
		g.tradesToday = 0
		g.dayStart = g.balance
	}
	if w := startOfWeek(now); !w.Equal(g.week) {
		g.week = w
		g.weekStart = g.balance
	}
	if m := startOfMonth(now); !m.Equal(g.month) {
		g.month = m
		g.monthStart = g.balance
	}
}

func startOfHour(t time.Time) time.Time {
	return t.Truncate(time.Hour)
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// startOfWeek 返回所在周的周一零点
func startOfWeek(t time.Time) time.Time {
	d := startOfDay(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
