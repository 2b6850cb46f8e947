// Package engine 实现每 tick 的决策流水线：
// 窗口更新、信号提取、集成预测、仓位计算、风控闸门，
// 产出 TradeDecision 或"不下注"；结算结果异步回流。
package engine

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"digit-trader-go/ensemble"
	"digit-trader-go/exposure"
	"digit-trader-go/infrastructure/logger"
	"digit-trader-go/market"
	"digit-trader-go/posttrade"
	"digit-trader-go/risk"
	"digit-trader-go/signal"
	"digit-trader-go/sizing"
)

// Config 引擎配置
type Config struct {
	Symbol            string           // 交易标的
	PipDigits         int32            // 报价小数位，末位即数字
	WindowCapacity    int              // 滚动窗口容量，默认 500
	Strategy          market.Direction // 下注方向，零值为 match
	VolatilitySpan    int              // 波动率测量窗口，默认 20
	ConfirmEntryDigit bool             // 仅当当前数字与预测一致时入场
	SessionStopLoss   float64          // 会话累计亏损停机阈值，0 关闭
	SessionTakeProfit float64          // 会话累计盈利停机阈值，0 关闭
	MaxPending        int              // 未决决策保留上限，默认 256
}

// Components 引擎依赖组件
type Components struct {
	Predictor *ensemble.Predictor
	Sizer     *sizing.Sizer
	Governor  *risk.Governor
	Outcomes  *posttrade.Tracker  // 可空
	Analyzer  *posttrade.Analyzer // 可空
	Exposure  *exposure.Tracker   // 可空
	Logger    *logger.Logger
}

// TradeDecision 一笔可提交的下注决策，创建后不可变
type TradeDecision struct {
	ID         string
	Digit      int
	Direction  market.Direction
	Stake      decimal.Decimal
	Confidence float64
	At         time.Time
}

// pendingDecision 等待结算的决策上下文
type pendingDecision struct {
	votes     map[string]int
	digit     int
	direction market.Direction
	stake     decimal.Decimal
	decidedAt time.Time
}

// Engine 决策引擎。
// 单个互斥锁串行化 OnTick 与 OnOutcome，结算不会与
// 权重和风控计数的读写交错；内部组件因此无需自带锁。
type Engine struct {
	config Config

	predictor *ensemble.Predictor
	sizer     *sizing.Sizer
	governor  *risk.Governor
	outcomes  *posttrade.Tracker
	analyzer  *posttrade.Analyzer
	exposure  *exposure.Tracker
	logger    *logger.Logger

	mu             sync.Mutex
	window         *market.Window
	pending        map[string]pendingDecision
	lastPrediction *ensemble.Prediction
	lastDecision   *TradeDecision
	lastVolatility float64
	lastRegime     market.Regime
	sessionPnL     float64
	stats          Statistics
}

// New 创建决策引擎
func New(cfg Config, comp Components) (*Engine, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := validateComponents(comp); err != nil {
		return nil, fmt.Errorf("invalid components: %w", err)
	}

	// 设置默认值
	if cfg.WindowCapacity <= 0 {
		cfg.WindowCapacity = 500
	}
	if cfg.PipDigits <= 0 {
		cfg.PipDigits = 2
	}
	if cfg.VolatilitySpan <= 0 {
		cfg.VolatilitySpan = 20
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = 256
	}

	return &Engine{
		config:    cfg,
		predictor: comp.Predictor,
		sizer:     comp.Sizer,
		governor:  comp.Governor,
		outcomes:  comp.Outcomes,
		analyzer:  comp.Analyzer,
		exposure:  comp.Exposure,
		logger:    comp.Logger,
		window:    market.NewWindow(cfg.WindowCapacity),
		pending:   make(map[string]pendingDecision),
		stats:     Statistics{StartTime: time.Now()},
	}, nil
}

// OnTick 处理一条新报价，返回决策或 nil（不下注）。
// 只有坏报价这一种输入失败会返回 error，且不触碰窗口；
// 提取器内部失败以中性结果替代并记日志，绝不传出。
func (e *Engine) OnTick(raw string, at time.Time) (*TradeDecision, error) {
	tick, err := market.NewTick(raw, e.config.PipDigits, at)
	if err != nil {
		e.mu.Lock()
		e.stats.TicksRejected++
		e.mu.Unlock()
		e.logger.Warn("Tick rejected",
			zap.String("symbol", e.config.Symbol),
			zap.String("raw", raw),
			zap.Error(err))
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.stats.TicksSeen++
	e.stats.LastTickAt = at
	e.window.Append(tick)

	// 信号与预测每 tick 都算，停机时也保持状态面板新鲜
	results, errs := e.predictor.Run(e.window)
	for _, serr := range errs {
		e.stats.ExtractorErrors++
		e.logger.Warn("Extractor degraded to neutral", zap.Error(serr))
	}
	pred := e.predictor.Predict(e.window, results)
	e.lastPrediction = &pred

	volatility := e.volatilityOf(results)
	regime := regimeOf(results)
	e.lastVolatility, e.lastRegime = volatility, regime
	direction := e.config.Strategy

	if e.config.ConfirmEntryDigit && tick.Digit != pred.Digit {
		e.stats.NoTrades++
		return nil, nil
	}

	recent := sizing.Recent{}
	if e.outcomes != nil {
		recent.WinRate, recent.Trades = e.outcomes.Trailing()
	}

	stake := e.sizer.Size(sizing.Context{
		Confidence: pred.Confidence,
		Balance:    e.governor.Balance(),
		Volatility: volatility,
		Regime:     regime,
		Recent:     recent,
	})
	if stake.IsZero() {
		e.stats.NoTrades++
		return nil, nil
	}

	open := 0
	if e.exposure != nil {
		open = e.exposure.Count()
	}
	if err := e.governor.CheckTrade(risk.CheckContext{
		Direction:  direction,
		Confidence: pred.Confidence,
		Volatility: volatility,
		Stake:      stake,
		OpenWagers: open,
	}); err != nil {
		e.stats.Rejections++
		e.logger.Info("Trade rejected",
			zap.String("symbol", e.config.Symbol),
			zap.Int("digit", pred.Digit),
			zap.Float64("confidence", pred.Confidence),
			zap.String("reason", err.Error()))
		return nil, nil
	}

	decision := &TradeDecision{
		ID:         e.decisionID(at),
		Digit:      pred.Digit,
		Direction:  direction,
		Stake:      stake,
		Confidence: pred.Confidence,
		At:         at,
	}

	e.governor.RecordTrade()
	e.rememberPending(decision, pred.Votes)
	if e.exposure != nil {
		e.exposure.Open(exposure.Wager{
			DecisionID: decision.ID,
			Stake:      stake,
			OpenedAt:   at,
		})
	}
	if e.analyzer != nil {
		e.analyzer.OnDecision(decision.ID, decision.Digit, direction, pred.Confidence, at)
	}

	e.stats.Decisions++
	e.stats.LastDecisionAt = at
	e.lastDecision = decision
	e.logger.Info("Trade decision",
		zap.String("symbol", e.config.Symbol),
		zap.String("decision_id", decision.ID),
		zap.Int("digit", decision.Digit),
		zap.String("direction", direction.String()),
		zap.String("stake", stake.StringFixed(2)),
		zap.Float64("confidence", pred.Confidence))

	return decision, nil
}

// OnOutcome 结算一笔先前的决策：回写风控余额、驱动熔断器、
// 更新集成权重与战绩统计。未知的决策 ID 只记日志后丢弃，
// 返回是否确有该笔决策。
func (e *Engine) OnOutcome(decisionID string, profit float64, won bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok := e.pending[decisionID]
	if !ok {
		e.stats.UnknownOutcomes++
		e.logger.Warn("Outcome for unknown decision",
			zap.String("decision_id", decisionID),
			zap.Float64("profit", profit))
		return false
	}
	delete(e.pending, decisionID)

	e.stats.OutcomesSeen++
	e.governor.ApplyOutcome(profit, won)
	e.predictor.ResolveOutcome(p.votes, p.digit, p.direction, won)
	if e.outcomes != nil {
		e.outcomes.Record(p.direction, profit, won)
	}
	if e.analyzer != nil {
		e.analyzer.OnResolution(decisionID, profit, won)
	}
	if e.exposure != nil {
		e.exposure.Settle(decisionID)
	}

	e.sessionPnL += profit
	e.checkSessionStops()

	e.logger.Info("Outcome applied",
		zap.String("decision_id", decisionID),
		zap.Float64("profit", profit),
		zap.Bool("won", won),
		zap.Float64("balance", e.governor.Balance()),
		zap.Float64("session_pnl", e.sessionPnL))
	return true
}

// AbandonDecision 撤销一笔提交失败的决策，使其不再占用敞口、
// 不再等待结算。返回是否确有此决策。
func (e *Engine) AbandonDecision(decisionID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.pending[decisionID]; !ok {
		return false
	}
	delete(e.pending, decisionID)
	if e.exposure != nil {
		e.exposure.Settle(decisionID)
	}
	e.stats.Abandoned++
	e.logger.Warn("Decision abandoned", zap.String("decision_id", decisionID))
	return true
}

// Pause 拉下风控总开关；当前 tick 之后不再产出新决策
func (e *Engine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.governor.SetEnabled(false)
	e.logger.Info("Engine paused", zap.String("symbol", e.config.Symbol))
}

// Resume 恢复风控总开关
func (e *Engine) Resume() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.governor.SetEnabled(true)
	e.logger.Info("Engine resumed", zap.String("symbol", e.config.Symbol))
}

// ForceCircuitOpen 外部灾难信号入口，熔断后只能人工恢复
func (e *Engine) ForceCircuitOpen(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.governor.ForceOpen()
	e.logger.Error("Circuit forced open",
		zap.String("symbol", e.config.Symbol),
		zap.String("reason", reason))
}

// ResetCircuit 人工恢复熔断
func (e *Engine) ResetCircuit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.governor.ForceClose()
	e.logger.Warn("Circuit manually reset", zap.String("symbol", e.config.Symbol))
}

// SetBalance 以交易所的权威余额校准风控账本，鉴权成功后调用
func (e *Engine) SetBalance(balance float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.governor.SetBalance(balance)
	e.logger.Info("Balance synced",
		zap.String("symbol", e.config.Symbol),
		zap.Float64("balance", balance))
}

// UpdateGovernor 在引擎锁内执行一次风控参数变更。
// 风控状态机本身不加锁，热更新入口必须经由这里
// 才能与 OnTick、OnOutcome 保持串行。
func (e *Engine) UpdateGovernor(fn func(*risk.Governor)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.governor)
}

// SetSizer 整体换装仓位计算器。计算器本身不可变，
// 调参时构造新实例替换而不是原地修改。
func (e *Engine) SetSizer(s *sizing.Sizer) {
	if s == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sizer = s
	e.logger.Info("Sizer replaced", zap.String("symbol", e.config.Symbol))
}

// decisionID 由标的、决策序号与时刻派生确定性 UUID，
// 同一输入序列重放会得到完全相同的决策 ID。
func (e *Engine) decisionID(at time.Time) string {
	name := fmt.Sprintf("%s|%d|%d", e.config.Symbol, e.stats.Decisions, at.UnixNano())
	return uuid.NewMD5(uuid.NameSpaceOID, []byte(name)).String()
}

// rememberPending 登记未决决策，超出上限时淘汰最旧的一笔
func (e *Engine) rememberPending(d *TradeDecision, votes map[string]int) {
	if len(e.pending) >= e.config.MaxPending {
		oldestID := ""
		var oldestAt time.Time
		for id, p := range e.pending {
			if oldestID == "" || p.decidedAt.Before(oldestAt) {
				oldestID, oldestAt = id, p.decidedAt
			}
		}
		delete(e.pending, oldestID)
		e.logger.Warn("Pending decision evicted", zap.String("decision_id", oldestID))
	}
	e.pending[d.ID] = pendingDecision{
		votes:     votes,
		digit:     d.Digit,
		direction: d.Direction,
		stake:     d.Stake,
		decidedAt: d.At,
	}
}

// checkSessionStops 会话级止损止盈，触发后拉下风控总开关
func (e *Engine) checkSessionStops() {
	if !e.governor.IsEnabled() {
		return
	}
	if e.config.SessionStopLoss > 0 && e.sessionPnL <= -e.config.SessionStopLoss {
		e.governor.SetEnabled(false)
		e.logger.Warn("Session stop-loss hit, trading disabled",
			zap.Float64("session_pnl", e.sessionPnL),
			zap.Float64("stop_loss", e.config.SessionStopLoss))
		return
	}
	if e.config.SessionTakeProfit > 0 && e.sessionPnL >= e.config.SessionTakeProfit {
		e.governor.SetEnabled(false)
		e.logger.Info("Session take-profit hit, trading disabled",
			zap.Float64("session_pnl", e.sessionPnL),
			zap.Float64("take_profit", e.config.SessionTakeProfit))
	}
}

// volatilityOf 取波动率标量；预热期提取器静默时退回直接计算
func (e *Engine) volatilityOf(results []signal.Result) float64 {
	if v, ok := scalarOf(results, signal.ScalarVolatility); ok {
		return v
	}
	prices := e.window.LastPrices(e.config.VolatilitySpan)
	return market.PriceStdDev(prices, len(prices))
}

// regimeOf 取市场状态标量，缺省视为震荡
func regimeOf(results []signal.Result) market.Regime {
	if v, ok := scalarOf(results, signal.ScalarRegime); ok {
		return market.Regime(int(v))
	}
	return market.RegimeRanging
}

func scalarOf(results []signal.Result, key string) (float64, bool) {
	for _, r := range results {
		if v, ok := r.Scalars[key]; ok {
			return v, true
		}
	}
	return 0, false
}

// validateConfig 验证配置
func validateConfig(cfg Config) error {
	if cfg.Symbol == "" {
		return errors.New("symbol is required")
	}
	if cfg.Strategy != market.DirectionMatch && cfg.Strategy != market.DirectionDiffer {
		return errors.New("strategy must be match or differ")
	}
	return nil
}

// validateComponents 验证组件
func validateComponents(comp Components) error {
	if comp.Predictor == nil {
		return errors.New("predictor is required")
	}
	if comp.Sizer == nil {
		return errors.New("sizer is required")
	}
	if comp.Governor == nil {
		return errors.New("governor is required")
	}
	if comp.Logger == nil {
		return errors.New("logger is required")
	}
	return nil
}
