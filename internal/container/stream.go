package container

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"digit-trader-go/gateway"
	"digit-trader-go/infrastructure/alert"
	"digit-trader-go/infrastructure/logger"
	"digit-trader-go/infrastructure/monitor"
	"digit-trader-go/internal/engine"
	"digit-trader-go/journal"
	"digit-trader-go/market"
	"digit-trader-go/risk"
)

const submitQueueSize = 16

// streamBridge 把网关推送接进决策流水线。
// tick 先交纸面执行器结算挂单，再交引擎决策；
// 实盘提交要等交易所回应，经独立工作协程错开读协程，
// 纸面提交不做 I/O，同步落单使下一跳即可结算。
type streamBridge struct {
	symbol     string
	stopLoss   float64
	takeProfit float64

	engine   *engine.Engine
	trader   gateway.TradeSubmitter
	paper    *gateway.PaperTrader
	live     *gateway.DerivTrader
	mon      *monitor.Monitor
	log      *logger.Logger
	alerts   *alert.Manager
	recorder *journal.Recorder
	emit     func(event string, fields map[string]interface{})

	submitCh chan *engine.TradeDecision
	done     chan struct{}

	mu      sync.Mutex
	started bool
	closed  bool

	// 以下状态只在读协程内访问
	prevStats   engine.Statistics
	prevState   risk.State
	prevEnabled bool
}

type bridgeConfig struct {
	Symbol     string
	StopLoss   float64
	TakeProfit float64
	Engine     *engine.Engine
	Trader     gateway.TradeSubmitter
	Paper      *gateway.PaperTrader
	Live       *gateway.DerivTrader
	Monitor    *monitor.Monitor
	Logger     *logger.Logger
	Alerts     *alert.Manager
	Recorder   *journal.Recorder
	Emit       func(event string, fields map[string]interface{})
}

func newStreamBridge(cfg bridgeConfig) *streamBridge {
	return &streamBridge{
		symbol:      cfg.Symbol,
		stopLoss:    cfg.StopLoss,
		takeProfit:  cfg.TakeProfit,
		engine:      cfg.Engine,
		trader:      cfg.Trader,
		paper:       cfg.Paper,
		live:        cfg.Live,
		mon:         cfg.Monitor,
		log:         cfg.Logger,
		alerts:      cfg.Alerts,
		recorder:    cfg.Recorder,
		emit:        cfg.Emit,
		submitCh:    make(chan *engine.TradeDecision, submitQueueSize),
		done:        make(chan struct{}),
		prevState:   risk.StateTrading,
		prevEnabled: true,
	}
}

// OnTick 在网关读协程内处理一次行情跳动
func (b *streamBridge) OnTick(ev gateway.TickEvent) {
	// 1-tick 合约先结算，同一跳上腾出的仓位立刻可用
	if b.paper != nil {
		b.paper.OnTick(ev)
	}

	b.mon.RecordTick()
	at := time.Unix(ev.Epoch, 0).UTC()
	decision, err := b.engine.OnTick(ev.Quote, at)
	if err != nil {
		b.mon.RecordTickRejected()
		b.emit("tick_rejected", map[string]interface{}{
			"symbol": b.symbol,
			"raw":    ev.Quote,
		})
		return
	}

	st := b.engine.Status()
	b.publish(st)
	b.watchRisk(st)

	if decision == nil {
		return
	}

	stake, _ := decision.Stake.Float64()
	b.mon.RecordDecision(decision.Digit, decision.Confidence, stake)
	b.journalDecision(decision, st)
	b.emit("trade_decision", map[string]interface{}{
		"symbol":      b.symbol,
		"decision_id": decision.ID,
		"digit":       decision.Digit,
		"direction":   decision.Direction.String(),
		"stake":       decision.Stake.StringFixed(2),
		"confidence":  decision.Confidence,
	})
	b.submit(decision)
}

// OnContract 把合约状态推送转给实盘执行器
func (b *streamBridge) OnContract(up gateway.ContractUpdate) {
	if b.live != nil {
		b.live.OnContract(up)
	}
}

// submit 提交一笔决策。实盘队列满说明提交协程被交易所拖住，
// 此时放弃该决策而不是阻塞行情流。
func (b *streamBridge) submit(d *engine.TradeDecision) {
	if b.live == nil {
		_ = b.trader.Submit(context.Background(), submitOrder(d))
		return
	}
	select {
	case b.submitCh <- d:
	default:
		if b.engine.AbandonDecision(d.ID) {
			b.mon.RecordSubmitError()
			b.log.Warn("Submit queue full, decision abandoned",
				zap.String("decision_id", d.ID))
		}
	}
}

// submitLoop 实盘提交工作协程。提交失败时执行器已通知引擎放弃，
// 这里只负责打点和日志。
func (b *streamBridge) submitLoop() {
	defer close(b.done)
	for d := range b.submitCh {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		start := time.Now()
		err := b.trader.Submit(ctx, submitOrder(d))
		cancel()
		b.mon.RecordSubmitLatency(time.Since(start).Seconds())
		if err != nil {
			b.mon.RecordSubmitError()
			b.log.Error("Contract submit failed",
				zap.String("decision_id", d.ID),
				zap.Error(err))
		}
	}
}

// publish 把引擎快照刷进指标面板
func (b *streamBridge) publish(st engine.EngineStatus) {
	b.mon.UpdateBalance(st.Risk.Balance)
	b.mon.UpdateSessionPnL(st.SessionPnL)
	b.mon.UpdateDailyLoss(st.Risk.DailyLoss)
	b.mon.UpdateEngineState(int(st.Risk.State))
	b.mon.UpdateOpenWagers(st.OpenWagers)
	b.mon.UpdateConsecutiveLosses(st.Risk.Breaker.ConsecutiveLosses)
	b.mon.UpdateWinRate(st.Outcomes.WinRate)
	b.mon.UpdateMarket(st.Volatility, int(st.Regime))
	for method, weight := range st.Weights {
		b.mon.UpdateExtractor(method, weight, st.Accuracies[method])
	}

	if st.Stats.Rejections > b.prevStats.Rejections {
		b.mon.RecordTradeRejected()
	}
	if st.Stats.NoTrades > b.prevStats.NoTrades {
		b.mon.RecordNoTrade()
	}
	b.prevStats = st.Stats
}

// watchRisk 发现风控状态跳变时发事件与告警
func (b *streamBridge) watchRisk(st engine.EngineStatus) {
	if st.Risk.State != b.prevState {
		fields := map[string]interface{}{
			"symbol": b.symbol,
			"state":  st.Risk.State.String(),
		}
		if st.Risk.SuspendReason != "" {
			fields["reason"] = st.Risk.SuspendReason
		}
		b.emit("risk_event", fields)
		if st.Risk.State == risk.StateTrading {
			b.alerts.SendInfo("Risk state recovered", fields)
		} else {
			b.alerts.SendWarning("Risk state changed", fields)
		}
		b.prevState = st.Risk.State
	}

	if st.Risk.Enabled != b.prevEnabled {
		if reason := b.sessionStopReason(st); !st.Risk.Enabled && reason != "" {
			fields := map[string]interface{}{
				"symbol":      b.symbol,
				"reason":      reason,
				"session_pnl": st.SessionPnL,
			}
			b.emit("session_stop", fields)
			b.alerts.SendCritical("Session stopped", fields)
		}
		b.prevEnabled = st.Risk.Enabled
	}
}

func (b *streamBridge) sessionStopReason(st engine.EngineStatus) string {
	switch {
	case b.stopLoss > 0 && st.SessionPnL <= -b.stopLoss:
		return "stop_loss"
	case b.takeProfit > 0 && st.SessionPnL >= b.takeProfit:
		return "take_profit"
	default:
		return ""
	}
}

// journalDecision 把决策连同当时的市场上下文落库
func (b *streamBridge) journalDecision(d *engine.TradeDecision, st engine.EngineStatus) {
	if b.recorder == nil {
		return
	}
	var probability float64
	if st.LastPrediction != nil {
		probability = st.LastPrediction.Probabilities[d.Digit]
	}
	b.recorder.Decision(journal.DecisionRecord{
		DecisionID:  d.ID,
		Symbol:      b.symbol,
		Digit:       d.Digit,
		Direction:   d.Direction.String(),
		Stake:       d.Stake.StringFixed(2),
		Confidence:  d.Confidence,
		Probability: probability,
		Regime:      st.Regime.String(),
		Session:     market.SessionAt(d.At).String(),
		DecidedAt:   d.At.Unix(),
	})
}

// Name 实现 Lifecycle
func (b *streamBridge) Name() string { return "stream_bridge" }

// Start 启动实盘提交协程；纸面模式没有出站请求，无需工作协程
func (b *streamBridge) Start(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}
	b.started = true
	if b.live != nil {
		go b.submitLoop()
	} else {
		close(b.done)
	}
	return nil
}

// Stop 关闭提交队列并等待在途提交完成
func (b *streamBridge) Stop() error {
	b.mu.Lock()
	if !b.started || b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.submitCh)
	select {
	case <-b.done:
		return nil
	case <-time.After(20 * time.Second):
		return fmt.Errorf("stream_bridge: pending submits did not drain")
	}
}

func (b *streamBridge) Health() error { return nil }

func submitOrder(d *engine.TradeDecision) gateway.Order {
	return gateway.Order{
		DecisionID: d.ID,
		Digit:      d.Digit,
		Direction:  d.Direction,
		Stake:      d.Stake,
	}
}

// journalingSink 包装引擎的结算入口：转发结果之余落库、打点并发事件。
// 实盘与纸面执行器都经由它回报。
type journalingSink struct {
	symbol   string
	engine   *engine.Engine
	mon      *monitor.Monitor
	recorder *journal.Recorder
	emit     func(event string, fields map[string]interface{})
}

func (s *journalingSink) OnOutcome(decisionID string, profit float64, won bool) {
	if !s.engine.OnOutcome(decisionID, profit, won) {
		s.mon.RecordUnknownOutcome()
		return
	}
	s.mon.RecordOutcome(won)
	if s.recorder != nil {
		s.recorder.Outcome(journal.OutcomeRecord{
			DecisionID: decisionID,
			Profit:     profit,
			Won:        won,
			SettledAt:  time.Now().Unix(),
		})
	}
	s.emit("trade_outcome", map[string]interface{}{
		"symbol":      s.symbol,
		"decision_id": decisionID,
		"profit":      profit,
		"won":         won,
	})
}

func (s *journalingSink) AbandonDecision(decisionID string) bool {
	return s.engine.AbandonDecision(decisionID)
}
