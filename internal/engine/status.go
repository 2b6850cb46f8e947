package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"digit-trader-go/ensemble"
	"digit-trader-go/market"
	"digit-trader-go/posttrade"
	"digit-trader-go/risk"
)

// Statistics 引擎计数器。引擎互斥锁内更新，快照按值返回。
type Statistics struct {
	StartTime       time.Time
	TicksSeen       int64
	TicksRejected   int64
	ExtractorErrors int64
	Decisions       int64
	NoTrades        int64
	Rejections      int64
	OutcomesSeen    int64
	UnknownOutcomes int64
	Abandoned       int64
	LastTickAt      time.Time
	LastDecisionAt  time.Time
}

// EngineStatus 只读状态快照，供状态服务与巡检使用。
// LastPrediction 与 LastDecision 为共享引用，调用方只读。
type EngineStatus struct {
	Symbol         string
	Risk           risk.Metrics
	LastPrediction *ensemble.Prediction
	LastDecision   *TradeDecision
	Outcomes       posttrade.Summary
	Weights        map[string]float64
	Accuracies     map[string]float64
	Volatility     float64
	Regime         market.Regime
	OpenWagers     int
	TotalStaked    decimal.Decimal
	SessionPnL     float64
	Stats          Statistics
}

// Status 返回当前引擎状态快照
func (e *Engine) Status() EngineStatus {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := EngineStatus{
		Symbol:         e.config.Symbol,
		Risk:           e.governor.GetMetrics(),
		LastPrediction: e.lastPrediction,
		LastDecision:   e.lastDecision,
		Weights:        e.predictor.Weights(),
		Volatility:     e.lastVolatility,
		Regime:         e.lastRegime,
		TotalStaked:    decimal.Zero,
		SessionPnL:     e.sessionPnL,
		Stats:          e.stats,
	}
	st.Accuracies = make(map[string]float64, len(st.Weights))
	for method := range st.Weights {
		if acc, ok := e.predictor.Accuracy(method); ok {
			st.Accuracies[method] = acc
		}
	}
	if e.outcomes != nil {
		st.Outcomes = e.outcomes.Summarize()
	}
	if e.exposure != nil {
		st.OpenWagers = e.exposure.Count()
		st.TotalStaked = e.exposure.TotalStaked()
	}
	return st
}

// GetStatistics 返回计数器快照
func (e *Engine) GetStatistics() Statistics {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stats
}

// WindowLen 返回滚动窗口当前长度
func (e *Engine) WindowLen() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.window.Len()
}

// PendingCount 返回等待结算的决策数
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}
