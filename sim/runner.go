package sim

import (
	"context"
	"errors"
	"time"

	"digit-trader-go/gateway"
	"digit-trader-go/internal/engine"
)

// Runner 把合成行情、决策引擎与纸面执行器串起来（离线，不连网关）。
type Runner struct {
	Engine *engine.Engine
	Paper  *gateway.PaperTrader
	Gen    *Generator

	clock *simClock
	seed  int64
}

// Result 是一轮模拟的汇总。
type Result struct {
	Seed      int64
	Ticks     int
	Rejected  int
	Decisions int
	Trades    int
	Wins      int
	Losses    int
	WinRate   float64
	PnL       float64
	Balance   float64
	Unsettled int
}

// Run 驱动 ticks 跳行情。每跳先结算在途纸面单再决策，与线上次序一致。
func (r *Runner) Run(ticks int) (Result, error) {
	if r.Engine == nil || r.Paper == nil || r.Gen == nil {
		return Result{}, errors.New("runner not initialized")
	}
	if ticks <= 0 {
		return Result{}, errors.New("ticks must be positive")
	}

	res := Result{Seed: r.seed, Ticks: ticks}
	for i := 0; i < ticks; i++ {
		ev := r.Gen.Next()
		at := time.Unix(ev.Epoch, 0).UTC()
		if r.clock != nil {
			r.clock.now = at
		}
		r.Paper.OnTick(ev)
		d, err := r.Engine.OnTick(ev.Quote, at)
		if err != nil {
			res.Rejected++
			continue
		}
		if d == nil {
			continue
		}
		res.Decisions++
		_ = r.Paper.Submit(context.Background(), gateway.Order{
			DecisionID: d.ID,
			Digit:      d.Digit,
			Direction:  d.Direction,
			Stake:      d.Stake,
		})
	}

	st := r.Engine.Status()
	res.Trades = st.Outcomes.Trades
	res.Wins = st.Outcomes.Wins
	res.Losses = st.Outcomes.Losses
	res.WinRate = st.Outcomes.WinRate
	res.PnL = st.SessionPnL
	res.Balance = st.Risk.Balance
	res.Unsettled = r.Paper.PendingOrders()
	return res, nil
}

// simClock 由合成行情时间驱动，风控的日界按模拟时间滚动。
type simClock struct {
	now time.Time
}

func (c *simClock) Now() time.Time { return c.now }

// simSink 把纸面结算转回引擎。
type simSink struct {
	eng *engine.Engine
}

func (s *simSink) OnOutcome(decisionID string, profit float64, won bool) {
	s.eng.OnOutcome(decisionID, profit, won)
}

func (s *simSink) AbandonDecision(decisionID string) bool {
	return s.eng.AbandonDecision(decisionID)
}
