package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"digit-trader-go/infrastructure/logger"
	"digit-trader-go/market"
)

// PaperConfig 配置纸面执行器。
type PaperConfig struct {
	PipDigits   int32
	PayoutRatio float64 // 默认 0.95
	Sink        OutcomeSink
	Logger      *logger.Logger
}

// PaperStats 是纸面执行统计。
type PaperStats struct {
	Submitted int64
	Settled   int64
	Wins      int64
	Losses    int64
}

// PaperTrader 模拟成交：不触碰交易所，订单由下一个 tick 的个位数字结算，
// 赢按固定赔率计收益，输按全额本金计亏损。
// 应用层必须先把 tick 交给 OnTick 结算，再交给引擎决策，
// 这样 1-tick 合约在结算的同一跳上就能腾出仓位。
type PaperTrader struct {
	cfg    PaperConfig
	payout decimal.Decimal
	sink   OutcomeSink
	log    *logger.Logger

	mu      sync.Mutex
	pending []Order
	stats   PaperStats
}

// NewPaperTrader 构建纸面执行器。
func NewPaperTrader(cfg PaperConfig) (*PaperTrader, error) {
	if cfg.Sink == nil {
		return nil, fmt.Errorf("sink required")
	}
	if cfg.PayoutRatio <= 0 {
		cfg.PayoutRatio = 0.95
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &PaperTrader{
		cfg:    cfg,
		payout: decimal.NewFromFloat(cfg.PayoutRatio),
		sink:   cfg.Sink,
		log:    cfg.Logger,
	}, nil
}

// Submit 挂入一笔待结算订单，永不失败。
func (p *PaperTrader) Submit(_ context.Context, o Order) error {
	p.mu.Lock()
	p.pending = append(p.pending, o)
	p.stats.Submitted++
	p.mu.Unlock()
	p.log.Info("Paper contract opened",
		zap.String("decision_id", o.DecisionID),
		zap.Int("digit", o.Digit),
		zap.String("direction", o.Direction.String()),
		zap.String("stake", o.Stake.String()))
	return nil
}

// OnTick 用当前 tick 的个位数字结算所有挂单。
func (p *PaperTrader) OnTick(ev TickEvent) {
	tick, err := market.NewTick(ev.Quote, p.cfg.PipDigits, time.Unix(ev.Epoch, 0).UTC())
	if err != nil {
		p.log.Warn("Paper settle skipped on bad quote",
			zap.String("quote", ev.Quote), zap.Error(err))
		return
	}
	p.mu.Lock()
	orders := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, o := range orders {
		match := tick.Digit == o.Digit
		won := match == (o.Direction == market.DirectionMatch)
		var profit float64
		if won {
			profit = o.Stake.Mul(p.payout).Round(2).InexactFloat64()
		} else {
			profit = -o.Stake.InexactFloat64()
		}
		p.mu.Lock()
		p.stats.Settled++
		if won {
			p.stats.Wins++
		} else {
			p.stats.Losses++
		}
		p.mu.Unlock()
		p.log.Info("Paper contract settled",
			zap.String("decision_id", o.DecisionID),
			zap.Int("barrier", o.Digit),
			zap.Int("exit_digit", tick.Digit),
			zap.Bool("won", won),
			zap.Float64("profit", profit))
		p.sink.OnOutcome(o.DecisionID, profit, won)
	}
}

// PendingOrders 返回未结算订单数。
func (p *PaperTrader) PendingOrders() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Stats 返回纸面执行统计快照。
func (p *PaperTrader) Stats() PaperStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}
