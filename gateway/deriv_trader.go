package gateway

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"digit-trader-go/infrastructure/logger"
	"digit-trader-go/market"
)

// Order 是一笔待提交的数字合约。
type Order struct {
	DecisionID string
	Digit      int
	Direction  market.Direction
	Stake      decimal.Decimal
}

// OutcomeSink 接收合约的最终结果，由装配层实现并转发给决策引擎。
type OutcomeSink interface {
	OnOutcome(decisionID string, profit float64, won bool)
	AbandonDecision(decisionID string) bool
}

// TradeSubmitter 提交订单。实盘与纸面两种执行器都实现该接口。
type TradeSubmitter interface {
	Submit(ctx context.Context, o Order) error
}

// TraderConfig 配置实盘执行器。
type TraderConfig struct {
	Symbol        string
	Currency      string // 默认 USD
	DurationTicks int    // 默认 1
	Caller        Caller
	Sink          OutcomeSink
	Logger        *logger.Logger
}

// TraderStats 是执行统计。
type TraderStats struct {
	Submitted    int64
	SubmitErrors int64
	Settled      int64
	Wins         int64
	Losses       int64
}

// DerivTrader 把决策引擎的信号落成真实合约：
// 发送 buy 请求、订阅合约状态、把结算结果回传给引擎。
type DerivTrader struct {
	cfg  TraderConfig
	call Caller
	sink OutcomeSink
	log  *logger.Logger

	mu    sync.Mutex
	open  map[int64]string // contract_id -> decision_id
	stats TraderStats
}

// NewDerivTrader 构建实盘执行器。
func NewDerivTrader(cfg TraderConfig) (*DerivTrader, error) {
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("symbol required")
	}
	if cfg.Caller == nil {
		return nil, fmt.Errorf("caller required")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("sink required")
	}
	if cfg.Currency == "" {
		cfg.Currency = "USD"
	}
	if cfg.DurationTicks <= 0 {
		cfg.DurationTicks = 1
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	return &DerivTrader{
		cfg:  cfg,
		call: cfg.Caller,
		sink: cfg.Sink,
		log:  cfg.Logger,
		open: make(map[int64]string),
	}, nil
}

// Submit 买入一口数字合约。买入失败时通知引擎放弃该决策，
// 买入成功后订阅合约状态等待结算。
func (t *DerivTrader) Submit(ctx context.Context, o Order) error {
	stake := o.Stake.InexactFloat64()
	req := map[string]any{
		"buy":   1,
		"price": stake,
		"parameters": map[string]any{
			"amount":        stake,
			"basis":         "stake",
			"contract_type": o.Direction.ContractType(),
			"currency":      t.cfg.Currency,
			"duration":      t.cfg.DurationTicks,
			"duration_unit": "t",
			"symbol":        t.cfg.Symbol,
			"barrier":       strconv.Itoa(o.Digit),
		},
	}
	raw, err := t.call.Call(ctx, req)
	if err != nil {
		t.abandon(o, err)
		return fmt.Errorf("buy contract: %w", err)
	}
	confirm, err := ParseBuy(raw)
	if err != nil {
		t.abandon(o, err)
		return fmt.Errorf("buy contract: %w", err)
	}

	t.mu.Lock()
	t.open[confirm.ContractID] = o.DecisionID
	t.stats.Submitted++
	t.mu.Unlock()
	t.log.Info("Contract purchased",
		zap.Int64("contract_id", confirm.ContractID),
		zap.String("decision_id", o.DecisionID),
		zap.String("contract_type", o.Direction.ContractType()),
		zap.Int("barrier", o.Digit),
		zap.Float64("buy_price", confirm.BuyPrice),
		zap.Float64("payout", confirm.Payout))

	// 合约已成交，订阅失败只能靠重连后的 Resubscribe 兜底。
	if up, err := t.subscribeContract(ctx, confirm.ContractID); err != nil {
		t.log.Warn("Contract subscribe failed",
			zap.Int64("contract_id", confirm.ContractID),
			zap.Error(err))
	} else {
		t.OnContract(up)
	}
	return nil
}

// OnContract 消化合约状态推送，已结算的合约把结果回传给引擎。
// 重复推送与非本进程的合约会被忽略。
func (t *DerivTrader) OnContract(up ContractUpdate) {
	if !up.Settled() {
		return
	}
	t.mu.Lock()
	decisionID, ok := t.open[up.ContractID]
	if ok {
		delete(t.open, up.ContractID)
		t.stats.Settled++
		if up.Won() {
			t.stats.Wins++
		} else {
			t.stats.Losses++
		}
	}
	t.mu.Unlock()
	if !ok {
		return
	}
	t.log.Info("Contract settled",
		zap.Int64("contract_id", up.ContractID),
		zap.String("decision_id", decisionID),
		zap.String("status", up.Status),
		zap.Float64("profit", up.Profit))
	t.sink.OnOutcome(decisionID, up.Profit, up.Won())
}

// Resubscribe 重新订阅所有未结算合约，重连后调用。
func (t *DerivTrader) Resubscribe(ctx context.Context) error {
	t.mu.Lock()
	ids := make([]int64, 0, len(t.open))
	for id := range t.open {
		ids = append(ids, id)
	}
	t.mu.Unlock()
	for _, id := range ids {
		up, err := t.subscribeContract(ctx, id)
		if err != nil {
			return fmt.Errorf("resubscribe contract %d: %w", id, err)
		}
		t.OnContract(up)
	}
	return nil
}

// OpenContracts 返回未结算合约数。
func (t *DerivTrader) OpenContracts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}

// Stats 返回执行统计快照。
func (t *DerivTrader) Stats() TraderStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// subscribeContract 订阅合约状态，回应本身就是当前状态。
func (t *DerivTrader) subscribeContract(ctx context.Context, contractID int64) (ContractUpdate, error) {
	raw, err := t.call.Call(ctx, map[string]any{
		"proposal_open_contract": 1,
		"contract_id":            contractID,
		"subscribe":              1,
	})
	if err != nil {
		return ContractUpdate{}, err
	}
	return ParseContract(raw)
}

func (t *DerivTrader) abandon(o Order, err error) {
	t.mu.Lock()
	t.stats.SubmitErrors++
	t.mu.Unlock()
	t.sink.AbandonDecision(o.DecisionID)
	t.log.Error("Contract purchase failed",
		zap.String("decision_id", o.DecisionID),
		zap.Int("digit", o.Digit),
		zap.String("direction", o.Direction.String()),
		zap.Error(err))
}
