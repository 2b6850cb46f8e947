package integration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	appconfig "digit-trader-go/config"
	"digit-trader-go/gateway"
	"digit-trader-go/infrastructure/logger"
	"digit-trader-go/internal/container"
	"digit-trader-go/market"
	"digit-trader-go/risk"
	"digit-trader-go/sim"
)

// waitFor 轮询条件直到成立，超时即失败。
func waitFor(t *testing.T, timeout time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("Timeout waiting for %s", what)
}

// TestPaperPipelineEndToEnd 测试纸面模式全链路：
// 容器接入模拟网关，偏置行情驱动出决策，下一跳行情完成纸面结算。
func TestPaperPipelineEndToEnd(t *testing.T) {
	// 1. 启动模拟服务与容器
	mock := NewMockDerivServer()
	defer mock.Close()

	cfg := appconfig.Default()
	cfg.Log.Level = "error"
	cfg.Gateway.Endpoint = mock.URL()
	cfg.Gateway.PipDigits = 4
	cfg.Engine.Strategy = "match"
	cfg.Alerts.Console = false

	c := container.New(cfg, "")
	if err := c.Build(); err != nil {
		t.Fatalf("Failed to build container: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Failed to start container: %v", err)
	}
	defer c.Stop()

	waitFor(t, 5*time.Second, "tick subscription", func() bool {
		return mock.TickSubscribers() > 0
	})

	// 2. 推送数字 5 占优的行情，直到引擎给出决策
	biased := []int{5, 5, 5, 2, 5, 5, 5, 5, 1, 5, 5, 5, 5, 3, 5, 5, 5, 5, 7, 5, 5, 5, 5, 5}
	pushed := 0
	waitFor(t, 10*time.Second, "first trade decision", func() bool {
		if c.Engine().Status().LastDecision != nil {
			return true
		}
		if pushed < 60 {
			mock.PushTick(fmt.Sprintf("1200.000%d", biased[pushed%len(biased)]))
			pushed++
		}
		return false
	})

	st := c.Engine().Status()
	d := st.LastDecision
	if d.Digit != 5 {
		t.Errorf("Expected predicted digit 5, got %d", d.Digit)
	}
	if d.Direction != market.DirectionMatch {
		t.Errorf("Expected MATCH direction, got %s", d.Direction)
	}
	if st.OpenWagers != 1 {
		t.Errorf("Expected 1 open wager, got %d", st.OpenWagers)
	}

	// 3. 下一跳末位是 5，纸面盘把 match 仓位结算为赢
	mock.PushTick("1200.0005")
	waitFor(t, 5*time.Second, "paper settlement", func() bool {
		return c.Engine().Status().Outcomes.Trades >= 1
	})

	st = c.Engine().Status()
	if st.Outcomes.Wins < 1 {
		t.Errorf("Expected at least 1 win, got %d", st.Outcomes.Wins)
	}
	if st.SessionPnL <= 0 {
		t.Errorf("Expected positive session PnL, got %.4f", st.SessionPnL)
	}
	if st.Stats.TicksSeen < int64(pushed) {
		t.Errorf("Expected >=%d ticks seen, got %d", pushed, st.Stats.TicksSeen)
	}
	t.Logf("✅ Paper pipeline test passed (ticks=%d decisions=%d pnl=%.2f)",
		st.Stats.TicksSeen, st.Stats.Decisions, st.SessionPnL)
}

// contractForwarder 把网关推送的合约事件转给执行器，行情帧忽略。
type contractForwarder struct {
	trader *gateway.DerivTrader
}

func (f *contractForwarder) OnTick(gateway.TickEvent) {}

func (f *contractForwarder) OnContract(up gateway.ContractUpdate) {
	f.trader.OnContract(up)
}

type outcomeRecord struct {
	id     string
	profit float64
	won    bool
}

// recordingSink 记录执行器回调的结算与放弃事件。
type recordingSink struct {
	mu        sync.Mutex
	outcomes  []outcomeRecord
	abandoned []string
}

func (s *recordingSink) OnOutcome(decisionID string, profit float64, won bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, outcomeRecord{decisionID, profit, won})
}

func (s *recordingSink) AbandonDecision(decisionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.abandoned = append(s.abandoned, decisionID)
	return true
}

func (s *recordingSink) Outcomes() []outcomeRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]outcomeRecord, len(s.outcomes))
	copy(out, s.outcomes)
	return out
}

func (s *recordingSink) Abandoned() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.abandoned))
	copy(out, s.abandoned)
	return out
}

// TestLiveTraderSubmitAndSettle 测试实盘执行链路：
// 鉴权取回余额，买入参数按协议下发，结算推送回流成决策结果，
// 买入被拒时放弃对应决策。
func TestLiveTraderSubmitAndSettle(t *testing.T) {
	// 1. 带令牌连接模拟服务
	mock := NewMockDerivServer()
	defer mock.Close()

	sink := &recordingSink{}
	ws, err := gateway.NewDerivWS(gateway.WSConfig{
		Endpoint: mock.URL(),
		Token:    "test-token",
		Symbol:   "R_100",
		Logger:   logger.NewNop(),
	})
	if err != nil {
		t.Fatalf("Failed to create ws client: %v", err)
	}
	trader, err := gateway.NewDerivTrader(gateway.TraderConfig{
		Symbol: "R_100",
		Caller: ws,
		Sink:   sink,
		Logger: logger.NewNop(),
	})
	if err != nil {
		t.Fatalf("Failed to create trader: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- ws.Run(ctx, &contractForwarder{trader: trader}) }()

	waitFor(t, 5*time.Second, "authorize handshake", func() bool {
		_, ok := ws.Balance()
		return ok
	})

	// 2. 授权帧带回账户余额
	if bal, _ := ws.Balance(); bal != 1000 {
		t.Errorf("Expected balance 1000, got %.2f", bal)
	}
	if ws.Currency() != "USD" {
		t.Errorf("Expected currency USD, got %s", ws.Currency())
	}

	// 3. 买入一口 DIGITMATCH 合约并核对下发参数
	err = trader.Submit(context.Background(), gateway.Order{
		DecisionID: "dec-live-1",
		Digit:      7,
		Direction:  market.DirectionMatch,
		Stake:      decimal.NewFromFloat(2),
	})
	if err != nil {
		t.Fatalf("Failed to submit order: %v", err)
	}

	buys := mock.BuyCalls()
	if len(buys) != 1 {
		t.Fatalf("Expected 1 buy call, got %d", len(buys))
	}
	b := buys[0]
	if b.ContractType != "DIGITMATCH" {
		t.Errorf("Expected DIGITMATCH, got %s", b.ContractType)
	}
	if b.Barrier != "7" {
		t.Errorf("Expected barrier 7, got %s", b.Barrier)
	}
	if b.Amount != 2 {
		t.Errorf("Expected stake 2, got %.2f", b.Amount)
	}
	if b.Basis != "stake" || b.DurationUnit != "t" || b.Duration != 1 {
		t.Errorf("Unexpected contract parameters: %+v", b)
	}
	if b.Symbol != "R_100" {
		t.Errorf("Expected symbol R_100, got %s", b.Symbol)
	}
	if trader.OpenContracts() != 1 {
		t.Errorf("Expected 1 open contract, got %d", trader.OpenContracts())
	}

	// 4. 推送结算帧，结果回流到决策侧
	mock.SettleContract(b.ContractID, "won", 1.9)
	waitFor(t, 5*time.Second, "contract settlement", func() bool {
		return len(sink.Outcomes()) == 1
	})
	oc := sink.Outcomes()[0]
	if oc.id != "dec-live-1" || !oc.won || oc.profit != 1.9 {
		t.Errorf("Unexpected outcome: %+v", oc)
	}
	if trader.OpenContracts() != 0 {
		t.Errorf("Expected 0 open contracts after settle, got %d", trader.OpenContracts())
	}

	// 5. 失败路径：买入被拒时放弃对应决策
	mock.FailBuys("InsufficientBalance", "Your account balance is insufficient.")
	err = trader.Submit(context.Background(), gateway.Order{
		DecisionID: "dec-live-2",
		Digit:      3,
		Direction:  market.DirectionDiffer,
		Stake:      decimal.NewFromFloat(1),
	})
	if err == nil {
		t.Fatalf("Expected buy rejection, got nil error")
	}
	if got := sink.Abandoned(); len(got) != 1 || got[0] != "dec-live-2" {
		t.Errorf("Expected abandoned dec-live-2, got %v", got)
	}

	stats := trader.Stats()
	if stats.Submitted != 1 || stats.Settled != 1 || stats.Wins != 1 || stats.SubmitErrors != 1 {
		t.Errorf("Unexpected trader stats: %+v", stats)
	}

	// 6. 取消后 Run 退出
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled from Run, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not exit after cancel")
	}
	t.Logf("✅ Live trader submit and settle test passed")
}

// TestEngineDecisionsDeterministic 用相同行情序列驱动两台引擎，
// 决策的 ID、数字、方向、注金与置信度必须逐跳一致。
func TestEngineDecisionsDeterministic(t *testing.T) {
	build := func() *sim.Runner {
		r, err := sim.BuildRunner(sim.RunnerConfig{Seed: 11, Strategy: "match"})
		if err != nil {
			t.Fatalf("Failed to build runner: %v", err)
		}
		return r
	}
	ra, rb := build(), build()

	base := time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)
	biased := []int{5, 5, 5, 2, 5, 5, 5, 5, 1, 5}
	decisions := 0
	for i := 0; i < 120; i++ {
		quote := fmt.Sprintf("1200.000%d", biased[i%len(biased)])
		at := base.Add(time.Duration(2*i) * time.Second)
		da, errA := ra.Engine.OnTick(quote, at)
		db, errB := rb.Engine.OnTick(quote, at)
		if (errA == nil) != (errB == nil) {
			t.Fatalf("Engines diverged on error at tick %d: %v vs %v", i, errA, errB)
		}
		if (da == nil) != (db == nil) {
			t.Fatalf("Engines diverged on decision at tick %d", i)
		}
		if da == nil {
			continue
		}
		decisions++
		if da.ID != db.ID {
			t.Errorf("Decision ID mismatch at tick %d: %s vs %s", i, da.ID, db.ID)
		}
		if da.Digit != db.Digit || da.Direction != db.Direction {
			t.Errorf("Decision target mismatch at tick %d: %d/%s vs %d/%s",
				i, da.Digit, da.Direction, db.Digit, db.Direction)
		}
		if !da.Stake.Equal(db.Stake) {
			t.Errorf("Stake mismatch at tick %d: %s vs %s", i, da.Stake, db.Stake)
		}
		if da.Confidence != db.Confidence {
			t.Errorf("Confidence mismatch at tick %d: %.4f vs %.4f", i, da.Confidence, db.Confidence)
		}
		// 双方同步结算为赢，腾出持仓额度继续产生决策
		profit := da.Stake.InexactFloat64() * 0.95
		ra.Engine.OnOutcome(da.ID, profit, true)
		rb.Engine.OnOutcome(db.ID, profit, true)
	}
	if decisions == 0 {
		t.Fatalf("Expected at least one decision")
	}
	t.Logf("✅ Deterministic decisions test passed (%d decisions)", decisions)
}

// TestBreakerOpensAfterLossStreak 连续亏损三单后熔断开启，
// 引擎停止给出新决策，后续行情只累计拒绝数。
func TestBreakerOpensAfterLossStreak(t *testing.T) {
	r, err := sim.BuildRunner(sim.RunnerConfig{Seed: 7, Strategy: "match"})
	if err != nil {
		t.Fatalf("Failed to build runner: %v", err)
	}
	eng := r.Engine

	base := time.Date(2025, 3, 11, 10, 0, 0, 0, time.UTC)
	biased := []int{5, 5, 5, 2, 5, 5, 5, 5, 1, 5}
	losses := 0
	ticks := 0
	for ; ticks < 200 && losses < 3; ticks++ {
		quote := fmt.Sprintf("1200.000%d", biased[ticks%len(biased)])
		d, err := eng.OnTick(quote, base.Add(time.Duration(2*ticks)*time.Second))
		if err != nil {
			t.Fatalf("Unexpected tick error: %v", err)
		}
		if d == nil {
			continue
		}
		stake := d.Stake.InexactFloat64()
		if !eng.OnOutcome(d.ID, -stake, false) {
			t.Fatalf("Outcome for %s not accepted", d.ID)
		}
		losses++
	}
	if losses < 3 {
		t.Fatalf("Expected 3 losses within %d ticks, got %d", ticks, losses)
	}

	st := eng.Status()
	if st.Risk.State != risk.StateCircuitOpen {
		t.Fatalf("Expected CIRCUIT_OPEN state, got %s", st.Risk.State)
	}
	if st.Risk.Breaker.ConsecutiveLosses < 3 {
		t.Errorf("Expected >=3 consecutive losses, got %d", st.Risk.Breaker.ConsecutiveLosses)
	}

	// 熔断期内继续喂行情，只能收到拒绝
	before := eng.GetStatistics().Rejections
	for i := 0; i < 10; i++ {
		d, _ := eng.OnTick("1200.0005", base.Add(time.Duration(2*(ticks+i))*time.Second))
		if d != nil {
			t.Fatalf("Expected no decision while breaker open, got digit %d", d.Digit)
		}
	}
	after := eng.GetStatistics().Rejections
	if after <= before {
		t.Errorf("Expected rejections to grow while breaker open (%d -> %d)", before, after)
	}
	t.Logf("✅ Breaker loss streak test passed (opened after %d ticks)", ticks)
}
