package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"digit-trader-go/config"
	"digit-trader-go/ensemble"
	"digit-trader-go/exposure"
	"digit-trader-go/gateway"
	"digit-trader-go/infrastructure/logger"
	"digit-trader-go/internal/engine"
	"digit-trader-go/market"
	"digit-trader-go/posttrade"
	"digit-trader-go/risk"
	"digit-trader-go/signal"
	"digit-trader-go/sizing"
)

// 把历史 tick 按原始时间回放给决策引擎，纸面结算统计胜率与盈亏。
// CSV 每行 epoch,quote；只有一列时视为报价序列，按 2 秒间隔合成时间。
// 用法：
//
//	go run ./cmd/replay -config configs/config.yaml -ticks data/r100_ticks.csv -out decisions.csv
func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "配置文件路径")
	ticksPath := flag.String("ticks", "", "tick 数据 CSV 路径")
	outPath := flag.String("out", "", "若指定则写入决策明细 CSV")
	symbol := flag.String("symbol", "", "覆盖配置中的交易标的")
	flag.Parse()

	if *ticksPath == "" {
		log.Fatal("必须通过 -ticks 指定数据文件")
	}
	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if *symbol != "" {
		cfg.Gateway.Symbol = *symbol
	}

	ticks, err := loadTicks(*ticksPath)
	if err != nil {
		log.Fatalf("读取 %s 失败: %v", *ticksPath, err)
	}
	if len(ticks) == 0 {
		log.Fatalf("数据为空: %s", *ticksPath)
	}

	clock := &replayClock{now: time.Unix(ticks[0].epoch, 0).UTC()}
	eng, err := buildEngine(cfg, clock)
	if err != nil {
		log.Fatalf("初始化引擎失败: %v", err)
	}
	sink := &replaySink{eng: eng, results: make(map[string]settleResult)}
	paper, err := gateway.NewPaperTrader(gateway.PaperConfig{
		PipDigits:   cfg.Gateway.PipDigits,
		PayoutRatio: cfg.Trade.PayoutRatio,
		Sink:        sink,
		Logger:      logger.NewNop(),
	})
	if err != nil {
		log.Fatalf("初始化纸面执行器失败: %v", err)
	}

	var decisions []*engine.TradeDecision
	rejected := 0
	for _, tk := range ticks {
		at := time.Unix(tk.epoch, 0).UTC()
		clock.now = at
		// 与线上一致：先结算在途纸面单，再做本跳决策
		paper.OnTick(gateway.TickEvent{
			Symbol:  cfg.Gateway.Symbol,
			Quote:   tk.quote,
			Epoch:   tk.epoch,
			PipSize: int(cfg.Gateway.PipDigits),
		})
		d, err := eng.OnTick(tk.quote, at)
		if err != nil {
			rejected++
			continue
		}
		if d != nil {
			decisions = append(decisions, d)
			_ = paper.Submit(context.Background(), gateway.Order{
				DecisionID: d.ID,
				Digit:      d.Digit,
				Direction:  d.Direction,
				Stake:      d.Stake,
			})
		}
	}

	st := eng.Status()
	log.Printf("symbol=%s ticks=%d rejected=%d decisions=%d trades=%d wins=%d losses=%d winRate=%.2f%% pnl=%.2f balance=%.2f unsettled=%d",
		cfg.Gateway.Symbol, len(ticks), rejected, len(decisions),
		st.Outcomes.Trades, st.Outcomes.Wins, st.Outcomes.Losses,
		st.Outcomes.WinRate*100, st.SessionPnL, st.Risk.Balance, paper.PendingOrders())
	for method, weight := range st.Weights {
		if acc, ok := st.Accuracies[method]; ok {
			log.Printf("extractor=%s weight=%.3f accuracy=%.2f%%", method, weight, acc*100)
		} else {
			log.Printf("extractor=%s weight=%.3f", method, weight)
		}
	}

	if *outPath != "" {
		if err := writeDecisionsCSV(*outPath, decisions, sink.results); err != nil {
			log.Printf("写入决策明细失败: %v", err)
		} else {
			log.Printf("已写入决策明细: %s", *outPath)
		}
	}
}

// replayClock 由回放数据驱动的风控时钟，日界滚动按历史时间发生
type replayClock struct {
	now time.Time
}

func (c *replayClock) Now() time.Time { return c.now }

type settleResult struct {
	profit float64
	won    bool
}

// replaySink 把结算转回引擎并留存明细
type replaySink struct {
	eng     *engine.Engine
	results map[string]settleResult
}

func (s *replaySink) OnOutcome(decisionID string, profit float64, won bool) {
	if s.eng.OnOutcome(decisionID, profit, won) {
		s.results[decisionID] = settleResult{profit: profit, won: won}
	}
}

func (s *replaySink) AbandonDecision(decisionID string) bool {
	return s.eng.AbandonDecision(decisionID)
}

func buildEngine(cfg config.AppConfig, clock risk.Clock) (*engine.Engine, error) {
	if cfg.Signal.ModelPath != "" {
		if err := signal.InitializeORT(""); err != nil {
			return nil, fmt.Errorf("init onnx runtime: %w", err)
		}
	}
	extractors, err := signal.NewFactory().Build(signal.Config{
		Enabled:          cfg.Signal.Enabled,
		FrequencySpan:    cfg.Signal.FrequencySpan,
		GapSpan:          cfg.Signal.GapSpan,
		ConsensusWindows: cfg.Signal.ConsensusWindows,
		PatternSpan:      cfg.Signal.PatternSpan,
		Volatility: signal.VolatilityConfig{
			Span:        cfg.Signal.Volatility.Span,
			Floor:       cfg.Signal.Volatility.Floor,
			Ceiling:     cfg.Signal.Volatility.Ceiling,
			MaxMomentum: cfg.Signal.Volatility.MaxMomentum,
		},
		ModelPath:   cfg.Signal.ModelPath,
		ModelSeqLen: cfg.Signal.ModelSeqLen,
	})
	if err != nil {
		return nil, err
	}

	direction, err := market.ParseDirection(cfg.Engine.Strategy)
	if err != nil {
		return nil, err
	}
	return engine.New(engine.Config{
		Symbol:            cfg.Gateway.Symbol,
		PipDigits:         cfg.Gateway.PipDigits,
		WindowCapacity:    cfg.Engine.WindowCapacity,
		Strategy:          direction,
		VolatilitySpan:    cfg.Engine.VolatilitySpan,
		ConfirmEntryDigit: cfg.Engine.ConfirmEntryDigit,
		SessionStopLoss:   cfg.Engine.SessionStopLoss,
		SessionTakeProfit: cfg.Engine.SessionTakeProfit,
		MaxPending:        cfg.Engine.MaxPending,
	}, engine.Components{
		Predictor: ensemble.NewPredictor(extractors, ensemble.Config{
			ConfidenceCap: cfg.Ensemble.ConfidenceCap,
			AccuracySpan:  cfg.Ensemble.AccuracySpan,
		}),
		Sizer: sizing.New(sizing.Config{
			MinConfidence:  cfg.Sizing.MinConfidence,
			WinProbCap:     cfg.Sizing.WinProbCap,
			PayoutRatio:    cfg.Sizing.PayoutRatio,
			KellyFactor:    cfg.Sizing.KellyFactor,
			MaxPositionPct: cfg.Sizing.MaxPositionPct,
			MinStake:       cfg.Sizing.MinStake,
			MaxStake:       cfg.Sizing.MaxStake,
		}),
		Governor: risk.NewGovernor(risk.Config{
			DailyLossLimitPct:   cfg.Risk.DailyLossLimitPct,
			WeeklyLossLimitPct:  cfg.Risk.WeeklyLossLimitPct,
			MonthlyLossLimitPct: cfg.Risk.MonthlyLossLimitPct,
			MinBalance:          cfg.Risk.MinBalance,
			MinConfidenceDiffer: cfg.Risk.MinConfidenceDiffer,
			MinConfidenceMatch:  cfg.Risk.MinConfidenceMatch,
			VolatilityCeiling:   cfg.Risk.VolatilityCeiling,
			MaxStakePct:         cfg.Risk.MaxStakePct,
			MaxOpenWagers:       cfg.Risk.MaxOpenWagers,
			MaxTradesPerHour:    cfg.Risk.MaxTradesPerHour,
			MaxTradesPerDay:     cfg.Risk.MaxTradesPerDay,
			BreakerThreshold:    cfg.Risk.BreakerThreshold,
			BreakerCooldown:     time.Duration(cfg.Risk.BreakerCooldownMinutes) * time.Minute,
		}, cfg.Trade.InitialBalance, clock),
		Outcomes: posttrade.NewTracker(0),
		Analyzer: posttrade.NewAnalyzer(),
		Exposure: exposure.NewTracker(),
		Logger:   logger.NewNop(),
	})
}

type tickRow struct {
	epoch int64
	quote string
}

// loadTicks 读取 epoch,quote 数据。单列文件按 2 秒间隔合成时间，
// 报价保留原始字符串，结尾的零不能丢。
func loadTicks(path string) ([]tickRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Unix()
	out := make([]tickRow, 0, len(rows))
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		var epoch int64
		var quote string
		if len(row) >= 2 {
			e, err := strconv.ParseInt(strings.TrimSpace(row[0]), 10, 64)
			if err != nil {
				continue
			}
			epoch = e
			quote = strings.TrimSpace(row[1])
		} else {
			epoch = base + int64(i*2)
			quote = strings.TrimSpace(row[0])
		}
		if _, err := strconv.ParseFloat(quote, 64); err != nil {
			continue
		}
		out = append(out, tickRow{epoch: epoch, quote: quote})
	}
	return out, nil
}

func writeDecisionsCSV(path string, decisions []*engine.TradeDecision, results map[string]settleResult) error {
	if len(decisions) == 0 {
		return fmt.Errorf("no decisions")
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()
	header := []string{"decision_id", "decided_at", "digit", "direction", "stake", "confidence", "settled", "won", "profit"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, d := range decisions {
		res, settled := results[d.ID]
		record := []string{
			d.ID,
			d.At.UTC().Format(time.RFC3339),
			strconv.Itoa(d.Digit),
			d.Direction.String(),
			d.Stake.StringFixed(2),
			fmt.Sprintf("%.2f", d.Confidence),
			strconv.FormatBool(settled),
			strconv.FormatBool(settled && res.won),
			fmt.Sprintf("%.2f", res.profit),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	return nil
}
